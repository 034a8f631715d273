// Package kv provides the string-keyed mirror that session, channel and
// match state is written through to.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("kv: key not found")

// Key prefixes for mirrored state.
const (
	SessionPrefix = "bancho:sessions:"
	ChannelPrefix = "bancho:channels:"
	MatchPrefix   = "bancho:matches:"
)

// Store is an atomic-per-key byte store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Scan returns every key with the given prefix and its value.
	Scan(ctx context.Context, prefix string) (map[string][]byte, error)
	Close() error
}

// PutJSON marshals v and stores it under key.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("kv: encoding %q: %w", key, err)
	}
	return s.Set(ctx, key, data)
}

// GetJSON loads key and unmarshals it into v.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("kv: decoding %q: %w", key, err)
	}
	return nil
}
