package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/bancho/internal/game/ruleset"
	"github.com/cory-johannsen/bancho/internal/storage/kv"
)

var (
	// ErrSessionNotFound is returned for a token with no live session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrAlreadyOnline is returned when creating a second session for an
	// account or token.
	ErrAlreadyOnline = errors.New("account already has a session")
)

const mirrorTimeout = 2 * time.Second

type entry struct {
	// request serializes whole request batches for this token.
	request sync.Mutex

	id   int32
	name string

	mu      sync.Mutex
	sess    Session
	removed bool
}

// Store is the registry of live sessions. Each session is updated under its
// own lock; the store lock only guards the indexes. All methods are safe for
// concurrent use.
type Store struct {
	mu      sync.RWMutex
	byToken map[string]*entry
	byID    map[int32]*entry
	byName  map[string]*entry

	mirror kv.Store
	logger *zap.Logger
}

// NewStore creates an empty Store.
//
// Precondition: logger must be non-nil; mirror may be nil to disable
// write-through.
// Postcondition: Returns a Store with no sessions.
func NewStore(mirror kv.Store, logger *zap.Logger) *Store {
	return &Store{
		byToken: make(map[string]*entry),
		byID:    make(map[int32]*entry),
		byName:  make(map[string]*entry),
		mirror:  mirror,
		logger:  logger,
	}
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Create registers s.
//
// Precondition: s.Token and s.Name must be non-empty.
// Postcondition: Returns the stored snapshot, or ErrAlreadyOnline if the
// token, account id or name is already live.
func (st *Store) Create(s Session) (Session, error) {
	if s.Token == "" || s.Name == "" {
		return Session{}, fmt.Errorf("session: token and name are required")
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.byToken[s.Token]; ok {
		return Session{}, fmt.Errorf("%w: token collision", ErrAlreadyOnline)
	}
	if _, ok := st.byID[s.AccountID]; ok {
		return Session{}, fmt.Errorf("%w: account %d", ErrAlreadyOnline, s.AccountID)
	}
	if _, ok := st.byName[nameKey(s.Name)]; ok {
		return Session{}, fmt.Errorf("%w: %q", ErrAlreadyOnline, s.Name)
	}

	e := &entry{id: s.AccountID, name: nameKey(s.Name), sess: s.clone()}
	st.byToken[s.Token] = e
	st.byID[e.id] = e
	st.byName[e.name] = e
	st.writeMirror(e.sess)
	return s.clone(), nil
}

func (st *Store) entry(token string) (*entry, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	e, ok := st.byToken[token]
	return e, ok
}

func (e *entry) snapshot() (Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return Session{}, false
	}
	return e.sess.clone(), true
}

// GetByToken returns the session for token.
func (st *Store) GetByToken(token string) (Session, bool) {
	e, ok := st.entry(token)
	if !ok {
		return Session{}, false
	}
	return e.snapshot()
}

// GetByAccountID returns the session of account id.
func (st *Store) GetByAccountID(id int32) (Session, bool) {
	st.mu.RLock()
	e, ok := st.byID[id]
	st.mu.RUnlock()
	if !ok {
		return Session{}, false
	}
	return e.snapshot()
}

// GetByName returns the session whose name matches case-insensitively.
func (st *Store) GetByName(name string) (Session, bool) {
	st.mu.RLock()
	e, ok := st.byName[nameKey(name)]
	st.mu.RUnlock()
	if !ok {
		return Session{}, false
	}
	return e.snapshot()
}

// GetManyByAccountIDs returns the live sessions among ids, in the order
// given. Offline ids are skipped.
func (st *Store) GetManyByAccountIDs(ids []int32) []Session {
	out := make([]Session, 0, len(ids))
	for _, id := range ids {
		if s, ok := st.GetByAccountID(id); ok {
			out = append(out, s)
		}
	}
	return out
}

// All returns every live session ordered by account id.
func (st *Store) All() []Session {
	out := make([]Session, 0, st.Count())
	for _, e := range st.entries() {
		if s, ok := e.snapshot(); ok {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}

// Count returns the number of live sessions.
func (st *Store) Count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.byToken)
}

func (st *Store) entries() []*entry {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]*entry, 0, len(st.byToken))
	for _, e := range st.byToken {
		out = append(out, e)
	}
	return out
}

// Update applies fn to a copy of the session and commits the copy if fn
// returns nil. Updates to one token never interleave. Token, AccountID and
// Name cannot be changed.
//
// Postcondition: Returns the committed snapshot, or ErrSessionNotFound, or
// fn's error with the session unchanged.
func (st *Store) Update(token string, fn func(*Session) error) (Session, error) {
	e, ok := st.entry(token)
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return Session{}, ErrSessionNotFound
	}

	next := e.sess.clone()
	if err := fn(&next); err != nil {
		return e.sess.clone(), err
	}
	next.Token, next.AccountID, next.Name = e.sess.Token, e.sess.AccountID, e.sess.Name
	e.sess = next
	st.writeMirror(next)
	return next.clone(), nil
}

// Enqueue appends events to the session's outbound queue. Events for the
// bot session are dropped.
func (st *Store) Enqueue(token string, events ...[]byte) error {
	_, err := st.Update(token, func(s *Session) error {
		if s.Bot {
			return nil
		}
		for _, ev := range events {
			s.Queue = append(s.Queue, ev...)
		}
		return nil
	})
	return err
}

// Drain returns and clears the session's outbound queue.
func (st *Store) Drain(token string) ([]byte, error) {
	var out []byte
	_, err := st.Update(token, func(s *Session) error {
		out, s.Queue = s.Queue, nil
		return nil
	})
	return out, err
}

// Delete removes the session for token.
//
// Postcondition: Returns the final snapshot, or ErrSessionNotFound.
func (st *Store) Delete(token string) (Session, error) {
	st.mu.Lock()
	e, ok := st.byToken[token]
	if ok {
		delete(st.byToken, token)
		delete(st.byID, e.id)
		delete(st.byName, e.name)
	}
	st.mu.Unlock()
	if !ok {
		return Session{}, ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.removed = true
	st.deleteMirror(token)
	return e.sess.clone(), nil
}

// Serialize blocks until no other request batch holds token and returns
// the function that releases it.
func (st *Store) Serialize(token string) (func(), error) {
	e, ok := st.entry(token)
	if !ok {
		return nil, ErrSessionNotFound
	}
	e.request.Lock()
	return e.request.Unlock, nil
}

// BroadcastToAll queues data for every session not in exclude. An empty
// store is a no-op.
func (st *Store) BroadcastToAll(data []byte, exclude ...int32) {
	for _, e := range st.entries() {
		st.enqueueEntry(e, data, exclude, nil)
	}
}

// BroadcastWhere queues data for every session admit accepts. admit is
// called with the session locked and must not call back into the store.
func (st *Store) BroadcastWhere(data []byte, admit func(*Session) bool) {
	for _, e := range st.entries() {
		st.enqueueEntry(e, data, nil, admit)
	}
}

// BroadcastPresenceOf queues subject's presence and stats for every other
// session not in exclude whose presence filter admits subject.
func (st *Store) BroadcastPresenceOf(subject Session, exclude ...int32) {
	data := subject.PanelEvents()
	for _, e := range st.entries() {
		st.enqueueEntry(e, data, exclude, func(s *Session) bool {
			if s.AccountID == subject.AccountID {
				return false
			}
			switch s.PresenceFilter {
			case ruleset.PresenceNone:
				return false
			case ruleset.PresenceFriends:
				return s.IsFriend(subject.AccountID)
			default:
				return true
			}
		})
	}
}

func (st *Store) enqueueEntry(e *entry, data []byte, exclude []int32, admit func(*Session) bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed || e.sess.Bot {
		return
	}
	for _, id := range exclude {
		if e.sess.AccountID == id {
			return
		}
	}
	if admit != nil && !admit(&e.sess) {
		return
	}
	e.sess.Queue = append(e.sess.Queue, data...)
	st.writeMirror(e.sess)
}

// writeMirror must be called with the entry lock held.
func (st *Store) writeMirror(s Session) {
	if st.mirror == nil {
		return
	}
	data, err := Marshal(s)
	if err != nil {
		st.logger.Error("encoding session for mirror", zap.Int32("account_id", s.AccountID), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := st.mirror.Set(ctx, kv.SessionPrefix+s.Token, data); err != nil {
		st.logger.Warn("mirroring session", zap.Int32("account_id", s.AccountID), zap.Error(err))
	}
}

func (st *Store) deleteMirror(token string) {
	if st.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := st.mirror.Delete(ctx, kv.SessionPrefix+token); err != nil {
		st.logger.Warn("removing mirrored session", zap.Error(err))
	}
}
