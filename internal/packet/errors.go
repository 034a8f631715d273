package packet

import (
	"errors"
	"fmt"
)

// ErrTruncated is returned when a payload ends before its fields do.
var ErrTruncated = errors.New("packet: truncated payload")

// UnknownPacketError reports a frame whose id has no payload decoder.
// The frame has been consumed; decoding may continue.
type UnknownPacketError struct {
	ID     ClientPacketID
	Length uint32
}

func (e *UnknownPacketError) Error() string {
	return fmt.Sprintf("packet: no decoder for %s (%d payload bytes)", e.ID, e.Length)
}

// PayloadError wraps a failure to decode the payload of a known frame.
// The frame has been consumed; decoding may continue.
type PayloadError struct {
	ID  ClientPacketID
	Err error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("packet: decoding %s: %v", e.ID, e.Err)
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}
