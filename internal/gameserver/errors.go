package gameserver

import (
	"errors"
	"fmt"

	"github.com/cory-johannsen/bancho/internal/game/channel"
	"github.com/cory-johannsen/bancho/internal/game/command"
	"github.com/cory-johannsen/bancho/internal/game/match"
)

var (
	// ErrInvariant marks a failure that leaves the rest of a request batch
	// meaningless, such as the caller's session vanishing mid-handler.
	ErrInvariant = errors.New("session invariant violated")

	// ErrMalformedLogin is returned for a login body that cannot be parsed.
	ErrMalformedLogin = errors.New("malformed login request")

	errBadPayload = errors.New("unexpected payload")
	errLoggedOut  = errors.New("session logged out")
)

// rejection is a domain refusal with the notice the caller is shown.
type rejection struct {
	notice string
}

func (r *rejection) Error() string { return r.notice }

func reject(format string, args ...any) error {
	return &rejection{notice: fmt.Sprintf(format, args...)}
}

var notices = []struct {
	err    error
	notice string
}{
	{match.ErrNoFreeSlot, "The server cannot host any more matches right now."},
	{match.ErrMatchNotFound, "That match no longer exists."},
	{match.ErrMatchFull, "That match is full."},
	{match.ErrWrongPassword, "Incorrect match password."},
	{match.ErrNotHost, "Only the host can do that."},
	{match.ErrNotInMatch, "You are not in a match."},
	{match.ErrAlreadyInMatch, "You are already in a match."},
	{match.ErrInvalidSlot, "That slot cannot be used."},
	{match.ErrInProgress, "The match is in progress."},
	{match.ErrNotInProgress, "The match is not in progress."},
	{channel.ErrChannelNotFound, "That channel does not exist."},
	{channel.ErrForbidden, "You cannot join that channel."},
	{command.ErrUnknownCommand, "Unknown command."},
	{command.ErrForbidden, "You are not allowed to use that command."},
}

// notice returns the text a caller is shown for err, and false when err is
// not a domain rejection.
func notice(err error) (string, bool) {
	var r *rejection
	if errors.As(err, &r) {
		return r.notice, true
	}
	for _, n := range notices {
		if errors.Is(err, n.err) {
			return n.notice, true
		}
	}
	return "", false
}
