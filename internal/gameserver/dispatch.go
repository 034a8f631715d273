package gameserver

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/cory-johannsen/bancho/internal/game/session"
	"github.com/cory-johannsen/bancho/internal/observability"
	"github.com/cory-johannsen/bancho/internal/packet"
)

// Reconnect notice sent with the restart event for an unknown token.
const noticeReconnect = "The server has restarted, reconnecting..."

// handler runs one decoded packet for the caller. caller is a snapshot taken
// just before the call.
type handler func(ctx context.Context, caller session.Session, p packet.Payload) error

// on adapts a handler taking the concrete payload type of its packet id.
func on[P packet.Payload](fn func(ctx context.Context, caller session.Session, p P) error) handler {
	return func(ctx context.Context, caller session.Session, p packet.Payload) error {
		v, ok := p.(P)
		if !ok {
			return fmt.Errorf("%w: %T", errBadPayload, p)
		}
		return fn(ctx, caller, v)
	}
}

// bare adapts a handler for a packet id without payload.
func bare(fn func(ctx context.Context, caller session.Session) error) handler {
	return func(ctx context.Context, caller session.Session, _ packet.Payload) error {
		return fn(ctx, caller)
	}
}

func (s *Server) dispatchTable() map[packet.ClientPacketID]handler {
	return map[packet.ClientPacketID]handler{
		packet.ClientChangeAction:            on(s.changeAction),
		packet.ClientSendPublicMessage:       on(s.sendPublicMessage),
		packet.ClientLogout:                  on(s.logout),
		packet.ClientRequestStatusUpdate:     bare(s.requestStatusUpdate),
		packet.ClientPing:                    bare(s.ping),
		packet.ClientSendPrivateMessage:      on(s.sendPrivateMessage),
		packet.ClientSetAwayMessage:          on(s.setAwayMessage),
		packet.ClientPartLobby:               bare(s.partLobby),
		packet.ClientJoinLobby:               bare(s.joinLobby),
		packet.ClientCreateMatch:             on(s.createMatch),
		packet.ClientJoinMatch:               on(s.joinMatch),
		packet.ClientPartMatch:               bare(s.partMatch),
		packet.ClientMatchChangeSlot:         on(s.matchChangeSlot),
		packet.ClientMatchReady:              bare(s.matchReady),
		packet.ClientMatchLock:               on(s.matchLock),
		packet.ClientMatchChangeSettings:     on(s.matchChangeSettings),
		packet.ClientMatchStart:              bare(s.matchStart),
		packet.ClientMatchComplete:           bare(s.matchComplete),
		packet.ClientMatchChangeMods:         on(s.matchChangeMods),
		packet.ClientMatchLoadComplete:       bare(s.matchLoadComplete),
		packet.ClientMatchNoBeatmap:          bare(s.matchNoBeatmap),
		packet.ClientMatchNotReady:           bare(s.matchNotReady),
		packet.ClientMatchFailed:             bare(s.matchFailed),
		packet.ClientMatchHasBeatmap:         bare(s.matchHasBeatmap),
		packet.ClientMatchSkipRequest:        bare(s.matchSkip),
		packet.ClientChannelJoin:             on(s.channelJoin),
		packet.ClientMatchTransferHost:       on(s.matchTransferHost),
		packet.ClientFriendAdd:               on(s.friendAdd),
		packet.ClientFriendRemove:            on(s.friendRemove),
		packet.ClientMatchChangeTeam:         bare(s.matchChangeTeam),
		packet.ClientChannelPart:             on(s.channelPart),
		packet.ClientReceiveUpdates:          on(s.receiveUpdates),
		packet.ClientUserStatsRequest:        on(s.userStatsRequest),
		packet.ClientMatchInvite:             on(s.matchInvite),
		packet.ClientMatchChangePassword:     on(s.matchChangePassword),
		packet.ClientUserPresenceRequest:     on(s.userPresenceRequest),
		packet.ClientUserPresenceRequestAll:  bare(s.userPresenceRequestAll),
		packet.ClientToggleBlockNonFriendDMs: on(s.toggleBlockNonFriendDMs),
	}
}

// HandleRequest runs every packet in body for the session behind token and
// returns the bytes queued for it. Batches for one token never interleave.
//
// Postcondition: An unknown token yields a restart event and a notice.
// Protocol errors skip the offending packet. Domain rejections queue a
// notice and processing continues. A session vanishing mid-batch stops the
// batch; bytes already queued are still returned.
func (s *Server) HandleRequest(ctx context.Context, token string, body []byte) []byte {
	release, err := s.sessions.Serialize(token)
	if err != nil {
		return reconnect()
	}
	defer release()

	now := s.now()
	caller, err := s.sessions.Update(token, func(sess *session.Session) error {
		sess.LastPinged = now
		return nil
	})
	if err != nil {
		return reconnect()
	}
	out, err := s.sessions.Drain(token)
	if err != nil {
		return reconnect()
	}

	dec := packet.NewDecoder(body)
	for {
		p, err := dec.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.logger.Warn("skipping packet", zap.String("token", token), zap.Error(err))
			continue
		}
		h, ok := s.handlers[p.ID]
		if !ok {
			s.logger.Debug("no handler for packet", zap.String("token", token), zap.Stringer("packet", p.ID))
			continue
		}

		if caller, ok = s.sessions.GetByToken(token); !ok {
			s.logger.Error("session vanished mid-batch",
				zap.String("token", token),
				zap.Error(ErrInvariant))
			break
		}
		s.logger.Debug("handling packet", observability.PacketFields(token, caller.Name, uint16(p.ID), len(body))...)

		err = h(ctx, caller, p.Payload)
		stop := s.settle(token, p.ID, err)

		queued, derr := s.sessions.Drain(token)
		if derr == nil {
			out = append(out, queued...)
		}
		if stop || derr != nil {
			break
		}
	}
	if len(dec.Remaining()) > 0 {
		s.logger.Warn("discarding partial frame", zap.String("token", token), zap.Int("bytes", len(dec.Remaining())))
	}
	return out
}

// settle classifies a handler error and reports whether the batch stops.
func (s *Server) settle(token string, id packet.ClientPacketID, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, errLoggedOut):
		return true
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, ErrInvariant):
		s.logger.Error("aborting batch",
			zap.String("token", token),
			zap.Stringer("packet", id),
			zap.Error(fmt.Errorf("%w: %w", ErrInvariant, err)))
		return true
	case errors.Is(err, errBadPayload):
		s.logger.Warn("skipping packet", zap.String("token", token), zap.Stringer("packet", id), zap.Error(err))
		return false
	}

	if msg, ok := notice(err); ok {
		s.logger.Debug("rejected", zap.String("token", token), zap.Stringer("packet", id), zap.String("reason", msg))
		_ = s.sessions.Enqueue(token, packet.Notification(msg))
		return false
	}
	s.logger.Error("handler failed", zap.String("token", token), zap.Stringer("packet", id), zap.Error(err))
	_ = s.sessions.Enqueue(token, packet.Notification("Something went wrong handling that request."))
	return false
}

func reconnect() []byte {
	return append(packet.Restart(0), packet.Notification(noticeReconnect)...)
}
