package gameserver

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/bancho/internal/game/match"
	"github.com/cory-johannsen/bancho/internal/game/session"
	"github.com/cory-johannsen/bancho/internal/packet"
)

const persistTimeout = 5 * time.Second

// changeAction records the caller's new status and shows it to everyone,
// the caller included.
func (s *Server) changeAction(_ context.Context, caller session.Session, a packet.Action) error {
	updated, err := s.sessions.Update(caller.Token, func(sess *session.Session) error {
		sess.Status = session.Status{
			Action: a.Action,
			Text:   a.InfoText,
			MapMD5: a.MapMD5,
			MapID:  a.MapID,
			Mode:   a.Mode,
			Mods:   a.Mods,
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.sessions.BroadcastToAll(updated.PanelEvents())
	return nil
}

func (s *Server) requestStatusUpdate(_ context.Context, caller session.Session) error {
	return s.sessions.Enqueue(caller.Token, packet.UserStats(caller.Stats()))
}

// ping only refreshes the last-contact time, which every request does.
func (s *Server) ping(context.Context, session.Session) error {
	return nil
}

func (s *Server) receiveUpdates(_ context.Context, caller session.Session, p packet.ReceiveUpdates) error {
	_, err := s.sessions.Update(caller.Token, func(sess *session.Session) error {
		sess.PresenceFilter = p.Filter
		return nil
	})
	return err
}

// userStatsRequest sends the stats of each requested online account other
// than the caller.
func (s *Server) userStatsRequest(_ context.Context, caller session.Session, ids packet.UserIDs) error {
	var events [][]byte
	for _, other := range s.sessions.GetManyByAccountIDs(ids) {
		if other.AccountID != caller.AccountID {
			events = append(events, packet.UserStats(other.Stats()))
		}
	}
	return s.sessions.Enqueue(caller.Token, events...)
}

func (s *Server) userPresenceRequest(_ context.Context, caller session.Session, ids packet.UserIDs) error {
	var events [][]byte
	for _, other := range s.sessions.GetManyByAccountIDs(ids) {
		events = append(events, packet.UserPresence(other.Presence()))
	}
	return s.sessions.Enqueue(caller.Token, events...)
}

func (s *Server) userPresenceRequestAll(_ context.Context, caller session.Session) error {
	var events [][]byte
	for _, other := range s.sessions.All() {
		events = append(events, packet.UserPresence(other.Presence()))
	}
	return s.sessions.Enqueue(caller.Token, events...)
}

func (s *Server) friendAdd(ctx context.Context, caller session.Session, id packet.UserID) error {
	return s.updateFriends(ctx, caller, func(friends []int32) []int32 {
		if int32(id) == caller.AccountID || slices.Contains(friends, int32(id)) {
			return friends
		}
		return append(friends, int32(id))
	})
}

func (s *Server) friendRemove(ctx context.Context, caller session.Session, id packet.UserID) error {
	return s.updateFriends(ctx, caller, func(friends []int32) []int32 {
		return slices.DeleteFunc(friends, func(f int32) bool { return f == int32(id) })
	})
}

// updateFriends applies fn to the caller's friends list and persists it.
// A failed write is logged; the session keeps the new list.
func (s *Server) updateFriends(ctx context.Context, caller session.Session, fn func([]int32) []int32) error {
	updated, err := s.sessions.Update(caller.Token, func(sess *session.Session) error {
		sess.Friends = fn(sess.Friends)
		return nil
	})
	if err != nil {
		return err
	}
	if slices.Equal(updated.Friends, caller.Friends) {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	if err := s.accounts.SetFriends(ctx, updated.AccountID, updated.Friends); err != nil {
		s.logger.Warn("persisting friends", zap.Int32("user_id", updated.AccountID), zap.Error(err))
	}
	return nil
}

func (s *Server) toggleBlockNonFriendDMs(_ context.Context, caller session.Session, t packet.Toggle) error {
	_, err := s.sessions.Update(caller.Token, func(sess *session.Session) error {
		sess.BlockDMs = t != 0
		return nil
	})
	return err
}

// logout ends the caller's session unless it logged in within the debounce
// window. Clients send a logout right after a reconnecting login.
func (s *Server) logout(_ context.Context, caller session.Session, _ packet.Logout) error {
	if s.now().Sub(caller.LoginTime) < s.opts.LogoutDebounce {
		s.logger.Debug("ignoring logout inside debounce window", zap.String("token", caller.Token))
		return nil
	}
	s.Disconnect(caller.Token)
	return errLoggedOut
}

// Disconnect removes the session behind token: it leaves its match, parts
// every channel and tells everyone else it is gone. An unknown token is a
// no-op.
func (s *Server) Disconnect(token string) {
	if err := s.matches.Leave(token); err != nil &&
		!errors.Is(err, match.ErrNotInMatch) && !errors.Is(err, session.ErrSessionNotFound) {
		s.logger.Warn("leaving match on logout", zap.String("token", token), zap.Error(err))
	}
	s.channels.PartAll(token)
	gone, err := s.sessions.Delete(token)
	if err != nil {
		return
	}
	s.sessions.BroadcastToAll(packet.UserLogout(gone.AccountID))
	s.logger.Info("logout",
		zap.String("token", token),
		zap.Int32("user_id", gone.AccountID),
		zap.String("user", gone.Name),
		zap.Duration("online", s.now().Sub(gone.LoginTime)))
}
