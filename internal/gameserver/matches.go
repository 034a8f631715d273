package gameserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/cory-johannsen/bancho/internal/game/match"
	"github.com/cory-johannsen/bancho/internal/game/session"
	"github.com/cory-johannsen/bancho/internal/packet"
)

// joinLobby subscribes the caller to match listings and sends every open match.
func (s *Server) joinLobby(_ context.Context, caller session.Session) error {
	if _, err := s.channels.Join(caller.Token, match.LobbyChannel); err != nil {
		return err
	}
	var events [][]byte
	for _, m := range s.matches.List() {
		events = append(events, packet.NewMatch(m.Data()))
	}
	return s.sessions.Enqueue(caller.Token, events...)
}

func (s *Server) partLobby(_ context.Context, caller session.Session) error {
	_, err := s.channels.Part(caller.Token, match.LobbyChannel)
	return err
}

// joinFailed queues the join failure event and passes err on for its notice.
func (s *Server) joinFailed(caller session.Session, err error) error {
	if errors.Is(err, session.ErrSessionNotFound) {
		return err
	}
	if qerr := s.sessions.Enqueue(caller.Token, packet.MatchJoinFail()); qerr != nil {
		return qerr
	}
	return err
}

func (s *Server) createMatch(_ context.Context, caller session.Session, data packet.MatchData) error {
	if _, err := s.matches.Create(caller.Token, data); err != nil {
		return s.joinFailed(caller, err)
	}
	return nil
}

func (s *Server) joinMatch(_ context.Context, caller session.Session, j packet.JoinMatch) error {
	if _, err := s.matches.Join(caller.Token, int(j.MatchID), j.Password); err != nil {
		return s.joinFailed(caller, err)
	}
	return nil
}

// partMatch leaves the caller's match. Leaving when not in one is a no-op.
func (s *Server) partMatch(_ context.Context, caller session.Session) error {
	if err := s.matches.Leave(caller.Token); err != nil && !errors.Is(err, match.ErrNotInMatch) {
		return err
	}
	return nil
}

func (s *Server) matchChangeSlot(_ context.Context, caller session.Session, slot packet.SlotID) error {
	return s.matches.ChangeSlot(caller.Token, int(slot))
}

func (s *Server) matchLock(_ context.Context, caller session.Session, slot packet.SlotID) error {
	return s.matches.LockSlot(caller.Token, int(slot))
}

func (s *Server) matchTransferHost(_ context.Context, caller session.Session, slot packet.SlotID) error {
	return s.matches.TransferHost(caller.Token, int(slot))
}

func (s *Server) matchChangeSettings(_ context.Context, caller session.Session, data packet.MatchData) error {
	return s.matches.ChangeSettings(caller.Token, data)
}

func (s *Server) matchChangePassword(_ context.Context, caller session.Session, data packet.MatchData) error {
	return s.matches.ChangePassword(caller.Token, data.Password)
}

func (s *Server) matchChangeMods(_ context.Context, caller session.Session, c packet.ChangeMods) error {
	return s.matches.ChangeMods(caller.Token, c.Mods)
}

func (s *Server) matchChangeTeam(_ context.Context, caller session.Session) error {
	return s.matches.ChangeTeam(caller.Token)
}

func (s *Server) matchReady(_ context.Context, caller session.Session) error {
	return s.matches.SetReady(caller.Token)
}

func (s *Server) matchNotReady(_ context.Context, caller session.Session) error {
	return s.matches.SetNotReady(caller.Token)
}

func (s *Server) matchNoBeatmap(_ context.Context, caller session.Session) error {
	return s.matches.NoMap(caller.Token)
}

func (s *Server) matchHasBeatmap(_ context.Context, caller session.Session) error {
	return s.matches.HasMap(caller.Token)
}

func (s *Server) matchStart(_ context.Context, caller session.Session) error {
	return s.matches.Start(caller.Token)
}

func (s *Server) matchLoadComplete(_ context.Context, caller session.Session) error {
	return s.matches.LoadComplete(caller.Token)
}

func (s *Server) matchSkip(_ context.Context, caller session.Session) error {
	return s.matches.Skip(caller.Token)
}

func (s *Server) matchFailed(_ context.Context, caller session.Session) error {
	return s.matches.Failed(caller.Token)
}

func (s *Server) matchComplete(_ context.Context, caller session.Session) error {
	return s.matches.Complete(caller.Token)
}

// matchInvite sends an online account a link to the caller's match.
func (s *Server) matchInvite(_ context.Context, caller session.Session, id packet.UserID) error {
	if !caller.InMatch() {
		return match.ErrNotInMatch
	}
	m, ok := s.matches.Get(caller.MatchID)
	if !ok {
		return match.ErrMatchNotFound
	}
	target, ok := s.sessions.GetByAccountID(int32(id))
	if !ok || target.Bot {
		return reject("That user isn't online.")
	}
	return s.sessions.Enqueue(target.Token, packet.MatchInvite(packet.Message{
		Sender:    caller.Name,
		Text:      fmt.Sprintf("Come join my multiplayer match: [osump://%d/%s %s]", m.ID, m.Password, m.Name),
		Recipient: target.Name,
		SenderID:  caller.AccountID,
	}))
}
