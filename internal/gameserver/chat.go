package gameserver

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/bancho/internal/game/channel"
	"github.com/cory-johannsen/bancho/internal/game/command"
	"github.com/cory-johannsen/bancho/internal/game/match"
	"github.com/cory-johannsen/bancho/internal/game/session"
	"github.com/cory-johannsen/bancho/internal/packet"
)

// Names clients use for the channel of the match they are in.
const matchDisplayChannel = "#multiplayer"

// resolveChannel maps the name a client used to the registry name.
func resolveChannel(caller session.Session, name string) string {
	if name == matchDisplayChannel && caller.InMatch() {
		return match.ChannelName(caller.MatchID)
	}
	return name
}

// sendPublicMessage relays a chat line to the other members of a channel
// the caller is in, then runs it as a bot command if it carries the prefix.
func (s *Server) sendPublicMessage(_ context.Context, caller session.Session, m packet.Message) error {
	if strings.TrimSpace(m.Text) == "" {
		return nil
	}
	name := resolveChannel(caller, m.Recipient)
	info, ok := s.channels.GetByName(name)
	if !ok || !caller.InChannel(name) {
		return reject("You are not in %s.", m.Recipient)
	}

	msg := packet.SendMessage(packet.Message{
		Sender:    caller.Name,
		Text:      m.Text,
		Recipient: info.Shown(),
		SenderID:  caller.AccountID,
	})
	if err := s.channels.Broadcast(name, msg, caller.Token); err != nil {
		return err
	}

	reply, handled := s.runCommand(caller, m.Text, info.Shown())
	if !handled || reply == "" {
		return nil
	}
	err := s.channels.Broadcast(name, s.botMessage(reply, info.Shown()))
	if errors.Is(err, channel.ErrChannelNotFound) {
		// The command closed the channel, as closing a match does.
		return s.sessions.Enqueue(caller.Token, s.botMessage(reply, caller.Name))
	}
	return err
}

// sendPrivateMessage delivers a chat line to one online account. Lines to
// the bot run as commands, with or without the prefix.
func (s *Server) sendPrivateMessage(_ context.Context, caller session.Session, m packet.Message) error {
	if strings.TrimSpace(m.Text) == "" {
		return nil
	}
	target, ok := s.sessions.GetByName(m.Recipient)
	if !ok {
		return reject("%s isn't online.", m.Recipient)
	}

	if target.Bot {
		line := m.Text
		if !strings.HasPrefix(line, s.commands.Prefix()) {
			line = s.commands.Prefix() + line
		}
		reply, _ := s.runCommand(caller, line, target.Name)
		if reply == "" {
			return nil
		}
		return s.sessions.Enqueue(caller.Token, s.botMessage(reply, caller.Name))
	}

	if target.BlockDMs && !target.IsFriend(caller.AccountID) {
		return s.sessions.Enqueue(caller.Token, packet.UserDMBlocked(target.Name))
	}
	err := s.sessions.Enqueue(target.Token, packet.SendMessage(packet.Message{
		Sender:    caller.Name,
		Text:      m.Text,
		Recipient: target.Name,
		SenderID:  caller.AccountID,
	}))
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return reject("%s isn't online.", m.Recipient)
		}
		return err
	}
	if target.AwayMessage != "" {
		return s.sessions.Enqueue(caller.Token, packet.SendMessage(packet.Message{
			Sender:    target.Name,
			Text:      target.AwayMessage,
			Recipient: caller.Name,
			SenderID:  target.AccountID,
		}))
	}
	return nil
}

func (s *Server) setAwayMessage(_ context.Context, caller session.Session, m packet.Message) error {
	_, err := s.sessions.Update(caller.Token, func(sess *session.Session) error {
		sess.AwayMessage = m.Text
		return nil
	})
	return err
}

// runCommand executes line through the command registry. Command failures
// become the reply.
func (s *Server) runCommand(caller session.Session, line, target string) (string, bool) {
	reply, handled, err := s.commands.Execute(line, caller, target, s)
	if !handled {
		return "", false
	}
	if err != nil {
		s.logger.Debug("command failed",
			zap.String("user", caller.Name),
			zap.String("line", line),
			zap.Error(err))
		if msg, ok := notice(err); ok {
			return msg, true
		}
		if errors.Is(err, command.ErrUsage) {
			return err.Error(), true
		}
		return "That command failed.", true
	}
	s.logger.Info("command",
		zap.String("user", caller.Name),
		zap.String("target", target),
		zap.String("line", line))
	return reply, true
}

func (s *Server) botMessage(text, recipient string) []byte {
	return packet.SendMessage(packet.Message{
		Sender:    s.bot.Name,
		Text:      text,
		Recipient: recipient,
		SenderID:  s.bot.AccountID,
	})
}

// channelJoin joins a channel by request. Match channels are joined by
// joining the match.
func (s *Server) channelJoin(_ context.Context, caller session.Session, name packet.ChannelName) error {
	if string(name) == matchDisplayChannel {
		return nil
	}
	_, err := s.channels.Join(caller.Token, string(name))
	if errors.Is(err, channel.ErrChannelNotFound) || errors.Is(err, channel.ErrForbidden) {
		_ = s.sessions.Enqueue(caller.Token, packet.ChannelKick(string(name)))
	}
	return err
}

// channelPart leaves a channel. Names without the # prefix are client-side
// tabs and the match channel is left by leaving the match.
func (s *Server) channelPart(_ context.Context, caller session.Session, name packet.ChannelName) error {
	if !strings.HasPrefix(string(name), "#") || string(name) == matchDisplayChannel {
		return nil
	}
	_, err := s.channels.Part(caller.Token, string(name))
	return err
}
