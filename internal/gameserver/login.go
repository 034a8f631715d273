package gameserver

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/bancho/internal/game/ruleset"
	"github.com/cory-johannsen/bancho/internal/game/session"
	"github.com/cory-johannsen/bancho/internal/packet"
	"github.com/cory-johannsen/bancho/internal/storage"
)

// RejectedToken is returned as the token of a refused login.
const RejectedToken = "no"

// Login notices.
const (
	noticeAlreadyOnline = "User is already logged in."
	noticeBadPassword   = "Incorrect username or password."
	noticeBanned        = "Your account is banned."
	noticeMalformed     = "The login request could not be read."
	noticeUnavailable   = "Login is unavailable, please try again later."
)

// LoginRequest is the parsed body of a login.
type LoginRequest struct {
	Name        string
	PasswordMD5 string
	UTCOffset   int8
	Client      session.ClientDetails
}

// ParseLogin parses the three newline-separated login lines: name,
// password digest, and the pipe-delimited client info
// "version|utc_offset|display_city|hashes|pm_private" where hashes is
// "path_md5:adapters:adapters_md5:uninstall_md5:disk_md5:".
//
// Postcondition: Returns the request or an error wrapping ErrMalformedLogin.
func ParseLogin(body []byte) (LoginRequest, error) {
	lines := strings.Split(strings.TrimRight(string(body), "\n"), "\n")
	if len(lines) < 3 {
		return LoginRequest{}, fmt.Errorf("%w: %d lines", ErrMalformedLogin, len(lines))
	}
	name := strings.TrimSpace(lines[0])
	password := strings.TrimSpace(lines[1])
	if name == "" || password == "" {
		return LoginRequest{}, fmt.Errorf("%w: empty credentials", ErrMalformedLogin)
	}

	info := strings.Split(strings.TrimSpace(lines[2]), "|")
	if len(info) != 5 {
		return LoginRequest{}, fmt.Errorf("%w: %d client info fields", ErrMalformedLogin, len(info))
	}
	offset, err := strconv.Atoi(info[1])
	if err != nil || offset < -12 || offset > 14 {
		return LoginRequest{}, fmt.Errorf("%w: utc offset %q", ErrMalformedLogin, info[1])
	}
	hashes := strings.Split(info[3], ":")
	if len(hashes) < 5 {
		return LoginRequest{}, fmt.Errorf("%w: %d client hashes", ErrMalformedLogin, len(hashes))
	}

	var adapters []string
	for _, a := range strings.Split(hashes[1], ".") {
		if a != "" {
			adapters = append(adapters, a)
		}
	}
	return LoginRequest{
		Name:        name,
		PasswordMD5: password,
		UTCOffset:   int8(offset),
		Client: session.ClientDetails{
			Version:          info[0],
			OsuPathMD5:       hashes[0],
			Adapters:         adapters,
			AdaptersMD5:      hashes[2],
			UninstallMD5:     hashes[3],
			DiskSignatureMD5: hashes[4],
			DisplayCity:      info[2] == "1",
			PMPrivate:        info[4] == "1",
		},
	}, nil
}

// LoginResult is the response to a login.
type LoginResult struct {
	// Token is the new session token, or RejectedToken.
	Token string
	Body  []byte
}

func rejected(msg string) LoginResult {
	return LoginResult{
		Token: RejectedToken,
		Body:  append(packet.UserIDEvent(-1), packet.Notification(msg)...),
	}
}

// Login authenticates body and opens a session. Refusals are returned as a
// LoginResult carrying RejectedToken, never as an error.
//
// Postcondition: On success the result body starts with the user id event
// and carries every login event, the caller's presence and the presence of
// every other online session.
func (s *Server) Login(ctx context.Context, body []byte) LoginResult {
	req, err := ParseLogin(body)
	if err != nil {
		s.logger.Info("rejecting login", zap.Error(err))
		return rejected(noticeMalformed)
	}

	s.loginMu.Lock()
	defer s.loginMu.Unlock()

	if _, online := s.sessions.GetByName(req.Name); online {
		s.logger.Info("rejecting login: already online", zap.String("user", req.Name))
		return rejected(noticeAlreadyOnline)
	}

	acct, err := s.authenticate(ctx, req)
	if err != nil {
		if msg, ok := notice(err); ok {
			s.logger.Info("rejecting login", zap.String("user", req.Name), zap.String("reason", msg))
			return rejected(msg)
		}
		s.logger.Error("login failed", zap.String("user", req.Name), zap.Error(err))
		return rejected(noticeUnavailable)
	}

	now := s.now()
	sess, err := s.sessions.Create(session.Session{
		Token:          s.newToken(),
		AccountID:      acct.ID,
		Name:           acct.Name,
		Privileges:     acct.Privileges,
		UTCOffset:      req.UTCOffset,
		Country:        acct.Country,
		Friends:        acct.Friends,
		Client:         req.Client,
		Status:         session.Status{Action: ruleset.ActionIdle, Mode: ruleset.ModeVanillaStandard},
		PresenceFilter: ruleset.PresenceAll,
		MatchID:        session.NoMatch,
		LoginTime:      now,
		LastPinged:     now,
	})
	if err != nil {
		if errors.Is(err, session.ErrAlreadyOnline) {
			return rejected(noticeAlreadyOnline)
		}
		s.logger.Error("creating session", zap.String("user", acct.Name), zap.Error(err))
		return rejected(noticeUnavailable)
	}

	if err := s.welcome(sess); err != nil {
		s.logger.Error("sending login events", zap.String("token", sess.Token), zap.Error(err))
		_, _ = s.sessions.Delete(sess.Token)
		s.channels.PartAll(sess.Token)
		return rejected(noticeUnavailable)
	}

	out, err := s.sessions.Drain(sess.Token)
	if err != nil {
		s.logger.Error("draining login response", zap.String("token", sess.Token), zap.Error(err))
		return rejected(noticeUnavailable)
	}
	s.logger.Info("login",
		zap.String("token", sess.Token),
		zap.Int32("user_id", sess.AccountID),
		zap.String("user", sess.Name),
		zap.String("version", req.Client.Version))
	return LoginResult{Token: sess.Token, Body: out}
}

// authenticate fetches the account for req, registering it when allowed.
func (s *Server) authenticate(ctx context.Context, req LoginRequest) (storage.Account, error) {
	acct, err := s.accounts.FetchByName(ctx, req.Name)
	switch {
	case errors.Is(err, storage.ErrAccountNotFound):
		if !s.opts.AutoRegister {
			return storage.Account{}, reject(noticeBadPassword)
		}
		return s.register(ctx, req)
	case err != nil:
		return storage.Account{}, fmt.Errorf("fetching account: %w", err)
	}

	if !s.accounts.VerifyPassword(req.PasswordMD5, acct.PasswordHash) {
		return storage.Account{}, reject(noticeBadPassword)
	}
	if acct.Privileges.Any(ruleset.PrivBanned) {
		return storage.Account{}, reject(noticeBanned)
	}
	if _, online := s.sessions.GetByAccountID(acct.ID); online {
		return storage.Account{}, reject(noticeAlreadyOnline)
	}
	return acct, nil
}

func (s *Server) register(ctx context.Context, req LoginRequest) (storage.Account, error) {
	if err := storage.ValidateName(req.Name); err != nil {
		return storage.Account{}, reject("Invalid username: %v.", err)
	}
	hash, err := storage.HashPassword(req.PasswordMD5)
	if err != nil {
		return storage.Account{}, fmt.Errorf("hashing password: %w", err)
	}
	acct, err := s.accounts.Create(ctx, req.Name, hash, s.country(req.UTCOffset), ruleset.PrivNormal)
	if err != nil {
		if errors.Is(err, storage.ErrAccountExists) {
			return storage.Account{}, reject(noticeAlreadyOnline)
		}
		return storage.Account{}, fmt.Errorf("registering account: %w", err)
	}

	d := req.Client
	err = s.accounts.RecordClientDetails(ctx, storage.ClientDetails{
		AccountID:        acct.ID,
		Version:          d.Version,
		UTCOffset:        req.UTCOffset,
		OsuPathMD5:       d.OsuPathMD5,
		Adapters:         strings.Join(d.Adapters, "."),
		AdaptersMD5:      d.AdaptersMD5,
		UninstallMD5:     d.UninstallMD5,
		DiskSignatureMD5: d.DiskSignatureMD5,
		DisplayCity:      d.DisplayCity,
		PMPrivate:        d.PMPrivate,
	})
	if err != nil {
		s.logger.Warn("recording client details", zap.Int32("user_id", acct.ID), zap.Error(err))
	}
	s.logger.Info("account registered",
		zap.Int32("user_id", acct.ID),
		zap.String("user", acct.Name),
		zap.String("country", acct.Country))
	return acct, nil
}

// welcome queues the login events for sess and announces it to everyone else.
func (s *Server) welcome(sess session.Session) error {
	events := [][]byte{
		packet.UserIDEvent(sess.AccountID),
		packet.ProtocolVersion(s.opts.ProtocolVersion),
		packet.PrivilegesEvent(sess.Privileges.Client()),
		packet.FriendsList(sess.Friends),
	}
	if s.opts.MenuIconURL != "" {
		events = append(events, packet.MainMenuIcon(s.opts.MenuIconURL, s.opts.MenuRedirectURL))
	}
	if s.opts.LoginMessage != "" {
		events = append(events, packet.Notification(s.opts.LoginMessage))
	}
	for _, info := range s.channels.All() {
		if info.Internal || info.Offered(sess.Privileges) || !info.Accessible(sess.Privileges) {
			continue
		}
		events = append(events, packet.ChannelInfo(info.Shown(), info.Topic, info.Count()))
	}
	events = append(events, packet.ChannelInfoEnd())
	if err := s.sessions.Enqueue(sess.Token, events...); err != nil {
		return err
	}

	for _, info := range s.channels.ListAutoJoin(sess.Privileges) {
		if _, err := s.channels.Join(sess.Token, info.Name); err != nil {
			s.logger.Warn("auto-joining channel",
				zap.String("token", sess.Token),
				zap.String("channel", info.Name),
				zap.Error(err))
		}
	}

	self, ok := s.sessions.GetByToken(sess.Token)
	if !ok {
		return session.ErrSessionNotFound
	}
	presence := [][]byte{self.PanelEvents()}
	for _, other := range s.sessions.All() {
		if other.Token != self.Token {
			presence = append(presence, other.PanelEvents())
		}
	}
	if err := s.sessions.Enqueue(self.Token, presence...); err != nil {
		return err
	}
	s.sessions.BroadcastPresenceOf(self)
	return nil
}
