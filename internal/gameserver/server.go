// Package gameserver is the session orchestrator: it logs clients in, runs
// each request's packet batch through the dispatch table and returns the
// bytes queued for the caller.
package gameserver

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/bancho/internal/config"
	"github.com/cory-johannsen/bancho/internal/game/channel"
	"github.com/cory-johannsen/bancho/internal/game/command"
	"github.com/cory-johannsen/bancho/internal/game/match"
	"github.com/cory-johannsen/bancho/internal/game/ruleset"
	"github.com/cory-johannsen/bancho/internal/game/session"
	"github.com/cory-johannsen/bancho/internal/geo"
	"github.com/cory-johannsen/bancho/internal/packet"
	"github.com/cory-johannsen/bancho/internal/storage"
)

// CountryResolver maps a client's UTC offset to a country code.
type CountryResolver interface {
	CountryForOffset(offset int) string
}

// Options are the login and protocol settings of a Server.
type Options struct {
	AutoRegister    bool
	LoginMessage    string
	MenuIconURL     string
	MenuRedirectURL string
	ProtocolVersion int32
	BotName         string
	LogoutDebounce  time.Duration
}

// OptionsFromConfig extracts Options from the bancho configuration section.
func OptionsFromConfig(c config.BanchoConfig) Options {
	return Options{
		AutoRegister:    c.AutoRegister,
		LoginMessage:    c.LoginMessage,
		MenuIconURL:     c.MenuIconURL,
		MenuRedirectURL: c.MenuRedirectURL,
		ProtocolVersion: c.ProtocolVersion,
		BotName:         c.BotName,
		LogoutDebounce:  c.LogoutDebounce,
	}
}

// Deps are the shared structures a Server drives.
type Deps struct {
	Sessions  *session.Store
	Channels  *channel.Registry
	Matches   *match.Engine
	Accounts  storage.Repository
	Countries CountryResolver
	Commands  *command.Registry
	Logger    *zap.Logger
}

// Server handles bancho requests.
type Server struct {
	opts      Options
	sessions  *session.Store
	channels  *channel.Registry
	matches   *match.Engine
	accounts  storage.Repository
	countries CountryResolver
	commands  *command.Registry
	logger    *zap.Logger

	handlers map[packet.ClientPacketID]handler

	// loginMu spans the lookup, registration and session creation of a login.
	loginMu sync.Mutex

	bot      session.Session
	now      func() time.Time
	newToken func() string
}

// NewServer builds a Server and registers the resident bot session.
//
// Precondition: every field of deps except Countries must be non-nil. A nil
// Countries resolves every offset to the unknown country.
// Postcondition: Returns a ready Server or a non-nil error.
func NewServer(deps Deps, opts Options) (*Server, error) {
	if deps.Sessions == nil || deps.Channels == nil || deps.Matches == nil ||
		deps.Accounts == nil || deps.Commands == nil || deps.Logger == nil {
		return nil, fmt.Errorf("gameserver: missing dependency")
	}
	if opts.BotName == "" {
		return nil, fmt.Errorf("gameserver: bot name is required")
	}
	s := &Server{
		opts:      opts,
		sessions:  deps.Sessions,
		channels:  deps.Channels,
		matches:   deps.Matches,
		accounts:  deps.Accounts,
		countries: deps.Countries,
		commands:  deps.Commands,
		logger:    deps.Logger,
		now:       time.Now,
		newToken:  uuid.NewString,
	}
	s.handlers = s.dispatchTable()

	bot, err := s.sessions.Create(session.Session{
		Token:          s.newToken(),
		AccountID:      storage.BotAccountID,
		Name:           opts.BotName,
		Privileges:     ruleset.PrivNormal | ruleset.PrivDeveloper,
		Country:        geo.UnknownCountry,
		PresenceFilter: ruleset.PresenceNone,
		MatchID:        session.NoMatch,
		Bot:            true,
		LoginTime:      s.now(),
		LastPinged:     s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("registering bot session: %w", err)
	}
	s.bot = bot
	s.logger.Info("bot session registered",
		zap.Int32("user_id", bot.AccountID),
		zap.String("name", bot.Name))
	return s, nil
}

// Bot returns the resident bot session.
func (s *Server) Bot() session.Session {
	return s.bot
}

// OnlineCount returns the number of connected players, the bot excluded.
func (s *Server) OnlineCount() int {
	return s.sessions.Count() - 1
}

// Online implements command.Env.
func (s *Server) Online() []session.Session {
	return s.sessions.All()
}

// MatchCount implements command.Env.
func (s *Server) MatchCount() int {
	return s.matches.Count()
}

// AbortMatch implements command.Env.
func (s *Server) AbortMatch(token string) error {
	return s.matches.Abort(token)
}

// CloseMatch implements command.Env.
func (s *Server) CloseMatch(token string) error {
	return s.matches.Close(token)
}

func (s *Server) country(offset int8) string {
	if s.countries == nil {
		return geo.UnknownCountry
	}
	return s.countries.CountryForOffset(int(offset))
}
