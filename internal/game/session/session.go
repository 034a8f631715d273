// Package session holds the state of every connected client and the
// outbound byte queue each one drains per request.
package session

import (
	"slices"
	"time"

	"github.com/cory-johannsen/bancho/internal/game/ruleset"
	"github.com/cory-johannsen/bancho/internal/geo"
	"github.com/cory-johannsen/bancho/internal/packet"
)

// NoMatch is the MatchID of a session outside any match.
const NoMatch = -1

// Status is what a session's client last reported it was doing.
type Status struct {
	Action ruleset.Action
	Text   string
	MapMD5 string
	MapID  int32
	Mode   ruleset.Mode
	Mods   ruleset.Mods
}

// ClientDetails is what a client reported about its installation at login.
type ClientDetails struct {
	Version          string
	OsuPathMD5       string
	Adapters         []string
	AdaptersMD5      string
	UninstallMD5     string
	DiskSignatureMD5 string
	DisplayCity      bool
	PMPrivate        bool
}

// Session is one connected client. Values returned by Store are snapshots;
// changes go through Store.Update.
type Session struct {
	Token      string
	AccountID  int32
	Name       string
	Privileges ruleset.Privileges
	UTCOffset  int8
	Country    string
	Friends    []int32
	Client     ClientDetails

	Status         Status
	PresenceFilter ruleset.PresenceFilter
	AwayMessage    string
	BlockDMs       bool

	// Channels holds the names of joined channels, in join order.
	Channels []string
	MatchID  int

	// Bot marks the resident server account. Nothing is queued for it.
	Bot bool

	LoginTime  time.Time
	LastPinged time.Time

	// Queue is the encoded events waiting for the next response.
	Queue []byte
}

// InChannel reports whether the session has joined name.
func (s *Session) InChannel(name string) bool {
	return slices.Contains(s.Channels, name)
}

// InMatch reports whether the session sits in a match.
func (s *Session) InMatch() bool {
	return s.MatchID != NoMatch
}

// IsFriend reports whether id is on the session's friends list.
func (s *Session) IsFriend(id int32) bool {
	return slices.Contains(s.Friends, id)
}

// Presence renders the identity half of the session's user panel.
func (s *Session) Presence() packet.Presence {
	return packet.Presence{
		UserID:      s.AccountID,
		Name:        s.Name,
		UTCOffset:   s.UTCOffset,
		CountryCode: geo.ClientCode(s.Country),
		Privileges:  s.Privileges.Client(),
		Mode:        s.Status.Mode,
		GlobalRank:  defaultRank,
	}
}

const (
	defaultAccuracy = 100
	defaultRank     = 1
	defaultPP       = 2000
)

// Stats renders the status half of the session's user panel. Scores are
// not tracked, so the figures are fixed.
func (s *Session) Stats() packet.Stats {
	return packet.Stats{
		UserID:     s.AccountID,
		Action:     s.Status.Action,
		InfoText:   s.Status.Text,
		MapMD5:     s.Status.MapMD5,
		Mods:       s.Status.Mods,
		Mode:       s.Status.Mode,
		MapID:      s.Status.MapID,
		Accuracy:   defaultAccuracy,
		GlobalRank: defaultRank,
		PP:         defaultPP,
	}
}

// PanelEvents encodes the session's presence followed by its stats.
func (s *Session) PanelEvents() []byte {
	return append(packet.UserPresence(s.Presence()), packet.UserStats(s.Stats())...)
}

func (s Session) clone() Session {
	s.Friends = slices.Clone(s.Friends)
	s.Channels = slices.Clone(s.Channels)
	s.Client.Adapters = slices.Clone(s.Client.Adapters)
	s.Queue = slices.Clone(s.Queue)
	return s
}
