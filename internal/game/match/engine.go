package match

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/bancho/internal/game/channel"
	"github.com/cory-johannsen/bancho/internal/game/ruleset"
	"github.com/cory-johannsen/bancho/internal/game/session"
	"github.com/cory-johannsen/bancho/internal/packet"
	"github.com/cory-johannsen/bancho/internal/storage/kv"
)

// LobbyChannel is the channel whose members follow match listings.
const LobbyChannel = "#lobby"

var (
	ErrNoFreeSlot     = errors.New("match table is full")
	ErrMatchNotFound  = errors.New("match not found")
	ErrMatchFull      = errors.New("match is full")
	ErrWrongPassword  = errors.New("wrong match password")
	ErrNotHost        = errors.New("only the host can do that")
	ErrNotInMatch     = errors.New("not in a match")
	ErrAlreadyInMatch = errors.New("already in a match")
	ErrInvalidSlot    = errors.New("invalid slot")
	ErrInProgress     = errors.New("match is in progress")
	ErrNotInProgress  = errors.New("match is not in progress")
)

type entry struct {
	mu      sync.Mutex
	m       Match
	removed bool
}

// Engine owns the match table. Each match is changed under its own lock,
// which is held while members and the lobby are notified so every
// observer sees changes in order.
//
// Lock order: match, then channel registry, then session store. The table
// lock is only taken alone or under a match lock.
type Engine struct {
	mu    sync.Mutex
	table [MaxMatches]*entry

	sessions *session.Store
	channels *channel.Registry
	mirror   kv.Store
	logger   *zap.Logger
}

// NewEngine creates an Engine with an empty table.
//
// Precondition: sessions, channels and logger must be non-nil; mirror may
// be nil.
func NewEngine(sessions *session.Store, channels *channel.Registry, mirror kv.Store, logger *zap.Logger) *Engine {
	return &Engine{
		sessions: sessions,
		channels: channels,
		mirror:   mirror,
		logger:   logger,
	}
}

func (e *Engine) lookup(id int) (*entry, error) {
	if id < 0 || id >= MaxMatches {
		return nil, fmt.Errorf("%w: %d", ErrMatchNotFound, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	en := e.table[id]
	if en == nil {
		return nil, fmt.Errorf("%w: %d", ErrMatchNotFound, id)
	}
	return en, nil
}

func (e *Engine) caller(token string) (session.Session, error) {
	s, ok := e.sessions.GetByToken(token)
	if !ok {
		return session.Session{}, session.ErrSessionNotFound
	}
	return s, nil
}

// Get returns a snapshot of match id.
func (e *Engine) Get(id int) (Match, bool) {
	en, err := e.lookup(id)
	if err != nil {
		return Match{}, false
	}
	en.mu.Lock()
	defer en.mu.Unlock()
	if en.removed {
		return Match{}, false
	}
	return en.m, true
}

// List returns a snapshot of every match in id order.
func (e *Engine) List() []Match {
	e.mu.Lock()
	entries := make([]*entry, 0, MaxMatches)
	for _, en := range e.table {
		if en != nil {
			entries = append(entries, en)
		}
	}
	e.mu.Unlock()

	out := make([]Match, 0, len(entries))
	for _, en := range entries {
		en.mu.Lock()
		if !en.removed {
			out = append(out, en.m)
		}
		en.mu.Unlock()
	}
	return out
}

// Count returns the number of live matches.
func (e *Engine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, en := range e.table {
		if en != nil {
			n++
		}
	}
	return n
}

// Create opens a match hosted by the caller, seats the caller in slot 0
// and joins it to the match channel.
//
// Postcondition: Returns ErrNoFreeSlot when MaxMatches matches exist and
// ErrAlreadyInMatch when the caller is seated elsewhere.
func (e *Engine) Create(token string, settings packet.MatchData) (Match, error) {
	host, err := e.caller(token)
	if err != nil {
		return Match{}, err
	}
	if host.InMatch() {
		return Match{}, ErrAlreadyInMatch
	}

	mode, mods := ruleset.NormalizeModeMods(settings.Mode, settings.Mods)
	en := &entry{}
	en.mu.Lock()
	defer en.mu.Unlock()

	e.mu.Lock()
	id := -1
	for i, slot := range e.table {
		if slot == nil {
			id = i
			break
		}
	}
	if id < 0 {
		e.mu.Unlock()
		return Match{}, ErrNoFreeSlot
	}
	e.table[id] = en
	e.mu.Unlock()

	m := &en.m
	*m = Match{
		ID:           id,
		HostID:       host.AccountID,
		Name:         settings.Name,
		Password:     settings.Password,
		Mode:         mode,
		Mods:         mods,
		WinCondition: settings.WinCondition,
		TeamType:     settings.TeamType,
		Map:          Map{Name: settings.MapName, ID: settings.MapID, MD5: settings.MapMD5},
		PreviousMap:  Map{ID: NoMapID},
		Seed:         settings.Seed,
		Channel:      ChannelName(id),
	}
	for i := range m.Slots {
		m.Slots[i].clear(ruleset.SlotOpen)
	}
	m.Slots[0] = Slot{UserID: host.AccountID, Status: ruleset.SlotNotReady, Team: m.joinTeam()}

	err = e.channels.Create(channel.Definition{
		Name:    m.Channel,
		Topic:   fmt.Sprintf("Multiplayer Match (%d)", id),
		Display: "#multiplayer",
		// Internal keeps the channel out of listings and request joins.
		Internal: true,
	})
	if err != nil {
		e.release(en)
		return Match{}, err
	}
	if err := e.seat(token, m); err != nil {
		_ = e.channels.Remove(m.Channel)
		e.release(en)
		return Match{}, err
	}

	data := m.Data()
	_ = e.sessions.Enqueue(token, packet.MatchJoinSuccess(data))
	_ = e.channels.Broadcast(LobbyChannel, packet.NewMatch(data))
	e.writeMirror(m)
	e.logger.Info("match created",
		zap.Int("match_id", id),
		zap.Int32("host_id", host.AccountID),
		zap.String("name", m.Name))
	return *m, nil
}

// seat records the match on the session and admits it to the match channel.
func (e *Engine) seat(token string, m *Match) error {
	if _, err := e.sessions.Update(token, func(s *session.Session) error {
		s.MatchID = m.ID
		return nil
	}); err != nil {
		return err
	}
	_, err := e.channels.Admit(token, m.Channel)
	return err
}

// unseat reverses seat. A vanished session is not an error.
func (e *Engine) unseat(userID int32, m *Match) {
	s, ok := e.sessions.GetByAccountID(userID)
	if !ok {
		return
	}
	_, _ = e.sessions.Update(s.Token, func(s *session.Session) error {
		if s.MatchID == m.ID {
			s.MatchID = session.NoMatch
		}
		return nil
	})
	if _, err := e.channels.Part(s.Token, m.Channel); err != nil && !errors.Is(err, channel.ErrChannelNotFound) {
		e.logger.Warn("parting match channel", zap.Int("match_id", m.ID), zap.Error(err))
	}
}

// release frees a table entry. Must be called with en.mu held.
func (e *Engine) release(en *entry) {
	en.removed = true
	e.mu.Lock()
	if e.table[en.m.ID] == en {
		e.table[en.m.ID] = nil
	}
	e.mu.Unlock()
}

// Join seats the caller in the first open slot of match id.
//
// Postcondition: Returns ErrWrongPassword, ErrMatchFull, ErrMatchNotFound or
// ErrAlreadyInMatch without changing anything.
func (e *Engine) Join(token string, id int, password string) (Match, error) {
	s, err := e.caller(token)
	if err != nil {
		return Match{}, err
	}
	if s.InMatch() {
		return Match{}, ErrAlreadyInMatch
	}
	en, err := e.lookup(id)
	if err != nil {
		return Match{}, err
	}
	en.mu.Lock()
	defer en.mu.Unlock()
	if en.removed {
		return Match{}, fmt.Errorf("%w: %d", ErrMatchNotFound, id)
	}
	m := &en.m
	if m.Password != "" && m.Password != password {
		return Match{}, ErrWrongPassword
	}
	i := m.firstWith(ruleset.SlotOpen)
	if i < 0 {
		return Match{}, ErrMatchFull
	}

	if err := e.seat(token, m); err != nil {
		return Match{}, err
	}
	m.Slots[i] = Slot{UserID: s.AccountID, Status: ruleset.SlotNotReady, Team: m.joinTeam()}

	_ = e.sessions.Enqueue(token, packet.MatchJoinSuccess(m.Data()))
	e.publish(m, s.AccountID)
	e.logger.Debug("match joined", zap.Int("match_id", id), zap.Int32("user_id", s.AccountID), zap.Int("slot", i))
	return *m, nil
}

// Leave unseats the caller. The host's departure passes host to the next
// seated player; the last player's departure disbands the match.
func (e *Engine) Leave(token string) error {
	return e.withSeat(token, func(en *entry, slot int, _ session.Session) error {
		m := &en.m
		userID := m.Slots[slot].UserID
		m.Slots[slot].clear(ruleset.SlotOpen)
		e.unseat(userID, m)

		if m.Empty() {
			e.disband(en)
			return nil
		}
		if m.HostID == userID {
			next := m.firstWith(ruleset.SlotHasPlayer)
			m.HostID = m.Slots[next].UserID
			e.toUser(m.HostID, packet.MatchTransferHost())
		}
		e.finishIfDone(m)
		return nil
	})
}

// Close disbands the caller's match. Only the host may close it.
func (e *Engine) Close(token string) error {
	return e.withSeat(token, func(en *entry, _ int, s session.Session) error {
		if en.m.HostID != s.AccountID {
			return ErrNotHost
		}
		e.disband(en)
		return nil
	})
}

// disband must be called with en.mu held.
func (e *Engine) disband(en *entry) {
	m := &en.m
	for i, s := range m.Slots {
		if s.Occupied() {
			e.unseat(s.UserID, m)
			m.Slots[i].clear(ruleset.SlotOpen)
		}
	}
	if err := e.channels.Remove(m.Channel); err != nil && !errors.Is(err, channel.ErrChannelNotFound) {
		e.logger.Warn("removing match channel", zap.Int("match_id", m.ID), zap.Error(err))
	}
	e.release(en)
	_ = e.channels.Broadcast(LobbyChannel, packet.DisposeMatch(int32(m.ID)))
	e.deleteMirror(m.ID)
	e.logger.Info("match disbanded", zap.Int("match_id", m.ID))
}

// withSeat runs fn on the caller's match with the match locked and then
// notifies members and the lobby.
func (e *Engine) withSeat(token string, fn func(en *entry, slot int, caller session.Session) error) error {
	s, err := e.caller(token)
	if err != nil {
		return err
	}
	if !s.InMatch() {
		return ErrNotInMatch
	}
	en, err := e.lookup(s.MatchID)
	if err != nil {
		return err
	}
	en.mu.Lock()
	defer en.mu.Unlock()
	if en.removed {
		return fmt.Errorf("%w: %d", ErrMatchNotFound, s.MatchID)
	}
	slot := en.m.SlotOf(s.AccountID)
	if slot < 0 {
		return ErrNotInMatch
	}
	if err := fn(en, slot, s); err != nil {
		return err
	}
	if !en.removed {
		e.publish(&en.m)
	}
	return nil
}

// withHost is withSeat restricted to the match host.
func (e *Engine) withHost(token string, fn func(m *Match, slot int) error) error {
	return e.withSeat(token, func(en *entry, slot int, s session.Session) error {
		if en.m.HostID != s.AccountID {
			return ErrNotHost
		}
		return fn(&en.m, slot)
	})
}

// ChangeSettings applies the host's map, mode, free-mod, win condition and
// team type choices.
func (e *Engine) ChangeSettings(token string, settings packet.MatchData) error {
	return e.withHost(token, func(m *Match, _ int) error {
		m.applySettings(settings)
		return nil
	})
}

// TransferHost hands host to the player in slot target.
func (e *Engine) TransferHost(token string, target int) error {
	return e.withHost(token, func(m *Match, _ int) error {
		if target < 0 || target >= SlotCount || !m.Slots[target].Occupied() {
			return ErrInvalidSlot
		}
		m.HostID = m.Slots[target].UserID
		e.toUser(m.HostID, packet.MatchTransferHost())
		return nil
	})
}

// ChangeTeam swaps the caller between blue and red in team modes.
func (e *Engine) ChangeTeam(token string) error {
	return e.withSeat(token, func(en *entry, slot int, _ session.Session) error {
		if !en.m.TeamType.Teams() {
			return nil
		}
		s := &en.m.Slots[slot]
		if s.Team == ruleset.TeamBlue {
			s.Team = ruleset.TeamRed
		} else {
			s.Team = ruleset.TeamBlue
		}
		return nil
	})
}

// LockSlot toggles slot target between open and locked. Locking an occupied
// slot removes its player. The host's own slot cannot be locked.
func (e *Engine) LockSlot(token string, target int) error {
	return e.withHost(token, func(m *Match, own int) error {
		if target < 0 || target >= SlotCount || target == own {
			return ErrInvalidSlot
		}
		s := &m.Slots[target]
		if s.Status == ruleset.SlotLocked {
			s.clear(ruleset.SlotOpen)
			return nil
		}
		if s.Occupied() {
			e.toUser(s.UserID, packet.Notification("You have been removed from the match."))
			e.toUser(s.UserID, packet.DisposeMatch(int32(m.ID)))
			e.unseat(s.UserID, m)
		}
		s.clear(ruleset.SlotLocked)
		e.finishIfDone(m)
		return nil
	})
}

// ChangeSlot moves the caller into the open slot target.
func (e *Engine) ChangeSlot(token string, target int) error {
	return e.withSeat(token, func(en *entry, slot int, _ session.Session) error {
		m := &en.m
		if m.InProgress {
			return ErrInProgress
		}
		if target < 0 || target >= SlotCount || m.Slots[target].Status != ruleset.SlotOpen {
			return ErrInvalidSlot
		}
		m.Slots[target] = m.Slots[slot]
		m.Slots[slot].clear(ruleset.SlotOpen)
		return nil
	})
}

func (e *Engine) setStatus(token string, from, to ruleset.SlotStatus) error {
	return e.withSeat(token, func(en *entry, slot int, _ session.Session) error {
		s := &en.m.Slots[slot]
		if s.Status == from {
			s.Status = to
		}
		return nil
	})
}

// SetReady marks the caller ready.
func (e *Engine) SetReady(token string) error {
	return e.setStatus(token, ruleset.SlotNotReady, ruleset.SlotReady)
}

// SetNotReady withdraws the caller's ready.
func (e *Engine) SetNotReady(token string) error {
	return e.setStatus(token, ruleset.SlotReady, ruleset.SlotNotReady)
}

// NoMap marks the caller as missing the current map.
func (e *Engine) NoMap(token string) error {
	return e.setStatus(token, ruleset.SlotNotReady, ruleset.SlotNoMap)
}

// HasMap clears the caller's missing-map status.
func (e *Engine) HasMap(token string) error {
	return e.setStatus(token, ruleset.SlotNoMap, ruleset.SlotNotReady)
}

// ChangeMods sets mods. Outside free-mod only the host may, and the mods
// apply to the whole match. In free-mod everyone sets their own non-speed
// mods and the host also sets the match's speed mods.
func (e *Engine) ChangeMods(token string, mods ruleset.Mods) error {
	return e.withSeat(token, func(en *entry, slot int, s session.Session) error {
		m := &en.m
		isHost := m.HostID == s.AccountID
		if !m.FreeMod {
			if !isHost {
				return ErrNotHost
			}
			m.Mods = mods
			return nil
		}
		if isHost {
			m.Mods = mods.Speed()
		}
		m.Slots[slot].Mods = mods.WithoutSpeed()
		return nil
	})
}

// ChangePassword sets the match password and tells the members.
func (e *Engine) ChangePassword(token, password string) error {
	return e.withHost(token, func(m *Match, _ int) error {
		m.Password = password
		e.toMembers(m, packet.MatchChangePassword(password), nil)
		return nil
	})
}

// Start sends every player who has the map into the game.
func (e *Engine) Start(token string) error {
	return e.withHost(token, func(m *Match, _ int) error {
		if m.InProgress {
			return ErrInProgress
		}
		for i := range m.Slots {
			s := &m.Slots[i]
			if s.Status&(ruleset.SlotReady|ruleset.SlotNotReady) != 0 {
				s.Status = ruleset.SlotPlaying
				s.Loaded, s.Skipped = false, false
			}
		}
		m.InProgress = true
		e.toMembers(m, packet.MatchStart(m.Data()), nil)
		e.logger.Debug("match started", zap.Int("match_id", m.ID), zap.String("mods", m.Mods.String()))
		return nil
	})
}

func playing(s Slot) bool {
	return s.Status == ruleset.SlotPlaying
}

// LoadComplete records that the caller loaded the map. Once every player
// has, they are told to begin.
func (e *Engine) LoadComplete(token string) error {
	return e.withSeat(token, func(en *entry, slot int, _ session.Session) error {
		m := &en.m
		if !m.InProgress || !playing(m.Slots[slot]) {
			return nil
		}
		m.Slots[slot].Loaded = true
		for _, s := range m.Slots {
			if playing(s) && !s.Loaded {
				return nil
			}
		}
		e.toMembers(m, packet.MatchAllPlayersLoaded(), playing)
		return nil
	})
}

// Skip records the caller's skip request. Once every player asked, the
// intro is skipped for all.
func (e *Engine) Skip(token string) error {
	return e.withSeat(token, func(en *entry, slot int, _ session.Session) error {
		m := &en.m
		if !m.InProgress || !playing(m.Slots[slot]) {
			return nil
		}
		m.Slots[slot].Skipped = true
		e.toMembers(m, packet.MatchPlayerSkipped(int32(slot)), playing)
		for _, s := range m.Slots {
			if playing(s) && !s.Skipped {
				return nil
			}
		}
		e.toMembers(m, packet.MatchSkip(), playing)
		return nil
	})
}

// Failed tells the players that the caller failed.
func (e *Engine) Failed(token string) error {
	return e.withSeat(token, func(en *entry, slot int, _ session.Session) error {
		if !en.m.InProgress {
			return nil
		}
		e.toMembers(&en.m, packet.MatchPlayerFailed(int32(slot)), playing)
		return nil
	})
}

// Complete records that the caller finished. The match ends once no one is
// still playing.
func (e *Engine) Complete(token string) error {
	return e.withSeat(token, func(en *entry, slot int, _ session.Session) error {
		m := &en.m
		if !m.InProgress || !playing(m.Slots[slot]) {
			return nil
		}
		m.Slots[slot].Status = ruleset.SlotComplete
		e.finishIfDone(m)
		return nil
	})
}

// Abort ends the host's game early. Everyone who was playing or had
// finished goes back to not ready.
func (e *Engine) Abort(token string) error {
	return e.withHost(token, func(m *Match, _ int) error {
		if !m.InProgress {
			return ErrNotInProgress
		}
		m.InProgress = false
		for i := range m.Slots {
			s := &m.Slots[i]
			if s.Status&(ruleset.SlotPlaying|ruleset.SlotComplete) != 0 {
				s.Status = ruleset.SlotNotReady
			}
			s.Loaded, s.Skipped = false, false
		}
		e.toMembers(m, packet.MatchAbort(), nil)
		e.logger.Info("match aborted", zap.Int("match_id", m.ID))
		return nil
	})
}

// finishIfDone ends an in-progress match with no players left playing.
func (e *Engine) finishIfDone(m *Match) {
	if !m.InProgress || m.count(ruleset.SlotPlaying) > 0 {
		return
	}
	m.InProgress = false
	e.toMembers(m, packet.MatchComplete(), func(s Slot) bool { return s.Status == ruleset.SlotComplete })
	for i := range m.Slots {
		s := &m.Slots[i]
		if s.Status == ruleset.SlotComplete {
			s.Status = ruleset.SlotNotReady
		}
		s.Loaded, s.Skipped = false, false
	}
}

func (e *Engine) toUser(userID int32, data []byte) {
	s, ok := e.sessions.GetByAccountID(userID)
	if !ok {
		return
	}
	_ = e.sessions.Enqueue(s.Token, data)
}

// toMembers queues data for every seated player admit accepts, or for all
// of them when admit is nil.
func (e *Engine) toMembers(m *Match, data []byte, admit func(Slot) bool) {
	for _, s := range m.Slots {
		if s.Occupied() && (admit == nil || admit(s)) {
			e.toUser(s.UserID, data)
		}
	}
}

// publish describes m to its members, except the given accounts, and to the
// lobby, then mirrors it. Must be called with the match locked.
func (e *Engine) publish(m *Match, except ...int32) {
	data := m.Data()
	member := packet.UpdateMatch(data, true)
	tokens := make([]string, 0, SlotCount)
	for _, s := range m.Slots {
		if !s.Occupied() {
			continue
		}
		sess, ok := e.sessions.GetByAccountID(s.UserID)
		if !ok {
			continue
		}
		tokens = append(tokens, sess.Token)
		skip := false
		for _, id := range except {
			skip = skip || id == s.UserID
		}
		if !skip {
			_ = e.sessions.Enqueue(sess.Token, member)
		}
	}
	if err := e.channels.Broadcast(LobbyChannel, packet.UpdateMatch(data, false), tokens...); err != nil &&
		!errors.Is(err, channel.ErrChannelNotFound) {
		e.logger.Warn("publishing match to lobby", zap.Int("match_id", m.ID), zap.Error(err))
	}
	e.writeMirror(m)
}

func (e *Engine) writeMirror(m *Match) {
	if e.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := kv.PutJSON(ctx, e.mirror, kv.MatchPrefix+strconv.Itoa(m.ID), toModel(m)); err != nil {
		e.logger.Warn("mirroring match", zap.Int("match_id", m.ID), zap.Error(err))
	}
}

func (e *Engine) deleteMirror(id int) {
	if e.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.mirror.Delete(ctx, kv.MatchPrefix+strconv.Itoa(id)); err != nil {
		e.logger.Warn("removing mirrored match", zap.Int("match_id", id), zap.Error(err))
	}
}
