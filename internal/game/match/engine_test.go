package match_test

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/bancho/internal/game/channel"
	"github.com/cory-johannsen/bancho/internal/game/match"
	"github.com/cory-johannsen/bancho/internal/game/ruleset"
	"github.com/cory-johannsen/bancho/internal/game/session"
	"github.com/cory-johannsen/bancho/internal/packet"
	"github.com/cory-johannsen/bancho/internal/storage/kv"
)

type fixture struct {
	engine   *match.Engine
	sessions *session.Store
	channels *channel.Registry
	mirror   *kv.MemoryStore
}

func newFixture(t testing.TB) *fixture {
	logger := zaptest.NewLogger(t)
	mirror := kv.NewMemoryStore()
	sessions := session.NewStore(nil, logger)
	channels := channel.NewRegistry(sessions, nil, logger)
	for _, def := range channel.DefaultCatalog() {
		require.NoError(t, channels.Create(def))
	}
	return &fixture{
		engine:   match.NewEngine(sessions, channels, mirror, logger),
		sessions: sessions,
		channels: channels,
		mirror:   mirror,
	}
}

func (f *fixture) addSession(t testing.TB, id int32) string {
	name := fmt.Sprintf("player%d", id)
	_, err := f.sessions.Create(session.Session{
		Token:      name,
		AccountID:  id,
		Name:       name,
		Privileges: ruleset.PrivNormal,
		MatchID:    session.NoMatch,
	})
	require.NoError(t, err)
	return name
}

func (f *fixture) queue(t testing.TB, token string) []byte {
	data, err := f.sessions.Drain(token)
	require.NoError(t, err)
	return data
}

func settings() packet.MatchData {
	return packet.MatchData{
		Name:    "test lobby",
		MapName: "some map",
		MapID:   100,
		MapMD5:  "abc",
		Mode:    ruleset.ModeVanillaStandard,
		Seed:    42,
	}
}

func assertSlotInvariant(t require.TestingT, m match.Match) {
	for i, s := range m.Slots {
		assert.Equal(t, s.UserID != 0, s.Status.Occupied(), "slot %d: %+v", i, s)
	}
	if !m.Empty() {
		assert.GreaterOrEqual(t, m.SlotOf(m.HostID), 0, "host must be seated")
	}
}

func TestEngine_CreateSeatsHost(t *testing.T) {
	f := newFixture(t)
	host := f.addSession(t, 4)
	watcher := f.addSession(t, 5)
	_, err := f.channels.Join(watcher, match.LobbyChannel)
	require.NoError(t, err)
	f.queue(t, watcher)

	m, err := f.engine.Create(host, settings())
	require.NoError(t, err)
	assert.Equal(t, 0, m.ID)
	assert.Equal(t, int32(4), m.HostID)
	assert.Equal(t, ruleset.SlotNotReady, m.Slots[0].Status)
	assert.Equal(t, []int32{4}, m.Occupants())
	for i := 1; i < match.SlotCount; i++ {
		assert.Equal(t, ruleset.SlotOpen, m.Slots[i].Status)
	}
	assertSlotInvariant(t, m)

	s, _ := f.sessions.GetByToken(host)
	assert.Equal(t, 0, s.MatchID)
	assert.True(t, s.InChannel("#multi_0"))
	info, ok := f.channels.GetByName("#multi_0")
	require.True(t, ok)
	assert.Equal(t, "#multiplayer", info.Shown())
	assert.Equal(t, "Multiplayer Match (0)", info.Topic)

	assert.True(t, bytes.Contains(f.queue(t, host), packet.MatchJoinSuccess(m.Data())))
	assert.Equal(t, packet.NewMatch(m.Data()), f.queue(t, watcher))

	_, err = f.mirror.Get(t.Context(), kv.MatchPrefix+"0")
	assert.NoError(t, err)
}

func TestEngine_CreateRejectsSeatedHost(t *testing.T) {
	f := newFixture(t)
	host := f.addSession(t, 4)
	_, err := f.engine.Create(host, settings())
	require.NoError(t, err)
	_, err = f.engine.Create(host, settings())
	assert.ErrorIs(t, err, match.ErrAlreadyInMatch)
}

func TestEngine_TableFillsAt64(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < match.MaxMatches; i++ {
		m, err := f.engine.Create(f.addSession(t, int32(4+i)), settings())
		require.NoError(t, err)
		assert.Equal(t, i, m.ID)
	}
	_, err := f.engine.Create(f.addSession(t, 1000), settings())
	assert.ErrorIs(t, err, match.ErrNoFreeSlot)
	assert.Equal(t, match.MaxMatches, f.engine.Count())

	s, _ := f.sessions.GetByToken("player1000")
	assert.False(t, s.InMatch())
	_, ok := f.channels.GetByName("#multi_64")
	assert.False(t, ok)
}

func TestEngine_ConcurrentCreatesFillTable(t *testing.T) {
	f := newFixture(t)
	const hosts = match.MaxMatches + 1
	tokens := make([]string, hosts)
	for i := range tokens {
		tokens[i] = f.addSession(t, int32(4+i))
	}

	var (
		wg   sync.WaitGroup
		ok   atomic.Int32
		full atomic.Int32
	)
	for _, tok := range tokens {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Create(tok, settings())
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, match.ErrNoFreeSlot):
				full.Add(1)
			default:
				t.Errorf("create: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(match.MaxMatches), ok.Load())
	assert.Equal(t, int32(1), full.Load())
	assert.Equal(t, match.MaxMatches, f.engine.Count())
	ids := map[int]bool{}
	for _, m := range f.engine.List() {
		assert.False(t, ids[m.ID], "duplicate id %d", m.ID)
		ids[m.ID] = true
		assertSlotInvariant(t, m)
	}
	assert.Len(t, ids, match.MaxMatches)
}

func TestEngine_JoinRules(t *testing.T) {
	f := newFixture(t)
	host := f.addSession(t, 4)
	cfg := settings()
	cfg.Password = "secret"
	m, err := f.engine.Create(host, cfg)
	require.NoError(t, err)

	guest := f.addSession(t, 5)
	_, err = f.engine.Join(guest, m.ID, "wrong")
	assert.ErrorIs(t, err, match.ErrWrongPassword)
	_, err = f.engine.Join(guest, 9, "")
	assert.ErrorIs(t, err, match.ErrMatchNotFound)

	joined, err := f.engine.Join(guest, m.ID, "secret")
	require.NoError(t, err)
	assert.Equal(t, int32(5), joined.Slots[1].UserID)
	assert.Equal(t, ruleset.TeamNeutral, joined.Slots[1].Team)
	assertSlotInvariant(t, joined)

	for i := int32(6); i < 4+match.SlotCount; i++ {
		_, err := f.engine.Join(f.addSession(t, i), m.ID, "secret")
		require.NoError(t, err)
	}
	_, err = f.engine.Join(f.addSession(t, 99), m.ID, "secret")
	assert.ErrorIs(t, err, match.ErrMatchFull)
	s, _ := f.sessions.GetByToken("player99")
	assert.False(t, s.InMatch())
}

func TestEngine_JoinTeamModeLandsOnRed(t *testing.T) {
	f := newFixture(t)
	cfg := settings()
	cfg.TeamType = ruleset.TeamVs
	m, err := f.engine.Create(f.addSession(t, 4), cfg)
	require.NoError(t, err)
	assert.Equal(t, ruleset.TeamRed, m.Slots[0].Team)

	joined, err := f.engine.Join(f.addSession(t, 5), m.ID, "")
	require.NoError(t, err)
	assert.Equal(t, ruleset.TeamRed, joined.Slots[1].Team)

	require.NoError(t, f.engine.ChangeTeam("player5"))
	got, _ := f.engine.Get(m.ID)
	assert.Equal(t, ruleset.TeamBlue, got.Slots[1].Team)
}

func TestEngine_JoinNotifiesMembers(t *testing.T) {
	f := newFixture(t)
	host := f.addSession(t, 4)
	m, err := f.engine.Create(host, settings())
	require.NoError(t, err)
	f.queue(t, host)

	joined, err := f.engine.Join(f.addSession(t, 5), m.ID, "")
	require.NoError(t, err)
	assert.Equal(t, packet.UpdateMatch(joined.Data(), true), f.queue(t, host))
}

func TestEngine_LeaveTransfersHostThenDisbands(t *testing.T) {
	f := newFixture(t)
	host := f.addSession(t, 4)
	guest := f.addSession(t, 5)
	m, err := f.engine.Create(host, settings())
	require.NoError(t, err)
	_, err = f.engine.Join(guest, m.ID, "")
	require.NoError(t, err)
	f.queue(t, guest)

	require.NoError(t, f.engine.Leave(host))
	got, ok := f.engine.Get(m.ID)
	require.True(t, ok)
	assert.Equal(t, int32(5), got.HostID)
	assert.True(t, bytes.Contains(f.queue(t, guest), packet.MatchTransferHost()))
	s, _ := f.sessions.GetByToken(host)
	assert.False(t, s.InMatch())
	assert.False(t, s.InChannel(m.Channel))
	assertSlotInvariant(t, got)

	require.NoError(t, f.engine.Leave(guest))
	_, ok = f.engine.Get(m.ID)
	assert.False(t, ok)
	_, ok = f.channels.GetByName(m.Channel)
	assert.False(t, ok)
	_, err = f.mirror.Get(t.Context(), kv.MatchPrefix+"0")
	assert.ErrorIs(t, err, kv.ErrNotFound)

	assert.ErrorIs(t, f.engine.Leave(guest), match.ErrNotInMatch)

	again, err := f.engine.Create(guest, settings())
	require.NoError(t, err)
	assert.Equal(t, m.ID, again.ID)
}

func TestEngine_CloseUnseatsEveryone(t *testing.T) {
	f := newFixture(t)
	host := f.addSession(t, 4)
	guest := f.addSession(t, 5)
	m, err := f.engine.Create(host, settings())
	require.NoError(t, err)
	_, err = f.engine.Join(guest, m.ID, "")
	require.NoError(t, err)

	assert.ErrorIs(t, f.engine.Close(guest), match.ErrNotHost)
	require.NoError(t, f.engine.Close(host))
	for _, tok := range []string{host, guest} {
		s, _ := f.sessions.GetByToken(tok)
		assert.False(t, s.InMatch())
		assert.Empty(t, s.Channels)
	}
	_, ok := f.engine.Get(m.ID)
	assert.False(t, ok)
	_, ok = f.channels.GetByName(m.Channel)
	assert.False(t, ok)
	assert.ErrorIs(t, f.engine.Close(host), match.ErrNotInMatch)
	_, err = f.mirror.Get(t.Context(), kv.MatchPrefix+"0")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestEngine_FreeModToggle(t *testing.T) {
	f := newFixture(t)
	host := f.addSession(t, 4)
	guest := f.addSession(t, 5)
	m, err := f.engine.Create(host, settings())
	require.NoError(t, err)
	_, err = f.engine.Join(guest, m.ID, "")
	require.NoError(t, err)

	prior := ruleset.ModHidden | ruleset.ModDoubleTime
	require.NoError(t, f.engine.ChangeMods(host, prior))

	cfg := m.Data()
	cfg.FreeMod = true
	require.NoError(t, f.engine.ChangeSettings(host, cfg))
	got, _ := f.engine.Get(m.ID)
	assert.True(t, got.FreeMod)
	assert.Equal(t, ruleset.ModDoubleTime, got.Mods)
	assert.Equal(t, ruleset.ModHidden, got.Slots[1].Mods)
	assert.Equal(t, ruleset.ModHidden, got.Slots[0].Mods)

	require.NoError(t, f.engine.ChangeMods(guest, ruleset.ModHardRock|ruleset.ModHalfTime))
	require.NoError(t, f.engine.ChangeMods(host, ruleset.ModFlashlight|ruleset.ModNightcore))
	got, _ = f.engine.Get(m.ID)
	assert.Equal(t, ruleset.ModHardRock, got.Slots[1].Mods)
	assert.Equal(t, ruleset.ModNightcore, got.Mods)

	cfg.FreeMod = false
	require.NoError(t, f.engine.ChangeSettings(host, cfg))
	got, _ = f.engine.Get(m.ID)
	assert.False(t, got.FreeMod)
	assert.Equal(t, ruleset.ModNightcore|ruleset.ModFlashlight, got.Mods)
	for _, s := range got.Slots {
		assert.Equal(t, ruleset.ModNone, s.Mods)
	}
}

func TestEngine_HostOnlyOperations(t *testing.T) {
	f := newFixture(t)
	host := f.addSession(t, 4)
	guest := f.addSession(t, 5)
	m, err := f.engine.Create(host, settings())
	require.NoError(t, err)
	_, err = f.engine.Join(guest, m.ID, "")
	require.NoError(t, err)

	assert.ErrorIs(t, f.engine.ChangeSettings(guest, m.Data()), match.ErrNotHost)
	assert.ErrorIs(t, f.engine.ChangeMods(guest, ruleset.ModHidden), match.ErrNotHost)
	assert.ErrorIs(t, f.engine.TransferHost(guest, 1), match.ErrNotHost)
	assert.ErrorIs(t, f.engine.LockSlot(guest, 3), match.ErrNotHost)
	assert.ErrorIs(t, f.engine.Start(guest), match.ErrNotHost)
	assert.ErrorIs(t, f.engine.ChangePassword(guest, "x"), match.ErrNotHost)

	assert.ErrorIs(t, f.engine.TransferHost(host, 7), match.ErrInvalidSlot)
	require.NoError(t, f.engine.TransferHost(host, 1))
	got, _ := f.engine.Get(m.ID)
	assert.Equal(t, int32(5), got.HostID)
}

func TestEngine_MapChangesUnready(t *testing.T) {
	f := newFixture(t)
	host := f.addSession(t, 4)
	guest := f.addSession(t, 5)
	m, err := f.engine.Create(host, settings())
	require.NoError(t, err)
	_, err = f.engine.Join(guest, m.ID, "")
	require.NoError(t, err)
	require.NoError(t, f.engine.SetReady(guest))
	require.NoError(t, f.engine.SetReady(host))
	got, _ := f.engine.Get(m.ID)
	assert.Equal(t, ruleset.SlotReady, got.Slots[0].Status)
	assert.Equal(t, ruleset.SlotReady, got.Slots[1].Status)

	cfg := m.Data()
	cfg.MapID, cfg.MapMD5, cfg.MapName = match.NoMapID, "", ""
	require.NoError(t, f.engine.ChangeSettings(host, cfg))
	got, _ = f.engine.Get(m.ID)
	assert.Equal(t, match.NoMapID, got.Map.ID)
	assert.Equal(t, int32(100), got.PreviousMap.ID)
	assert.Equal(t, ruleset.SlotNotReady, got.Slots[0].Status)
	assert.Equal(t, ruleset.SlotNotReady, got.Slots[1].Status)

	require.NoError(t, f.engine.SetReady(guest))
	cfg.MapID, cfg.MapMD5, cfg.MapName = 100, "abc", "some map"
	require.NoError(t, f.engine.ChangeSettings(host, cfg))
	got, _ = f.engine.Get(m.ID)
	assert.Equal(t, got.PreviousMap, got.Map)
	assert.Equal(t, ruleset.SlotNotReady, got.Slots[1].Status)
}

func TestEngine_TeamTypeSwitch(t *testing.T) {
	f := newFixture(t)
	host := f.addSession(t, 4)
	m, err := f.engine.Create(host, settings())
	require.NoError(t, err)

	cfg := m.Data()
	cfg.TeamType = ruleset.TeamTagTeamVs
	require.NoError(t, f.engine.ChangeSettings(host, cfg))
	got, _ := f.engine.Get(m.ID)
	assert.Equal(t, ruleset.TeamRed, got.Slots[0].Team)

	cfg.TeamType = ruleset.TeamHeadToHead
	require.NoError(t, f.engine.ChangeSettings(host, cfg))
	got, _ = f.engine.Get(m.ID)
	assert.Equal(t, ruleset.TeamNeutral, got.Slots[0].Team)
}

func TestEngine_SettingsNormalizeMode(t *testing.T) {
	f := newFixture(t)
	host := f.addSession(t, 4)
	m, err := f.engine.Create(host, settings())
	require.NoError(t, err)

	cfg := m.Data()
	cfg.Mode = ruleset.ModeVanillaStandard
	cfg.Mods = ruleset.ModRelax
	require.NoError(t, f.engine.ChangeSettings(host, cfg))
	got, _ := f.engine.Get(m.ID)
	assert.Equal(t, ruleset.ModeRelaxStandard, got.Mode)
	assert.Equal(t, ruleset.ModeVanillaStandard, got.Data().Mode.Vanilla())
}

func TestEngine_LockAndChangeSlot(t *testing.T) {
	f := newFixture(t)
	host := f.addSession(t, 4)
	guest := f.addSession(t, 5)
	m, err := f.engine.Create(host, settings())
	require.NoError(t, err)
	_, err = f.engine.Join(guest, m.ID, "")
	require.NoError(t, err)

	require.NoError(t, f.engine.ChangeSlot(guest, 5))
	got, _ := f.engine.Get(m.ID)
	assert.Equal(t, int32(5), got.Slots[5].UserID)
	assert.Equal(t, ruleset.SlotOpen, got.Slots[1].Status)
	assert.ErrorIs(t, f.engine.ChangeSlot(guest, 0), match.ErrInvalidSlot)

	assert.ErrorIs(t, f.engine.LockSlot(host, 0), match.ErrInvalidSlot)
	require.NoError(t, f.engine.LockSlot(host, 2))
	got, _ = f.engine.Get(m.ID)
	assert.Equal(t, ruleset.SlotLocked, got.Slots[2].Status)
	assert.ErrorIs(t, f.engine.ChangeSlot(guest, 2), match.ErrInvalidSlot)

	require.NoError(t, f.engine.LockSlot(host, 5))
	got, _ = f.engine.Get(m.ID)
	assert.Equal(t, ruleset.SlotLocked, got.Slots[5].Status)
	assertSlotInvariant(t, got)
	s, _ := f.sessions.GetByToken(guest)
	assert.False(t, s.InMatch())

	require.NoError(t, f.engine.LockSlot(host, 5))
	got, _ = f.engine.Get(m.ID)
	assert.Equal(t, ruleset.SlotOpen, got.Slots[5].Status)
}

func TestEngine_LockingOccupiedSlotTellsThePlayer(t *testing.T) {
	f := newFixture(t)
	host := f.addSession(t, 4)
	guest := f.addSession(t, 5)
	m, err := f.engine.Create(host, settings())
	require.NoError(t, err)
	_, err = f.engine.Join(guest, m.ID, "")
	require.NoError(t, err)
	f.queue(t, host)
	f.queue(t, guest)

	require.NoError(t, f.engine.LockSlot(host, 1))

	q := f.queue(t, guest)
	want := append(packet.Notification("You have been removed from the match."), packet.DisposeMatch(int32(m.ID))...)
	assert.True(t, bytes.HasPrefix(q, want), "kicked player must be told before being unseated: %x", q)
	assert.True(t, bytes.Contains(q, packet.ChannelKick("#multiplayer")))

	got, _ := f.engine.Get(m.ID)
	assert.False(t, bytes.Contains(q, packet.UpdateMatch(got.Data(), true)))
	assert.True(t, bytes.Contains(f.queue(t, host), packet.UpdateMatch(got.Data(), true)))
}

func TestEngine_PlayThrough(t *testing.T) {
	f := newFixture(t)
	host := f.addSession(t, 4)
	guest := f.addSession(t, 5)
	late := f.addSession(t, 6)
	m, err := f.engine.Create(host, settings())
	require.NoError(t, err)
	for _, tok := range []string{guest, late} {
		_, err = f.engine.Join(tok, m.ID, "")
		require.NoError(t, err)
	}
	require.NoError(t, f.engine.NoMap(late))
	require.NoError(t, f.engine.SetReady(guest))

	require.NoError(t, f.engine.Start(host))
	assert.ErrorIs(t, f.engine.Start(host), match.ErrInProgress)
	got, _ := f.engine.Get(m.ID)
	assert.True(t, got.InProgress)
	assert.Equal(t, ruleset.SlotPlaying, got.Slots[0].Status)
	assert.Equal(t, ruleset.SlotPlaying, got.Slots[1].Status)
	assert.Equal(t, ruleset.SlotNoMap, got.Slots[2].Status)
	for _, tok := range []string{host, guest, late} {
		f.queue(t, tok)
	}

	require.NoError(t, f.engine.LoadComplete(host))
	assert.False(t, bytes.Contains(f.queue(t, host), packet.MatchAllPlayersLoaded()))
	require.NoError(t, f.engine.LoadComplete(guest))
	assert.True(t, bytes.Contains(f.queue(t, host), packet.MatchAllPlayersLoaded()))
	assert.False(t, bytes.Contains(f.queue(t, late), packet.MatchAllPlayersLoaded()))

	require.NoError(t, f.engine.Complete(host))
	got, _ = f.engine.Get(m.ID)
	assert.True(t, got.InProgress)
	require.NoError(t, f.engine.Complete(guest))
	got, _ = f.engine.Get(m.ID)
	assert.False(t, got.InProgress)
	assert.Equal(t, ruleset.SlotNotReady, got.Slots[0].Status)
	assert.Equal(t, ruleset.SlotNotReady, got.Slots[1].Status)
	assert.True(t, bytes.Contains(f.queue(t, guest), packet.MatchComplete()))
	assert.False(t, bytes.Contains(f.queue(t, late), packet.MatchComplete()))
}

func TestEngine_AbortReturnsToIdle(t *testing.T) {
	f := newFixture(t)
	host := f.addSession(t, 4)
	guest := f.addSession(t, 5)
	late := f.addSession(t, 6)
	m, err := f.engine.Create(host, settings())
	require.NoError(t, err)
	for _, tok := range []string{guest, late} {
		_, err = f.engine.Join(tok, m.ID, "")
		require.NoError(t, err)
	}
	require.NoError(t, f.engine.NoMap(late))

	assert.ErrorIs(t, f.engine.Abort(host), match.ErrNotInProgress)
	require.NoError(t, f.engine.Start(host))
	require.NoError(t, f.engine.LoadComplete(host))
	require.NoError(t, f.engine.Complete(host))
	assert.ErrorIs(t, f.engine.Abort(guest), match.ErrNotHost)
	for _, tok := range []string{host, guest, late} {
		f.queue(t, tok)
	}

	require.NoError(t, f.engine.Abort(host))
	got, _ := f.engine.Get(m.ID)
	assert.False(t, got.InProgress)
	assert.Equal(t, ruleset.SlotNotReady, got.Slots[0].Status)
	assert.Equal(t, ruleset.SlotNotReady, got.Slots[1].Status)
	assert.Equal(t, ruleset.SlotNoMap, got.Slots[2].Status)
	for _, s := range got.Slots {
		assert.False(t, s.Loaded)
	}
	assertSlotInvariant(t, got)

	for _, tok := range []string{host, guest, late} {
		q := f.queue(t, tok)
		abort := bytes.Index(q, packet.MatchAbort())
		update := bytes.Index(q, packet.UpdateMatch(got.Data(), true))
		require.GreaterOrEqual(t, abort, 0, tok)
		assert.Greater(t, update, abort, "%s sees the abort before the update", tok)
	}
	assert.ErrorIs(t, f.engine.Abort(host), match.ErrNotInProgress)
	require.NoError(t, f.engine.Start(host))
}

func TestEngine_LeavingLastPlayerFinishesGame(t *testing.T) {
	f := newFixture(t)
	host := f.addSession(t, 4)
	guest := f.addSession(t, 5)
	m, err := f.engine.Create(host, settings())
	require.NoError(t, err)
	_, err = f.engine.Join(guest, m.ID, "")
	require.NoError(t, err)
	require.NoError(t, f.engine.Start(host))
	require.NoError(t, f.engine.Complete(host))

	require.NoError(t, f.engine.Leave(guest))
	got, _ := f.engine.Get(m.ID)
	assert.False(t, got.InProgress)
	assert.Equal(t, ruleset.SlotNotReady, got.Slots[0].Status)
}

func TestEngine_ChangePasswordNotifiesMembers(t *testing.T) {
	f := newFixture(t)
	host := f.addSession(t, 4)
	m, err := f.engine.Create(host, settings())
	require.NoError(t, err)
	f.queue(t, host)

	require.NoError(t, f.engine.ChangePassword(host, "hunter2"))
	assert.True(t, bytes.Contains(f.queue(t, host), packet.MatchChangePassword("hunter2")))
	got, _ := f.engine.Get(m.ID)
	assert.Equal(t, "hunter2", got.Password)
}

func TestEngine_List(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Create(f.addSession(t, 4), settings())
	require.NoError(t, err)
	_, err = f.engine.Create(f.addSession(t, 5), settings())
	require.NoError(t, err)
	list := f.engine.List()
	require.Len(t, list, 2)
	assert.Equal(t, 0, list[0].ID)
	assert.Equal(t, 1, list[1].ID)
}

func TestProperty_SlotInvariantHolds(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(t)
		tokens := make([]string, 5)
		for i := range tokens {
			tokens[i] = f.addSession(t, int32(4+i))
		}

		steps := rapid.IntRange(1, 50).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			tok := rapid.SampledFrom(tokens).Draw(rt, "token")
			slot := rapid.IntRange(0, match.SlotCount-1).Draw(rt, "slot")
			switch rapid.IntRange(0, 9).Draw(rt, "op") {
			case 0:
				_, _ = f.engine.Create(tok, settings())
			case 1:
				_, _ = f.engine.Join(tok, rapid.IntRange(0, 2).Draw(rt, "match"), "")
			case 2:
				_ = f.engine.Leave(tok)
			case 3:
				_ = f.engine.LockSlot(tok, slot)
			case 4:
				_ = f.engine.ChangeSlot(tok, slot)
			case 5:
				_ = f.engine.TransferHost(tok, slot)
			case 6:
				_ = f.engine.SetReady(tok)
			case 7:
				_ = f.engine.Start(tok)
			case 8:
				_ = f.engine.Complete(tok)
			case 9:
				_ = f.engine.NoMap(tok)
			}
		}

		seated := map[int32]int{}
		for _, m := range f.engine.List() {
			assertSlotInvariant(rt, m)
			for _, id := range m.Occupants() {
				_, dup := seated[id]
				assert.False(rt, dup, "account %d seated twice", id)
				seated[id] = m.ID
			}
		}
		for _, tok := range tokens {
			s, _ := f.sessions.GetByToken(tok)
			id, ok := seated[s.AccountID]
			if !ok {
				assert.False(rt, s.InMatch(), "%s thinks it is in match %d", tok, s.MatchID)
				continue
			}
			assert.Equal(rt, id, s.MatchID)
			assert.True(rt, s.InChannel(match.ChannelName(id)))
		}
	})
}

func TestMarshalRoundTrip(t *testing.T) {
	f := newFixture(t)
	cfg := settings()
	cfg.Password = "pw"
	m, err := f.engine.Create(f.addSession(t, 4), cfg)
	require.NoError(t, err)

	data, err := match.Marshal(m)
	require.NoError(t, err)
	back, err := match.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, m, back)
}
