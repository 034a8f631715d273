package channel_test

import (
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/bancho/internal/game/channel"
	"github.com/cory-johannsen/bancho/internal/game/ruleset"
	"github.com/cory-johannsen/bancho/internal/game/session"
	"github.com/cory-johannsen/bancho/internal/packet"
	"github.com/cory-johannsen/bancho/internal/storage/kv"
)

func newRegistry(t testing.TB) (*channel.Registry, *session.Store, *kv.MemoryStore) {
	mirror := kv.NewMemoryStore()
	logger := zaptest.NewLogger(t)
	sessions := session.NewStore(nil, logger)
	reg := channel.NewRegistry(sessions, mirror, logger)
	for _, def := range channel.DefaultCatalog() {
		require.NoError(t, reg.Create(def))
	}
	return reg, sessions, mirror
}

func addSession(t testing.TB, st *session.Store, id int32, priv ruleset.Privileges) string {
	name := fmt.Sprintf("user%d", id)
	_, err := st.Create(session.Session{
		Token:          name + "-token",
		AccountID:      id,
		Name:           name,
		Privileges:     priv,
		PresenceFilter: ruleset.PresenceAll,
		MatchID:        session.NoMatch,
	})
	require.NoError(t, err)
	return name + "-token"
}

func TestRegistry_CreateRejectsDuplicate(t *testing.T) {
	reg, _, _ := newRegistry(t)
	err := reg.Create(channel.Definition{Name: "#osu"})
	assert.ErrorIs(t, err, channel.ErrChannelExists)
}

func TestRegistry_ListAutoJoin(t *testing.T) {
	reg, _, _ := newRegistry(t)
	require.NoError(t, reg.Create(channel.Definition{Name: "#staff", AutoJoin: true, Privileges: ruleset.PrivStaff}))

	names := func(infos []channel.Info) []string {
		var out []string
		for _, i := range infos {
			out = append(out, i.Name)
		}
		return out
	}
	assert.Equal(t, []string{"#osu"}, names(reg.ListAutoJoin(ruleset.PrivNormal)))
	assert.Equal(t, []string{"#osu", "#staff"}, names(reg.ListAutoJoin(ruleset.PrivNormal|ruleset.PrivAdmin)))
	assert.Empty(t, reg.ListAutoJoin(ruleset.PrivNone))
}

func TestRegistry_JoinQueuesInfoAndSuccess(t *testing.T) {
	reg, sessions, mirror := newRegistry(t)
	tok := addSession(t, sessions, 4, ruleset.PrivNormal)

	joined, err := reg.Join(tok, "#osu")
	require.NoError(t, err)
	assert.True(t, joined)

	s, _ := sessions.GetByToken(tok)
	assert.Equal(t, []string{"#osu"}, s.Channels)

	want := slices.Concat(
		packet.ChannelInfo("#osu", "main osu! channel", 1),
		packet.ChannelInfoEnd(),
		packet.ChannelJoinSuccess("#osu"),
		packet.ChannelInfo("#osu", "main osu! channel", 1),
	)
	assert.Equal(t, want, s.Queue)

	data, err := mirror.Get(t.Context(), kv.ChannelPrefix+"#osu")
	require.NoError(t, err)
	assert.Contains(t, string(data), tok)
}

func TestRegistry_DuplicateJoinAndAbsentPartAreNoOps(t *testing.T) {
	reg, sessions, _ := newRegistry(t)
	tok := addSession(t, sessions, 4, ruleset.PrivNormal)

	_, err := reg.Join(tok, "#osu")
	require.NoError(t, err)
	joined, err := reg.Join(tok, "#osu")
	require.NoError(t, err)
	assert.False(t, joined)

	members, err := reg.Members("#osu")
	require.NoError(t, err)
	assert.Equal(t, []string{tok}, members)

	parted, err := reg.Part(tok, "#lobby")
	require.NoError(t, err)
	assert.False(t, parted)
}

func TestRegistry_JoinChecksPrivileges(t *testing.T) {
	reg, sessions, _ := newRegistry(t)
	require.NoError(t, reg.Create(channel.Definition{Name: "#staff", Privileges: ruleset.PrivStaff}))
	require.NoError(t, reg.Create(channel.Definition{Name: "#multi_0", Internal: true, Display: "#multiplayer"}))
	tok := addSession(t, sessions, 4, ruleset.PrivNormal)

	_, err := reg.Join(tok, "#staff")
	assert.ErrorIs(t, err, channel.ErrForbidden)
	_, err = reg.Join(tok, "#multi_0")
	assert.ErrorIs(t, err, channel.ErrForbidden)

	members, _ := reg.Members("#staff")
	assert.Empty(t, members)

	admitted, err := reg.Admit(tok, "#multi_0")
	require.NoError(t, err)
	assert.True(t, admitted)
	s, _ := sessions.GetByToken(tok)
	assert.Contains(t, s.Channels, "#multi_0")
}

func TestRegistry_JoinUnknown(t *testing.T) {
	reg, sessions, _ := newRegistry(t)
	tok := addSession(t, sessions, 4, ruleset.PrivNormal)
	_, err := reg.Join(tok, "#nope")
	assert.ErrorIs(t, err, channel.ErrChannelNotFound)
	_, err = reg.Join("ghost", "#osu")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestRegistry_PartQueuesKick(t *testing.T) {
	reg, sessions, _ := newRegistry(t)
	tok := addSession(t, sessions, 4, ruleset.PrivNormal)
	_, err := reg.Join(tok, "#lobby")
	require.NoError(t, err)
	_, _ = sessions.Drain(tok)

	parted, err := reg.Part(tok, "#lobby")
	require.NoError(t, err)
	assert.True(t, parted)

	s, _ := sessions.GetByToken(tok)
	assert.Empty(t, s.Channels)
	want := slices.Concat(packet.ChannelKick("#lobby"), packet.ChannelInfo("#lobby", "main osu! lobby channel", 0))
	assert.Equal(t, want, s.Queue)
}

func TestRegistry_PartAllAndRemove(t *testing.T) {
	reg, sessions, mirror := newRegistry(t)
	a := addSession(t, sessions, 4, ruleset.PrivNormal)
	b := addSession(t, sessions, 5, ruleset.PrivNormal)
	for _, tok := range []string{a, b} {
		_, err := reg.Join(tok, "#osu")
		require.NoError(t, err)
		_, err = reg.Join(tok, "#lobby")
		require.NoError(t, err)
	}

	reg.PartAll(a)
	s, _ := sessions.GetByToken(a)
	assert.Empty(t, s.Channels)
	members, _ := reg.Members("#osu")
	assert.Equal(t, []string{b}, members)

	require.NoError(t, reg.Remove("#lobby"))
	_, ok := reg.GetByName("#lobby")
	assert.False(t, ok)
	s, _ = sessions.GetByToken(b)
	assert.Equal(t, []string{"#osu"}, s.Channels)
	_, err := mirror.Get(t.Context(), kv.ChannelPrefix+"#lobby")
	assert.ErrorIs(t, err, kv.ErrNotFound)

	assert.ErrorIs(t, reg.Remove("#lobby"), channel.ErrChannelNotFound)
}

func TestRegistry_PartAllWithoutSession(t *testing.T) {
	reg, sessions, _ := newRegistry(t)
	tok := addSession(t, sessions, 4, ruleset.PrivNormal)
	_, err := reg.Join(tok, "#osu")
	require.NoError(t, err)
	_, err = sessions.Delete(tok)
	require.NoError(t, err)

	reg.PartAll(tok)
	members, _ := reg.Members("#osu")
	assert.Empty(t, members)
}

func TestRegistry_BroadcastExcludes(t *testing.T) {
	reg, sessions, _ := newRegistry(t)
	a := addSession(t, sessions, 4, ruleset.PrivNormal)
	b := addSession(t, sessions, 5, ruleset.PrivNormal)
	for _, tok := range []string{a, b} {
		_, err := reg.Join(tok, "#osu")
		require.NoError(t, err)
	}
	_, _ = sessions.Drain(a)
	_, _ = sessions.Drain(b)

	msg := packet.SendMessage(packet.Message{Sender: "user4", Text: "hi", Recipient: "#osu", SenderID: 4})
	require.NoError(t, reg.Broadcast("#osu", msg, a))

	sa, _ := sessions.GetByToken(a)
	sb, _ := sessions.GetByToken(b)
	assert.Empty(t, sa.Queue)
	assert.Equal(t, msg, sb.Queue)
}

func TestRegistry_AddRemoveMember(t *testing.T) {
	reg, _, _ := newRegistry(t)
	added, err := reg.AddMember("#osu", "t1")
	require.NoError(t, err)
	assert.True(t, added)
	added, err = reg.AddMember("#osu", "t1")
	require.NoError(t, err)
	assert.False(t, added)

	removed, err := reg.RemoveMember("#osu", "t1")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = reg.RemoveMember("#osu", "t1")
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = reg.AddMember("#nope", "t1")
	assert.ErrorIs(t, err, channel.ErrChannelNotFound)
}

func TestProperty_MembershipIsBidirectional(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		reg, sessions, _ := newRegistry(t)
		tokens := make([]string, 3)
		for i := range tokens {
			tokens[i] = addSession(t, sessions, int32(4+i), ruleset.PrivNormal)
		}
		names := []string{"#osu", "#lobby"}

		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			tok := rapid.SampledFrom(tokens).Draw(rt, "token")
			name := rapid.SampledFrom(names).Draw(rt, "channel")
			switch rapid.IntRange(0, 2).Draw(rt, "op") {
			case 0:
				_, err := reg.Join(tok, name)
				require.NoError(rt, err)
			case 1:
				_, err := reg.Part(tok, name)
				require.NoError(rt, err)
			case 2:
				reg.PartAll(tok)
			}
		}

		for _, tok := range tokens {
			s, ok := sessions.GetByToken(tok)
			require.True(rt, ok)
			for _, name := range names {
				members, err := reg.Members(name)
				require.NoError(rt, err)
				assert.Equal(rt, slices.Contains(members, tok), s.InChannel(name), "%s in %s", tok, name)
			}
			assert.Len(rt, s.Channels, len(slices.Compact(slices.Sorted(slices.Values(s.Channels)))))
		}
	})
}
