package web_test

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/bancho/internal/config"
	"github.com/cory-johannsen/bancho/internal/frontend/web"
	"github.com/cory-johannsen/bancho/internal/game/channel"
	"github.com/cory-johannsen/bancho/internal/game/command"
	"github.com/cory-johannsen/bancho/internal/game/match"
	"github.com/cory-johannsen/bancho/internal/game/session"
	"github.com/cory-johannsen/bancho/internal/gameserver"
	"github.com/cory-johannsen/bancho/internal/packet"
	"github.com/cory-johannsen/bancho/internal/storage/kv"
	"github.com/cory-johannsen/bancho/internal/storage/sqlite"
	"github.com/cory-johannsen/bancho/internal/testutil"
)

func startBancho(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t)
	mirror := kv.NewMemoryStore()
	sessions := session.NewStore(mirror, logger)
	channels := channel.NewRegistry(sessions, mirror, logger)
	for _, def := range channel.DefaultCatalog() {
		require.NoError(t, channels.Create(def))
	}
	accounts, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "bancho.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = accounts.Close() })

	srv, err := gameserver.NewServer(gameserver.Deps{
		Sessions: sessions,
		Channels: channels,
		Matches:  match.NewEngine(sessions, channels, mirror, logger),
		Accounts: accounts,
		Commands: command.DefaultRegistry("!"),
		Logger:   logger,
	}, gameserver.Options{
		AutoRegister:    true,
		ProtocolVersion: 19,
		BotName:         "BanchoBot",
		LogoutDebounce:  time.Nanosecond,
	})
	require.NoError(t, err)

	ws := web.NewServer(config.HTTPConfig{MaxBodyBytes: 1 << 20}, 19, srv, logger)
	ts := httptest.NewServer(ws.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestEndToEnd_ChatBetweenTwoClients(t *testing.T) {
	url := startBancho(t)
	alice := testutil.NewBanchoClient(t, url)
	bob := testutil.NewBanchoClient(t, url)

	token, body := alice.Login("alice", "md5")
	require.NotEqual(t, gameserver.RejectedToken, token)
	assert.True(t, bytes.HasPrefix(body, packet.UserIDEvent(4)))
	token, _ = bob.Login("bob", "md5")
	require.NotEqual(t, gameserver.RejectedToken, token)
	alice.Send()

	alice.Send(packet.Encode(packet.ClientSendPublicMessage, packet.Message{Text: "hi bob", Recipient: "#osu"}))
	got := bob.Send()
	assert.Equal(t, packet.SendMessage(packet.Message{Sender: "alice", Text: "hi bob", Recipient: "#osu", SenderID: 4}), got)

	time.Sleep(time.Millisecond)
	bob.Send(packet.Encode(packet.ClientLogout, packet.Logout{}))
	assert.True(t, bytes.Contains(alice.Send(), packet.UserLogout(5)))

	rejected := testutil.NewBanchoClient(t, url)
	token, _ = rejected.Login("alice", "md5")
	assert.Equal(t, gameserver.RejectedToken, token)
}

func TestEndToEnd_UnknownTokenRestarts(t *testing.T) {
	url := startBancho(t)
	c := testutil.NewBanchoClient(t, url)
	c.Token = "stale"
	assert.True(t, bytes.HasPrefix(c.Send(), packet.Restart(0)))
}
