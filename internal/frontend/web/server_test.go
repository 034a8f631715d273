package web

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/bancho/internal/config"
	"github.com/cory-johannsen/bancho/internal/gameserver"
)

type fakeBancho struct {
	mu       sync.Mutex
	logins   [][]byte
	requests map[string][]byte
	online   int
}

func (f *fakeBancho) Login(_ context.Context, body []byte) gameserver.LoginResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins = append(f.logins, body)
	return gameserver.LoginResult{Token: "tok-1", Body: []byte("welcome")}
}

func (f *fakeBancho) HandleRequest(_ context.Context, token string, body []byte) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.requests == nil {
		f.requests = make(map[string][]byte)
	}
	f.requests[token] = body
	return []byte("events for " + token)
}

func (f *fakeBancho) OnlineCount() int {
	return f.online
}

func newTestServer(t *testing.T, bancho Bancho) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.HTTPConfig{Host: "127.0.0.1", Port: 0, MaxBodyBytes: 64}
	return NewServer(cfg, 19, bancho, zaptest.NewLogger(t))
}

func post(t *testing.T, s *Server, token string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("User-Agent", ClientUserAgent)
	if token != "" {
		req.Header.Set(HeaderRequestToken, token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestBancho_LoginWithoutToken(t *testing.T) {
	fb := &fakeBancho{}
	s := newTestServer(t, fb)

	rec := post(t, s, "", []byte("user\nhash\ninfo\n"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok-1", rec.Header().Get(HeaderResponseToken))
	assert.Equal(t, "19", rec.Header().Get(HeaderProtocol))
	assert.Equal(t, "welcome", rec.Body.String())
	require.Len(t, fb.logins, 1)
	assert.Equal(t, "user\nhash\ninfo\n", string(fb.logins[0]))
}

func TestBancho_RequestWithToken(t *testing.T) {
	fb := &fakeBancho{}
	s := newTestServer(t, fb)

	rec := post(t, s, "abc", []byte{1, 2, 3})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(HeaderResponseToken))
	assert.Equal(t, "events for abc", rec.Body.String())
	assert.Equal(t, []byte{1, 2, 3}, fb.requests["abc"])
	assert.Empty(t, fb.logins)
}

func TestBancho_BodyTooLarge(t *testing.T) {
	fb := &fakeBancho{}
	s := newTestServer(t, fb)

	rec := post(t, s, "abc", bytes.Repeat([]byte{0}, 65))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, fb.requests)
}

func TestBancho_RejectsOtherClients(t *testing.T) {
	s := newTestServer(t, &fakeBancho{})
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("x"))
	req.Header.Set("User-Agent", "curl/8.0")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBanner(t *testing.T) {
	s := newTestServer(t, &fakeBancho{online: 7})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "7 online")
}

func TestServer_StartStop(t *testing.T) {
	s := newTestServer(t, &fakeBancho{online: 1})
	done := make(chan error, 1)
	go func() { done <- s.Start() }()
	require.Eventually(t, func() bool { return s.Addr() != "" }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + s.Addr() + "/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.NoError(t, <-done)
}

func TestServer_StopBeforeStart(t *testing.T) {
	s := newTestServer(t, &fakeBancho{})
	assert.NoError(t, s.Stop(context.Background()))
}
