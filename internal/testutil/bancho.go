package testutil

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"
)

// BanchoClient speaks the bancho HTTP exchange against a running server.
type BanchoClient struct {
	baseURL string
	http    *http.Client
	t       *testing.T

	// Token is the session token issued at login.
	Token string
}

// NewBanchoClient returns a client for the server at baseURL.
//
// Precondition: baseURL must be an http URL with a listening server.
func NewBanchoClient(t *testing.T, baseURL string) *BanchoClient {
	t.Helper()
	return &BanchoClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
		t:       t,
	}
}

// LoginBody builds a login request body for name with a fixed client.
func LoginBody(name, passwordMD5 string) []byte {
	return []byte(fmt.Sprintf("%s\n%s\nb20240101|0|0|pathmd5:adapter.:adaptersmd5:uninstallmd5:diskmd5:|0\n", name, passwordMD5))
}

// Login posts a login for name and keeps the issued token.
//
// Postcondition: Returns the token header and response body, or fails the
// test on a transport error. A rejected login returns its token unchanged.
func (c *BanchoClient) Login(name, passwordMD5 string) (string, []byte) {
	c.t.Helper()
	token, body := c.post("", LoginBody(name, passwordMD5))
	c.Token = token
	return token, body
}

// Send posts frames under the client's token and returns the response body.
//
// Precondition: Login must have succeeded.
func (c *BanchoClient) Send(frames ...[]byte) []byte {
	c.t.Helper()
	_, body := c.post(c.Token, bytes.Join(frames, nil))
	return body
}

func (c *BanchoClient) post(token string, body []byte) (string, []byte) {
	c.t.Helper()
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/", bytes.NewReader(body))
	if err != nil {
		c.t.Fatalf("building request: %v", err)
	}
	req.Header.Set("User-Agent", "osu!")
	if token != "" {
		req.Header.Set("osu-token", token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.t.Fatalf("posting to %s: %v", c.baseURL, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.t.Fatalf("reading response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected status %d: %q", resp.StatusCode, data)
	}
	return resp.Header.Get("cho-token"), data
}
