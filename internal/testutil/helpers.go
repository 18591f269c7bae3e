// Package testutil provides helpers shared by the gateway's tests: dialing
// WebSocket clients, exchanging JSON frames, and minting tokens.
package testutil

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/mikagit25/neurogrid-sub000/internal/auth"
)

// TestOrigin is the browser origin test clients present.
const TestOrigin = "http://localhost:8080"

// TestSecret signs tokens in tests.
const TestSecret = "test-secret"

// Frame is a decoded server frame.
type Frame map[string]any

// Type returns the frame's type field.
func (f Frame) Type() string {
	s, _ := f["type"].(string)
	return s
}

// Field returns a string field, or "".
func (f Frame) Field(key string) string {
	s, _ := f[key].(string)
	return s
}

// Strings returns a string array field.
func (f Frame) Strings(key string) []string {
	raw, _ := f[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// WSURL converts an httptest server URL into a WebSocket URL for path.
func WSURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

// ConnectWebSocket dials url with the test origin. The handshake response is
// returned so callers can inspect refused upgrades.
func ConnectWebSocket(url string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	headers.Set("Origin", TestOrigin)

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// MustConnect dials url, reads the welcome frame, and registers cleanup.
func MustConnect(t *testing.T, url string) (*websocket.Conn, Frame) {
	t.Helper()

	conn, _, err := ConnectWebSocket(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	welcome := ReadFrame(t, conn)
	require.Equal(t, "welcome", welcome.Type())
	return conn, welcome
}

// SendJSON writes v as one text frame.
func SendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

// SendRaw writes data as one text frame.
func SendRaw(t *testing.T, conn *websocket.Conn, data string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(data)))
}

// ReadFrame reads the next frame, failing after two seconds.
func ReadFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var f Frame
	require.NoError(t, json.Unmarshal(raw, &f), "frame: %s", raw)
	return f
}

// ReadFrameOfType reads frames until one has the given type.
func ReadFrameOfType(t *testing.T, conn *websocket.Conn, frameType string) Frame {
	t.Helper()
	for i := 0; i < 16; i++ {
		f := ReadFrame(t, conn)
		if f.Type() == frameType {
			return f
		}
	}
	t.Fatalf("no %q frame received", frameType)
	return nil
}

// ExpectNoFrame asserts nothing arrives within d.
func ExpectNoFrame(t *testing.T, conn *websocket.Conn, d time.Duration) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(d)))
	_, raw, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame: %s", raw)
}

// ExpectClosed asserts the server closes the connection within d.
func ExpectClosed(t *testing.T, conn *websocket.Conn, d time.Duration) {
	t.Helper()

	deadline := time.Now().Add(d)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		if _, _, err := conn.ReadMessage(); err != nil {
			var netErr net.Error
			require.False(t, errors.As(err, &netErr) && netErr.Timeout(), "connection still open after %s", d)
			return
		}
	}
}

// CloseWebSocket sends a normal close frame and closes the connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// Token mints a token signed with TestSecret.
func Token(t *testing.T, claims auth.Claims) string {
	t.Helper()

	token, _, err := auth.NewJWTVerifier(TestSecret, time.Hour).GenerateToken(claims)
	require.NoError(t, err)
	return token
}

// UserToken mints a user token for userID with role.
func UserToken(t *testing.T, userID, role string) string {
	t.Helper()
	return Token(t, auth.Claims{UserID: userID, Role: role})
}

// NodeToken mints a node token for nodeID.
func NodeToken(t *testing.T, nodeID string) string {
	t.Helper()
	return Token(t, auth.Claims{NodeID: nodeID})
}
