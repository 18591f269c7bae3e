package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mikagit25/neurogrid-sub000/internal/auth"
)

// newTestConn registers a connection without a socket; frames queued for it
// are read straight from its outbound channel.
func newTestConn(t *testing.T, reg *Registry, buffer int) *Connection {
	t.Helper()

	res, err := reg.Reserve()
	require.NoError(t, err)
	c := newConnection(nil, "pipe", connectionOptions{sendBuffer: buffer, maxInFlight: 2})
	require.NoError(t, reg.Accept(res, c))
	return c
}

func withIdentity(t *testing.T, reg *Registry, c *Connection, kind auth.Kind, subject, role string) {
	t.Helper()
	reg.SetIdentity(c, &auth.Identity{Kind: kind, SubjectID: subject, Role: role})
}

func nextFrame(t *testing.T, c *Connection) map[string]any {
	t.Helper()

	select {
	case raw, ok := <-c.Outbound():
		require.True(t, ok, "outbound queue closed")
		var f map[string]any
		require.NoError(t, json.Unmarshal(raw, &f))
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame queued")
		return nil
	}
}

func assertNoFrame(t *testing.T, c *Connection) {
	t.Helper()

	select {
	case raw, ok := <-c.Outbound():
		if ok {
			t.Fatalf("unexpected frame: %s", raw)
		}
	default:
	}
}

func stringsOf(t *testing.T, v any) []string {
	t.Helper()

	raw, ok := v.([]any)
	require.True(t, ok, "not an array: %v", v)
	out := make([]string, 0, len(raw))
	for _, x := range raw {
		out = append(out, x.(string))
	}
	return out
}
