package forward

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikagit25/neurogrid-sub000/internal/auth"
)

func TestHTTPForwarderPostsToTypePath(t *testing.T) {
	var gotPath string
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"accepted":true}`))
	}))
	defer srv.Close()

	f := NewHTTPForwarder(srv.URL+"/api/v1/gateway/", time.Second, nil)
	resp, err := f.Forward(context.Background(), Request{
		Type:         "task_status",
		ConnectionID: "c1",
		Identity:     &auth.Identity{Kind: auth.KindNode, SubjectID: "n1", Role: "node"},
		Payload:      json.RawMessage(`{"taskId":"t1","status":"running"}`),
	})
	require.NoError(t, err)

	assert.JSONEq(t, `{"accepted":true}`, string(resp))
	assert.Equal(t, "/api/v1/gateway/task_status", gotPath)
	assert.Equal(t, "c1", got.ConnectionID)
	assert.Equal(t, "n1", got.Identity.SubjectID)
	assert.JSONEq(t, `{"taskId":"t1","status":"running"}`, string(got.Payload))
}

func TestHTTPForwarderEmptyBodyIsNull(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	resp, err := NewHTTPForwarder(srv.URL, time.Second, nil).Forward(context.Background(), Request{Type: "node_status"})
	require.NoError(t, err)
	assert.Equal(t, "null", string(resp))
}

func TestHTTPForwarderUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPForwarder(srv.URL, time.Second, nil).Forward(context.Background(), Request{Type: "task_result"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpstream))
}

func TestHTTPForwarderRejectsNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	_, err := NewHTTPForwarder(srv.URL, time.Second, nil).Forward(context.Background(), Request{Type: "task_accept"})
	assert.Error(t, err)
}

func TestHTTPForwarderHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()
	defer srv.CloseClientConnections()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewHTTPForwarder(srv.URL, 5*time.Second, nil).Forward(ctx, Request{Type: "task_status"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFuncAdapter(t *testing.T) {
	var f Forwarder = Func(func(_ context.Context, req Request) (json.RawMessage, error) {
		return json.RawMessage(`"` + req.Type + `"`), nil
	})
	resp, err := f.Forward(context.Background(), Request{Type: "x"})
	require.NoError(t, err)
	assert.Equal(t, `"x"`, string(resp))
}
