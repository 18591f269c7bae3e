package bridge

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	target  string
	name    string
	payload string
}

type fakePublisher struct {
	calls []call
	n     int
	err   error
}

func (f *fakePublisher) BroadcastToTopic(topic string, payload any) (int, error) {
	f.calls = append(f.calls, call{"topic", topic, string(payload.(json.RawMessage))})
	return f.n, f.err
}

func (f *fakePublisher) BroadcastToRoom(room string, payload any) (int, error) {
	f.calls = append(f.calls, call{"room", room, string(payload.(json.RawMessage))})
	return f.n, f.err
}

func TestRouteTopic(t *testing.T) {
	pub := &fakePublisher{n: 3}
	b := New("neurogrid.gateway", pub, nil)

	n, err := b.route("neurogrid.gateway.topic.user.u1.tasks", []byte(`{"status":"done"}`))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, pub.calls, 1)
	assert.Equal(t, call{"topic", "user.u1.tasks", `{"status":"done"}`}, pub.calls[0])
}

func TestRouteRoom(t *testing.T) {
	pub := &fakePublisher{n: 1}
	b := New("gw.", pub, nil)

	n, err := b.route("gw.room.public.lobby", []byte(`"hello"`))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, call{"room", "public.lobby", `"hello"`}, pub.calls[0])
}

func TestRouteRejects(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		data    string
		want    error
	}{
		{"other prefix", "other.topic.system.status", `{}`, ErrUnknownSubject},
		{"unknown namespace", "gw.queue.jobs", `{}`, ErrUnknownSubject},
		{"empty topic", "gw.topic.", `{}`, ErrUnknownSubject},
		{"not json", "gw.topic.system.status", `not json`, ErrInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			_, err := New("gw", pub, nil).route(tt.subject, []byte(tt.data))
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Empty(t, pub.calls)
		})
	}
}

func TestCloseWithoutConnection(t *testing.T) {
	assert.NoError(t, New("gw", &fakePublisher{}, nil).Close())
}
