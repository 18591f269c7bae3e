package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikagit25/neurogrid-sub000/internal/auth"
)

func TestSubscribeGrantsPolicySubset(t *testing.T) {
	reg := NewRegistry(4, nil, nil)
	topics := NewTopicIndex(reg)
	c := newTestConn(t, reg, 4)

	granted := topics.Subscribe(c, []string{"system.status", "admin.alerts"})
	assert.Equal(t, []string{"system.status"}, granted)
	assert.Equal(t, 1, topics.Subscribers("system.status"))
	assert.Zero(t, topics.Subscribers("admin.alerts"))
}

func TestSubscribeDeduplicatesAndNeverReturnsNil(t *testing.T) {
	reg := NewRegistry(4, nil, nil)
	topics := NewTopicIndex(reg)
	c := newTestConn(t, reg, 4)

	assert.Equal(t, []string{"system.status"}, topics.Subscribe(c, []string{"system.status", "system.status"}))

	denied := topics.Subscribe(c, []string{"admin.alerts"})
	assert.NotNil(t, denied)
	assert.Empty(t, denied)
}

func TestSubscribeIsIdempotentAcrossCalls(t *testing.T) {
	reg := NewRegistry(4, nil, nil)
	topics := NewTopicIndex(reg)
	c := newTestConn(t, reg, 4)

	topics.Subscribe(c, []string{"system.status"})
	topics.Subscribe(c, []string{"system.status"})
	assert.Equal(t, 1, topics.Subscribers("system.status"))
}

func TestUnsubscribe(t *testing.T) {
	reg := NewRegistry(4, nil, nil)
	topics := NewTopicIndex(reg)
	c := newTestConn(t, reg, 4)
	withIdentity(t, reg, c, auth.KindUser, "u1", "user")
	topics.Subscribe(c, []string{"system.status", "user.u1.tasks"})

	removed := topics.Unsubscribe(c, []string{"user.u1.tasks", "system.other"})
	assert.Equal(t, []string{"user.u1.tasks"}, removed)
	assert.Zero(t, topics.Subscribers("user.u1.tasks"))
	assert.Equal(t, 1, topics.Subscribers("system.status"))
}

func TestSubscribeOnClosedConnection(t *testing.T) {
	reg := NewRegistry(4, nil, nil)
	topics := NewTopicIndex(reg)
	c := newTestConn(t, reg, 4)
	reg.Remove(c, "test")

	assert.Empty(t, topics.Subscribe(c, []string{"system.status"}))
	assert.Zero(t, topics.Subscribers("system.status"))
}

func TestJoinRoom(t *testing.T) {
	reg := NewRegistry(4, nil, nil)
	rooms := NewRoomIndex(reg)
	c := newTestConn(t, reg, 4)

	require.NoError(t, rooms.Join(c, "public.lobby"))
	assert.ErrorIs(t, rooms.Join(c, "user.u1.private"), ErrRoomAccessDenied)

	withIdentity(t, reg, c, auth.KindUser, "u1", "user")
	require.NoError(t, rooms.Join(c, "user.u1.private"))
	require.NoError(t, rooms.Join(c, "user.u1.private"))
	assert.ErrorIs(t, rooms.Join(c, "user.u2.private"), ErrRoomAccessDenied)

	assert.Equal(t, 1, rooms.Members("public.lobby"))
	assert.Equal(t, 1, rooms.Members("user.u1.private"))

	_, joined := reg.Memberships(c)
	assert.Equal(t, []string{"public.lobby", "user.u1.private"}, joined)
}

func TestLeaveRoom(t *testing.T) {
	reg := NewRegistry(4, nil, nil)
	rooms := NewRoomIndex(reg)
	a := newTestConn(t, reg, 4)
	b := newTestConn(t, reg, 4)
	require.NoError(t, rooms.Join(a, "public.lobby"))
	require.NoError(t, rooms.Join(b, "public.lobby"))

	require.NoError(t, rooms.Leave(a, "public.lobby"))
	assert.ErrorIs(t, rooms.Leave(a, "public.lobby"), ErrNotInRoom)
	assert.Equal(t, 1, rooms.Members("public.lobby"))
}

func TestJoinRoomOnClosedConnection(t *testing.T) {
	reg := NewRegistry(4, nil, nil)
	rooms := NewRoomIndex(reg)
	c := newTestConn(t, reg, 4)
	reg.Remove(c, "test")

	assert.ErrorIs(t, rooms.Join(c, "public.lobby"), ErrConnectionClosed)
	assert.Zero(t, rooms.Members("public.lobby"))
}
