// Package server coordinates connection registration, index membership, and
// cleanup for the gateway via the Registry type.
package server

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/mikagit25/neurogrid-sub000/internal/auth"
)

var (
	// ErrConnectionLimit is returned by Reserve when maxConnections slots are taken.
	ErrConnectionLimit = errors.New("connection limit reached")
	// ErrConnectionClosed is returned when writing to a connection that is no longer live.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrSlowConsumer is returned when a connection's outbound queue is full.
	ErrSlowConsumer = errors.New("outbound queue full")
	// ErrReservationUsed is returned when a reservation is accepted or released twice.
	ErrReservationUsed = errors.New("reservation already used")
)

// memberIndex is a reverse map key -> connection id -> connection.
type memberIndex map[string]map[string]*Connection

func (m memberIndex) add(key string, c *Connection) {
	members, ok := m[key]
	if !ok {
		members = make(map[string]*Connection)
		m[key] = members
	}
	members[c.id] = c
}

func (m memberIndex) remove(key string, c *Connection) {
	members, ok := m[key]
	if !ok {
		return
	}
	delete(members, c.id)
	if len(members) == 0 {
		delete(m, key)
	}
}

// Stats is a point-in-time snapshot of the registry.
type Stats struct {
	ActiveConnections         int            `json:"activeConnections"`
	TotalConnectionsEver      uint64         `json:"totalConnectionsEver"`
	ConnectionsByIdentityKind map[string]int `json:"connectionsByIdentityKind"`
	Topics                    int            `json:"topics"`
	Rooms                     int            `json:"rooms"`
}

// Registry owns the set of live connections and the topic and room reverse
// indices. A single RWMutex guards all three so that removal purges a
// connection from every index in one critical section.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*Connection
	topics memberIndex
	rooms  memberIndex

	maxConnections int64
	slots          atomic.Int64
	totalEver      atomic.Uint64

	logger  *zap.Logger
	metrics *Metrics
}

// NewRegistry creates a registry admitting at most maxConnections connections.
func NewRegistry(maxConnections int, logger *zap.Logger, metrics *Metrics) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Registry{
		conns:          make(map[string]*Connection),
		topics:         make(memberIndex),
		rooms:          make(memberIndex),
		maxConnections: int64(maxConnections),
		logger:         logger,
		metrics:        metrics,
	}
}

// Reservation is a claimed connection slot, held while the transport handshake runs.
type Reservation struct {
	reg  *Registry
	used atomic.Bool
}

// Reserve atomically claims a slot, or fails immediately when the limit is reached.
func (r *Registry) Reserve() (*Reservation, error) {
	for {
		n := r.slots.Load()
		if n >= r.maxConnections {
			r.metrics.ConnectionsRejected.Inc()
			return nil, ErrConnectionLimit
		}
		if r.slots.CompareAndSwap(n, n+1) {
			return &Reservation{reg: r}, nil
		}
	}
}

// Release returns an unused slot, e.g. after a failed upgrade.
func (res *Reservation) Release() {
	if res.used.CompareAndSwap(false, true) {
		res.reg.slots.Add(-1)
	}
}

// Accept registers c using a reserved slot and moves it to OPEN.
func (r *Registry) Accept(res *Reservation, c *Connection) error {
	if res == nil || res.reg != r || !res.used.CompareAndSwap(false, true) {
		return ErrReservationUsed
	}

	r.mu.Lock()
	c.setState(StateOpen)
	r.conns[c.id] = c
	active := len(r.conns)
	r.mu.Unlock()

	r.totalEver.Add(1)
	r.metrics.ConnectionsTotal.Inc()
	r.metrics.ConnectionsActive.Set(float64(active))
	r.logger.Debug("connection registered", zap.String("conn_id", c.id), zap.Int("active", active))
	return nil
}

// Remove transitions c through CLOSING to CLOSED, purging it from every index
// and closing its outbound queue. It reports whether c was registered.
func (r *Registry) Remove(c *Connection, reason string) bool {
	r.mu.Lock()
	if _, ok := r.conns[c.id]; !ok {
		r.mu.Unlock()
		return false
	}

	c.setState(StateClosing)
	delete(r.conns, c.id)
	for topic := range c.topics {
		r.topics.remove(topic, c)
	}
	for room := range c.rooms {
		r.rooms.remove(room, c)
	}
	c.topics = make(map[string]struct{})
	c.rooms = make(map[string]struct{})
	c.setState(StateClosed)
	close(c.send)
	active := len(r.conns)
	r.mu.Unlock()

	r.slots.Add(-1)
	c.cancel()
	r.metrics.ConnectionsActive.Set(float64(active))
	r.logger.Debug("connection removed",
		zap.String("conn_id", c.id),
		zap.String("reason", reason),
		zap.Int("active", active))
	return true
}

// Get looks up a live connection by id.
func (r *Registry) Get(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// Snapshot returns the live connections at this instant.
func (r *Registry) Snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Stats returns a point-in-time snapshot.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byKind := map[string]int{
		string(auth.KindAnonymous): 0,
		string(auth.KindUser):      0,
		string(auth.KindNode):      0,
		string(auth.KindAdmin):     0,
	}
	for _, c := range r.conns {
		byKind[string(c.Identity().Kind)]++
	}

	return Stats{
		ActiveConnections:         len(r.conns),
		TotalConnectionsEver:      r.totalEver.Load(),
		ConnectionsByIdentityKind: byKind,
		Topics:                    len(r.topics),
		Rooms:                     len(r.rooms),
	}
}

// Memberships returns c's subscribed topics and joined rooms, sorted.
func (r *Registry) Memberships(c *Connection) (topics, rooms []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics = sortedKeys(c.topics)
	rooms = sortedKeys(c.rooms)
	return topics, rooms
}

// Send enqueues a frame for c without blocking.
func (r *Registry) Send(c *Connection, frame []byte) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enqueueLocked(c, frame)
}

// enqueueLocked requires r.mu held (read or write); close(c.send) only
// happens under the write lock so the channel can't close underneath us.
func (r *Registry) enqueueLocked(c *Connection, frame []byte) error {
	if !c.isLive() {
		return ErrConnectionClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// fanOut enqueues frame to every member of key in index. It returns how many
// connections accepted the frame and which ones had full queues.
func (r *Registry) fanOut(index memberIndex, key string, frame []byte) (int, []*Connection) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	var slow []*Connection
	for _, c := range index[key] {
		switch err := r.enqueueLocked(c, frame); {
		case err == nil:
			delivered++
		case errors.Is(err, ErrSlowConsumer):
			slow = append(slow, c)
		}
	}
	return delivered, slow
}

// SetIdentity atomically swaps c's identity, marks it AUTHENTICATED, and
// drops memberships the new identity is not allowed to keep.
func (r *Registry) SetIdentity(c *Connection, id *auth.Identity) (revokedTopics, revokedRooms []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !c.isLive() {
		return nil, nil
	}

	c.identity.Store(id)
	c.setState(StateAuthenticated)

	for topic := range c.topics {
		if !topicAllowed(id, topic) {
			delete(c.topics, topic)
			r.topics.remove(topic, c)
			revokedTopics = append(revokedTopics, topic)
		}
	}
	for room := range c.rooms {
		if !roomAllowed(id, room) {
			delete(c.rooms, room)
			r.rooms.remove(room, c)
			revokedRooms = append(revokedRooms, room)
		}
	}
	sort.Strings(revokedTopics)
	sort.Strings(revokedRooms)
	return revokedTopics, revokedRooms
}

// evict removes and closes connections that could not keep up.
func (r *Registry) evict(conns []*Connection, reason string) {
	for _, c := range conns {
		if r.Remove(c, reason) {
			r.metrics.Evictions.WithLabelValues(reason).Inc()
			r.logger.Info("connection evicted", zap.String("conn_id", c.id), zap.String("reason", reason))
		}
		c.closeTransport()
	}
}

// closeAll removes every connection, used on shutdown.
func (r *Registry) closeAll(reason string) int {
	conns := r.Snapshot()
	for _, c := range conns {
		r.Remove(c, reason)
	}
	return len(conns)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
