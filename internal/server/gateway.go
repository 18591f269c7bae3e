// Package server ties the registry, indices, router, heartbeat monitor, and
// publisher together behind the Gateway type and its HTTP surface.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mikagit25/neurogrid-sub000/internal/auth"
	"github.com/mikagit25/neurogrid-sub000/internal/config"
	"github.com/mikagit25/neurogrid-sub000/internal/forward"
)

// Gateway is one running instance of the connection gateway.
type Gateway struct {
	cfg config.Config

	reg       *Registry
	topics    *TopicIndex
	rooms     *RoomIndex
	router    *Router
	heartbeat *HeartbeatMonitor
	publisher *Publisher
	metrics   *Metrics
	gate      *auth.Gate
	origins   *originPolicy
	upgrader  websocket.Upgrader

	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	start  sync.Once

	// mu orders admissions against Shutdown so no pump starts after closeAll.
	mu      sync.Mutex
	closing bool
}

// Option customizes a Gateway.
type Option func(*options)

type options struct {
	logger    *zap.Logger
	verifier  auth.TokenVerifier
	forwarder forward.Forwarder
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithVerifier replaces the HS256 verifier built from the auth config.
func WithVerifier(v auth.TokenVerifier) Option {
	return func(o *options) { o.verifier = v }
}

// WithForwarder replaces the HTTP forwarder built from the forward config.
func WithForwarder(f forward.Forwarder) Option {
	return func(o *options) { o.forwarder = f }
}

// New builds a gateway from cfg. cfg is copied.
func New(cfg *config.Config, opts ...Option) *Gateway {
	c := cfg.Clone()
	c.Sanitize()

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.verifier == nil {
		o.verifier = auth.NewJWTVerifier(c.Auth.Secret, c.Auth.TokenTTL)
	}
	if o.forwarder == nil && c.Forward.URL != "" {
		o.forwarder = forward.NewHTTPForwarder(c.Forward.URL, c.Forward.Timeout, o.logger.Named("forward"))
	}

	metrics := NewMetrics()
	reg := NewRegistry(c.MaxConnections, o.logger, metrics)
	topics := NewTopicIndex(reg)
	rooms := NewRoomIndex(reg)
	gate := auth.NewGate(o.verifier, c.Auth.AdminRoles)

	g := &Gateway{
		cfg:     *c,
		reg:     reg,
		topics:  topics,
		rooms:   rooms,
		metrics: metrics,
		gate:    gate,
		origins: newOriginPolicy(c.AllowedOrigins, o.logger),
		logger:  o.logger,
		router: NewRouter(reg, topics, rooms, RouterConfig{
			Gate:             gate,
			Forwarder:        o.forwarder,
			PassThroughTypes: c.Forward.Types,
			ForwardTimeout:   c.Forward.Timeout,
			MaxFailures:      c.MaxHandlerFailures,
			Logger:           o.logger,
		}),
		heartbeat: NewHeartbeatMonitor(reg, c.HeartbeatInterval, o.logger),
		publisher: NewPublisher(reg, o.logger),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.origins.check,
	}
	g.ctx, g.cancel = context.WithCancel(context.Background())
	return g
}

// Start launches the heartbeat monitor. It is safe to call more than once.
func (g *Gateway) Start() {
	g.start.Do(func() {
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			g.heartbeat.Run(g.ctx)
		}()
		g.logger.Info("gateway started",
			zap.Int("max_connections", g.cfg.MaxConnections),
			zap.Duration("heartbeat_interval", g.cfg.HeartbeatInterval))
	})
}

// Shutdown stops the heartbeat, closes every connection, and waits for the
// pumps to exit or the timeout to pass.
func (g *Gateway) Shutdown(timeout time.Duration) error {
	g.logger.Info("initiating gateway shutdown")
	g.mu.Lock()
	g.closing = true
	g.mu.Unlock()

	g.cancel()
	closed := g.reg.closeAll("server shutdown")

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		g.logger.Info("gateway shutdown completed", zap.Int("closed", closed))
		return nil
	case <-time.After(timeout):
		g.logger.Warn("gateway shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}

// WebSocketHandler reserves a connection slot, upgrades the request, and
// starts the connection's pumps. A full gateway answers 503 without upgrading.
func (g *Gateway) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}
	if g.ctx.Err() != nil {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	res, err := g.reg.Reserve()
	if err != nil {
		g.logger.Warn("connection refused", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		http.Error(w, "connection limit reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		res.Release()
		g.logger.Info("websocket upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}

	c := newConnection(conn, r.RemoteAddr, connectionOptions{
		sendBuffer:     g.cfg.SendBufferSize,
		writeTimeout:   g.cfg.WriteTimeout,
		maxMessageSize: g.cfg.MaxMessageSize,
		rateBurst:      g.cfg.RateLimit.Burst,
		rateInterval:   g.cfg.RateLimit.RefillInterval,
		maxInFlight:    g.cfg.Forward.MaxInFlight,
		logger:         g.logger,
	})
	if !g.admit(res, c) {
		c.closeTransport()
		return
	}

	welcome, _ := json.Marshal(WelcomeFrame{
		Type:          TypeWelcome,
		ConnectionID:  c.id,
		ServerVersion: g.cfg.ServerVersion,
	})
	_ = g.reg.Send(c, welcome)

	go func() {
		defer g.wg.Done()
		c.writePump()
	}()
	go func() {
		defer g.wg.Done()
		c.readPump(g.reg, g.router)
	}()
}

// admit registers c and accounts for its two pumps, unless Shutdown has begun.
// On refusal the reservation is released.
func (g *Gateway) admit(res *Reservation, c *Connection) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closing {
		res.Release()
		return false
	}
	if err := g.reg.Accept(res, c); err != nil {
		res.Release()
		return false
	}
	g.wg.Add(2)
	return true
}

// BroadcastToTopic delivers payload to every subscriber of topic.
func (g *Gateway) BroadcastToTopic(topic string, payload any) (int, error) {
	return g.publisher.BroadcastToTopic(topic, payload)
}

// BroadcastToRoom delivers payload to every member of room.
func (g *Gateway) BroadcastToRoom(room string, payload any) (int, error) {
	return g.publisher.BroadcastToRoom(room, payload)
}

// Stats returns the registry snapshot.
func (g *Gateway) Stats() Stats {
	return g.reg.Stats()
}

// Authenticate verifies a token for callers of the HTTP API.
func (g *Gateway) Authenticate(token, kind string) (*auth.Identity, error) {
	return g.gate.Authenticate(token, kind)
}

// Metrics returns the gateway's collectors.
func (g *Gateway) Metrics() *Metrics { return g.metrics }

// Config returns the effective configuration.
func (g *Gateway) Config() config.Config { return g.cfg }

// Publisher returns the broadcast publisher, for bridges.
func (g *Gateway) Publisher() *Publisher { return g.publisher }

// isShutdown reports whether Shutdown has been called.
func (g *Gateway) isShutdown() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closing
}
