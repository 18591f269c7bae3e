package server

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikagit25/neurogrid-sub000/internal/auth"
	"github.com/mikagit25/neurogrid-sub000/internal/config"
	"github.com/mikagit25/neurogrid-sub000/internal/forward"
)

const evictHandlerFailures = "handler failures"

// Router parses inbound frames and dispatches them by kind. Handlers reply
// only to the sending connection.
type Router struct {
	reg       *Registry
	topics    *TopicIndex
	rooms     *RoomIndex
	gate      *auth.Gate
	forwarder forward.Forwarder

	passThrough    map[string]struct{}
	forwardTimeout time.Duration
	maxFailures    int32

	now    func() time.Time
	logger *zap.Logger
}

// RouterConfig carries the router's collaborators and limits.
type RouterConfig struct {
	Gate             *auth.Gate
	Forwarder        forward.Forwarder
	PassThroughTypes []string
	ForwardTimeout   time.Duration
	MaxFailures      int
	Logger           *zap.Logger
}

// NewRouter creates a router over the registry and its indices. Pass-through
// types are only routed when a forwarder is configured.
func NewRouter(reg *Registry, topics *TopicIndex, rooms *RoomIndex, cfg RouterConfig) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ForwardTimeout <= 0 {
		cfg.ForwardTimeout = 10 * time.Second
	}

	passThrough := make(map[string]struct{})
	if cfg.Forwarder != nil {
		for _, t := range cfg.PassThroughTypes {
			t = strings.TrimSpace(t)
			if t == "" || config.IsReservedFrameType(t) {
				continue
			}
			passThrough[t] = struct{}{}
		}
	}

	return &Router{
		reg:            reg,
		topics:         topics,
		rooms:          rooms,
		gate:           cfg.Gate,
		forwarder:      cfg.Forwarder,
		passThrough:    passThrough,
		forwardTimeout: cfg.ForwardTimeout,
		maxFailures:    int32(cfg.MaxFailures),
		now:            time.Now,
		logger:         logger,
	}
}

func (rt *Router) classify(frameType string) InboundKind {
	if k, ok := inboundNames[frameType]; ok {
		return k
	}
	if _, ok := rt.passThrough[frameType]; ok {
		return InboundPassThrough
	}
	return InboundUnknown
}

// Dispatch handles one raw frame from c. Pings bypass the rate limiter so
// every ping gets exactly one pong.
func (rt *Router) Dispatch(c *Connection, raw []byte) {
	var in InboundFrame
	err := json.Unmarshal(raw, &in)
	if err == nil && in.Type == config.FramePing {
		rt.reg.metrics.FramesReceived.WithLabelValues(InboundPing.String()).Inc()
		rt.pong(c)
		return
	}

	if !c.limiter.allow() {
		rt.sendError(c, CodeRateLimited, "too many messages")
		return
	}
	if err != nil {
		rt.sendError(c, CodeInvalidJSON, "message is not valid JSON")
		return
	}
	if in.Type == "" {
		rt.sendError(c, CodeInvalidJSON, "message has no type")
		return
	}

	kind := rt.classify(in.Type)
	rt.reg.metrics.FramesReceived.WithLabelValues(kind.String()).Inc()

	switch kind {
	case InboundAuth:
		rt.handleAuth(c, &in, false)
	case InboundNodeAuth:
		rt.handleAuth(c, &in, true)
	case InboundSubscribe:
		rt.handleSubscribe(c, &in)
	case InboundUnsubscribe:
		rt.handleUnsubscribe(c, &in)
	case InboundJoinRoom:
		rt.handleJoinRoom(c, &in)
	case InboundLeaveRoom:
		rt.handleLeaveRoom(c, &in)
	case InboundPing:
		rt.pong(c)
	case InboundPassThrough:
		rt.handlePassThrough(c, &in)
	default:
		rt.sendError(c, CodeUnknownMessageType, "unknown message type: "+in.Type)
	}
}

// authRequest pulls token and requested kind from whichever frame shape the
// client used. node_auth always requests the node kind; otherwise the kind
// defaults to user.
func authRequest(in *InboundFrame, nodeAuth bool) (token, kind, nodeID string, err error) {
	token, kind = in.Token, in.Kind

	nested := in.Data
	if nodeAuth && len(in.Payload) > 0 {
		nested = in.Payload
	}
	if len(nested) > 0 {
		var d authData
		if err := json.Unmarshal(nested, &d); err != nil {
			return "", "", "", err
		}
		if token == "" {
			token = d.Token
		}
		if kind == "" {
			kind = d.Kind
		}
		if kind == "" {
			kind = d.Type
		}
		nodeID = d.NodeID
	}

	switch {
	case nodeAuth:
		kind = string(auth.KindNode)
	case kind == "":
		kind = string(auth.KindUser)
	}
	return token, kind, nodeID, nil
}

func (rt *Router) handleAuth(c *Connection, in *InboundFrame, nodeAuth bool) {
	token, kind, nodeID, err := authRequest(in, nodeAuth)
	if err != nil {
		rt.sendError(c, CodeInvalidRequest, "malformed auth data")
		return
	}

	id, err := rt.gate.Authenticate(token, kind)
	if err == nil && nodeID != "" && nodeID != id.SubjectID {
		err = auth.ErrTokenInvalid
	}
	if err != nil {
		code, msg := CodeTokenInvalid, "invalid or expired token"
		if errors.Is(err, auth.ErrInsufficientPermissions) {
			code, msg = CodeInsufficientPermissions, "admin role required"
		}
		c.logger.Info("authentication failed", zap.String("kind", kind), zap.String("code", code), zap.Error(err))
		rt.sendError(c, code, msg)
		return
	}

	revokedTopics, revokedRooms := rt.reg.SetIdentity(c, id)
	c.logger.Info("connection authenticated",
		zap.String("kind", string(id.Kind)),
		zap.String("subject_id", id.SubjectID))

	rt.send(c, AuthSuccessFrame{
		Type:      TypeAuthSuccess,
		SubjectID: id.SubjectID,
		Role:      id.Role,
		Kind:      string(id.Kind),
	})
	if len(revokedTopics) > 0 {
		rt.send(c, TopicsFrame{Type: TypeUnsubscribed, Topics: revokedTopics})
	}
	for _, room := range revokedRooms {
		rt.send(c, RoomFrame{Type: TypeRoomLeft, Room: room})
	}
}

func (rt *Router) handleSubscribe(c *Connection, in *InboundFrame) {
	if len(in.Topics) == 0 {
		rt.sendError(c, CodeInvalidRequest, "topics required")
		return
	}
	granted := rt.topics.Subscribe(c, in.Topics)
	if len(granted) < len(in.Topics) {
		c.logger.Debug("topics dropped by policy",
			zap.Strings("requested", in.Topics),
			zap.Strings("granted", granted))
	}
	rt.send(c, TopicsFrame{Type: TypeSubscribed, Topics: granted})
}

func (rt *Router) handleUnsubscribe(c *Connection, in *InboundFrame) {
	if len(in.Topics) == 0 {
		rt.sendError(c, CodeInvalidRequest, "topics required")
		return
	}
	rt.send(c, TopicsFrame{Type: TypeUnsubscribed, Topics: rt.topics.Unsubscribe(c, in.Topics)})
}

func (rt *Router) handleJoinRoom(c *Connection, in *InboundFrame) {
	if in.Room == "" {
		rt.sendError(c, CodeInvalidRequest, "room required")
		return
	}
	if err := rt.rooms.Join(c, in.Room); err != nil {
		if errors.Is(err, ErrRoomAccessDenied) {
			rt.sendError(c, CodeRoomAccessDenied, "access to room "+in.Room+" denied")
		}
		return
	}
	rt.send(c, RoomFrame{Type: TypeRoomJoined, Room: in.Room})
}

func (rt *Router) handleLeaveRoom(c *Connection, in *InboundFrame) {
	if in.Room == "" {
		rt.sendError(c, CodeInvalidRequest, "room required")
		return
	}
	if err := rt.rooms.Leave(c, in.Room); err != nil {
		rt.sendError(c, CodeInvalidRequest, "not a member of room "+in.Room)
		return
	}
	rt.send(c, RoomFrame{Type: TypeRoomLeft, Room: in.Room})
}

// handlePassThrough forwards the frame without blocking the read pump. At
// most maxInFlight forwards run per connection; beyond that the frame is refused.
func (rt *Router) handlePassThrough(c *Connection, in *InboundFrame) {
	payload := in.Data
	if len(payload) == 0 {
		payload = in.Payload
	}
	req := forward.Request{
		Type:         in.Type,
		ConnectionID: c.id,
		Identity:     c.Identity(),
		Payload:      payload,
	}

	started := c.forwards.TryGo(func() error {
		ctx, cancel := context.WithTimeout(c.ctx, rt.forwardTimeout)
		defer cancel()

		resp, err := rt.forwarder.Forward(ctx, req)
		if err != nil {
			if c.ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("forward failed", zap.String("type", req.Type), zap.Error(err))
			rt.handlerFailed(c, "request could not be processed")
			return nil
		}

		c.failures.Store(0)
		rt.send(c, PassThroughReplyFrame{Type: req.Type, Data: resp, Timestamp: rt.now().UnixMilli()})
		return nil
	})
	if !started {
		rt.sendError(c, CodeRateLimited, "too many pending requests")
	}
}

// handlerFailed reports an internal failure and closes the connection once
// maxFailures consecutive failures have been seen.
func (rt *Router) handlerFailed(c *Connection, msg string) {
	rt.sendError(c, CodeInternalError, msg)
	n := c.failures.Add(1)
	if rt.maxFailures > 0 && n >= rt.maxFailures {
		c.logger.Warn("closing connection after repeated handler failures", zap.Int32("failures", n))
		rt.reg.evict([]*Connection{c}, evictHandlerFailures)
	}
}

func (rt *Router) pong(c *Connection) {
	rt.send(c, PongFrame{Type: TypePong, Timestamp: rt.now().UnixMilli()})
}

func (rt *Router) sendError(c *Connection, code, msg string) {
	rt.reg.metrics.ErrorsSent.WithLabelValues(code).Inc()
	rt.send(c, ErrorFrame{Type: TypeError, Code: code, Message: msg})
}

func (rt *Router) send(c *Connection, frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		c.logger.Error("failed to encode frame", zap.Error(err))
		return
	}
	if err := rt.reg.Send(c, data); errors.Is(err, ErrSlowConsumer) {
		rt.reg.evict([]*Connection{c}, evictSlowConsumer)
	}
}
