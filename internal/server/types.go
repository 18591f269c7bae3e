// Package server defines the gateway wire frames, error codes, and utility
// helpers that are reused across connection, router, and broadcast logic.
package server

import (
	"encoding/json"
	"strings"

	"github.com/mikagit25/neurogrid-sub000/internal/config"
)

// Error codes carried by error frames.
const (
	CodeInvalidJSON             = "INVALID_JSON"
	CodeUnknownMessageType      = "UNKNOWN_MESSAGE_TYPE"
	CodeTokenInvalid            = "TOKEN_INVALID"
	CodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	CodeRoomAccessDenied        = "ROOM_ACCESS_DENIED"
	CodeRateLimited             = "RATE_LIMITED"
	CodeInvalidRequest          = "INVALID_REQUEST"
	CodeInternalError           = "INTERNAL_ERROR"
)

// Server to client frame types.
const (
	TypeWelcome      = "welcome"
	TypeAuthSuccess  = "auth_success"
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypeRoomJoined   = "room_joined"
	TypeRoomLeft     = "room_left"
	TypeTopicMessage = "topic_message"
	TypeRoomMessage  = "room_message"
	TypePong         = "pong"
	TypeError        = "error"
)

// InboundKind is the closed set of frame kinds a client may send.
type InboundKind int

const (
	InboundUnknown InboundKind = iota
	InboundAuth
	InboundNodeAuth
	InboundSubscribe
	InboundUnsubscribe
	InboundJoinRoom
	InboundLeaveRoom
	InboundPing
	InboundPassThrough
)

var inboundNames = map[string]InboundKind{
	config.FrameAuth:        InboundAuth,
	config.FrameNodeAuth:    InboundNodeAuth,
	config.FrameSubscribe:   InboundSubscribe,
	config.FrameUnsubscribe: InboundUnsubscribe,
	config.FrameJoinRoom:    InboundJoinRoom,
	config.FrameLeaveRoom:   InboundLeaveRoom,
	config.FramePing:        InboundPing,
}

// String returns the metric label for the kind.
func (k InboundKind) String() string {
	for name, kind := range inboundNames {
		if kind == k {
			return name
		}
	}
	if k == InboundPassThrough {
		return "pass_through"
	}
	return "unknown"
}

// InboundFrame is the union of every client frame's fields.
type InboundFrame struct {
	Type    string          `json:"type"`
	Token   string          `json:"token,omitempty"`
	Kind    string          `json:"kind,omitempty"`
	Topics  []string        `json:"topics,omitempty"`
	Room    string          `json:"room,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// authData is the nested form `{"type":"auth","data":{"token":..,"type":"user"}}`.
// node_auth frames carry the same fields under `payload`, plus node_id.
type authData struct {
	Token  string `json:"token"`
	Type   string `json:"type"`
	Kind   string `json:"kind"`
	NodeID string `json:"node_id"`
}

// WelcomeFrame is sent once a connection becomes OPEN.
type WelcomeFrame struct {
	Type          string `json:"type"`
	ConnectionID  string `json:"connectionId"`
	ServerVersion string `json:"serverVersion"`
}

// AuthSuccessFrame acknowledges a successful authentication.
type AuthSuccessFrame struct {
	Type      string `json:"type"`
	SubjectID string `json:"subjectId"`
	Role      string `json:"role"`
	Kind      string `json:"kind"`
}

// TopicsFrame carries subscribed/unsubscribed topic lists.
type TopicsFrame struct {
	Type   string   `json:"type"`
	Topics []string `json:"topics"`
}

// RoomFrame carries room_joined/room_left acknowledgements.
type RoomFrame struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

// TopicMessageFrame wraps a payload published to a topic.
type TopicMessageFrame struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// RoomMessageFrame wraps a payload published to a room.
type RoomMessageFrame struct {
	Type      string          `json:"type"`
	Room      string          `json:"room"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// PongFrame answers a client ping. Timestamp is milliseconds since the epoch.
type PongFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorFrame reports a non-fatal protocol or authorization error.
type ErrorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PassThroughReplyFrame relays a collaborator's response to the sender.
type PassThroughReplyFrame struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
