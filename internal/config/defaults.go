package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultPort               = ":8080"
	DefaultPath               = "/ws"
	DefaultServerVersion      = "1.0.0"
	DefaultMaxMessageSize     = 64 * 1024
	DefaultMaxConnections     = 10000
	DefaultSendBufferSize     = 256
	DefaultHeartbeatInterval  = 30 * time.Second
	DefaultWriteTimeout       = 10 * time.Second
	DefaultMaxHandlerFailures = 5
	DefaultShutdownTimeout    = 30 * time.Second
	DefaultLogLevel           = "info"
	DefaultRateLimitBurst     = 20
	DefaultRateLimitRefill    = time.Second
	DefaultAdminRole          = "admin"
	DefaultTokenTTL           = 24 * time.Hour
	DefaultForwardTimeout     = 10 * time.Second
	DefaultForwardMaxInFlight = 8
	DefaultNATSSubjectPrefix  = "neurogrid.gateway"
)

// Frame types the gateway handles itself.
const (
	FrameAuth        = "auth"
	FrameNodeAuth    = "node_auth"
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameJoinRoom    = "join_room"
	FrameLeaveRoom   = "leave_room"
	FramePing        = "ping"
)

// ReservedFrameTypes lists every frame type the router handles. None of them
// may be configured as a pass-through type.
var ReservedFrameTypes = []string{
	FrameAuth,
	FrameNodeAuth,
	FrameSubscribe,
	FrameUnsubscribe,
	FrameJoinRoom,
	FrameLeaveRoom,
	FramePing,
}

// IsReservedFrameType reports whether t is handled by the gateway itself.
func IsReservedFrameType(t string) bool {
	for _, r := range ReservedFrameTypes {
		if r == t {
			return true
		}
	}
	return false
}

// DefaultPassThroughTypes are the node agent's report frames relayed to the coordinator.
var DefaultPassThroughTypes = []string{
	"task_accepted",
	"task_rejected",
	"task_status",
	"task_result",
	"task_error",
	"node_status",
}

func defaultConfig() Config {
	cfg := Config{
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
	}
	cfg.Sanitize()
	return cfg
}
