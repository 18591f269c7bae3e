// Package bridge feeds broadcasts published on NATS into the gateway, so
// coordinator services can reach connected clients without HTTP.
//
// Subjects are <prefix>.topic.<topic> and <prefix>.room.<room>; the message
// body is the JSON payload. Requests with a reply subject get {"delivered":n}.
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

var (
	// ErrUnknownSubject is returned for subjects outside the topic/room namespaces.
	ErrUnknownSubject = errors.New("unknown bridge subject")
	// ErrInvalidPayload is returned when a message body is not JSON.
	ErrInvalidPayload = errors.New("payload is not valid JSON")
)

// Publisher is the broadcast API the bridge drives.
type Publisher interface {
	BroadcastToTopic(topic string, payload any) (int, error)
	BroadcastToRoom(room string, payload any) (int, error)
}

// Bridge subscribes to <prefix>.> and republishes to the gateway.
type Bridge struct {
	nc     *nats.Conn
	sub    *nats.Subscription
	prefix string
	pub    Publisher
	logger *zap.Logger
}

// New creates a bridge without a NATS connection; use Connect for a live one.
func New(prefix string, pub Publisher, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{prefix: strings.TrimSuffix(prefix, "."), pub: pub, logger: logger}
}

// Connect dials NATS at url and subscribes to the bridge subjects.
func Connect(url, prefix string, pub Publisher, logger *zap.Logger) (*Bridge, error) {
	b := New(prefix, pub, logger)

	nc, err := nats.Connect(url,
		nats.Name("neurogrid-gateway"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				b.logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			b.logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	b.nc = nc

	b.sub, err = nc.Subscribe(b.prefix+".>", b.handle)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to subscribe to nats: %w", err)
	}

	b.logger.Info("nats bridge subscribed", zap.String("url", url), zap.String("subject", b.prefix+".>"))
	return b, nil
}

func (b *Bridge) handle(msg *nats.Msg) {
	delivered, err := b.route(msg.Subject, msg.Data)
	if err != nil {
		b.logger.Warn("dropping bridge message", zap.String("subject", msg.Subject), zap.Error(err))
	}
	if msg.Reply == "" {
		return
	}

	reply := map[string]any{"delivered": delivered}
	if err != nil {
		reply["error"] = err.Error()
	}
	body, _ := json.Marshal(reply)
	if err := msg.Respond(body); err != nil {
		b.logger.Debug("failed to answer bridge request", zap.Error(err))
	}
}

// route maps one subject and body onto a broadcast.
func (b *Bridge) route(subject string, data []byte) (int, error) {
	rest, ok := strings.CutPrefix(subject, b.prefix+".")
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSubject, subject)
	}
	if !json.Valid(data) {
		return 0, ErrInvalidPayload
	}
	payload := json.RawMessage(data)

	if topic, ok := strings.CutPrefix(rest, "topic."); ok && topic != "" {
		return b.pub.BroadcastToTopic(topic, payload)
	}
	if room, ok := strings.CutPrefix(rest, "room."); ok && room != "" {
		return b.pub.BroadcastToRoom(room, payload)
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownSubject, subject)
}

// Close unsubscribes and drains the NATS connection.
func (b *Bridge) Close() error {
	if b.nc == nil {
		return nil
	}
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	return b.nc.Drain()
}
