package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrEmptyTarget is returned when a broadcast names no topic or room.
var ErrEmptyTarget = errors.New("broadcast target is empty")

const evictSlowConsumer = "slow consumer"

// Publisher fans server-initiated payloads out to topic subscribers and room
// members. It is the only path by which other services reach clients.
type Publisher struct {
	reg    *Registry
	now    func() time.Time
	logger *zap.Logger
}

// NewPublisher creates a Publisher over reg.
func NewPublisher(reg *Registry, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{reg: reg, now: time.Now, logger: logger}
}

// BroadcastToTopic wraps payload in a topic_message frame and enqueues it to
// every current subscriber of topic, returning how many accepted it.
func (p *Publisher) BroadcastToTopic(topic string, payload any) (int, error) {
	if topic == "" {
		return 0, ErrEmptyTarget
	}
	data, err := marshalPayload(payload)
	if err != nil {
		return 0, err
	}
	frame, err := json.Marshal(TopicMessageFrame{
		Type:      TypeTopicMessage,
		Topic:     topic,
		Data:      data,
		Timestamp: p.now().UnixMilli(),
	})
	if err != nil {
		return 0, fmt.Errorf("encode topic message: %w", err)
	}

	delivered, slow := p.reg.fanOut(p.reg.topics, topic, frame)
	p.finish("topic", topic, delivered, slow)
	return delivered, nil
}

// BroadcastToRoom is BroadcastToTopic for room members, using room_message frames.
func (p *Publisher) BroadcastToRoom(room string, payload any) (int, error) {
	if room == "" {
		return 0, ErrEmptyTarget
	}
	data, err := marshalPayload(payload)
	if err != nil {
		return 0, err
	}
	frame, err := json.Marshal(RoomMessageFrame{
		Type:      TypeRoomMessage,
		Room:      room,
		Data:      data,
		Timestamp: p.now().UnixMilli(),
	})
	if err != nil {
		return 0, fmt.Errorf("encode room message: %w", err)
	}

	delivered, slow := p.reg.fanOut(p.reg.rooms, room, frame)
	p.finish("room", room, delivered, slow)
	return delivered, nil
}

func (p *Publisher) finish(target, name string, delivered int, slow []*Connection) {
	p.reg.metrics.Deliveries.WithLabelValues(target).Add(float64(delivered))
	if len(slow) > 0 {
		p.logger.Warn("evicting slow consumers",
			zap.String(target, name),
			zap.Int("count", len(slow)))
		p.reg.evict(slow, evictSlowConsumer)
	}
	p.logger.Debug("broadcast delivered",
		zap.String(target, name),
		zap.Int("delivered", delivered))
}

// marshalPayload passes raw JSON through untouched and encodes anything else.
func marshalPayload(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid JSON")
		}
		return v, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		return data, nil
	}
}
