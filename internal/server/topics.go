package server

// TopicIndex maps topics to subscribed connections. Membership lives in the
// registry so disconnects purge it under the same lock.
type TopicIndex struct {
	reg *Registry
}

// NewTopicIndex returns the topic view over reg.
func NewTopicIndex(reg *Registry) *TopicIndex {
	return &TopicIndex{reg: reg}
}

// Subscribe grants each requested topic that passes the policy for c's
// current identity. Denied topics are dropped without error. The result
// preserves request order, holds no duplicates, and is never nil.
func (t *TopicIndex) Subscribe(c *Connection, requested []string) []string {
	r := t.reg
	r.mu.Lock()
	defer r.mu.Unlock()

	granted := make([]string, 0, len(requested))
	if !c.isLive() {
		return granted
	}

	id := c.Identity()
	seen := make(map[string]struct{}, len(requested))
	for _, topic := range requested {
		if _, dup := seen[topic]; dup {
			continue
		}
		seen[topic] = struct{}{}

		if !topicAllowed(id, topic) {
			continue
		}
		c.topics[topic] = struct{}{}
		r.topics.add(topic, c)
		granted = append(granted, topic)
	}
	return granted
}

// Unsubscribe removes c from the listed topics and returns those it was
// actually subscribed to.
func (t *TopicIndex) Unsubscribe(c *Connection, topics []string) []string {
	r := t.reg
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := make([]string, 0, len(topics))
	for _, topic := range topics {
		if _, ok := c.topics[topic]; !ok {
			continue
		}
		delete(c.topics, topic)
		r.topics.remove(topic, c)
		removed = append(removed, topic)
	}
	return removed
}

// Subscribers returns the number of connections subscribed to topic.
func (t *TopicIndex) Subscribers(topic string) int {
	t.reg.mu.RLock()
	defer t.reg.mu.RUnlock()
	return len(t.reg.topics[topic])
}
