package mqtt

import (
	"encoding/json"
	"fmt"
)

// Maximum payload size for MQTT messages (1MB).
// This prevents resource exhaustion and aligns with typical broker limits.
const maxPayloadSize = 1 << 20 // 1MB

// eventQueueSize bounds the mirror's outbound buffer. Events beyond this
// are dropped; the broker is a best-effort mirror, not a durable log.
const eventQueueSize = 256

// Publish sends a message to the specified MQTT topic.
//
// QoS Levels:
//   - 0: At most once (fire and forget)
//   - 1: At least once (guaranteed delivery, may duplicate)
//   - 2: Exactly once (guaranteed, no duplicates, higher overhead)
//
// Retained Messages:
//   - When true, broker stores the last message for each topic
//   - New subscribers immediately receive the retained message
//   - Use for state topics (system status), not for events
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// eventEnvelope is the JSON shape of a mirrored event.
type eventEnvelope struct {
	Kind    string `json:"kind"`
	Payload any    `json:"payload"`
}

// EventMirror adapts the client to the status stream's sink interface.
// BroadcastEvent enqueues and returns immediately; a single worker drains
// the queue so a slow broker never backpressures command dispatch. When
// the queue is full the event is dropped.
type EventMirror struct {
	client *Client
	queue  chan eventEnvelope
}

// NewEventMirror creates the mirror and starts its publish worker.
// Stop the worker by closing the underlying client; publishes then fail
// fast with ErrNotConnected and the queue drains without effect.
func NewEventMirror(client *Client) *EventMirror {
	m := &EventMirror{
		client: client,
		queue:  make(chan eventEnvelope, eventQueueSize),
	}
	go m.run()
	return m
}

// BroadcastEvent implements the status stream sink. Never blocks.
func (m *EventMirror) BroadcastEvent(kind string, payload any) {
	select {
	case m.queue <- eventEnvelope{Kind: kind, Payload: payload}:
	default:
		if logger := m.client.getLogger(); logger != nil {
			logger.Warn("event mirror queue full, dropping event", "kind", kind)
		}
	}
}

func (m *EventMirror) run() {
	for env := range m.queue {
		data, err := json.Marshal(env)
		if err != nil {
			continue
		}
		topic := Topics{}.Event(env.Kind)
		if err := m.client.Publish(topic, data, byte(m.client.cfg.QoS), false); err != nil {
			if logger := m.client.getLogger(); logger != nil {
				logger.Warn("event mirror publish failed", "topic", topic, "error", err)
			}
		}
	}
}
