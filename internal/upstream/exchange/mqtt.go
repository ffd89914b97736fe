// Package exchange implements upstream.Exchange over an MQTT broker using
// github.com/eclipse/paho.mqtt.golang, the pub/sub transport
// cmd/mqttconnector bridges the local bus through.
package exchange

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"fbbus-gateway/internal/upstream"
)

// Link is the surface cmd/mqttconnector needs beyond pub/sub: whether the
// broker session is still live, and how to tear it down. upstream.Exchange
// alone has no notion of connection liveness, since not every Exchange
// implementation is a single persistent session.
type Link interface {
	upstream.Exchange
	// SubscribeTopic is like Subscribe but also delivers the concrete
	// topic a wildcard subscription matched, which upstream.Exchange's
	// payload-only handler has no room for.
	SubscribeTopic(ctx context.Context, topic string, handler func(topic string, payload []byte)) (unsubscribe func(), err error)
	Connected() bool
	Close(graceMs uint)
}

// MQTT adapts a paho mqtt.Client to Link/upstream.Exchange: topics are
// opaque strings and payloads opaque bytes, exactly as the interface
// describes, with QoS pinned at 1 (at-least-once, matching the teacher's
// framed-link retry semantics).
type MQTT struct {
	client  mqtt.Client
	timeout time.Duration
}

var _ Link = (*MQTT)(nil)

// Dial connects a new client against broker/clientID, waiting up to
// timeout for the session to establish.
func Dial(broker, clientID string, timeout time.Duration) (*MQTT, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(false).
		SetConnectTimeout(timeout)
	client := mqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(timeout) {
		return nil, fmt.Errorf("exchange: connect to %s timed out", broker)
	}
	if err := tok.Error(); err != nil {
		return nil, err
	}
	return &MQTT{client: client, timeout: timeout}, nil
}

// Publish sends payload to topic at QoS 1, blocking until broker ack or
// timeout.
func (m *MQTT) Publish(_ context.Context, topic string, payload []byte) error {
	tok := m.client.Publish(topic, 1, false, payload)
	if !tok.WaitTimeout(m.timeout) {
		return fmt.Errorf("exchange: publish to %s timed out", topic)
	}
	return tok.Error()
}

// Subscribe registers handler against topic at QoS 1. The returned
// unsubscribe function blocks until the broker confirms the unsubscribe.
func (m *MQTT) Subscribe(_ context.Context, topic string, handler func(payload []byte)) (func(), error) {
	tok := m.client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Payload())
	})
	if !tok.WaitTimeout(m.timeout) || tok.Error() != nil {
		return nil, fmt.Errorf("exchange: subscribe to %s failed", topic)
	}
	return func() {
		m.client.Unsubscribe(topic).WaitTimeout(m.timeout)
	}, nil
}

// SubscribeTopic registers handler against a (possibly wildcarded) topic
// filter, passing each message's concrete matched topic alongside its
// payload.
func (m *MQTT) SubscribeTopic(_ context.Context, topic string, handler func(topic string, payload []byte)) (func(), error) {
	tok := m.client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !tok.WaitTimeout(m.timeout) || tok.Error() != nil {
		return nil, fmt.Errorf("exchange: subscribe to %s failed", topic)
	}
	return func() {
		m.client.Unsubscribe(topic).WaitTimeout(m.timeout)
	}, nil
}

// Connected reports whether the broker session is currently live.
func (m *MQTT) Connected() bool { return m.client.IsConnected() }

// Close disconnects, waiting up to graceMs milliseconds for in-flight
// publishes to settle.
func (m *MQTT) Close(graceMs uint) { m.client.Disconnect(graceMs) }
