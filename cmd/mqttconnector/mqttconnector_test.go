package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"fbbus-gateway/bus"
	"fbbus-gateway/internal/logging"
)

// fakeLink is a minimal exchange.Link stand-in so handleLink's
// forward/subscribe logic can be exercised without a live broker.
type fakeLink struct {
	mu         sync.Mutex
	published  []fakePublish
	connected  bool
	cmdHandler func(topic string, payload []byte)
}

type fakePublish struct {
	topic   string
	payload []byte
}

func (f *fakeLink) Publish(_ context.Context, topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, fakePublish{topic, payload})
	return nil
}

func (f *fakeLink) Subscribe(_ context.Context, _ string, _ func(payload []byte)) (func(), error) {
	return func() {}, nil
}

func (f *fakeLink) SubscribeTopic(_ context.Context, _ string, handler func(topic string, payload []byte)) (func(), error) {
	f.cmdHandler = handler
	return func() {}, nil
}

func (f *fakeLink) Connected() bool { return f.connected }
func (f *fakeLink) Close(uint)      {}

func (f *fakeLink) snapshot() []fakePublish {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakePublish(nil), f.published...)
}

func TestHandleLinkForwardsLocalPublishesToTheBroker(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("mqttconnector")
	svc := &Service{conn: conn, log: logging.Nop{}, stateTopic: bus.ConfigTopic("state")}
	client := &fakeLink{connected: true}
	cfg := Config{PublishTopic: "fbbus/properties", CommandTopic: "fbbus/commands", LocalFilters: []string{"property"}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.handleLink(ctx, client, cfg) }()

	// handleLink subscribes asynchronously; give it a moment before publishing.
	time.Sleep(20 * time.Millisecond)
	conn.Publish(conn.NewMessage(bus.Topic{"property", "temp"}, 21.5, false))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(client.snapshot()) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	got := client.snapshot()
	if len(got) != 1 {
		t.Fatalf("published = %d messages, want 1", len(got))
	}
	if got[0].topic != "fbbus/properties/property/temp" {
		t.Errorf("topic = %q, want fbbus/properties/property/temp", got[0].topic)
	}
}

func TestHandleLinkForwardsBrokerCommandsToTheBus(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("mqttconnector")
	sub := conn.Subscribe(bus.Topic{"command", "#"})
	svc := &Service{conn: conn, log: logging.Nop{}, stateTopic: bus.ConfigTopic("state")}
	client := &fakeLink{connected: true}
	cfg := Config{PublishTopic: "fbbus/properties", CommandTopic: "fbbus/commands", LocalFilters: []string{"property"}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- svc.handleLink(ctx, client, cfg) }()

	deadline := time.Now().Add(time.Second)
	for client.cmdHandler == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if client.cmdHandler == nil {
		t.Fatal("handleLink never registered a command handler")
	}
	client.cmdHandler("fbbus/commands/relay-1", []byte(`{"set":true}`))

	select {
	case msg := <-sub.Channel():
		if msg.Topic[1] != "fbbus/commands/relay-1" {
			t.Errorf("forwarded topic = %v, want fbbus/commands/relay-1", msg.Topic[1])
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the forwarded command")
	}
}

func TestMqttConfigFromParamsAppliesDefaults(t *testing.T) {
	cfg, err := mqttConfigFromParams(map[string]any{"broker": "tcp://localhost:1883"})
	if err != nil {
		t.Fatalf("mqttConfigFromParams: %v", err)
	}
	if cfg.PublishTopic != "fbbus/properties" {
		t.Errorf("PublishTopic = %q, want the default", cfg.PublishTopic)
	}
	if cfg.CommandTopic != "fbbus/commands" {
		t.Errorf("CommandTopic = %q, want the default", cfg.CommandTopic)
	}
	if len(cfg.LocalFilters) != 1 || cfg.LocalFilters[0] != "property" {
		t.Errorf("LocalFilters = %v, want [property]", cfg.LocalFilters)
	}
}

func TestMqttConfigFromParamsRespectsOverrides(t *testing.T) {
	cfg, err := mqttConfigFromParams(map[string]any{
		"broker":        "tcp://localhost:1883",
		"publish_topic": "custom/out",
		"command_topic": "custom/in",
		"local_filters": []string{"alpha", "beta"},
	})
	if err != nil {
		t.Fatalf("mqttConfigFromParams: %v", err)
	}
	if cfg.PublishTopic != "custom/out" {
		t.Errorf("PublishTopic = %q, want custom/out", cfg.PublishTopic)
	}
	if len(cfg.LocalFilters) != 2 {
		t.Errorf("LocalFilters = %v, want 2 entries", cfg.LocalFilters)
	}
}

func TestDecodeConfigFromMap(t *testing.T) {
	cfg, err := decodeConfig(map[string]any{"broker": "tcp://host:1883", "client_id": "gw-1"})
	if err != nil {
		t.Fatalf("decodeConfig: %v", err)
	}
	if cfg.Broker != "tcp://host:1883" || cfg.ClientID != "gw-1" {
		t.Errorf("decoded config = %+v", cfg)
	}
}

func TestDecodeConfigFromJSONString(t *testing.T) {
	cfg, err := decodeConfig(`{"broker":"tcp://host:1883"}`)
	if err != nil {
		t.Fatalf("decodeConfig: %v", err)
	}
	if cfg.Broker != "tcp://host:1883" {
		t.Errorf("Broker = %q, want tcp://host:1883", cfg.Broker)
	}
}

func TestDecodeConfigUnsupportedType(t *testing.T) {
	if _, err := decodeConfig(42); err == nil {
		t.Error("expected an error decoding an unsupported payload type")
	}
}

func TestTopicString(t *testing.T) {
	got := topicString(bus.Topic{"property", "dev-1", "chan-0"})
	if got != "property/dev-1/chan-0" {
		t.Errorf("topicString = %q, want property/dev-1/chan-0", got)
	}
}

func TestStopCurrentWithNoActiveRunIsNoop(t *testing.T) {
	s := &Service{log: logging.Nop{}}
	s.stopCurrent()
}

func TestReconfigureCancelsPreviousRun(t *testing.T) {
	b := bus.NewBus(8)
	s := &Service{
		conn:       b.NewConnection("test"),
		log:        logging.Nop{},
		stateTopic: bus.Topic{"mqttconnector", "state"},
	}

	var firstCanceled bool
	s.mu.Lock()
	s.curRun = func() { firstCanceled = true }
	s.mu.Unlock()

	s.reconfigure(context.Background(), Config{
		Broker:       "tcp://127.0.0.1:1",
		PublishTopic: "out",
		CommandTopic: "in",
	})

	if !firstCanceled {
		t.Error("expected reconfigure to cancel the previously active run")
	}
	s.stopCurrent()
}

func TestBackoffSeqDoublesUpToMax(t *testing.T) {
	next := backoffSeq(100*time.Millisecond, 500*time.Millisecond)

	got := []time.Duration{next(), next(), next(), next(), next()}
	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		500 * time.Millisecond,
		500 * time.Millisecond,
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("backoff[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
