// Command mqttconnector runs the gateway's secondary, non-core MQTT
// bridge: it mirrors published channel properties onto an MQTT broker and
// turns inbound command topics back into bus publishes. It is a sibling
// process to the primary FB-Bus gateway, not a dependency of it.
//
// Grounded on services/bridge/bridge.go's config-driven
// reconfigure/backoff/state-publish supervision loop, with the UART
// framed-placeholder transport replaced by an internal/upstream/exchange
// Link over github.com/eclipse/paho.mqtt.golang.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fbbus-gateway/bus"
	"fbbus-gateway/internal/config"
	"fbbus-gateway/internal/logging"
	"fbbus-gateway/internal/upstream/exchange"
	"fbbus-gateway/x/timex"
)

func main() {
	var configPath, connectorName string

	root := &cobra.Command{
		Use:   "mqttconnector",
		Short: "bridge gateway channel properties to an MQTT broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, connectorName)
		},
	}
	root.Flags().StringVar(&configPath, "config", "/etc/fbbus-gateway/config.yaml", "gateway config file")
	root.Flags().StringVar(&connectorName, "connector", "mqtt", "connector name within the config's connectors map")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	root.SetContext(ctx)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, connectorName string) error {
	log, syncLog, err := logging.New()
	if err != nil {
		return fmt.Errorf("mqttconnector: build logger: %w", err)
	}
	defer syncLog()
	b := bus.NewBus(64)
	conn := b.NewConnection("mqttconnector")

	cc, err := config.Connector(configPath, connectorName, nil)
	if err != nil {
		log.Warnf("mqttconnector: %v, using bus-published config instead", err)
	}

	svc := &Service{conn: conn, log: log, stateTopic: bus.Topic{"mqttconnector", "state"}}
	if cc.Type != "" {
		if mc, err := mqttConfigFromParams(cc.Params); err == nil {
			svc.reconfigure(ctx, mc)
		}
	}
	svc.run(ctx)
	return nil
}

// Config is the MQTT connector's configuration, decoded either from the
// gateway's YAML connectors map or from a live config/mqttconnector bus
// message (§6: connectors are reconfigurable without a restart).
type Config struct {
	Broker       string   `json:"broker" yaml:"broker"`
	ClientID     string   `json:"client_id" yaml:"client_id"`
	PublishTopic string   `json:"publish_topic" yaml:"publish_topic"`
	CommandTopic string   `json:"command_topic" yaml:"command_topic"`
	LocalFilters []string `json:"local_filters" yaml:"local_filters"`
}

func mqttConfigFromParams(params map[string]any) (Config, error) {
	b, err := json.Marshal(params)
	if err != nil {
		return Config{}, err
	}
	var c Config
	if err := json.Unmarshal(b, &c); err != nil {
		return Config{}, err
	}
	if c.PublishTopic == "" {
		c.PublishTopic = "fbbus/properties"
	}
	if c.CommandTopic == "" {
		c.CommandTopic = "fbbus/commands"
	}
	if len(c.LocalFilters) == 0 {
		c.LocalFilters = []string{"property"}
	}
	return c, nil
}

// Service supervises one MQTT link, reconfiguring it whenever a new
// config/mqttconnector message arrives (same shape as the teacher's
// bridge.Service).
type Service struct {
	conn       *bus.Connection
	log        logging.Logger
	stateTopic bus.Topic

	mu     sync.Mutex
	curRun context.CancelFunc
	curCfg atomic.Value
}

func (s *Service) run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(bus.ConfigTopic("mqttconnector"))
	defer s.conn.Unsubscribe(cfgSub)

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.stopCurrent()
			return
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.publishState("error", "config_subscription_closed", nil)
				return
			}
			cfg, err := decodeConfig(msg.Payload)
			if err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			s.reconfigure(ctx, cfg)
		}
	}
}

func (s *Service) stopCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
}

func (s *Service) reconfigure(parent context.Context, cfg Config) {
	s.mu.Lock()
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
	ctx, cancel := context.WithCancel(parent)
	s.curRun = cancel
	s.mu.Unlock()

	s.curCfg.Store(cfg)
	go s.runLink(ctx, cfg)
}

func (s *Service) runLink(ctx context.Context, cfg Config) {
	backoff := backoffSeq(250*time.Millisecond, 5*time.Second)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		client, err := dial(cfg)
		if err != nil {
			delay := backoff()
			s.publishState("degraded", "dial_failed_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		s.publishState("up", "link_established", nil)
		if err := s.handleLink(ctx, client, cfg); err != nil {
			client.Close(250)
			delay := backoff()
			s.publishState("degraded", "link_lost_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}
		return
	}
}

func dial(cfg Config) (exchange.Link, error) {
	return exchange.Dial(cfg.Broker, cfg.ClientID, 5*time.Second)
}

// handleLink owns the active MQTT session: it forwards matching local bus
// publishes to cfg.PublishTopic and turns inbound cfg.CommandTopic
// messages into local bus publishes on the two-token topic
// {"command", <full MQTT topic>}, mirroring the
// teacher's heartbeat+forward loop shape with MQTT standing in for the
// placeholder framed link.
func (s *Service) handleLink(ctx context.Context, client exchange.Link, cfg Config) error {
	unsubCmd, err := client.SubscribeTopic(ctx, cfg.CommandTopic+"/#", func(topic string, raw []byte) {
		var payload any
		if err := json.Unmarshal(raw, &payload); err != nil {
			payload = string(raw)
		}
		s.conn.Publish(s.conn.NewMessage(bus.Topic{"command", topic}, payload, false))
	})
	if err != nil {
		return fmt.Errorf("mqtt subscribe failed: %w", err)
	}
	defer unsubCmd()

	var subs []*bus.Subscription
	for _, f := range cfg.LocalFilters {
		sub := s.conn.Subscribe(bus.Topic{f, "#"})
		subs = append(subs, sub)
	}
	defer func() {
		for _, sub := range subs {
			s.conn.Unsubscribe(sub)
		}
	}()

	localCh := make(chan *bus.Message, 64)
	for _, sub := range subs {
		go func(sub *bus.Subscription) {
			for m := range sub.Channel() {
				select {
				case localCh <- m:
				case <-ctx.Done():
					return
				}
			}
		}(sub)
	}

	tick := time.NewTicker(10 * time.Second)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			if !client.Connected() {
				return fmt.Errorf("mqtt connection lost")
			}
		case m := <-localCh:
			if !client.Connected() {
				return fmt.Errorf("mqtt connection lost")
			}
			payload, err := json.Marshal(m.Payload)
			if err != nil {
				continue
			}
			topic := cfg.PublishTopic + "/" + topicString(m.Topic)
			if err := client.Publish(ctx, topic, payload); err != nil {
				s.log.Warnf("mqttconnector: publish to %s failed: %v", topic, err)
			}
		}
	}
}

func topicString(t bus.Topic) string {
	s := ""
	for i, tok := range t {
		if i > 0 {
			s += "/"
		}
		s += fmt.Sprintf("%v", tok)
	}
	return s
}

func decodeConfig(p any) (Config, error) {
	switch v := p.(type) {
	case Config:
		return v, nil
	case []byte:
		var c Config
		err := json.Unmarshal(v, &c)
		return c, err
	case string:
		var c Config
		err := json.Unmarshal([]byte(v), &c)
		return c, err
	case map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return Config{}, err
		}
		var c Config
		err = json.Unmarshal(b, &c)
		return c, err
	default:
		return Config{}, fmt.Errorf("unsupported config payload type: %T", p)
	}
}

func (s *Service) publishState(level, status string, err error) {
	payload := map[string]any{
		"level":  level,
		"status": status,
		"ts_ms":  timex.NowMs(),
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(s.stateTopic, payload, true))
}

func backoffSeq(min, max time.Duration) func() time.Duration {
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	if max < min {
		max = min
	}
	cur := min
	return func() time.Duration {
		d := cur
		cur *= 2
		if cur > max {
			cur = max
		}
		return d
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
