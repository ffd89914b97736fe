// Package config loads the gateway's YAML connector configuration and
// publishes it onto the bus as retained per-key messages, grounded on
// services/config/config.go's embedded-JSON publisher - swapped here for
// a file-backed YAML source read with gopkg.in/yaml.v3, since the target
// config format (§6) is YAML, not JSON.
package config

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"fbbus-gateway/bus"
	"fbbus-gateway/errcode"
)

// ctxPathKey is the context key carrying the config file path, mirroring
// the teacher's ctxDeviceKey convention for passing small bits of request
// scope through context instead of as a bare extra parameter.
type ctxPathKey struct{}

// WithPath attaches the config file path to ctx for Service.Start.
func WithPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, ctxPathKey{}, path)
}

// SerialParams is the connector.class == "serial" parameter set (§6),
// with the defaults the spec names when a key is absent.
type SerialParams struct {
	Address         byte   `yaml:"address"`
	SerialInterface string `yaml:"serial_interface"`
	BaudRate        int    `yaml:"baud_rate"`
}

// DefaultSerialParams returns the §6 defaults: address 254 (master),
// /dev/ttyAMA0, 38400 baud.
func DefaultSerialParams() SerialParams {
	return SerialParams{Address: 254, SerialInterface: "/dev/ttyAMA0", BaudRate: 38400}
}

// ConnectorConfig is one entry of the top-level connectors list (§6):
// type names the protocol ("fb_bus", "mqtt", ...), class selects the
// transport shape, and params is protocol/class specific.
type ConnectorConfig struct {
	Type   string         `yaml:"type"`
	Class  string         `yaml:"class"`
	Params map[string]any `yaml:"params"`
}

// Document is the top-level shape of a gateway YAML config file.
type Document struct {
	Connectors map[string]ConnectorConfig `yaml:"connectors"`
}

// ReadFunc loads raw config bytes for a path. Tests substitute this for a
// fixture instead of touching the filesystem, mirroring the teacher's
// EmbeddedConfigLookup override hook.
type ReadFunc func(path string) ([]byte, error)

// Load reads and parses a YAML config document via read (os.ReadFile when
// nil), applying SerialParams defaults to every "serial" class connector
// whose params omit them.
func Load(path string, read ReadFunc) (Document, error) {
	if read == nil {
		read = os.ReadFile
	}
	raw, err := read(path)
	if err != nil {
		return Document{}, &errcode.E{C: errcode.ConfigInvalid, Op: "config.Load", Err: err}
	}
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Document{}, &errcode.E{C: errcode.ConfigInvalid, Op: "config.Load", Err: err}
	}
	for name, c := range doc.Connectors {
		if c.Class != "serial" {
			continue
		}
		if c.Params == nil {
			c.Params = map[string]any{}
		}
		applySerialDefaults(c.Params)
		doc.Connectors[name] = c
	}
	return doc, nil
}

func applySerialDefaults(params map[string]any) {
	d := DefaultSerialParams()
	if _, ok := params["address"]; !ok {
		params["address"] = d.Address
	}
	if _, ok := params["serial_interface"]; !ok {
		params["serial_interface"] = d.SerialInterface
	}
	if _, ok := params["baud_rate"]; !ok {
		params["baud_rate"] = d.BaudRate
	}
}

// SerialParamsOf decodes a connector's params into SerialParams.
func SerialParamsOf(c ConnectorConfig) (SerialParams, error) {
	b, err := yaml.Marshal(c.Params)
	if err != nil {
		return SerialParams{}, err
	}
	var p SerialParams
	if err := yaml.Unmarshal(b, &p); err != nil {
		return SerialParams{}, err
	}
	return p, nil
}

// Service publishes a loaded config document onto the bus as retained
// per-connector messages under config/<name>, the pattern the rest of the
// gateway (and the mqttconnector binary) subscribes to for reconfigure
// notifications, same idiom as the teacher's config service.
type Service struct {
	read ReadFunc
}

func NewService(read ReadFunc) *Service { return &Service{read: read} }

// Start loads the config at the path carried in ctx (see WithPath) and
// publishes it; it returns any load error rather than only logging it,
// since an invalid gateway config is fatal (§9: ConfigInvalid).
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	path, _ := ctx.Value(ctxPathKey{}).(string)
	if path == "" {
		return &errcode.E{C: errcode.ConfigInvalid, Op: "config.Start", Msg: "missing config path"}
	}
	doc, err := Load(path, s.read)
	if err != nil {
		return err
	}
	for name, c := range doc.Connectors {
		msg := conn.NewMessage(bus.ConfigTopic(name), c, true)
		conn.Publish(msg)
	}
	return nil
}

// Connector resolves a single named connector from a config file, used by
// cmd entrypoints that only care about one connector rather than
// subscribing to the whole bus-published document.
func Connector(path, name string, read ReadFunc) (ConnectorConfig, error) {
	doc, err := Load(path, read)
	if err != nil {
		return ConnectorConfig{}, err
	}
	c, ok := doc.Connectors[name]
	if !ok {
		return ConnectorConfig{}, &errcode.E{C: errcode.ConfigInvalid, Op: "config.Connector", Msg: fmt.Sprintf("no connector named %q", name)}
	}
	return c, nil
}
