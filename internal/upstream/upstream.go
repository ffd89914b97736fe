// Package upstream names the in-process collaborators the FB-Bus core talks
// to but does not implement: the persistent relational store, the pub/sub
// exchange transports, the in-memory property cache, and the trigger
// evaluator. Concrete implementations live in sibling packages
// (memstore, exchange); the core only ever depends on these interfaces.
package upstream

import "context"

// DeviceRecord mirrors the connector-parameters JSON blob described in the
// persisted schema (§6): address, max packet length, and the three
// capability flags reported by PROVIDE_ABOUT_INFO.
type DeviceRecord struct {
	ID                 string
	SerialNumber       string
	Address            byte
	MaxPacketLength    int
	DescriptionSupport bool
	SettingsSupport    bool
	PubSubSupport      bool
	State              string
}

// ChannelPropertyRecord is a register's upstream projection.
type ChannelPropertyRecord struct {
	ID       string
	DeviceID string
	Key      string
	Address  uint16
	Kind     string // "DI", "DO", "AI", "AO"
	DataType string
	Value    any
}

// DeviceConfigurationRecord is a device-scoped setting's upstream
// projection.
type DeviceConfigurationRecord struct {
	ID       string
	DeviceID string
	Name     string
	DataType string
	Value    any
}

// ChannelConfigurationRecord is a register-scoped setting's upstream
// projection.
type ChannelConfigurationRecord struct {
	ID              string
	DeviceID        string
	Name            string
	DataType        string
	RegisterAddress uint16
	RegisterKind    string
	Value           any
}

// Storage is the persistent relational store of configured devices,
// channels, and their properties/configurations. The core never reads from
// it directly on the hot path; it only reports mutations.
type Storage interface {
	AddOrEditDevice(ctx context.Context, d DeviceRecord) error
	AddOrEditChannelProperty(ctx context.Context, p ChannelPropertyRecord) error
	AddOrEditDeviceConfiguration(ctx context.Context, c DeviceConfigurationRecord) error
	AddOrEditChannelConfiguration(ctx context.Context, c ChannelConfigurationRecord) error
	DeleteChannelProperty(ctx context.Context, id string) error
	DeleteDeviceConfiguration(ctx context.Context, id string) error
	DeleteChannelConfiguration(ctx context.Context, id string) error
	SendChannelPropertyToStorage(ctx context.Context, propertyID string, newValue, previousValue any) error
}

// Exchange is a pluggable pub/sub transport bridging the gateway to the
// outside world (the non-core MQTT connector is one implementation).
type Exchange interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string, handler func(payload []byte)) (unsubscribe func(), err error)
}

// PropertyCache holds the last-known value of every channel property in
// memory, independent of the registry's own copy, so other subsystems can
// read it without touching the connector loop.
type PropertyCache interface {
	Get(propertyID string) (value any, ok bool)
	Set(propertyID string, value any)
}

// TriggerEvaluator reacts to property value changes, e.g. to fire
// conditions/actions configured against a property.
type TriggerEvaluator interface {
	Evaluate(ctx context.Context, propertyID string, value any)
}
