package registry

import (
	"github.com/google/uuid"

	"fbbus-gateway/internal/fbbus/packet"
)

// Register is an addressable value slot on a device (§3).
type Register struct {
	ID       uuid.UUID
	Key      string // stable string key "<type>-<address>", e.g. "1-3"
	Channel  string // channel id, grouping several registers
	DeviceID uuid.UUID

	Address  uint16
	Type     packet.RegisterType
	DataType packet.DataType
	Value    any // numeric, bool, or nil
}

// SizeBytes returns the wire size derived from DataType (invariant 3).
func (r *Register) SizeBytes() int { return r.DataType.Size() }

// IsWritable reports whether r accepts writes (invariant 5): only DO and
// AO registers do.
func (r *Register) IsWritable() bool { return r.Type.IsWritable() }

// NewRegister constructs a register with a newly generated id.
func NewRegister(deviceID uuid.UUID, key string, address uint16, typ packet.RegisterType, dt packet.DataType) *Register {
	return &Register{
		ID:       uuid.New(),
		Key:      key,
		DeviceID: deviceID,
		Address:  address,
		Type:     typ,
		DataType: dt,
	}
}
