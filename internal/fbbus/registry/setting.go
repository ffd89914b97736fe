package registry

import (
	"github.com/google/uuid"

	"fbbus-gateway/internal/fbbus/packet"
)

// Setting is a persistent configuration slot, tagged by Kind instead of
// modelled as a device/register setting class hierarchy (§9 design notes:
// inheritance replaced with a tagged variant).
type Setting struct {
	ID       uuid.UUID
	DeviceID uuid.UUID

	Kind     packet.SettingKind
	Address  uint16
	Name     string
	DataType packet.DataType
	Value    any

	// Populated only when Kind == packet.RegisterSetting.
	RegisterAddress uint16
	RegisterType    packet.RegisterType
}

// Paging descriptor sizes used by PROVIDE_SETTINGS_STRUCTURE (§4.5).
const (
	DeviceSettingDescriptorSize   = 12
	RegisterSettingDescriptorSize = 15
)

// DescriptorSizeFor returns the paging descriptor size for a setting kind.
func DescriptorSizeFor(kind packet.SettingKind) int {
	if kind == packet.RegisterSetting {
		return RegisterSettingDescriptorSize
	}
	return DeviceSettingDescriptorSize
}

func NewDeviceSetting(deviceID uuid.UUID, address uint16, name string, dt packet.DataType) *Setting {
	return &Setting{ID: uuid.New(), DeviceID: deviceID, Kind: packet.DeviceSetting, Address: address, Name: name, DataType: dt}
}

func NewRegisterSetting(deviceID uuid.UUID, address uint16, name string, dt packet.DataType, regAddr uint16, regType packet.RegisterType) *Setting {
	return &Setting{
		ID: uuid.New(), DeviceID: deviceID, Kind: packet.RegisterSetting, Address: address, Name: name, DataType: dt,
		RegisterAddress: regAddr, RegisterType: regType,
	}
}
