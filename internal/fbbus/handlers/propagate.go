package handlers

import (
	"context"

	"fbbus-gateway/internal/fbbus/packet"
	"fbbus-gateway/internal/fbbus/registry"
	"fbbus-gateway/internal/upstream"
)

// PropagateDeviceState reports a lifecycle-state change upstream (§4.6,
// §7 "device state changes are propagated so operators see health").
func PropagateDeviceState(ctx context.Context, deps Deps, d *registry.Device) {
	propagateDeviceState(ctx, deps, d)
}

func propagateDeviceState(ctx context.Context, deps Deps, d *registry.Device) {
	if deps.Storage == nil {
		return
	}
	_ = deps.Storage.AddOrEditDevice(ctx, toDeviceRecord(d))
}

// PropagateDevice announces a device's complete structure upstream -
// device record, every register, and every setting - used on pairing
// completion (§4.5: "triggers propagate_device(device)").
func PropagateDevice(ctx context.Context, deps Deps, d *registry.Device) {
	if deps.Storage == nil {
		return
	}
	_ = deps.Storage.AddOrEditDevice(ctx, toDeviceRecord(d))

	for _, typ := range readingTypeOrder {
		for _, reg := range deps.Reg.RegistersOf(d.ID, typ) {
			_ = deps.Storage.AddOrEditChannelProperty(ctx, upstream.ChannelPropertyRecord{
				ID:       reg.ID.String(),
				DeviceID: d.ID.String(),
				Key:      reg.Key,
				Address:  reg.Address,
				Kind:     registerTypeName(reg.Type),
				DataType: dataTypeName(reg.DataType),
				Value:    reg.Value,
			})
		}
	}

	for _, s := range deps.Reg.SettingsOf(d.ID, packet.DeviceSetting) {
		_ = deps.Storage.AddOrEditDeviceConfiguration(ctx, upstream.DeviceConfigurationRecord{
			ID: s.ID.String(), DeviceID: d.ID.String(), Name: s.Name, DataType: dataTypeName(s.DataType), Value: s.Value,
		})
	}
	for _, s := range deps.Reg.SettingsOf(d.ID, packet.RegisterSetting) {
		_ = deps.Storage.AddOrEditChannelConfiguration(ctx, upstream.ChannelConfigurationRecord{
			ID: s.ID.String(), DeviceID: d.ID.String(), Name: s.Name, DataType: dataTypeName(s.DataType),
			RegisterAddress: s.RegisterAddress, RegisterKind: registerTypeName(s.RegisterType), Value: s.Value,
		})
	}
}

func toDeviceRecord(d *registry.Device) upstream.DeviceRecord {
	return upstream.DeviceRecord{
		ID:                 d.ID.String(),
		SerialNumber:       d.SerialNumber,
		Address:            d.Address,
		MaxPacketLength:    d.MaxPacketLength,
		DescriptionSupport: d.DescriptionSupport,
		SettingsSupport:    d.SettingsSupport,
		PubSubSupport:      d.PubSubSupport,
		State:              d.State.String(),
	}
}

func registerTypeName(t packet.RegisterType) string {
	switch t {
	case packet.DI:
		return "DI"
	case packet.DO:
		return "DO"
	case packet.AI:
		return "AI"
	case packet.AO:
		return "AO"
	default:
		return "UNKNOWN"
	}
}

func dataTypeName(dt packet.DataType) string {
	switch dt {
	case packet.UInt8:
		return "U8"
	case packet.UInt16:
		return "U16"
	case packet.UInt32:
		return "U32"
	case packet.Int8:
		return "I8"
	case packet.Int16:
		return "I16"
	case packet.Int32:
		return "I32"
	case packet.Float32:
		return "F32"
	case packet.Bool:
		return "BOOL"
	default:
		return "UNKNOWN"
	}
}
