package handlers

import (
	"context"

	"fbbus-gateway/internal/fbbus/packet"
	"fbbus-gateway/internal/fbbus/registry"
)

// ReportingReply handles an unsolicited REPORT_SINGLE_REGISTER frame
// (§4.8): DI payloads are a 2-byte 0xFF00/else boolean, AI payloads are
// 4-byte little-endian values decoded per the register's data type.
// Unknown register types are dropped with a warning.
func ReportingReply(ctx context.Context, d *registry.Device, f packet.Frame, deps Deps) {
	if len(f.Content) < 3 {
		deps.Log.Warnf("reporting: short frame: %d bytes", len(f.Content))
		return
	}
	typ := packet.RegisterType(f.Content[0])
	addr := packet.Uint16BE(f.Content[1:3])
	payload := f.Content[3:]

	reg, ok := deps.Reg.RegisterOf(d.ID, typ, addr)
	if !ok {
		deps.Log.Warnf("reporting: unknown register %v@%d on device %s", typ, addr, d.SerialNumber)
		return
	}

	var value any
	switch typ {
	case packet.DI:
		if len(payload) >= 2 {
			value = packet.Uint16BE(payload) == 0xFF00
		}
	case packet.AI:
		value = packet.DecodeValue(reg.DataType, payload)
	default:
		deps.Log.Warnf("reporting: unsupported register type %v", typ)
		return
	}
	if value != nil {
		_ = deps.Reg.UpdateRegisterValue(ctx, reg, value)
	}
}
