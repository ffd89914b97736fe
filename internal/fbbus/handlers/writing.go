package handlers

import (
	"context"

	"fbbus-gateway/errcode"
	"fbbus-gateway/internal/fbbus/packet"
	"fbbus-gateway/internal/fbbus/registry"
)

// Command is an upstream write command: Set carries a value to write,
// ToggleCommand flips a DO register (a tagged variant rather than a bare
// sentinel string, so callers can't typo it).
type Command struct {
	toggle bool
	value  any
}

func Set(value any) Command { return Command{value: value} }
func ToggleCommand() Command { return Command{toggle: true} }

// Write turns an upstream set-point command for the already resolved
// register reg into a WRITE_SINGLE_REGISTER frame (§4.9); the
// property_id -> register lookup is done by Connector.Publish.
func Write(ctx context.Context, reg *registry.Register, d *registry.Device, cmd Command, deps Deps) error {
	if d.State != registry.StateRunning {
		deps.Log.Warnf("writing: device %s is not running (state %v), dropping write", d.SerialNumber, d.State)
		return errcode.DeviceNotReady
	}
	if !reg.IsWritable() {
		deps.Log.Warnf("writing: register %s is not writable (type %v)", reg.Key, reg.Type)
		return errcode.RegisterNotWritable
	}

	value := cmd.value
	if cmd.toggle {
		if reg.Type != packet.DO {
			return errcode.InvalidParams
		}
		cur, _ := reg.Value.(bool)
		value = !cur
	}

	var payload []byte
	switch reg.Type {
	case packet.DO:
		b, _ := value.(bool)
		if b {
			payload = []byte{0xFF, 0x00}
		} else {
			payload = []byte{0x00, 0x00}
		}
	case packet.AO:
		payload = packet.EncodeValue(reg.DataType, value)
		if payload == nil {
			return errcode.Unsupported
		}
	default:
		return errcode.RegisterNotWritable
	}

	content := []byte{byte(reg.Type)}
	content = packet.PutUint16BE(content, reg.Address)
	content = append(content, payload...)
	f := packet.Frame{ID: packet.WriteSingleRegister, Content: content}

	d.Comms.HasExpected = true
	d.Comms.ExpectedReply = packet.WriteSingleRegister
	d.Comms.Attempts++
	d.Comms.LastSend = deps.now()

	if !deps.TX.SendPacket(ctx, d.Address, f, WriteAckWindow) {
		// On send failure, clear transient comms so the next tick retries
		// (§4.9).
		d.ResetCommunication()
	}
	return nil
}

// WritingReply applies the echoed WRITE_SINGLE_REGISTER response to the
// registry (§4.9).
func WritingReply(ctx context.Context, d *registry.Device, reg *registry.Register, f packet.Frame, deps Deps) {
	if len(f.Content) < 3 {
		deps.Log.Warnf("writing: short response: %d bytes", len(f.Content))
		d.ResetCommunication()
		return
	}
	payload := f.Content[3:]
	var value any
	switch reg.Type {
	case packet.DO:
		if len(payload) >= 2 {
			value = packet.Uint16BE(payload) == 0xFF00
		}
	case packet.AO:
		value = packet.DecodeValue(reg.DataType, payload)
	}
	if value != nil {
		_ = deps.Reg.UpdateRegisterValue(ctx, reg, value)
	}
	d.ResetCommunication()
}
