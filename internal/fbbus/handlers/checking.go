package handlers

import (
	"context"

	"fbbus-gateway/internal/fbbus/packet"
	"fbbus-gateway/internal/fbbus/registry"
)

// CheckingTick runs one checking-handler step for a device (§4.6): attempt
// budget exhaustion, liveness ping, or initial state acquisition.
func CheckingTick(ctx context.Context, d *registry.Device, deps Deps) {
	now := deps.now()

	if d.Comms.HasExpected && d.Comms.Attempts >= MaxTransmitAttempts {
		d.SetState(registry.StateLost, now)
		propagateDeviceState(ctx, deps, d)
		return
	}

	if d.State == registry.StateLost {
		if now.Sub(d.LostSince) >= PingDelay && now.Sub(d.Comms.LastSend) >= PingDelay {
			sendChecking(ctx, d, deps, packet.Ping)
		}
		return
	}

	if d.Comms.HasExpected {
		return // one outstanding request per device (invariant 4)
	}

	if d.State == registry.StateUnknown {
		sendChecking(ctx, d, deps, packet.GetState)
	}
}

func sendChecking(ctx context.Context, d *registry.Device, deps Deps, id packet.ID) {
	f := packet.Frame{ID: id}
	d.Comms.HasExpected = true
	d.Comms.ExpectedReply = expectedReplyFor(id)
	d.Comms.Attempts++
	d.Comms.LastSend = deps.now()
	deps.TX.SendPacket(ctx, d.Address, f, 0)
}

func expectedReplyFor(sent packet.ID) packet.ID {
	switch sent {
	case packet.Ping:
		return packet.Pong
	case packet.GetState:
		return packet.ReportState
	default:
		return sent
	}
}

// CheckingReply handles PONG, GET_STATE/REPORT_STATE, and SET_STATE
// replies (§4.6).
func CheckingReply(ctx context.Context, d *registry.Device, f packet.Frame, deps Deps) {
	switch f.ID {
	case packet.Pong:
		d.SetAlive()
		propagateDeviceState(ctx, deps, d)

	case packet.GetState, packet.ReportState:
		if len(f.Content) != 1 {
			deps.Log.Warnf("checking: %s: expected 1-byte state, got %d", f.ID.Name(), len(f.Content))
			return
		}
		d.SetState(registry.FromWireByte(packet.DeviceStateByte(f.Content[0])), deps.now())
		d.ResetCommunication()
		propagateDeviceState(ctx, deps, d)

	case packet.SetState:
		// Validated but intentionally a no-op: the original handler checks
		// the payload length and otherwise does nothing, leaving state
		// changes to a subsequent REPORT_STATE. Preserved as-is (open
		// question in the source material).
		if len(f.Content) != 1 {
			deps.Log.Warnf("checking: SET_STATE: expected 1-byte state, got %d", len(f.Content))
		}
	}
}
