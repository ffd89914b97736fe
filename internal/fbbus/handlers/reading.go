package handlers

import (
	"context"

	"fbbus-gateway/internal/fbbus/packet"
	"fbbus-gateway/internal/fbbus/registry"
	"fbbus-gateway/x/mathx"
)

// readingTypeOrder is the DI->DO->AI->AO scan order (§4.7).
var readingTypeOrder = []packet.RegisterType{packet.DI, packet.DO, packet.AI, packet.AO}

// ReadingTick runs one reading-handler step for a RUNNING device (§4.7).
func ReadingTick(ctx context.Context, d *registry.Device, deps Deps) {
	if d.State != registry.StateRunning {
		return
	}
	now := deps.now()

	if d.Comms.HasExpected && now.Sub(d.Comms.LastSend) < ReadingDelay {
		return
	}
	if now.Sub(d.LastRead) < d.SamplingTime {
		return
	}

	typ, addr, ok := advanceCursorToPopulated(d, deps)
	if !ok {
		d.Reading = registry.ReadingCursor{Type: readingTypeOrder[0]}
		d.LastRead = now
		return
	}

	length := chunkLength(typ, d.MaxPacketLength, countRemaining(d, deps, typ, addr))

	content := []byte{byte(typ)}
	content = packet.PutUint16BE(content, addr)
	content = packet.PutUint16BE(content, uint16(length))
	f := packet.Frame{ID: packet.ReadMultipleRegisters, Content: content}

	d.Comms.HasExpected = true
	d.Comms.ExpectedReply = packet.ReadMultipleRegisters
	d.Comms.Attempts++
	d.Comms.LastSend = now
	deps.TX.SendPacket(ctx, d.Address, f, 0)
}

// chunkLength computes how many registers fit in one frame (§4.7):
// digital types pack 8 registers per byte; analog types use 4 bytes each.
func chunkLength(typ packet.RegisterType, maxPacketLength, remaining int) int {
	capacity := mathx.Clamp(maxPacketLength-7, 1, maxPacketLength)
	if typ.IsDigital() {
		capacity *= 8
	} else {
		capacity = mathx.Clamp(capacity/4, 1, capacity)
	}
	if remaining > 0 && remaining < capacity {
		return remaining
	}
	return capacity
}

func countRemaining(d *registry.Device, deps Deps, typ packet.RegisterType, fromAddr uint16) int {
	regs := deps.Reg.RegistersOf(d.ID, typ)
	n := 0
	for _, r := range regs {
		if r.Address >= fromAddr {
			n++
		}
	}
	return n
}

// advanceCursorToPopulated walks the DI->DO->AI->AO order starting at the
// device's current cursor, skipping register types with no registers,
// until it finds one to read or exhausts the order.
func advanceCursorToPopulated(d *registry.Device, deps Deps) (packet.RegisterType, uint16, bool) {
	startIdx := 0
	for i, t := range readingTypeOrder {
		if t == d.Reading.Type {
			startIdx = i
			break
		}
	}
	for i := 0; i < len(readingTypeOrder); i++ {
		t := readingTypeOrder[(startIdx+i)%len(readingTypeOrder)]
		if len(deps.Reg.RegistersOf(d.ID, t)) > 0 {
			addr := uint16(0)
			if t == d.Reading.Type {
				addr = d.Reading.Address
			}
			return t, addr, true
		}
	}
	return 0, 0, false
}

// ReadingReply parses a READ_MULTIPLE_REGISTERS response (§4.7, §8
// scenario 2): digital payloads are bit-unpacked LSB-first per byte,
// analog payloads are decoded 4 bytes per register via the register's
// data type.
func ReadingReply(ctx context.Context, d *registry.Device, f packet.Frame, deps Deps) {
	if len(f.Content) < 4 {
		deps.Log.Warnf("reading: short response: %d bytes", len(f.Content))
		return
	}
	typ := packet.RegisterType(f.Content[0])
	startAddr := packet.Uint16BE(f.Content[1:3])
	byteCount := int(f.Content[3])
	payload := f.Content[4:]
	// Permissive per the open question in §9: trust the actual payload
	// length over the declared byte count when they disagree.
	_ = byteCount

	if typ.IsDigital() {
		decodeDigitalBurst(ctx, d, deps, typ, startAddr, payload)
	} else {
		decodeAnalogBurst(ctx, d, deps, typ, startAddr, payload)
	}

	advanceReadingCursor(d, deps, typ, startAddr, payload, typ.IsDigital())
	d.ResetCommunication()
}

func decodeDigitalBurst(ctx context.Context, d *registry.Device, deps Deps, typ packet.RegisterType, startAddr uint16, payload []byte) {
	addr := startAddr
	for _, b := range payload {
		for bit := 0; bit < 8; bit++ {
			val := (b>>uint(bit))&1 != 0
			if reg, ok := deps.Reg.RegisterOf(d.ID, typ, addr); ok {
				_ = deps.Reg.UpdateRegisterValue(ctx, reg, val)
			}
			addr++
		}
	}
}

func decodeAnalogBurst(ctx context.Context, d *registry.Device, deps Deps, typ packet.RegisterType, startAddr uint16, payload []byte) {
	addr := startAddr
	for off := 0; off+4 <= len(payload); off += 4 {
		if reg, ok := deps.Reg.RegisterOf(d.ID, typ, addr); ok {
			v := packet.DecodeValue(reg.DataType, payload[off:off+4])
			_ = deps.Reg.UpdateRegisterValue(ctx, reg, v)
		}
		addr++
	}
}

func advanceReadingCursor(d *registry.Device, deps Deps, typ packet.RegisterType, startAddr uint16, payload []byte, digital bool) {
	n := len(payload) * 8
	if !digital {
		n = len(payload) / 4
	}
	nextAddr := startAddr + uint16(n)
	regs := deps.Reg.RegistersOf(d.ID, typ)
	maxAddr := uint16(0)
	for _, r := range regs {
		if r.Address > maxAddr {
			maxAddr = r.Address
		}
	}
	if len(regs) == 0 || nextAddr > maxAddr {
		// Roll over to the next populated type in the scan order; after
		// the last one, end the pass and stamp LastRead.
		idx := 0
		for i, t := range readingTypeOrder {
			if t == typ {
				idx = i
				break
			}
		}
		for _, next := range readingTypeOrder[idx+1:] {
			if len(deps.Reg.RegistersOf(d.ID, next)) > 0 {
				d.Reading = registry.ReadingCursor{Type: next, Address: 0}
				return
			}
		}
		d.Reading = registry.ReadingCursor{Type: readingTypeOrder[0]}
		d.LastRead = deps.now()
		return
	}
	d.Reading = registry.ReadingCursor{Type: typ, Address: nextAddr}
}
