// Package pairing implements the FB-Bus address-assignment and structure
// interrogation state machine (§4.5), grounded on
// original_source/miniserver_gateway/connectors/fb_bus/utilities/pairing_helper.py.
package pairing

import (
	"context"
	"time"

	"fbbus-gateway/internal/fbbus/handlers"
	"fbbus-gateway/internal/fbbus/packet"
	"fbbus-gateway/internal/fbbus/registry"
	"fbbus-gateway/x/mathx"
)

const (
	MaxSearchingAttempts = 5
	SearchingDelay       = 6 * time.Second
	MaxTransmitAttempts  = handlers.MaxTransmitAttempts
	ResponseDelay        = 2 * time.Second
)

// Pairing is the connector's pairing-mode state: at most one device may be
// latched as the pairing subject at a time (invariant 6).
type Pairing struct {
	Enabled        bool
	Latched        *registry.Device
	searchAttempts int
	lastBroadcast  time.Time
}

// Enable turns on pairing mode and resets the broadcast attempt counter.
func (p *Pairing) Enable() {
	p.Enabled = true
	p.searchAttempts = 0
	p.lastBroadcast = time.Time{}
}

// Disable turns off pairing mode and releases any latched device.
func (p *Pairing) Disable() {
	p.Enabled = false
	p.Latched = nil
}

// nowOf returns deps.Now() when set, else the wall clock.
func nowOf(deps handlers.Deps) time.Time {
	if deps.Now != nil {
		return deps.Now()
	}
	return time.Now()
}

// Tick runs one pairing-mode step (§4.4 step 1, §4.5). When no device is
// latched it drives the search broadcast; when one is latched it resends
// the current cursor command if no reply is outstanding within budget.
func (p *Pairing) Tick(ctx context.Context, deps handlers.Deps) {
	if !p.Enabled {
		return
	}
	now := nowOf(deps)

	if p.Latched == nil {
		if p.searchAttempts >= MaxSearchingAttempts {
			p.Disable()
			return
		}
		if now.Sub(p.lastBroadcast) < SearchingDelay && p.searchAttempts > 0 {
			return
		}
		f := packet.Frame{ID: packet.PairDevice, Content: []byte{byte(packet.ProvideAddress)}}
		deps.TX.BroadcastPacket(ctx, f, 0)
		p.searchAttempts++
		p.lastBroadcast = now
		return
	}

	d := p.Latched
	if d.Comms.HasExpected && d.Comms.Attempts >= MaxTransmitAttempts {
		d.SetState(registry.StateLost, now)
		handlers.PropagateDeviceState(ctx, deps, d)
		p.Disable()
		return
	}
	if d.Comms.HasExpected && now.Sub(d.Comms.LastSend) < ResponseDelay {
		return
	}
	p.sendCursorCommand(ctx, d, deps)
}

// Receive dispatches a PAIR_DEVICE response to the step that handles it
// (§4.5). addr is the sender's reported bus address for
// RESPONSE_DEVICE_ADDRESS; it is ignored for subsequent exchanges once a
// device is latched, since those are addressed directly.
func (p *Pairing) Receive(ctx context.Context, deps handlers.Deps, addr byte, f packet.Frame) {
	if len(f.Content) == 0 {
		deps.Log.Warnf("pairing: empty PAIR_DEVICE content")
		return
	}
	cmd := packet.PairingCommand(f.Content[0]).Request()
	content := f.Content[1:]

	if cmd == packet.ProvideAddress {
		p.handleDeviceAddress(ctx, deps, content)
		return
	}
	if p.Latched == nil {
		deps.Log.Warnf("pairing: response for %v with no latched device", cmd)
		return
	}
	d := p.Latched

	switch cmd {
	case packet.SetAddress:
		d.SetState(registry.StateInit, nowOf(deps))
		d.Pairing.Command = packet.ProvideAboutInfo
	case packet.ProvideAboutInfo:
		p.handleAboutInfo(d, content)
	case packet.ProvideDeviceModel:
		d.HardwareModel, _ = packet.ParseText(content, 0)
		d.Pairing.Command = packet.ProvideDeviceManufacturer
	case packet.ProvideDeviceManufacturer:
		d.HardwareManufacturer, _ = packet.ParseText(content, 0)
		d.Pairing.Command = packet.ProvideDeviceVersion
	case packet.ProvideDeviceVersion:
		d.HardwareVersion, _ = packet.ParseText(content, 0)
		d.Pairing.Command = packet.ProvideFirmwareManufacturer
	case packet.ProvideFirmwareManufacturer:
		d.FirmwareManufacturer, _ = packet.ParseText(content, 0)
		d.Pairing.Command = packet.ProvideFirmwareVersion
	case packet.ProvideFirmwareVersion:
		d.FirmwareVersion, _ = packet.ParseText(content, 0)
		d.Pairing.Command = packet.ProvideRegistersSize
	case packet.ProvideRegistersSize:
		p.handleRegistersSize(ctx, deps, d, content)
	case packet.ProvideRegistersStructure:
		p.handleRegistersStructure(ctx, deps, d, content)
	case packet.ProvideSettingsSize:
		p.handleSettingsSize(d, content)
	case packet.ProvideSettingsStructure:
		p.handleSettingsStructure(deps, d, content)
	case packet.Finished:
		p.handleFinished(ctx, deps, d, content)
		return
	}
	d.ResetCommunication()
}

func (p *Pairing) sendCursorCommand(ctx context.Context, d *registry.Device, deps handlers.Deps) {
	var content []byte
	switch d.Pairing.Command {
	case packet.SetAddress:
		content = append([]byte{byte(packet.SetAddress), d.Address}, []byte(d.SerialNumber)...)
	case packet.ProvideRegistersStructure:
		content = []byte{byte(packet.ProvideRegistersStructure), byte(d.Pairing.RegisterCursor)}
		content = packet.PutUint16BE(content, d.Pairing.StructureAddr)
	case packet.ProvideSettingsStructure:
		content = []byte{byte(packet.ProvideSettingsStructure), byte(d.Pairing.SettingCursor.Kind)}
		content = packet.PutUint16BE(content, d.Pairing.SettingCursor.Address)
	default:
		content = []byte{byte(d.Pairing.Command)}
	}
	f := packet.Frame{ID: packet.PairDevice, Content: content}
	d.Comms.HasExpected = true
	d.Comms.Attempts++
	d.Comms.LastSend = nowOf(deps)
	deps.TX.SendPacket(ctx, d.Address, f, 0)
}

// handleDeviceAddress implements the RESPONSE_DEVICE_ADDRESS branch of §4.5.
func (p *Pairing) handleDeviceAddress(ctx context.Context, deps handlers.Deps, content []byte) {
	if len(content) < 1 {
		return
	}
	reportedAddr := content[0]
	serial, _ := packet.ParseText(content, 1)

	existing, known := deps.Reg.DeviceBySerial(serial)
	switch {
	case !known:
		d, err := deps.Reg.CreateDevice(serial, 0)
		if err != nil {
			deps.Log.Warnf("pairing: %v", err)
			return
		}
		d.State = registry.StateInit // CONNECTED in the source vocabulary
		d.Pairing.Command = packet.SetAddress
		p.Latched = d
	case existing.Address == packet.Unassigned:
		_ = deps.Reg.AdoptAddress(existing, reportedAddr)
		existing.Pairing.Command = packet.SetAddress
		p.Latched = existing
	case existing.Address == reportedAddr:
		existing.SetState(registry.StateInit, nowOf(deps))
		existing.Pairing.Command = packet.ProvideAboutInfo
		p.Latched = existing
	default:
		deps.Log.Warnf("pairing: duplicate serial %s with conflicting address", serial)
	}
}

// handleAboutInfo decodes the description/settings/pub-sub support flags
// and the max packet length. The settings-support bit is stored in
// SettingsSupport, so PROVIDE_SETTINGS_SIZE only runs when the device
// advertises settings support.
func (p *Pairing) handleAboutInfo(d *registry.Device, content []byte) {
	if len(content) < 4 {
		return
	}
	flags := content[0]
	d.DescriptionSupport = flags&0x01 != 0
	d.SettingsSupport = flags&0x02 != 0
	d.PubSubSupport = flags&0x04 != 0
	d.MaxPacketLength = int(packet.Uint16BE(content[1:3]))

	if d.DescriptionSupport {
		d.Pairing.Command = packet.ProvideDeviceModel
	} else {
		d.Pairing.Command = packet.ProvideRegistersSize
	}
}

func (p *Pairing) handleRegistersSize(ctx context.Context, deps handlers.Deps, d *registry.Device, content []byte) {
	if len(content) < 8 {
		return
	}
	counts := map[packet.RegisterType]int{
		packet.DI: int(packet.Uint16BE(content[0:2])),
		packet.DO: int(packet.Uint16BE(content[2:4])),
		packet.AI: int(packet.Uint16BE(content[4:6])),
		packet.AO: int(packet.Uint16BE(content[6:8])),
	}
	for _, t := range []packet.RegisterType{packet.DI, packet.DO, packet.AI, packet.AO} {
		_ = deps.Reg.ResizeRegisters(ctx, d.ID, t, counts[t])
	}

	if counts[packet.AI] > 0 {
		d.Pairing.Command = packet.ProvideRegistersStructure
		d.Pairing.RegisterCursor = packet.AI
		d.Pairing.StructureAddr = 0
		return
	}
	if counts[packet.AO] > 0 {
		d.Pairing.Command = packet.ProvideRegistersStructure
		d.Pairing.RegisterCursor = packet.AO
		d.Pairing.StructureAddr = 0
		return
	}
	advanceToSettingsOrFinish(d)
}

// RegistersStructurePageSize is the number of register descriptors that
// fit in one frame (§4.5, §8 scenario 6): max_packet_length - 5.
func RegistersStructurePageSize(maxPacketLength int) int {
	return mathx.Clamp(maxPacketLength-5, 1, maxPacketLength)
}

func (p *Pairing) handleRegistersStructure(ctx context.Context, deps handlers.Deps, d *registry.Device, content []byte) {
	if len(content) < 1 {
		return
	}
	typ := packet.RegisterType(content[0])
	descriptors := content[1:]
	addr := d.Pairing.StructureAddr
	for _, dt := range descriptors {
		if reg, ok := deps.Reg.RegisterOf(d.ID, typ, addr); ok {
			reg.DataType = packet.DataType(dt)
			deps.Reg.UpdateRegister(reg)
		}
		addr++
	}
	d.Pairing.StructureAddr = addr

	total := len(deps.Reg.RegistersOf(d.ID, typ))
	if int(addr) < total {
		return // still paging through this type
	}

	if typ == packet.AI && len(deps.Reg.RegistersOf(d.ID, packet.AO)) > 0 {
		d.Pairing.RegisterCursor = packet.AO
		d.Pairing.StructureAddr = 0
		return
	}
	advanceToSettingsOrFinish(d)
}

func advanceToSettingsOrFinish(d *registry.Device) {
	if d.SettingsSupport {
		d.Pairing.Command = packet.ProvideSettingsSize
		return
	}
	d.Pairing.Command = packet.Finished
}

func (p *Pairing) handleSettingsSize(d *registry.Device, content []byte) {
	if len(content) < 4 {
		return
	}
	deviceCount := int(packet.Uint16BE(content[0:2]))
	registerCount := int(packet.Uint16BE(content[2:4]))
	d.Pairing.DeviceSettingsTotal = deviceCount
	d.Pairing.RegisterSettingsTotal = registerCount

	d.Pairing.Command = packet.ProvideSettingsStructure
	if deviceCount > 0 {
		d.Pairing.SettingCursor = registry.SettingCursor{Kind: packet.DeviceSetting, Address: 0}
	} else if registerCount > 0 {
		d.Pairing.SettingCursor = registry.SettingCursor{Kind: packet.RegisterSetting, Address: 0}
	} else {
		d.Pairing.Command = packet.Finished
	}
}

// SettingsStructurePageSize is the per-packet descriptor count for
// PROVIDE_SETTINGS_STRUCTURE (§4.5): (max_packet_length - 5) / descriptor
// size, clamped to make progress per §8's boundary behaviour even when
// the division would otherwise yield zero.
func SettingsStructurePageSize(maxPacketLength int, kind packet.SettingKind) int {
	capacity := mathx.Clamp(maxPacketLength-5, 1, maxPacketLength)
	return mathx.Clamp(capacity/registry.DescriptorSizeFor(kind), 1, capacity)
}

func (p *Pairing) handleSettingsStructure(deps handlers.Deps, d *registry.Device, content []byte) {
	if len(content) < 1 {
		return
	}
	kind := packet.SettingKind(content[0])
	descriptorSize := registry.DescriptorSizeFor(kind)
	body := content[1:]

	addr := d.Pairing.SettingCursor.Address
	for off := 0; off+descriptorSize <= len(body); off += descriptorSize {
		desc := body[off : off+descriptorSize]
		name, _ := packet.ParseText(desc, 1)
		dt := packet.DataType(desc[0])
		if kind == packet.DeviceSetting {
			deps.Reg.CreateSetting(registry.NewDeviceSetting(d.ID, addr, name, dt))
		} else {
			regAddr := packet.Uint16BE(desc[descriptorSize-3 : descriptorSize-1])
			regType := packet.RegisterType(desc[descriptorSize-1])
			deps.Reg.CreateSetting(registry.NewRegisterSetting(d.ID, addr, name, dt, regAddr, regType))
		}
		addr++
	}
	d.Pairing.SettingCursor.Address = addr

	total := d.Pairing.DeviceSettingsTotal
	if kind == packet.RegisterSetting {
		total = d.Pairing.RegisterSettingsTotal
	}
	if int(addr) < total {
		return
	}
	if kind == packet.DeviceSetting && d.Pairing.RegisterSettingsTotal > 0 {
		d.Pairing.SettingCursor = registry.SettingCursor{Kind: packet.RegisterSetting, Address: 0}
		return
	}
	d.Pairing.Command = packet.Finished
}

func (p *Pairing) handleFinished(ctx context.Context, deps handlers.Deps, d *registry.Device, content []byte) {
	if len(content) >= 1 {
		d.SetState(registry.FromWireByte(packet.DeviceStateByte(content[0])), nowOf(deps))
	}
	d.Pairing = registry.PairingCursor{}
	d.ResetCommunication()
	handlers.PropagateDevice(ctx, deps, d)
	p.Disable()
}
