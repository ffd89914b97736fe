// Package registry is the in-memory Device/Register/Setting model the
// connector orchestrator exclusively owns (§4.3); handlers mutate it only
// through the methods below, never by touching its maps directly.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"fbbus-gateway/errcode"
	"fbbus-gateway/internal/fbbus/packet"
	"fbbus-gateway/internal/upstream"
)

// Registry is the device/register/setting store plus its reverse
// indices, grounded on the teacher's dev map[string]Device pattern in its
// HAL core loop, generalised from "one entry per capability" to "one
// entry per device, with nested registers and settings."
type Registry struct {
	mu sync.RWMutex

	devices    map[uuid.UUID]*Device
	bySerial   map[string]uuid.UUID
	byAddress  map[byte]uuid.UUID
	registers  map[uuid.UUID]*Register
	regsOf     map[uuid.UUID][]uuid.UUID // deviceID -> register ids
	settings   map[uuid.UUID]*Setting
	settingsOf map[uuid.UUID][]uuid.UUID // deviceID -> setting ids

	storage upstream.Storage
	cache   upstream.PropertyCache
}

func New(storage upstream.Storage, cache upstream.PropertyCache) *Registry {
	return &Registry{
		devices:    make(map[uuid.UUID]*Device),
		bySerial:   make(map[string]uuid.UUID),
		byAddress:  make(map[byte]uuid.UUID),
		registers:  make(map[uuid.UUID]*Register),
		regsOf:     make(map[uuid.UUID][]uuid.UUID),
		settings:   make(map[uuid.UUID]*Setting),
		settingsOf: make(map[uuid.UUID][]uuid.UUID),
		storage:    storage,
		cache:      cache,
	}
}

// ---- Device lookups ----

func (r *Registry) Device(id uuid.UUID) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	return d, ok
}

func (r *Registry) DeviceBySerial(serial string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.bySerial[serial]
	if !ok {
		return nil, false
	}
	return r.devices[id], true
}

func (r *Registry) DeviceByAddress(addr byte) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byAddress[addr]
	if !ok {
		return nil, false
	}
	return r.devices[id], true
}

// Devices returns a stable-order snapshot of all known devices, used by
// the scheduler's round-robin visited-set walk (§4.4).
func (r *Registry) Devices() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// ---- Device mutators ----

// CreateDevice allocates the lowest free address in 1..253 (§4.3) and adds
// a new device at it. Returns errcode.NoAddressAvailable when the address
// space is exhausted.
func (r *Registry) CreateDevice(serial string, maxPacketLength int) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bySerial[serial]; exists {
		return nil, errcode.DuplicateSerial
	}

	addr, ok := r.lowestFreeAddressLocked()
	if !ok {
		return nil, errcode.NoAddressAvailable
	}

	d := NewDevice(serial, addr, maxPacketLength)
	r.devices[d.ID] = d
	r.bySerial[serial] = d.ID
	r.byAddress[addr] = d.ID
	return d, nil
}

func (r *Registry) lowestFreeAddressLocked() (byte, bool) {
	for a := int(packet.AddressMin); a <= int(packet.AddressMax); a++ {
		if _, taken := r.byAddress[byte(a)]; !taken {
			return byte(a), true
		}
	}
	return 0, false
}

// AdoptAddress reassigns an existing device (previously unassigned) to a
// newly reported address, used when a pairing reply's address disagrees
// with the stored one (§4.5).
func (r *Registry) AdoptAddress(d *Device, newAddr byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, taken := r.byAddress[newAddr]; taken && owner != d.ID {
		return errcode.DuplicateSerial
	}
	delete(r.byAddress, d.Address)
	d.Address = newAddr
	r.byAddress[newAddr] = d.ID
	return nil
}

// UpdateDevice is a no-op: mutations applied to d (a pointer obtained
// from Device/DeviceBySerial/DeviceByAddress) are already visible through
// the registry, and nothing is sent upstream. It is kept for symmetry
// with the other mutators, as an explicit "I changed this" call.
func (r *Registry) UpdateDevice(_ *Device) {}

// ---- Register lookups ----

func (r *Registry) RegistersOf(deviceID uuid.UUID, typ packet.RegisterType) []*Register {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Register
	for _, rid := range r.regsOf[deviceID] {
		reg := r.registers[rid]
		if reg.Type == typ {
			out = append(out, reg)
		}
	}
	return out
}

func (r *Registry) RegisterOf(deviceID uuid.UUID, typ packet.RegisterType, address uint16) (*Register, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rid := range r.regsOf[deviceID] {
		reg := r.registers[rid]
		if reg.Type == typ && reg.Address == address {
			return reg, true
		}
	}
	return nil, false
}

// Register looks up a register by its stable id, the identifier used
// across the upstream interfaces (§8) and by callers publishing a
// set-point command to a specific channel property.
func (r *Registry) Register(id uuid.UUID) (*Register, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.registers[id]
	return reg, ok
}

// ---- Register mutators ----

func (r *Registry) CreateRegister(deviceID uuid.UUID, key string, address uint16, typ packet.RegisterType, dt packet.DataType) *Register {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg := NewRegister(deviceID, key, address, typ, dt)
	r.registers[reg.ID] = reg
	r.regsOf[deviceID] = append(r.regsOf[deviceID], reg.ID)
	return reg
}

func (r *Registry) UpdateRegister(reg *Register) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registers[reg.ID] = reg
}

// DeleteRegister removes a register and emits the matching upstream
// delete-channel-property notification (§4.3).
func (r *Registry) DeleteRegister(ctx context.Context, reg *Register) error {
	r.mu.Lock()
	ids := r.regsOf[reg.DeviceID]
	for i, id := range ids {
		if id == reg.ID {
			r.regsOf[reg.DeviceID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	delete(r.registers, reg.ID)
	r.mu.Unlock()

	if r.storage == nil {
		return nil
	}
	return r.storage.DeleteChannelProperty(ctx, reg.ID.String())
}

// UpdateRegisterValue sets a register's value and emits
// send_channel_property_to_storage(property_id, new, previous) upstream
// (§4.3), which is also how the process-wide property cache learns of the
// change.
func (r *Registry) UpdateRegisterValue(ctx context.Context, reg *Register, newValue any) error {
	r.mu.Lock()
	previous := reg.Value
	reg.Value = newValue
	r.mu.Unlock()

	if r.cache != nil {
		r.cache.Set(reg.ID.String(), newValue)
	}
	if r.storage == nil {
		return nil
	}
	return r.storage.SendChannelPropertyToStorage(ctx, reg.ID.String(), newValue, previous)
}

// ---- Setting lookups ----

func (r *Registry) SettingsOf(deviceID uuid.UUID, kind packet.SettingKind) []*Setting {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Setting
	for _, sid := range r.settingsOf[deviceID] {
		s := r.settings[sid]
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) SettingOf(deviceID uuid.UUID, kind packet.SettingKind, address uint16) (*Setting, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, sid := range r.settingsOf[deviceID] {
		s := r.settings[sid]
		if s.Kind == kind && s.Address == address {
			return s, true
		}
	}
	return nil, false
}

// ---- Setting mutators ----

func (r *Registry) CreateSetting(s *Setting) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[s.ID] = s
	r.settingsOf[s.DeviceID] = append(r.settingsOf[s.DeviceID], s.ID)
}

func (r *Registry) UpdateSetting(s *Setting) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[s.ID] = s
}

// DeleteSetting removes a setting and emits the matching upstream delete
// (device- or register-configuration, depending on Kind).
func (r *Registry) DeleteSetting(ctx context.Context, s *Setting) error {
	r.mu.Lock()
	ids := r.settingsOf[s.DeviceID]
	for i, id := range ids {
		if id == s.ID {
			r.settingsOf[s.DeviceID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	delete(r.settings, s.ID)
	r.mu.Unlock()

	if r.storage == nil {
		return nil
	}
	if s.Kind == packet.RegisterSetting {
		return r.storage.DeleteChannelConfiguration(ctx, s.ID.String())
	}
	return r.storage.DeleteDeviceConfiguration(ctx, s.ID.String())
}

// ResizeRegisters reconciles a register count reported by
// PROVIDE_REGISTERS_SIZE (§4.5): new registers are created with a
// provisional data type (BOOL for digital, Unknown for analog) if the
// reported count exceeds the current one, and trailing registers are
// deleted if it's smaller.
func (r *Registry) ResizeRegisters(ctx context.Context, deviceID uuid.UUID, typ packet.RegisterType, count int) error {
	existing := r.RegistersOf(deviceID, typ)
	if len(existing) == count {
		return nil
	}
	if len(existing) < count {
		provisional := packet.Unknown
		if typ.IsDigital() {
			provisional = packet.Bool
		}
		for addr := len(existing); addr < count; addr++ {
			key := fmt.Sprintf("%d-%d", typ, addr)
			r.CreateRegister(deviceID, key, uint16(addr), typ, provisional)
		}
		return nil
	}
	for _, reg := range existing {
		if int(reg.Address) >= count {
			if err := r.DeleteRegister(ctx, reg); err != nil {
				return err
			}
		}
	}
	return nil
}
