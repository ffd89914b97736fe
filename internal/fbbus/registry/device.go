package registry

import (
	"time"

	"github.com/google/uuid"

	"fbbus-gateway/internal/fbbus/packet"
)

// State is a device's lifecycle state (§3).
type State int

const (
	StateUnknown State = iota
	StateInit
	StateRunning
	StateLost
	StateStopped
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "UNKNOWN"
	case StateInit:
		return "INIT"
	case StateRunning:
		return "RUNNING"
	case StateLost:
		return "LOST"
	case StateStopped:
		return "STOPPED"
	case StateDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// FromWireByte maps a device-reported lifecycle byte (§6) to a State.
// Anything other than RUNNING/STOPPED maps to StateUnknown, including the
// PAIRING byte (§8 boundary behaviour).
func FromWireByte(b packet.DeviceStateByte) State {
	switch b {
	case packet.WireRunning:
		return StateRunning
	case packet.WireStopped:
		return StateStopped
	default:
		return StateUnknown
	}
}

const DefaultSamplingPeriod = 10 * time.Second

// ReadingCursor is the device's position in the DI->DO->AI->AO register
// scan driven by the reading handler (§4.7).
type ReadingCursor struct {
	Type    packet.RegisterType
	Address uint16
}

// SettingCursor is the device's position in the DEVICE->REGISTER setting
// scan driven by the pairing handler (§4.5).
type SettingCursor struct {
	Kind    packet.SettingKind
	Address uint16
}

// PairingCursor tracks a device latched as the current pairing subject
// (§4.5). It is meaningful only while pairing mode is enabled and this
// device holds the pairing latch (invariant 6).
type PairingCursor struct {
	Command        packet.PairingCommand
	StructureAddr  uint16 // next start address for a paged structure request
	RegisterCursor packet.RegisterType
	SettingCursor  SettingCursor

	// DeviceSettingsTotal/RegisterSettingsTotal are the counts reported by
	// PROVIDE_SETTINGS_SIZE, used to know when paging through
	// PROVIDE_SETTINGS_STRUCTURE is complete (the registry's own count
	// can't be used: entries are created incrementally as each page
	// arrives, so it always equals the cursor, not the total).
	DeviceSettingsTotal   int
	RegisterSettingsTotal int
}

// Comms is the transient, per-tick communication state backing the
// expected-reply latch (invariant 4): a device may have at most one
// outstanding request.
type Comms struct {
	ExpectedReply packet.ID
	HasExpected   bool
	Attempts      int
	LastSend      time.Time
}

// Clear resets the expected-reply latch, releasing the device for a new
// request.
func (c *Comms) Clear() {
	c.HasExpected = false
	c.ExpectedReply = 0
	c.Attempts = 0
}

// Device is the in-memory model of one FB-Bus peripheral (§3).
type Device struct {
	ID           uuid.UUID
	SerialNumber string

	Address         byte // 1..253, or packet.Unassigned
	MaxPacketLength int

	DescriptionSupport bool
	SettingsSupport    bool
	PubSubSupport      bool

	HardwareManufacturer string
	HardwareModel        string
	HardwareVersion      string
	FirmwareManufacturer string
	FirmwareVersion      string

	State         State
	SamplingTime  time.Duration
	LastRead      time.Time
	LostSince     time.Time

	Comms   Comms
	Pairing PairingCursor
	Reading ReadingCursor
}

// NewDevice constructs a device with its address already assigned by the
// registry and sane defaults for everything else.
func NewDevice(serial string, address byte, maxPacketLength int) *Device {
	return &Device{
		ID:              uuid.New(),
		SerialNumber:    serial,
		Address:         address,
		MaxPacketLength: maxPacketLength,
		State:           StateUnknown,
		SamplingTime:    DefaultSamplingPeriod,
	}
}

// SetState applies a new lifecycle state, handling the LOST/RUNNING side
// effects described in §3: entering LOST clears transient comms and stamps
// lost-since; leaving LOST (via SetAlive) clears it again.
func (d *Device) SetState(s State, now time.Time) {
	d.State = s
	if s == StateLost {
		d.Comms.Clear()
		d.LostSince = now
	}
}

// SetAlive handles a successful PONG (§4.6): state returns to UNKNOWN,
// restarting state acquisition, lost-since clears, and the expected-reply
// latch clears.
func (d *Device) SetAlive() {
	d.State = StateUnknown
	d.LostSince = time.Time{}
	d.Comms.Clear()
}

// ResetCommunication clears the expected-reply latch after a handled
// response, so the next tick is free to issue a new request.
func (d *Device) ResetCommunication() {
	d.Comms.Clear()
}
