// Package packet implements the FB-Bus wire format: packet identifiers,
// the byte-level frame envelope, and typed-value conversion.
package packet

// ID identifies the kind of a frame (one byte on the wire).
type ID byte

const (
	PairDevice              ID = 0x01
	ReadSingleRegister      ID = 0x03
	ReadMultipleRegisters   ID = 0x05
	WriteSingleRegister     ID = 0x07
	WriteMultipleRegisters  ID = 0x09
	ReportSingleRegister    ID = 0x0B
	ReadOneConfiguration    ID = 0x0D
	WriteOneConfiguration   ID = 0x0F
	ReportOneConfiguration  ID = 0x11
	Ping                    ID = 0x13
	Pong                    ID = 0x15
	Hello                   ID = 0x17
	GetState                ID = 0x19
	SetState                ID = 0x1B
	ReportState             ID = 0x1D
	ControlDevice           ID = 0x1F
	PubSubBroadcast         ID = 0x21
	PubSubSubscribe         ID = 0x23
	PubSubUnsubscribe       ID = 0x25
	Exception               ID = 0x63
)

var packetNames = map[ID]string{
	PairDevice:             "PAIR_DEVICE",
	ReadSingleRegister:     "READ_SINGLE_REGISTER",
	ReadMultipleRegisters:  "READ_MULTIPLE_REGISTERS",
	WriteSingleRegister:    "WRITE_SINGLE_REGISTER",
	WriteMultipleRegisters: "WRITE_MULTIPLE_REGISTERS",
	ReportSingleRegister:   "REPORT_SINGLE_REGISTER",
	ReadOneConfiguration:   "READ_ONE_CONFIGURATION",
	WriteOneConfiguration:  "WRITE_ONE_CONFIGURATION",
	ReportOneConfiguration: "REPORT_ONE_CONFIGURATION",
	Ping:                   "PING",
	Pong:                   "PONG",
	Hello:                  "HELLO",
	GetState:               "GET_STATE",
	SetState:               "SET_STATE",
	ReportState:            "REPORT_STATE",
	ControlDevice:          "CONTROL_DEVICE",
	PubSubBroadcast:        "PUBSUB_BROADCAST",
	PubSubSubscribe:        "PUBSUB_SUBSCRIBE",
	PubSubUnsubscribe:      "PUBSUB_UNSUBSCRIBE",
	Exception:              "EXCEPTION",
}

// Name returns the packet identifier's protocol name, or "UNKNOWN" if it
// isn't one of the values in the table above.
func (id ID) Name() string {
	if n, ok := packetNames[id]; ok {
		return n
	}
	return "UNKNOWN"
}

// Content bytes.
const (
	Terminator byte = 0x00
	DataSpace  byte = 0x20
)

// Reserved bus addresses.
const (
	AddressMin    byte = 1
	AddressMax    byte = 253
	AddressMaster byte = 254
	Unassigned    byte = 255
)

// PairingCommand is a PAIR_DEVICE subcommand, carried as the first content
// byte of a pairing request/response frame.
type PairingCommand byte

const (
	ProvideAddress              PairingCommand = 0x01
	SetAddress                  PairingCommand = 0x02
	ProvideAboutInfo            PairingCommand = 0x03
	ProvideDeviceModel          PairingCommand = 0x04
	ProvideDeviceManufacturer   PairingCommand = 0x05
	ProvideDeviceVersion        PairingCommand = 0x06
	ProvideFirmwareManufacturer PairingCommand = 0x07
	ProvideFirmwareVersion      PairingCommand = 0x08
	ProvideRegistersSize        PairingCommand = 0x09
	ProvideRegistersStructure   PairingCommand = 0x0A
	ProvideSettingsSize         PairingCommand = 0x0B
	ProvideSettingsStructure    PairingCommand = 0x0C
	Finished                    PairingCommand = 0x0D
)

// Response is the same subcommand space, shifted into the 0x51-0x5D
// response range (request_value + 0x50).
func (c PairingCommand) Response() PairingCommand { return c + 0x50 }

// IsResponse reports whether c lies in the 0x51-0x5D response range.
func (c PairingCommand) IsResponse() bool { return c >= 0x51 && c <= 0x5D }

// Request returns the request-range counterpart of a response subcommand.
func (c PairingCommand) Request() PairingCommand {
	if c.IsResponse() {
		return c - 0x50
	}
	return c
}

// RegisterType is the DI/DO/AI/AO discriminator carried in most frames.
type RegisterType byte

const (
	DI RegisterType = 0x01
	DO RegisterType = 0x02
	AI RegisterType = 0x03
	AO RegisterType = 0x04
)

// IsDigital reports whether t is DI or DO (one bit per register on the wire).
func (t RegisterType) IsDigital() bool { return t == DI || t == DO }

// IsWritable reports whether registers of type t may be written.
func (t RegisterType) IsWritable() bool { return t == DO || t == AO }

// SettingKind discriminates device-scoped from register-scoped settings.
type SettingKind byte

const (
	DeviceSetting   SettingKind = 0x01
	RegisterSetting SettingKind = 0x02
)

// DataType is the wire encoding of a register or setting value.
type DataType byte

const (
	UInt8    DataType = 0x01
	UInt16   DataType = 0x02
	UInt32   DataType = 0x03
	Int8     DataType = 0x04
	Int16    DataType = 0x05
	Int32    DataType = 0x06
	Float32  DataType = 0x07
	Bool     DataType = 0x08
	Time     DataType = 0x09
	Date     DataType = 0x0A
	DateTime DataType = 0x0B
	Unknown  DataType = 0xFF
)

// Size returns the wire size in bytes for dt, or 0 for Unknown.
func (dt DataType) Size() int {
	switch dt {
	case UInt8, Int8, Bool:
		return 1
	case UInt16, Int16:
		return 2
	case UInt32, Int32, Float32, Time, Date, DateTime:
		return 4
	default:
		return 0
	}
}

// DeviceStateByte is the lifecycle byte a device reports over the wire in
// GET_STATE/REPORT_STATE frames.
type DeviceStateByte byte

const (
	WireRunning DeviceStateByte = 0x01
	WireStopped DeviceStateByte = 0x02
	WirePairing DeviceStateByte = 0x03
	WireError   DeviceStateByte = 0x04
)
