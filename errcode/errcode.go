package errcode

// Code is a stable, bus-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK            Code = "ok"
	Unsupported   Code = "unsupported"
	InvalidParams Code = "invalid_params"

	Error Code = "error" // generic fallback

	// FB-Bus domain codes (§7). Transient link errors: the current
	// operation failed but a retry may succeed.
	LinkTimeout   Code = "link_timeout"
	LinkWriteFail Code = "link_write_fail"
	LinkClosed    Code = "link_closed"

	// Protocol errors: a received frame violates the wire contract.
	MalformedFrame  Code = "malformed_frame"
	UnknownPacketID Code = "unknown_packet_id"
	UnexpectedReply Code = "unexpected_reply"
	ChecksumInvalid Code = "checksum_invalid"

	// Semantic errors: well-formed but not valid given current state.
	NoAddressAvailable  Code = "no_address_available"
	DuplicateSerial     Code = "duplicate_serial"
	UnknownDevice       Code = "unknown_device"
	UnknownRegister     Code = "unknown_register"
	UnknownSetting      Code = "unknown_setting"
	RegisterNotWritable Code = "register_not_writable"
	DeviceLost          Code = "device_lost"
	DeviceNotReady      Code = "device_not_ready"

	// Programmer errors: invariant violations that indicate a bug,
	// not a runtime condition.
	InvariantViolated Code = "invariant_violated"

	// Fatal errors: the connector cannot continue running.
	TransportUnavailable Code = "transport_unavailable"
	ConfigInvalid        Code = "config_invalid"
)

// Optional wrapper when we want to keep context and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	if e.Msg != "" {
		return string(e.C) + ": " + e.Msg
	}
	return string(e.C)
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}

// MapDriverErr maps low-level driver errors to a Code.
// Extend the heuristics per platform/driver.
func MapDriverErr(err error) Code {
	if err == nil {
		return OK
	}
	return Error
}
