package packet

import "testing"

func TestFrameRoundTrip(t *testing.T) {
	f := Frame{ID: ReadMultipleRegisters, Content: []byte{0x03, 0x00, 0x01, 0x00, 0x04}}
	raw := f.Encode()

	got, err := DecodeFrame(raw)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if got.ID != f.ID {
		t.Errorf("ID = %v, want %v", got.ID, f.ID)
	}
	if len(got.Content) != len(f.Content) {
		t.Fatalf("Content length = %d, want %d", len(got.Content), len(f.Content))
	}
	for i := range f.Content {
		if got.Content[i] != f.Content[i] {
			t.Errorf("Content[%d] = %#x, want %#x", i, got.Content[i], f.Content[i])
		}
	}
}

func TestDecodeFrameShort(t *testing.T) {
	if _, err := DecodeFrame([]byte{0x01}); err == nil {
		t.Error("expected error for a single-byte frame")
	}
}

func TestDecodeFrameMissingTerminator(t *testing.T) {
	if _, err := DecodeFrame([]byte{0x01, 0x02, 0x03}); err == nil {
		t.Error("expected error for a frame without a trailing terminator")
	}
}

func TestUint16BERoundTrip(t *testing.T) {
	buf := PutUint16BE(nil, 0x1234)
	if len(buf) != 2 || buf[0] != 0x12 || buf[1] != 0x34 {
		t.Fatalf("PutUint16BE = %#v, want [0x12 0x34]", buf)
	}
	if got := Uint16BE(buf); got != 0x1234 {
		t.Errorf("Uint16BE = %#x, want 0x1234", got)
	}
}

func TestUint16BEShortBuffer(t *testing.T) {
	if got := Uint16BE([]byte{0x01}); got != 0 {
		t.Errorf("Uint16BE of a short buffer = %#x, want 0", got)
	}
}

func TestEncodeDecodeValueRoundTrip(t *testing.T) {
	cases := []struct {
		dt  DataType
		in  any
		out any
	}{
		{Bool, true, true},
		{Bool, false, false},
		{UInt8, 200, uint64(200)},
		{Int8, -5, int64(-5)},
		{UInt16, 4000, uint64(4000)},
		{Int16, -1234, int64(-1234)},
		{UInt32, 70000, uint64(70000)},
		{Int32, -70000, int64(-70000)},
		{Float32, 3.5, float64(3.5)},
	}
	for _, c := range cases {
		buf := EncodeValue(c.dt, c.in)
		if len(buf) != c.dt.Size() {
			t.Errorf("EncodeValue(%v, %v) length = %d, want %d", c.dt, c.in, len(buf), c.dt.Size())
			continue
		}
		got := DecodeValue(c.dt, buf)
		if got != c.out {
			t.Errorf("DecodeValue(%v, Encode(%v)) = %v, want %v", c.dt, c.in, got, c.out)
		}
	}
}

func TestEncodeValueUnknown(t *testing.T) {
	if buf := EncodeValue(Unknown, 1); buf != nil {
		t.Errorf("EncodeValue(Unknown, ...) = %v, want nil", buf)
	}
	if buf := EncodeValue(UInt8, nil); buf != nil {
		t.Errorf("EncodeValue(UInt8, nil) = %v, want nil", buf)
	}
}

func TestDecodeValueShortBuffer(t *testing.T) {
	if v := DecodeValue(UInt32, []byte{0x01, 0x02}); v != nil {
		t.Errorf("DecodeValue with a short buffer = %v, want nil", v)
	}
}

func TestParseText(t *testing.T) {
	payload := []byte("ACME\x20Model-7\x00")
	text, end := ParseText(payload, 0)
	if text != "ACME" {
		t.Errorf("ParseText = %q, want %q", text, "ACME")
	}
	if end != 4 {
		t.Errorf("end = %d, want 4", end)
	}

	text2, end2 := ParseText(payload, end+1)
	if text2 != "Model-7" {
		t.Errorf("ParseText = %q, want %q", text2, "Model-7")
	}
	if end2 != len(payload)-1 {
		t.Errorf("end = %d, want %d", end2, len(payload)-1)
	}
}

func TestParseTextNoTerminator(t *testing.T) {
	payload := []byte("NOTERM")
	text, end := ParseText(payload, 0)
	if text != "NOTERM" {
		t.Errorf("ParseText = %q, want %q", text, "NOTERM")
	}
	if end != len(payload) {
		t.Errorf("end = %d, want %d", end, len(payload))
	}
}

func TestPairingCommandResponse(t *testing.T) {
	req := ProvideAboutInfo
	resp := req.Response()
	if !resp.IsResponse() {
		t.Errorf("%#x should be in the response range", byte(resp))
	}
	if got := resp.Request(); got != req {
		t.Errorf("Request() = %#x, want %#x", byte(got), byte(req))
	}
	if req.IsResponse() {
		t.Errorf("%#x should not be in the response range", byte(req))
	}
	if got := req.Request(); got != req {
		t.Errorf("Request() of a request-range command should be a no-op, got %#x", byte(got))
	}
}

func TestRegisterTypeClassification(t *testing.T) {
	if !DI.IsDigital() || !DO.IsDigital() {
		t.Error("DI and DO should be digital")
	}
	if AI.IsDigital() || AO.IsDigital() {
		t.Error("AI and AO should not be digital")
	}
	if DI.IsWritable() || AI.IsWritable() {
		t.Error("DI and AI should not be writable")
	}
	if !DO.IsWritable() || !AO.IsWritable() {
		t.Error("DO and AO should be writable")
	}
}
