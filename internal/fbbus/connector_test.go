package fbbus

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"fbbus-gateway/internal/fbbus/handlers"
	"fbbus-gateway/internal/fbbus/packet"
	"fbbus-gateway/internal/fbbus/registry"
)

type fakeSender struct {
	sent []packet.Frame
}

func (s *fakeSender) SendPacket(_ context.Context, _ byte, f packet.Frame, _ time.Duration) bool {
	s.sent = append(s.sent, f)
	return true
}

func (s *fakeSender) BroadcastPacket(_ context.Context, f packet.Frame, _ time.Duration) bool {
	s.sent = append(s.sent, f)
	return true
}

func newTestConnector() (*Connector, *fakeSender) {
	c := New(Options{})
	tx := &fakeSender{}
	c.deps.TX = tx
	return c, tx
}

func TestHandleFrameRoutesCheckingReply(t *testing.T) {
	c, _ := newTestConnector()
	d, err := c.reg.CreateDevice("dev-1", 64)
	if err != nil {
		t.Fatalf("CreateDevice: %v", err)
	}

	c.handleFrame(d.Address, packet.Frame{ID: packet.ReportState, Content: []byte{byte(packet.WireRunning)}})

	if d.State != registry.StateRunning {
		t.Errorf("State = %v, want StateRunning", d.State)
	}
}

func TestHandleFrameUnknownAddressIsIgnored(t *testing.T) {
	c, _ := newTestConnector()
	// Should not panic despite no device at this address.
	c.handleFrame(200, packet.Frame{ID: packet.ReportState, Content: []byte{byte(packet.WireRunning)}})
}

func TestHandleFrameRoutesPairing(t *testing.T) {
	c, _ := newTestConnector()
	c.pairing.Enable()

	content := append([]byte{byte(packet.ProvideAddress)}, append([]byte{5}, []byte("new-serial")...)...)
	c.handleFrame(packet.Unassigned, packet.Frame{ID: packet.PairDevice, Content: content})

	if c.pairing.Latched == nil {
		t.Fatal("expected a device to be latched for pairing after RESPONSE_DEVICE_ADDRESS")
	}
	if c.pairing.Latched.SerialNumber != "new-serial" {
		t.Errorf("SerialNumber = %q, want new-serial", c.pairing.Latched.SerialNumber)
	}
}

func TestTickRoundRobinsDevices(t *testing.T) {
	c, _ := newTestConnector()
	if _, err := c.reg.CreateDevice("dev-1", 64); err != nil {
		t.Fatalf("CreateDevice: %v", err)
	}
	if _, err := c.reg.CreateDevice("dev-2", 64); err != nil {
		t.Fatalf("CreateDevice: %v", err)
	}

	c.tick(context.Background())
	first := len(c.visited)
	c.tick(context.Background())
	second := len(c.visited)

	if first != 1 || second != 2 {
		t.Errorf("visited set sizes = %d, %d; want 1, 2", first, second)
	}
}

func TestPublishUnknownRegisterErrors(t *testing.T) {
	c, _ := newTestConnector()
	if err := c.Publish(context.Background(), uuid.New(), handlers.Set(1)); err == nil {
		t.Error("expected an error publishing to an unknown property id")
	}
}
