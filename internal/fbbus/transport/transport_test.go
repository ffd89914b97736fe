package transport

import (
	"testing"

	"fbbus-gateway/internal/fbbus/packet"
)

// These cover the pure address-attribution bookkeeping without dialing an
// actual serial port; Open itself needs real (or emulated) hardware, which
// is outside what a unit test can exercise.

func TestPendingAddrFIFOOrder(t *testing.T) {
	tr := &Transport{}

	tr.pushPendingAddr(5)
	tr.pushPendingAddr(6)
	tr.pushPendingAddr(7)

	if got := tr.popPendingAddr(); got != 5 {
		t.Errorf("first pop = %d, want 5", got)
	}
	if got := tr.popPendingAddr(); got != 6 {
		t.Errorf("second pop = %d, want 6", got)
	}
	if got := tr.Pending(); got != 1 {
		t.Errorf("Pending() = %d, want 1", got)
	}
	if got := tr.popPendingAddr(); got != 7 {
		t.Errorf("third pop = %d, want 7", got)
	}
}

func TestPendingAddrEmptyReturnsUnassigned(t *testing.T) {
	tr := &Transport{}
	if got := tr.popPendingAddr(); got != packet.Unassigned {
		t.Errorf("pop from empty FIFO = %d, want Unassigned", got)
	}
}

func TestPendingCountNeverGoesNegative(t *testing.T) {
	tr := &Transport{}
	tr.popPendingAddr()
	tr.popPendingAddr()
	if got := tr.Pending(); got != 0 {
		t.Errorf("Pending() = %d, want 0", got)
	}
}
