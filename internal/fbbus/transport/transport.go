// Package transport owns the half-duplex serial link (§4.2): framing raw
// bytes from go.bug.st/serial into FB-Bus frames, queuing outgoing sends,
// and dispatching inbound frames back to the connector via a callback.
//
// Byte staging between the serial reader goroutine and the frame scanner
// is a teacher x/shmring.Ring (originally built to buffer UART RX on a
// TinyGo target) repurposed here as a host-side SPSC byte ring: the reader
// goroutine is the sole producer, the scanner goroutine (started by Open)
// is the sole consumer.
package transport

import (
	"context"
	"sync"
	"time"

	"go.bug.st/serial"

	"fbbus-gateway/errcode"
	"fbbus-gateway/internal/fbbus/packet"
	"fbbus-gateway/internal/logging"
	"fbbus-gateway/x/shmring"
)

// ReceiveFunc is the transport's single inbound dispatch callback (§4.2).
// addr is the bus address the reply is attributed to, or packet.Unassigned
// during pairing broadcast replies.
type ReceiveFunc func(addr byte, frame packet.Frame)

// Options configures the serial link (§6 defaults: /dev/ttyAMA0 @ 38400).
type Options struct {
	Port     string
	Baud     int
	RingSize int // power of two, defaults to 4096
}

// Transport owns the serial port exclusively (§5): only the connector
// loop that opened it calls Send/Broadcast/RunOnce.
type Transport struct {
	log  logging.Logger
	port serial.Port

	ring       *shmring.Ring
	ringHandle shmring.Handle
	readBuf    []byte

	mu          sync.Mutex
	pendingAddr []byte // FIFO of addresses awaiting a reply, in send order
	txQueued    int    // frames sent but not yet matched with a reply

	receive ReceiveFunc

	closeOnce sync.Once
	stopReader chan struct{}
	readerDone chan struct{}
}

// Open dials the serial port and starts the reader/scanner goroutines.
// receive is invoked from the scanner goroutine as frames are decoded;
// it must not block.
func Open(opts Options, log logging.Logger, receive ReceiveFunc) (*Transport, error) {
	if opts.RingSize == 0 {
		opts.RingSize = 4096
	}
	mode := &serial.Mode{BaudRate: opts.Baud}
	port, err := serial.Open(opts.Port, mode)
	if err != nil {
		return nil, &errcode.E{C: errcode.TransportUnavailable, Op: "transport.Open", Err: err}
	}
	_ = port.SetReadTimeout(100 * time.Millisecond)

	ring := shmring.New(opts.RingSize)
	t := &Transport{
		log:        log,
		port:       port,
		ring:       ring,
		ringHandle: shmring.Register(ring),
		readBuf:    make([]byte, 512),
		receive:    receive,
		stopReader: make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	go t.readLoop()
	go t.scanLoop()
	return t, nil
}

// RingHandle identifies this transport's RX staging ring in the shmring
// registry, for metrics to watch its fill level without importing this
// package.
func (t *Transport) RingHandle() shmring.Handle { return t.ringHandle }

// Close stops the background goroutines and closes the serial port.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.stopReader)
		<-t.readerDone
		shmring.Close(t.ringHandle)
	})
	return t.port.Close()
}

// readLoop is the ring's sole producer: it copies bytes off the serial
// port into the ring as they arrive.
func (t *Transport) readLoop() {
	defer close(t.readerDone)
	for {
		select {
		case <-t.stopReader:
			return
		default:
		}
		n, err := t.port.Read(t.readBuf)
		if err != nil {
			t.log.Warnf("transport: read error: %v", err)
			return
		}
		if n == 0 {
			continue
		}
		off := 0
		for off < n {
			w := t.ring.TryWriteFrom(t.readBuf[off:n])
			if w == 0 {
				// Ring full; drop and let the protocol layer's attempt
				// budget recover via retransmission (§7: transient link
				// errors are logged, never fatal).
				t.log.Warnf("transport: ring full, dropping %d bytes", n-off)
				break
			}
			off += w
		}
	}
}

// scanLoop is the ring's sole consumer: it scans for Terminator-delimited
// frames and dispatches each to receive.
func (t *Transport) scanLoop() {
	var frame []byte
	buf := make([]byte, 256)
	for {
		select {
		case <-t.stopReader:
			return
		case <-t.ring.Readable():
		case <-time.After(50 * time.Millisecond):
		}
		for {
			n := t.ring.TryReadInto(buf)
			if n == 0 {
				break
			}
			for _, b := range buf[:n] {
				frame = append(frame, b)
				if b == packet.Terminator {
					t.dispatch(frame)
					frame = nil
				}
			}
		}
	}
}

func (t *Transport) dispatch(raw []byte) {
	f, err := packet.DecodeFrame(raw)
	if err != nil {
		t.log.Warnf("transport: %v", err)
		return
	}
	addr := t.popPendingAddr()
	t.receive(addr, f)
}

func (t *Transport) pushPendingAddr(addr byte) {
	t.mu.Lock()
	t.pendingAddr = append(t.pendingAddr, addr)
	t.txQueued++
	t.mu.Unlock()
}

func (t *Transport) popPendingAddr() byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pendingAddr) == 0 {
		return packet.Unassigned
	}
	addr := t.pendingAddr[0]
	t.pendingAddr = t.pendingAddr[1:]
	if t.txQueued > 0 {
		t.txQueued--
	}
	return addr
}

// SendPacket transmits payload to a specific device address (§4.2). If
// wait > 0 it then busy-polls for up to wait until Pending() reaches 0.
// It returns false only when the port write fails, and true otherwise,
// whether or not a reply arrived — the protocol layer above owns its own
// retransmit budget and does not depend on this signal for correctness.
func (t *Transport) SendPacket(ctx context.Context, addr byte, f packet.Frame, wait time.Duration) bool {
	return t.send(ctx, addr, f, wait)
}

// BroadcastPacket transmits payload to every device (§4.2).
func (t *Transport) BroadcastPacket(ctx context.Context, f packet.Frame, wait time.Duration) bool {
	return t.send(ctx, packet.Unassigned, f, wait)
}

func (t *Transport) send(ctx context.Context, addr byte, f packet.Frame, wait time.Duration) bool {
	raw := f.Encode()
	t.pushPendingAddr(addr)
	if _, err := t.port.Write(raw); err != nil {
		t.log.Warnf("transport: write failed: %v", err)
		return false
	}
	if wait <= 0 {
		return true
	}
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return true
		default:
		}
		if t.Pending() == 0 {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return true
}

// Pending returns the number of frames sent but not yet matched with a
// reply, used by the scheduler to decide whether to advance (§4.4).
func (t *Transport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.txQueued
}

// RunOnce is the transport's single cooperative step (§4.2): with this
// implementation, reads and writes already run on their own goroutines, so
// RunOnce only reports the pending count for the scheduler to act on.
func (t *Transport) RunOnce() int {
	return t.Pending()
}
