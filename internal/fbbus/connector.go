// Package fbbus wires the registry, transport, handlers, and pairing
// state machine into the cooperative scheduler described in the system
// overview: one goroutine, one tick at a time, no concurrent device
// access outside the expected-reply latch.
package fbbus

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"fbbus-gateway/errcode"
	"fbbus-gateway/internal/fbbus/handlers"
	"fbbus-gateway/internal/fbbus/packet"
	"fbbus-gateway/internal/fbbus/pairing"
	"fbbus-gateway/internal/fbbus/registry"
	"fbbus-gateway/internal/fbbus/transport"
	"fbbus-gateway/internal/logging"
	"fbbus-gateway/internal/metrics"
	"fbbus-gateway/internal/upstream"
)

// TickInterval is the scheduler's yield between ticks. Each wakeup runs
// one tick: a pairing step while pairing is enabled, otherwise one
// device's checking+reading round.
const TickInterval = time.Millisecond

// Options configures a Connector.
type Options struct {
	Port     string
	Baud     int
	RingSize int
	Log      logging.Logger
	Storage  upstream.Storage
	Cache    upstream.PropertyCache
	Metrics  *metrics.Metrics // optional; nil disables instrumentation
}

// Connector is the FB-Bus engine's orchestrator: it owns the registry and
// transport, drives the scheduler loop, and routes inbound frames to the
// handler or pairing step that expects them.
type Connector struct {
	log     logging.Logger
	reg     *registry.Registry
	txOpts  transport.Options
	tx      *transport.Transport
	deps    handlers.Deps
	pairing pairing.Pairing
	metrics *metrics.Metrics

	mu      sync.Mutex
	visited map[byte]bool

	stop chan struct{}
	done chan struct{}
}

// New constructs a Connector. Call Open to dial the serial port and start
// the scheduler loop.
func New(opts Options) *Connector {
	if opts.Log == nil {
		opts.Log = logging.Nop{}
	}
	reg := registry.New(opts.Storage, opts.Cache)
	c := &Connector{
		log:     opts.Log,
		reg:     reg,
		txOpts:  transport.Options{Port: opts.Port, Baud: opts.Baud, RingSize: opts.RingSize},
		metrics: opts.Metrics,
		visited: make(map[byte]bool),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	c.deps = handlers.Deps{
		Reg:     reg,
		Storage: opts.Storage,
		Cache:   opts.Cache,
		Log:     opts.Log,
	}
	return c
}

// Registry exposes the underlying device/register/setting store, e.g. for
// a bootstrap routine wiring an upstream config reconciler.
func (c *Connector) Registry() *registry.Registry { return c.reg }

// Open dials the serial transport and starts the scheduler loop.
func (c *Connector) Open(ctx context.Context) error {
	tx, err := transport.Open(c.txOpts, c.log, c.handleFrame)
	if err != nil {
		return err
	}
	c.tx = tx
	if c.metrics != nil {
		c.deps.TX = countingSender{tx: tx, m: c.metrics}
		c.metrics.WatchRing(tx.RingHandle())
	} else {
		c.deps.TX = tx
	}
	go c.run(ctx)
	return nil
}

// countingSender wraps a Sender to count outgoing frames by packet kind,
// keeping handlers.Sender as the only interface the handlers/pairing
// packages need to know about.
type countingSender struct {
	tx *transport.Transport
	m  *metrics.Metrics
}

func (s countingSender) SendPacket(ctx context.Context, addr byte, f packet.Frame, wait time.Duration) bool {
	s.m.FramesSent.WithLabelValues(f.ID.Name()).Inc()
	return s.tx.SendPacket(ctx, addr, f, wait)
}

func (s countingSender) BroadcastPacket(ctx context.Context, f packet.Frame, wait time.Duration) bool {
	s.m.FramesSent.WithLabelValues(f.ID.Name()).Inc()
	return s.tx.BroadcastPacket(ctx, f, wait)
}

// Close stops the scheduler loop, waiting up to 3s for it to exit, then
// sets every known device DISCONNECTED, propagates that state, and closes
// the transport.
func (c *Connector) Close(ctx context.Context) {
	close(c.stop)
	select {
	case <-c.done:
	case <-time.After(3 * time.Second):
	}

	now := time.Now()
	for _, d := range c.reg.Devices() {
		d.SetState(registry.StateDisconnected, now)
		handlers.PropagateDeviceState(ctx, c.deps, d)
	}
	c.tx.Close()
}

// EnableSearching turns on pairing mode, allowing new devices to join the
// bus (§4.5, §6 inbound interface).
func (c *Connector) EnableSearching() { c.pairing.Enable() }

// DisableSearching turns off pairing mode.
func (c *Connector) DisableSearching() { c.pairing.Disable() }

// Publish resolves a channel property to its register and issues a write
// (§4.9, §6 inbound interface "publish(property_id, value)"). propertyID
// is the register's stable id, matching the identifier the storage and
// cache interfaces (§8) use for the same register.
func (c *Connector) Publish(ctx context.Context, propertyID uuid.UUID, cmd handlers.Command) error {
	reg, ok := c.reg.Register(propertyID)
	if !ok {
		return errcode.UnknownRegister
	}
	d, ok := c.reg.Device(reg.DeviceID)
	if !ok {
		return errcode.UnknownDevice
	}
	return handlers.Write(ctx, reg, d, cmd, c.deps)
}

func (c *Connector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// tick runs one scheduler step (§4.4): if pairing mode is enabled, a
// pairing step and nothing else; otherwise, provided the transport has no
// outstanding replies pending, one device's checking-then-reading round,
// cycling through every known device via a visited set so no device
// starves. The transport is advanced by one loop step either way.
func (c *Connector) tick(ctx context.Context) {
	defer c.advanceTransport()
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorf("connector: tick panic: %v\n%s", r, debug.Stack())
		}
	}()

	devices := c.reg.Devices()
	c.reportDeviceStates(devices)

	if c.pairing.Enabled {
		c.pairing.Tick(ctx, c.deps)
		return
	}
	if len(devices) == 0 || c.pending() != 0 {
		return
	}

	c.mu.Lock()
	var next *registry.Device
	for _, d := range devices {
		if !c.visited[d.Address] {
			next = d
			break
		}
	}
	if next == nil {
		c.visited = make(map[byte]bool)
		next = devices[0]
	}
	c.visited[next.Address] = true
	c.mu.Unlock()

	if c.pairing.Latched == next {
		return // this device is the pairing subject; pairing.Tick owns it
	}

	handlers.CheckingTick(ctx, next, c.deps)
	handlers.ReadingTick(ctx, next, c.deps)
}

// pending reports the transport's outstanding-reply count, or zero before
// Open has dialed a transport (e.g. in tests that drive tick directly).
func (c *Connector) pending() int {
	if c.tx == nil {
		return 0
	}
	return c.tx.Pending()
}

// advanceTransport runs the transport's single cooperative step (§4.2).
func (c *Connector) advanceTransport() {
	if c.tx != nil {
		c.tx.RunOnce()
	}
}

var allStates = []registry.State{
	registry.StateUnknown, registry.StateInit, registry.StateRunning,
	registry.StateLost, registry.StateStopped, registry.StateDisconnected,
}

func (c *Connector) reportDeviceStates(devices []*registry.Device) {
	if c.metrics == nil {
		return
	}
	counts := make(map[registry.State]float64, len(allStates))
	for _, d := range devices {
		counts[d.State]++
	}
	for _, s := range allStates {
		c.metrics.DevicesByState.WithLabelValues(s.String()).Set(counts[s])
	}
}

// handleFrame is the transport's receive callback: it routes an inbound
// frame by packet ID to the handler, or pairing step, that expects it.
func (c *Connector) handleFrame(addr byte, f packet.Frame) {
	ctx := context.Background()
	if c.metrics != nil {
		c.metrics.FramesReceived.WithLabelValues(f.ID.Name()).Inc()
	}

	if f.ID == packet.PairDevice {
		c.pairing.Receive(ctx, c.deps, addr, f)
		return
	}

	d, ok := c.reg.DeviceByAddress(addr)
	if !ok {
		c.log.Warnf("connector: frame %s from unknown address %d", f.ID.Name(), addr)
		return
	}

	switch f.ID {
	case packet.Pong, packet.GetState, packet.ReportState, packet.SetState:
		handlers.CheckingReply(ctx, d, f, c.deps)
	case packet.ReadMultipleRegisters:
		handlers.ReadingReply(ctx, d, f, c.deps)
	case packet.ReportSingleRegister:
		handlers.ReportingReply(ctx, d, f, c.deps)
	case packet.WriteSingleRegister:
		if len(f.Content) < 3 {
			c.log.Warnf("connector: short WRITE_SINGLE_REGISTER reply")
			return
		}
		typ := packet.RegisterType(f.Content[0])
		regAddr := packet.Uint16BE(f.Content[1:3])
		if reg, ok := c.reg.RegisterOf(d.ID, typ, regAddr); ok {
			handlers.WritingReply(ctx, d, reg, f, c.deps)
		}
	default:
		c.log.Warnf("connector: unhandled packet %s from device %s", f.ID.Name(), d.SerialNumber)
	}
}

