package upstream

import (
	"context"

	"fbbus-gateway/internal/logging"
)

// storageBridgeQueueLen is the bounded queue size spec.md §5's
// shared-resource policy calls for between the registry/handler hot path
// and the persistent store.
const storageBridgeQueueLen = 1000

// DropCounter is the minimal surface StorageBridge needs to report queue
// overflow; *prometheus.Counter satisfies it without this package
// depending on the prometheus client directly.
type DropCounter interface{ Inc() }

// storageOp is one queued write, captured as a closure so StorageBridge
// needs only one channel to front every Storage method.
type storageOp func(ctx context.Context) error

// StorageBridge decouples the FB-Bus connector's single scheduler
// goroutine (§7: it must never block on a slow upstream write) from
// Storage: each mutation is queued onto a bounded-1000 channel and
// applied by Run's background goroutine against the wrapped Storage.
// Back-pressure is advisory, not strict (§5) - when the queue is full the
// newest write is dropped, counted, and logged, rather than blocking the
// caller or displacing an already-queued write.
type StorageBridge struct {
	next    Storage
	ops     chan storageOp
	dropped DropCounter
	log     logging.Logger
}

// NewStorageBridge wraps next so every Storage call is queued instead of
// applied synchronously. dropped may be nil to disable the overflow
// counter (e.g. in tests); log may be nil to discard warnings.
func NewStorageBridge(next Storage, dropped DropCounter, log logging.Logger) *StorageBridge {
	if log == nil {
		log = logging.Nop{}
	}
	return &StorageBridge{
		next:    next,
		ops:     make(chan storageOp, storageBridgeQueueLen),
		dropped: dropped,
		log:     log,
	}
}

// Run drains queued writes against the wrapped Storage until ctx is
// done. Call it once, from its own goroutine, before any writes are
// enqueued.
func (b *StorageBridge) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-b.ops:
			if err := op(ctx); err != nil {
				b.log.Warnf("storage bridge: write failed: %v", err)
			}
		}
	}
}

// enqueue offers op to the bounded queue, dropping and counting it on
// overflow instead of blocking the caller.
func (b *StorageBridge) enqueue(op storageOp) error {
	select {
	case b.ops <- op:
		return nil
	default:
		if b.dropped != nil {
			b.dropped.Inc()
		}
		b.log.Warnf("storage bridge: queue full (%d), dropping a write", storageBridgeQueueLen)
		return nil
	}
}

func (b *StorageBridge) AddOrEditDevice(_ context.Context, d DeviceRecord) error {
	return b.enqueue(func(ctx context.Context) error { return b.next.AddOrEditDevice(ctx, d) })
}

func (b *StorageBridge) AddOrEditChannelProperty(_ context.Context, p ChannelPropertyRecord) error {
	return b.enqueue(func(ctx context.Context) error { return b.next.AddOrEditChannelProperty(ctx, p) })
}

func (b *StorageBridge) AddOrEditDeviceConfiguration(_ context.Context, c DeviceConfigurationRecord) error {
	return b.enqueue(func(ctx context.Context) error { return b.next.AddOrEditDeviceConfiguration(ctx, c) })
}

func (b *StorageBridge) AddOrEditChannelConfiguration(_ context.Context, c ChannelConfigurationRecord) error {
	return b.enqueue(func(ctx context.Context) error { return b.next.AddOrEditChannelConfiguration(ctx, c) })
}

func (b *StorageBridge) DeleteChannelProperty(_ context.Context, id string) error {
	return b.enqueue(func(ctx context.Context) error { return b.next.DeleteChannelProperty(ctx, id) })
}

func (b *StorageBridge) DeleteDeviceConfiguration(_ context.Context, id string) error {
	return b.enqueue(func(ctx context.Context) error { return b.next.DeleteDeviceConfiguration(ctx, id) })
}

func (b *StorageBridge) DeleteChannelConfiguration(_ context.Context, id string) error {
	return b.enqueue(func(ctx context.Context) error { return b.next.DeleteChannelConfiguration(ctx, id) })
}

func (b *StorageBridge) SendChannelPropertyToStorage(_ context.Context, propertyID string, newValue, previousValue any) error {
	return b.enqueue(func(ctx context.Context) error {
		return b.next.SendChannelPropertyToStorage(ctx, propertyID, newValue, previousValue)
	})
}
