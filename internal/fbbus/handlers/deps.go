package handlers

import (
	"context"
	"time"

	"fbbus-gateway/internal/fbbus/packet"
	"fbbus-gateway/internal/fbbus/registry"
	"fbbus-gateway/internal/logging"
	"fbbus-gateway/internal/upstream"
)

// Sender is the subset of *transport.Transport the handlers need; an
// interface so handler tests can substitute a fake link.
type Sender interface {
	SendPacket(ctx context.Context, addr byte, f packet.Frame, wait time.Duration) bool
	BroadcastPacket(ctx context.Context, f packet.Frame, wait time.Duration) bool
}

// Deps bundles the collaborators every handler needs, replacing the
// module-level singletons of the Python source (§9 design notes) with an
// explicitly passed context struct.
type Deps struct {
	Reg     *registry.Registry
	TX      Sender
	Storage upstream.Storage
	Cache   upstream.PropertyCache
	Log     logging.Logger
	Now     func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
