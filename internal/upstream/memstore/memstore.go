// Package memstore provides an in-memory Storage and PropertyCache,
// grounded on the teacher's in-process device map (no external database
// dependency is named in scope — the relational store itself is out of
// core per the specification).
package memstore

import (
	"context"
	"sync"

	"fbbus-gateway/internal/upstream"
)

// Store is a minimal in-memory upstream.Storage + upstream.PropertyCache.
// It exists so the core and its tests can run without a real database;
// a production deployment supplies its own Storage implementation.
type Store struct {
	mu sync.RWMutex

	devices      map[string]upstream.DeviceRecord
	channelProps map[string]upstream.ChannelPropertyRecord
	deviceCfgs   map[string]upstream.DeviceConfigurationRecord
	channelCfgs  map[string]upstream.ChannelConfigurationRecord
	cache        map[string]any
}

func New() *Store {
	return &Store{
		devices:      make(map[string]upstream.DeviceRecord),
		channelProps: make(map[string]upstream.ChannelPropertyRecord),
		deviceCfgs:   make(map[string]upstream.DeviceConfigurationRecord),
		channelCfgs:  make(map[string]upstream.ChannelConfigurationRecord),
		cache:        make(map[string]any),
	}
}

func (s *Store) AddOrEditDevice(_ context.Context, d upstream.DeviceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[d.ID] = d
	return nil
}

func (s *Store) AddOrEditChannelProperty(_ context.Context, p upstream.ChannelPropertyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelProps[p.ID] = p
	return nil
}

func (s *Store) AddOrEditDeviceConfiguration(_ context.Context, c upstream.DeviceConfigurationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deviceCfgs[c.ID] = c
	return nil
}

func (s *Store) AddOrEditChannelConfiguration(_ context.Context, c upstream.ChannelConfigurationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelCfgs[c.ID] = c
	return nil
}

func (s *Store) DeleteChannelProperty(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channelProps, id)
	delete(s.cache, id)
	return nil
}

func (s *Store) DeleteDeviceConfiguration(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deviceCfgs, id)
	return nil
}

func (s *Store) DeleteChannelConfiguration(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channelCfgs, id)
	return nil
}

func (s *Store) SendChannelPropertyToStorage(_ context.Context, propertyID string, newValue, _ any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[propertyID] = newValue
	return nil
}

// Get implements upstream.PropertyCache.
func (s *Store) Get(propertyID string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.cache[propertyID]
	return v, ok
}

// Set implements upstream.PropertyCache.
func (s *Store) Set(propertyID string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[propertyID] = value
}

// Device returns a snapshot of a stored device record, for tests and
// diagnostics.
func (s *Store) Device(id string) (upstream.DeviceRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[id]
	return d, ok
}
