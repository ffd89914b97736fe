package memstore

import (
	"context"
	"testing"

	"fbbus-gateway/internal/upstream"
)

func TestAddOrEditDeviceThenFetch(t *testing.T) {
	s := New()
	err := s.AddOrEditDevice(context.Background(), upstream.DeviceRecord{ID: "dev-1", SerialNumber: "abc"})
	if err != nil {
		t.Fatalf("AddOrEditDevice: %v", err)
	}

	got, ok := s.Device("dev-1")
	if !ok {
		t.Fatal("expected to find the stored device")
	}
	if got.SerialNumber != "abc" {
		t.Errorf("SerialNumber = %q, want abc", got.SerialNumber)
	}
}

func TestSendChannelPropertyToStorageUpdatesCache(t *testing.T) {
	s := New()
	if err := s.SendChannelPropertyToStorage(context.Background(), "prop-1", 42, nil); err != nil {
		t.Fatalf("SendChannelPropertyToStorage: %v", err)
	}
	v, ok := s.Get("prop-1")
	if !ok || v != 42 {
		t.Errorf("Get(prop-1) = %v, %v; want 42, true", v, ok)
	}
}

func TestDeleteChannelPropertyClearsCache(t *testing.T) {
	s := New()
	_ = s.AddOrEditChannelProperty(context.Background(), upstream.ChannelPropertyRecord{ID: "prop-1"})
	s.Set("prop-1", "value")

	if err := s.DeleteChannelProperty(context.Background(), "prop-1"); err != nil {
		t.Fatalf("DeleteChannelProperty: %v", err)
	}
	if _, ok := s.Get("prop-1"); ok {
		t.Error("expected the cache entry to be gone after delete")
	}
}

func TestSetOverridesCachedValue(t *testing.T) {
	s := New()
	s.Set("k", 1)
	s.Set("k", 2)
	v, ok := s.Get("k")
	if !ok || v != 2 {
		t.Errorf("Get(k) = %v, %v; want 2, true", v, ok)
	}
}
