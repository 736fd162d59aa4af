package store

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGetDevice(t *testing.T) {
	s := newTestStore(t)

	now := time.Now().Truncate(time.Millisecond)
	dev := &Device{
		EUI64:      "00158d00012a3b4c",
		NodeID:     0x1234,
		ParentID:   0x0000,
		LastStatus: "unsecured_join",
		JoinedAt:   now,
		LastSeen:   now,
	}
	if err := s.SaveDevice(dev); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetDevice(dev.EUI64)
	if err != nil {
		t.Fatal(err)
	}
	if got.NodeID != dev.NodeID {
		t.Errorf("node id: got 0x%04X, want 0x%04X", got.NodeID, dev.NodeID)
	}
	if got.LastStatus != dev.LastStatus {
		t.Errorf("last status: got %q, want %q", got.LastStatus, dev.LastStatus)
	}
	if !got.JoinedAt.Equal(now) {
		t.Errorf("joined at: got %v, want %v", got.JoinedAt, now)
	}
}

func TestSaveDeviceRequiresEUI64(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveDevice(&Device{NodeID: 1}); err == nil {
		t.Error("saved a device without eui64")
	}
}

func TestGetDeviceNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetDevice("0000000000000001"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err %v, want ErrNotFound", err)
	}
}

func TestDeleteDevice(t *testing.T) {
	s := newTestStore(t)

	dev := &Device{EUI64: "00158d00012a3b4c", NodeID: 0x1234}
	if err := s.SaveDevice(dev); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteDevice(dev.EUI64); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetDevice(dev.EUI64); !errors.Is(err, ErrNotFound) {
		t.Errorf("after delete: err %v, want ErrNotFound", err)
	}
	if err := s.DeleteDevice(dev.EUI64); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: err %v, want ErrNotFound", err)
	}
}

func TestListDevices(t *testing.T) {
	s := newTestStore(t)

	for _, eui := range []string{"0000000000000001", "0000000000000002", "0000000000000003"} {
		if err := s.SaveDevice(&Device{EUI64: eui}); err != nil {
			t.Fatal(err)
		}
	}
	devices, err := s.ListDevices()
	if err != nil {
		t.Fatal(err)
	}
	if len(devices) != 3 {
		t.Fatalf("got %d devices, want 3", len(devices))
	}
	// bbolt iterates keys in byte order.
	if devices[0].EUI64 != "0000000000000001" || devices[2].EUI64 != "0000000000000003" {
		t.Errorf("order: got %s..%s", devices[0].EUI64, devices[2].EUI64)
	}
}

func TestUpdateDevice(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveDevice(&Device{EUI64: "00158d00012a3b4c", NodeID: 0x1234}); err != nil {
		t.Fatal(err)
	}
	err := s.UpdateDevice("00158d00012a3b4c", func(dev *Device) error {
		dev.NodeID = 0x4321
		dev.Messages++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.GetDevice("00158d00012a3b4c")
	if err != nil {
		t.Fatal(err)
	}
	if got.NodeID != 0x4321 || got.Messages != 1 {
		t.Errorf("got node 0x%04X messages %d", got.NodeID, got.Messages)
	}

	if err := s.UpdateDevice("ffffffffffffffff", func(*Device) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing device: err %v, want ErrNotFound", err)
	}

	boom := errors.New("boom")
	if err := s.UpdateDevice("00158d00012a3b4c", func(*Device) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("callback error: got %v, want boom", err)
	}
}

func TestNetworkState(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.GetNetworkState(); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty store: err %v, want ErrNotFound", err)
	}

	state := &NetworkState{
		Channel:    15,
		PanID:      0x1A62,
		ExtPanID:   "dddddddddddddddd",
		TxPower:    8,
		NetworkKey: "01030507090b0d0f00020406080a0c0d",
		Formed:     true,
	}
	if err := s.SaveNetworkState(state); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetNetworkState()
	if err != nil {
		t.Fatal(err)
	}
	if *got != *state {
		t.Errorf("got %+v, want %+v", *got, *state)
	}

	// The key survives on disk but not in API JSON.
	data, err := json.Marshal(got)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), state.NetworkKey) {
		t.Errorf("network key leaked into JSON: %s", data)
	}
}

func TestNCPInfo(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.GetNCPInfo(); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty store: err %v, want ErrNotFound", err)
	}

	info := &NCPInfo{
		EUI64:           "00124b0001020304",
		ProtocolVersion: 13,
		StackType:       2,
		StackVersion:    "7.4.3.0",
		UpdatedAt:       time.Now().Truncate(time.Millisecond).UTC(),
	}
	if err := s.SaveNCPInfo(info); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetNCPInfo()
	if err != nil {
		t.Fatal(err)
	}
	if got.EUI64 != info.EUI64 || got.StackVersion != info.StackVersion || got.ProtocolVersion != 13 {
		t.Errorf("got %+v, want %+v", *got, *info)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveDevice(&Device{EUI64: "0000000000000001"}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := s.GetDevice("0000000000000001"); err != nil {
		t.Errorf("after reopen: %v", err)
	}
}
