package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketDevices = []byte("devices")
	bucketNetwork = []byte("network")
	bucketNCP     = []byte("ncp")
	keyState      = []byte("state")
	keyInfo       = []byte("info")
)

// BoltStore implements Store on a bbolt file.
type BoltStore struct {
	db *bolt.DB
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore opens or creates the database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketDevices, bucketNetwork, bucketNCP} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func bucket(tx *bolt.Tx, name []byte) (*bolt.Bucket, error) {
	b := tx.Bucket(name)
	if b == nil {
		return nil, fmt.Errorf("bucket %q not found", name)
	}
	return b, nil
}

func put(tx *bolt.Tx, name, key []byte, v any) error {
	b, err := bucket(tx, name)
	if err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

// get decodes key into v; what names the record in ErrNotFound.
func get(tx *bolt.Tx, name, key []byte, what string, v any) error {
	b, err := bucket(tx, name)
	if err != nil {
		return err
	}
	data := b.Get(key)
	if data == nil {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return json.Unmarshal(data, v)
}

// --- Devices ---

func (s *BoltStore) SaveDevice(dev *Device) error {
	if dev.EUI64 == "" {
		return fmt.Errorf("save device: empty eui64")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketDevices, []byte(dev.EUI64), dev)
	})
}

func (s *BoltStore) GetDevice(eui64 string) (*Device, error) {
	var dev Device
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketDevices, []byte(eui64), "device "+eui64, &dev)
	})
	if err != nil {
		return nil, err
	}
	return &dev, nil
}

func (s *BoltStore) DeleteDevice(eui64 string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, bucketDevices)
		if err != nil {
			return err
		}
		if b.Get([]byte(eui64)) == nil {
			return fmt.Errorf("device %s: %w", eui64, ErrNotFound)
		}
		return b.Delete([]byte(eui64))
	})
}

func (s *BoltStore) ListDevices() ([]*Device, error) {
	var devices []*Device
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, bucketDevices)
		if err != nil {
			return err
		}
		devices = make([]*Device, 0, b.Stats().KeyN)
		return b.ForEach(func(k, v []byte) error {
			var dev Device
			if err := json.Unmarshal(v, &dev); err != nil {
				return fmt.Errorf("device %s: %w", k, err)
			}
			devices = append(devices, &dev)
			return nil
		})
	})
	return devices, err
}

func (s *BoltStore) UpdateDevice(eui64 string, fn func(dev *Device) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var dev Device
		if err := get(tx, bucketDevices, []byte(eui64), "device "+eui64, &dev); err != nil {
			return err
		}
		if err := fn(&dev); err != nil {
			return err
		}
		dev.EUI64 = eui64
		return put(tx, bucketDevices, []byte(eui64), &dev)
	})
}

// --- Network ---

func (s *BoltStore) SaveNetworkState(state *NetworkState) error {
	st := networkStateStorage{
		Channel:    state.Channel,
		PanID:      state.PanID,
		ExtPanID:   state.ExtPanID,
		TxPower:    state.TxPower,
		NetworkKey: state.NetworkKey,
		Formed:     state.Formed,
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketNetwork, keyState, st)
	})
}

func (s *BoltStore) GetNetworkState() (*NetworkState, error) {
	var st networkStateStorage
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketNetwork, keyState, "network state", &st)
	})
	if err != nil {
		return nil, err
	}
	return &NetworkState{
		Channel:    st.Channel,
		PanID:      st.PanID,
		ExtPanID:   st.ExtPanID,
		TxPower:    st.TxPower,
		NetworkKey: st.NetworkKey,
		Formed:     st.Formed,
	}, nil
}

// --- NCP ---

func (s *BoltStore) SaveNCPInfo(info *NCPInfo) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketNCP, keyInfo, info)
	})
}

func (s *BoltStore) GetNCPInfo() (*NCPInfo, error) {
	var info NCPInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketNCP, keyInfo, "ncp info", &info)
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
