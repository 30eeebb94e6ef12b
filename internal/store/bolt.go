package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketDevice = []byte("device")
	keySettings  = []byte("settings")
)

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates a BoltDB database.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketDevice)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func putSettings(b *bolt.Bucket, s *Settings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return b.Put(keySettings, data)
}

func (s *BoltStore) SaveSettings(settings *Settings) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDevice)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketDevice)
		}
		return putSettings(b, settings)
	})
}

func (s *BoltStore) GetSettings() (*Settings, error) {
	var settings Settings
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDevice)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketDevice)
		}
		data := b.Get(keySettings)
		if data == nil {
			return fmt.Errorf("settings: %w", ErrNotFound)
		}
		return json.Unmarshal(data, &settings)
	})
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (s *BoltStore) UpdateSettings(fn func(settings *Settings) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDevice)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketDevice)
		}
		data := b.Get(keySettings)
		if data == nil {
			return fmt.Errorf("settings: %w", ErrNotFound)
		}
		var settings Settings
		if err := json.Unmarshal(data, &settings); err != nil {
			return err
		}
		if err := fn(&settings); err != nil {
			return err
		}
		settings.UpdatedAt = time.Now()
		return putSettings(b, &settings)
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// LoadOrInit returns the stored settings, creating and saving fresh ones
// on first start.
func LoadOrInit(st Store) (*Settings, bool, error) {
	settings, err := st.GetSettings()
	if err == nil {
		return settings, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("load settings: %w", err)
	}
	settings = NewSettings()
	if err := st.SaveSettings(settings); err != nil {
		return nil, false, fmt.Errorf("save settings: %w", err)
	}
	return settings, true, nil
}
