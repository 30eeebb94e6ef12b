package store

import "errors"

// ErrNotFound is returned when a requested entity does not exist in the store.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface.
type Store interface {
	SaveSettings(s *Settings) error
	GetSettings() (*Settings, error)

	// UpdateSettings reads, modifies, and saves the settings in a single
	// transaction. Returns ErrNotFound if no settings were saved yet.
	UpdateSettings(fn func(s *Settings) error) error

	// Close the store
	Close() error
}
