package store

import (
	"time"

	"github.com/google/uuid"
)

// Settings is the persisted device state that survives restarts.
type Settings struct {
	DeviceID     string    `json:"device_id"`
	DefaultLayer uint8     `json:"default_layer"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewSettings returns settings with a fresh random device id.
func NewSettings() *Settings {
	now := time.Now()
	return &Settings{
		DeviceID:  uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}
