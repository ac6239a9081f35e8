package client

import (
	"errors"

	"github.com/oklog/ulid/v2"
)

const deviceIDKey = "device_id"

// DeviceID returns the device identifier kept in store, generating and
// persisting one on first use.
func DeviceID(store Store) (string, error) {
	id, err := store.Get(deviceIDKey)
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && !errors.Is(err, ErrNoEntry) {
		return "", err
	}
	id = ulid.Make().String()
	if err := store.Set(deviceIDKey, id); err != nil {
		return "", err
	}
	return id, nil
}
