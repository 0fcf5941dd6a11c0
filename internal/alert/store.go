package alert

import (
	"context"
	"errors"
)

// ErrStoreUnavailable means the backing alert collection is missing or malformed.
var ErrStoreUnavailable = errors.New("alert store unavailable")

// Store is the persistence interface for the alert collection.
type Store interface {
	// LoadAll returns every alert in stored order.
	LoadAll(ctx context.Context) ([]Alert, error)

	// Get returns the alert with the given id, ok=false when it does not exist.
	Get(ctx context.Context, id string) (*Alert, bool, error)

	// UpdateStatus records a transition for id and persists it. It returns
	// false without touching the store when id does not exist.
	UpdateStatus(ctx context.Context, id string, status Status, changedBy string) (bool, error)
}
