package store

import (
	"context"
	"errors"
	"time"

	"github.com/stratauth/otpauth/pkg/models"
)

// ErrNotExist is thrown when an OTP (requested by key) does not exist
// or has expired. Backends report both cases identically.
var ErrNotExist = errors.New("the OTP does not exist")

// Store represents a storage backend where OTP records are stored with
// a per-key expiry. All implementations present identical semantics:
// the caller never branches on backend type.
type Store interface {
	// Set creates or replaces the record at key with the given code and
	// an expiry of now + ttl. The value and the expiry are set atomically.
	Set(ctx context.Context, key, code string, ttl time.Duration) error

	// Get returns the live record at key. Expired or missing records
	// both return ErrNotExist.
	Get(ctx context.Context, key string) (models.OTPRecord, error)

	// Take returns the live record at key and deletes it in the same
	// atomic step. When two callers race on the same key, at most one
	// observes the record; the other gets ErrNotExist.
	Take(ctx context.Context, key string) (models.OTPRecord, error)

	// Delete removes the record at key. Deleting a missing key is a no-op.
	Delete(ctx context.Context, key string) error

	// Ping checks if the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}
