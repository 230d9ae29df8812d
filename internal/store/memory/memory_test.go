package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stratauth/otpauth/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	mockKey  = "alice"
	mockCode = "123456"
	mockTTL  = 15 * time.Minute
)

var ctx = context.Background()

// setup returns a store with a controllable clock and one stored OTP.
func setup(t *testing.T) (*Memory, *time.Time) {
	m := New(Conf{})
	t.Cleanup(func() { m.Close() })

	now := time.Now()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, mockKey, mockCode, mockTTL), "Failed to set up test OTP")
	return m, &now
}

func TestStoreSet(t *testing.T) {
	m, _ := setup(t)

	rec, err := m.Get(ctx, mockKey)
	assert.NoError(t, err, "Error getting OTP")
	assert.Equal(t, mockCode, rec.Code, "Returned code doesn't match stored code")
}

func TestStoreSetReplaces(t *testing.T) {
	m, _ := setup(t)

	assert.NoError(t, m.Set(ctx, mockKey, "999999", mockTTL), "Error replacing OTP")

	rec, err := m.Get(ctx, mockKey)
	assert.NoError(t, err, "Error getting OTP")
	assert.Equal(t, "999999", rec.Code, "Re-set didn't replace the old code")
}

func TestStoreGetMissing(t *testing.T) {
	m, _ := setup(t)

	_, err := m.Get(ctx, "nosuchkey")
	assert.Equal(t, store.ErrNotExist, err, "Missing key didn't report ErrNotExist")
}

func TestStoreExpiry(t *testing.T) {
	m, now := setup(t)

	*now = now.Add(mockTTL + time.Second)
	_, err := m.Get(ctx, mockKey)
	assert.Equal(t, store.ErrNotExist, err, "Expired OTP was returned")

	// An expired record can't be taken either.
	require.NoError(t, m.Set(ctx, mockKey, mockCode, mockTTL))
	*now = now.Add(mockTTL + time.Second)
	_, err = m.Take(ctx, mockKey)
	assert.Equal(t, store.ErrNotExist, err, "Expired OTP was taken")
}

func TestStoreTake(t *testing.T) {
	m, _ := setup(t)

	rec, err := m.Take(ctx, mockKey)
	assert.NoError(t, err, "Error taking OTP")
	assert.Equal(t, mockCode, rec.Code, "Taken code doesn't match stored code")

	_, err = m.Take(ctx, mockKey)
	assert.Equal(t, store.ErrNotExist, err, "OTP survived a take")
}

func TestStoreTakeConcurrent(t *testing.T) {
	m, _ := setup(t)

	const attempts = 32
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Take(ctx, mockKey); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins, "Exactly one concurrent take should win")
}

func TestStoreDelete(t *testing.T) {
	m, _ := setup(t)

	assert.NoError(t, m.Delete(ctx, mockKey), "Error deleting OTP")

	_, err := m.Get(ctx, mockKey)
	assert.Equal(t, store.ErrNotExist, err, "OTP should not exist but it does")

	// Deleting an absent key is a no-op.
	assert.NoError(t, m.Delete(ctx, mockKey), "Deleting a missing key errored")
}

func TestStoreBound(t *testing.T) {
	m := New(Conf{MaxEntries: 2})
	t.Cleanup(func() { m.Close() })

	now := time.Now()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "a", "1", mockTTL))
	require.NoError(t, m.Set(ctx, "b", "2", mockTTL))

	// Full, and nothing has expired.
	assert.Equal(t, ErrFull, m.Set(ctx, "c", "3", mockTTL), "Bound wasn't enforced")

	// Replacing a live key is always allowed.
	assert.NoError(t, m.Set(ctx, "a", "9", mockTTL), "Replacement hit the bound")

	// Once records expire, the purge makes room.
	now = now.Add(mockTTL + time.Second)
	assert.NoError(t, m.Set(ctx, "c", "3", mockTTL), "Expired records weren't purged to make room")
}
