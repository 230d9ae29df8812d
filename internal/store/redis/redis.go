package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stratauth/otpauth/internal/store"
	"github.com/stratauth/otpauth/pkg/models"
)

// Redis implements a Redis Store. Expiry is enforced natively by the
// server; records disappear on their own once the TTL elapses.
type Redis struct {
	client *redis.Client
	conf   Conf
}

// Conf contains Redis configuration fields.
type Conf struct {
	Host      string        `json:"host"`
	Port      int           `json:"port"`
	Username  string        `json:"username"`
	Password  string        `json:"password"`
	DB        int           `json:"db"`
	Timeout   time.Duration `json:"timeout"`
	KeyPrefix string        `json:"key_prefix"`
}

// New returns a Redis implementation of store.
func New(c Conf) *Redis {
	if c.KeyPrefix == "" {
		c.KeyPrefix = "OTP"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", c.Host, c.Port),
		Username:     c.Username,
		Password:     c.Password,
		DB:           c.DB,
		DialTimeout:  c.Timeout,
		WriteTimeout: c.Timeout,
		ReadTimeout:  c.Timeout,
	})

	return &Redis{
		conf:   c,
		client: client,
	}
}

// Ping checks if the Redis server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Set stores the code against the key with the given TTL. SET with an
// expiry is a single command, so the value never exists without one.
func (r *Redis) Set(ctx context.Context, key, code string, ttl time.Duration) error {
	return r.client.Set(ctx, r.makeKey(key), code, ttl).Err()
}

// Get retrieves the record stored against the key.
func (r *Redis) Get(ctx context.Context, key string) (models.OTPRecord, error) {
	k := r.makeKey(key)

	pipe := r.client.TxPipeline()
	get := pipe.Get(ctx, k)
	pttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		if err == redis.Nil {
			return models.OTPRecord{}, store.ErrNotExist
		}
		return models.OTPRecord{}, err
	}

	return makeRecord(get.Val(), pttl.Val()), nil
}

// Take retrieves the record stored against the key and deletes it in
// the same transaction. Concurrent takes on one key serialise on the
// server; only the first one sees the value.
func (r *Redis) Take(ctx context.Context, key string) (models.OTPRecord, error) {
	k := r.makeKey(key)

	pipe := r.client.TxPipeline()
	get := pipe.Get(ctx, k)
	pttl := pipe.PTTL(ctx, k)
	pipe.Del(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		if err == redis.Nil {
			return models.OTPRecord{}, store.ErrNotExist
		}
		return models.OTPRecord{}, err
	}

	return makeRecord(get.Val(), pttl.Val()), nil
}

// Delete deletes the record saved against the given key.
func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.makeKey(key)).Err()
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// makeKey makes the Redis key for the OTP.
func (r *Redis) makeKey(key string) string {
	return fmt.Sprintf("%s:%s", r.conf.KeyPrefix, key)
}

func makeRecord(code string, ttl time.Duration) models.OTPRecord {
	rec := models.OTPRecord{Code: code}
	if ttl > 0 {
		rec.ExpiresAt = time.Now().Add(ttl)
	}
	return rec
}
