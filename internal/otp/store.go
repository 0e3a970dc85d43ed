package otp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCodeMismatch covers absent, expired and non-matching codes alike
// so callers cannot tell which it was.
var ErrCodeMismatch = errors.New("code mismatch")

// Store keeps at most one live code per email in redis, expiry handled
// by the key TTL.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func key(email string) string {
	return fmt.Sprintf("otp:%s", email)
}

// Put replaces any previous code for the email.
func (s *Store) Put(ctx context.Context, email, code string) error {
	k := key(email)
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, k)
	pipe.Set(ctx, k, code, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Consume deletes the stored code if and only if it matches. The
// optimistic transaction makes the check-and-delete single-winner: of
// two concurrent calls with the correct code, exactly one succeeds.
func (s *Store) Consume(ctx context.Context, email, code string) error {
	k := key(email)
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := tx.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			return ErrCodeMismatch
		}
		if err != nil {
			return err
		}
		if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
			return ErrCodeMismatch
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, k)
			return nil
		})
		return err
	}, k)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrCodeMismatch
	}
	return err
}
