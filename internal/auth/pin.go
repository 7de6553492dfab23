package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
)

// PinTTL is how long a verification PIN stays redeemable.
const PinTTL = 120 * time.Second

const pinDigits = 6

var ErrPinNotFound = errors.New("pin not found or expired")

// GeneratePin draws a zero-padded numeric code from crypto/rand. The PIN is
// the single factor proving email ownership, so a predictable source is not
// acceptable here.
func GeneratePin() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < pinDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generating pin: %w", err)
	}

	return fmt.Sprintf("%0*d", pinDigits, n), nil
}

// PinStore keeps at most one live PIN per account id in Redis. Set
// overwrites any existing entry and resets the TTL; expiry is handled by
// Redis, so an expired PIN is indistinguishable from one never issued.
type PinStore struct {
	rdb    *redis.Client
	prefix string
}

func NewPinStore(rdb *redis.Client) *PinStore {
	return &PinStore{rdb: rdb, prefix: "verif"}
}

func (s *PinStore) key(userID string) string {
	return s.prefix + ":" + userID
}

func (s *PinStore) Set(ctx context.Context, userID, pin string) error {
	if err := s.rdb.Set(ctx, s.key(userID), pin, PinTTL).Err(); err != nil {
		return fmt.Errorf("storing pin: %w", err)
	}
	return nil
}

func (s *PinStore) Get(ctx context.Context, userID string) (string, error) {
	pin, err := s.rdb.Get(ctx, s.key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrPinNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading pin: %w", err)
	}
	return pin, nil
}

func (s *PinStore) Delete(ctx context.Context, userID string) error {
	if err := s.rdb.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("deleting pin: %w", err)
	}
	return nil
}
