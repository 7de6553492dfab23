package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// newTestPinStore backs a PinStore with an in-process miniredis.
func newTestPinStore(t *testing.T) (*PinStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewPinStore(rdb), mr
}

// TestGeneratePin verifies the code is numeric and of fixed length.
func TestGeneratePin(t *testing.T) {
	pin, err := GeneratePin()
	if err != nil {
		t.Fatalf("GeneratePin error: %v", err)
	}
	if len(pin) != pinDigits {
		t.Errorf("expected %d digits, got %q", pinDigits, pin)
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			t.Errorf("non-digit %q in pin %q", c, pin)
		}
	}
}

// TestPinStore_SetGetDelete covers the whole lifecycle: stored, readable,
// gone after delete.
func TestPinStore_SetGetDelete(t *testing.T) {
	store, _ := newTestPinStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "user-1", "123456"); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	got, err := store.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got != "123456" {
		t.Errorf("expected pin 123456, got %q", got)
	}

	if err := store.Delete(ctx, "user-1"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := store.Get(ctx, "user-1"); !errors.Is(err, ErrPinNotFound) {
		t.Errorf("expected ErrPinNotFound after delete, got %v", err)
	}
}

// TestPinStore_SetOverwrites verifies a second Set replaces the live PIN:
// at most one PIN per account id.
func TestPinStore_SetOverwrites(t *testing.T) {
	store, _ := newTestPinStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "user-1", "111111"); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if err := store.Set(ctx, "user-1", "222222"); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	got, err := store.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got != "222222" {
		t.Errorf("expected the second pin to win, got %q", got)
	}
}

// TestPinStore_TTLExpiry verifies an expired PIN is indistinguishable from
// one never issued.
func TestPinStore_TTLExpiry(t *testing.T) {
	store, mr := newTestPinStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "user-1", "123456"); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	mr.FastForward(PinTTL + time.Second)

	if _, err := store.Get(ctx, "user-1"); !errors.Is(err, ErrPinNotFound) {
		t.Errorf("expected ErrPinNotFound after TTL, got %v", err)
	}
}

// TestPinStore_SetResetsTTL verifies a resend restarts the clock for the new
// PIN.
func TestPinStore_SetResetsTTL(t *testing.T) {
	store, mr := newTestPinStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "user-1", "111111"); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	mr.FastForward(PinTTL - time.Second)
	if err := store.Set(ctx, "user-1", "222222"); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	mr.FastForward(PinTTL - time.Second)

	got, err := store.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("expected the fresh pin to still be live, got %v", err)
	}
	if got != "222222" {
		t.Errorf("expected pin 222222, got %q", got)
	}
}
