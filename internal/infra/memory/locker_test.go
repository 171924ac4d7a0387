package memory

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestKeyedLockerExcludesSameKey(t *testing.T) {
	locker := NewKeyedLocker()
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "submit:1:1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(waitCtx, "submit:1:1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected second lock on same key to time out, got %v", err)
	}

	other, err := locker.Lock(ctx, "submit:2:1")
	if err != nil {
		t.Fatalf("expected different key to lock freely: %v", err)
	}
	other()

	unlock()
	unlock() // second call is a no-op
	again, err := locker.Lock(ctx, "submit:1:1")
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	again()

	if n := locker.held(); n != 0 {
		t.Fatalf("expected no tracked keys after release, got %d", n)
	}
}
