package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestExceededFreshIdentifier(t *testing.T) {
	_, rdb := newTestRedis(t)

	l := New(rdb, "test", 1, time.Minute)
	exceeded, err := l.Exceeded(context.Background(), "a@example.com")
	if err != nil {
		t.Fatalf("Exceeded failed: %v", err)
	}
	if exceeded {
		t.Fatal("fresh identifier must not be limited")
	}
}

func TestRecordUpToBudget(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	l := New(rdb, "test", 3, time.Minute)

	for i := 0; i < 3; i++ {
		exceeded, err := l.Exceeded(ctx, "a@example.com")
		if err != nil {
			t.Fatalf("Exceeded failed: %v", err)
		}
		if exceeded {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
		if err := l.Record(ctx, "a@example.com"); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	exceeded, err := l.Exceeded(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("Exceeded failed: %v", err)
	}
	if !exceeded {
		t.Fatal("budget exhausted, expected exceeded")
	}
}

func TestIdentifiersAreIndependent(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	l := New(rdb, "test", 1, time.Minute)

	if err := l.Record(ctx, "a@example.com"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	exceeded, err := l.Exceeded(ctx, "b@example.com")
	if err != nil {
		t.Fatalf("Exceeded failed: %v", err)
	}
	if exceeded {
		t.Fatal("other identifiers must be unaffected")
	}
}

func TestWindowSlides(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	l := New(rdb, "test", 1, 50*time.Millisecond)

	if err := l.Record(ctx, "a@example.com"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if exceeded, _ := l.Exceeded(ctx, "a@example.com"); !exceeded {
		t.Fatal("expected exceeded inside the window")
	}

	time.Sleep(80 * time.Millisecond)

	exceeded, err := l.Exceeded(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("Exceeded failed: %v", err)
	}
	if exceeded {
		t.Fatal("attempts outside the window must be pruned")
	}
}

func TestReset(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	l := New(rdb, "test", 1, time.Minute)

	if err := l.Record(ctx, "a@example.com"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := l.Reset(ctx, "a@example.com"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	exceeded, err := l.Exceeded(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("Exceeded failed: %v", err)
	}
	if exceeded {
		t.Fatal("reset identifier must not be limited")
	}
}
