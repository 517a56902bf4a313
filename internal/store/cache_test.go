package store

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/rcliao/call-screen/internal/model"
)

// countingStore counts backend lookups.
type countingStore struct {
	Reputation
	lookups atomic.Int32
}

func (c *countingStore) Lookup(ctx context.Context, number string) (*model.CallerRecord, error) {
	c.lookups.Add(1)
	return c.Reputation.Lookup(ctx, number)
}

func newCachedTestStore(t *testing.T) (*CachedStore, *countingStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := DialRedis(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("dial redis: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	backend := &countingStore{Reputation: newTestStore(t)}
	backend.Reputation.(*SQLiteStore).BootstrapSeed(context.Background())
	return NewCachedStore(backend, client, time.Minute, nil), backend, mr
}

func TestCachedStoreHit(t *testing.T) {
	ctx := context.Background()
	c, backend, mr := newCachedTestStore(t)

	for i := 0; i < 3; i++ {
		rec, err := c.Lookup(ctx, "+79375470385")
		if err != nil {
			t.Fatalf("lookup %d: %v", i, err)
		}
		if !rec.IsSpam || model.Deref(rec.Name) != "Спам центр" {
			t.Errorf("unexpected record %+v", rec)
		}
	}
	if n := backend.lookups.Load(); n != 1 {
		t.Errorf("expected 1 backend lookup, got %d", n)
	}
	if !mr.Exists("caller:+79375470385") {
		t.Error("expected cache key to be set")
	}
}

func TestCachedStoreNegative(t *testing.T) {
	ctx := context.Background()
	c, backend, _ := newCachedTestStore(t)

	for i := 0; i < 2; i++ {
		_, err := c.Lookup(ctx, "+0000")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	}
	if n := backend.lookups.Load(); n != 1 {
		t.Errorf("expected negative result to be cached, got %d backend lookups", n)
	}
}

func TestCachedStoreUpsertInvalidates(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newCachedTestStore(t)

	c.Lookup(ctx, "+1234567890")
	err := c.Upsert(ctx, model.CallerRecord{PhoneNumber: "+1234567890", IsSpam: true})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	rec, err := c.Lookup(ctx, "+1234567890")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !rec.IsSpam {
		t.Error("expected updated record after invalidation")
	}
}

func TestCachedStoreRedisDownFallsBack(t *testing.T) {
	ctx := context.Background()
	c, backend, mr := newCachedTestStore(t)
	mr.Close()

	rec, err := c.Lookup(ctx, "+79375470385")
	if err != nil {
		t.Fatalf("expected backend fallback, got %v", err)
	}
	if !rec.IsSpam {
		t.Errorf("unexpected record %+v", rec)
	}
	if n := backend.lookups.Load(); n != 1 {
		t.Errorf("expected 1 backend lookup, got %d", n)
	}

	all, err := c.ListAll(ctx)
	if err != nil || len(all) != 3 {
		t.Errorf("expected list passthrough, got %d, %v", len(all), err)
	}
}

func TestDialRedisFails(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := DialRedis(context.Background(), addr); err == nil {
		t.Error("expected dial error against a closed server")
	}
}

// silentListener accepts connections and never answers, like a hung redis.
func silentListener(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		var conns []net.Conn
		defer func() {
			for _, c := range conns {
				c.Close()
			}
		}()
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			conns = append(conns, c)
		}
	}()
	return ln.Addr().String()
}

func TestCachedStoreStalledRedisFallsBackQuickly(t *testing.T) {
	client := newRedisClient(silentListener(t))
	t.Cleanup(func() { client.Close() })

	backend := &countingStore{Reputation: newTestStore(t)}
	backend.Reputation.(*SQLiteStore).BootstrapSeed(context.Background())
	c := NewCachedStore(backend, client, time.Minute, nil)

	// Same budget the screening engine gives a lookup by default.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	rec, err := c.Lookup(ctx, "+79375470385")
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("expected backend result, got %v", err)
	}
	if !rec.IsSpam {
		t.Errorf("unexpected record %+v", rec)
	}
	if elapsed > time.Second {
		t.Errorf("stalled cache held the lookup for %v", elapsed)
	}
	if n := backend.lookups.Load(); n != 1 {
		t.Errorf("expected 1 backend lookup, got %d", n)
	}
}
