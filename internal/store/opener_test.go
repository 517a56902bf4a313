package store

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestOpenerConcurrentFirstAccess(t *testing.T) {
	o := NewOpener(filepath.Join(t.TempDir(), "callers.db"), nil)
	t.Cleanup(func() { o.Close() })

	var opens atomic.Int32
	o.open = func(path string) (*SQLiteStore, error) {
		opens.Add(1)
		// Widen the window so every caller arrives while the open is in flight.
		time.Sleep(50 * time.Millisecond)
		return NewSQLiteStore(path)
	}

	const callers = 16
	var wg sync.WaitGroup
	start := make(chan struct{})
	stores := make([]*SQLiteStore, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			stores[i], errs[i] = o.Open(context.Background())
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if stores[i] != stores[0] {
			t.Fatalf("caller %d got a different store instance", i)
		}
	}
	if n := opens.Load(); n != 1 {
		t.Errorf("expected exactly 1 open, got %d", n)
	}

	all, err := stores[0].ListAll(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != len(SeedCallers) {
		t.Errorf("expected %d seeded records, got %d", len(SeedCallers), len(all))
	}
}

func TestOpenerFastPathReturnsSameStore(t *testing.T) {
	o := NewOpener(filepath.Join(t.TempDir(), "callers.db"), nil)
	t.Cleanup(func() { o.Close() })

	a, err := o.Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	b, _ := o.Open(context.Background())
	if a != b {
		t.Error("expected the same store on second open")
	}
}

func TestOpenerRetriesAfterFailure(t *testing.T) {
	o := NewOpener(filepath.Join(t.TempDir(), "callers.db"), nil)
	t.Cleanup(func() { o.Close() })

	boom := errors.New("disk on fire")
	fail := true
	o.open = func(path string) (*SQLiteStore, error) {
		if fail {
			return nil, boom
		}
		return NewSQLiteStore(path)
	}

	_, err := o.Open(context.Background())
	if !errors.Is(err, ErrStoreUnavailable) || !errors.Is(err, boom) {
		t.Fatalf("expected unavailable wrapping cause, got %v", err)
	}

	fail = false
	s, err := o.Open(context.Background())
	if err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if s == nil {
		t.Fatal("expected store")
	}
}

func TestOpenerSeedsOnlyOnceAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "callers.db")

	o := NewOpener(path, nil)
	s, err := o.Open(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Upsert(ctx, SeedCallers[0]); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	o.Close()

	s, err = o.Open(ctx)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer o.Close()

	all, _ := s.ListAll(ctx)
	if len(all) != len(SeedCallers) {
		t.Errorf("expected %d records after reopen, got %d", len(SeedCallers), len(all))
	}
}

func TestOpenerAsReputation(t *testing.T) {
	ctx := context.Background()
	o := NewOpener(filepath.Join(t.TempDir(), "callers.db"), nil)
	t.Cleanup(func() { o.Close() })

	var rep Reputation = o

	rec, err := rep.Lookup(ctx, "+79375470385")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !rec.IsSpam {
		t.Error("expected seeded spammer")
	}

	if err := rep.Upsert(ctx, SeedCallers[0]); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	all, err := rep.ListAll(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != len(SeedCallers) {
		t.Errorf("expected %d records, got %d", len(SeedCallers), len(all))
	}
}

func TestOpenerLookupWhileUnopenable(t *testing.T) {
	o := NewOpener(filepath.Join(t.TempDir(), "callers.db"), nil)
	o.open = func(path string) (*SQLiteStore, error) {
		return nil, errors.New("locked")
	}

	_, err := o.Lookup(context.Background(), "+1234567890")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("open failure must not look like absence")
	}
}

func TestOpenerLogsToInjectedLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	o := NewOpener(filepath.Join(t.TempDir(), "callers.db"), logger)
	t.Cleanup(func() { o.Close() })

	if _, err := o.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if !strings.Contains(buf.String(), "seeded reputation store") {
		t.Errorf("expected seed message on injected logger, got %q", buf.String())
	}
}
