package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/rcliao/call-screen/internal/model"
)

// Opener hands out one fully initialized SQLiteStore per database path.
//
// The first Open creates the database, migrates it and seeds it. Callers
// that arrive while that is in flight wait for it and share its result.
// Once a store is held, Open returns it without locking. A failed open is
// not remembered; the next Open tries again.
type Opener struct {
	path   string
	logger *slog.Logger
	open   func(path string) (*SQLiteStore, error)
	store  atomic.Pointer[SQLiteStore]
	flight singleflight.Group
}

// NewOpener returns an Opener for the database at path. Nothing is opened
// until the first call to Open. A nil logger uses slog.Default().
func NewOpener(path string, logger *slog.Logger) *Opener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Opener{path: path, logger: logger, open: NewSQLiteStore}
}

// Path returns the database path.
func (o *Opener) Path() string { return o.path }

// Open returns the shared store, creating and seeding it on first use.
func (o *Opener) Open(ctx context.Context) (*SQLiteStore, error) {
	if s := o.store.Load(); s != nil {
		return s, nil
	}

	// A caller cancelling must not fail the others waiting on this flight.
	initCtx := context.WithoutCancel(ctx)
	v, err, _ := o.flight.Do(o.path, func() (interface{}, error) {
		if s := o.store.Load(); s != nil {
			return s, nil
		}

		s, err := o.open(o.path)
		if err != nil {
			return nil, err
		}

		seeded, err := s.BootstrapSeed(initCtx)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
		if seeded {
			o.logger.Info("seeded reputation store", "path", o.path, "records", len(SeedCallers))
		}

		o.store.Store(s)
		return s, nil
	})
	if err != nil {
		return nil, unavailable("open", err)
	}
	return v.(*SQLiteStore), nil
}

// Close closes the held store, if any. A later Open reopens it.
func (o *Opener) Close() error {
	if s := o.store.Swap(nil); s != nil {
		return s.Close()
	}
	return nil
}

// Lookup opens the store if needed and looks number up. An Opener can
// therefore stand in for the store before the first open has succeeded.
func (o *Opener) Lookup(ctx context.Context, number string) (*model.CallerRecord, error) {
	s, err := o.Open(ctx)
	if err != nil {
		return nil, err
	}
	return s.Lookup(ctx, number)
}

func (o *Opener) Upsert(ctx context.Context, rec model.CallerRecord) error {
	s, err := o.Open(ctx)
	if err != nil {
		return err
	}
	return s.Upsert(ctx, rec)
}

func (o *Opener) ListAll(ctx context.Context) ([]model.CallerRecord, error) {
	s, err := o.Open(ctx)
	if err != nil {
		return nil, err
	}
	return s.ListAll(ctx)
}
