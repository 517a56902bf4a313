// Package screening decides what happens to each incoming call.
//
// Engine.Screen normalizes the caller's number and looks it up in the
// reputation store. It then computes a disposition, appends a call log
// entry and returns the disposition. Lookup faults never escape Screen. A
// call whose lookup fails, times out or finds nothing is treated as an
// unknown, clean caller.
package screening

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/semaphore"

	"github.com/rcliao/call-screen/internal/model"
	"github.com/rcliao/call-screen/internal/phone"
	"github.com/rcliao/call-screen/internal/store"
)

const (
	DefaultLookupTimeout = 2 * time.Second
	DefaultWorkers       = 4
)

// Reputation is the part of the reputation store the engine reads.
type Reputation interface {
	Lookup(ctx context.Context, number string) (*model.CallerRecord, error)
}

// Appender receives one entry per screened call.
type Appender interface {
	Append(entry model.CallLogEntry) error
}

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	Policy        Policy
	LookupTimeout time.Duration
	// Workers bounds the number of lookups running at once.
	Workers int
	Logger  *slog.Logger
	Clock   func() time.Time
}

// Engine screens incoming calls.
type Engine struct {
	rep    Reputation
	log    Appender
	policy Policy
	budget time.Duration
	logger *slog.Logger
	now    func() time.Time
	pool   *semaphore.Weighted

	// ctx bounds all background work to the engine's lifetime.
	ctx      context.Context
	cancel   context.CancelFunc
	deferred sync.WaitGroup

	// closeMu orders deferred.Add against Close's Wait.
	closeMu sync.Mutex
	closed  bool

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// New returns an Engine reading from rep and logging calls to log.
func New(rep Reputation, log Appender, opts Options) *Engine {
	if opts.Policy == "" {
		opts.Policy = PolicyAwait
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = DefaultLookupTimeout
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		rep:     rep,
		log:     log,
		policy:  opts.Policy,
		budget:  opts.LookupTimeout,
		logger:  opts.Logger,
		now:     opts.Clock,
		pool:    semaphore.NewWeighted(int64(opts.Workers)),
		ctx:     ctx,
		cancel:  cancel,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// Policy returns the response policy the engine runs with.
func (e *Engine) Policy() Policy { return e.policy }

// Screen returns the disposition for one incoming call. It always returns
// a disposition, within the lookup timeout under PolicyAwait and
// immediately under PolicyImmediate.
func (e *Engine) Screen(ctx context.Context, ev model.IncomingCallEvent) model.Disposition {
	return e.ScreenCall(ctx, ev).Disposition
}

// Result is the outcome of screening one call. Entry is the logged entry,
// or nil when the entry will be logged later under PolicyImmediate.
type Result struct {
	Disposition model.Disposition
	Entry       *model.CallLogEntry
}

// ScreenCall is Screen that also returns the entry it logged.
func (e *Engine) ScreenCall(ctx context.Context, ev model.IncomingCallEvent) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("screening panicked, allowing call", "panic", r)
			res = Result{Disposition: model.Allow}
		}
	}()

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = e.now()
	}

	key := phone.Normalize(ev.RawNumber)
	if key == nil {
		entry := e.newEntry(nil, ts, resolution{outcome: model.LookupWithheld})
		e.append(entry)
		return Result{Disposition: entry.Disposition, Entry: &entry}
	}

	if e.policy == PolicyImmediate {
		e.screenDeferred(*key, ts)
		return Result{Disposition: model.Allow}
	}

	entry := e.newEntry(key, ts, e.resolve(ctx, *key))
	e.append(entry)
	return Result{Disposition: entry.Disposition, Entry: &entry}
}

// Respond screens the call and converts the disposition into telephony
// response flags.
func (e *Engine) Respond(ctx context.Context, ev model.IncomingCallEvent) model.CallResponse {
	return e.Screen(ctx, ev).Response()
}

// screenDeferred resolves the caller after the conservative default has
// already been returned, then logs the enriched entry. Nothing is logged
// if the engine closes first.
func (e *Engine) screenDeferred(key string, ts time.Time) {
	e.closeMu.Lock()
	if e.closed {
		e.closeMu.Unlock()
		return
	}
	e.deferred.Add(1)
	e.closeMu.Unlock()

	go func() {
		defer e.deferred.Done()
		res := e.resolve(e.ctx, key)
		if e.ctx.Err() != nil {
			return
		}
		entry := e.newEntry(&key, ts, res)
		entry.Deferred = true
		e.append(entry)
	}()
}

// Close abandons in-flight lookups and waits for deferred screenings to
// notice. Screen still answers after Close, treating callers as unknown.
func (e *Engine) Close() {
	e.closeMu.Lock()
	e.closed = true
	e.closeMu.Unlock()

	e.cancel()
	e.deferred.Wait()
}

type resolution struct {
	record  *model.CallerRecord
	outcome model.LookupOutcome
}

type lookupResult struct {
	record *model.CallerRecord
	err    error
}

// resolve runs one lookup on the worker pool, bounded by the lookup
// timeout and the engine's lifetime. A failed lookup is never retried.
func (e *Engine) resolve(parent context.Context, key string) resolution {
	ctx, cancel := context.WithTimeout(parent, e.budget)
	defer cancel()
	stop := context.AfterFunc(e.ctx, cancel)
	defer stop()

	if err := e.pool.Acquire(ctx, 1); err != nil {
		return e.classify(ctx, key, fmt.Errorf("acquire lookup worker: %w", err))
	}

	// The lookup runs on its own goroutine so a store that ignores
	// cancellation cannot hold up the response. It keeps its pool slot
	// until it returns.
	done := make(chan lookupResult, 1)
	go func() {
		defer e.pool.Release(1)
		defer func() {
			if r := recover(); r != nil {
				done <- lookupResult{err: fmt.Errorf("lookup panicked: %v", r)}
			}
		}()
		rec, err := e.rep.Lookup(ctx, key)
		done <- lookupResult{record: rec, err: err}
	}()

	select {
	case r := <-done:
		if r.err == nil && r.record != nil {
			return resolution{record: r.record, outcome: model.LookupFound}
		}
		if r.err == nil {
			r.err = store.ErrNotFound
		}
		return e.classify(ctx, key, r.err)
	case <-ctx.Done():
		return e.classify(ctx, key, ctx.Err())
	}
}

func (e *Engine) classify(ctx context.Context, key string, err error) resolution {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return resolution{outcome: model.LookupNotFound}
	case errors.Is(ctx.Err(), context.DeadlineExceeded) && e.ctx.Err() == nil:
		e.logger.Warn("reputation lookup timed out, treating caller as unknown",
			"number", key,
			"budget", e.budget)
		return resolution{outcome: model.LookupTimeout}
	default:
		e.logger.Warn("reputation lookup failed, treating caller as unknown",
			"number", key,
			"error", err)
		return resolution{outcome: model.LookupUnavailable}
	}
}

// newEntry copies the resolved attributes so later changes to the record
// cannot alter the logged call.
func (e *Engine) newEntry(number *string, ts time.Time, res resolution) model.CallLogEntry {
	entry := model.CallLogEntry{
		ID:          e.newID(),
		PhoneNumber: number,
		Timestamp:   ts,
		Lookup:      res.outcome,
	}
	if rec := res.record; rec != nil {
		if rec.Name != nil {
			name := *rec.Name
			entry.CallerName = &name
		}
		if rec.Company != nil {
			company := *rec.Company
			entry.CallerCompany = &company
		}
		entry.IsSpam = rec.IsSpam
	}
	entry.Disposition = model.DispositionFor(entry.IsSpam)
	return entry
}

func (e *Engine) append(entry model.CallLogEntry) {
	if err := e.log.Append(entry); err != nil {
		e.logger.Error("call log append failed",
			"id", entry.ID,
			"disposition", entry.Disposition,
			"error", err)
		return
	}
	e.logger.Info("call screened",
		"id", entry.ID,
		"number", model.Deref(entry.PhoneNumber),
		"disposition", entry.Disposition,
		"lookup", entry.Lookup,
		"deferred", entry.Deferred)
}

func (e *Engine) newID() string {
	e.idMu.Lock()
	defer e.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), e.entropy).String()
}
