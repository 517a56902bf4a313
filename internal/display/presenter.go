// Package display combines the call log feed and the permission flag into
// the state a UI renders.
package display

import (
	"sync"

	"github.com/rcliao/call-screen/internal/calllog"
)

// Kind names the display state variant.
type Kind string

const (
	Loading Kind = "loading"
	Ready   Kind = "ready"
	Failed  Kind = "failed"
)

// State is what a UI renders. Calls and PermissionGranted are set only
// when Kind is Ready; Message only when Kind is Failed.
type State struct {
	Kind              Kind             `json:"state"`
	Calls             calllog.Snapshot `json:"calls"`
	PermissionGranted bool             `json:"permission_granted"`
	Message           string           `json:"message,omitempty"`
}

// PermissionChecker reports whether the host has granted the screening role.
type PermissionChecker interface {
	Granted() bool
}

// StaticPermission is a PermissionChecker with a fixed answer.
type StaticPermission bool

func (p StaticPermission) Granted() bool { return bool(p) }

// Presenter tracks the display state. It starts in Loading, moves to
// Ready on the first call log snapshot and stays Failed once Fail is
// called.
type Presenter struct {
	perm PermissionChecker

	mu       sync.RWMutex
	state    State
	override *bool
	sub      *calllog.Subscription
}

// NewPresenter returns a presenter in the Loading state.
func NewPresenter(perm PermissionChecker) *Presenter {
	if perm == nil {
		perm = StaticPermission(false)
	}
	return &Presenter{perm: perm, state: State{Kind: Loading}}
}

// Attach starts following stream. The stream's current snapshot arrives
// right away, so the presenter becomes Ready shortly after.
func (p *Presenter) Attach(stream *calllog.Stream) {
	sub := stream.Watch(p.update)
	p.mu.Lock()
	p.sub = sub
	p.mu.Unlock()
}

func (p *Presenter) update(snap calllog.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Kind == Failed {
		return
	}
	p.state = State{Kind: Ready, Calls: snap, PermissionGranted: p.grantedLocked()}
}

func (p *Presenter) grantedLocked() bool {
	if p.override != nil {
		return *p.override
	}
	return p.perm.Granted()
}

// SetPermission records the result of a permission request. A Ready
// state is updated in place.
func (p *Presenter) SetPermission(granted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.override = &granted
	if p.state.Kind == Ready {
		p.state.PermissionGranted = granted
	}
}

// Fail moves to the Failed state. It is meant for startup faults such as
// a store that cannot be created, not for individual lookup misses.
func (p *Presenter) Fail(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = State{Kind: Failed, Message: message}
}

// Current returns the latest state.
func (p *Presenter) Current() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Close stops following the stream.
func (p *Presenter) Close() {
	p.mu.Lock()
	sub := p.sub
	p.sub = nil
	p.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
}
