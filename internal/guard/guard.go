// ABOUTME: Route guard state machine composing the session snapshot with Admit
// ABOUTME: Holds each decision until the principal pointer changes

// Package guard admits or redirects navigation to protected routes.
package guard

import (
	"fmt"
	"sync"

	"github.com/2389/fitportal/internal/access"
)

// Redirect targets.
const (
	LoginPath = "/login"
	HomePath  = "/"
)

// Phase is the coarse guard state.
type Phase int

// Phases.
const (
	Loading Phase = iota
	Admitted
	Redirect
)

func (p Phase) String() string {
	switch p {
	case Loading:
		return "loading"
	case Admitted:
		return "admitted"
	case Redirect:
		return "redirect"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// State is what the guarded view should render.
type State struct {
	Phase  Phase
	Target string // set when Phase is Redirect
	Reason access.DenyReason
}

func (s State) String() string {
	if s.Phase == Redirect {
		return "redirect(" + s.Target + ")"
	}
	return s.Phase.String()
}

// TargetFor maps a deny reason to its redirect path.
func TargetFor(reason access.DenyReason) string {
	if reason == access.ReasonInsufficientRole {
		return HomePath
	}
	return LoginPath
}

// Guard evaluates one requirement against session updates.
type Guard struct {
	req access.Requirement

	mu        sync.Mutex
	resolved  bool
	principal *access.Principal
	state     State
}

// New returns a guard in the Loading state.
func New(req access.Requirement) *Guard {
	return &Guard{req: req}
}

// Requirement returns the requirement the guard enforces.
func (g *Guard) Requirement() access.Requirement {
	return g.req
}

// State returns the current decision.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Observe records a resolved session principal. The decision is only
// recomputed when p differs from the last principal seen. It reports
// whether the state changed.
func (g *Guard) Observe(p *access.Principal) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.resolved && p == g.principal {
		return false
	}
	g.resolved = true
	g.principal = p

	next := evaluate(p, g.req)
	changed := next != g.state
	g.state = next
	return changed
}

func evaluate(p *access.Principal, req access.Requirement) State {
	d := access.Admit(p, req)
	if d.Allowed {
		return State{Phase: Admitted}
	}
	return State{Phase: Redirect, Target: TargetFor(d.Reason), Reason: d.Reason}
}

// Source is the session view a guard watches.
type Source interface {
	Subscribe(fn func(*access.Principal)) (unsubscribe func())
	Snapshot() (*access.Principal, bool)
}

// Watch keeps g in sync with src until the returned function is called.
// onChange, if set, runs after each state change.
func Watch(g *Guard, src Source, onChange func(State)) (stop func()) {
	notify := func(changed bool) {
		if changed && onChange != nil {
			onChange(g.State())
		}
	}
	unsubscribe := src.Subscribe(func(p *access.Principal) {
		notify(g.Observe(p))
	})
	if p, resolved := src.Snapshot(); resolved {
		notify(g.seed(p))
	}
	return unsubscribe
}

// seed observes p only if no transition has been observed yet.
func (g *Guard) seed(p *access.Principal) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.resolved {
		return false
	}
	g.resolved = true
	g.principal = p
	g.state = evaluate(p, g.req)
	return true
}
