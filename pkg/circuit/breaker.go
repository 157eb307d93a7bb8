// Package circuit provides a circuit breaker for the optional snapshot
// exporters, so an unreachable broker or cache stops costing the dashboard
// a timeout on every cycle.
package circuit

import (
	"context"
	"sync"
	"time"

	"github.com/bardlex/ducomon/pkg/errors"
)

// State is the position of a breaker
type State int

const (
	StateClosed   State = iota // calls pass through
	StateOpen                  // calls are rejected until the cooldown ends
	StateHalfOpen              // trial calls decide between closed and open
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes a Breaker
type Config struct {
	FailureThreshold int           // failures within FailureWindow that open the breaker
	FailureWindow    time.Duration // closed-state failures older than this are forgotten
	Cooldown         time.Duration // time spent open before a trial call
	TrialSuccesses   int           // half-open successes needed to close again

	// OnStateChange is called outside the breaker lock after every transition.
	OnStateChange func(name string, from, to State)
}

// ExportConfig returns the configuration used by snapshot exporters: a sink
// that failed three cycles in a row is left alone for two minutes.
func ExportConfig() *Config {
	return &Config{
		FailureThreshold: 3,
		FailureWindow:    10 * time.Minute,
		Cooldown:         2 * time.Minute,
		TrialSuccesses:   1,
	}
}

// Breaker guards calls to one sink. It is safe for concurrent use.
type Breaker struct {
	name   string
	config Config
	now    func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	openedAt    time.Time
	windowStart time.Time
}

// New returns a closed breaker. A nil config means ExportConfig.
func New(name string, config *Config) *Breaker {
	if config == nil {
		config = ExportConfig()
	}
	return &Breaker{
		name:        name,
		config:      *config,
		now:         time.Now,
		windowStart: time.Now(),
	}
}

func (cb *Breaker) Name() string { return cb.name }

// State returns the current position of the breaker
func (cb *Breaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Execute runs fn unless the breaker is open. A rejected call returns an
// ErrorTypeInternal error without calling fn; a done ctx returns ctx.Err().
func (cb *Breaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if state, ok := cb.admit(); !ok {
		return errors.New(errors.ErrorTypeInternal, "circuit_breaker", "circuit breaker is open").
			WithContext("breaker", cb.name).
			WithContext("state", state.String())
	}

	err := fn()
	cb.record(err)
	return err
}

func (cb *Breaker) admit() (State, bool) {
	cb.mu.Lock()
	from := cb.state
	now := cb.now()

	switch cb.state {
	case StateClosed:
		if now.Sub(cb.windowStart) > cb.config.FailureWindow {
			cb.failures = 0
			cb.windowStart = now
		}
	case StateOpen:
		if now.Sub(cb.openedAt) <= cb.config.Cooldown {
			cb.mu.Unlock()
			return from, false
		}
		cb.state = StateHalfOpen
		cb.successes = 0
	}

	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
	return to, true
}

func (cb *Breaker) record(err error) {
	cb.mu.Lock()
	from := cb.state
	now := cb.now()

	switch {
	case err != nil && (cb.state == StateHalfOpen || cb.failures+1 >= cb.config.FailureThreshold):
		cb.state = StateOpen
		cb.openedAt = now
		cb.failures++
		cb.successes = 0
	case err != nil:
		cb.failures++
	case cb.state == StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.TrialSuccesses {
			cb.state = StateClosed
			cb.failures = 0
			cb.successes = 0
			cb.windowStart = now
		}
	}

	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
}

func (cb *Breaker) notify(from, to State) {
	if from != to && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.name, from, to)
	}
}
