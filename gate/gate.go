// Package gate guards initialization of backend dependencies (database, cache,
// message broker, object storage). A Gate probes its dependency and retries with
// backoff until the probe succeeds, the attempt budget runs out, or the caller's
// context is cancelled.
//
// States move along a fixed graph:
//
//	idle -> connecting -> connected
//	           |    ^
//	           v    |
//	         retrying ---> failed -> idle (Reset)
//
// connecting may also go straight to failed when the last attempt fails.
package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateRetrying   State = "retrying"
	StateFailed     State = "failed"
)

var (
	ErrGateFailed        = errors.New("connection gate failed")
	ErrInvalidTransition = errors.New("invalid gate transition")
)

var transitions = map[State][]State{
	StateIdle:       {StateConnecting},
	StateConnecting: {StateConnected, StateRetrying, StateFailed},
	StateRetrying:   {StateConnecting, StateFailed},
	StateFailed:     {StateIdle},
}

// CanTransition reports whether from -> to is an edge of the state graph.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Probe checks the dependency once. A nil error means it is usable.
type Probe func(ctx context.Context) error

type Transition struct {
	Gate    string
	From    State
	To      State
	Attempt int
	Err     error
	RetryIn time.Duration
}

type Options struct {
	Backoff Backoff
	// MaxAttempts is the probe budget before the gate fails. Zero retries forever.
	MaxAttempts  int
	ProbeTimeout time.Duration
	Logger       *logrus.Logger
	OnTransition func(Transition)
}

type Snapshot struct {
	Name        string     `json:"name"`
	State       State      `json:"state"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"last_error,omitempty"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
}

type Gate struct {
	name string
	opts Options

	mu          sync.Mutex
	state       State
	attempts    int
	lastErr     error
	nextRetryAt time.Time
	connectedAt time.Time
	running     chan struct{}
	runErr      error

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(name string, opts Options) *Gate {
	if opts.Backoff.Base <= 0 && opts.Backoff.Max <= 0 && opts.Backoff.Strategy == "" {
		opts.Backoff = DefaultBackoff()
	}
	return &Gate{
		name:  name,
		opts:  opts,
		state: StateIdle,
		now:   time.Now,
		sleep: sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (g *Gate) Name() string { return g.name }

func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Gate) Ready() bool {
	return g.State() == StateConnected
}

func (g *Gate) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := Snapshot{
		Name:     g.name,
		State:    g.state,
		Attempts: g.attempts,
	}
	if g.lastErr != nil {
		s.LastError = g.lastErr.Error()
	}
	if g.state == StateRetrying && !g.nextRetryAt.IsZero() {
		t := g.nextRetryAt
		s.NextRetryAt = &t
	}
	if g.state == StateConnected && !g.connectedAt.IsZero() {
		t := g.connectedAt
		s.ConnectedAt = &t
	}
	return s
}

// Reset moves a failed gate back to idle so Run can try again.
func (g *Gate) Reset() {
	g.mu.Lock()
	if g.state != StateFailed {
		g.mu.Unlock()
		return
	}
	g.attempts = 0
	g.lastErr = nil
	g.nextRetryAt = time.Time{}
	g.mu.Unlock()
	_ = g.transition(StateIdle, 0, nil)
}

// Run drives the gate until the dependency is connected or the gate fails.
// Concurrent callers share a single attempt loop.
func (g *Gate) Run(ctx context.Context, probe Probe) error {
	g.mu.Lock()
	switch {
	case g.state == StateConnected:
		g.mu.Unlock()
		return nil
	case g.running != nil:
		done := g.running
		g.mu.Unlock()
		select {
		case <-done:
			g.mu.Lock()
			err := g.runErr
			g.mu.Unlock()
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	case g.state == StateFailed:
		err := g.lastErr
		g.mu.Unlock()
		return fmt.Errorf("%w: %s is failed, reset required: %v", ErrGateFailed, g.name, err)
	}
	done := make(chan struct{})
	g.running = done
	g.mu.Unlock()

	err := g.loop(ctx, probe)

	g.mu.Lock()
	g.runErr = err
	g.running = nil
	close(done)
	g.mu.Unlock()
	return err
}

// abort moves the gate to failed without probing; failed is only reachable
// through connecting or retrying.
func (g *Gate) abort(ctxErr error) error {
	g.mu.Lock()
	attempt := g.attempts
	g.lastErr = ctxErr
	state := g.state
	g.mu.Unlock()
	if state != StateRetrying {
		if err := g.transition(StateConnecting, attempt, nil); err != nil {
			return err
		}
	}
	_ = g.transition(StateFailed, attempt, ctxErr)
	return ctxErr
}

func (g *Gate) loop(ctx context.Context, probe Probe) error {
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return g.abort(ctxErr)
		}
		g.mu.Lock()
		g.attempts++
		attempt := g.attempts
		g.mu.Unlock()
		if err := g.transition(StateConnecting, attempt, nil); err != nil {
			return err
		}

		err := g.probeOnce(ctx, probe)
		if err == nil {
			g.mu.Lock()
			g.lastErr = nil
			g.connectedAt = g.now()
			g.mu.Unlock()
			return g.transition(StateConnected, attempt, nil)
		}

		g.mu.Lock()
		g.lastErr = err
		g.mu.Unlock()

		if ctxErr := ctx.Err(); ctxErr != nil {
			_ = g.transition(StateFailed, attempt, err)
			return ctxErr
		}
		if g.opts.MaxAttempts > 0 && attempt >= g.opts.MaxAttempts {
			_ = g.transition(StateFailed, attempt, err)
			return fmt.Errorf("%w: %s gave up after %d attempts: %w", ErrGateFailed, g.name, attempt, err)
		}

		delay := g.opts.Backoff.Delay(attempt)
		g.mu.Lock()
		g.nextRetryAt = g.now().Add(delay)
		g.mu.Unlock()
		if err := g.transitionRetry(attempt, err, delay); err != nil {
			return err
		}

		if sleepErr := g.sleep(ctx, delay); sleepErr != nil {
			_ = g.transition(StateFailed, attempt, err)
			return sleepErr
		}
	}
}

func (g *Gate) probeOnce(ctx context.Context, probe Probe) (err error) {
	pctx := ctx
	if g.opts.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, g.opts.ProbeTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()
	return probe(pctx)
}

func (g *Gate) transitionRetry(attempt int, cause error, delay time.Duration) error {
	return g.apply(Transition{Gate: g.name, To: StateRetrying, Attempt: attempt, Err: cause, RetryIn: delay})
}

func (g *Gate) transition(to State, attempt int, cause error) error {
	return g.apply(Transition{Gate: g.name, To: to, Attempt: attempt, Err: cause})
}

func (g *Gate) apply(t Transition) error {
	g.mu.Lock()
	t.From = g.state
	if !CanTransition(t.From, t.To) {
		g.mu.Unlock()
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, g.name, t.From, t.To)
	}
	g.state = t.To
	g.mu.Unlock()

	g.log(t)
	if g.opts.OnTransition != nil {
		g.opts.OnTransition(t)
	}
	return nil
}

func (g *Gate) log(t Transition) {
	logger := g.opts.Logger
	if logger == nil {
		return
	}
	entry := logger.WithFields(logrus.Fields{
		"gate":    t.Gate,
		"from":    string(t.From),
		"to":      string(t.To),
		"attempt": t.Attempt,
	})
	switch t.To {
	case StateRetrying:
		entry.WithField("retry_in", t.RetryIn.String()).Warn("dependency not ready: " + errString(t.Err))
	case StateFailed:
		entry.Error("dependency gate failed: " + errString(t.Err))
	case StateConnected:
		entry.Info("dependency connected")
	default:
		entry.Debug("gate transition")
	}
}

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}
