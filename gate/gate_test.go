package gate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu     sync.Mutex
	events []Transition
	sleeps []time.Duration
}

func (r *recorder) onTransition(t Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, t)
}

func (r *recorder) path() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.To)
	}
	return out
}

func newTestGate(opts Options, rec *recorder) *Gate {
	opts.OnTransition = rec.onTransition
	g := New("db", opts)
	g.sleep = func(ctx context.Context, d time.Duration) error {
		rec.mu.Lock()
		rec.sleeps = append(rec.sleeps, d)
		rec.mu.Unlock()
		return ctx.Err()
	}
	return g
}

func TestBackoffDelay(t *testing.T) {
	exp := DefaultBackoff()
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second, 30 * time.Second}
	for i, w := range want {
		assert.Equal(t, w, exp.Delay(i+1), "attempt %d", i+1)
	}
	assert.Equal(t, 2*time.Second, exp.Delay(0))
	assert.Equal(t, 30*time.Second, exp.Delay(1000))

	lin := Backoff{Strategy: StrategyLinear, Base: time.Second, Max: 5 * time.Second}
	assert.Equal(t, time.Second, lin.Delay(1))
	assert.Equal(t, 3*time.Second, lin.Delay(3))
	assert.Equal(t, 5*time.Second, lin.Delay(9))

	uncapped := Backoff{Strategy: StrategyExponential, Base: time.Hour}
	assert.Greater(t, uncapped.Delay(200), time.Duration(0))

	assert.Equal(t, time.Duration(0), Backoff{}.Delay(3))
}

func TestBackoffFromEnv(t *testing.T) {
	t.Setenv("GATE_DB_BACKOFF", "Linear")
	t.Setenv("GATE_DB_BACKOFF_BASE_MS", "250")
	t.Setenv("GATE_DB_BACKOFF_MAX_MS", "oops")

	b := BackoffFromEnv("GATE_DB", DefaultBackoff())
	assert.Equal(t, StrategyLinear, b.Strategy)
	assert.Equal(t, 250*time.Millisecond, b.Base)
	assert.Equal(t, 30*time.Second, b.Max)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StateIdle, StateConnecting))
	assert.True(t, CanTransition(StateRetrying, StateFailed))
	assert.True(t, CanTransition(StateFailed, StateIdle))
	assert.False(t, CanTransition(StateIdle, StateConnected))
	assert.False(t, CanTransition(StateConnected, StateRetrying))
	assert.False(t, CanTransition(StateFailed, StateConnecting))
}

func TestRunConnectsFirstTry(t *testing.T) {
	rec := &recorder{}
	g := newTestGate(Options{}, rec)

	err := g.Run(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateConnected, g.State())
	assert.True(t, g.Ready())
	assert.Equal(t, []State{StateConnecting, StateConnected}, rec.path())

	snap := g.Snapshot()
	assert.Equal(t, 1, snap.Attempts)
	assert.NotNil(t, snap.ConnectedAt)
	assert.Nil(t, snap.NextRetryAt)

	// already connected: no probe
	err = g.Run(context.Background(), func(context.Context) error {
		t.Fatalf("probe called on connected gate")
		return nil
	})
	require.NoError(t, err)
}

func TestRunRetriesThenConnects(t *testing.T) {
	rec := &recorder{}
	g := newTestGate(Options{}, rec)

	calls := 0
	err := g.Run(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []State{
		StateConnecting, StateRetrying,
		StateConnecting, StateRetrying,
		StateConnecting, StateConnected,
	}, rec.path())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, rec.sleeps)
	assert.Empty(t, g.Snapshot().LastError)
}

func TestRunFailsAfterMaxAttempts(t *testing.T) {
	rec := &recorder{}
	g := newTestGate(Options{MaxAttempts: 3}, rec)
	probeErr := errors.New("no route to host")

	err := g.Run(context.Background(), func(context.Context) error { return probeErr })
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGateFailed)
	assert.ErrorIs(t, err, probeErr)
	assert.Equal(t, StateFailed, g.State())
	assert.Len(t, rec.sleeps, 2)

	snap := g.Snapshot()
	assert.Equal(t, 3, snap.Attempts)
	assert.Equal(t, "no route to host", snap.LastError)

	// failed gates refuse to run until reset
	err = g.Run(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrGateFailed)

	g.Reset()
	assert.Equal(t, StateIdle, g.State())
	assert.Equal(t, 0, g.Snapshot().Attempts)
	require.NoError(t, g.Run(context.Background(), func(context.Context) error { return nil }))
	assert.Equal(t, 1, g.Snapshot().Attempts)
}

func TestRunStopsOnCancel(t *testing.T) {
	rec := &recorder{}
	g := New("redis", Options{Backoff: Backoff{Strategy: StrategyLinear, Base: time.Hour}, OnTransition: rec.onTransition})

	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	done := make(chan error, 1)
	go func() {
		done <- g.Run(ctx, func(context.Context) error {
			atomic.AddInt32(&calls, 1)
			return errors.New("down")
		})
	}()

	require.Eventually(t, func() bool { return g.State() == StateRetrying }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	assert.Equal(t, StateFailed, g.State())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRunWithCancelledContextFailsWithoutConnecting(t *testing.T) {
	rec := &recorder{}
	g := newTestGate(Options{}, rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls int32
	err := g.Run(ctx, func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailed, g.State())
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	assert.Equal(t, 0, g.Snapshot().Attempts)
	assert.False(t, g.Ready())
}

func TestProbeTimeout(t *testing.T) {
	rec := &recorder{}
	g := newTestGate(Options{MaxAttempts: 1, ProbeTimeout: 10 * time.Millisecond}, rec)

	err := g.Run(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, ErrGateFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProbePanicIsAnError(t *testing.T) {
	rec := &recorder{}
	g := newTestGate(Options{MaxAttempts: 1}, rec)

	err := g.Run(context.Background(), func(context.Context) error { panic("boom") })
	assert.ErrorIs(t, err, ErrGateFailed)
	assert.Contains(t, err.Error(), "boom")
}

func TestConcurrentRunSharesLoop(t *testing.T) {
	rec := &recorder{}
	g := newTestGate(Options{}, rec)

	release := make(chan struct{})
	var calls int32
	probe := func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		<-release
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[0] = g.Run(context.Background(), probe)
	}()
	require.Eventually(t, func() bool { return g.State() == StateConnecting }, time.Second, time.Millisecond)

	for i := 1; i < len(errs); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = g.Run(context.Background(), probe)
		}(i)
	}
	close(release)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestResetIsNoopUnlessFailed(t *testing.T) {
	rec := &recorder{}
	g := newTestGate(Options{}, rec)
	g.Reset()
	assert.Equal(t, StateIdle, g.State())
	assert.Empty(t, rec.path())
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	db := reg.Register(New("database", Options{}))
	reg.Register(New("cache", Options{}))

	assert.False(t, reg.Ready())
	assert.False(t, reg.Ready("database"))
	assert.False(t, reg.Ready("missing"))

	require.NoError(t, db.Run(context.Background(), func(context.Context) error { return nil }))
	assert.True(t, reg.Ready("database"))
	assert.False(t, reg.Ready())

	got, ok := reg.Get("database")
	require.True(t, ok)
	assert.Same(t, db, got)

	snaps := reg.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, "cache", snaps[0].Name)
	assert.Equal(t, StateIdle, snaps[0].State)
	assert.Equal(t, "database", snaps[1].Name)
	assert.Equal(t, StateConnected, snaps[1].State)
}
