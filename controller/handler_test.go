package main

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itskum47/defcon/controller/engine"
	"github.com/itskum47/defcon/controller/store"
	"github.com/itskum47/defcon/probe"
)

type stubProber struct {
	result probe.Result
	err    error
	calls  chan probe.Target
}

func (s *stubProber) Probe(ctx context.Context, target probe.Target) (probe.Result, error) {
	s.calls <- target
	return s.result, s.err
}

func newHandlerFixture(t *testing.T, p probe.Prober) (*Handler, *store.Memory, *store.Check) {
	t.Helper()
	st := store.NewMemory()
	check := &store.Check{
		Name:     "api",
		Kind:     store.KindHTTP,
		Enabled:  true,
		Interval: store.Duration(time.Minute),
		Sites:    []string{store.ControllerSite},
		Spec:     []byte(`{"url":"http://example.test"}`),
	}
	require.NoError(t, st.CreateCheck(context.Background(), check))

	registry := probe.NewRegistry()
	registry.Register(string(store.KindHTTP), p)
	eng := engine.New(st, zerolog.Nop())
	return NewHandler(st, eng, registry, zerolog.Nop(), time.Second, 0), st, check
}

func TestTickProbesStaleChecksAndIngests(t *testing.T) {
	stub := &stubProber{
		result: probe.Result{Status: probe.OK, Message: "all good"},
		calls:  make(chan probe.Target, 1),
	}
	h, st, check := newHandlerFixture(t, stub)

	h.Tick(context.Background())

	select {
	case target := <-stub.calls:
		assert.Equal(t, check.ID, target.CheckID)
		assert.Equal(t, store.ControllerSite, target.Site)
	case <-time.After(2 * time.Second):
		t.Fatal("prober was never invoked")
	}

	require.Eventually(t, func() bool {
		events, err := st.ListCheckEvents(context.Background(), check.UUID, nil, nil)
		return err == nil && len(events) == 1
	}, 2*time.Second, 10*time.Millisecond)

	events, err := st.ListCheckEvents(context.Background(), check.UUID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, store.StatusOK, events[0].Status)
	assert.Equal(t, "all good", events[0].Message)
}

func TestFreshCheckIsNotRescheduled(t *testing.T) {
	stub := &stubProber{
		result: probe.Result{Status: probe.OK},
		calls:  make(chan probe.Target, 4),
	}
	h, st, check := newHandlerFixture(t, stub)

	h.Tick(context.Background())
	<-stub.calls
	require.Eventually(t, func() bool {
		events, err := st.ListCheckEvents(context.Background(), check.UUID, nil, nil)
		return err == nil && len(events) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// The event just written keeps the check fresh for its whole interval.
	h.Tick(context.Background())
	select {
	case <-stub.calls:
		t.Fatal("fresh check was probed again")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConfigErrorInhibitsForInterval(t *testing.T) {
	stub := &stubProber{
		err:   &probe.ConfigError{Reason: "url is required"},
		calls: make(chan probe.Target, 4),
	}
	h, st, check := newHandlerFixture(t, stub)

	h.Tick(context.Background())
	<-stub.calls

	// No event is written for a probe that could not run.
	time.Sleep(50 * time.Millisecond)
	events, err := st.ListCheckEvents(context.Background(), check.UUID, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, events)

	// The slot stays claimed, so the next tick skips the check even though
	// it is still stale.
	h.Tick(context.Background())
	select {
	case <-stub.calls:
		t.Fatal("misconfigured check was retried before its interval elapsed")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDownIntervalSpeedsUpProbing(t *testing.T) {
	st := store.NewMemory()
	down := store.Duration(time.Millisecond)
	check := &store.Check{
		Name:         "api",
		Kind:         store.KindHTTP,
		Enabled:      true,
		Interval:     store.Duration(time.Hour),
		DownInterval: &down,
		Sites:        []string{store.ControllerSite},
	}
	require.NoError(t, st.CreateCheck(context.Background(), check))

	eng := engine.New(st, zerolog.Nop())
	// One critical event confirms (thresholds clamp to 1) and opens the
	// global outage.
	require.NoError(t, eng.Ingest(context.Background(), check, &store.Event{
		Site:   store.ControllerSite,
		Status: store.StatusCritical,
	}))

	time.Sleep(5 * time.Millisecond)
	stale, err := st.ListStaleChecks(context.Background(), store.ControllerSite, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, stale, 1, "an open outage switches the check to down_interval")
}
