package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itskum47/defcon/controller/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Memory, *store.Check) {
	t.Helper()
	st := store.NewMemory()
	check := &store.Check{
		Name:             "api",
		Kind:             store.KindHTTP,
		Enabled:          true,
		Interval:         store.Duration(time.Minute),
		SiteThreshold:    2,
		PassingThreshold: 2,
		FailingThreshold: 2,
		Sites:            []string{"eu-1", "us-1"},
	}
	require.NoError(t, st.CreateCheck(context.Background(), check))
	return New(st, zerolog.Nop()), st, check
}

func submit(t *testing.T, n *Engine, check *store.Check, site string, status store.Status) {
	t.Helper()
	err := n.Ingest(context.Background(), check, &store.Event{
		Site:    site,
		Status:  status,
		Message: status.String(),
	})
	require.NoError(t, err)
}

func openSiteOutage(t *testing.T, st *store.Memory, site string) *store.SiteOutage {
	t.Helper()
	outages, err := st.ListSiteOutages(context.Background())
	require.NoError(t, err)
	for _, so := range outages {
		if so.Site == site && so.EndedOn == nil {
			return so
		}
	}
	return nil
}

func openOutages(t *testing.T, st *store.Memory) []*store.Outage {
	t.Helper()
	all, err := st.ListOutages(context.Background(), nil, nil)
	require.NoError(t, err)
	var open []*store.Outage
	for _, o := range all {
		if o.EndedOn == nil {
			open = append(open, o)
		}
	}
	return open
}

func TestSingleSiteFlapNoOutage(t *testing.T) {
	n, st, check := newTestEngine(t)

	submit(t, n, check, "eu-1", store.StatusCritical)
	so := openSiteOutage(t, st, "eu-1")
	require.NotNil(t, so)
	assert.Equal(t, 1, so.FailingStrikes)
	assert.Equal(t, 0, so.PassingStrikes)

	submit(t, n, check, "eu-1", store.StatusOK)
	so = openSiteOutage(t, st, "eu-1")
	require.NotNil(t, so, "one OK must not close the outage when pt=2")
	assert.Equal(t, 1, so.FailingStrikes)
	assert.Equal(t, 1, so.PassingStrikes)
	assert.Empty(t, openOutages(t, st))

	submit(t, n, check, "eu-1", store.StatusOK)
	assert.Nil(t, openSiteOutage(t, st, "eu-1"))
	assert.Empty(t, openOutages(t, st))

	timeline, err := st.ListOutages(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, timeline, "no global outage may exist after a suppressed flap")
}

func TestSingleSiteConfirmedNoQuorum(t *testing.T) {
	n, st, check := newTestEngine(t)

	submit(t, n, check, "eu-1", store.StatusCritical)
	submit(t, n, check, "eu-1", store.StatusCritical)

	so := openSiteOutage(t, st, "eu-1")
	require.NotNil(t, so)
	assert.Equal(t, 2, so.FailingStrikes)
	assert.True(t, so.Confirmed(2, 2))
	assert.Empty(t, openOutages(t, st), "one confirmed site is below the quorum of 2")

	submit(t, n, check, "eu-1", store.StatusOK)
	submit(t, n, check, "eu-1", store.StatusOK)
	assert.Nil(t, openSiteOutage(t, st, "eu-1"))
	assert.Empty(t, openOutages(t, st))
}

func TestQuorumConfirmsAndResolves(t *testing.T) {
	n, st, check := newTestEngine(t)

	var edges []Edge
	n.OnEdge(func(ctx context.Context, e Edge) { edges = append(edges, e) })

	submit(t, n, check, "eu-1", store.StatusCritical)
	submit(t, n, check, "eu-1", store.StatusCritical)
	submit(t, n, check, "us-1", store.StatusCritical)
	assert.Empty(t, openOutages(t, st))

	submit(t, n, check, "us-1", store.StatusCritical)
	open := openOutages(t, st)
	require.Len(t, open, 1)
	require.Len(t, edges, 1)
	assert.False(t, edges[0].Resolved)
	assert.Equal(t, open[0].UUID, edges[0].Outage.UUID)

	timeline, err := st.ListTimeline(context.Background(), open[0].UUID)
	require.NoError(t, err)
	require.Len(t, timeline, 1)
	assert.Equal(t, store.TimelineConfirmed, timeline[0].Kind)

	// Recovery on one site drops the confirmed count below quorum.
	submit(t, n, check, "us-1", store.StatusOK)
	submit(t, n, check, "us-1", store.StatusOK)

	assert.Empty(t, openOutages(t, st))
	require.Len(t, edges, 2)
	assert.True(t, edges[1].Resolved)
	assert.Equal(t, edges[0].Outage.UUID, edges[1].Outage.UUID,
		"resolve must reference the outage that was confirmed")

	timeline, err = st.ListTimeline(context.Background(), open[0].UUID)
	require.NoError(t, err)
	require.Len(t, timeline, 2)
	assert.Equal(t, store.TimelineResolved, timeline[1].Kind)
}

func TestFailureDuringRecoveryResetsPassingRun(t *testing.T) {
	n, st, check := newTestEngine(t)

	submit(t, n, check, "eu-1", store.StatusCritical)
	submit(t, n, check, "eu-1", store.StatusCritical)
	submit(t, n, check, "eu-1", store.StatusOK)

	so := openSiteOutage(t, st, "eu-1")
	require.NotNil(t, so)
	assert.Equal(t, 1, so.PassingStrikes)

	submit(t, n, check, "eu-1", store.StatusWarning)
	so = openSiteOutage(t, st, "eu-1")
	require.NotNil(t, so)
	assert.Equal(t, 0, so.PassingStrikes, "a failure while recovering restarts the passing run")
	assert.Equal(t, 2, so.FailingStrikes)
}

func TestStrikesClampAtThresholds(t *testing.T) {
	n, st, check := newTestEngine(t)

	for i := 0; i < 5; i++ {
		submit(t, n, check, "eu-1", store.StatusCritical)
	}
	so := openSiteOutage(t, st, "eu-1")
	require.NotNil(t, so)
	assert.Equal(t, 2, so.FailingStrikes, "failing strikes cap at the failing threshold")
	assert.Equal(t, 0, so.PassingStrikes)
}

func TestNonOKEventsReferenceOpenSiteOutage(t *testing.T) {
	n, st, check := newTestEngine(t)

	submit(t, n, check, "eu-1", store.StatusOK)
	submit(t, n, check, "eu-1", store.StatusCritical)
	submit(t, n, check, "eu-1", store.StatusCritical)

	so := openSiteOutage(t, st, "eu-1")
	require.NotNil(t, so)

	events, err := st.ListCheckEvents(context.Background(), check.UUID, nil, nil)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for _, e := range events {
		if e.Status == store.StatusOK {
			assert.Nil(t, e.SiteOutageID)
		} else {
			require.NotNil(t, e.SiteOutageID)
			assert.Equal(t, so.ID, *e.SiteOutageID)
		}
	}

	linked, err := st.ListSiteOutageEvents(context.Background(), so.UUID)
	require.NoError(t, err)
	assert.Len(t, linked, 2)
}

func TestZeroThresholdsClampToOne(t *testing.T) {
	st := store.NewMemory()
	check := &store.Check{
		Name:     "raw",
		Kind:     store.KindTCP,
		Enabled:  true,
		Interval: store.Duration(time.Minute),
		Sites:    []string{"eu-1"},
		// All thresholds left at zero.
	}
	require.NoError(t, st.CreateCheck(context.Background(), check))
	n := New(st, zerolog.Nop())

	submit(t, n, check, "eu-1", store.StatusCritical)
	require.Len(t, openOutages(t, st), 1, "ft=pt=quorum=1 after clamping, one failure confirms")

	submit(t, n, check, "eu-1", store.StatusOK)
	assert.Empty(t, openOutages(t, st))
}
