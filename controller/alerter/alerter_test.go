package alerter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itskum47/defcon/controller/store"
)

func seedOutage(t *testing.T, st *store.Memory) (*store.Check, *store.Outage) {
	t.Helper()
	check := &store.Check{
		Name:     "api",
		Kind:     store.KindHTTP,
		Enabled:  true,
		Interval: store.Duration(time.Minute),
		Sites:    []string{"eu-1"},
	}
	require.NoError(t, st.CreateCheck(context.Background(), check))

	outage := &store.Outage{CheckID: check.ID, StartedOn: time.Now().UTC()}
	err := st.InTx(context.Background(), func(tx store.OutageTx) error {
		return tx.InsertOutage(context.Background(), outage)
	})
	require.NoError(t, err)
	return check, outage
}

func TestWebhookAdapterEnvelope(t *testing.T) {
	var got webhookEnvelope
	var user, pass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ = r.BasicAuth()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	st := store.NewMemory()
	check, outage := seedOutage(t, st)

	username, password := "alert", "hunter2"
	target := &store.Alerter{Kind: store.AlerterWebhook, Name: "ops", URL: &srv.URL, Username: &username, Password: &password}
	require.NoError(t, st.CreateAlerter(context.Background(), target))

	d := NewDispatcher(st, zerolog.Nop(), "", "")
	check.AlerterUUID = &target.UUID
	d.Dispatch(context.Background(), Edge{Check: check, Outage: outage})

	assert.Equal(t, "down", got.Level)
	assert.Equal(t, check.UUID, got.Check.UUID)
	assert.Equal(t, outage.UUID, got.Outage.UUID)
	assert.Equal(t, "alert", user)
	assert.Equal(t, "hunter2", pass)

	timeline, err := st.ListTimeline(context.Background(), outage.UUID)
	require.NoError(t, err)
	require.Len(t, timeline, 1)
	assert.Equal(t, store.TimelineAlertDispatched, timeline[0].Kind)
}

func TestPagerdutyDedupKeySharedAcrossTriggerAndResolve(t *testing.T) {
	var events []pagerdutyEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var e pagerdutyEvent
		require.NoError(t, json.NewDecoder(r.Body).Decode(&e))
		events = append(events, e)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	st := store.NewMemory()
	check, outage := seedOutage(t, st)

	routingKey := "pd-routing-key"
	target := &store.Alerter{Kind: store.AlerterPagerduty, Name: "oncall", Password: &routingKey}
	require.NoError(t, st.CreateAlerter(context.Background(), target))
	check.AlerterUUID = &target.UUID

	d := NewDispatcher(st, zerolog.Nop(), "", "")
	d.adapters[store.AlerterPagerduty] = &Pagerduty{client: srv.Client(), endpoint: srv.URL}

	d.Dispatch(context.Background(), Edge{Check: check, Outage: outage})
	d.Dispatch(context.Background(), Edge{Check: check, Outage: outage, Resolved: true})

	require.Len(t, events, 2)
	assert.Equal(t, "trigger", events[0].EventAction)
	assert.Equal(t, "resolve", events[1].EventAction)
	assert.Equal(t, outage.UUID, events[0].DedupKey)
	assert.Equal(t, events[0].DedupKey, events[1].DedupKey)
	assert.Equal(t, routingKey, events[0].RoutingKey)
}

func TestSilentCheckSkipsDispatch(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	st := store.NewMemory()
	check, outage := seedOutage(t, st)
	check.Silent = true

	target := &store.Alerter{Kind: store.AlerterWebhook, Name: "ops", URL: &srv.URL}
	require.NoError(t, st.CreateAlerter(context.Background(), target))
	check.AlerterUUID = &target.UUID

	d := NewDispatcher(st, zerolog.Nop(), "", "")
	d.Dispatch(context.Background(), Edge{Check: check, Outage: outage})

	assert.Zero(t, calls)
	timeline, err := st.ListTimeline(context.Background(), outage.UUID)
	require.NoError(t, err)
	assert.Empty(t, timeline)
}

func TestNoopLeavesNoTimelineEntry(t *testing.T) {
	st := store.NewMemory()
	check, outage := seedOutage(t, st)

	target := &store.Alerter{Kind: store.AlerterNoop, Name: "void"}
	require.NoError(t, st.CreateAlerter(context.Background(), target))
	check.AlerterUUID = &target.UUID

	d := NewDispatcher(st, zerolog.Nop(), "", "")
	d.Dispatch(context.Background(), Edge{Check: check, Outage: outage})

	timeline, err := st.ListTimeline(context.Background(), outage.UUID)
	require.NoError(t, err)
	assert.Empty(t, timeline)
}

func TestFallbackAlerterResolution(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	st := store.NewMemory()
	check, outage := seedOutage(t, st)

	fallback := &store.Alerter{Kind: store.AlerterWebhook, Name: "fallback", URL: &srv.URL}
	require.NoError(t, st.CreateAlerter(context.Background(), fallback))

	// No alerter on the check, no default configured.
	d := NewDispatcher(st, zerolog.Nop(), "", fallback.UUID)
	d.Dispatch(context.Background(), Edge{Check: check, Outage: outage})

	assert.Equal(t, 1, calls)
}
