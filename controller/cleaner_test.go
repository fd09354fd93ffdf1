package main

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itskum47/defcon/controller/store"
)

// seedClosedOutage writes a resolved outage, its site outage and events,
// all ended at the given time.
func seedClosedOutage(t *testing.T, st *store.Memory, check *store.Check, endedOn time.Time) {
	t.Helper()
	err := st.InTx(context.Background(), func(tx store.OutageTx) error {
		ctx := context.Background()
		so := &store.SiteOutage{
			CheckID:        check.ID,
			Site:           "eu-1",
			FailingStrikes: 1,
			StartedOn:      endedOn.Add(-time.Hour),
		}
		if err := tx.InsertSiteOutage(ctx, so); err != nil {
			return err
		}
		for i := 0; i < 2; i++ {
			event := &store.Event{
				CheckID:      check.ID,
				Site:         "eu-1",
				Status:       store.StatusCritical,
				CreatedAt:    endedOn.Add(-time.Hour),
				SiteOutageID: &so.ID,
			}
			if err := tx.InsertEvent(ctx, event); err != nil {
				return err
			}
		}
		if err := tx.CloseSiteOutage(ctx, so.ID, endedOn); err != nil {
			return err
		}

		outage := &store.Outage{CheckID: check.ID, StartedOn: endedOn.Add(-time.Hour)}
		if err := tx.InsertOutage(ctx, outage); err != nil {
			return err
		}
		return tx.CloseOutage(ctx, outage.ID, endedOn)
	})
	require.NoError(t, err)
}

func TestCleanerDeletesExpiredOutageState(t *testing.T) {
	st := store.NewMemory()
	check := &store.Check{
		Name:     "api",
		Kind:     store.KindHTTP,
		Enabled:  true,
		Interval: store.Duration(time.Minute),
		Sites:    []string{"eu-1"},
	}
	require.NoError(t, st.CreateCheck(context.Background(), check))

	seedClosedOutage(t, st, check, time.Now().UTC().AddDate(0, 0, -40))

	c := NewCleaner(st, zerolog.Nop(), time.Minute, 30*24*time.Hour)
	c.Sweep(context.Background())

	events, err := st.ListCheckEvents(context.Background(), check.UUID, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, events)

	siteOutages, err := st.ListSiteOutages(context.Background())
	require.NoError(t, err)
	assert.Empty(t, siteOutages)

	outages, err := st.ListOutages(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, outages)
}

func TestCleanerKeepsRecentAndOpenState(t *testing.T) {
	st := store.NewMemory()
	check := &store.Check{
		Name:     "api",
		Kind:     store.KindHTTP,
		Enabled:  true,
		Interval: store.Duration(time.Minute),
		Sites:    []string{"eu-1"},
	}
	require.NoError(t, st.CreateCheck(context.Background(), check))

	// One resolved recently, one still open.
	seedClosedOutage(t, st, check, time.Now().UTC().AddDate(0, 0, -5))
	err := st.InTx(context.Background(), func(tx store.OutageTx) error {
		return tx.InsertOutage(context.Background(), &store.Outage{CheckID: check.ID, StartedOn: time.Now().UTC()})
	})
	require.NoError(t, err)

	c := NewCleaner(st, zerolog.Nop(), time.Minute, 30*24*time.Hour)
	c.Sweep(context.Background())

	outages, err := st.ListOutages(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Len(t, outages, 2, "recent and open outages survive the sweep")

	siteOutages, err := st.ListSiteOutages(context.Background())
	require.NoError(t, err)
	assert.Len(t, siteOutages, 1)
}
