package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itskum47/defcon/controller/store"
)

func TestCheckinRecordsHeartbeat(t *testing.T) {
	st := store.NewMemory()
	check := &store.Check{
		Name:     "nightly-backup",
		Kind:     store.KindDeadManSwitch,
		Enabled:  true,
		Interval: store.Duration(time.Minute),
		Spec:     []byte(`{"stale_after":"25h"}`),
	}
	require.NoError(t, st.CreateCheck(context.Background(), check))

	srv := httptest.NewServer(NewDMSServer(st, zerolog.Nop()).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/checkin/" + check.UUID)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	last, err := st.LastCheckin(context.Background(), check.ID)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.WithinDuration(t, time.Now(), *last, 5*time.Second)
}

func TestCheckinUnknownUUIDIs404(t *testing.T) {
	srv := httptest.NewServer(NewDMSServer(store.NewMemory(), zerolog.Nop()).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/checkin/no-such-check")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
