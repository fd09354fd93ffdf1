package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"10s": 10 * time.Second,
		"5m":  5 * time.Minute,
		"1h":  time.Hour,
		"72h": 72 * time.Hour,
		"3d":  3 * 24 * time.Hour,
		"2w":  14 * 24 * time.Hour,
		"1y":  365 * 24 * time.Hour,
	}
	for in, want := range cases {
		got, err := ParseDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got.Std(), in)
	}

	for _, in := range []string{"", "abc", "-5m", "-1d", "d", "10x"} {
		_, err := ParseDuration(in)
		assert.Error(t, err, in)
	}
}

func TestDurationJSONRoundTrip(t *testing.T) {
	for _, in := range []string{"10s", "5m", "3d", "1y"} {
		parsed, err := ParseDuration(in)
		require.NoError(t, err)

		raw, err := json.Marshal(parsed)
		require.NoError(t, err)
		assert.Equal(t, `"`+in+`"`, string(raw))

		var back Duration
		require.NoError(t, json.Unmarshal(raw, &back))
		assert.Equal(t, parsed, back)
	}
}

func TestDurationSecondsRoundTrip(t *testing.T) {
	d, err := ParseDuration("90s")
	require.NoError(t, err)
	assert.Equal(t, int64(90), d.Seconds())
	assert.Equal(t, d, FromSeconds(90))
}
