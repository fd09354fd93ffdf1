package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffHonorsWireDurations(t *testing.T) {
	r := &Runner{}

	assert.Equal(t, 30*time.Second, r.backoff(Check{Interval: "30s"}))
	assert.Equal(t, 72*time.Hour, r.backoff(Check{Interval: "3d"}))
	assert.Equal(t, 2*7*24*time.Hour, r.backoff(Check{Interval: "2w"}))
	assert.Equal(t, 365*24*time.Hour, r.backoff(Check{Interval: "1y"}))

	assert.Equal(t, time.Minute, r.backoff(Check{Interval: ""}))
	assert.Equal(t, time.Minute, r.backoff(Check{Interval: "soon"}))
	assert.Equal(t, time.Minute, r.backoff(Check{Interval: "0s"}))
}
