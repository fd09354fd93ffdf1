package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// DMSSpec drives the deadmanswitch prober.
type DMSSpec struct {
	StaleAfter Duration `json:"stale_after"`
}

// CheckinReader exposes the last recorded heartbeat for a check.
type CheckinReader interface {
	LastCheckin(ctx context.Context, checkID int64) (*time.Time, error)
}

// DeadManSwitch is the inverted prober: instead of reaching out, it fails
// when an external job has stopped checking in. Controller-only, since it
// reads heartbeat state.
type DeadManSwitch struct {
	checkins CheckinReader
}

func NewDeadManSwitch(r CheckinReader) *DeadManSwitch {
	return &DeadManSwitch{checkins: r}
}

func (p *DeadManSwitch) Probe(ctx context.Context, target Target) (Result, error) {
	var spec DMSSpec
	if err := json.Unmarshal(target.Spec, &spec); err != nil {
		return Result{}, configErrorf("deadmanswitch spec: %v", err)
	}
	if spec.StaleAfter <= 0 {
		return Result{}, configErrorf("deadmanswitch spec: stale_after is required")
	}

	last, err := p.checkins.LastCheckin(ctx, target.CheckID)
	if err != nil {
		return Result{}, fmt.Errorf("read last checkin: %w", err)
	}
	if last == nil {
		return Result{Status: Critical, Message: "never checked in"}, nil
	}

	age := time.Since(*last)
	if age > spec.StaleAfter.Std() {
		return Result{Status: Critical, Message: fmt.Sprintf("last checkin %s ago, limit %s", age.Round(time.Second), spec.StaleAfter.Std())}, nil
	}
	return Result{Status: OK, Message: fmt.Sprintf("checked in %s ago", age.Round(time.Second))}, nil
}
