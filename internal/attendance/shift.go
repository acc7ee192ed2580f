// Package attendance turns significant recognition events into attendance
// records with a Present or Late status derived from the user's shift.
package attendance

import (
	"context"
	"time"

	"github.com/visiongate/visiongate/internal/datastore"
	"github.com/visiongate/visiongate/internal/errors"
)

// Status classifies an attendance event against its shift window.
type Status string

const (
	StatusPresent Status = "Present"
	StatusLate    Status = "Late"
)

// ShiftSource yields shift assignments for a user on a given day.
type ShiftSource interface {
	ActiveUserShifts(ctx context.Context, userID string, day time.Time) ([]datastore.UserShift, error)
}

// StatusEngine resolves the applicable shift and computes statuses.
type StatusEngine struct {
	shifts ShiftSource
}

// NewStatusEngine builds an engine over the given assignment source.
func NewStatusEngine(shifts ShiftSource) *StatusEngine {
	return &StatusEngine{shifts: shifts}
}

// CurrentShift picks the assignment governing the given instant. Among
// assignments covering the day, the one with the latest effective date wins;
// a tie keeps the first one returned by the source.
func (e *StatusEngine) CurrentShift(ctx context.Context, userID string, at time.Time) (*datastore.UserShift, error) {
	assignments, err := e.shifts.ActiveUserShifts(ctx, userID, at)
	if err != nil {
		return nil, err
	}
	if len(assignments) == 0 {
		return nil, nil
	}
	best := &assignments[0]
	for i := 1; i < len(assignments); i++ {
		if assignments[i].EffectiveDate.After(best.EffectiveDate) {
			best = &assignments[i]
		}
	}
	return best, nil
}

// ComputeStatus classifies an arrival time against a shift. Arrivals at or
// before start plus grace are Present; anything after is Late, with lateBy
// measured from the grace deadline.
//
// A shift whose end precedes its start crosses midnight and is anchored on
// its start day. Arrivals before the shift's end on the following calendar
// day still belong to the previous day's window.
func (e *StatusEngine) ComputeStatus(shift *datastore.Shift, at time.Time) (Status, time.Duration) {
	// No shift window to be late against.
	if shift == nil {
		return StatusPresent, 0
	}

	anchor := shiftAnchor(shift, at)
	start := anchor.Add(time.Duration(shift.StartMinutes) * time.Minute)
	deadline := start.Add(time.Duration(shift.GraceMinutes) * time.Minute)

	if !at.After(deadline) {
		return StatusPresent, 0
	}
	return StatusLate, at.Sub(deadline)
}

// shiftAnchor returns midnight of the day the shift window starts on. For a
// midnight-crossing shift, an arrival earlier in the day than the shift's
// end belongs to the window that started the previous day.
func shiftAnchor(shift *datastore.Shift, at time.Time) time.Time {
	day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, at.Location())
	if shift.EndMinutes < shift.StartMinutes {
		minuteOfDay := at.Hour()*60 + at.Minute()
		if minuteOfDay <= shift.EndMinutes {
			return day.AddDate(0, 0, -1)
		}
	}
	return day
}

// LateDuration reports how far past the grace deadline an arrival is, or
// zero when the user is on time or has no current shift.
func (e *StatusEngine) LateDuration(ctx context.Context, userID string, at time.Time) (time.Duration, error) {
	assignment, err := e.CurrentShift(ctx, userID, at)
	if err != nil {
		return 0, err
	}
	if assignment == nil {
		return 0, nil
	}
	_, lateBy := e.ComputeStatus(&assignment.Shift, at)
	return lateBy, nil
}

// Classify resolves the user's shift and computes the status in one call.
func (e *StatusEngine) Classify(ctx context.Context, userID string, at time.Time) (Status, time.Duration, *datastore.UserShift, error) {
	assignment, err := e.CurrentShift(ctx, userID, at)
	if err != nil {
		return "", 0, nil, errors.New(err).
			Component("attendance").
			Category(errors.CategoryDatabase).
			Context("user", userID).
			Build()
	}
	if assignment == nil {
		return StatusPresent, 0, nil, nil
	}
	status, lateBy := e.ComputeStatus(&assignment.Shift, at)
	return status, lateBy, assignment, nil
}
