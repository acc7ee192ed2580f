package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visiongate/visiongate/internal/datastore"
)

type stubShiftSource struct {
	assignments []datastore.UserShift
	err         error
}

func (s *stubShiftSource) ActiveUserShifts(context.Context, string, time.Time) ([]datastore.UserShift, error) {
	return s.assignments, s.err
}

func morningShift() *datastore.Shift {
	return &datastore.Shift{
		ID:           1,
		Name:         "Morning",
		StartMinutes: 9 * 60,
		EndMinutes:   17 * 60,
		GraceMinutes: 15,
		Active:       true,
	}
}

func TestComputeStatusGraceBoundary(t *testing.T) {
	engine := NewStatusEngine(&stubShiftSource{})
	shift := morningShift()
	day := func(h, m, s int) time.Time {
		return time.Date(2026, 8, 30, h, m, s, 0, time.UTC)
	}

	tests := []struct {
		name   string
		at     time.Time
		status Status
		lateBy time.Duration
	}{
		{"well before start", day(8, 30, 0), StatusPresent, 0},
		{"exactly at start", day(9, 0, 0), StatusPresent, 0},
		{"one second inside grace", day(9, 14, 59), StatusPresent, 0},
		{"exactly at grace deadline", day(9, 15, 0), StatusPresent, 0},
		{"one second past grace", day(9, 15, 1), StatusLate, time.Second},
		{"an hour late", day(10, 15, 0), StatusLate, time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, lateBy := engine.ComputeStatus(shift, tt.at)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.lateBy, lateBy)
		})
	}
}

func TestComputeStatusNilShift(t *testing.T) {
	engine := NewStatusEngine(&stubShiftSource{})
	status, lateBy := engine.ComputeStatus(nil, time.Now())
	assert.Equal(t, StatusPresent, status)
	assert.Zero(t, lateBy)
}

func TestComputeStatusMidnightCrossing(t *testing.T) {
	engine := NewStatusEngine(&stubShiftSource{})
	night := &datastore.Shift{
		Name:         "Night",
		StartMinutes: 22 * 60, // 22:00
		EndMinutes:   6 * 60,  // 06:00 next day
		GraceMinutes: 10,
		Active:       true,
	}

	// 22:05 on the start day is within grace.
	status, _ := engine.ComputeStatus(night, time.Date(2026, 8, 30, 22, 5, 0, 0, time.UTC))
	assert.Equal(t, StatusPresent, status)

	// 01:00 the next day belongs to the window anchored on the 30th, which
	// puts it 2h50m past the 22:10 grace deadline.
	status, lateBy := engine.ComputeStatus(night, time.Date(2026, 8, 31, 1, 0, 0, 0, time.UTC))
	assert.Equal(t, StatusLate, status)
	assert.Equal(t, 2*time.Hour+50*time.Minute, lateBy)

	// 22:03 the next evening starts a fresh window.
	status, _ = engine.ComputeStatus(night, time.Date(2026, 8, 31, 22, 3, 0, 0, time.UTC))
	assert.Equal(t, StatusPresent, status)
}

func TestCurrentShiftLatestEffectiveDateWins(t *testing.T) {
	jan := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	source := &stubShiftSource{assignments: []datastore.UserShift{
		{ID: 1, ShiftID: 1, EffectiveDate: jan},
		{ID: 2, ShiftID: 2, EffectiveDate: feb},
	}}
	engine := NewStatusEngine(source)

	got, err := engine.CurrentShift(context.Background(), "u-1", time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, uint(2), got.ShiftID, "the 2025-02-01 assignment supersedes the earlier one")
}

func TestCurrentShiftNoAssignments(t *testing.T) {
	engine := NewStatusEngine(&stubShiftSource{})
	got, err := engine.CurrentShift(context.Background(), "u-1", time.Now())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLateDuration(t *testing.T) {
	src := &stubShiftSource{assignments: []datastore.UserShift{{
		UserID:        "u-1",
		EffectiveDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Shift:         *morningShift(),
	}}}
	engine := NewStatusEngine(src)

	late, err := engine.LateDuration(context.Background(), "u-1",
		time.Date(2026, 8, 30, 9, 45, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, late)

	onTime, err := engine.LateDuration(context.Background(), "u-1",
		time.Date(2026, 8, 30, 9, 10, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, onTime)
}

func TestLateDurationNoShift(t *testing.T) {
	engine := NewStatusEngine(&stubShiftSource{})
	late, err := engine.LateDuration(context.Background(), "u-2", time.Now())
	require.NoError(t, err)
	assert.Zero(t, late)
}

func TestClassifyWithoutShiftIsPresent(t *testing.T) {
	engine := NewStatusEngine(&stubShiftSource{})
	status, lateBy, assignment, err := engine.Classify(context.Background(), "u-9", time.Now())
	require.NoError(t, err)
	assert.Equal(t, StatusPresent, status)
	assert.Zero(t, lateBy)
	assert.Nil(t, assignment)
}
