package datastore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *DataStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, performAutoMigration(db, false, "sqlite", "memory"))
	return &DataStore{DB: db}
}

func TestSaveAttendanceRejectsDuplicateEventID(t *testing.T) {
	ds := newTestStore(t)
	ctx := context.Background()

	rec := &AttendanceRecord{
		EventID:  "evt-100",
		UserID:   "u-1",
		UserName: "Alice",
		Status:   "Present",
		LoggedAt: time.Now(),
	}
	require.NoError(t, ds.SaveAttendance(ctx, rec))

	dup := &AttendanceRecord{EventID: "evt-100", UserID: "u-1", LoggedAt: time.Now()}
	err := ds.SaveAttendance(ctx, dup)
	require.ErrorIs(t, err, ErrDuplicateEvent)

	recs, err := ds.SearchAttendance(ctx, "u-1", time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, recs, 1, "replayed event must not create a second record")
}

func TestGetAttendanceNotFound(t *testing.T) {
	ds := newTestStore(t)
	_, err := ds.GetAttendance(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertVehicleCountConcurrent(t *testing.T) {
	ds := newTestStore(t)
	ctx := context.Background()

	hour := time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC)
	const writers = 20

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, ds.UpsertVehicleCount(ctx, hour, "Car", "Left", "J-1", 1))
		}()
	}
	wg.Wait()

	rows, err := ds.GetHourlyCounts(ctx, hour, hour.Add(time.Hour), "J-1")
	require.NoError(t, err)
	require.Len(t, rows, 1, "all increments must land in one bucket")
	assert.Equal(t, int64(writers), rows[0].Count)
}

func TestUpsertVehicleCountSeparatesBuckets(t *testing.T) {
	ds := newTestStore(t)
	ctx := context.Background()
	hour := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)

	require.NoError(t, ds.UpsertVehicleCount(ctx, hour, "Car", "Left", "J-1", 2))
	require.NoError(t, ds.UpsertVehicleCount(ctx, hour, "Car", "Right", "J-1", 3))
	require.NoError(t, ds.UpsertVehicleCount(ctx, hour.Add(time.Hour), "Car", "Left", "J-1", 5))

	stats, err := ds.GetCountingStats(ctx, hour, hour.Add(2*time.Hour), "J-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), stats.Total)
	assert.Equal(t, int64(10), stats.ByType["Car"])
	assert.Equal(t, int64(7), stats.ByDirection["Left"])
	assert.Equal(t, int64(3), stats.ByDirection["Right"])
	assert.Equal(t, int64(7), stats.Matrix["Car"]["Left"])
	assert.Equal(t, int64(3), stats.Matrix["Car"]["Right"])
}

func TestGetHourlyCountsDeterministicOrder(t *testing.T) {
	ds := newTestStore(t)
	ctx := context.Background()
	hour := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)

	require.NoError(t, ds.UpsertVehicleCount(ctx, hour, "Truck", "Right", "J-1", 1))
	require.NoError(t, ds.UpsertVehicleCount(ctx, hour, "Car", "Right", "J-1", 1))
	require.NoError(t, ds.UpsertVehicleCount(ctx, hour, "Car", "Left", "J-1", 1))
	require.NoError(t, ds.UpsertVehicleCount(ctx, hour.Add(-time.Hour), "Bus", "Left", "J-1", 1))

	rows, err := ds.GetHourlyCounts(ctx, hour.Add(-time.Hour), hour.Add(time.Hour), "J-1")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Bus", rows[0].VehicleType, "earlier hour first")
	assert.Equal(t, "Car", rows[1].VehicleType)
	assert.Equal(t, "Left", rows[1].Direction, "direction breaks ties within type")
	assert.Equal(t, "Right", rows[2].Direction)
	assert.Equal(t, "Truck", rows[3].VehicleType)
}

func TestActiveUserShiftsFiltering(t *testing.T) {
	ds := newTestStore(t)
	ctx := context.Background()

	morning := &Shift{Name: "Morning", StartMinutes: 9 * 60, EndMinutes: 17 * 60, GraceMinutes: 15, Active: true}
	night := &Shift{Name: "Night", StartMinutes: 22 * 60, EndMinutes: 6 * 60, GraceMinutes: 10, Active: true}
	retired := &Shift{Name: "Retired", StartMinutes: 8 * 60, EndMinutes: 16 * 60, GraceMinutes: 5, Active: false}
	for _, s := range []*Shift{morning, night, retired} {
		require.NoError(t, ds.SaveShift(ctx, s))
	}

	day := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	ended := day.AddDate(0, 0, -10)
	assignments := []*UserShift{
		{UserID: "u-1", ShiftID: morning.ID, EffectiveDate: day.AddDate(0, 0, -30)},
		{UserID: "u-1", ShiftID: night.ID, EffectiveDate: day.AddDate(0, 0, -60), EndDate: &ended},
		{UserID: "u-1", ShiftID: retired.ID, EffectiveDate: day.AddDate(0, 0, -30)},
		{UserID: "u-2", ShiftID: morning.ID, EffectiveDate: day.AddDate(0, 0, -1)},
	}
	for _, a := range assignments {
		require.NoError(t, ds.SaveUserShift(ctx, a))
	}

	got, err := ds.ActiveUserShifts(ctx, "u-1", day.Add(10*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1, "ended and inactive-shift assignments must be excluded")
	assert.Equal(t, "Morning", got[0].Shift.Name)
}

func TestSaveTrafficAndSearch(t *testing.T) {
	ds := newTestStore(t)
	ctx := context.Background()

	rec := &TrafficRecord{
		EventID:     "3_41_20260830120000",
		Channel:     3,
		JunctionID:  "J-9",
		VehicleType: "Truck",
		Direction:   "Straight",
		Speed:       42.5,
		Confidence:  91,
		PlateNumber: "ABC123",
		OccurredAt:  time.Now(),
	}
	require.NoError(t, ds.SaveTraffic(ctx, rec))
	assert.ErrorIs(t, ds.SaveTraffic(ctx, &TrafficRecord{EventID: rec.EventID, OccurredAt: time.Now()}), ErrDuplicateEvent)
}

func TestFaceUserRoundTrip(t *testing.T) {
	ds := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, ds.SaveFaceUser(ctx, &FaceUser{UserID: "emp-7", Name: "Bob", Group: "Staff"}))
	user, err := ds.GetFaceUser(ctx, "emp-7")
	require.NoError(t, err)
	assert.Equal(t, "Bob", user.Name)

	_, err = ds.GetFaceUser(ctx, "emp-8")
	assert.ErrorIs(t, err, ErrNotFound)
}
