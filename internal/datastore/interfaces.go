// Package datastore persists attendance and traffic data behind a single
// Interface so the pipeline never deals with SQL dialects directly.
package datastore

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/visiongate/visiongate/internal/conf"
	"github.com/visiongate/visiongate/internal/errors"
)

// Interface is the consumed persistence surface.
type Interface interface {
	Open() error
	Close() error

	// SaveAttendance inserts one attendance record. Inserting a record
	// whose EventID already exists returns ErrDuplicateEvent.
	SaveAttendance(ctx context.Context, rec *AttendanceRecord) error
	GetAttendance(ctx context.Context, eventID string) (*AttendanceRecord, error)
	SearchAttendance(ctx context.Context, userID string, from, to time.Time) ([]AttendanceRecord, error)

	SaveTraffic(ctx context.Context, rec *TrafficRecord) error

	// UpsertVehicleCount atomically adds delta to the bucket identified by
	// (hourStart, vehicleType, direction, junctionID), creating it at delta
	// when absent.
	UpsertVehicleCount(ctx context.Context, hourStart time.Time, vehicleType, direction, junctionID string, delta int64) error
	GetHourlyCounts(ctx context.Context, from, to time.Time, junctionID string) ([]HourlyCount, error)
	GetCountingStats(ctx context.Context, from, to time.Time, junctionID string) (*CountingStats, error)

	ActiveUserShifts(ctx context.Context, userID string, day time.Time) ([]UserShift, error)
	GetFaceUser(ctx context.Context, userID string) (*FaceUser, error)
	SaveShift(ctx context.Context, shift *Shift) error
	SaveUserShift(ctx context.Context, assignment *UserShift) error
	SaveFaceUser(ctx context.Context, user *FaceUser) error
}

// ErrDuplicateEvent reports an attendance insert whose EventID was already
// logged.
var ErrDuplicateEvent = errors.NewStd("event already recorded")

// ErrNotFound reports a lookup with no matching row.
var ErrNotFound = errors.NewStd("record not found")

// New selects the store implementation from settings. Exactly one backend
// must be enabled; validation guarantees that before we get here.
func New(settings *conf.Settings) (Interface, error) {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			Settings: settings,
			DataStore: DataStore{
				debug: settings.Debug,
			},
		}, nil
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			Settings: settings,
			DataStore: DataStore{
				debug: settings.Debug,
			},
		}, nil
	default:
		return nil, errors.Newf("no database backend enabled").
			Component("datastore").
			Category(errors.CategoryConfig).
			Build()
	}
}

// DataStore carries the shared gorm implementation; the dialect-specific
// stores embed it and provide Open.
type DataStore struct {
	DB    *gorm.DB
	debug bool
}
