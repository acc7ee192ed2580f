package datastore

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/visiongate/visiongate/internal/errors"
	"github.com/visiongate/visiongate/internal/logging"
)

// performAutoMigration brings the schema up to date for a freshly opened
// connection.
func performAutoMigration(db *gorm.DB, debug bool, dialect string, connectionInfo string) error {
	if err := db.AutoMigrate(
		&AttendanceRecord{},
		&TrafficRecord{},
		&VehicleCount{},
		&Shift{},
		&UserShift{},
		&FaceUser{},
	); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("dialect", dialect).
			Build()
	}
	if debug {
		logging.ForService("datastore").Debug("schema migrated",
			"dialect", dialect, "connection", connectionInfo)
	}
	return nil
}

func dbError(op string, err error) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", op).
		Build()
}

// Close releases the underlying connection pool.
func (ds *DataStore) Close() error {
	if ds.DB == nil {
		return nil
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return dbError("close", err)
	}
	if err := sqlDB.Close(); err != nil {
		return dbError("close", err)
	}
	ds.DB = nil
	return nil
}

// SaveAttendance inserts one record, mapping unique-index violations on
// EventID onto ErrDuplicateEvent.
func (ds *DataStore) SaveAttendance(ctx context.Context, rec *AttendanceRecord) error {
	if err := ds.DB.WithContext(ctx).Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEvent
		}
		return dbError("save attendance", err)
	}
	return nil
}

func (ds *DataStore) GetAttendance(ctx context.Context, eventID string) (*AttendanceRecord, error) {
	var rec AttendanceRecord
	err := ds.DB.WithContext(ctx).Where("event_id = ?", eventID).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, dbError("get attendance", err)
	}
	return &rec, nil
}

func (ds *DataStore) SearchAttendance(ctx context.Context, userID string, from, to time.Time) ([]AttendanceRecord, error) {
	var recs []AttendanceRecord
	q := ds.DB.WithContext(ctx).Where("logged_at >= ? AND logged_at < ?", from, to)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	if err := q.Order("logged_at").Find(&recs).Error; err != nil {
		return nil, dbError("search attendance", err)
	}
	return recs, nil
}

func (ds *DataStore) SaveTraffic(ctx context.Context, rec *TrafficRecord) error {
	if err := ds.DB.WithContext(ctx).Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEvent
		}
		return dbError("save traffic", err)
	}
	return nil
}

// UpsertVehicleCount increments a bucket inside a single statement so
// concurrent writers never lose updates.
func (ds *DataStore) UpsertVehicleCount(ctx context.Context, hourStart time.Time, vehicleType, direction, junctionID string, delta int64) error {
	row := VehicleCount{
		HourStart:   hourStart,
		VehicleType: vehicleType,
		Direction:   direction,
		JunctionID:  junctionID,
		Count:       delta,
	}
	err := ds.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "hour_start"}, {Name: "vehicle_type"},
			{Name: "direction"}, {Name: "junction_id"},
		},
		DoUpdates: clause.Assignments(map[string]any{
			"count":      gorm.Expr("count + ?", delta),
			"updated_at": time.Now(),
		}),
	}).Create(&row).Error
	if err != nil {
		return dbError("upsert vehicle count", err)
	}
	return nil
}

func (ds *DataStore) GetHourlyCounts(ctx context.Context, from, to time.Time, junctionID string) ([]HourlyCount, error) {
	q := ds.DB.WithContext(ctx).Model(&VehicleCount{}).
		Where("hour_start >= ? AND hour_start < ?", from, to)
	if junctionID != "" {
		q = q.Where("junction_id = ?", junctionID)
	}
	var rows []HourlyCount
	err := q.Select("hour_start, vehicle_type, direction, junction_id, count").
		Order("hour_start, vehicle_type, direction").Scan(&rows).Error
	if err != nil {
		return nil, dbError("hourly counts", err)
	}
	return rows, nil
}

func (ds *DataStore) GetCountingStats(ctx context.Context, from, to time.Time, junctionID string) (*CountingStats, error) {
	rows, err := ds.GetHourlyCounts(ctx, from, to, junctionID)
	if err != nil {
		return nil, err
	}
	stats := &CountingStats{
		ByType:      make(map[string]int64),
		ByDirection: make(map[string]int64),
		Matrix:      make(map[string]map[string]int64),
	}
	for _, r := range rows {
		stats.Total += r.Count
		stats.ByType[r.VehicleType] += r.Count
		stats.ByDirection[r.Direction] += r.Count
		if stats.Matrix[r.VehicleType] == nil {
			stats.Matrix[r.VehicleType] = make(map[string]int64)
		}
		stats.Matrix[r.VehicleType][r.Direction] += r.Count
	}
	return stats, nil
}

// ActiveUserShifts returns the assignments covering the given day, with the
// shift preloaded. Only active shifts qualify.
func (ds *DataStore) ActiveUserShifts(ctx context.Context, userID string, day time.Time) ([]UserShift, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	var assignments []UserShift
	err := ds.DB.WithContext(ctx).
		Preload("Shift").
		Joins("JOIN shifts ON shifts.id = user_shifts.shift_id AND shifts.active = ?", true).
		Where("user_shifts.user_id = ?", userID).
		Where("user_shifts.effective_date <= ?", dayStart).
		Where("user_shifts.end_date IS NULL OR user_shifts.end_date >= ?", dayStart).
		Find(&assignments).Error
	if err != nil {
		return nil, dbError("active user shifts", err)
	}
	return assignments, nil
}

func (ds *DataStore) GetFaceUser(ctx context.Context, userID string) (*FaceUser, error) {
	var user FaceUser
	err := ds.DB.WithContext(ctx).Where("user_id = ?", userID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, dbError("get face user", err)
	}
	return &user, nil
}

func (ds *DataStore) SaveShift(ctx context.Context, shift *Shift) error {
	if err := ds.DB.WithContext(ctx).Save(shift).Error; err != nil {
		return dbError("save shift", err)
	}
	return nil
}

func (ds *DataStore) SaveUserShift(ctx context.Context, assignment *UserShift) error {
	if err := ds.DB.WithContext(ctx).Save(assignment).Error; err != nil {
		return dbError("save user shift", err)
	}
	return nil
}

func (ds *DataStore) SaveFaceUser(ctx context.Context, user *FaceUser) error {
	if err := ds.DB.WithContext(ctx).Save(user).Error; err != nil {
		return dbError("save face user", err)
	}
	return nil
}
