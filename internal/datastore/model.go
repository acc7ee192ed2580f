package datastore

import (
	"time"
)

// AttendanceRecord is one logged attendance event. EventID carries the
// device-assigned identity so replays of the same recognition are rejected
// by the unique index instead of creating duplicates.
type AttendanceRecord struct {
	ID         uint   `gorm:"primaryKey"`
	EventID    string `gorm:"uniqueIndex;size:64;not null"`
	UserID     string `gorm:"index;size:64;not null"`
	UserName   string `gorm:"size:128"`
	Department string `gorm:"size:64"`
	Position   string `gorm:"size:64"`
	Gender     string `gorm:"size:16"`
	Channel    int    `gorm:"index"`
	Similarity int
	Status     string `gorm:"size:16"` // Present or Late
	ShiftID    *uint  `gorm:"index"`
	LateBy     time.Duration
	LoggedAt   time.Time `gorm:"index;not null"`

	SceneImage     []byte `gorm:"type:blob"`
	FaceImage      []byte `gorm:"type:blob"`
	CandidateImage []byte `gorm:"type:blob"`

	CreatedAt time.Time
}

// TrafficRecord is one decoded traffic junction event.
type TrafficRecord struct {
	ID          uint   `gorm:"primaryKey"`
	EventID     string `gorm:"uniqueIndex;size:96;not null"`
	Channel     int    `gorm:"index"`
	JunctionID  string `gorm:"index;size:64"`
	VehicleType string `gorm:"size:32"`
	Direction   string `gorm:"size:16"`
	Speed       float64
	Confidence  int
	PlateNumber string    `gorm:"size:32"`
	Color       string    `gorm:"size:32"`
	OccurredAt  time.Time `gorm:"index;not null"`
	CreatedAt   time.Time
}

// VehicleCount is an hourly aggregate bucket. The composite unique index is
// the upsert conflict target, so concurrent increments for the same bucket
// resolve inside the database.
type VehicleCount struct {
	ID          uint      `gorm:"primaryKey"`
	HourStart   time.Time `gorm:"uniqueIndex:idx_vehicle_bucket,priority:1;not null"`
	VehicleType string    `gorm:"uniqueIndex:idx_vehicle_bucket,priority:2;size:32;not null"`
	Direction   string    `gorm:"uniqueIndex:idx_vehicle_bucket,priority:3;size:16;not null"`
	JunctionID  string    `gorm:"uniqueIndex:idx_vehicle_bucket,priority:4;size:64;not null"`
	Count       int64     `gorm:"not null"`
	UpdatedAt   time.Time
}

// Shift is a work schedule window. Start and End are minutes from midnight;
// an End smaller than Start means the shift crosses midnight and its date
// anchor is the start day.
type Shift struct {
	ID           uint   `gorm:"primaryKey"`
	Name         string `gorm:"size:64;not null"`
	StartMinutes int    `gorm:"not null"`
	EndMinutes   int    `gorm:"not null"`
	GraceMinutes int    `gorm:"not null"`
	Active       bool   `gorm:"index"`
	CreatedAt    time.Time
}

// UserShift assigns a shift to a user over a date range. EndDate nil means
// open-ended. When assignments overlap, the one with the latest
// EffectiveDate not after the day in question wins.
type UserShift struct {
	ID            uint      `gorm:"primaryKey"`
	UserID        string    `gorm:"index;size:64;not null"`
	ShiftID       uint      `gorm:"index;not null"`
	Shift         Shift     `gorm:"foreignKey:ShiftID"`
	EffectiveDate time.Time `gorm:"index;not null"`
	EndDate       *time.Time
	CreatedAt     time.Time
}

// FaceUser links a device-side candidate identity to a person.
type FaceUser struct {
	ID         uint   `gorm:"primaryKey"`
	UserID     string `gorm:"uniqueIndex;size:64;not null"`
	Name       string `gorm:"size:128"`
	Group      string `gorm:"size:64"`
	Department string `gorm:"size:64"`
	Position   string `gorm:"size:64"`
	Gender     string `gorm:"size:16"`
	CreatedAt  time.Time
}

// HourlyCount is a read-model row for traffic reports.
type HourlyCount struct {
	HourStart   time.Time
	VehicleType string
	Direction   string
	JunctionID  string
	Count       int64
}

// CountingStats summarizes traffic counts over a window.
type CountingStats struct {
	Total       int64
	ByType      map[string]int64
	ByDirection map[string]int64
	// Matrix holds counts keyed by vehicle type, then direction.
	Matrix map[string]map[string]int64
}
