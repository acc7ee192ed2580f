// Package traffic aggregates junction events into hourly vehicle counts and
// serves counting reports.
package traffic

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/visiongate/visiongate/internal/datastore"
	"github.com/visiongate/visiongate/internal/decoder"
	"github.com/visiongate/visiongate/internal/errors"
	"github.com/visiongate/visiongate/internal/logging"
)

// ConfidenceLevel buckets detection confidence for reporting.
type ConfidenceLevel string

const (
	ConfidenceHigh    ConfidenceLevel = "High"
	ConfidenceMedium  ConfidenceLevel = "Medium"
	ConfidenceLow     ConfidenceLevel = "Low"
	ConfidenceVeryLow ConfidenceLevel = "VeryLow"
)

// LevelFor maps a raw confidence score onto its level.
func LevelFor(confidence int) ConfidenceLevel {
	switch {
	case confidence >= 90:
		return ConfidenceHigh
	case confidence >= 70:
		return ConfidenceMedium
	case confidence >= 50:
		return ConfidenceLow
	default:
		return ConfidenceVeryLow
	}
}

// BucketKey identifies an hourly count bucket.
type BucketKey struct {
	HourStart   time.Time
	VehicleType string
	Direction   string
	JunctionID  string
}

// CountUpdate describes one bucket after an increment, for push consumers.
// HourStats carries the durable current-hour aggregate for the junction; it
// is nil when the stats lookup failed.
type CountUpdate struct {
	Key        BucketKey
	Count      int64
	Confidence ConfidenceLevel
	HourStats  *datastore.CountingStats
	Event      *decoder.TrafficEvent
}

// UpdateFunc receives count updates on the aggregator's goroutine; it must
// not block.
type UpdateFunc func(CountUpdate)

// Aggregator keeps live in-memory counters mirrored into durable hourly
// buckets. The database upsert is the source of truth; the memory map only
// feeds the live update stream.
type Aggregator struct {
	store        datastore.Interface
	queryTimeout time.Duration
	log          *slog.Logger

	mu       sync.Mutex
	counters map[BucketKey]int64

	onUpdate []UpdateFunc
}

// NewAggregator builds an aggregator. queryTimeout bounds report queries.
func NewAggregator(store datastore.Interface, queryTimeout time.Duration) *Aggregator {
	return &Aggregator{
		store:        store,
		queryTimeout: queryTimeout,
		log:          logging.ForService("traffic"),
		counters:     make(map[BucketKey]int64),
	}
}

// OnUpdate registers a live count listener.
func (a *Aggregator) OnUpdate(fn UpdateFunc) {
	a.onUpdate = append(a.onUpdate, fn)
}

// HourStart floors a timestamp to its hour bucket.
func HourStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}

// CountVehicle folds one junction event into its hourly bucket. Only the
// event's Start action counts; Stop actions are positional updates of the
// same object and would double-count.
func (a *Aggregator) CountVehicle(ctx context.Context, ev *decoder.TrafficEvent) error {
	if ev == nil {
		return nil
	}
	if ev.EventAction != "Start" {
		return nil
	}

	key := BucketKey{
		HourStart:   HourStart(ev.Timestamp),
		VehicleType: ev.VehicleType,
		Direction:   string(ev.Direction),
		JunctionID:  strconv.Itoa(ev.JunctionID),
	}

	if err := a.store.UpsertVehicleCount(ctx, key.HourStart, key.VehicleType, key.Direction, key.JunctionID, 1); err != nil {
		return err
	}

	a.mu.Lock()
	a.counters[key]++
	count := a.counters[key]
	a.mu.Unlock()

	hourStats, err := a.store.GetCountingStats(ctx, key.HourStart, key.HourStart.Add(time.Hour), key.JunctionID)
	if err != nil {
		// The push still goes out; it just lacks the durable aggregate.
		a.log.Warn("current-hour stats lookup failed",
			"junction", key.JunctionID, "error", err)
	}

	update := CountUpdate{
		Key:        key,
		Count:      count,
		Confidence: LevelFor(ev.Confidence),
		HourStats:  hourStats,
		Event:      ev,
	}
	for _, fn := range a.onUpdate {
		fn(update)
	}
	return nil
}

// LiveCount returns the in-memory count for a bucket since startup.
func (a *Aggregator) LiveCount(key BucketKey) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counters[key]
}

// GetCountingStats summarizes durable counts over a window. The query is
// bounded by the configured timeout; overruns surface as timeout errors.
func (a *Aggregator) GetCountingStats(ctx context.Context, from, to time.Time, junctionID string) (*datastore.CountingStats, error) {
	ctx, cancel := context.WithTimeout(ctx, a.queryTimeout)
	defer cancel()

	stats, err := a.store.GetCountingStats(ctx, from, to, junctionID)
	if err != nil {
		return nil, a.wrapQueryErr(ctx, "counting stats", err)
	}
	return stats, nil
}

// GetHourlyCounts returns the durable hourly buckets over a window.
func (a *Aggregator) GetHourlyCounts(ctx context.Context, from, to time.Time, junctionID string) ([]datastore.HourlyCount, error) {
	ctx, cancel := context.WithTimeout(ctx, a.queryTimeout)
	defer cancel()

	rows, err := a.store.GetHourlyCounts(ctx, from, to, junctionID)
	if err != nil {
		return nil, a.wrapQueryErr(ctx, "hourly counts", err)
	}
	return rows, nil
}

func (a *Aggregator) wrapQueryErr(ctx context.Context, query string, err error) error {
	if ctx.Err() != nil {
		return errors.TimeoutError(query, a.queryTimeout)
	}
	return errors.New(err).
		Component("traffic").
		Category(errors.CategoryDatabase).
		Context("query", query).
		Build()
}
