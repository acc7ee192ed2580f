package attendance

import (
	"context"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/visiongate/visiongate/internal/datastore"
	"github.com/visiongate/visiongate/internal/decoder"
	"github.com/visiongate/visiongate/internal/errors"
	"github.com/visiongate/visiongate/internal/logging"
)

// Logged describes a persisted attendance record handed to listeners.
type Logged struct {
	Record datastore.AttendanceRecord
	Event  *decoder.RecognitionEvent
}

// LoggedFunc receives notifications after a record is persisted. It runs on
// the recorder's goroutine and must not block.
type LoggedFunc func(Logged)

// Recorder persists significant recognition events exactly once per
// EventID and enriches them with user names and shift statuses.
type Recorder struct {
	store  datastore.Interface
	engine *StatusEngine
	users  *gocache.Cache
	log    *slog.Logger

	onLogged []LoggedFunc
}

// NewRecorder wires a recorder to a store. User lookups are cached for five
// minutes so a busy entrance does not hammer the users table.
func NewRecorder(store datastore.Interface, engine *StatusEngine) *Recorder {
	return &Recorder{
		store:  store,
		engine: engine,
		users:  gocache.New(5*time.Minute, 10*time.Minute),
		log:    logging.ForService("attendance"),
	}
}

// OnLogged registers a listener for persisted records.
func (r *Recorder) OnLogged(fn LoggedFunc) {
	r.onLogged = append(r.onLogged, fn)
}

// RecordIfSignificant persists the event when it carries a matched
// candidate above the similarity threshold. Non-significant events and
// replays of already-logged EventIDs are dropped without error.
func (r *Recorder) RecordIfSignificant(ctx context.Context, ev *decoder.RecognitionEvent) error {
	if ev == nil || !ev.Significant || ev.Candidate == nil {
		return nil
	}

	userID := ev.Candidate.ExternalID
	user := r.resolveUser(ctx, userID)

	status, lateBy, assignment, err := r.engine.Classify(ctx, userID, ev.Timestamp)
	if err != nil {
		// Shift lookup failure must not lose the attendance fact; fall
		// back to the no-shift status.
		r.log.Warn("shift classification failed, recording as present",
			"user", userID, "error", err)
		status, lateBy, assignment = StatusPresent, 0, nil
	}

	rec := datastore.AttendanceRecord{
		EventID:    ev.EventID,
		UserID:     userID,
		UserName:   user.Name,
		Department: user.Department,
		Position:   user.Position,
		Gender:     user.Gender,
		Channel:    ev.Channel,
		Similarity: ev.Similarity,
		Status:     string(status),
		LateBy:     lateBy,
		LoggedAt:   ev.Timestamp,

		SceneImage:     ev.SceneImage,
		FaceImage:      ev.FaceImage,
		CandidateImage: ev.CandidateImage,
	}
	if assignment != nil {
		shiftID := assignment.ShiftID
		rec.ShiftID = &shiftID
	}

	if err := r.store.SaveAttendance(ctx, &rec); err != nil {
		if errors.Is(err, datastore.ErrDuplicateEvent) {
			r.log.Debug("duplicate attendance event dropped", "event_id", ev.EventID)
			return nil
		}
		return err
	}

	r.log.Info("attendance logged",
		"user", userID, "name", user.Name, "status", rec.Status,
		"similarity", ev.Similarity, "channel", ev.Channel)

	logged := Logged{Record: rec, Event: ev}
	for _, fn := range r.onLogged {
		fn(logged)
	}
	return nil
}

// resolveUser fetches enrichment details for a user. Lookup failure yields
// a zero user so the record still lands with empty enrichment fields.
func (r *Recorder) resolveUser(ctx context.Context, userID string) datastore.FaceUser {
	if cached, ok := r.users.Get(userID); ok {
		return cached.(datastore.FaceUser)
	}
	user, err := r.store.GetFaceUser(ctx, userID)
	if err != nil {
		return datastore.FaceUser{}
	}
	r.users.Set(userID, *user, gocache.DefaultExpiration)
	return *user
}
