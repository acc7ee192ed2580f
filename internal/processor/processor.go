// Package processor is the pipeline core. It takes raw analyzer callbacks
// off the device thread, decodes them on per-channel workers, and routes
// decoded events to attendance recording, traffic aggregation, persistence,
// and subscriber dispatch.
package processor

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/visiongate/visiongate/internal/attendance"
	"github.com/visiongate/visiongate/internal/datastore"
	"github.com/visiongate/visiongate/internal/decoder"
	"github.com/visiongate/visiongate/internal/device"
	"github.com/visiongate/visiongate/internal/dispatch"
	"github.com/visiongate/visiongate/internal/errors"
	"github.com/visiongate/visiongate/internal/logging"
	"github.com/visiongate/visiongate/internal/observability"
	"github.com/visiongate/visiongate/internal/traffic"
)

type rawItem struct {
	kind    decoder.EventKind
	header  any
	payload []byte
}

// Processor owns one bounded queue and one worker goroutine per channel, so
// events from a channel are processed in arrival order while channels stay
// independent.
type Processor struct {
	dec        *decoder.Decoder
	registry   *device.AnalyzerRegistry
	recorder   *attendance.Recorder
	aggregator *traffic.Aggregator
	dispatcher *dispatch.Dispatcher
	store      datastore.Interface
	metrics    *observability.Metrics
	log        *slog.Logger

	queueSize int
	processed atomic.Uint64

	mu      sync.Mutex
	queues  map[int]chan rawItem
	stopped bool

	// last decode-failure log per channel, to keep a storm of bad payloads
	// from flooding the log.
	failLogMu   sync.Mutex
	lastFailLog map[int]time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

const failLogInterval = 5 * time.Second

// New wires the pipeline together. Attendance and count updates are
// re-broadcast to their dispatch topics here so callers only deal with the
// dispatcher.
func New(
	dec *decoder.Decoder,
	registry *device.AnalyzerRegistry,
	recorder *attendance.Recorder,
	aggregator *traffic.Aggregator,
	dispatcher *dispatch.Dispatcher,
	store datastore.Interface,
	metrics *observability.Metrics,
	queueSize int,
) *Processor {
	p := &Processor{
		dec:         dec,
		registry:    registry,
		recorder:    recorder,
		aggregator:  aggregator,
		dispatcher:  dispatcher,
		store:       store,
		metrics:     metrics,
		log:         logging.ForService("processor"),
		queueSize:   queueSize,
		queues:      make(map[int]chan rawItem),
		lastFailLog: make(map[int]time.Time),
	}
	recorder.OnLogged(func(l attendance.Logged) {
		metrics.AttendanceSaved.Inc()
		dispatcher.Broadcast(dispatch.TopicFaceRecognition, dispatch.EventAttendanceLogged, l.Record)
	})
	aggregator.OnUpdate(func(u traffic.CountUpdate) {
		metrics.VehiclesCounted.WithLabelValues(u.Key.VehicleType, u.Key.Direction).Inc()
		dispatcher.Broadcast(dispatch.TopicTrafficMonitoring, dispatch.EventVehicleCountUpdate, u)
	})
	return p
}

// Start prepares the processor for callbacks.
func (p *Processor) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Lock()
	p.stopped = false
	p.mu.Unlock()
}

// Stop drains the workers. Queued events already accepted are processed
// before the workers exit; callbacks arriving afterwards are dropped. The
// stopped flag is flipped under the same lock that guards enqueueing, so no
// callback can be sending on a queue when it is closed.
func (p *Processor) Stop() {
	if p.cancel == nil {
		return
	}
	p.mu.Lock()
	p.stopped = true
	for _, q := range p.queues {
		close(q)
	}
	p.queues = make(map[int]chan rawItem)
	p.mu.Unlock()
	p.wg.Wait()
	p.cancel()
	p.cancel = nil
}

// EventsProcessed reports how many events have been decoded and routed
// since startup.
func (p *Processor) EventsProcessed() uint64 {
	return p.processed.Load()
}

// HandleData is the analyzer callback. It runs on the device runtime's
// goroutine and must return immediately: the payload is copied, the event
// is enqueued without blocking, and anything that does not fit is dropped
// and counted.
func (p *Processor) HandleData(analyzer device.AnalyzerHandle, kind decoder.EventKind, header any, payload []byte) {
	channel, ok := p.registry.ResolveChannel(analyzer)
	if !ok {
		// Late callback from an analyzer stopped moments ago.
		return
	}
	label := strconv.Itoa(channel)
	p.metrics.EventsReceived.WithLabelValues(label, kind.String()).Inc()

	// The device owns the payload buffer only for the duration of the
	// callback.
	buf := make([]byte, len(payload))
	copy(buf, payload)

	// The send happens under the lock so Stop cannot close the queue out
	// from under it; the select keeps it non-blocking either way.
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	q, ok := p.queues[channel]
	if !ok {
		q = make(chan rawItem, p.queueSize)
		p.queues[channel] = q
		p.wg.Add(1)
		go p.worker(channel, q)
	}
	select {
	case q <- rawItem{kind: kind, header: header, payload: buf}:
		depth := len(q)
		p.mu.Unlock()
		p.metrics.QueueDepth.WithLabelValues(label).Set(float64(depth))
	default:
		p.mu.Unlock()
		p.metrics.EventsDropped.WithLabelValues(label).Inc()
	}
}

func (p *Processor) worker(channel int, q chan rawItem) {
	defer p.wg.Done()
	label := strconv.Itoa(channel)
	for item := range q {
		p.metrics.QueueDepth.WithLabelValues(label).Set(float64(len(q)))
		p.process(channel, item)
	}
}

func (p *Processor) process(channel int, item rawItem) {
	ev := p.dec.Decode(channel, item.kind, item.header, item.payload)
	if ev == nil {
		p.metrics.DecodeFailures.WithLabelValues(strconv.Itoa(channel)).Inc()
		p.logDecodeFailure(channel, item.kind)
		return
	}
	p.metrics.EventsDecoded.WithLabelValues(strconv.Itoa(channel), item.kind.String()).Inc()
	p.processed.Add(1)

	switch e := ev.(type) {
	case *decoder.RecognitionEvent:
		p.handleRecognition(e)
	case *decoder.TrafficEvent:
		p.handleTraffic(e)
	}
}

func (p *Processor) handleRecognition(ev *decoder.RecognitionEvent) {
	name := dispatch.EventFaceRecognition
	if ev.Type == decoder.TypeDetection {
		name = dispatch.EventFaceDetection
	}
	p.dispatcher.Broadcast(dispatch.TopicFaceRecognition, name, ev)
	if err := p.recorder.RecordIfSignificant(p.ctx, ev); err != nil {
		p.log.Error("attendance recording failed",
			"event_id", ev.EventID, "channel", ev.Channel, "error", err)
	}
}

func (p *Processor) handleTraffic(ev *decoder.TrafficEvent) {
	p.dispatcher.Broadcast(dispatch.TopicTrafficMonitoring, dispatch.EventTrafficJunction, ev)
	p.dispatcher.Broadcast(dispatch.TopicTrafficMonitoring, dispatch.EventVehicleDetected, ev)

	if err := p.aggregator.CountVehicle(p.ctx, ev); err != nil {
		p.log.Error("vehicle count update failed",
			"event_id", ev.EventID, "channel", ev.Channel, "error", err)
	}

	rec := &datastore.TrafficRecord{
		EventID:     ev.EventID,
		Channel:     ev.Channel,
		JunctionID:  strconv.Itoa(ev.JunctionID),
		VehicleType: ev.VehicleType,
		Direction:   string(ev.Direction),
		Speed:       float64(ev.Speed),
		Confidence:  ev.Confidence,
		PlateNumber: ev.PlateNumber,
		Color:       ev.Color,
		OccurredAt:  ev.Timestamp,
	}
	if err := p.store.SaveTraffic(p.ctx, rec); err != nil && !errors.Is(err, datastore.ErrDuplicateEvent) {
		p.log.Error("traffic record persist failed",
			"event_id", ev.EventID, "error", err)
	}
}

func (p *Processor) logDecodeFailure(channel int, kind decoder.EventKind) {
	p.failLogMu.Lock()
	last := p.lastFailLog[channel]
	now := time.Now()
	if now.Sub(last) < failLogInterval {
		p.failLogMu.Unlock()
		return
	}
	p.lastFailLog[channel] = now
	p.failLogMu.Unlock()

	p.log.Warn("event decode failed", "channel", channel, "kind", kind.String())
}
