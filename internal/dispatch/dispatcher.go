// Package dispatch fans decoded events out to registered subscribers by
// topic. A misbehaving subscriber never takes down the broadcast or its
// peers.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/visiongate/visiongate/internal/logging"
	"github.com/visiongate/visiongate/internal/observability"
)

// Subscriber groups.
const (
	TopicFaceRecognition   = "FaceRecognition"
	TopicTrafficMonitoring = "TrafficMonitoring"
)

// Pushed event names.
const (
	EventConnectionStatus   = "ConnectionStatus"
	EventConnectionAck      = "ConnectionAck"
	EventFaceRecognition    = "FaceRecognitionEvent"
	EventFaceDetection      = "FaceDetectionEvent"
	EventTrafficJunction    = "TrafficJunctionEvent"
	EventAttendanceLogged   = "AttendanceLogged"
	EventVehicleDetected    = "VehicleDetected"
	EventVehicleCountUpdate = "VehicleCountUpdate"
	EventHealthCheck        = "HealthCheck"
)

// Topics returns every subscriber group.
func Topics() []string {
	return []string{TopicFaceRecognition, TopicTrafficMonitoring}
}

// Message is one dispatched payload.
type Message struct {
	Topic     string    `json:"topic"`
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Subscriber consumes dispatched messages. Deliver is called sequentially
// per broadcast; implementations that need buffering own it themselves.
type Subscriber interface {
	// ID identifies the subscription; subscribing the same ID to a topic
	// twice is a no-op.
	ID() string
	Deliver(msg Message) error
}

// HealthStats is the periodic liveness payload pushed on the face
// recognition topic so idle clients can tell a quiet channel from a dead
// link.
type HealthStats struct {
	SentAt               time.Time `json:"sentAt"`
	DeviceConnected      bool      `json:"deviceConnected"`
	AnalyzersRunning     int       `json:"analyzersRunning"`
	TotalEventsProcessed uint64    `json:"totalEventsProcessed"`
	RecentBufferSize     int       `json:"recentBufferSize"`
	SubscriberCount      int       `json:"subscriberCount"`
}

// HealthSource supplies the pipeline-side fields of a heartbeat.
type HealthSource func() (deviceConnected bool, analyzersRunning int, eventsProcessed uint64)

// Dispatcher routes messages to per-topic subscriber sets and keeps a short
// history of recent events for late joiners.
type Dispatcher struct {
	log *slog.Logger

	mu     sync.RWMutex
	topics map[string]map[string]Subscriber

	recent *ring

	heartbeatInterval time.Duration
	health            HealthSource
	metrics           *observability.Metrics

	cancel context.CancelFunc
	done   chan struct{}
}

// NewDispatcher creates a dispatcher retaining recentSize events.
func NewDispatcher(recentSize int, heartbeatInterval time.Duration) *Dispatcher {
	return &Dispatcher{
		log:               logging.ForService("dispatch"),
		topics:            make(map[string]map[string]Subscriber),
		recent:            newRing(recentSize),
		heartbeatInterval: heartbeatInterval,
	}
}

// SetHealthSource wires the provider of the device-side heartbeat fields.
func (d *Dispatcher) SetHealthSource(src HealthSource) {
	d.health = src
}

// SetMetrics wires delivery-failure counting.
func (d *Dispatcher) SetMetrics(m *observability.Metrics) {
	d.metrics = m
}

// Subscribe adds a subscriber to a topic. Re-subscribing the same ID is a
// no-op; either way an acknowledgement is delivered to the caller only,
// existing subscribers see nothing.
func (d *Dispatcher) Subscribe(topic string, sub Subscriber) bool {
	d.mu.Lock()
	set, ok := d.topics[topic]
	if !ok {
		set = make(map[string]Subscriber)
		d.topics[topic] = set
	}
	_, exists := set[sub.ID()]
	if !exists {
		set[sub.ID()] = sub
	}
	d.mu.Unlock()

	d.deliver(sub, Message{
		Topic:     topic,
		Event:     EventConnectionAck,
		Timestamp: time.Now(),
		Payload:   map[string]string{"subscriber": sub.ID(), "topic": topic},
	})
	if !exists {
		d.log.Debug("subscriber added", "topic", topic, "subscriber", sub.ID())
	}
	return !exists
}

// Unsubscribe removes a subscriber from a topic.
func (d *Dispatcher) Unsubscribe(topic, subscriberID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if set, ok := d.topics[topic]; ok {
		delete(set, subscriberID)
		if len(set) == 0 {
			delete(d.topics, topic)
		}
	}
}

// UnsubscribeAll removes a subscriber from every topic, for callers whose
// connection went away. Unknown IDs are a no-op.
func (d *Dispatcher) UnsubscribeAll(subscriberID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for topic, set := range d.topics {
		delete(set, subscriberID)
		if len(set) == 0 {
			delete(d.topics, topic)
		}
	}
}

// SubscriberCount reports the number of subscribers on a topic.
func (d *Dispatcher) SubscriberCount(topic string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.topics[topic])
}

// Broadcast delivers a payload to every subscriber of the topic. Delivery
// errors and panics are logged per subscriber and never stop the fan-out.
func (d *Dispatcher) Broadcast(topic, event string, payload any) {
	msg := Message{
		Topic:     topic,
		Event:     event,
		Timestamp: time.Now(),
		Payload:   payload,
	}
	d.recent.add(msg)

	d.mu.RLock()
	subs := make([]Subscriber, 0, len(d.topics[topic]))
	for _, sub := range d.topics[topic] {
		subs = append(subs, sub)
	}
	d.mu.RUnlock()

	for _, sub := range subs {
		d.deliver(sub, msg)
	}
}

func (d *Dispatcher) deliver(sub Subscriber, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			d.countError()
			d.log.Error("subscriber panicked during delivery",
				"subscriber", sub.ID(), "topic", msg.Topic, "panic", r)
		}
	}()
	if err := sub.Deliver(msg); err != nil {
		d.countError()
		d.log.Warn("subscriber delivery failed",
			"subscriber", sub.ID(), "topic", msg.Topic, "error", err)
	}
}

func (d *Dispatcher) countError() {
	if d.metrics != nil {
		d.metrics.DispatchErrors.Inc()
	}
}

// RecentEvents returns the retained event history, oldest first.
func (d *Dispatcher) RecentEvents() []Message {
	items := d.recent.snapshot()
	out := make([]Message, 0, len(items))
	for _, it := range items {
		if msg, ok := it.(Message); ok {
			out = append(out, msg)
		}
	}
	return out
}

// Start launches the heartbeat loop. Heartbeats go to the face recognition
// topic so idle clients can tell a quiet channel from a dead link.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	go d.heartbeatLoop(ctx)
}

// Stop halts the heartbeat loop and waits for it to exit.
func (d *Dispatcher) Stop() {
	if d.cancel == nil {
		return
	}
	d.cancel()
	<-d.done
	d.cancel = nil
}

func (d *Dispatcher) heartbeatLoop(ctx context.Context) {
	defer close(d.done)
	ticker := time.NewTicker(d.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			stats := HealthStats{
				SentAt:           now,
				RecentBufferSize: len(d.recent.snapshot()),
				SubscriberCount:  d.SubscriberCount(TopicFaceRecognition) + d.SubscriberCount(TopicTrafficMonitoring),
			}
			if d.health != nil {
				stats.DeviceConnected, stats.AnalyzersRunning, stats.TotalEventsProcessed = d.health()
			}
			d.Broadcast(TopicFaceRecognition, EventHealthCheck, stats)
		}
	}
}
