package device

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/visiongate/visiongate/internal/errors"
	"github.com/visiongate/visiongate/internal/logging"
)

// AnalyzerRegistry tracks running per-channel analyzers and maps device
// analyzer handles back to channel numbers for callback routing.
type AnalyzerRegistry struct {
	driver Driver
	conn   *ConnectionManager
	log    *slog.Logger

	mu        sync.RWMutex
	byChannel map[int]AnalyzerHandle
	byHandle  map[AnalyzerHandle]int
}

// NewAnalyzerRegistry creates an empty registry bound to a session manager.
func NewAnalyzerRegistry(driver Driver, conn *ConnectionManager) *AnalyzerRegistry {
	return &AnalyzerRegistry{
		driver:    driver,
		conn:      conn,
		log:       logging.ForService("analyzer"),
		byChannel: make(map[int]AnalyzerHandle),
		byHandle:  make(map[AnalyzerHandle]int),
	}
}

// pendingHandle reserves a channel entry while the device call is in
// flight. The driver never hands out a zero handle.
const pendingHandle AnalyzerHandle = 0

// StartChannel starts analysis on a channel. Starting a channel that is
// already running is a no-op. The device call runs outside the registry
// lock so callback routing never stalls behind it.
func (r *AnalyzerRegistry) StartChannel(ctx context.Context, channel int, mask EventMask, fn DataFunc) error {
	session, err := r.conn.Session()
	if err != nil {
		return err
	}

	r.mu.Lock()
	if _, running := r.byChannel[channel]; running {
		r.mu.Unlock()
		return nil
	}
	r.byChannel[channel] = pendingHandle
	r.mu.Unlock()

	handle, err := r.driver.StartAnalyzer(ctx, session, channel, mask, fn)

	r.mu.Lock()
	if err != nil {
		delete(r.byChannel, channel)
		r.mu.Unlock()
		return errors.New(err).
			Component("analyzer").
			Category(errors.CategoryAnalyzer).
			Context("channel", channel).
			Build()
	}
	if cur, ok := r.byChannel[channel]; !ok || cur != pendingHandle {
		// The reservation was wiped by a disconnect while the device call
		// ran; the fresh handle is already orphaned.
		r.mu.Unlock()
		if err := r.driver.StopAnalyzer(handle); err != nil {
			r.log.Warn("failed to stop orphaned analyzer", "channel", channel, "error", err)
		}
		return errors.Newf("connection lost while starting channel %d", channel).
			Component("analyzer").
			Category(errors.CategoryConnection).
			Context("channel", channel).
			Build()
	}
	r.byChannel[channel] = handle
	r.byHandle[handle] = channel
	r.mu.Unlock()
	r.log.Info("channel analysis started", "channel", channel)
	return nil
}

// StopChannel stops analysis on a channel. Stopping a channel that is not
// running is an error.
func (r *AnalyzerRegistry) StopChannel(channel int) error {
	r.mu.Lock()
	handle, running := r.byChannel[channel]
	if !running {
		r.mu.Unlock()
		return errors.Newf("channel %d is not running", channel).
			Component("analyzer").
			Category(errors.CategoryNotRunning).
			Context("channel", channel).
			Build()
	}
	if handle == pendingHandle {
		r.mu.Unlock()
		return errors.Newf("channel %d is still starting", channel).
			Component("analyzer").
			Category(errors.CategoryAnalyzer).
			Context("channel", channel).
			Build()
	}
	delete(r.byChannel, channel)
	delete(r.byHandle, handle)
	r.mu.Unlock()

	if err := r.driver.StopAnalyzer(handle); err != nil {
		return errors.New(err).
			Component("analyzer").
			Category(errors.CategoryAnalyzer).
			Context("channel", channel).
			Build()
	}
	r.log.Info("channel analysis stopped", "channel", channel)
	return nil
}

// ResolveChannel maps an analyzer handle to its channel number.
func (r *AnalyzerRegistry) ResolveChannel(handle AnalyzerHandle) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	channel, ok := r.byHandle[handle]
	return channel, ok
}

// IsRunning reports whether a channel currently has an analyzer.
func (r *AnalyzerRegistry) IsRunning(channel int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byChannel[channel]
	return ok
}

// RunningChannels returns the sorted list of channels with active analyzers.
func (r *AnalyzerRegistry) RunningChannels() []int {
	r.mu.RLock()
	channels := make([]int, 0, len(r.byChannel))
	for ch := range r.byChannel {
		channels = append(channels, ch)
	}
	r.mu.RUnlock()
	sort.Ints(channels)
	return channels
}

// StopAll stops every running analyzer, continuing past per-channel errors.
// It is used during shutdown and after a device disconnect.
func (r *AnalyzerRegistry) StopAll() {
	r.mu.Lock()
	handles := make(map[int]AnalyzerHandle, len(r.byChannel))
	for ch, h := range r.byChannel {
		handles[ch] = h
	}
	r.byChannel = make(map[int]AnalyzerHandle)
	r.byHandle = make(map[AnalyzerHandle]int)
	r.mu.Unlock()

	for ch, h := range handles {
		if h == pendingHandle {
			// Mid-start reservation; the starter cleans up its own handle.
			continue
		}
		if err := r.driver.StopAnalyzer(h); err != nil {
			r.log.Warn("failed to stop analyzer", "channel", ch, "error", err)
		}
	}
}

// Invalidate clears bookkeeping without calling the driver. Used after a
// disconnect, when the device-side handles are already dead.
func (r *AnalyzerRegistry) Invalidate() {
	r.mu.Lock()
	r.byChannel = make(map[int]AnalyzerHandle)
	r.byHandle = make(map[AnalyzerHandle]int)
	r.mu.Unlock()
}
