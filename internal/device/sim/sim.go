// Package sim provides an in-process device driver for development and
// tests. It honours the same session and analyzer lifecycle as the real
// SDK binding without any hardware.
package sim

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/visiongate/visiongate/internal/decoder"
	"github.com/visiongate/visiongate/internal/device"
)

type analyzer struct {
	channel int
	mask    device.EventMask
	fn      device.DataFunc
}

// Driver is a simulated device. Events are injected with Emit, and
// TriggerDisconnect simulates a session drop.
type Driver struct {
	nextHandle atomic.Uintptr

	mu           sync.RWMutex
	session      device.Handle
	creds        device.Credentials
	analyzers    map[device.AnalyzerHandle]*analyzer
	onDisconnect device.DisconnectFunc

	// FailLogin, when set, is returned by Login verbatim.
	FailLogin error
	// Info is returned on successful login.
	Info device.DeviceInfo
}

// New creates a simulated driver reporting the given channel count.
func New(channels int) *Driver {
	return &Driver{
		analyzers: make(map[device.AnalyzerHandle]*analyzer),
		Info:      device.DeviceInfo{SerialNumber: "SIM-0001", ChannelCount: channels},
	}
}

func (d *Driver) Login(ctx context.Context, creds device.Credentials) (device.Handle, device.DeviceInfo, error) {
	if err := ctx.Err(); err != nil {
		return 0, device.DeviceInfo{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailLogin != nil {
		return 0, device.DeviceInfo{}, d.FailLogin
	}
	d.session = device.Handle(d.nextHandle.Add(1))
	d.creds = creds
	return d.session, d.Info, nil
}

func (d *Driver) Logout(session device.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if session == d.session {
		d.session = 0
		d.analyzers = make(map[device.AnalyzerHandle]*analyzer)
	}
	return nil
}

func (d *Driver) StartAnalyzer(ctx context.Context, session device.Handle, channel int, mask device.EventMask, fn device.DataFunc) (device.AnalyzerHandle, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	h := device.AnalyzerHandle(d.nextHandle.Add(1))
	d.analyzers[h] = &analyzer{channel: channel, mask: mask, fn: fn}
	return h, nil
}

func (d *Driver) StopAnalyzer(handle device.AnalyzerHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.analyzers, handle)
	return nil
}

func (d *Driver) OnDisconnect(fn device.DisconnectFunc) {
	d.mu.Lock()
	d.onDisconnect = fn
	d.mu.Unlock()
}

// Emit delivers a synthetic event to every analyzer on the channel whose
// mask includes the event kind.
func (d *Driver) Emit(channel int, kind decoder.EventKind, header any, payload []byte) {
	var mask device.EventMask
	switch kind {
	case decoder.KindFaceRecognition:
		mask = device.MaskFaceRecognition
	case decoder.KindFaceDetection:
		mask = device.MaskFaceDetection
	case decoder.KindTrafficJunction:
		mask = device.MaskTrafficJunction
	}

	d.mu.RLock()
	targets := make([]struct {
		h  device.AnalyzerHandle
		fn device.DataFunc
	}, 0, 1)
	for h, a := range d.analyzers {
		if a.channel == channel && a.mask&mask != 0 {
			targets = append(targets, struct {
				h  device.AnalyzerHandle
				fn device.DataFunc
			}{h, a.fn})
		}
	}
	d.mu.RUnlock()

	for _, t := range targets {
		t.fn(t.h, kind, header, payload)
	}
}

// TriggerDisconnect simulates the device dropping the session.
func (d *Driver) TriggerDisconnect() {
	d.mu.Lock()
	session := d.session
	fn := d.onDisconnect
	creds := d.creds
	d.session = 0
	d.analyzers = make(map[device.AnalyzerHandle]*analyzer)
	d.mu.Unlock()

	if fn != nil && session != 0 {
		fn(session, creds.IP, creds.Port)
	}
}

// AnalyzerCount reports the number of live analyzers.
func (d *Driver) AnalyzerCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.analyzers)
}
