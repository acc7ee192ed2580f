// Package device owns the analytics device session: login/logout, disconnect
// detection, and per-channel analyzer lifecycle.
package device

import (
	"context"

	"github.com/visiongate/visiongate/internal/decoder"
	"github.com/visiongate/visiongate/internal/errors"
)

// Handle is an opaque device session handle.
type Handle uintptr

// AnalyzerHandle is an opaque device-side analyzer handle.
type AnalyzerHandle uintptr

// Credentials identifies a device account.
type Credentials struct {
	IP       string
	Port     int
	Username string
	Password string
}

// DeviceInfo is returned by a successful login.
type DeviceInfo struct {
	SerialNumber string
	ChannelCount int
}

// EventMask selects which event families an analyzer reports.
type EventMask uint32

const (
	MaskFaceRecognition EventMask = 1 << iota
	MaskFaceDetection
	MaskTrafficJunction

	MaskAll = MaskFaceRecognition | MaskFaceDetection | MaskTrafficJunction
)

// DataFunc receives raw analyzer callbacks. The device runtime invokes it on
// goroutines it owns, potentially concurrently across channels; it must
// return quickly and must never panic.
type DataFunc func(analyzer AnalyzerHandle, kind decoder.EventKind, header any, payload []byte)

// DisconnectFunc is invoked by the device runtime when the session drops.
type DisconnectFunc func(session Handle, ip string, port int)

// Driver is the consumed device-session surface. The production SDK binding
// and the in-process simulator both implement it.
type Driver interface {
	Login(ctx context.Context, creds Credentials) (Handle, DeviceInfo, error)
	Logout(session Handle) error
	StartAnalyzer(ctx context.Context, session Handle, channel int, mask EventMask, fn DataFunc) (AnalyzerHandle, error)
	StopAnalyzer(analyzer AnalyzerHandle) error
	OnDisconnect(fn DisconnectFunc)
}

// Sentinel errors drivers return so the connection manager can classify
// login failures.
var (
	ErrAuthFailure    = errors.NewStd("device rejected the credentials")
	ErrNetworkFailure = errors.NewStd("device is unreachable")
)
