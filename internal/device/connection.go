package device

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/visiongate/visiongate/internal/errors"
	"github.com/visiongate/visiongate/internal/logging"
)

// ConnectionState describes the session lifecycle.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnected    ConnectionState = "connected"
)

// Status is a point-in-time snapshot of the device session.
type Status struct {
	State       ConnectionState
	Session     Handle
	Device      DeviceInfo
	ConnectedAt time.Time
	IP          string
	Port        int
}

// StatusListener receives connection lifecycle notifications. Callbacks run
// on the manager's goroutine and must not block.
type StatusListener func(Status)

// ConnectionManager serializes login/logout against a single device and
// publishes session status. It does not retry on its own; reconnection
// policy belongs to the caller.
type ConnectionManager struct {
	driver      Driver
	creds       Credentials
	callTimeout time.Duration
	log         *slog.Logger

	loginMu sync.Mutex
	status  atomic.Pointer[Status]

	listenerMu sync.RWMutex
	listeners  []StatusListener
}

// NewConnectionManager wires the manager to a driver. callTimeout bounds
// each individual device call.
func NewConnectionManager(driver Driver, creds Credentials, callTimeout time.Duration) *ConnectionManager {
	m := &ConnectionManager{
		driver:      driver,
		creds:       creds,
		callTimeout: callTimeout,
		log:         logging.ForService("device"),
	}
	m.status.Store(&Status{State: StateDisconnected, IP: creds.IP, Port: creds.Port})
	driver.OnDisconnect(m.handleDisconnect)
	return m
}

// Login establishes the device session. Concurrent callers are serialized;
// if a session already exists it is returned as-is.
func (m *ConnectionManager) Login(ctx context.Context) (Handle, error) {
	m.loginMu.Lock()
	defer m.loginMu.Unlock()

	if cur := m.status.Load(); cur.State == StateConnected {
		return cur.Session, nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()

	session, info, err := m.driver.Login(ctx, m.creds)
	if err != nil {
		category := errors.CategoryConnection
		if errors.Is(err, ErrAuthFailure) {
			category = errors.CategoryAuth
		} else if errors.Is(err, context.DeadlineExceeded) {
			category = errors.CategoryTimeout
		}
		return 0, errors.New(err).
			Component("device").
			Category(category).
			Context("ip", m.creds.IP).
			Context("port", m.creds.Port).
			Build()
	}

	st := &Status{
		State:       StateConnected,
		Session:     session,
		Device:      info,
		ConnectedAt: time.Now(),
		IP:          m.creds.IP,
		Port:        m.creds.Port,
	}
	m.status.Store(st)
	m.log.Info("device session established",
		"ip", m.creds.IP, "port", m.creds.Port,
		"serial", info.SerialNumber, "channels", info.ChannelCount)
	m.notify(*st)
	return session, nil
}

// Logout tears down the current session. Calling it while disconnected is a
// no-op.
func (m *ConnectionManager) Logout() error {
	m.loginMu.Lock()
	defer m.loginMu.Unlock()

	cur := m.status.Load()
	if cur.State != StateConnected {
		return nil
	}

	err := m.driver.Logout(cur.Session)
	st := &Status{State: StateDisconnected, IP: m.creds.IP, Port: m.creds.Port}
	m.status.Store(st)
	m.notify(*st)
	if err != nil {
		return errors.New(err).
			Component("device").
			Category(errors.CategoryDevice).
			Context("operation", "logout").
			Build()
	}
	m.log.Info("device session closed", "ip", m.creds.IP)
	return nil
}

// Status returns the current session snapshot without locking.
func (m *ConnectionManager) Status() Status {
	return *m.status.Load()
}

// Session returns the current handle, or an error when disconnected.
func (m *ConnectionManager) Session() (Handle, error) {
	cur := m.status.Load()
	if cur.State != StateConnected {
		return 0, errors.Newf("no active device session").
			Component("device").
			Category(errors.CategoryConnection).
			Build()
	}
	return cur.Session, nil
}

// Subscribe registers a status listener. The current status is delivered
// immediately so subscribers never miss the initial state.
func (m *ConnectionManager) Subscribe(fn StatusListener) {
	m.listenerMu.Lock()
	m.listeners = append(m.listeners, fn)
	m.listenerMu.Unlock()
	fn(m.Status())
}

// handleDisconnect runs on the driver's callback goroutine. The session
// handle is invalidated synchronously before any listener observes the
// disconnected state.
func (m *ConnectionManager) handleDisconnect(session Handle, ip string, port int) {
	m.loginMu.Lock()
	cur := m.status.Load()
	if cur.State != StateConnected || cur.Session != session {
		// Stale notification for a session we already replaced.
		m.loginMu.Unlock()
		return
	}
	st := &Status{State: StateDisconnected, IP: ip, Port: port}
	m.status.Store(st)
	m.loginMu.Unlock()

	m.log.Warn("device session dropped", "ip", ip, "port", port)
	m.notify(*st)
}

func (m *ConnectionManager) notify(st Status) {
	m.listenerMu.RLock()
	listeners := make([]StatusListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.listenerMu.RUnlock()
	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.log.Error("status listener panicked", "panic", r)
				}
			}()
			fn(st)
		}()
	}
}
