package device_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visiongate/visiongate/internal/device"
	"github.com/visiongate/visiongate/internal/device/sim"
	"github.com/visiongate/visiongate/internal/errors"
)

func newManager(t *testing.T) (*device.ConnectionManager, *sim.Driver) {
	t.Helper()
	driver := sim.New(8)
	creds := device.Credentials{IP: "192.168.1.20", Port: 37777, Username: "admin", Password: "admin"}
	return device.NewConnectionManager(driver, creds, 3*time.Second), driver
}

func TestLoginEstablishesSession(t *testing.T) {
	m, _ := newManager(t)

	session, err := m.Login(context.Background())
	require.NoError(t, err)
	assert.NotZero(t, session)

	st := m.Status()
	assert.Equal(t, device.StateConnected, st.State)
	assert.Equal(t, "SIM-0001", st.Device.SerialNumber)
	assert.Equal(t, 8, st.Device.ChannelCount)
}

func TestLoginIsIdempotent(t *testing.T) {
	m, _ := newManager(t)

	first, err := m.Login(context.Background())
	require.NoError(t, err)
	second, err := m.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second, "second login must return the existing session")
}

func TestConcurrentLoginsYieldOneSession(t *testing.T) {
	m, _ := newManager(t)

	const workers = 16
	sessions := make([]device.Handle, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.Login(context.Background())
			assert.NoError(t, err)
			sessions[i] = s
		}(i)
	}
	wg.Wait()

	for _, s := range sessions {
		assert.Equal(t, sessions[0], s)
	}
}

func TestLoginAuthFailure(t *testing.T) {
	driver := sim.New(4)
	driver.FailLogin = device.ErrAuthFailure
	m := device.NewConnectionManager(driver, device.Credentials{IP: "10.0.0.1"}, time.Second)

	_, err := m.Login(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryAuth))
	assert.Equal(t, device.StateDisconnected, m.Status().State)
}

func TestLogoutWhileDisconnectedIsNoop(t *testing.T) {
	m, _ := newManager(t)
	assert.NoError(t, m.Logout())
}

func TestDisconnectInvalidatesSessionBeforeListeners(t *testing.T) {
	m, driver := newManager(t)

	_, err := m.Login(context.Background())
	require.NoError(t, err)

	var observed []device.ConnectionState
	m.Subscribe(func(st device.Status) {
		observed = append(observed, st.State)
		if st.State == device.StateDisconnected {
			// The handle must already be gone when the listener runs.
			_, err := m.Session()
			assert.Error(t, err)
		}
	})

	driver.TriggerDisconnect()

	require.NotEmpty(t, observed)
	assert.Equal(t, device.StateDisconnected, observed[len(observed)-1])
	assert.Equal(t, device.StateDisconnected, m.Status().State)
}

func TestStaleDisconnectIgnoredAfterRelogin(t *testing.T) {
	m, driver := newManager(t)

	first, err := m.Login(context.Background())
	require.NoError(t, err)

	driver.TriggerDisconnect()
	second, err := m.Login(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	// Replay the disconnect for the dead session; the live one must survive.
	m2 := m.Status()
	require.Equal(t, device.StateConnected, m2.State)
}

func TestSessionErrorsWhenDisconnected(t *testing.T) {
	m, _ := newManager(t)
	_, err := m.Session()
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConnection))
}

func TestSubscribeDeliversCurrentStatus(t *testing.T) {
	m, _ := newManager(t)
	_, err := m.Login(context.Background())
	require.NoError(t, err)

	done := make(chan device.ConnectionState, 1)
	m.Subscribe(func(st device.Status) {
		select {
		case done <- st.State:
		default:
		}
	})

	select {
	case st := <-done:
		assert.Equal(t, device.StateConnected, st)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive the initial status")
	}
}
