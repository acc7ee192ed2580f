// Package service assembles the full pipeline and runs it until shutdown.
package service

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/visiongate/visiongate/internal/api"
	"github.com/visiongate/visiongate/internal/attendance"
	"github.com/visiongate/visiongate/internal/conf"
	"github.com/visiongate/visiongate/internal/datastore"
	"github.com/visiongate/visiongate/internal/decoder"
	"github.com/visiongate/visiongate/internal/device"
	"github.com/visiongate/visiongate/internal/device/sim"
	"github.com/visiongate/visiongate/internal/dispatch"
	"github.com/visiongate/visiongate/internal/errors"
	"github.com/visiongate/visiongate/internal/logging"
	"github.com/visiongate/visiongate/internal/mqtt"
	"github.com/visiongate/visiongate/internal/observability"
	"github.com/visiongate/visiongate/internal/processor"
	"github.com/visiongate/visiongate/internal/traffic"
)

// Realtime runs the event pipeline until SIGINT or SIGTERM.
func Realtime(settings *conf.Settings) error {
	log := logging.ForService("service")

	store, err := datastore.New(settings)
	if err != nil {
		return err
	}
	if err := store.Open(); err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("closing datastore failed", "error", err)
		}
	}()

	driver, err := selectDriver(settings)
	if err != nil {
		return err
	}

	creds := device.Credentials{
		IP:       settings.Device.IP,
		Port:     settings.Device.Port,
		Username: settings.Device.Username,
		Password: settings.Device.Password,
	}
	conn := device.NewConnectionManager(driver, creds, settings.Device.CallTimeout)
	registry := device.NewAnalyzerRegistry(driver, conn)

	promRegistry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(promRegistry)

	dispatcher := dispatch.NewDispatcher(settings.Recognition.RecentEvents, settings.Dispatch.HealthCheckInterval)
	dispatcher.SetMetrics(metrics)
	recorder := attendance.NewRecorder(store, attendance.NewStatusEngine(store))
	aggregator := traffic.NewAggregator(store, settings.Report.QueryTimeout)
	dec := decoder.New(settings.Recognition.SimilarityThreshold, settings.Recognition.MaxImageSize)

	proc := processor.New(dec, registry, recorder, aggregator, dispatcher, store, metrics, settings.Dispatch.QueueSize)
	dispatcher.SetHealthSource(func() (bool, int, uint64) {
		return conn.Status().State == device.StateConnected,
			len(registry.RunningChannels()),
			proc.EventsProcessed()
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	proc.Start(ctx)
	defer proc.Stop()
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	// A dropped session invalidates the device-side analyzer handles; the
	// registry must forget them and clients get told.
	conn.Subscribe(func(st device.Status) {
		if st.State == device.StateDisconnected {
			registry.Invalidate()
		}
		for _, topic := range dispatch.Topics() {
			dispatcher.Broadcast(topic, dispatch.EventConnectionStatus, st)
		}
	})

	if settings.MQTT.Enabled {
		client := mqtt.NewClient(settings.MQTT)
		if err := client.Connect(ctx); err != nil {
			log.Error("mqtt connect failed, continuing without broker", "error", err)
		} else {
			defer client.Disconnect()
			defer dispatcher.UnsubscribeAll(client.ID())
			for _, topic := range dispatch.Topics() {
				dispatcher.Subscribe(topic, client)
			}
		}
	}

	if _, err := conn.Login(ctx); err != nil {
		return err
	}
	defer func() {
		registry.StopAll()
		if err := conn.Logout(); err != nil {
			log.Error("device logout failed", "error", err)
		}
	}()

	for _, channel := range settings.Device.Channels {
		if err := registry.StartChannel(ctx, channel, device.MaskAll, proc.HandleData); err != nil {
			log.Error("starting channel failed", "channel", channel, "error", err)
		}
	}

	var server *api.Server
	if settings.WebServer.Enabled {
		server = api.NewServer(settings.WebServer.Port, conn, registry, proc.HandleData,
			dispatcher, aggregator, store, promRegistry)
		go func() {
			if err := server.Start(); err != nil {
				log.Error("http server failed", "error", err)
				stop()
			}
		}()
	}

	log.Info("pipeline running",
		"channels", registry.RunningChannels(),
		"simulate", settings.Device.Simulate)

	<-ctx.Done()
	log.Info("shutting down")

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown failed", "error", err)
		}
	}
	return nil
}

// selectDriver picks the device binding. The vendor SDK is a proprietary
// native library and is not part of this build; simulate mode runs the full
// pipeline against the in-process driver.
func selectDriver(settings *conf.Settings) (device.Driver, error) {
	if settings.Device.Simulate {
		return sim.New(len(settings.Device.Channels)), nil
	}
	return nil, errors.Newf("hardware SDK binding is not included in this build, set device.simulate").
		Component("service").
		Category(errors.CategoryConfig).
		Build()
}
