// Package api exposes the control and reporting surface over HTTP: channel
// lifecycle, connection status, recent events, traffic reports, a live SSE
// stream, and Prometheus metrics.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/visiongate/visiongate/internal/datastore"
	"github.com/visiongate/visiongate/internal/decoder"
	"github.com/visiongate/visiongate/internal/device"
	"github.com/visiongate/visiongate/internal/dispatch"
	"github.com/visiongate/visiongate/internal/errors"
	"github.com/visiongate/visiongate/internal/logging"
	"github.com/visiongate/visiongate/internal/traffic"
)

// Server hosts the HTTP control surface.
type Server struct {
	echo       *echo.Echo
	port       string
	log        *slog.Logger
	conn       *device.ConnectionManager
	registry   *device.AnalyzerRegistry
	dataFn     device.DataFunc
	dispatcher *dispatch.Dispatcher
	aggregator *traffic.Aggregator
	store      datastore.Interface
	sse        *SSEManager
}

// NewServer assembles the routes. dataFn is the analyzer callback handed to
// newly started channels.
func NewServer(
	port string,
	conn *device.ConnectionManager,
	registry *device.AnalyzerRegistry,
	dataFn device.DataFunc,
	dispatcher *dispatch.Dispatcher,
	aggregator *traffic.Aggregator,
	store datastore.Interface,
	gatherer prometheus.Gatherer,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:       e,
		port:       port,
		log:        logging.ForService("api"),
		conn:       conn,
		registry:   registry,
		dataFn:     dataFn,
		dispatcher: dispatcher,
		aggregator: aggregator,
		store:      store,
		sse:        NewSSEManager(),
	}

	v1 := e.Group("/api/v1")
	v1.GET("/status", s.handleStatus)
	v1.POST("/channels/:id/start", s.handleStartChannel)
	v1.POST("/channels/:id/stop", s.handleStopChannel)
	v1.GET("/channels", s.handleChannels)
	v1.GET("/events/recent", s.handleRecentEvents)
	v1.GET("/events/stream", s.sse.handleStream)
	v1.GET("/traffic/stats", s.handleTrafficStats)
	v1.GET("/traffic/hourly", s.handleTrafficHourly)
	v1.GET("/attendance", s.handleAttendance)

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// Stream every topic to SSE clients.
	for _, topic := range dispatch.Topics() {
		dispatcher.Subscribe(topic, s.sse)
	}

	return s
}

// SSE exposes the stream manager, mainly for tests.
func (s *Server) SSE() *SSEManager { return s.sse }

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	addr := ":" + s.port
	s.log.Info("http server listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return errors.New(err).
			Component("api").
			Category(errors.CategoryConnection).
			Context("addr", addr).
			Build()
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleStatus(c echo.Context) error {
	st := s.conn.Status()
	return c.JSON(http.StatusOK, map[string]any{
		"state":           st.State,
		"device":          st.Device,
		"connectedAt":     st.ConnectedAt,
		"runningChannels": s.registry.RunningChannels(),
		"sseClients":      s.sse.ClientCount(),
	})
}

func (s *Server) handleChannels(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"running": s.registry.RunningChannels(),
	})
}

func (s *Server) handleStartChannel(c echo.Context) error {
	channel, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid channel id")
	}
	if err := s.registry.StartChannel(c.Request().Context(), channel, device.MaskAll, s.dataFn); err != nil {
		if errors.IsCategory(err, errors.CategoryConnection) {
			return echo.NewHTTPError(http.StatusConflict, "device is not connected")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"channel": channel, "running": true})
}

func (s *Server) handleStopChannel(c echo.Context) error {
	channel, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid channel id")
	}
	if err := s.registry.StopChannel(channel); err != nil {
		if errors.IsNotRunning(err) {
			return echo.NewHTTPError(http.StatusNotFound, "channel is not running")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"channel": channel, "running": false})
}

func (s *Server) handleRecentEvents(c echo.Context) error {
	events := s.dispatcher.RecentEvents()
	// Images are heavy and irrelevant to the recent-event listing.
	out := make([]dispatch.Message, 0, len(events))
	for _, msg := range events {
		out = append(out, stripImages(msg))
	}
	return c.JSON(http.StatusOK, out)
}

func stripImages(msg dispatch.Message) dispatch.Message {
	switch p := msg.Payload.(type) {
	case *decoder.RecognitionEvent:
		clone := *p
		clone.SceneImage, clone.FaceImage, clone.CandidateImage = nil, nil, nil
		msg.Payload = &clone
	case *decoder.TrafficEvent:
		clone := *p
		clone.SceneImage, clone.VehicleImage, clone.PlateImage = nil, nil, nil
		msg.Payload = &clone
	}
	return msg
}

func (s *Server) handleTrafficStats(c echo.Context) error {
	from, to, err := parseWindow(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	stats, err := s.aggregator.GetCountingStats(c.Request().Context(), from, to, c.QueryParam("junction"))
	if err != nil {
		if errors.IsTimeout(err) {
			return echo.NewHTTPError(http.StatusGatewayTimeout, "report query timed out")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleTrafficHourly(c echo.Context) error {
	from, to, err := parseWindow(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rows, err := s.aggregator.GetHourlyCounts(c.Request().Context(), from, to, c.QueryParam("junction"))
	if err != nil {
		if errors.IsTimeout(err) {
			return echo.NewHTTPError(http.StatusGatewayTimeout, "report query timed out")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rows)
}

func (s *Server) handleAttendance(c echo.Context) error {
	from, to, err := parseWindow(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	recs, err := s.store.SearchAttendance(c.Request().Context(), c.QueryParam("user"), from, to)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]attendanceView, 0, len(recs))
	for _, r := range recs {
		out = append(out, attendanceView{
			EventID:    r.EventID,
			UserID:     r.UserID,
			UserName:   r.UserName,
			Department: r.Department,
			Position:   r.Position,
			Gender:     r.Gender,
			Channel:    r.Channel,
			Similarity: r.Similarity,
			Status:     r.Status,
			LateBy:     r.LateBy.String(),
			LoggedAt:   r.LoggedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

type attendanceView struct {
	EventID    string    `json:"eventId"`
	UserID     string    `json:"userId"`
	UserName   string    `json:"userName"`
	Department string    `json:"department,omitempty"`
	Position   string    `json:"position,omitempty"`
	Gender     string    `json:"gender,omitempty"`
	Channel    int       `json:"channel"`
	Similarity int       `json:"similarity"`
	Status     string    `json:"status"`
	LateBy     string    `json:"lateBy"`
	LoggedAt   time.Time `json:"loggedAt"`
}

// parseWindow reads the from/to query parameters, defaulting to the last 24
// hours.
func parseWindow(c echo.Context) (time.Time, time.Time, error) {
	now := time.Now()
	from, to := now.Add(-24*time.Hour), now
	if raw := c.QueryParam("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from: %w", err)
		}
		from = t
	}
	if raw := c.QueryParam("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to: %w", err)
		}
		to = t
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("from must precede to")
	}
	return from, to, nil
}
