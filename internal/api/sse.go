package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/visiongate/visiongate/internal/dispatch"
	"github.com/visiongate/visiongate/internal/logging"
)

const clientBufferSize = 64

// sseClient is one connected event-stream consumer joined to a set of
// topics.
type sseClient struct {
	id     string
	topics map[string]bool
	events chan dispatch.Message
	done   chan struct{}
	once   sync.Once
}

func (c *sseClient) close() {
	c.once.Do(func() { close(c.done) })
}

// SSEManager fans dispatched messages out to connected HTTP clients. A
// client that stops reading gets evicted once its buffer fills; one slow
// browser never stalls the pipeline.
type SSEManager struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients map[string]*sseClient
}

// NewSSEManager creates an empty manager.
func NewSSEManager() *SSEManager {
	return &SSEManager{
		log:     logging.ForService("sse"),
		clients: make(map[string]*sseClient),
	}
}

// ID implements dispatch.Subscriber.
func (m *SSEManager) ID() string { return "sse" }

// Deliver forwards a message to every client joined to its topic without
// blocking.
func (m *SSEManager) Deliver(msg dispatch.Message) error {
	m.mu.RLock()
	clients := make([]*sseClient, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.RUnlock()

	for _, c := range clients {
		if !c.topics[msg.Topic] {
			continue
		}
		select {
		case c.events <- msg:
		default:
			m.log.Warn("evicting blocked sse client", "client", c.id)
			m.remove(c.id)
		}
	}
	return nil
}

// ClientCount reports the number of connected stream clients.
func (m *SSEManager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

func (m *SSEManager) add(topics []string) *sseClient {
	c := &sseClient{
		id:     uuid.NewString(),
		topics: make(map[string]bool, len(topics)),
		events: make(chan dispatch.Message, clientBufferSize),
		done:   make(chan struct{}),
	}
	for _, topic := range topics {
		c.topics[topic] = true
	}
	m.mu.Lock()
	m.clients[c.id] = c
	m.mu.Unlock()
	return c
}

func (m *SSEManager) remove(id string) {
	m.mu.Lock()
	c, ok := m.clients[id]
	delete(m.clients, id)
	m.mu.Unlock()
	if ok {
		c.close()
	}
}

// handleStream serves one text/event-stream connection until the client
// hangs up or is evicted. Repeated topic query parameters pick the topics
// to join; omitting them joins every topic. Each joined topic is
// acknowledged to this client only.
func (m *SSEManager) handleStream(c echo.Context) error {
	topics := c.QueryParams()["topic"]
	if len(topics) == 0 {
		topics = dispatch.Topics()
	}
	known := make(map[string]bool)
	for _, t := range dispatch.Topics() {
		known[t] = true
	}
	for _, t := range topics {
		if !known[t] {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown topic %q", t))
		}
	}

	client := m.add(topics)
	defer m.remove(client.id)

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	for _, topic := range topics {
		client.events <- dispatch.Message{
			Topic:     topic,
			Event:     dispatch.EventConnectionAck,
			Timestamp: time.Now(),
			Payload:   map[string]string{"connectionId": client.id, "topic": topic},
		}
	}

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-client.done:
			return nil
		case msg := <-client.events:
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", msg.Topic, data); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}
