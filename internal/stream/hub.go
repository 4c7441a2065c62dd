// Package stream pushes periodic snapshots of every table to WebSocket
// subscribers, replacing client-side polling of the list endpoints.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"opsdash/internal/domain"
	"opsdash/internal/metrics"
	"opsdash/internal/storage"
)

const (
	DefaultInterval = 5 * time.Second

	sendBuffer   = 4
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	fetchTimeout = 10 * time.Second
	maxInbound   = 512
)

// Message is the only frame the hub sends.
type Message struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data Data      `json:"data"`
}

type Data struct {
	Manufacturing []domain.ManufacturingRecord `json:"manufacturing"`
	Testing       []domain.TestingRecord       `json:"testing"`
	Field         []domain.FieldRecord         `json:"field"`
	Sales         []domain.SalesRecord         `json:"sales"`
}

type Options struct {
	Interval time.Duration
	// AllowedOrigin is the only cross-origin page allowed to subscribe.
	// Requests without an Origin header are always accepted.
	AllowedOrigin string
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
	Clock         func() time.Time
}

type subscriber struct {
	send chan []byte
}

// Hub fans snapshots out to subscribers. Subscribers that cannot keep up
// are disconnected; nothing is queued for them beyond a small buffer.
type Hub struct {
	store    storage.Store
	interval time.Duration
	logger   *zap.Logger
	metrics  *metrics.Metrics
	clock    func() time.Time
	upgrader websocket.Upgrader

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool

	cron *cron.Cron
}

func NewHub(store storage.Store, opts Options) *Hub {
	h := &Hub{
		store:    store,
		interval: opts.Interval,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		clock:    opts.Clock,
		subs:     make(map[*subscriber]struct{}),
	}
	if h.interval < time.Second {
		h.interval = DefaultInterval
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.clock == nil {
		h.clock = time.Now
	}
	allowed := opts.AllowedOrigin
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || origin == allowed
		},
	}
	return h
}

// Start schedules the periodic refresh. It returns an error only if the
// interval cannot be expressed as a schedule.
func (h *Hub) Start() error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	spec := fmt.Sprintf("@every %s", h.interval)
	if _, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		if err := h.Refresh(ctx); err != nil {
			h.logger.Warn("stream refresh failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule stream refresh %q: %w", spec, err)
	}
	h.cron = c
	c.Start()
	h.logger.Info("stream refresh scheduled", zap.Duration("interval", h.interval))
	return nil
}

// Close stops the refresh job, waits for a running refresh, and disconnects
// every subscriber.
func (h *Hub) Close() {
	if h.cron != nil {
		<-h.cron.Stop().Done()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.subs {
		h.dropLocked(sub)
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Refresh fetches the latest rows and broadcasts them. Subscribers are
// skipped entirely when there are none.
func (h *Hub) Refresh(ctx context.Context) error {
	if h.Subscribers() == 0 {
		return nil
	}
	msg, err := h.snapshot(ctx)
	h.metrics.Broadcast(err == nil)
	if err != nil {
		return err
	}
	h.broadcast(msg)
	return nil
}

func (h *Hub) snapshot(ctx context.Context) ([]byte, error) {
	snap, err := storage.FetchSnapshot(ctx, h.store, domain.MaxListLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	msg := Message{
		Type: "snapshot",
		At:   h.clock().UTC(),
		Data: Data{
			Manufacturing: snap.Manufacturing,
			Testing:       snap.Testing,
			Field:         snap.Field,
			Sales:         snap.Sales,
		},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

func (h *Hub) broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.send <- msg:
		default:
			h.logger.Info("dropping slow stream subscriber")
			h.dropLocked(sub)
		}
	}
}

func (h *Hub) register(sub *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.subs[sub] = struct{}{}
	h.metrics.SubscriberAdded()
	return true
}

func (h *Hub) unregister(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(sub)
}

func (h *Hub) dropLocked(sub *subscriber) {
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.send)
	h.metrics.SubscriberRemoved()
}

// ServeHTTP upgrades the request and streams snapshots until either side
// goes away. The first snapshot is sent immediately.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Debug("stream upgrade rejected", zap.Error(err))
		return
	}
	defer conn.Close()

	// The first snapshot is taken before registering so no broadcast can be
	// queued behind it.
	ctx, cancel := context.WithTimeout(r.Context(), fetchTimeout)
	first, err := h.snapshot(ctx)
	cancel()
	if err != nil {
		h.logger.Warn("initial stream snapshot failed", zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "snapshot unavailable"), time.Now().Add(writeWait))
		return
	}
	if err := write(conn, websocket.TextMessage, first); err != nil {
		return
	}

	sub := &subscriber{send: make(chan []byte, sendBuffer)}
	if !h.register(sub) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		return
	}
	defer h.unregister(sub)

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		conn.SetReadLimit(maxInbound)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			// Inbound frames carry no meaning; reading keeps control frames flowing.
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	defer func() {
		conn.Close()
		<-readDone
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-sub.send:
			if !ok {
				_ = write(conn, websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := write(conn, websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(conn, websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readDone:
			return
		}
	}
}

func write(conn *websocket.Conn, kind int, data []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(kind, data)
}
