package websocket

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/classwatcher/classwatcher/internal/domain/events"
	"github.com/classwatcher/classwatcher/internal/domain/ports"
	"github.com/classwatcher/classwatcher/internal/sync"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 15 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 90 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4 * 1024

	// Send buffer size per client.
	sendBufferSize = 256

	// DefaultHeartbeatInterval is used when no interval is configured.
	DefaultHeartbeatInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The control API binds to loopback by default.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StatusProvider supplies the state reported on connect and in heartbeats.
type StatusProvider interface {
	WatchStatus() events.WatchStatus
	UptimeSeconds() int64
}

// Handler upgrades requests to websocket connections and subscribes each
// one to the event hub.
type Handler struct {
	hub               ports.EventHub
	status            StatusProvider
	heartbeatInterval time.Duration

	mu      sync.RWMutex
	clients map[string]*Client

	heartbeatDone chan struct{}
	heartbeatSeq  atomic.Int64
	startTime     time.Time
	stopOnce      sync.Once
}

// NewHandler creates a websocket handler. status may be nil.
func NewHandler(hub ports.EventHub, status StatusProvider, heartbeatInterval time.Duration) *Handler {
	if heartbeatInterval <= 0 {
		heartbeatInterval = DefaultHeartbeatInterval
	}
	return &Handler{
		hub:               hub,
		status:            status,
		heartbeatInterval: heartbeatInterval,
		clients:           make(map[string]*Client),
		heartbeatDone:     make(chan struct{}),
		startTime:         time.Now(),
	}
}

// Start runs the heartbeat loop.
func (h *Handler) Start() {
	go h.heartbeatLoop()
}

// Stop ends the heartbeat loop and closes every client.
func (h *Handler) Stop() {
	h.stopOnce.Do(func() {
		close(h.heartbeatDone)
	})

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}

// ServeHTTP upgrades the connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	client := NewClient(conn, func(id string) {
		if h.hub != nil {
			h.hub.Unsubscribe(id)
		}
		h.removeClient(id)
	})

	// The status snapshot is always the first frame.
	if h.status != nil {
		if data, err := events.NewStatusChangedEvent(h.status.WatchStatus()).ToJSON(); err == nil {
			client.Send(data)
		}
	}

	h.mu.Lock()
	h.clients[client.ID()] = client
	h.mu.Unlock()

	if h.hub != nil {
		h.hub.Subscribe(NewClientSubscriber(client))
	}

	log.Info().
		Str("client_id", client.ID()).
		Str("remote_addr", conn.RemoteAddr().String()).
		Msg("client connected")

	client.Start()
}

func (h *Handler) removeClient(id string) {
	h.mu.Lock()
	delete(h.clients, id)
	h.mu.Unlock()
	log.Info().Str("client_id", id).Msg("client disconnected")
}

// Broadcast sends a frame to every client.
func (h *Handler) Broadcast(message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		c.Send(message)
	}
}

// ClientCount returns the number of connected clients.
func (h *Handler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Handler) heartbeatLoop() {
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.heartbeatDone:
			return
		case <-ticker.C:
			h.broadcastHeartbeat()
		}
	}
}

func (h *Handler) broadcastHeartbeat() {
	if h.ClientCount() == 0 {
		return
	}

	status := "unknown"
	uptime := int64(time.Since(h.startTime).Seconds())
	if h.status != nil {
		status = string(h.status.WatchStatus())
		uptime = h.status.UptimeSeconds()
	}

	seq := h.heartbeatSeq.Add(1)
	data, err := events.NewHeartbeatEvent(seq, status, uptime).ToJSON()
	if err != nil {
		log.Warn().Err(err).Msg("failed to serialize heartbeat")
		return
	}

	h.Broadcast(data)
	log.Trace().Int64("seq", seq).Msg("heartbeat sent")
}
