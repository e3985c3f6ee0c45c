package main

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"rdpso/simulator/internal/logging"
	"rdpso/simulator/internal/networking"
)

const (
	clientSendBuffer = 64
	writeWait        = 10 * time.Second
)

// HubOptions tunes the websocket hub.
type HubOptions struct {
	Logger         *logging.Logger
	Metrics        *networking.SnapshotMetrics
	Bandwidth      *networking.BandwidthRegulator
	AllowedOrigins []string
	MaxClients     int
	MaxPayload     int64
	PingInterval   time.Duration
}

// Client is one connected viewer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	id   string
}

// Hub broadcasts snapshot JSON to websocket viewers. Viewers are read-only;
// inbound frames are discarded.
type Hub struct {
	log        *logging.Logger
	metrics    *networking.SnapshotMetrics
	bandwidth  *networking.BandwidthRegulator
	upgrader   websocket.Upgrader
	maxClients int
	maxPayload int64
	ping       time.Duration

	lock    sync.Mutex
	clients map[*Client]bool
	last    []byte
	closed  bool

	pending atomic.Int64
	wg      sync.WaitGroup
}

// NewHub constructs a hub.
func NewHub(opts HubOptions) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	ping := opts.PingInterval
	if ping <= 0 {
		ping = 30 * time.Second
	}
	h := &Hub{
		log:        logger,
		metrics:    opts.Metrics,
		bandwidth:  opts.Bandwidth,
		maxClients: opts.MaxClients,
		maxPayload: opts.MaxPayload,
		ping:       ping,
		clients:    make(map[*Client]bool),
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: originChecker(opts.AllowedOrigins)}
	return h
}

// originChecker permits any origin when the allow list is empty.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[strings.ToLower(strings.TrimRight(origin, "/"))] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		parsed, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(parsed.Scheme+"://"+parsed.Host)]
		return ok
	}
}

// Publish implements SnapshotPublisher. Slow viewers are disconnected and
// viewers over their bandwidth budget skip the snapshot.
func (h *Hub) Publish(_ networking.Snapshot, payload []byte) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.closed {
		return
	}
	//1.- Remember the payload so late joiners start from the newest frame.
	h.last = payload
	h.metrics.ObservePublish()
	//2.- Fan out without blocking; a full send buffer marks the viewer as stalled.
	for c := range h.clients {
		if h.bandwidth != nil && !h.bandwidth.Allow(c.id, len(payload)) {
			h.metrics.ObserveDrop(c.id)
			continue
		}
		select {
		case c.send <- payload:
			h.metrics.ObserveDelivery(c.id, len(payload))
		default:
			h.log.Warn("dropping slow viewer", logging.String("client_id", c.id))
			h.metrics.ObserveDrop(c.id)
			h.removeLocked(c)
		}
	}
}

// SnapshotClientCounts reports connected viewers and in-flight handshakes.
func (h *Hub) SnapshotClientCounts() (clients, pending int) {
	h.lock.Lock()
	clients = len(h.clients)
	h.lock.Unlock()
	return clients, int(h.pending.Load())
}

// ServeWS upgrades the request and registers a viewer.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	h.lock.Lock()
	full := h.maxClients > 0 && len(h.clients) >= h.maxClients
	closed := h.closed
	h.lock.Unlock()
	if closed {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	if full {
		http.Error(w, "viewer limit reached", http.StatusServiceUnavailable)
		return
	}

	//1.- Upgrade outside the lock and count the handshake while it is in flight.
	h.pending.Add(1)
	conn, err := h.upgrader.Upgrade(w, r, nil)
	h.pending.Add(-1)
	if err != nil {
		h.log.Warn("websocket upgrade failed", logging.String("remote_addr", r.RemoteAddr), logging.Error(err))
		return
	}
	if h.maxPayload > 0 {
		conn.SetReadLimit(h.maxPayload)
	}

	//2.- Register the viewer and prime it with the latest snapshot.
	client := &Client{conn: conn, send: make(chan []byte, clientSendBuffer), id: uuid.NewString()}
	h.lock.Lock()
	if h.closed {
		h.lock.Unlock()
		conn.Close()
		return
	}
	h.clients[client] = true
	if h.last != nil {
		client.send <- h.last
	}
	h.wg.Add(2)
	h.lock.Unlock()
	h.log.Info("viewer connected", logging.String("client_id", client.id), logging.String("remote_addr", r.RemoteAddr))

	//3.- Drain inbound frames so pongs keep the read deadline fresh.
	go func() {
		defer h.wg.Done()
		defer func() {
			h.lock.Lock()
			h.removeLocked(client)
			h.lock.Unlock()
			client.conn.Close()
			h.log.Info("viewer disconnected", logging.String("client_id", client.id))
		}()
		_ = client.conn.SetReadDeadline(time.Now().Add(2 * h.ping))
		client.conn.SetPongHandler(func(string) error {
			return client.conn.SetReadDeadline(time.Now().Add(2 * h.ping))
		})
		for {
			if _, _, err := client.conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	//4.- Pump snapshots and keepalive pings until the send channel closes.
	go func() {

		defer h.wg.Done()
		ticker := time.NewTicker(h.ping)
		defer func() {
			ticker.Stop()
			client.conn.Close()
		}()
		for {
			select {
			case msg, ok := <-client.send:
				_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if !ok {
					_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			case <-ticker.C:
				_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
					return
				}
			}
		}
	}()
}

// Close disconnects every viewer and waits for their goroutines.
func (h *Hub) Close() {
	h.lock.Lock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
	h.lock.Unlock()
	h.wg.Wait()
}

// removeLocked unregisters c and closes its send channel exactly once.
func (h *Hub) removeLocked(c *Client) {
	if !h.clients[c] {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.bandwidth.Forget(c.id)
	h.metrics.ForgetClient(c.id)
}

var _ SnapshotPublisher = (*Hub)(nil)
