package broadcast

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/polymirror/engine/internal/model"
)

// ObserverConn is the connection surface the hub writes to.
// *websocket.Conn satisfies it.
type ObserverConn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// HubConfig holds hub parameters.
type HubConfig struct {
	// ObserverQueueSize is each observer's ring capacity. A slow
	// observer loses its oldest events once the ring fills.
	ObserverQueueSize int
}

// DefaultHubConfig returns the standard hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{ObserverQueueSize: 256}
}

// HubStats is a snapshot of hub counters.
type HubStats struct {
	Observers int
	Published uint64
	Dropped   int64
}

type observer struct {
	id   uint64
	ring *Ring[[]byte]
	conn ObserverConn
}

// Hub fans replication events out to connected observers.
type Hub struct {
	cfg      HubConfig
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu        sync.Mutex
	observers map[uint64]*observer
	nextID    uint64
	closed    bool

	published atomic.Uint64
	dropped   atomic.Int64
}

// NewHub creates a Hub.
func NewHub(cfg HubConfig, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ObserverQueueSize <= 0 {
		cfg.ObserverQueueSize = DefaultHubConfig().ObserverQueueSize
	}
	return &Hub{
		cfg:       cfg,
		logger:    logger.With("component", "broadcast"),
		observers: make(map[uint64]*observer),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// TradeAdmitted publishes a trade_admitted event.
func (h *Hub) TradeAdmitted(trade model.LeaderTrade) {
	h.publish(NewTradeAdmitted(trade))
}

// ReplicaUpdated publishes a replica_update event. Satisfies the
// executor's event sink.
func (h *Hub) ReplicaUpdated(order *model.ReplicaOrder) {
	h.publish(NewReplicaUpdate(order))
}

// publish marshals once and enqueues to every observer ring. Never
// blocks: full rings drop their oldest entry.
func (h *Hub) publish(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("marshaling event", "type", event.Type, "error", err)
		return
	}
	h.published.Add(1)

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, obs := range h.observers {
		before := obs.ring.Stats().Dropped
		obs.ring.Send(data)
		if after := obs.ring.Stats().Dropped; after > before {
			h.dropped.Add(after - before)
		}
	}
}

// Attach registers a connection and starts its writer. Returns the
// observer id. The writer goroutine exits when the ring closes or a
// write fails.
func (h *Hub) Attach(conn ObserverConn) uint64 {
	h.mu.Lock()
	h.nextID++
	obs := &observer{
		id:   h.nextID,
		ring: NewRing[[]byte](h.cfg.ObserverQueueSize),
		conn: conn,
	}
	if h.closed {
		obs.ring.Close()
	} else {
		h.observers[obs.id] = obs
	}
	h.mu.Unlock()

	go h.writeLoop(obs)
	return obs.id
}

// Detach removes an observer and closes its connection.
func (h *Hub) Detach(id uint64) {
	h.mu.Lock()
	obs, ok := h.observers[id]
	if ok {
		delete(h.observers, id)
	}
	h.mu.Unlock()

	if ok {
		obs.ring.Close()
		obs.conn.Close()
	}
}

// Close detaches every observer.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	observers := h.observers
	h.observers = make(map[uint64]*observer)
	h.mu.Unlock()

	for _, obs := range observers {
		obs.ring.Close()
		obs.conn.Close()
	}
}

// Stats returns a snapshot of hub counters.
func (h *Hub) Stats() HubStats {
	h.mu.Lock()
	observers := len(h.observers)
	h.mu.Unlock()

	return HubStats{
		Observers: observers,
		Published: h.published.Load(),
		Dropped:   h.dropped.Load(),
	}
}

// ServeHTTP upgrades the request and attaches the connection as an
// observer. Inbound messages are discarded; the stream is one-way.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("observer upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	id := h.Attach(conn)
	h.logger.Info("observer connected", "id", id, "remote", r.RemoteAddr)

	// Drain the read side to notice disconnects.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.Detach(id)
				h.logger.Info("observer disconnected", "id", id)
				return
			}
		}
	}()
}

func (h *Hub) writeLoop(obs *observer) {
	for {
		data, ok := obs.ring.Receive()
		if !ok {
			return
		}
		if err := obs.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Warn("observer write failed, detaching", "id", obs.id, "error", err)
			h.Detach(obs.id)
			return
		}
	}
}
