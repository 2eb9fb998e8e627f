// Package ws pushes ledger notifications to WebSocket subscribers.
package ws

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditledger/internal/metrics"
	"github.com/persistorai/auditledger/internal/models"
)

// Hub limits and channel sizes.
const (
	broadcastBuffer     = 256
	registerBuffer      = 64
	maxClients          = 1000
	maxPerPrincipal     = 50
	maxBroadcastPayload = 4096
	drainTimeout        = 3 * time.Second
	drainPollInterval   = 50 * time.Millisecond
)

// Hub manages subscribers and fans out events. The client map is only touched
// by the Run goroutine.
type Hub struct {
	clients        map[*Client]struct{}
	principalCount map[string]int
	register       chan *Client
	unregister     chan *Client
	broadcast      chan []byte
	shutdown       chan struct{}
	done           chan struct{}
	count          atomic.Int64
	seq            atomic.Uint64
	log            *logrus.Logger
	buffer         *EventBuffer
}

// NewHub creates a Hub. Call Run to start it.
func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		clients:        make(map[*Client]struct{}),
		principalCount: make(map[string]int),
		register:       make(chan *Client, registerBuffer),
		unregister:     make(chan *Client, registerBuffer),
		broadcast:      make(chan []byte, broadcastBuffer),
		shutdown:       make(chan struct{}),
		done:           make(chan struct{}),
		log:            log,
		buffer:         NewEventBuffer(defaultBufferMaxLen, defaultBufferMaxAge),
	}
}

// Run is the hub event loop. It returns after Shutdown or when ctx ends,
// having drained connected clients.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.drainClients()
			return
		case <-h.shutdown:
			h.drainClients()
			return
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.remove(c)
				h.log.WithField("total", len(h.clients)).Debug("ws.client_unregistered")
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.log.WithField("principal", c.Principal).Warn("ws.slow_client_dropped")
					h.remove(c)
				}
			}
		}
	}
}

func (h *Hub) add(c *Client) {
	switch {
	case len(h.clients) >= maxClients:
		h.log.Warn("ws.global_limit_reached")
		c.closeSend()
		return
	case h.principalCount[c.Principal] >= maxPerPrincipal:
		h.log.WithField("principal", c.Principal).Warn("ws.principal_limit_reached")
		c.closeSend()
		return
	}

	h.clients[c] = struct{}{}
	h.principalCount[c.Principal]++
	h.updateCount()
	h.log.WithFields(logrus.Fields{
		"principal": c.Principal,
		"total":     len(h.clients),
	}).Info("ws.client_registered")
}

func (h *Hub) remove(c *Client) {
	delete(h.clients, c)
	c.closeSend()

	h.principalCount[c.Principal]--
	if h.principalCount[c.Principal] <= 0 {
		delete(h.principalCount, c.Principal)
	}
	h.updateCount()
}

func (h *Hub) updateCount() {
	h.count.Store(int64(len(h.clients)))
	metrics.WSConnections.Set(float64(len(h.clients)))
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	default:
		h.log.Warn("ws.register_full")
		c.closeSend()
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	default:
		// Run has exited and already closed every client.
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Publish assigns the next sequence ID to an event, buffers it for replay and
// queues it for every client. Oversized payloads are dropped.
func (h *Hub) Publish(eventType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.log.WithError(err).Error("ws.marshal_failed")
		return
	}

	evt := Event{
		Type: eventType,
		ID:   h.seq.Add(1),
		Data: raw,
		Time: time.Now().UTC(),
	}

	msg, err := json.Marshal(evt)
	if err != nil {
		h.log.WithError(err).Error("ws.marshal_failed")
		return
	}

	if len(msg) > maxBroadcastPayload {
		h.log.WithFields(logrus.Fields{
			"type": eventType,
			"size": len(msg),
		}).Warn("ws.payload_too_large")
		return
	}

	h.buffer.Append(&evt)

	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn("ws.broadcast_full")
	}
}

// BlockSealed announces a new block's header to subscribers.
func (h *Hub) BlockSealed(b *models.Block) {
	h.Publish(EventBlockSealed, b.Header())
}

// Shutdown notifies clients, waits for their queues to flush and closes them.
func (h *Hub) Shutdown() {
	close(h.shutdown)
	<-h.done
}

func (h *Hub) drainClients() {
	if len(h.clients) == 0 {
		return
	}

	h.log.WithField("clients", len(h.clients)).Info("ws.draining")

	shutdownMsg := []byte(`{"type":"` + EventShutdown + `","message":"server shutting down"}`)
	for c := range h.clients {
		select {
		case c.send <- shutdownMsg:
		default:
		}
	}

	deadline := time.After(drainTimeout)
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()

wait:
	for h.pendingSends() {
		select {
		case <-deadline:
			h.log.Warn("ws.drain_timeout")
			break wait
		case <-ticker.C:
		}
	}

	for c := range h.clients {
		h.remove(c)
	}
}

func (h *Hub) pendingSends() bool {
	for c := range h.clients {
		if len(c.send) > 0 {
			return true
		}
	}
	return false
}

// ReplayEvents queues buffered events after lastEventID for c. It returns
// false when lastEventID is older than anything still buffered.
func (h *Hub) ReplayEvents(c *Client, lastEventID uint64) bool {
	oldest := h.buffer.OldestID()
	if oldest > 0 && lastEventID > 0 && lastEventID < oldest-1 {
		return false
	}

	for _, evt := range h.buffer.Since(lastEventID) {
		msg, err := json.Marshal(evt)
		if err != nil {
			continue
		}
		select {
		case c.send <- msg:
		default:
			return true
		}
	}

	return true
}
