package fanout

import (
	"sync"

	"go.uber.org/zap"

	"currents/backend/internal/telemetry"
	"currents/backend/pkg/logger"
)

// Hub is the registry of live connections, keyed by the account each
// connection was bound to at handshake. Connections transition
// connected -> identity-bound -> disconnected; binding happens in ServeWS
// before registration, so every registered client has an account.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]bool

	metrics *telemetry.Metrics
	logger  *zap.Logger
}

// NewHub creates an empty connection registry
func NewHub(metrics *telemetry.Metrics) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]bool),
		metrics: metrics,
		logger:  logger.Get(),
	}
}

// Register adds a client to its account's connection set
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[client.accountID]
	if !ok {
		set = make(map[*Client]bool)
		h.clients[client.accountID] = set
	}
	set[client] = true

	h.metrics.LiveClients.Inc()
	h.logger.Debug("Connection registered",
		zap.String("account_id", client.accountID),
		zap.String("conn_id", client.connID),
	)
}

// Unregister removes a client and closes its send channel. Safe to call more
// than once for the same client.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[client.accountID]
	if !ok || !set[client] {
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(h.clients, client.accountID)
	}
	close(client.send)

	h.metrics.LiveClients.Dec()
	h.logger.Debug("Connection unregistered",
		zap.String("account_id", client.accountID),
		zap.String("conn_id", client.connID),
	)
}

// PublishTo pushes payload to every live connection of the given accounts,
// skipping the excluded originating connection. Sends never block: a client
// whose buffer is full is dropped from the registry instead. Returns the
// number of deliveries handed to connection buffers; delivery past that point
// is best-effort, at-most-once.
func (h *Hub) PublishTo(accountIDs []string, payload []byte, excludeConnID string) int {
	var slow []*Client

	h.mu.RLock()
	delivered := 0
	for _, accountID := range accountIDs {
		for client := range h.clients[accountID] {
			if client.connID == excludeConnID {
				continue
			}
			select {
			case client.send <- payload:
				delivered++
			default:
				slow = append(slow, client)
			}
		}
	}
	h.mu.RUnlock()

	h.metrics.FanoutEvents.Add(float64(delivered))
	for _, client := range slow {
		h.metrics.FanoutDropped.Inc()
		h.Unregister(client)
	}

	return delivered
}

// ConnectionCount reports the number of live connections for an account
func (h *Hub) ConnectionCount(accountID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[accountID])
}
