// Package app implements the rendezvous hub: the session registry, room
// registry and peer directory, plus the routing operations that decide who
// receives every inbound frame.
package app

import (
	"encoding/json"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/txmesh/signaling/internal/core"
	"github.com/txmesh/signaling/internal/domain"
	"github.com/txmesh/signaling/internal/protocol"
)

// Hub owns all connection, room and peer state. Every mutating operation
// runs under one mutex so that {check membership, mutate membership,
// notify} is atomic with respect to concurrent operations on the same
// room. Notifications are enqueued through non-blocking sends, so holding
// the lock across fan-out cannot stall on a slow peer.
type Hub struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*Session
	rooms    map[domain.RoomID]map[*Session]struct{}
	peers    map[domain.PeerID]*Session

	metrics *hubMetrics
}

// NewHub creates an empty hub. Metrics are registered on reg; nil uses the
// default prometheus registerer.
func NewHub(reg prometheus.Registerer) *Hub {
	return &Hub{
		sessions: make(map[core.SessionID]*Session),
		rooms:    make(map[domain.RoomID]map[*Session]struct{}),
		peers:    make(map[domain.PeerID]*Session),
		metrics:  newHubMetrics(reg),
	}
}

// Register adds a freshly connected session and greets it.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	h.sessions[s.id] = s
	total := len(h.sessions)
	h.send(s, protocol.NewWelcome("Connected to signaling server"))
	h.mu.Unlock()

	h.metrics.incConnection()
	log.Info().Str("module", "app.hub").Str("sid", string(s.id)).Int("connections", total).Msg("session registered")
}

// Disconnect is the only cleanup path: transport close and transport error
// both land here. A session bound to a room leaves it first, which removes
// the peer-directory entry and notifies the remaining members.
func (h *Hub) Disconnect(s *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[s.id]; !ok {
		h.mu.Unlock()
		return
	}
	if s.roomID != "" {
		h.leaveLocked(s, s.roomID)
	}
	delete(h.sessions, s.id)
	total := len(h.sessions)
	h.mu.Unlock()

	h.metrics.decConnection()
	log.Info().Str("module", "app.hub").Str("sid", string(s.id)).Int("connections", total).Msg("session disconnected")
}

// CountFrame records one routed inbound frame of the given type.
func (h *Hub) CountFrame(kind string) {
	h.metrics.incFrame(kind)
}

// Binding reports the session's current room and peer bindings.
func (h *Hub) Binding(s *Session) (domain.PeerID, domain.RoomID) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return s.peerID, s.roomID
}

// send marshals v and enqueues it on the session's connection. A failed
// enqueue is dropped; one slow or closed recipient never affects delivery
// to the rest.
func (h *Hub) send(s *Session, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.hub").Msg("frame marshal")
		return
	}
	h.sendRaw(s, b)
}

func (h *Hub) sendRaw(s *Session, frame core.Frame) {
	if err := s.conn.TrySend(frame); err != nil {
		h.metrics.incDropped()
		log.Warn().Err(err).Str("module", "app.hub").Str("sid", string(s.id)).Msg("frame dropped")
	}
}
