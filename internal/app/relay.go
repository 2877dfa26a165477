package app

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/txmesh/signaling/internal/core"
	"github.com/txmesh/signaling/internal/domain"
	"github.com/txmesh/signaling/internal/protocol"
)

// Relay forwards a handshake frame (offer/answer/ice-candidate) to a
// single named target peer. The frame is forwarded verbatim with the
// sender's peer id injected as fromPeer; it is delivered only when the
// target resolves and its bound room matches the stated room.
func (h *Hub) Relay(s *Session, env protocol.Envelope, raw core.Frame) {
	if env.TargetPeer == "" || env.RoomID == "" {
		h.send(s, protocol.NewError("targetPeer and roomId are required"))
		return
	}

	h.mu.RLock()
	from := string(s.peerID)
	target, ok := h.peers[domain.PeerID(env.TargetPeer)]
	if ok {
		ok = target.roomID == domain.RoomID(env.RoomID)
	}
	h.mu.RUnlock()

	if !ok {
		h.metrics.incRelayFailure()
		h.send(s, protocol.NewError(fmt.Sprintf("Target peer %s not found in room %s", env.TargetPeer, env.RoomID)))
		return
	}

	out, err := protocol.InjectFrom(raw, from)
	if err != nil {
		h.send(s, protocol.NewError("Invalid message format"))
		return
	}
	h.sendRaw(target, out)
	log.Debug().Str("module", "app.hub").Str("type", env.Type).Str("from", from).Str("to", env.TargetPeer).Msg("relayed frame")
}

// Broadcast fans a transaction out to every current member of the
// sender's room, including the sender. The timestamp marks the time of
// broadcast, not of submission. Membership is read under the lock, so the
// fan-out is a consistent snapshot; sessions joining during delivery are
// not included.
func (h *Hub) Broadcast(s *Session, env protocol.Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if s.roomID == "" {
		h.send(s, protocol.NewError("Not in a room"))
		return
	}

	frame := protocol.NewTransactionBroadcast(env.Transaction, string(s.peerID), string(s.roomID), time.Now().UnixMilli())
	b, err := json.Marshal(frame)
	if err != nil {
		log.Error().Err(err).Str("module", "app.hub").Msg("broadcast marshal")
		return
	}
	members := h.rooms[s.roomID]
	for m := range members {
		h.sendRaw(m, b)
	}
	log.Debug().Str("module", "app.hub").Str("room", string(s.roomID)).Str("from", string(s.peerID)).Int("members", len(members)).Msg("transaction broadcast")
}
