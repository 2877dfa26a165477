package app

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/txmesh/signaling/internal/domain"
	"github.com/txmesh/signaling/internal/protocol"
)

// Join binds a session to a room under a peer id. A session already bound
// to a room leaves it first, so no session is ever a member of two rooms.
// Existing members are notified before the joiner is added, and the
// joiner's room-joined snapshot lists membership as it was before the
// join, so the joiner never hears about itself.
//
// A peer id already bound to a different live session evicts that session
// from its room; the evicted session is told why. See DESIGN.md.
func (h *Hub) Join(s *Session, roomID, peerID string) {
	if roomID == "" || peerID == "" {
		h.send(s, protocol.NewError("roomId and peerId are required"))
		return
	}
	rid, pid := domain.RoomID(roomID), domain.PeerID(peerID)

	h.mu.Lock()
	defer h.mu.Unlock()

	if s.roomID != "" {
		h.leaveLocked(s, s.roomID)
	}

	if prev, ok := h.peers[pid]; ok && prev != s {
		if prev.roomID != "" {
			h.leaveLocked(prev, prev.roomID)
		} else {
			delete(h.peers, pid)
			prev.peerID = ""
		}
		h.send(prev, protocol.NewError(fmt.Sprintf("Peer ID %s was claimed by a new connection", peerID)))
		log.Info().Str("module", "app.hub").Str("peer", peerID).Str("sid", string(prev.id)).Msg("evicted prior session for peer id")
	}

	members := h.rooms[rid]
	existing := make([]string, 0, len(members))
	for m := range members {
		h.send(m, protocol.NewPeerJoined(peerID, roomID))
		if m.peerID != "" {
			existing = append(existing, string(m.peerID))
		}
	}
	sort.Strings(existing)

	if members == nil {
		members = make(map[*Session]struct{})
		h.rooms[rid] = members
		h.metrics.incRoom()
	}
	members[s] = struct{}{}
	h.peers[pid] = s
	s.peerID, s.roomID = pid, rid

	h.send(s, protocol.NewRoomJoined(roomID, peerID, existing))
	log.Info().Str("module", "app.hub").Str("sid", string(s.id)).Str("room", roomID).Str("peer", peerID).Int("members", len(members)).Msg("joined room")
}

// Leave removes the session from the stated room. An unknown room is a
// no-op apart from clearing the session's bindings, which makes leave
// idempotent.
func (h *Hub) Leave(s *Session, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(s, domain.RoomID(roomID))
}

// leaveLocked is the shared leave path for leave frames, rejoins,
// evictions and disconnects. Caller holds h.mu.
func (h *Hub) leaveLocked(s *Session, rid domain.RoomID) {
	members, ok := h.rooms[rid]
	if ok {
		delete(members, s)
		if s.peerID != "" {
			if cur, bound := h.peers[s.peerID]; bound && cur == s {
				delete(h.peers, s.peerID)
			}
			for m := range members {
				h.send(m, protocol.NewPeerLeft(string(s.peerID), string(rid)))
			}
		}
		// A room with zero members must not exist in the registry.
		if len(members) == 0 {
			delete(h.rooms, rid)
			h.metrics.decRoom()
		}
		log.Info().Str("module", "app.hub").Str("sid", string(s.id)).Str("room", string(rid)).Str("peer", string(s.peerID)).Msg("left room")
	}
	s.peerID, s.roomID = "", ""
}
