package app

import (
	"sort"
	"time"

	"github.com/txmesh/signaling/internal/core"
)

// Health returns the read-only snapshot served by the health endpoint.
func (h *Hub) Health() core.Health {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return core.Health{
		Status:      "healthy",
		Connections: len(h.sessions),
		Rooms:       len(h.rooms),
		Timestamp:   time.Now().UnixMilli(),
	}
}

// Stats returns the per-room registry snapshot served by the stats
// endpoint.
func (h *Hub) Stats() core.Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms := make([]core.RoomStats, 0, len(h.rooms))
	for rid, members := range h.rooms {
		peers := make([]string, 0, len(members))
		for m := range members {
			if m.peerID != "" {
				peers = append(peers, string(m.peerID))
			}
		}
		sort.Strings(peers)
		rooms = append(rooms, core.RoomStats{
			RoomID:    string(rid),
			PeerCount: len(members),
			Peers:     peers,
		})
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].RoomID < rooms[j].RoomID })

	return core.Stats{
		TotalConnections: len(h.sessions),
		TotalRooms:       len(h.rooms),
		Rooms:            rooms,
	}
}
