package app

import (
	"github.com/txmesh/signaling/internal/core"
	"github.com/txmesh/signaling/internal/domain"
)

// Session is one live transport connection and its bound room/peer
// identity. The gateway owns the session and its connection; the hub holds
// non-owning references. peerID and roomID are guarded by the hub's mutex.
type Session struct {
	id   core.SessionID
	conn core.SignalConnection

	peerID domain.PeerID
	roomID domain.RoomID
}

func NewSession(id core.SessionID, conn core.SignalConnection) *Session {
	return &Session{id: id, conn: conn}
}

func (s *Session) ID() core.SessionID { return s.id }
