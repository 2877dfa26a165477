// Package core holds the transport-facing contracts shared by the hub and
// its adapters.
package core

// Frame is an encoded wire message (UTF-8 JSON text).
type Frame []byte

// SessionID identifies one live transport connection.
type SessionID string

// SignalConnection abstracts the send capability of one connection.
// Owned by the adapter; the adapter must Close() it. TrySend never blocks:
// a full outbound buffer or a closed connection returns an error so that a
// single slow peer cannot stall registry operations.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// RoomStats is a read-only view of one room for the stats endpoint.
type RoomStats struct {
	RoomID    string   `json:"roomId"`
	PeerCount int      `json:"peerCount"`
	Peers     []string `json:"peers"`
}

// Stats is the full registry snapshot served by the stats endpoint.
type Stats struct {
	TotalConnections int         `json:"totalConnections"`
	TotalRooms       int         `json:"totalRooms"`
	Rooms            []RoomStats `json:"rooms"`
}

// Health is the health endpoint snapshot. Timestamp is epoch millis.
type Health struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Rooms       int    `json:"rooms"`
	Timestamp   int64  `json:"timestamp"`
}
