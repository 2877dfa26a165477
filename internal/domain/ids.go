// Package domain contains entity identifiers without logic, just meta-data.
package domain

type (
	// RoomID names a group of sessions that can broadcast to each other.
	RoomID string
	// PeerID is the application-level identity a session claims via join.
	// It is the addressable target for point-to-point relay.
	PeerID string
)
