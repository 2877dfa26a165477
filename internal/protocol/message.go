// Package protocol defines the JSON wire contract between the hub and its
// peers: the inbound envelope, the closed set of frame kinds, and the
// server-side reply frames.
package protocol

import (
	"encoding/json"
	"errors"
)

// ErrMalformed marks a frame that could not be parsed as a structured
// message. The sender gets an error reply; the connection stays open.
var ErrMalformed = errors.New("invalid message format")

// Kind is the closed set of inbound frame types. Unknown tags decode to
// KindUnknown and are dropped without a reply, unlike malformed frames.
type Kind int

const (
	KindUnknown Kind = iota
	KindJoin
	KindLeave
	KindOffer
	KindAnswer
	KindICECandidate
	KindTransaction
	KindPing
)

func ParseKind(s string) Kind {
	switch s {
	case "join":
		return KindJoin
	case "leave":
		return KindLeave
	case "offer":
		return KindOffer
	case "answer":
		return KindAnswer
	case "ice-candidate":
		return KindICECandidate
	case "transaction":
		return KindTransaction
	case "ping":
		return KindPing
	default:
		return KindUnknown
	}
}

func (k Kind) String() string {
	switch k {
	case KindJoin:
		return "join"
	case KindLeave:
		return "leave"
	case KindOffer:
		return "offer"
	case KindAnswer:
		return "answer"
	case KindICECandidate:
		return "ice-candidate"
	case KindTransaction:
		return "transaction"
	case KindPing:
		return "ping"
	default:
		return "unknown"
	}
}

// IsRelay reports whether the kind is a point-to-point handshake frame
// that gets forwarded verbatim to a single target peer.
func (k Kind) IsRelay() bool {
	return k == KindOffer || k == KindAnswer || k == KindICECandidate
}

// Envelope carries the routing fields of an inbound frame. Handshake and
// transaction bodies stay opaque; relay forwarding works on the raw bytes
// so fields outside the envelope survive untouched.
type Envelope struct {
	Type        string          `json:"type"`
	RoomID      string          `json:"roomId,omitempty"`
	PeerID      string          `json:"peerId,omitempty"`
	TargetPeer  string          `json:"targetPeer,omitempty"`
	Transaction json.RawMessage `json:"transaction,omitempty"`
}

// Decode parses an inbound frame into its envelope and kind. A frame that
// is not a JSON object yields ErrMalformed.
func Decode(data []byte) (Envelope, Kind, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, KindUnknown, ErrMalformed
	}
	return env, ParseKind(env.Type), nil
}

// InjectFrom re-encodes a relay frame with the sender's peer id added as
// fromPeer, preserving every other field of the original frame.
func InjectFrom(raw []byte, from string) ([]byte, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, ErrMalformed
	}
	fields["fromPeer"] = from
	return json.Marshal(fields)
}

// Server-to-client frames. Field names follow the wire contract exactly;
// zero-valued optional fields are omitted.

type Welcome struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewWelcome(message string) Welcome {
	return Welcome{Type: "welcome", Message: message}
}

type RoomJoined struct {
	Type   string   `json:"type"`
	RoomID string   `json:"roomId"`
	PeerID string   `json:"peerId"`
	Peers  []string `json:"peers"`
}

func NewRoomJoined(roomID, peerID string, peers []string) RoomJoined {
	if peers == nil {
		peers = []string{}
	}
	return RoomJoined{Type: "room-joined", RoomID: roomID, PeerID: peerID, Peers: peers}
}

type PeerJoined struct {
	Type   string `json:"type"`
	PeerID string `json:"peerId"`
	RoomID string `json:"roomId"`
}

func NewPeerJoined(peerID, roomID string) PeerJoined {
	return PeerJoined{Type: "peer-joined", PeerID: peerID, RoomID: roomID}
}

type PeerLeft struct {
	Type   string `json:"type"`
	PeerID string `json:"peerId"`
	RoomID string `json:"roomId"`
}

func NewPeerLeft(peerID, roomID string) PeerLeft {
	return PeerLeft{Type: "peer-left", PeerID: peerID, RoomID: roomID}
}

type TransactionBroadcast struct {
	Type        string          `json:"type"`
	Transaction json.RawMessage `json:"transaction"`
	FromPeer    string          `json:"fromPeer"`
	RoomID      string          `json:"roomId"`
	Timestamp   int64           `json:"timestamp"`
}

// NewTransactionBroadcast stamps the broadcast with the time of fan-out in
// epoch milliseconds, not the time of submission.
func NewTransactionBroadcast(tx json.RawMessage, fromPeer, roomID string, ts int64) TransactionBroadcast {
	return TransactionBroadcast{
		Type:        "transaction-broadcast",
		Transaction: tx,
		FromPeer:    fromPeer,
		RoomID:      roomID,
		Timestamp:   ts,
	}
}

type Pong struct {
	Type string `json:"type"`
}

func NewPong() Pong {
	return Pong{Type: "pong"}
}

type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewError(message string) ErrorFrame {
	return ErrorFrame{Type: "error", Message: message}
}
