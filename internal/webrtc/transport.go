package webrtc

import "errors"

var (
	ErrChannelNotOpen      = errors.New("channel not open")
	ErrDuplicateCandidate  = errors.New("duplicate ICE candidate")
	ErrPrematureCandidate  = errors.New("ICE candidate before remote description")
	ErrBufferTimeout       = errors.New("buffer drain timeout")
	ErrRollbackUnsupported = errors.New("rollback after a completed negotiation is not supported")
)

// ChannelLabel names the single data channel opened between two participants.
const ChannelLabel = "ghostlink"

type SDPType string

const (
	SDPTypeOffer  SDPType = "offer"
	SDPTypeAnswer SDPType = "answer"
)

// Description is a session description exchanged over the signaling relay.
type Description struct {
	Type SDPType `json:"type"`
	SDP  string  `json:"sdp"`
}

// Candidate mirrors the browser RTCIceCandidateInit shape.
type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

type ChannelState int

const (
	ChannelConnecting ChannelState = iota
	ChannelOpen
	ChannelClosing
	ChannelClosed
)

func (s ChannelState) String() string {
	switch s {
	case ChannelConnecting:
		return "connecting"
	case ChannelOpen:
		return "open"
	case ChannelClosing:
		return "closing"
	case ChannelClosed:
		return "closed"
	}
	return "unknown"
}

type ConnectionState int

const (
	ConnectionNew ConnectionState = iota
	ConnectionConnecting
	ConnectionConnected
	ConnectionDisconnected
	ConnectionFailed
	ConnectionClosed
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionNew:
		return "new"
	case ConnectionConnecting:
		return "connecting"
	case ConnectionConnected:
		return "connected"
	case ConnectionDisconnected:
		return "disconnected"
	case ConnectionFailed:
		return "failed"
	case ConnectionClosed:
		return "closed"
	}
	return "unknown"
}

// Frame is one data channel message as delivered by the transport.
type Frame struct {
	Data   []byte
	IsText bool
}

// Transport creates peer connections. One Connection is made per remote participant.
type Transport interface {
	NewConnection(peerID string) (Connection, error)
}

// Connection is the negotiation surface of a peer connection. CreateOffer and
// CreateAnswer also install the result as the local description.
//
// Callbacks run on transport goroutines and must not block.
type Connection interface {
	CreateOffer() (Description, error)
	CreateAnswer() (Description, error)
	SetRemoteDescription(desc Description) error
	// Rollback discards a pending local offer.
	Rollback() error
	// AddCandidate returns ErrDuplicateCandidate or ErrPrematureCandidate for
	// candidates that can be ignored.
	AddCandidate(c Candidate) error
	CreateChannel(label string) (Channel, error)

	OnCandidate(fn func(Candidate))
	OnChannel(fn func(Channel))
	OnNegotiationNeeded(fn func())
	OnStateChange(fn func(ConnectionState))

	Close() error
}

// Channel is an ordered, reliable data channel. Send is safe for concurrent use.
type Channel interface {
	Label() string
	State() ChannelState
	Send(data []byte) error
	SendText(text string) error

	OnOpen(fn func())
	OnClose(fn func())
	OnMessage(fn func(Frame))

	Close() error
}
