package session

import (
	"github.com/BioHazard786/Ghostlink/internal/transfer"
	"github.com/BioHazard786/Ghostlink/internal/webrtc"
)

// PeerLink is the connection to one remote participant. It is owned by the
// session loop and never touched from transport goroutines.
type PeerLink struct {
	peerID string
	conn   webrtc.Connection

	// channel is the single data channel, nil until created or received.
	channel webrtc.Channel
	open    bool

	state      NegotiationState
	everStable bool
	connState  webrtc.ConnectionState

	// initiator is true when the local id sorts first; that side offers
	// and creates the data channel.
	initiator bool

	assembler *transfer.Assembler
}

func newPeerLink(peerID string, conn webrtc.Connection, initiator bool, maxFileSize int64) *PeerLink {
	return &PeerLink{
		peerID:    peerID,
		conn:      conn,
		initiator: initiator,
		assembler: transfer.NewAssembler(maxFileSize),
	}
}

func (l *PeerLink) apply(ev NegotiationEvent) error {
	next, err := Transition(l.state, ev)
	if err != nil {
		return err
	}
	l.enter(next)
	return nil
}

func (l *PeerLink) enter(next NegotiationState) {
	if next == StateNew && l.everStable {
		next = StateStable
	}
	if next == StateStable {
		l.everStable = true
	}
	l.state = next
}

func (l *PeerLink) info() LinkInfo {
	info := LinkInfo{
		PeerID:     l.peerID,
		State:      l.state,
		Connection: l.connState,
		HasChannel: l.channel != nil,
	}
	if l.channel != nil {
		info.Channel = l.channel.State()
	}
	return info
}

// initiatorRole reports whether local creates the offer and the data channel toward remote.
func initiatorRole(local, remote string) bool {
	return local < remote
}
