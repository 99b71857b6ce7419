package session

import (
	"log/slog"
	"time"

	"github.com/BioHazard786/Ghostlink/internal/directory"
	"github.com/BioHazard786/Ghostlink/internal/transfer"
	"github.com/BioHazard786/Ghostlink/internal/webrtc"
	"github.com/google/uuid"
)

// TerminalState is Active until the session is kicked or ended.
type TerminalState int

const (
	Active TerminalState = iota
	Kicked
	Ended
)

func (t TerminalState) String() string {
	switch t {
	case Active:
		return "active"
	case Kicked:
		return "kicked"
	case Ended:
		return "ended"
	}
	return "unknown"
}

// Reason explains why a session left Active.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonAdminEnded
	ReasonLeft
	ReasonExpired
	ReasonKicked
)

func (r Reason) String() string {
	switch r {
	case ReasonAdminEnded:
		return "the admin ended the room"
	case ReasonLeft:
		return "you left the room"
	case ReasonExpired:
		return "the room expired"
	case ReasonKicked:
		return "you were removed by the admin"
	}
	return ""
}

// Participant is one member of the room as seen through presence.
type Participant struct {
	PeerID      string
	DisplayName string
	IsAdmin     bool
	Self        bool
}

type ChatMessage struct {
	SenderID   string
	SenderName string
	Text       string
	At         time.Time
	// Local is set for messages this session sent.
	Local bool
}

// Event is delivered on Session.Events.
type Event interface {
	event()
}

type ParticipantsChanged struct {
	Participants []Participant
}

type ChatAppended struct {
	Message ChatMessage
}

type FileCompleted struct {
	File transfer.CompletedFile
	// Local is set when the file was sent by this session.
	Local bool
}

// FileSendProgress tracks an outgoing file. Done is set once the sender
// stops, whether or not anyone received it.
type FileSendProgress struct {
	FileID uuid.UUID
	Name   string
	Sent   int64
	Total  int64
	Done   bool
}

type CountdownTick struct {
	Remaining time.Duration
	Display   string
}

type TerminalStateReached struct {
	State  TerminalState
	Reason Reason
}

// Notice is a user facing message that is not part of the chat.
type Notice struct {
	Level slog.Level
	Text  string
}

func (ParticipantsChanged) event()  {}
func (ChatAppended) event()         {}
func (FileCompleted) event()        {}
func (FileSendProgress) event()     {}
func (CountdownTick) event()        {}
func (TerminalStateReached) event() {}
func (Notice) event()               {}

// LinkInfo describes one PeerLink at snapshot time.
type LinkInfo struct {
	PeerID     string
	State      NegotiationState
	Connection webrtc.ConnectionState
	HasChannel bool
	Channel    webrtc.ChannelState
}

// Snapshot is a consistent copy of session state.
type Snapshot struct {
	LocalID      string
	Room         directory.Room
	Participants []Participant
	Links        []LinkInfo
	OpenChannels int
	Transcript   []ChatMessage
	Files        []transfer.CompletedFile
	Remaining    time.Duration
	State        TerminalState
	Reason       Reason
}

// Link returns the info for peerID.
func (s Snapshot) Link(peerID string) (LinkInfo, bool) {
	for _, l := range s.Links {
		if l.PeerID == peerID {
			return l, true
		}
	}
	return LinkInfo{}, false
}
