package session

import (
	"errors"
	"fmt"

	"github.com/BioHazard786/Ghostlink/internal/directory"
)

var (
	ErrRoomNotFound          = directory.ErrRoomNotFound
	ErrRoomExpired           = errors.New("room has expired")
	ErrNotAdmin              = errors.New("only the room admin can do that")
	ErrNotJoined             = errors.New("session has not joined a room")
	ErrAlreadyJoined         = errors.New("session already joined")
	ErrSessionOver           = errors.New("session has ended")
	ErrLinkClosed            = errors.New("peer link is closed")
	ErrNegotiationInProgress = errors.New("negotiation already in progress")
	ErrGlare                 = errors.New("offer collision")
	ErrUnexpectedAnswer      = errors.New("answer without a pending offer")
	ErrInvalidTransition     = errors.New("invalid negotiation transition")
	ErrUnknownPeer           = errors.New("unknown peer")
	ErrInvalidTarget         = errors.New("cannot target yourself")
)

// SessionError records the operation and peer a failure belongs to.
type SessionError struct {
	Op      string
	Peer    string
	Err     error
	Details string
}

func (e *SessionError) Error() string {
	msg := e.Op
	if e.Peer != "" {
		msg += " " + e.Peer
	}
	msg = fmt.Sprintf("%s: %v", msg, e.Err)
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

func NewPeerError(op, peer string, err error) *SessionError {
	return &SessionError{Op: op, Peer: peer, Err: err}
}

func WrapError(op string, err error, details string) *SessionError {
	return &SessionError{Op: op, Err: err, Details: details}
}
