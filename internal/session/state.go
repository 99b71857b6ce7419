package session

import "fmt"

// NegotiationState is the offer/answer state of one PeerLink.
type NegotiationState int

const (
	StateNew NegotiationState = iota
	StateHaveLocalOffer
	StateHaveRemoteOffer
	StateStable
	StateClosed
)

func (s NegotiationState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateHaveLocalOffer:
		return "have-local-offer"
	case StateHaveRemoteOffer:
		return "have-remote-offer"
	case StateStable:
		return "stable"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("NegotiationState(%d)", int(s))
}

// NegotiationEvent drives Transition.
type NegotiationEvent int

const (
	LocalOffer NegotiationEvent = iota
	RemoteOffer
	AnswerSent
	RemoteAnswer
	Rollback
	Close
)

func (e NegotiationEvent) String() string {
	switch e {
	case LocalOffer:
		return "local-offer"
	case RemoteOffer:
		return "remote-offer"
	case AnswerSent:
		return "answer-sent"
	case RemoteAnswer:
		return "remote-answer"
	case Rollback:
		return "rollback"
	case Close:
		return "close"
	}
	return fmt.Sprintf("NegotiationEvent(%d)", int(e))
}

// Transition returns the state reached by applying ev in s. Rollback lands
// in StateNew; the link restores StateStable itself if it had negotiated
// before. Every event on a closed link fails with ErrLinkClosed.
func Transition(s NegotiationState, ev NegotiationEvent) (NegotiationState, error) {
	if s == StateClosed {
		return s, ErrLinkClosed
	}

	switch ev {
	case Close:
		return StateClosed, nil

	case LocalOffer:
		switch s {
		case StateNew, StateStable:
			return StateHaveLocalOffer, nil
		default:
			return s, ErrNegotiationInProgress
		}

	case RemoteOffer:
		switch s {
		case StateNew, StateStable:
			return StateHaveRemoteOffer, nil
		case StateHaveLocalOffer:
			return s, ErrGlare
		default:
			return s, ErrNegotiationInProgress
		}

	case AnswerSent:
		if s == StateHaveRemoteOffer {
			return StateStable, nil
		}

	case RemoteAnswer:
		if s == StateHaveLocalOffer {
			return StateStable, nil
		}
		return s, ErrUnexpectedAnswer

	case Rollback:
		if s == StateHaveLocalOffer {
			return StateNew, nil
		}
	}

	return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, s)
}
