package session

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/BioHazard786/Ghostlink/internal/signaling"
	"github.com/BioHazard786/Ghostlink/internal/webrtc"
)

type SignalType string

const (
	SignalOffer     SignalType = "offer"
	SignalAnswer    SignalType = "answer"
	SignalCandidate SignalType = "candidate"
)

// SignalMessage is the payload of a "signal" broadcast. Every member
// receives it; only the addressee acts on it.
type SignalMessage struct {
	Type      SignalType          `json:"type"`
	SDP       *webrtc.Description `json:"sdp,omitempty"`
	Candidate *webrtc.Candidate   `json:"candidate,omitempty"`
	From      string              `json:"from"`
	To        string              `json:"to"`
}

func (s *Session) sendSignal(to string, msg SignalMessage) {
	msg.From = s.localID
	msg.To = to
	if err := s.broadcast(signaling.EventSignal, msg); err != nil {
		s.log.Warn("failed to send signal", "remote", to, "type", msg.Type, "error", err)
	}
}

func (s *Session) onSignal(raw json.RawMessage) {
	var msg SignalMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.log.Warn("invalid signal payload", "error", err)
		return
	}
	if msg.To != s.localID || msg.From == "" || msg.From == s.localID {
		return
	}

	switch msg.Type {
	case SignalOffer:
		if msg.SDP == nil {
			s.log.Warn("offer without description", "remote", msg.From)
			return
		}
		s.onOffer(msg.From, *msg.SDP)
	case SignalAnswer:
		if msg.SDP == nil {
			s.log.Warn("answer without description", "remote", msg.From)
			return
		}
		s.onAnswer(msg.From, *msg.SDP)
	case SignalCandidate:
		if msg.Candidate == nil {
			return
		}
		s.onCandidate(msg.From, *msg.Candidate)
	default:
		s.log.Debug("unknown signal type", "type", msg.Type)
	}
}

// ensureLink returns the link to peerID, creating the connection if needed.
// The initiating side also opens the data channel here.
func (s *Session) ensureLink(peerID string) (*PeerLink, error) {
	if link, ok := s.links[peerID]; ok {
		return link, nil
	}

	conn, err := s.transport.NewConnection(peerID)
	if err != nil {
		return nil, NewPeerError("new connection", peerID, err)
	}
	link := newPeerLink(peerID, conn, initiatorRole(s.localID, peerID), s.opts.MaxFileSize)
	s.links[peerID] = link

	conn.OnCandidate(func(c webrtc.Candidate) {
		s.post(func() {
			if s.current(link) {
				s.sendSignal(peerID, SignalMessage{Type: SignalCandidate, Candidate: &c})
			}
		})
	})
	conn.OnChannel(func(ch webrtc.Channel) {
		s.post(func() { s.attachChannel(link, ch) })
	})
	conn.OnNegotiationNeeded(func() {
		s.post(func() { s.renegotiate(link) })
	})
	conn.OnStateChange(func(state webrtc.ConnectionState) {
		s.post(func() { s.onConnectionState(link, state) })
	})

	if link.initiator {
		ch, err := conn.CreateChannel(webrtc.ChannelLabel)
		if err != nil {
			s.log.Warn("failed to create data channel", "remote", peerID, "error", err)
		} else {
			s.attachChannel(link, ch)
		}
	}
	return link, nil
}

func (s *Session) current(link *PeerLink) bool {
	return s.links[link.peerID] == link && link.state != StateClosed
}

// initiate sends the first offer toward peerID.
func (s *Session) initiate(peerID string) {
	link, err := s.ensureLink(peerID)
	if err != nil {
		s.log.Warn("cannot connect to peer", "error", err)
		return
	}
	s.offer(link)
}

// renegotiate answers a transport negotiation-needed request. Only a stable
// link may start another offer.
func (s *Session) renegotiate(link *PeerLink) {
	if !s.current(link) {
		return
	}
	if link.state != StateStable {
		s.log.Debug("renegotiation rejected", "remote", link.peerID, "state", link.state)
		return
	}
	s.offer(link)
}

func (s *Session) offer(link *PeerLink) {
	if err := link.apply(LocalOffer); err != nil {
		s.log.Debug("offer skipped", "remote", link.peerID, "state", link.state, "error", err)
		return
	}
	desc, err := link.conn.CreateOffer()
	if err != nil {
		s.negotiationFailed(link, "create offer", err)
		return
	}
	s.sendSignal(link.peerID, SignalMessage{Type: SignalOffer, SDP: &desc})
}

func (s *Session) onOffer(from string, desc webrtc.Description) {
	link, err := s.ensureLink(from)
	if err != nil {
		s.log.Warn("cannot answer peer", "error", err)
		return
	}

	next, err := Transition(link.state, RemoteOffer)
	switch {
	case errors.Is(err, ErrGlare):
		// The greater id yields: it drops its own offer and answers.
		if initiatorRole(s.localID, from) {
			s.log.Debug("glare: keeping local offer", "remote", from)
			return
		}
		if err := link.conn.Rollback(); err != nil {
			if errors.Is(err, webrtc.ErrRollbackUnsupported) {
				// The initiator restarts the link once this connection goes away.
				s.log.Debug("glare: cannot roll back, dropping link", "remote", from)
				s.removeLink(from)
				return
			}
			s.negotiationFailed(link, "rollback", err)
			return
		}
		if err := link.apply(Rollback); err != nil {
			s.negotiationFailed(link, "rollback", err)
			return
		}
		s.log.Debug("glare: rolled back local offer", "remote", from, "state", link.state)
		if next, err = Transition(link.state, RemoteOffer); err != nil {
			s.negotiationFailed(link, "remote offer", err)
			return
		}
	case err != nil:
		s.log.Warn("offer rejected", "remote", from, "state", link.state, "error", err)
		return
	}
	link.enter(next)

	if err := link.conn.SetRemoteDescription(desc); err != nil {
		s.negotiationFailed(link, "set remote offer", err)
		return
	}
	answer, err := link.conn.CreateAnswer()
	if err != nil {
		s.negotiationFailed(link, "create answer", err)
		return
	}
	if err := link.apply(AnswerSent); err != nil {
		s.negotiationFailed(link, "answer", err)
		return
	}
	s.sendSignal(from, SignalMessage{Type: SignalAnswer, SDP: &answer})
}

func (s *Session) onAnswer(from string, desc webrtc.Description) {
	link, ok := s.links[from]
	if !ok {
		s.log.Warn("answer from unknown peer", "remote", from)
		return
	}
	next, err := Transition(link.state, RemoteAnswer)
	if err != nil {
		s.log.Warn("unexpected answer", "remote", from, "state", link.state, "error", err)
		return
	}
	if err := link.conn.SetRemoteDescription(desc); err != nil {
		s.negotiationFailed(link, "set remote answer", err)
		return
	}
	link.enter(next)
	s.log.Debug("negotiation complete", "remote", from)
}

func (s *Session) onCandidate(from string, c webrtc.Candidate) {
	link, ok := s.links[from]
	if !ok || link.state == StateClosed {
		s.log.Debug("candidate for unknown peer", "remote", from)
		return
	}
	err := link.conn.AddCandidate(c)
	switch {
	case err == nil:
	case errors.Is(err, webrtc.ErrDuplicateCandidate), errors.Is(err, webrtc.ErrPrematureCandidate):
		s.log.Debug("candidate ignored", "remote", from, "error", err)
	default:
		s.log.Warn("failed to add candidate", "remote", from, "error", err)
	}
}

func (s *Session) onConnectionState(link *PeerLink, state webrtc.ConnectionState) {
	if !s.current(link) {
		return
	}
	link.connState = state
	s.log.Debug("connection state", "remote", link.peerID, "state", state)
	if state != webrtc.ConnectionFailed && state != webrtc.ConnectionClosed {
		return
	}
	if s.restartWedged(link) {
		return
	}
	if state == webrtc.ConnectionFailed {
		s.notice(slog.LevelWarn, "Connection to %s failed", s.nameOf(link.peerID))
	}
}

// restartWedged replaces a link whose renegotiation offer can no longer be
// answered because the remote side dropped the connection. Only the
// initiator restarts; the other side answers the fresh offer.
func (s *Session) restartWedged(link *PeerLink) bool {
	if !s.current(link) || s.terminal != Active || s.torndown {
		return false
	}
	if !link.initiator || !link.everStable || link.state != StateHaveLocalOffer {
		return false
	}
	if _, ok := s.participants[link.peerID]; !ok {
		return false
	}
	s.log.Info("restarting link", "remote", link.peerID)
	s.removeLink(link.peerID)
	s.initiate(link.peerID)
	return true
}

// negotiationFailed abandons the current attempt. A link that negotiated
// before goes back to stable, anything else is closed.
func (s *Session) negotiationFailed(link *PeerLink, op string, err error) {
	s.log.Warn("negotiation failed", "error", NewPeerError(op, link.peerID, err))
	if link.everStable {
		link.enter(StateStable)
		return
	}
	s.removeLink(link.peerID)
}

// removeLink closes the link to peerID and forgets it.
func (s *Session) removeLink(peerID string) {
	link, ok := s.links[peerID]
	if !ok {
		return
	}
	delete(s.links, peerID)
	delete(s.open, peerID)
	_ = link.apply(Close)
	link.open = false
	if link.channel != nil {
		link.channel.Close()
	}
	if err := link.conn.Close(); err != nil {
		s.log.Debug("close connection", "remote", peerID, "error", err)
	}
}
