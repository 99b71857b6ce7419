package session

import (
	"log/slog"
	"maps"
	"slices"

	"github.com/BioHazard786/Ghostlink/internal/signaling"
)

func (s *Session) addParticipant(p Participant) bool {
	if _, ok := s.participants[p.PeerID]; ok {
		return false
	}
	s.participants[p.PeerID] = p
	s.order = append(s.order, p.PeerID)
	return true
}

func (s *Session) dropParticipant(peerID string) bool {
	if _, ok := s.participants[peerID]; !ok {
		return false
	}
	delete(s.participants, peerID)
	s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == peerID })
	return true
}

// participantList returns members in the order they were first seen.
func (s *Session) participantList() []Participant {
	out := make([]Participant, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.participants[id])
	}
	return out
}

func (s *Session) nameOf(peerID string) string {
	if p, ok := s.participants[peerID]; ok && p.DisplayName != "" {
		return p.DisplayName
	}
	if len(peerID) > 8 {
		return peerID[:8]
	}
	return peerID
}

// onSync rebuilds the participant list from a presence snapshot. Members
// never seen before are handled as if they had just joined.
func (s *Session) onSync(snapshot map[string]signaling.PresenceInfo) {
	for _, id := range slices.Clone(s.order) {
		if _, ok := snapshot[id]; !ok && id != s.localID {
			s.onLeave(id)
		}
	}
	for _, id := range slices.Sorted(maps.Keys(snapshot)) {
		if _, known := s.participants[id]; !known {
			s.discover(id, snapshot[id])
		}
	}
	s.emitParticipants()
}

func (s *Session) onJoin(peerID string, info signaling.PresenceInfo) {
	if peerID == "" || peerID == s.localID {
		return
	}
	s.discover(peerID, info)
	s.emitParticipants()
}

func (s *Session) discover(peerID string, info signaling.PresenceInfo) {
	if peerID == s.localID {
		return
	}
	if s.addParticipant(Participant{PeerID: peerID, DisplayName: info.DisplayName, IsAdmin: info.IsAdmin}) {
		s.log.Debug("participant joined", "remote", peerID, "name", info.DisplayName)
	}
	if _, linked := s.links[peerID]; linked {
		return
	}
	if initiatorRole(s.localID, peerID) {
		s.initiate(peerID)
	}
}

func (s *Session) onLeave(peerID string) {
	if peerID == s.localID {
		return
	}
	name := s.nameOf(peerID)
	removed := s.dropParticipant(peerID)
	if _, ok := s.links[peerID]; ok {
		s.removeLink(peerID)
	}
	if removed {
		s.log.Debug("participant left", "remote", peerID)
		s.notice(slog.LevelInfo, "%s left the room", name)
		s.emitParticipants()
	}
}

func (s *Session) emitParticipants() {
	s.emit(ParticipantsChanged{Participants: s.participantList()})
}
