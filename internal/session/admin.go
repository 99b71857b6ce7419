package session

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/BioHazard786/Ghostlink/internal/signaling"
)

type AdminAction string

const (
	AdminKick AdminAction = "kick"
	AdminEnd  AdminAction = "end"
)

// AdminMessage is the payload of an "admin" broadcast.
type AdminMessage struct {
	Type   AdminAction `json:"type"`
	UserID string      `json:"userId,omitempty"`
}

// Kick removes peerID from the room. Only the admin may kick.
func (s *Session) Kick(ctx context.Context, peerID string) error {
	if !s.opts.IsAdmin {
		return ErrNotAdmin
	}
	return s.call(ctx, func() error {
		if s.terminal != Active {
			return ErrSessionOver
		}
		if peerID == s.localID {
			return NewPeerError("kick", peerID, ErrInvalidTarget)
		}
		if _, ok := s.participants[peerID]; !ok {
			return NewPeerError("kick", peerID, ErrUnknownPeer)
		}
		if err := s.broadcast(signaling.EventAdmin, AdminMessage{Type: AdminKick, UserID: peerID}); err != nil {
			return NewPeerError("kick", peerID, err)
		}
		s.log.Info("kicked participant", "remote", peerID)
		s.removeKicked(peerID)
		return nil
	})
}

// EndOrLeave ends the room for everyone when called by the admin, deleting
// the room record first. Anyone else just leaves.
func (s *Session) EndOrLeave(ctx context.Context) error {
	return s.call(ctx, func() error {
		if s.terminal != Active {
			return ErrSessionOver
		}
		if !s.opts.IsAdmin {
			s.terminate(Ended, ReasonLeft)
			return nil
		}

		if err := s.dir.Delete(ctx, s.opts.Code); err != nil {
			s.log.Warn("failed to delete room", "error", err)
			s.notice(slog.LevelWarn, "Could not delete the room record: %v", err)
		}
		if err := s.broadcast(signaling.EventAdmin, AdminMessage{Type: AdminEnd}); err != nil {
			s.log.Warn("failed to broadcast end", "error", err)
		}
		s.terminate(Ended, ReasonAdminEnded)
		return nil
	})
}

func (s *Session) onAdmin(from string, raw json.RawMessage) {
	var msg AdminMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.log.Warn("invalid admin payload", "error", err)
		return
	}

	switch msg.Type {
	case AdminKick:
		if msg.UserID == s.localID {
			s.log.Info("kicked from room", "by", from)
			s.terminate(Kicked, ReasonKicked)
			return
		}
		s.removeKicked(msg.UserID)
	case AdminEnd:
		s.log.Info("room ended by admin", "by", from)
		s.terminate(Ended, ReasonAdminEnded)
	default:
		s.log.Debug("unknown admin action", "type", msg.Type)
	}
}

func (s *Session) removeKicked(peerID string) {
	name := s.nameOf(peerID)
	s.removeLink(peerID)
	if s.dropParticipant(peerID) {
		s.notice(slog.LevelInfo, "%s was removed from the room", name)
		s.emitParticipants()
	}
}
