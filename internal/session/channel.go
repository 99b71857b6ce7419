package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/BioHazard786/Ghostlink/internal/transfer"
	"github.com/BioHazard786/Ghostlink/internal/webrtc"
	"github.com/google/uuid"
)

// attachChannel wires ch as link's data channel. A second channel for the
// same link is refused.
func (s *Session) attachChannel(link *PeerLink, ch webrtc.Channel) {
	if !s.current(link) {
		ch.Close()
		return
	}
	if link.channel != nil && link.channel != ch {
		s.log.Warn("refusing extra data channel", "remote", link.peerID, "label", ch.Label())
		ch.Close()
		return
	}
	link.channel = ch

	ch.OnOpen(func() {
		s.post(func() { s.channelOpened(link, ch) })
	})
	ch.OnClose(func() {
		s.post(func() { s.channelClosed(link, ch) })
	})
	ch.OnMessage(func(f webrtc.Frame) {
		s.post(func() { s.onFrame(link, ch, f) })
	})

	if ch.State() == webrtc.ChannelOpen {
		s.channelOpened(link, ch)
	}
}

func (s *Session) channelOpened(link *PeerLink, ch webrtc.Channel) {
	if !s.current(link) || link.channel != ch || link.open {
		return
	}
	link.open = true
	s.open[link.peerID] = ch
	s.log.Info("data channel open", "remote", link.peerID)
	s.notice(slog.LevelInfo, "Connected to %s", s.nameOf(link.peerID))
}

func (s *Session) channelClosed(link *PeerLink, ch webrtc.Channel) {
	if link.channel != ch || !link.open {
		return
	}
	link.open = false
	if s.open[link.peerID] == ch {
		delete(s.open, link.peerID)
	}
	s.log.Info("data channel closed", "remote", link.peerID)
	s.restartWedged(link)
}

func (s *Session) onFrame(link *PeerLink, ch webrtc.Channel, f webrtc.Frame) {
	if !s.current(link) || link.channel != ch {
		return
	}

	decoded := webrtc.DecodeFrame(f)
	switch decoded.Kind {
	case webrtc.KindText:
		s.appendChat(ChatMessage{
			SenderID:   link.peerID,
			SenderName: s.nameOf(link.peerID),
			Text:       decoded.Text,
		})
	case webrtc.KindControl:
		s.onControl(link, decoded.Message)
	case webrtc.KindChunk:
		s.onChunk(link, decoded.FileID, decoded.Chunk)
	}
}

func (s *Session) onControl(link *PeerLink, msg webrtc.Message) {
	switch msg.Type {
	case webrtc.MessageTypeChat:
		var chat webrtc.ChatPayload
		if err := msg.DecodePayload(&chat); err != nil {
			s.log.Warn("invalid chat payload", "remote", link.peerID, "error", err)
			return
		}
		name := chat.SenderName
		if name == "" {
			name = s.nameOf(link.peerID)
		}
		s.appendChat(ChatMessage{SenderID: link.peerID, SenderName: name, Text: chat.Text})

	case webrtc.MessageTypeFileMeta:
		var payload webrtc.FileMetaPayload
		if err := msg.DecodePayload(&payload); err != nil {
			s.log.Warn("invalid file metadata", "remote", link.peerID, "error", err)
			return
		}
		meta, err := transfer.MetaFromPayload(payload)
		if err != nil {
			s.log.Warn("invalid file metadata", "remote", link.peerID, "error", err)
			return
		}
		done, err := link.assembler.Begin(meta)
		if err != nil {
			s.log.Warn("refusing file", "remote", link.peerID, "file", meta.Name, "error", err)
			s.notice(slog.LevelWarn, "Refused %s from %s: %v", meta.Name, s.nameOf(link.peerID), err)
			return
		}
		s.log.Debug("receiving file", "remote", link.peerID, "file", meta.Name, "size", meta.TotalSize)
		if done != nil {
			s.completeFile(link, *done)
		}

	case webrtc.MessageTypeFileAbort:
		var payload webrtc.FileAbortPayload
		if err := msg.DecodePayload(&payload); err != nil {
			return
		}
		id, err := uuid.Parse(payload.FileID)
		if err != nil {
			return
		}
		if meta, ok := link.assembler.Abort(id); ok {
			s.notice(slog.LevelWarn, "%s stopped sending %s", s.nameOf(link.peerID), meta.Name)
		}

	default:
		s.log.Debug("ignoring control message", "type", msg.Type)
	}
}

func (s *Session) onChunk(link *PeerLink, id uuid.UUID, chunk []byte) {
	done, err := link.assembler.Append(id, chunk)
	if err != nil {
		s.log.Warn("dropping chunk", "remote", link.peerID, "file", id, "error", err)
		return
	}
	if done != nil {
		s.completeFile(link, *done)
	}
}

func (s *Session) completeFile(link *PeerLink, f transfer.CompletedFile) {
	f.SenderID = link.peerID
	f.SenderName = s.nameOf(link.peerID)
	s.files = append(s.files, f)
	s.log.Info("file received", "remote", link.peerID, "file", f.Name, "size", f.Size())
	s.emit(FileCompleted{File: f})
}

func (s *Session) appendChat(m ChatMessage) {
	if m.At.IsZero() {
		m.At = s.opts.Now()
	}
	s.transcript = append(s.transcript, m)
	s.emit(ChatAppended{Message: m})
}

// SubmitChat sends text to every open channel and appends it locally.
func (s *Session) SubmitChat(ctx context.Context, text string) error {
	return s.call(ctx, func() error {
		if s.terminal != Active {
			return ErrSessionOver
		}
		frame, err := webrtc.EncodeTyped(webrtc.MessageTypeChat, webrtc.ChatPayload{
			SenderID:   s.localID,
			SenderName: s.opts.DisplayName,
			Text:       text,
		})
		if err != nil {
			return err
		}
		s.sendAll(frame)
		s.appendChat(ChatMessage{
			SenderID:   s.localID,
			SenderName: s.opts.DisplayName,
			Text:       text,
			Local:      true,
		})
		return nil
	})
}

// sendAll writes frame to every link. Links whose channel is not open are
// skipped with a warning.
func (s *Session) sendAll(frame []byte) {
	for id, link := range s.links {
		if !link.open {
			s.log.Warn("channel not open, message dropped", "remote", id)
			s.notice(slog.LevelWarn, "Message not delivered to %s: channel not open", s.nameOf(id))
			continue
		}
		if err := link.channel.Send(frame); err != nil {
			s.log.Warn("send failed", "remote", id, "error", err)
			s.notice(slog.LevelWarn, "Message not delivered to %s: %v", s.nameOf(id), err)
		}
	}
}

// SendFile streams size bytes from r to every open channel. It returns once
// the transfer has been scheduled; completion and failures surface as
// events. SendFile owns r and closes it if it is an io.Closer.
func (s *Session) SendFile(ctx context.Context, name, mimeType string, r io.Reader, size int64) (err error) {
	defer func() {
		if err != nil {
			closeReader(r)
		}
	}()
	if size > s.opts.MaxFileSize {
		return transfer.NewFileError("send", name, transfer.ErrFileTooLarge)
	}
	if size < 0 {
		return transfer.WrapError("send", transfer.ErrInvalidMetadata, "negative size")
	}
	meta := transfer.FileMeta{ID: uuid.New(), Name: name, MimeType: mimeType, TotalSize: size}

	var sinks map[string]transfer.Sink
	err = s.call(ctx, func() error {
		if s.terminal != Active {
			return ErrSessionOver
		}
		sinks = make(map[string]transfer.Sink, len(s.open))
		for id, ch := range s.open {
			sinks[id] = ch
		}
		for id, link := range s.links {
			if !link.open {
				s.notice(slog.LevelWarn, "%s not sent to %s: channel not open", name, s.nameOf(id))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	go func() {
		sender := transfer.NewSender(meta, sinks)
		var sent, reported int64
		step := max(size/progressSteps, 1)
		sender.OnProgress(func(n int64) {
			sent = n
			if n-reported < step && n < size {
				return
			}
			reported = n
			s.post(func() {
				s.emit(FileSendProgress{FileID: meta.ID, Name: meta.Name, Sent: n, Total: size})
			})
		})
		done, err := sender.Run(s.sendCtx, r)
		closeReader(r)
		s.post(func() { s.fileSent(meta, sent, done, sender.Failed(), err) })
	}()
	return nil
}

func closeReader(r io.Reader) {
	if c, ok := r.(io.Closer); ok {
		c.Close()
	}
}

func (s *Session) fileSent(meta transfer.FileMeta, sent int64, f transfer.CompletedFile, failed map[string]error, err error) {
	s.emit(FileSendProgress{FileID: meta.ID, Name: meta.Name, Sent: sent, Total: meta.TotalSize, Done: true})
	for id, sendErr := range failed {
		s.log.Warn("file send failed", "remote", id, "file", meta.Name, "error", sendErr)
		s.notice(slog.LevelWarn, "%s not delivered to %s", meta.Name, s.nameOf(id))
	}
	if errors.Is(err, transfer.ErrNoRecipients) {
		s.log.Warn("file send abandoned", "file", meta.Name, "error", err)
		s.notice(slog.LevelWarn, "%s was not delivered to anyone", meta.Name)
		return
	}
	if err != nil {
		s.log.Warn("file send aborted", "file", meta.Name, "error", err)
		msg := err.Error()
		if errors.Is(err, transfer.ErrShortRead) {
			msg = fmt.Sprintf("%s ended early", meta.Name)
		}
		s.notice(slog.LevelError, "File send failed: %s", msg)
		return
	}
	f.SenderID = s.localID
	f.SenderName = s.opts.DisplayName
	s.files = append(s.files, f)
	s.emit(FileCompleted{File: f, Local: true})
}
