package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/BioHazard786/Ghostlink/internal/webrtc"
)

// Sink receives encoded frames. webrtc.Channel satisfies it.
type Sink interface {
	Send(data []byte) error
}

// Sender streams one file to a set of channels: a file-meta control frame,
// then fixed-size chunk frames tagged with the file id. A channel that fails
// a send is dropped and reported through Failed.
type Sender struct {
	meta       FileMeta
	sinks      map[string]Sink
	failed     map[string]error
	onProgress func(sent int64)
}

func NewSender(meta FileMeta, sinks map[string]Sink) *Sender {
	active := make(map[string]Sink, len(sinks))
	for id, sink := range sinks {
		active[id] = sink
	}
	return &Sender{
		meta:   meta,
		sinks:  active,
		failed: make(map[string]error),
	}
}

// OnProgress registers a callback invoked after every chunk is handed to
// the remaining sinks.
func (s *Sender) OnProgress(fn func(sent int64)) {
	s.onProgress = fn
}

// Failed maps the ids of dropped channels to their send error.
func (s *Sender) Failed() map[string]error {
	return s.failed
}

// Run reads exactly meta.TotalSize bytes from src. A read error or a short
// source aborts the transfer on every receiver. Run stops reading with
// ErrNoRecipients once every sink has failed.
func (s *Sender) Run(ctx context.Context, src io.Reader) (CompletedFile, error) {
	if len(s.sinks) == 0 {
		return CompletedFile{}, NewFileError("send", s.meta.Name, ErrNoRecipients)
	}
	metaFrame, err := webrtc.EncodeTyped(webrtc.MessageTypeFileMeta, s.meta.Payload())
	if err != nil {
		return CompletedFile{}, NewFileError("send", s.meta.Name, err)
	}
	s.broadcast(metaFrame)

	size := s.meta.TotalSize
	var data bytes.Buffer
	data.Grow(int(size))

	buf := make([]byte, ChunkSize)
	var sent int64
	for sent < size {
		if len(s.sinks) == 0 {
			return CompletedFile{}, NewFileError("send", s.meta.Name, ErrNoRecipients)
		}
		if err := ctx.Err(); err != nil {
			s.abort("cancelled")
			return CompletedFile{}, NewFileError("send", s.meta.Name, err)
		}

		want := min(int64(ChunkSize), size-sent)
		n, err := io.ReadFull(src, buf[:want])
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				err = ErrShortRead
			}
			s.abort("source unreadable")
			return CompletedFile{}, NewFileError("read", s.meta.Name, err)
		}

		data.Write(buf[:n])
		s.broadcast(webrtc.EncodeChunk(s.meta.ID, buf[:n]))
		sent += int64(n)
		if s.onProgress != nil {
			s.onProgress(sent)
		}
	}
	if len(s.sinks) == 0 {
		return CompletedFile{}, NewFileError("send", s.meta.Name, ErrNoRecipients)
	}

	return CompletedFile{
		ID:       s.meta.ID,
		Name:     s.meta.Name,
		MimeType: s.meta.MimeType,
		Data:     data.Bytes(),
	}, nil
}

func (s *Sender) abort(reason string) {
	frame, err := webrtc.EncodeTyped(webrtc.MessageTypeFileAbort, webrtc.FileAbortPayload{
		FileID: s.meta.ID.String(),
		Reason: reason,
	})
	if err != nil {
		return
	}
	s.broadcast(frame)
}

func (s *Sender) broadcast(frame []byte) {
	for id, sink := range s.sinks {
		if err := sink.Send(frame); err != nil {
			s.failed[id] = err
			delete(s.sinks, id)
		}
	}
}
