package transfer

import (
	"bytes"
	"fmt"

	"github.com/BioHazard786/Ghostlink/internal/webrtc"
	"github.com/google/uuid"
)

// FileMeta announces an incoming file.
type FileMeta struct {
	ID        uuid.UUID
	Name      string
	MimeType  string
	TotalSize int64
}

// MetaFromPayload validates a file-meta control payload.
func MetaFromPayload(p webrtc.FileMetaPayload) (FileMeta, error) {
	id, err := uuid.Parse(p.FileID)
	if err != nil {
		return FileMeta{}, WrapError("file meta", ErrInvalidMetadata, "bad file id")
	}
	if p.FileName == "" {
		return FileMeta{}, WrapError("file meta", ErrInvalidMetadata, "empty file name")
	}
	return FileMeta{ID: id, Name: p.FileName, MimeType: p.MimeType, TotalSize: int64(p.TotalSize)}, nil
}

func (m FileMeta) Payload() webrtc.FileMetaPayload {
	return webrtc.FileMetaPayload{
		FileID:    m.ID.String(),
		FileName:  m.Name,
		MimeType:  m.MimeType,
		TotalSize: uint64(m.TotalSize),
	}
}

// CompletedFile is a fully received file.
type CompletedFile struct {
	ID       uuid.UUID
	Name     string
	MimeType string
	Data     []byte
	// SenderID and SenderName identify who sent the file.
	SenderID   string
	SenderName string
}

func (f CompletedFile) Size() int64 { return int64(len(f.Data)) }

// FileTransfer is an in-flight file. received never exceeds meta.TotalSize.
type FileTransfer struct {
	meta     FileMeta
	chunks   [][]byte
	received int64
}

func (t *FileTransfer) Meta() FileMeta { return t.meta }

func (t *FileTransfer) ReceivedBytes() int64 { return t.received }

func (t *FileTransfer) IsComplete() bool { return t.received == t.meta.TotalSize }

func (t *FileTransfer) assemble() CompletedFile {
	return CompletedFile{
		ID:       t.meta.ID,
		Name:     t.meta.Name,
		MimeType: t.meta.MimeType,
		Data:     bytes.Join(t.chunks, nil),
	}
}

// Assembler rebuilds files from the chunk frames of one channel. It is not
// safe for concurrent use; the session calls it from its event loop.
type Assembler struct {
	maxSize  int64
	inflight map[uuid.UUID]*FileTransfer
}

// NewAssembler refuses files larger than maxSize. maxSize <= 0 means DefaultMaxFileSize.
func NewAssembler(maxSize int64) *Assembler {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	return &Assembler{
		maxSize:  maxSize,
		inflight: make(map[uuid.UUID]*FileTransfer),
	}
}

// Begin registers an announced file. A zero-byte file completes immediately.
func (a *Assembler) Begin(meta FileMeta) (*CompletedFile, error) {
	if meta.TotalSize < 0 {
		return nil, NewFileError("begin", meta.Name, ErrInvalidMetadata)
	}
	if meta.TotalSize > a.maxSize {
		return nil, WrapError("begin", ErrFileTooLarge, fmt.Sprintf("%s is %d bytes, limit %d", meta.Name, meta.TotalSize, a.maxSize))
	}
	if _, ok := a.inflight[meta.ID]; ok {
		return nil, NewFileError("begin", meta.Name, ErrDuplicateTransfer)
	}

	t := &FileTransfer{meta: meta}
	if t.IsComplete() {
		done := t.assemble()
		return &done, nil
	}
	a.inflight[meta.ID] = t
	return nil, nil
}

// Append applies one chunk. It returns the file when the chunk completes it.
// Chunks for unknown ids, and chunks that would overflow the declared size,
// are rejected without changing any state.
func (a *Assembler) Append(id uuid.UUID, chunk []byte) (*CompletedFile, error) {
	t, ok := a.inflight[id]
	if !ok {
		return nil, WrapError("append", ErrUnknownTransfer, id.String())
	}
	if t.received+int64(len(chunk)) > t.meta.TotalSize {
		return nil, NewFileError("append", t.meta.Name, ErrChunkOverflow)
	}

	// The frame buffer belongs to the transport.
	t.chunks = append(t.chunks, bytes.Clone(chunk))
	t.received += int64(len(chunk))

	if !t.IsComplete() {
		return nil, nil
	}
	delete(a.inflight, id)
	done := t.assemble()
	return &done, nil
}

// Abort drops an in-flight transfer and reports whether it existed.
func (a *Assembler) Abort(id uuid.UUID) (FileMeta, bool) {
	t, ok := a.inflight[id]
	if !ok {
		return FileMeta{}, false
	}
	delete(a.inflight, id)
	return t.meta, true
}

// Transfer returns the in-flight transfer for id.
func (a *Assembler) Transfer(id uuid.UUID) (*FileTransfer, bool) {
	t, ok := a.inflight[id]
	return t, ok
}

func (a *Assembler) Pending() int { return len(a.inflight) }
