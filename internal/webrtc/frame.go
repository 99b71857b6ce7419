package webrtc

import (
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// Binary frames start with a kind byte.
const (
	frameControl byte = 0x01
	frameChunk   byte = 0x02

	// FileIDSize is the length of the file id header on chunk frames.
	FileIDSize = 16
)

type FrameKind int

const (
	// KindText is anything that is not a well formed control or chunk frame.
	// Receivers treat it as plain chat from the sending peer.
	KindText FrameKind = iota
	KindControl
	KindChunk
)

// Decoded is the result of DecodeFrame. Only the fields for Kind are set.
type Decoded struct {
	Kind    FrameKind
	Message Message
	FileID  uuid.UUID
	Chunk   []byte
	Text    string
}

func EncodeControl(msg Message) ([]byte, error) {
	body, err := msgpack.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	return append([]byte{frameControl}, body...), nil
}

// EncodeTyped builds a control frame from a message type and payload.
func EncodeTyped(msgType string, payload any) ([]byte, error) {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return EncodeControl(msg)
}

func EncodeChunk(id uuid.UUID, data []byte) []byte {
	frame := make([]byte, 1+FileIDSize+len(data))
	frame[0] = frameChunk
	copy(frame[1:], id[:])
	copy(frame[1+FileIDSize:], data)
	return frame
}

// DecodeFrame never fails: frames that do not parse fall back to KindText.
func DecodeFrame(f Frame) Decoded {
	if f.IsText || len(f.Data) == 0 {
		return Decoded{Kind: KindText, Text: string(f.Data)}
	}

	switch f.Data[0] {
	case frameControl:
		var msg Message
		if err := msgpack.Unmarshal(f.Data[1:], &msg); err == nil && msg.Type != "" {
			return Decoded{Kind: KindControl, Message: msg}
		}
	case frameChunk:
		if len(f.Data) >= 1+FileIDSize {
			id, err := uuid.FromBytes(f.Data[1 : 1+FileIDSize])
			if err == nil {
				return Decoded{Kind: KindChunk, FileID: id, Chunk: f.Data[1+FileIDSize:]}
			}
		}
	}
	return Decoded{Kind: KindText, Text: fallbackText(f.Data)}
}

func fallbackText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return fmt.Sprintf("[%d bytes of binary data]", len(data))
}
