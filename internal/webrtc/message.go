package webrtc

import "github.com/vmihailenco/msgpack/v5"

const (
	MessageTypeChat      = "chat"
	MessageTypeFileMeta  = "file-meta"
	MessageTypeFileAbort = "file-abort"
)

// Message represents all control messages on the data channel
type Message struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

type ChatPayload struct {
	SenderID   string `msgpack:"user"`
	SenderName string `msgpack:"username"`
	Text       string `msgpack:"text"`
}

// FileMetaPayload announces a file. Its chunks follow in chunk frames tagged with FileID.
type FileMetaPayload struct {
	FileID    string `msgpack:"fileId"`
	FileName  string `msgpack:"fileName"`
	MimeType  string `msgpack:"fileType"`
	TotalSize uint64 `msgpack:"size"`
}

type FileAbortPayload struct {
	FileID string `msgpack:"fileId"`
	Reason string `msgpack:"reason,omitempty"`
}

// DecodePayload decodes the message payload into the provided struct
func (m Message) DecodePayload(v any) error {
	return msgpack.Unmarshal(m.Payload, v)
}

// NewMessage creates a new Message with the given type and payload
func NewMessage(t string, payload any) (Message, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return Message{}, err
	}

	return Message{
		Type:    t,
		Payload: b,
	}, nil
}
