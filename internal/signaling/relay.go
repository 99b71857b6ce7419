package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
)

var (
	ErrRelayClosed       = errors.New("relay connection closed")
	ErrNotSubscribed     = errors.New("relay not subscribed to a room")
	ErrAlreadySubscribed = errors.New("relay already subscribed")
	ErrUnsupportedRelay  = errors.New("unsupported relay scheme")
)

// EventKind identifies what a relay Event carries.
type EventKind int

const (
	PresenceSync EventKind = iota
	PresenceJoin
	PresenceLeave
	Broadcast
	RelayError
)

func (k EventKind) String() string {
	switch k {
	case PresenceSync:
		return "presence-sync"
	case PresenceJoin:
		return "presence-join"
	case PresenceLeave:
		return "presence-leave"
	case Broadcast:
		return "broadcast"
	case RelayError:
		return "error"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a single notification delivered by a Relay.
type Event struct {
	Kind EventKind

	// PeerID and Info are set for PresenceJoin and PresenceLeave.
	PeerID string
	Info   PresenceInfo

	// Snapshot is the full membership for PresenceSync.
	Snapshot map[string]PresenceInfo

	// Name, From and Payload are set for Broadcast.
	Name    string
	From    string
	Payload json.RawMessage

	// Err is set for RelayError.
	Err string
}

// Relay is a room-scoped publish/subscribe channel with presence.
// Events is closed when the connection is lost or Close is called.
type Relay interface {
	Subscribe(ctx context.Context, room, peerID string, info PresenceInfo) error
	Broadcast(ctx context.Context, event string, payload any) error
	Events() <-chan Event
	Close() error
}

// Dial opens a relay for rawURL. ws and wss select the websocket relay;
// mqtt, mqtts, tcp, ssl and tls select an MQTT broker.
func Dial(ctx context.Context, rawURL string, log *slog.Logger) (Relay, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay URL: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}

	switch u.Scheme {
	case "ws", "wss":
		return DialWebSocket(ctx, rawURL, log)
	case "mqtt", "mqtts", "tcp", "ssl", "tls":
		return NewMQTT(rawURL, log), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedRelay, u.Scheme)
	}
}
