package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BioHazard786/Ghostlink/internal/dns"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	eventBuffer    = 64
	outgoingBuffer = 64
)

// WebSocket is a Relay backed by the ghostlink relay server.
type WebSocket struct {
	conn     *websocket.Conn
	log      *slog.Logger
	events   chan Event
	outgoing chan *Envelope
	done     chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	joined    bool
}

// DialWebSocket connects to the relay at serverURL and starts the pumps.
func DialWebSocket(ctx context.Context, serverURL string, log *slog.Logger) (*WebSocket, error) {
	dialer := &websocket.Dialer{
		NetDialContext:   dns.DialContext,
		HandshakeTimeout: 15 * time.Second,
		Proxy:            websocket.DefaultDialer.Proxy,
	}

	conn, _, err := dialer.DialContext(ctx, serverURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay: %w", err)
	}
	return newWebSocket(conn, log), nil
}

func newWebSocket(conn *websocket.Conn, log *slog.Logger) *WebSocket {
	if log == nil {
		log = slog.Default()
	}
	ws := &WebSocket{
		conn:     conn,
		log:      log.With("relay", "websocket"),
		events:   make(chan Event, eventBuffer),
		outgoing: make(chan *Envelope, outgoingBuffer),
		done:     make(chan struct{}),
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go ws.readPump()
	go ws.writePump()
	return ws
}

// Subscribe joins room as peerID and announces info to the other members.
func (w *WebSocket) Subscribe(ctx context.Context, room, peerID string, info PresenceInfo) error {
	w.mu.Lock()
	if w.joined {
		w.mu.Unlock()
		return ErrAlreadySubscribed
	}
	w.joined = true
	w.mu.Unlock()

	env, err := NewEnvelope(MessageTypeJoin, info)
	if err != nil {
		return err
	}
	env.Room = room
	env.PeerID = peerID
	return w.send(ctx, env)
}

// Broadcast sends payload to every other member under the given event name.
func (w *WebSocket) Broadcast(ctx context.Context, event string, payload any) error {
	w.mu.Lock()
	joined := w.joined
	w.mu.Unlock()
	if !joined {
		return ErrNotSubscribed
	}

	env, err := NewEnvelope(MessageTypeBroadcast, payload)
	if err != nil {
		return fmt.Errorf("encode %s broadcast: %w", event, err)
	}
	env.Event = event
	return w.send(ctx, env)
}

// Events returns the channel of inbound relay events.
func (w *WebSocket) Events() <-chan Event {
	return w.events
}

// Close flushes queued messages, sends a close frame and tears down the connection.
func (w *WebSocket) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)
	})
	return nil
}

func (w *WebSocket) send(ctx context.Context, env *Envelope) error {
	select {
	case <-w.done:
		return ErrRelayClosed
	default:
	}

	select {
	case w.outgoing <- env:
		return nil
	case <-w.done:
		return ErrRelayClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readPump reads envelopes from the connection and translates them into events.
func (w *WebSocket) readPump() {
	defer func() {
		w.conn.Close()
		close(w.events)
	}()

	w.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var env Envelope
		if err := w.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.log.Warn("relay connection lost", "error", err)
			}
			return
		}

		ev, ok := w.decode(&env)
		if !ok {
			continue
		}
		select {
		case w.events <- ev:
		case <-w.done:
			return
		}
	}
}

func (w *WebSocket) decode(env *Envelope) (Event, bool) {
	switch env.Type {
	case MessageTypePresenceJoin, MessageTypePresenceLeave:
		ev := Event{Kind: PresenceJoin, PeerID: env.PeerID}
		if env.Type == MessageTypePresenceLeave {
			ev.Kind = PresenceLeave
		}
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &ev.Info); err != nil {
				w.log.Warn("invalid presence payload", "type", env.Type, "error", err)
			}
		}
		return ev, true

	case MessageTypePresenceSync:
		snapshot := map[string]PresenceInfo{}
		if err := json.Unmarshal(env.Payload, &snapshot); err != nil {
			w.log.Warn("invalid presence snapshot", "error", err)
			return Event{}, false
		}
		return Event{Kind: PresenceSync, Snapshot: snapshot}, true

	case MessageTypeBroadcast:
		return Event{Kind: Broadcast, Name: env.Event, From: env.From, Payload: env.Payload}, true

	case MessageTypeError:
		var payload ErrorPayload
		_ = json.Unmarshal(env.Payload, &payload)
		return Event{Kind: RelayError, Err: payload.Error}, true

	default:
		w.log.Debug("ignoring relay message", "type", env.Type)
		return Event{}, false
	}
}

// writePump writes envelopes to the connection and sends periodic pings.
func (w *WebSocket) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		w.conn.Close()
	}()

	for {
		select {
		case env := <-w.outgoing:
			if err := w.write(env); err != nil {
				w.log.Warn("relay write failed", "error", err)
				return
			}

		case <-ticker.C:
			w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-w.done:
			w.flush()
			w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush drains envelopes queued before Close so a final broadcast still goes out.
func (w *WebSocket) flush() {
	for {
		select {
		case env := <-w.outgoing:
			if err := w.write(env); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (w *WebSocket) write(env *Envelope) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteJSON(env)
}
