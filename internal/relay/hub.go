package relay

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/BioHazard786/Ghostlink/internal/signaling"
)

// inbound is an envelope read from a client.
type inbound struct {
	client *Client
	env    *signaling.Envelope
}

// Hub owns every room and client. All state is touched only by Run.
type Hub struct {
	log *slog.Logger

	rooms map[string]map[string]*Client

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound

	// stats is answered from the Run goroutine.
	stats chan chan Stats

	// done is closed when Run returns.
	done chan struct{}
}

// Stats is a point-in-time count of rooms and members.
type Stats struct {
	Rooms   int `json:"rooms"`
	Members int `json:"members"`
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:        log,
		rooms:      make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound),
		stats:      make(chan chan Stats),
		done:       make(chan struct{}),
	}
}

// Run processes hub events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, members := range h.rooms {
				for _, c := range members {
					h.drop(c)
				}
			}
			return

		case c := <-h.register:
			h.log.Debug("client connected", "addr", c.addr)

		case c := <-h.unregister:
			h.log.Debug("client disconnected", "addr", c.addr, "room", c.room, "peer", c.peerID)
			h.leave(c)
			if !c.closed {
				c.closed = true
				close(c.send)
			}

		case msg := <-h.inbound:
			h.handle(msg.client, msg.env)

		case reply := <-h.stats:
			var s Stats
			for _, members := range h.rooms {
				s.Rooms++
				s.Members += len(members)
			}
			reply <- s
		}
	}
}

// Stats asks the hub for its current counts.
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	select {
	case h.stats <- reply:
	case <-h.done:
		return Stats{}, context.Canceled
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

func (h *Hub) handle(c *Client, env *signaling.Envelope) {
	switch env.Type {
	case signaling.MessageTypeJoin:
		h.join(c, env)

	case signaling.MessageTypeBroadcast:
		if c.room == "" {
			h.fail(c, "join a room first")
			return
		}
		out := &signaling.Envelope{
			Type:    signaling.MessageTypeBroadcast,
			Event:   env.Event,
			From:    c.peerID,
			Payload: env.Payload,
		}
		for id, member := range h.rooms[c.room] {
			if id != c.peerID {
				h.deliver(member, out)
			}
		}

	default:
		h.log.Warn("unknown message type", "type", env.Type, "addr", c.addr)
	}
}

func (h *Hub) join(c *Client, env *signaling.Envelope) {
	if c.room != "" {
		h.fail(c, "already in a room")
		return
	}
	if env.Room == "" || env.PeerID == "" {
		h.fail(c, "room and peer_id are required")
		return
	}

	var info signaling.PresenceInfo
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &info); err != nil {
			h.fail(c, "invalid presence payload")
			return
		}
	}

	members := h.rooms[env.Room]
	if members == nil {
		members = make(map[string]*Client)
		h.rooms[env.Room] = members
	}
	if _, taken := members[env.PeerID]; taken {
		h.fail(c, "peer id already in room")
		return
	}

	c.room, c.peerID, c.info = env.Room, env.PeerID, info

	for id, m := range members {
		h.deliver(c, presence(signaling.MessageTypePresenceJoin, id, m.info))
	}
	members[c.peerID] = c
	joined := presence(signaling.MessageTypePresenceJoin, c.peerID, info)
	for id, m := range members {
		if id != c.peerID {
			h.deliver(m, joined)
		}
	}
	h.sync(c.room)
	h.log.Info("peer joined", "room", c.room, "peer", c.peerID, "members", len(members))
}

func (h *Hub) leave(c *Client) {
	members, ok := h.rooms[c.room]
	if !ok || members[c.peerID] != c {
		return
	}
	delete(members, c.peerID)
	h.log.Info("peer left", "room", c.room, "peer", c.peerID, "members", len(members))

	if len(members) == 0 {
		delete(h.rooms, c.room)
		return
	}
	left := presence(signaling.MessageTypePresenceLeave, c.peerID, c.info)
	for _, m := range members {
		h.deliver(m, left)
	}
	h.sync(c.room)
}

func (h *Hub) sync(room string) {
	snapshot := make(map[string]signaling.PresenceInfo, len(h.rooms[room]))
	for id, m := range h.rooms[room] {
		snapshot[id] = m.info
	}
	env, err := signaling.NewEnvelope(signaling.MessageTypePresenceSync, snapshot)
	if err != nil {
		h.log.Error("encode presence snapshot", "error", err)
		return
	}
	for _, m := range h.rooms[room] {
		h.deliver(m, env)
	}
}

func (h *Hub) fail(c *Client, reason string) {
	h.log.Warn("rejecting client message", "addr", c.addr, "reason", reason)
	env, _ := signaling.NewEnvelope(signaling.MessageTypeError, signaling.ErrorPayload{Error: reason})
	h.deliver(c, env)
}

// deliver queues env for c. A client whose buffer is full is dropped.
func (h *Hub) deliver(c *Client, env *signaling.Envelope) {
	if c.closed {
		return
	}
	select {
	case c.send <- env:
	default:
		h.log.Warn("dropping slow client", "addr", c.addr, "peer", c.peerID)
		h.drop(c)
	}
}

// drop removes c from its room and closes its send channel, which makes the
// write pump close the connection.
func (h *Hub) drop(c *Client) {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	h.leave(c)
}

func presence(msgType, peerID string, info signaling.PresenceInfo) *signaling.Envelope {
	env, _ := signaling.NewEnvelope(msgType, info)
	env.PeerID = peerID
	return env
}
