package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sync"
)

// MemoryHub is an in-process relay with the same presence and broadcast
// semantics as the relay server. Delivery is FIFO per subscriber.
type MemoryHub struct {
	mu    sync.Mutex
	rooms map[string]map[string]*MemoryRelay
}

// NewMemoryHub creates an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{rooms: make(map[string]map[string]*MemoryRelay)}
}

// Relay returns a new unsubscribed client of the hub.
func (h *MemoryHub) Relay() *MemoryRelay {
	r := &MemoryRelay{
		hub:    h,
		events: make(chan Event),
		ready:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go r.pump()
	return r
}

// Disconnect drops peerID from room as if its connection were lost.
// Its event stream is closed and the others see it leave.
func (h *MemoryHub) Disconnect(room, peerID string) {
	h.mu.Lock()
	r := h.rooms[room][peerID]
	h.mu.Unlock()
	if r != nil {
		r.Close()
	}
}

// Members returns the peer ids currently subscribed to room.
func (h *MemoryHub) Members(room string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.rooms[room]))
	for id := range h.rooms[room] {
		ids = append(ids, id)
	}
	return ids
}

func (h *MemoryHub) join(r *MemoryRelay) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	members := h.rooms[r.room]
	if members == nil {
		members = make(map[string]*MemoryRelay)
		h.rooms[r.room] = members
	}
	if _, exists := members[r.peerID]; exists {
		return fmt.Errorf("peer %s already in room %s", r.peerID, r.room)
	}

	for id, m := range members {
		r.deliver(Event{Kind: PresenceJoin, PeerID: id, Info: m.info})
	}
	members[r.peerID] = r
	for _, m := range members {
		if m != r {
			m.deliver(Event{Kind: PresenceJoin, PeerID: r.peerID, Info: r.info})
		}
	}
	h.syncLocked(members)
	return nil
}

func (h *MemoryHub) leave(r *MemoryRelay) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members := h.rooms[r.room]
	if members[r.peerID] != r {
		return
	}
	delete(members, r.peerID)
	if len(members) == 0 {
		delete(h.rooms, r.room)
		return
	}
	for _, m := range members {
		m.deliver(Event{Kind: PresenceLeave, PeerID: r.peerID, Info: r.info})
	}
	h.syncLocked(members)
}

func (h *MemoryHub) broadcast(r *MemoryRelay, event string, payload json.RawMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, m := range h.rooms[r.room] {
		if id == r.peerID {
			continue
		}
		m.deliver(Event{Kind: Broadcast, Name: event, From: r.peerID, Payload: payload})
	}
}

func (h *MemoryHub) syncLocked(members map[string]*MemoryRelay) {
	snapshot := make(map[string]PresenceInfo, len(members))
	for id, m := range members {
		snapshot[id] = m.info
	}
	for _, m := range members {
		m.deliver(Event{Kind: PresenceSync, Snapshot: maps.Clone(snapshot)})
	}
}

// MemoryRelay is a MemoryHub client.
type MemoryRelay struct {
	hub    *MemoryHub
	room   string
	peerID string
	info   PresenceInfo

	mu      sync.Mutex
	pending []Event
	joined  bool

	events    chan Event
	ready     chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func (r *MemoryRelay) Subscribe(_ context.Context, room, peerID string, info PresenceInfo) error {
	r.mu.Lock()
	if r.joined {
		r.mu.Unlock()
		return ErrAlreadySubscribed
	}
	r.joined = true
	r.room, r.peerID, r.info = room, peerID, info
	r.mu.Unlock()

	select {
	case <-r.done:
		return ErrRelayClosed
	default:
	}
	return r.hub.join(r)
}

func (r *MemoryRelay) Broadcast(_ context.Context, event string, payload any) error {
	select {
	case <-r.done:
		return ErrRelayClosed
	default:
	}
	r.mu.Lock()
	joined := r.joined
	r.mu.Unlock()
	if !joined {
		return ErrNotSubscribed
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s broadcast: %w", event, err)
	}
	r.hub.broadcast(r, event, raw)
	return nil
}

func (r *MemoryRelay) Events() <-chan Event {
	return r.events
}

func (r *MemoryRelay) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)
		r.mu.Lock()
		joined := r.joined
		r.mu.Unlock()
		if joined {
			r.hub.leave(r)
		}
	})
	return nil
}

func (r *MemoryRelay) deliver(ev Event) {
	r.mu.Lock()
	r.pending = append(r.pending, ev)
	r.mu.Unlock()
	select {
	case r.ready <- struct{}{}:
	default:
	}
}

func (r *MemoryRelay) pump() {
	defer close(r.events)
	for {
		r.mu.Lock()
		batch := r.pending
		r.pending = nil
		r.mu.Unlock()

		for _, ev := range batch {
			select {
			case r.events <- ev:
			case <-r.done:
				return
			}
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-r.ready:
		case <-r.done:
			return
		}
	}
}
