package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	topicRoot      = "ghostlink"
	mqttQoS        = 1
	mqttWait       = 10 * time.Second
	disconnectWait = 250
)

// mqttBroadcast is the body published on a room's broadcast topic.
type mqttBroadcast struct {
	From    string          `json:"from"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MQTT is a Relay over an MQTT broker. Presence is kept as retained
// messages, one topic per peer, cleared by the client on leave and by the
// broker-published last will on abrupt disconnect.
type MQTT struct {
	brokerURL string
	log       *slog.Logger

	client mqtt.Client
	room   string
	peerID string

	events chan Event
	done   chan struct{}

	mu      sync.Mutex
	members map[string]PresenceInfo

	// emitMu serialises sends on events against closing it.
	emitMu    sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// NewMQTT returns an MQTT relay for brokerURL. The connection is opened by
// Subscribe because the last will depends on the room and peer id.
func NewMQTT(brokerURL string, log *slog.Logger) *MQTT {
	if log == nil {
		log = slog.Default()
	}
	return &MQTT{
		brokerURL: brokerURL,
		log:       log.With("relay", "mqtt"),
		events:    make(chan Event, eventBuffer),
		done:      make(chan struct{}),
		members:   make(map[string]PresenceInfo),
	}
}

func roomTopic(room string, parts ...string) string {
	return strings.Join(append([]string{topicRoot, room}, parts...), "/")
}

// Subscribe connects to the broker, subscribes to the room's presence and
// broadcast topics and publishes this peer's presence.
func (m *MQTT) Subscribe(ctx context.Context, room, peerID string, info PresenceInfo) error {
	m.mu.Lock()
	if m.client != nil {
		m.mu.Unlock()
		return ErrAlreadySubscribed
	}
	m.mu.Unlock()

	presence, err := json.Marshal(info)
	if err != nil {
		return err
	}

	u, err := url.Parse(m.brokerURL)
	if err != nil {
		return fmt.Errorf("invalid broker URL: %w", err)
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(m.brokerURL)
	opts.SetClientID("ghostlink-" + uuid.NewString())
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetOrderMatters(true)
	opts.SetConnectTimeout(mqttWait)
	if u.User != nil {
		opts.SetUsername(u.User.Username())
		if pass, ok := u.User.Password(); ok {
			opts.SetPassword(pass)
		}
	}
	presenceTopic := roomTopic(room, "presence", peerID)
	opts.SetBinaryWill(presenceTopic, []byte{}, mqttQoS, true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.log.Warn("mqtt connection lost", "error", err)
		m.shutdown()
	})

	client := mqtt.NewClient(opts)
	if err := wait(ctx, client.Connect()); err != nil {
		return fmt.Errorf("mqtt connect failed: %w", err)
	}

	m.mu.Lock()
	m.client = client
	m.room = room
	m.peerID = peerID
	m.mu.Unlock()

	filters := map[string]byte{
		roomTopic(room, "presence", "+"): mqttQoS,
		roomTopic(room, "broadcast"):     mqttQoS,
	}
	if err := wait(ctx, client.SubscribeMultiple(filters, m.handle)); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}

	if err := wait(ctx, client.Publish(presenceTopic, mqttQoS, true, presence)); err != nil {
		return fmt.Errorf("publish presence failed: %w", err)
	}
	return nil
}

// Broadcast publishes payload on the room's broadcast topic.
func (m *MQTT) Broadcast(ctx context.Context, event string, payload any) error {
	select {
	case <-m.done:
		return ErrRelayClosed
	default:
	}
	m.mu.Lock()
	client, room, from := m.client, m.room, m.peerID
	m.mu.Unlock()
	if client == nil {
		return ErrNotSubscribed
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s broadcast: %w", event, err)
	}
	body, err := json.Marshal(mqttBroadcast{From: from, Event: event, Payload: raw})
	if err != nil {
		return err
	}
	if err := wait(ctx, client.Publish(roomTopic(room, "broadcast"), mqttQoS, false, body)); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}

// Events returns the channel of inbound relay events.
func (m *MQTT) Events() <-chan Event {
	return m.events
}

// Close clears this peer's presence and disconnects.
func (m *MQTT) Close() error {
	m.mu.Lock()
	client, room, peerID := m.client, m.room, m.peerID
	m.mu.Unlock()

	if client != nil && client.IsConnected() {
		token := client.Publish(roomTopic(room, "presence", peerID), mqttQoS, true, []byte{})
		token.WaitTimeout(time.Second)
		client.Disconnect(disconnectWait)
	}
	m.shutdown()
	return nil
}

func (m *MQTT) shutdown() {
	m.closeOnce.Do(func() {
		close(m.done)
		m.emitMu.Lock()
		m.closed = true
		close(m.events)
		m.emitMu.Unlock()
	})
}

func (m *MQTT) handle(_ mqtt.Client, msg mqtt.Message) {
	topic := msg.Topic()
	switch {
	case strings.HasSuffix(topic, "/broadcast"):
		var body mqttBroadcast
		if err := json.Unmarshal(msg.Payload(), &body); err != nil {
			m.log.Warn("invalid broadcast", "error", err)
			return
		}
		m.mu.Lock()
		self := m.peerID
		m.mu.Unlock()
		if body.From == self {
			return
		}
		m.emit(Event{Kind: Broadcast, Name: body.Event, From: body.From, Payload: body.Payload})

	default:
		peerID := topic[strings.LastIndex(topic, "/")+1:]
		m.presence(peerID, msg.Payload())
	}
}

func (m *MQTT) presence(peerID string, payload []byte) {
	m.mu.Lock()
	_, known := m.members[peerID]
	var ev Event
	if len(payload) == 0 {
		if !known {
			m.mu.Unlock()
			return
		}
		ev = Event{Kind: PresenceLeave, PeerID: peerID, Info: m.members[peerID]}
		delete(m.members, peerID)
	} else {
		var info PresenceInfo
		if err := json.Unmarshal(payload, &info); err != nil {
			m.mu.Unlock()
			m.log.Warn("invalid presence", "peer", peerID, "error", err)
			return
		}
		m.members[peerID] = info
		if known {
			m.mu.Unlock()
			return
		}
		ev = Event{Kind: PresenceJoin, PeerID: peerID, Info: info}
	}
	snapshot := maps.Clone(m.members)
	m.mu.Unlock()

	m.emit(ev)
	m.emit(Event{Kind: PresenceSync, Snapshot: snapshot})
}

func (m *MQTT) emit(ev Event) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()
	if m.closed {
		return
	}
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

func wait(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
