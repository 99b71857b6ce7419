package session

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BioHazard786/Ghostlink/internal/directory"
	"github.com/BioHazard786/Ghostlink/internal/signaling"
	"github.com/BioHazard786/Ghostlink/internal/transfer"
	"github.com/BioHazard786/Ghostlink/internal/webrtc"
	"github.com/google/uuid"
)

const (
	DefaultTickInterval = time.Second
	DefaultGracePeriod  = 1500 * time.Millisecond

	relayTimeout  = 5 * time.Second
	eventBuffer   = 64
	progressSteps = 10
)

// Options configures a Session.
type Options struct {
	Code        string
	DisplayName string
	IsAdmin     bool

	Directory directory.Directory
	Relay     signaling.Relay
	Transport webrtc.Transport
	Logger    *slog.Logger

	// PeerID overrides the random local id.
	PeerID string
	// MaxFileSize bounds both sent and received files.
	MaxFileSize int64

	// Now, TickInterval and GracePeriod exist for tests.
	Now          func() time.Time
	TickInterval time.Duration
	GracePeriod  time.Duration
}

// Session coordinates one participant's membership in a room. Every handler
// runs on the goroutine executing Run; other goroutines post closures into
// the inbox.
type Session struct {
	opts    Options
	log     *slog.Logger
	localID string

	relay     signaling.Relay
	transport webrtc.Transport
	dir       directory.Directory

	inbox  *queue[func()]
	out    *queue[Event]
	events chan Event

	joined  atomic.Bool
	started atomic.Bool
	exit    chan struct{}
	exitMu  sync.Once

	// sendCtx outlives a SendFile call; teardown cancels it.
	sendCtx     context.Context
	cancelSends context.CancelFunc

	// Loop-owned state.
	room         directory.Room
	participants map[string]Participant
	order        []string
	links        map[string]*PeerLink
	open         map[string]webrtc.Channel
	transcript   []ChatMessage
	files        []transfer.CompletedFile
	remaining    time.Duration
	terminal     TerminalState
	reason       Reason
	relayLost    bool
	torndown     bool

	snapMu sync.RWMutex
	snap   Snapshot
}

// New validates opts and returns an idle session.
func New(opts Options) (*Session, error) {
	if opts.Directory == nil || opts.Relay == nil || opts.Transport == nil {
		return nil, fmt.Errorf("session requires a directory, relay and transport")
	}
	code := directory.NormalizeCode(opts.Code)
	if err := directory.ValidateCode(code); err != nil {
		return nil, err
	}
	opts.Code = code
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = transfer.DefaultMaxFileSize
	}
	if opts.PeerID == "" {
		opts.PeerID = uuid.NewString()
	}
	if opts.DisplayName == "" {
		opts.DisplayName = opts.PeerID[:8]
	}

	s := &Session{
		opts:         opts,
		localID:      opts.PeerID,
		log:          opts.Logger.With("room", code, "peer", opts.PeerID),
		relay:        opts.Relay,
		transport:    opts.Transport,
		dir:          opts.Directory,
		inbox:        newQueue[func()](),
		out:          newQueue[Event](),
		events:       make(chan Event, eventBuffer),
		exit:         make(chan struct{}),
		participants: make(map[string]Participant),
		links:        make(map[string]*PeerLink),
		open:         make(map[string]webrtc.Channel),
	}
	s.sendCtx, s.cancelSends = context.WithCancel(context.Background())
	go s.pumpEvents()
	return s, nil
}

// LocalID is this participant's peer id.
func (s *Session) LocalID() string { return s.localID }

// Events yields session events. It is closed after Run returns.
func (s *Session) Events() <-chan Event { return s.events }

// Snapshot returns the state published after the last handled event.
func (s *Session) Snapshot() Snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap
}

// Join looks the room up and subscribes to the relay. A missing room fails
// with ErrRoomNotFound before anything is subscribed.
func (s *Session) Join(ctx context.Context) error {
	if !s.joined.CompareAndSwap(false, true) {
		return ErrAlreadyJoined
	}

	room, err := s.dir.Get(ctx, s.opts.Code)
	if err != nil {
		s.joined.Store(false)
		return fmt.Errorf("join %s: %w", s.opts.Code, err)
	}
	if room.Remaining(s.opts.Now()) <= 0 {
		s.joined.Store(false)
		return fmt.Errorf("join %s: %w", s.opts.Code, ErrRoomExpired)
	}
	s.room = *room
	s.remaining = room.Remaining(s.opts.Now())
	s.addParticipant(Participant{
		PeerID:      s.localID,
		DisplayName: s.opts.DisplayName,
		IsAdmin:     s.opts.IsAdmin,
		Self:        true,
	})

	info := signaling.PresenceInfo{DisplayName: s.opts.DisplayName, IsAdmin: s.opts.IsAdmin}
	if err := s.relay.Subscribe(ctx, s.opts.Code, s.localID, info); err != nil {
		s.joined.Store(false)
		return fmt.Errorf("subscribe: %w", err)
	}
	s.publish()

	go s.pumpRelay()
	s.log.Info("joined room", "admin", room.AdminName, "expires", room.ExpiresAt())
	return nil
}

// Run executes the event loop until the session reaches a terminal state and
// the grace period elapses, or ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	if !s.joined.Load() {
		return ErrNotJoined
	}
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("session already running")
	}

	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()
	defer s.shutdown()

	s.tick()
	s.publish()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.exit:
			return nil
		case <-s.inbox.Ready():
			items, _ := s.inbox.Drain()
			for _, fn := range items {
				fn()
			}
			s.publish()
		case <-ticker.C:
			s.tick()
			s.publish()
		}
	}
}

// post schedules fn on the event loop.
func (s *Session) post(fn func()) {
	s.inbox.Push(fn)
}

// call runs fn on the event loop and waits for its result.
func (s *Session) call(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	if !s.inbox.Push(func() { done <- fn() }) {
		return ErrSessionOver
	}
	select {
	case err := <-done:
		return err
	case <-s.exit:
		return ErrSessionOver
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) emit(ev Event) {
	s.out.Push(ev)
}

func (s *Session) notice(level slog.Level, format string, args ...any) {
	s.emit(Notice{Level: level, Text: fmt.Sprintf(format, args...)})
}

func (s *Session) pumpEvents() {
	defer close(s.events)
	for range s.out.Ready() {
		items, closed := s.out.Drain()
		for _, ev := range items {
			s.events <- ev
		}
		if closed {
			return
		}
	}
}

func (s *Session) pumpRelay() {
	for ev := range s.relay.Events() {
		s.post(func() { s.handleRelay(ev) })
	}
	s.post(s.onRelayLost)
}

func (s *Session) handleRelay(ev signaling.Event) {
	if s.terminal != Active {
		return
	}
	switch ev.Kind {
	case signaling.PresenceSync:
		s.onSync(ev.Snapshot)
	case signaling.PresenceJoin:
		s.onJoin(ev.PeerID, ev.Info)
	case signaling.PresenceLeave:
		s.onLeave(ev.PeerID)
	case signaling.Broadcast:
		switch ev.Name {
		case signaling.EventSignal:
			s.onSignal(ev.Payload)
		case signaling.EventAdmin:
			s.onAdmin(ev.From, ev.Payload)
		default:
			s.log.Debug("ignoring broadcast", "event", ev.Name)
		}
	case signaling.RelayError:
		s.log.Warn("relay error", "error", ev.Err)
		s.notice(slog.LevelWarn, "relay: %s", ev.Err)
	}
}

// onRelayLost stalls the session: existing links keep working but no new
// signaling can happen.
func (s *Session) onRelayLost() {
	if s.relayLost || s.terminal != Active {
		return
	}
	s.relayLost = true
	s.log.Warn("relay connection lost")
	s.notice(slog.LevelWarn, "Lost connection to the signaling relay. New participants cannot connect.")
}

func (s *Session) broadcast(event string, payload any) error {
	if s.relayLost {
		return signaling.ErrRelayClosed
	}
	ctx, cancel := context.WithTimeout(context.Background(), relayTimeout)
	defer cancel()
	return s.relay.Broadcast(ctx, event, payload)
}

// publish copies loop state into the snapshot.
func (s *Session) publish() {
	snap := Snapshot{
		LocalID:      s.localID,
		Room:         s.room,
		Participants: s.participantList(),
		OpenChannels: len(s.open),
		Transcript:   slices.Clone(s.transcript),
		Files:        slices.Clone(s.files),
		Remaining:    s.remaining,
		State:        s.terminal,
		Reason:       s.reason,
	}
	for _, id := range slices.Sorted(maps.Keys(s.links)) {
		snap.Links = append(snap.Links, s.links[id].info())
	}

	s.snapMu.Lock()
	s.snap = snap
	s.snapMu.Unlock()
}

// terminate moves the session to state, tears every link down and schedules
// the exit after the grace period.
func (s *Session) terminate(state TerminalState, reason Reason) {
	if s.terminal != Active {
		return
	}
	s.terminal = state
	s.reason = reason
	s.log.Info("session over", "state", state, "reason", reason)

	s.teardown()
	s.emit(TerminalStateReached{State: state, Reason: reason})
	time.AfterFunc(s.opts.GracePeriod, s.stop)
}

func (s *Session) stop() {
	s.exitMu.Do(func() { close(s.exit) })
}

func (s *Session) teardown() {
	if s.torndown {
		return
	}
	s.torndown = true
	s.cancelSends()
	for id := range s.links {
		s.removeLink(id)
	}
}

func (s *Session) shutdown() {
	s.teardown()
	s.stop()
	s.inbox.Close()
	if err := s.relay.Close(); err != nil {
		s.log.Debug("relay close", "error", err)
	}
	s.publish()
	s.out.Close()
}
