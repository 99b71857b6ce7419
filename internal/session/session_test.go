package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/BioHazard786/Ghostlink/internal/directory"
	"github.com/BioHazard786/Ghostlink/internal/signaling"
	"github.com/BioHazard786/Ghostlink/internal/transfer"
	"github.com/BioHazard786/Ghostlink/internal/webrtc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 3 * time.Second
	poll    = 5 * time.Millisecond
)

var t0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) find(match func(Event) bool) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if match(ev) {
			return ev, true
		}
	}
	return nil, false
}

type harness struct {
	t     *testing.T
	hub   *signaling.MemoryHub
	net   *memNetwork
	dir   *directory.Memory
	room  *directory.Room
	clock *fakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &fakeClock{now: t0}
	dir := directory.NewMemory()
	room := directory.NewRoom("alice", directory.Limit5m, clock.Now())
	require.NoError(t, dir.Create(context.Background(), room))
	return &harness{t: t, hub: signaling.NewMemoryHub(), net: newMemNetwork(), dir: dir, room: room, clock: clock}
}

func (h *harness) session(id, name string, admin bool) *Session {
	h.t.Helper()
	s, err := New(Options{
		Code:         h.room.Code,
		DisplayName:  name,
		IsAdmin:      admin,
		Directory:    h.dir,
		Relay:        h.hub.Relay(),
		Transport:    h.net.transport(id),
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		PeerID:       id,
		Now:          h.clock.Now,
		TickInterval: 10 * time.Millisecond,
		GracePeriod:  50 * time.Millisecond,
	})
	require.NoError(h.t, err)
	return s
}

type peer struct {
	*Session
	rec  *recorder
	done chan error
}

// start runs a joined session until the test ends.
func (h *harness) start(s *Session) *peer {
	h.t.Helper()
	p := &peer{Session: s, rec: &recorder{}, done: make(chan error, 1)}
	go func() {
		for ev := range s.Events() {
			p.rec.mu.Lock()
			p.rec.events = append(p.rec.events, ev)
			p.rec.mu.Unlock()
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() { p.done <- s.Run(ctx) }()
	h.t.Cleanup(func() {
		cancel()
		<-p.done
	})
	return p
}

func (h *harness) join(id, name string, admin bool) *peer {
	h.t.Helper()
	s := h.session(id, name, admin)
	require.NoError(h.t, s.Join(context.Background()))
	return h.start(s)
}

func (p *peer) waitOpen(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return p.Snapshot().OpenChannels == n
	}, waitFor, poll, "%s never opened %d channels", p.LocalID(), n)
}

func (p *peer) waitTerminal(t *testing.T, state TerminalState, reason Reason) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, ok := p.rec.find(func(ev Event) bool {
			ts, ok := ev.(TerminalStateReached)
			return ok && ts.State == state && ts.Reason == reason
		})
		return ok
	}, waitFor, poll, "%s never reached %s", p.LocalID(), state)
}

func (p *peer) hasParticipant(id string) bool {
	for _, m := range p.Snapshot().Participants {
		if m.PeerID == id {
			return true
		}
	}
	return false
}

func chatTexts(s Snapshot) []string {
	var out []string
	for _, m := range s.Transcript {
		out = append(out, m.SenderName+": "+m.Text)
	}
	return out
}

func TestTwoPeersConnectAndChat(t *testing.T) {
	h := newHarness(t)
	alice := h.join("p1", "alice", true)
	bob := h.join("p2", "bob", false)

	alice.waitOpen(t, 1)
	bob.waitOpen(t, 1)

	link, ok := alice.Snapshot().Link("p2")
	require.True(t, ok)
	assert.Equal(t, StateStable, link.State)
	assert.Equal(t, webrtc.ChannelOpen, link.Channel)

	snap := bob.Snapshot()
	require.Len(t, snap.Participants, 2)
	assert.Equal(t, "bob", snap.Participants[0].DisplayName)
	assert.True(t, snap.Participants[0].Self)
	assert.Equal(t, "alice", snap.Participants[1].DisplayName)
	assert.True(t, snap.Participants[1].IsAdmin)

	ctx := context.Background()
	require.NoError(t, alice.SubmitChat(ctx, "hello"))
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"alice: hello"}, chatTexts(bob.Snapshot()))
	}, waitFor, poll)

	require.NoError(t, bob.SubmitChat(ctx, "hi alice"))
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"alice: hello", "bob: hi alice"}, chatTexts(alice.Snapshot()))
	}, waitFor, poll)

	last := alice.Snapshot().Transcript[1]
	assert.Equal(t, "p2", last.SenderID)
	assert.False(t, last.Local)
	assert.True(t, alice.Snapshot().Transcript[0].Local)
}

func TestFileTransferFrames(t *testing.T) {
	h := newHarness(t)
	alice := h.join("p1", "alice", true)
	bob := h.join("p2", "bob", false)
	alice.waitOpen(t, 1)
	bob.waitOpen(t, 1)

	data := make([]byte, 40*1024)
	for i := range data {
		data[i] = byte(i * 7)
	}
	require.NoError(t, alice.SendFile(context.Background(), "photo.raw", "application/octet-stream", bytes.NewReader(data), int64(len(data))))

	require.Eventually(t, func() bool { return len(bob.Snapshot().Files) == 1 }, waitFor, poll)
	got := bob.Snapshot().Files[0]
	assert.Equal(t, "photo.raw", got.Name)
	assert.Equal(t, "application/octet-stream", got.MimeType)
	assert.Equal(t, "p1", got.SenderID)
	assert.Equal(t, "alice", got.SenderName)
	assert.Equal(t, data, got.Data)

	require.Eventually(t, func() bool { return len(alice.Snapshot().Files) == 1 }, waitFor, poll)
	assert.Equal(t, "p1", alice.Snapshot().Files[0].SenderID)

	var final FileSendProgress
	require.Eventually(t, func() bool {
		ev, ok := alice.rec.find(func(ev Event) bool {
			p, ok := ev.(FileSendProgress)
			return ok && p.Done
		})
		if ok {
			final = ev.(FileSendProgress)
		}
		return ok
	}, waitFor, poll)
	assert.Equal(t, "photo.raw", final.Name)
	assert.Equal(t, int64(len(data)), final.Sent)
	assert.Equal(t, int64(len(data)), final.Total)
	_, ok := alice.rec.find(func(ev Event) bool {
		p, ok := ev.(FileSendProgress)
		return ok && !p.Done && p.Sent == 16*1024
	})
	assert.True(t, ok, "progress after the first chunk")

	var control, chunks int
	for _, f := range h.net.sent("p1", "p2") {
		switch webrtc.DecodeFrame(webrtc.Frame{Data: f}).Kind {
		case webrtc.KindControl:
			control++
		case webrtc.KindChunk:
			chunks++
		}
	}
	assert.Equal(t, 1, control, "one file-meta frame")
	assert.Equal(t, 3, chunks, "16 KiB + 16 KiB + 8 KiB")
}

func TestSendFileTooLarge(t *testing.T) {
	h := newHarness(t)
	alice := h.join("p1", "alice", true)

	err := alice.SendFile(context.Background(), "big.iso", "", bytes.NewReader(nil), transfer.DefaultMaxFileSize+1)
	assert.ErrorIs(t, err, transfer.ErrFileTooLarge)
}

func TestSendFileWithNoRecipients(t *testing.T) {
	h := newHarness(t)
	alice := h.join("p1", "alice", true)

	data := bytes.Repeat([]byte("x"), 20*1024)
	require.NoError(t, alice.SendFile(context.Background(), "alone.txt", "text/plain", bytes.NewReader(data), int64(len(data))))

	require.Eventually(t, func() bool {
		_, ok := alice.rec.find(func(ev Event) bool {
			n, ok := ev.(Notice)
			return ok && n.Text == "alone.txt was not delivered to anyone"
		})
		return ok
	}, waitFor, poll)
	_, completed := alice.rec.find(func(ev Event) bool {
		_, ok := ev.(FileCompleted)
		return ok
	})
	assert.False(t, completed)
	assert.Empty(t, alice.Snapshot().Files)
}

func TestLeavingCancelsSend(t *testing.T) {
	h := newHarness(t)
	alice := h.join("p1", "alice", true)
	bob := h.join("p2", "bob", false)
	alice.waitOpen(t, 1)
	bob.waitOpen(t, 1)

	pr, pw := io.Pipe()
	size := int64(64 * transfer.ChunkSize)
	require.NoError(t, bob.SendFile(context.Background(), "stream.bin", "", pr, size))
	_, err := pw.Write(make([]byte, transfer.ChunkSize))
	require.NoError(t, err)

	require.NoError(t, bob.EndOrLeave(context.Background()))
	bob.waitTerminal(t, Ended, ReasonLeft)

	// The sender stops reading and closes the source.
	require.Eventually(t, func() bool {
		_, err := pw.Write(make([]byte, 1024))
		return errors.Is(err, io.ErrClosedPipe)
	}, waitFor, poll)
	assert.Empty(t, alice.Snapshot().Files)
}

func TestTextFrameFallsBackToChat(t *testing.T) {
	h := newHarness(t)
	alice := h.join("p1", "alice", true)
	bob := h.join("p2", "bob", false)
	alice.waitOpen(t, 1)
	bob.waitOpen(t, 1)

	conn := h.net.conn("p2", "p1")
	require.NotNil(t, conn)
	conn.mu.Lock()
	ch := conn.channels[0]
	conn.mu.Unlock()
	require.NoError(t, ch.SendText("plain hi"))

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"bob: plain hi"}, chatTexts(alice.Snapshot()))
	}, waitFor, poll)
}

func TestKick(t *testing.T) {
	h := newHarness(t)
	alice := h.join("p1", "alice", true)
	bob := h.join("p2", "bob", false)
	carol := h.join("p3", "carol", false)
	alice.waitOpen(t, 2)
	bob.waitOpen(t, 2)
	carol.waitOpen(t, 2)

	ctx := context.Background()
	assert.ErrorIs(t, bob.Kick(ctx, "p3"), ErrNotAdmin)
	require.NoError(t, alice.Kick(ctx, "p3"))

	carol.waitTerminal(t, Kicked, ReasonKicked)
	select {
	case err := <-carol.done:
		assert.NoError(t, err)
		carol.done <- err
	case <-time.After(waitFor):
		t.Fatal("kicked session did not exit")
	}

	for _, p := range []*peer{alice, bob} {
		require.Eventually(t, func() bool {
			_, linked := p.Snapshot().Link("p3")
			return !p.hasParticipant("p3") && !linked
		}, waitFor, poll, p.LocalID())
		assert.Equal(t, Active, p.Snapshot().State)
	}
	assert.Equal(t, 1, bob.Snapshot().OpenChannels)
}

func TestAdminEndsRoom(t *testing.T) {
	h := newHarness(t)
	alice := h.join("p1", "alice", true)
	bob := h.join("p2", "bob", false)
	alice.waitOpen(t, 1)
	bob.waitOpen(t, 1)

	require.NoError(t, alice.EndOrLeave(context.Background()))

	alice.waitTerminal(t, Ended, ReasonAdminEnded)
	bob.waitTerminal(t, Ended, ReasonAdminEnded)

	_, err := h.dir.Get(context.Background(), h.room.Code)
	assert.ErrorIs(t, err, directory.ErrRoomNotFound)

	for _, p := range []*peer{alice, bob} {
		select {
		case err := <-p.done:
			assert.NoError(t, err)
			p.done <- err
		case <-time.After(waitFor):
			t.Fatalf("%s did not exit after end", p.LocalID())
		}
		assert.Empty(t, p.Snapshot().Links)
	}
}

func TestParticipantLeaves(t *testing.T) {
	h := newHarness(t)
	alice := h.join("p1", "alice", true)
	bob := h.join("p2", "bob", false)
	alice.waitOpen(t, 1)

	require.NoError(t, bob.EndOrLeave(context.Background()))
	bob.waitTerminal(t, Ended, ReasonLeft)

	require.Eventually(t, func() bool { return !alice.hasParticipant("p2") }, waitFor, poll)
	assert.Equal(t, Active, alice.Snapshot().State)
	assert.Equal(t, 0, alice.Snapshot().OpenChannels)

	_, err := h.dir.Get(context.Background(), h.room.Code)
	assert.NoError(t, err, "leaving keeps the room")
}

func TestTimerExpires(t *testing.T) {
	h := newHarness(t)
	alice := h.join("p1", "alice", true)

	require.Eventually(t, func() bool {
		_, ok := alice.rec.find(func(ev Event) bool {
			tick, ok := ev.(CountdownTick)
			return ok && tick.Display == "05:00"
		})
		return ok
	}, waitFor, poll)

	h.clock.Set(t0.Add(5 * time.Minute))
	require.Eventually(t, func() bool {
		_, ok := alice.rec.find(func(ev Event) bool {
			tick, ok := ev.(CountdownTick)
			return ok && tick.Display == "00:00" && tick.Remaining == 0
		})
		return ok
	}, waitFor, poll)
	alice.waitTerminal(t, Ended, ReasonExpired)
}

func TestJoinMissingRoom(t *testing.T) {
	h := newHarness(t)
	h.room = &directory.Room{Code: "ZZZZZZZZ"}
	s := h.session("p1", "alice", false)

	err := s.Join(context.Background())
	require.ErrorIs(t, err, ErrRoomNotFound)
	assert.Empty(t, h.hub.Members("ZZZZZZZZ"), "no subscription before the room is found")
	assert.Empty(t, s.Snapshot().Links)
	assert.ErrorIs(t, s.Run(context.Background()), ErrNotJoined)
}

func TestJoinExpiredRoom(t *testing.T) {
	h := newHarness(t)
	h.clock.Set(t0.Add(6 * time.Minute))
	s := h.session("p1", "alice", false)
	assert.ErrorIs(t, s.Join(context.Background()), ErrRoomExpired)
}

// renegotiateTogether makes every peer start a renegotiation toward its
// partner before either has seen the other's offer.
func renegotiateTogether(pairs map[*peer]string) {
	release := make(chan struct{})
	for p, remote := range pairs {
		s := p.Session
		s.post(func() { <-release })
		s.post(func() {
			if link, ok := s.links[remote]; ok {
				s.renegotiate(link)
			}
		})
	}
	close(release)
}

func allStable(p *peer) bool {
	links := p.Snapshot().Links
	if len(links) == 0 {
		return false
	}
	for _, l := range links {
		if l.State != StateStable {
			return false
		}
	}
	return true
}

func TestRenegotiationGlareGreaterIDRollsBack(t *testing.T) {
	h := newHarness(t)
	alice := h.join("p1", "alice", true)
	bob := h.join("p2", "bob", false)
	alice.waitOpen(t, 1)
	bob.waitOpen(t, 1)
	require.Eventually(t, func() bool { return allStable(alice) && allStable(bob) }, waitFor, poll)

	renegotiateTogether(map[*peer]string{alice: "p2", bob: "p1"})

	require.Eventually(t, func() bool { return h.net.conn("p2", "p1").Rollbacks() == 1 }, waitFor, poll, "greater id yields")
	require.Eventually(t, func() bool { return allStable(alice) && allStable(bob) }, waitFor, poll)
	assert.Equal(t, 0, h.net.conn("p1", "p2").Rollbacks(), "lesser id keeps its offer")
	assert.Equal(t, 1, alice.Snapshot().OpenChannels)
	assert.Equal(t, 1, bob.Snapshot().OpenChannels)

	require.NoError(t, alice.SubmitChat(context.Background(), "still here"))
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"alice: still here"}, chatTexts(bob.Snapshot()))
	}, waitFor, poll)
}

func TestRenegotiationGlareWithoutRollbackRestartsLink(t *testing.T) {
	h := newHarness(t)
	alice := h.join("p1", "alice", true)
	bob := h.join("p2", "bob", false)
	alice.waitOpen(t, 1)
	bob.waitOpen(t, 1)
	require.Eventually(t, func() bool { return allStable(alice) && allStable(bob) }, waitFor, poll)

	oldAlice, oldBob := h.net.conn("p1", "p2"), h.net.conn("p2", "p1")
	h.net.refuseRollback()
	renegotiateTogether(map[*peer]string{alice: "p2", bob: "p1"})

	require.Eventually(t, func() bool {
		return h.net.conn("p1", "p2") != oldAlice && h.net.conn("p2", "p1") != oldBob
	}, waitFor, poll, "both sides replace the connection")
	require.Eventually(t, func() bool {
		return alice.Snapshot().OpenChannels == 1 && bob.Snapshot().OpenChannels == 1 &&
			allStable(alice) && allStable(bob)
	}, waitFor, poll)

	require.NoError(t, bob.SubmitChat(context.Background(), "back"))
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"bob: back"}, chatTexts(alice.Snapshot()))
	}, waitFor, poll)
}

func TestRenegotiationOnlyFromStable(t *testing.T) {
	h := newHarness(t)
	alice := h.join("p1", "alice", true)
	remote := h.raw("p9")

	remote.expect(SignalOffer)
	remote.signal(SignalMessage{Type: SignalAnswer, To: "p1", SDP: &webrtc.Description{Type: webrtc.SDPTypeAnswer, SDP: "answer:p9"}})
	linkState := func() NegotiationState {
		l, _ := alice.Snapshot().Link("p9")
		return l.State
	}
	require.Eventually(t, func() bool { return linkState() == StateStable }, waitFor, poll)

	conn := h.net.conn("p1", "p9")
	require.NotNil(t, conn)
	conn.negotiationNeeded()
	offer := remote.expect(SignalOffer)
	require.NotNil(t, offer.SDP)
	require.Eventually(t, func() bool { return linkState() == StateHaveLocalOffer }, waitFor, poll)

	// A second request while an offer is outstanding is refused.
	conn.negotiationNeeded()
	assert.True(t, remote.quiet(SignalOffer, 100*time.Millisecond))
	assert.Equal(t, StateHaveLocalOffer, linkState())

	remote.signal(SignalMessage{Type: SignalAnswer, To: "p1", SDP: &webrtc.Description{Type: webrtc.SDPTypeAnswer, SDP: "answer:p9"}})
	require.Eventually(t, func() bool { return linkState() == StateStable }, waitFor, poll)
}

// rawPeer drives the relay by hand to script the remote side.
type rawPeer struct {
	t     *testing.T
	id    string
	relay *signaling.MemoryRelay
}

func (h *harness) raw(id string) *rawPeer {
	r := h.hub.Relay()
	require.NoError(h.t, r.Subscribe(context.Background(), h.room.Code, id, signaling.PresenceInfo{DisplayName: id}))
	h.t.Cleanup(func() { r.Close() })
	return &rawPeer{t: h.t, id: id, relay: r}
}

func (r *rawPeer) signal(msg SignalMessage) {
	msg.From = r.id
	require.NoError(r.t, r.relay.Broadcast(context.Background(), signaling.EventSignal, msg))
}

// expect waits for a signal of the given type addressed to this peer.
func (r *rawPeer) expect(typ SignalType) SignalMessage {
	r.t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case ev := <-r.relay.Events():
			if ev.Kind != signaling.Broadcast || ev.Name != signaling.EventSignal {
				continue
			}
			var msg SignalMessage
			require.NoError(r.t, json.Unmarshal(ev.Payload, &msg))
			if msg.To == r.id && msg.Type == typ {
				return msg
			}
		case <-deadline:
			r.t.Fatalf("no %s signal for %s", typ, r.id)
		}
	}
}

func (r *rawPeer) quiet(typ SignalType, d time.Duration) bool {
	deadline := time.After(d)
	for {
		select {
		case ev := <-r.relay.Events():
			if ev.Kind != signaling.Broadcast {
				continue
			}
			var msg SignalMessage
			if json.Unmarshal(ev.Payload, &msg) == nil && msg.To == r.id && msg.Type == typ {
				return false
			}
		case <-deadline:
			return true
		}
	}
}

func TestGlareLesserIDIgnoresOffer(t *testing.T) {
	h := newHarness(t)
	alice := h.join("p1", "alice", true)
	remote := h.raw("p9")

	offer := remote.expect(SignalOffer)
	assert.Equal(t, "p1", offer.From)
	require.NotNil(t, offer.SDP)
	assert.Equal(t, webrtc.SDPTypeOffer, offer.SDP.Type)

	// Colliding offer from the greater id is ignored.
	remote.signal(SignalMessage{Type: SignalOffer, To: "p1", SDP: &webrtc.Description{Type: webrtc.SDPTypeOffer, SDP: "offer:p9"}})
	assert.True(t, remote.quiet(SignalAnswer, 100*time.Millisecond))
	link, ok := alice.Snapshot().Link("p9")
	require.True(t, ok)
	assert.Equal(t, StateHaveLocalOffer, link.State)

	remote.signal(SignalMessage{Type: SignalAnswer, To: "p1", SDP: &webrtc.Description{Type: webrtc.SDPTypeAnswer, SDP: "answer:p9"}})
	require.Eventually(t, func() bool {
		l, _ := alice.Snapshot().Link("p9")
		return l.State == StateStable
	}, waitFor, poll)
}

func TestSignalsForOthersAreIgnored(t *testing.T) {
	h := newHarness(t)
	alice := h.join("p1", "alice", true)
	remote := h.raw("p0")

	// p0 sorts first, so p1 waits for its offer; one addressed elsewhere changes nothing.
	remote.signal(SignalMessage{Type: SignalOffer, To: "p7", SDP: &webrtc.Description{Type: webrtc.SDPTypeOffer, SDP: "x"}})
	remote.signal(SignalMessage{Type: SignalCandidate, To: "p1", Candidate: &webrtc.Candidate{Candidate: "candidate:early"}})
	require.Eventually(t, func() bool { return alice.hasParticipant("p0") }, waitFor, poll)
	assert.True(t, remote.quiet(SignalAnswer, 50*time.Millisecond))
	_, linked := alice.Snapshot().Link("p0")
	assert.False(t, linked)

	remote.signal(SignalMessage{Type: SignalOffer, To: "p1", SDP: &webrtc.Description{Type: webrtc.SDPTypeOffer, SDP: "offer:p0"}})
	answer := remote.expect(SignalAnswer)
	require.NotNil(t, answer.SDP)
	assert.Equal(t, webrtc.SDPTypeAnswer, answer.SDP.Type)
	require.Eventually(t, func() bool {
		l, ok := alice.Snapshot().Link("p0")
		return ok && l.State == StateStable
	}, waitFor, poll)
}

func TestChatWithoutOpenChannelWarns(t *testing.T) {
	h := newHarness(t)
	alice := h.join("p1", "alice", true)
	h.raw("p9")

	require.Eventually(t, func() bool {
		_, ok := alice.Snapshot().Link("p9")
		return ok
	}, waitFor, poll)

	require.NoError(t, alice.SubmitChat(context.Background(), "anyone?"))
	require.Eventually(t, func() bool {
		_, ok := alice.rec.find(func(ev Event) bool {
			n, ok := ev.(Notice)
			return ok && n.Level == slog.LevelWarn
		})
		return ok
	}, waitFor, poll)
	assert.Equal(t, []string{"alice: anyone?"}, chatTexts(alice.Snapshot()))
}

func TestRelayLossStalls(t *testing.T) {
	h := newHarness(t)
	alice := h.join("p1", "alice", true)

	h.hub.Disconnect(h.room.Code, "p1")
	require.Eventually(t, func() bool {
		_, ok := alice.rec.find(func(ev Event) bool {
			n, ok := ev.(Notice)
			return ok && n.Level == slog.LevelWarn
		})
		return ok
	}, waitFor, poll)
	assert.Equal(t, Active, alice.Snapshot().State)
}
