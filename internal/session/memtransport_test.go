package session

import (
	"fmt"
	"slices"
	"sync"

	"github.com/BioHazard786/Ghostlink/internal/webrtc"
)

// memNetwork is an in-process transport double. Two connections pair up
// once both have completed an offer/answer exchange; channels created
// before that are mirrored to the remote side and opened.
type memNetwork struct {
	mu     sync.Mutex
	conns  map[[2]string]*memConn
	frames map[[2]string][][]byte
	seq    int

	// noRollback makes Rollback fail the way pion does after a completed
	// negotiation.
	noRollback bool
}

func newMemNetwork() *memNetwork {
	return &memNetwork{
		conns:  make(map[[2]string]*memConn),
		frames: make(map[[2]string][][]byte),
	}
}

func (n *memNetwork) transport(local string) webrtc.Transport {
	return memTransport{net: n, local: local}
}

// sent returns the binary frames local sent to remote.
func (n *memNetwork) sent(local, remote string) [][]byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.frames[[2]string{local, remote}])
}

func (n *memNetwork) record(local, remote string, data []byte) {
	n.mu.Lock()
	key := [2]string{local, remote}
	n.frames[key] = append(n.frames[key], slices.Clone(data))
	n.mu.Unlock()
}

func (n *memNetwork) conn(local, remote string) *memConn {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.conns[[2]string{local, remote}]
}

func (n *memNetwork) refuseRollback() {
	n.mu.Lock()
	n.noRollback = true
	n.mu.Unlock()
}

func (n *memNetwork) rollbackRefused() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.noRollback
}

func (n *memNetwork) nextSDP(kind, local string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seq++
	return fmt.Sprintf("%s:%s:%d", kind, local, n.seq)
}

// tryConnect pairs c with its peer when both sides have negotiated.
func (n *memNetwork) tryConnect(c *memConn) {
	peer := n.conn(c.remote, c.local)
	if peer == nil {
		return
	}

	first, second := c, peer
	if first.local > second.local {
		first, second = second, first
	}
	first.mu.Lock()
	second.mu.Lock()
	ready := first.negotiated && second.negotiated && !first.connected && !first.closed && !second.closed
	var created []*memChannel
	var mirrors []*memChannel
	if ready {
		first.connected, second.connected = true, true
		for _, pair := range [][2]*memConn{{c, peer}, {peer, c}} {
			from, to := pair[0], pair[1]
			for _, ch := range from.pending {
				mirror := newMemChannel(n, to.local, from.local, ch.label)
				mirror.peer, mirror.state = ch, webrtc.ChannelOpen
				ch.mu.Lock()
				ch.peer, ch.state = mirror, webrtc.ChannelOpen
				ch.mu.Unlock()
				to.channels = append(to.channels, mirror)
				created = append(created, ch)
				mirrors = append(mirrors, mirror)
			}
			from.pending = nil
		}
	}
	second.mu.Unlock()
	first.mu.Unlock()
	if !ready {
		return
	}

	c.setState(webrtc.ConnectionConnected)
	peer.setState(webrtc.ConnectionConnected)
	for _, m := range mirrors {
		owner := n.conn(m.local, m.remote)
		if owner != nil {
			owner.fireChannel(m)
		}
	}
	for _, ch := range created {
		ch.fireOpen()
	}
}

type memTransport struct {
	net   *memNetwork
	local string
}

func (t memTransport) NewConnection(peerID string) (webrtc.Connection, error) {
	c := &memConn{net: t.net, local: t.local, remote: peerID, seen: make(map[string]bool)}
	t.net.mu.Lock()
	t.net.conns[[2]string{t.local, peerID}] = c
	t.net.mu.Unlock()
	return c, nil
}

type memConn struct {
	net           *memNetwork
	local, remote string

	mu         sync.Mutex
	localDesc  *webrtc.Description
	remoteDesc *webrtc.Description
	negotiated bool
	connected  bool
	closed     bool
	seen       map[string]bool
	pending    []*memChannel
	channels   []*memChannel
	rollbacks  int

	onCandidate func(webrtc.Candidate)
	onChannel   func(webrtc.Channel)
	onState     func(webrtc.ConnectionState)
	onNegotiate func()
}

func (c *memConn) CreateOffer() (webrtc.Description, error) {
	desc := webrtc.Description{Type: webrtc.SDPTypeOffer, SDP: c.net.nextSDP("offer", c.local)}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return webrtc.Description{}, fmt.Errorf("connection closed")
	}
	c.localDesc = &desc
	c.remoteDesc = nil
	c.negotiated = false
	c.mu.Unlock()
	c.gather()
	return desc, nil
}

func (c *memConn) CreateAnswer() (webrtc.Description, error) {
	c.mu.Lock()
	if c.remoteDesc == nil || c.remoteDesc.Type != webrtc.SDPTypeOffer {
		c.mu.Unlock()
		return webrtc.Description{}, fmt.Errorf("no remote offer")
	}
	desc := webrtc.Description{Type: webrtc.SDPTypeAnswer, SDP: "answer:" + c.local}
	c.localDesc = &desc
	c.negotiated = true
	c.mu.Unlock()
	c.gather()
	c.net.tryConnect(c)
	return desc, nil
}

func (c *memConn) SetRemoteDescription(desc webrtc.Description) error {
	c.mu.Lock()
	switch desc.Type {
	case webrtc.SDPTypeOffer:
		if c.localDesc != nil && c.localDesc.Type == webrtc.SDPTypeOffer && !c.negotiated {
			c.mu.Unlock()
			return fmt.Errorf("remote offer in have-local-offer")
		}
		c.localDesc = nil
		c.negotiated = false
	case webrtc.SDPTypeAnswer:
		if c.localDesc == nil || c.localDesc.Type != webrtc.SDPTypeOffer {
			c.mu.Unlock()
			return fmt.Errorf("answer without local offer")
		}
		c.negotiated = true
	}
	c.remoteDesc = &desc
	c.mu.Unlock()
	if desc.Type == webrtc.SDPTypeAnswer {
		c.net.tryConnect(c)
	}
	return nil
}

func (c *memConn) Rollback() error {
	if c.net.rollbackRefused() {
		return webrtc.ErrRollbackUnsupported
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollbacks++
	c.localDesc = nil
	return nil
}

func (c *memConn) AddCandidate(cand webrtc.Candidate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remoteDesc == nil {
		return webrtc.ErrPrematureCandidate
	}
	if c.seen[cand.Candidate] {
		return webrtc.ErrDuplicateCandidate
	}
	c.seen[cand.Candidate] = true
	return nil
}

func (c *memConn) CreateChannel(label string) (webrtc.Channel, error) {
	ch := newMemChannel(c.net, c.local, c.remote, label)
	c.mu.Lock()
	c.pending = append(c.pending, ch)
	c.channels = append(c.channels, ch)
	c.mu.Unlock()
	return ch, nil
}

func (c *memConn) OnCandidate(fn func(webrtc.Candidate)) {
	c.mu.Lock()
	c.onCandidate = fn
	c.mu.Unlock()
}
func (c *memConn) OnChannel(fn func(webrtc.Channel)) { c.mu.Lock(); c.onChannel = fn; c.mu.Unlock() }
func (c *memConn) OnNegotiationNeeded(fn func()) {
	c.mu.Lock()
	c.onNegotiate = fn
	c.mu.Unlock()
}
func (c *memConn) OnStateChange(fn func(webrtc.ConnectionState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *memConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	channels := slices.Clone(c.channels)
	c.mu.Unlock()
	for _, ch := range channels {
		ch.Close()
	}
	c.setState(webrtc.ConnectionClosed)
	return nil
}

func (c *memConn) Rollbacks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollbacks
}

// gather emits one host candidate, twice, so the duplicate path is hit.
func (c *memConn) gather() {
	c.mu.Lock()
	fn := c.onCandidate
	c.mu.Unlock()
	if fn == nil {
		return
	}
	cand := webrtc.Candidate{Candidate: "candidate:1 1 udp 2130706431 127.0.0.1 9 typ host " + c.local}
	fn(cand)
	fn(cand)
}

// negotiationNeeded fires the callback a real transport raises when tracks
// or channels change.
func (c *memConn) negotiationNeeded() {
	c.mu.Lock()
	fn := c.onNegotiate
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *memConn) setState(s webrtc.ConnectionState) {
	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (c *memConn) fireChannel(ch *memChannel) {
	c.mu.Lock()
	fn := c.onChannel
	c.mu.Unlock()
	if fn != nil {
		fn(ch)
	}
}

type memChannel struct {
	net           *memNetwork
	local, remote string
	label         string

	mu      sync.Mutex
	state   webrtc.ChannelState
	peer    *memChannel
	onOpen  func()
	onClose func()
	onMsg   func(webrtc.Frame)
}

func newMemChannel(n *memNetwork, local, remote, label string) *memChannel {
	return &memChannel{net: n, local: local, remote: remote, label: label}
}

func (ch *memChannel) Label() string { return ch.label }

func (ch *memChannel) State() webrtc.ChannelState {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state
}

func (ch *memChannel) Send(data []byte) error {
	return ch.deliver(webrtc.Frame{Data: slices.Clone(data)})
}

func (ch *memChannel) SendText(text string) error {
	return ch.deliver(webrtc.Frame{Data: []byte(text), IsText: true})
}

func (ch *memChannel) deliver(f webrtc.Frame) error {
	ch.mu.Lock()
	state, peer := ch.state, ch.peer
	ch.mu.Unlock()
	if state != webrtc.ChannelOpen || peer == nil {
		return webrtc.ErrChannelNotOpen
	}
	if !f.IsText {
		ch.net.record(ch.local, ch.remote, f.Data)
	}
	peer.mu.Lock()
	fn := peer.onMsg
	peer.mu.Unlock()
	if fn != nil {
		fn(f)
	}
	return nil
}

func (ch *memChannel) OnOpen(fn func())                { ch.mu.Lock(); ch.onOpen = fn; ch.mu.Unlock() }
func (ch *memChannel) OnClose(fn func())               { ch.mu.Lock(); ch.onClose = fn; ch.mu.Unlock() }
func (ch *memChannel) OnMessage(fn func(webrtc.Frame)) { ch.mu.Lock(); ch.onMsg = fn; ch.mu.Unlock() }

func (ch *memChannel) fireOpen() {
	ch.mu.Lock()
	fn := ch.onOpen
	ch.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (ch *memChannel) Close() error {
	ch.mu.Lock()
	if ch.state == webrtc.ChannelClosed {
		ch.mu.Unlock()
		return nil
	}
	ch.state = webrtc.ChannelClosed
	peer, fn := ch.peer, ch.onClose
	ch.mu.Unlock()
	if fn != nil {
		fn()
	}
	if peer != nil {
		peer.Close()
	}
	return nil
}
