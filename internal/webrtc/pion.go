package webrtc

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BioHazard786/Ghostlink/internal/config"
	pion "github.com/pion/webrtc/v4"
)

// Backpressure thresholds for data channel sends.
const (
	HighWaterMark = 2 * 1024 * 1024 // 2 MB - stop queueing
	LowWaterMark  = 512 * 1024      // 512 KB - resume
	SendTimeout   = 60 * time.Second
)

// PionTransport creates pion peer connections configured with the STUN/TURN
// servers from the client config.
type PionTransport struct {
	cfg pion.Configuration
	log *slog.Logger
}

func NewPionTransport(cfg *config.Config, log *slog.Logger) *PionTransport {
	if log == nil {
		log = slog.Default()
	}

	var iceServers []pion.ICEServer
	if stun := cfg.GetSTUNServers(); len(stun) > 0 {
		iceServers = append(iceServers, pion.ICEServer{URLs: stun})
	}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, pion.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := pion.ICETransportPolicyAll
	if turnServers != nil && (cfg.ForceRelay || ShouldForceRelay()) {
		log.Info("forcing TURN relay for ICE")
		policy = pion.ICETransportPolicyRelay
	}

	return &PionTransport{
		cfg: pion.Configuration{
			ICEServers:         iceServers,
			ICETransportPolicy: policy,
		},
		log: log,
	}
}

func (t *PionTransport) NewConnection(peerID string) (Connection, error) {
	pc, err := pion.NewPeerConnection(t.cfg)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	c := &pionConnection{
		cfg:  t.cfg,
		pc:   pc,
		seen: make(map[string]struct{}),
		log:  t.log.With("peer", peerID),
	}
	c.install(pc)
	return c, nil
}

// pionConnection adapts a pion PeerConnection. pion cannot roll back a local
// offer, so Rollback replaces the underlying PeerConnection instead; that is
// only possible before the first completed negotiation.
type pionConnection struct {
	cfg pion.Configuration
	log *slog.Logger

	mu       sync.Mutex
	pc       *pion.PeerConnection
	seen     map[string]struct{}
	channels []*pionChannel

	onCandidate   func(Candidate)
	onChannel     func(Channel)
	onNegotiation func()
	onState       func(ConnectionState)
}

func (c *pionConnection) current() *pion.PeerConnection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pc
}

// install routes pc's events to the registered callbacks for as long as pc is current.
func (c *pionConnection) install(pc *pion.PeerConnection) {
	pc.OnICECandidate(func(ic *pion.ICECandidate) {
		if ic == nil || c.current() != pc {
			return
		}
		c.mu.Lock()
		fn := c.onCandidate
		c.mu.Unlock()
		if fn == nil {
			return
		}
		init := ic.ToJSON()
		fn(Candidate{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		})
	})

	pc.OnDataChannel(func(dc *pion.DataChannel) {
		if c.current() != pc {
			return
		}
		c.mu.Lock()
		fn := c.onChannel
		c.mu.Unlock()
		if fn != nil {
			fn(newPionChannel(dc))
		}
	})

	pc.OnNegotiationNeeded(func() {
		if c.current() != pc {
			return
		}
		c.mu.Lock()
		fn := c.onNegotiation
		c.mu.Unlock()
		if fn != nil {
			fn()
		}
	})

	pc.OnConnectionStateChange(func(s pion.PeerConnectionState) {
		if c.current() != pc {
			return
		}
		c.log.Debug("peer connection state", "state", s.String())
		c.mu.Lock()
		fn := c.onState
		c.mu.Unlock()
		if fn != nil {
			fn(connectionState(s))
		}
	})
}

func (c *pionConnection) CreateOffer() (Description, error) {
	pc := c.current()
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return Description{}, fmt.Errorf("create offer: %w", err)
	}
	if err = pc.SetLocalDescription(offer); err != nil {
		return Description{}, fmt.Errorf("set local description: %w", err)
	}
	return fromPion(pc.LocalDescription()), nil
}

func (c *pionConnection) CreateAnswer() (Description, error) {
	pc := c.current()
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return Description{}, fmt.Errorf("create answer: %w", err)
	}
	if err = pc.SetLocalDescription(answer); err != nil {
		return Description{}, fmt.Errorf("set local description: %w", err)
	}
	return fromPion(pc.LocalDescription()), nil
}

func (c *pionConnection) SetRemoteDescription(desc Description) error {
	var sdpType pion.SDPType
	switch desc.Type {
	case SDPTypeOffer:
		sdpType = pion.SDPTypeOffer
	case SDPTypeAnswer:
		sdpType = pion.SDPTypeAnswer
	default:
		return fmt.Errorf("set remote description: unexpected type %q", desc.Type)
	}
	if err := c.current().SetRemoteDescription(pion.SessionDescription{Type: sdpType, SDP: desc.SDP}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

func (c *pionConnection) Rollback() error {
	c.mu.Lock()
	old := c.pc
	if old.SignalingState() != pion.SignalingStateHaveLocalOffer {
		c.mu.Unlock()
		return fmt.Errorf("rollback: no pending local offer")
	}
	if old.CurrentRemoteDescription() != nil {
		c.mu.Unlock()
		return ErrRollbackUnsupported
	}

	fresh, err := pion.NewPeerConnection(c.cfg)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("rollback: %w", err)
	}
	ordered := true
	for _, ch := range c.channels {
		dc, err := fresh.CreateDataChannel(ch.Label(), &pion.DataChannelInit{Ordered: &ordered})
		if err != nil {
			c.mu.Unlock()
			fresh.Close()
			return fmt.Errorf("rollback: recreate data channel: %w", err)
		}
		ch.bind(dc)
	}
	c.pc = fresh
	c.seen = make(map[string]struct{})
	c.mu.Unlock()

	c.install(fresh)
	c.log.Debug("pending offer discarded")
	return old.Close()
}

func (c *pionConnection) AddCandidate(cand Candidate) error {
	pc := c.current()
	if pc.RemoteDescription() == nil {
		return ErrPrematureCandidate
	}

	c.mu.Lock()
	if _, dup := c.seen[cand.Candidate]; dup {
		c.mu.Unlock()
		return ErrDuplicateCandidate
	}
	c.seen[cand.Candidate] = struct{}{}
	c.mu.Unlock()

	err := pc.AddICECandidate(pion.ICECandidateInit{
		Candidate:        cand.Candidate,
		SDPMid:           cand.SDPMid,
		SDPMLineIndex:    cand.SDPMLineIndex,
		UsernameFragment: cand.UsernameFragment,
	})
	if err != nil {
		return fmt.Errorf("add ICE candidate: %w", err)
	}
	return nil
}

func (c *pionConnection) CreateChannel(label string) (Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ordered := true
	dc, err := c.pc.CreateDataChannel(label, &pion.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	ch := newPionChannel(dc)
	c.channels = append(c.channels, ch)
	return ch, nil
}

func (c *pionConnection) OnCandidate(fn func(Candidate)) {
	c.mu.Lock()
	c.onCandidate = fn
	c.mu.Unlock()
}

func (c *pionConnection) OnChannel(fn func(Channel)) {
	c.mu.Lock()
	c.onChannel = fn
	c.mu.Unlock()
}

func (c *pionConnection) OnNegotiationNeeded(fn func()) {
	c.mu.Lock()
	c.onNegotiation = fn
	c.mu.Unlock()
}

func (c *pionConnection) OnStateChange(fn func(ConnectionState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *pionConnection) Close() error {
	return c.current().Close()
}

func fromPion(desc *pion.SessionDescription) Description {
	if desc == nil {
		return Description{}
	}
	d := Description{SDP: desc.SDP, Type: SDPTypeOffer}
	if desc.Type == pion.SDPTypeAnswer {
		d.Type = SDPTypeAnswer
	}
	return d
}

func connectionState(s pion.PeerConnectionState) ConnectionState {
	switch s {
	case pion.PeerConnectionStateConnecting:
		return ConnectionConnecting
	case pion.PeerConnectionStateConnected:
		return ConnectionConnected
	case pion.PeerConnectionStateDisconnected:
		return ConnectionDisconnected
	case pion.PeerConnectionStateFailed:
		return ConnectionFailed
	case pion.PeerConnectionStateClosed:
		return ConnectionClosed
	default:
		return ConnectionNew
	}
}

// pionChannel adds buffered-amount backpressure to a pion data channel. The
// underlying channel is swapped when its connection is rebuilt by Rollback.
type pionChannel struct {
	low chan struct{}

	mu        sync.Mutex
	dc        *pion.DataChannel
	onOpen    func()
	onClose   func()
	onMessage func(Frame)
}

func newPionChannel(dc *pion.DataChannel) *pionChannel {
	ch := &pionChannel{low: make(chan struct{}, 1)}
	ch.bind(dc)
	return ch
}

func (c *pionChannel) channel() *pion.DataChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dc
}

func (c *pionChannel) bind(dc *pion.DataChannel) {
	c.mu.Lock()
	c.dc = dc
	c.mu.Unlock()

	dc.SetBufferedAmountLowThreshold(LowWaterMark)
	dc.OnBufferedAmountLow(func() {
		select {
		case c.low <- struct{}{}:
		default:
		}
	})
	dc.OnOpen(func() {
		if fn := c.callback(dc, func() func() { return c.onOpen }); fn != nil {
			fn()
		}
	})
	dc.OnClose(func() {
		if fn := c.callback(dc, func() func() { return c.onClose }); fn != nil {
			fn()
		}
	})
	dc.OnMessage(func(msg pion.DataChannelMessage) {
		c.mu.Lock()
		fn := c.onMessage
		stale := c.dc != dc
		c.mu.Unlock()
		if fn != nil && !stale {
			fn(Frame{Data: msg.Data, IsText: msg.IsString})
		}
	})
}

// callback returns the selected callback unless dc has been replaced.
func (c *pionChannel) callback(dc *pion.DataChannel, pick func() func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dc != dc {
		return nil
	}
	return pick()
}

func (c *pionChannel) Label() string { return c.channel().Label() }

func (c *pionChannel) State() ChannelState {
	switch c.channel().ReadyState() {
	case pion.DataChannelStateOpen:
		return ChannelOpen
	case pion.DataChannelStateClosing:
		return ChannelClosing
	case pion.DataChannelStateClosed:
		return ChannelClosed
	default:
		return ChannelConnecting
	}
}

// waitForWindow blocks while the send buffer is above the high water mark.
func (c *pionChannel) waitForWindow(dc *pion.DataChannel) error {
	buffered := dc.BufferedAmount()
	if buffered < HighWaterMark {
		return nil
	}

	select {
	case <-c.low:
		return nil
	case <-time.After(SendTimeout):
		if dc.BufferedAmount() < buffered {
			return nil
		}
		return ErrBufferTimeout
	}
}

func (c *pionChannel) Send(data []byte) error {
	dc := c.channel()
	if dc.ReadyState() != pion.DataChannelStateOpen {
		return ErrChannelNotOpen
	}
	if err := c.waitForWindow(dc); err != nil {
		return err
	}
	return dc.Send(data)
}

func (c *pionChannel) SendText(text string) error {
	dc := c.channel()
	if dc.ReadyState() != pion.DataChannelStateOpen {
		return ErrChannelNotOpen
	}
	return dc.SendText(text)
}

func (c *pionChannel) OnOpen(fn func()) {
	c.mu.Lock()
	c.onOpen = fn
	c.mu.Unlock()
}

func (c *pionChannel) OnClose(fn func()) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

func (c *pionChannel) OnMessage(fn func(Frame)) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
}

func (c *pionChannel) Close() error { return c.channel().Close() }
