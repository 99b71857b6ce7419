package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from    NegotiationState
		event   NegotiationEvent
		want    NegotiationState
		wantErr error
	}{
		{StateNew, LocalOffer, StateHaveLocalOffer, nil},
		{StateStable, LocalOffer, StateHaveLocalOffer, nil},
		{StateHaveLocalOffer, LocalOffer, StateHaveLocalOffer, ErrNegotiationInProgress},
		{StateHaveRemoteOffer, LocalOffer, StateHaveRemoteOffer, ErrNegotiationInProgress},

		{StateNew, RemoteOffer, StateHaveRemoteOffer, nil},
		{StateStable, RemoteOffer, StateHaveRemoteOffer, nil},
		{StateHaveLocalOffer, RemoteOffer, StateHaveLocalOffer, ErrGlare},
		{StateHaveRemoteOffer, RemoteOffer, StateHaveRemoteOffer, ErrNegotiationInProgress},

		{StateHaveRemoteOffer, AnswerSent, StateStable, nil},
		{StateStable, AnswerSent, StateStable, ErrInvalidTransition},

		{StateHaveLocalOffer, RemoteAnswer, StateStable, nil},
		{StateNew, RemoteAnswer, StateNew, ErrUnexpectedAnswer},
		{StateStable, RemoteAnswer, StateStable, ErrUnexpectedAnswer},
		{StateHaveRemoteOffer, RemoteAnswer, StateHaveRemoteOffer, ErrUnexpectedAnswer},

		{StateHaveLocalOffer, Rollback, StateNew, nil},
		{StateStable, Rollback, StateStable, ErrInvalidTransition},

		{StateNew, Close, StateClosed, nil},
		{StateHaveLocalOffer, Close, StateClosed, nil},
		{StateStable, Close, StateClosed, nil},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+tt.event.String(), func(t *testing.T) {
			got, err := Transition(tt.from, tt.event)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClosedRejectsEverything(t *testing.T) {
	for ev := LocalOffer; ev <= Close; ev++ {
		got, err := Transition(StateClosed, ev)
		assert.ErrorIs(t, err, ErrLinkClosed, ev.String())
		assert.Equal(t, StateClosed, got)
	}
}

func TestRollbackRestoresStable(t *testing.T) {
	link := &PeerLink{peerID: "b"}
	require.NoError(t, link.apply(LocalOffer))
	require.NoError(t, link.apply(Rollback))
	assert.Equal(t, StateNew, link.state, "never negotiated")

	require.NoError(t, link.apply(RemoteOffer))
	require.NoError(t, link.apply(AnswerSent))
	assert.Equal(t, StateStable, link.state)

	require.NoError(t, link.apply(LocalOffer))
	require.NoError(t, link.apply(Rollback))
	assert.Equal(t, StateStable, link.state, "negotiated before")
}

func TestInitiatorRole(t *testing.T) {
	assert.True(t, initiatorRole("a", "b"))
	assert.False(t, initiatorRole("b", "a"))
}

func TestFormatCountdown(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{5 * time.Minute, "05:00"},
		{4*time.Minute + 59*time.Second + 900*time.Millisecond, "04:59"},
		{2 * time.Hour, "120:00"},
		{5*time.Hour - time.Second, "299:59"},
		{0, "00:00"},
		{-3 * time.Second, "00:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatCountdown(tt.in), tt.in.String())
	}
}

func TestQueueFIFO(t *testing.T) {
	q := newQueue[int]()
	for i := range 3 {
		assert.True(t, q.Push(i))
	}
	<-q.Ready()
	items, closed := q.Drain()
	assert.Equal(t, []int{0, 1, 2}, items)
	assert.False(t, closed)

	q.Close()
	assert.False(t, q.Push(9))
	<-q.Ready()
	items, closed = q.Drain()
	assert.Empty(t, items)
	assert.True(t, closed)
}
