package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpinnerUpdateMessage(t *testing.T) {
	sp := NewConnectionSpinner("Connecting to relay...")
	sp.Start()
	sp.UpdateMessage("Joining room...")

	sp.mu.Lock()
	msg := sp.message
	sp.mu.Unlock()
	assert.Equal(t, "Joining room...", msg)

	sp.Stop()
	sp.Stop()
	select {
	case <-sp.exited:
	default:
		t.Fatal("spinner goroutine still running after Stop")
	}
}
