package core

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionEndsOnce(t *testing.T) {
	s := NewSession()
	require.True(t, s.Active())

	first := Reason{Kind: ErrInvariantViolation, Message: "battery > 0"}
	assert.True(t, s.End(first))
	assert.False(t, s.End(Completed))

	assert.False(t, s.Active())
	assert.Equal(t, first, s.Reason())
	assert.True(t, errors.Is(s.Reason().Kind, ErrInvariantViolation))

	select {
	case <-s.Done():
	default:
		t.Fatal("done channel should be closed")
	}
}

func TestSessionConcurrentEnd(t *testing.T) {
	s := NewSession()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.End(Completed) {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.False(t, s.Active())
}

func TestSessionPhase(t *testing.T) {
	s := NewSession()
	assert.Equal(t, PhaseGround, s.Phase())
	s.SetPhase(PhaseAirborne)
	assert.Equal(t, PhaseAirborne, s.Phase())
	assert.Equal(t, "airborne", s.Phase().String())
}

func TestReasonError(t *testing.T) {
	assert.Equal(t, "mission completed", Completed.Error())
	r := Reason{Kind: ErrUserCancellation, Message: "interrupted"}
	assert.Equal(t, "user cancellation: interrupted", r.Error())
}
