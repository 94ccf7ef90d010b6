package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBattle_StatusHelpers(t *testing.T) {
	b := &Battle{Status: BattleStatusWaiting}
	assert.True(t, b.IsWaiting())
	assert.False(t, b.IsActive())

	b.Status = BattleStatusActive
	assert.True(t, b.IsActive())

	b.Status = BattleStatusCompleted
	assert.True(t, b.IsCompleted())
}

func TestBattle_Deadline(t *testing.T) {
	startTime := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := &Battle{MaxDuration: 30, StartTime: &startTime}

	deadline, ok := b.Deadline()
	require.True(t, ok)
	assert.Equal(t, startTime.Add(30*time.Minute), deadline)
}

func TestBattle_DeadlineWithoutStartTime(t *testing.T) {
	b := &Battle{MaxDuration: 30}

	_, ok := b.Deadline()
	assert.False(t, ok)
	assert.Zero(t, b.RemainingTime(time.Now()))
}

func TestBattle_RemainingTime(t *testing.T) {
	startTime := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := &Battle{MaxDuration: 30, StartTime: &startTime}

	assert.Equal(t, 20*time.Minute, b.RemainingTime(startTime.Add(10*time.Minute)))

	// После дедлайна оставшееся время не уходит в минус
	assert.Zero(t, b.RemainingTime(startTime.Add(time.Hour)))
}
