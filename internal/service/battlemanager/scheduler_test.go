package battlemanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aheroglu/devbattle-api/internal/domain/entity"
	"github.com/aheroglu/devbattle-api/internal/domain/repository"
	"github.com/aheroglu/devbattle-api/internal/websocket"
)

// ============================================================================
// Тесты планировщика дедлайнов
// ============================================================================

// stubBattleRepo отдает фиксированный список активных битв; остальные методы
// в тестах планировщика не вызываются
type stubBattleRepo struct {
	repository.BattleRepository
	active []entity.Battle
}

func (s *stubBattleRepo) GetActive() ([]entity.Battle, error) {
	return s.active, nil
}

// stubCacheRepo — кеш-заглушка для тестов присутствия
type stubCacheRepo struct {
	repository.CacheRepository
}

func (stubCacheRepo) Set(key string, value interface{}, expiration time.Duration) error { return nil }
func (stubCacheRepo) SAdd(key string, members ...interface{}) error                     { return nil }
func (stubCacheRepo) SRem(key string, members ...interface{}) error                     { return nil }

func newTestScheduler(repo repository.BattleRepository) *Scheduler {
	return newTestSchedulerCtx(context.Background(), repo)
}

func newTestSchedulerCtx(ctx context.Context, repo repository.BattleRepository) *Scheduler {
	hub := websocket.NewHub()
	cfg := &Config{
		TypingTTL:             10 * time.Second,
		PresenceSweepInterval: 30 * time.Second,
		TimeoutChannelBuffer:  4,
	}
	return NewScheduler(ctx, cfg, &Dependencies{
		BattleRepo: repo,
		CacheRepo:  stubCacheRepo{},
		WSManager:  websocket.NewManager(hub),
		Config:     cfg,
	})
}

func waitForTimeout(t *testing.T, s *Scheduler, want uint) {
	t.Helper()
	select {
	case got := <-s.GetTimeoutChannel():
		assert.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("сигнал таймаута битвы #%d не пришел", want)
	}
}

func assertNoTimeout(t *testing.T, s *Scheduler, within time.Duration) {
	t.Helper()
	select {
	case got := <-s.GetTimeoutChannel():
		t.Fatalf("неожиданный сигнал таймаута битвы #%d", got)
	case <-time.After(within):
	}
}

func TestScheduler_ArmFiresOnDeadline(t *testing.T) {
	s := newTestScheduler(nil)

	s.Arm(1, time.Now().Add(20*time.Millisecond))

	waitForTimeout(t, s, 1)
}

func TestScheduler_PastDeadlineFiresImmediately(t *testing.T) {
	s := newTestScheduler(nil)

	s.Arm(2, time.Now().Add(-time.Minute))

	waitForTimeout(t, s, 2)
}

func TestScheduler_DisarmCancelsTimer(t *testing.T) {
	s := newTestScheduler(nil)

	s.Arm(3, time.Now().Add(50*time.Millisecond))
	s.Disarm(3)

	assertNoTimeout(t, s, 200*time.Millisecond)
}

func TestScheduler_RearmReplacesOldTimer(t *testing.T) {
	s := newTestScheduler(nil)

	// Старый таймер далеко в будущем, перевзвод — в прошлое
	s.Arm(4, time.Now().Add(time.Hour))
	s.Arm(4, time.Now().Add(-time.Second))

	waitForTimeout(t, s, 4)
	assertNoTimeout(t, s, 100*time.Millisecond)
}

func TestScheduler_EnsureSkipsNonActiveBattle(t *testing.T) {
	s := newTestScheduler(nil)
	battle := &entity.Battle{ID: 5, Status: entity.BattleStatusWaiting}

	s.Ensure(battle)

	_, armed := s.battleCancels.Load(uint(5))
	assert.False(t, armed)
}

func TestScheduler_EnsureRequiresStartTime(t *testing.T) {
	s := newTestScheduler(nil)
	// Активная битва без start_time — аномалия данных, таймер не взводится
	battle := &entity.Battle{ID: 6, Status: entity.BattleStatusActive, MaxDuration: 30}

	s.Ensure(battle)

	_, armed := s.battleCancels.Load(uint(6))
	assert.False(t, armed)
}

func TestScheduler_EnsureDoesNotRearmExistingTimer(t *testing.T) {
	s := newTestScheduler(nil)
	startTime := time.Now()
	battle := &entity.Battle{ID: 7, Status: entity.BattleStatusActive, MaxDuration: 30, StartTime: &startTime}

	s.Arm(7, time.Now().Add(time.Hour))
	s.Ensure(battle)

	assertNoTimeout(t, s, 100*time.Millisecond)
	s.Disarm(7)
}

func TestScheduler_TimerSurvivesCallerContextCancel(t *testing.T) {
	s := newTestScheduler(nil)

	// Таймер живет в контексте планировщика, а не вызывающего: завершение
	// HTTP-запроса, взведшего таймер, не должно его гасить
	callerCtx, cancel := context.WithCancel(context.Background())
	s.Arm(9, time.Now().Add(30*time.Millisecond))
	cancel()
	<-callerCtx.Done()

	waitForTimeout(t, s, 9)
}

func TestScheduler_BaseContextCancelStopsTimers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := newTestSchedulerCtx(ctx, nil)

	s.Arm(10, time.Now().Add(50*time.Millisecond))
	cancel()

	assertNoTimeout(t, s, 200*time.Millisecond)
}

func TestScheduler_RearmActiveRestoresExpiredBattle(t *testing.T) {
	// Битва просрочена еще до рестарта: таймер срабатывает сразу
	startTime := time.Now().Add(-time.Hour)
	repo := &stubBattleRepo{active: []entity.Battle{
		{ID: 8, Status: entity.BattleStatusActive, MaxDuration: 30, StartTime: &startTime},
	}}
	s := newTestScheduler(repo)

	err := s.RearmActive()

	require.NoError(t, err)
	waitForTimeout(t, s, 8)
}
