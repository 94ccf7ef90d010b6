package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/aheroglu/devbattle-api/internal/domain/entity"
	"github.com/aheroglu/devbattle-api/internal/domain/repository"
	"github.com/aheroglu/devbattle-api/internal/service/battlemanager"
	"github.com/aheroglu/devbattle-api/internal/websocket"
)

// ============================================================================
// Общие моки репозиториев для тестов сервисного слоя
// ============================================================================

// MockBattleRepository реализует repository.BattleRepository
type MockBattleRepository struct {
	mock.Mock
}

func (m *MockBattleRepository) Create(battle *entity.Battle) error {
	args := m.Called(battle)
	return args.Error(0)
}

func (m *MockBattleRepository) GetByID(id uint) (*entity.Battle, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Battle), args.Error(1)
}

func (m *MockBattleRepository) GetActive() ([]entity.Battle, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Battle), args.Error(1)
}

func (m *MockBattleRepository) ApplyPatch(battleID uint, patch repository.BattleUpdate) error {
	args := m.Called(battleID, patch)
	return args.Error(0)
}

func (m *MockBattleRepository) AtomicStart(battleID uint, startTime time.Time) error {
	args := m.Called(battleID, startTime)
	return args.Error(0)
}

func (m *MockBattleRepository) AtomicFinish(battleID uint, endTime time.Time, winnerID *uint) error {
	args := m.Called(battleID, endTime, winnerID)
	return args.Error(0)
}

func (m *MockBattleRepository) List(limit, offset int) ([]entity.Battle, error) {
	args := m.Called(limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Battle), args.Error(1)
}

func (m *MockBattleRepository) ListWithFilters(filters repository.BattleFilters, limit, offset int) ([]entity.Battle, int64, error) {
	args := m.Called(filters, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]entity.Battle), args.Get(1).(int64), args.Error(2)
}

func (m *MockBattleRepository) Delete(id uint) error {
	args := m.Called(id)
	return args.Error(0)
}

// MockParticipantRepository реализует repository.ParticipantRepository
type MockParticipantRepository struct {
	mock.Mock
}

func (m *MockParticipantRepository) Create(participant *entity.Participant) error {
	args := m.Called(participant)
	return args.Error(0)
}

func (m *MockParticipantRepository) GetByID(id uint) (*entity.Participant, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Participant), args.Error(1)
}

func (m *MockParticipantRepository) GetByBattleAndUser(battleID, userID uint) (*entity.Participant, error) {
	args := m.Called(battleID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Participant), args.Error(1)
}

func (m *MockParticipantRepository) ListByBattle(battleID uint) ([]entity.Participant, error) {
	args := m.Called(battleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Participant), args.Error(1)
}

func (m *MockParticipantRepository) CountSolvers(battleID uint) (int64, error) {
	args := m.Called(battleID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockParticipantRepository) MarkSuccess(participantID uint, completionTime time.Time, score int) (bool, error) {
	args := m.Called(participantID, completionTime, score)
	return args.Bool(0), args.Error(1)
}

func (m *MockParticipantRepository) FailPending(battleID uint) error {
	args := m.Called(battleID)
	return args.Error(0)
}

func (m *MockParticipantRepository) FindWinner(battleID uint) (*entity.Participant, error) {
	args := m.Called(battleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Participant), args.Error(1)
}

func (m *MockParticipantRepository) Delete(id uint) error {
	args := m.Called(id)
	return args.Error(0)
}

// MockProblemRepository реализует repository.ProblemRepository
type MockProblemRepository struct {
	mock.Mock
}

func (m *MockProblemRepository) Create(problem *entity.Problem) error {
	args := m.Called(problem)
	return args.Error(0)
}

func (m *MockProblemRepository) GetByID(id uint) (*entity.Problem, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Problem), args.Error(1)
}

func (m *MockProblemRepository) List(limit, offset int) ([]entity.Problem, error) {
	args := m.Called(limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Problem), args.Error(1)
}

func (m *MockProblemRepository) Update(problem *entity.Problem) error {
	args := m.Called(problem)
	return args.Error(0)
}

func (m *MockProblemRepository) Delete(id uint) error {
	args := m.Called(id)
	return args.Error(0)
}

// MockUserRepository реализует repository.UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(user *entity.User) error {
	args := m.Called(user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(id uint) (*entity.User, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(email string) (*entity.User, error) {
	args := m.Called(email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.User), args.Error(1)
}

func (m *MockUserRepository) GetByUsername(username string) (*entity.User, error) {
	args := m.Called(username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.User), args.Error(1)
}

func (m *MockUserRepository) Update(user *entity.User) error {
	args := m.Called(user)
	return args.Error(0)
}

func (m *MockUserRepository) IncrementBattlesPlayed(userID uint) error {
	args := m.Called(userID)
	return args.Error(0)
}

func (m *MockUserRepository) IncrementWins(userID uint) error {
	args := m.Called(userID)
	return args.Error(0)
}

func (m *MockUserRepository) List(limit, offset int) ([]entity.User, error) {
	args := m.Called(limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.User), args.Error(1)
}

// MockSubmissionRepository реализует repository.SubmissionRepository
type MockSubmissionRepository struct {
	mock.Mock
}

func (m *MockSubmissionRepository) Create(result *entity.SubmissionResult) error {
	args := m.Called(result)
	return args.Error(0)
}

func (m *MockSubmissionRepository) GetByID(id uint) (*entity.SubmissionResult, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.SubmissionResult), args.Error(1)
}

func (m *MockSubmissionRepository) ListByBattle(battleID uint) ([]entity.SubmissionResult, error) {
	args := m.Called(battleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.SubmissionResult), args.Error(1)
}

func (m *MockSubmissionRepository) GetLatestByParticipant(participantID uint) (*entity.SubmissionResult, error) {
	args := m.Called(participantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.SubmissionResult), args.Error(1)
}

func (m *MockSubmissionRepository) GetLatestForParticipants(participantIDs []uint) (map[uint]*entity.SubmissionResult, error) {
	args := m.Called(participantIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uint]*entity.SubmissionResult), args.Error(1)
}

func (m *MockSubmissionRepository) CountByBattle(battleID uint) (int64, error) {
	args := m.Called(battleID)
	return args.Get(0).(int64), args.Error(1)
}

// MockCacheRepository реализует repository.CacheRepository
type MockCacheRepository struct {
	mock.Mock
}

func (m *MockCacheRepository) Set(key string, value interface{}, expiration time.Duration) error {
	args := m.Called(key, value, expiration)
	return args.Error(0)
}

func (m *MockCacheRepository) Get(key string) (string, error) {
	args := m.Called(key)
	return args.String(0), args.Error(1)
}

func (m *MockCacheRepository) Delete(key string) error {
	args := m.Called(key)
	return args.Error(0)
}

func (m *MockCacheRepository) Increment(key string) (int64, error) {
	args := m.Called(key)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCacheRepository) SetJSON(key string, value interface{}, expiration time.Duration) error {
	args := m.Called(key, value, expiration)
	return args.Error(0)
}

func (m *MockCacheRepository) GetJSON(key string, dest interface{}) error {
	args := m.Called(key, dest)
	return args.Error(0)
}

func (m *MockCacheRepository) Exists(key string) (bool, error) {
	args := m.Called(key)
	return args.Bool(0), args.Error(1)
}

func (m *MockCacheRepository) ExpireAt(key string, expiration time.Time) error {
	args := m.Called(key, expiration)
	return args.Error(0)
}

func (m *MockCacheRepository) SetNX(key string, value interface{}, expiration time.Duration) (bool, error) {
	args := m.Called(key, value, expiration)
	return args.Bool(0), args.Error(1)
}

func (m *MockCacheRepository) SAdd(key string, members ...interface{}) error {
	args := m.Called(key, members)
	return args.Error(0)
}

func (m *MockCacheRepository) SRem(key string, members ...interface{}) error {
	args := m.Called(key, members)
	return args.Error(0)
}

func (m *MockCacheRepository) SMembers(key string) ([]string, error) {
	args := m.Called(key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// ============================================================================
// Вспомогательные конструкторы
// ============================================================================

// newTestCoordinator собирает планировщик и нотификатор поверх реального хаба.
// Хаб не запускается: рассылки в комнаты работают и без цикла Run, а
// broadcast-канал буферизован.
func newTestCoordinator(battleRepo repository.BattleRepository) (*battlemanager.Scheduler, *battlemanager.Notifier) {
	hub := websocket.NewHub()
	manager := websocket.NewManager(hub)
	cfg := battlemanager.DefaultConfig()
	scheduler := battlemanager.NewScheduler(context.Background(), cfg, &battlemanager.Dependencies{
		BattleRepo: battleRepo,
		WSManager:  manager,
		Config:     cfg,
	})
	return scheduler, battlemanager.NewNotifier(manager)
}
