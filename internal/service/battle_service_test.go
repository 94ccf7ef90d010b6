package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aheroglu/devbattle-api/internal/domain/entity"
	"github.com/aheroglu/devbattle-api/internal/domain/repository"
	apperrors "github.com/aheroglu/devbattle-api/internal/pkg/errors"
)

// ============================================================================
// Тесты BattleService: жизненный цикл waiting → active → completed
// ============================================================================

type battleServiceFixture struct {
	battleRepo      *MockBattleRepository
	participantRepo *MockParticipantRepository
	problemRepo     *MockProblemRepository
	userRepo        *MockUserRepository
	service         *BattleService
}

func newBattleServiceFixture() *battleServiceFixture {
	f := &battleServiceFixture{
		battleRepo:      new(MockBattleRepository),
		participantRepo: new(MockParticipantRepository),
		problemRepo:     new(MockProblemRepository),
		userRepo:        new(MockUserRepository),
	}
	scheduler, notifier := newTestCoordinator(f.battleRepo)
	f.service = NewBattleService(
		f.battleRepo, f.participantRepo, f.problemRepo, f.userRepo,
		scheduler, notifier, 2,
	)
	return f
}

func waitingBattle(id, creatorID uint) *entity.Battle {
	return &entity.Battle{
		ID:              id,
		Title:           "Две суммы на скорость",
		Difficulty:      entity.BattleDifficultyMedium,
		Language:        "go",
		MaxDuration:     30,
		MaxParticipants: 4,
		Status:          entity.BattleStatusWaiting,
		CreatorID:       creatorID,
		ProblemID:       1,
	}
}

func activeBattle(id, creatorID uint) *entity.Battle {
	b := waitingBattle(id, creatorID)
	b.Status = entity.BattleStatusActive
	startTime := time.Now().Add(-5 * time.Minute)
	b.StartTime = &startTime
	return b
}

func TestCreateBattle_Success(t *testing.T) {
	f := newBattleServiceFixture()
	f.problemRepo.On("GetByID", uint(1)).Return(&entity.Problem{ID: 1}, nil)
	f.battleRepo.On("Create", mock.AnythingOfType("*entity.Battle")).
		Run(func(args mock.Arguments) {
			args.Get(0).(*entity.Battle).ID = 42
		}).Return(nil)
	// Создатель автоматически входит как solver
	f.participantRepo.On("Create", mock.MatchedBy(func(p *entity.Participant) bool {
		return p.BattleID == 42 && p.UserID == 7 &&
			p.Role == entity.ParticipantRoleSolver &&
			p.Result == entity.ParticipantResultPending
	})).Return(nil)

	battle, err := f.service.CreateBattle(context.Background(), 7, CreateBattleInput{
		Title:           "Две суммы на скорость",
		Difficulty:      entity.BattleDifficultyMedium,
		Language:        "go",
		MaxDuration:     30,
		MaxParticipants: 4,
		ProblemID:       1,
	})

	require.NoError(t, err)
	assert.Equal(t, uint(42), battle.ID)
	assert.Equal(t, entity.BattleStatusWaiting, battle.Status)
	assert.Equal(t, uint(7), battle.CreatorID)
	f.participantRepo.AssertExpectations(t)
}

func TestCreateBattle_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input CreateBattleInput
	}{
		{"пустой заголовок", CreateBattleInput{Title: "  ", Difficulty: "easy", Language: "go", MaxDuration: 30, MaxParticipants: 2, ProblemID: 1}},
		{"неизвестная сложность", CreateBattleInput{Title: "t", Difficulty: "insane", Language: "go", MaxDuration: 30, MaxParticipants: 2, ProblemID: 1}},
		{"слишком короткая битва", CreateBattleInput{Title: "t", Difficulty: "easy", Language: "go", MaxDuration: 3, MaxParticipants: 2, ProblemID: 1}},
		{"слишком много участников", CreateBattleInput{Title: "t", Difficulty: "easy", Language: "go", MaxDuration: 30, MaxParticipants: 100, ProblemID: 1}},
		{"нет задачи", CreateBattleInput{Title: "t", Difficulty: "easy", Language: "go", MaxDuration: 30, MaxParticipants: 2, ProblemID: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newBattleServiceFixture()
			_, err := f.service.CreateBattle(context.Background(), 1, tt.input)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
			f.battleRepo.AssertNotCalled(t, "Create", mock.Anything)
		})
	}
}

func TestCreateBattle_ProblemNotFound(t *testing.T) {
	f := newBattleServiceFixture()
	f.problemRepo.On("GetByID", uint(99)).Return(nil, apperrors.ErrNotFound)

	_, err := f.service.CreateBattle(context.Background(), 1, CreateBattleInput{
		Title: "t", Difficulty: "easy", Language: "go",
		MaxDuration: 30, MaxParticipants: 2, ProblemID: 99,
	})

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	f.battleRepo.AssertNotCalled(t, "Create", mock.Anything)
}

func TestStartBattle_Success(t *testing.T) {
	f := newBattleServiceFixture()
	f.battleRepo.On("GetByID", uint(1)).Return(waitingBattle(1, 7), nil)
	f.participantRepo.On("CountSolvers", uint(1)).Return(int64(2), nil)
	f.battleRepo.On("AtomicStart", uint(1), mock.AnythingOfType("time.Time")).Return(nil)

	battle, err := f.service.StartBattle(context.Background(), 1, 7)

	require.NoError(t, err)
	assert.Equal(t, entity.BattleStatusActive, battle.Status)
	require.NotNil(t, battle.StartTime)

	deadline, ok := battle.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, battle.StartTime.Add(30*time.Minute), deadline, time.Second)

	f.service.scheduler.Disarm(1)
}

func TestStartBattle_OnlyCreator(t *testing.T) {
	f := newBattleServiceFixture()
	f.battleRepo.On("GetByID", uint(1)).Return(waitingBattle(1, 7), nil)

	_, err := f.service.StartBattle(context.Background(), 1, 8)

	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	f.battleRepo.AssertNotCalled(t, "AtomicStart", mock.Anything, mock.Anything)
}

func TestStartBattle_NotEnoughSolvers(t *testing.T) {
	f := newBattleServiceFixture()
	f.battleRepo.On("GetByID", uint(1)).Return(waitingBattle(1, 7), nil)
	// В битве пока только создатель
	f.participantRepo.On("CountSolvers", uint(1)).Return(int64(1), nil)

	_, err := f.service.StartBattle(context.Background(), 1, 7)

	assert.ErrorIs(t, err, ErrNotEnoughSolvers)
	f.battleRepo.AssertNotCalled(t, "AtomicStart", mock.Anything, mock.Anything)
}

func TestStartBattle_AlreadyActive(t *testing.T) {
	f := newBattleServiceFixture()
	f.battleRepo.On("GetByID", uint(1)).Return(activeBattle(1, 7), nil)

	_, err := f.service.StartBattle(context.Background(), 1, 7)

	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestStartBattle_LostRaceOnConditionalUpdate(t *testing.T) {
	f := newBattleServiceFixture()
	f.battleRepo.On("GetByID", uint(1)).Return(waitingBattle(1, 7), nil)
	f.participantRepo.On("CountSolvers", uint(1)).Return(int64(3), nil)
	// Условный UPDATE не затронул строк: битву уже стартовал конкурирующий вызов
	f.battleRepo.On("AtomicStart", uint(1), mock.AnythingOfType("time.Time")).
		Return(repository.ErrBattleNotWaiting)

	_, err := f.service.StartBattle(context.Background(), 1, 7)

	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestEndBattle_OnlyCreator(t *testing.T) {
	f := newBattleServiceFixture()
	f.battleRepo.On("GetByID", uint(1)).Return(activeBattle(1, 7), nil)

	_, err := f.service.EndBattle(context.Background(), 1, 8)

	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	f.battleRepo.AssertNotCalled(t, "AtomicFinish", mock.Anything, mock.Anything, mock.Anything)
}

func TestEndBattle_WithWinnerAndStats(t *testing.T) {
	f := newBattleServiceFixture()
	completed := activeBattle(1, 7)
	completed.Status = entity.BattleStatusCompleted

	f.battleRepo.On("GetByID", uint(1)).Return(activeBattle(1, 7), nil).Once()
	// Победитель — solver с самым ранним completion_time
	winner := &entity.Participant{ID: 10, BattleID: 1, UserID: 8, Role: entity.ParticipantRoleSolver, Result: entity.ParticipantResultSuccess}
	f.participantRepo.On("FindWinner", uint(1)).Return(winner, nil)
	f.battleRepo.On("AtomicFinish", uint(1), mock.AnythingOfType("time.Time"), mock.MatchedBy(func(winnerID *uint) bool {
		return winnerID != nil && *winnerID == 8
	})).Return(nil)
	f.participantRepo.On("FailPending", uint(1)).Return(nil)
	f.participantRepo.On("ListByBattle", uint(1)).Return([]entity.Participant{
		{ID: 9, UserID: 7, Role: entity.ParticipantRoleSolver},
		{ID: 10, UserID: 8, Role: entity.ParticipantRoleSolver},
		{ID: 11, UserID: 9, Role: entity.ParticipantRoleSpectator},
	}, nil)
	// Статистика battles_played — только по solver'ам
	f.userRepo.On("IncrementBattlesPlayed", uint(7)).Return(nil).Once()
	f.userRepo.On("IncrementBattlesPlayed", uint(8)).Return(nil).Once()
	f.userRepo.On("IncrementWins", uint(8)).Return(nil).Once()
	f.battleRepo.On("GetByID", uint(1)).Return(completed, nil).Once()

	battle, err := f.service.EndBattle(context.Background(), 1, 7)

	require.NoError(t, err)
	assert.Equal(t, entity.BattleStatusCompleted, battle.Status)
	f.userRepo.AssertExpectations(t)
	f.userRepo.AssertNotCalled(t, "IncrementBattlesPlayed", uint(9))
}

func TestEndBattle_NoWinner(t *testing.T) {
	f := newBattleServiceFixture()
	completed := activeBattle(1, 7)
	completed.Status = entity.BattleStatusCompleted

	f.battleRepo.On("GetByID", uint(1)).Return(activeBattle(1, 7), nil).Once()
	// Никто не решил задачу — битва завершается без победителя
	f.participantRepo.On("FindWinner", uint(1)).Return(nil, apperrors.ErrNotFound)
	f.battleRepo.On("AtomicFinish", uint(1), mock.AnythingOfType("time.Time"), (*uint)(nil)).Return(nil)
	f.participantRepo.On("FailPending", uint(1)).Return(nil)
	f.participantRepo.On("ListByBattle", uint(1)).Return([]entity.Participant{}, nil)
	f.battleRepo.On("GetByID", uint(1)).Return(completed, nil).Once()

	battle, err := f.service.EndBattle(context.Background(), 1, 7)

	require.NoError(t, err)
	assert.Equal(t, entity.BattleStatusCompleted, battle.Status)
	f.userRepo.AssertNotCalled(t, "IncrementWins", mock.Anything)
}

func TestEndBattle_DoubleEndRace(t *testing.T) {
	f := newBattleServiceFixture()
	f.battleRepo.On("GetByID", uint(1)).Return(activeBattle(1, 7), nil)
	f.participantRepo.On("FindWinner", uint(1)).Return(nil, apperrors.ErrNotFound)
	// Битву уже завершил конкурирующий вызов: условный UPDATE не затронул строк
	f.battleRepo.On("AtomicFinish", uint(1), mock.AnythingOfType("time.Time"), (*uint)(nil)).
		Return(repository.ErrBattleNotActive)

	_, err := f.service.EndBattle(context.Background(), 1, 7)

	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	// Проигравшая сторона гонки не трогает ни участников, ни статистику
	f.participantRepo.AssertNotCalled(t, "FailPending", mock.Anything)
	f.userRepo.AssertNotCalled(t, "IncrementBattlesPlayed", mock.Anything)
}

func TestUpdateBattle_OnlyWhileWaiting(t *testing.T) {
	f := newBattleServiceFixture()
	f.battleRepo.On("GetByID", uint(1)).Return(activeBattle(1, 7), nil)

	newTitle := "Новое название"
	_, err := f.service.UpdateBattle(context.Background(), 1, 7, repository.BattleUpdate{Title: &newTitle})

	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	f.battleRepo.AssertNotCalled(t, "ApplyPatch", mock.Anything, mock.Anything)
}

func TestUpdateBattle_Success(t *testing.T) {
	f := newBattleServiceFixture()
	updated := waitingBattle(1, 7)
	updated.MaxDuration = 60

	f.battleRepo.On("GetByID", uint(1)).Return(waitingBattle(1, 7), nil).Once()
	maxDuration := 60
	patch := repository.BattleUpdate{MaxDuration: &maxDuration}
	f.battleRepo.On("ApplyPatch", uint(1), patch).Return(nil)
	f.battleRepo.On("GetByID", uint(1)).Return(updated, nil).Once()

	battle, err := f.service.UpdateBattle(context.Background(), 1, 7, patch)

	require.NoError(t, err)
	assert.Equal(t, 60, battle.MaxDuration)
}

func TestUpdateBattle_ProblemNotFound(t *testing.T) {
	f := newBattleServiceFixture()
	f.battleRepo.On("GetByID", uint(1)).Return(waitingBattle(1, 7), nil)
	f.problemRepo.On("GetByID", uint(99)).Return(nil, apperrors.ErrNotFound)

	problemID := uint(99)
	_, err := f.service.UpdateBattle(context.Background(), 1, 7, repository.BattleUpdate{ProblemID: &problemID})

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	f.battleRepo.AssertNotCalled(t, "ApplyPatch", mock.Anything, mock.Anything)
}

func TestDeleteBattle_ActiveCannotBeDeleted(t *testing.T) {
	f := newBattleServiceFixture()
	f.battleRepo.On("GetByID", uint(1)).Return(activeBattle(1, 7), nil)

	err := f.service.DeleteBattle(context.Background(), 1, 7, false)

	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	f.battleRepo.AssertNotCalled(t, "Delete", mock.Anything)
}

func TestDeleteBattle_OnlyCreatorOrAdmin(t *testing.T) {
	f := newBattleServiceFixture()
	f.battleRepo.On("GetByID", uint(1)).Return(waitingBattle(1, 7), nil)

	err := f.service.DeleteBattle(context.Background(), 1, 8, false)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	// Администратор может удалить чужую битву
	f.battleRepo.On("Delete", uint(1)).Return(nil)
	err = f.service.DeleteBattle(context.Background(), 1, 8, true)
	assert.NoError(t, err)
}

func TestTimeoutLoop_CompletesExpiredBattle(t *testing.T) {
	f := newBattleServiceFixture()
	completed := activeBattle(5, 7)
	completed.Status = entity.BattleStatusCompleted

	finished := make(chan struct{})
	f.participantRepo.On("FindWinner", uint(5)).Return(nil, apperrors.ErrNotFound)
	f.battleRepo.On("AtomicFinish", uint(5), mock.AnythingOfType("time.Time"), (*uint)(nil)).Return(nil)
	f.participantRepo.On("FailPending", uint(5)).Return(nil)
	f.participantRepo.On("ListByBattle", uint(5)).Return([]entity.Participant{}, nil)
	f.battleRepo.On("GetByID", uint(5)).Run(func(args mock.Arguments) {
		close(finished)
	}).Return(completed, nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.service.RunTimeoutLoop(ctx)

	// Дедлайн в прошлом: таймер срабатывает сразу
	f.service.scheduler.Arm(5, time.Now().Add(-time.Second))

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("битва не завершилась по истечении дедлайна")
	}
	f.battleRepo.AssertExpectations(t)
}

func TestStartBattle_TimerSurvivesRequestContextCancel(t *testing.T) {
	f := newBattleServiceFixture()
	// Нулевая длительность дает мгновенный дедлайн: таймер должен успеть
	// сработать, даже если контекст запроса уже отменен
	battle := waitingBattle(5, 7)
	battle.MaxDuration = 0
	f.battleRepo.On("GetByID", uint(5)).Return(battle, nil)
	f.participantRepo.On("CountSolvers", uint(5)).Return(int64(2), nil)
	f.battleRepo.On("AtomicStart", uint(5), mock.AnythingOfType("time.Time")).Return(nil)

	reqCtx, cancel := context.WithCancel(context.Background())
	_, err := f.service.StartBattle(reqCtx, 5, 7)
	require.NoError(t, err)
	// HTTP-запрос завершился, его контекст отменен
	cancel()

	select {
	case battleID := <-f.service.scheduler.GetTimeoutChannel():
		assert.Equal(t, uint(5), battleID)
	case <-time.After(2 * time.Second):
		t.Fatal("таймер дедлайна погас вместе с контекстом запроса")
	}
}

func TestEnsureDeadlineTimer_RearmsExpiredActiveBattle(t *testing.T) {
	f := newBattleServiceFixture()
	// Активная битва с давно прошедшим дедлайном и без таймера — ситуация
	// после рестарта процесса; подписка клиента должна восстановить таймер
	battle := activeBattle(6, 7)
	start := time.Now().Add(-time.Hour)
	battle.StartTime = &start
	f.battleRepo.On("GetByID", uint(6)).Return(battle, nil)

	f.service.EnsureDeadlineTimer(6)

	select {
	case battleID := <-f.service.scheduler.GetTimeoutChannel():
		assert.Equal(t, uint(6), battleID)
	case <-time.After(2 * time.Second):
		t.Fatal("таймер просроченной битвы не был восстановлен")
	}
}
