package service

import (
	"context"
	"fmt"
	"log"
	"time"
	"unicode/utf8"

	"github.com/aheroglu/devbattle-api/internal/domain/entity"
	"github.com/aheroglu/devbattle-api/internal/domain/repository"
	apperrors "github.com/aheroglu/devbattle-api/internal/pkg/errors"
	"github.com/aheroglu/devbattle-api/internal/service/battlemanager"
	"github.com/aheroglu/devbattle-api/internal/service/judge"
)

// Базовые очки по сложности битвы
var difficultyBaseScore = map[string]int{
	entity.BattleDifficultyEasy:   100,
	entity.BattleDifficultyMedium: 200,
	entity.BattleDifficultyHard:   300,
}

// SubmissionService прогоняет решения участников через судейский конвейер.
// Судейство выполняется в горутине запроса вне per-battle мьютекса: битва
// не блокируется на время прогона тестов.
type SubmissionService struct {
	battleRepo         repository.BattleRepository
	participantRepo    repository.ParticipantRepository
	submissionRepo     repository.SubmissionRepository
	problemRepo        repository.ProblemRepository
	judgeClient        *judge.Client
	participantService *ParticipantService
	notifier           *battlemanager.Notifier

	maxCodeSize int
}

// NewSubmissionService создает новый сервис сабмитов
func NewSubmissionService(
	battleRepo repository.BattleRepository,
	participantRepo repository.ParticipantRepository,
	submissionRepo repository.SubmissionRepository,
	problemRepo repository.ProblemRepository,
	judgeClient *judge.Client,
	participantService *ParticipantService,
	notifier *battlemanager.Notifier,
	maxCodeSize int,
) *SubmissionService {
	if maxCodeSize <= 0 {
		maxCodeSize = 10000
	}
	return &SubmissionService{
		battleRepo:         battleRepo,
		participantRepo:    participantRepo,
		submissionRepo:     submissionRepo,
		problemRepo:        problemRepo,
		judgeClient:        judgeClient,
		participantService: participantService,
		notifier:           notifier,
		maxCodeSize:        maxCodeSize,
	}
}

// Submit судит решение участника и сохраняет immutable-результат.
// Вердикт возвращается синхронно; судейские сбои наружу не выходят —
// движок недоступен означает вердикт RE, а не HTTP 500.
func (s *SubmissionService) Submit(ctx context.Context, battleID, userID uint, code string) (*entity.SubmissionResult, error) {
	if len(code) == 0 {
		return nil, fmt.Errorf("%w: code is required", apperrors.ErrValidation)
	}
	// Потолок задан в символах, не в байтах: многобайтные решения
	// считаем по рунам
	if utf8.RuneCountInString(code) > s.maxCodeSize {
		return nil, fmt.Errorf("%w: code exceeds %d characters", apperrors.ErrTooLarge, s.maxCodeSize)
	}

	battle, err := s.battleRepo.GetByID(battleID)
	if err != nil {
		return nil, err
	}
	if !battle.IsActive() {
		return nil, fmt.Errorf("%w: battle #%d is %s, submissions are accepted only while active", apperrors.ErrInvalidState, battleID, battle.Status)
	}

	participant, err := s.participantRepo.GetByBattleAndUser(battleID, userID)
	if err != nil {
		return nil, err
	}
	if !participant.IsSolver() {
		return nil, fmt.Errorf("%w: spectators cannot submit solutions", apperrors.ErrForbidden)
	}

	problem, err := s.problemRepo.GetByID(battle.ProblemID)
	if err != nil {
		return nil, err
	}

	// Судейство вне per-battle мьютекса: длительный прогон тестов
	// не должен блокировать жизненный цикл битвы
	verdict := s.judgeClient.Judge(ctx, code, battle.Language, problem.TestCases, problem.TimeLimitMs, problem.MemoryLimitKB)

	submittedAt := time.Now()
	result := &entity.SubmissionResult{
		BattleID:        battleID,
		ParticipantID:   participant.ID,
		Code:            code,
		Language:        battle.Language,
		Status:          verdict.Status,
		Stub:            verdict.Stub,
		ExecutionTimeMs: verdict.ExecutionTimeMs,
		MemoryUsageKB:   verdict.MemoryUsageKB,
		TestResults:     verdict.TestResults,
		TotalTests:      verdict.TotalTests,
		PassedTests:     verdict.PassedTests,
		ErrorMessage:    verdict.ErrorMessage,
		SubmittedAt:     submittedAt,
	}
	if err := s.submissionRepo.Create(result); err != nil {
		return nil, fmt.Errorf("failed to store submission result: %w", err)
	}

	s.notifier.SubmissionResult(battlemanager.SubmissionResultPayload{
		BattleID:        battleID,
		UserID:          userID,
		SubmissionID:    result.ID,
		Status:          result.Status,
		Stub:            result.Stub,
		PassedTests:     result.PassedTests,
		TotalTests:      result.TotalTests,
		ExecutionTimeMs: result.ExecutionTimeMs,
	})

	// Успех участника фиксируется только по настоящему AC: вердикт заглушки
	// помечен Stub и первенство не присуждает
	if verdict.IsAccepted() && !verdict.Stub {
		score := computeScore(battle, submittedAt)
		s.participantService.RecordSuccess(battleID, participant, submittedAt, score)
	}

	log.Printf("[SubmissionService] Сабмит #%d участника #%d в битве #%d: %s (%d/%d)",
		result.ID, participant.ID, battleID, result.Status, result.PassedTests, result.TotalTests)
	return result, nil
}

// ListByBattle возвращает все сабмиты битвы, новые первыми
func (s *SubmissionService) ListByBattle(battleID uint) ([]entity.SubmissionResult, error) {
	if _, err := s.battleRepo.GetByID(battleID); err != nil {
		return nil, err
	}
	return s.submissionRepo.ListByBattle(battleID)
}

// GetSubmission возвращает сабмит по ID
func (s *SubmissionService) GetSubmission(id uint) (*entity.SubmissionResult, error) {
	return s.submissionRepo.GetByID(id)
}

// computeScore считает очки за решение: база по сложности плюс бонус
// за каждую полную оставшуюся минуту
func computeScore(battle *entity.Battle, completionTime time.Time) int {
	base, ok := difficultyBaseScore[battle.Difficulty]
	if !ok {
		base = 100
	}

	remaining := battle.RemainingTime(completionTime)
	if remaining < 0 {
		remaining = 0
	}
	bonus := int(remaining / time.Minute)

	return base + bonus
}
