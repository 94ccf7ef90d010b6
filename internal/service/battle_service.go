package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/aheroglu/devbattle-api/internal/domain/entity"
	"github.com/aheroglu/devbattle-api/internal/domain/repository"
	apperrors "github.com/aheroglu/devbattle-api/internal/pkg/errors"
	"github.com/aheroglu/devbattle-api/internal/service/battlemanager"
)

// Причины завершения битвы
const (
	EndedByCreator = "creator"
	EndedBySystem  = "system"
)

// CreateBattleInput — входные данные создания битвы
type CreateBattleInput struct {
	Title           string
	Difficulty      string
	Language        string
	MaxDuration     int // минуты
	MaxParticipants int
	ProblemID       uint
}

// BattleService управляет жизненным циклом битв: waiting → active → completed.
// Переходы каждой битвы упорядочены per-battle мьютексом, а терминальные
// переходы дополнительно защищены условным UPDATE в БД, так что гонка
// ручного и автоматического завершения всегда разрешается в одну сторону.
type BattleService struct {
	battleRepo      repository.BattleRepository
	participantRepo repository.ParticipantRepository
	problemRepo     repository.ProblemRepository
	userRepo        repository.UserRepository
	scheduler       *battlemanager.Scheduler
	notifier        *battlemanager.Notifier

	minSolversToStart int

	// Ключ: battleID, значение: *sync.Mutex
	locks sync.Map
}

// NewBattleService создает новый сервис битв
func NewBattleService(
	battleRepo repository.BattleRepository,
	participantRepo repository.ParticipantRepository,
	problemRepo repository.ProblemRepository,
	userRepo repository.UserRepository,
	scheduler *battlemanager.Scheduler,
	notifier *battlemanager.Notifier,
	minSolversToStart int,
) *BattleService {
	if minSolversToStart < 2 {
		minSolversToStart = 2
	}
	return &BattleService{
		battleRepo:        battleRepo,
		participantRepo:   participantRepo,
		problemRepo:       problemRepo,
		userRepo:          userRepo,
		scheduler:         scheduler,
		notifier:          notifier,
		minSolversToStart: minSolversToStart,
	}
}

// battleLock возвращает мьютекс конкретной битвы
func (s *BattleService) battleLock(battleID uint) *sync.Mutex {
	m, _ := s.locks.LoadOrStore(battleID, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// CreateBattle создает битву в статусе waiting. Создатель автоматически
// становится solver-участником.
func (s *BattleService) CreateBattle(ctx context.Context, creatorID uint, input CreateBattleInput) (*entity.Battle, error) {
	if err := validateBattleInput(&input); err != nil {
		return nil, err
	}

	if _, err := s.problemRepo.GetByID(input.ProblemID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: problem #%d does not exist", apperrors.ErrNotFound, input.ProblemID)
		}
		return nil, err
	}

	battle := &entity.Battle{
		Title:           input.Title,
		Difficulty:      input.Difficulty,
		Language:        input.Language,
		MaxDuration:     input.MaxDuration,
		MaxParticipants: input.MaxParticipants,
		Status:          entity.BattleStatusWaiting,
		CreatorID:       creatorID,
		ProblemID:       input.ProblemID,
	}

	if err := s.battleRepo.Create(battle); err != nil {
		return nil, fmt.Errorf("failed to create battle: %w", err)
	}

	// Создатель входит в битву как solver
	creator := &entity.Participant{
		BattleID: battle.ID,
		UserID:   creatorID,
		Role:     entity.ParticipantRoleSolver,
		Result:   entity.ParticipantResultPending,
		JoinedAt: time.Now(),
	}
	if err := s.participantRepo.Create(creator); err != nil {
		log.Printf("[BattleService] Ошибка авто-входа создателя #%d в битву #%d: %v", creatorID, battle.ID, err)
	}

	log.Printf("[BattleService] Битва #%d создана пользователем #%d", battle.ID, creatorID)
	return battle, nil
}

// GetBattle возвращает битву по ID
func (s *BattleService) GetBattle(battleID uint) (*entity.Battle, error) {
	return s.battleRepo.GetByID(battleID)
}

// ListBattles возвращает битвы с фильтрами и общим количеством
func (s *BattleService) ListBattles(filters repository.BattleFilters, limit, offset int) ([]entity.Battle, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.battleRepo.ListWithFilters(filters, limit, offset)
}

// UpdateBattle изменяет параметры битвы. Разрешено только создателю и только
// пока битва в статусе waiting.
func (s *BattleService) UpdateBattle(ctx context.Context, battleID, userID uint, patch repository.BattleUpdate) (*entity.Battle, error) {
	mu := s.battleLock(battleID)
	mu.Lock()
	defer mu.Unlock()

	battle, err := s.battleRepo.GetByID(battleID)
	if err != nil {
		return nil, err
	}
	if battle.CreatorID != userID {
		return nil, fmt.Errorf("%w: only the creator can update the battle", apperrors.ErrForbidden)
	}
	if !battle.IsWaiting() {
		return nil, fmt.Errorf("%w: battle #%d is %s", apperrors.ErrInvalidState, battleID, battle.Status)
	}

	if err := validateBattlePatch(patch); err != nil {
		return nil, err
	}
	if patch.ProblemID != nil {
		if _, err := s.problemRepo.GetByID(*patch.ProblemID); err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return nil, fmt.Errorf("%w: problem #%d does not exist", apperrors.ErrNotFound, *patch.ProblemID)
			}
			return nil, err
		}
	}

	if err := s.battleRepo.ApplyPatch(battleID, patch); err != nil {
		return nil, fmt.Errorf("failed to update battle #%d: %w", battleID, err)
	}

	return s.battleRepo.GetByID(battleID)
}

// StartBattle переводит битву waiting → active. Разрешено только создателю
// и только при достаточном числе solver'ов.
func (s *BattleService) StartBattle(ctx context.Context, battleID, userID uint) (*entity.Battle, error) {
	mu := s.battleLock(battleID)
	mu.Lock()
	defer mu.Unlock()

	battle, err := s.battleRepo.GetByID(battleID)
	if err != nil {
		return nil, err
	}
	if battle.CreatorID != userID {
		return nil, fmt.Errorf("%w: only the creator can start the battle", apperrors.ErrForbidden)
	}
	if !battle.IsWaiting() {
		return nil, fmt.Errorf("%w: battle #%d is %s", apperrors.ErrInvalidState, battleID, battle.Status)
	}

	solvers, err := s.participantRepo.CountSolvers(battleID)
	if err != nil {
		return nil, err
	}
	if solvers < int64(s.minSolversToStart) {
		return nil, fmt.Errorf("%w: %d of %d", ErrNotEnoughSolvers, solvers, s.minSolversToStart)
	}

	startTime := time.Now()
	if err := s.battleRepo.AtomicStart(battleID, startTime); err != nil {
		if errors.Is(err, repository.ErrBattleNotWaiting) {
			return nil, fmt.Errorf("%w: battle #%d is no longer waiting", apperrors.ErrInvalidState, battleID)
		}
		return nil, err
	}

	battle.Status = entity.BattleStatusActive
	battle.StartTime = &startTime

	deadline, _ := battle.Deadline()
	s.scheduler.Arm(battleID, deadline)

	s.notifier.BattleStarted(battlemanager.BattleStartedPayload{
		BattleID:  battleID,
		Title:     battle.Title,
		StartTime: startTime,
		Deadline:  deadline,
	})

	log.Printf("[BattleService] Битва #%d стартовала, дедлайн %v", battleID, deadline)
	return battle, nil
}

// EndBattle завершает битву вручную. Разрешено только создателю.
func (s *BattleService) EndBattle(ctx context.Context, battleID, userID uint) (*entity.Battle, error) {
	battle, err := s.battleRepo.GetByID(battleID)
	if err != nil {
		return nil, err
	}
	if battle.CreatorID != userID {
		return nil, fmt.Errorf("%w: only the creator can end the battle", apperrors.ErrForbidden)
	}

	return s.finishBattle(ctx, battleID, EndedByCreator)
}

// ForceEndBattle завершает битву от имени администратора
func (s *BattleService) ForceEndBattle(ctx context.Context, battleID uint) (*entity.Battle, error) {
	return s.finishBattle(ctx, battleID, EndedBySystem)
}

// finishBattle выполняет переход active → completed: выбирает победителя,
// помечает нерешивших как failure, обновляет статистику и снимает таймер.
func (s *BattleService) finishBattle(ctx context.Context, battleID uint, endedBy string) (*entity.Battle, error) {
	mu := s.battleLock(battleID)
	mu.Lock()
	defer mu.Unlock()

	// Победитель: успешный solver с самым ранним completion_time
	var winnerID *uint
	winner, err := s.participantRepo.FindWinner(battleID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}
	if winner != nil {
		winnerID = &winner.UserID
	}

	endTime := time.Now()
	if err := s.battleRepo.AtomicFinish(battleID, endTime, winnerID); err != nil {
		if errors.Is(err, repository.ErrBattleNotActive) {
			// Битву уже завершил конкурирующий вызов (таймер против ручного end)
			return nil, fmt.Errorf("%w: battle #%d is not active", apperrors.ErrInvalidState, battleID)
		}
		return nil, err
	}

	s.scheduler.Disarm(battleID)

	if err := s.participantRepo.FailPending(battleID); err != nil {
		log.Printf("[BattleService] Ошибка пометки нерешивших участников битвы #%d: %v", battleID, err)
	}

	s.updateUserStats(battleID, winnerID)

	battle, err := s.battleRepo.GetByID(battleID)
	if err != nil {
		return nil, err
	}

	if endedBy == EndedBySystem {
		s.notifier.BattleTimeout(battlemanager.BattleTimeoutPayload{
			BattleID: battleID,
			EndTime:  endTime,
			WinnerID: winnerID,
		})
	} else {
		s.notifier.BattleEnded(battlemanager.BattleEndedPayload{
			BattleID: battleID,
			EndTime:  endTime,
			WinnerID: winnerID,
			EndedBy:  endedBy,
		})
	}

	log.Printf("[BattleService] Битва #%d завершена (%s), победитель: %v", battleID, endedBy, winnerID)
	return battle, nil
}

// updateUserStats обновляет счетчики сыгранных битв и побед
func (s *BattleService) updateUserStats(battleID uint, winnerID *uint) {
	participants, err := s.participantRepo.ListByBattle(battleID)
	if err != nil {
		log.Printf("[BattleService] Ошибка чтения участников битвы #%d для статистики: %v", battleID, err)
		return
	}

	for _, p := range participants {
		if !p.IsSolver() {
			continue
		}
		if err := s.userRepo.IncrementBattlesPlayed(p.UserID); err != nil {
			log.Printf("[BattleService] Ошибка инкремента battles_played пользователя #%d: %v", p.UserID, err)
		}
	}

	if winnerID != nil {
		if err := s.userRepo.IncrementWins(*winnerID); err != nil {
			log.Printf("[BattleService] Ошибка инкремента wins_count пользователя #%d: %v", *winnerID, err)
		}
	}
}

// DeleteBattle удаляет битву. Разрешено создателю (или администратору),
// активную битву удалить нельзя.
func (s *BattleService) DeleteBattle(ctx context.Context, battleID, userID uint, isAdmin bool) error {
	mu := s.battleLock(battleID)
	mu.Lock()
	defer mu.Unlock()

	battle, err := s.battleRepo.GetByID(battleID)
	if err != nil {
		return err
	}
	if battle.CreatorID != userID && !isAdmin {
		return fmt.Errorf("%w: only the creator can delete the battle", apperrors.ErrForbidden)
	}
	if battle.IsActive() {
		return fmt.Errorf("%w: active battle cannot be deleted", apperrors.ErrInvalidState)
	}

	if err := s.battleRepo.Delete(battleID); err != nil {
		return fmt.Errorf("failed to delete battle #%d: %w", battleID, err)
	}

	s.locks.Delete(battleID)
	log.Printf("[BattleService] Битва #%d удалена пользователем #%d", battleID, userID)
	return nil
}

// RunTimeoutLoop потребляет сигналы планировщика об истечении дедлайнов.
// Блокируется до отмены контекста; запускается одной горутиной при старте.
func (s *BattleService) RunTimeoutLoop(ctx context.Context) {
	log.Println("[BattleService] Запуск цикла обработки дедлайнов битв")
	for {
		select {
		case battleID, ok := <-s.scheduler.GetTimeoutChannel():
			if !ok {
				return
			}
			if _, err := s.finishBattle(ctx, battleID, EndedBySystem); err != nil {
				if errors.Is(err, apperrors.ErrInvalidState) {
					// Битву уже завершили вручную — таймер сработал вхолостую
					log.Printf("[BattleService] Таймаут битвы #%d проигнорирован: уже завершена", battleID)
					continue
				}
				log.Printf("[BattleService] Ошибка завершения битвы #%d по таймауту: %v", battleID, err)
			}
		case <-ctx.Done():
			log.Println("[BattleService] Остановка цикла обработки дедлайнов")
			return
		}
	}
}

// RearmActiveBattles восстанавливает таймеры активных битв после рестарта
func (s *BattleService) RearmActiveBattles() error {
	return s.scheduler.RearmActive()
}

// EnsureDeadlineTimer взводит таймер дедлайна битвы, если она активна и
// таймер еще не взведен. Вызывается при подписке клиента на битву: после
// рестарта процесса переподключение первого же наблюдателя восстанавливает
// таймер с оставшимся от start_time временем.
func (s *BattleService) EnsureDeadlineTimer(battleID uint) {
	battle, err := s.battleRepo.GetByID(battleID)
	if err != nil {
		log.Printf("[BattleService] Ошибка чтения битвы #%d для проверки таймера: %v", battleID, err)
		return
	}
	s.scheduler.Ensure(battle)
}

func validateBattleInput(input *CreateBattleInput) error {
	input.Title = strings.TrimSpace(input.Title)
	if input.Title == "" {
		return fmt.Errorf("%w: title is required", apperrors.ErrValidation)
	}
	if len(input.Title) > 100 {
		return fmt.Errorf("%w: title is too long", apperrors.ErrValidation)
	}
	if !isValidDifficulty(input.Difficulty) {
		return fmt.Errorf("%w: difficulty must be one of easy, medium, hard", apperrors.ErrValidation)
	}
	if strings.TrimSpace(input.Language) == "" {
		return fmt.Errorf("%w: language is required", apperrors.ErrValidation)
	}
	if input.MaxDuration < 5 || input.MaxDuration > 180 {
		return fmt.Errorf("%w: max_duration must be between 5 and 180 minutes", apperrors.ErrValidation)
	}
	if input.MaxParticipants < 2 || input.MaxParticipants > 50 {
		return fmt.Errorf("%w: max_participants must be between 2 and 50", apperrors.ErrValidation)
	}
	if input.ProblemID == 0 {
		return fmt.Errorf("%w: problem_id is required", apperrors.ErrValidation)
	}
	return nil
}

func validateBattlePatch(patch repository.BattleUpdate) error {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return fmt.Errorf("%w: title cannot be empty", apperrors.ErrValidation)
	}
	if patch.Difficulty != nil && !isValidDifficulty(*patch.Difficulty) {
		return fmt.Errorf("%w: difficulty must be one of easy, medium, hard", apperrors.ErrValidation)
	}
	if patch.Language != nil && strings.TrimSpace(*patch.Language) == "" {
		return fmt.Errorf("%w: language cannot be empty", apperrors.ErrValidation)
	}
	if patch.MaxDuration != nil && (*patch.MaxDuration < 5 || *patch.MaxDuration > 180) {
		return fmt.Errorf("%w: max_duration must be between 5 and 180 minutes", apperrors.ErrValidation)
	}
	if patch.MaxParticipants != nil && (*patch.MaxParticipants < 2 || *patch.MaxParticipants > 50) {
		return fmt.Errorf("%w: max_participants must be between 2 and 50", apperrors.ErrValidation)
	}
	return nil
}

func isValidDifficulty(difficulty string) bool {
	switch difficulty {
	case entity.BattleDifficultyEasy, entity.BattleDifficultyMedium, entity.BattleDifficultyHard:
		return true
	}
	return false
}
