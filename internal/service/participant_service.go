package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/aheroglu/devbattle-api/internal/domain/entity"
	"github.com/aheroglu/devbattle-api/internal/domain/repository"
	apperrors "github.com/aheroglu/devbattle-api/internal/pkg/errors"
	"github.com/aheroglu/devbattle-api/internal/service/battlemanager"
)

// ParticipantInfo — сводка по участнику для списка участников битвы
type ParticipantInfo struct {
	ParticipantID  uint       `json:"participant_id"`
	UserID         uint       `json:"user_id"`
	Username       string     `json:"username"`
	Role           string     `json:"role"`
	Result         string     `json:"result"`
	JoinedAt       time.Time  `json:"joined_at"`
	CompletionTime *time.Time `json:"completion_time,omitempty"`
	Score          int        `json:"score"`
	LastStatus     string     `json:"last_status,omitempty"`
	LastStub       bool       `json:"last_stub,omitempty"`
	Attempts       int        `json:"attempts"`
}

// ParticipantService управляет членством пользователей в битвах
type ParticipantService struct {
	battleRepo      repository.BattleRepository
	participantRepo repository.ParticipantRepository
	submissionRepo  repository.SubmissionRepository
	userRepo        repository.UserRepository
	cacheRepo       repository.CacheRepository
	battleService   *BattleService
	notifier        *battlemanager.Notifier
}

// NewParticipantService создает новый сервис участников
func NewParticipantService(
	battleRepo repository.BattleRepository,
	participantRepo repository.ParticipantRepository,
	submissionRepo repository.SubmissionRepository,
	userRepo repository.UserRepository,
	cacheRepo repository.CacheRepository,
	battleService *BattleService,
	notifier *battlemanager.Notifier,
) *ParticipantService {
	return &ParticipantService{
		battleRepo:      battleRepo,
		participantRepo: participantRepo,
		submissionRepo:  submissionRepo,
		userRepo:        userRepo,
		cacheRepo:       cacheRepo,
		battleService:   battleService,
		notifier:        notifier,
	}
}

// rosterKey — ключ Redis-множества участников битвы
func rosterKey(battleID uint) string {
	return fmt.Sprintf("battle:%d:roster", battleID)
}

// Join добавляет пользователя в битву. Solver'ы входят только в waiting-битвы
// с учетом вместимости; spectator'ы — в waiting и active без ограничения.
func (s *ParticipantService) Join(ctx context.Context, battleID, userID uint, role string) (*entity.Participant, error) {
	if role != entity.ParticipantRoleSolver && role != entity.ParticipantRoleSpectator {
		return nil, fmt.Errorf("%w: role must be solver or spectator", apperrors.ErrValidation)
	}

	mu := s.battleService.battleLock(battleID)
	mu.Lock()
	defer mu.Unlock()

	battle, err := s.battleRepo.GetByID(battleID)
	if err != nil {
		return nil, err
	}

	switch role {
	case entity.ParticipantRoleSolver:
		if !battle.IsWaiting() {
			return nil, fmt.Errorf("%w: solvers can join only waiting battles", apperrors.ErrInvalidState)
		}
		// Вместимость считается только по solver'ам
		solvers, err := s.participantRepo.CountSolvers(battleID)
		if err != nil {
			return nil, err
		}
		if solvers >= int64(battle.MaxParticipants) {
			return nil, fmt.Errorf("%w: battle #%d is full (%d solvers)", apperrors.ErrCapacityExceeded, battleID, solvers)
		}
	case entity.ParticipantRoleSpectator:
		if battle.IsCompleted() {
			return nil, fmt.Errorf("%w: battle #%d is completed", apperrors.ErrInvalidState, battleID)
		}
	}

	participant := &entity.Participant{
		BattleID: battleID,
		UserID:   userID,
		Role:     role,
		Result:   entity.ParticipantResultPending,
		JoinedAt: time.Now(),
	}
	if err := s.participantRepo.Create(participant); err != nil {
		if errors.Is(err, repository.ErrDuplicateParticipant) {
			return nil, fmt.Errorf("%w: user #%d already joined battle #%d", apperrors.ErrConflict, userID, battleID)
		}
		return nil, fmt.Errorf("failed to join battle #%d: %w", battleID, err)
	}

	if err := s.cacheRepo.SAdd(rosterKey(battleID), strconv.FormatUint(uint64(userID), 10)); err != nil {
		log.Printf("[ParticipantService] Ошибка обновления ростера битвы #%d: %v", battleID, err)
	}

	s.notifier.ParticipantJoined(battlemanager.ParticipantJoinedPayload{
		BattleID: battleID,
		UserID:   userID,
		Username: s.usernameOf(userID),
		Role:     role,
	})

	log.Printf("[ParticipantService] Пользователь #%d вошел в битву #%d как %s", userID, battleID, role)
	return participant, nil
}

// Leave удаляет пользователя из битвы. Создатель покинуть битву не может,
// solver выходит только из еще не начавшейся битвы; spectator свободен
// выйти в любой момент.
func (s *ParticipantService) Leave(ctx context.Context, battleID, userID uint) error {
	mu := s.battleService.battleLock(battleID)
	mu.Lock()
	defer mu.Unlock()

	battle, err := s.battleRepo.GetByID(battleID)
	if err != nil {
		return err
	}
	if battle.CreatorID == userID {
		return ErrCreatorCannotLeave
	}

	participant, err := s.participantRepo.GetByBattleAndUser(battleID, userID)
	if err != nil {
		return err
	}
	if participant.IsSolver() && !battle.IsWaiting() {
		return fmt.Errorf("%w: solvers can leave only waiting battles", apperrors.ErrInvalidState)
	}

	if err := s.participantRepo.Delete(participant.ID); err != nil {
		return fmt.Errorf("failed to leave battle #%d: %w", battleID, err)
	}

	if err := s.cacheRepo.SRem(rosterKey(battleID), strconv.FormatUint(uint64(userID), 10)); err != nil {
		log.Printf("[ParticipantService] Ошибка обновления ростера битвы #%d: %v", battleID, err)
	}

	s.notifier.ParticipantLeft(battlemanager.ParticipantLeftPayload{
		BattleID: battleID,
		UserID:   userID,
		Username: s.usernameOf(userID),
	})

	log.Printf("[ParticipantService] Пользователь #%d покинул битву #%d", userID, battleID)
	return nil
}

// GetParticipant возвращает участника по паре (битва, пользователь)
func (s *ParticipantService) GetParticipant(battleID, userID uint) (*entity.Participant, error) {
	return s.participantRepo.GetByBattleAndUser(battleID, userID)
}

// ListParticipants возвращает сводку по участникам битвы: роль, результат
// и статус последнего сабмита. Последние сабмиты читаются одним запросом.
func (s *ParticipantService) ListParticipants(battleID uint) ([]ParticipantInfo, error) {
	if _, err := s.battleRepo.GetByID(battleID); err != nil {
		return nil, err
	}

	participants, err := s.participantRepo.ListByBattle(battleID)
	if err != nil {
		return nil, err
	}
	if len(participants) == 0 {
		return []ParticipantInfo{}, nil
	}

	ids := make([]uint, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.ID)
	}
	latest, err := s.submissionRepo.GetLatestForParticipants(ids)
	if err != nil {
		log.Printf("[ParticipantService] Ошибка чтения последних сабмитов битвы #%d: %v", battleID, err)
		latest = map[uint]*entity.SubmissionResult{}
	}

	counts := make(map[uint]int, len(participants))
	submissions, err := s.submissionRepo.ListByBattle(battleID)
	if err != nil {
		log.Printf("[ParticipantService] Ошибка подсчета сабмитов битвы #%d: %v", battleID, err)
	} else {
		for _, sub := range submissions {
			counts[sub.ParticipantID]++
		}
	}

	infos := make([]ParticipantInfo, 0, len(participants))
	for _, p := range participants {
		info := ParticipantInfo{
			ParticipantID:  p.ID,
			UserID:         p.UserID,
			Username:       s.usernameOf(p.UserID),
			Role:           p.Role,
			Result:         p.Result,
			JoinedAt:       p.JoinedAt,
			CompletionTime: p.CompletionTime,
			Score:          p.Score,
			Attempts:       counts[p.ID],
		}
		if sub, ok := latest[p.ID]; ok {
			info.LastStatus = sub.Status
			info.LastStub = sub.Stub
		}
		infos = append(infos, info)
	}

	return infos, nil
}

// RecordSuccess фиксирует первое успешное решение участника: ставит
// result=success с completion_time и рассылает событие. Повторные вызовы
// идемпотентны (условный UPDATE в репозитории).
func (s *ParticipantService) RecordSuccess(battleID uint, participant *entity.Participant, completionTime time.Time, score int) {
	updated, err := s.participantRepo.MarkSuccess(participant.ID, completionTime, score)
	if err != nil {
		log.Printf("[ParticipantService] Ошибка фиксации успеха участника #%d: %v", participant.ID, err)
		return
	}
	if !updated {
		// Участник уже решил задачу раньше, повторный AC ничего не меняет
		return
	}

	s.notifier.ParticipantCompleted(battlemanager.ParticipantCompletedPayload{
		BattleID:       battleID,
		UserID:         participant.UserID,
		Username:       s.usernameOf(participant.UserID),
		CompletionTime: completionTime,
		Score:          score,
	})

	log.Printf("[ParticipantService] Участник #%d решил задачу битвы #%d (score=%d)", participant.ID, battleID, score)
}

// UserByID возвращает пользователя по ID (для подписи событий)
func (s *ParticipantService) UserByID(userID uint) (*entity.User, error) {
	return s.userRepo.GetByID(userID)
}

// usernameOf возвращает имя пользователя; на ошибке — пустую строку,
// события присутствия важнее имени в них
func (s *ParticipantService) usernameOf(userID uint) string {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return ""
	}
	return user.Username
}
