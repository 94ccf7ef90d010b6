package postgres

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/aheroglu/devbattle-api/internal/domain/entity"
	"github.com/aheroglu/devbattle-api/internal/domain/repository"
	apperrors "github.com/aheroglu/devbattle-api/internal/pkg/errors"
)

// ParticipantRepo реализует repository.ParticipantRepository
type ParticipantRepo struct {
	db *gorm.DB
}

// NewParticipantRepo создает новый репозиторий участников
func NewParticipantRepo(db *gorm.DB) *ParticipantRepo {
	return &ParticipantRepo{db: db}
}

// Create вставляет нового участника. Уникальный индекс (battle_id, user_id)
// страхует от гонки двух одновременных join — 23505 превращается в
// ErrDuplicateParticipant, а не в голую ошибку драйвера.
func (r *ParticipantRepo) Create(participant *entity.Participant) error {
	err := r.db.Create(participant).Error
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: battle #%d, user #%d",
				repository.ErrDuplicateParticipant, participant.BattleID, participant.UserID)
		}
		return err
	}
	return nil
}

// GetByID возвращает участника по ID
func (r *ParticipantRepo) GetByID(id uint) (*entity.Participant, error) {
	var participant entity.Participant
	err := r.db.First(&participant, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &participant, nil
}

// GetByBattleAndUser возвращает участие пользователя в конкретной битве
func (r *ParticipantRepo) GetByBattleAndUser(battleID, userID uint) (*entity.Participant, error) {
	var participant entity.Participant
	err := r.db.Where("battle_id = ? AND user_id = ?", battleID, userID).
		First(&participant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &participant, nil
}

// ListByBattle возвращает участников битвы в порядке присоединения
func (r *ParticipantRepo) ListByBattle(battleID uint) ([]entity.Participant, error) {
	var participants []entity.Participant
	err := r.db.Where("battle_id = ?", battleID).
		Order("joined_at ASC, id ASC").
		Find(&participants).Error
	if err != nil {
		return nil, err
	}
	return participants, nil
}

// CountSolvers возвращает число участников с ролью solver
func (r *ParticipantRepo) CountSolvers(battleID uint) (int64, error) {
	var count int64
	err := r.db.Model(&entity.Participant{}).
		Where("battle_id = ? AND role = ?", battleID, entity.ParticipantRoleSolver).
		Count(&count).Error
	return count, err
}

// MarkSuccess условно выставляет result=success, completion_time и score.
// Условие `result <> success` делает повторный вызов no-op'ом:
// участник не может завершить битву дважды.
func (r *ParticipantRepo) MarkSuccess(participantID uint, completionTime time.Time, score int) (bool, error) {
	result := r.db.Model(&entity.Participant{}).
		Where("id = ? AND result <> ?", participantID, entity.ParticipantResultSuccess).
		Updates(map[string]interface{}{
			"result":          entity.ParticipantResultSuccess,
			"completion_time": completionTime,
			"score":           score,
		})

	if result.Error != nil {
		return false, fmt.Errorf("mark success for participant #%d failed: %w", participantID, result.Error)
	}

	return result.RowsAffected > 0, nil
}

// FailPending помечает всех solver'ов битвы со статусом pending как failure
func (r *ParticipantRepo) FailPending(battleID uint) error {
	return r.db.Model(&entity.Participant{}).
		Where("battle_id = ? AND role = ? AND result = ?",
			battleID, entity.ParticipantRoleSolver, entity.ParticipantResultPending).
		Update("result", entity.ParticipantResultFailure).
		Error
}

// FindWinner возвращает solver'а с result=success и самым ранним completion_time.
// Вторичная сортировка по ID детерминированно разрешает равенство времен.
func (r *ParticipantRepo) FindWinner(battleID uint) (*entity.Participant, error) {
	var participant entity.Participant
	err := r.db.Where("battle_id = ? AND role = ? AND result = ?",
		battleID, entity.ParticipantRoleSolver, entity.ParticipantResultSuccess).
		Order("completion_time ASC, id ASC").
		First(&participant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &participant, nil
}

// Delete удаляет участника (leave из битвы в статусе waiting)
func (r *ParticipantRepo) Delete(id uint) error {
	return r.db.Delete(&entity.Participant{}, id).Error
}

// isUniqueViolation проверяет Postgres unique violation (23505) для pgconn и lib/pq драйверов
func isUniqueViolation(err error) bool {
	// pgx/v5 driver (pgconn.PgError)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	// lib/pq driver
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}
	return false
}
