package postgres

import (
	"errors"

	"gorm.io/gorm"

	"github.com/aheroglu/devbattle-api/internal/domain/entity"
	apperrors "github.com/aheroglu/devbattle-api/internal/pkg/errors"
)

// SubmissionRepo реализует repository.SubmissionRepository
type SubmissionRepo struct {
	db *gorm.DB
}

// NewSubmissionRepo создает новый репозиторий результатов судейства
func NewSubmissionRepo(db *gorm.DB) *SubmissionRepo {
	return &SubmissionRepo{db: db}
}

// Create сохраняет результат судейства. Записи не обновляются после вставки.
func (r *SubmissionRepo) Create(result *entity.SubmissionResult) error {
	return r.db.Create(result).Error
}

// GetByID возвращает результат по ID
func (r *SubmissionRepo) GetByID(id uint) (*entity.SubmissionResult, error) {
	var result entity.SubmissionResult
	err := r.db.First(&result, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &result, nil
}

// ListByBattle возвращает все сабмиты битвы, новые первыми
func (r *SubmissionRepo) ListByBattle(battleID uint) ([]entity.SubmissionResult, error) {
	var results []entity.SubmissionResult
	err := r.db.Where("battle_id = ?", battleID).
		Order("submitted_at DESC, id DESC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// GetLatestByParticipant возвращает последний сабмит участника
func (r *SubmissionRepo) GetLatestByParticipant(participantID uint) (*entity.SubmissionResult, error) {
	var result entity.SubmissionResult
	err := r.db.Where("participant_id = ?", participantID).
		Order("submitted_at DESC, id DESC").
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &result, nil
}

// GetLatestForParticipants возвращает последний сабмит каждого участника одним запросом.
// DISTINCT ON — постгресовый способ взять первую строку каждой группы
// без N+1 запросов при сборке списка участников.
func (r *SubmissionRepo) GetLatestForParticipants(participantIDs []uint) (map[uint]*entity.SubmissionResult, error) {
	latest := make(map[uint]*entity.SubmissionResult, len(participantIDs))
	if len(participantIDs) == 0 {
		return latest, nil
	}

	var results []entity.SubmissionResult
	err := r.db.
		Raw(`SELECT DISTINCT ON (participant_id) *
		     FROM submission_results
		     WHERE participant_id IN ?
		     ORDER BY participant_id, submitted_at DESC, id DESC`, participantIDs).
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	for i := range results {
		res := results[i]
		latest[res.ParticipantID] = &res
	}
	return latest, nil
}

// CountByBattle возвращает число сабмитов в битве
func (r *SubmissionRepo) CountByBattle(battleID uint) (int64, error) {
	var count int64
	err := r.db.Model(&entity.SubmissionResult{}).
		Where("battle_id = ?", battleID).
		Count(&count).Error
	return count, err
}
