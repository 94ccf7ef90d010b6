package postgres

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/aheroglu/devbattle-api/internal/domain/entity"
	"github.com/aheroglu/devbattle-api/internal/domain/repository"
	apperrors "github.com/aheroglu/devbattle-api/internal/pkg/errors"
)

// BattleRepo реализует repository.BattleRepository
type BattleRepo struct {
	db *gorm.DB
}

// NewBattleRepo создает новый репозиторий битв
func NewBattleRepo(db *gorm.DB) *BattleRepo {
	return &BattleRepo{db: db}
}

// Create создает новую битву
func (r *BattleRepo) Create(battle *entity.Battle) error {
	return r.db.Create(battle).Error
}

// GetByID возвращает битву по ID
func (r *BattleRepo) GetByID(id uint) (*entity.Battle, error) {
	var battle entity.Battle
	err := r.db.First(&battle, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &battle, nil
}

// GetActive возвращает все активные битвы (для восстановления таймеров после рестарта)
func (r *BattleRepo) GetActive() ([]entity.Battle, error) {
	var battles []entity.Battle
	err := r.db.Where("status = ?", entity.BattleStatusActive).
		Order("start_time").
		Find(&battles).Error
	if err != nil {
		return nil, err
	}
	return battles, nil
}

// ApplyPatch точечно обновляет изменяемые поля битвы без полного Save
func (r *BattleRepo) ApplyPatch(battleID uint, patch repository.BattleUpdate) error {
	updates := map[string]interface{}{}
	if patch.Title != nil {
		updates["title"] = *patch.Title
	}
	if patch.Difficulty != nil {
		updates["difficulty"] = *patch.Difficulty
	}
	if patch.Language != nil {
		updates["language"] = *patch.Language
	}
	if patch.MaxDuration != nil {
		updates["max_duration"] = *patch.MaxDuration
	}
	if patch.MaxParticipants != nil {
		updates["max_participants"] = *patch.MaxParticipants
	}
	if patch.ProblemID != nil {
		updates["problem_id"] = *patch.ProblemID
	}
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now()

	return r.db.Model(&entity.Battle{}).
		Where("id = ?", battleID).
		Updates(updates).Error
}

// AtomicStart атомарно переводит waiting → active.
// - RowsAffected == 0 → "битва не waiting" (её уже стартовали или завершили)
// - Другая DB ошибка → возвращается как есть
func (r *BattleRepo) AtomicStart(battleID uint, startTime time.Time) error {
	result := r.db.Model(&entity.Battle{}).
		Where("id = ? AND status = ?", battleID, entity.BattleStatusWaiting).
		Updates(map[string]interface{}{
			"status":     entity.BattleStatusActive,
			"start_time": startTime,
		})

	if result.Error != nil {
		return fmt.Errorf("start battle #%d failed: %w", battleID, result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: battle #%d", repository.ErrBattleNotWaiting, battleID)
	}

	return nil
}

// AtomicFinish атомарно переводит active → completed, выставляя end_time и winner_id.
// RowsAffected == 0 разрешает гонку ручного и автоматического завершения:
// побеждает первый UPDATE, второй получает ErrBattleNotActive.
func (r *BattleRepo) AtomicFinish(battleID uint, endTime time.Time, winnerID *uint) error {
	updates := map[string]interface{}{
		"status":   entity.BattleStatusCompleted,
		"end_time": endTime,
	}
	if winnerID != nil {
		updates["winner_id"] = *winnerID
	}

	result := r.db.Model(&entity.Battle{}).
		Where("id = ? AND status = ?", battleID, entity.BattleStatusActive).
		Updates(updates)

	if result.Error != nil {
		return fmt.Errorf("finish battle #%d failed: %w", battleID, result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: battle #%d", repository.ErrBattleNotActive, battleID)
	}

	return nil
}

// List возвращает список битв с пагинацией
func (r *BattleRepo) List(limit, offset int) ([]entity.Battle, error) {
	var battles []entity.Battle
	err := r.db.Limit(limit).Offset(offset).Order("id DESC").Find(&battles).Error
	return battles, err
}

// ListWithFilters возвращает список битв с фильтрами и total count
func (r *BattleRepo) ListWithFilters(filters repository.BattleFilters, limit, offset int) ([]entity.Battle, int64, error) {
	var battles []entity.Battle
	var total int64

	query := r.db.Model(&entity.Battle{})

	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}

	if filters.Difficulty != "" {
		query = query.Where("difficulty = ?", filters.Difficulty)
	}

	if filters.Language != "" {
		query = query.Where("language = ?", filters.Language)
	}

	if filters.Search != "" {
		search := "%" + filters.Search + "%"
		query = query.Where("title ILIKE ?", search)
	}

	if filters.DateFrom != nil {
		query = query.Where("created_at >= ?", *filters.DateFrom)
	}

	if filters.DateTo != nil {
		query = query.Where("created_at <= ?", *filters.DateTo)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Limit(limit).Offset(offset).Order("id DESC").Find(&battles).Error
	if err != nil {
		return nil, 0, err
	}

	return battles, total, nil
}

// Delete удаляет битву
func (r *BattleRepo) Delete(id uint) error {
	return r.db.Delete(&entity.Battle{}, id).Error
}
