package repository

import (
	"time"

	"github.com/aheroglu/devbattle-api/internal/domain/entity"
)

// BattleFilters определяет фильтры для поиска битв
type BattleFilters struct {
	Status     string     // Фильтр по статусу (waiting, active, completed)
	Difficulty string     // Фильтр по сложности
	Language   string     // Фильтр по языку
	Search     string     // Поиск по названию
	DateFrom   *time.Time // Фильтр по дате создания
	DateTo     *time.Time
}

// BattleUpdate описывает частичное обновление битвы в статусе waiting.
// Неуказанные (nil) поля сохраняют прежние значения.
type BattleUpdate struct {
	Title           *string
	Difficulty      *string
	Language        *string
	MaxDuration     *int
	MaxParticipants *int
	ProblemID       *uint
}

// BattleRepository определяет методы для работы с битвами
type BattleRepository interface {
	Create(battle *entity.Battle) error
	GetByID(id uint) (*entity.Battle, error)
	// GetActive возвращает все битвы в статусе active (для восстановления таймеров после рестарта)
	GetActive() ([]entity.Battle, error)
	// ApplyPatch точечно обновляет изменяемые поля битвы без полного Save
	ApplyPatch(battleID uint, patch BattleUpdate) error
	// AtomicStart атомарно переводит waiting → active и выставляет start_time.
	// RowsAffected == 0 означает, что битва не в статусе waiting.
	AtomicStart(battleID uint, startTime time.Time) error
	// AtomicFinish атомарно переводит active → completed, выставляя end_time и winner_id.
	// RowsAffected == 0 означает, что битва не в статусе active (например, её уже
	// завершил другой вызов end — гонка ручного и автоматического завершения).
	AtomicFinish(battleID uint, endTime time.Time, winnerID *uint) error
	List(limit, offset int) ([]entity.Battle, error)
	ListWithFilters(filters BattleFilters, limit, offset int) ([]entity.Battle, int64, error)
	Delete(id uint) error
}
