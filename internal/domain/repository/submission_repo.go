package repository

import (
	"github.com/aheroglu/devbattle-api/internal/domain/entity"
)

// SubmissionRepository определяет методы для работы с результатами судейства.
// Записи immutable: только вставка и чтение.
type SubmissionRepository interface {
	Create(result *entity.SubmissionResult) error
	GetByID(id uint) (*entity.SubmissionResult, error)
	// ListByBattle возвращает все сабмиты битвы, новые первыми
	ListByBattle(battleID uint) ([]entity.SubmissionResult, error)
	// GetLatestByParticipant возвращает последний сабмит участника (или ErrNotFound)
	GetLatestByParticipant(participantID uint) (*entity.SubmissionResult, error)
	// GetLatestForParticipants возвращает последний сабмит для каждого из участников
	// одним запросом (для сводки в списке участников, без ORM-циклов)
	GetLatestForParticipants(participantIDs []uint) (map[uint]*entity.SubmissionResult, error)
	CountByBattle(battleID uint) (int64, error)
}
