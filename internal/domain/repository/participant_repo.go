package repository

import (
	"time"

	"github.com/aheroglu/devbattle-api/internal/domain/entity"
)

// ParticipantRepository определяет методы для работы с участниками битв
type ParticipantRepository interface {
	// Create вставляет нового участника. Нарушение уникальности (battle_id, user_id)
	// возвращается как ErrDuplicateParticipant.
	Create(participant *entity.Participant) error
	GetByID(id uint) (*entity.Participant, error)
	GetByBattleAndUser(battleID, userID uint) (*entity.Participant, error)
	// ListByBattle возвращает участников битвы, отсортированных по joined_at по возрастанию
	ListByBattle(battleID uint) ([]entity.Participant, error)
	// CountSolvers возвращает число участников с ролью solver
	CountSolvers(battleID uint) (int64, error)
	// MarkSuccess условно выставляет result=success, completion_time и score.
	// Обновление выполняется только если result еще не success; повторный вызов
	// возвращает false (идемпотентная защита — участник не может «выиграть» дважды).
	MarkSuccess(participantID uint, completionTime time.Time, score int) (bool, error)
	// FailPending помечает всех участников-solver'ов битвы со статусом pending как failure
	FailPending(battleID uint) error
	// FindWinner возвращает solver'а с result=success и самым ранним completion_time.
	// При равенстве времени детерминированно побеждает меньший ID участника.
	// Если успешных нет — ErrNotFound.
	FindWinner(battleID uint) (*entity.Participant, error)
	Delete(id uint) error
}
