package repository

import (
	"github.com/aheroglu/devbattle-api/internal/domain/entity"
)

// UserRepository определяет методы для работы с пользователями
type UserRepository interface {
	Create(user *entity.User) error
	GetByID(id uint) (*entity.User, error)
	GetByEmail(email string) (*entity.User, error)
	GetByUsername(username string) (*entity.User, error)
	Update(user *entity.User) error
	// IncrementBattlesPlayed атомарно увеличивает счетчик сыгранных битв
	IncrementBattlesPlayed(userID uint) error
	// IncrementWins атомарно увеличивает счетчик побед
	IncrementWins(userID uint) error
	List(limit, offset int) ([]entity.User, error)
}
