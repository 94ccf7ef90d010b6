package repository

import (
	"github.com/aheroglu/devbattle-api/internal/domain/entity"
)

// ProblemRepository определяет методы для работы с задачами
type ProblemRepository interface {
	Create(problem *entity.Problem) error
	GetByID(id uint) (*entity.Problem, error)
	List(limit, offset int) ([]entity.Problem, error)
	Update(problem *entity.Problem) error
	Delete(id uint) error
}
