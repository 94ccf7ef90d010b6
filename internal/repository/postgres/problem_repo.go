package postgres

import (
	"errors"

	"gorm.io/gorm"

	"github.com/aheroglu/devbattle-api/internal/domain/entity"
	apperrors "github.com/aheroglu/devbattle-api/internal/pkg/errors"
)

// ProblemRepo реализует repository.ProblemRepository
type ProblemRepo struct {
	db *gorm.DB
}

// NewProblemRepo создает новый репозиторий задач
func NewProblemRepo(db *gorm.DB) *ProblemRepo {
	return &ProblemRepo{db: db}
}

// Create создает новую задачу
func (r *ProblemRepo) Create(problem *entity.Problem) error {
	return r.db.Create(problem).Error
}

// GetByID возвращает задачу по ID
func (r *ProblemRepo) GetByID(id uint) (*entity.Problem, error) {
	var problem entity.Problem
	err := r.db.First(&problem, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &problem, nil
}

// List возвращает список задач с пагинацией
func (r *ProblemRepo) List(limit, offset int) ([]entity.Problem, error) {
	var problems []entity.Problem
	err := r.db.Limit(limit).Offset(offset).Order("id").Find(&problems).Error
	return problems, err
}

// Update обновляет задачу
func (r *ProblemRepo) Update(problem *entity.Problem) error {
	return r.db.Save(problem).Error
}

// Delete удаляет задачу
func (r *ProblemRepo) Delete(id uint) error {
	return r.db.Delete(&entity.Problem{}, id).Error
}
