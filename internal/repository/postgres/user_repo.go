package postgres

import (
	"errors"

	"gorm.io/gorm"

	"github.com/aheroglu/devbattle-api/internal/domain/entity"
	apperrors "github.com/aheroglu/devbattle-api/internal/pkg/errors"
)

// UserRepo реализует repository.UserRepository
type UserRepo struct {
	db *gorm.DB
}

// NewUserRepo создает новый репозиторий пользователей
func NewUserRepo(db *gorm.DB) *UserRepo {
	return &UserRepo{db: db}
}

// Create создает нового пользователя
func (r *UserRepo) Create(user *entity.User) error {
	return r.db.Create(user).Error
}

// GetByID возвращает пользователя по ID
func (r *UserRepo) GetByID(id uint) (*entity.User, error) {
	var user entity.User
	err := r.db.First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetByEmail возвращает пользователя по email
func (r *UserRepo) GetByEmail(email string) (*entity.User, error) {
	var user entity.User
	err := r.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetByUsername возвращает пользователя по имени пользователя
func (r *UserRepo) GetByUsername(username string) (*entity.User, error) {
	var user entity.User
	err := r.db.Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Update обновляет информацию о пользователе
func (r *UserRepo) Update(user *entity.User) error {
	return r.db.Save(user).Error
}

// IncrementBattlesPlayed атомарно увеличивает счетчик сыгранных битв через gorm.Expr
func (r *UserRepo) IncrementBattlesPlayed(userID uint) error {
	return r.db.Model(&entity.User{}).
		Where("id = ?", userID).
		UpdateColumn("battles_played", gorm.Expr("battles_played + ?", 1)).
		Error
}

// IncrementWins атомарно увеличивает счетчик побед через gorm.Expr
func (r *UserRepo) IncrementWins(userID uint) error {
	return r.db.Model(&entity.User{}).
		Where("id = ?", userID).
		UpdateColumn("wins_count", gorm.Expr("wins_count + ?", 1)).
		Error
}

// List возвращает список пользователей с пагинацией
func (r *UserRepo) List(limit, offset int) ([]entity.User, error) {
	var users []entity.User
	err := r.db.Limit(limit).Offset(offset).Order("id").Find(&users).Error
	return users, err
}
