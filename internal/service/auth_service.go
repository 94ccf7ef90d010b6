package service

import (
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"

	"github.com/aheroglu/devbattle-api/internal/domain/entity"
	"github.com/aheroglu/devbattle-api/internal/domain/repository"
	apperrors "github.com/aheroglu/devbattle-api/internal/pkg/errors"
	"github.com/aheroglu/devbattle-api/pkg/auth"
)

// AuthService предоставляет методы для работы с аутентификацией и пользователями
type AuthService struct {
	userRepo   repository.UserRepository
	jwtService *auth.JWTService
}

// RegisterInput содержит данные для регистрации
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// NewAuthService создает новый сервис аутентификации
func NewAuthService(userRepo repository.UserRepository, jwtService *auth.JWTService) (*AuthService, error) {
	if userRepo == nil {
		return nil, fmt.Errorf("UserRepository is required for AuthService")
	}
	if jwtService == nil {
		return nil, fmt.Errorf("JWTService is required for AuthService")
	}
	return &AuthService{
		userRepo:   userRepo,
		jwtService: jwtService,
	}, nil
}

// RegisterUser регистрирует нового пользователя
func (s *AuthService) RegisterUser(input RegisterInput) (*entity.User, error) {
	input.Email = normalizeEmail(input.Email)
	input.Username = strings.TrimSpace(input.Username)

	if input.Username == "" || len(input.Username) > 50 {
		return nil, fmt.Errorf("%w: username must be 1-50 characters", apperrors.ErrValidation)
	}
	if _, err := mail.ParseAddress(input.Email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", apperrors.ErrValidation)
	}
	if len(input.Password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", apperrors.ErrValidation)
	}

	if existing, err := s.userRepo.GetByEmail(input.Email); err == nil && existing != nil {
		return nil, fmt.Errorf("%w: email is already taken", apperrors.ErrConflict)
	} else if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}
	if existing, err := s.userRepo.GetByUsername(input.Username); err == nil && existing != nil {
		return nil, fmt.Errorf("%w: username is already taken", apperrors.ErrConflict)
	} else if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	user := &entity.User{
		Username: input.Username,
		Email:    input.Email,
		Password: input.Password, // хешируется в BeforeSave
		Role:     "user",
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, fmt.Errorf("failed to register user: %w", err)
	}

	log.Printf("[AuthService] Зарегистрирован пользователь #%d (%s)", user.ID, user.Username)
	return user, nil
}

// Login проверяет учетные данные и возвращает токен доступа
func (s *AuthService) Login(email, password string) (string, *entity.User, error) {
	email = normalizeEmail(email)

	user, err := s.userRepo.GetByEmail(email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return "", nil, fmt.Errorf("%w: invalid email or password", apperrors.ErrUnauthorized)
		}
		return "", nil, err
	}

	if !user.CheckPassword(password) {
		return "", nil, fmt.Errorf("%w: invalid email or password", apperrors.ErrUnauthorized)
	}

	token, err := s.jwtService.GenerateToken(user)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	log.Printf("[AuthService] Пользователь #%d вошел в систему", user.ID)
	return token, user, nil
}

// GetUser возвращает пользователя по ID
func (s *AuthService) GetUser(userID uint) (*entity.User, error) {
	return s.userRepo.GetByID(userID)
}

// GenerateWSTicket выдает короткоживущий тикет для WebSocket-рукопожатия
func (s *AuthService) GenerateWSTicket(userID uint) (string, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return "", err
	}
	return s.jwtService.GenerateWSTicket(user.ID, user.Username)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
