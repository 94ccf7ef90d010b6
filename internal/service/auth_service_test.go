package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/aheroglu/devbattle-api/internal/domain/entity"
	apperrors "github.com/aheroglu/devbattle-api/internal/pkg/errors"
	"github.com/aheroglu/devbattle-api/pkg/auth"
)

// ============================================================================
// Тесты AuthService: регистрация, вход, WS-тикеты
// ============================================================================

func newAuthServiceFixture(t *testing.T) (*AuthService, *MockUserRepository) {
	t.Helper()
	userRepo := new(MockUserRepository)
	jwtService, err := auth.NewJWTService("test-secret-key", 1, 60)
	require.NoError(t, err)
	service, err := NewAuthService(userRepo, jwtService)
	require.NoError(t, err)
	return service, userRepo
}

func hashedUser(id uint, username, email, password string) *entity.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	return &entity.User{
		ID:       id,
		Username: username,
		Email:    email,
		Password: string(hash),
		Role:     "user",
	}
}

func TestRegisterUser_Success(t *testing.T) {
	service, userRepo := newAuthServiceFixture(t)
	userRepo.On("GetByEmail", "alice@example.com").Return(nil, apperrors.ErrNotFound)
	userRepo.On("GetByUsername", "alice").Return(nil, apperrors.ErrNotFound)
	userRepo.On("Create", mock.MatchedBy(func(u *entity.User) bool {
		return u.Username == "alice" && u.Email == "alice@example.com" && u.Role == "user"
	})).Run(func(args mock.Arguments) {
		args.Get(0).(*entity.User).ID = 7
	}).Return(nil)

	user, err := service.RegisterUser(RegisterInput{
		Username: " alice ",
		Email:    "  Alice@Example.COM ",
		Password: "secret-password",
	})

	require.NoError(t, err)
	assert.Equal(t, uint(7), user.ID)
	// Email нормализуется, username очищается от пробелов
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, "alice", user.Username)
}

func TestRegisterUser_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input RegisterInput
	}{
		{"пустой username", RegisterInput{Username: "  ", Email: "a@b.com", Password: "secret-password"}},
		{"кривой email", RegisterInput{Username: "alice", Email: "not-an-email", Password: "secret-password"}},
		{"короткий пароль", RegisterInput{Username: "alice", Email: "a@b.com", Password: "short"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, userRepo := newAuthServiceFixture(t)
			_, err := service.RegisterUser(tt.input)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
			userRepo.AssertNotCalled(t, "Create", mock.Anything)
		})
	}
}

func TestRegisterUser_EmailTaken(t *testing.T) {
	service, userRepo := newAuthServiceFixture(t)
	userRepo.On("GetByEmail", "alice@example.com").
		Return(&entity.User{ID: 1, Email: "alice@example.com"}, nil)

	_, err := service.RegisterUser(RegisterInput{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "secret-password",
	})

	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestRegisterUser_UsernameTaken(t *testing.T) {
	service, userRepo := newAuthServiceFixture(t)
	userRepo.On("GetByEmail", "alice@example.com").Return(nil, apperrors.ErrNotFound)
	userRepo.On("GetByUsername", "alice").Return(&entity.User{ID: 2, Username: "alice"}, nil)

	_, err := service.RegisterUser(RegisterInput{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "secret-password",
	})

	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestLogin_Success(t *testing.T) {
	service, userRepo := newAuthServiceFixture(t)
	userRepo.On("GetByEmail", "alice@example.com").
		Return(hashedUser(7, "alice", "alice@example.com", "secret-password"), nil)

	token, user, err := service.Login("Alice@Example.com", "secret-password")

	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, uint(7), user.ID)
}

func TestLogin_WrongPassword(t *testing.T) {
	service, userRepo := newAuthServiceFixture(t)
	userRepo.On("GetByEmail", "alice@example.com").
		Return(hashedUser(7, "alice", "alice@example.com", "secret-password"), nil)

	_, _, err := service.Login("alice@example.com", "wrong-password")

	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestLogin_UnknownEmail(t *testing.T) {
	service, userRepo := newAuthServiceFixture(t)
	userRepo.On("GetByEmail", "ghost@example.com").Return(nil, apperrors.ErrNotFound)

	_, _, err := service.Login("ghost@example.com", "secret-password")

	// Несуществующий email неотличим от неверного пароля
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestGenerateWSTicket_RoundTrip(t *testing.T) {
	service, userRepo := newAuthServiceFixture(t)
	userRepo.On("GetByID", uint(7)).Return(&entity.User{ID: 7, Username: "alice"}, nil)

	ticket, err := service.GenerateWSTicket(7)
	require.NoError(t, err)

	jwtService, err := auth.NewJWTService("test-secret-key", 1, 60)
	require.NoError(t, err)
	claims, err := jwtService.ParseWSTicket(ticket)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "alice", claims.Username)

	// WS-тикет не проходит как токен доступа
	_, err = jwtService.ParseToken(ticket)
	assert.Error(t, err)
}
