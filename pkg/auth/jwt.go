package auth

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/aheroglu/devbattle-api/internal/domain/entity"
)

// JWTCustomClaims содержит пользовательские поля для токена
type JWTCustomClaims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
	// Usage отличает короткоживущий WS-тикет от обычного токена доступа
	Usage string `json:"usage,omitempty"`
}

// JWTService предоставляет методы для работы с JWT
type JWTService struct {
	secret         []byte
	expirationHrs  int
	wsTicketExpiry time.Duration
}

// NewJWTService создает новый сервис JWT и возвращает ошибку при проблемах
func NewJWTService(secret string, expirationHrs int, wsTicketExpirySec int) (*JWTService, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret is required for JWTService")
	}
	if expirationHrs <= 0 {
		expirationHrs = 24 // По умолчанию 24 часа
	}
	wsExpiry := time.Duration(wsTicketExpirySec) * time.Second
	if wsExpiry <= 0 {
		wsExpiry = 60 * time.Second // По умолчанию 60 секунд
	}

	return &JWTService{
		secret:         []byte(secret),
		expirationHrs:  expirationHrs,
		wsTicketExpiry: wsExpiry,
	}, nil
}

// GenerateToken создает новый JWT токен доступа для пользователя
func (s *JWTService) GenerateToken(user *entity.User) (string, error) {
	claims := &JWTCustomClaims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour * time.Duration(s.expirationHrs))),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "devbattle-api",
			Subject:   fmt.Sprintf("%d", user.ID),
			Audience:  jwt.ClaimStrings{"devbattle-user"},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		log.Printf("[JWT] Ошибка генерации токена для пользователя ID=%d: %v", user.ID, err)
		return "", err
	}

	return tokenString, nil
}

// ParseToken проверяет и расшифровывает JWT токен доступа
func (s *JWTService) ParseToken(tokenString string) (*JWTCustomClaims, error) {
	claims := &JWTCustomClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})

	if err != nil {
		if ve, ok := err.(*jwt.ValidationError); ok {
			switch {
			case ve.Errors&jwt.ValidationErrorMalformed != 0:
				return nil, errors.New("token is malformed")
			case ve.Errors&jwt.ValidationErrorExpired != 0:
				return nil, errors.New("token is expired")
			case ve.Errors&jwt.ValidationErrorNotValidYet != 0:
				return nil, errors.New("token not valid yet")
			case ve.Errors&jwt.ValidationErrorSignatureInvalid != 0:
				return nil, errors.New("signature is invalid")
			default:
				return nil, errors.New("token validation failed")
			}
		}
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	// WS-тикеты нельзя использовать как токены доступа
	if claims.Usage == "websocket_auth" {
		return nil, errors.New("ws ticket cannot be used as access token")
	}

	return claims, nil
}

// GenerateWSTicket создает короткоживущий JWT для аутентификации WebSocket.
// Тикет передается в query string при рукопожатии, поэтому его срок жизни
// измеряется секундами.
func (s *JWTService) GenerateWSTicket(userID uint, username string) (string, error) {
	claims := &JWTCustomClaims{
		UserID:   userID,
		Username: username,
		Usage:    "websocket_auth",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.wsTicketExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "devbattle-api",
			Subject:   fmt.Sprintf("%d", userID),
			Audience:  jwt.ClaimStrings{"devbattle-ws"},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		log.Printf("[JWT] Ошибка генерации WS-тикета для пользователя ID=%d: %v", userID, err)
		return "", err
	}

	log.Printf("[JWT] WS-тикет сгенерирован для пользователя ID=%d, истекает через %v", userID, s.wsTicketExpiry)
	return tokenString, nil
}

// ParseWSTicket проверяет JWT, используемый как WS тикет
func (s *JWTService) ParseWSTicket(ticketString string) (*JWTCustomClaims, error) {
	claims := &JWTCustomClaims{}

	token, err := jwt.ParseWithClaims(ticketString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})

	if err != nil {
		if ve, ok := err.(*jwt.ValidationError); ok {
			if ve.Errors&jwt.ValidationErrorExpired != 0 {
				return nil, errors.New("ticket is expired")
			}
		}
		return nil, fmt.Errorf("invalid ticket: %w", err)
	}

	if !token.Valid {
		return nil, errors.New("invalid ticket")
	}

	if claims.Usage != "websocket_auth" {
		return nil, errors.New("invalid ticket usage")
	}

	return claims, nil
}
