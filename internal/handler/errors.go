package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/aheroglu/devbattle-api/internal/pkg/errors"
	"github.com/aheroglu/devbattle-api/internal/service"
)

// respondError переводит ошибку сервисного слоя в HTTP-ответ.
// Таксономия ошибок закрытая, маппинг общий для всех обработчиков.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "error_type": "not_found"})
	case errors.Is(err, apperrors.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "error_type": "unauthorized"})
	case errors.Is(err, apperrors.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "error_type": "forbidden"})
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_type": "validation_error"})
	case errors.Is(err, apperrors.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "error_type": "invalid_state"})
	case errors.Is(err, apperrors.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "error_type": "conflict"})
	case errors.Is(err, apperrors.ErrCapacityExceeded):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "error_type": "capacity_exceeded"})
	case errors.Is(err, apperrors.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error(), "error_type": "too_large"})
	case errors.Is(err, service.ErrNotEnoughSolvers):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "error_type": "not_enough_solvers"})
	case errors.Is(err, service.ErrCreatorCannotLeave):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "error_type": "creator_cannot_leave"})
	default:
		log.Printf("[Handler] Внутренняя ошибка: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "error_type": "internal_server_error"})
	}
}
