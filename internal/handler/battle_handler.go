package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aheroglu/devbattle-api/internal/domain/repository"
	"github.com/aheroglu/devbattle-api/internal/service"
)

// BattleHandler обрабатывает REST-запросы жизненного цикла битв
type BattleHandler struct {
	battleService      *service.BattleService
	participantService *service.ParticipantService
	submissionService  *service.SubmissionService
}

// NewBattleHandler создает новый обработчик битв
func NewBattleHandler(
	battleService *service.BattleService,
	participantService *service.ParticipantService,
	submissionService *service.SubmissionService,
) *BattleHandler {
	return &BattleHandler{
		battleService:      battleService,
		participantService: participantService,
		submissionService:  submissionService,
	}
}

// CreateBattleRequest представляет запрос на создание битвы
type CreateBattleRequest struct {
	Title           string `json:"title" binding:"required,max=100"`
	Difficulty      string `json:"difficulty" binding:"required,oneof=easy medium hard"`
	Language        string `json:"language" binding:"required,max=30"`
	MaxDuration     int    `json:"max_duration" binding:"required,min=5,max=180"`
	MaxParticipants int    `json:"max_participants" binding:"required,min=2,max=50"`
	ProblemID       uint   `json:"problem_id" binding:"required"`
}

// UpdateBattleRequest представляет запрос на изменение битвы (частичный)
type UpdateBattleRequest struct {
	Title           *string `json:"title"`
	Difficulty      *string `json:"difficulty"`
	Language        *string `json:"language"`
	MaxDuration     *int    `json:"max_duration"`
	MaxParticipants *int    `json:"max_participants"`
	ProblemID       *uint   `json:"problem_id"`
}

// JoinBattleRequest представляет запрос на вход в битву
type JoinBattleRequest struct {
	Role string `json:"role" binding:"required,oneof=solver spectator"`
}

// SubmitRequest представляет запрос на отправку решения
type SubmitRequest struct {
	Code string `json:"code" binding:"required"`
}

// Create обрабатывает создание битвы
func (h *BattleHandler) Create(c *gin.Context) {
	userID := c.MustGet("user_id").(uint)

	var req CreateBattleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	battle, err := h.battleService.CreateBattle(c.Request.Context(), userID, service.CreateBattleInput{
		Title:           req.Title,
		Difficulty:      req.Difficulty,
		Language:        req.Language,
		MaxDuration:     req.MaxDuration,
		MaxParticipants: req.MaxParticipants,
		ProblemID:       req.ProblemID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"battle": battle})
}

// Get возвращает битву по ID
func (h *BattleHandler) Get(c *gin.Context) {
	battleID := c.MustGet("battle_id").(uint)

	battle, err := h.battleService.GetBattle(battleID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"battle": battle})
}

// List возвращает битвы с фильтрами и пагинацией
func (h *BattleHandler) List(c *gin.Context) {
	filters := repository.BattleFilters{
		Status:     c.Query("status"),
		Difficulty: c.Query("difficulty"),
		Language:   c.Query("language"),
		Search:     c.Query("search"),
	}
	if v := c.Query("date_from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filters.DateFrom = &t
		}
	}
	if v := c.Query("date_to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filters.DateTo = &t
		}
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	battles, total, err := h.battleService.ListBattles(filters, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"battles": battles,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

// Update обрабатывает изменение параметров битвы
func (h *BattleHandler) Update(c *gin.Context) {
	battleID := c.MustGet("battle_id").(uint)
	userID := c.MustGet("user_id").(uint)

	var req UpdateBattleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	battle, err := h.battleService.UpdateBattle(c.Request.Context(), battleID, userID, repository.BattleUpdate{
		Title:           req.Title,
		Difficulty:      req.Difficulty,
		Language:        req.Language,
		MaxDuration:     req.MaxDuration,
		MaxParticipants: req.MaxParticipants,
		ProblemID:       req.ProblemID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"battle": battle})
}

// Delete обрабатывает удаление битвы
func (h *BattleHandler) Delete(c *gin.Context) {
	battleID := c.MustGet("battle_id").(uint)
	userID := c.MustGet("user_id").(uint)
	isAdmin, _ := c.Get("is_admin")

	if err := h.battleService.DeleteBattle(c.Request.Context(), battleID, userID, isAdmin == true); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "battle deleted"})
}

// Start обрабатывает запуск битвы создателем
func (h *BattleHandler) Start(c *gin.Context) {
	battleID := c.MustGet("battle_id").(uint)
	userID := c.MustGet("user_id").(uint)

	battle, err := h.battleService.StartBattle(c.Request.Context(), battleID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"battle": battle})
}

// End обрабатывает ручное завершение битвы создателем
func (h *BattleHandler) End(c *gin.Context) {
	battleID := c.MustGet("battle_id").(uint)
	userID := c.MustGet("user_id").(uint)

	battle, err := h.battleService.EndBattle(c.Request.Context(), battleID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"battle": battle})
}

// Join обрабатывает вход пользователя в битву
func (h *BattleHandler) Join(c *gin.Context) {
	battleID := c.MustGet("battle_id").(uint)
	userID := c.MustGet("user_id").(uint)

	var req JoinBattleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	participant, err := h.participantService.Join(c.Request.Context(), battleID, userID, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"participant": participant})
}

// Leave обрабатывает выход пользователя из битвы
func (h *BattleHandler) Leave(c *gin.Context) {
	battleID := c.MustGet("battle_id").(uint)
	userID := c.MustGet("user_id").(uint)

	if err := h.participantService.Leave(c.Request.Context(), battleID, userID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "left the battle"})
}

// Participants возвращает сводку по участникам битвы
func (h *BattleHandler) Participants(c *gin.Context) {
	battleID := c.MustGet("battle_id").(uint)

	participants, err := h.participantService.ListParticipants(battleID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"participants": participants,
		"count":        len(participants),
	})
}

// Submit обрабатывает отправку решения на судейство
func (h *BattleHandler) Submit(c *gin.Context) {
	battleID := c.MustGet("battle_id").(uint)
	userID := c.MustGet("user_id").(uint)

	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.submissionService.Submit(c.Request.Context(), battleID, userID, req.Code)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"result": result})
}

// Submissions возвращает все сабмиты битвы
func (h *BattleHandler) Submissions(c *gin.Context) {
	battleID := c.MustGet("battle_id").(uint)

	submissions, err := h.submissionService.ListByBattle(battleID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"submissions": submissions,
		"count":       len(submissions),
	})
}
