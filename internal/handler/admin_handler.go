package handler

import (
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"github.com/aheroglu/devbattle-api/internal/domain/entity"
	"github.com/aheroglu/devbattle-api/internal/domain/repository"
	"github.com/aheroglu/devbattle-api/internal/service"
	"github.com/aheroglu/devbattle-api/internal/service/battlemanager"
)

// AdminHandler обрабатывает административные запросы
type AdminHandler struct {
	battleService      *service.BattleService
	participantService *service.ParticipantService
	submissionService  *service.SubmissionService
	problemRepo        repository.ProblemRepository
	notifier           *battlemanager.Notifier
}

// NewAdminHandler создает новый административный обработчик
func NewAdminHandler(
	battleService *service.BattleService,
	participantService *service.ParticipantService,
	submissionService *service.SubmissionService,
	problemRepo repository.ProblemRepository,
	notifier *battlemanager.Notifier,
) *AdminHandler {
	return &AdminHandler{
		battleService:      battleService,
		participantService: participantService,
		submissionService:  submissionService,
		problemRepo:        problemRepo,
		notifier:           notifier,
	}
}

// ForceTimeout принудительно завершает активную битву
func (h *AdminHandler) ForceTimeout(c *gin.Context) {
	battleID := c.MustGet("battle_id").(uint)
	adminID := c.MustGet("user_id").(uint)

	log.Printf("[AdminHandler] Администратор #%d принудительно завершает битву #%d", adminID, battleID)

	battle, err := h.battleService.ForceEndBattle(c.Request.Context(), battleID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"battle": battle})
}

// NotifyRequest представляет административное уведомление
type NotifyRequest struct {
	Title   string `json:"title" binding:"required,max=100"`
	Message string `json:"message" binding:"required,max=1000"`
	// Адресация: ровно одно из полей или ни одного (broadcast)
	UserID   *uint `json:"user_id"`
	BattleID *uint `json:"battle_id"`
}

// Notify рассылает уведомление пользователю, битве или всем клиентам
func (h *AdminHandler) Notify(c *gin.Context) {
	var req NotifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.UserID != nil && req.BattleID != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "specify either user_id or battle_id, not both"})
		return
	}

	payload := battlemanager.NotificationPayload{Title: req.Title, Message: req.Message}

	switch {
	case req.UserID != nil:
		userID := strconv.FormatUint(uint64(*req.UserID), 10)
		if err := h.notifier.NotifyUser(userID, payload); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("user #%d is not connected", *req.UserID), "error_type": "not_found"})
			return
		}
	case req.BattleID != nil:
		h.notifier.NotifyBattle(*req.BattleID, payload)
	default:
		h.notifier.NotifyBroadcast(payload)
	}

	c.JSON(http.StatusOK, gin.H{"message": "notification sent"})
}

// ExportBattle выгружает итоги битвы в xlsx: участники, результаты, сабмиты
func (h *AdminHandler) ExportBattle(c *gin.Context) {
	battleID := c.MustGet("battle_id").(uint)

	battle, err := h.battleService.GetBattle(battleID)
	if err != nil {
		respondError(c, err)
		return
	}
	participants, err := h.participantService.ListParticipants(battleID)
	if err != nil {
		respondError(c, err)
		return
	}
	submissions, err := h.submissionService.ListByBattle(battleID)
	if err != nil {
		respondError(c, err)
		return
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("[AdminHandler] Ошибка закрытия xlsx-файла: %v", err)
		}
	}()

	const participantsSheet = "Participants"
	f.SetSheetName("Sheet1", participantsSheet)

	headers := []string{"User ID", "Username", "Role", "Result", "Joined At", "Completion Time", "Score", "Attempts", "Last Status"}
	for i, title := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(participantsSheet, cell, title)
	}
	for row, p := range participants {
		values := []interface{}{p.UserID, p.Username, p.Role, p.Result, p.JoinedAt.Format("2006-01-02 15:04:05"), "", p.Score, p.Attempts, p.LastStatus}
		if p.CompletionTime != nil {
			values[5] = p.CompletionTime.Format("2006-01-02 15:04:05")
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(participantsSheet, cell, v)
		}
	}

	const submissionsSheet = "Submissions"
	if _, err := f.NewSheet(submissionsSheet); err == nil {
		subHeaders := []string{"ID", "Participant ID", "Status", "Stub", "Passed", "Total", "Time (ms)", "Memory (KB)", "Submitted At"}
		for i, title := range subHeaders {
			cell, _ := excelize.CoordinatesToCellName(i+1, 1)
			f.SetCellValue(submissionsSheet, cell, title)
		}
		for row, s := range submissions {
			values := []interface{}{s.ID, s.ParticipantID, s.Status, s.Stub, s.PassedTests, s.TotalTests, s.ExecutionTimeMs, s.MemoryUsageKB, s.SubmittedAt.Format("2006-01-02 15:04:05")}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
				f.SetCellValue(submissionsSheet, cell, v)
			}
		}
	}

	filename := fmt.Sprintf("battle_%d_%s.xlsx", battle.ID, battle.Status)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")

	if err := f.Write(c.Writer); err != nil {
		log.Printf("[AdminHandler] Ошибка выгрузки xlsx битвы #%d: %v", battleID, err)
	}
}

// ProblemRequest представляет запрос на создание/изменение задачи
type ProblemRequest struct {
	Title         string            `json:"title" binding:"required,max=100"`
	Description   string            `json:"description"`
	Difficulty    string            `json:"difficulty" binding:"required,oneof=easy medium hard"`
	TestCases     []entity.TestCase `json:"test_cases" binding:"required,min=1"`
	TimeLimitMs   int               `json:"time_limit_ms" binding:"omitempty,min=100,max=30000"`
	MemoryLimitKB int               `json:"memory_limit_kb" binding:"omitempty,min=1024"`
}

// CreateProblem создает задачу
func (h *AdminHandler) CreateProblem(c *gin.Context) {
	var req ProblemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	problem := &entity.Problem{
		Title:         req.Title,
		Description:   req.Description,
		Difficulty:    req.Difficulty,
		TestCases:     req.TestCases,
		TimeLimitMs:   req.TimeLimitMs,
		MemoryLimitKB: req.MemoryLimitKB,
	}
	if problem.TimeLimitMs == 0 {
		problem.TimeLimitMs = 2000
	}
	if problem.MemoryLimitKB == 0 {
		problem.MemoryLimitKB = 262144
	}

	if err := h.problemRepo.Create(problem); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"problem": problem})
}

// GetProblem возвращает задачу по ID
func (h *AdminHandler) GetProblem(c *gin.Context) {
	problemID := c.MustGet("problem_id").(uint)

	problem, err := h.problemRepo.GetByID(problemID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"problem": problem})
}

// ListProblems возвращает задачи с пагинацией
func (h *AdminHandler) ListProblems(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	problems, err := h.problemRepo.List(limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"problems": problems, "count": len(problems)})
}

// UpdateProblem обновляет задачу
func (h *AdminHandler) UpdateProblem(c *gin.Context) {
	problemID := c.MustGet("problem_id").(uint)

	var req ProblemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	problem, err := h.problemRepo.GetByID(problemID)
	if err != nil {
		respondError(c, err)
		return
	}

	problem.Title = req.Title
	problem.Description = req.Description
	problem.Difficulty = req.Difficulty
	problem.TestCases = req.TestCases
	if req.TimeLimitMs > 0 {
		problem.TimeLimitMs = req.TimeLimitMs
	}
	if req.MemoryLimitKB > 0 {
		problem.MemoryLimitKB = req.MemoryLimitKB
	}

	if err := h.problemRepo.Update(problem); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"problem": problem})
}

// DeleteProblem удаляет задачу
func (h *AdminHandler) DeleteProblem(c *gin.Context) {
	problemID := c.MustGet("problem_id").(uint)

	if err := h.problemRepo.Delete(problemID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "problem deleted"})
}
