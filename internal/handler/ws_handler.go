package handler

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"

	"github.com/aheroglu/devbattle-api/internal/service"
	"github.com/aheroglu/devbattle-api/internal/service/battlemanager"
	"github.com/aheroglu/devbattle-api/internal/websocket"
	"github.com/aheroglu/devbattle-api/pkg/auth"
)

// WSHandler обрабатывает WebSocket соединения
type WSHandler struct {
	wsHub              *websocket.Hub
	wsManager          *websocket.Manager
	battleService      *service.BattleService
	participantService *service.ParticipantService
	presence           *battlemanager.Presence
	notifier           *battlemanager.Notifier
	jwtService         *auth.JWTService
}

// NewWSHandler создает новый обработчик WebSocket
func NewWSHandler(
	wsHub *websocket.Hub,
	wsManager *websocket.Manager,
	battleService *service.BattleService,
	participantService *service.ParticipantService,
	presence *battlemanager.Presence,
	notifier *battlemanager.Notifier,
	jwtService *auth.JWTService,
) *WSHandler {
	handler := &WSHandler{
		wsHub:              wsHub,
		wsManager:          wsManager,
		battleService:      battleService,
		participantService: participantService,
		presence:           presence,
		notifier:           notifier,
		jwtService:         jwtService,
	}

	// Регистрируем обработчики сообщений один раз при создании обработчика
	handler.registerMessageHandlers()

	return handler
}

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		// Пустой Origin — не браузерный клиент (curl, нативное приложение)
		if origin == "" {
			return true
		}

		// Список разрешенных origin (синхронизирован с CORS в main.go)
		allowedOrigins := []string{
			"https://devbattle.app",
			"http://localhost:5173",
			"http://localhost:3000",
		}

		for _, allowed := range allowedOrigins {
			if origin == allowed {
				return true
			}
		}

		log.Printf("WebSocket: rejected unauthorized origin: %s", origin)
		return false
	},
	EnableCompression: true,
}

// HandleConnection обрабатывает входящее WebSocket соединение.
// Аутентификация — короткоживущим тикетом в query string (?ticket=...),
// обычный токен доступа в рукопожатии не принимается.
func (h *WSHandler) HandleConnection(c *gin.Context) {
	ticket := c.Query("ticket")
	// Тикет не логируем — это данные аутентификации

	if ticket == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing authentication ticket parameter"})
		return
	}

	claims, err := h.jwtService.ParseWSTicket(ticket)
	if err != nil {
		log.Printf("WebSocket: Invalid or expired ticket - %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired ticket"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Error upgrading connection: %v", err)
		return
	}

	log.Printf("WebSocket: Connection upgraded for UserID: %d", claims.UserID)

	client := websocket.NewClient(h.wsHub, conn, fmt.Sprintf("%d", claims.UserID))
	client.StartPumps(h.wsManager.HandleMessage)
}

// registerMessageHandlers регистрирует обработчики для различных типов сообщений
func (h *WSHandler) registerMessageHandlers() {
	// Подписка на комнату битвы. Разрешена только участникам.
	h.wsManager.RegisterHandler("battle:subscribe", func(data json.RawMessage, client *websocket.Client) error {
		var req struct {
			BattleID uint `json:"battle_id"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			h.wsManager.SendErrorToClient(client, "invalid_format", "Failed to parse battle:subscribe event")
			return fmt.Errorf("failed to parse battle:subscribe event: %w", err)
		}

		userID := client.GetUserIDUint()
		if userID == 0 {
			h.wsManager.SendErrorToClient(client, "internal_error", "Invalid user ID format")
			return nil
		}

		if _, err := h.participantService.GetParticipant(req.BattleID, userID); err != nil {
			h.wsManager.SendErrorToClient(client, "subscribe_error", fmt.Sprintf("You are not a participant of battle %d", req.BattleID))
			return nil
		}

		h.wsManager.SubscribeClientToBattle(client, req.BattleID)
		// Переподключение к активной битве без таймера (например, после
		// рестарта процесса) восстанавливает таймер дедлайна
		h.battleService.EnsureDeadlineTimer(req.BattleID)
		log.Printf("[WSHandler] Пользователь %s подписан на битву #%d", client.UserID, req.BattleID)
		return nil
	})

	// Отписка от комнаты текущей битвы
	h.wsManager.RegisterHandler("battle:unsubscribe", func(data json.RawMessage, client *websocket.Client) error {
		h.wsManager.UnsubscribeClientFromBattle(client)
		return nil
	})

	// Подписка на лобби: анонсы создания/старта/завершения битв
	h.wsManager.RegisterHandler("lobby:subscribe", func(data json.RawMessage, client *websocket.Client) error {
		h.wsManager.SubscribeClientToLobby(client)
		return nil
	})

	// Правка кода: рассылаются только метаданные (длина), содержимое
	// решения другим участникам не раскрывается
	h.wsManager.RegisterHandler("battle:code_edit", func(data json.RawMessage, client *websocket.Client) error {
		var req struct {
			CodeLength int `json:"code_length"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			h.wsManager.SendErrorToClient(client, "invalid_format", "Failed to parse battle:code_edit event")
			return nil
		}

		battleID := client.GetBattleID()
		if battleID == 0 {
			h.wsManager.SendErrorToClient(client, "not_subscribed", "Subscribe to a battle before editing")
			return nil
		}
		userID := client.GetUserIDUint()
		if userID == 0 {
			return nil
		}

		h.notifier.CodeChanged(battlemanager.CodeChangedPayload{
			BattleID:   battleID,
			UserID:     userID,
			CodeLength: req.CodeLength,
		})
		return nil
	})

	// Сообщение в чат битвы
	h.wsManager.RegisterHandler("battle:chat", func(data json.RawMessage, client *websocket.Client) error {
		var req struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			h.wsManager.SendErrorToClient(client, "invalid_format", "Failed to parse battle:chat event")
			return nil
		}
		if req.Message == "" || len(req.Message) > 500 {
			h.wsManager.SendErrorToClient(client, "invalid_message", "Message must be 1-500 characters")
			return nil
		}

		battleID := client.GetBattleID()
		if battleID == 0 {
			h.wsManager.SendErrorToClient(client, "not_subscribed", "Subscribe to a battle before chatting")
			return nil
		}
		userID := client.GetUserIDUint()
		if userID == 0 {
			return nil
		}

		h.notifier.ChatMessage(battlemanager.ChatMessagePayload{
			BattleID: battleID,
			UserID:   userID,
			Username: h.usernameOf(userID),
			Message:  req.Message,
			SentAt:   time.Now(),
		})
		return nil
	})

	// Индикатор набора текста
	h.wsManager.RegisterHandler("battle:typing", func(data json.RawMessage, client *websocket.Client) error {
		var req struct {
			Typing bool `json:"typing"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			h.wsManager.SendErrorToClient(client, "invalid_format", "Failed to parse battle:typing event")
			return nil
		}

		battleID := client.GetBattleID()
		if battleID == 0 {
			return nil
		}
		userID := client.GetUserIDUint()
		if userID == 0 {
			return nil
		}

		if req.Typing {
			h.presence.StartTyping(battleID, userID)
		} else {
			h.presence.StopTyping(battleID, userID)
		}
		return nil
	})

	// Запрос статуса присутствия пользователей
	h.wsManager.RegisterHandler("user:presence", func(data json.RawMessage, client *websocket.Client) error {
		var req struct {
			UserIDs []uint `json:"user_ids"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			h.wsManager.SendErrorToClient(client, "invalid_format", "Failed to parse user:presence event")
			return nil
		}

		online := make(map[uint]bool, len(req.UserIDs))
		for _, id := range req.UserIDs {
			online[id] = h.presence.IsOnline(id)
		}

		if err := h.wsManager.SendEventToUser(client.UserID, "user:presence_state", gin.H{"online": online}); err != nil {
			log.Printf("[WSHandler] WARNING: Ошибка отправки user:presence_state пользователю %s: %v", client.UserID, err)
		}
		return nil
	})

	// Проверка соединения + продление heartbeat-отметки присутствия
	h.wsManager.RegisterHandler("user:heartbeat", func(data json.RawMessage, client *websocket.Client) error {
		h.presence.Heartbeat(client.UserID)

		heartbeatResponse := map[string]interface{}{
			"timestamp": time.Now().UnixNano() / int64(time.Millisecond),
		}
		if err := h.wsManager.SendEventToUser(client.UserID, "server:heartbeat", heartbeatResponse); err != nil {
			log.Printf("[WSHandler] WARNING: Ошибка при отправке server:heartbeat пользователю %s: %v", client.UserID, err)
		}
		return nil
	})
}

// usernameOf возвращает имя пользователя для подписи сообщений чата
func (h *WSHandler) usernameOf(userID uint) string {
	user, err := h.participantService.UserByID(userID)
	if err != nil {
		return ""
	}
	return user.Username
}
