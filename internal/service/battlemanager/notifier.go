package battlemanager

import (
	"log"
	"time"

	"github.com/aheroglu/devbattle-api/internal/websocket"
)

// Notifier — единственная точка выхода событий битв в WebSocket.
// На каждый тип события — свой метод со строго типизированной полезной
// нагрузкой: набор событий закрытый, нетипизированных emit'ов нет.
type Notifier struct {
	wsManager *websocket.Manager
}

// NewNotifier создает новый нотификатор
func NewNotifier(wsManager *websocket.Manager) *Notifier {
	return &Notifier{wsManager: wsManager}
}

// ParticipantJoinedPayload — участник присоединился к битве
type ParticipantJoinedPayload struct {
	BattleID uint   `json:"battle_id"`
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// ParticipantLeftPayload — участник покинул битву
type ParticipantLeftPayload struct {
	BattleID uint   `json:"battle_id"`
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
}

// ParticipantCompletedPayload — участник успешно решил задачу
type ParticipantCompletedPayload struct {
	BattleID       uint      `json:"battle_id"`
	UserID         uint      `json:"user_id"`
	Username       string    `json:"username"`
	CompletionTime time.Time `json:"completion_time"`
	Score          int       `json:"score"`
}

// BattleStartedPayload — битва стартовала
type BattleStartedPayload struct {
	BattleID  uint      `json:"battle_id"`
	Title     string    `json:"title"`
	StartTime time.Time `json:"start_time"`
	Deadline  time.Time `json:"deadline"`
}

// BattleEndedPayload — битва завершена
type BattleEndedPayload struct {
	BattleID uint      `json:"battle_id"`
	EndTime  time.Time `json:"end_time"`
	WinnerID *uint     `json:"winner_id,omitempty"`
	EndedBy  string    `json:"ended_by"` // creator | system
}

// BattleTimeoutPayload — битва завершена по истечении дедлайна
type BattleTimeoutPayload struct {
	BattleID uint      `json:"battle_id"`
	EndTime  time.Time `json:"end_time"`
	WinnerID *uint     `json:"winner_id,omitempty"`
}

// CodeChangedPayload — участник правит код. Передаются только метаданные:
// сам код другим участникам не раскрывается.
type CodeChangedPayload struct {
	BattleID   uint `json:"battle_id"`
	UserID     uint `json:"user_id"`
	CodeLength int  `json:"code_length"`
}

// SubmissionResultPayload — вердикт по сабмиту
type SubmissionResultPayload struct {
	BattleID        uint   `json:"battle_id"`
	UserID          uint   `json:"user_id"`
	SubmissionID    uint   `json:"submission_id"`
	Status          string `json:"status"`
	Stub            bool   `json:"stub"`
	PassedTests     int    `json:"passed_tests"`
	TotalTests      int    `json:"total_tests"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
}

// ChatMessagePayload — сообщение в чате битвы
type ChatMessagePayload struct {
	BattleID uint      `json:"battle_id"`
	UserID   uint      `json:"user_id"`
	Username string    `json:"username"`
	Message  string    `json:"message"`
	SentAt   time.Time `json:"sent_at"`
}

// TypingPayload — индикатор набора текста
type TypingPayload struct {
	BattleID uint `json:"battle_id"`
	UserID   uint `json:"user_id"`
}

// PresencePayload — смена статуса присутствия пользователя
type PresencePayload struct {
	UserID uint `json:"user_id"`
}

// NotificationPayload — адресное или широковещательное уведомление
type NotificationPayload struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// ParticipantJoined рассылает событие в комнату битвы и в лобби
func (n *Notifier) ParticipantJoined(p ParticipantJoinedPayload) {
	n.toBattle(p.BattleID, websocket.PARTICIPANT_JOINED, p)
	n.toLobby(websocket.PARTICIPANT_JOINED, p)
}

// ParticipantLeft рассылает событие в комнату битвы и в лобби
func (n *Notifier) ParticipantLeft(p ParticipantLeftPayload) {
	n.toBattle(p.BattleID, websocket.PARTICIPANT_LEFT, p)
	n.toLobby(websocket.PARTICIPANT_LEFT, p)
}

// ParticipantCompleted рассылает событие об успешном решении
func (n *Notifier) ParticipantCompleted(p ParticipantCompletedPayload) {
	n.toBattle(p.BattleID, websocket.PARTICIPANT_COMPLETED, p)
}

// BattleStarted рассылает событие в комнату битвы и в лобби
func (n *Notifier) BattleStarted(p BattleStartedPayload) {
	n.toBattle(p.BattleID, websocket.BATTLE_STARTED, p)
	n.toLobby(websocket.BATTLE_STARTED, p)
}

// BattleEnded рассылает событие в комнату битвы и в лобби
func (n *Notifier) BattleEnded(p BattleEndedPayload) {
	n.toBattle(p.BattleID, websocket.BATTLE_ENDED, p)
	n.toLobby(websocket.BATTLE_ENDED, p)
}

// BattleTimeout рассылает событие завершения по дедлайну
func (n *Notifier) BattleTimeout(p BattleTimeoutPayload) {
	n.toBattle(p.BattleID, websocket.BATTLE_TIMEOUT, p)
	n.toLobby(websocket.BATTLE_TIMEOUT, p)
}

// CodeChanged рассылает метаданные правки кода в комнату битвы
func (n *Notifier) CodeChanged(p CodeChangedPayload) {
	n.toBattle(p.BattleID, websocket.CODE_CHANGED, p)
}

// SubmissionResult рассылает вердикт в комнату битвы
func (n *Notifier) SubmissionResult(p SubmissionResultPayload) {
	n.toBattle(p.BattleID, websocket.SUBMISSION_RESULT, p)
}

// ChatMessage рассылает сообщение чата в комнату битвы
func (n *Notifier) ChatMessage(p ChatMessagePayload) {
	n.toBattle(p.BattleID, websocket.CHAT_MESSAGE, p)
}

// TypingStarted рассылает индикатор набора в комнату битвы
func (n *Notifier) TypingStarted(p TypingPayload) {
	n.toBattle(p.BattleID, websocket.TYPING_STARTED, p)
}

// TypingStopped рассылает снятие индикатора набора в комнату битвы
func (n *Notifier) TypingStopped(p TypingPayload) {
	n.toBattle(p.BattleID, websocket.TYPING_STOPPED, p)
}

// UserOnline рассылает событие присутствия всем клиентам
func (n *Notifier) UserOnline(p PresencePayload) {
	if err := n.wsManager.BroadcastEvent(websocket.USER_ONLINE, p); err != nil {
		log.Printf("[Notifier] Ошибка рассылки user:online для пользователя #%d: %v", p.UserID, err)
	}
}

// UserOffline рассылает событие ухода в офлайн всем клиентам
func (n *Notifier) UserOffline(p PresencePayload) {
	if err := n.wsManager.BroadcastEvent(websocket.USER_OFFLINE, p); err != nil {
		log.Printf("[Notifier] Ошибка рассылки user:offline для пользователя #%d: %v", p.UserID, err)
	}
}

// NotifyUser доставляет уведомление конкретному пользователю
func (n *Notifier) NotifyUser(userID string, p NotificationPayload) error {
	return n.wsManager.SendEventToUser(userID, websocket.NOTIFICATION, p)
}

// NotifyBattle доставляет уведомление всем в комнате битвы
func (n *Notifier) NotifyBattle(battleID uint, p NotificationPayload) {
	n.toBattle(battleID, websocket.NOTIFICATION, p)
}

// NotifyBroadcast доставляет уведомление всем подключенным клиентам
func (n *Notifier) NotifyBroadcast(p NotificationPayload) {
	if err := n.wsManager.BroadcastEvent(websocket.NOTIFICATION, p); err != nil {
		log.Printf("[Notifier] Ошибка широковещательного уведомления: %v", err)
	}
}

func (n *Notifier) toBattle(battleID uint, eventType string, data interface{}) {
	if err := n.wsManager.BroadcastEventToBattle(battleID, eventType, data); err != nil {
		log.Printf("[Notifier] Ошибка рассылки %s в битву #%d: %v", eventType, battleID, err)
	}
}

func (n *Notifier) toLobby(eventType string, data interface{}) {
	if err := n.wsManager.BroadcastEventToLobby(eventType, data); err != nil {
		log.Printf("[Notifier] Ошибка рассылки %s в лобби: %v", eventType, err)
	}
}
