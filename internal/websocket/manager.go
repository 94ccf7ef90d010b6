package websocket

import (
	"encoding/json"
	"fmt"
	"log"
)

// Event представляет структуру WebSocket-сообщения
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Manager обрабатывает WebSocket сообщения
type Manager struct {
	hub            HubInterface
	messageHandler map[string]func(data json.RawMessage, client *Client) error
}

// NewManager создает новый менеджер WebSocket
func NewManager(hub HubInterface) *Manager {
	return &Manager{
		hub:            hub,
		messageHandler: make(map[string]func(data json.RawMessage, client *Client) error),
	}
}

// Hub возвращает нижележащий хаб
func (m *Manager) Hub() HubInterface {
	return m.hub
}

// RegisterHandler регистрирует обработчик для определенного типа сообщений
func (m *Manager) RegisterHandler(eventType string, handler func(data json.RawMessage, client *Client) error) {
	m.messageHandler[eventType] = handler
	log.Printf("[WebSocketManager] Зарегистрирован обработчик для сообщений типа: %s", eventType)
}

// HandleMessage обрабатывает входящее сообщение от клиента.
// Возвращает error, если обработка не удалась и соединение нужно закрыть.
func (m *Manager) HandleMessage(message []byte, client *Client) error {
	var event Event
	if err := json.Unmarshal(message, &event); err != nil {
		log.Printf("Failed to unmarshal message from %s: %v, Message: %s", client.UserID, err, string(message))
		m.SendErrorToClient(client, "invalid_message_format", "Invalid JSON format")
		return err // Ошибка парсинга - закрываем соединение
	}

	handler, ok := m.messageHandler[event.Type]
	if !ok {
		log.Printf("No handler registered for message type '%s' from client %s", event.Type, client.UserID)
		m.SendErrorToClient(client, "unknown_message_type", fmt.Sprintf("Unknown message type: %s", event.Type))
		return nil // Неизвестный тип - не закрываем соединение
	}

	rawMessage, _ := json.Marshal(event.Data)
	if err := handler(rawMessage, client); err != nil {
		log.Printf("Handler for type '%s' returned error for client %s: %v", event.Type, client.UserID, err)
		return err
	}

	return nil
}

// SendErrorToClient отправляет стандартизированное сообщение об ошибке клиенту.
// Этот метод НЕ закрывает соединение.
func (m *Manager) SendErrorToClient(client *Client, code string, message string) {
	errorEvent := Event{
		Type: SERVER_ERROR,
		Data: map[string]string{
			"code":    code,
			"message": message,
		},
	}
	if err := m.hub.SendJSONToUser(client.UserID, errorEvent); err != nil {
		log.Printf("ERROR sending error to client %s: %v", client.UserID, err)
	}
}

// BroadcastEvent отправляет событие всем клиентам
func (m *Manager) BroadcastEvent(eventType string, data interface{}) error {
	return m.hub.BroadcastJSON(Event{Type: eventType, Data: data})
}

// SendEventToUser отправляет событие конкретному пользователю
func (m *Manager) SendEventToUser(userID string, eventType string, data interface{}) error {
	return m.hub.SendJSONToUser(userID, Event{Type: eventType, Data: data})
}

// BroadcastEventToBattle отправляет событие всем клиентам в комнате битвы
func (m *Manager) BroadcastEventToBattle(battleID uint, eventType string, data interface{}) error {
	jsonBytes, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal event for battle %d: %w", battleID, err)
	}
	m.hub.BroadcastToRoom(BattleRoom(battleID), jsonBytes)
	return nil
}

// BroadcastEventToLobby отправляет событие всем клиентам лобби
func (m *Manager) BroadcastEventToLobby(eventType string, data interface{}) error {
	jsonBytes, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal lobby event: %w", err)
	}
	m.hub.BroadcastToRoom(LobbyRoom, jsonBytes)
	return nil
}

// SubscribeClientToBattle помещает клиента в комнату указанной битвы.
// Предыдущая подписка на другую битву снимается.
func (m *Manager) SubscribeClientToBattle(client *Client, battleID uint) {
	if oldBattleID := client.GetBattleID(); oldBattleID != 0 && oldBattleID != battleID {
		m.hub.LeaveRoom(client, BattleRoom(oldBattleID))
	}
	client.SetBattleID(battleID)
	m.hub.JoinRoom(client, BattleRoom(battleID))
}

// UnsubscribeClientFromBattle убирает клиента из комнаты его текущей битвы
func (m *Manager) UnsubscribeClientFromBattle(client *Client) {
	if battleID := client.GetBattleID(); battleID != 0 {
		m.hub.LeaveRoom(client, BattleRoom(battleID))
		client.ClearBattleID()
	}
}

// SubscribeClientToLobby помещает клиента в комнату лобби
func (m *Manager) SubscribeClientToLobby(client *Client) {
	m.hub.JoinRoom(client, LobbyRoom)
}

// GetBattleRoomMembers возвращает ID пользователей, подключенных к комнате битвы
func (m *Manager) GetBattleRoomMembers(battleID uint) []uint {
	return m.hub.RoomMembers(BattleRoom(battleID))
}

// IsUserConnected сообщает, есть ли у пользователя живое соединение
func (m *Manager) IsUserConnected(userID string) bool {
	return m.hub.IsUserConnected(userID)
}

// GetMetrics возвращает текущие метрики WebSocket-системы
func (m *Manager) GetMetrics() map[string]interface{} {
	metrics := m.hub.GetMetrics()
	metrics["client_count"] = m.hub.ClientCount()
	return metrics
}
