package websocket

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"
)

// LobbyRoom — общая комната, в которую попадают клиенты, наблюдающие
// за списком битв (не привязана к конкретной битве).
const LobbyRoom = "lobby"

// BattleRoom возвращает имя комнаты для указанной битвы
func BattleRoom(battleID uint) string {
	return fmt.Sprintf("battle:%d", battleID)
}

// Hub управляет всеми WebSocket-клиентами: общим реестром соединений,
// картой пользователь → соединение и комнатами (по битвам + лобби).
// Регистрация, отмена регистрации и широковещание проходят через
// единственный цикл Run, поэтому мутации общего состояния упорядочены.
type Hub struct {
	clients    sync.Map      // Ключ: *Client, Значение: bool
	userMap    sync.Map      // Карта UserID -> *Client
	rooms      sync.Map      // Карта room (string) -> *sync.Map (ключ *Client)
	broadcast  chan []byte   // Канал для широковещательных сообщений
	register   chan *Client  // Канал для регистрации клиентов
	unregister chan *Client  // Канал для отмены регистрации клиентов
	done       chan struct{} // Сигнал для завершения работы хаба

	metrics *HubMetrics

	// Колбэки жизненного цикла соединений (подключает battlemanager.Presence)
	onConnect    func(userID string)
	onDisconnect func(userID string)
	callbackMu   sync.RWMutex
}

// HubMetrics содержит счетчики производительности хаба
type HubMetrics struct {
	activeConnections int64
	messagesSent      int64
	connectionErrors  int64
	mu                sync.RWMutex
}

// NewHub создает новый хаб
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client, 100),
		unregister: make(chan *Client, 100),
		done:       make(chan struct{}),
		metrics:    &HubMetrics{},
	}
}

// SetConnectionCallbacks задает колбэки подключения/отключения пользователей.
// Вызывается один раз при сборке приложения, до запуска Run.
func (h *Hub) SetConnectionCallbacks(onConnect, onDisconnect func(userID string)) {
	h.callbackMu.Lock()
	h.onConnect = onConnect
	h.onDisconnect = onDisconnect
	h.callbackMu.Unlock()
}

// Run запускает цикл обработки сообщений хаба
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.handleRegister(client)
		case client := <-h.unregister:
			h.handleUnregister(client)
		case message := <-h.broadcast:
			h.handleBroadcast(message)
		case <-h.done:
			log.Println("[Hub] Получен сигнал завершения работы, останавливаемся")
			h.cleanupAllClients()
			return
		}
	}
}

// Shutdown инициирует остановку хаба
func (h *Hub) Shutdown() {
	close(h.done)
}

// handleRegister регистрирует клиента в хабе
func (h *Hub) handleRegister(client *Client) {
	// Проверяем существующего клиента с тем же UserID: новое соединение
	// вытесняет старое (replace-on-reconnect)
	if existingClient, loaded := h.userMap.LoadOrStore(client.UserID, client); loaded {
		oldClient, ok := existingClient.(*Client)
		if ok && oldClient != client {
			log.Printf("[Hub] Замена соединения клиента %s новым подключением", client.UserID)
			h.userMap.Store(client.UserID, client)

			// Отложенно закрываем старое соединение, чтобы успели уйти
			// сообщения, уже стоящие в его буфере
			go func() {
				time.Sleep(500 * time.Millisecond)
				h.removeFromAllRooms(oldClient)
				h.clients.Delete(oldClient)

				if oldClient.conn != nil {
					oldClient.conn.Close()
				}
				oldClient.CloseSend()

				h.metrics.mu.Lock()
				h.metrics.activeConnections--
				h.metrics.mu.Unlock()
			}()
		}
	}

	h.clients.Store(client, true)
	client.lastActivity = time.Now()

	h.metrics.mu.Lock()
	h.metrics.activeConnections++
	h.metrics.mu.Unlock()

	log.Printf("[Hub] Клиент %s зарегистрирован (Conn: %s)", client.UserID, client.ConnectionID)

	h.callbackMu.RLock()
	onConnect := h.onConnect
	h.callbackMu.RUnlock()
	if onConnect != nil {
		onConnect(client.UserID)
	}

	// Сигнал о завершении регистрации
	if client.registrationComplete != nil {
		select {
		case client.registrationComplete <- struct{}{}:
		default:
		}
	}
}

// handleUnregister удаляет клиента из хаба
func (h *Hub) handleUnregister(client *Client) {
	h.removeFromAllRooms(client)

	if _, ok := h.clients.LoadAndDelete(client); ok {
		// Удаляем из userMap, только если это тот же экземпляр:
		// при replace-on-reconnect там уже лежит новое соединение
		if existingClient, loaded := h.userMap.Load(client.UserID); loaded {
			if existingClient == client {
				h.userMap.Delete(client.UserID)

				h.callbackMu.RLock()
				onDisconnect := h.onDisconnect
				h.callbackMu.RUnlock()
				if onDisconnect != nil {
					onDisconnect(client.UserID)
				}
			}
		}

		if client.conn != nil {
			client.conn.Close()
		}
		client.CloseSend()

		h.metrics.mu.Lock()
		h.metrics.activeConnections--
		h.metrics.mu.Unlock()

		log.Printf("[Hub] Клиент %s отключен (Conn: %s)", client.UserID, client.ConnectionID)
	}
}

// handleBroadcast отправляет сообщение всем клиентам хаба
func (h *Hub) handleBroadcast(message []byte) {
	var clientCount int

	h.clients.Range(func(key, value interface{}) bool {
		client, ok := key.(*Client)
		if !ok {
			return true
		}

		clientCount++
		select {
		case client.send <- message:
			client.resetBufferWarningCount()
		default:
			h.handleSlowClient(client)
		}
		return true
	})

	if clientCount > 0 {
		h.metrics.mu.Lock()
		h.metrics.messagesSent += int64(clientCount)
		h.metrics.mu.Unlock()
	}
}

// handleSlowClient обрабатывает клиента с переполненным буфером отправки:
// предупреждает, а после maxBufferWarnings подряд — отключает.
func (h *Hub) handleSlowClient(client *Client) {
	newCount := client.incrementBufferWarningCount()

	if newCount >= maxBufferWarnings {
		log.Printf("[Hub] Клиент %s (Conn: %s) превысил лимит предупреждений о буфере (%d), отключаем",
			client.UserID, client.ConnectionID, maxBufferWarnings)

		h.removeFromAllRooms(client)
		h.clients.Delete(client)
		if existingClient, loaded := h.userMap.Load(client.UserID); loaded && existingClient == client {
			h.userMap.Delete(client.UserID)
		}
		if client.conn != nil {
			client.conn.Close()
		}
		client.CloseSend()

		h.metrics.mu.Lock()
		if h.metrics.activeConnections > 0 {
			h.metrics.activeConnections--
		}
		h.metrics.connectionErrors++
		h.metrics.mu.Unlock()
		return
	}

	warningMsg := map[string]interface{}{
		"type": "server:buffer_warning",
		"data": map[string]interface{}{
			"warning_count": newCount,
			"max_warnings":  maxBufferWarnings,
			"message":       "Your connection is slow or buffer is full. You may be disconnected soon.",
		},
	}
	jsonWarning, _ := json.Marshal(warningMsg)
	select {
	case client.send <- jsonWarning:
	default:
	}
}

// JoinRoom добавляет клиента в комнату
func (h *Hub) JoinRoom(client *Client, room string) {
	if room == "" {
		return
	}

	roomMapUntyped, _ := h.rooms.LoadOrStore(room, &sync.Map{})
	roomMap, ok := roomMapUntyped.(*sync.Map)
	if !ok {
		log.Printf("CRITICAL: [Hub] Некорректный тип карты комнаты %q: %T", room, roomMapUntyped)
		newMap := &sync.Map{}
		newMap.Store(client, struct{}{})
		h.rooms.Store(room, newMap)
		client.trackRoom(room)
		return
	}

	roomMap.Store(client, struct{}{})
	client.trackRoom(room)
	log.Printf("[Hub] Клиент %s вошел в комнату %q", client.UserID, room)
}

// LeaveRoom удаляет клиента из комнаты
func (h *Hub) LeaveRoom(client *Client, room string) {
	if room == "" {
		return
	}

	if roomMapUntyped, ok := h.rooms.Load(room); ok {
		if roomMap, ok := roomMapUntyped.(*sync.Map); ok {
			roomMap.Delete(client)
		}
	}
	client.untrackRoom(room)
	log.Printf("[Hub] Клиент %s покинул комнату %q", client.UserID, room)
}

// removeFromAllRooms удаляет клиента из всех комнат, где он числится
func (h *Hub) removeFromAllRooms(client *Client) {
	client.rooms.Range(func(key, value interface{}) bool {
		room, ok := key.(string)
		if !ok {
			return true
		}
		if roomMapUntyped, ok := h.rooms.Load(room); ok {
			if roomMap, ok := roomMapUntyped.(*sync.Map); ok {
				roomMap.Delete(client)
			}
		}
		client.rooms.Delete(room)
		return true
	})
}

// BroadcastToRoom отправляет сообщение всем клиентам комнаты
func (h *Hub) BroadcastToRoom(room string, message []byte) {
	clientCount := 0
	roomMapUntyped, ok := h.rooms.Load(room)
	if !ok {
		return
	}
	roomMap, ok := roomMapUntyped.(*sync.Map)
	if !ok {
		log.Printf("CRITICAL: [Hub] Некорректный тип карты комнаты %q при рассылке", room)
		return
	}

	roomMap.Range(func(key, value interface{}) bool {
		client, ok := key.(*Client)
		if !ok {
			return true
		}

		select {
		case client.send <- message:
			clientCount++
		default:
			h.handleSlowClient(client)
		}
		return true
	})

	if clientCount > 0 {
		h.metrics.mu.Lock()
		h.metrics.messagesSent += int64(clientCount)
		h.metrics.mu.Unlock()
		log.Printf("[Hub] Сообщение типа %s доставлено %d клиентам комнаты %q",
			messageTypeFromBytes(message), clientCount, room)
	}
}

// RoomMembers возвращает ID пользователей, находящихся в комнате
func (h *Hub) RoomMembers(room string) []uint {
	var members []uint
	roomMapUntyped, ok := h.rooms.Load(room)
	if !ok {
		return members
	}
	roomMap, ok := roomMapUntyped.(*sync.Map)
	if !ok {
		return members
	}

	roomMap.Range(func(key, value interface{}) bool {
		if client, ok := key.(*Client); ok {
			if id := client.GetUserIDUint(); id != 0 {
				members = append(members, id)
			}
		}
		return true
	})
	return members
}

// IsUserConnected сообщает, есть ли у пользователя живое соединение
func (h *Hub) IsUserConnected(userID string) bool {
	_, ok := h.userMap.Load(userID)
	return ok
}

// RegisterClient ставит клиента в очередь на регистрацию
func (h *Hub) RegisterClient(client *Client) {
	h.register <- client
}

// UnregisterClient ставит клиента в очередь на отмену регистрации
func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}

// Broadcast отправляет байтовое сообщение всем клиентам
func (h *Hub) Broadcast(message []byte) {
	h.broadcast <- message
}

// BroadcastJSON отправляет структуру JSON всем клиентам
func (h *Hub) BroadcastJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal broadcast message: %w", err)
	}
	h.broadcast <- data
	return nil
}

// SendToUser отправляет байтовое сообщение конкретному пользователю.
// Возвращает false, если пользователь не подключен или его буфер переполнен.
func (h *Hub) SendToUser(userID string, message []byte) bool {
	clientUntyped, ok := h.userMap.Load(userID)
	if !ok {
		return false
	}
	client, ok := clientUntyped.(*Client)
	if !ok {
		return false
	}

	select {
	case client.send <- message:
		h.metrics.mu.Lock()
		h.metrics.messagesSent++
		h.metrics.mu.Unlock()
		return true
	default:
		h.handleSlowClient(client)
		return false
	}
}

// SendJSONToUser отправляет структуру JSON конкретному пользователю
func (h *Hub) SendJSONToUser(userID string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message for user %s: %w", userID, err)
	}
	if !h.SendToUser(userID, data) {
		return fmt.Errorf("user %s is not connected or buffer is full", userID)
	}
	return nil
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	count := 0
	h.clients.Range(func(key, value interface{}) bool {
		count++
		return true
	})
	return count
}

// GetMetrics возвращает метрики хаба
func (h *Hub) GetMetrics() map[string]interface{} {
	h.metrics.mu.RLock()
	defer h.metrics.mu.RUnlock()

	return map[string]interface{}{
		"active_connections": h.metrics.activeConnections,
		"messages_sent":      h.metrics.messagesSent,
		"connection_errors":  h.metrics.connectionErrors,
	}
}

// cleanupAllClients закрывает все соединения при остановке хаба
func (h *Hub) cleanupAllClients() {
	h.clients.Range(func(key, value interface{}) bool {
		if client, ok := key.(*Client); ok {
			if client.conn != nil {
				client.conn.Close()
			}
			client.CloseSend()
		}
		h.clients.Delete(key)
		return true
	})
	h.userMap.Range(func(key, value interface{}) bool {
		h.userMap.Delete(key)
		return true
	})
	log.Println("[Hub] Все клиенты отключены")
}
