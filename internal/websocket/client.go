package websocket

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Время, которое разрешено писать сообщение клиенту.
	writeWait = 10 * time.Second

	// Время, которое разрешено клиенту читать следующее сообщение.
	pongWait = 30 * time.Second

	// Периодичность отправки ping-сообщений клиенту.
	pingPeriod = (pongWait * 9) / 10

	// Максимальный размер входящего сообщения
	maxMessageSize = 16384

	// Размер буфера по умолчанию для канала отправки сообщений клиенту
	defaultClientBufferSize = 128

	// Максимальное количество предупреждений о переполнении буфера до отключения
	maxBufferWarnings = 3
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// Client является посредником между WebSocket соединением и хабом.
type Client struct {
	// ID пользователя (строковое представление uint)
	UserID string

	// Уникальный ID для каждого соединения
	ConnectionID string

	// Хаб, к которому подключен клиент
	hub *Hub

	// WebSocket соединение
	conn *websocket.Conn

	// Буферизованный канал для исходящих сообщений
	send chan []byte

	// Флаг, указывающий что канал send закрыт (для предотвращения panic)
	sendClosed atomic.Bool

	// Время последней активности клиента
	lastActivity time.Time

	// Канал для ожидания завершения регистрации
	registrationComplete chan struct{}

	// Комнаты, в которых числится клиент (для снятия при отключении)
	rooms sync.Map

	// ID битвы, на которую подписан клиент (0 если не подписан)
	currentBattleID atomic.Uint32

	// Счетчик предупреждений о переполнении буфера
	bufferWarningCount int32
	bufferWarningMutex sync.Mutex
}

// NewClient создает нового клиента
func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:                  hub,
		conn:                 conn,
		send:                 make(chan []byte, defaultClientBufferSize),
		UserID:               userID,
		ConnectionID:         uuid.New().String(),
		lastActivity:         time.Now(),
		registrationComplete: make(chan struct{}, 1),
	}
}

// SetBattleID устанавливает ID текущей битвы для клиента
func (c *Client) SetBattleID(battleID uint) {
	c.currentBattleID.Store(uint32(battleID))
}

// GetBattleID возвращает ID текущей битвы клиента
func (c *Client) GetBattleID() uint {
	return uint(c.currentBattleID.Load())
}

// ClearBattleID сбрасывает ID текущей битвы (например, при отписке)
func (c *Client) ClearBattleID() {
	c.currentBattleID.Store(0)
}

// trackRoom запоминает членство клиента в комнате
func (c *Client) trackRoom(room string) {
	c.rooms.Store(room, struct{}{})
}

// untrackRoom забывает членство клиента в комнате
func (c *Client) untrackRoom(room string) {
	c.rooms.Delete(room)
}

// readPump читает сообщения от клиента и передает их обработчику
func (c *Client) readPump(messageHandler func(message []byte, client *Client) error) {
	defer func() {
		log.Printf("WebSocket Client Read Pump STOPPED for UserID: %s, ConnID: %s", c.UserID, c.ConnectionID)
		c.hub.UnregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.lastActivity = time.Now()
		return nil
	})

	log.Printf("WebSocket Client Read Pump STARTED for UserID: %s, ConnID: %s", c.UserID, c.ConnectionID)

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("WebSocket Client Connection Closed Normally (UserID: %s, ConnID: %s): %v", c.UserID, c.ConnectionID, err)
			} else {
				log.Printf("WebSocket Client Read Error (UserID: %s, ConnID: %s): %v", c.UserID, c.ConnectionID, err)
			}
			break
		}

		c.lastActivity = time.Now()

		// Безопасный вызов обработчика с recover
		if handlerErr := safeHandleMessage(message, c, messageHandler); handlerErr != nil {
			log.Printf("WebSocket Client Handler Error (UserID: %s, ConnID: %s): %v. Closing connection.", c.UserID, c.ConnectionID, handlerErr)
			break
		}

		// Сбрасываем счетчик предупреждений при получении любого сообщения от клиента
		c.resetBufferWarningCount()
	}
}

// safeHandleMessage - обертка для вызова обработчика с recover.
// Возвращает ошибку, если обработчик вернул ошибку.
func safeHandleMessage(message []byte, client *Client, messageHandler func(message []byte, client *Client) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC recovered in message handler for UserID: %s, ConnID: %s. Panic: %v\nStack trace:\n%s",
				client.UserID, client.ConnectionID, r, string(debug.Stack()))
			err = fmt.Errorf("panic recovered: %v", r)
		}
	}()
	message = bytes.TrimSpace(bytes.Replace(message, newline, space, -1))
	if messageHandler != nil {
		err = messageHandler(message, client)
	} else {
		log.Printf("Warning: No message handler registered for client %s", client.UserID)
	}
	return err
}

// writePump отправляет сообщения клиенту из канала send
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		log.Printf("WebSocket Client Write Pump STOPPED for UserID: %s, ConnID: %s", c.UserID, c.ConnectionID)
	}()

	log.Printf("WebSocket Client Write Pump STARTED for UserID: %s, ConnID: %s", c.UserID, c.ConnectionID)

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Printf("WebSocket Client SetWriteDeadline Error (UserID: %s, ConnID: %s): %v", c.UserID, c.ConnectionID, err)
				return
			}

			if !ok {
				// Канал send закрыт хабом
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				log.Printf("WebSocket Client NextWriter Error (UserID: %s, ConnID: %s): %v", c.UserID, c.ConnectionID, err)
				return
			}

			if _, err := w.Write(message); err != nil {
				log.Printf("WebSocket Client Write Error (UserID: %s, ConnID: %s): %v", c.UserID, c.ConnectionID, err)
			}

			if err := w.Close(); err != nil {
				log.Printf("WebSocket Client Writer Close Error (UserID: %s, ConnID: %s): %v", c.UserID, c.ConnectionID, err)
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("WebSocket Client Ping Error (UserID: %s, ConnID: %s): %v", c.UserID, c.ConnectionID, err)
				return
			}
		}
	}
}

// StartPumps регистрирует клиента в хабе и запускает горутины чтения и записи
func (c *Client) StartPumps(messageHandler func(message []byte, client *Client) error) {
	if c.UserID == "" {
		log.Printf("WebSocket: client has no UserID, skipping registration")
		c.conn.Close()
		return
	}

	c.hub.RegisterClient(c)

	// Ожидаем завершения регистрации
	select {
	case <-c.registrationComplete:
		log.Printf("WebSocket: client %s fully registered, starting pumps", c.UserID)
	case <-time.After(5 * time.Second):
		log.Printf("WebSocket: timeout waiting for client %s registration", c.UserID)
		c.conn.Close()
		return
	}

	go c.writePump()
	go c.readPump(messageHandler)
}

// incrementBufferWarningCount увеличивает счетчик предупреждений и возвращает новое значение
func (c *Client) incrementBufferWarningCount() int32 {
	c.bufferWarningMutex.Lock()
	defer c.bufferWarningMutex.Unlock()
	c.bufferWarningCount++
	return c.bufferWarningCount
}

// resetBufferWarningCount сбрасывает счетчик предупреждений
func (c *Client) resetBufferWarningCount() {
	c.bufferWarningMutex.Lock()
	defer c.bufferWarningMutex.Unlock()
	c.bufferWarningCount = 0
}

// CloseSend безопасно закрывает канал send (только один раз).
// Использует atomic CompareAndSwap для предотвращения panic при повторном закрытии.
func (c *Client) CloseSend() bool {
	if c.sendClosed.CompareAndSwap(false, true) {
		close(c.send)
		return true
	}
	return false
}

// IsSendClosed проверяет, закрыт ли канал send
func (c *Client) IsSendClosed() bool {
	return c.sendClosed.Load()
}

// messageTypeFromBytes пытается извлечь тип сообщения из JSON байтов
func messageTypeFromBytes(message []byte) string {
	var event struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(message, &event) == nil && event.Type != "" {
		return event.Type
	}
	return "unknown/binary"
}

// GetUserIDUint преобразует строковый UserID в uint.
// Возвращает 0 при ошибке преобразования.
func (c *Client) GetUserIDUint() uint {
	var userIDUint uint
	_, err := fmt.Sscan(c.UserID, &userIDUint)
	if err != nil {
		log.Printf("[Client %s] Ошибка преобразования UserID в uint: %v", c.UserID, err)
		return 0
	}
	return userIDUint
}
