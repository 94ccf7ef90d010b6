package websocket

// HubInterface объединяет возможности хаба для Manager.
// Это каноническое определение интерфейса хаба.
type HubInterface interface {
	// BroadcastJSON отправляет структуру JSON всем клиентам
	BroadcastJSON(v interface{}) error

	// SendJSONToUser отправляет структуру JSON конкретному пользователю
	SendJSONToUser(userID string, v interface{}) error

	// SendToUser отправляет байтовое сообщение конкретному пользователю
	SendToUser(userID string, message []byte) bool

	// BroadcastToRoom отправляет байтовое сообщение всем клиентам комнаты
	BroadcastToRoom(room string, message []byte)

	// JoinRoom добавляет клиента в комнату
	JoinRoom(client *Client, room string)

	// LeaveRoom удаляет клиента из комнаты
	LeaveRoom(client *Client, room string)

	// RoomMembers возвращает ID пользователей, находящихся в комнате
	RoomMembers(room string) []uint

	// IsUserConnected сообщает, есть ли у пользователя живое соединение
	IsUserConnected(userID string) bool

	// ClientCount возвращает количество подключенных клиентов
	ClientCount() int

	// GetMetrics возвращает метрики хаба
	GetMetrics() map[string]interface{}
}
