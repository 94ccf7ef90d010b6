package websocket

// Типы событий битвы. Набор закрытый: каждому типу соответствует
// своя структура полезной нагрузки в battlemanager.Notifier.
const (
	// PARTICIPANT_JOINED сообщает о присоединении участника к битве
	PARTICIPANT_JOINED = "participant:joined"

	// PARTICIPANT_LEFT сообщает об уходе участника из битвы
	PARTICIPANT_LEFT = "participant:left"

	// PARTICIPANT_COMPLETED сообщает об успешном решении задачи участником
	PARTICIPANT_COMPLETED = "participant:completed"

	// BATTLE_STARTED сообщает о старте битвы
	BATTLE_STARTED = "battle:started"

	// BATTLE_ENDED сообщает о завершении битвы (ручном или системном)
	BATTLE_ENDED = "battle:ended"

	// BATTLE_TIMEOUT сообщает о завершении битвы по истечении дедлайна
	BATTLE_TIMEOUT = "battle:timeout"

	// CODE_CHANGED сообщает о правке кода участником (только метаданные, без кода)
	CODE_CHANGED = "battle:code_changed"

	// SUBMISSION_RESULT сообщает о вердикте по сабмиту
	SUBMISSION_RESULT = "battle:submission_result"

	// CHAT_MESSAGE сообщает о сообщении в чате битвы
	CHAT_MESSAGE = "battle:chat_message"

	// TYPING_STARTED и TYPING_STOPPED сообщают об индикаторе набора текста
	TYPING_STARTED = "battle:typing_started"
	TYPING_STOPPED = "battle:typing_stopped"
)

// Типы событий присутствия и служебные
const (
	// USER_ONLINE и USER_OFFLINE сообщают о смене статуса присутствия
	USER_ONLINE  = "user:online"
	USER_OFFLINE = "user:offline"

	// NOTIFICATION доставляет адресное или широковещательное уведомление
	NOTIFICATION = "notification"

	// SERVER_ERROR доставляет клиенту стандартизированную ошибку
	SERVER_ERROR = "server:error"
)
