package errors

import "errors"

// Общие ошибки приложения
var (
	// ErrNotFound используется, когда запись или ресурс не найдены.
	ErrNotFound = errors.New("record not found")

	// ErrUnauthorized используется для ошибок аутентификации (неверный токен).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden используется, когда у пользователя недостаточно прав для действия
	// (не создатель битвы, не SOLVER и т.п.).
	ErrForbidden = errors.New("forbidden")

	// ErrValidation используется для ошибок валидации входных данных.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidState используется, когда действие недопустимо в текущем статусе битвы
	// (например, submit в битву со статусом waiting).
	ErrInvalidState = errors.New("invalid battle state")

	// ErrConflict используется для конфликтов состояния (например, повторный join).
	ErrConflict = errors.New("resource state conflict")

	// ErrCapacityExceeded используется, когда число SOLVER-участников достигло max_participants.
	ErrCapacityExceeded = errors.New("battle capacity exceeded")

	// ErrTooLarge используется, когда код решения превышает допустимый размер.
	ErrTooLarge = errors.New("submission too large")

	// ErrExecutionFailure используется, когда внешний судейский движок недоступен
	// или не ответил за отведённое время. На уровне submit-потока деградирует до
	// вердикта RE, наружу как ошибка не выходит.
	ErrExecutionFailure = errors.New("execution engine failure")
)
