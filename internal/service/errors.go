package service

import "errors"

// Ошибки уровня сервисов, не покрытые общей таксономией internal/pkg/errors
var (
	// ErrNotEnoughSolvers — старт битвы требует минимального числа solver'ов
	ErrNotEnoughSolvers = errors.New("not enough solvers to start the battle")

	// ErrCreatorCannotLeave — создатель не может покинуть собственную битву
	ErrCreatorCannotLeave = errors.New("battle creator cannot leave the battle")
)
