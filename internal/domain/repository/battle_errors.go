package repository

import "errors"

var (
	// ErrBattleNotWaiting означает, что битва не находится в статусе waiting.
	ErrBattleNotWaiting = errors.New("battle is not waiting")
	// ErrBattleNotActive означает, что битва не находится в статусе active.
	ErrBattleNotActive = errors.New("battle is not active")
	// ErrDuplicateParticipant означает нарушение уникальности (battle_id, user_id).
	ErrDuplicateParticipant = errors.New("user already joined this battle")
)
