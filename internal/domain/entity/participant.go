package entity

import (
	"time"
)

// Роли участников битвы
const (
	ParticipantRoleSolver    = "solver"
	ParticipantRoleSpectator = "spectator"
)

// Результаты участника
const (
	ParticipantResultPending = "pending"
	ParticipantResultSuccess = "success"
	ParticipantResultFailure = "failure"
)

// Participant представляет членство пользователя в одной битве.
// Пара (battle_id, user_id) уникальна; роль фиксируется при входе.
type Participant struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	BattleID       uint       `gorm:"not null;uniqueIndex:idx_battle_user" json:"battle_id"`
	UserID         uint       `gorm:"not null;uniqueIndex:idx_battle_user" json:"user_id"`
	Role           string     `gorm:"size:20;not null;default:'solver'" json:"role"`
	Result         string     `gorm:"size:20;not null;default:'pending'" json:"result"`
	JoinedAt       time.Time  `gorm:"not null" json:"joined_at"`
	CompletionTime *time.Time `json:"completion_time,omitempty"`
	Score          int        `gorm:"not null;default:0" json:"score"`
}

// TableName определяет имя таблицы для GORM
func (Participant) TableName() string {
	return "battle_participants"
}

// IsSolver проверяет, может ли участник отправлять решения
func (p *Participant) IsSolver() bool {
	return p.Role == ParticipantRoleSolver
}

// HasSucceeded проверяет, решил ли участник задачу
func (p *Participant) HasSucceeded() bool {
	return p.Result == ParticipantResultSuccess
}
