package entity

import (
	"time"
)

// Константы статусов битвы
const (
	BattleStatusWaiting   = "waiting"
	BattleStatusActive    = "active"
	BattleStatusCompleted = "completed"
)

// Константы сложности
const (
	BattleDifficultyEasy   = "easy"
	BattleDifficultyMedium = "medium"
	BattleDifficultyHard   = "hard"
)

// Battle представляет одну запланированную битву (сессию соревнования)
type Battle struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Title           string     `gorm:"size:100;not null" json:"title"`
	Difficulty      string     `gorm:"size:20;not null;default:'medium'" json:"difficulty"`
	Language        string     `gorm:"size:30;not null" json:"language"`
	MaxDuration     int        `gorm:"not null;default:30" json:"max_duration"` // минуты
	MaxParticipants int        `gorm:"not null;default:2" json:"max_participants"`
	Status          string     `gorm:"size:20;not null;default:'waiting';index" json:"status"`
	CreatorID       uint       `gorm:"not null;index" json:"creator_id"`
	ProblemID       uint       `gorm:"not null" json:"problem_id"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	WinnerID        *uint      `json:"winner_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (Battle) TableName() string {
	return "battles"
}

// IsWaiting проверяет, что битва еще не началась
func (b *Battle) IsWaiting() bool {
	return b.Status == BattleStatusWaiting
}

// IsActive проверяет, идет ли битва сейчас
func (b *Battle) IsActive() bool {
	return b.Status == BattleStatusActive
}

// IsCompleted проверяет, завершена ли битва
func (b *Battle) IsCompleted() bool {
	return b.Status == BattleStatusCompleted
}

// Deadline возвращает момент автоматического завершения битвы.
// Имеет смысл только для активной битвы с установленным StartTime.
func (b *Battle) Deadline() (time.Time, bool) {
	if b.StartTime == nil {
		return time.Time{}, false
	}
	return b.StartTime.Add(time.Duration(b.MaxDuration) * time.Minute), true
}

// RemainingTime возвращает оставшееся время битвы на момент now.
// Для просроченной битвы возвращает 0.
func (b *Battle) RemainingTime(now time.Time) time.Duration {
	deadline, ok := b.Deadline()
	if !ok {
		return 0
	}
	remaining := deadline.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}
