package entity

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// TestCase — один тест задачи: вход и ожидаемый вывод
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
}

// TestCases - пользовательский тип для работы с JSONB
type TestCases []TestCase

// Scan реализует интерфейс sql.Scanner для TestCases
func (t *TestCases) Scan(value interface{}) error {
	if value == nil {
		*t = TestCases{}
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to unmarshal JSONB value: expected []byte")
	}

	if len(bytes) == 0 {
		*t = TestCases{}
		return nil
	}

	return json.Unmarshal(bytes, t)
}

// Value реализует интерфейс driver.Valuer для TestCases
func (t TestCases) Value() (driver.Value, error) {
	if len(t) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(t)
}

// Problem представляет задачу, которая решается в битве
type Problem struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Title         string    `gorm:"size:100;not null" json:"title"`
	Description   string    `gorm:"type:text;not null;default:''" json:"description"`
	Difficulty    string    `gorm:"size:20;not null;default:'medium'" json:"difficulty"`
	TestCases     TestCases `gorm:"type:jsonb;not null" json:"test_cases,omitempty"`
	TimeLimitMs   int       `gorm:"not null;default:2000" json:"time_limit_ms"`
	MemoryLimitKB int       `gorm:"not null;default:262144" json:"memory_limit_kb"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (Problem) TableName() string {
	return "problems"
}
