package entity

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Вердикты судейства. Порядок приоритета при классификации: CE > RE > TLE > MLE > WA > AC.
const (
	VerdictAC  = "AC"  // Accepted — все тесты пройдены
	VerdictWA  = "WA"  // Wrong Answer
	VerdictTLE = "TLE" // Time Limit Exceeded
	VerdictMLE = "MLE" // Memory Limit Exceeded
	VerdictRE  = "RE"  // Runtime Error (также: движок недоступен)
	VerdictCE  = "CE"  // Compilation Error
)

// TestCaseResult — результат прогона одного теста
type TestCaseResult struct {
	Index           int    `json:"index"`
	Passed          bool   `json:"passed"`
	ActualOutput    string `json:"actual_output,omitempty"`
	ExpectedOutput  string `json:"expected_output,omitempty"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
	MemoryUsageKB   int64  `json:"memory_usage_kb"`
	ErrorMessage    string `json:"error_message,omitempty"`
}

// TestCaseResults - пользовательский тип для работы с JSONB
type TestCaseResults []TestCaseResult

// Scan реализует интерфейс sql.Scanner для TestCaseResults
// Используется GORM для чтения JSONB данных из базы
func (r *TestCaseResults) Scan(value interface{}) error {
	if value == nil {
		*r = TestCaseResults{}
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to unmarshal JSONB value: expected []byte")
	}

	if len(bytes) == 0 {
		*r = TestCaseResults{}
		return nil
	}

	return json.Unmarshal(bytes, r)
}

// Value реализует интерфейс driver.Valuer для TestCaseResults
// Используется GORM для записи TestCaseResults в JSONB в базе
func (r TestCaseResults) Value() (driver.Value, error) {
	if len(r) == 0 {
		return []byte("[]"), nil // Возвращаем пустой JSON массив вместо null
	}
	return json.Marshal(r)
}

// SubmissionResult представляет одну судейскую попытку.
// Запись создается ровно один раз на submit и больше никогда не изменяется.
type SubmissionResult struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	BattleID        uint            `gorm:"not null;index" json:"battle_id"`
	ParticipantID   uint            `gorm:"not null;index" json:"participant_id"`
	Code            string          `gorm:"type:text;not null" json:"code"`
	Language        string          `gorm:"size:30;not null" json:"language"`
	Status          string          `gorm:"size:10;not null" json:"status"`
	Stub            bool            `gorm:"not null;default:false" json:"stub"` // вердикт выдан заглушкой, а не движком
	ExecutionTimeMs int64           `gorm:"not null;default:0" json:"execution_time_ms"`
	MemoryUsageKB   int64           `gorm:"not null;default:0" json:"memory_usage_kb"`
	TestResults     TestCaseResults `gorm:"type:jsonb;not null" json:"test_results"`
	TotalTests      int             `gorm:"not null;default:0" json:"total_tests"`
	PassedTests     int             `gorm:"not null;default:0" json:"passed_tests"`
	ErrorMessage    string          `gorm:"type:text;not null;default:''" json:"error_message,omitempty"`
	SubmittedAt     time.Time       `gorm:"not null" json:"submitted_at"`
}

// TableName определяет имя таблицы для GORM
func (SubmissionResult) TableName() string {
	return "submission_results"
}

// IsAccepted проверяет, принято ли решение
func (s *SubmissionResult) IsAccepted() bool {
	return s.Status == VerdictAC
}
