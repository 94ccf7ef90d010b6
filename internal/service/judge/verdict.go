package judge

import (
	"github.com/aheroglu/devbattle-api/internal/domain/entity"
)

// Verdict — итог судейства одного сабмита
type Verdict struct {
	// Status — один из вердиктов entity.VerdictAC..VerdictCE
	Status string
	// Stub выставлен, если вердикт выдан заглушкой, а не реальным движком
	Stub bool
	// ExecutionTimeMs — суммарное время исполнения по всем тестам
	ExecutionTimeMs int64
	// MemoryUsageKB — максимум использованной памяти среди тестов
	MemoryUsageKB int64
	TestResults   entity.TestCaseResults
	TotalTests    int
	PassedTests   int
	ErrorMessage  string
}

// IsAccepted проверяет, принято ли решение
func (v *Verdict) IsAccepted() bool {
	return v.Status == entity.VerdictAC
}

// caseOutcome — классифицированный результат одного теста
type caseOutcome struct {
	verdict string
	result  entity.TestCaseResult
}

// verdictRank задает приоритет вердиктов при агрегации:
// CE > RE > TLE > MLE > WA > AC. Итоговый вердикт сабмита —
// наихудший (наивысший по приоритету) среди вердиктов тестов.
var verdictRank = map[string]int{
	entity.VerdictCE:  5,
	entity.VerdictRE:  4,
	entity.VerdictTLE: 3,
	entity.VerdictMLE: 2,
	entity.VerdictWA:  1,
	entity.VerdictAC:  0,
}

// classify сворачивает результаты тестов в итоговый вердикт.
// Время суммируется по тестам, память берется как максимум.
func classify(outcomes []caseOutcome) *Verdict {
	verdict := &Verdict{
		Status:     entity.VerdictAC,
		TotalTests: len(outcomes),
	}

	for _, oc := range outcomes {
		verdict.TestResults = append(verdict.TestResults, oc.result)
		verdict.ExecutionTimeMs += oc.result.ExecutionTimeMs
		if oc.result.MemoryUsageKB > verdict.MemoryUsageKB {
			verdict.MemoryUsageKB = oc.result.MemoryUsageKB
		}
		if oc.result.Passed {
			verdict.PassedTests++
		}
		if verdictRank[oc.verdict] > verdictRank[verdict.Status] {
			verdict.Status = oc.verdict
			verdict.ErrorMessage = oc.result.ErrorMessage
		}
	}

	return verdict
}
