package judge

import (
	"context"
	"log"
	"strings"

	"github.com/aheroglu/devbattle-api/internal/config"
	"github.com/aheroglu/devbattle-api/internal/domain/entity"
)

// Client прогоняет сабмит по тестам задачи и выносит вердикт.
// Если движок исполнения не сконфигурирован, используется заглушка:
// ее вердикты всегда помечены Stub=true и не выдают себя за настоящие.
type Client struct {
	runner Runner
}

// NewClient создает судейский клиент из конфигурации
func NewClient(cfg config.JudgeConfig) *Client {
	if cfg.BaseURL == "" {
		log.Println("[Judge] Движок исполнения не сконфигурирован, судейство работает в режиме заглушки")
		return &Client{runner: nil}
	}
	return &Client{
		runner: NewEngineRunner(cfg.BaseURL, cfg.PollIntervalMs, cfg.MaxWaitMs),
	}
}

// NewClientWithRunner создает судейский клиент с готовым Runner
func NewClientWithRunner(runner Runner) *Client {
	return &Client{runner: runner}
}

// Judge прогоняет код по всем тестам последовательно и возвращает вердикт.
// Отказ движка (недоступность, таймаут ожидания) не пробрасывается наружу:
// такой тест классифицируется как RE, и судейство завершается.
func (c *Client) Judge(ctx context.Context, code, language string, testCases entity.TestCases, timeLimitMs, memoryLimitKB int) *Verdict {
	if c.runner == nil {
		return c.stubVerdict(testCases)
	}

	outcomes := make([]caseOutcome, 0, len(testCases))
	for i, tc := range testCases {
		result, err := c.runner.Run(ctx, RunRequest{
			Code:          code,
			Language:      language,
			Stdin:         tc.Input,
			TimeLimitMs:   timeLimitMs,
			MemoryLimitKB: memoryLimitKB,
		})
		if err != nil {
			log.Printf("[Judge] Ошибка исполнения теста %d: %v", i, err)
			outcomes = append(outcomes, caseOutcome{
				verdict: entity.VerdictRE,
				result: entity.TestCaseResult{
					Index:        i,
					Passed:       false,
					ErrorMessage: err.Error(),
				},
			})
			// Движок недоступен, оставшиеся тесты гонять бессмысленно
			break
		}

		outcome := classifyCase(i, tc, result, timeLimitMs, memoryLimitKB)
		outcomes = append(outcomes, outcome)

		// Ошибка компиляции одна на весь сабмит
		if outcome.verdict == entity.VerdictCE {
			break
		}
	}

	return classify(outcomes)
}

// classifyCase выносит вердикт по одному тесту
func classifyCase(index int, tc entity.TestCase, result *RunResult, timeLimitMs, memoryLimitKB int) caseOutcome {
	caseResult := entity.TestCaseResult{
		Index:           index,
		ActualOutput:    result.Stdout,
		ExpectedOutput:  tc.ExpectedOutput,
		ExecutionTimeMs: result.TimeMs,
		MemoryUsageKB:   result.MemoryKB,
	}

	switch {
	case result.CompileError != "":
		caseResult.ErrorMessage = result.CompileError
		return caseOutcome{verdict: entity.VerdictCE, result: caseResult}

	case result.TimedOut || (timeLimitMs > 0 && result.TimeMs > int64(timeLimitMs)):
		caseResult.ErrorMessage = "time limit exceeded"
		return caseOutcome{verdict: entity.VerdictTLE, result: caseResult}

	case memoryLimitKB > 0 && result.MemoryKB > int64(memoryLimitKB):
		caseResult.ErrorMessage = "memory limit exceeded"
		return caseOutcome{verdict: entity.VerdictMLE, result: caseResult}

	case result.ExitCode != 0:
		caseResult.ErrorMessage = result.Stderr
		return caseOutcome{verdict: entity.VerdictRE, result: caseResult}

	case !outputsMatch(result.Stdout, tc.ExpectedOutput):
		return caseOutcome{verdict: entity.VerdictWA, result: caseResult}

	default:
		caseResult.Passed = true
		return caseOutcome{verdict: entity.VerdictAC, result: caseResult}
	}
}

// outputsMatch сравнивает фактический и ожидаемый вывод.
// Хвостовые пробелы и переводы строк не учитываются.
func outputsMatch(actual, expected string) bool {
	return strings.TrimRight(actual, " \n\r\t") == strings.TrimRight(expected, " \n\r\t")
}

// stubVerdict выдает вердикт заглушки: все тесты считаются пройденными,
// но вердикт явно помечен Stub=true
func (c *Client) stubVerdict(testCases entity.TestCases) *Verdict {
	results := make(entity.TestCaseResults, 0, len(testCases))
	for i := range testCases {
		results = append(results, entity.TestCaseResult{
			Index:  i,
			Passed: true,
		})
	}
	return &Verdict{
		Status:       entity.VerdictAC,
		Stub:         true,
		TestResults:  results,
		TotalTests:   len(testCases),
		PassedTests:  len(testCases),
		ErrorMessage: "stub judge: execution engine is not configured",
	}
}
