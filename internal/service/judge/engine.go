package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	apperrors "github.com/aheroglu/devbattle-api/internal/pkg/errors"
)

// RunRequest — запрос на исполнение кода с одним входом
type RunRequest struct {
	Code          string `json:"code"`
	Language      string `json:"language"`
	Stdin         string `json:"stdin"`
	TimeLimitMs   int    `json:"time_limit_ms"`
	MemoryLimitKB int    `json:"memory_limit_kb"`
}

// RunResult — результат исполнения кода движком
type RunResult struct {
	Stdout       string `json:"stdout"`
	Stderr       string `json:"stderr"`
	ExitCode     int    `json:"exit_code"`
	TimeMs       int64  `json:"time_ms"`
	MemoryKB     int64  `json:"memory_kb"`
	CompileError string `json:"compile_error"`
	TimedOut     bool   `json:"timed_out"`
}

// Runner исполняет код с одним входом и возвращает результат
type Runner interface {
	Run(ctx context.Context, req RunRequest) (*RunResult, error)
}

// EngineRunner — клиент внешнего движка исполнения кода.
// Протокол: POST {base}/executions ставит задачу в очередь и возвращает ID,
// затем статус опрашивается через GET {base}/executions/{id} до status=done.
type EngineRunner struct {
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
	maxWait      time.Duration
}

// NewEngineRunner создает клиент движка исполнения
func NewEngineRunner(baseURL string, pollIntervalMs, maxWaitMs int) *EngineRunner {
	if pollIntervalMs <= 0 {
		pollIntervalMs = 500
	}
	if maxWaitMs <= 0 {
		maxWaitMs = 20000
	}
	return &EngineRunner{
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		pollInterval: time.Duration(pollIntervalMs) * time.Millisecond,
		maxWait:      time.Duration(maxWaitMs) * time.Millisecond,
	}
}

// executionStatus — ответ движка на запрос статуса исполнения
type executionStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"` // queued | running | done
	RunResult
}

// Run ставит исполнение в очередь движка и ждет результата ограниченное время.
// Ожидание ограничено и maxWait, и переданным контекстом: по истечении любого
// из них возвращается ErrExecutionFailure.
func (e *EngineRunner) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	executionID, err := e.submit(ctx, req)
	if err != nil {
		return nil, err
	}

	deadline := time.NewTimer(e.maxWait)
	defer deadline.Stop()
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: execution %s canceled: %v", apperrors.ErrExecutionFailure, executionID, ctx.Err())
		case <-deadline.C:
			log.Printf("[Judge] Движок не вернул результат исполнения %s за %v", executionID, e.maxWait)
			return nil, fmt.Errorf("%w: execution %s timed out after %v", apperrors.ErrExecutionFailure, executionID, e.maxWait)
		case <-ticker.C:
			status, err := e.poll(ctx, executionID)
			if err != nil {
				return nil, err
			}
			if status.Status == "done" {
				result := status.RunResult
				return &result, nil
			}
		}
	}
}

// submit отправляет код на исполнение и возвращает ID задачи
func (e *EngineRunner) submit(ctx context.Context, req RunRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("%w: failed to marshal run request: %v", apperrors.ErrExecutionFailure, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/executions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: failed to build submit request: %v", apperrors.ErrExecutionFailure, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: engine submit failed: %v", apperrors.ErrExecutionFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: engine submit returned status %d: %s", apperrors.ErrExecutionFailure, resp.StatusCode, string(payload))
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("%w: failed to decode engine submit response: %v", apperrors.ErrExecutionFailure, err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("%w: engine submit response missing execution id", apperrors.ErrExecutionFailure)
	}

	return created.ID, nil
}

// poll запрашивает статус исполнения
func (e *EngineRunner) poll(ctx context.Context, executionID string) (*executionStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/executions/"+executionID, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build poll request: %v", apperrors.ErrExecutionFailure, err)
	}

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: engine poll failed: %v", apperrors.ErrExecutionFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: engine poll returned status %d: %s", apperrors.ErrExecutionFailure, resp.StatusCode, string(payload))
	}

	var status executionStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("%w: failed to decode engine poll response: %v", apperrors.ErrExecutionFailure, err)
	}

	return &status, nil
}
