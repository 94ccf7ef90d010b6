package judge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aheroglu/devbattle-api/internal/domain/entity"
)

// ============================================================================
// Моки для судейского клиента
// ============================================================================

// MockRunner реализует Runner
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*RunResult), args.Error(1)
}

func testCases(n int) entity.TestCases {
	tcs := make(entity.TestCases, 0, n)
	for i := 0; i < n; i++ {
		tcs = append(tcs, entity.TestCase{Input: "in", ExpectedOutput: "out"})
	}
	return tcs
}

func TestJudge_AllAccepted(t *testing.T) {
	runner := new(MockRunner)
	runner.On("Run", mock.Anything, mock.Anything).
		Return(&RunResult{Stdout: "out", TimeMs: 10, MemoryKB: 1024}, nil).Times(3)

	client := NewClientWithRunner(runner)
	v := client.Judge(context.Background(), "code", "go", testCases(3), 2000, 262144)

	require.NotNil(t, v)
	assert.Equal(t, entity.VerdictAC, v.Status)
	assert.False(t, v.Stub)
	assert.Equal(t, 3, v.PassedTests)
	assert.Equal(t, int64(30), v.ExecutionTimeMs)
	runner.AssertExpectations(t)
}

func TestJudge_WrongAnswer(t *testing.T) {
	runner := new(MockRunner)
	// Два верных ответа, потом неверный, потом снова верные
	runner.On("Run", mock.Anything, mock.Anything).
		Return(&RunResult{Stdout: "out"}, nil).Twice()
	runner.On("Run", mock.Anything, mock.Anything).
		Return(&RunResult{Stdout: "wrong"}, nil).Once()
	runner.On("Run", mock.Anything, mock.Anything).
		Return(&RunResult{Stdout: "out"}, nil).Twice()

	client := NewClientWithRunner(runner)
	v := client.Judge(context.Background(), "code", "go", testCases(5), 2000, 262144)

	assert.Equal(t, entity.VerdictWA, v.Status)
	assert.Equal(t, 5, v.TotalTests)
	assert.Equal(t, 4, v.PassedTests)
}

func TestJudge_TimeLimitBeatsWrongAnswer(t *testing.T) {
	runner := new(MockRunner)
	runner.On("Run", mock.Anything, mock.Anything).
		Return(&RunResult{Stdout: "wrong"}, nil).Once()
	runner.On("Run", mock.Anything, mock.Anything).
		Return(&RunResult{Stdout: "out", TimedOut: true}, nil).Once()

	client := NewClientWithRunner(runner)
	v := client.Judge(context.Background(), "code", "go", testCases(2), 2000, 262144)

	assert.Equal(t, entity.VerdictTLE, v.Status)
}

func TestJudge_TimeOverLimitIsTLE(t *testing.T) {
	runner := new(MockRunner)
	runner.On("Run", mock.Anything, mock.Anything).
		Return(&RunResult{Stdout: "out", TimeMs: 5000}, nil).Once()

	client := NewClientWithRunner(runner)
	v := client.Judge(context.Background(), "code", "go", testCases(1), 2000, 262144)

	assert.Equal(t, entity.VerdictTLE, v.Status)
}

func TestJudge_MemoryOverLimitIsMLE(t *testing.T) {
	runner := new(MockRunner)
	runner.On("Run", mock.Anything, mock.Anything).
		Return(&RunResult{Stdout: "out", MemoryKB: 500000}, nil).Once()

	client := NewClientWithRunner(runner)
	v := client.Judge(context.Background(), "code", "go", testCases(1), 2000, 262144)

	assert.Equal(t, entity.VerdictMLE, v.Status)
}

func TestJudge_NonZeroExitIsRE(t *testing.T) {
	runner := new(MockRunner)
	runner.On("Run", mock.Anything, mock.Anything).
		Return(&RunResult{Stderr: "panic", ExitCode: 2}, nil).Once()

	client := NewClientWithRunner(runner)
	v := client.Judge(context.Background(), "code", "go", testCases(1), 2000, 262144)

	assert.Equal(t, entity.VerdictRE, v.Status)
	assert.Equal(t, "panic", v.ErrorMessage)
}

func TestJudge_CompileErrorStopsEvaluation(t *testing.T) {
	runner := new(MockRunner)
	// Ошибка компиляции на первом тесте; остальные тесты не запускаются
	runner.On("Run", mock.Anything, mock.Anything).
		Return(&RunResult{CompileError: "syntax error"}, nil).Once()

	client := NewClientWithRunner(runner)
	v := client.Judge(context.Background(), "code", "go", testCases(5), 2000, 262144)

	assert.Equal(t, entity.VerdictCE, v.Status)
	assert.Equal(t, 1, v.TotalTests)
	assert.Equal(t, "syntax error", v.ErrorMessage)
	runner.AssertExpectations(t)
}

func TestJudge_EngineFailureDegradesToRE(t *testing.T) {
	runner := new(MockRunner)
	runner.On("Run", mock.Anything, mock.Anything).
		Return(&RunResult{Stdout: "out"}, nil).Once()
	runner.On("Run", mock.Anything, mock.Anything).
		Return(nil, errors.New("engine is down")).Once()

	client := NewClientWithRunner(runner)
	v := client.Judge(context.Background(), "code", "go", testCases(5), 2000, 262144)

	// Отказ движка не выходит наружу как ошибка: вердикт RE,
	// оставшиеся тесты не прогоняются
	require.NotNil(t, v)
	assert.Equal(t, entity.VerdictRE, v.Status)
	assert.Equal(t, 2, v.TotalTests)
	assert.Equal(t, 1, v.PassedTests)
	runner.AssertExpectations(t)
}

func TestJudge_StubVerdictIsDistinguishable(t *testing.T) {
	client := NewClientWithRunner(nil)
	v := client.Judge(context.Background(), "code", "go", testCases(4), 2000, 262144)

	// Заглушка принимает все, но честно помечает вердикт
	assert.Equal(t, entity.VerdictAC, v.Status)
	assert.True(t, v.Stub)
	assert.Equal(t, 4, v.PassedTests)
	assert.NotEmpty(t, v.ErrorMessage)
}
