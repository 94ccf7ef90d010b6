package judge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aheroglu/devbattle-api/internal/pkg/errors"
)

func TestEngineRunner_Run(t *testing.T) {
	var polls int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/executions":
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]string{"id": "exec-1"})
		case r.Method == http.MethodGet && r.URL.Path == "/executions/exec-1":
			// Первый опрос — еще исполняется, второй — готово
			if atomic.AddInt32(&polls, 1) < 2 {
				json.NewEncoder(w).Encode(map[string]interface{}{"id": "exec-1", "status": "running"})
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":        "exec-1",
				"status":    "done",
				"stdout":    "42",
				"time_ms":   17,
				"memory_kb": 2048,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	runner := NewEngineRunner(server.URL, 10, 5000)
	result, err := runner.Run(context.Background(), RunRequest{Code: "print(42)", Language: "python"})

	require.NoError(t, err)
	assert.Equal(t, "42", result.Stdout)
	assert.Equal(t, int64(17), result.TimeMs)
	assert.Equal(t, int64(2048), result.MemoryKB)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&polls), int32(2))
}

func TestEngineRunner_SubmitFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	runner := NewEngineRunner(server.URL, 10, 5000)
	_, err := runner.Run(context.Background(), RunRequest{Code: "x"})

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrExecutionFailure)
}

func TestEngineRunner_MaxWaitExceeded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(map[string]string{"id": "exec-2"})
			return
		}
		// Движок никогда не завершает исполнение
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "exec-2", "status": "running"})
	}))
	defer server.Close()

	runner := NewEngineRunner(server.URL, 10, 50)
	_, err := runner.Run(context.Background(), RunRequest{Code: "while true: pass"})

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrExecutionFailure)
}

func TestEngineRunner_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(map[string]string{"id": "exec-3"})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "exec-3", "status": "queued"})
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := NewEngineRunner(server.URL, 10, 5000)
	_, err := runner.Run(ctx, RunRequest{Code: "x"})

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrExecutionFailure)
}
