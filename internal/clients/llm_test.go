package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDecisionTemperature(t *testing.T) {
	c := &openAIClient{maxRetries: 3}

	assert.Equal(t, float32(0.8), c.decisionTemperature(1))
	assert.Equal(t, float32(0), c.decisionTemperature(2))
	assert.Equal(t, float32(0), c.decisionTemperature(3))
}

func newChatCompletionResponse(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		ID:     "chatcmpl-test",
		Object: "chat.completion",
		Model:  "gpt-4o-mini",
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: content,
			}},
		},
	}
}

func TestGenerateDecision_RetriesAfterServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "upstream overloaded", http.StatusInternalServerError)
			return
		}
		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		// Повторная попытка идет с нулевой температурой.
		assert.Equal(t, float32(0), req.Temperature)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(newChatCompletionResponse(
			`{"decision_type":"narrate","narration_text":"The door creaks open."}`,
		))
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(OpenAIConfig{
		APIKey:     "test-key",
		BaseURL:    srv.URL + "/v1",
		Timeout:    10 * time.Second,
		MaxRetries: 3,
	}, zap.NewNop())
	require.NoError(t, err)

	decision, raw, err := client.GenerateDecision(context.Background(), "system", "user")

	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, "The door creaks open.", decision.NarrationText)
	assert.NotEmpty(t, raw)
}

func TestGenerateDecision_TimeoutIsPerAttempt(t *testing.T) {
	// Первая попытка висит дольше таймаута, вторая отвечает сразу: с
	// таймаутом на весь цикл ретраев вторая попытка не успела бы.
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			time.Sleep(600 * time.Millisecond)
			http.Error(w, "too slow", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(newChatCompletionResponse(
			`{"decision_type":"narrate","narration_text":"Still here."}`,
		))
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(OpenAIConfig{
		APIKey:     "test-key",
		BaseURL:    srv.URL + "/v1",
		Timeout:    300 * time.Millisecond,
		MaxRetries: 2,
	}, zap.NewNop())
	require.NoError(t, err)

	decision, _, err := client.GenerateDecision(context.Background(), "system", "user")

	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, "Still here.", decision.NarrationText)
}
