package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/errors"
)

func testLLMConfig(provider, baseURL string) config.LLMConfig {
	return config.LLMConfig{
		Provider:    provider,
		Model:       "test-model",
		APIKey:      "test-key",
		BaseURL:     baseURL,
		MaxTokens:   256,
		Temperature: 0.1,
		Timeout:     "5s",
	}
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(config.LLMConfig{Provider: "openai"}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))

	_, err = NewClient(config.LLMConfig{Provider: "watson"}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))

	// Ollama is local and needs no key.
	_, err = NewClient(config.LLMConfig{Provider: "ollama", Timeout: "5s"}, nil)
	assert.NoError(t, err)
}

func TestComplete_OpenAI(t *testing.T) {
	var captured openAIRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		_ = json.NewEncoder(w).Encode(openAIResponse{
			Choices: []struct {
				Message openAIMessage `json:"message"`
			}{
				{Message: openAIMessage{Role: "assistant", Content: "SELECT 1;"}},
			},
		})
	}))
	defer server.Close()

	client, err := NewClient(testLLMConfig(ProviderOpenAI, server.URL), nil)
	require.NoError(t, err)

	text, err := client.Complete(context.Background(), "how many orders?", Options{})
	require.NoError(t, err)

	assert.Equal(t, "SELECT 1;", text)
	assert.Equal(t, "test-model", captured.Model)
	assert.Equal(t, 256, captured.MaxTokens)
	require.Len(t, captured.Messages, 1)
	assert.Equal(t, "how many orders?", captured.Messages[0].Content)
}

func TestComplete_Anthropic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		_ = json.NewEncoder(w).Encode(anthropicResponse{
			Content: []struct {
				Text string `json:"text"`
			}{
				{Text: "SELECT count(*) FROM orders;"},
			},
		})
	}))
	defer server.Close()

	client, err := NewClient(testLLMConfig(ProviderAnthropic, server.URL), nil)
	require.NoError(t, err)

	text, err := client.Complete(context.Background(), "how many orders?", Options{})
	require.NoError(t, err)
	assert.Equal(t, "SELECT count(*) FROM orders;", text)
}

func TestComplete_Ollama(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)

		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)

		_ = json.NewEncoder(w).Encode(ollamaResponse{Response: "SELECT 1;"})
	}))
	defer server.Close()

	cfg := testLLMConfig(ProviderOllama, server.URL)
	cfg.APIKey = ""

	client, err := NewClient(cfg, nil)
	require.NoError(t, err)

	text, err := client.Complete(context.Background(), "ping", Options{})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1;", text)
}

func TestComplete_RateLimitIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewClient(testLLMConfig(ProviderOpenAI, server.URL), nil)
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "q", Options{})
	require.Error(t, err)

	assert.True(t, errors.IsType(err, errors.ErrTypeRateLimit))
	assert.True(t, IsRetryable(err))
}

func TestComplete_ServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := NewClient(testLLMConfig(ProviderOpenAI, server.URL), nil)
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "q", Options{})
	require.Error(t, err)

	assert.True(t, errors.IsType(err, errors.ErrTypeNetwork))
	assert.True(t, IsRetryable(err))
}

func TestComplete_ClientErrorIsNotRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client, err := NewClient(testLLMConfig(ProviderOpenAI, server.URL), nil)
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "q", Options{})
	require.Error(t, err)

	assert.True(t, errors.IsType(err, errors.ErrTypeGeneration))
	assert.False(t, IsRetryable(err))
}

func TestComplete_EmptyCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(openAIResponse{
			Choices: []struct {
				Message openAIMessage `json:"message"`
			}{
				{Message: openAIMessage{Role: "assistant", Content: "   "}},
			},
		})
	}))
	defer server.Close()

	client, err := NewClient(testLLMConfig(ProviderOpenAI, server.URL), nil)
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "q", Options{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeGeneration))
}

func TestComplete_TimeoutIsNotRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(ollamaResponse{Response: "SELECT 1;"})
	}))
	defer server.Close()

	cfg := testLLMConfig(ProviderOllama, server.URL)
	cfg.APIKey = ""

	client, err := NewClient(cfg, nil)
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "q", Options{Timeout: 30 * time.Millisecond})
	require.Error(t, err)

	assert.True(t, errors.IsType(err, errors.ErrTypeGeneration))
	assert.False(t, IsRetryable(err))
}

func TestOptions_OverrideDefaults(t *testing.T) {
	var captured openAIRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		_ = json.NewEncoder(w).Encode(openAIResponse{
			Choices: []struct {
				Message openAIMessage `json:"message"`
			}{
				{Message: openAIMessage{Content: "SELECT 1;"}},
			},
		})
	}))
	defer server.Close()

	client, err := NewClient(testLLMConfig(ProviderOpenAI, server.URL), nil)
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "q", Options{
		Model:     "other-model",
		MaxTokens: 42,
	})
	require.NoError(t, err)

	assert.Equal(t, "other-model", captured.Model)
	assert.Equal(t, 42, captured.MaxTokens)
}

func TestOptions_ExplicitZeroTemperature(t *testing.T) {
	var captured openAIRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		_ = json.NewEncoder(w).Encode(openAIResponse{
			Choices: []struct {
				Message openAIMessage `json:"message"`
			}{
				{Message: openAIMessage{Content: "SELECT 1;"}},
			},
		})
	}))
	defer server.Close()

	client, err := NewClient(testLLMConfig(ProviderOpenAI, server.URL), nil)
	require.NoError(t, err)

	// nil pointer falls back to the configured default.
	_, err = client.Complete(context.Background(), "q", Options{})
	require.NoError(t, err)
	assert.Equal(t, 0.1, captured.Temperature)

	// An explicit zero must reach the wire, not be swapped for the default.
	zero := 0.0
	_, err = client.Complete(context.Background(), "q", Options{Temperature: &zero})
	require.NoError(t, err)
	assert.Equal(t, 0.0, captured.Temperature)
}
