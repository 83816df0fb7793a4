package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/errors"
	"github.com/askdb/askdb/internal/logging"
)

// Supported providers
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

const anthropicVersion = "2023-06-01"

// Client implements Service over the configured provider's HTTP API
type Client struct {
	config     config.LLMConfig
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates a completion client for the configured provider
func NewClient(cfg config.LLMConfig, logger *logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.GetLogger()
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI, ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, errors.Newf(errors.ErrTypeConfig, "%s provider requires an API key", cfg.Provider).
				WithSuggestion("Set ASKDB_LLM_API_KEY or llm.api_key in the config file")
		}
	case ProviderOllama:
		// Local provider, no key.
	default:
		return nil, errors.Newf(errors.ErrTypeConfig, "unsupported LLM provider: %s", cfg.Provider)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL(cfg.Provider)
	}

	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	return &Client{
		config:     cfg,
		httpClient: &http.Client{},
		logger:     logger,
	}, nil
}

func defaultBaseURL(provider string) string {
	switch strings.ToLower(provider) {
	case ProviderAnthropic:
		return "https://api.anthropic.com"
	case ProviderOllama:
		return "http://localhost:11434"
	default:
		return "https://api.openai.com"
	}
}

// callOptions are Options with every default resolved, ready for the wire
type callOptions struct {
	model       string
	maxTokens   int
	temperature float64
}

// resolve fills unset fields from the client's configuration. An explicit
// Temperature pointer wins even when it points at zero.
func (c *Client) resolve(opts Options) callOptions {
	resolved := callOptions{
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		temperature: c.config.Temperature,
	}

	if resolved.model == "" {
		resolved.model = c.config.Model
	}

	if resolved.maxTokens <= 0 {
		resolved.maxTokens = c.config.MaxTokens
	}

	if opts.Temperature != nil {
		resolved.temperature = *opts.Temperature
	}

	return resolved
}

// Complete sends one prompt and returns the raw completion text. The text
// is untrusted output; callers must run it through sqlguard before use.
func (c *Client) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	call := c.resolve(opts)

	if opts.Timeout <= 0 {
		opts.Timeout = c.config.TimeoutDuration()
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	c.logger.WithFields(map[string]interface{}{
		"provider": c.config.Provider,
		"model":    call.model,
	}).Debug("requesting completion")

	var (
		text string
		err  error
	)

	switch strings.ToLower(c.config.Provider) {
	case ProviderAnthropic:
		text, err = c.completeAnthropic(ctx, prompt, call)
	case ProviderOllama:
		text, err = c.completeOllama(ctx, prompt, call)
	default:
		text, err = c.completeOpenAI(ctx, prompt, call)
	}

	if err != nil {
		return "", err
	}

	if strings.TrimSpace(text) == "" {
		return "", errors.New(errors.ErrTypeGeneration, "model returned an empty completion")
	}

	return text, nil
}

// OpenAI chat completion API structures
type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) completeOpenAI(ctx context.Context, prompt string, call callOptions) (string, error) {
	reqBody := openAIRequest{
		Model: call.model,
		Messages: []openAIMessage{
			{Role: "user", Content: prompt},
		},
		MaxTokens:   call.maxTokens,
		Temperature: call.temperature,
	}

	headers := map[string]string{
		"Authorization": "Bearer " + c.config.APIKey,
	}

	respBody, err := c.doRequest(ctx, c.config.BaseURL+"/v1/chat/completions", headers, reqBody)
	if err != nil {
		return "", err
	}

	var response openAIResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", errors.Wrap(err, errors.ErrTypeGeneration, "failed to parse OpenAI response")
	}

	if len(response.Choices) == 0 {
		return "", errors.New(errors.ErrTypeGeneration, "OpenAI response contained no choices")
	}

	return response.Choices[0].Message.Content, nil
}

// Anthropic messages API structures
type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (c *Client) completeAnthropic(ctx context.Context, prompt string, call callOptions) (string, error) {
	reqBody := anthropicRequest{
		Model:       call.model,
		MaxTokens:   call.maxTokens,
		Temperature: call.temperature,
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt},
		},
	}

	headers := map[string]string{
		"x-api-key":         c.config.APIKey,
		"anthropic-version": anthropicVersion,
	}

	respBody, err := c.doRequest(ctx, c.config.BaseURL+"/v1/messages", headers, reqBody)
	if err != nil {
		return "", err
	}

	var response anthropicResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", errors.Wrap(err, errors.ErrTypeGeneration, "failed to parse Anthropic response")
	}

	if len(response.Content) == 0 {
		return "", errors.New(errors.ErrTypeGeneration, "Anthropic response contained no content")
	}

	return response.Content[0].Text, nil
}

// Ollama generate API structures
type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

func (c *Client) completeOllama(ctx context.Context, prompt string, call callOptions) (string, error) {
	reqBody := ollamaRequest{
		Model:  call.model,
		Prompt: prompt,
		Stream: false,
		Options: ollamaOptions{
			Temperature: call.temperature,
			NumPredict:  call.maxTokens,
		},
	}

	respBody, err := c.doRequest(ctx, c.config.BaseURL+"/api/generate", nil, reqBody)
	if err != nil {
		return "", err
	}

	var response ollamaResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", errors.Wrap(err, errors.ErrTypeGeneration, "failed to parse Ollama response")
	}

	return response.Response, nil
}

// doRequest posts a JSON body and classifies the response status so the
// retry policy can distinguish transient failures from permanent ones.
func (c *Client) doRequest(ctx context.Context, url string, headers map[string]string, body interface{}) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeGeneration, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeGeneration, "failed to build request")
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			// A timed-out collaborator call is not retried.
			return nil, errors.Wrap(err, errors.ErrTypeGeneration, "completion request timed out")
		}

		return nil, errors.Wrap(err, errors.ErrTypeNetwork, "completion request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeNetwork, "failed to read response body")
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return respBody, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errors.New(errors.ErrTypeRateLimit, "provider rate limit exceeded").
			WithSuggestion("Wait before retrying or lower the request rate")
	case resp.StatusCode >= 500:
		return nil, errors.Newf(errors.ErrTypeNetwork, "provider server error (status %d)", resp.StatusCode)
	default:
		return nil, errors.Newf(errors.ErrTypeGeneration, "provider rejected the request (status %d): %s",
			resp.StatusCode, truncate(string(respBody), 200))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return fmt.Sprintf("%s...", s[:n])
}
