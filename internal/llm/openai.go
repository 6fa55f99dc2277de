package llm

import (
	"bytes"
	stdcontext "context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aatumaykin/goclaw/internal/logger"
	"github.com/aatumaykin/goclaw/internal/retry"
)

const (
	// DefaultRequestTimeout is the default timeout for API requests.
	DefaultRequestTimeout = 60 * time.Second
)

// OpenAIConfig contains configuration for an OpenAI-compatible provider.
type OpenAIConfig struct {
	BaseURL           string `json:"base_url"`            // Chat completions endpoint URL
	APIKey            string `json:"api_key"`             // API key for authentication
	Model             string `json:"model"`               // Default model to use
	TimeoutSeconds    int    `json:"timeout_seconds"`     // Timeout for HTTP requests in seconds
	MaxRetries        int    `json:"max_retries"`         // Retry attempts for transient failures
	RequestsPerMinute int    `json:"requests_per_minute"` // Client-side rate limit, 0 disables
}

// OpenAIProvider implements the Provider interface against any
// OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	client  *http.Client
	config  OpenAIConfig
	limiter *TokenBucketRateLimiter
	logger  *logger.Logger
}

// apiRequest represents the wire request format.
type apiRequest struct {
	Messages    []apiMessage `json:"messages"`
	Model       string       `json:"model"`
	Temperature float64      `json:"temperature,omitempty"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Tools       []apiTool    `json:"tools,omitempty"`
	ToolChoice  string       `json:"tool_choice,omitempty"`
}

// apiMessage represents a message in wire format.
type apiMessage struct {
	Role       string        `json:"role"`
	Content    string        `json:"content"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	ToolCalls  []apiToolCall `json:"tool_calls,omitempty"`
}

// apiTool represents a tool definition in wire format.
type apiTool struct {
	Type     string         `json:"type"` // Always "function"
	Function map[string]any `json:"function"`
}

// apiResponse represents the wire response format.
type apiResponse struct {
	ID      string      `json:"id"`
	Object  string      `json:"object"`
	Created int64       `json:"created"`
	Model   string      `json:"model"`
	Choices []apiChoice `json:"choices"`
	Usage   apiUsage    `json:"usage"`
	Error   *apiError   `json:"error,omitempty"`
}

// apiChoice represents a choice in the response.
type apiChoice struct {
	Index        int        `json:"index"`
	Message      apiMessage `json:"message"`
	FinishReason string     `json:"finish_reason,omitempty"`
}

// apiToolCall represents a tool call on the wire.
type apiToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"` // Always "function"
	Index    int    `json:"index,omitempty"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// apiUsage represents token usage information.
type apiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// apiError represents an error payload from the API.
type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// NewOpenAIProvider creates a new OpenAIProvider instance.
func NewOpenAIProvider(cfg OpenAIConfig, log *logger.Logger) *OpenAIProvider {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	// Tokens refill one at a time so requests are smoothed over the minute
	// rather than released in bursts.
	var limiter *TokenBucketRateLimiter
	if cfg.RequestsPerMinute > 0 {
		limiter = NewTokenBucketRateLimiter(cfg.RequestsPerMinute, time.Minute/time.Duration(cfg.RequestsPerMinute), 1)
	}

	return &OpenAIProvider{
		client: &http.Client{
			Timeout: timeout,
		},
		config:  cfg,
		limiter: limiter,
		logger:  log,
	}
}

// httpError represents an HTTP error from the API.
type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("HTTP error: status=%d, body=%s", e.StatusCode, e.Body)
}

// doRequest executes a single HTTP request to the chat completions endpoint.
func (p *OpenAIProvider) doRequest(ctx stdcontext.Context, reqBody []byte) (*apiResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.config.APIKey))
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		p.logger.ErrorCtx(ctx, "failed to execute model request", err)
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		p.logger.ErrorCtx(ctx, "failed to read model response body", err)
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		p.logger.ErrorCtx(ctx, "model API returned error status", nil,
			logger.Field{Key: "status_code", Value: httpResp.StatusCode},
			logger.Field{Key: "response_body", Value: string(respBody)})
		return nil, &httpError{
			StatusCode: httpResp.StatusCode,
			Body:       string(respBody),
		}
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		p.logger.ErrorCtx(ctx, "failed to unmarshal model response", err,
			logger.Field{Key: "response_body", Value: string(respBody)})
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if apiResp.Error != nil {
		p.logger.ErrorCtx(ctx, "model API returned error", nil,
			logger.Field{Key: "error_type", Value: apiResp.Error.Type},
			logger.Field{Key: "error_code", Value: apiResp.Error.Code},
			logger.Field{Key: "error_message", Value: apiResp.Error.Message})
		return nil, fmt.Errorf("API error: %s (code: %s): %s",
			apiResp.Error.Type, apiResp.Error.Code, apiResp.Error.Message)
	}

	return &apiResp, nil
}

// mapChatRequest maps an internal ChatRequest to wire format.
func (p *OpenAIProvider) mapChatRequest(req ChatRequest) apiRequest {
	messages := make([]apiMessage, len(req.Messages))
	for i, msg := range req.Messages {
		wireMsg := apiMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			wireCall := apiToolCall{ID: tc.ID, Type: "function"}
			wireCall.Function.Name = tc.Name
			wireCall.Function.Arguments = tc.Arguments
			wireMsg.ToolCalls = append(wireMsg.ToolCalls, wireCall)
		}
		messages[i] = wireMsg
	}

	wireReq := apiRequest{
		Messages:    messages,
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	if len(req.Tools) > 0 {
		wireReq.Tools = make([]apiTool, len(req.Tools))
		for i, tool := range req.Tools {
			wireReq.Tools[i] = apiTool{
				Type: "function",
				Function: map[string]any{
					"name":        tool.Name,
					"description": tool.Description,
					"parameters":  tool.Parameters,
				},
			}
		}
		wireReq.ToolChoice = "auto"
	}

	return wireReq
}

// mapChatResponse maps a wire response to the internal ChatResponse format.
func (p *OpenAIProvider) mapChatResponse(apiResp *apiResponse) *ChatResponse {
	usage := Usage{
		PromptTokens:     apiResp.Usage.PromptTokens,
		CompletionTokens: apiResp.Usage.CompletionTokens,
		TotalTokens:      apiResp.Usage.TotalTokens,
	}

	if len(apiResp.Choices) == 0 {
		return &ChatResponse{
			Content:      "",
			FinishReason: FinishReasonError,
			ToolCalls:    []ToolCall{},
			Usage:        usage,
			Model:        apiResp.Model,
		}
	}

	choice := apiResp.Choices[0]

	toolCalls := make([]ToolCall, len(choice.Message.ToolCalls))
	for i, tc := range choice.Message.ToolCalls {
		toolCalls[i] = ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		}
	}

	return &ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: FinishReason(choice.FinishReason),
		ToolCalls:    toolCalls,
		Usage:        usage,
		Model:        apiResp.Model,
	}
}

// Chat sends a chat completion request, retrying transient failures with
// exponential backoff.
func (p *OpenAIProvider) Chat(ctx stdcontext.Context, req ChatRequest) (*ChatResponse, error) {
	if req.Model == "" {
		req.Model = p.config.Model
	}

	p.logger.DebugCtx(ctx, "sending chat request",
		logger.Field{Key: "model", Value: req.Model},
		logger.Field{Key: "messages_count", Value: len(req.Messages)},
		logger.Field{Key: "tools_count", Value: len(req.Tools)})

	wireReq := p.mapChatRequest(req)
	jsonBody, err := json.Marshal(wireReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	if p.limiter != nil {
		if err := p.limiter.AcquireCtx(ctx); err != nil {
			return nil, err
		}
	}

	apiResp, err := retry.Do(ctx, func() (*apiResponse, error) {
		return p.doRequest(ctx, jsonBody)
	}, retry.Config{MaxAttempts: p.config.MaxRetries})
	if err != nil {
		return nil, err
	}

	return p.mapChatResponse(apiResp), nil
}

// SupportsToolCalling returns true; the OpenAI chat completions format
// carries tool definitions natively.
func (p *OpenAIProvider) SupportsToolCalling() bool {
	return true
}

// GetDefaultModel returns the configured default model.
func (p *OpenAIProvider) GetDefaultModel() string {
	return p.config.Model
}
