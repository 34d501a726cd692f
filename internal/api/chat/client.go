package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/nurseiq/internal/domain"
	"github.com/tjfontaine/nurseiq/internal/tokens"
)

// Collaborator is the name used in CollaboratorError values from this client.
const Collaborator = "azure-openai"

const (
	defaultAPIVersion = "2024-05-01-preview"
	defaultDeployment = "gpt-4o-mini"
	defaultTimeout    = 30 * time.Second
	maxErrorBody      = 4096
)

// Config identifies the deployment.
type Config struct {
	Endpoint   string
	APIKey     string
	Deployment string
	APIVersion string
	// Model selects the tokenizer for prompt budgeting.
	Model   string
	Timeout time.Duration
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTokenBudget rejects prompts whose token count exceeds maxTokens before
// any request is sent. A non-positive maxTokens disables the check.
func WithTokenBudget(counter *tokens.Counter, maxTokens int) ClientOption {
	return func(c *Client) {
		c.counter = counter
		c.maxPromptTokens = maxTokens
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client is an HTTP client for an Azure OpenAI chat completions deployment.
type Client struct {
	cfg             Config
	httpClient      *http.Client
	counter         *tokens.Counter
	maxPromptTokens int
	logger          *slog.Logger
}

var _ domain.TextGenerator = (*Client)(nil)

// NewClient creates a new client. Missing credentials are not an error here;
// every call reports ErrorTypeNotConfigured instead so callers can fall back.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	cfg.Endpoint = strings.TrimSuffix(cfg.Endpoint, "/")
	if cfg.Deployment == "" {
		cfg.Deployment = defaultDeployment
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.Model == "" {
		cfg.Model = cfg.Deployment
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	c := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether both endpoint and key are present.
func (c *Client) Configured() bool {
	return c.cfg.Endpoint != "" && c.cfg.APIKey != ""
}

func (c *Client) completionsURL() string {
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		c.cfg.Endpoint, url.PathEscape(c.cfg.Deployment), url.QueryEscape(c.cfg.APIVersion))
}

// CreateChatCompletion sends a chat completion request.
func (c *Client) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if !c.Configured() {
		return nil, domain.NewCollaboratorError(Collaborator, domain.ErrorTypeNotConfigured,
			"AZURE_OPENAI_ENDPOINT and AZURE_OPENAI_KEY must be set")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.completionsURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", c.cfg.APIKey)
	httpReq.Header.Set("User-Agent", "nurseiq/1.0")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		message := string(truncate(respBody, maxErrorBody))
		if apiErr, err := ParseErrorResponse(respBody); err == nil && apiErr != nil && apiErr.Message != "" {
			message = apiErr.Message
		}
		return nil, domain.NewCollaboratorError(Collaborator, domain.ErrorTypeForStatus(resp.StatusCode), message).
			WithStatusCode(resp.StatusCode)
	}

	var result ChatCompletionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, domain.NewCollaboratorError(Collaborator, domain.ErrorTypeMalformedReply,
			fmt.Sprintf("failed to unmarshal response: %v", err))
	}

	return &result, nil
}

// Generate implements domain.TextGenerator. It returns the trimmed content of
// the first choice.
func (c *Client) Generate(ctx context.Context, req *domain.CompletionRequest) (string, error) {
	if c.counter != nil && c.maxPromptTokens > 0 {
		count, estimated := c.counter.CountMessages(c.cfg.Model, req.Messages)
		c.logger.Debug("prompt tokens counted",
			slog.Int("tokens", count),
			slog.Bool("estimated", estimated))
		if count > c.maxPromptTokens {
			return "", domain.NewCollaboratorError(Collaborator, domain.ErrorTypeContextLength,
				fmt.Sprintf("prompt is %d tokens, budget is %d", count, c.maxPromptTokens))
		}
	}

	temperature := req.Temperature
	chatReq := &ChatCompletionRequest{
		Messages:    make([]ChatCompletionMessage, len(req.Messages)),
		MaxTokens:   req.MaxTokens,
		Temperature: &temperature,
	}
	for i, m := range req.Messages {
		chatReq.Messages[i] = ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	resp, err := c.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", domain.NewCollaboratorError(Collaborator, domain.ErrorTypeMalformedReply, "response has no choices")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
