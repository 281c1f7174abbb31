// Package completion wraps a DeepSeek chat completion endpoint. DeepSeek
// speaks the OpenAI wire protocol, so the same client library serves with
// a different base URL.
package completion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	// DefaultBaseURL is the DeepSeek API endpoint.
	DefaultBaseURL = "https://api.deepseek.com"

	// ChatModel is the general-purpose model.
	ChatModel = "deepseek-chat"

	// ReasonerModel is the chain-of-thought model used for analytical
	// philosophical questions.
	ReasonerModel = "deepseek-reasoner"
)

// ErrUnavailable indicates the completion backend failed irrecoverably.
var ErrUnavailable = errors.New("completion backend unavailable")

// Roles accepted in a chat transcript.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes one chat completion call.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Response carries the completion text plus the token counts needed for
// cost accounting.
type Response struct {
	Content          string
	Model            string
	PromptTokens     int64
	CompletionTokens int64
}

// Client calls the DeepSeek chat completions API.
type Client struct {
	client *openai.Client
}

// NewClient creates a DeepSeek client. It reads DEEPSEEK_API_KEY from the
// environment and returns an error if not set. The endpoint can be
// overridden with DEEPSEEK_API_URL.
func NewClient() (*Client, error) {
	apiKey := os.Getenv("DEEPSEEK_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("DEEPSEEK_API_KEY environment variable not set")
	}

	baseURL := os.Getenv("DEEPSEEK_API_URL")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
	)
	return &Client{client: &client}, nil
}

// Complete runs one chat completion, retrying with exponential backoff on
// rate limit errors (HTTP 429). Other errors fail immediately.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.Model == "" {
		req.Model = ChatModel
	}

	params := openai.ChatCompletionNewParams{
		Model:    req.Model,
		Messages: toParamMessages(req.Messages),
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	var resp *openai.ChatCompletion

	operation := func() error {
		r, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			if isRateLimitError(err) {
				return err // Will retry with backoff
			}
			return backoff.Permanent(err)
		}
		if len(r.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("response has no choices"))
		}
		resp = r
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &Response{
		Content:          resp.Choices[0].Message.Content,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func toParamMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
