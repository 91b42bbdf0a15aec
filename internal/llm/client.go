// Package llm talks to an OpenAI-compatible chat-completions endpoint, both
// streaming (server-sent events) and non-streaming.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	openai "github.com/sashabaranov/go-openai"

	"github.com/stupiduntilnot/interviewcoach/internal/conversation"
	"github.com/stupiduntilnot/interviewcoach/internal/sse"
)

const (
	emptyResponse = "(empty model response)"
	maxErrorBody  = 400
)

// Client is a minimal chat completions client. Deadlines come from the
// caller's context; the transport itself has no timeout so long streams are
// not cut off.
type Client struct {
	apiKey      string
	url         string
	model       string
	temperature float32
	http        *resty.Client
}

// NewClient creates a chat completions client.
func NewClient(apiKey, url, model string) *Client {
	return &Client{
		apiKey:      apiKey,
		url:         url,
		model:       model,
		temperature: 0.7,
		http:        resty.New(),
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Completion is the result of a non-streaming request.
type Completion struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// Stream is an open streaming response whose status has already been checked.
type Stream struct {
	body io.ReadCloser
}

// NewStream wraps a body that is known to carry a chat-completion event stream.
func NewStream(body io.ReadCloser) *Stream {
	return &Stream{body: body}
}

// Consume decodes the stream, calling onUpdate with the accumulated assistant
// content after every fragment.
func (s *Stream) Consume(ctx context.Context, onUpdate func(content string)) (sse.Result, error) {
	return sse.Consume(ctx, s.body, onUpdate)
}

// Close releases the underlying response body.
func (s *Stream) Close() error {
	return s.body.Close()
}

func (c *Client) request(messages []conversation.Message, stream bool) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: c.temperature,
		Stream:      stream,
	}
}

// Open starts a streaming completion. The HTTP status is mapped to an error
// before any of the body is consumed.
func (c *Client) Open(ctx context.Context, messages []conversation.Message) (*Stream, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.apiKey).
		SetHeader("Accept", "text/event-stream").
		SetBody(c.request(messages, true)).
		SetDoNotParseResponse(true).
		Post(c.url)
	if err != nil {
		return nil, fmt.Errorf("llm stream request failed: %w", err)
	}

	if resp.RawResponse == nil {
		return nil, ErrNoBody
	}
	body := resp.RawBody()
	if err := statusError(resp.StatusCode(), func() string { return readDiagnostic(body) }); err != nil {
		if body != nil {
			body.Close()
		}
		return nil, err
	}
	if body == nil || body == http.NoBody || resp.RawResponse.ContentLength == 0 {
		if body != nil {
			body.Close()
		}
		return nil, ErrNoBody
	}
	return NewStream(body), nil
}

// Complete sends a non-streaming completion request.
func (c *Client) Complete(ctx context.Context, messages []conversation.Message) (Completion, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.apiKey).
		SetBody(c.request(messages, false)).
		Post(c.url)
	if err != nil {
		return Completion{}, fmt.Errorf("llm request failed: %w", err)
	}

	body := resp.Body()
	if err := statusError(resp.StatusCode(), func() string { return truncate(string(body), maxErrorBody) }); err != nil {
		return Completion{}, err
	}

	var parsed openai.ChatCompletionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Completion{}, fmt.Errorf("failed to parse llm response: %s", truncate(string(body), maxErrorBody))
	}

	result := Completion{
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
	}
	if len(parsed.Choices) == 0 {
		result.Content = emptyResponse
		return result, nil
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		result.Content = emptyResponse
		return result, nil
	}
	result.Content = content
	return result, nil
}

func statusError(code int, diagnostic func() string) error {
	if code >= 200 && code < 300 {
		return nil
	}
	switch code {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, diagnostic())
	case http.StatusPaymentRequired:
		return fmt.Errorf("%w: %s", ErrCreditsExhausted, diagnostic())
	default:
		return &StatusError{Code: code, Body: diagnostic()}
	}
}

func readDiagnostic(body io.Reader) string {
	if body == nil {
		return ""
	}
	data, _ := io.ReadAll(io.LimitReader(body, 4*maxErrorBody))
	return truncate(string(data), maxErrorBody)
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
