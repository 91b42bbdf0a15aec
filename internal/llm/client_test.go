package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stupiduntilnot/interviewcoach/internal/conversation"
	"github.com/stupiduntilnot/interviewcoach/internal/dummy"
)

var hi = []conversation.Message{{Role: conversation.RoleUser, Content: "hi"}}

func TestComplete_WithUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", got)
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "Hello!"}},
			},
			"usage": map[string]any{
				"prompt_tokens":     42,
				"completion_tokens": 7,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient("test-key", server.URL, "test-model")
	result, err := client.Complete(context.Background(), hi)
	if err != nil {
		t.Fatal(err)
	}
	if result.Content != "Hello!" {
		t.Errorf("expected content 'Hello!', got %q", result.Content)
	}
	if result.InputTokens != 42 {
		t.Errorf("expected 42 input tokens, got %d", result.InputTokens)
	}
	if result.OutputTokens != 7 {
		t.Errorf("expected 7 output tokens, got %d", result.OutputTokens)
	}
}

func TestComplete_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[],"usage":{"prompt_tokens":10,"completion_tokens":0}}`))
	}))
	defer server.Close()

	client := NewClient("test-key", server.URL, "test-model")
	result, err := client.Complete(context.Background(), hi)
	if err != nil {
		t.Fatal(err)
	}
	if result.Content != "(empty model response)" {
		t.Errorf("expected empty model response fallback, got %q", result.Content)
	}
	if result.InputTokens != 10 {
		t.Errorf("expected 10 input tokens, got %d", result.InputTokens)
	}
}

func TestComplete_StatusMapping(t *testing.T) {
	cases := []struct {
		status int
		check  func(error) bool
		msg    string
	}{
		{http.StatusTooManyRequests, func(err error) bool { return errors.Is(err, ErrRateLimited) }, "Rate limit exceeded, please try again later."},
		{http.StatusPaymentRequired, func(err error) bool { return errors.Is(err, ErrCreditsExhausted) }, "AI credits exhausted, please add credits to continue."},
		{http.StatusInternalServerError, func(err error) bool {
			var se *StatusError
			return errors.As(err, &se) && se.Code == 500 && strings.Contains(se.Body, "boom")
		}, "Failed to get AI response."},
	}
	for _, c := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(c.status)
			w.Write([]byte(`{"error":"boom"}`))
		}))
		client := NewClient("test-key", server.URL, "test-model")
		_, err := client.Complete(context.Background(), hi)
		server.Close()

		if err == nil || !c.check(err) {
			t.Fatalf("status %d: unexpected error %v", c.status, err)
		}
		if got := UserMessage(err); got != c.msg {
			t.Fatalf("status %d: unexpected user message %q", c.status, got)
		}
	}
}

func TestOpen_StreamsDeltas(t *testing.T) {
	up, err := dummy.NewUpstream("frame:Hel,frame:lo,frame: world,done")
	if err != nil {
		t.Fatal(err)
	}
	server := httptest.NewServer(up)
	defer server.Close()

	client := NewClient("test-key", server.URL, "test-model")
	stream, err := client.Open(context.Background(), hi)
	if err != nil {
		t.Fatal(err)
	}
	defer stream.Close()

	var updates []string
	res, err := stream.Consume(context.Background(), func(c string) { updates = append(updates, c) })
	if err != nil {
		t.Fatal(err)
	}
	if res.Content != "Hello world" || !res.Done {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(updates) != 3 || updates[2] != "Hello world" {
		t.Fatalf("unexpected updates %q", updates)
	}

	reqs := up.Requests()
	if len(reqs) != 1 || !reqs[0].Stream || reqs[0].Model != "test-model" {
		t.Fatalf("unexpected request %+v", reqs)
	}
}

func TestOpen_StatusErrorsBeforeStreaming(t *testing.T) {
	cases := map[string]string{
		"status:429": ClassRateLimited,
		"status:402": ClassCreditsExhausted,
		"status:503": ClassUpstreamStatus,
	}
	for script, class := range cases {
		up, err := dummy.NewUpstream(script)
		if err != nil {
			t.Fatal(err)
		}
		server := httptest.NewServer(up)
		client := NewClient("test-key", server.URL, "test-model")
		stream, err := client.Open(context.Background(), hi)
		server.Close()

		if stream != nil {
			t.Fatalf("%s: expected no stream", script)
		}
		if got := ErrorClass(err); got != class {
			t.Fatalf("%s: expected class %s, got %s (%v)", script, class, got, err)
		}
	}
}

func TestOpen_EmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient("test-key", server.URL, "test-model")
	_, err := client.Open(context.Background(), hi)
	if !errors.Is(err, ErrNoBody) {
		t.Fatalf("expected ErrNoBody, got %v", err)
	}
}

func TestOpen_TransportError(t *testing.T) {
	client := NewClient("test-key", "http://127.0.0.1:1/v1/chat/completions", "test-model")
	_, err := client.Open(context.Background(), hi)
	if err == nil {
		t.Fatal("expected transport error")
	}
	if got := ErrorClass(err); got != ClassTransport {
		t.Fatalf("expected transport class, got %s", got)
	}
	if got := UserMessage(err); got != "Failed to get AI response." {
		t.Fatalf("unexpected user message %q", got)
	}
}
