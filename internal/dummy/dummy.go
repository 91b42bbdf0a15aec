// Package dummy provides a scripted chat-completions upstream for tests and
// local development.
//
// A script is a list of responses separated by ';'. Each response is a list
// of comma-separated actions played against one request; the last response
// repeats once the script is exhausted.
//
//	status:<code>     reply with a non-streaming status (must come first)
//	frame:<text>      emit one delta frame with text as content
//	frameb64:<b64>    same, with base64 text
//	chunk:<text>      write raw bytes, no framing
//	chunkb64:<b64>    same, with base64 bytes
//	sleep:<ms>        pause before the next action
//	done              emit the [DONE] sentinel
package dummy

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

type action struct {
	kind string
	arg  string
}

func parseResponse(script string) ([]action, error) {
	parts := strings.Split(script, ",")
	actions := make([]action, 0, len(parts))
	for _, p := range parts {
		token := strings.TrimSpace(p)
		if token == "" {
			continue
		}
		if token == "done" {
			actions = append(actions, action{kind: "done"})
			continue
		}
		kind, arg, ok := strings.Cut(token, ":")
		if !ok {
			return nil, fmt.Errorf("invalid dummy action: %s", token)
		}
		switch kind {
		case "frame", "chunk", "sleep":
		case "status":
			if _, err := strconv.Atoi(arg); err != nil {
				return nil, fmt.Errorf("invalid dummy status: %s", token)
			}
		case "frameb64", "chunkb64":
			raw, err := base64.StdEncoding.DecodeString(arg)
			if err != nil {
				return nil, fmt.Errorf("dummy %s decode failed: %w", kind, err)
			}
			kind, arg = strings.TrimSuffix(kind, "b64"), string(raw)
		default:
			return nil, fmt.Errorf("invalid dummy action: %s", token)
		}
		actions = append(actions, action{kind: kind, arg: arg})
	}
	if len(actions) == 0 {
		actions = append(actions, action{kind: "frame", arg: "dummy-ok"}, action{kind: "done"})
	}
	return actions, nil
}

func parseScript(script string) ([][]action, error) {
	var responses [][]action
	for _, part := range strings.Split(script, ";") {
		actions, err := parseResponse(part)
		if err != nil {
			return nil, err
		}
		responses = append(responses, actions)
	}
	return responses, nil
}

// Upstream serves scripted chat-completion responses.
type Upstream struct {
	mu        sync.Mutex
	responses [][]action
	index     int
	requests  []openai.ChatCompletionRequest
}

// NewUpstream parses script and returns the handler.
func NewUpstream(script string) (*Upstream, error) {
	responses, err := parseScript(script)
	if err != nil {
		return nil, err
	}
	return &Upstream{responses: responses}, nil
}

func (u *Upstream) next(req openai.ChatCompletionRequest) []action {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.requests = append(u.requests, req)
	if u.index >= len(u.responses) {
		return u.responses[len(u.responses)-1]
	}
	a := u.responses[u.index]
	u.index++
	return a
}

// Requests returns the decoded requests received so far.
func (u *Upstream) Requests() []openai.ChatCompletionRequest {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]openai.ChatCompletionRequest, len(u.requests))
	copy(out, u.requests)
	return out
}

func (u *Upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	actions := u.next(req)

	if len(actions) > 0 && actions[0].kind == "status" {
		code, _ := strconv.Atoi(actions[0].arg)
		if code < 200 || code >= 300 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(code)
			fmt.Fprintf(w, `{"error":"dummy status %d"}`, code)
			return
		}
		actions = actions[1:]
	}

	if !req.Stream {
		writeCompletion(w, req.Model, actions)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	for _, a := range actions {
		switch a.kind {
		case "frame":
			fmt.Fprintf(w, "data: %s\n\n", Frame(a.arg))
		case "chunk":
			fmt.Fprint(w, a.arg)
		case "done":
			fmt.Fprint(w, "data: [DONE]\n\n")
		case "sleep":
			ms, _ := strconv.Atoi(a.arg)
			if ms > 0 {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func writeCompletion(w http.ResponseWriter, model string, actions []action) {
	var content strings.Builder
	for _, a := range actions {
		switch a.kind {
		case "frame", "chunk":
			content.WriteString(a.arg)
		case "sleep":
			ms, _ := strconv.Atoi(a.arg)
			if ms > 0 {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		}
	}
	resp := openai.ChatCompletionResponse{
		Object: "chat.completion",
		Model:  model,
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content.String()},
		}},
		Usage: openai.Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Frame returns the JSON payload of one streaming delta carrying content.
func Frame(content string) string {
	chunk := openai.ChatCompletionStreamResponse{
		Object: "chat.completion.chunk",
		Choices: []openai.ChatCompletionStreamChoice{{
			Delta: openai.ChatCompletionStreamChoiceDelta{Content: content},
		}},
	}
	data, _ := json.Marshal(chunk)
	return string(data)
}
