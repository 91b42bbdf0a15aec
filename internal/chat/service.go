// Package chat runs interview turns: it loads a conversation, streams the
// interviewer's reply from the model endpoint into it, and persists the
// result.
package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/stupiduntilnot/interviewcoach/internal/control"
	"github.com/stupiduntilnot/interviewcoach/internal/conversation"
	"github.com/stupiduntilnot/interviewcoach/internal/db"
	"github.com/stupiduntilnot/interviewcoach/internal/llm"
)

var (
	ErrEmptyMessage   = errors.New("chat: message is empty")
	ErrCircuitOpen    = errors.New("chat: model endpoint temporarily unavailable")
	ErrTurnInProgress = errors.New("chat: a reply is already streaming for this conversation")
	ErrNoTranscript   = errors.New("chat: conversation has no messages")
)

const defaultFeedbackPrompt = "You are reviewing a mock job interview. Assess the candidate's answers: " +
	"strengths, weaknesses, and concrete suggestions. Be specific and concise."

// Model is the chat-completions endpoint used by the service.
type Model interface {
	Open(ctx context.Context, messages []conversation.Message) (*llm.Stream, error)
	Complete(ctx context.Context, messages []conversation.Message) (llm.Completion, error)
	Model() string
}

// Options configures a Service.
type Options struct {
	SystemPrompt   string
	FeedbackPrompt string
	HistoryWindow  int
	Policy         control.Policy
	Circuit        *control.CircuitBreaker
	// Events is the state database; nil disables the event log.
	Events *sql.DB
	// ParentEventID roots the service's events under a process event.
	ParentEventID *int64
}

// Service runs turns against one store and one model endpoint. It is safe
// for concurrent use; turns on the same conversation are exclusive.
type Service struct {
	store      conversation.Store
	model      Model
	opts       Options
	circuit    *control.CircuitBreaker
	assembler  conversation.Assembler
	compressor conversation.Compressor
	now        func() time.Time

	mu     sync.Mutex
	active map[string]bool
}

// NewService wires a Service.
func NewService(store conversation.Store, model Model, opts Options) *Service {
	if opts.FeedbackPrompt == "" {
		opts.FeedbackPrompt = defaultFeedbackPrompt
	}
	circuit := opts.Circuit
	if circuit == nil {
		circuit = control.NewCircuitBreaker(0, 0)
	}
	return &Service{
		store:      store,
		model:      model,
		opts:       opts,
		circuit:    circuit,
		compressor: conversation.Compressor{MaxMessages: opts.HistoryWindow},
		now:        time.Now,
		active:     map[string]bool{},
	}
}

// Reply is the outcome of a streamed turn.
type Reply struct {
	Content  string
	Done     bool
	Messages []conversation.Message
}

// Turn is an open reply stream for one user message. Close must be called.
type Turn struct {
	svc            *Service
	conversationID string
	conv           *conversation.Conversation
	stream         *llm.Stream
	ctx            context.Context
	cancel         context.CancelFunc
	eventID        *int64
	closeOnce      sync.Once
}

func (s *Service) acquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[id] {
		return false
	}
	s.active[id] = true
	return true
}

func (s *Service) release(id string) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}

// Begin appends the user message and opens the reply stream. Upstream status
// failures are returned here, before any streaming.
func (s *Service) Begin(ctx context.Context, conversationID, userText string) (*Turn, error) {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return nil, ErrEmptyMessage
	}
	if err := control.CheckMessageLength(s.opts.Policy, userText); err != nil {
		return nil, err
	}
	if !s.acquire(conversationID) {
		return nil, ErrTurnInProgress
	}

	turn, err := s.begin(ctx, conversationID, userText)
	if err != nil {
		s.release(conversationID)
		return nil, err
	}
	return turn, nil
}

func (s *Service) begin(ctx context.Context, conversationID, userText string) (*Turn, error) {
	if err := s.allow(); err != nil {
		return nil, err
	}

	history, err := conversation.LoadHistory(ctx, s.store, conversationID)
	if err != nil {
		return nil, err
	}
	conv := conversation.New(history)
	conv.BeginTurn(userText)

	seq := 0
	if s.opts.Events != nil {
		if seq, err = db.NextTurnSeq(s.opts.Events, conversationID); err != nil {
			log.Printf("[chat] failed to derive turn seq id=%s: %v", conversationID, err)
		}
	}
	turnEventID := s.logEvent(s.opts.ParentEventID, db.EventTurnStarted, map[string]any{
		"conversation_id": conversationID,
		"turn":            seq,
		"model":           s.model.Model(),
		"history_len":     len(history),
	})

	messages := s.assembler.Assemble(s.opts.SystemPrompt, s.compressor.Compress(conv.Messages()))
	streamCtx, cancel := control.StreamContext(ctx, s.opts.Policy)
	started := s.now()
	stream, err := s.model.Open(streamCtx, messages)
	if err != nil {
		cancel()
		class := llm.ErrorClass(err)
		s.recordFailure(class)
		s.logEvent(turnEventID, db.EventStreamFailed, map[string]any{
			"conversation_id": conversationID,
			"stage":           "open",
			"error_class":     class,
			"error":           err.Error(),
		})
		return nil, fmt.Errorf("open reply stream: %w", err)
	}
	s.recordSuccess()
	s.logEvent(turnEventID, db.EventStreamOpened, map[string]any{
		"conversation_id": conversationID,
		"latency_ms":      s.now().Sub(started).Milliseconds(),
		"request_len":     len(messages),
	})

	return &Turn{
		svc:            s,
		conversationID: conversationID,
		conv:           conv,
		stream:         stream,
		ctx:            streamCtx,
		cancel:         cancel,
		eventID:        turnEventID,
	}, nil
}

// Stream consumes the reply, publishing the accumulated assistant content
// through onUpdate, then completes the turn and saves the conversation.
// Content received before a mid-stream failure is kept.
func (t *Turn) Stream(onUpdate func(content string)) (Reply, error) {
	s := t.svc
	started := s.now()
	res, streamErr := t.stream.Consume(t.ctx, func(content string) {
		if err := t.conv.UpsertAssistant(content); err != nil {
			return
		}
		if onUpdate != nil {
			onUpdate(content)
		}
	})
	t.conv.CompleteTurn()

	payload := map[string]any{
		"conversation_id": t.conversationID,
		"chars":           len([]rune(res.Content)),
		"done":            res.Done,
		"duration_ms":     s.now().Sub(started).Milliseconds(),
	}
	if streamErr != nil {
		payload["stage"] = "consume"
		payload["error_class"] = llm.ErrorClass(streamErr)
		payload["error"] = streamErr.Error()
		s.logEvent(t.eventID, db.EventStreamFailed, payload)
	} else {
		s.logEvent(t.eventID, db.EventStreamCompleted, payload)
	}

	msgs := t.conv.Messages()
	// A canceled request context must not prevent saving what was received.
	saveCtx := context.WithoutCancel(t.ctx)
	if err := conversation.SaveHistory(saveCtx, s.store, t.conversationID, msgs); err != nil {
		return Reply{Content: res.Content, Done: res.Done, Messages: msgs}, errors.Join(streamErr, err)
	}
	s.logEvent(t.eventID, db.EventHistorySaved, map[string]any{
		"conversation_id": t.conversationID,
		"messages":        len(msgs),
	})

	reply := Reply{Content: res.Content, Done: res.Done, Messages: msgs}
	if streamErr != nil {
		return reply, fmt.Errorf("consume reply stream: %w", streamErr)
	}
	return reply, nil
}

// Close releases the stream and the conversation. It is safe to call more
// than once.
func (t *Turn) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = t.stream.Close()
		t.cancel()
		t.svc.release(t.conversationID)
	})
	return err
}

// Send runs a whole turn: Begin, Stream, Close.
func (s *Service) Send(ctx context.Context, conversationID, userText string, onUpdate func(content string)) (Reply, error) {
	turn, err := s.Begin(ctx, conversationID, userText)
	if err != nil {
		return Reply{}, err
	}
	defer turn.Close()
	return turn.Stream(onUpdate)
}

// History returns the stored messages of a conversation.
func (s *Service) History(ctx context.Context, conversationID string) ([]conversation.Message, error) {
	return conversation.LoadHistory(ctx, s.store, conversationID)
}

// Reset deletes a conversation's history.
func (s *Service) Reset(ctx context.Context, conversationID string) error {
	if !s.acquire(conversationID) {
		return ErrTurnInProgress
	}
	defer s.release(conversationID)

	if err := conversation.DeleteHistory(ctx, s.store, conversationID); err != nil {
		return err
	}
	s.logEvent(s.opts.ParentEventID, db.EventHistoryReset, map[string]any{"conversation_id": conversationID})
	return nil
}

// Feedback asks the model for an evaluation of the interview so far.
func (s *Service) Feedback(ctx context.Context, conversationID string) (llm.Completion, error) {
	history, err := conversation.LoadHistory(ctx, s.store, conversationID)
	if err != nil {
		return llm.Completion{}, err
	}
	if len(history) == 0 {
		return llm.Completion{}, ErrNoTranscript
	}
	if err := s.allow(); err != nil {
		return llm.Completion{}, err
	}

	messages := s.assembler.Assemble(s.opts.FeedbackPrompt, history)
	messages = append(messages, conversation.Message{
		Role:    conversation.RoleUser,
		Content: "Please give me feedback on my interview so far.",
	})

	reqCtx, cancel := control.RequestContext(ctx, s.opts.Policy)
	defer cancel()
	completion, err := s.model.Complete(reqCtx, messages)
	if err != nil {
		class := llm.ErrorClass(err)
		s.recordFailure(class)
		s.logEvent(s.opts.ParentEventID, db.EventFeedbackFailed, map[string]any{
			"conversation_id": conversationID,
			"error_class":     class,
		})
		return llm.Completion{}, fmt.Errorf("feedback completion: %w", err)
	}
	s.recordSuccess()
	s.logEvent(s.opts.ParentEventID, db.EventFeedbackCompleted, map[string]any{
		"conversation_id": conversationID,
		"input_tokens":    completion.InputTokens,
		"output_tokens":   completion.OutputTokens,
	})
	return completion, nil
}

func (s *Service) allow() error {
	prev := s.circuit.State()
	if !s.circuit.Allow(s.now()) {
		return ErrCircuitOpen
	}
	if prev == control.CircuitOpen && s.circuit.State() == control.CircuitHalfOpen {
		s.logEvent(s.opts.ParentEventID, db.EventCircuitHalfOpen, map[string]any{
			"error_class": s.circuit.OpenedClass(),
		})
	}
	return nil
}

func (s *Service) recordFailure(class string) {
	// Caller-side cancellation says nothing about upstream health.
	if class == llm.ClassCanceled {
		return
	}
	if s.circuit.RecordFailure(class, s.now()) {
		log.Printf("[chat] circuit opened error_class=%s", class)
		s.logEvent(s.opts.ParentEventID, db.EventCircuitOpened, map[string]any{
			"error_class":      class,
			"threshold":        s.circuit.Threshold,
			"cooldown_seconds": int(s.circuit.Cooldown.Seconds()),
		})
	}
}

func (s *Service) recordSuccess() {
	if prev := s.circuit.RecordSuccess(); prev != control.CircuitClosed {
		s.logEvent(s.opts.ParentEventID, db.EventCircuitClosed, nil)
	}
}

func (s *Service) logEvent(parentID *int64, eventType string, payload map[string]any) *int64 {
	if s.opts.Events == nil {
		return nil
	}
	id, err := db.LogEvent(s.opts.Events, parentID, eventType, payload)
	if err != nil {
		log.Printf("[chat] failed to log %s: %v", eventType, err)
		return nil
	}
	return &id
}
