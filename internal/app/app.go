// Package app wires configuration into a running chat service. Both the HTTP
// server and the terminal client start from here.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http/httptest"
	"os"
	"time"

	"github.com/stupiduntilnot/interviewcoach/internal/chat"
	"github.com/stupiduntilnot/interviewcoach/internal/config"
	"github.com/stupiduntilnot/interviewcoach/internal/control"
	"github.com/stupiduntilnot/interviewcoach/internal/db"
	"github.com/stupiduntilnot/interviewcoach/internal/dummy"
	"github.com/stupiduntilnot/interviewcoach/internal/llm"
	"github.com/stupiduntilnot/interviewcoach/internal/store"
)

// App holds the process-wide resources.
type App struct {
	Chat    *chat.Service
	DB      *sql.DB
	EventID *int64

	closers []func() error
}

// New opens the state database, the conversation store and the model
// endpoint, and logs process.started under role.
func New(ctx context.Context, cfg config.ServerConfig, role string) (*App, error) {
	a := &App{}

	database, err := db.OpenDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	a.DB = database
	a.closers = append(a.closers, database.Close)
	if err := db.InitSchema(database); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	eventID, err := db.LogEvent(database, nil, db.EventProcessStarted, map[string]any{
		"role":     role,
		"pid":      os.Getpid(),
		"provider": cfg.Provider,
		"store":    cfg.Store,
		"model":    cfg.Model,
	})
	if err != nil {
		log.Printf("[%s] failed to log process.started: %v", role, err)
	} else {
		a.EventID = &eventID
	}

	kv, closeStore, err := store.Open(ctx, store.Options{
		Backend:        cfg.Store,
		StateDB:        database,
		PostgresDSN:    cfg.PostgresDSN,
		DynamoTable:    cfg.DynamoTable,
		DynamoRegion:   cfg.DynamoRegion,
		DynamoEndpoint: cfg.DynamoEndpoint,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store, err)
	}
	a.closers = append(a.closers, closeStore)

	model, err := a.newModel(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Chat = chat.NewService(kv, model, chat.Options{
		SystemPrompt:  cfg.SystemPrompt,
		HistoryWindow: cfg.HistoryWindow,
		Policy: control.Policy{
			StreamWallTime:  time.Duration(cfg.StreamWallTimeSeconds) * time.Second,
			RequestTimeout:  time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
			MaxMessageChars: cfg.MaxMessageChars,
		},
		Circuit:       control.NewCircuitBreaker(cfg.CircuitThreshold, time.Duration(cfg.CircuitCooldownSeconds)*time.Second),
		Events:        database,
		ParentEventID: a.EventID,
	})
	return a, nil
}

// newModel returns the configured endpoint client. The dummy provider serves
// its script from a loopback listener so the whole HTTP path is exercised.
func (a *App) newModel(cfg config.ServerConfig) (*llm.Client, error) {
	switch cfg.Provider {
	case "openai":
		return llm.NewClient(cfg.APIKey, cfg.ChatCompletionsURL, cfg.Model), nil
	case "dummy":
		up, err := dummy.NewUpstream(cfg.DummyScript)
		if err != nil {
			return nil, fmt.Errorf("invalid LLM_DUMMY_SCRIPT: %w", err)
		}
		srv := httptest.NewServer(up)
		a.closers = append(a.closers, func() error { srv.Close(); return nil })
		log.Printf("[app] dummy model endpoint at %s", srv.URL)
		return llm.NewClient("dummy", srv.URL, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported LLM_PROVIDER: %s", cfg.Provider)
	}
}

// Close logs process.stopped and releases resources in reverse order.
func (a *App) Close() error {
	if a.DB != nil && a.EventID != nil {
		if _, err := db.LogEvent(a.DB, a.EventID, db.EventProcessStopped, nil); err != nil {
			log.Printf("[app] failed to log process.stopped: %v", err)
		}
	}
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
