package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stupiduntilnot/interviewcoach/internal/config"
	"github.com/stupiduntilnot/interviewcoach/internal/db"
)

func TestNew_DummyProviderEndToEnd(t *testing.T) {
	cfg := config.ServerConfig{
		DBPath:                 filepath.Join(t.TempDir(), "coach.db"),
		Store:                  "sqlite",
		Provider:               "dummy",
		Model:                  "dummy-model",
		DummyScript:            "frame:Hello,frame: candidate,done",
		RequestTimeoutSeconds:  5,
		StreamWallTimeSeconds:  5,
		CircuitThreshold:       3,
		CircuitCooldownSeconds: 30,
		HistoryWindow:          10,
	}
	a, err := New(context.Background(), cfg, "test")
	require.NoError(t, err)
	require.NotNil(t, a.EventID)

	reply, err := a.Chat.Send(context.Background(), "conv-1", "Hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello candidate", reply.Content)

	history, err := a.Chat.History(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Len(t, history, 2)

	root, err := db.LatestProcessRoot(a.DB, "test")
	require.NoError(t, err)
	assert.Equal(t, *a.EventID, root)

	require.NoError(t, a.Close())
}

func TestNew_RejectsBadDummyScript(t *testing.T) {
	cfg := config.ServerConfig{
		DBPath:      filepath.Join(t.TempDir(), "coach.db"),
		Store:       "memory",
		Provider:    "dummy",
		DummyScript: "bogus",
	}
	_, err := New(context.Background(), cfg, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM_DUMMY_SCRIPT")
}
