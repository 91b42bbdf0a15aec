package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
)

// ErrNotFound is returned by a Store when the key is absent.
var ErrNotFound = errors.New("conversation: key not found")

// Store is the key-value persistence used for conversation history.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// HistoryKey returns the store key holding a conversation's messages.
func HistoryKey(conversationID string) string {
	return "history:" + conversationID
}

// LoadHistory reads a conversation's messages. Absent or corrupt entries
// yield an empty history; only store failures are returned as errors.
func LoadHistory(ctx context.Context, store Store, conversationID string) ([]Message, error) {
	raw, err := store.Get(ctx, HistoryKey(conversationID))
	if errors.Is(err, ErrNotFound) {
		return []Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load history %s: %w", conversationID, err)
	}

	var msgs []Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		log.Printf("[conversation] discarding corrupt history id=%s: %v", conversationID, err)
		return []Message{}, nil
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return msgs, nil
}

// SaveHistory replaces a conversation's stored messages.
func SaveHistory(ctx context.Context, store Store, conversationID string, msgs []Message) error {
	if msgs == nil {
		msgs = []Message{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("marshal history %s: %w", conversationID, err)
	}
	if err := store.Put(ctx, HistoryKey(conversationID), data); err != nil {
		return fmt.Errorf("save history %s: %w", conversationID, err)
	}
	return nil
}

// DeleteHistory removes a conversation's messages. Deleting an absent
// conversation is not an error.
func DeleteHistory(ctx context.Context, store Store, conversationID string) error {
	err := store.Delete(ctx, HistoryKey(conversationID))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete history %s: %w", conversationID, err)
	}
	return nil
}
