package conversation

import "testing"

func TestCompressor_Truncate(t *testing.T) {
	c := &Compressor{MaxMessages: 2}
	msgs := []Message{
		{Role: RoleAssistant, Content: "a"},
		{Role: RoleUser, Content: "b"},
		{Role: RoleAssistant, Content: "c"},
	}
	result := c.Compress(msgs)
	if len(result) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(result))
	}
	if result[0].Content != "b" {
		t.Errorf("expected 'b', got %q", result[0].Content)
	}
	if result[1].Content != "c" {
		t.Errorf("expected 'c', got %q", result[1].Content)
	}
}

func TestCompressor_WindowStartsWithUser(t *testing.T) {
	c := &Compressor{MaxMessages: 2}
	msgs := []Message{
		{Role: RoleUser, Content: "a"},
		{Role: RoleAssistant, Content: "b"},
		{Role: RoleUser, Content: "c"},
	}
	result := c.Compress(msgs)
	if len(result) != 1 {
		t.Fatalf("expected 1 message, got %d", len(result))
	}
	if result[0].Content != "c" {
		t.Errorf("expected 'c', got %q", result[0].Content)
	}
}

func TestCompressor_NoTruncation(t *testing.T) {
	c := &Compressor{MaxMessages: 5}
	msgs := []Message{
		{Role: RoleUser, Content: "a"},
		{Role: RoleAssistant, Content: "b"},
	}
	if result := c.Compress(msgs); len(result) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(result))
	}
}

func TestCompressor_ZeroMax(t *testing.T) {
	c := &Compressor{MaxMessages: 0}
	msgs := []Message{{Role: RoleUser, Content: "a"}}
	if result := c.Compress(msgs); len(result) != 1 {
		t.Fatalf("expected 1 message (no truncation with 0 max), got %d", len(result))
	}
}
