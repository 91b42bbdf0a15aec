package conversation

import "testing"

func TestAssembler_Assemble(t *testing.T) {
	a := &Assembler{}
	history := []Message{
		{Role: RoleUser, Content: "prev question"},
		{Role: RoleAssistant, Content: "prev answer"},
		{Role: RoleUser, Content: "new question"},
	}
	result := a.Assemble("You are an interviewer.", history)

	if len(result) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(result))
	}
	if result[0].Role != RoleSystem || result[0].Content != "You are an interviewer." {
		t.Errorf("unexpected system message: %+v", result[0])
	}
	if result[1].Role != RoleUser || result[1].Content != "prev question" {
		t.Errorf("unexpected history[0]: %+v", result[1])
	}
	if result[2].Role != RoleAssistant || result[2].Content != "prev answer" {
		t.Errorf("unexpected history[1]: %+v", result[2])
	}
	if result[3].Role != RoleUser || result[3].Content != "new question" {
		t.Errorf("unexpected user message: %+v", result[3])
	}
}

func TestAssembler_EmptySystemPrompt(t *testing.T) {
	a := &Assembler{}
	result := a.Assemble("", []Message{{Role: RoleUser, Content: "hello"}})

	if len(result) != 1 {
		t.Fatalf("expected 1 message, got %d", len(result))
	}
	if result[0].Role != RoleUser || result[0].Content != "hello" {
		t.Errorf("unexpected user message: %+v", result[0])
	}
}
