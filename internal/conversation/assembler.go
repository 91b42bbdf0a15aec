package conversation

// Assembler prepends the interviewer system prompt to the conversation so far.
type Assembler struct{}

// Assemble builds the request message list: system + history. The history is
// expected to end with the user message of the current turn. An empty system
// prompt is omitted.
func (a *Assembler) Assemble(system string, history []Message) []Message {
	messages := make([]Message, 0, 1+len(history))
	if system != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: system})
	}
	messages = append(messages, history...)
	return messages
}
