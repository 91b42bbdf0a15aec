package conversation

// Compressor keeps only the most recent MaxMessages messages.
type Compressor struct {
	MaxMessages int
}

// Compress truncates messages to the most recent MaxMessages entries. When the
// cut lands on an assistant reply, that reply is dropped as well so the window
// opens with a user message.
func (c *Compressor) Compress(messages []Message) []Message {
	if c.MaxMessages <= 0 || len(messages) <= c.MaxMessages {
		return messages
	}
	window := messages[len(messages)-c.MaxMessages:]
	if len(window) > 1 && window[0].Role == RoleAssistant {
		window = window[1:]
	}
	return window
}
