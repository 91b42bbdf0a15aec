package conversation

import "errors"

// ErrTurnClosed is returned when an assistant update arrives with no open turn.
var ErrTurnClosed = errors.New("conversation: no turn in progress")

// Conversation is an ordered message list. It only grows, except that the
// assistant reply of the open turn is replaced in place as it streams in.
// A Conversation has a single owner and is not safe for concurrent use.
type Conversation struct {
	messages []Message
	open     bool
}

// New returns a conversation seeded with history. No turn is open.
func New(history []Message) *Conversation {
	msgs := make([]Message, len(history))
	copy(msgs, history)
	return &Conversation{messages: msgs}
}

// BeginTurn appends the user message and opens a new turn. A turn left open
// by a previous call is closed first.
func (c *Conversation) BeginTurn(userText string) {
	c.messages = append(c.messages, Message{Role: RoleUser, Content: userText})
	c.open = true
}

// UpsertAssistant publishes the current reply content for the open turn: the
// tail is replaced when it is already the assistant reply, otherwise a new
// assistant message is appended.
func (c *Conversation) UpsertAssistant(content string) error {
	if !c.open {
		return ErrTurnClosed
	}
	if n := len(c.messages); n > 0 && c.messages[n-1].Role == RoleAssistant {
		c.messages[n-1].Content = content
		return nil
	}
	c.messages = append(c.messages, Message{Role: RoleAssistant, Content: content})
	return nil
}

// CompleteTurn freezes the open turn.
func (c *Conversation) CompleteTurn() {
	c.open = false
}

// InProgress reports whether a turn is open.
func (c *Conversation) InProgress() bool { return c.open }

// Len returns the number of messages.
func (c *Conversation) Len() int { return len(c.messages) }

// Messages returns a copy of the message list.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Last returns the tail message, if any.
func (c *Conversation) Last() (Message, bool) {
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}
