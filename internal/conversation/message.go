// Package conversation holds interview conversation state: the ordered
// message list, turn lifecycle, request assembly, and history persistence.
package conversation

// Message roles understood by the chat-completions endpoint.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat message. Position in the conversation is its only
// identifier.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
