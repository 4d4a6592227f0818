package bus

// InboundMessage is one user request entering the agent pipeline.
//
// Ownership transfers through the bus: the producer must not touch the
// message after a successful push.
type InboundMessage struct {
	Channel  string            `json:"channel"`
	ChatID   string            `json:"chat_id"`
	Content  string            `json:"content"`
	Meta     string            `json:"meta,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage is one agent response leaving the pipeline.
//
// Meta carries the channel-specific delivery token (for Discord, the
// interaction token addressing the follow-up webhook).
type OutboundMessage struct {
	Channel  string            `json:"channel"`
	ChatID   string            `json:"chat_id"`
	Content  string            `json:"content"`
	Meta     string            `json:"meta,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
