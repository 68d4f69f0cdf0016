package chats

import (
	"time"
)

// Conversation holds an ordered message sequence (append order is display
// order) plus conversation-level metadata. The cancellation handle for an
// in-flight response is deliberately NOT a field here: it is transient,
// unserializable state and lives in the Store's side-table instead.
type Conversation struct {
	ID       ConversationID `json:"id"`
	Messages []*Message     `json:"messages"`

	// SystemPurposeID selects the persona the conversation runs under.
	SystemPurposeID string `json:"systemPurposeId,omitempty"`

	AutoTitle  string `json:"autoTitle,omitempty"`
	UserTitle  string `json:"userTitle,omitempty"`
	UserSymbol string `json:"userSymbol,omitempty"`

	// TokenCount caches the aggregate fold over message token counts.
	TokenCount int `json:"tokenCount,omitempty"`

	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

type ConversationOption func(*Conversation)

func WithConversationID(id ConversationID) ConversationOption {
	return func(c *Conversation) {
		c.ID = id
	}
}

func WithSystemPurposeID(systemPurposeID string) ConversationOption {
	return func(c *Conversation) {
		c.SystemPurposeID = systemPurposeID
	}
}

func NewConversation(options ...ConversationOption) *Conversation {
	now := time.Now()
	ret := &Conversation{
		ID:         NewConversationID(),
		TokenCount: AggregateTokenCount(nil),
		Created:    now,
		Updated:    now,
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

// clone returns a copy of the conversation with its own message slice. The
// messages themselves are shared; a message edit clones the message first.
func (c *Conversation) clone() *Conversation {
	ret := *c
	ret.Messages = make([]*Message, len(c.Messages))
	copy(ret.Messages, c.Messages)
	return &ret
}

func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// Title returns the user title if set, otherwise the auto-generated one.
func (c *Conversation) Title() string {
	if c.UserTitle != "" {
		return c.UserTitle
	}
	return c.AutoTitle
}

// FindMessage returns the index and message for the given id, or (-1, nil).
func (c *Conversation) FindMessage(mID MessageID) (int, *Message) {
	for i, m := range c.Messages {
		if m.ID == mID {
			return i, m
		}
	}
	return -1, nil
}
