package chats

import (
	"strings"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// Message is an ordered sequence of fragments plus metadata. A message with
// Pending set is still being streamed into; its token count is only
// recomputed once the stream completes.
type Message struct {
	ID        MessageID   `json:"id"`
	Role      Role        `json:"role"`
	Fragments []*Fragment `json:"fragments"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// TokenCount caches the estimator result for the current fragment
	// sequence. 0 means "unknown", never "negative".
	TokenCount int  `json:"tokenCount,omitempty"`
	Pending    bool `json:"pending,omitempty"`

	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

type MessageOption func(*Message)

func WithMessageID(id MessageID) MessageOption {
	return func(m *Message) {
		m.ID = id
	}
}

func WithMessageMetadata(metadata map[string]interface{}) MessageOption {
	return func(m *Message) {
		m.Metadata = metadata
	}
}

func WithCreated(t time.Time) MessageOption {
	return func(m *Message) {
		m.Created = t
		m.Updated = t
	}
}

func WithPending(pending bool) MessageOption {
	return func(m *Message) {
		m.Pending = pending
	}
}

func NewMessage(role Role, fragments []*Fragment, options ...MessageOption) *Message {
	now := time.Now()
	ret := &Message{
		ID:        NewMessageID(),
		Role:      role,
		Fragments: fragments,
		Created:   now,
		Updated:   now,
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

func NewTextMessage(role Role, text string, options ...MessageOption) *Message {
	return NewMessage(role, []*Fragment{NewTextFragment(text)}, options...)
}

// clone returns a copy of the message with its own fragment slice. The
// fragments themselves are shared; they are immutable and only ever replaced
// wholesale.
func (m *Message) clone() *Message {
	ret := *m
	ret.Fragments = make([]*Fragment, len(m.Fragments))
	copy(ret.Fragments, m.Fragments)
	if m.Metadata != nil {
		md := make(map[string]interface{}, len(m.Metadata))
		for k, v := range m.Metadata {
			md[k] = v
		}
		ret.Metadata = md
	}
	return &ret
}

// Text concatenates the text of all text fragments.
func (m *Message) Text() string {
	var sb strings.Builder
	for _, f := range m.Fragments {
		if c, ok := f.Content.(*TextContent); ok {
			sb.WriteString(c.Text)
		}
	}
	return sb.String()
}

// FindFragment returns the fragment with the given id, or nil.
func (m *Message) FindFragment(fID FragmentID) *Fragment {
	for _, f := range m.Fragments {
		if f.ID == fID {
			return f
		}
	}
	return nil
}
