package persist

import (
	"time"

	"github.com/go-go-golems/carlo/pkg/chats"
)

// Pre-v4 blobs store each message as a single text field instead of a
// fragment sequence. These types cover the union of the v1 through v3
// shapes; the per-version migration steps normalize within them before the
// final conversion to the fragment model.

type LegacyMessage struct {
	ID   string `json:"id"`
	Role string `json:"role"`
	Text string `json:"text"`
	// Content is the v1 name of Text.
	Content string `json:"content,omitempty"`

	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	TokenCount int                    `json:"tokenCount,omitempty"`

	PendingIncomplete bool `json:"pendingIncomplete,omitempty"`
	Typing            bool `json:"typing,omitempty"`

	Created time.Time `json:"created"`
	Updated time.Time `json:"updated,omitempty"`
}

type LegacyConversation struct {
	ID       string           `json:"id"`
	Messages []*LegacyMessage `json:"messages"`

	SystemPurposeID string `json:"systemPurposeId,omitempty"`
	// SystemPurpose is the v1 name of SystemPurposeID.
	SystemPurpose string `json:"systemPurpose,omitempty"`

	AutoTitle  string `json:"autoTitle,omitempty"`
	UserTitle  string `json:"userTitle,omitempty"`
	UserSymbol string `json:"userSymbol,omitempty"`
	TokenCount int    `json:"tokenCount,omitempty"`

	Created time.Time `json:"created"`
	Updated time.Time `json:"updated,omitempty"`
}

// LegacyConverter turns a fully normalized (v3-shape) conversation into the
// current fragment-based shape. It is total: every legacy conversation has a
// current-shape equivalent.
type LegacyConverter func(c *LegacyConversation) *chats.Conversation

// migrateV1toV2 hoists the old systemPurpose field into systemPurposeId.
func migrateV1toV2(c *LegacyConversation) {
	if c.SystemPurposeID == "" && c.SystemPurpose != "" {
		c.SystemPurposeID = c.SystemPurpose
	}
	c.SystemPurpose = ""

	for _, m := range c.Messages {
		if m.Text == "" && m.Content != "" {
			m.Text = m.Content
		}
		m.Content = ""
	}
}

// migrateV2toV3 backfills updated timestamps, which v2 did not track.
func migrateV2toV3(c *LegacyConversation) {
	if c.Updated.IsZero() {
		c.Updated = c.Created
	}
	for _, m := range c.Messages {
		if m.Updated.IsZero() {
			m.Updated = m.Created
		}
	}
}

// ConvertLegacyConversation is the default v3-to-v4 converter: each single
// text blob becomes a one-fragment message. Ids are carried over so that a
// migration never duplicates or loses identity.
func ConvertLegacyConversation(c *LegacyConversation) *chats.Conversation {
	messages := make([]*chats.Message, 0, len(c.Messages))
	for _, lm := range c.Messages {
		var fragments []*chats.Fragment
		if lm.Text != "" {
			fragments = append(fragments, chats.NewTextFragment(lm.Text))
		}
		m := &chats.Message{
			ID:         chats.MessageID(lm.ID),
			Role:       chats.Role(lm.Role),
			Fragments:  fragments,
			Metadata:   lm.Metadata,
			TokenCount: lm.TokenCount,
			Created:    lm.Created,
			Updated:    lm.Updated,
		}
		if m.ID == "" {
			m.ID = chats.NewMessageID()
		}
		messages = append(messages, m)
	}

	ret := &chats.Conversation{
		ID:              chats.ConversationID(c.ID),
		Messages:        messages,
		SystemPurposeID: c.SystemPurposeID,
		AutoTitle:       c.AutoTitle,
		UserTitle:       c.UserTitle,
		UserSymbol:      c.UserSymbol,
		TokenCount:      c.TokenCount,
		Created:         c.Created,
		Updated:         c.Updated,
	}
	if ret.ID == "" {
		ret.ID = chats.NewConversationID()
	}
	return ret
}
