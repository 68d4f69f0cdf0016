package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type EventType string

const (
	EventTypeConversationAdded    EventType = "conversation-added"
	EventTypeConversationImported EventType = "conversation-imported"
	EventTypeConversationBranched EventType = "conversation-branched"
	EventTypeConversationDeleted  EventType = "conversation-deleted"

	EventTypeMessagesReplaced EventType = "messages-replaced"
	EventTypeMessageAppended  EventType = "message-appended"
	EventTypeMessageDeleted   EventType = "message-deleted"
	EventTypeMessageEdited    EventType = "message-edited"
)

// StoreEvent describes a single committed store mutation. Consumers (UIs,
// autosave triggers) subscribe to these instead of polling the store.
type StoreEvent struct {
	ID             string    `json:"id"`
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversationId"`
	MessageID      string    `json:"messageId,omitempty"`
	Time           time.Time `json:"time"`
}

func NewStoreEvent(eventType EventType, conversationID string, messageID string) StoreEvent {
	return StoreEvent{
		ID:             uuid.NewString(),
		Type:           eventType,
		ConversationID: conversationID,
		MessageID:      messageID,
		Time:           time.Now(),
	}
}

func (e StoreEvent) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type))
	ev.Str("conversation_id", e.ConversationID)
	if e.MessageID != "" {
		ev.Str("message_id", e.MessageID)
	}
}
