package chats

import (
	"github.com/lithammer/shortuuid/v3"
)

// Identifiers are opaque, collision-resistant strings with a namespace
// prefix so that a bare id seen in a log line is attributable.

type ConversationID string

type MessageID string

type FragmentID string

func NewConversationID() ConversationID {
	return ConversationID("conv_" + shortuuid.New())
}

func NewMessageID() MessageID {
	return MessageID("msg_" + shortuuid.New())
}

func NewFragmentID() FragmentID {
	return FragmentID("frag_" + shortuuid.New())
}

func (id ConversationID) String() string { return string(id) }

func (id MessageID) String() string { return string(id) }

func (id FragmentID) String() string { return string(id) }
