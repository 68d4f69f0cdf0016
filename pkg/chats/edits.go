package chats

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/carlo/pkg/events"
)

// editConversation is the single primitive all message-affecting operations
// go through. It clones the matching conversation, applies fn to the clone,
// and swaps it into a new list; every other conversation is shared by
// reference. Readers holding the previous list snapshot keep seeing the
// old record. Returns false when the conversation does not exist.
func (s *Store) editConversation(cID ConversationID, fn func(c *Conversation)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editConversationLocked(cID, fn)
}

func (s *Store) editConversationLocked(cID ConversationID, fn func(c *Conversation)) bool {
	idx, current := s.findLocked(cID)
	if current == nil {
		log.Debug().Str("conversation_id", cID.String()).Msg("edit on unknown conversation")
		return false
	}

	next := current.clone()
	fn(next)

	list := make([]*Conversation, len(s.conversations))
	copy(list, s.conversations)
	list[idx] = next
	s.conversations = list
	return true
}

// SetMessages replaces the conversation's message list wholesale, cancelling
// any in-flight operation first. Every message is force-recounted: a bulk
// replacement is the one place where the store cannot trust cached counts.
func (s *Store) SetMessages(cID ConversationID, messages []*Message) {
	s.mu.Lock()
	s.abortLocked(cID)
	ok := s.editConversationLocked(cID, func(c *Conversation) {
		next := make([]*Message, len(messages))
		for i, m := range messages {
			mm := m.clone()
			s.updateMessageTokenCount(mm, true)
			next[i] = mm
		}
		c.Messages = next
		if len(next) == 0 {
			c.AutoTitle = ""
		}
		c.TokenCount = AggregateTokenCount(next)
		c.Updated = time.Now()
	})
	s.mu.Unlock()

	if ok {
		s.publish(events.EventTypeMessagesReplaced, cID, "")
	}
}

// AppendMessage appends a message to the conversation. Messages still being
// streamed (Pending) are not counted yet; their count is settled when the
// pending flag is cleared.
func (s *Store) AppendMessage(cID ConversationID, message *Message) {
	m := message.clone()
	if !m.Pending {
		s.updateMessageTokenCount(m, true)
	}

	ok := s.editConversation(cID, func(c *Conversation) {
		c.Messages = append(c.Messages, m)
		c.TokenCount = AggregateTokenCount(c.Messages)
		c.Updated = time.Now()
	})

	if ok {
		s.publish(events.EventTypeMessageAppended, cID, m.ID)
	}
}

// DeleteMessage removes a message by id.
func (s *Store) DeleteMessage(cID ConversationID, mID MessageID) {
	ok := s.editConversation(cID, func(c *Conversation) {
		kept := make([]*Message, 0, len(c.Messages))
		for _, m := range c.Messages {
			if m.ID != mID {
				kept = append(kept, m)
			}
		}
		c.Messages = kept
		c.TokenCount = AggregateTokenCount(kept)
		c.Updated = time.Now()
	})

	if ok {
		s.publish(events.EventTypeMessageDeleted, cID, mID)
	}
}

// EditMessage applies fn to a clone of the message. With removePending the
// pending flag is cleared (a completed stream); a message that is not
// pending afterwards gets its token count force-recomputed, since fn may
// have changed the fragment sequence. The conversation's own updated
// timestamp moves only when touchUpdated is set.
func (s *Store) EditMessage(cID ConversationID, mID MessageID, fn func(m *Message), removePending bool, touchUpdated bool) {
	s.mu.Lock()
	ok := s.editConversationLocked(cID, func(c *Conversation) {
		idx, current := c.FindMessage(mID)
		if current == nil {
			log.Debug().
				Str("conversation_id", cID.String()).
				Str("message_id", mID.String()).
				Msg("edit on unknown message")
			return
		}

		next := current.clone()
		fn(next)
		if touchUpdated {
			next.Updated = time.Now()
		}
		if removePending {
			next.Pending = false
		}
		if !next.Pending {
			s.updateMessageTokenCount(next, true)
		}

		c.Messages[idx] = next
		c.TokenCount = AggregateTokenCount(c.Messages)
		if touchUpdated {
			c.Updated = time.Now()
		}
	})
	s.mu.Unlock()

	if ok {
		s.publish(events.EventTypeMessageEdited, cID, mID)
	}
}

// AppendFragment appends a fragment to a message, the per-chunk operation of
// a response stream.
func (s *Store) AppendFragment(cID ConversationID, mID MessageID, fragment *Fragment, removePending bool, touchUpdated bool) {
	s.EditMessage(cID, mID, func(m *Message) {
		m.Fragments = append(m.Fragments, fragment)
	}, removePending, touchUpdated)
}

// DeleteFragment removes a fragment from a message by fragment id.
func (s *Store) DeleteFragment(cID ConversationID, mID MessageID, fID FragmentID, removePending bool, touchUpdated bool) {
	s.EditMessage(cID, mID, func(m *Message) {
		kept := make([]*Fragment, 0, len(m.Fragments))
		for _, f := range m.Fragments {
			if f.ID != fID {
				kept = append(kept, f)
			}
		}
		m.Fragments = kept
	}, removePending, touchUpdated)
}

// ReplaceFragment swaps a fragment for a fresh object holding the new
// content, under the same fragment id. The identity of the fragment always
// changes, even when the content is equal, so identity-based change
// detection downstream fires. A missing fragment id is logged and leaves
// the fragment list untouched.
func (s *Store) ReplaceFragment(cID ConversationID, mID MessageID, fID FragmentID, content FragmentContent, removePending bool, touchUpdated bool) {
	s.EditMessage(cID, mID, func(m *Message) {
		if m.FindFragment(fID) == nil {
			log.Error().
				Str("conversation_id", cID.String()).
				Str("message_id", mID.String()).
				Str("fragment_id", fID.String()).
				Msg("replace of unknown fragment")
			return
		}
		next := make([]*Fragment, len(m.Fragments))
		for i, f := range m.Fragments {
			if f.ID == fID {
				next[i] = &Fragment{ID: fID, Content: content}
			} else {
				next[i] = f
			}
		}
		m.Fragments = next
	}, removePending, touchUpdated)
}

// UpdateMessageMetadata merges delta into the message metadata key-wise;
// keys absent from delta are retained.
func (s *Store) UpdateMessageMetadata(cID ConversationID, mID MessageID, delta map[string]interface{}, touchUpdated bool) {
	s.EditMessage(cID, mID, func(m *Message) {
		if m.Metadata == nil {
			m.Metadata = make(map[string]interface{}, len(delta))
		}
		for k, v := range delta {
			m.Metadata[k] = v
		}
	}, false, touchUpdated)
}

// SetSystemPurposeID switches the conversation's persona.
func (s *Store) SetSystemPurposeID(cID ConversationID, systemPurposeID string) {
	s.editConversation(cID, func(c *Conversation) {
		c.SystemPurposeID = systemPurposeID
	})
}

// SetAutoTitle sets the machine-generated title.
func (s *Store) SetAutoTitle(cID ConversationID, autoTitle string) {
	s.editConversation(cID, func(c *Conversation) {
		c.AutoTitle = autoTitle
	})
}

// SetUserTitle sets the user-chosen title, which wins over the auto title.
func (s *Store) SetUserTitle(cID ConversationID, userTitle string) {
	s.editConversation(cID, func(c *Conversation) {
		c.UserTitle = userTitle
	})
}

// SetUserSymbol sets the user-chosen symbol; an empty value unsets it.
func (s *Store) SetUserSymbol(cID ConversationID, userSymbol string) {
	s.editConversation(cID, func(c *Conversation) {
		c.UserSymbol = userSymbol
	})
}
