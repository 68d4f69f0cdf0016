package chats

import (
	"context"
	"sync"

	"github.com/huandu/go-clone"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/carlo/pkg/events"
	"github.com/go-go-golems/carlo/pkg/models"
)

// Store is the top-level container of conversational state: an ordered list
// of conversations (most recent first) plus the per-conversation cancellation
// handles for in-flight response streams.
//
// All mutations are applied synchronously under one lock and replace the
// affected conversation record copy-on-write, so a reader holding an older
// snapshot never observes a partially mutated conversation. The handles live
// in a side-table rather than on the Conversation itself: they have no
// meaningful cross-session value and must never reach the persistence layer.
type Store struct {
	mu            sync.Mutex
	conversations []*Conversation
	aborts        map[ConversationID]context.CancelFunc

	registry  models.Registry
	estimator Estimator
	publisher *events.PublisherManager
}

type StoreOption func(*Store)

func WithRegistry(registry models.Registry) StoreOption {
	return func(s *Store) {
		s.registry = registry
	}
}

func WithEstimator(estimator Estimator) StoreOption {
	return func(s *Store) {
		s.estimator = estimator
	}
}

func WithPublisher(publisher *events.PublisherManager) StoreOption {
	return func(s *Store) {
		s.publisher = publisher
	}
}

// WithInitialSystemPurposeID seeds the conversation the store starts with.
func WithInitialSystemPurposeID(systemPurposeID string) StoreOption {
	return func(s *Store) {
		s.conversations[0].SystemPurposeID = systemPurposeID
	}
}

// NewStore creates a store holding a single empty conversation. The store is
// never empty: every destructive operation re-establishes this invariant.
func NewStore(options ...StoreOption) *Store {
	ret := &Store{
		conversations: []*Conversation{NewConversation()},
		aborts:        map[ConversationID]context.CancelFunc{},
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

func (s *Store) publish(eventType events.EventType, cID ConversationID, mID MessageID) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishBlind(events.NewStoreEvent(eventType, cID.String(), mID.String()))
}

// Len returns the number of conversations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

// Conversations returns a snapshot of the conversation list. The returned
// conversations are committed records; callers must treat them as read-only.
func (s *Store) Conversations() []*Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]*Conversation, len(s.conversations))
	copy(ret, s.conversations)
	return ret
}

// GetConversation returns the conversation with the given id.
func (s *Store) GetConversation(cID ConversationID) (*Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, c := s.findLocked(cID)
	return c, c != nil
}

func (s *Store) findLocked(cID ConversationID) (int, *Conversation) {
	for i, c := range s.conversations {
		if c.ID == cID {
			return i, c
		}
	}
	return -1, nil
}

// PrependNewConversation inserts a fresh empty conversation at the front of
// the list and returns its id.
func (s *Store) PrependNewConversation(systemPurposeID string) ConversationID {
	c := NewConversation(WithSystemPurposeID(systemPurposeID))

	s.mu.Lock()
	s.conversations = append([]*Conversation{c}, s.conversations...)
	s.mu.Unlock()

	log.Debug().
		Str("conversation_id", c.ID.String()).
		Str("system_purpose_id", systemPurposeID).
		Msg("created conversation")
	s.publish(events.EventTypeConversationAdded, c.ID, "")

	return c.ID
}

// ImportConversation inserts an externally produced conversation at the
// front of the list. If a conversation with the same id already exists, its
// in-flight operation is cancelled and it is replaced; with preventClash set
// the incoming conversation is assigned a fresh id instead. Message token
// counts are recomputed unconditionally, since the import may have been
// produced under a different model configuration.
func (s *Store) ImportConversation(c *Conversation, preventClash bool) ConversationID {
	next := c.clone()

	s.mu.Lock()
	if _, existing := s.findLocked(next.ID); existing != nil {
		s.abortLocked(next.ID)
		if preventClash {
			oldID := next.ID
			next.ID = NewConversationID()
			log.Warn().
				Str("conversation_id", oldID.String()).
				Str("new_conversation_id", next.ID.String()).
				Msg("imported conversation clashes with existing id, reassigning")
		}
	}

	for i, m := range next.Messages {
		mm := m.clone()
		s.updateMessageTokenCount(mm, true)
		next.Messages[i] = mm
	}
	next.TokenCount = AggregateTokenCount(next.Messages)

	kept := make([]*Conversation, 0, len(s.conversations)+1)
	kept = append(kept, next)
	for _, existing := range s.conversations {
		if existing.ID != next.ID {
			kept = append(kept, existing)
		}
	}
	s.conversations = kept
	s.mu.Unlock()

	s.publish(events.EventTypeConversationImported, next.ID, "")
	return next.ID
}

// BranchConversation duplicates a conversation up to and including the given
// message (all messages when mID is empty), under fresh conversation and
// message ids, and inserts the duplicate at the front of the list. Returns
// false when the source conversation does not exist.
func (s *Store) BranchConversation(cID ConversationID, mID MessageID) (ConversationID, bool) {
	s.mu.Lock()

	_, src := s.findLocked(cID)
	if src == nil {
		s.mu.Unlock()
		return "", false
	}

	branch := clone.Clone(src).(*Conversation)
	branch.ID = NewConversationID()

	if mID != "" {
		if idx, _ := branch.FindMessage(mID); idx >= 0 {
			branch.Messages = branch.Messages[:idx+1]
		}
	}
	for _, m := range branch.Messages {
		m.ID = NewMessageID()
	}
	branch.TokenCount = AggregateTokenCount(branch.Messages)

	s.conversations = append([]*Conversation{branch}, s.conversations...)
	s.mu.Unlock()

	log.Debug().
		Str("conversation_id", cID.String()).
		Str("branch_id", branch.ID.String()).
		Int("message_count", len(branch.Messages)).
		Msg("branched conversation")
	s.publish(events.EventTypeConversationBranched, branch.ID, "")

	return branch.ID, true
}

// DuplicateConversation is a full-depth branch.
func (s *Store) DuplicateConversation(cID ConversationID) (ConversationID, bool) {
	return s.BranchConversation(cID, "")
}

// DeleteConversations removes the named conversations, cancelling their
// in-flight operations first. The list is never left empty: a fresh
// conversation (optionally seeded with fallbackSystemPurposeID) is created
// when the last one is deleted. Returns the id of the conversation now
// occupying the position of the first deleted one, clamped to a valid index.
func (s *Store) DeleteConversations(cIDs []ConversationID, fallbackSystemPurposeID string) ConversationID {
	s.mu.Lock()

	doomed := make(map[ConversationID]bool, len(cIDs))
	for _, cID := range cIDs {
		doomed[cID] = true
		s.abortLocked(cID)
	}

	firstIdx := 0
	if len(cIDs) > 0 {
		if idx, _ := s.findLocked(cIDs[0]); idx >= 0 {
			firstIdx = idx
		}
	}

	kept := make([]*Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		if !doomed[c.ID] {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		kept = append(kept, NewConversation(WithSystemPurposeID(fallbackSystemPurposeID)))
	}
	s.conversations = kept

	if firstIdx >= len(kept) {
		firstIdx = len(kept) - 1
	}
	nextID := kept[firstIdx].ID
	s.mu.Unlock()

	for _, cID := range cIDs {
		s.publish(events.EventTypeConversationDeleted, cID, "")
	}

	return nextID
}

// SetAbort stores the cancellation handle for the conversation's in-flight
// operation. Passing nil clears the handle.
func (s *Store) SetAbort(cID ConversationID, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, c := s.findLocked(cID); c == nil {
		log.Debug().Str("conversation_id", cID.String()).Msg("set abort on unknown conversation")
		return
	}
	if cancel == nil {
		delete(s.aborts, cID)
		return
	}
	s.aborts[cID] = cancel
}

// Abort cancels the conversation's in-flight operation, if any, and clears
// the handle. Cancellation is fire-and-forget.
func (s *Store) Abort(cID ConversationID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abortLocked(cID)
}

func (s *Store) abortLocked(cID ConversationID) {
	if cancel, ok := s.aborts[cID]; ok {
		if cancel != nil {
			cancel()
		}
		delete(s.aborts, cID)
	}
}

// HasAbort reports whether an in-flight operation is registered for the
// conversation.
func (s *Store) HasAbort(cID ConversationID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.aborts[cID]
	return ok
}
