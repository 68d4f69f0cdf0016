package chats

import (
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/carlo/pkg/models"
)

// Estimator computes the token footprint of a fragment sequence under a
// given model. It is an external collaborator; a nil estimator means token
// counts stay at 0 ("unknown").
type Estimator func(fragments []*Fragment, model models.Descriptor, debugTag string) (int, error)

// Fixed protocol overheads used by the aggregate fold: every conversation
// costs a few tokens of framing, and every message a few tokens of role and
// separator markup.
const (
	conversationTokenOverhead = 3
	messageTokenOverhead      = 4
)

// AggregateTokenCount folds the cached per-message counts into the
// conversation-level total. It never invokes the estimator: re-tokenizing
// the whole history on every fragment append during a stream would be far
// too expensive.
func AggregateTokenCount(messages []*Message) int {
	total := conversationTokenOverhead
	for _, m := range messages {
		total += messageTokenOverhead + m.TokenCount
	}
	return total
}

// updateMessageTokenCount recomputes the message's cached token count when
// forced or when the cache is unset. Failure to resolve a model or to run
// the estimator degrades to a 0 count; it is never a hard error.
func (s *Store) updateMessageTokenCount(m *Message, force bool) {
	if !force && m.TokenCount != 0 {
		return
	}

	m.TokenCount = 0
	if s.registry == nil || s.estimator == nil {
		return
	}

	modelID := s.registry.DefaultModelID()
	if modelID == "" {
		return
	}

	descriptor, err := s.registry.FindModel(modelID)
	if err != nil {
		log.Warn().Err(err).
			Str("model_id", modelID).
			Str("message_id", m.ID.String()).
			Msg("could not resolve default model for token accounting")
		return
	}

	count, err := s.estimator(m.Fragments, descriptor, "chat-message-"+m.ID.String())
	if err != nil {
		log.Warn().Err(err).
			Str("model_id", modelID).
			Str("message_id", m.ID.String()).
			Msg("token estimation failed")
		return
	}
	if count < 0 {
		count = 0
	}
	m.TokenCount = count
}
