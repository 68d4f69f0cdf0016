package tokens

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"

	"github.com/go-go-golems/carlo/pkg/chats"
	"github.com/go-go-golems/carlo/pkg/models"
)

// imageTokenCost is the flat charge for an image reference, matching the
// low-detail image cost of the OpenAI chat protocol.
const imageTokenCost = 85

// TiktokenEstimator counts tokens with a BPE codec resolved per model
// descriptor. Codecs are cached; building one loads the vocabulary.
type TiktokenEstimator struct {
	mu     sync.Mutex
	codecs map[string]tokenizer.Codec
}

func NewTiktokenEstimator() *TiktokenEstimator {
	return &TiktokenEstimator{
		codecs: map[string]tokenizer.Codec{},
	}
}

// Estimate implements chats.Estimator.
func (e *TiktokenEstimator) Estimate(fragments []*chats.Fragment, model models.Descriptor, debugTag string) (int, error) {
	codec, err := e.codecFor(model)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, f := range fragments {
		switch c := f.Content.(type) {
		case *chats.TextContent:
			ids, _, err := codec.Encode(c.Text)
			if err != nil {
				return 0, errors.Wrapf(err, "encoding text fragment %s", f.ID)
			}
			total += len(ids)
		case *chats.ImageContent:
			total += imageTokenCost
		case *chats.ErrorContent:
			ids, _, err := codec.Encode(c.Error)
			if err != nil {
				return 0, errors.Wrapf(err, "encoding error fragment %s", f.ID)
			}
			total += len(ids)
		case *chats.PlaceholderContent:
			// still streaming, costs nothing yet
		default:
			log.Debug().
				Str("debug_tag", debugTag).
				Str("fragment_id", f.ID.String()).
				Msg("unknown fragment content, not counted")
		}
	}

	log.Trace().
		Str("debug_tag", debugTag).
		Str("model_id", model.ID).
		Int("token_count", total).
		Msg("estimated tokens")

	return total, nil
}

// Func adapts the estimator to the chats.Estimator function type.
func (e *TiktokenEstimator) Func() chats.Estimator {
	return e.Estimate
}

func (e *TiktokenEstimator) codecFor(model models.Descriptor) (tokenizer.Codec, error) {
	key := model.Tokenizer
	if key == "" {
		key = model.ID
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if codec, ok := e.codecs[key]; ok {
		return codec, nil
	}

	codec, err := e.resolve(model)
	if err != nil {
		return nil, err
	}
	e.codecs[key] = codec
	return codec, nil
}

func (e *TiktokenEstimator) resolve(model models.Descriptor) (tokenizer.Codec, error) {
	if model.Tokenizer != "" {
		codec, err := tokenizer.Get(tokenizer.Encoding(model.Tokenizer))
		if err != nil {
			return nil, errors.Wrapf(err, "unknown encoding %s", model.Tokenizer)
		}
		return codec, nil
	}

	codec, err := tokenizer.ForModel(tokenizer.Model(model.ID))
	if err == nil {
		return codec, nil
	}

	// unknown model, fall back to the cl100k vocabulary
	codec, err = tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, errors.Wrap(err, "loading fallback codec")
	}
	return codec, nil
}
