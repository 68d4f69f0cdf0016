package persist

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/carlo/pkg/chats"
)

const (
	// CurrentVersion tags blobs written by this release. Older tags are
	// migrated on load, one version step at a time.
	CurrentVersion = 4

	// DefaultKey is where the primary chat blob lives in the BlobStore.
	DefaultKey = "app-chats"

	// incompleteSuffix is appended when an orphaned placeholder fragment is
	// recovered into an error fragment after an abnormal shutdown.
	incompleteSuffix = " (response was interrupted before completion)"
)

type envelope struct {
	Version       int             `json:"version"`
	Conversations json.RawMessage `json:"conversations"`
}

type envelopeOut struct {
	Version       int                   `json:"version"`
	Conversations []*chats.Conversation `json:"conversations"`
}

// persistedMessage widens chats.Message with fields that pre-fragment
// releases wrote into v4 blobs. They are stripped on load.
type persistedMessage struct {
	chats.Message
	PendingIncomplete *bool `json:"pendingIncomplete,omitempty"`
	Typing            *bool `json:"typing,omitempty"`
}

type persistedConversation struct {
	chats.Conversation
	Messages []*persistedMessage `json:"messages"`
}

// Pipeline serializes conversations to a BlobStore and migrates old blobs
// forward on load.
type Pipeline struct {
	blobs     BlobStore
	key       string
	converter LegacyConverter
}

type Option func(*Pipeline)

func WithKey(key string) Option {
	return func(p *Pipeline) {
		p.key = key
	}
}

func WithLegacyConverter(converter LegacyConverter) Option {
	return func(p *Pipeline) {
		p.converter = converter
	}
}

func New(blobs BlobStore, options ...Option) *Pipeline {
	ret := &Pipeline{
		blobs:     blobs,
		key:       DefaultKey,
		converter: ConvertLegacyConversation,
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

// Save writes the conversations at the current version. Conversations carry
// no transient state (cancellation handles live in the store's side-table),
// so the records serialize as they are.
func (p *Pipeline) Save(conversations []*chats.Conversation) error {
	blob, err := json.Marshal(envelopeOut{
		Version:       CurrentVersion,
		Conversations: conversations,
	})
	if err != nil {
		return errors.Wrap(err, "serializing conversations")
	}
	if err := p.blobs.Write(p.key, blob); err != nil {
		return errors.Wrapf(err, "writing blob %s", p.key)
	}
	return nil
}

// Load reads the blob, migrates it to the current version if needed, and
// runs the repair pass. An absent blob yields an empty conversation list.
func (p *Pipeline) Load() ([]*chats.Conversation, error) {
	blob, ok, err := p.blobs.Read(p.key)
	if err != nil {
		return nil, errors.Wrapf(err, "reading blob %s", p.key)
	}
	if !ok {
		return nil, nil
	}

	var env envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return nil, errors.Wrap(err, "decoding envelope")
	}
	version := env.Version
	if version == 0 {
		// blobs written before version tagging
		version = 1
	}
	if version > CurrentVersion {
		return nil, errors.Errorf("blob version %d is newer than supported version %d", version, CurrentVersion)
	}
	if len(env.Conversations) == 0 {
		return nil, nil
	}

	var conversations []*chats.Conversation
	if version < CurrentVersion {
		conversations, err = p.migrate(blob, env.Conversations, version)
		if err != nil {
			return nil, err
		}
	} else {
		var persisted []*persistedConversation
		if err := json.Unmarshal(env.Conversations, &persisted); err != nil {
			return nil, errors.Wrap(err, "decoding conversations")
		}
		conversations = make([]*chats.Conversation, 0, len(persisted))
		for _, pc := range persisted {
			c := pc.Conversation
			c.Messages = make([]*chats.Message, 0, len(pc.Messages))
			for _, pm := range pc.Messages {
				// drop the legacy pendingIncomplete/typing fields
				m := pm.Message
				c.Messages = append(c.Messages, &m)
			}
			conversations = append(conversations, &c)
		}
	}

	for _, c := range conversations {
		repairConversation(c)
	}

	log.Debug().
		Int("version", version).
		Int("conversation_count", len(conversations)).
		Msg("loaded chats")

	return conversations, nil
}

// migrate walks the version steps below CurrentVersion on the legacy shape,
// backs up the raw pre-migration blob, and converts to the fragment model.
func (p *Pipeline) migrate(raw []byte, conversationsJSON json.RawMessage, version int) ([]*chats.Conversation, error) {
	var legacy []*LegacyConversation
	if err := json.Unmarshal(conversationsJSON, &legacy); err != nil {
		return nil, errors.Wrapf(err, "decoding v%d conversations", version)
	}

	if len(legacy) > 0 {
		p.backup(raw, version)
	}

	if version <= 1 {
		for _, c := range legacy {
			migrateV1toV2(c)
		}
	}
	if version <= 2 {
		for _, c := range legacy {
			migrateV2toV3(c)
		}
	}

	converter := p.converter
	if converter == nil {
		converter = ConvertLegacyConversation
	}
	conversations := make([]*chats.Conversation, 0, len(legacy))
	for _, c := range legacy {
		conversations = append(conversations, converter(c))
	}
	return conversations, nil
}

// backup is best-effort: a failed backup must not block the migration.
func (p *Pipeline) backup(blob []byte, version int) {
	key := fmt.Sprintf("%s-v%d-backup", p.key, version)
	if err := p.blobs.Write(key, blob); err == nil {
		log.Warn().
			Str("key", key).
			Int("version", version).
			Msg("backed up pre-migration chats")
	}
}

// repairConversation normalizes one loaded conversation:
//   - no in-flight stream survives a restart, so pending flags are cleared
//     (the cancellation handle side-table starts out empty)
//   - fragments missing an id get a fresh one
//   - image data references still using the old dblobId field are renamed
//   - orphaned placeholder fragments become error fragments so the user
//     sees that the response never completed
//   - the aggregate token count is re-folded from the cached message counts
func repairConversation(c *chats.Conversation) {
	for _, m := range c.Messages {
		m.Pending = false
		for i, f := range m.Fragments {
			if f.ID == "" {
				f.ID = chats.NewFragmentID()
			}
			switch content := f.Content.(type) {
			case *chats.ImageContent:
				if content.DataRef.LegacyDBlobID != "" {
					ref := content.DataRef
					if ref.DBlobAssetID == "" {
						ref.DBlobAssetID = ref.LegacyDBlobID
					}
					ref.LegacyDBlobID = ""
					m.Fragments[i] = &chats.Fragment{
						ID: f.ID,
						Content: &chats.ImageContent{
							DataRef:   ref,
							AltText:   content.AltText,
							MediaType: content.MediaType,
						},
					}
				}
			case *chats.PlaceholderContent:
				m.Fragments[i] = &chats.Fragment{
					ID:      f.ID,
					Content: &chats.ErrorContent{Error: content.Label + incompleteSuffix},
				}
			}
		}
	}
	c.TokenCount = chats.AggregateTokenCount(c.Messages)
}
