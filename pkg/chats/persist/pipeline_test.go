package persist

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/carlo/pkg/chats"
)

func TestLoadAbsentBlob(t *testing.T) {
	p := New(NewMemoryStore())
	conversations, err := p.Load()
	require.NoError(t, err)
	require.Empty(t, conversations)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	blobs := NewMemoryStore()
	p := New(blobs)

	c := chats.NewConversation(chats.WithSystemPurposeID("Developer"))
	c.AutoTitle = "greetings"
	c.Messages = []*chats.Message{
		chats.NewTextMessage(chats.RoleUser, "hi there"),
		chats.NewMessage(chats.RoleAssistant, []*chats.Fragment{
			chats.NewTextFragment("hello"),
			chats.NewImageFragmentFromAsset("asset-1"),
		}),
	}

	require.NoError(t, p.Save([]*chats.Conversation{c}))

	loaded, err := p.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	got := loaded[0]
	require.Equal(t, c.ID, got.ID)
	require.Equal(t, "Developer", got.SystemPurposeID)
	require.Equal(t, "greetings", got.AutoTitle)
	require.Len(t, got.Messages, 2)
	require.Equal(t, "hi there", got.Messages[0].Text())

	for _, m := range got.Messages {
		require.False(t, m.Pending)
		for _, f := range m.Fragments {
			require.NotEmpty(t, f.ID)
		}
	}

	img, ok := got.Messages[1].Fragments[1].Content.(*chats.ImageContent)
	require.True(t, ok)
	require.Equal(t, "asset-1", img.DataRef.DBlobAssetID)
}

func TestLoadMigratesV3SingleTextMessages(t *testing.T) {
	blob := `{
		"version": 3,
		"conversations": [{
			"id": "conv_legacy",
			"systemPurposeId": "Generalist",
			"messages": [{
				"id": "msg_legacy",
				"role": "assistant",
				"text": "old style reply",
				"tokenCount": 12,
				"pendingIncomplete": true,
				"typing": true,
				"created": "2023-05-01T10:00:00Z"
			}],
			"created": "2023-05-01T09:00:00Z"
		}]
	}`

	blobs := NewMemoryStore()
	require.NoError(t, blobs.Write(DefaultKey, []byte(blob)))

	p := New(blobs)
	loaded, err := p.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	c := loaded[0]
	require.Equal(t, chats.ConversationID("conv_legacy"), c.ID)
	require.Len(t, c.Messages, 1)

	m := c.Messages[0]
	require.Equal(t, chats.MessageID("msg_legacy"), m.ID)
	require.NotEmpty(t, m.Fragments)
	require.Equal(t, "old style reply", m.Text())
	require.False(t, m.Pending)
	require.Equal(t, 12, m.TokenCount)
	require.Equal(t, 3+(4+12), c.TokenCount)

	// the raw pre-migration blob was backed up
	backup, ok, err := blobs.Read(DefaultKey + "-v3-backup")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, blob, string(backup))
}

func TestLoadMigratesV1FieldNames(t *testing.T) {
	blob := `{
		"version": 1,
		"conversations": [{
			"id": "conv_v1",
			"systemPurpose": "Scientist",
			"messages": [{
				"id": "msg_v1",
				"role": "user",
				"content": "original question",
				"created": "2022-11-30T12:00:00Z"
			}],
			"created": "2022-11-30T12:00:00Z"
		}]
	}`

	blobs := NewMemoryStore()
	require.NoError(t, blobs.Write(DefaultKey, []byte(blob)))

	loaded, err := New(blobs).Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	c := loaded[0]
	require.Equal(t, "Scientist", c.SystemPurposeID)
	require.Equal(t, "original question", c.Messages[0].Text())
	// v2 step backfills updated from created
	require.Equal(t, c.Created, c.Updated)
}

func TestRepairRecoversPlaceholders(t *testing.T) {
	c := chats.NewConversation()
	c.Messages = []*chats.Message{
		chats.NewMessage(chats.RoleAssistant, []*chats.Fragment{
			chats.NewPlaceholderFragment("Thinking..."),
		}),
	}

	blobs := NewMemoryStore()
	p := New(blobs)
	require.NoError(t, p.Save([]*chats.Conversation{c}))

	loaded, err := p.Load()
	require.NoError(t, err)

	f := loaded[0].Messages[0].Fragments[0]
	errContent, ok := f.Content.(*chats.ErrorContent)
	require.True(t, ok)
	require.True(t, strings.HasPrefix(errContent.Error, "Thinking..."))
	require.Contains(t, errContent.Error, "interrupted")
}

func TestRepairRenamesLegacyDBlobField(t *testing.T) {
	blob := `{
		"version": 4,
		"conversations": [{
			"id": "conv_x",
			"messages": [{
				"id": "msg_x",
				"role": "user",
				"fragments": [{
					"ft": "image",
					"content": {"dataRef": {"reftype": "dblob", "dblobId": "asset-old"}}
				}],
				"created": "2024-01-01T00:00:00Z",
				"updated": "2024-01-01T00:00:00Z"
			}],
			"created": "2024-01-01T00:00:00Z",
			"updated": "2024-01-01T00:00:00Z"
		}]
	}`

	blobs := NewMemoryStore()
	require.NoError(t, blobs.Write(DefaultKey, []byte(blob)))

	loaded, err := New(blobs).Load()
	require.NoError(t, err)

	f := loaded[0].Messages[0].Fragments[0]
	// the fragment had no fId, repair assigned one
	require.NotEmpty(t, f.ID)

	img, ok := f.Content.(*chats.ImageContent)
	require.True(t, ok)
	require.Equal(t, "asset-old", img.DataRef.DBlobAssetID)
	require.Empty(t, img.DataRef.LegacyDBlobID)
}

func TestLoadStripsLegacyPendingFields(t *testing.T) {
	blob := `{
		"version": 4,
		"conversations": [{
			"id": "conv_x",
			"messages": [{
				"id": "msg_x",
				"role": "assistant",
				"fragments": [{"fId": "frag_x", "ft": "text", "content": {"text": "partial"}}],
				"pendingIncomplete": true,
				"typing": true,
				"created": "2024-01-01T00:00:00Z",
				"updated": "2024-01-01T00:00:00Z"
			}],
			"created": "2024-01-01T00:00:00Z",
			"updated": "2024-01-01T00:00:00Z"
		}]
	}`

	blobs := NewMemoryStore()
	require.NoError(t, blobs.Write(DefaultKey, []byte(blob)))

	p := New(blobs)
	loaded, err := p.Load()
	require.NoError(t, err)
	require.False(t, loaded[0].Messages[0].Pending)

	// once re-saved, the legacy fields are gone for good
	require.NoError(t, p.Save(loaded))
	raw, ok, err := blobs.Read(DefaultKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotContains(t, string(raw), "pendingIncomplete")
	require.NotContains(t, string(raw), "typing")
}

func TestLoadRejectsFutureVersion(t *testing.T) {
	blobs := NewMemoryStore()
	require.NoError(t, blobs.Write(DefaultKey, []byte(`{"version": 99, "conversations": []}`)))

	_, err := New(blobs).Load()
	require.Error(t, err)
}

// failingBackupStore refuses writes to backup keys, to show that migration
// survives a failed backup.
type failingBackupStore struct {
	*MemoryStore
}

func (s *failingBackupStore) Write(key string, blob []byte) error {
	if strings.Contains(key, "-backup") {
		return errors.New("disk full")
	}
	return s.MemoryStore.Write(key, blob)
}

func TestMigrationSurvivesBackupFailure(t *testing.T) {
	blob := `{
		"version": 3,
		"conversations": [{
			"id": "conv_legacy",
			"messages": [{"id": "msg_1", "role": "user", "text": "hi", "created": "2023-05-01T10:00:00Z"}],
			"created": "2023-05-01T09:00:00Z"
		}]
	}`

	blobs := &failingBackupStore{MemoryStore: NewMemoryStore()}
	require.NoError(t, blobs.Write(DefaultKey, []byte(blob)))

	loaded, err := New(blobs).Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, "hi", loaded[0].Messages[0].Text())
}

func TestSavedBlobIsVersionTagged(t *testing.T) {
	blobs := NewMemoryStore()
	p := New(blobs, WithKey("custom-key"))

	require.NoError(t, p.Save(nil))

	raw, ok, err := blobs.Read("custom-key")
	require.NoError(t, err)
	require.True(t, ok)

	var env struct {
		Version int `json:"version"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	require.Equal(t, CurrentVersion, env.Version)
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	blobs, err := NewFileStore(dir)
	require.NoError(t, err)

	_, ok, err := blobs.Read("nope")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, blobs.Write("some-key", []byte(`{"version":4}`)))
	raw, ok, err := blobs.Read("some-key")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `{"version":4}`, string(raw))
}

func TestCustomLegacyConverter(t *testing.T) {
	blob := `{
		"version": 3,
		"conversations": [{
			"id": "conv_legacy",
			"messages": [],
			"created": "2023-05-01T09:00:00Z"
		}]
	}`

	blobs := NewMemoryStore()
	require.NoError(t, blobs.Write(DefaultKey, []byte(blob)))

	called := 0
	converter := func(c *LegacyConversation) *chats.Conversation {
		called++
		ret := ConvertLegacyConversation(c)
		ret.AutoTitle = fmt.Sprintf("migrated %s", c.ID)
		return ret
	}

	loaded, err := New(blobs, WithLegacyConverter(converter)).Load()
	require.NoError(t, err)
	require.Equal(t, 1, called)
	require.Equal(t, "migrated conv_legacy", loaded[0].AutoTitle)
}
