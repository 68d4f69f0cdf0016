package chats

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

type FragmentType string

const (
	FragmentTypeText        FragmentType = "text"
	FragmentTypeImage       FragmentType = "image"
	FragmentTypeError       FragmentType = "error"
	FragmentTypePlaceholder FragmentType = "placeholder"
)

// FragmentContent is an interface for the different kinds of fragment payloads.
type FragmentContent interface {
	FragmentType() FragmentType
	String() string
}

type TextContent struct {
	Text string `json:"text"`
}

func (c *TextContent) FragmentType() FragmentType {
	return FragmentTypeText
}

func (c *TextContent) String() string {
	return c.Text
}

var _ FragmentContent = (*TextContent)(nil)

type RefKind string

const (
	RefKindURL   RefKind = "url"
	RefKindDBlob RefKind = "dblob"
)

// DataRef points at image bytes stored elsewhere, either a URL or an asset
// in the binary blob store.
type DataRef struct {
	Kind RefKind `json:"reftype"`
	URL  string  `json:"url,omitempty"`

	DBlobAssetID string `json:"dblobAssetId,omitempty"`
	// LegacyDBlobID is the pre-v4 name of DBlobAssetID. It is only ever
	// populated when decoding old blobs and is moved over by the load
	// repair pass.
	LegacyDBlobID string `json:"dblobId,omitempty"`
}

type ImageContent struct {
	DataRef   DataRef `json:"dataRef"`
	AltText   string  `json:"altText,omitempty"`
	MediaType string  `json:"mediaType,omitempty"`
}

func (c *ImageContent) FragmentType() FragmentType {
	return FragmentTypeImage
}

func (c *ImageContent) String() string {
	switch c.DataRef.Kind {
	case RefKindURL:
		return fmt.Sprintf("ImageContent{URL: %s}", c.DataRef.URL)
	case RefKindDBlob:
		return fmt.Sprintf("ImageContent{DBlobAssetID: %s}", c.DataRef.DBlobAssetID)
	}
	return "ImageContent{}"
}

var _ FragmentContent = (*ImageContent)(nil)

type ErrorContent struct {
	Error string `json:"error"`
}

func (c *ErrorContent) FragmentType() FragmentType {
	return FragmentTypeError
}

func (c *ErrorContent) String() string {
	return c.Error
}

var _ FragmentContent = (*ErrorContent)(nil)

// PlaceholderContent stands in for content that is still being produced,
// e.g. the typing indicator slot of an in-flight response.
type PlaceholderContent struct {
	Label string `json:"label"`
}

func (c *PlaceholderContent) FragmentType() FragmentType {
	return FragmentTypePlaceholder
}

func (c *PlaceholderContent) String() string {
	return c.Label
}

var _ FragmentContent = (*PlaceholderContent)(nil)

// Fragment is one unit of message content. Fragments are immutable once
// constructed: edits replace the whole fragment with a fresh object so that
// identity-based change detection in consumers keeps working.
type Fragment struct {
	ID      FragmentID
	Content FragmentContent
}

func NewFragment(content FragmentContent) *Fragment {
	return &Fragment{
		ID:      NewFragmentID(),
		Content: content,
	}
}

func NewTextFragment(text string) *Fragment {
	return NewFragment(&TextContent{Text: text})
}

func NewImageFragmentFromURL(url string) *Fragment {
	return NewFragment(&ImageContent{DataRef: DataRef{Kind: RefKindURL, URL: url}})
}

func NewImageFragmentFromAsset(assetID string) *Fragment {
	return NewFragment(&ImageContent{DataRef: DataRef{Kind: RefKindDBlob, DBlobAssetID: assetID}})
}

func NewErrorFragment(text string) *Fragment {
	return NewFragment(&ErrorContent{Error: text})
}

func NewPlaceholderFragment(label string) *Fragment {
	return NewFragment(&PlaceholderContent{Label: label})
}

func (f *Fragment) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		ID      FragmentID      `json:"fId"`
		Ft      FragmentType    `json:"ft"`
		Content FragmentContent `json:"content"`
	}{
		ID:      f.ID,
		Ft:      f.Content.FragmentType(),
		Content: f.Content,
	})
}

// Intermediate representation for unmarshaling.
type fragmentAlias struct {
	ID      FragmentID      `json:"fId"`
	Ft      FragmentType    `json:"ft"`
	Content json.RawMessage `json:"content"`
}

func (f *Fragment) UnmarshalJSON(data []byte) error {
	var fa fragmentAlias
	if err := json.Unmarshal(data, &fa); err != nil {
		return err
	}

	switch fa.Ft {
	case FragmentTypeText:
		var content *TextContent
		if err := json.Unmarshal(fa.Content, &content); err != nil {
			return err
		}
		f.Content = content
	case FragmentTypeImage:
		var content *ImageContent
		if err := json.Unmarshal(fa.Content, &content); err != nil {
			return err
		}
		f.Content = content
	case FragmentTypeError:
		var content *ErrorContent
		if err := json.Unmarshal(fa.Content, &content); err != nil {
			return err
		}
		f.Content = content
	case FragmentTypePlaceholder:
		var content *PlaceholderContent
		if err := json.Unmarshal(fa.Content, &content); err != nil {
			return err
		}
		f.Content = content
	default:
		return errors.Errorf("unknown fragment type %q", fa.Ft)
	}

	f.ID = fa.ID
	return nil
}
