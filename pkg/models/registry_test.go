package models

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestStaticRegistryLookup(t *testing.T) {
	r := NewStaticRegistry(
		models(),
		WithDefaultModel("gpt-4"),
	)

	d, err := r.FindModel("gpt-4")
	require.NoError(t, err)
	require.Equal(t, 8192, d.ContextWindow)

	require.Equal(t, "gpt-4", r.DefaultModelID())
}

func TestStaticRegistryNotFound(t *testing.T) {
	r := NewStaticRegistry(models())

	_, err := r.FindModel("claude-9000")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrModelNotFound))
}

func TestStaticRegistryZeroValueHasNoDefault(t *testing.T) {
	r := NewStaticRegistry()
	require.Empty(t, r.DefaultModelID())
}

func TestRegisterAfterConstruction(t *testing.T) {
	r := NewStaticRegistry()
	r.Register(Descriptor{ID: "local-llama", Tokenizer: "cl100k_base"})
	r.SetDefaultModelID("local-llama")

	d, err := r.FindModel("local-llama")
	require.NoError(t, err)
	require.Equal(t, "cl100k_base", d.Tokenizer)
}

func models() StaticRegistryOption {
	return WithModels(
		Descriptor{ID: "gpt-4", Label: "GPT-4", Tokenizer: "cl100k_base", ContextWindow: 8192},
		Descriptor{ID: "gpt-3.5-turbo", Tokenizer: "cl100k_base", ContextWindow: 4096},
	)
}
