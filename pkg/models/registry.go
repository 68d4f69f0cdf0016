package models

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrModelNotFound is returned by Registry.FindModel for unregistered ids.
var ErrModelNotFound = errors.New("model not found")

// Descriptor describes a chat model for token accounting purposes.
type Descriptor struct {
	ID            string `json:"id" yaml:"id"`
	Label         string `json:"label,omitempty" yaml:"label,omitempty"`
	Tokenizer     string `json:"tokenizer,omitempty" yaml:"tokenizer,omitempty"`
	ContextWindow int    `json:"contextWindow,omitempty" yaml:"contextWindow,omitempty"`
}

// Registry resolves model ids to descriptors. The store consults it lazily
// during token accounting, so lookups must be cheap.
type Registry interface {
	FindModel(id string) (Descriptor, error)
	DefaultModelID() string
}

// StaticRegistry is a map-backed Registry. The zero value is usable and
// reports no default model.
type StaticRegistry struct {
	mu        sync.RWMutex
	models    map[string]Descriptor
	defaultID string
}

var _ Registry = (*StaticRegistry)(nil)

type StaticRegistryOption func(*StaticRegistry)

func WithModels(descriptors ...Descriptor) StaticRegistryOption {
	return func(r *StaticRegistry) {
		for _, d := range descriptors {
			r.models[d.ID] = d
		}
	}
}

func WithDefaultModel(id string) StaticRegistryOption {
	return func(r *StaticRegistry) {
		r.defaultID = id
	}
}

func NewStaticRegistry(options ...StaticRegistryOption) *StaticRegistry {
	ret := &StaticRegistry{
		models: map[string]Descriptor{},
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

func (r *StaticRegistry) Register(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.models == nil {
		r.models = map[string]Descriptor{}
	}
	r.models[d.ID] = d
}

func (r *StaticRegistry) SetDefaultModelID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultID = id
}

func (r *StaticRegistry) FindModel(id string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.models[id]
	if !ok {
		return Descriptor{}, errors.Wrapf(ErrModelNotFound, "id %s", id)
	}
	return d, nil
}

func (r *StaticRegistry) DefaultModelID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultID
}
