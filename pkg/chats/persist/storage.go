package persist

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// BlobStore is the durable key-value medium the pipeline writes to. Both the
// primary chat blob and the pre-migration backups go through it.
type BlobStore interface {
	// Read returns the blob at key, reporting absence without error.
	Read(key string) ([]byte, bool, error)
	Write(key string, blob []byte) error
}

// MemoryStore keeps blobs in a map. Used in tests and as a scratch target.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

var _ BlobStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs: map[string][]byte{},
	}
}

func (s *MemoryStore) Read(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[key]
	if !ok {
		return nil, false, nil
	}
	ret := make([]byte, len(blob))
	copy(ret, blob)
	return ret, true, nil
}

func (s *MemoryStore) Write(key string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(blob))
	copy(stored, blob)
	s.blobs[key] = stored
	return nil
}

// FileStore maps each key to a JSON file under a directory.
type FileStore struct {
	dir string
}

var _ BlobStore = (*FileStore)(nil)

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating blob directory %s", dir)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *FileStore) Read(key string) ([]byte, bool, error) {
	blob, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "reading blob %s", key)
	}
	return blob, true, nil
}

func (s *FileStore) Write(key string, blob []byte) error {
	return os.WriteFile(s.path(key), blob, 0644)
}
