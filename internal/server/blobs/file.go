package blobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/droplocker/droplocker/internal/common"
	"github.com/droplocker/droplocker/internal/filex"
)

// FileStore keeps blobs as files under a single directory. Ciphertext is
// written to a temp file and atomically renamed into place, never in place
// over existing content.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	abs, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrIO, err)
	}
	return &FileStore{dir: abs}, nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, filepath.Base(name))
}

func (s *FileStore) Save(ctx context.Context, name string, data []byte) error {
	if name == "" {
		return fmt.Errorf("%w: empty blob name", common.ErrValidation)
	}
	if err := filex.WriteFileAtomic(s.path(name), data, 0o600); err != nil {
		return fmt.Errorf("%w: %v", common.ErrIO, err)
	}
	return nil
}

func (s *FileStore) Load(ctx context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("%w: read blob: %v", common.ErrIO, err)
	}
	return data, nil
}

func (s *FileStore) Delete(ctx context.Context, name string) error {
	if err := os.Remove(s.path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: delete blob: %v", common.ErrIO, err)
	}
	return nil
}

func (s *FileStore) FindByPrefix(ctx context.Context, artifactID string) (string, error) {
	if artifactID == "" {
		return "", fmt.Errorf("%w: empty artifact id", common.ErrValidation)
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", fmt.Errorf("%w: list blobs: %v", common.ErrIO, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		if name == artifactID || strings.HasPrefix(name, artifactID+".") {
			return name, nil
		}
	}
	return "", common.ErrNotFound
}
