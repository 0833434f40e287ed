package records

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/droplocker/droplocker/internal/common"
	"github.com/droplocker/droplocker/internal/filex"
	"github.com/droplocker/droplocker/internal/server/models"
)

const recordSuffix = ".json"

// FileRepository keeps one JSON document per artifact under recordDir.
// Writes go through a temp file plus atomic rename, so a crash mid-put
// never leaves a half-written record visible.
type FileRepository struct {
	dir string
}

// NewFileRepository creates recordDir if needed and returns a repository
// rooted there.
func NewFileRepository(dir string) (*FileRepository, error) {
	abs, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrIO, err)
	}
	return &FileRepository{dir: abs}, nil
}

func (r *FileRepository) path(artifactID string) string {
	return filepath.Join(r.dir, artifactID+recordSuffix)
}

func (r *FileRepository) Put(ctx context.Context, record *models.ArtifactRecord) error {
	if record.ArtifactID == "" {
		return fmt.Errorf("%w: empty artifact id", common.ErrValidation)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: marshal record: %v", common.ErrIO, err)
	}

	if err := filex.WriteFileAtomic(r.path(record.ArtifactID), data, 0o600); err != nil {
		return fmt.Errorf("%w: %v", common.ErrIO, err)
	}
	return nil
}

func (r *FileRepository) Get(ctx context.Context, artifactID string) (*models.ArtifactRecord, error) {
	data, err := os.ReadFile(r.path(artifactID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("%w: read record: %v", common.ErrIO, err)
	}

	var record models.ArtifactRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: unmarshal record: %v", common.ErrIO, err)
	}
	return &record, nil
}

func (r *FileRepository) Delete(ctx context.Context, artifactID string) error {
	if err := os.Remove(r.path(artifactID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: delete record: %v", common.ErrIO, err)
	}
	return nil
}

func (r *FileRepository) ListExpired(ctx context.Context, now int64) ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: list records: %v", common.ErrIO, err)
	}

	var expired []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, recordSuffix) {
			continue
		}
		id := strings.TrimSuffix(name, recordSuffix)

		record, err := r.Get(ctx, id)
		if err != nil {
			// Records can disappear between the listing and the read.
			continue
		}
		if record.ExpiresAt != 0 && now >= record.ExpiresAt {
			expired = append(expired, id)
		}
	}
	return expired, nil
}
