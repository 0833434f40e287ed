// Package vault composes the envelope cipher, the record store, and the
// blob store into the upload and retrieval workflows, and owns the
// artifact lifecycle: Uploaded → LinkConfigured → Downloaded, Expired or
// Deleted. Terminal states are absorbing.
package vault

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/droplocker/droplocker/internal/common"
	"github.com/droplocker/droplocker/internal/cryptox"
	"github.com/droplocker/droplocker/internal/logging"
	"github.com/droplocker/droplocker/internal/masterkey"
	"github.com/droplocker/droplocker/internal/server/blobs"
	"github.com/droplocker/droplocker/internal/server/models"
	"github.com/droplocker/droplocker/internal/server/policy"
	"github.com/droplocker/droplocker/internal/server/records"
)

const (
	// artifactIDBytes is the entropy of an artifact ID; IDs render as
	// 16 hex characters.
	artifactIDBytes = 8

	// idDrawAttempts bounds collision retries before giving up.
	idDrawAttempts = 5
)

// Service is the vault orchestrator.
type Service struct {
	records   records.Repository
	blobs     blobs.Store
	master    *masterkey.Provider
	logger    logging.Logger
	maxExpiry time.Duration

	// now is a seam for expiry tests.
	now func() time.Time

	locks *idLocks

	claimsMu sync.Mutex
	claims   map[string]struct{}
}

// NewService wires the orchestrator. maxExpiry caps the expiry a caller
// may configure.
func NewService(r records.Repository, b blobs.Store, m *masterkey.Provider, l logging.Logger, maxExpiry time.Duration) *Service {
	return &Service{
		records:   r,
		blobs:     b,
		master:    m,
		logger:    l.With("module", "vault"),
		maxExpiry: maxExpiry,
		now:       time.Now,
		locks:     newIDLocks(),
		claims:    make(map[string]struct{}),
	}
}

// UploadResult describes a freshly stored artifact.
type UploadResult struct {
	ArtifactID     string
	Extension      string
	PlaintextSize  int64
	CiphertextSize int64
}

// LinkPolicy is the outcome of ConfigureLink.
type LinkPolicy struct {
	ExpiresAt   int64
	HasPassword bool
}

// Info is the public metadata of an artifact.
type Info struct {
	Name           string
	Extension      string
	PlaintextSize  int64
	CiphertextSize int64
	HasPassword    bool
	ExpiresAt      int64
}

// Upload encrypts content under a fresh file key, wraps the key under the
// master key, and persists the blob/record pair. If either write fails the
// other is rolled back, so no orphan blob or record survives a failed
// upload. New artifacts default to one-time with no expiry and no password.
func (s *Service) Upload(ctx context.Context, content []byte, originalName string) (*UploadResult, error) {
	if originalName == "" {
		return nil, fmt.Errorf("%w: empty file name", common.ErrValidation)
	}
	name := filepath.Base(originalName)
	ext := sanitizeExtension(name)

	id, err := s.drawArtifactID(ctx)
	if err != nil {
		return nil, err
	}

	fileKey := common.GenerateRandByteArray(cryptox.KeySize)
	defer common.WipeByteArray(fileKey)

	envelope, err := cryptox.Encrypt(content, fileKey)
	if err != nil {
		return nil, fmt.Errorf("encrypt payload: %w", err)
	}

	wrapped, err := cryptox.Wrap(fileKey, s.master.Key())
	if err != nil {
		return nil, fmt.Errorf("wrap file key: %w", err)
	}

	blobName := blobs.Name(id, ext)
	if err := s.blobs.Save(ctx, blobName, envelope); err != nil {
		return nil, fmt.Errorf("store blob: %w", err)
	}

	record := &models.ArtifactRecord{
		SchemaVersion:  models.SchemaVersion,
		ArtifactID:     id,
		OriginalName:   name,
		Extension:      ext,
		CreatedAt:      s.now().Unix(),
		PlaintextSize:  int64(len(content)),
		CiphertextSize: int64(len(envelope)),
		WrappedFileKey: base64.StdEncoding.EncodeToString(wrapped),
		OneTime:        true,
	}
	if err := s.records.Put(ctx, record); err != nil {
		// Roll back the blob so no ciphertext survives without a record.
		if delErr := s.blobs.Delete(ctx, blobName); delErr != nil {
			s.logger.Error(ctx, "rollback of orphan blob failed", "artifact_id", id, "error", delErr)
		}
		return nil, fmt.Errorf("store record: %w", err)
	}

	s.logger.Info(ctx, "artifact uploaded", "artifact_id", id, "size", record.PlaintextSize)

	return &UploadResult{
		ArtifactID:     id,
		Extension:      ext,
		PlaintextSize:  record.PlaintextSize,
		CiphertextSize: record.CiphertextSize,
	}, nil
}

// ConfigureLink sets the expiry and optional password on an artifact. It
// may be called repeatedly before the first retrieval; each call replaces
// the prior policy wholesale. The expiry is clamped to the configured
// maximum.
func (s *Service) ConfigureLink(ctx context.Context, artifactID string, expirySeconds int64, password string) (*LinkPolicy, error) {
	if err := validateArtifactID(artifactID); err != nil {
		return nil, err
	}
	if expirySeconds <= 0 {
		return nil, fmt.Errorf("%w: expiry must be positive", common.ErrValidation)
	}

	s.locks.lock(artifactID)
	defer s.locks.unlock(artifactID)

	if _, err := s.loadLive(ctx, artifactID); err != nil {
		return nil, err
	}

	expiry := time.Duration(expirySeconds) * time.Second
	if expiry > s.maxExpiry {
		expiry = s.maxExpiry
	}
	expiresAt := s.now().Add(expiry).Unix()

	var hash string
	if password != "" {
		h, err := policy.HashPassword(password)
		if err != nil {
			return nil, err
		}
		hash = h
	}

	// The read-modify-write runs atomically so two servers sharing one
	// database cannot interleave policy updates. The file backend falls
	// through to the artifact lock held above.
	err := records.Atomically(ctx, s.records, func(ctx context.Context, r records.Repository) error {
		record, err := r.Get(ctx, artifactID)
		if err != nil {
			return err
		}
		record.ExpiresAt = expiresAt
		record.HasPassword = hash != ""
		record.PasswordHash = hash
		if err := r.Put(ctx, record); err != nil {
			return fmt.Errorf("store record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "link configured",
		"artifact_id", artifactID, "expires_at", expiresAt, "has_password", hash != "")

	return &LinkPolicy{ExpiresAt: expiresAt, HasPassword: hash != ""}, nil
}

// GetInfo returns public metadata. Lazy expiry applies here as on any
// other access: an expired artifact is deleted on detection and reported
// as not found.
func (s *Service) GetInfo(ctx context.Context, artifactID string) (*Info, error) {
	if err := validateArtifactID(artifactID); err != nil {
		return nil, err
	}

	s.locks.lock(artifactID)
	defer s.locks.unlock(artifactID)

	record, err := s.loadLive(ctx, artifactID)
	if err != nil {
		return nil, err
	}

	return &Info{
		Name:           record.OriginalName,
		Extension:      record.Extension,
		PlaintextSize:  record.PlaintextSize,
		CiphertextSize: record.CiphertextSize,
		HasPassword:    record.HasPassword,
		ExpiresAt:      record.ExpiresAt,
	}, nil
}

// Retrieve authorizes, decrypts, and streams an artifact.
//
// For one-time artifacts the caller holds the only claim on the content:
// concurrent retrievals of the same artifact see not-found once the claim
// is taken, and the record/blob pair is deleted only after the returned
// stream is fully consumed and closed. An early close releases the claim
// without deleting anything.
func (s *Service) Retrieve(ctx context.Context, artifactID string, password string) (*Download, error) {
	if err := validateArtifactID(artifactID); err != nil {
		return nil, err
	}

	s.locks.lock(artifactID)
	unlocked := false
	unlock := func() {
		if !unlocked {
			unlocked = true
			s.locks.unlock(artifactID)
		}
	}
	defer unlock()

	record, err := s.loadLive(ctx, artifactID)
	if err != nil {
		return nil, err
	}

	if err := policy.Evaluate(record, password, s.now()); err != nil {
		if errors.Is(err, policy.ErrExpired) {
			s.deletePair(ctx, record)
		}
		return nil, err
	}

	if record.OneTime && !s.claim(artifactID) {
		// Another in-flight retrieval already owns the single use.
		return nil, common.ErrNotFound
	}

	plaintext, err := s.decryptPayload(ctx, record)
	if err != nil {
		s.unclaim(artifactID)
		return nil, err
	}

	// The lock is released before streaming; the claim keeps other
	// retrievals out until the outcome is known.
	unlock()

	content := newCompletionReader(plaintext, func(complete bool) {
		s.finishRetrieve(context.WithoutCancel(ctx), record, complete)
	})

	return &Download{
		Name:    record.OriginalName,
		Size:    record.PlaintextSize,
		Content: content,
	}, nil
}

// Sweep deletes every artifact whose expiry has passed. Correctness never
// depends on it running: expiry is also enforced lazily on access. It
// exists purely for storage hygiene and returns the number of artifacts
// removed.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	ids, err := s.records.ListExpired(ctx, s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("list expired: %w", err)
	}

	removed := 0
	for _, id := range ids {
		s.locks.lock(id)
		record, err := s.records.Get(ctx, id)
		if err == nil && record.Expired(s.now()) {
			s.deletePair(ctx, record)
			removed++
		}
		s.locks.unlock(id)
	}

	if removed > 0 {
		s.logger.Info(ctx, "sweep removed expired artifacts", "count", removed)
	}
	return removed, nil
}

// loadLive loads a record and enforces lazy expiry: an expired record is
// deleted together with its blob and reported as not found. Callers must
// hold the artifact lock.
func (s *Service) loadLive(ctx context.Context, artifactID string) (*models.ArtifactRecord, error) {
	record, err := s.records.Get(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	if record.Expired(s.now()) {
		s.deletePair(ctx, record)
		return nil, policy.ErrExpired
	}
	return record, nil
}

func (s *Service) decryptPayload(ctx context.Context, record *models.ArtifactRecord) ([]byte, error) {
	wrapped, err := base64.StdEncoding.DecodeString(record.WrappedFileKey)
	if err != nil {
		return nil, fmt.Errorf("%w: wrapped key is not valid base64", common.ErrIntegrity)
	}

	fileKey, err := cryptox.Unwrap(wrapped, s.master.Key())
	if err != nil {
		return nil, fmt.Errorf("unwrap file key: %w", err)
	}
	defer common.WipeByteArray(fileKey)

	blobName, err := s.blobs.FindByPrefix(ctx, record.ArtifactID)
	if err != nil {
		return nil, fmt.Errorf("locate blob: %w", err)
	}
	envelope, err := s.blobs.Load(ctx, blobName)
	if err != nil {
		return nil, fmt.Errorf("load blob: %w", err)
	}

	plaintext, err := cryptox.Decrypt(envelope, fileKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt payload: %w", err)
	}
	return plaintext, nil
}

// finishRetrieve applies the post-success mutation once the transport
// hand-off has completed. Deletion is strictly the last step: an aborted
// stream only releases the claim, keeping the content recoverable.
func (s *Service) finishRetrieve(ctx context.Context, record *models.ArtifactRecord, complete bool) {
	id := record.ArtifactID

	s.locks.lock(id)
	defer s.locks.unlock(id)
	defer s.unclaim(id)

	if !complete {
		s.logger.Warn(ctx, "retrieval aborted mid-stream, artifact kept", "artifact_id", id)
		return
	}

	if record.OneTime {
		s.deletePair(ctx, record)
		s.logger.Info(ctx, "one-time artifact retrieved and deleted", "artifact_id", id)
		return
	}

	// Multi-use artifacts stay retrievable until expiry; the downloaded
	// flag is informational and set once on first success.
	err := records.Atomically(ctx, s.records, func(ctx context.Context, r records.Repository) error {
		current, err := r.Get(ctx, id)
		if err != nil {
			return err
		}
		if current.Downloaded {
			return nil
		}
		current.Downloaded = true
		return r.Put(ctx, current)
	})
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		s.logger.Error(ctx, "marking artifact downloaded failed", "artifact_id", id, "error", err)
	}
}

// deletePair removes record and blob together. The record goes first:
// once it is gone the artifact is unreachable, and a stray blob is a
// hygiene problem, not a correctness one.
func (s *Service) deletePair(ctx context.Context, record *models.ArtifactRecord) {
	id := record.ArtifactID

	if err := s.records.Delete(ctx, id); err != nil {
		s.logger.Error(ctx, "record delete failed", "artifact_id", id, "error", err)
	}

	blobName, err := s.blobs.FindByPrefix(ctx, id)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			s.logger.Error(ctx, "blob lookup for delete failed", "artifact_id", id, "error", err)
		}
		return
	}
	if err := s.blobs.Delete(ctx, blobName); err != nil {
		s.logger.Error(ctx, "blob delete failed", "artifact_id", id, "error", err)
	}
}

func (s *Service) drawArtifactID(ctx context.Context) (string, error) {
	for range idDrawAttempts {
		id, err := common.MakeRandHexString(artifactIDBytes)
		if err != nil {
			return "", fmt.Errorf("%w: %v", common.ErrCrypto, err)
		}

		// Redraw instead of overwriting on the (negligible) collision.
		_, err = s.records.Get(ctx, id)
		if errors.Is(err, common.ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", fmt.Errorf("check artifact id: %w", err)
		}
	}
	return "", fmt.Errorf("%w: could not draw a unique artifact id", common.ErrIO)
}

func (s *Service) claim(id string) bool {
	s.claimsMu.Lock()
	defer s.claimsMu.Unlock()
	if _, taken := s.claims[id]; taken {
		return false
	}
	s.claims[id] = struct{}{}
	return true
}

func (s *Service) unclaim(id string) {
	s.claimsMu.Lock()
	delete(s.claims, id)
	s.claimsMu.Unlock()
}

func validateArtifactID(id string) error {
	if len(id) != artifactIDBytes*2 {
		return fmt.Errorf("%w: malformed artifact id", common.ErrValidation)
	}
	for _, c := range id {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("%w: malformed artifact id", common.ErrValidation)
		}
	}
	return nil
}

// sanitizeExtension extracts a cosmetic, alphanumeric-only extension from
// the original file name. The extension never influences lookup identity.
func sanitizeExtension(name string) string {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	var b strings.Builder
	for _, c := range ext {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		}
	}
	return strings.ToLower(b.String())
}
