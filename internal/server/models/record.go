// Package models defines the persistent data model shared by the record
// stores and the vault service.
package models

import "time"

// SchemaVersion tags serialized records so future field additions can be
// migrated deliberately.
const SchemaVersion = 1

// ArtifactRecord is the per-upload metadata record. One record exists per
// stored ciphertext blob; the pair shares a lifecycle and is always
// created and deleted together.
//
// Invariants:
//   - WrappedFileKey always holds a base64 envelope that unwraps under the
//     current master key; if it does not, the record is unrecoverable.
//   - HasPassword is true exactly when PasswordHash is non-empty.
type ArtifactRecord struct {
	SchemaVersion  int    `json:"schema_version"`
	ArtifactID     string `json:"artifact_id"`
	OriginalName   string `json:"original_name"`
	Extension      string `json:"extension"`
	CreatedAt      int64  `json:"created_at"`
	PlaintextSize  int64  `json:"plaintext_size"`
	CiphertextSize int64  `json:"ciphertext_size"`
	WrappedFileKey string `json:"wrapped_file_key"`
	HasPassword    bool   `json:"has_password"`
	PasswordHash   string `json:"password_hash,omitempty"`
	ExpiresAt      int64  `json:"expires_at,omitempty"`
	Downloaded     bool   `json:"downloaded"`
	OneTime        bool   `json:"one_time"`
}

// Expired reports whether the record's expiry, if any, has passed at now.
func (r *ArtifactRecord) Expired(now time.Time) bool {
	return r.ExpiresAt != 0 && now.Unix() >= r.ExpiresAt
}
