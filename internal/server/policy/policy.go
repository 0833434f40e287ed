// Package policy decides whether a retrieval attempt against an artifact
// record is authorized. Checks run in a fixed order: expiry first, then the
// password gate, and only then is decryption work allowed to start.
package policy

import (
	"fmt"
	"time"

	"github.com/droplocker/droplocker/internal/common"
	"github.com/droplocker/droplocker/internal/server/models"
	"golang.org/x/crypto/bcrypt"
)

// ErrExpired marks an artifact whose expiry has passed. It wraps
// common.ErrNotFound, so to outside callers an expired artifact is
// indistinguishable from one that never existed; the vault additionally
// deletes the record/blob pair when it sees this error.
var ErrExpired = fmt.Errorf("artifact expired: %w", common.ErrNotFound)

// HashPassword produces a bcrypt digest for storage in the artifact record.
// bcrypt is deliberately slow; the cost of a verify is the rate limit on
// password guessing.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("%w: empty password", common.ErrValidation)
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}
	return string(digest), nil
}

// Evaluate authorizes a retrieval attempt. It returns nil when the caller
// may proceed to unwrap and decrypt, ErrExpired when the artifact's expiry
// has passed, and common.ErrUnauthorized when the password gate fails.
//
// Evaluate never touches ciphertext; the password check happens before any
// decryption work so unauthenticated requests cost no cipher cycles.
func Evaluate(record *models.ArtifactRecord, password string, now time.Time) error {
	if record.Expired(now) {
		return ErrExpired
	}

	if record.HasPassword {
		// hasPassword without a stored hash violates the record invariant;
		// fail closed.
		if record.PasswordHash == "" {
			return common.ErrUnauthorized
		}
		if password == "" {
			return common.ErrUnauthorized
		}
		if err := bcrypt.CompareHashAndPassword([]byte(record.PasswordHash), []byte(password)); err != nil {
			return common.ErrUnauthorized
		}
	}

	return nil
}
