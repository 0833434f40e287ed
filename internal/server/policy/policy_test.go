package policy

import (
	"testing"
	"time"

	"github.com/droplocker/droplocker/internal/common"
	"github.com/droplocker/droplocker/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword_EmptyRejected(t *testing.T) {
	_, err := HashPassword("")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestEvaluate_NoPolicyGrants(t *testing.T) {
	record := &models.ArtifactRecord{ArtifactID: "x", OneTime: true}
	assert.NoError(t, Evaluate(record, "", time.Now()))
}

func TestEvaluate_Expiry(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		expiresAt int64
		wantErr   error
	}{
		{"no expiry", 0, nil},
		{"future expiry", now.Add(time.Hour).Unix(), nil},
		{"passed expiry", now.Add(-2 * time.Second).Unix(), ErrExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := &models.ArtifactRecord{ArtifactID: "x", ExpiresAt: tt.expiresAt}
			err := Evaluate(record, "", now)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestEvaluate_ExpiredSurfacesAsNotFound(t *testing.T) {
	record := &models.ArtifactRecord{ArtifactID: "x", ExpiresAt: 1}
	err := Evaluate(record, "", time.Now())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestEvaluate_PasswordGate(t *testing.T) {
	hash, err := HashPassword("secret")
	require.NoError(t, err)

	record := &models.ArtifactRecord{
		ArtifactID:   "x",
		HasPassword:  true,
		PasswordHash: hash,
	}

	assert.NoError(t, Evaluate(record, "secret", time.Now()))
	assert.ErrorIs(t, Evaluate(record, "wrong", time.Now()), common.ErrUnauthorized)
	assert.ErrorIs(t, Evaluate(record, "", time.Now()), common.ErrUnauthorized)
}

func TestEvaluate_ExpiryCheckedBeforePassword(t *testing.T) {
	hash, err := HashPassword("secret")
	require.NoError(t, err)

	record := &models.ArtifactRecord{
		ArtifactID:   "x",
		HasPassword:  true,
		PasswordHash: hash,
		ExpiresAt:    1,
	}

	// Even with the right password, an expired artifact is gone.
	assert.ErrorIs(t, Evaluate(record, "secret", time.Now()), ErrExpired)
}

func TestEvaluate_BrokenInvariantFailsClosed(t *testing.T) {
	record := &models.ArtifactRecord{ArtifactID: "x", HasPassword: true}
	assert.ErrorIs(t, Evaluate(record, "anything", time.Now()), common.ErrUnauthorized)
}
