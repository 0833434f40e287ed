package httpapi

import (
	"fmt"
	"time"

	"github.com/droplocker/droplocker/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// linkClaims binds a share-link token to a single artifact. The token makes
// generated links tamper-evident; possession of a token is not a substitute
// for the artifact's password gate.
type linkClaims struct {
	jwt.RegisteredClaims
	ArtifactID string `json:"artifact_id"`
}

// GenerateLinkToken signs an HS256 token for artifactID. A zero expiresAt
// produces a token without an exp claim, matching an artifact that has no
// expiry configured.
func GenerateLinkToken(artifactID string, secret []byte, expiresAt time.Time) (string, error) {
	claims := linkClaims{ArtifactID: artifactID}
	if !expiresAt.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(expiresAt)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// ArtifactIDFromToken verifies a share-link token and returns the artifact
// it was issued for. Invalid, forged, and expired tokens all yield
// common.ErrUnauthorized.
func ArtifactIDFromToken(tokenString string, secret []byte) (string, error) {
	claims := &linkClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrUnauthorized, err)
	}
	if !token.Valid || claims.ArtifactID == "" {
		return "", common.ErrUnauthorized
	}
	return claims.ArtifactID, nil
}
