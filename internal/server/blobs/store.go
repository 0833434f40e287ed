// Package blobs stores ciphertext envelopes, one blob per artifact.
// The blob name is the artifact ID plus a cosmetic extension suffix, so
// lookup without a known extension is a prefix match rather than an exact
// name match.
package blobs

import "context"

// Store is the ciphertext blob store contract. All payloads it handles are
// already encrypted; plaintext never reaches this layer.
type Store interface {
	// Save persists the blob under name such that readers never observe a
	// partial write.
	Save(ctx context.Context, name string, data []byte) error

	// Load returns the blob's bytes or common.ErrNotFound.
	Load(ctx context.Context, name string) ([]byte, error)

	// Delete removes the blob. Deleting an absent blob is not an error.
	Delete(ctx context.Context, name string) error

	// FindByPrefix returns the full name of the blob whose name is either
	// exactly artifactID or artifactID followed by an extension suffix,
	// or common.ErrNotFound.
	FindByPrefix(ctx context.Context, artifactID string) (string, error)
}

// Name joins an artifact ID with its cosmetic extension.
func Name(artifactID, extension string) string {
	if extension == "" {
		return artifactID
	}
	return artifactID + "." + extension
}
