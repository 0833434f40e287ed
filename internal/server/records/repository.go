// Package records persists per-artifact metadata. Two interchangeable
// backends exist: a flat-file store keeping one JSON document per artifact
// and a PostgreSQL store. Both guarantee that a reader never observes a
// partially written record.
package records

import (
	"context"

	"github.com/droplocker/droplocker/internal/server/models"
)

// Repository is the metadata store contract. ArtifactID is the primary key.
type Repository interface {
	// Put persists the record atomically, replacing any prior version.
	Put(ctx context.Context, record *models.ArtifactRecord) error

	// Get loads a record or returns common.ErrNotFound.
	Get(ctx context.Context, artifactID string) (*models.ArtifactRecord, error)

	// Delete removes the record. Deleting an absent record is not an error.
	Delete(ctx context.Context, artifactID string) error

	// ListExpired returns the IDs of records whose expiry has passed at
	// the given unix timestamp. Used by the out-of-band sweep.
	ListExpired(ctx context.Context, now int64) ([]string, error)
}

// Txer is implemented by repositories that can run a function atomically,
// typically inside a database transaction. fn receives a repository bound
// to the transaction; the transaction commits when fn returns nil and rolls
// back otherwise.
type Txer interface {
	InTx(ctx context.Context, fn func(ctx context.Context, r Repository) error) error
}

// Atomically runs fn inside a transaction when repo supports one, and
// directly against repo otherwise. Read-modify-write sequences go through
// this helper so the Postgres backend stays consistent across concurrent
// server instances; the file backend relies on the caller's per-artifact
// lock instead.
func Atomically(ctx context.Context, repo Repository, fn func(ctx context.Context, r Repository) error) error {
	if tx, ok := repo.(Txer); ok {
		return tx.InTx(ctx, fn)
	}
	return fn(ctx, repo)
}
