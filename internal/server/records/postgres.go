package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/droplocker/droplocker/internal/common"
	"github.com/droplocker/droplocker/internal/dbx"
	"github.com/droplocker/droplocker/internal/server/models"
	"github.com/droplocker/droplocker/internal/server/records/migrations"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepository implements Repository over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// InTx implements Txer: fn runs against a repository bound to a single
// transaction. When the repository is already transactional, fn runs on it
// directly.
func (r *PostgresRepository) InTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	db, ok := r.db.(*sql.DB)
	if !ok {
		return fn(ctx, r)
	}
	return dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, NewPostgresRepository(tx))
	})
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// OpenPostgres opens a pgx-backed *sql.DB for dsn and applies the embedded
// migrations.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	goose.SetBaseFS(migrations.Migrations)
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return db, nil
}

func (r *PostgresRepository) Put(ctx context.Context, record *models.ArtifactRecord) error {
	if record.ArtifactID == "" {
		return fmt.Errorf("%w: empty artifact id", common.ErrValidation)
	}

	query := `
		INSERT INTO artifacts (id, schema_version, original_name, extension, created_at,
			plaintext_size, ciphertext_size, wrapped_file_key, has_password, password_hash,
			expires_at, downloaded, one_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id)
		DO UPDATE SET
			schema_version = EXCLUDED.schema_version,
			original_name = EXCLUDED.original_name,
			extension = EXCLUDED.extension,
			created_at = EXCLUDED.created_at,
			plaintext_size = EXCLUDED.plaintext_size,
			ciphertext_size = EXCLUDED.ciphertext_size,
			wrapped_file_key = EXCLUDED.wrapped_file_key,
			has_password = EXCLUDED.has_password,
			password_hash = EXCLUDED.password_hash,
			expires_at = EXCLUDED.expires_at,
			downloaded = EXCLUDED.downloaded,
			one_time = EXCLUDED.one_time;
	`
	_, err := r.db.ExecContext(ctx, query,
		record.ArtifactID, record.SchemaVersion, record.OriginalName, record.Extension,
		record.CreatedAt, record.PlaintextSize, record.CiphertextSize, record.WrappedFileKey,
		record.HasPassword, nullString(record.PasswordHash), nullInt64(record.ExpiresAt),
		record.Downloaded, record.OneTime)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrIO, err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, artifactID string) (*models.ArtifactRecord, error) {
	query := `
		SELECT id, schema_version, original_name, extension, created_at,
			plaintext_size, ciphertext_size, wrapped_file_key, has_password, password_hash,
			expires_at, downloaded, one_time
		FROM artifacts WHERE id = $1
	`
	var (
		record       models.ArtifactRecord
		passwordHash sql.NullString
		expiresAt    sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, query, artifactID).Scan(
		&record.ArtifactID, &record.SchemaVersion, &record.OriginalName, &record.Extension,
		&record.CreatedAt, &record.PlaintextSize, &record.CiphertextSize, &record.WrappedFileKey,
		&record.HasPassword, &passwordHash, &expiresAt, &record.Downloaded, &record.OneTime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", common.ErrIO, err)
	}

	record.PasswordHash = passwordHash.String
	record.ExpiresAt = expiresAt.Int64
	return &record, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, artifactID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM artifacts WHERE id = $1`, artifactID); err != nil {
		return fmt.Errorf("%w: %v", common.ErrIO, err)
	}
	return nil
}

func (r *PostgresRepository) ListExpired(ctx context.Context, now int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM artifacts WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrIO, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrIO, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrIO, err)
	}
	return ids, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}
