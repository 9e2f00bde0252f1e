package repository

import (
	"context"
	"errors"

	"finsight/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProfileRepository persists encrypted profile records keyed by the
// stable profile hash. Plaintext never touches this layer.
type ProfileRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewProfileRepository(pool PgxPool, tracer trace.Tracer) *ProfileRepository {
	return &ProfileRepository{pool: pool, tracer: tracer}
}

func (r *ProfileRepository) RunMigrations(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS encrypted_profiles (
			profile_hash TEXT PRIMARY KEY,
			ciphertext   BYTEA NOT NULL,
			iv           BYTEA NOT NULL,
			tag          BYTEA NOT NULL,
			key_version  INT NOT NULL,
			algorithm    TEXT NOT NULL,
			deleted      BOOLEAN NOT NULL DEFAULT FALSE,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

// GetByHash returns the active record for a profile hash, or nil when
// none exists (or it was logically deleted).
func (r *ProfileRepository) GetByHash(ctx context.Context, profileHash string) (*domain.EncryptedProfile, error) {
	_, span := r.tracer.Start(ctx, "profile-repo.get-by-hash")
	defer span.End()

	row := r.pool.QueryRow(ctx,
		`SELECT profile_hash, ciphertext, iv, tag, key_version, algorithm, updated_at
		 FROM encrypted_profiles
		 WHERE profile_hash = $1 AND deleted = FALSE`,
		profileHash,
	)

	var rec domain.EncryptedProfile
	err := row.Scan(
		&rec.ProfileHash, &rec.Ciphertext, &rec.IV, &rec.Tag,
		&rec.KeyVersion, &rec.Algorithm, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Upsert writes a record, replacing any previous version for the same
// profile hash.
func (r *ProfileRepository) Upsert(ctx context.Context, rec *domain.EncryptedProfile) error {
	_, span := r.tracer.Start(ctx, "profile-repo.upsert")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO encrypted_profiles (profile_hash, ciphertext, iv, tag, key_version, algorithm, deleted, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		 ON CONFLICT (profile_hash) DO UPDATE SET
		     ciphertext = EXCLUDED.ciphertext,
		     iv = EXCLUDED.iv,
		     tag = EXCLUDED.tag,
		     key_version = EXCLUDED.key_version,
		     algorithm = EXCLUDED.algorithm,
		     deleted = FALSE,
		     updated_at = EXCLUDED.updated_at`,
		rec.ProfileHash, rec.Ciphertext, rec.IV, rec.Tag,
		rec.KeyVersion, rec.Algorithm, rec.UpdatedAt,
	)
	return err
}

// MarkDeleted logically deletes a profile; the row stays for audit but
// is never returned again.
func (r *ProfileRepository) MarkDeleted(ctx context.Context, profileHash string) error {
	_, span := r.tracer.Start(ctx, "profile-repo.mark-deleted")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`UPDATE encrypted_profiles SET deleted = TRUE, updated_at = NOW() WHERE profile_hash = $1`,
		profileHash,
	)
	return err
}

// ListByKeyVersion returns hashes of active records still under the
// given key version. Used to drive key rotation sweeps.
func (r *ProfileRepository) ListByKeyVersion(ctx context.Context, keyVersion int, limit int) ([]string, error) {
	_, span := r.tracer.Start(ctx, "profile-repo.list-by-key-version")
	defer span.End()

	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx,
		`SELECT profile_hash
		 FROM encrypted_profiles
		 WHERE key_version = $1 AND deleted = FALSE
		 ORDER BY updated_at ASC
		 LIMIT $2`,
		keyVersion, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}
