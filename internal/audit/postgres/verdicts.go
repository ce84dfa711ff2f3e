package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/neural-scan/internal/audit"
)

// VerdictRepository implements audit.Recorder.
type VerdictRepository struct {
	pool *Pool
}

// NewVerdictRepository creates a repository on pool.
func NewVerdictRepository(pool *Pool) *VerdictRepository {
	return &VerdictRepository{pool: pool}
}

var _ audit.Recorder = (*VerdictRepository)(nil)

// Record inserts one verdict. The probe embedding is stored when present.
func (r *VerdictRepository) Record(ctx context.Context, rec audit.Record) error {
	var embedding any
	if len(rec.ProbeEmbedding) > 0 {
		embedding = pgvector.NewVector(rec.ProbeEmbedding)
	}
	var candidateKey sql.NullString
	if rec.CandidateKey != "" {
		candidateKey = sql.NullString{String: rec.CandidateKey, Valid: true}
	}
	var distance sql.NullFloat64
	if rec.Distance != nil {
		distance = sql.NullFloat64{Float64: *rec.Distance, Valid: true}
	}

	_, err := r.pool.db.ExecContext(ctx, `
		INSERT INTO identity_verdicts (
			id, created_at, name, matched, confidence, note,
			candidate_key, distance, gallery_fingerprint, probe_sha256, probe_embedding
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		rec.ID, rec.CreatedAt, rec.Name, rec.Matched, rec.Confidence, rec.Note,
		candidateKey, distance, rec.Fingerprint, rec.ProbeSHA256, embedding,
	)
	if err != nil {
		return fmt.Errorf("insert verdict: %w", err)
	}
	return nil
}

// Recent returns the latest verdicts, newest first.
func (r *VerdictRepository) Recent(ctx context.Context, limit int) ([]audit.Record, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT id, created_at, name, matched, confidence, note,
		       candidate_key, distance, gallery_fingerprint, probe_sha256
		FROM identity_verdicts
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query verdicts: %w", err)
	}
	defer rows.Close()

	records := []audit.Record{}
	for rows.Next() {
		var (
			rec          audit.Record
			candidateKey sql.NullString
			distance     sql.NullFloat64
		)
		if err := rows.Scan(
			&rec.ID, &rec.CreatedAt, &rec.Name, &rec.Matched, &rec.Confidence, &rec.Note,
			&candidateKey, &distance, &rec.Fingerprint, &rec.ProbeSHA256,
		); err != nil {
			return nil, fmt.Errorf("scan verdict: %w", err)
		}
		rec.CandidateKey = candidateKey.String
		if distance.Valid {
			d := distance.Float64
			rec.Distance = &d
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verdicts: %w", err)
	}
	return records, nil
}

// Embedding returns the stored probe embedding of a verdict, or nil when none was stored.
func (r *VerdictRepository) Embedding(ctx context.Context, id string) ([]float32, error) {
	var vec pgvector.Vector
	var valid bool
	err := r.pool.db.QueryRowContext(ctx, `
		SELECT probe_embedding IS NOT NULL, COALESCE(probe_embedding, '[0]'::vector)
		FROM identity_verdicts WHERE id = $1
	`, id).Scan(&valid, &vec)
	if err != nil {
		return nil, fmt.Errorf("query verdict embedding: %w", err)
	}
	if !valid {
		return nil, nil
	}
	return vec.Slice(), nil
}
