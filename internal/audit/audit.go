// Package audit records identity verdicts for later review.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/neural-scan/internal/identity"
)

// Record is one identification decision.
type Record struct {
	ID           uuid.UUID `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Name         string    `json:"name"`
	Matched      bool      `json:"matched"`
	Confidence   float64   `json:"confidence"`
	Note         string    `json:"note"`
	CandidateKey string    `json:"candidate_key,omitempty"`
	Distance     *float64  `json:"distance,omitempty"`
	Fingerprint  string    `json:"gallery_fingerprint"`
	ProbeSHA256  string    `json:"probe_sha256"`

	// ProbeEmbedding is stored but never returned by Recent.
	ProbeEmbedding []float32 `json:"-"`
}

// NewRecord builds the audit record of a verdict.
func NewRecord(v identity.Verdict, fingerprint string, probe []byte, embedding []float32) Record {
	sum := sha256.Sum256(probe)
	r := Record{
		ID:             uuid.New(),
		CreatedAt:      time.Now().UTC(),
		Name:           v.Name,
		Matched:        v.Matched,
		Confidence:     v.Confidence,
		Note:           v.Note,
		Fingerprint:    fingerprint,
		ProbeSHA256:    hex.EncodeToString(sum[:]),
		ProbeEmbedding: embedding,
	}
	if v.Candidate != nil {
		d := v.Candidate.Distance
		r.CandidateKey = v.Candidate.Entry.Key
		r.Distance = &d
	}
	return r
}

// Recorder persists decisions.
type Recorder interface {
	Record(ctx context.Context, r Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
}

// Nop discards records. It is used when no database is configured.
type Nop struct{}

func (Nop) Record(context.Context, Record) error { return nil }

func (Nop) Recent(context.Context, int) ([]Record, error) { return []Record{}, nil }
