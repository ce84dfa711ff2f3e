// Package matcher ranks gallery entries by similarity to a probe image.
package matcher

import (
	"context"

	"github.com/kozaktomas/neural-scan/internal/gallery"
)

// Outcome tags a Result.
type Outcome int

const (
	// OutcomeFound means the search ran; the candidate list may be empty.
	OutcomeFound Outcome = iota + 1
	// OutcomeFailed means the provider could not produce candidates.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFound:
		return "found"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Candidate is a gallery entry with its distance to the probe. Lower is more similar.
type Candidate struct {
	Entry    gallery.Entry `json:"entry"`
	Distance float64       `json:"distance"`
}

// Result is either a best-first candidate list or a failure reason.
type Result struct {
	Outcome    Outcome
	Candidates []Candidate
	Reason     string

	// ProbeEmbedding is the embedding the search ran with, when one was computed.
	ProbeEmbedding []float32
}

// Found returns a successful result. candidates must be ordered best-first.
func Found(candidates []Candidate) Result {
	return Result{Outcome: OutcomeFound, Candidates: candidates}
}

// Failed returns a provider failure.
func Failed(reason string) Result {
	return Result{Outcome: OutcomeFailed, Reason: reason}
}

// IsFailure reports whether the provider failed.
func (r Result) IsFailure() bool {
	return r.Outcome != OutcomeFound
}

// Top returns the best candidate.
func (r Result) Top() (Candidate, bool) {
	if r.IsFailure() || len(r.Candidates) == 0 {
		return Candidate{}, false
	}
	return r.Candidates[0], true
}

// Provider finds the gallery entries closest to a probe image. Failures are
// reported in the Result, never as a panic or error.
type Provider interface {
	Find(ctx context.Context, probe []byte, store *gallery.LocalStore) Result
}
