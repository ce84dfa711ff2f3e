package audit

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/kozaktomas/neural-scan/internal/gallery"
	"github.com/kozaktomas/neural-scan/internal/identity"
	"github.com/kozaktomas/neural-scan/internal/matcher"
)

func TestNewRecord(t *testing.T) {
	v := identity.Verdict{
		Name:       "John Doe",
		Matched:    true,
		Confidence: 0.9,
		Note:       "note",
		Candidate:  &matcher.Candidate{Entry: gallery.NewEntry("John_Doe_2.jpg", ""), Distance: 0.1},
	}

	r := NewRecord(v, "fp", []byte("probe"), []float32{1, 2})

	if r.ID == uuid.Nil {
		t.Error("expected a generated ID")
	}
	if r.CandidateKey != "John_Doe_2.jpg" || r.Distance == nil || *r.Distance != 0.1 {
		t.Errorf("unexpected candidate fields: key=%q distance=%v", r.CandidateKey, r.Distance)
	}
	if r.ProbeSHA256 != "ba9c736f19e7f60b7f6764adb0b7908c0a2b394e09b6c09863528c7f2bc86095" {
		t.Errorf("unexpected probe hash %q", r.ProbeSHA256)
	}
	if r.Fingerprint != "fp" || len(r.ProbeEmbedding) != 2 {
		t.Errorf("unexpected record: %+v", r)
	}
}

func TestNewRecord_Unknown(t *testing.T) {
	r := NewRecord(identity.Verdict{Name: identity.Unknown, Note: "no candidates / empty gallery"}, "fp", nil, nil)
	if r.CandidateKey != "" || r.Distance != nil {
		t.Error("unknown verdict without candidate should have no candidate fields")
	}
}

func TestNop(t *testing.T) {
	var rec Recorder = Nop{}
	if err := rec.Record(context.Background(), Record{}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	records, err := rec.Recent(context.Background(), 10)
	if err != nil || records == nil || len(records) != 0 {
		t.Errorf("expected empty non-nil slice, got %v, %v", records, err)
	}
}
