// Package identity turns ranked match candidates into a named verdict.
package identity

import (
	"fmt"
	"math"

	"github.com/kozaktomas/neural-scan/internal/matcher"
)

const (
	// Unknown is the verdict name when no candidate could be evaluated.
	Unknown = "UNKNOWN"
	// UnknownTarget is the verdict name when the best candidate is not similar enough.
	UnknownTarget = "UNKNOWN_TARGET"
)

const (
	noteEmpty     = "no candidates / empty gallery"
	noteTransform = "confidence = 1 - distance, a display transform and not a calibrated probability"
)

// Policy holds the decision parameters.
type Policy struct {
	// Threshold is the confidence a match must strictly exceed. Zero disables the
	// gate and the top candidate is always named.
	Threshold float64
}

// Verdict is the outcome of one identification.
type Verdict struct {
	Name       string             `json:"name"`
	Matched    bool               `json:"matched"`
	Confidence float64            `json:"confidence"`
	Note       string             `json:"note"`
	Candidate  *matcher.Candidate `json:"candidate,omitempty"`
}

// Percent renders the confidence as a percentage string ("87.00%").
func (v Verdict) Percent() string {
	return fmt.Sprintf("%.2f%%", v.Confidence*100)
}

// Confidence maps a distance to [0, 1]. It is 0 exactly when distance >= 1 and
// never decreases as distance decreases.
func Confidence(distance float64) float64 {
	if math.IsNaN(distance) {
		return 0
	}
	return min(1, max(0, 1-distance))
}

// Decide applies policy to a match result. An empty gallery, an empty
// candidate list and a provider failure all yield Unknown with zero confidence.
func Decide(result matcher.Result, galleryEmpty bool, policy Policy) Verdict {
	if galleryEmpty {
		return Verdict{Name: Unknown, Note: noteEmpty}
	}
	if result.IsFailure() {
		return Verdict{Name: Unknown, Note: "match provider failure: " + result.Reason}
	}
	top, ok := result.Top()
	if !ok {
		return Verdict{Name: Unknown, Note: noteEmpty}
	}

	confidence := Confidence(top.Distance)
	v := Verdict{
		Confidence: confidence,
		Candidate:  &top,
	}
	if policy.Threshold > 0 && confidence <= policy.Threshold {
		v.Name = UnknownTarget
		v.Note = fmt.Sprintf("confidence does not exceed threshold %.2f; %s", policy.Threshold, noteTransform)
		return v
	}

	v.Name = top.Entry.DisplayName
	v.Matched = true
	v.Note = noteTransform
	return v
}
