// Package qa computes the composite QA scores that feed dataset stats.
package qa

import (
	"fmt"
	"math"
)

// Auto-check classification.
const (
	PendingReview = "pending_review"
	AutoFail      = "auto_fail"
)

// Final-score bands.
const (
	BandApproved      = "approved"
	BandApprovedNotes = "approved_notes"
	BandReject        = "reject"
)

// Reviewer actions.
const (
	ActionApprove     = "approve"
	ActionReject      = "reject"
	ActionRequestEdit = "request_edit"
)

const (
	autoPassMin      = 70
	finalApprovedMin = 80
	finalNotesMin    = 75
)

// AutoCheck holds the per-asset automated check scores, each 0..100.
type AutoCheck struct {
	Framing            float64 `json:"framing" minimum:"0" maximum:"100"`
	ObjectCoverage     float64 `json:"object_coverage" minimum:"0" maximum:"100"`
	Continuity         float64 `json:"continuity" minimum:"0" maximum:"100"`
	TechnicalQuality   float64 `json:"technical_quality" minimum:"0" maximum:"100"`
	AnnotationCoverage float64 `json:"annotation_coverage" minimum:"0" maximum:"100"`
}

func (a AutoCheck) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"framing", a.Framing},
		{"object_coverage", a.ObjectCoverage},
		{"continuity", a.Continuity},
		{"technical_quality", a.TechnicalQuality},
		{"annotation_coverage", a.AnnotationCoverage},
	} {
		if err := ValidateScore(f.name, f.v); err != nil {
			return err
		}
	}
	return nil
}

// ValidateScore rejects values outside 0..100 and NaN.
func ValidateScore(name string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 100 {
		return fmt.Errorf("%s must be within 0..100, got %v", name, v)
	}
	return nil
}

// AutoScore is the weighted automated score rounded to one decimal.
func AutoScore(a AutoCheck) float64 {
	return round1(0.30*a.Framing +
		0.25*a.ObjectCoverage +
		0.15*a.Continuity +
		0.15*a.TechnicalQuality +
		0.15*a.AnnotationCoverage)
}

// FinalScore blends the auto score with the human reviewer score.
func FinalScore(autoScore, humanScore float64) float64 {
	return round1(0.40*autoScore + 0.60*humanScore)
}

func ClassifyAuto(autoScore float64) string {
	if autoScore >= autoPassMin {
		return PendingReview
	}
	return AutoFail
}

func ClassifyFinal(finalScore float64) string {
	switch {
	case finalScore >= finalApprovedMin:
		return BandApproved
	case finalScore >= finalNotesMin:
		return BandApprovedNotes
	default:
		return BandReject
	}
}

// ActionAllowed reports whether a reviewer action is consistent with a band.
func ActionAllowed(band, action string) bool {
	switch band {
	case BandApproved, BandApprovedNotes:
		return action == ActionApprove
	case BandReject:
		return action == ActionReject || action == ActionRequestEdit
	}
	return false
}

// DefaultAction is the action taken when the reviewer gives none.
func DefaultAction(band string) string {
	if band == BandReject {
		return ActionRequestEdit
	}
	return ActionApprove
}

// Summary is the full scoring outcome for one asset.
type Summary struct {
	AutoScore      float64  `json:"auto_score"`
	Classification string   `json:"classification" enum:"pending_review,auto_fail"`
	FinalScore     *float64 `json:"final_score,omitempty"`
	Band           string   `json:"band,omitempty" enum:"approved,approved_notes,reject"`
}

// Score computes the auto score and, when a human score is given, the final
// score and band.
func Score(a AutoCheck, humanScore *float64) (Summary, error) {
	if err := a.Validate(); err != nil {
		return Summary{}, err
	}
	auto := AutoScore(a)
	s := Summary{AutoScore: auto, Classification: ClassifyAuto(auto)}
	if humanScore != nil {
		if err := ValidateScore("human_score", *humanScore); err != nil {
			return Summary{}, err
		}
		final := FinalScore(auto, *humanScore)
		s.FinalScore = &final
		s.Band = ClassifyFinal(final)
	}
	return s, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
