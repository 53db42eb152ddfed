package qa

import "testing"

func TestAutoScoreWeights(t *testing.T) {
	got := AutoScore(AutoCheck{Framing: 90, ObjectCoverage: 80, Continuity: 70, TechnicalQuality: 60, AnnotationCoverage: 50})
	if got != 74 {
		t.Fatalf("auto score = %v, want 74", got)
	}
	if c := ClassifyAuto(got); c != PendingReview {
		t.Fatalf("classification = %s", c)
	}
	if got := AutoScore(AutoCheck{Framing: 100, ObjectCoverage: 100, Continuity: 100, TechnicalQuality: 100, AnnotationCoverage: 100}); got != 100 {
		t.Fatalf("all 100 = %v", got)
	}
}

func TestClassifyAutoBoundary(t *testing.T) {
	cases := map[float64]string{70: PendingReview, 69.9: AutoFail, 100: PendingReview, 0: AutoFail}
	for score, want := range cases {
		if got := ClassifyAuto(score); got != want {
			t.Errorf("ClassifyAuto(%v) = %s, want %s", score, got, want)
		}
	}
}

func TestClassifyFinalBoundaries(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{80, BandApproved},
		{79.9, BandApprovedNotes},
		{75, BandApprovedNotes},
		{74.9, BandReject},
		{0, BandReject},
	}
	for _, tc := range cases {
		if got := ClassifyFinal(tc.score); got != tc.want {
			t.Errorf("ClassifyFinal(%v) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestFinalScoreRounds(t *testing.T) {
	// 0.4*74 + 0.6*85 = 80.6
	if got := FinalScore(74, 85); got != 80.6 {
		t.Fatalf("final = %v", got)
	}
	// 0.4*70.3 + 0.6*77.7 = 74.74 -> 74.7
	if got := FinalScore(70.3, 77.7); got != 74.7 {
		t.Fatalf("final = %v", got)
	}
}

func TestScoreValidatesRange(t *testing.T) {
	if _, err := Score(AutoCheck{Framing: 101}, nil); err == nil {
		t.Fatalf("expected range error")
	}
	human := -1.0
	if _, err := Score(AutoCheck{}, &human); err == nil {
		t.Fatalf("expected human score range error")
	}
	human = 85
	s, err := Score(AutoCheck{Framing: 90, ObjectCoverage: 80, Continuity: 70, TechnicalQuality: 60, AnnotationCoverage: 50}, &human)
	if err != nil {
		t.Fatal(err)
	}
	if s.FinalScore == nil || *s.FinalScore != 80.6 || s.Band != BandApproved {
		t.Fatalf("unexpected summary %+v", s)
	}
}

func TestActionAllowed(t *testing.T) {
	if !ActionAllowed(BandApprovedNotes, ActionApprove) {
		t.Fatal("approve should be allowed for approved_notes")
	}
	if ActionAllowed(BandApproved, ActionReject) {
		t.Fatal("reject should not be allowed for approved")
	}
	if !ActionAllowed(BandReject, ActionRequestEdit) || !ActionAllowed(BandReject, ActionReject) {
		t.Fatal("reject band allows reject and request_edit")
	}
	if DefaultAction(BandReject) != ActionRequestEdit || DefaultAction(BandApproved) != ActionApprove {
		t.Fatal("unexpected default actions")
	}
}
