package ltm

import (
	"math"
	"testing"
)

func ptrBool(b bool) *bool { return &b }

func TestComputeSuccessScoreBaseCase(t *testing.T) {
	got := ComputeSuccessScore(SuccessScoreInputs{})
	if got != 0.8 {
		t.Fatalf("expected base 0.8, got %v", got)
	}
}

func TestComputeSuccessScoreSourceBonusCapped(t *testing.T) {
	got := ComputeSuccessScore(SuccessScoreInputs{SourceCount: 20})
	if got != 0.9 {
		t.Fatalf("expected source bonus capped at 0.1 (0.9 total), got %v", got)
	}
}

func TestComputeSuccessScoreActionCountSweetSpot(t *testing.T) {
	got := ComputeSuccessScore(SuccessScoreInputs{ActionCount: 3})
	if got != 0.9 {
		t.Fatalf("expected +0.1 for 1<=actions<=5, got %v", got)
	}
}

func TestComputeSuccessScoreActionCountPenalty(t *testing.T) {
	got := ComputeSuccessScore(SuccessScoreInputs{ActionCount: 15})
	// 0.8-0.1 in float64 is 0.7000000000000001, so compare within 1e-9.
	if math.Abs(got-0.7) > 1e-9 {
		t.Fatalf("expected -0.1 for actions>10, got %v", got)
	}
}

func TestComputeSuccessScoreCitationBonus(t *testing.T) {
	got := ComputeSuccessScore(SuccessScoreInputs{HasCitation: true})
	if math.Abs(got-0.85) > 1e-9 {
		t.Fatalf("expected +0.05 for citation, got %v", got)
	}
}

func TestComputeSuccessScorePositiveFeedbackOverrides(t *testing.T) {
	got := ComputeSuccessScore(SuccessScoreInputs{ActionCount: 15, Feedback: ptrBool(true)})
	if got != 1.0 {
		t.Fatalf("expected feedback override to 1.0, got %v", got)
	}
}

func TestComputeSuccessScoreNegativeFeedbackOverrides(t *testing.T) {
	got := ComputeSuccessScore(SuccessScoreInputs{SourceCount: 20, Feedback: ptrBool(false)})
	if got != 0.3 {
		t.Fatalf("expected feedback override to 0.3, got %v", got)
	}
}

func TestComputeSuccessScoreClampedToOne(t *testing.T) {
	got := ComputeSuccessScore(SuccessScoreInputs{SourceCount: 100, ActionCount: 3, HasCitation: true})
	if got != 1.0 {
		t.Fatalf("expected clamp to 1.0, got %v", got)
	}
}

func TestPatternFilterKindOnly(t *testing.T) {
	f := patternFilter("", 0)
	if len(f.Must) != 1 {
		t.Fatalf("expected only the kind condition, got %d conditions", len(f.Must))
	}
	if got := f.Must[0].GetField().GetKey(); got != "kind" {
		t.Fatalf("expected kind condition, got %q", got)
	}
}

func TestPatternFilterNarrowsByTypeAndScore(t *testing.T) {
	f := patternFilter("tool_sequence", 0.7)
	if len(f.Must) != 3 {
		t.Fatalf("expected kind+session_id+score conditions, got %d", len(f.Must))
	}
	var sawSession, sawScore bool
	for _, c := range f.Must {
		fc := c.GetField()
		if fc == nil {
			continue
		}
		switch fc.GetKey() {
		case "session_id":
			sawSession = true
			if got := fc.GetMatch().GetKeyword(); got != "pattern_tool_sequence" {
				t.Fatalf("expected session_id match on pattern_tool_sequence, got %q", got)
			}
		case "success_score":
			sawScore = true
			if got := fc.GetRange().GetGte(); got != 0.7 {
				t.Fatalf("expected success_score gte 0.7, got %v", got)
			}
		}
	}
	if !sawSession || !sawScore {
		t.Fatalf("missing session_id or success_score condition")
	}
}
