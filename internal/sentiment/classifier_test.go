package sentiment

import (
	"testing"
)

func TestClassify_RatingBoundary(t *testing.T) {
	tests := []struct {
		name   string
		rating int
		text   string
		want   Label
	}{
		{"five stars", 5, "Great food", Positive},
		{"four stars", 4, "Pretty good", Positive},
		{"three stars is negative", 3, "It was okay", Negative},
		{"two stars", 2, "Not great", Negative},
		{"one star", 1, "Awful", Negative},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.rating, tt.text)
			if got.Label != tt.want {
				t.Errorf("Classify(%d) label = %s, want %s", tt.rating, got.Label, tt.want)
			}
		})
	}
}

func TestClassify_TextNeverFlipsLabel(t *testing.T) {
	// Glowing text on a 2-star review stays negative; the boundary is
	// decided by rating alone.
	got := Classify(2, "The food was amazing and delicious, best in town")
	if got.Label != Negative {
		t.Errorf("label = %s, want negative despite positive text", got.Label)
	}
	if got.Score >= 0 {
		t.Errorf("score = %f, expected to stay below zero for a 2-star review", got.Score)
	}

	got = Classify(5, "terrible horrible worst disgusting")
	if got.Label != Positive {
		t.Errorf("label = %s, want positive despite negative text", got.Label)
	}
}

func TestClassify_SignalsRecorded(t *testing.T) {
	got := Classify(1, "Found a hair in my soup, totally disgusting. I want a refund.")

	want := map[string]bool{
		"strong_negative_language": true,
		"hygiene_concern":          true,
		"refund_request":           true,
	}
	for _, s := range got.Signals {
		delete(want, s)
	}
	if len(want) != 0 {
		t.Errorf("missing signals %v in %v", want, got.Signals)
	}
}

func TestClassify_ScoreBounded(t *testing.T) {
	long := "terrible horrible disgusting worst rude slow waited cold raw undercooked stale sick poison dirty hair refund overpriced never again"
	got := Classify(1, long)
	if got.Score < -1 || got.Score > 1 {
		t.Errorf("score %f out of [-1, 1]", got.Score)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	a := Classify(2, "rude staff and cold food")
	b := Classify(2, "rude staff and cold food")
	if a.Label != b.Label || a.Score != b.Score || len(a.Signals) != len(b.Signals) {
		t.Errorf("classification is not deterministic: %+v vs %+v", a, b)
	}
	for i := range a.Signals {
		if a.Signals[i] != b.Signals[i] {
			t.Errorf("signal order differs at %d: %s vs %s", i, a.Signals[i], b.Signals[i])
		}
	}
}
