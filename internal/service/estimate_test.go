package service

import "testing"

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"hi", 1},
		{"abcd", 1},
		{"abcdefgh", 2},
		{"a long enough sentence for estimation", 9},
	}
	for _, c := range cases {
		if got := EstimateTokens(c.text); got != c.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", c.text, got, c.want)
		}
	}
}

func TestEstimateCost(t *testing.T) {
	if got := EstimateCost("gpt-4o", 2000); got != 0.015 {
		t.Errorf("gpt-4o cost = %v", got)
	}
	if got := EstimateCost("mock-1", 100000); got != 0 {
		t.Errorf("mock cost = %v", got)
	}
	// Unknown models use the fallback rate.
	if got := EstimateCost("some-new-model", 1000); got != 0.002 {
		t.Errorf("fallback cost = %v", got)
	}
}
