package costing

import "testing"

func TestCost_KnownModel(t *testing.T) {
	got := Cost("gpt-4o-mini", 1000, 1000)
	want := 0.001 * (1000*0.00015 + 1000*0.0006)
	if got != want {
		t.Errorf("Cost = %v, want %v", got, want)
	}
}

func TestCost_UnknownModel(t *testing.T) {
	if got := Cost("some-unreleased-model", 1000, 1000); got != 0 {
		t.Errorf("Cost for unknown model = %v, want 0", got)
	}
}

func TestCost_LocalModelIsFree(t *testing.T) {
	if got := Cost("llama3.2:latest", 5000, 5000); got != 0 {
		t.Errorf("Cost for local model = %v, want 0", got)
	}
}

func TestTokenCounter_CountPair(t *testing.T) {
	tc, err := NewTokenCounter("gpt-4o-mini")
	if err != nil {
		t.Skipf("tiktoken encoding unavailable: %v", err)
	}
	in, out := tc.CountPair("hello world", "hi there")
	if in <= 0 || out <= 0 {
		t.Errorf("CountPair = (%d, %d), want positive counts", in, out)
	}
}

func TestTokenCounter_FallsBackForUnknownModel(t *testing.T) {
	tc, err := NewTokenCounter("llama3.2:latest")
	if err != nil {
		t.Skipf("tiktoken encoding unavailable: %v", err)
	}
	if n := tc.Count("a handful of tokens"); n <= 0 {
		t.Errorf("Count = %d, want positive", n)
	}
}

func TestApproxCount(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{"abcde", 2},
	}
	for _, tt := range tests {
		if got := ApproxCount(tt.text); got != tt.want {
			t.Errorf("ApproxCount(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}
