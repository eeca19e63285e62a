package similarity

import "testing"

func TestScore(t *testing.T) {
	testCases := []struct {
		name string
		a, b string
		want float64
	}{
		{name: "identical", a: "abcde", b: "abcde", want: 100},
		{name: "one substitution", a: "abcde", b: "abcdf", want: 80},
		{name: "ten runes one off", a: "abcdefghij", b: "abcdefghiX", want: 90},
		{name: "both empty", a: "", b: "", want: 100},
		{name: "one empty", a: "abc", b: "", want: 0},
		{name: "disjoint", a: "abc", b: "xyz", want: 0},
		{name: "thai runes", a: "มูลนิธิ", b: "มูลนิธิ", want: 100},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Score(tc.a, tc.b); got != tc.want {
				t.Errorf("Score(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
			if got := Score(tc.b, tc.a); got != tc.want {
				t.Errorf("Score(%q, %q) = %v, want %v (not symmetric)", tc.b, tc.a, got, tc.want)
			}
		})
	}
}

func TestScoreBelowPerfectForDifferentStrings(t *testing.T) {
	if got := Score("abcd", "abdc"); got >= Perfect {
		t.Fatalf("different strings scored %v", got)
	}
}

func TestBestWindowScore(t *testing.T) {
	testCases := []struct {
		name    string
		pattern string
		text    string
		want    float64
	}{
		{name: "exact containment", pattern: "hello", text: "say hello world", want: 100},
		{name: "fuzzy window", pattern: "abcde", text: "xxabcdfxx", want: 80},
		{name: "text shorter than pattern", pattern: "abcdef", text: "abc", want: 0},
		{name: "empty text", pattern: "abc", text: "", want: 0},
		{name: "window equals text", pattern: "abcdefghij", text: "abcdefghiX", want: 90},
		{name: "thai exact", pattern: "ตราสาร", text: "หน้า 1 ตราสารมูลนิธิ", want: 100},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := BestWindowScore(tc.pattern, tc.text); got != tc.want {
				t.Errorf("BestWindowScore(%q, %q) = %v, want %v", tc.pattern, tc.text, got, tc.want)
			}
		})
	}
}

func TestBestWindowScoreExactAlwaysPerfect(t *testing.T) {
	texts := []string{"abc", "xxabcxx", "abcabc", "ก abc ข"}
	for _, text := range texts {
		if got := BestWindowScore("abc", text); got != Perfect {
			t.Errorf("BestWindowScore(abc, %q) = %v, want %v", text, got, Perfect)
		}
	}
}
