package textclean

import (
	"testing"
)

func TestClean(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain text untouched", in: "FOUNDATION CHARTER", want: "FOUNDATION CHARTER"},
		{name: "natural_text envelope", in: `{"natural_text": "ข้อบังคับมูลนิธิ"}`, want: "ข้อบังคับมูลนิธิ"},
		{name: "text envelope", in: `{"text": "page body"}`, want: "page body"},
		{name: "natural_text preferred", in: `{"text": "b", "natural_text": "a"}`, want: "a"},
		{name: "unknown envelope re-encoded", in: `{"lines": 3}`, want: `{"lines":3}`},
		{name: "broken json kept", in: `{"natural_text": `, want: `{"natural_text": `},
		{name: "sara am repaired", in: "คําสั่ง", want: "คำสั่ง"},
		{name: "hash removed", in: "## ข้อบังคับ", want: " ข้อบังคับ"},
		{name: "word fix", in: "เบ็ดเกลัด", want: "เบ็ดเตล็ด"},
		{name: "empty", in: "", want: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Clean(tc.in); got != tc.want {
				t.Errorf("Clean(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCleanNormalizesToNFC(t *testing.T) {
	decomposed := "cafe\u0301"
	if got := Clean(decomposed); got != "caf\u00e9" {
		t.Errorf("Clean(%q) = %q, want composed form", decomposed, got)
	}
}

func TestCleanAll(t *testing.T) {
	pages := map[int]string{1: `{"natural_text":"# one"}`, 2: "two"}
	CleanAll(pages)
	if pages[1] != " one" || pages[2] != "two" {
		t.Errorf("pages = %v", pages)
	}
}
