/**
 * OCR text clean-up
 *
 * Page text arrives either as plain text or as the JSON envelope some OCR
 * engines emit ({"natural_text": ...}). Clean unwraps the envelope, repairs
 * common Thai OCR confusions and normalizes to NFC so that composed and
 * decomposed vowel marks compare equal during matching.
 */

package textclean

import (
	"encoding/json"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ocrFixes are literal replacements applied in order
var ocrFixes = strings.NewReplacer(
	"ํา", "ำ", // nikhahit + sara aa read as two marks -> sara am
	"#", "", // markdown headings leak into OCR output
	"เบ็ดเกลัด", "เบ็ดเตล็ด",
)

// Clean returns page text ready for segmentation
func Clean(raw string) string {
	text := Unwrap(raw)
	text = ocrFixes.Replace(text)
	return norm.NFC.String(text)
}

// Unwrap extracts the text field from a JSON OCR envelope.
// natural_text wins over text; any other JSON object is returned re-encoded,
// and input that is not a JSON object is returned unchanged.
func Unwrap(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return raw
	}

	var envelope map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &envelope); err != nil {
		return raw
	}

	for _, key := range []string{"natural_text", "text"} {
		if s, ok := envelope[key].(string); ok && s != "" {
			return s
		}
	}

	out, err := json.Marshal(envelope)
	if err != nil {
		return raw
	}
	return string(out)
}

// CleanAll applies Clean to every page in place and returns the map
func CleanAll(pages map[int]string) map[int]string {
	for n, text := range pages {
		pages[n] = Clean(text)
	}
	return pages
}
