package pages

import (
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// PDFSource reads the embedded text layer of a PDF, one entry per page.
// Pages without content map to empty text and end up unmatched.
type PDFSource struct {
	Path string
}

func (s *PDFSource) Describe() string {
	return "pdf:" + s.Path
}

func (s *PDFSource) Load(ctx context.Context) (map[int]string, error) {
	f, reader, err := pdf.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	count := reader.NumPage()
	texts := make(map[int]string, count)
	for i := 1; i <= count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			texts[i] = ""
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text from page %d: %w", i, err)
		}
		texts[i] = text
	}
	return texts, nil
}
