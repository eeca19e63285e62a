package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/adverant/nexus/docsegment-worker/internal/pattern"
	"github.com/adverant/nexus/docsegment-worker/internal/segmenter"
)

// Preview lengths in runes
const (
	incompletePreviewRunes = 60
	unmatchedPreviewRunes  = 80
)

// File is one rendered report artifact
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

// Bundle holds the rendered artifacts of one batch
type Bundle struct {
	Summary  *Summary
	Markdown string
	Files    []File
}

// Render produces config.json, summary.md and summary.html for a batch
func Render(summary *Summary, result *segmenter.Result, texts map[int]string) (*Bundle, error) {
	var cfg bytes.Buffer
	enc := json.NewEncoder(&cfg)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return nil, fmt.Errorf("failed to encode config.json: %w", err)
	}

	md := RenderMarkdown(summary, result, texts)
	html, err := RenderHTML(md)
	if err != nil {
		return nil, err
	}

	return &Bundle{
		Summary:  summary,
		Markdown: md,
		Files: []File{
			{Name: "config.json", MimeType: "application/json", Data: cfg.Bytes()},
			{Name: "summary.md", MimeType: "text/markdown", Data: []byte(md)},
			{Name: "summary.html", MimeType: "text/html", Data: html},
		},
	}, nil
}

// WriteFolder writes every file of the bundle into dir
func WriteFolder(dir string, b *Bundle) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}
	for _, f := range b.Files {
		if err := os.WriteFile(filepath.Join(dir, f.Name), f.Data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.Name, err)
		}
	}
	return nil
}

// RenderMarkdown writes the human audit trail for a batch
func RenderMarkdown(summary *Summary, result *segmenter.Result, texts map[int]string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Segmentation Summary for Folder %s\n\n", summary.FolderID)
	fmt.Fprintf(&b, "## Total Pages: %d\n\n", summary.TotalPages)
	fmt.Fprintf(&b, "## Matched Pages: %d (%.1f%%)\n\n", summary.MatchedPages, summary.MatchPercentage)
	if summary.UnmatchedPages > 0 {
		fmt.Fprintf(&b, "## Unmatched Pages: %d\n\n", summary.UnmatchedPages)
	}

	b.WriteString("## Page-to-Template Mapping\n\n")
	b.WriteString("| Page | Template | Status | Match Info |\n")
	b.WriteString("|------|----------|--------|------------|\n")
	for _, g := range result.Documents {
		for i, n := range g.Pages {
			status, info := "Continue", "-"
			switch {
			case len(g.Pages) == 1:
				status = "Single page"
				info = fmt.Sprintf("Start: %s / End: %s", g.StartMatchInfo, g.EndMatchInfo)
			case i == 0:
				status = "Start"
				info = g.StartMatchInfo
			case i == len(g.Pages)-1:
				status = "End"
				info = g.EndMatchInfo
			}
			if i == len(g.Pages)-1 && g.EndNegativeMatchInfo != "" {
				info += " (negative seen: " + g.EndNegativeMatchInfo + ")"
			}
			fmt.Fprintf(&b, "| %d | %s | %s | %s |\n", n, cell(g.Template.Name), status, cell(info))
		}
	}

	if len(result.Incomplete) > 0 {
		b.WriteString("\n## Incomplete Documents (Started but no last page found)\n\n")
		for _, g := range result.Incomplete {
			fmt.Fprintf(&b, "### %s\n\n", g.Template.Name)
			fmt.Fprintf(&b, "- **Pages**: %d-%d (%d pages)\n", g.StartPage, g.EndPage, len(g.Pages))
			fmt.Fprintf(&b, "- **Start Match**: %s\n", g.StartMatchInfo)
			fmt.Fprintf(&b, "- **Looking for**: %s\n", describePatterns(g.Template.EndPatterns))
			b.WriteString("- **Issue**: Last page pattern not found\n\n")

			b.WriteString("| Page | Status | Preview |\n")
			b.WriteString("|------|--------|---------|\n")
			for i, n := range g.Pages {
				status := "Continue"
				if i == 0 {
					status = "START"
				}
				fmt.Fprintf(&b, "| %d | %s | %s... |\n", n, status, cell(preview(texts[n], incompletePreviewRunes)))
			}
			b.WriteString("\n")
		}
	}

	if truly := result.TrulyUnmatched(); len(truly) > 0 {
		b.WriteString("\n## Unmatched Pages (Need Manual Review)\n\n")
		b.WriteString("| Page | Preview |\n")
		b.WriteString("|------|---------|\n")
		for _, n := range truly {
			fmt.Fprintf(&b, "| %d | %s... |\n", n, cell(preview(texts[n], unmatchedPreviewRunes)))
		}
	}

	if len(summary.Warnings) > 0 {
		b.WriteString("\n## Warnings\n\n")
		for _, w := range summary.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}

	return b.String()
}

// RenderHTML converts summary markdown to HTML (GitHub tables enabled)
func RenderHTML(markdown string) ([]byte, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>Segmentation Summary</title></head><body>\n")
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return nil, fmt.Errorf("failed to render summary HTML: %w", err)
	}
	buf.WriteString("</body></html>\n")
	return buf.Bytes(), nil
}

func describePatterns(atoms pattern.Patterns) string {
	parts := make([]string, len(atoms))
	for i, a := range atoms {
		parts[i] = a.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func preview(text string, limit int) string {
	r := []rune(text)
	if len(r) > limit {
		r = r[:limit]
	}
	return strings.ReplaceAll(string(r), "\n", " ")
}

// cell makes s safe inside a markdown table cell
func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "\\|")
}
