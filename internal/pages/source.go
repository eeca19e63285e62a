/**
 * Page sources
 *
 * A Source resolves every page of a batch to text before segmentation
 * starts. Sources read pre-computed OCR text, run OCR over a folder of page
 * images, or read the text layer of a PDF.
 */

package pages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Source produces the page-number -> text map for one batch
type Source interface {
	Load(ctx context.Context) (map[int]string, error)
	Describe() string
}

// InlineSource serves pages that arrived with the job
type InlineSource struct {
	Pages map[int]string
}

func (s *InlineSource) Load(ctx context.Context) (map[int]string, error) {
	out := make(map[int]string, len(s.Pages))
	for n, text := range s.Pages {
		out[n] = text
	}
	return out, nil
}

func (s *InlineSource) Describe() string {
	return fmt.Sprintf("inline(%d pages)", len(s.Pages))
}

var textFilePattern = regexp.MustCompile(`^(\d+)\.txt$`)

// TextDirSource reads {n}.txt files; the numeric stem is the page number.
// Other files in the directory are ignored.
type TextDirSource struct {
	Dir string
}

func (s *TextDirSource) Load(ctx context.Context) (map[int]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read page directory: %w", err)
	}

	pages := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := textFilePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.Dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d: %w", n, err)
		}
		pages[n] = string(data)
	}
	return pages, nil
}

func (s *TextDirSource) Describe() string {
	return "text:" + s.Dir
}

var imagePrefixPattern = regexp.MustCompile(`^(\d+)`)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// SortedImages lists page images in dir ordered by their numeric filename prefix.
// Images without a numeric prefix are skipped.
func SortedImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read image directory: %w", err)
	}

	type numbered struct {
		n    int
		path string
	}
	var images []numbered
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if !imageExtensions[ext] {
			continue
		}
		m := imagePrefixPattern.FindStringSubmatch(strings.TrimSuffix(name, filepath.Ext(name)))
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		images = append(images, numbered{n: n, path: filepath.Join(dir, name)})
	}

	sort.SliceStable(images, func(i, j int) bool {
		if images[i].n != images[j].n {
			return images[i].n < images[j].n
		}
		return images[i].path < images[j].path
	})

	paths := make([]string, len(images))
	for i, img := range images {
		paths[i] = img.path
	}
	return paths, nil
}
