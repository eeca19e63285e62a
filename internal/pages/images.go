package pages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/adverant/nexus/docsegment-worker/internal/logging"
)

// combinedFile marks a cache directory whose OCR pass completed
const combinedFile = "combined.txt"

// ImageDirSource recognizes every page image in Dir. Pages are numbered
// 1..n in the order of SortedImages, not by the filename prefix itself.
//
// A page whose recognition fails gets "[OCR Error: ...]" as its text so it
// surfaces as unmatched instead of failing the batch. When CacheDir is set,
// texts are written there as {n}.txt plus combined.txt, and a later run that
// finds combined.txt reuses the cached texts without calling the recognizer.
type ImageDirSource struct {
	Dir         string
	Recognizer  Recognizer
	Concurrency int
	CacheDir    string
	Logger      *logging.Logger
}

func (s *ImageDirSource) Describe() string {
	return "images:" + s.Dir
}

func (s *ImageDirSource) Load(ctx context.Context) (map[int]string, error) {
	logger := s.Logger
	if logger == nil {
		logger = logging.NewLogger("ImageDirSource")
	}

	if s.CacheDir != "" {
		if _, err := os.Stat(filepath.Join(s.CacheDir, combinedFile)); err == nil {
			logger.Info("OCR already done, loading cached texts", "cacheDir", s.CacheDir)
			return (&TextDirSource{Dir: s.CacheDir}).Load(ctx)
		}
	}

	images, err := SortedImages(s.Dir)
	if err != nil {
		return nil, err
	}
	if s.Recognizer == nil {
		return nil, fmt.Errorf("no recognizer configured for %s", s.Dir)
	}

	limit := s.Concurrency
	if limit < 1 {
		limit = 1
	}

	var mu sync.Mutex
	texts := make(map[int]string, len(images))
	failures := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, path := range images {
		page, path := i+1, path
		g.Go(func() error {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read image %s: %w", filepath.Base(path), err)
			}

			text, err := s.Recognizer.Recognize(gctx, data)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Warn("OCR failed for page",
					"page", page,
					"image", filepath.Base(path),
					"engine", s.Recognizer.Name(),
					"error", err)
				text = fmt.Sprintf("[OCR Error: %v]", err)
				mu.Lock()
				failures++
				mu.Unlock()
			}

			mu.Lock()
			texts[page] = text
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.Info("OCR complete",
		"images", len(images),
		"failures", failures,
		"engine", s.Recognizer.Name())

	if s.CacheDir != "" {
		if err := writeCache(s.CacheDir, texts); err != nil {
			logger.Warn("Failed to cache OCR texts", "cacheDir", s.CacheDir, "error", err)
		}
	}

	return texts, nil
}

func writeCache(dir string, texts map[int]string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	numbers := make([]int, 0, len(texts))
	for n := range texts {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	combined := make([]string, 0, len(numbers))
	for _, n := range numbers {
		if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("%d.txt", n)), []byte(texts[n]), 0o644); err != nil {
			return err
		}
		combined = append(combined, fmt.Sprintf("=== Page %d ===\n%s", n, texts[n]))
	}

	// written last: its presence means every page file is complete
	return os.WriteFile(filepath.Join(dir, combinedFile), []byte(strings.Join(combined, "\n\n")), 0o644)
}
