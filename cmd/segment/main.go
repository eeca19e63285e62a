/**
 * segment - one-shot document segmentation
 *
 * Segments local batches without the queue or the database. Each argument
 * is a batch folder (OCR text files, an ocrs/ subfolder, or page images) or
 * a PDF file. Reports are written to <out>/<folderId>/.
 *
 *   segment -templates templates.json -out ./reports data/02-group/123 scan.pdf
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/adverant/nexus/docsegment-worker/internal/catalog"
	"github.com/adverant/nexus/docsegment-worker/internal/config"
	"github.com/adverant/nexus/docsegment-worker/internal/logging"
	"github.com/adverant/nexus/docsegment-worker/internal/pages"
	"github.com/adverant/nexus/docsegment-worker/internal/processor"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	logger := logging.NewLogger("segment")

	_ = godotenv.Load(".env.docsegment")

	cfg, err := config.Parse()
	if err != nil {
		logger.Error("Failed to read environment", "error", err)
		return 1
	}

	fs := flag.NewFlagSet("segment", flag.ContinueOnError)
	fs.StringVar(&cfg.TemplatesPath, "templates", cfg.TemplatesPath, "template catalog (JSON)")
	fs.Float64Var(&cfg.FuzzyThreshold, "threshold", cfg.FuzzyThreshold, "fuzzy match threshold (1-100)")
	fs.StringVar(&cfg.OutputDir, "out", cfg.OutputDir, "report output directory")
	fs.StringVar(&cfg.OCREngine, "ocr", cfg.OCREngine, "OCR engine for image folders (tesseract|service)")
	fs.BoolVar(&cfg.CleanOCRText, "clean", cfg.CleanOCRText, "clean OCR text before matching")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	parallel := fs.Int("parallel", 2, "batches processed in parallel")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: segment [flags] <folder|file.pdf>...\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	if err := logging.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
		logger.Warn("Invalid logging configuration, keeping defaults", "error", err)
	}

	if err := cfg.ValidateSegmentation(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		return 2
	}

	cat, err := catalog.Load(cfg.TemplatesPath,
		catalog.WithThreshold(cfg.FuzzyThreshold),
		catalog.WithSelectionThreshold(cfg.SelectionThreshold))
	if err != nil {
		logger.Error("Failed to load template catalog", "path", cfg.TemplatesPath, "error", err)
		return 1
	}

	recognizer, err := pages.RecognizerFromConfig(cfg)
	if err != nil {
		logger.Error("Failed to initialize OCR", "error", err)
		return 1
	}

	proc, err := processor.NewDocumentProcessor(&processor.ProcessorConfig{
		Catalog:        cat,
		Recognizer:     recognizer,
		OCRConcurrency: cfg.OCRConcurrency,
		CleanText:      cfg.CleanOCRText,
		OutputDir:      cfg.OutputDir,
		Logger:         logging.NewLogger("DocumentProcessor"),
	})
	if err != nil {
		logger.Error("Failed to initialize document processor", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var failed atomic.Int32
	g := new(errgroup.Group)
	if *parallel > 0 {
		g.SetLimit(*parallel)
	}

	for _, target := range fs.Args() {
		target := target
		g.Go(func() error {
			log := logger.With("target", target)

			req, err := requestFor(target)
			if err != nil {
				log.Error("Skipping batch", "error", err)
				failed.Add(1)
				return nil
			}

			result, err := proc.ProcessDocument(ctx, req)
			if err != nil {
				log.Error("Segmentation failed", "folderId", req.FolderID, "error", err)
				failed.Add(1)
				return nil
			}

			log.Info("Batch segmented",
				"folderId", result.FolderID,
				"source", result.Source,
				"pages", result.TotalPages,
				"documents", result.Documents,
				"incomplete", result.IncompleteDocuments,
				"unmatched", len(result.UnmatchedPages),
				"matchPercentage", result.MatchPercentage,
				"report", result.ReportDir)
			return nil
		})
	}
	_ = g.Wait()

	if n := failed.Load(); n > 0 {
		logger.Error("Some batches failed", "failed", n, "total", fs.NArg())
		return 1
	}
	return 0
}

// requestFor maps a command-line target to a processing request. A folder
// holding {n}.txt files (directly or under ocrs/) is read as OCR text;
// any other folder is treated as page images.
func requestFor(target string) (*processor.ProcessRequest, error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, err
	}

	req := &processor.ProcessRequest{JobID: uuid.NewString()}

	if !info.IsDir() {
		if !strings.EqualFold(filepath.Ext(target), ".pdf") {
			return nil, fmt.Errorf("%s is neither a folder nor a PDF", target)
		}
		req.FolderID = strings.TrimSuffix(filepath.Base(target), filepath.Ext(target))
		req.PDFPath = target
		return req, nil
	}

	req.FolderID = filepath.Base(filepath.Clean(target))

	for _, dir := range []string{filepath.Join(target, "ocrs"), target} {
		if hasTextPages(dir) {
			req.PagesDir = dir
			return req, nil
		}
	}

	req.ImagesDir = target
	return req, nil
}

func hasTextPages(dir string) bool {
	matches, err := filepath.Glob(filepath.Join(dir, "[0-9]*.txt"))
	return err == nil && len(matches) > 0
}
