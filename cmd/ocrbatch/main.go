// ocrbatch is a command-line tool for batch text extraction from scanned PDFs via OCR.
//
// It scans an input directory for PDF files (non-recursive), renders each
// document to page images, runs every page through an OCR engine and writes
// one UTF-8 text file per document, with pages delimited by "--- Page N ---"
// markers. Page failures leave an error placeholder and the document
// continues; document failures are recorded and the batch continues.
//
// Engines:
//
//	typhoon    Typhoon OCR API (remote, requires an API key)
//	gdocai     Google Document AI (remote, requires -config with processor settings
//	           and GOOGLE_APPLICATION_CREDENTIALS)
//	tesseract  Tesseract via gosseract (local, no credential)
//
// Usage:
//
//	ocrbatch -input ./pdfs -output ./texts [options]
//
// Required flags:
//
//	-input string   Directory containing PDF files
//	-output string  Directory receiving one .txt file per document
//
// Common options:
//
//	-engine string    OCR engine: typhoon|gdocai|tesseract (default typhoon)
//	-api-key string   API key(s) for the typhoon engine; comma separated when
//	                  running parallel workers with distinct keys
//	-config string    YAML file with engine settings
//	-parallel int     Run N in-process workers over disjoint shares of the input
//	-worker-id int    1-based ID of this worker process (with -workers)
//	-workers int      Total number of worker processes sharing the input
//	-force            Reprocess documents whose output file already exists
//
// Credential resolution for the typhoon engine: -api-key, then
// TYPHOON_OCR_API_KEY, then OPENAI_API_KEY.
//
// Exit status is 0 when no document ended in failure, 1 otherwise.
//
// Example config file:
//
//	typhoon:
//	  base_url: "https://api.opentyphoon.ai/v1"
//	  model: "typhoon-ocr-7b"
//	gdocai:
//	  project_id: "your-gcp-project-id"
//	  location: "us"
//	  processor_id: "your-processor-id"
//	tesseract:
//	  languages: [th, en]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gardar/ocrbatch/pkg/batch"
	"github.com/gardar/ocrbatch/pkg/ocr"
	"github.com/gardar/ocrbatch/pkg/ocr/gdocai"
	"github.com/gardar/ocrbatch/pkg/ocr/tesseract"
	"github.com/gardar/ocrbatch/pkg/ocr/typhoon"
	"github.com/gardar/ocrbatch/pkg/rasterize"
	"github.com/gardar/ocrbatch/pkg/retry"
)

type yamlConfig struct {
	Typhoon struct {
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
	} `yaml:"typhoon"`
	GDocAI    gdocai.Config `yaml:"gdocai"`
	Tesseract struct {
		Languages []string `yaml:"languages"`
	} `yaml:"tesseract"`
}

// loadConfig reads the optional YAML file with engine settings.
func loadConfig(path string) (*yamlConfig, error) {
	var cfg yamlConfig
	if path == "" {
		return &cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func main() {
	// Required flags.
	inputDir := flag.String("input", "", "Directory containing PDF files (required)")
	outputDir := flag.String("output", "", "Directory receiving extracted text files (required)")

	// Engine selection.
	engineName := flag.String("engine", "typhoon", "OCR engine: typhoon|gdocai|tesseract")
	apiKey := flag.String("api-key", "", "API key(s) for the typhoon engine, comma separated for parallel workers")
	configPath := flag.String("config", "", "Path to a YAML file with engine settings")

	// Worker partitioning.
	workerID := flag.Int("worker-id", 1, "1-based ID of this worker process")
	workerCount := flag.Int("workers", 1, "Total number of worker processes sharing the input")
	parallel := flag.Int("parallel", 0, "Run N in-process workers instead of separate processes")

	// Extraction tuning.
	langs := flag.String("langs", "th,en", "Comma-separated language codes for the tesseract engine")
	dpi := flag.Int("dpi", rasterize.DefaultDPI, "Render resolution for PDF to image conversion")
	task := flag.String("task", string(typhoon.TaskDefault), "Typhoon task type: default|structure")
	stripMarkup := flag.Bool("strip-markup", false, "Flatten HTML markup in structure-mode output to plain text")
	pageDelay := flag.Duration("page-delay", 400*time.Millisecond, "Pause between page calls on remote engines")
	maxAttempts := flag.Int("retries", retry.DefaultMaxAttempts, "Maximum attempts per page on rate limits and transient errors")
	force := flag.Bool("force", false, "Reprocess documents whose output file already exists")
	debugAPI := flag.String("debug-api", "", "Directory to save raw gdocai API responses as JSON for debugging purposes")

	flag.Parse()

	// Create a map of provided flags to validate
	providedFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		providedFlags[f.Name] = true
	})

	fail := func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
		fmt.Fprintln(os.Stderr, "Usage:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if *inputDir == "" {
		fail("-input flag is required")
	}
	if *outputDir == "" {
		fail("-output flag is required")
	}
	if info, err := os.Stat(*inputDir); err != nil || !info.IsDir() {
		fail("input directory %q does not exist", *inputDir)
	}
	if *parallel > 0 && (providedFlags["worker-id"] || providedFlags["workers"]) {
		fail("-parallel cannot be combined with -worker-id/-workers")
	}
	if *parallel < 0 {
		fail("-parallel must be positive")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.GDocAI.DebugDir = *debugAPI

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// Resolve credentials once, before any work. Remote typhoon workers may
	// carry distinct keys (comma separated) to keep their rate-limit budgets
	// independent.
	var creds []ocr.Credential
	if *engineName == "typhoon" {
		creds, err = resolveCredentials(*apiKey)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		for i, cred := range creds {
			logger.Info("resolved API key", "slot", i+1, "key", cred.Masked())
		}
	}

	// The local engine needs no pacing between pages unless asked for.
	delay := *pageDelay
	if *engineName == "tesseract" && !providedFlags["page-delay"] {
		delay = 0
	}

	languages := tesseractLanguages(providedFlags["langs"], *langs, cfg.Tesseract.Languages)

	rast := rasterize.NewPoppler("", *dpi)
	ctx := context.Background()

	// The gdocai engine holds a gRPC connection that must be closed when the
	// batch is done; workers may be created concurrently in pool mode.
	var closersMu sync.Mutex
	var closers []io.Closer

	newExtractor := func(id int) (*batch.Extractor, error) {
		engine, err := buildEngine(ctx, *engineName, cfg, pickCredential(creds, id), languages, *dpi, *task, *stripMarkup)
		if err != nil {
			return nil, err
		}
		if c, ok := engine.(io.Closer); ok {
			closersMu.Lock()
			closers = append(closers, c)
			closersMu.Unlock()
		}
		return &batch.Extractor{
			Engine:     engine,
			Rasterizer: rast,
			Retry: retry.Policy{
				MaxAttempts: *maxAttempts,
				Logger:      logger.With("worker", id),
			},
			PageDelay:    delay,
			SkipExisting: !*force,
			Logger:       logger.With("worker", id),
		}, nil
	}

	var summary batch.Summary
	var runErr error
	if *parallel > 0 {
		pool := &batch.Pool{Workers: *parallel, NewExtractor: newExtractor, Logger: logger}
		summary, runErr = pool.Run(ctx, *inputDir, *outputDir)
	} else {
		extractor, err := newExtractor(*workerID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to set up OCR engine: %v\n", err)
			os.Exit(1)
		}
		c := &batch.Coordinator{
			Extractor:   extractor,
			WorkerID:    *workerID,
			WorkerCount: *workerCount,
			Logger:      logger,
		}
		summary, runErr = c.Run(ctx, *inputDir, *outputDir)
	}

	for _, c := range closers {
		c.Close()
	}

	printSummary(summary)
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Batch aborted: %v\n", runErr)
		os.Exit(1)
	}
	if summary.Failed > 0 {
		os.Exit(1)
	}
}

// resolveCredentials splits -api-key into per-worker credentials, falling
// back to the environment when the flag is empty.
func resolveCredentials(apiKey string) ([]ocr.Credential, error) {
	var creds []ocr.Credential
	for _, part := range strings.Split(apiKey, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			creds = append(creds, ocr.Credential(part))
		}
	}
	if len(creds) > 0 {
		return creds, nil
	}
	cred, err := ocr.ResolveCredential("")
	if err != nil {
		return nil, err
	}
	return []ocr.Credential{cred}, nil
}

// pickCredential assigns worker id its key round-robin, so three keys cover
// any number of workers.
func pickCredential(creds []ocr.Credential, workerID int) ocr.Credential {
	if len(creds) == 0 {
		return ""
	}
	return creds[(workerID-1)%len(creds)]
}

// tesseractLanguages picks the language set for the tesseract engine. An
// explicitly passed -langs flag wins over the config file; without either the
// flag default applies.
func tesseractLanguages(flagSet bool, flagValue string, fromConfig []string) []string {
	if !flagSet && len(fromConfig) > 0 {
		return fromConfig
	}
	return strings.Split(flagValue, ",")
}

func buildEngine(ctx context.Context, name string, cfg *yamlConfig, cred ocr.Credential, languages []string, dpi int, task string, stripMarkup bool) (ocr.Engine, error) {
	switch name {
	case "typhoon":
		return typhoon.New(typhoon.Config{
			Credential:  cred,
			BaseURL:     cfg.Typhoon.BaseURL,
			Model:       cfg.Typhoon.Model,
			Task:        typhoon.TaskType(task),
			StripMarkup: stripMarkup,
		})
	case "gdocai":
		return gdocai.New(ctx, cfg.GDocAI)
	case "tesseract":
		return tesseract.New(tesseract.Config{Languages: languages, DPI: dpi})
	default:
		return nil, fmt.Errorf("unknown engine %q (supported: typhoon, gdocai, tesseract)", name)
	}
}

func printSummary(s batch.Summary) {
	fmt.Printf("Processed %d documents: %d succeeded, %d partial, %d failed, %d skipped\n",
		s.Total(), s.Succeeded, s.Partial, s.Failed, s.Skipped)
	if len(s.FailedPaths) > 0 {
		fmt.Println("Failed documents:")
		for _, path := range s.FailedPaths {
			fmt.Println("  ", path)
		}
	}
	if len(s.PageFailures) > 0 {
		fmt.Println("Failed pages:")
		for _, pf := range s.PageFailures {
			fmt.Printf("  %s page %d\n", pf.Path, pf.Page)
		}
	}
}
