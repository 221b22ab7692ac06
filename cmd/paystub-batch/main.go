package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/Volpestyle/basic-budget-sub003/constants"
	"github.com/Volpestyle/basic-budget-sub003/internal/common"
	"github.com/Volpestyle/basic-budget-sub003/internal/core/async"
	"github.com/Volpestyle/basic-budget-sub003/internal/core/extract"
	"github.com/Volpestyle/basic-budget-sub003/internal/core/ocr"
	"github.com/Volpestyle/basic-budget-sub003/internal/core/pipeline"
	"github.com/Volpestyle/basic-budget-sub003/internal/entity"
	"github.com/Volpestyle/basic-budget-sub003/internal/export"
	"github.com/Volpestyle/basic-budget-sub003/internal/ingest"
	"github.com/Volpestyle/basic-budget-sub003/internal/store"
)

var (
	cfgFile string
	dir     string
	out     string
	watch   bool
	v       = common.NewViper()
)

var rootCmd = &cobra.Command{
	Use:          "paystub-batch",
	Short:        "Extract every paystub in a directory and export the results",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Ingest a directory, wait for extraction and write an XLSX summary",
	RunE:  run,
}

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func init() {
	cobra.OnInitialize(func() {
		if cfgFile == "" {
			return
		}
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			printError("Error reading config %s: %v\n", cfgFile, err)
			os.Exit(1)
		}
	})
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	runCmd.Flags().StringVar(&dir, "dir", "", "directory to process paystubs from (required)")
	runCmd.Flags().StringVar(&out, "out", "", "output XLSX file path (optional, defaults to parent directory)")
	runCmd.Flags().BoolVar(&watch, "watch", false, "keep watching the directory until interrupted")
	runCmd.Flags().Int("workers", 0, "worker count")
	_ = runCmd.MarkFlagRequired("dir")
	_ = v.BindPFlag("workers.count", runCmd.Flags().Lookup("workers"))

	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := common.LoadConfig(v)
	if err != nil {
		return err
	}
	logger, flush, err := common.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer flush()
	slog.SetDefault(logger)

	// If output file not specified, use parent directory with default filename
	if out == "" {
		out = filepath.Join(filepath.Dir(filepath.Clean(dir)), "results.xlsx")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	extractor := ocr.NewExtractor(ocr.Config{
		Pdftotext: cfg.OCR.Pdftotext,
		Pdftoppm:  cfg.OCR.Pdftoppm,
		Tesseract: cfg.OCR.Tesseract,
		Lang:      cfg.OCR.Lang,
		DPI:       cfg.OCR.DPI,
		WorkDir:   cfg.OCR.WorkDir,
	}, ocr.ExecRunner{Logger: logger}, logger)
	validator, err := extract.NewCandidateValidator()
	if err != nil {
		return errors.Wrap(err, "compile candidate schema")
	}
	proc := pipeline.New(extract.NewPatternEngine(extractor, logger), validator, logger)

	queue := async.NewProcessorQueue(proc, store.New(0), logger,
		async.WithWorkers(cfg.Workers.Count),
		async.WithSubmitTimeout(cfg.Workers.SubmissionTimeout),
		async.WithProcessTimeout(cfg.Workers.ProcessTimeout),
	)
	ingestor := ingest.NewFSIngestor(queue, logger)

	logger.Info("starting ingestion", "dir", dir)
	results, stats, err := ingestor.IngestDirectory(ctx, dir, true)
	if err != nil {
		_ = queue.Shutdown(context.Background())
		return errors.Wrap(err, "ingest directory")
	}
	logger.Info("ingestion complete",
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"deduplicated", stats.Deduplicated)

	if watch {
		results = append(results, watchDir(ctx, ingestor, logger)...)
	}

	// drains every accepted job
	if err := queue.Shutdown(context.Background()); err != nil {
		return err
	}

	records := collect(queue, results)
	xlsx, err := export.NewService(logger).ExportXLSX(context.Background(), records)
	if err != nil {
		logger.Error("failed to export results", "error", err)
		return err
	}
	if err := os.WriteFile(out, xlsx, 0o644); err != nil {
		logger.Error("failed to write output file", "error", err)
		return errors.Wrapf(err, "write %s", out)
	}

	var completed, failed, rejected int
	for _, r := range results {
		if r.Err != "" {
			rejected++
		}
	}
	for _, r := range records {
		switch r.Status {
		case constants.JobStatusCompleted:
			completed++
		case constants.JobStatusFailed:
			failed++
		}
	}
	logger.Info("batch processing complete",
		"jobs", len(records), "completed", completed, "failed", failed,
		"rejected", rejected, "output_file", out)

	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Jobs: %d\n", len(records))
	fmt.Printf("- Completed: %d\n", completed)
	fmt.Printf("- Failed: %d\n", failed)
	fmt.Printf("- Not submitted: %d\n", rejected)
	fmt.Printf("- Output: %s\n", out)
	return nil
}

// watchDir ingests files that appear under dir until ctx ends.
func watchDir(ctx context.Context, ingestor *ingest.FSIngestor, logger *slog.Logger) []ingest.IngestionResult {
	events, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:      []string{dir},
		SkipHidden: true,
		Debounce:   500 * time.Millisecond,
	}, logger)
	if err != nil {
		logger.Error("watcher failed to start", "error", err)
		return nil
	}
	logger.Info("watching for new paystubs, interrupt to export", "dir", dir)

	var results []ingest.IngestionResult
	for {
		select {
		case path, ok := <-events:
			if !ok {
				return results
			}
			res, err := ingestor.IngestPath(context.Background(), path)
			if err != nil {
				res.Err = err.Error()
			}
			results = append(results, res)
		case err, ok := <-errs:
			if ok {
				logger.Warn("watcher error", "error", err)
			} else {
				errs = nil
			}
		case <-ctx.Done():
			return results
		}
	}
}

// collect returns the records of every submitted job, in submission order.
func collect(queue *async.ProcessorQueue, results []ingest.IngestionResult) []entity.ProcessingRequest {
	seen := make(map[string]bool)
	var records []entity.ProcessingRequest
	for _, res := range results {
		if res.JobID == "" || seen[res.JobID] {
			continue
		}
		seen[res.JobID] = true
		if r, ok := queue.Lookup(res.JobID); ok {
			records = append(records, r)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records
}
