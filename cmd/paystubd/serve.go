package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/Volpestyle/basic-budget-sub003/internal/broker"
	"github.com/Volpestyle/basic-budget-sub003/internal/cache"
	"github.com/Volpestyle/basic-budget-sub003/internal/common"
	"github.com/Volpestyle/basic-budget-sub003/internal/core/async"
	"github.com/Volpestyle/basic-budget-sub003/internal/core/extract"
	"github.com/Volpestyle/basic-budget-sub003/internal/core/ocr"
	"github.com/Volpestyle/basic-budget-sub003/internal/core/pipeline"
	"github.com/Volpestyle/basic-budget-sub003/internal/export"
	"github.com/Volpestyle/basic-budget-sub003/internal/ingest"
	"github.com/Volpestyle/basic-budget-sub003/internal/metrics"
	"github.com/Volpestyle/basic-budget-sub003/internal/repository"
	"github.com/Volpestyle/basic-budget-sub003/internal/server"
	"github.com/Volpestyle/basic-budget-sub003/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, gRPC health endpoint and worker pool",
	RunE: func(cmd *cobra.Command, _ []string) error {
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

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

func init() {
	f := serveCmd.Flags()
	f.String("http-addr", "", "HTTP listen address")
	f.String("grpc-addr", "", "gRPC health listen address")
	f.Int("workers", 0, "worker count")
	f.String("queue-backend", "", "job source: memory, rabbitmq or spool")
	_ = v.BindPFlag("server.http_addr", f.Lookup("http-addr"))
	_ = v.BindPFlag("server.grpc_addr", f.Lookup("grpc-addr"))
	_ = v.BindPFlag("workers.count", f.Lookup("workers"))
	_ = v.BindPFlag("queue.backend", f.Lookup("queue-backend"))
}

// newPipeline wires text extraction, the pattern engine and schema checks.
func newPipeline(cfg common.OCRConfig, logger *slog.Logger) (*pipeline.Pipeline, error) {
	extractor := ocr.NewExtractor(ocr.Config{
		Pdftotext: cfg.Pdftotext,
		Pdftoppm:  cfg.Pdftoppm,
		Tesseract: cfg.Tesseract,
		Lang:      cfg.Lang,
		DPI:       cfg.DPI,
		WorkDir:   cfg.WorkDir,
	}, ocr.ExecRunner{Logger: logger}, logger)
	validator, err := extract.NewCandidateValidator()
	if err != nil {
		return nil, errors.Wrap(err, "compile candidate schema")
	}
	return pipeline.New(extract.NewPatternEngine(extractor, logger), validator, logger), nil
}

type closer struct {
	name string
	fn   func() error
}

func serve(ctx context.Context, cfg *common.Config, logger *slog.Logger) error {
	// released last-in first-out
	var closers []closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if cerr := closers[i].fn(); cerr != nil {
				logger.Error("close failed", "component", closers[i].name, "error", cerr)
			}
		}
	}()

	proc, err := newPipeline(cfg.OCR, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	poolMetrics, err := metrics.NewPoolMetrics(reg)
	if err != nil {
		return err
	}
	httpMetrics, err := metrics.NewHTTPMetrics(reg)
	if err != nil {
		return err
	}

	var (
		sinks   []async.ResultSink
		readers []server.ResultReader
	)
	if cfg.Database.Driver != "" {
		db, err := repository.Open(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		closers = append(closers, closer{"database", func() error { db.Close(logger); return nil }})
		if err := db.HealthCheck(ctx, cfg.Database.DialTimeout); err != nil {
			return errors.Wrap(err, "database health")
		}
		archive := repository.NewArchive(db, logger)
		if err := archive.Migrate(ctx); err != nil {
			return err
		}
		sinks = append(sinks, archive)
		readers = append(readers, archive)
	}
	if cfg.Redis.Addr != "" {
		client, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		mirror := cache.NewRedisMirror(client, cfg.Redis.TTL, logger)
		closers = append(closers, closer{"redis", mirror.Close})
		sinks = append(sinks, mirror)
		readers = append(readers, mirror)
	}

	queue := async.NewProcessorQueue(proc, store.New(0), logger,
		async.WithWorkers(cfg.Workers.Count),
		async.WithSubmitTimeout(cfg.Workers.SubmissionTimeout),
		async.WithProcessTimeout(cfg.Workers.ProcessTimeout),
		async.WithObserver(poolMetrics),
		async.WithResultSinks(sinks...),
	)

	source, err := openSource(ctx, cfg, logger)
	if err != nil {
		_ = queue.Shutdown(context.Background())
		return err
	}

	httpSrv := server.NewHTTPServer(cfg.Server, queue, export.NewService(logger), logger,
		server.WithMetrics(reg, httpMetrics),
		server.WithResultReaders(readers...),
	)
	healthSrv := server.NewHealthServer(logger)

	errCh := make(chan error, 2)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- errors.Wrap(err, "http serve")
		}
	}()
	if cfg.Server.GRPCAddr != "" {
		go func() {
			if err := healthSrv.ListenAndServe(cfg.Server.GRPCAddr); err != nil {
				errCh <- err
			}
		}()
	}

	pollCtx, stopPolling := context.WithCancel(ctx)
	defer stopPolling()
	pollDone := make(chan struct{})
	if source != nil {
		poller := async.NewPoller(source, queue, cfg.Queue.PollInterval, logger)
		queue.AddSink(poller)
		go func() {
			defer close(pollDone)
			_ = poller.Run(pollCtx)
		}()
	} else {
		close(pollDone)
	}

	logger.Info("paystubd started",
		"http_addr", cfg.Server.HTTPAddr,
		"grpc_addr", cfg.Server.GRPCAddr,
		"workers", queue.Workers(),
		"queue_capacity", queue.Capacity(),
		"backend", cfg.Queue.Backend,
	)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-errCh:
		logger.Error("server failed", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	healthSrv.Drain()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	stopPolling()
	<-pollDone
	if err := queue.Shutdown(shutdownCtx); err != nil {
		logger.Error("queue shutdown", "error", err)
	}
	// outstanding broker deliveries go back to the source after the drain
	if source != nil {
		if err := source.Close(); err != nil {
			logger.Error("close source", "error", err)
		}
	}
	healthSrv.Stop()
	logger.Info("paystubd stopped")
	return runErr
}

type closableSource interface {
	async.PollableSource
	Close() error
}

// openSource returns nil for the memory backend, where jobs only arrive over HTTP.
func openSource(ctx context.Context, cfg *common.Config, logger *slog.Logger) (closableSource, error) {
	switch cfg.Queue.Backend {
	case common.BackendRabbitMQ:
		var fetcher broker.ObjectFetcher
		if cfg.MinIO.Endpoint != "" {
			client, err := broker.NewMinioClient(cfg.MinIO)
			if err != nil {
				return nil, err
			}
			fetcher = broker.NewMinioFetcher(client, cfg.Server.MaxPayloadBytes)
		}
		return broker.DialRabbitSource(ctx, cfg.RabbitMQ, cfg.Queue, fetcher, logger)
	case common.BackendSpool:
		return ingest.NewSpoolSource(ctx, cfg.Spool.Dir, cfg.Queue.BatchSize, logger)
	default:
		return nil, nil
	}
}
