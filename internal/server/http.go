package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/Volpestyle/basic-budget-sub003/constants"
	"github.com/Volpestyle/basic-budget-sub003/internal/common"
	"github.com/Volpestyle/basic-budget-sub003/internal/entity"
	"github.com/Volpestyle/basic-budget-sub003/internal/export"
	"github.com/Volpestyle/basic-budget-sub003/internal/metrics"
	"github.com/Volpestyle/basic-budget-sub003/internal/store"
)

const (
	metadataHeader = "X-Job-Metadata"
	xlsxType       = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// JobQueue is the part of the processor queue the API drives.
type JobQueue interface {
	Submit(ctx context.Context, payload []byte, contentType string, metadata map[string]any) (string, error)
	Lookup(id string) (entity.ProcessingRequest, bool)
	Store() *store.ResultStore
	Closed() bool
}

// ResultReader serves records the in-memory store no longer holds, such as
// results of a previous run.
type ResultReader interface {
	Get(ctx context.Context, id string) (entity.ProcessingRequest, error)
}

// HTTPServer exposes job submission, status, export and metrics.
type HTTPServer struct {
	cfg        common.ServerConfig
	queue      JobQueue
	logger     *slog.Logger
	limiter    *rate.Limiter
	exporter   *export.Service
	gatherer   prometheus.Gatherer
	reqMetrics *metrics.HTTPMetrics
	readers    []ResultReader
	retryAfter time.Duration

	srv *http.Server
}

type HTTPOption func(*HTTPServer)

// WithMetrics serves gatherer on /metrics and records per-route request
// metrics when m is non-nil.
func WithMetrics(gatherer prometheus.Gatherer, m *metrics.HTTPMetrics) HTTPOption {
	return func(s *HTTPServer) {
		s.gatherer = gatherer
		s.reqMetrics = m
	}
}

// WithResultReaders adds lookups consulted, in order, for unknown job IDs.
func WithResultReaders(readers ...ResultReader) HTTPOption {
	return func(s *HTTPServer) { s.readers = append(s.readers, readers...) }
}

// WithRetryAfter sets the Retry-After hint sent with saturation responses.
func WithRetryAfter(d time.Duration) HTTPOption {
	return func(s *HTTPServer) {
		if d > 0 {
			s.retryAfter = d
		}
	}
}

func NewHTTPServer(cfg common.ServerConfig, queue JobQueue, exporter *export.Service, logger *slog.Logger, opts ...HTTPOption) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	if exporter == nil {
		exporter = export.NewService(logger)
	}
	s := &HTTPServer{
		cfg:        cfg,
		queue:      queue,
		logger:     logger,
		exporter:   exporter,
		retryAfter: time.Second,
	}
	if cfg.SubmitRPS > 0 {
		burst := cfg.SubmitBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.SubmitRPS), burst)
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Router builds the route table.
func (s *HTTPServer) Router() *mux.Router {
	r := mux.NewRouter()
	if s.reqMetrics != nil {
		r.Use(s.reqMetrics.Middleware)
	}
	r.HandleFunc("/v1/jobs", s.SubmitJob).Methods(http.MethodPost)
	r.HandleFunc("/v1/jobs/{id}", s.GetJob).Methods(http.MethodGet)
	r.HandleFunc("/v1/exports/results.xlsx", s.ExportResults).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.Health).Methods(http.MethodGet)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return r
}

// ListenAndServe binds cfg.HTTPAddr and serves until Shutdown.
func (s *HTTPServer) ListenAndServe() error {
	lis, err := net.Listen("tcp", s.cfg.HTTPAddr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", s.cfg.HTTPAddr)
	}
	return s.Serve(lis)
}

func (s *HTTPServer) Serve(lis net.Listener) error {
	s.srv = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("http serving", "addr", lis.Addr().String())
	if err := s.srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http serve")
	}
	return nil
}

// Shutdown stops accepting connections and waits for active requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	s.logger.Info("http shutting down")
	return s.srv.Shutdown(ctx)
}

// SubmitJob accepts a raw document body and queues it.
func (s *HTTPServer) SubmitJob(w http.ResponseWriter, r *http.Request) {
	if s.queue.Closed() {
		writeError(w, http.StatusServiceUnavailable, "shutting down")
		return
	}
	if s.limiter != nil && !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	ct := constants.NormalizeContentType(r.Header.Get("Content-Type"))
	if constants.MapContentTypeToFormat(ct) == "" {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported content type "+strconv.Quote(ct))
		return
	}

	body := r.Body
	if s.cfg.MaxPayloadBytes > 0 {
		if r.ContentLength > s.cfg.MaxPayloadBytes {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		body = http.MaxBytesReader(w, r.Body, s.cfg.MaxPayloadBytes)
	}
	payload, err := io.ReadAll(body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	var md map[string]any
	if raw := r.Header.Get(metadataHeader); raw != "" {
		if err := json.Unmarshal([]byte(raw), &md); err != nil {
			writeError(w, http.StatusBadRequest, metadataHeader+" must be a JSON object")
			return
		}
	}

	if err := common.ValidateSubmission(payload, ct, md); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.queue.Submit(r.Context(), payload, ct, md)
	switch {
	case err == nil:
		s.logger.Debug("job accepted", "job_id", id, "content_type", ct, "size", len(payload))
		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
	case errors.Is(err, common.ErrQueueSaturated):
		secs := int((s.retryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writeError(w, http.StatusServiceUnavailable, "queue saturated")
	case errors.Is(err, common.ErrQueueClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting down")
	case errors.Is(err, common.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Warn("submit failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "submit failed")
	}
}

// GetJob returns the current record of a job.
func (s *HTTPServer) GetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if req, ok := s.queue.Lookup(id); ok {
		writeJSON(w, http.StatusOK, req)
		return
	}
	for _, rd := range s.readers {
		req, err := rd.Get(r.Context(), id)
		if err == nil {
			writeJSON(w, http.StatusOK, req)
			return
		}
		if !errors.Is(err, common.ErrNotFound) {
			s.logger.Warn("result reader failed", "job_id", id, "reader", fmt.Sprintf("%T", rd), "error", err)
		}
	}
	writeError(w, http.StatusNotFound, "job not found")
}

// ExportResults streams an XLSX of every completed job held in memory.
func (s *HTTPServer) ExportResults(w http.ResponseWriter, r *http.Request) {
	records := s.queue.Store().List(func(req entity.ProcessingRequest) bool {
		return req.Status == constants.JobStatusCompleted
	})
	b, err := s.exporter.ExportXLSX(r.Context(), records)
	if err != nil {
		s.logger.Error("export.xlsx.failed", "err", err)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	w.Header().Set("Content-Type", xlsxType)
	w.Header().Set("Content-Disposition", `attachment; filename="results.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (s *HTTPServer) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
