// Package server exposes the conversion pipeline over HTTP JSON.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Player124413/PolGen-RVC/internal/audio"
	"github.com/Player124413/PolGen-RVC/internal/f0"
	"github.com/Player124413/PolGen-RVC/internal/vc"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// Converter runs one conversion job.
type Converter interface {
	Convert(ctx context.Context, req vc.ConversionRequest) (*audio.Buffer, error)
}

// ModelLister names the available voice bundles.
type ModelLister interface {
	List() ([]string, error)
}

type options struct {
	maxAudioBytes  int
	workers        int
	requestTimeout time.Duration
	logger         *slog.Logger
}

func defaultOptions() options {
	return options{
		maxAudioBytes:  64 << 20,
		workers:        2,
		requestTimeout: 300 * time.Second,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxAudioBytes caps the decoded size of the uploaded clip.
func WithMaxAudioBytes(n int) Option {
	return func(o *options) { o.maxAudioBytes = n }
}

// WithWorkers sets the maximum number of concurrent conversions.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout sets the per-request conversion deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

type handler struct {
	converter Converter
	models    ModelLister
	opts      options
	sem       chan struct{}
	log       *slog.Logger
}

// NewHandler returns an http.Handler serving GET /healthz, GET /api/models
// and POST /api/convert.
func NewHandler(converter Converter, models ModelLister, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		converter: converter,
		models:    models,
		opts:      opts,
		log:       opts.logger,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/models", h.handleModels)
	mux.HandleFunc("/api/convert", h.handleConvert)

	return mux
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}

	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildVersion(),
	})
}

func (h *handler) handleModels(w http.ResponseWriter, _ *http.Request) {
	names, err := h.models.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if names == nil {
		names = []string{}
	}

	writeJSON(w, http.StatusOK, map[string][]string{"models": names})
}

type convertRequest struct {
	Model        string   `json:"model"`
	Speaker      int      `json:"speaker"`
	Audio        string   `json:"audio"`
	PitchShift   float64  `json:"pitch_shift"`
	PitchMethod  string   `json:"pitch_method"`
	IndexRate    float64  `json:"index_rate"`
	FilterRadius *int     `json:"filter_radius"`
	RMSMixRate   *float64 `json:"rms_mix_rate"`
	Protect      *float64 `json:"protect"`
	Autotune     bool     `json:"autotune"`
	F0Min        *float64 `json:"f0_min"`
	F0Max        *float64 `json:"f0_max"`
	CrepeHop     *int     `json:"crepe_hop"`
	TruncateRate float64  `json:"truncate_rate"`
	Seed         int64    `json:"seed"`
	OutputFormat string   `json:"output_format"`
}

type convertResponse struct {
	Audio      string `json:"audio"`
	SampleRate int    `json:"sample_rate"`
	DurationMS int64  `json:"duration_ms"`
}

func (h *handler) handleConvert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "request body is required")
		return
	}

	// Base64 inflates the clip by 4/3; twice the audio cap bounds the whole
	// body without rejecting legitimate payloads.
	r.Body = http.MaxBytesReader(w, r.Body, 2*int64(h.opts.maxAudioBytes))

	var body convertRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}

		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if body.Audio == "" {
		writeError(w, http.StatusBadRequest, "audio field is required")
		return
	}

	wavBytes, err := base64.StdEncoding.DecodeString(body.Audio)
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio must be base64: "+err.Error())
		return
	}

	if len(wavBytes) > h.opts.maxAudioBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("audio exceeds maximum size of %d bytes", h.opts.maxAudioBytes))
		return
	}

	buf, err := audio.DecodeWAV(wavBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := buildRequest(body, buf)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The pool is bounded; a saturated pool rejects instead of queueing.
	if h.sem != nil {
		select {
		case h.sem <- struct{}{}:
		default:
			writeError(w, http.StatusServiceUnavailable, vc.ErrResourceExhausted.Error())
			return
		}
		defer func() { <-h.sem }()
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	requestID := uuid.NewString()

	start := time.Now()
	out, err := h.converter.Convert(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		h.writeConvertError(w, r, requestID, body.Model, elapsed, err)
		return
	}

	wav, err := audio.Encode(out, req.OutputFormat)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, audio.ErrUnsupportedFormat) {
			status = http.StatusNotImplemented
		}

		writeError(w, status, err.Error())

		return
	}

	h.log.InfoContext(r.Context(), "conversion complete",
		slog.String("request_id", requestID),
		slog.String("model", body.Model),
		slog.Int("input_bytes", len(wavBytes)),
		slog.Int("output_bytes", len(wav)),
		slog.Int64("duration_ms", elapsed.Milliseconds()),
	)

	writeJSON(w, http.StatusOK, convertResponse{
		Audio:      base64.StdEncoding.EncodeToString(wav),
		SampleRate: out.SampleRate,
		DurationMS: elapsed.Milliseconds(),
	})
}

func (h *handler) writeConvertError(w http.ResponseWriter, r *http.Request, requestID, model string, elapsed time.Duration, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, vc.ErrInvalidParameter):
		status = http.StatusBadRequest
	case errors.Is(err, vc.ErrModelNotFound):
		status = http.StatusNotFound
	case errors.Is(err, vc.ErrModelUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, vc.ErrResourceExhausted):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status = http.StatusGatewayTimeout
	}

	h.log.ErrorContext(r.Context(), "conversion failed",
		slog.String("request_id", requestID),
		slog.String("model", model),
		slog.Int("status", status),
		slog.Int64("duration_ms", elapsed.Milliseconds()),
		slog.String("error", err.Error()),
	)

	writeError(w, status, err.Error())
}

// buildRequest merges the JSON body over the default knob settings.
func buildRequest(body convertRequest, buf *audio.Buffer) (vc.ConversionRequest, error) {
	req := vc.DefaultRequest()
	req.Model = body.Model
	req.Speaker = body.Speaker
	req.Audio = buf
	req.PitchShift = body.PitchShift
	req.IndexRate = body.IndexRate
	req.Autotune = body.Autotune
	req.TruncateRate = body.TruncateRate
	req.Seed = body.Seed

	if body.PitchMethod != "" {
		method, err := f0.ParseMethod(body.PitchMethod)
		if err != nil {
			return vc.ConversionRequest{}, err
		}

		req.PitchMethod = method
	}

	if body.FilterRadius != nil {
		req.FilterRadius = *body.FilterRadius
	}

	if body.RMSMixRate != nil {
		req.RMSMixRate = *body.RMSMixRate
	}

	if body.Protect != nil {
		req.Protect = *body.Protect
	}

	if body.F0Min != nil {
		req.F0Min = *body.F0Min
	}

	if body.F0Max != nil {
		req.F0Max = *body.F0Max
	}

	if body.CrepeHop != nil {
		req.CrepeHop = *body.CrepeHop
	}

	if body.OutputFormat != "" {
		format, err := audio.ParseFormat(body.OutputFormat)
		if err != nil {
			return vc.ConversionRequest{}, err
		}

		req.OutputFormat = format
	}

	return req, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Server wires the handler into a net/http.Server with graceful shutdown.
type Server struct {
	addr            string
	handler         http.Handler
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

func New(addr string, h http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		addr:            addr,
		handler:         h,
		shutdownTimeout: 30 * time.Second,
		logger:          logger,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("http server listening", "addr", s.addr, "instance", uuid.NewString())

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}

		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("http listen: %w", err)
	}
}
