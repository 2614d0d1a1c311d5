package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/KaramelBytes/climalyzer/internal/dataset"
	"github.com/KaramelBytes/climalyzer/internal/pipeline"
	"github.com/KaramelBytes/climalyzer/internal/plot"
	"github.com/KaramelBytes/climalyzer/internal/report"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxBody caps request bodies; requests only carry a file name and an action.
const maxBody = 64 << 10

// Analyzer runs one analysis.
type Analyzer interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Config configures the web server.
type Config struct {
	Addr    string
	DataDir string
	// Ready is checked by /readyz in addition to the data directory. Optional.
	Ready ReadinessChecker
}

// Server serves the analysis form, the JSON API, and health, readiness and
// metrics endpoints.
type Server struct {
	httpServer *http.Server
	cfg        Config
	analyzer   Analyzer
	logger     *slog.Logger
}

// New creates the server and its routes.
func New(cfg Config, analyzer Analyzer, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		cfg:      cfg,
		analyzer: analyzer,
		logger:   logger,
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /{$}", s.handleAnalyzeForm)
	mux.HandleFunc("POST /analyze", s.handleAnalyzeForm)
	mux.HandleFunc("POST /api/analyze", s.handleAnalyzeAPI)
	mux.HandleFunc("GET /api/files", s.handleFiles)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr, "data_dir", s.cfg.DataDir)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	err := s.checkDataDir()
	if err == nil && s.cfg.Ready != nil {
		err = s.cfg.Ready.CheckReadiness(ctx)
	}
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) checkDataDir() error {
	info, err := os.Stat(s.cfg.DataDir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("data dir is not a directory")
	}
	return nil
}

func (s *Server) handleFiles(w http.ResponseWriter, _ *http.Request) {
	files, err := dataset.ListFiles(s.cfg.DataDir)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if files == nil {
		files = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"files": files})
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	s.renderPage(w, http.StatusOK, pageData{})
}

func (s *Server) handleAnalyzeForm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := r.ParseForm(); err != nil {
		s.renderPage(w, http.StatusBadRequest, pageData{Error: "invalid form: " + err.Error()})
		return
	}
	file := r.PostFormValue("selected_file")
	data := pageData{Selected: file, Action: r.PostFormValue("action")}

	res, status, err := s.analyze(r.Context(), file, data.Action, r.PostFormValue("target"))
	if err != nil {
		data.Error = err.Error()
		s.renderPage(w, status, data)
		return
	}
	data.Report = report.Markdown(res)
	if p, err := plot.ForResult(res); err == nil {
		if png, err := plot.PNG(p); err == nil {
			data.Plot = pngDataURI(png)
		} else {
			s.logger.Warn("encode plot failed", "id", res.ID, "error", err)
		}
	}
	s.renderPage(w, http.StatusOK, data)
}

type apiRequest struct {
	File   string `json:"file"`
	Action string `json:"action"`
	Target string `json:"target,omitempty"`
}

func (s *Server) handleAnalyzeAPI(w http.ResponseWriter, r *http.Request) {
	var req apiRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return
	}
	res, status, err := s.analyze(r.Context(), req.File, req.Action, req.Target)
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, report.NewSummary(res))
}

var (
	errNoFile      = errors.New("choose a data file")
	errUnknownFile = errors.New("data file not found")
)

// analyze validates the inputs and runs the pipeline, mapping failures to an
// HTTP status.
func (s *Server) analyze(ctx context.Context, file, action, target string) (*pipeline.Result, int, error) {
	if file == "" {
		return nil, http.StatusBadRequest, errNoFile
	}
	act, err := pipeline.ParseAction(action)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}
	path, ok := dataset.Resolve(s.cfg.DataDir, file)
	if !ok {
		return nil, http.StatusNotFound, errUnknownFile
	}
	if _, err := os.Stat(path); err != nil {
		return nil, http.StatusNotFound, errUnknownFile
	}
	res, err := s.analyzer.Run(ctx, pipeline.Request{Path: path, Target: target, Action: act})
	switch {
	case err == nil:
		return res, http.StatusOK, nil
	case errors.Is(err, pipeline.ErrNoTarget):
		return nil, http.StatusUnprocessableEntity,
			errors.New("could not detect target column; rename the file or a column to include 'temp', 'precip' or 'anom'")
	case errors.Is(err, pipeline.ErrInsufficientData):
		return nil, http.StatusUnprocessableEntity, err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, http.StatusServiceUnavailable, err
	default:
		s.logger.Error("analysis failed", "file", file, "action", action, "error", err)
		return nil, http.StatusUnprocessableEntity, err
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
