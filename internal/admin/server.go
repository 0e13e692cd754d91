// Package admin serves the state of a running emulation over HTTP.
package admin

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"time"

	"wanemu/internal/analysis"
	"wanemu/internal/logging"
	"wanemu/internal/manifest"
	"wanemu/internal/pingmatrix"
)

// Source provides what the server exposes.
type Source interface {
	Manifest() (*manifest.Manifest, error)
	Analyze(ctx context.Context) (*analysis.Report, error)
}

// DirSource reads a run directory on every request.
type DirSource struct {
	Dir   string
	Pings *pingmatrix.Matrix
}

// Manifest implements Source.
func (d DirSource) Manifest() (*manifest.Manifest, error) { return manifest.Read(d.Dir) }

// Analyze implements Source.
func (d DirSource) Analyze(ctx context.Context) (*analysis.Report, error) {
	return analysis.Analyze(ctx, d.Dir, d.Pings)
}

type Server struct {
	src Source
	tpl *template.Template
	mux *http.ServeMux
}

//go:embed templates/index.html
var content embed.FS

func NewServer(src Source) *Server {
	tpl := template.Must(template.New("index.html").ParseFS(content, "templates/index.html"))
	s := &Server{src: src, tpl: tpl, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/status", s.handleStatus)
	s.mux.HandleFunc("/stretch", s.handleStretch)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// Start serves on addr until ctx is done.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	logging.FromContext(ctx).Info("admin server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type stretchResponse struct {
	Report *analysis.Report `json:"report,omitempty"`
	Error  string           `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	m, err := s.src.Manifest()
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, manifest.ErrNoManifest) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handleStretch analyzes the logs as they are now. Missing publish events
// are expected while a run is starting, so they are reported in the body.
func (s *Server) handleStretch(w http.ResponseWriter, r *http.Request) {
	rep, err := s.src.Analyze(r.Context())
	if err != nil && rep == nil {
		writeJSON(w, http.StatusInternalServerError, stretchResponse{Error: err.Error()})
		return
	}
	resp := stretchResponse{Report: rep}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data := struct {
		Manifest *manifest.Manifest
		Report   *analysis.Report
		Error    string
	}{}
	if m, err := s.src.Manifest(); err == nil {
		data.Manifest = m
	}
	rep, err := s.src.Analyze(r.Context())
	data.Report = rep
	if err != nil {
		data.Error = err.Error()
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	s.tpl.Execute(w, data)
}
