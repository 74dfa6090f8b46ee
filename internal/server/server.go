package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	mockupforge "github.com/menta2k/mockup-forge"
	"github.com/menta2k/mockup-forge/internal/utils"
	"github.com/menta2k/mockup-forge/pkg/analyzer"
	"github.com/menta2k/mockup-forge/pkg/pipeline"
	"github.com/menta2k/mockup-forge/pkg/templates"
	"github.com/menta2k/mockup-forge/pkg/types"
	"github.com/menta2k/mockup-forge/pkg/vision"
)

// MaxUploadBytes caps a design upload
const MaxUploadBytes = 32 << 20

// Renderer is the part of the forge the preview API needs
type Renderer interface {
	Mockups() []types.MockupDefinition
	LoadImageFromReader(r io.Reader) (image.Image, error)
	Render(ctx context.Context, design image.Image, inputName, mockup string) (*pipeline.Rendered, error)
	DebugOverlay(r *pipeline.Rendered) ([]byte, error)
}

// Server serves mockup previews over HTTP. Previews never touch the
// ledger or the output directory.
type Server struct {
	forge     Renderer
	logger    *slog.Logger
	startTime time.Time
	version   string
}

// NewServer creates a new server instance
func NewServer(forge Renderer, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		forge:     forge,
		logger:    logger,
		startTime: time.Now(),
		version:   version,
	}
}

// Router returns the chi router with all routes and middleware mounted
func (s *Server) Router(timeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.Get("/health", s.GetHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.GetHealth)
		r.Get("/mockups", s.ListMockups)
		r.Post("/mockups/{name}", s.RenderMockup)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    int       `json:"uptime"`
	Version   string    `json:"version"`
}

// GetHealth implements the health check endpoint
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    int(time.Since(s.startTime).Seconds()),
		Version:   s.version,
	})
}

type mockupResponse struct {
	Name        string      `json:"name"`
	Frame       types.Frame `json:"coords"`
	Action      string      `json:"action"`
	TitlePrefix string      `json:"title_prefix_to_add,omitempty"`
	TitleSuffix string      `json:"title_suffix_to_add,omitempty"`
	Watermark   string      `json:"watermark,omitempty"`
}

// ListMockups returns the configured mockup sets
func (s *Server) ListMockups(w http.ResponseWriter, r *http.Request) {
	defs := s.forge.Mockups()
	out := make([]mockupResponse, 0, len(defs))
	for _, def := range defs {
		m := mockupResponse{
			Name:        def.Name,
			Frame:       def.Frame,
			Action:      string(def.Action),
			TitlePrefix: def.TitlePrefix,
			TitleSuffix: def.TitleSuffix,
		}
		switch def.Watermark.Kind {
		case types.WatermarkText:
			m.Watermark = "text"
		case types.WatermarkRemote:
			m.Watermark = "remote"
		}
		out = append(out, m)
	}
	s.writeJSON(w, http.StatusOK, out)
}

// RenderMockup composes the uploaded design onto the named mockup.
// With ?debug=1 it returns a PNG with the frame and placement outlined.
func (s *Server) RenderMockup(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	inputName := utils.SanitizeFilename(r.URL.Query().Get("filename"))
	if inputName == "" {
		inputName = "design.png"
	}

	design, err := s.forge.LoadImageFromReader(http.MaxBytesReader(w, r.Body, MaxUploadBytes))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "INVALID_IMAGE", err.Error())
		return
	}

	rendered, err := s.forge.Render(r.Context(), design, inputName, name)
	if err != nil {
		s.handleRenderError(w, r, err)
		return
	}

	data := rendered.Asset.Data
	contentType := rendered.Encoding.ContentType()
	if debug, _ := strconv.ParseBool(r.URL.Query().Get("debug")); debug {
		if data, err = s.forge.DebugOverlay(rendered); err != nil {
			s.writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
			return
		}
		contentType = "image/png"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", rendered.Asset.Filename))
	w.Header().Set("X-Request-ID", middleware.GetReqID(r.Context()))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("error writing response", "error", err)
	}
}

func (s *Server) handleRenderError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, mockupforge.ErrUnknownMockup):
		s.writeError(w, r, http.StatusNotFound, "UNKNOWN_MOCKUP", err.Error())
	case errors.Is(err, templates.ErrNotFound):
		s.writeError(w, r, http.StatusNotFound, "TEMPLATE_NOT_FOUND", err.Error())
	case errors.Is(err, analyzer.ErrTooSmall):
		s.writeError(w, r, http.StatusUnprocessableEntity, "IMAGE_TOO_SMALL", err.Error())
	case errors.Is(err, vision.ErrEmpty):
		s.writeError(w, r, http.StatusUnprocessableEntity, "EMPTY_DESIGN",
			"nothing left after background removal")
	case errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, r, http.StatusGatewayTimeout, "TIMEOUT", "rendering timed out")
	default:
		s.logger.Error("render failed", "error", err)
		s.writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	s.writeJSON(w, status, errorResponse{
		Error:     code,
		Message:   message,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("error encoding response", "error", err)
	}
}
