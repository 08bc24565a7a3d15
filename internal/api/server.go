package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-epub/internal/config"
	"github.com/JakeFAU/article-epub/internal/crawler"
	"github.com/JakeFAU/article-epub/internal/ebook"
	"github.com/JakeFAU/article-epub/internal/metrics"
)

// EbookService is what the handlers need from the ebook layer.
type EbookService interface {
	Ebook(ctx context.Context) (ebook.Artifact, error)
	Rebuild(ctx context.Context) (ebook.Artifact, error)
	Articles() []crawler.ArticleRecord
	BuiltAt() (time.Time, bool)
}

// Server wires HTTP handlers to the ebook service.
type Server struct {
	router  chi.Router
	service EbookService
	cfg     config.Config
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(service EbookService, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		service: service,
		cfg:     cfg,
		logger:  logger,
	}
	timeout := cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(timeoutMiddleware(timeout))
		r.Get("/file", s.getFile)
		r.Get("/articles", s.listArticles)
		r.Group(func(r chi.Router) {
			if cfg.Auth.Enabled {
				r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
			}
			r.Post("/refresh", s.refresh)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{"status": "ready"}
	if builtAt, ok := s.service.BuiltAt(); ok {
		resp["built_at"] = builtAt
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getFile(w http.ResponseWriter, r *http.Request) {
	artifact, err := s.service.Ebook(r.Context())
	if err != nil {
		s.logger.Error("ebook unavailable", zap.String("request_id", requestIDFrom(r.Context())), zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "ebook unavailable")
		return
	}
	if artifact.Checksum != "" {
		etag := `"` + artifact.Checksum + `"`
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	filename := s.cfg.Ebook.Filename
	if filename == "" {
		filename = "file.epub"
	}
	w.Header().Set("Content-Type", ebook.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Data)))
	w.Header().Set("Last-Modified", artifact.BuiltAt.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(artifact.Data); err != nil {
		s.logger.Warn("write ebook failed", zap.Error(err))
	}
}

type articleView struct {
	Title      string              `json:"title"`
	URL        string              `json:"url"`
	Date       crawler.PublishedAt `json:"date"`
	Categories []crawler.Category  `json:"categories"`
	Tags       []crawler.Tag       `json:"tags"`
}

func (s *Server) listArticles(w http.ResponseWriter, _ *http.Request) {
	records := s.service.Articles()
	views := make([]articleView, 0, len(records))
	for _, rec := range records {
		views = append(views, articleView{
			Title:      rec.Title,
			URL:        rec.URL,
			Date:       rec.Date,
			Categories: rec.Categories,
			Tags:       rec.Tags,
		})
	}
	s.writeJSON(w, http.StatusOK, views)
}

type refreshResponse struct {
	Articles int       `json:"articles"`
	Bytes    int       `json:"bytes"`
	BuiltAt  time.Time `json:"built_at"`
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	artifact, err := s.service.Rebuild(r.Context())
	if err != nil {
		s.logger.Error("rebuild failed", zap.String("request_id", requestIDFrom(r.Context())), zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "rebuild failed")
		return
	}
	s.writeJSON(w, http.StatusOK, refreshResponse{
		Articles: len(s.service.Articles()),
		Bytes:    len(artifact.Data),
		BuiltAt:  artifact.BuiltAt,
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("request_id", requestIDFrom(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.String("request_id", requestIDFrom(r.Context())),
						zap.Any("error", rec),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"internal server error"}` + "\n"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
