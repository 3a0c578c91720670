package server

import (
	"errors"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

var contentTypes = map[string]string{
	".js":   "text/javascript",
	".css":  "text/css",
	".html": "text/html",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// NewAssetHandler serves files from dir. "/" maps to index.html.
func NewAssetHandler(dir string, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	assets := &assetServer{dir: dir, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))
	r.Get("/", assets.serveIndex)
	r.Get("/*", assets.serveFile)
	return r
}

type assetServer struct {
	dir    string
	logger *slog.Logger
}

func (s *assetServer) serveIndex(w http.ResponseWriter, r *http.Request) {
	s.serve(w, "index.html")
}

func (s *assetServer) serveFile(w http.ResponseWriter, r *http.Request) {
	s.serve(w, chi.URLParam(r, "*"))
}

func (s *assetServer) serve(w http.ResponseWriter, name string) {
	resolved, ok := s.resolve(name)
	if !ok {
		http.NotFound(w, nil)
		return
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("asset read failed", "path", resolved, "error", err)
		}
		http.NotFound(w, nil)
		return
	}

	w.Header().Set("Content-Type", contentType(resolved))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// resolve maps a request path onto a regular file beneath s.dir.
func (s *assetServer) resolve(name string) (string, bool) {
	cleaned := path.Clean("/" + name)
	if cleaned == "/" {
		return "", false
	}
	resolved := filepath.Join(s.dir, filepath.FromSlash(strings.TrimPrefix(cleaned, "/")))
	info, err := os.Stat(resolved)
	if err != nil || info.IsDir() {
		return "", false
	}
	return resolved, true
}

func contentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		})
	}
}
