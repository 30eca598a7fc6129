package handlers

import (
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/promptvid/internal/models"
	"github.com/jmylchreest/promptvid/internal/service"
	"github.com/jmylchreest/promptvid/internal/storage"
)

// FileHandler serves finished video artifacts with HTTP range support, so
// clients can seek or resume downloads without refetching the whole file.
type FileHandler struct {
	videoService *service.VideoService
	layout       *storage.Layout
}

// NewFileHandler creates a new file handler.
func NewFileHandler(videoService *service.VideoService, layout *storage.Layout) *FileHandler {
	return &FileHandler{videoService: videoService, layout: layout}
}

// RegisterFileServer registers the video streaming route on the chi router.
// Served directly rather than through huma since range-enabled binary
// streaming doesn't fit huma's JSON-oriented operation model.
func (h *FileHandler) RegisterFileServer(router chi.Router) {
	router.Get("/files/{id}/video", h.ServeVideo)
	router.Head("/files/{id}/video", h.ServeVideo)
}

// ServeVideo streams a completed run's final video, selected by the
// "quality" query parameter ("720p", default, or "480p").
func (h *FileHandler) ServeVideo(w http.ResponseWriter, r *http.Request) {
	idParam := chi.URLParam(r, "id")
	id, err := models.ParseULID(idParam)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	run, err := h.videoService.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrVideoNotFound) {
			http.Error(w, "video not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to look up video", http.StatusInternalServerError)
		return
	}

	quality := r.URL.Query().Get("quality")
	fileKey := models.FileKeyFinal720
	if quality == "480p" {
		fileKey = models.FileKeyFinal480
	}

	artifact, ok := run.Files[fileKey]
	if !ok || artifact.Path == "" {
		http.Error(w, "video artifact not available", http.StatusNotFound)
		return
	}

	absPath, err := h.layout.AbsPath(artifact.Path)
	if err != nil {
		http.Error(w, "failed to resolve video path", http.StatusInternalServerError)
		return
	}

	f, err := os.Open(absPath)
	if err != nil {
		http.Error(w, "video file not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, "failed to stat video file", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
