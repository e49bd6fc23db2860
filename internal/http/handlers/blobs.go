package handlers

import (
	"errors"
	"net/http"
	"os"
	"path"

	"github.com/go-chi/chi/v5"
)

// ServeBlob serves a stored artifact behind its signed URL.
func (a *App) ServeBlob(w http.ResponseWriter, r *http.Request) {
	objectPath := chi.URLParam(r, "*")
	if objectPath == "" {
		http.NotFound(w, r)
		return
	}
	if a.Signer == nil || a.Blobs == nil {
		http.NotFound(w, r)
		return
	}
	if err := a.Signer.Verify(objectPath, r.URL.Query()); err != nil {
		http.Error(w, "invalid or expired signature", http.StatusForbidden)
		return
	}
	data, err := a.Blobs.Read(r.Context(), objectPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		a.Logger.Error().Err(err).Str("object", objectPath).Msg("blobs: read failed")
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypeForPath(objectPath))
	w.Header().Set("Cache-Control", "private, max-age=300")
	_, _ = w.Write(data)
}

func contentTypeForPath(objectPath string) string {
	switch path.Ext(objectPath) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}
