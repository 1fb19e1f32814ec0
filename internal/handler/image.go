package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// GetImage handles GET /images/{name}.
func (s *Server) GetImage(w http.ResponseWriter, r *http.Request) {
	data, err := s.images.Load(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, r, err, "image")
		return
	}
	w.Header().Set("Content-Type", imageContentType(data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=86400, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// imageContentType sniffs stored image bytes, falling back to JPEG which
// is what the clients upload.
func imageContentType(data []byte) string {
	if ct := http.DetectContentType(data); strings.HasPrefix(ct, "image/") {
		return ct
	}
	return "image/jpeg"
}
