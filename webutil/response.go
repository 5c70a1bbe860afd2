package webutil

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, map[string]string{"error": message})
}

func RespondWithJSON(w http.ResponseWriter, status int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to marshal JSON response", "error", err)
		w.Header().Set(HeaderContentType, ContentTypeJSONUTF8)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Internal Server Error"}`))
		return
	}

	w.Header().Set(HeaderContentType, ContentTypeJSONUTF8)
	w.WriteHeader(status)
	_, _ = w.Write(response)
}

// HasResponseWriterSentHeader reports whether a status line was already
// written through a StatusRecorder, or falls back to the presence of a
// Content-Type header.
func HasResponseWriterSentHeader(w http.ResponseWriter) bool {
	if sr, ok := w.(*StatusRecorder); ok {
		return sr.Written
	}
	return w.Header().Get(HeaderContentType) != ""
}

// StatusRecorder remembers whether WriteHeader was called.
type StatusRecorder struct {
	http.ResponseWriter
	Status  int
	Written bool
}

func (s *StatusRecorder) WriteHeader(code int) {
	s.Status = code
	s.Written = true
	s.ResponseWriter.WriteHeader(code)
}

func (s *StatusRecorder) Write(b []byte) (int, error) {
	if !s.Written {
		s.WriteHeader(http.StatusOK)
	}
	return s.ResponseWriter.Write(b)
}
