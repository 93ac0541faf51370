package api

import (
	"encoding/json"
	"net/http"
)

func (s *Server) handleOCRStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.OCRStats == nil {
		jsonError(w, "ocr stats unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"engine": "tesseract",
		"stats":  s.deps.OCRStats.Snapshot(),
	})
}

func (s *Server) handleForwarding(w http.ResponseWriter, r *http.Request) {
	if s.deps.Forwarding == nil {
		jsonError(w, "forwarding is disabled in this mode", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"config":  s.deps.Forwarding,
		"summary": s.deps.Forwarding.Describe(),
	})
}
