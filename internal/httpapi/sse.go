package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/subtitle-studio/workbench/internal/engine"
	"github.com/subtitle-studio/workbench/internal/subtitle"
)

// streamEvent is one SSE frame: engine status, per-file progress, and the
// tail of the activity log.
type streamEvent struct {
	Status   engine.Status          `json:"status"`
	Files    []fileProgress         `json:"files"`
	Activity []engine.ActivityEntry `json:"activity"`
}

type fileProgress struct {
	ID       string              `json:"id"`
	Name     string              `json:"name"`
	Progress int                 `json:"progress"`
	Status   subtitle.FileStatus `json:"status"`
}

func (s *Server) handleQueueStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	send := func() bool {
		payload, err := json.Marshal(s.streamSnapshot())
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !send() {
		return
	}

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if !send() {
				return
			}
		}
	}
}

func (s *Server) streamSnapshot() streamEvent {
	files := s.ws.Files()
	progress := make([]fileProgress, 0, len(files))
	for _, file := range files {
		progress = append(progress, fileProgress{
			ID:       file.ID,
			Name:     file.Name,
			Progress: file.Progress,
			Status:   file.Status,
		})
	}
	return streamEvent{
		Status:   s.engine.Status(),
		Files:    progress,
		Activity: s.engine.Activity(),
	}
}
