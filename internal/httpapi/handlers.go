package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/subtitle-studio/workbench/internal/config"
	"github.com/subtitle-studio/workbench/internal/project"
	"github.com/subtitle-studio/workbench/internal/subtitle"
)

const maxUploadBytes = 10 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	storage := "memory"
	if s.library != nil {
		storage = "sqlite"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"storage":      storage,
		"engine_state": s.engine.Status().State,
		"memory_size":  s.memory.Len(),
	})
}

type importRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

func (s *Server) handleImportFile(w http.ResponseWriter, r *http.Request) {
	name, data, err := readUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	file, err := subtitle.NewBytesReader(name, data).Read()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("parse %s: %v", name, err))
		return
	}

	s.ws.AddFile(file)
	writeJSON(w, http.StatusCreated, file)
}

// readUpload accepts either a multipart form with a "file" part or a JSON
// body with inline content.
func readUpload(r *http.Request) (string, []byte, error) {
	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasPrefix(contentType, "multipart/") {
		part, header, err := r.FormFile("file")
		if err != nil {
			return "", nil, fmt.Errorf("missing file part: %w", err)
		}
		defer part.Close()

		data, err := io.ReadAll(io.LimitReader(part, maxUploadBytes))
		if err != nil {
			return "", nil, err
		}
		return header.Filename, data, nil
	}

	var req importRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&req); err != nil {
		return "", nil, fmt.Errorf("invalid body: %w", err)
	}
	if req.Name == "" || req.Content == "" {
		return "", nil, fmt.Errorf("name and content are required")
	}
	return req.Name, []byte(req.Content), nil
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ws.Files())
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")
	if !s.ws.RemoveFile(fileID) {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": fileID})
}

func (s *Server) handleExportFile(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")
	file, ok := s.ws.FileByID(fileID)
	if !ok {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	data, err := subtitle.Render(&file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/x-subrip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type editCueRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleEditCue(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")
	cueID := chi.URLParam(r, "cueID")

	var req editCueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	sourceText, err := s.ws.EditCue(fileID, cueID, req.Text)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	// A human correction is the best translation we will ever have for this
	// source line.
	s.memory.Put(s.settings.Get().TargetLanguage, sourceText, req.Text)

	cue, _ := s.ws.Cue(cueID)
	writeJSON(w, http.StatusOK, cue)
}

type queueStartRequest struct {
	FileID string   `json:"file_id,omitempty"`
	CueIDs []string `json:"cue_ids,omitempty"`
}

func (s *Server) handleQueueStart(w http.ResponseWriter, r *http.Request) {
	var req queueStartRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
	}

	ids := req.CueIDs
	if req.FileID != "" {
		file, ok := s.ws.FileByID(req.FileID)
		if !ok {
			writeError(w, http.StatusNotFound, "file not found")
			return
		}
		for _, cue := range file.Cues {
			if cue.Status == subtitle.StatusPending || cue.Status == subtitle.StatusError {
				ids = append(ids, cue.ID)
			}
		}
	}

	s.engine.Start(ids)
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleQueuePause(w http.ResponseWriter, r *http.Request) {
	s.engine.Pause()
	writeJSON(w, http.StatusOK, s.engine.Status())
}

type queueRetryRequest struct {
	CueIDs []string `json:"cue_ids"`
}

func (s *Server) handleQueueRetry(w http.ResponseWriter, r *http.Request) {
	var req queueRetryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if len(req.CueIDs) == 0 {
		writeError(w, http.StatusBadRequest, "cue_ids is required")
		return
	}
	s.engine.Retry(req.CueIDs)
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleQueueTryNow(w http.ResponseWriter, r *http.Request) {
	s.engine.TryNow()
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   s.engine.Status(),
		"activity": s.engine.Activity(),
	})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.Get())
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var next config.Settings
	if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	saved, err := s.settings.Update(next)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

type presetRequest struct {
	Preset config.SpeedPreset `json:"preset"`
}

func (s *Server) handleApplyPreset(w http.ResponseWriter, r *http.Request) {
	var req presetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	saved, err := s.settings.ApplyPreset(req.Preset)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

type saveMemoryRequest struct {
	Lang           string `json:"lang,omitempty"`
	SourceText     string `json:"source_text"`
	TranslatedText string `json:"translated_text"`
}

func (s *Server) handleSaveMemory(w http.ResponseWriter, r *http.Request) {
	var req saveMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if strings.TrimSpace(req.SourceText) == "" || strings.TrimSpace(req.TranslatedText) == "" {
		writeError(w, http.StatusBadRequest, "source_text and translated_text are required")
		return
	}

	lang := req.Lang
	if lang == "" {
		lang = s.settings.Get().TargetLanguage
	}
	s.memory.Put(lang, req.SourceText, req.TranslatedText)
	writeJSON(w, http.StatusOK, map[string]any{"saved": true, "size": s.memory.Len()})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.project.Get())
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var info project.Info
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	s.project.Set(info)
	writeJSON(w, http.StatusOK, s.project.Get())
}

func (s *Server) handleListLibrary(w http.ResponseWriter, r *http.Request) {
	if s.library == nil {
		writeError(w, http.StatusServiceUnavailable, "library storage not configured")
		return
	}
	entries, err := s.library.ListLibrary(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type saveLibraryRequest struct {
	FileID string `json:"file_id"`
	Name   string `json:"name"`
}

func (s *Server) handleSaveToLibrary(w http.ResponseWriter, r *http.Request) {
	if s.library == nil {
		writeError(w, http.StatusServiceUnavailable, "library storage not configured")
		return
	}

	var req saveLibraryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	file, ok := s.ws.FileByID(req.FileID)
	if !ok {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	name := req.Name
	if name == "" {
		name = file.Name
	}
	if err := s.library.SaveToLibrary(r.Context(), name, file); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saved": name})
}

func (s *Server) handleLoadFromLibrary(w http.ResponseWriter, r *http.Request) {
	if s.library == nil {
		writeError(w, http.StatusServiceUnavailable, "library storage not configured")
		return
	}

	name := chi.URLParam(r, "name")
	file, ok, err := s.library.LoadFromLibrary(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no saved file with that name")
		return
	}

	// Fresh ids so a saved file can be loaded next to its original copy.
	file.ID = uuid.NewString()
	for i := range file.Cues {
		file.Cues[i].ID = uuid.NewString()
	}
	s.ws.AddFile(&file)
	writeJSON(w, http.StatusOK, file)
}

func (s *Server) handleDeleteFromLibrary(w http.ResponseWriter, r *http.Request) {
	if s.library == nil {
		writeError(w, http.StatusServiceUnavailable, "library storage not configured")
		return
	}
	name := chi.URLParam(r, "name")
	if err := s.library.DeleteFromLibrary(r.Context(), name); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": name})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
