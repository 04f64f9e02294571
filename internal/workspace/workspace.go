// Package workspace owns the open file collection. Every mutation goes
// through one mutex-guarded owner so the engine's single-writer invariants
// hold even with the HTTP API issuing edits concurrently.
package workspace

import (
	"fmt"
	"sync"

	"github.com/subtitle-studio/workbench/internal/subtitle"
)

type Workspace struct {
	mu    sync.RWMutex
	files []*subtitle.File
}

func New() *Workspace {
	return &Workspace{}
}

// AddFile appends an imported file to the collection.
func (w *Workspace) AddFile(file *subtitle.File) {
	w.mu.Lock()
	defer w.mu.Unlock()
	file.RecomputeProgress()
	w.files = append(w.files, file)
}

// RemoveFile drops a file and all its cues.
func (w *Workspace) RemoveFile(fileID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, file := range w.files {
		if file.ID == fileID {
			w.files = append(w.files[:i], w.files[i+1:]...)
			return true
		}
	}
	return false
}

// Files returns deep copies of the collection in display order.
func (w *Workspace) Files() []subtitle.File {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ret := make([]subtitle.File, 0, len(w.files))
	for _, file := range w.files {
		ret = append(ret, cloneFile(file))
	}
	return ret
}

// FileByID returns a deep copy of one file.
func (w *Workspace) FileByID(fileID string) (subtitle.File, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, file := range w.files {
		if file.ID == fileID {
			return cloneFile(file), true
		}
	}
	return subtitle.File{}, false
}

// OwnerOf resolves the file owning a cue. Linear scan; the queue stores raw
// cue identifiers and re-resolves ownership on every tick.
func (w *Workspace) OwnerOf(cueID string) (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, file := range w.files {
		if file.CueByID(cueID) != nil {
			return file.ID, true
		}
	}
	return "", false
}

// Cue returns a copy of one cue.
func (w *Workspace) Cue(cueID string) (subtitle.Cue, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, file := range w.files {
		if cue := file.CueByID(cueID); cue != nil {
			return cloneCue(cue), true
		}
	}
	return subtitle.Cue{}, false
}

// ContextWindow collects up to window preceding and following cue source
// texts from the owning file, in document order.
func (w *Workspace) ContextWindow(cueID string, window int) (preceding, following []string) {
	if window <= 0 {
		return nil, nil
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, file := range w.files {
		for i := range file.Cues {
			if file.Cues[i].ID != cueID {
				continue
			}
			lo := i - window
			if lo < 0 {
				lo = 0
			}
			hi := i + window
			if hi > len(file.Cues)-1 {
				hi = len(file.Cues) - 1
			}
			for _, cue := range file.Cues[lo:i] {
				preceding = append(preceding, cue.Text)
			}
			for _, cue := range file.Cues[i+1 : hi+1] {
				following = append(following, cue.Text)
			}
			return preceding, following
		}
	}
	return nil, nil
}

// MarkTranslating transitions cues into the translating state.
func (w *Workspace) MarkTranslating(cueIDs []string) {
	w.mutateCues(cueIDs, func(cue *subtitle.Cue) {
		cue.Status = subtitle.StatusTranslating
		cue.ErrorMessage = ""
	})
}

// ResetToPending moves cues back to pending for manual retry.
func (w *Workspace) ResetToPending(cueIDs []string) {
	w.mutateCues(cueIDs, func(cue *subtitle.Cue) {
		cue.Status = subtitle.StatusPending
		cue.ErrorMessage = ""
	})
}

// MarkError records an unrecoverable per-cue failure.
func (w *Workspace) MarkError(cueIDs []string, message string) {
	w.mutateCues(cueIDs, func(cue *subtitle.Cue) {
		cue.Status = subtitle.StatusError
		cue.ErrorMessage = message
	})
}

// ApplyTranslation writes a translation onto a cue and returns its source
// text. Locked cues are left untouched: a human edit always wins over the
// pipeline.
func (w *Workspace) ApplyTranslation(cueID, translation string, source subtitle.Source) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, file := range w.files {
		cue := file.CueByID(cueID)
		if cue == nil {
			continue
		}
		if cue.Locked {
			return cue.Text, false
		}
		cue.TranslatedText = translation
		cue.RefinedText = translation
		cue.Status = subtitle.StatusCompleted
		cue.Source = source
		cue.ErrorMessage = ""
		file.RecomputeProgress()
		return cue.Text, true
	}
	return "", false
}

// EditCue applies a manual correction: status completed, provenance user,
// locked against silent pipeline overwrites. Returns the cue's source text
// so the caller can upsert the translation memory.
func (w *Workspace) EditCue(fileID, cueID, text string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, file := range w.files {
		if file.ID != fileID {
			continue
		}
		cue := file.CueByID(cueID)
		if cue == nil {
			return "", fmt.Errorf("cue %s not found in file %s", cueID, fileID)
		}
		cue.TranslatedText = text
		cue.RefinedText = text
		cue.Status = subtitle.StatusCompleted
		cue.Source = subtitle.SourceUser
		cue.Locked = true
		cue.ErrorMessage = ""
		file.RecomputeProgress()
		return cue.Text, nil
	}
	return "", fmt.Errorf("file %s not found", fileID)
}

// Snapshot returns a deep copy of the whole collection for autosave.
func (w *Workspace) Snapshot() []subtitle.File {
	return w.Files()
}

// Restore replaces the collection with a previously saved draft.
func (w *Workspace) Restore(files []subtitle.File) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.files = make([]*subtitle.File, 0, len(files))
	for i := range files {
		file := cloneFile(&files[i])
		// A draft saved mid-run may carry stuck in-flight cues.
		for j := range file.Cues {
			if file.Cues[j].Status == subtitle.StatusTranslating ||
				file.Cues[j].Status == subtitle.StatusAnalyzingIdioms {
				file.Cues[j].Status = subtitle.StatusPending
			}
		}
		file.RecomputeProgress()
		w.files = append(w.files, &file)
	}
}

func (w *Workspace) mutateCues(cueIDs []string, mutate func(*subtitle.Cue)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, id := range cueIDs {
		for _, file := range w.files {
			if cue := file.CueByID(id); cue != nil {
				mutate(cue)
				file.RecomputeProgress()
				break
			}
		}
	}
}

func cloneFile(file *subtitle.File) subtitle.File {
	ret := *file
	ret.Cues = make([]subtitle.Cue, len(file.Cues))
	for i := range file.Cues {
		ret.Cues[i] = *cloneCuePtr(&file.Cues[i])
	}
	return ret
}

func cloneCue(cue *subtitle.Cue) subtitle.Cue {
	return *cloneCuePtr(cue)
}

func cloneCuePtr(cue *subtitle.Cue) *subtitle.Cue {
	tmp := *cue
	tmp.Idioms = append([]string(nil), cue.Idioms...)
	return &tmp
}
