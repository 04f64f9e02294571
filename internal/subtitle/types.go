package subtitle

import (
	"time"

	"golang.org/x/text/language"
)

// CueStatus tracks a cue through the translation pipeline.
type CueStatus string

const (
	StatusPending     CueStatus = "pending"
	StatusTranslating CueStatus = "translating"
	StatusCompleted   CueStatus = "completed"
	StatusError       CueStatus = "error"

	// Idiom analysis runs as a side-flow independent of the main pipeline.
	StatusAnalyzingIdioms CueStatus = "analyzing_idioms"
	StatusTranslated      CueStatus = "translated"
)

// Source records where a cue's translation came from.
type Source string

const (
	SourceAI    Source = "ai"
	SourceTM    Source = "tm"
	SourceUser  Source = "user"
	SourceCache Source = "cache"
)

// Cue is a single timed subtitle entry.
//
// ID is the stable identifier used for all queue and state operations;
// Index is only the display number within the file.
type Cue struct {
	ID             string        `json:"id"`
	Index          int           `json:"index"`
	StartTime      time.Duration `json:"start_time"`
	EndTime        time.Duration `json:"end_time"`
	Text           string        `json:"text"`
	TranslatedText string        `json:"translated_text,omitempty"`
	RefinedText    string        `json:"refined_text,omitempty"`
	Status         CueStatus     `json:"status"`
	Source         Source        `json:"source,omitempty"`
	ErrorMessage   string        `json:"error_message,omitempty"`
	Locked         bool          `json:"locked,omitempty"`
	Idioms         []string      `json:"idioms,omitempty"`
}

// DisplayText returns the text shown for a translated cue: refined output
// takes precedence over the first-pass translation.
func (c Cue) DisplayText() string {
	if c.RefinedText != "" {
		return c.RefinedText
	}
	return c.TranslatedText
}

// FileStatus summarizes a file's translation progress.
type FileStatus string

const (
	FileIdle        FileStatus = "idle"
	FileTranslating FileStatus = "translating"
	FileCompleted   FileStatus = "completed"
)

// File is a named ordered sequence of cues.
type File struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Cues     []Cue        `json:"cues"`
	Progress int          `json:"progress"`
	Status   FileStatus   `json:"status"`
	Language language.Tag `json:"-"`
	Format   string       `json:"format"`
}

// RecomputeProgress refreshes Progress (0-100) and Status from cue states.
// Must be called after every cue mutation.
func (f *File) RecomputeProgress() {
	if len(f.Cues) == 0 {
		f.Progress = 0
		f.Status = FileIdle
		return
	}

	completed := 0
	translating := false
	for _, cue := range f.Cues {
		switch cue.Status {
		case StatusCompleted, StatusTranslated:
			completed++
		case StatusTranslating, StatusAnalyzingIdioms:
			translating = true
		}
	}

	f.Progress = completed * 100 / len(f.Cues)
	switch {
	case completed == len(f.Cues):
		f.Status = FileCompleted
	case translating:
		f.Status = FileTranslating
	default:
		f.Status = FileIdle
	}
}

// CueByID returns a pointer into the file's cue slice, or nil.
func (f *File) CueByID(id string) *Cue {
	for i := range f.Cues {
		if f.Cues[i].ID == id {
			return &f.Cues[i]
		}
	}
	return nil
}

// Reader is the interface for reading subtitle files
type Reader interface {
	Read() (*File, error)
}

// Writer is the interface for writing subtitle files
type Writer interface {
	Write(path string, file *File) error
}
