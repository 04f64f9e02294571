package persistence

import "time"

// LibraryEntry is one saved file in the named library.
type LibraryEntry struct {
	Name    string    `json:"name"`
	SavedAt time.Time `json:"saved_at"`
}

// DraftKey addresses the single autosaved working draft.
const DraftKey = "current"
