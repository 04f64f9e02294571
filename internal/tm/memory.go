// Package tm is the translation memory: a persistent map from normalized
// source text to a previously accepted translation, consulted before any
// backend call.
package tm

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/subtitle-studio/workbench/pkg/log"
)

// Entry is one persisted memory row. Keys are language-scoped so the same
// source text can carry different target-language translations.
type Entry struct {
	Lang        string
	SourceKey   string
	Translation string
	UpdatedAt   time.Time
}

// Store persists memory entries.
type Store interface {
	LoadMemory(ctx context.Context) ([]Entry, error)
	UpsertMemory(ctx context.Context, entry Entry) error
}

// Normalize produces the lookup key for a source text: trimmed and
// lower-cased. Punctuation is kept; full sentences differing only in
// punctuation are not the same translation unit.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Memory is the in-process translation memory. The in-memory map is
// authoritative; durable writes are fire-and-forget so a storage fault never
// fails the translation path.
type Memory struct {
	store Store

	mu      sync.RWMutex
	entries map[string]string
}

// New hydrates the full mapping from the store. A load failure degrades to
// an empty memory rather than failing startup.
func New(ctx context.Context, store Store) *Memory {
	m := &Memory{
		store:   store,
		entries: make(map[string]string),
	}
	if store == nil {
		return m
	}

	loaded, err := store.LoadMemory(ctx)
	if err != nil {
		log.Error("Failed to load translation memory, starting empty: %v", err)
		return m
	}
	for _, entry := range loaded {
		m.entries[key(entry.Lang, entry.SourceKey)] = entry.Translation
	}
	log.Info("Translation memory hydrated with %d entries", len(m.entries))
	return m
}

// Get looks up the accepted translation for a source text.
func (m *Memory) Get(lang, text string) (string, bool) {
	normalized := Normalize(text)
	if normalized == "" {
		return "", false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	translation, ok := m.entries[key(lang, normalized)]
	return translation, ok
}

// Put records a translation. The in-memory copy updates synchronously so the
// very next lookup sees it; the durable write happens in the background.
func (m *Memory) Put(lang, text, translation string) {
	normalized := Normalize(text)
	if normalized == "" || translation == "" {
		return
	}

	m.mu.Lock()
	m.entries[key(lang, normalized)] = translation
	m.mu.Unlock()

	if m.store == nil {
		return
	}
	entry := Entry{
		Lang:        lang,
		SourceKey:   normalized,
		Translation: translation,
		UpdatedAt:   time.Now().UTC(),
	}
	go func() {
		if err := m.store.UpsertMemory(context.Background(), entry); err != nil {
			log.Error("Failed to persist translation memory entry: %v", err)
		}
	}()
}

// Len reports the number of entries held in memory.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func key(lang, normalized string) string {
	return strings.ToLower(lang) + "\x00" + normalized
}
