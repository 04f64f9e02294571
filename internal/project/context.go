// Package project supplies free-text contextual hints that bias translation
// quality.
package project

import (
	"fmt"
	"strings"
	"sync"
)

// Info describes the media being subtitled.
type Info struct {
	Title    string   `json:"title"`
	Genre    []string `json:"genre"`
	Cast     []string `json:"cast"`
	Synopsis string   `json:"synopsis"`
	Notes    string   `json:"notes"`
}

// ContextText renders the info as the free-text block sent alongside every
// translation request.
func (i Info) ContextText() string {
	var b strings.Builder
	if i.Title != "" {
		b.WriteString(fmt.Sprintf("Title: %s\n", i.Title))
	}
	if len(i.Genre) > 0 {
		b.WriteString(fmt.Sprintf("Genre: %s\n", strings.Join(i.Genre, ", ")))
	}
	if len(i.Cast) > 0 {
		b.WriteString(fmt.Sprintf("Cast: %s\n", strings.Join(i.Cast, ", ")))
	}
	if i.Synopsis != "" {
		b.WriteString(fmt.Sprintf("Synopsis: %s\n", i.Synopsis))
	}
	if i.Notes != "" {
		b.WriteString(i.Notes)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Builder holds the active project info behind a read lock; the HTTP API
// writes it, the engine reads it per tick.
type Builder struct {
	mu   sync.RWMutex
	info Info
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) Set(info Info) {
	b.mu.Lock()
	b.info = info
	b.mu.Unlock()
}

func (b *Builder) Get() Info {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.info
}

// ContextText returns the current free-text context.
func (b *Builder) ContextText() string {
	return b.Get().ContextText()
}
