package project

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextTextComposesSetFields(t *testing.T) {
	builder := NewBuilder()
	builder.Set(Info{
		Title:    "Night Train",
		Genre:    []string{"thriller"},
		Cast:     []string{"E. Varga", "T. Aydin"},
		Synopsis: "Two strangers share a sleeper car.",
	})

	text := builder.ContextText()
	assert.Contains(t, text, "Night Train")
	assert.Contains(t, text, "thriller")
	assert.Contains(t, text, "sleeper car")
}

func TestContextTextEmptyWhenUnset(t *testing.T) {
	builder := NewBuilder()
	require.Empty(t, builder.ContextText())
}

func TestSetReplacesWholeInfo(t *testing.T) {
	builder := NewBuilder()
	builder.Set(Info{Title: "First", Notes: "keep honorifics"})
	builder.Set(Info{Title: "Second"})

	got := builder.Get()
	assert.Equal(t, "Second", got.Title)
	assert.Empty(t, got.Notes)
}
