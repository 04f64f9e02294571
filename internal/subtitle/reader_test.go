package subtitle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBytesReader_ParsesCues(t *testing.T) {
	data := []byte("1\n00:00:01,000 --> 00:00:02,500\nHello\n\n2\n00:00:03,000 --> 00:00:04,000\nWorld\nsecond line\n")

	file, err := NewBytesReader("sample.srt", data).Read()
	require.NoError(t, err)
	require.Len(t, file.Cues, 2)

	assert.Equal(t, "Hello", file.Cues[0].Text)
	assert.Equal(t, 1, file.Cues[0].Index)
	assert.Equal(t, time.Second, file.Cues[0].StartTime)
	assert.Equal(t, 2500*time.Millisecond, file.Cues[0].EndTime)
	assert.Equal(t, StatusPending, file.Cues[0].Status)
	assert.NotEmpty(t, file.Cues[0].ID)

	assert.Equal(t, "World\nsecond line", file.Cues[1].Text)
	assert.Equal(t, "SRT", file.Format)
	assert.Equal(t, "sample.srt", file.Name)
	assert.NotEqual(t, file.Cues[0].ID, file.Cues[1].ID)
}

func TestBytesReader_RejectsNonSRT(t *testing.T) {
	_, err := NewBytesReader("sample.ass", []byte("x")).Read()
	require.Error(t, err)
}

func TestBytesReader_MissingTrailingBlankLine(t *testing.T) {
	data := []byte("1\n00:00:01,000 --> 00:00:02,000\nlast cue without newline")

	file, err := NewBytesReader("tail.srt", data).Read()
	require.NoError(t, err)
	require.Len(t, file.Cues, 1)
	assert.Equal(t, "last cue without newline", file.Cues[0].Text)
}

func TestFile_RecomputeProgress(t *testing.T) {
	file := &File{Cues: []Cue{
		{ID: "a", Status: StatusCompleted},
		{ID: "b", Status: StatusPending},
		{ID: "c", Status: StatusTranslating},
		{ID: "d", Status: StatusError},
	}}

	file.RecomputeProgress()
	assert.Equal(t, 25, file.Progress)
	assert.Equal(t, FileTranslating, file.Status)

	for i := range file.Cues {
		file.Cues[i].Status = StatusCompleted
	}
	file.RecomputeProgress()
	assert.Equal(t, 100, file.Progress)
	assert.Equal(t, FileCompleted, file.Status)
}

func TestRender_PrefersRefinedText(t *testing.T) {
	file := &File{Cues: []Cue{
		{Index: 1, StartTime: time.Second, EndTime: 2 * time.Second, Text: "orig", TranslatedText: "first pass", RefinedText: "refined"},
		{Index: 2, StartTime: 3 * time.Second, EndTime: 4 * time.Second, Text: "untranslated"},
	}}

	out, err := Render(file)
	require.NoError(t, err)

	rendered := string(out)
	assert.Contains(t, rendered, "refined")
	assert.NotContains(t, rendered, "first pass")
	assert.Contains(t, rendered, "untranslated")
	assert.Contains(t, rendered, "00:00:01,000 --> 00:00:02,000")
}
