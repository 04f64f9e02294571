package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subtitle-studio/workbench/internal/config"
	"github.com/subtitle-studio/workbench/internal/credentials"
	"github.com/subtitle-studio/workbench/internal/project"
	"github.com/subtitle-studio/workbench/internal/subtitle"
	"github.com/subtitle-studio/workbench/internal/tm"
	"github.com/subtitle-studio/workbench/internal/translate"
	"github.com/subtitle-studio/workbench/internal/workspace"
)

type recordingBackend struct {
	mu      sync.Mutex
	singles []translate.SingleRequest
	batches []translate.BatchRequest
	oneFn   func(translate.SingleRequest) (string, error)
	batchFn func(translate.BatchRequest) ([]string, error)
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{
		oneFn: func(req translate.SingleRequest) (string, error) {
			return "tr:" + req.Text, nil
		},
		batchFn: func(req translate.BatchRequest) ([]string, error) {
			out := make([]string, len(req.Texts))
			for i, text := range req.Texts {
				out[i] = "tr:" + text
			}
			return out, nil
		},
	}
}

func (b *recordingBackend) TranslateOne(_ context.Context, req translate.SingleRequest) (string, error) {
	b.mu.Lock()
	b.singles = append(b.singles, req)
	fn := b.oneFn
	b.mu.Unlock()
	return fn(req)
}

func (b *recordingBackend) TranslateBatch(_ context.Context, req translate.BatchRequest) ([]string, error) {
	b.mu.Lock()
	b.batches = append(b.batches, req)
	fn := b.batchFn
	b.mu.Unlock()
	return fn(req)
}

func (b *recordingBackend) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.singles) + len(b.batches)
}

func (b *recordingBackend) setBatchFn(fn func(translate.BatchRequest) ([]string, error)) {
	b.mu.Lock()
	b.batchFn = fn
	b.mu.Unlock()
}

type apiStatusError struct {
	status int
	body   string
}

func (e *apiStatusError) Error() string        { return fmt.Sprintf("api error %d", e.status) }
func (e *apiStatusError) HTTPStatus() int      { return e.status }
func (e *apiStatusError) ResponseBody() []byte { return []byte(e.body) }

func testSettingsStore(t *testing.T, mutate func(*config.Settings)) *config.SettingsStore {
	t.Helper()

	settings := config.DefaultSettings()
	settings.Credentials = []string{"key-1"}
	settings.RequestDelayMS = 0
	settings.BatchSize = 2
	if mutate != nil {
		mutate(&settings)
	}

	store, err := config.NewSettingsStore(filepath.Join(t.TempDir(), "settings.json"), settings)
	require.NoError(t, err)
	return store
}

func fixtureFile(name string, texts ...string) (*subtitle.File, []string) {
	file := &subtitle.File{
		ID:     uuid.NewString(),
		Name:   name,
		Status: subtitle.FileIdle,
		Format: "srt",
	}
	ids := make([]string, len(texts))
	for i, text := range texts {
		cue := subtitle.Cue{
			ID:        uuid.NewString(),
			Index:     i + 1,
			StartTime: time.Duration(i) * time.Second,
			EndTime:   time.Duration(i)*time.Second + 900*time.Millisecond,
			Text:      text,
			Status:    subtitle.StatusPending,
		}
		ids[i] = cue.ID
		file.Cues = append(file.Cues, cue)
	}
	return file, ids
}

func newTestEngine(t *testing.T, backend translate.Backend, mutate func(*config.Settings)) (*Engine, *workspace.Workspace, *tm.Memory) {
	t.Helper()

	ws := workspace.New()
	store := testSettingsStore(t, mutate)
	memory := tm.New(context.Background(), nil)
	rotator := credentials.NewRotator(store)
	return New(ws, store, memory, rotator, backend, project.NewBuilder()), ws, memory
}

func requireCueStatus(t *testing.T, ws *workspace.Workspace, cueID string, want subtitle.CueStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		cue, ok := ws.Cue(cueID)
		return ok && cue.Status == want
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStartDrainsQueueThroughBackend(t *testing.T) {
	backend := newRecordingBackend()
	eng, ws, memory := newTestEngine(t, backend, nil)

	file, ids := fixtureFile("movie.srt", "Hello there.", "How are you?")
	ws.AddFile(file)

	eng.Start(ids)

	require.Eventually(t, func() bool {
		return eng.Status().State == StateIdle
	}, 2*time.Second, 10*time.Millisecond)

	cue, ok := ws.Cue(ids[0])
	require.True(t, ok)
	assert.Equal(t, subtitle.StatusCompleted, cue.Status)
	assert.Equal(t, "tr:Hello there.", cue.TranslatedText)
	assert.Equal(t, subtitle.SourceAI, cue.Source)

	got, ok := ws.FileByID(file.ID)
	require.True(t, ok)
	assert.Equal(t, 100, got.Progress)

	// Successful results feed the memory for future lookups.
	translation, ok := memory.Get("tr", "Hello there.")
	require.True(t, ok)
	assert.Equal(t, "tr:Hello there.", translation)

	assert.Equal(t, 1, backend.calls())
	assert.Equal(t, 0, eng.Status().QueueLength)
}

func TestMemoryTiersSkipBackend(t *testing.T) {
	backend := newRecordingBackend()
	eng, ws, memory := newTestEngine(t, backend, func(s *config.Settings) {
		s.Glossary = map[string]string{"Nexus Protocol": "Nexus Protokolu"}
	})

	memory.Put("tr", "Remembered line.", "Hatirlanan satir.")

	file, ids := fixtureFile("movie.srt", "Nexus Protocol", "Remembered line.", "Yes.")
	ws.AddFile(file)

	eng.Start(ids)

	require.Eventually(t, func() bool {
		return eng.Status().State == StateIdle
	}, 2*time.Second, 10*time.Millisecond)

	glossaryCue, _ := ws.Cue(ids[0])
	assert.Equal(t, "Nexus Protokolu", glossaryCue.TranslatedText)
	assert.Equal(t, subtitle.SourceTM, glossaryCue.Source)

	memoryCue, _ := ws.Cue(ids[1])
	assert.Equal(t, "Hatirlanan satir.", memoryCue.TranslatedText)
	assert.Equal(t, subtitle.SourceTM, memoryCue.Source)

	phraseCue, _ := ws.Cue(ids[2])
	assert.Equal(t, "Evet.", phraseCue.TranslatedText)
	assert.Equal(t, subtitle.SourceCache, phraseCue.Source)

	assert.Zero(t, backend.calls(), "fully cached batch must not reach the backend")
}

func TestSecondPassServedFromMemory(t *testing.T) {
	backend := newRecordingBackend()
	eng, ws, _ := newTestEngine(t, backend, nil)

	first, firstIDs := fixtureFile("one.srt", "Good morning.")
	ws.AddFile(first)
	eng.Start(firstIDs)

	requireCueStatus(t, ws, firstIDs[0], subtitle.StatusCompleted)
	require.Equal(t, 1, backend.calls())

	// Same source text in a different file is served from memory.
	second, secondIDs := fixtureFile("two.srt", "good morning.")
	ws.AddFile(second)
	eng.Start(secondIDs)

	requireCueStatus(t, ws, secondIDs[0], subtitle.StatusCompleted)
	cue, _ := ws.Cue(secondIDs[0])
	assert.Equal(t, subtitle.SourceTM, cue.Source)
	assert.Equal(t, "tr:Good morning.", cue.TranslatedText)
	assert.Equal(t, 1, backend.calls())
}

func TestBatchMismatchMarksCuesFailed(t *testing.T) {
	backend := newRecordingBackend()
	backend.setBatchFn(func(req translate.BatchRequest) ([]string, error) {
		return []string{"only one"}, nil
	})
	eng, ws, _ := newTestEngine(t, backend, nil)

	file, ids := fixtureFile("movie.srt", "Line one.", "Line two.")
	ws.AddFile(file)

	eng.Start(ids)

	requireCueStatus(t, ws, ids[0], subtitle.StatusError)
	requireCueStatus(t, ws, ids[1], subtitle.StatusError)

	cue, _ := ws.Cue(ids[0])
	assert.Empty(t, cue.TranslatedText, "a short response must never be applied partially")
	assert.NotEmpty(t, cue.ErrorMessage)
	assert.Equal(t, 0, eng.Status().QueueLength)
}

func TestQuotaWaitThenTryNow(t *testing.T) {
	backend := newRecordingBackend()
	backend.setBatchFn(func(req translate.BatchRequest) ([]string, error) {
		return nil, &apiStatusError{status: 429, body: `{"error":{"code":429,"status":"RESOURCE_EXHAUSTED"}}`}
	})
	eng, ws, _ := newTestEngine(t, backend, nil)

	file, ids := fixtureFile("movie.srt", "Line one.", "Line two.")
	ws.AddFile(file)

	eng.Start(ids)

	require.Eventually(t, func() bool {
		return eng.Status().State == StateWaitingQuota
	}, 2*time.Second, 10*time.Millisecond)

	status := eng.Status()
	assert.Positive(t, status.WaitRemaining)
	assert.Equal(t, 2, status.QueueLength, "quota-limited cues stay queued")
	cue, _ := ws.Cue(ids[0])
	assert.Equal(t, subtitle.StatusTranslating, cue.Status)

	backend.setBatchFn(func(req translate.BatchRequest) ([]string, error) {
		out := make([]string, len(req.Texts))
		for i, text := range req.Texts {
			out[i] = "tr:" + text
		}
		return out, nil
	})
	eng.TryNow()

	requireCueStatus(t, ws, ids[0], subtitle.StatusCompleted)
	requireCueStatus(t, ws, ids[1], subtitle.StatusCompleted)
}

func TestAuthErrorHaltsWithoutMarkingCues(t *testing.T) {
	backend := newRecordingBackend()
	backend.setBatchFn(func(req translate.BatchRequest) ([]string, error) {
		return nil, &apiStatusError{status: 401, body: `{"error":{"code":401,"status":"UNAUTHENTICATED"}}`}
	})
	eng, ws, _ := newTestEngine(t, backend, nil)

	file, ids := fixtureFile("movie.srt", "Line one.", "Line two.")
	ws.AddFile(file)

	eng.Start(ids)

	require.Eventually(t, func() bool {
		return eng.Status().State == StateHalted
	}, 2*time.Second, 10*time.Millisecond)

	status := eng.Status()
	assert.NotEmpty(t, status.HaltMessage)
	assert.Equal(t, 2, status.QueueLength, "halted batch stays queued for inspection")

	cue, _ := ws.Cue(ids[0])
	assert.NotEqual(t, subtitle.StatusError, cue.Status, "credential faults are not content errors")
}

func TestEmptyQueueLogsCompletionOnce(t *testing.T) {
	backend := newRecordingBackend()
	eng, ws, _ := newTestEngine(t, backend, nil)

	file, ids := fixtureFile("movie.srt", "Hello.")
	ws.AddFile(file)

	eng.Start(ids)

	require.Eventually(t, func() bool {
		return eng.Status().State == StateIdle
	}, 2*time.Second, 10*time.Millisecond)

	// Repeat wake-ups after the queue drained must not repeat the line.
	eng.TryNow()
	time.Sleep(50 * time.Millisecond)

	completions := 0
	for _, entry := range eng.Activity() {
		if entry.Message == "Translation queue complete" {
			completions++
		}
	}
	assert.Equal(t, 1, completions)
}

func TestBatchesAreContiguousPerFile(t *testing.T) {
	backend := newRecordingBackend()
	eng, ws, _ := newTestEngine(t, backend, func(s *config.Settings) {
		s.BatchSize = 2
	})

	fileA, aIDs := fixtureFile("a.srt", "A one.", "A two.")
	fileB, bIDs := fixtureFile("b.srt", "B one.")
	ws.AddFile(fileA)
	ws.AddFile(fileB)

	// Interleaved enqueue order: the selector must not mix files in a batch.
	eng.Start([]string{aIDs[0], bIDs[0], aIDs[1]})

	require.Eventually(t, func() bool {
		return eng.Status().State == StateIdle
	}, 2*time.Second, 10*time.Millisecond)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.singles, 3)
	assert.Equal(t, "A one.", backend.singles[0].Text)
	assert.Equal(t, "B one.", backend.singles[1].Text)
	assert.Equal(t, "A two.", backend.singles[2].Text)
	assert.Empty(t, backend.batches)
}

func TestPauseHoldsQueueWhileInFlightResultLands(t *testing.T) {
	gate := make(chan struct{})
	backend := newRecordingBackend()
	backend.oneFn = func(req translate.SingleRequest) (string, error) {
		<-gate
		return "tr:" + req.Text, nil
	}
	eng, ws, _ := newTestEngine(t, backend, func(s *config.Settings) {
		s.BatchSize = 1
	})

	file, ids := fixtureFile("movie.srt", "Line one.", "Line two.")
	ws.AddFile(file)

	eng.Start(ids)

	require.Eventually(t, func() bool {
		cue, ok := ws.Cue(ids[0])
		return ok && cue.Status == subtitle.StatusTranslating
	}, 2*time.Second, 10*time.Millisecond)

	eng.Pause()
	close(gate)

	// The in-flight result still lands, but the queue does not advance.
	requireCueStatus(t, ws, ids[0], subtitle.StatusCompleted)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 1, backend.calls())
	cue, _ := ws.Cue(ids[1])
	assert.NotEqual(t, subtitle.StatusCompleted, cue.Status)
	assert.Equal(t, StateIdle, eng.Status().State)
}

func TestRetryPushesToQueueHead(t *testing.T) {
	backend := newRecordingBackend()
	eng, ws, _ := newTestEngine(t, backend, func(s *config.Settings) {
		s.BatchSize = 1
	})

	file, ids := fixtureFile("movie.srt", "Line one.", "Line two.")
	ws.AddFile(file)

	ws.MarkError([]string{ids[1]}, "previous failure")
	eng.Retry([]string{ids[1]})

	requireCueStatus(t, ws, ids[1], subtitle.StatusCompleted)
	cue, _ := ws.Cue(ids[1])
	assert.Equal(t, "tr:Line two.", cue.TranslatedText)
	assert.Empty(t, cue.ErrorMessage)
}

func TestStaleCueDroppedWhenFileRemoved(t *testing.T) {
	backend := newRecordingBackend()
	eng, ws, _ := newTestEngine(t, backend, nil)

	file, ids := fixtureFile("movie.srt", "Hello.")
	keep, keepIDs := fixtureFile("keep.srt", "Good morning.")
	ws.AddFile(file)
	ws.AddFile(keep)

	ws.RemoveFile(file.ID)
	eng.Start(append(ids, keepIDs...))

	requireCueStatus(t, ws, keepIDs[0], subtitle.StatusCompleted)
	require.Eventually(t, func() bool {
		return eng.Status().State == StateIdle
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, eng.Status().QueueLength)
}

func TestLockedCueKeepsManualTextOnLateResult(t *testing.T) {
	gate := make(chan struct{})
	backend := newRecordingBackend()
	backend.oneFn = func(req translate.SingleRequest) (string, error) {
		<-gate
		return "tr:" + req.Text, nil
	}
	eng, ws, _ := newTestEngine(t, backend, nil)

	file, ids := fixtureFile("movie.srt", "Hello.")
	ws.AddFile(file)

	eng.Start(ids)
	require.Eventually(t, func() bool {
		cue, ok := ws.Cue(ids[0])
		return ok && cue.Status == subtitle.StatusTranslating
	}, 2*time.Second, 10*time.Millisecond)

	_, err := ws.EditCue(file.ID, ids[0], "Manuel ceviri.")
	require.NoError(t, err)
	close(gate)

	require.Eventually(t, func() bool {
		return eng.Status().State == StateIdle
	}, 2*time.Second, 10*time.Millisecond)

	cue, _ := ws.Cue(ids[0])
	assert.Equal(t, "Manuel ceviri.", cue.TranslatedText)
	assert.Equal(t, subtitle.SourceUser, cue.Source)
}
