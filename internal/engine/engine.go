// Package engine is the translation queue engine: the state machine that
// drains the processing queue through the memory tiers and the translation
// backend, one cooperative tick at a time.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/subtitle-studio/workbench/internal/classify"
	"github.com/subtitle-studio/workbench/internal/config"
	"github.com/subtitle-studio/workbench/internal/credentials"
	"github.com/subtitle-studio/workbench/internal/phrasebook"
	"github.com/subtitle-studio/workbench/internal/project"
	"github.com/subtitle-studio/workbench/internal/subtitle"
	"github.com/subtitle-studio/workbench/internal/tm"
	"github.com/subtitle-studio/workbench/internal/translate"
	"github.com/subtitle-studio/workbench/internal/workspace"
	"github.com/subtitle-studio/workbench/pkg/log"
)

// State is the engine's externally visible mode.
type State string

const (
	StateIdle         State = "idle"
	StateRunning      State = "running"
	StateWaitingQuota State = "waiting_quota"
	StateHalted       State = "halted"
)

// Status is a point-in-time snapshot for the UI.
type Status struct {
	State         State  `json:"state"`
	QueueLength   int    `json:"queue_length"`
	WaitRemaining int64  `json:"wait_remaining_ms"`
	HaltMessage   string `json:"halt_message,omitempty"`
	HaltDetail    string `json:"halt_detail,omitempty"`
}

// memoryHitDelay reschedules a tick that needed no backend call.
const memoryHitDelay = 100 * time.Millisecond

type Engine struct {
	ws       *workspace.Workspace
	settings *config.SettingsStore
	memory   *tm.Memory
	rotator  *credentials.Rotator
	backend  translate.Backend
	project  *project.Builder
	activity *activityLog

	mu          sync.Mutex
	queue       *processingQueue
	running     bool
	inFlight    bool
	waitUntil   time.Time
	haltMessage string
	haltDetail  string
	timer       *time.Timer
}

func New(
	ws *workspace.Workspace,
	settings *config.SettingsStore,
	memory *tm.Memory,
	rotator *credentials.Rotator,
	backend translate.Backend,
	builder *project.Builder,
) *Engine {
	return &Engine{
		ws:       ws,
		settings: settings,
		memory:   memory,
		rotator:  rotator,
		backend:  backend,
		project:  builder,
		activity: newActivityLog(),
		queue:    newProcessingQueue(),
	}
}

// Start enqueues cue ids at the tail and sets the engine running. Calling
// with no ids resumes a paused engine.
func (e *Engine) Start(cueIDs []string) {
	e.mu.Lock()
	added := e.queue.PushTail(cueIDs...)
	e.running = true
	e.haltMessage = ""
	e.haltDetail = ""
	e.scheduleLocked(0)
	e.mu.Unlock()

	if added > 0 {
		e.activity.Append("Queued %d cues for translation", added)
	} else {
		e.activity.Append("Translation resumed")
	}
}

// Retry re-enters cues at the head of the queue for priority processing and
// moves them back to pending.
func (e *Engine) Retry(cueIDs []string) {
	if len(cueIDs) == 0 {
		return
	}
	e.ws.ResetToPending(cueIDs)

	e.mu.Lock()
	e.queue.PushHead(cueIDs...)
	e.running = true
	e.haltMessage = ""
	e.haltDetail = ""
	e.scheduleLocked(0)
	e.mu.Unlock()

	e.activity.Append("Retrying %d cues at queue head", len(cueIDs))
}

// Pause stops ticking at the next tick boundary. An in-flight backend call
// is not aborted; its cue mutations may still land, but the queue will not
// continue.
func (e *Engine) Pause() {
	e.mu.Lock()
	e.running = false
	if e.timer != nil {
		e.timer.Stop()
	}
	e.mu.Unlock()
	e.activity.Append("Translation paused")
}

// TryNow shortcuts a quota countdown to an immediate retry.
func (e *Engine) TryNow() {
	e.mu.Lock()
	if e.waitRemainingLocked() <= 0 {
		e.mu.Unlock()
		return
	}
	e.waitUntil = time.Now()
	e.scheduleLocked(0)
	e.mu.Unlock()
	e.activity.Append("Quota wait skipped by manual retry")
}

// Status returns a snapshot for rendering.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	status := Status{
		QueueLength:   e.queue.Len(),
		HaltMessage:   e.haltMessage,
		HaltDetail:    e.haltDetail,
		WaitRemaining: e.waitRemainingLocked().Milliseconds(),
	}
	switch {
	case !e.running && e.haltMessage != "":
		status.State = StateHalted
	case !e.running:
		status.State = StateIdle
	case status.WaitRemaining > 0:
		status.State = StateWaitingQuota
	default:
		status.State = StateRunning
	}
	return status
}

// Activity returns the rolling transition log.
func (e *Engine) Activity() []ActivityEntry {
	return e.activity.Entries()
}

func (e *Engine) waitRemainingLocked() time.Duration {
	remaining := time.Until(e.waitUntil)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// scheduleLocked arms the tick timer. Delays are deferred re-invocations,
// never busy-waits.
func (e *Engine) scheduleLocked(delay time.Duration) {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(delay, e.tick)
}

// tick runs one pass of the state machine. Ticks never overlap: the
// in-flight guard covers the blocking backend call and the timer covers
// everything else.
func (e *Engine) tick() {
	e.mu.Lock()

	if e.inFlight || !e.running {
		e.mu.Unlock()
		return
	}
	if remaining := e.waitRemainingLocked(); remaining > 0 {
		e.scheduleLocked(remaining)
		e.mu.Unlock()
		return
	}
	if e.queue.Len() == 0 {
		e.running = false
		e.mu.Unlock()
		e.activity.Append("Translation queue complete")
		log.Info("Translation queue complete")
		return
	}
	if !e.rotator.HasCredentials() {
		e.running = false
		e.haltMessage = "no API credentials configured"
		e.haltDetail = "add at least one credential in settings"
		e.mu.Unlock()
		e.activity.Append("Halted: no API credentials configured")
		return
	}

	settings := e.settings.Get()

	// Resolve the next batch, dropping stale ids whose file was removed.
	var selection batchSelection
	for {
		sel, stale := selectBatch(e.queue, e.ws, settings.BatchSize)
		if stale != "" {
			e.queue.Remove(stale)
			e.activity.Append("Dropped cue %s: file no longer open", stale)
			continue
		}
		selection = sel
		break
	}
	if len(selection.CueIDs) == 0 {
		// Stale drops drained the head; re-tick to hit the empty-queue path.
		e.scheduleLocked(time.Millisecond)
		e.mu.Unlock()
		return
	}

	pending := e.partitionMemoryHits(selection.CueIDs, settings)
	if len(pending) == 0 {
		e.scheduleLocked(memoryHitDelay)
		e.mu.Unlock()
		return
	}

	texts := make([]string, 0, len(pending))
	live := pending[:0]
	for _, id := range pending {
		cue, ok := e.ws.Cue(id)
		if !ok {
			e.queue.Remove(id)
			continue
		}
		live = append(live, id)
		texts = append(texts, cue.Text)
	}
	pending = live
	if len(pending) == 0 {
		e.scheduleLocked(time.Millisecond)
		e.mu.Unlock()
		return
	}
	e.ws.MarkTranslating(pending)
	e.inFlight = true
	e.mu.Unlock()

	results, execErr := e.callBackend(pending, texts, settings)

	e.mu.Lock()
	e.inFlight = false
	if execErr == nil {
		e.applyResultsLocked(pending, results, settings)
		if e.running {
			e.scheduleLocked(time.Duration(settings.RequestDelayMS) * time.Millisecond)
		}
		e.mu.Unlock()
		return
	}

	e.handleFailureLocked(pending, execErr)
	e.mu.Unlock()
}

// partitionMemoryHits applies the cache tiers to a batch and returns the ids
// that still need a backend call. Trust order: glossary, then translation
// memory, then the static phrasebook.
func (e *Engine) partitionMemoryHits(cueIDs []string, settings config.Settings) []string {
	lang := settings.TargetLanguage
	pending := make([]string, 0, len(cueIDs))

	for _, id := range cueIDs {
		cue, ok := e.ws.Cue(id)
		if !ok {
			e.queue.Remove(id)
			continue
		}

		var hit string
		var source subtitle.Source
		if translation, ok := settings.Glossary[strings.TrimSpace(cue.Text)]; ok {
			hit, source = translation, subtitle.SourceTM
		} else if translation, ok := e.memory.Get(lang, cue.Text); ok {
			hit, source = translation, subtitle.SourceTM
		} else if translation, ok := phrasebook.Lookup(lang, cue.Text); ok {
			hit, source = translation, subtitle.SourceCache
		}

		if hit == "" {
			pending = append(pending, id)
			continue
		}
		e.ws.ApplyTranslation(id, hit, source)
		e.queue.Remove(id)
		e.activity.Append("Cue %s served from %s", id, source)
	}
	return pending
}

// callBackend performs the batch or single translate through the rotator.
func (e *Engine) callBackend(cueIDs, texts []string, settings config.Settings) ([]string, error) {
	opts := translate.Options{
		Model:          settings.Model,
		TargetLanguage: settings.TargetLanguage,
		Style:          string(settings.Style),
		Glossary:       settings.Glossary,
		StyleGuide:     settings.StyleGuide,
		ProjectContext: e.project.ContextText(),
	}

	var results []string
	task := func(ctx context.Context, credential string) error {
		opts.Credential = credential

		if len(texts) > 1 {
			translated, err := e.backend.TranslateBatch(ctx, translate.BatchRequest{
				Texts:   texts,
				Options: opts,
			})
			if err != nil {
				return err
			}
			if len(translated) != len(texts) {
				// Never silently truncate or pad a short response.
				return fmt.Errorf("batch result mismatch: got %d translations for %d cues", len(translated), len(texts))
			}
			results = translated
			return nil
		}

		preceding, following := e.ws.ContextWindow(cueIDs[0], settings.ContextWindow)
		translated, err := e.backend.TranslateOne(ctx, translate.SingleRequest{
			Text:      texts[0],
			Preceding: preceding,
			Following: following,
			Options:   opts,
		})
		if err != nil {
			return err
		}
		results = []string{translated}
		return nil
	}

	if err := e.rotator.Execute(context.Background(), task); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Engine) applyResultsLocked(cueIDs, results []string, settings config.Settings) {
	for i, id := range cueIDs {
		if i >= len(results) {
			break
		}
		if sourceText, ok := e.ws.ApplyTranslation(id, results[i], subtitle.SourceAI); ok {
			e.memory.Put(settings.TargetLanguage, sourceText, results[i])
		} else {
			log.Debug("Cue %s locked by user edit, keeping manual text", id)
		}
	}
	e.queue.Remove(cueIDs...)
	e.activity.Append("Translated %d cues", len(cueIDs))
}

func (e *Engine) handleFailureLocked(cueIDs []string, err error) {
	result := classificationOf(err)

	switch result.Action {
	case classify.ActionWaitQuota:
		delay := result.Delay
		if delay <= 0 {
			delay = 60 * time.Second
		}
		e.waitUntil = time.Now().Add(delay)
		e.scheduleLocked(delay)
		e.activity.Append("Quota reached, waiting %s", delay.Round(time.Second))

	case classify.ActionStop:
		// Credential-level fault: leave the batch unresolved for manual
		// inspection instead of marking content errors.
		e.running = false
		e.haltMessage = result.Message
		e.haltDetail = result.Detail
		e.activity.Append("Halted: %s", result.Message)
		log.Error("Translation halted: %s (%s)", result.Message, result.Detail)

	default:
		// skip, or retries exhausted: record the failure and keep moving.
		e.ws.MarkError(cueIDs, result.Message)
		e.queue.Remove(cueIDs...)
		e.activity.Append("Marked %d cues failed: %s", len(cueIDs), result.Message)
		if e.running {
			delay := result.Delay
			if delay <= 0 {
				delay = time.Second
			}
			e.scheduleLocked(delay)
		}
	}
}

func classificationOf(err error) classify.Classification {
	var execErr *credentials.ExecError
	if errors.As(err, &execErr) {
		return execErr.Classification
	}
	return classify.Classify(err)
}
