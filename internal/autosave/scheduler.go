// Package autosave periodically snapshots the open workspace into the draft
// store so a crash or restart never loses more than one interval of edits.
package autosave

import (
	"context"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/subtitle-studio/workbench/internal/subtitle"
	"github.com/subtitle-studio/workbench/pkg/log"
)

// Snapshotter produces a deep copy of the current workspace state.
type Snapshotter interface {
	Snapshot() []subtitle.File
}

// DraftStore persists the single rolling draft.
type DraftStore interface {
	SaveDraft(ctx context.Context, files []subtitle.File) error
}

type Scheduler struct {
	source   Snapshotter
	store    DraftStore
	cronExpr string
	cron     *cron.Cron
}

func NewScheduler(
	source Snapshotter,
	store DraftStore,
	cronExpr string,
	cron *cron.Cron,
) Scheduler {
	return Scheduler{
		source:   source,
		store:    store,
		cronExpr: cronExpr,
		cron:     cron,
	}
}

var singleflightGroup singleflight.Group

// Schedule registers the autosave job. Overlapping triggers collapse into
// one run.
func (s Scheduler) Schedule(ctx context.Context) error {
	runFunc := func() {
		_, _, _ = singleflightGroup.Do("autosave", func() (any, error) {
			if err := s.RunOnce(ctx); err != nil {
				log.Error("Autosave failed: %v", err)
			}
			return nil, nil
		})
	}
	_, err := s.cron.AddFunc(s.cronExpr, runFunc)
	return err
}

// RunOnce saves the current snapshot immediately. Also used as the shutdown
// flush. An empty workspace is left alone so a fresh start never clobbers an
// existing draft.
func (s Scheduler) RunOnce(ctx context.Context) error {
	files := s.source.Snapshot()
	if len(files) == 0 {
		return nil
	}
	if err := s.store.SaveDraft(ctx, files); err != nil {
		return err
	}
	log.Debug("Autosaved draft with %d files", len(files))
	return nil
}
