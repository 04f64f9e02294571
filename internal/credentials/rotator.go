// Package credentials owns the API credential pool and the rotation cursor.
// Callers never touch the cursor directly; it advances only through Execute.
package credentials

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/subtitle-studio/workbench/internal/classify"
	"github.com/subtitle-studio/workbench/internal/config"
	"github.com/subtitle-studio/workbench/pkg/log"
)

// Task is one translation attempt against a single credential.
type Task func(ctx context.Context, credential string) error

// ExecError is the failure of an entire Execute call: the last classification
// seen after the pool was exhausted, or the stop that aborted it.
type ExecError struct {
	Classification classify.Classification
	Cause          error
}

func (e *ExecError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Classification.Action, e.Classification.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Classification.Action, e.Classification.Message)
}

func (e *ExecError) Unwrap() error { return e.Cause }

// Rotator selects which credential to use per attempt and rotates away from
// exhausted or invalid ones.
type Rotator struct {
	settings *config.SettingsStore

	mu       sync.Mutex
	disabled map[string]bool

	// overridable for deterministic tests
	randIntn func(n int) int
}

func NewRotator(settings *config.SettingsStore) *Rotator {
	return &Rotator{
		settings: settings,
		disabled: make(map[string]bool),
		randIntn: rand.Intn,
	}
}

// Execute runs task against the pool until one credential succeeds.
//
// wait_quota failures fail over to the next credential instantly; stop
// failures abort the whole call (unless bad-credential skipping is enabled,
// in which case the credential is blacklisted for the process lifetime and
// the rest of the pool is tried); any other failure advances to the next
// credential, bounded by the retry ceiling. On success the persisted cursor
// advances past the credential that succeeded.
func (r *Rotator) Execute(ctx context.Context, task Task) error {
	settings := r.settings.Get()

	pool := settings.Credentials
	if len(pool) == 0 {
		// A single empty credential lets the call fail fast with an
		// auth-style backend error instead of a special case here.
		pool = []string{""}
	}

	start := 0
	switch settings.Strategy {
	case config.StrategyRandom:
		start = r.randIntn(len(pool))
	default:
		start = ((settings.RotationCursor % len(pool)) + len(pool)) % len(pool)
	}

	retryBudget := settings.MaxRetries
	var last *ExecError

	for i := 0; i < len(pool); i++ {
		idx := (start + i) % len(pool)
		credential := pool[idx]

		if settings.SkipBadCredentials && r.isDisabled(credential) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return &ExecError{
				Classification: classify.Classify(err),
				Cause:          err,
			}
		}

		err := task(ctx, credential)
		if err == nil {
			r.settings.SetRotationCursor((idx + 1) % len(pool))
			return nil
		}

		result := classify.Classify(err)
		last = &ExecError{Classification: result, Cause: err}

		switch result.Action {
		case classify.ActionWaitQuota:
			// Quota exhaustion on one credential triggers instant failover
			// while untried credentials remain.
			log.Warn("Credential %d/%d quota exhausted, rotating", idx+1, len(pool))
			continue
		case classify.ActionStop:
			if settings.SkipBadCredentials {
				log.Warn("Credential %d/%d rejected, blacklisting for this session", idx+1, len(pool))
				r.disable(credential)
				continue
			}
			return last
		default:
			if retryBudget > 0 {
				retryBudget--
				if retryBudget == 0 {
					return last
				}
			}
			continue
		}
	}

	if last == nil {
		last = &ExecError{
			Classification: classify.Classification{
				Action:  classify.ActionRetry,
				Message: "no credential attempt completed",
			},
		}
	}
	return last
}

func (r *Rotator) isDisabled(credential string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disabled[credential]
}

func (r *Rotator) disable(credential string) {
	r.mu.Lock()
	r.disabled[credential] = true
	r.mu.Unlock()
}

// HasCredentials reports whether the user has configured any credential.
func (r *Rotator) HasCredentials() bool {
	return len(r.settings.Get().Credentials) > 0
}
