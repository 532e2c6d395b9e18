package syncengine

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Progress reports incremental status for a single completed action, so a
// caller can render a progress bar or log line without the core knowing
// anything about how progress is displayed.
type Progress struct {
	Action     SyncAction
	Err        error
	Completed  int
	Total      int
}

// Engine executes a sync plan with a bounded number of concurrent workers.
// Error aggregation and progress reporting are the engine's job; deciding
// what to do is ComputeDiff's, and connection reuse is the Mutator's (see
// BlockMutator and Pool).
type Engine struct {
	Mutator  Mutator
	Parallel int
	DryRun   bool
	OnProgress func(Progress)
	Logger   zerolog.Logger
}

// FileError pairs a failed action with the error that caused it, so a run
// covering many files can report all of its failures instead of aborting
// on the first one.
type FileError struct {
	Action SyncAction
	Err    error
}

func (e *FileError) Error() string {
	return errors.Wrapf(e.Err, "%v %s", e.Action.Kind, e.Action.Path).Error()
}

// Run executes every action in plan, returning the aggregated set of
// per-action failures (nil if every action succeeded). A failure on one
// file never prevents other files from being processed: each worker
// isolates its own action's error.
func (e *Engine) Run(ctx context.Context, plan []SyncAction) []*FileError {
	if e.DryRun {
		for i, action := range plan {
			e.report(Progress{Action: action, Completed: i + 1, Total: len(plan)})
		}
		return nil
	}

	parallel := e.Parallel
	if parallel <= 0 {
		parallel = 1
	}
	sem := semaphore.NewWeighted(int64(parallel))

	var (
		mu        sync.Mutex
		errs      []*FileError
		completed int
	)

	var wg sync.WaitGroup
	for _, action := range plan {
		action := action

		// Directory creation and deletion are cheap and must be strictly
		// ordered relative to the files inside them, so they run inline
		// rather than being handed to the pool; only Upload actions are
		// fanned out across workers.
		if action.Kind != ActionUpload {
			err := e.apply(ctx, action)
			if err != nil {
				mu.Lock()
				errs = append(errs, &FileError{Action: action, Err: err})
				mu.Unlock()
			}
			mu.Lock()
			completed++
			e.report(Progress{Action: action, Err: err, Completed: completed, Total: len(plan)})
			mu.Unlock()
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			wrapped := errors.Wrap(err, "syncengine: acquiring worker slot")
			mu.Lock()
			errs = append(errs, &FileError{Action: action, Err: wrapped})
			completed++
			e.report(Progress{Action: action, Err: wrapped, Completed: completed, Total: len(plan)})
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			err := e.apply(ctx, action)

			mu.Lock()
			if err != nil {
				errs = append(errs, &FileError{Action: action, Err: err})
			}
			completed++
			e.report(Progress{Action: action, Err: err, Completed: completed, Total: len(plan)})
			mu.Unlock()
		}()
	}

	wg.Wait()
	return errs
}

func (e *Engine) apply(ctx context.Context, action SyncAction) error {
	switch action.Kind {
	case ActionMkDir:
		if err := e.Mutator.MkDir(ctx, action.Path); err != nil {
			return err
		}
		return e.setMetadata(ctx, action)
	case ActionDelete:
		return e.Mutator.Delete(ctx, action.Path, action.IsDir)
	case ActionUpload:
		if err := e.Mutator.Upload(ctx, action.Path); err != nil {
			return err
		}
		return e.setMetadata(ctx, action)
	default:
		return errors.Errorf("syncengine: unknown action kind %v", action.Kind)
	}
}

// setMetadata propagates the source entry's mtime/mode after its content
// lands on the destination. A failure here is logged but does not fail the
// action overall: the file's content is already correct, and a stale
// mtime/mode is a cosmetic problem, not a correctness one.
func (e *Engine) setMetadata(ctx context.Context, action SyncAction) error {
	if action.ModTime == 0 {
		return nil
	}
	if err := e.Mutator.SetMetadata(ctx, action.Path, action.ModTime, action.Mode); err != nil {
		e.Logger.Warn().Err(err).Str("path", action.Path).Msg("syncengine: setting metadata failed")
	}
	return nil
}

func (e *Engine) report(p Progress) {
	if e.OnProgress != nil {
		e.OnProgress(p)
	}
}
