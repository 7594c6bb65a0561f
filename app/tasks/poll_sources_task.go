package tasks

import (
	"context"
	"log/slog"

	"github.com/lysyi3m/rss-digest/app/sources"
)

// Poller fetches every source that is due.
type Poller interface {
	PollDue(ctx context.Context) (sources.PollResult, error)
}

// PollSourcesTask runs one pass over the due sources. It is never retried:
// a source that failed is due again after its interval.
type PollSourcesTask struct {
	Task
	poller Poller
	done   func()
}

func NewPollSourcesTask(poller Poller, done func()) *PollSourcesTask {
	return &PollSourcesTask{
		Task:   NewTask(TaskTypePollSources, "due_sources", 0),
		poller: poller,
		done:   done,
	}
}

func (t *PollSourcesTask) Execute(ctx context.Context) error {
	if t.done != nil {
		defer t.done()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	result, err := t.poller.PollDue(ctx)
	if err != nil {
		return err
	}

	if result.Due == 0 {
		slog.Debug("No sources due", "type", t.GetType())
		return nil
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"duration", t.GetDuration(),
		"due", result.Due,
		"failed", result.Failed,
		"new", result.Inserted)

	return nil
}
