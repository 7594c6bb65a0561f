package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/rss-digest/app/database"
)

// DigestRunner compiles, stores and delivers the digest for a date.
type DigestRunner interface {
	Run(ctx context.Context, date string) (*database.Digest, error)
}

type CompileDigestTask struct {
	Task
	Date   string
	runner DigestRunner
}

func NewCompileDigestTask(date string, runner DigestRunner) *CompileDigestTask {
	return &CompileDigestTask{
		Task:   NewTask(TaskTypeCompileDigest, date, DefaultMaxRetries),
		Date:   date,
		runner: runner,
	}
}

func (t *CompileDigestTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if _, err := t.runner.Run(ctx, t.Date); err != nil {
		return fmt.Errorf("failed to compile digest: %w", err)
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"date", t.Date,
		"duration", t.GetDuration())

	return nil
}
