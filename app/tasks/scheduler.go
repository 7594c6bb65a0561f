package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// TaskSchedulerInterface is what main needs from the scheduler.
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}

var _ TaskSchedulerInterface = (*Scheduler)(nil)

// Config controls the poll loop and the daily digest timer.
type Config struct {
	PollInterval time.Duration
	WorkerCount  int
	DigestHour   int
	DigestMinute int
	Location     *time.Location
}

type Scheduler struct {
	poller       Poller
	digestRunner DigestRunner
	config       Config
	now          func() time.Time
	pollPending  atomic.Bool
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	taskQueue    chan TaskInterface
}

func NewScheduler(poller Poller, digestRunner DigestRunner, config Config) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	if config.WorkerCount < 1 {
		config.WorkerCount = 1
	}
	if config.Location == nil {
		config.Location = time.UTC
	}

	return &Scheduler{
		poller:       poller,
		digestRunner: digestRunner,
		config:       config,
		now:          time.Now,
		ctx:          ctx,
		cancel:       cancel,
		taskQueue:    make(chan TaskInterface, 300),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.config.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.config.PollInterval)
		defer ticker.Stop()

		s.enqueuePoll()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueuePoll()
			}
		}
	}()

	s.wg.Add(1)
	go s.runDailyDigest()

	slog.Info("Scheduler started",
		"workers", s.config.WorkerCount,
		"interval", s.config.PollInterval,
		"digest_at", fmt.Sprintf("%02d:%02d", s.config.DigestHour, s.config.DigestMinute),
		"timezone", s.config.Location.String())
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}

	select {
	case s.taskQueue <- task:
		return nil
	default:
		return fmt.Errorf("task queue is full")
	}
}

// enqueuePoll queues a poll pass unless one is already queued or running.
func (s *Scheduler) enqueuePoll() {
	if !s.pollPending.CompareAndSwap(false, true) {
		slog.Debug("Poll still in progress, skipping tick")
		return
	}

	task := NewPollSourcesTask(s.poller, func() { s.pollPending.Store(false) })
	if err := s.EnqueueTask(task); err != nil {
		s.pollPending.Store(false)
		slog.Warn("Failed to enqueue PollSourcesTask", "error", err)
	}
}

func (s *Scheduler) runDailyDigest() {
	defer s.wg.Done()

	for {
		now := s.now()
		next := nextDailyRun(now, s.config.DigestHour, s.config.DigestMinute, s.config.Location)
		slog.Debug("Next digest scheduled", "at", next)

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			date := s.now().UTC().Format("2006-01-02")
			if err := s.EnqueueTask(NewCompileDigestTask(date, s.digestRunner)); err != nil {
				slog.Warn("Failed to enqueue CompileDigestTask", "date", date, "error", err)
			}
		}
	}
}

// nextDailyRun returns the first hour:minute wall-clock time in loc that is
// strictly after now.
func nextDailyRun(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	// Tasks carry no deadline of their own; feed fetches are bounded by
	// FETCH_TIMEOUT and everything stops with the scheduler.
	err := task.Execute(s.ctx)

	if err != nil {
		slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

		if task.CanRetry() {
			task.IncrementRetryCount()
			retryDelay := retryDelay(task.GetRetryCount())

			slog.Warn("Task retry scheduled", "type", string(task.GetType()), "target", task.GetTarget(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

			s.wg.Add(1)
			go func() {
				defer s.wg.Done()

				timer := time.NewTimer(retryDelay)
				defer timer.Stop()

				select {
				case <-s.ctx.Done():
					slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
				case <-timer.C:
					if retryErr := s.EnqueueTask(task); retryErr != nil {
						slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
					}
				}
			}()
		} else if task.GetMaxRetries() > 0 {
			slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		}
	}
}

// retryDelay backs off exponentially from one second, capped at 30 seconds.
func retryDelay(retryCount int) time.Duration {
	delay := time.Duration(1<<uint(retryCount-1)) * time.Second
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}
	return delay
}
