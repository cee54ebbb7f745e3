package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// TaskFunc is the signature for all background tasks. The context provided
// by the scheduler should be respected for cancellation.
type TaskFunc func(ctx context.Context) error

// Task describes one recurring background job.
type Task struct {
	Name     string
	Interval time.Duration
	Run      TaskFunc
}

// Scheduler manages recurring background tasks using the gocron library.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
	tasks     []Task
	mu        sync.Mutex
	running   bool
}

// NewScheduler creates a scheduler for the given tasks.
func NewScheduler(logger *slog.Logger, tasks []Task) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{
		scheduler: s,
		logger:    logger.With("component", "scheduler"),
		tasks:     tasks,
	}, nil
}

// Start registers all tasks and starts the scheduler's internal ticking.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	for _, task := range s.tasks {
		task := task
		_, err := s.scheduler.NewJob(
			gocron.DurationJob(task.Interval),
			gocron.NewTask(func(ctx context.Context) {
				start := time.Now()
				if err := task.Run(ctx); err != nil {
					s.logger.Error("Background task failed", "task_name", task.Name, "error", err)
					return
				}
				s.logger.Debug("Background task finished", "task_name", task.Name, "duration", time.Since(start))
			}, context.Background()),
			gocron.WithName(task.Name),
		)
		if err != nil {
			return fmt.Errorf("failed to schedule task %s: %w", task.Name, err)
		}
		s.logger.Info("Scheduled background task", "task_name", task.Name, "interval", task.Interval)
	}

	s.scheduler.Start()
	s.running = true
	return nil
}

// Stop gracefully stops the scheduler, waiting for running jobs to complete.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	err := s.scheduler.Shutdown()
	s.running = false
	if err != nil {
		return fmt.Errorf("failed to shut down scheduler: %w", err)
	}
	s.logger.Info("Scheduler stopped gracefully")
	return nil
}
