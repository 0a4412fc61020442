package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/z0w13/dmserv/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrTaskBusy is returned by RunNow while the task is already running
	ErrTaskBusy = errors.New("task is already running")

	// ErrTaskNotFound is returned by RunNow for an unregistered task
	ErrTaskNotFound = errors.New("task not found")
)

// Task is a periodic job run by the Scheduler
type Task interface {
	Name() string
	Interval() time.Duration
	Run(ctx context.Context) error
}

type scheduledTask struct {
	task    Task
	running atomic.Bool
}

// Scheduler runs each registered task on its own ticker.
//
// A task never overlaps with itself: a tick that fires while the previous
// run is still going is dropped rather than queued.
type Scheduler struct {
	mu      sync.RWMutex
	tasks   map[string]*scheduledTask
	order   []string
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewScheduler creates a new scheduler
func NewScheduler(m *metrics.Metrics, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		tasks:   make(map[string]*scheduledTask),
		metrics: m,
		logger:  logger,
	}
}

// Register adds a task. Registering after Start has no effect on running loops.
func (s *Scheduler) Register(task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.Name()]; !exists {
		s.order = append(s.order, task.Name())
	}
	s.tasks[task.Name()] = &scheduledTask{task: task}
}

// Tasks returns registered task names in registration order
func (s *Scheduler) Tasks() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Start runs all task loops until ctx is cancelled
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.RLock()
	tasks := make([]*scheduledTask, 0, len(s.order))
	for _, name := range s.order {
		tasks = append(tasks, s.tasks[name])
	}
	s.mu.RUnlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, st := range tasks {
		st := st
		g.Go(func() error {
			s.loop(ctx, st)
			return nil
		})
	}
	return g.Wait()
}

// RunNow runs a task immediately and waits for it to finish
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	st, ok := s.tasks[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}

	if !s.execute(ctx, st) {
		return ErrTaskBusy
	}
	return nil
}

func (s *Scheduler) loop(ctx context.Context, st *scheduledTask) {
	name := st.task.Name()
	s.logger.Info("Starting task",
		zap.String("task", name),
		zap.Duration("interval", st.task.Interval()))

	ticker := time.NewTicker(st.task.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Task stopped", zap.String("task", name))
			return
		case <-ticker.C:
			s.execute(ctx, st)

			// Drop a tick that queued up while the run was in progress
			select {
			case <-ticker.C:
				s.metrics.RecordTaskCoalesced(name)
			default:
			}
		}
	}
}

// execute runs the task unless it is already running, reporting whether it ran
func (s *Scheduler) execute(ctx context.Context, st *scheduledTask) (ran bool) {
	name := st.task.Name()
	if !st.running.CompareAndSwap(false, true) {
		s.metrics.RecordTaskCoalesced(name)
		s.logger.Debug("Task already running, skipping", zap.String("task", name))
		return false
	}
	defer st.running.Store(false)
	ran = true

	defer func() {
		if r := recover(); r != nil {
			s.metrics.RecordTaskRun(name, "panic")
			s.logger.Error("Task panicked",
				zap.String("task", name),
				zap.Any("panic", r))
		}
	}()

	s.logger.Debug("Executing task", zap.String("task", name))
	start := time.Now()

	if err := st.task.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.metrics.RecordTaskRun(name, "failed")
		s.logger.Error("Error executing task",
			zap.String("task", name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return true
	}

	s.metrics.RecordTaskRun(name, "success")
	s.logger.Debug("Executed task",
		zap.String("task", name),
		zap.Duration("duration", time.Since(start)))
	return true
}
