package scan

import (
	"context"
	"sync"
	"time"

	"github.com/icecapdb/icecap/pkg/errors"
	"github.com/rs/zerolog"
)

// Package-specific error codes for the worker pool
var (
	WorkerPoolAlreadyRunning = errors.MustNewCode("scan.worker_pool.already_running")
	WorkerPoolNotRunning     = errors.MustNewCode("scan.worker_pool.not_running")
	WorkerPoolQueueFull      = errors.MustNewCode("scan.worker_pool.queue_full")
)

// Task interface that all worker pool tasks must implement
type Task interface {
	Execute(ctx context.Context) error
	GetID() string
}

// WorkerPool manages a pool of workers for concurrent task execution
type WorkerPool struct {
	maxWorkers int
	workers    []*worker
	taskQueue  chan Task
	logger     zerolog.Logger
	mu         sync.RWMutex
	running    bool
}

type worker struct {
	id        int
	taskQueue <-chan Task
	logger    zerolog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(maxWorkers int, logger zerolog.Logger) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	pool := &WorkerPool{
		maxWorkers: maxWorkers,
		taskQueue:  make(chan Task, maxWorkers*2),
		logger:     logger.With().Str("component", "scan-worker-pool").Logger(),
	}
	pool.workers = make([]*worker, maxWorkers)
	for i := 0; i < maxWorkers; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		pool.workers[i] = &worker{
			id:        i,
			taskQueue: pool.taskQueue,
			logger:    pool.logger.With().Int("worker_id", i).Logger(),
			ctx:       ctx,
			cancel:    cancel,
		}
	}
	return pool
}

// Start starts the worker pool
func (wp *WorkerPool) Start() error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.running {
		return errors.New(WorkerPoolAlreadyRunning, "worker pool is already running", nil)
	}
	for _, w := range wp.workers {
		go w.run()
	}
	wp.running = true
	wp.logger.Info().Int("max_workers", wp.maxWorkers).Msg("Worker pool started")
	return nil
}

// Stop stops the worker pool
func (wp *WorkerPool) Stop() error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if !wp.running {
		return errors.New(WorkerPoolNotRunning, "worker pool is not running", nil)
	}
	for _, w := range wp.workers {
		w.cancel()
	}
	close(wp.taskQueue)
	wp.running = false
	wp.logger.Info().Msg("Worker pool stopped")
	return nil
}

// Submit queues a task for execution
func (wp *WorkerPool) Submit(task Task) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if !wp.running {
		return errors.New(WorkerPoolNotRunning, "worker pool is not running", nil)
	}
	select {
	case wp.taskQueue <- task:
		wp.logger.Debug().Str("task_id", task.GetID()).Msg("Task submitted to worker pool")
		return nil
	default:
		return errors.New(WorkerPoolQueueFull, "worker pool queue is full", nil)
	}
}

func (w *worker) run() {
	w.logger.Debug().Msg("Worker started")
	for {
		select {
		case task, ok := <-w.taskQueue:
			if !ok {
				w.logger.Debug().Msg("Task queue closed, worker stopping")
				return
			}
			w.processTask(task)
		case <-w.ctx.Done():
			w.logger.Debug().Msg("Worker context cancelled, stopping")
			return
		}
	}
}

func (w *worker) processTask(task Task) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(w.ctx, 30*time.Second)
	defer cancel()

	if err := task.Execute(ctx); err != nil {
		w.logger.Error().Err(err).Str("task_id", task.GetID()).Msg("Task execution failed")
		return
	}
	w.logger.Debug().
		Str("task_id", task.GetID()).
		Dur("duration", time.Since(start)).
		Msg("Task completed")
}
