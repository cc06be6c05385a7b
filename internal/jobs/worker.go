package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/farxc/orcamento-analytics/internal/logger"
)

// Worker wraps the asynq server and the optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *logger.Logger
}

type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

type WorkerConfig struct {
	RedisOpts asynq.RedisClientOpt
	Logger    *logger.Logger
	Handlers  []TaskHandler
	Cron      []CronRegistration
	Location  *time.Location
}

// NewWorker builds a server that processes one task at a time.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	bridge := asynqLogger{l: cfg.Logger}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{QueueDefault: 1},
		Logger:      bridge,
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, t *asynq.Task, err error) {
			cfg.Logger.Error("Worker", "Task failed: type=%s error=%v", t.Type(), err)
		}),
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		loc := cfg.Location
		if loc == nil {
			loc = time.UTC
		}
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: loc, Logger: bridge})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, fmt.Errorf("register %s %q: %w", entry.Task.Type(), entry.Spec, err)
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// Run processes tasks until ctx is cancelled. The server is started
// without its own signal handling; the caller owns shutdown via ctx.
func (w *Worker) Run(ctx context.Context) error {
	const component = "Worker"
	if w == nil {
		return errors.New("worker: not configured")
	}
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			w.server.Shutdown()
			return fmt.Errorf("start scheduler: %w", err)
		}
	}
	w.logger.Info(component, "Worker started: queue=%s", QueueDefault)

	<-ctx.Done()
	if w.scheduler != nil {
		w.scheduler.Shutdown()
	}
	w.server.Shutdown()
	w.logger.Info(component, "Worker stopped")
	return ctx.Err()
}

// Client submits ETL tasks to the queue.
type Client struct {
	client *asynq.Client
}

func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

func (c *Client) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return c.client.EnqueueContext(ctx, task, opts...)
}

func (c *Client) EnqueueLoadFacts(ctx context.Context, p LoadFactsPayload) (*asynq.TaskInfo, error) {
	task, err := NewLoadFactsTask(p)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
}

func (c *Client) EnqueueLoadDims(ctx context.Context, p LoadDimsPayload) (*asynq.TaskInfo, error) {
	task, err := NewLoadDimsTask(p)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
}

func (c *Client) Close() error {
	return c.client.Close()
}

// asynqLogger routes asynq's own messages through the component logger.
type asynqLogger struct {
	l *logger.Logger
}

const asynqComponent = "Asynq"

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug(asynqComponent, "%s", fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info(asynqComponent, "%s", fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn(asynqComponent, "%s", fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error(asynqComponent, "%s", fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) { a.l.Fatal(asynqComponent, "%s", fmt.Sprint(args...)) }
