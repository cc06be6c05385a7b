package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/farxc/orcamento-analytics/internal/etl/dims"
	"github.com/farxc/orcamento-analytics/internal/etl/files"
	"github.com/farxc/orcamento-analytics/internal/etl/load"
	"github.com/farxc/orcamento-analytics/internal/etl/types"
	"github.com/farxc/orcamento-analytics/internal/logger"
	"github.com/farxc/orcamento-analytics/internal/state"
	"github.com/farxc/orcamento-analytics/internal/store"
)

// Inbox layout: dimension files go under DimsDir, handled files are moved to
// ProcessedDir or RejectedDir.
const (
	DimsDir      = "dims"
	ProcessedDir = "processed"
	RejectedDir  = "rejected"
)

// Enqueuer is the part of asynq.Client the inbox scan needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type Handlers struct {
	storage  *store.Storage
	state    *state.Store
	logger   *logger.Logger
	dims     *dims.Loader
	queue    Enqueuer
	loadOpts []load.Option
}

func NewHandlers(storage *store.Storage, st *state.Store, queue Enqueuer, appLogger *logger.Logger, loadOpts ...load.Option) *Handlers {
	return &Handlers{
		storage:  storage,
		state:    st,
		logger:   appLogger,
		dims:     dims.New(storage, st, appLogger),
		queue:    queue,
		loadOpts: append([]load.Option{load.WithHistory(st)}, loadOpts...),
	}
}

// TaskHandlers lists the handlers to mount on the worker.
func (h *Handlers) TaskHandlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskLoadFacts, Handler: h.HandleLoadFacts},
		{Type: TaskLoadDims, Handler: h.HandleLoadDims},
		{Type: TaskScanInbox, Handler: h.HandleScanInbox},
	}
}

// permanent marks errors a retry cannot fix.
func permanent(err error) bool {
	return errors.Is(err, load.ErrFileNotFound) ||
		errors.Is(err, load.ErrMissingColumn) ||
		errors.Is(err, load.ErrPeriodExists) ||
		errors.Is(err, dims.ErrFileNotFound) ||
		errors.Is(err, dims.ErrTypeMismatch) ||
		errors.Is(err, dims.ErrConfirmationRequired) ||
		errors.Is(err, dims.ErrNoKey) ||
		errors.Is(err, dims.ErrNotDimension) ||
		errors.Is(err, files.ErrUnsupportedFormat)
}

func (h *Handlers) HandleLoadFacts(ctx context.Context, t *asynq.Task) error {
	const component = "Jobs"
	var p LoadFactsPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("%s payload: %v: %w", TaskLoadFacts, err, asynq.SkipRetry)
	}
	kind, err := resolveKind(p)
	if err != nil {
		h.archive(p.Archive, p.File, RejectedDir)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	l := load.New(kind, h.storage, h.logger, h.loadOpts...)
	res, err := l.Load(ctx, p.File, load.Options{Overwrite: p.Overwrite, Recreate: p.Recreate, ChunkSize: p.ChunkSize})
	if err != nil {
		if permanent(err) {
			h.logger.Warn(component, "Fact load rejected: file=%s error=%v", p.File, err)
			h.archive(p.Archive, p.File, RejectedDir)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	h.logger.Info(component, "Fact load task done: file=%s table=%s inserted=%d incomplete=%t", p.File, res.Table, res.Inserted, res.Incomplete)
	h.archive(p.Archive, p.File, ProcessedDir)
	return nil
}

func resolveKind(p LoadFactsPayload) (types.FactKind, error) {
	if p.Kind != "" {
		return types.ParseFactKind(p.Kind)
	}
	if kind, ok := files.KindFromName(p.File); ok {
		return kind, nil
	}
	return 0, fmt.Errorf("cannot tell fact kind of %s", p.File)
}

func (h *Handlers) HandleLoadDims(ctx context.Context, t *asynq.Task) error {
	const component = "Jobs"
	var p LoadDimsPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("%s payload: %v: %w", TaskLoadDims, err, asynq.SkipRetry)
	}
	if p.Dir != "" {
		results, err := h.dims.LoadDirectory(ctx, p.Dir, p.Confirm)
		h.logger.Info(component, "Dimension directory task done: dir=%s files=%d", p.Dir, len(results))
		return err
	}
	res, err := h.dims.Load(ctx, dims.Request{File: p.File, Confirm: p.Confirm})
	if err != nil {
		if permanent(err) {
			h.logger.Warn(component, "Dimension load rejected: file=%s error=%v", p.File, err)
			h.archive(p.Archive, p.File, RejectedDir)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	h.logger.Info(component, "Dimension task done: file=%s table=%s rows=%d skipped=%t", p.File, res.Table, res.Rows, res.Skipped)
	h.archive(p.Archive, p.File, ProcessedDir)
	return nil
}

// HandleScanInbox extracts ZIP bundles, then enqueues one task per
// spreadsheet: files under dims/ become dimension loads, files whose name
// names a fact kind become fact loads. The task ID is the content hash, so
// a file still queued is not queued twice.
func (h *Handlers) HandleScanInbox(ctx context.Context, t *asynq.Task) error {
	const component = "Jobs"
	var p ScanInboxPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil || p.Dir == "" {
		return fmt.Errorf("%s payload: %w", TaskScanInbox, asynq.SkipRetry)
	}
	n, err := h.ScanInbox(ctx, p.Dir)
	if err != nil {
		return err
	}
	h.logger.Info(component, "Inbox scanned: dir=%s enqueued=%d", p.Dir, n)
	return nil
}

// ScanInbox does the work of HandleScanInbox and returns how many tasks were
// enqueued.
func (h *Handlers) ScanInbox(ctx context.Context, dir string) (int, error) {
	const component = "Jobs"
	if h.queue == nil {
		return 0, errors.New("inbox scan: no queue client")
	}
	if err := h.extractBundles(dir); err != nil {
		return 0, err
	}

	enqueued := 0
	enqueue := func(task *asynq.Task, file string) error {
		hash, err := files.HashFile(file)
		if err != nil {
			return err
		}
		_, err = h.queue.EnqueueContext(ctx, task, asynq.TaskID(task.Type()+":"+hash), asynq.MaxRetry(3))
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			h.logger.Debug(component, "Already queued: file=%s", file)
			return nil
		}
		if err == nil {
			enqueued++
		}
		return err
	}

	dimFiles, err := files.ListSupported(filepath.Join(dir, DimsDir))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return enqueued, err
	}
	for _, f := range dimFiles {
		task, err := NewLoadDimsTask(LoadDimsPayload{File: f, Confirm: true, Archive: true})
		if err != nil {
			return enqueued, err
		}
		if err := enqueue(task, f); err != nil {
			return enqueued, err
		}
	}

	factFiles, err := files.ListSupported(dir)
	if err != nil {
		return enqueued, err
	}
	for _, f := range factFiles {
		if _, ok := files.KindFromName(f); !ok {
			h.logger.Warn(component, "Unrecognized inbox file left in place: file=%s", f)
			continue
		}
		task, err := NewLoadFactsTask(LoadFactsPayload{File: f, Archive: true})
		if err != nil {
			return enqueued, err
		}
		if err := enqueue(task, f); err != nil {
			return enqueued, err
		}
	}
	return enqueued, nil
}

func (h *Handlers) extractBundles(dir string) error {
	const component = "Jobs"
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".zip") {
			continue
		}
		bundle := filepath.Join(dir, e.Name())
		res, err := files.Unzip(bundle, dir, h.logger)
		if err != nil {
			h.logger.Error(component, "Bundle extraction failed: file=%s error=%v", bundle, err)
			h.archive(true, bundle, RejectedDir)
			continue
		}
		h.logger.Info(component, "Bundle extracted: file=%s files=%d skipped=%d", bundle, len(res.Files), res.Skipped)
		h.archive(true, bundle, ProcessedDir)
	}
	return nil
}

// archive moves an inbox file into a sibling folder of its inbox root. Files
// under dims/ are archived next to dims/, not inside it.
func (h *Handlers) archive(enabled bool, file, folder string) {
	const component = "Jobs"
	if !enabled || file == "" {
		return
	}
	root := filepath.Dir(file)
	if filepath.Base(root) == DimsDir {
		root = filepath.Dir(root)
	}
	dest := filepath.Join(root, folder)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		h.logger.Error(component, "Cannot create archive folder: dir=%s error=%v", dest, err)
		return
	}
	if err := os.Rename(file, filepath.Join(dest, filepath.Base(file))); err != nil && !errors.Is(err, os.ErrNotExist) {
		h.logger.Error(component, "Cannot archive file: file=%s error=%v", file, err)
	}
}
