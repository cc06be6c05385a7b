// Package load ingests fact spreadsheets into period-partitioned tables.
package load

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/farxc/orcamento-analytics/internal/etl/files"
	"github.com/farxc/orcamento-analytics/internal/etl/parser"
	"github.com/farxc/orcamento-analytics/internal/etl/types"
	"github.com/farxc/orcamento-analytics/internal/logger"
	"github.com/farxc/orcamento-analytics/internal/state"
	"github.com/farxc/orcamento-analytics/internal/store"
)

var (
	ErrFileNotFound  = errors.New("input file not found")
	ErrMissingColumn = errors.New("missing required column")
	ErrPeriodExists  = errors.New("period already loaded")
)

// Invalidator drops cached reports after the fact tables change.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Recorder receives load outcomes for metrics.
type Recorder interface {
	ObserveLoad(table string, inserted, failedRows int64, failedChunks int, elapsed time.Duration)
}

type Options struct {
	// Overwrite deletes the file's periods before inserting them.
	Overwrite bool
	// Recreate drops and recreates the table before loading.
	Recreate bool
	// ChunkSize overrides the fact kind's default.
	ChunkSize int
}

type Result struct {
	Table        string   `json:"table"`
	Inserted     int64    `json:"inserted"`
	Deleted      int64    `json:"deleted"`
	FailedChunks int      `json:"failed_chunks"`
	FailedRows   int64    `json:"failed_rows"`
	Periods      []string `json:"periods_loaded"`
	// Incomplete is set when a chunk failed or the job was cancelled, so the
	// table may hold a strict subset of the file's rows.
	Incomplete bool          `json:"incomplete"`
	Elapsed    time.Duration `json:"elapsed"`
}

type Loader struct {
	kind     types.FactKind
	storage  *store.Storage
	logger   *logger.Logger
	history  *state.Store
	cache    Invalidator
	recorder Recorder
}

type Option func(*Loader)

func WithHistory(h *state.Store) Option { return func(l *Loader) { l.history = h } }

func WithInvalidator(c Invalidator) Option { return func(l *Loader) { l.cache = c } }

func WithRecorder(r Recorder) Option { return func(l *Loader) { l.recorder = r } }

func New(kind types.FactKind, storage *store.Storage, appLogger *logger.Logger, opts ...Option) *Loader {
	l := &Loader{kind: kind, storage: storage, logger: appLogger}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Loader) Kind() types.FactKind { return l.kind }

func (l *Loader) PeriodExists(ctx context.Context, period types.Period) (bool, error) {
	return l.storage.Facts.PeriodExists(ctx, l.kind, period)
}

// DeletePeriod removes every row of period and returns how many were deleted.
func (l *Loader) DeletePeriod(ctx context.Context, period types.Period) (int64, error) {
	const component = "Loader"
	n, err := l.storage.Facts.DeletePeriod(ctx, l.kind, period)
	if err != nil {
		return 0, fmt.Errorf("delete %s from %s: %w", period, l.kind.Table(), err)
	}
	l.logger.Info(component, "Deleted period: table=%s period=%s rows=%d", l.kind.Table(), period, n)
	l.record(ctx, state.HistoryEntry{
		Table: l.kind.Table(), Action: state.ActionDeletePeriod, Rows: n, Periods: []string{period.String()},
	})
	return n, nil
}

func (l *Loader) open(file string) (files.Reader, error) {
	if _, err := os.Stat(file); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, file)
		}
		return nil, err
	}
	r, err := files.Open(file)
	if err != nil {
		return nil, err
	}
	if missing := missingColumns(l.kind, r.Header()); len(missing) > 0 {
		r.Close()
		return nil, fmt.Errorf("%w: %s lacks %s", ErrMissingColumn, file, strings.Join(missing, ", "))
	}
	return r, nil
}

func missingColumns(kind types.FactKind, header []string) []string {
	have := map[string]bool{}
	for _, h := range header {
		have[h] = true
	}
	var missing []string
	for _, c := range types.RequiredColumns(kind) {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	if kind.IsLedger() && !have[types.ColMonth] && !have[types.ColPostingDate] {
		missing = append(missing, types.ColMonth+"|"+types.ColPostingDate)
	}
	return missing
}

// scanPeriods reads the whole file once and returns its periods, sorted.
// Rows that do not parse are left for the chunk pass to count.
func (l *Loader) scanPeriods(file string) ([]types.Period, int64, error) {
	r, err := l.open(file)
	if err != nil {
		return nil, 0, err
	}
	defer r.Close()

	seen := map[types.Period]bool{}
	var rows int64
	for {
		raw, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, rows, fmt.Errorf("scan %s: %w", file, err)
		}
		rows++
		if p, ok := periodOf(l.kind, raw); ok {
			seen[p] = true
		}
	}
	return sortedPeriods(seen), rows, nil
}

func periodOf(kind types.FactKind, raw map[string]string) (types.Period, bool) {
	rec, err := parser.Parse(kind, raw)
	if err != nil {
		return types.Period{}, false
	}
	p, err := types.ParsePeriod(rec[types.ColPeriod].(string))
	return p, err == nil
}

func sortedPeriods(set map[types.Period]bool) []types.Period {
	out := make([]types.Period, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Load ingests file. Required columns and pre-existing periods are checked
// before anything is written. Each chunk is inserted atomically; a failing
// chunk is counted and skipped.
func (l *Loader) Load(ctx context.Context, file string, opts Options) (Result, error) {
	const component = "Loader"
	start := time.Now()
	table := l.kind.Table()
	res := Result{Table: table}

	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = l.kind.DefaultChunkSize()
	}

	l.logger.Info(component, "Starting load: table=%s file=%s overwrite=%t recreate=%t chunk=%d", table, file, opts.Overwrite, opts.Recreate, chunkSize)

	periods, total, err := l.scanPeriods(file)
	if err != nil {
		return res, err
	}
	if len(periods) == 0 {
		l.logger.Warn(component, "No loadable rows: table=%s file=%s rows=%d", table, file, total)
		return res, nil
	}

	if err := l.storage.Facts.EnsureTable(ctx, l.kind, opts.Recreate); err != nil {
		return res, err
	}

	var existing []types.Period
	for _, p := range periods {
		ok, err := l.storage.Facts.PeriodExists(ctx, l.kind, p)
		if err != nil {
			return res, err
		}
		if ok {
			existing = append(existing, p)
		}
	}
	if len(existing) > 0 && !opts.Overwrite {
		return res, fmt.Errorf("%w: %s already holds %s", ErrPeriodExists, table, joinPeriods(existing))
	}
	for _, p := range existing {
		n, err := l.storage.Facts.DeletePeriod(ctx, l.kind, p)
		if err != nil {
			return res, fmt.Errorf("overwrite %s: %w", p, err)
		}
		res.Deleted += n
		l.logger.Info(component, "Cleared period for overwrite: table=%s period=%s rows=%d", table, p, n)
	}

	r, err := l.open(file)
	if err != nil {
		return res, err
	}
	defer r.Close()

	loaded := map[types.Period]bool{}
	chunk := make([]types.Record, 0, chunkSize)
	chunkNo := 0
	var parseErr error

	flush := func() {
		if len(chunk) == 0 && parseErr == nil {
			return
		}
		chunkNo++
		size := int64(len(chunk))
		if parseErr != nil {
			res.FailedChunks++
			res.FailedRows += size
			l.logger.Error(component, "Chunk rejected: table=%s chunk=%d rows=%d error=%v", table, chunkNo, size, parseErr)
		} else if n, err := l.storage.Facts.InsertChunk(ctx, l.kind, chunk); err != nil {
			res.FailedChunks++
			res.FailedRows += size
			l.logger.Error(component, "Chunk insert failed: table=%s chunk=%d rows=%d error=%v", table, chunkNo, size, err)
		} else {
			res.Inserted += n
			for _, rec := range chunk {
				if p, err := types.ParsePeriod(rec[types.ColPeriod].(string)); err == nil {
					loaded[p] = true
				}
			}
			l.logger.Debug(component, "Chunk inserted: table=%s chunk=%d rows=%d", table, chunkNo, n)
		}
		chunk = chunk[:0]
		parseErr = nil
	}

	var rowNo int64
	for {
		if err := ctx.Err(); err != nil {
			res.Incomplete = true
			res.Periods = periodStrings(sortedPeriods(loaded))
			l.finish(ctx, &res, opts, start)
			return res, err
		}
		raw, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("read %s: %w", file, err)
		}
		rowNo++
		rec, err := parser.Parse(l.kind, raw)
		if err != nil {
			if parseErr == nil {
				parseErr = fmt.Errorf("row %d: %w", rowNo, err)
			}
			// the row still counts toward the failed chunk
			rec = types.Record{}
		}
		chunk = append(chunk, rec)
		if len(chunk) >= chunkSize {
			flush()
		}
	}
	flush()

	res.Periods = periodStrings(sortedPeriods(loaded))
	res.Incomplete = res.FailedChunks > 0
	l.finish(ctx, &res, opts, start)

	if res.Incomplete {
		l.logger.Warn(component, "Load finished with failures: table=%s inserted=%d failedRows=%d failedChunks=%d", table, res.Inserted, res.FailedRows, res.FailedChunks)
	} else {
		l.logger.Info(component, "Load completed: table=%s inserted=%d periods=%s elapsed=%s", table, res.Inserted, strings.Join(res.Periods, ","), res.Elapsed)
	}
	return res, nil
}

func (l *Loader) finish(ctx context.Context, res *Result, opts Options, start time.Time) {
	res.Elapsed = time.Since(start)
	action := state.ActionLoad
	if opts.Overwrite && res.Deleted > 0 {
		action = state.ActionOverwrite
	}
	l.record(ctx, state.HistoryEntry{
		Table: res.Table, Action: action, Rows: res.Inserted, Periods: res.Periods, Failed: res.FailedRows,
	})
	if l.recorder != nil {
		l.recorder.ObserveLoad(res.Table, res.Inserted, res.FailedRows, res.FailedChunks, res.Elapsed)
	}
}

// record appends history and invalidates cached reports. Failures here are
// logged: the data is already committed.
func (l *Loader) record(ctx context.Context, e state.HistoryEntry) {
	const component = "Loader"
	e.Backend = string(l.storage.Backend.Dialect())
	if l.history != nil {
		if _, err := l.history.AppendHistory(e); err != nil {
			l.logger.Error(component, "Failed to append load history: table=%s error=%v", e.Table, err)
		}
	}
	if l.cache != nil {
		if err := l.cache.Bump(context.WithoutCancel(ctx)); err != nil {
			l.logger.Warn(component, "Failed to invalidate report cache: %v", err)
		}
	}
}

func periodStrings(ps []types.Period) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.String()
	}
	return out
}

func joinPeriods(ps []types.Period) string {
	return strings.Join(periodStrings(ps), ", ")
}
