package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/farxc/orcamento-analytics/internal/app"
	"github.com/farxc/orcamento-analytics/internal/etl/audit"
	"github.com/farxc/orcamento-analytics/internal/etl/dims"
	"github.com/farxc/orcamento-analytics/internal/etl/downloader"
	"github.com/farxc/orcamento-analytics/internal/etl/files"
	"github.com/farxc/orcamento-analytics/internal/etl/load"
	"github.com/farxc/orcamento-analytics/internal/etl/types"
	"github.com/farxc/orcamento-analytics/internal/jobs"
	"github.com/farxc/orcamento-analytics/internal/logger"
)

const component = "ETL"

var errUsage = errors.New("invalid usage")

type cli struct {
	deps   *app.Deps
	out    io.Writer
	logger *logger.Logger
}

func (c *cli) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing command", errUsage)
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "dims":
		return c.dims(ctx, rest)
	case "facts":
		return c.facts(ctx, rest)
	case "analyze":
		return c.analyze(ctx, rest)
	case "delete-period":
		return c.deletePeriod(ctx, rest)
	case "audit":
		return c.audit(ctx, rest)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %s: %v", errUsage, fs.Name(), err)
	}
	return nil
}

func (c *cli) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// failures counts per-file errors so one bad file does not stop a batch.
type failures struct {
	total  int
	failed int
}

func (f *failures) err(cmd string) error {
	if f.failed == 0 {
		return nil
	}
	return fmt.Errorf("%s: %d of %d files failed", cmd, f.failed, f.total)
}

func (c *cli) dims(ctx context.Context, args []string) error {
	fs := newFlagSet("dims")
	dir := fs.String("dir", "", "Load every supported file of a directory")
	table := fs.String("table", "", "Target table (single file only)")
	key := fs.String("key", "", "Key column (single file only)")
	confirm := fs.Bool("confirm", false, "Allow replacing existing tables")
	force := fs.Bool("force", false, "Reload files whose content is unchanged")
	if err := parse(fs, args); err != nil {
		return err
	}

	loader := dims.New(c.deps.Storage, c.deps.State, c.logger)

	if *dir != "" {
		results, err := loader.LoadDirectory(ctx, *dir, *confirm)
		if printErr := c.print(results); printErr != nil {
			return printErr
		}
		return err
	}

	if fs.NArg() == 0 {
		return fmt.Errorf("%w: dims needs -dir or at least one file", errUsage)
	}
	if fs.NArg() > 1 && (*table != "" || *key != "") {
		return fmt.Errorf("%w: -table and -key apply to a single file", errUsage)
	}

	var (
		results []dims.Result
		f       failures
	)
	for _, file := range fs.Args() {
		f.total++
		res, err := loader.Load(ctx, dims.Request{File: file, Table: *table, Key: *key, Confirm: *confirm, Force: *force})
		if err != nil {
			f.failed++
			if errors.Is(err, dims.ErrFileNotFound) {
				c.logger.Warn(component, "Skipping missing file: file=%s", file)
				continue
			}
			c.logger.Error(component, "Dimension load failed: file=%s error=%v", file, err)
			continue
		}
		results = append(results, res)
	}
	if err := c.print(results); err != nil {
		return err
	}
	return f.err("dims")
}

type factsFlags struct {
	kind      string
	overwrite bool
	recreate  bool
	chunk     int
	url       string
	queue     bool
}

func (c *cli) facts(ctx context.Context, args []string) error {
	fs := newFlagSet("facts")
	var opts factsFlags
	fs.StringVar(&opts.kind, "kind", "", "Fact kind (default: detected from each file name)")
	fs.BoolVar(&opts.overwrite, "overwrite", false, "Replace periods that are already loaded")
	fs.BoolVar(&opts.recreate, "recreate", false, "Drop and recreate the fact table first")
	fs.IntVar(&opts.chunk, "chunk", 0, "Rows per insert transaction (default per kind)")
	fs.StringVar(&opts.url, "url", "", "Download a file or ZIP bundle before loading")
	fs.BoolVar(&opts.queue, "queue", false, "Enqueue the files for the worker instead of loading them")
	if err := parse(fs, args); err != nil {
		return err
	}
	if opts.chunk < 0 {
		return fmt.Errorf("%w: -chunk must not be negative", errUsage)
	}

	var fixed types.FactKind
	hasKind := opts.kind != ""
	if hasKind {
		k, err := types.ParseFactKind(opts.kind)
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		fixed = k
	}

	if opts.queue {
		return c.enqueueFacts(ctx, fs.Args(), opts)
	}

	tmpDir, err := os.MkdirTemp("", "etl-facts-")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	inputs := fs.Args()
	if opts.url != "" {
		path, err := downloader.New(c.logger).FetchData(ctx, opts.url, tmpDir)
		if err != nil {
			return err
		}
		inputs = append(inputs, path)
	}
	if len(inputs) == 0 {
		return fmt.Errorf("%w: facts needs -url or at least one file", errUsage)
	}

	paths, err := c.expandBundles(inputs, tmpDir)
	if err != nil {
		return err
	}

	var (
		results []load.Result
		f       failures
	)
	for _, path := range paths {
		f.total++
		kind, ok := fixed, hasKind
		if !ok {
			kind, ok = files.KindFromName(path)
		}
		if !ok {
			f.failed++
			c.logger.Error(component, "Cannot tell the fact kind of %s; pass -kind", path)
			continue
		}

		loader := load.New(kind, c.deps.Storage, c.logger, c.deps.LoadOptions()...)
		res, err := loader.Load(ctx, path, load.Options{Overwrite: opts.overwrite, Recreate: opts.recreate, ChunkSize: opts.chunk})
		if err != nil {
			f.failed++
			switch {
			case errors.Is(err, load.ErrFileNotFound):
				c.logger.Warn(component, "Skipping missing file: file=%s", path)
			case errors.Is(err, load.ErrPeriodExists):
				c.logger.Error(component, "%v (use -overwrite to replace)", err)
			default:
				c.logger.Error(component, "Fact load failed: file=%s error=%v", path, err)
			}
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if res.Incomplete {
			f.failed++
		}
		results = append(results, res)
	}
	if err := c.print(results); err != nil {
		return err
	}
	return f.err("facts")
}

// expandBundles replaces every ZIP input with the spreadsheets it holds.
func (c *cli) expandBundles(inputs []string, tmpDir string) ([]string, error) {
	var out []string
	for i, in := range inputs {
		if !strings.EqualFold(filepath.Ext(in), ".zip") {
			out = append(out, in)
			continue
		}
		dest := filepath.Join(tmpDir, fmt.Sprintf("bundle-%d", i))
		res, err := files.Unzip(in, dest, c.logger)
		if err != nil {
			return nil, err
		}
		c.logger.Info(component, "Bundle extracted: file=%s files=%d skipped=%d", in, len(res.Files), res.Skipped)
		out = append(out, res.Files...)
	}
	return out, nil
}

// enqueueFacts hands the files to the worker. Downloads and bundles are
// not queued: the worker's inbox scan handles those.
func (c *cli) enqueueFacts(ctx context.Context, paths []string, opts factsFlags) error {
	if c.deps.Config == nil || c.deps.Config.RedisAddr == "" {
		return fmt.Errorf("%w: -queue needs REDIS_ADDR", errUsage)
	}
	if opts.url != "" {
		return fmt.Errorf("%w: -queue cannot be combined with -url", errUsage)
	}
	if len(paths) == 0 {
		return fmt.Errorf("%w: facts -queue needs at least one file", errUsage)
	}
	client := jobs.NewClient(asynq.RedisClientOpt{Addr: c.deps.Config.RedisAddr})
	defer client.Close()

	var infos []*asynq.TaskInfo
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		if strings.EqualFold(filepath.Ext(abs), ".zip") {
			return fmt.Errorf("%w: cannot queue bundle %s; drop it in the inbox instead", errUsage, path)
		}
		info, err := client.EnqueueLoadFacts(ctx, jobs.LoadFactsPayload{
			File:      abs,
			Kind:      opts.kind,
			Overwrite: opts.overwrite,
			Recreate:  opts.recreate,
			ChunkSize: opts.chunk,
		})
		if err != nil {
			return fmt.Errorf("enqueue %s: %w", path, err)
		}
		c.logger.Info(component, "Task enqueued: id=%s queue=%s file=%s", info.ID, info.Queue, abs)
		infos = append(infos, info)
	}
	return c.print(infos)
}

func (c *cli) analyze(ctx context.Context, args []string) error {
	fs := newFlagSet("analyze")
	kindFlag := fs.String("kind", "", "Fact kind (default: detected from each file name)")
	sample := fs.Int("sample", load.DefaultSampleRows, "Rows to read per file")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("%w: analyze needs at least one file", errUsage)
	}

	var (
		results []load.Analysis
		f       failures
	)
	for _, file := range fs.Args() {
		f.total++
		kind, err := c.kindFor(*kindFlag, file)
		if err != nil {
			return err
		}
		a, err := load.New(kind, c.deps.Storage, c.logger).Analyze(ctx, file, *sample)
		if err != nil {
			f.failed++
			c.logger.Error(component, "Analysis failed: file=%s error=%v", file, err)
			continue
		}
		results = append(results, a)
	}
	if err := c.print(results); err != nil {
		return err
	}
	return f.err("analyze")
}

func (c *cli) kindFor(flagValue, file string) (types.FactKind, error) {
	if flagValue != "" {
		k, err := types.ParseFactKind(flagValue)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", errUsage, err)
		}
		return k, nil
	}
	if k, ok := files.KindFromName(file); ok {
		return k, nil
	}
	return 0, fmt.Errorf("%w: cannot tell the fact kind of %s; pass -kind", errUsage, file)
}

func (c *cli) deletePeriod(ctx context.Context, args []string) error {
	fs := newFlagSet("delete-period")
	kindFlag := fs.String("kind", "", "Fact kind")
	periodFlag := fs.String("period", "", "Period as YYYY-MM")
	yes := fs.Bool("yes", false, "Confirm the deletion")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *kindFlag == "" || *periodFlag == "" {
		return fmt.Errorf("%w: delete-period needs -kind and -period", errUsage)
	}
	kind, err := types.ParseFactKind(*kindFlag)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	period, err := types.ParsePeriod(*periodFlag)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if !*yes {
		return fmt.Errorf("%w: deleting %s from %s needs -yes", errUsage, period, kind.Table())
	}

	loader := load.New(kind, c.deps.Storage, c.logger, c.deps.LoadOptions()...)
	exists, err := loader.PeriodExists(ctx, period)
	if err != nil {
		return err
	}
	var deleted int64
	if exists {
		if deleted, err = loader.DeletePeriod(ctx, period); err != nil {
			return err
		}
	}
	remaining, err := c.loadedPeriods(ctx, kind)
	if err != nil {
		return err
	}
	if !exists {
		c.logger.Warn(component, "Period not loaded: table=%s period=%s loaded=%s", kind.Table(), period, strings.Join(remaining, ","))
	}
	return c.print(map[string]any{
		"table":          kind.Table(),
		"period":         period.String(),
		"deleted":        deleted,
		"loaded_periods": remaining,
	})
}

func (c *cli) loadedPeriods(ctx context.Context, kind types.FactKind) ([]string, error) {
	periods, err := c.deps.Storage.Facts.Periods(ctx, kind)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(periods))
	for i, p := range periods {
		out[i] = p.String()
	}
	return out, nil
}

func (c *cli) audit(ctx context.Context, args []string) error {
	fs := newFlagSet("audit")
	kindFlag := fs.String("kind", "", "Audit one fact kind (default: all)")
	sqlOut := fs.String("sql", "", "Write the orphan listing queries to this file")
	if err := parse(fs, args); err != nil {
		return err
	}

	var kinds []types.FactKind
	if *kindFlag != "" {
		k, err := types.ParseFactKind(*kindFlag)
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		kinds = append(kinds, k)
	}

	report, err := audit.New(c.deps.Storage, c.logger).Run(ctx, kinds...)
	if err != nil {
		return err
	}
	for _, f := range report.Orphaned() {
		c.logger.Warn(component, "Orphan codes: fact=%s column=%s dimension=%s rows=%d values=%d",
			f.Fact, f.Column, f.Dimension, f.OrphanRows, f.OrphanValues)
	}
	if *sqlOut != "" {
		if err := os.WriteFile(*sqlOut, []byte(report.SQLScript()), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", *sqlOut, err)
		}
		c.logger.Info(component, "Audit script written: file=%s", *sqlOut)
	}
	return c.print(report)
}
