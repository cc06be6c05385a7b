// Package dims loads descriptive lookup tables (functions, programs, UGs,
// accounts...) from spreadsheets and keeps them in sync with their files.
package dims

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"

	"github.com/farxc/orcamento-analytics/internal/db"
	"github.com/farxc/orcamento-analytics/internal/etl/files"
	"github.com/farxc/orcamento-analytics/internal/etl/parser"
	"github.com/farxc/orcamento-analytics/internal/etl/types"
	"github.com/farxc/orcamento-analytics/internal/logger"
	"github.com/farxc/orcamento-analytics/internal/state"
	"github.com/farxc/orcamento-analytics/internal/store"
)

var (
	ErrFileNotFound         = errors.New("dimension file not found")
	ErrTypeMismatch         = errors.New("column type differs from existing table")
	ErrConfirmationRequired = errors.New("table exists; replacing it needs confirmation")
	ErrNoKey                = errors.New("no key column")
	// ErrNotDimension marks a file with no rows or no code column; directory
	// loads skip it.
	ErrNotDimension = errors.New("not a dimension file")
)

type Request struct {
	File string
	// Table and Key override the mapping, the catalog and key detection.
	Table string
	Key   string
	// Confirm allows an existing table to be replaced.
	Confirm bool
	// Force reloads a file whose content and table are unchanged.
	Force bool
}

type Result struct {
	File         string           `json:"file"`
	Table        string           `json:"table"`
	Key          string           `json:"key"`
	Status       state.FileStatus `json:"status"`
	Rows         int              `json:"rows"`
	Skipped      bool             `json:"skipped"`
	Replaced     bool             `json:"replaced"`
	Duplicates   int              `json:"duplicate_keys"`
	IndexSkipped bool             `json:"index_skipped"`
	KeyScores    []KeyScore       `json:"key_scores,omitempty"`
}

type Loader struct {
	storage *store.Storage
	state   *state.Store
	logger  *logger.Logger
}

func New(storage *store.Storage, st *state.Store, appLogger *logger.Logger) *Loader {
	return &Loader{storage: storage, state: st, logger: appLogger}
}

// Inspect classifies a file against its mapping without writing anything.
func (l *Loader) Inspect(ctx context.Context, file string) (state.FileStatus, state.Mapping, string, error) {
	if _, err := os.Stat(file); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", state.Mapping{}, "", fmt.Errorf("%w: %s", ErrFileNotFound, file)
		}
		return "", state.Mapping{}, "", err
	}
	hash, err := files.HashFile(file)
	if err != nil {
		return "", state.Mapping{}, "", err
	}
	m, known, err := l.state.Mapping(file)
	if err != nil {
		return "", state.Mapping{}, "", err
	}
	exists := false
	if known {
		if exists, err = l.storage.Dimensions.Exists(ctx, m.Table); err != nil {
			return "", m, hash, err
		}
	}
	return state.Classify(m, known, hash, exists), m, hash, nil
}

// Load reads one dimension file and replaces its table. An existing table is
// replaced only with Confirm; the new contents are built in a staging table so
// any failure leaves the previous table in place.
func (l *Loader) Load(ctx context.Context, req Request) (Result, error) {
	const component = "DimLoader"
	res := Result{File: req.File}

	status, mapping, hash, err := l.Inspect(ctx, req.File)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			l.logger.Warn(component, "Skipping missing file: file=%s", req.File)
		}
		return res, err
	}
	res.Status = status
	if status == state.StatusUnchanged && !req.Force {
		l.logger.Info(component, "Unchanged, skipping: file=%s table=%s", req.File, mapping.Table)
		res.Table, res.Key, res.Rows, res.Skipped = mapping.Table, mapping.Key, mapping.RowCount, true
		return res, nil
	}

	df, err := files.ReadFrame(req.File)
	if errors.Is(err, files.ErrNoRows) {
		return res, fmt.Errorf("%w: %v", ErrNotDimension, err)
	}
	if err != nil {
		return res, fmt.Errorf("read %s: %w", req.File, err)
	}
	res.Rows = df.Nrow()

	res.Table = l.table(req, mapping, status)
	if !db.ValidIdent(res.Table) {
		return res, fmt.Errorf("invalid table name %q", res.Table)
	}
	res.Key, res.KeyScores = l.key(req, mapping, df, res.Table)
	if res.Key == "" {
		if !hasCodeColumn(df.Names()) {
			return res, fmt.Errorf("%w: %s has no code column", ErrNotDimension, req.File)
		}
		return res, fmt.Errorf("%w: %s", ErrNoKey, req.File)
	}
	l.logger.Info(component, "Loading dimension: file=%s table=%s key=%s status=%s rows=%d", req.File, res.Table, res.Key, status, res.Rows)

	exists, err := l.storage.Dimensions.Exists(ctx, res.Table)
	if err != nil {
		return res, err
	}
	cols := InferColumns(df, res.Key)
	if exists {
		if !req.Confirm {
			return res, fmt.Errorf("%w: %s", ErrConfirmationRequired, res.Table)
		}
		if err := l.checkTypes(ctx, res.Table, cols); err != nil {
			return res, err
		}
	}

	rows, err := materialize(df, cols)
	if err != nil {
		return res, fmt.Errorf("%s: %w", req.File, err)
	}
	if err := l.storage.Dimensions.Replace(ctx, store.DimensionTable{Name: res.Table, Columns: cols, Rows: rows}); err != nil {
		return res, fmt.Errorf("replace %s: %w", res.Table, err)
	}
	res.Replaced = exists

	res.Duplicates = Duplicates(df, res.Key)
	if res.Duplicates > 0 {
		res.IndexSkipped = true
		l.logger.Warn(component, "Duplicate keys, unique index skipped: table=%s key=%s duplicates=%d", res.Table, res.Key, res.Duplicates)
	} else if err := l.storage.Dimensions.CreateUniqueIndex(ctx, res.Table, res.Key); err != nil {
		res.IndexSkipped = true
		l.logger.Warn(component, "Unique index failed: table=%s key=%s error=%v", res.Table, res.Key, err)
	}

	if err := l.state.SaveMapping(req.File, state.Mapping{
		Table: res.Table, Key: res.Key, ContentHash: hash, RowCount: res.Rows,
	}); err != nil {
		l.logger.Error(component, "Failed to save mapping: file=%s error=%v", req.File, err)
	}
	if _, err := l.state.AppendHistory(state.HistoryEntry{
		Table:   res.Table,
		Action:  state.ActionDimension,
		Rows:    int64(res.Rows),
		Backend: string(l.storage.Backend.Dialect()),
		Source:  state.MappingKey(req.File),
	}); err != nil {
		l.logger.Error(component, "Failed to append load history: table=%s error=%v", res.Table, err)
	}
	l.logger.Info(component, "Dimension loaded: table=%s rows=%d replaced=%t", res.Table, res.Rows, res.Replaced)
	return res, nil
}

// LoadDirectory loads every supported file in dir. Files that are not
// dimensions are skipped with a warning; failing files are logged and
// reported, and the walk continues.
func (l *Loader) LoadDirectory(ctx context.Context, dir string, confirm bool) ([]Result, error) {
	const component = "DimLoader"
	paths, err := files.ListSupported(dir)
	if err != nil {
		return nil, err
	}
	var (
		out  []Result
		errs []error
	)
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := l.Load(ctx, Request{File: p, Confirm: confirm})
		if errors.Is(err, ErrNotDimension) {
			l.logger.Warn(component, "Skipping non-dimension file: file=%s reason=%v", p, err)
			continue
		}
		if err != nil {
			l.logger.Error(component, "Dimension load failed: file=%s error=%v", p, err)
			errs = append(errs, err)
			continue
		}
		out = append(out, res)
	}
	return out, errors.Join(errs...)
}

func (l *Loader) table(req Request, m state.Mapping, status state.FileStatus) string {
	switch {
	case req.Table != "":
		return strings.ToLower(req.Table)
	case status != state.StatusNew && m.Table != "":
		return m.Table
	default:
		return TableFor(req.File)
	}
}

func (l *Loader) key(req Request, m state.Mapping, df dataframe.DataFrame, table string) (string, []KeyScore) {
	has := func(c string) bool {
		for _, n := range df.Names() {
			if n == c {
				return true
			}
		}
		return false
	}
	switch {
	case req.Key != "" && has(strings.ToLower(req.Key)):
		return strings.ToLower(req.Key), nil
	case m.Key != "" && has(m.Key):
		return m.Key, nil
	}
	if d, ok := ByTable(table); ok && has(d.Key) {
		return d.Key, nil
	}
	if !hasCodeColumn(df.Names()) {
		return "", nil
	}
	return DetectKey(df)
}

// hasCodeColumn reports whether any column looks like a code (co*, in*,
// id*). Detection is only attempted on such files.
func hasCodeColumn(names []string) bool {
	for _, n := range names {
		if strings.HasPrefix(n, "co") || strings.HasPrefix(n, "in") || strings.HasPrefix(n, "id") {
			return true
		}
	}
	return false
}

func (l *Loader) checkTypes(ctx context.Context, table string, cols []types.Column) error {
	existing, err := l.storage.Dimensions.Columns(ctx, table)
	if err != nil {
		return err
	}
	have := make(map[string]string, len(existing))
	for _, c := range existing {
		have[strings.ToLower(c.Name)] = typeClass(c.Type)
	}
	for _, c := range cols {
		old, ok := have[c.Name]
		if !ok {
			continue
		}
		if now := string(classOf(c.Type)); old != "" && old != now {
			return fmt.Errorf("%w: %s.%s is %s, file has %s", ErrTypeMismatch, table, c.Name, old, now)
		}
	}
	return nil
}

// InferColumns types a frame's columns. The key and every co*/in* code
// column stay text so leading zeros survive; other columns become bigint or
// double when every non-empty value parses as such.
func InferColumns(df dataframe.DataFrame, key string) []types.Column {
	names := df.Names()
	cols := make([]types.Column, len(names))
	for i, n := range names {
		cols[i] = types.Column{Name: n, Type: types.Text, Nullable: n != key}
		if n == key || strings.HasPrefix(n, "co") || strings.HasPrefix(n, "in") {
			continue
		}
		cols[i].Type = inferType(df.Col(n).Records())
	}
	return cols
}

func inferType(values []string) types.ColumnType {
	allInt, allNum, seen := true, true, false
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		seen = true
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			allInt = false
		}
		if _, err := parser.ParseAmount(v); err != nil {
			allNum = false
		}
		if !allInt && !allNum {
			return types.Text
		}
	}
	switch {
	case !seen:
		return types.Text
	case allInt:
		return types.BigInt
	default:
		return types.Double
	}
}

func materialize(df dataframe.DataFrame, cols []types.Column) ([][]any, error) {
	rows := make([][]any, df.Nrow())
	for i := range rows {
		rows[i] = make([]any, len(cols))
	}
	for j, c := range cols {
		for i, v := range df.Col(c.Name).Records() {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			switch c.Type {
			case types.BigInt:
				n, err := strconv.ParseInt(v, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("row %d column %s: %w", i+1, c.Name, err)
				}
				rows[i][j] = n
			case types.Double:
				f, err := parser.ParseAmount(v)
				if err != nil {
					return nil, fmt.Errorf("row %d column %s: %w", i+1, c.Name, err)
				}
				rows[i][j] = f
			default:
				if strings.HasPrefix(c.Name, "co") {
					v = parser.NormalizeCode(v)
				}
				rows[i][j] = v
			}
		}
	}
	return rows, nil
}

type class string

const (
	classText    class = "text"
	classInteger class = "integer"
	classDouble  class = "double"
	classTime    class = "timestamp"
)

func classOf(t types.ColumnType) class {
	switch t {
	case types.Integer, types.BigInt:
		return classInteger
	case types.Double:
		return classDouble
	case types.Timestamp:
		return classTime
	default:
		return classText
	}
}

// typeClass maps a backend's reported column type to a logical class.
func typeClass(dbType string) string {
	t := strings.ToUpper(dbType)
	switch {
	case strings.Contains(t, "CHAR"), strings.Contains(t, "TEXT"), strings.Contains(t, "STRING"):
		return string(classText)
	case strings.Contains(t, "INT"):
		return string(classInteger)
	case strings.Contains(t, "DOUB"), strings.Contains(t, "REAL"), strings.Contains(t, "FLOAT"),
		strings.Contains(t, "NUMERIC"), strings.Contains(t, "DECIMAL"):
		return string(classDouble)
	case strings.Contains(t, "TIME"), strings.Contains(t, "DATE"):
		return string(classTime)
	}
	return ""
}
