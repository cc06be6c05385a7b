package load

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/farxc/orcamento-analytics/internal/etl/files"
	"github.com/farxc/orcamento-analytics/internal/etl/types"
)

// DefaultSampleRows is how many rows Analyze reads.
const DefaultSampleRows = 2000

type Analysis struct {
	File          string   `json:"file"`
	Table         string   `json:"table"`
	Columns       []string `json:"columns"`
	Missing       []string `json:"missing_columns,omitempty"`
	Periods       []string `json:"periods"`
	Existing      []string `json:"existing_periods,omitempty"`
	SampledRows   int      `json:"sampled_rows"`
	EstimatedRows int64    `json:"estimated_rows"`
	// Exact is set when the sample covered the whole file.
	Exact bool `json:"exact"`
}

// Analyze reads a prefix of file and reports the periods it holds, an
// estimated row count and which of those periods are already loaded.
func (l *Loader) Analyze(ctx context.Context, file string, sampleRows int) (Analysis, error) {
	if sampleRows <= 0 {
		sampleRows = DefaultSampleRows
	}
	a := Analysis{File: file, Table: l.kind.Table()}

	info, err := os.Stat(file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return a, fmt.Errorf("%w: %s", ErrFileNotFound, file)
		}
		return a, err
	}
	r, err := files.Open(file)
	if err != nil {
		return a, err
	}
	defer r.Close()
	a.Columns = r.Header()
	if a.Missing = missingColumns(l.kind, a.Columns); len(a.Missing) > 0 {
		return a, nil
	}

	var exercises, months []string
	var sampleBytes int64
	for a.SampledRows < sampleRows {
		raw, err := r.Next()
		if errors.Is(err, io.EOF) {
			a.Exact = true
			break
		}
		if err != nil {
			return a, err
		}
		a.SampledRows++
		for _, v := range raw {
			sampleBytes += int64(len(v)) + 1
		}
		if p, ok := periodOf(l.kind, raw); ok {
			exercises = append(exercises, fmt.Sprint(p.Exercise))
			months = append(months, fmt.Sprint(p.Month))
		}
	}

	if a.Exact || sampleBytes == 0 {
		a.EstimatedRows = int64(a.SampledRows)
	} else {
		a.EstimatedRows = info.Size() * int64(a.SampledRows) / sampleBytes
	}

	if len(exercises) > 0 {
		df := dataframe.New(
			series.New(exercises, series.String, types.ColExercise),
			series.New(months, series.String, types.ColMonth),
		)
		groups := df.GroupBy(types.ColExercise, types.ColMonth).GetGroups()
		seen := map[types.Period]bool{}
		for _, g := range groups {
			p, err := types.ParsePeriod(g.Elem(0, 0).String() + "-" + g.Elem(0, 1).String())
			if err == nil {
				seen[p] = true
			}
		}
		for _, p := range sortedPeriods(seen) {
			a.Periods = append(a.Periods, p.String())
			ok, err := l.storage.Facts.PeriodExists(ctx, l.kind, p)
			if err != nil {
				return a, err
			}
			if ok {
				a.Existing = append(a.Existing, p.String())
			}
		}
	}
	return a, nil
}
