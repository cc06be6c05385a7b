// Package audit reports fact codes with no matching dimension row. It only
// reads; fixing orphans is left to whoever owns the source files.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/farxc/orcamento-analytics/internal/db"
	"github.com/farxc/orcamento-analytics/internal/etl/types"
	"github.com/farxc/orcamento-analytics/internal/logger"
	"github.com/farxc/orcamento-analytics/internal/store"
)

// SampleSize caps the orphan codes listed per relationship.
const SampleSize = 5

const (
	SkipMissingFact      = "fact table missing"
	SkipMissingDimension = "dimension table missing"
)

type Finding struct {
	Fact string `json:"fact"`
	Relationship
	Total        int64    `json:"total"`
	Distinct     int64    `json:"distinct"`
	OrphanRows   int64    `json:"orphan_rows"`
	OrphanValues int64    `json:"orphan_values"`
	Samples      []string `json:"samples"`
	Skipped      string   `json:"skipped,omitempty"`
}

type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Findings    []Finding `json:"findings"`
}

// Orphaned returns the findings with at least one orphan row.
func (r Report) Orphaned() []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.OrphanRows > 0 {
			out = append(out, f)
		}
	}
	return out
}

// SQLScript renders two queries per checked relationship: its orphan codes
// with their row counts, and a sample of the affected fact rows.
func (r Report) SQLScript() string {
	var b strings.Builder
	fmt.Fprintf(&b, "-- Orphan listing generated %s\n", r.GeneratedAt.Format(time.RFC3339))
	for _, f := range r.Findings {
		if f.Skipped != "" {
			continue
		}
		fmt.Fprintf(&b, "\n-- %s.%s -> %s.%s (%d orphan rows)\n", f.Fact, f.Column, f.Dimension, f.DimensionKey, f.OrphanRows)
		b.WriteString(orphanListSQL(f.Fact, f.Relationship))
		b.WriteString(";\n")
		b.WriteString(orphanRowsSQL(f.Fact, f.Relationship))
		b.WriteString(";\n")
	}
	return b.String()
}

func orphanFrom(fact string, rel Relationship) string {
	return fmt.Sprintf("FROM %s f LEFT JOIN %s d ON f.%s = d.%s WHERE f.%s IS NOT NULL AND d.%s IS NULL",
		db.QuoteIdent(fact), db.QuoteIdent(rel.Dimension),
		db.QuoteIdent(rel.Column), db.QuoteIdent(rel.DimensionKey),
		db.QuoteIdent(rel.Column), db.QuoteIdent(rel.DimensionKey))
}

func orphanListSQL(fact string, rel Relationship) string {
	return fmt.Sprintf("SELECT f.%s AS code, COUNT(*) AS rows_affected %s GROUP BY f.%s ORDER BY f.%s",
		db.QuoteIdent(rel.Column), orphanFrom(fact, rel), db.QuoteIdent(rel.Column), db.QuoteIdent(rel.Column))
}

// SampleRows bounds the affected-row query of the script.
const SampleRows = 20

func orphanRowsSQL(fact string, rel Relationship) string {
	return fmt.Sprintf("SELECT f.* %s LIMIT %d", orphanFrom(fact, rel), SampleRows)
}

type Auditor struct {
	storage *store.Storage
	logger  *logger.Logger
}

func New(storage *store.Storage, appLogger *logger.Logger) *Auditor {
	return &Auditor{storage: storage, logger: appLogger}
}

// Run checks every relationship of kinds (all kinds when none given).
func (a *Auditor) Run(ctx context.Context, kinds ...types.FactKind) (Report, error) {
	const component = "Auditor"
	if len(kinds) == 0 {
		kinds = types.AllFactKinds
	}
	rep := Report{GeneratedAt: time.Now()}
	for _, k := range kinds {
		fact := k.Table()
		factExists, err := a.storage.Facts.TableExists(ctx, k)
		if err != nil {
			return rep, err
		}
		for _, rel := range Catalog[k] {
			if err := ctx.Err(); err != nil {
				return rep, err
			}
			f := Finding{Fact: fact, Relationship: rel}
			if !factExists {
				f.Skipped = SkipMissingFact
				rep.Findings = append(rep.Findings, f)
				continue
			}
			dimExists, err := a.storage.Dimensions.Exists(ctx, rel.Dimension)
			if err != nil {
				return rep, err
			}
			if !dimExists {
				f.Skipped = SkipMissingDimension
				rep.Findings = append(rep.Findings, f)
				continue
			}
			if err := a.check(ctx, &f); err != nil {
				return rep, fmt.Errorf("audit %s.%s: %w", fact, rel.Column, err)
			}
			if f.OrphanRows > 0 {
				a.logger.Warn(component, "Orphans found: fact=%s column=%s dimension=%s rows=%d values=%d", fact, rel.Column, rel.Dimension, f.OrphanRows, f.OrphanValues)
			}
			rep.Findings = append(rep.Findings, f)
		}
	}
	a.logger.Info(component, "Audit completed: relationships=%d orphaned=%d", len(rep.Findings), len(rep.Orphaned()))
	return rep, nil
}

func (a *Auditor) check(ctx context.Context, f *Finding) error {
	col := db.QuoteIdent(f.Column)
	rows, err := a.storage.Backend.ExecuteQuery(ctx,
		fmt.Sprintf("SELECT COUNT(%s) AS total, COUNT(DISTINCT %s) AS distinct_values FROM %s", col, col, db.QuoteIdent(f.Fact)))
	if err != nil {
		return err
	}
	if len(rows) == 1 {
		f.Total = int64(rows[0].Int("total"))
		f.Distinct = int64(rows[0].Int("distinct_values"))
	}

	from := orphanFrom(f.Fact, f.Relationship)
	rows, err = a.storage.Backend.ExecuteQuery(ctx,
		fmt.Sprintf("SELECT COUNT(*) AS orphan_rows, COUNT(DISTINCT f.%s) AS orphan_values %s", col, from))
	if err != nil {
		return err
	}
	if len(rows) == 1 {
		f.OrphanRows = int64(rows[0].Int("orphan_rows"))
		f.OrphanValues = int64(rows[0].Int("orphan_values"))
	}
	if f.OrphanRows == 0 {
		return nil
	}

	rows, err = a.storage.Backend.ExecuteQuery(ctx,
		fmt.Sprintf("SELECT DISTINCT f.%s AS code %s ORDER BY 1 LIMIT %d", col, from, SampleSize))
	if err != nil {
		return err
	}
	for _, r := range rows {
		f.Samples = append(f.Samples, r.String("code"))
	}
	return nil
}
