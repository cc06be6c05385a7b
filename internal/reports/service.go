package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/farxc/orcamento-analytics/internal/cache"
	"github.com/farxc/orcamento-analytics/internal/etl/dims"
	"github.com/farxc/orcamento-analytics/internal/format"
	"github.com/farxc/orcamento-analytics/internal/hierarchy"
	"github.com/farxc/orcamento-analytics/internal/logger"
	"github.com/farxc/orcamento-analytics/internal/measures"
	"github.com/farxc/orcamento-analytics/internal/query"
	"github.com/farxc/orcamento-analytics/internal/store"
)

// Observer receives cache and build timings.
type Observer interface {
	ObserveCache(report string, hit bool)
	ObserveReportBuild(report string, elapsed time.Duration)
}

type Service struct {
	storage  *store.Storage
	logger   *logger.Logger
	cache    *cache.Cache
	observer Observer
	loc      *time.Location
	now      func() time.Time
	catalog  measures.Catalog
}

type Option func(*Service)

func WithCache(c *cache.Cache) Option { return func(s *Service) { s.cache = c } }

func WithObserver(o Observer) Option { return func(s *Service) { s.observer = o } }

func WithLocation(loc *time.Location) Option { return func(s *Service) { s.loc = loc } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(storage *store.Storage, appLogger *logger.Logger, opts ...Option) *Service {
	s := &Service{
		storage: storage,
		logger:  appLogger,
		loc:     time.UTC,
		now:     time.Now,
		catalog: measures.Default,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run builds the named report, serving it from the cache when possible.
func (s *Service) Run(ctx context.Context, name string, p Params) (*Report, error) {
	const component = "Reports"
	def, ok := lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReport, name)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	key, err := s.cache.BuildKey(ctx, "report", def.Name, p.cacheKey())
	if err != nil {
		s.logger.Warn(component, "Cache unavailable, building directly: report=%s error=%v", def.Name, err)
		return s.build(ctx, def, p)
	}
	var rep Report
	hit, err := s.cache.FetchJSON(ctx, key, &rep, func(ctx context.Context) (any, error) {
		return s.build(ctx, def, p)
	})
	if err != nil {
		return nil, err
	}
	if s.observer != nil {
		s.observer.ObserveCache(def.Name, hit)
	}
	return &rep, nil
}

func (s *Service) build(ctx context.Context, def Definition, p Params) (*Report, error) {
	const component = "Reports"
	start := time.Now()
	rep, err := def.build(s, ctx, p)
	if err != nil {
		return nil, err
	}
	rep.Name, rep.Title, rep.Filters = def.Name, def.Title, p
	rep.Period = p.label(def.Bimonthly)
	rep.GeneratedAt = format.Timestamp(s.now(), s.loc)
	elapsed := time.Since(start)
	if s.observer != nil {
		s.observer.ObserveReportBuild(def.Name, elapsed)
	}
	s.logger.Info(component, "Report built: report=%s period=%s has_data=%t elapsed=%s", def.Name, rep.Period, rep.HasData, elapsed)
	return rep, nil
}

// level describes a grouped column and how its nodes are named.
type level struct {
	column string
	kind   string
	order  []string
	labels map[string]string
	fold   func(string) string
}

func nameAlias(column string) string { return "nome_" + column }

// aggregate runs one spec, joining the display-name dimension of every level
// whose table exists. A missing fact table yields no rows.
func (s *Service) aggregate(ctx context.Context, spec query.ReportSpec, levels []level) ([]store.Row, []hierarchy.Level, error) {
	hl := make([]hierarchy.Level, len(levels))
	for i, l := range levels {
		hl[i] = hierarchy.Level{Key: l.column, Kind: l.kind, Order: l.order, Labels: l.labels, Map: l.fold}
		spec.GroupBy = append(spec.GroupBy, l.column)
		d, ok := dims.ByKey(l.column)
		if !ok {
			continue
		}
		if hl[i].Kind == "" {
			hl[i].Kind = d.Kind
		}
		exists, err := s.storage.Dimensions.Exists(ctx, d.Table)
		if err != nil {
			return nil, nil, err
		}
		if !exists {
			continue
		}
		spec.Joins = append(spec.Joins, query.DimensionJoin{
			Table: d.Table, Key: l.column, DimKey: d.Key,
			Columns: []query.JoinColumn{{Column: d.Name, Alias: nameAlias(l.column)}},
		})
		hl[i].Name = nameAlias(l.column)
	}
	spec.Catalog = s.catalog
	rows, err := s.run(ctx, spec)
	for _, l := range hl {
		if l.Name == "" {
			continue
		}
		for _, r := range rows {
			if v := r.String(l.Name); v != "" {
				r[l.Name] = format.DisplayName(v)
			}
		}
	}
	return rows, hl, err
}

func (s *Service) run(ctx context.Context, spec query.ReportSpec) ([]store.Row, error) {
	ok, err := s.storage.Facts.TableExists(ctx, spec.Fact)
	if err != nil || !ok {
		return nil, err
	}
	stmt, err := query.Build(spec)
	if err != nil {
		if errors.Is(err, query.ErrInvalidSpec) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
		}
		return nil, err
	}
	return s.exec(ctx, stmt)
}

func (s *Service) exec(ctx context.Context, stmt *query.Select) ([]store.Row, error) {
	const component = "Reports"
	sqlText, args, err := query.Emit(stmt, s.storage.Backend.Dialect())
	if err != nil {
		return nil, err
	}
	rows, err := s.storage.Backend.ExecuteQuery(ctx, sqlText, args...)
	if err != nil {
		s.logger.Error(component, "Report query failed: error=%v args=%v sql=%s", err, args, sqlText)
		return nil, fmt.Errorf("report query: %w", err)
	}
	return rows, nil
}

func (s *Service) filters(p Params) query.Filters {
	return query.Filters{Year: p.Year, Months: p.Cumulative(), UG: p.UG, RevenueType: p.RevenueType}
}

// expenseFilters drops the revenue type, which has no meaning on expense
// facts, and applies the modality scope. Params are validated by then.
func (s *Service) expenseFilters(p Params) query.Filters {
	f := s.filters(p)
	f.RevenueType = ""
	f.Modality, _ = query.ParseModalityScope(p.Modality)
	return f
}

// derive sets name on every node and on the totals from the node's other
// measures.
func derive(t *hierarchy.Tree, name string, fn func(m map[string]float64) float64) {
	t.Walk(func(n *hierarchy.Node) { n.Measures[name] = fn(n.Measures) })
	t.Totals[name] = fn(t.Totals)
}

func currency(keys ...[2]string) []Column {
	out := make([]Column, len(keys))
	for i, k := range keys {
		out[i] = Column{Key: k[0], Label: k[1], Format: FormatCurrency}
	}
	return out
}

var revenueCategoryOrder = []string{"1", "2", "7", "8", "9"}
