package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/farxc/orcamento-analytics/internal/app"
	"github.com/farxc/orcamento-analytics/internal/config"
	"github.com/farxc/orcamento-analytics/internal/logger"
	"github.com/farxc/orcamento-analytics/internal/metrics"
	"github.com/farxc/orcamento-analytics/internal/reports"
	"github.com/farxc/orcamento-analytics/internal/state"
	"github.com/farxc/orcamento-analytics/internal/store"
)

const version = "1.0.0"

type application struct {
	config  *config.Config
	storage *store.Storage
	reports *reports.Service
	state   *state.Store
	metrics *metrics.Metrics
	logger  *logger.Logger
}

func newApplication(d *app.Deps) *application {
	return &application{
		config:  d.Config,
		storage: d.Storage,
		reports: d.Reports(),
		state:   d.State,
		metrics: d.Metrics,
		logger:  d.Logger,
	}
}

func (app *application) mount() http.Handler {
	r := chi.NewRouter()

	secureHeaders := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	})

	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(secureHeaders.Handler)
	r.Use(app.metrics.Middleware)

	// Set a timeout value on the request context (ctx), that will signal
	// through ctx.Done() that the request has timed out and further
	// processing should be stopped.
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", app.healthCheckHandler)
		r.Handle("/metrics", app.metrics.Handler())

		r.Group(func(r chi.Router) {
			r.Use(httprate.Limit(app.config.RateLimitPerMinute, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					writeJSONError(w, http.StatusTooManyRequests, "too many requests")
				}),
			))
			r.Route("/reports", func(r chi.Router) {
				r.Get("/", app.handleListReports)
				r.Get("/{name}", app.handleGetReport)
				r.Get("/{name}/export.{format}", app.handleExportReport)
			})
			r.Get("/filters", app.handleGetFilters)
			r.Get("/ledger/{kind}", app.handleGetLedger)
			r.Get("/loads/history", app.handleGetLoadHistory)
		})
	})

	return r
}

func (app *application) run(mux http.Handler) error {
	const component = "API"

	srv := &http.Server{
		Addr:         app.config.Addr,
		Handler:      mux,
		WriteTimeout: time.Second * 120,
		ReadTimeout:  time.Second * 40,
		IdleTimeout:  time.Minute,
	}

	shutdown := make(chan error, 1)
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		app.logger.Info(component, "Shutting down server: signal=%s", s)
		shutdown <- srv.Shutdown(ctx)
	}()

	app.logger.Info(component, "Server started: addr=%s", app.config.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-shutdown
}
