package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/satpool/internal/catalog"
	"github.com/signalsfoundry/satpool/internal/config"
	"github.com/signalsfoundry/satpool/internal/logging"
	"github.com/signalsfoundry/satpool/internal/maintenance"
	"github.com/signalsfoundry/satpool/internal/observability"
	"github.com/signalsfoundry/satpool/internal/pipeline"
	"github.com/signalsfoundry/satpool/kb"
	"github.com/signalsfoundry/satpool/model"
	"github.com/signalsfoundry/satpool/timectrl"
)

// env is everything a command needs once configuration and catalog are
// loaded.
type env struct {
	cfg     config.Config
	start   time.Time
	log     logging.Logger
	reg     *prometheus.Registry
	metrics *observability.PipelineCollector
	pipe    *pipeline.Pipeline
	catalog *kb.Catalog
	// loadWarnings are catalog rejections, reported with every result.
	loadWarnings []model.Warning

	closers []func()
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// loadConfig reads the configuration and applies flag overrides.
func (a *app) loadConfig() (config.Config, error) {
	cfg := config.Default()
	if a.configPath != "" {
		var err error
		if cfg, err = config.Load(a.configPath); err != nil {
			return cfg, fmt.Errorf("load config %s: %w", a.configPath, err)
		}
	}
	if a.catalogPath != "" {
		cfg.Catalog.Path = a.catalogPath
	}
	if a.start != "" {
		start, err := time.Parse(time.RFC3339, a.start)
		if err != nil {
			return cfg, fmt.Errorf("%w: --start: %v", model.ErrConfigurationInvalid, err)
		}
		cfg.Window.Start = start
	}
	if a.output != "" {
		cfg.Runtime.OutputPath = a.output
	}
	if a.format != "" {
		cfg.Runtime.OutputFormat = a.format
	}
	if cfg.Catalog.Path == "" {
		return cfg, fmt.Errorf("%w: no catalog given; set catalog.path or --catalog", model.ErrConfigurationInvalid)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadCatalog(cfg config.Config) (catalog.Result, error) {
	return catalog.NewLoader(cfg.Catalog).LoadFile(cfg.Catalog.Path, catalog.Format(cfg.Catalog.Format))
}

// setup builds the shared runtime: logger, tracing, metrics, pipeline and a
// populated catalog.
func (a *app) setup(ctx context.Context) (context.Context, *env, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return ctx, nil, err
	}

	e := &env{cfg: cfg, start: cfg.Window.Start}
	if e.start.IsZero() {
		e.start = time.Now().UTC().Truncate(time.Second)
	}

	ctx, e.log = logging.WithRunLogger(ctx, logging.NewFromEnv(cfg.Logging.Level, cfg.Logging.Format))

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(cfg.Tracing), a.stderr, e.log)
	if err != nil {
		return ctx, nil, err
	}
	e.closers = append(e.closers, func() { observability.ShutdownWithTimeout(context.Background(), shutdown, e.log) })

	e.reg = prometheus.NewRegistry()
	if e.metrics, err = observability.NewPipelineCollector(e.reg); err != nil {
		e.close()
		return ctx, nil, err
	}
	if cfg.Metrics.Enabled {
		srv := serveMetrics(cfg.Metrics.Addr, e.metrics.Handler(), e.log)
		e.closers = append(e.closers, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		})
	}

	e.pipe, err = pipeline.New(cfg, pipeline.Options{
		Provider: a.provider,
		Logger:   e.log,
		Metrics:  e.metrics,
	})
	if err != nil {
		e.close()
		return ctx, nil, err
	}

	loaded, err := loadCatalog(cfg)
	if err != nil {
		e.close()
		return ctx, nil, err
	}
	e.loadWarnings = loaded.Warnings()
	for _, rej := range loaded.Rejected {
		e.log.Warn(ctx, "catalog entry rejected",
			logging.String("name", rej.Name),
			logging.String("reason", rej.Reason),
		)
	}

	e.catalog = kb.NewCatalog()
	e.closers = append(e.closers, e.pipe.Watch(e.catalog))
	if _, err := catalog.Populate(e.catalog, loaded.Satellites); err != nil {
		e.close()
		return ctx, nil, err
	}
	e.log.Info(ctx, "catalog loaded",
		logging.String("path", cfg.Catalog.Path),
		logging.Int("satellites", e.catalog.Len()),
		logging.Int("rejected", len(loaded.Rejected)),
		logging.Time("window_start", e.start),
	)
	return ctx, e, nil
}

func (a *app) run(ctx context.Context) error {
	ctx, e, err := a.setup(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	out, err := e.pipe.Run(ctx, e.catalog.ListSatellites(), e.start)
	if err != nil {
		return err
	}
	extra := append(append([]model.Warning{}, e.loadWarnings...), out.Warnings...)
	report := out.Report(extra, e.cfg.Runtime.IncludeTimeseries)
	e.pipe.Publish(report)
	return a.writeReport(e.cfg, report)
}

func (a *app) maintain(ctx context.Context) error {
	ctx, e, err := a.setup(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	mc, err := observability.NewMaintenanceCollector(e.reg)
	if err != nil {
		return err
	}
	engine := maintenance.NewEngine(e.pipe, e.catalog, maintenance.NewPoolStore(), maintenance.Options{
		Logger:  e.log,
		Metrics: mc,
		Refine:  e.cfg.Maintenance.Refine,
	})

	publish := func(res *maintenance.CycleResult) error {
		res.Warnings = append(append([]model.Warning{}, e.loadWarnings...), res.Warnings...)
		report := res.Report(e.cfg.Runtime.IncludeTimeseries)
		e.pipe.Publish(report)
		return a.writeReport(e.cfg, report)
	}

	first, err := engine.Cycle(ctx, e.start)
	if err != nil {
		return err
	}
	if err := publish(first); err != nil {
		return err
	}

	cycles := e.cfg.Maintenance.Cycles
	if a.cycles >= 0 {
		cycles = a.cycles
	}
	if cycles == 1 {
		return nil
	}

	mode, _ := timectrl.ParseMode(e.cfg.Maintenance.Mode)
	tc := timectrl.NewTimeController(e.start, e.cfg.CycleInterval(), mode)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var failure error
	engine.Attach(runCtx, tc, func(res *maintenance.CycleResult, err error) {
		if err == nil {
			err = publish(res)
		}
		if err != nil && failure == nil && !errors.Is(err, context.Canceled) {
			failure = err
			cancel()
		}
	})

	ticks := 0
	if cycles > 0 {
		ticks = cycles - 1
	}
	err = tc.Run(runCtx, ticks)
	if failure != nil {
		return failure
	}
	if err != nil && ctx.Err() != nil {
		e.log.Info(ctx, "maintenance interrupted", logging.Int("cycles", tc.Ticks()+1))
		return nil
	}
	return err
}

func (a *app) validate() error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	loaded, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	counts := make(map[string]int)
	for _, s := range loaded.Satellites {
		counts[s.Constellation]++
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(a.stdout, "configuration ok; catalog %s: %d satellites, %d rejected\n",
		cfg.Catalog.Path, len(loaded.Satellites), len(loaded.Rejected))
	for _, name := range names {
		fmt.Fprintf(a.stdout, "  %-12s %4d satellites, target pool %d\n", name, counts[name], cfg.TargetFor(name))
	}
	for _, rej := range loaded.Rejected {
		fmt.Fprintf(a.stdout, "  rejected %q: %s\n", rej.Name, rej.Reason)
	}
	return nil
}

func (a *app) writeReport(cfg config.Config, r *pipeline.Report) error {
	var w io.Writer = a.stdout
	if path := cfg.Runtime.OutputPath; path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		defer f.Close()
		w = f
	}
	return pipeline.WriteReport(w, r, cfg.Runtime.OutputFormat)
}

func serveMetrics(addr string, handler http.Handler, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
