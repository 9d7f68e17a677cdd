package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/roach88/autocat/internal/config"
	"github.com/roach88/autocat/internal/grouping"
	"github.com/roach88/autocat/internal/ir"
	"github.com/roach88/autocat/internal/lock"
	"github.com/roach88/autocat/internal/logger"
	"github.com/roach88/autocat/internal/observability"
	"github.com/roach88/autocat/internal/reconcile"
	"github.com/roach88/autocat/internal/runner"
	"github.com/roach88/autocat/internal/store"
)

// Version is stamped on traces. Release builds override it with -ldflags.
var Version = ir.Version

// App holds the wired dependencies of a command.
type App struct {
	Config     config.Config
	Log        *logger.Logger
	Store      *store.Store
	Registry   *grouping.Registry
	Reconciler *reconcile.Reconciler
	Runner     *runner.Runner
	Metrics    *observability.Metrics
	Gatherer   prometheus.Gatherer

	closers []func(context.Context) error
}

// appNeeds selects which parts openApp builds.
type appNeeds struct {
	groupings bool
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if opts.Database != "" {
		cfg.Database.DSN = opts.Database
	}
	if opts.Groupings != "" {
		cfg.GroupingsDir = opts.Groupings
	}
	if opts.Verbose {
		cfg.Log.Mode = "debug"
	}
	return cfg, cfg.Validate()
}

// openApp wires config, logging, tracing, store, groupings, lock and
// metrics. Errors are already printed through f. Call Close when done.
func openApp(ctx context.Context, opts *RootOptions, f *OutputFormatter, needs appNeeds) (*App, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, f.fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}

	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return nil, f.fail(ExitCommandError, ErrCodeConfig, "failed to build logger", err)
	}
	app := &App{Config: cfg, Log: log}
	app.closers = append(app.closers, func(context.Context) error {
		log.Sync()
		return nil
	})

	shutdownTracing, err := observability.InitTracing(ctx, log, observability.TracingConfig{
		ServiceName: "autocat",
		Version:     Version,
	})
	if err != nil {
		app.Close(ctx)
		return nil, f.fail(ExitCommandError, ErrCodeConfig, "failed to initialise tracing", err)
	}
	app.closers = append(app.closers, shutdownTracing)

	st, err := store.OpenWith(ctx, store.Options{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MembershipTable: cfg.Database.MembershipTable,
	})
	if err != nil {
		app.Close(ctx)
		return nil, f.fail(ExitCommandError, ErrCodeStore, "failed to open store", err)
	}
	app.Store = st
	app.closers = append(app.closers, func(context.Context) error { return st.Close() })
	log.Debug("store opened", "driver", cfg.Database.Driver, "table", st.MembershipTable())

	if !needs.groupings {
		return app, nil
	}

	res, errs := config.LoadGroupings(cfg.GroupingsDir, config.LoadModeFailFast)
	if len(errs) > 0 {
		app.Close(ctx)
		code := config.ErrCodeGeneric
		var loadErr *config.LoadError
		if errors.As(errs[0], &loadErr) {
			code = loadErr.Code
		}
		return nil, f.fail(ExitCommandError, code, "failed to load groupings", errs[0])
	}
	app.Registry = res.Registry
	log.Debug("groupings loaded", "dir", cfg.GroupingsDir, "count", res.Registry.Len())

	locker, closeLocker, err := newLocker(ctx, cfg.Lock)
	if err != nil {
		app.Close(ctx)
		return nil, f.fail(ExitCommandError, ErrCodeConfig, "failed to set up lock backend", err)
	}
	if closeLocker != nil {
		app.closers = append(app.closers, closeLocker)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := observability.NewMetrics(reg)
	if err != nil {
		app.Close(ctx)
		return nil, f.fail(ExitCommandError, ErrCodeConfig, "failed to register metrics", err)
	}
	app.Metrics = metrics
	app.Gatherer = reg

	rec, err := reconcile.New(st, app.Registry,
		reconcile.WithTransaction(cfg.TransactionEnabled()),
		reconcile.WithLocker(locker),
		reconcile.WithLogger(log),
		reconcile.WithMetrics(metrics),
		reconcile.WithTracer(observability.Tracer()),
	)
	if err != nil {
		app.Close(ctx)
		return nil, f.fail(ExitCommandError, ErrCodeConfig, "failed to build reconciler", err)
	}
	app.Reconciler = rec
	app.Runner = runner.New(rec, log, cfg.Runner.Concurrency)
	return app, nil
}

// newLocker builds the configured lock backend.
func newLocker(ctx context.Context, cfg config.LockConfig) (lock.Locker, func(context.Context) error, error) {
	switch cfg.Backend {
	case config.LockNone:
		return lock.Noop{}, nil, nil
	case config.LockRedis:
		client, err := lock.DialRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		var redisOpts []lock.RedisOption
		if cfg.TTL > 0 {
			redisOpts = append(redisOpts, lock.WithTTL(cfg.TTL))
		}
		closeFn := func(context.Context) error { return closeRedis(client) }
		return lock.NewRedis(client, redisOpts...), closeFn, nil
	case config.LockLocal, "":
		return lock.NewLocal(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown lock backend %q", cfg.Backend)
	}
}

func closeRedis(client *goredis.Client) error {
	return client.Close()
}

// Close releases everything openApp acquired, newest first.
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil && a.Log != nil {
			a.Log.Warn("shutdown step failed", "error", err)
		}
	}
	a.closers = nil
}
