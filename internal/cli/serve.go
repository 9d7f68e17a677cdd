package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/autocat/internal/observability"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Interval    time.Duration
	MetricsAddr string
	Once        bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Maintain every grouping on an interval and expose metrics",
		Long: `Run a full maintain pass over every enabled grouping, then repeat on
each tick until interrupted. Prometheus metrics are served on /metrics.

Example:
  autocat serve --interval 5m --metrics-addr :9090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.Interval, "interval", 5*time.Minute, "time between maintain passes")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "metrics listen address (overrides config, \"-\" disables)")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "run a single pass and exit")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	f := newFormatter(opts.RootOptions, cmd)
	if opts.Interval <= 0 && !opts.Once {
		return f.fail(ExitCommandError, ErrCodeArgs, "--interval must be positive", nil)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	app, err := openApp(ctx, opts.RootOptions, f, appNeeds{groupings: true})
	if err != nil {
		return err
	}
	defer app.Close(context.WithoutCancel(ctx))

	pass := func(ctx context.Context) bool {
		return app.Runner.RunAll(ctx, app.Registry, nil).OK()
	}

	if opts.Once {
		if !pass(ctx) {
			return f.fail(ExitFailure, ErrCodeRunFailed, "one or more groupings failed", nil)
		}
		return f.Success("\u2713 maintain pass complete")
	}

	addr := app.Config.Metrics.Addr
	if opts.MetricsAddr != "" {
		addr = opts.MetricsAddr
	}

	g, gctx := errgroup.WithContext(ctx)
	if addr != "-" && addr != "" {
		srv := newMetricsServer(addr, app)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return f.fail(ExitCommandError, ErrCodeServeFailed, "failed to listen", err)
		}
		app.Log.Info("metrics server listening", "addr", ln.Addr().String())
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return maintainLoop(gctx, opts.Interval, pass)
	})

	if err := g.Wait(); err != nil {
		return f.fail(ExitCommandError, ErrCodeServeFailed, "serve failed", err)
	}
	app.Log.Info("serve stopped")
	return nil
}

// maintainLoop runs pass every interval until ctx is done. Each pass runs
// under ctx, so cancelling it also stops a batch in progress.
func maintainLoop(ctx context.Context, every time.Duration, pass func(context.Context) bool) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		pass(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// newMetricsServer serves /metrics and a liveness check on /healthz.
func newMetricsServer(addr string, app *App) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(app.Gatherer))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
