package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/snow-ghost/readiness/core"
	"github.com/snow-ghost/readiness/pkg/httpserver"
)

func newServeCommand(flags *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve health, metrics, live progress and stored results over HTTP",
		Long: `Serve the observability surface:

  GET  /health                    liveness
  GET  /metrics                   prometheus metrics
  GET  /events                    progress events (SSE)
  GET  /ws                        progress events (WebSocket)
  GET  /v1/combos?main=           stored combo scores
  POST /v1/combos/run             start a combo batch {"mains": [...], "executors": [...]}
  GET  /v1/prosthetics/{model}    prosthetic config
  GET  /v1/profiles/{model}       readiness profile`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.close(context.Background())
			if addr == "" {
				addr = a.cfg.HTTP.Addr
			}

			server := httpserver.NewServer(httpserver.Options{
				Addr:        addr,
				Logger:      a.obs.GetLogger(),
				Hub:         a.hub,
				Gatherer:    a.obs.Registry(),
				Store:       a.store,
				Runner:      &mockAwareRunner{app: a},
				BaseContext: ctx,
			})
			a.obs.GetLogger().Info("starting readiness server", "addr", addr, "mock", flags.mock)
			return server.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: http.addr)")
	return cmd
}

// mockAwareRunner scripts the requested models before running a batch
type mockAwareRunner struct {
	app *app
}

func (r *mockAwareRunner) RunAll(ctx context.Context, mains, executors []string) []core.ComboScore {
	r.app.useModels(append(append([]string(nil), mains...), executors...)...)
	return r.app.comboTester().RunAll(ctx, mains, executors)
}
