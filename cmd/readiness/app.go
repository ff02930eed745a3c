package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/snow-ghost/readiness/combo"
	"github.com/snow-ghost/readiness/config"
	"github.com/snow-ghost/readiness/core"
	"github.com/snow-ghost/readiness/distill"
	"github.com/snow-ghost/readiness/intent"
	"github.com/snow-ghost/readiness/llm/mock"
	"github.com/snow-ghost/readiness/pkg/observability"
	"github.com/snow-ghost/readiness/pkg/progress"
	"github.com/snow-ghost/readiness/pkg/providers"
	"github.com/snow-ghost/readiness/pkg/registry"
	"github.com/snow-ghost/readiness/pkg/store"
	"github.com/snow-ghost/readiness/pkg/tokens"
	"github.com/snow-ghost/readiness/prosthetic"
	"github.com/snow-ghost/readiness/readiness"
	"github.com/snow-ghost/readiness/residency"
	"github.com/snow-ghost/readiness/testkit"
)

// app wires the configured collaborators of one command invocation
type app struct {
	cfg     *config.Config
	obs     *observability.Manager
	store   store.Store
	hub     *progress.Hub
	tokens  *tokens.EncoderRegistry
	gateway core.Gateway
	loader  *residency.Loader
	mocks   *mock.Gateway
}

func newApp(flags *globalFlags) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}

	obs, err := observability.NewManager(observability.Config{
		ServiceName:    "readiness",
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		JaegerEndpoint: cfg.Tracing.JaegerEndpoint,
		LogLevel:       cfg.Log.Level,
		LogFormat:      cfg.Log.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up observability: %w", err)
	}

	st, err := store.New(store.Config{
		UseSQLite: cfg.Store.SQLitePath != "",
		DBPath:    cfg.Store.SQLitePath,
		Cache:     cfg.Store.Cache,
		CacheSize: cfg.Store.CacheSize,
	}, obs.GetMetrics())
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		obs:    obs,
		store:  st,
		hub:    progress.NewHub(),
		tokens: tokens.GetDefaultRegistry(),
	}

	var rt core.ModelRuntime
	if flags.mock {
		a.mocks = mock.NewGateway().SetFallback(mock.Oracle(testkit.OracleRules()))
		a.gateway = a.mocks
		rt = mock.NewRuntime()
	} else {
		reg, err := registry.NewLoader(cfg.Runtime.RegistryFile).LoadRegistry()
		if err != nil {
			st.Close()
			return nil, err
		}
		if cfg.Runtime.Provider != "" {
			reg.Defaults.Provider = cfg.Runtime.Provider
		}
		if cfg.Runtime.BaseURL != "" {
			reg.Defaults.BaseURL = cfg.Runtime.BaseURL
		}
		factory := providers.NewFactory(a.tokens, &http.Client{Timeout: 5 * time.Minute})
		gw := providers.NewGateway(reg, factory, providers.GatewayOptions{
			Logger:  obs.GetLogger(),
			Metrics: obs.GetMetrics(),
			Tracer:  obs.GetTracer(),
		})
		a.gateway = gw
		rt = gw.Runtime()
	}

	a.loader = residency.NewLoader(rt, residency.Options{
		PairContext:   cfg.Residency.PairContext,
		SingleContext: cfg.Residency.SingleContext,
		Broadcaster:   a.hub,
		Logger:        obs.GetLogger(),
		Metrics:       obs.GetMetrics(),
	})
	return a, nil
}

// useModels scripts mock models by name: names containing "degraded" answer
// one prompt in three without tools, "slow" ones take longer than any task
// timeout, everything else answers perfectly
func (a *app) useModels(names ...string) {
	if a.mocks == nil {
		return
	}
	oracle := mock.Oracle(testkit.OracleRules())
	for _, n := range names {
		switch {
		case strings.Contains(n, "degraded"):
			a.mocks.Register(n, mock.Degraded(oracle, 3))
		case strings.Contains(n, "slow"):
			a.mocks.Register(n, mock.Slow(oracle, a.cfg.Combo.TaskTimeout+time.Second))
		}
	}
}

func (a *app) close(ctx context.Context) {
	if err := a.store.Close(); err != nil {
		a.obs.GetLogger().Warn("failed to close store", "error", err)
	}
	_ = a.obs.Shutdown(ctx)
}

// evaluationRouter routes without prosthetics so disqualified models are re-measured
func (a *app) evaluationRouter() *intent.Router {
	return intent.NewRouter(a.gateway, intent.Options{Logger: a.obs.GetLogger()})
}

func (a *app) comboTester() *combo.Tester {
	return combo.NewTester(a.evaluationRouter(), combo.Options{
		TaskTimeout:         a.cfg.Combo.TaskTimeout,
		MaxTimeoutsPerCombo: a.cfg.Combo.MaxTimeoutsPerCombo,
		Loader:              a.loader,
		Tokens:              a.tokens,
		Store:               a.store,
		Broadcaster:         a.hub,
		Logger:              a.obs.GetLogger(),
		Metrics:             a.obs.GetMetrics(),
		Tracer:              a.obs.GetTracer(),
	})
}

func (a *app) readinessRunner() *readiness.Runner {
	return readiness.NewRunner(a.evaluationRouter(), readiness.Options{
		Threshold:    a.cfg.Readiness.Threshold,
		ProbeTimeout: a.cfg.Readiness.ProbeTimeout,
		Loader:       a.loader,
		Store:        a.store,
		Broadcaster:  a.hub,
		Logger:       a.obs.GetLogger(),
		Metrics:      a.obs.GetMetrics(),
		Tracer:       a.obs.GetTracer(),
	})
}

func (a *app) distiller() *distill.Distiller {
	return distill.NewDistiller(a.evaluationRouter(), distill.Options{
		SuccessThreshold: a.cfg.Distill.SuccessThreshold,
		CaseTimeout:      a.cfg.Distill.CaseTimeout,
		Store:            a.store,
		Broadcaster:      a.hub,
		Logger:           a.obs.GetLogger(),
		Metrics:          a.obs.GetMetrics(),
		Tracer:           a.obs.GetTracer(),
	})
}

func (a *app) builder() *prosthetic.Builder {
	return prosthetic.NewBuilder(prosthetic.Options{Logger: a.obs.GetLogger()})
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
