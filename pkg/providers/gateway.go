package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/snow-ghost/readiness/core"
	"github.com/snow-ghost/readiness/pkg/chat"
	"github.com/snow-ghost/readiness/pkg/limiter"
	"github.com/snow-ghost/readiness/pkg/logging"
	"github.com/snow-ghost/readiness/pkg/metrics"
	"github.com/snow-ghost/readiness/pkg/registry"
	"github.com/snow-ghost/readiness/pkg/tracing"
)

// Gateway resolves model identifiers through the registry and calls the
// provider behind rate limiting, retries and a circuit breaker
type Gateway struct {
	registry   *registry.Registry
	factory    *Factory
	protection *limiter.ProtectionManager
	logger     *logging.Logger
	metrics    *metrics.PrometheusMetrics
	tracer     *tracing.Tracer
}

var _ core.Gateway = (*Gateway)(nil)

// GatewayOptions carries the optional collaborators of a Gateway
type GatewayOptions struct {
	Protection *limiter.ProtectionManager
	Logger     *logging.Logger
	Metrics    *metrics.PrometheusMetrics
	Tracer     *tracing.Tracer
}

// NewGateway creates an inference gateway
func NewGateway(reg *registry.Registry, factory *Factory, opts GatewayOptions) *Gateway {
	g := &Gateway{
		registry:   reg,
		factory:    factory,
		protection: opts.Protection,
		logger:     logging.OrNop(opts.Logger),
		metrics:    metrics.OrDiscard(opts.Metrics),
		tracer:     tracing.OrNop(opts.Tracer),
	}
	if g.protection == nil {
		g.protection = limiter.NewProtectionManager(nil, limiter.DefaultCircuitBreakerConfig(), g.logger, g.metrics)
	}
	return g
}

// Chat performs one chat completion for the model
func (g *Gateway) Chat(ctx context.Context, model string, req chat.ChatRequest) (chat.ChatResponse, error) {
	mc := g.registry.Resolve(model)
	if mc.Provider == "" {
		return chat.ChatResponse{}, fmt.Errorf("%w: %s", core.ErrModelNotFound, model)
	}
	provider, err := g.factory.ForModel(mc)
	if err != nil {
		return chat.ChatResponse{}, err
	}
	if req.Temperature == 0 {
		req.Temperature = mc.Temperature()
	}
	req.Model = mc.ID

	ctx, span := g.tracer.StartInferenceSpan(ctx, mc.Provider, mc.ID)
	defer span.End()

	start := time.Now()
	result, err := g.protection.Execute(ctx, mc, func(ctx context.Context) (interface{}, error) {
		return provider.Chat(ctx, mc, req)
	})
	duration := time.Since(start)
	tracing.RecordSpanDuration(span, duration)

	if err != nil {
		tracing.RecordSpanError(span, err)
		g.metrics.RecordInference(mc.Provider, mc.ID, "error", duration, 0, 0)
		g.logger.LogInference(ctx, mc.Provider, mc.ID, "error", duration, 0)
		return chat.ChatResponse{}, err
	}

	resp := result.(chat.ChatResponse)
	tracing.RecordSpanTokens(span, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	tracing.RecordSpanSuccess(span)
	g.metrics.RecordInference(mc.Provider, mc.ID, "success", duration, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	g.logger.LogInference(ctx, mc.Provider, mc.ID, "success", duration, resp.Usage.TotalTokens)
	return resp, nil
}

// Runtime returns the residency controller for the registry's default endpoint.
// Only Ollama exposes residency; other providers get nil.
func (g *Gateway) Runtime() core.ModelRuntime {
	if g.registry.Defaults.Provider != "ollama" {
		return nil
	}
	return g.factory.Ollama(g.registry.Defaults.BaseURL)
}
