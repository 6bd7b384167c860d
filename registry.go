package clientauth

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/ggoodman/clientauth-go/internal/logctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/ggoodman/clientauth-go"

// Registry holds the providers available to a deployment and runs
// authentication attempts against them. It is safe for concurrent use.
type Registry struct {
	log             *slog.Logger
	authentications metric.Int64Counter

	mu        sync.RWMutex
	providers map[string]Provider
}

type registryConfig struct {
	logHandler    slog.Handler
	meterProvider metric.MeterProvider
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryConfig)

// WithLogHandler sets the slog handler. Defaults to slog.DiscardHandler.
func WithLogHandler(h slog.Handler) RegistryOption {
	return func(c *registryConfig) { c.logHandler = h }
}

// WithMeterProvider sets the meter provider. Defaults to otel.GetMeterProvider().
func WithMeterProvider(mp metric.MeterProvider) RegistryOption {
	return func(c *registryConfig) { c.meterProvider = mp }
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	var cfg registryConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.meterProvider == nil {
		cfg.meterProvider = otel.GetMeterProvider()
	}

	counter, err := cfg.meterProvider.Meter(instrumentationName).Int64Counter(
		"clientauth.authentications",
		metric.WithDescription("Client authentication attempts by provider and outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("clientauth: create counter: %w", err)
	}

	return &Registry{
		log:             logctx.New(cfg.logHandler),
		authentications: counter,
		providers:       make(map[string]Provider),
	}, nil
}

// Register adds p. Provider IDs must be unique and non-empty.
func (r *Registry) Register(p Provider) error {
	id := p.ProviderID()
	if id == "" {
		return fmt.Errorf("clientauth: provider id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateProvider, id)
	}
	r.providers[id] = p
	return nil
}

// Lookup returns the provider registered under id.
func (r *Registry) Lookup(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// Providers returns all providers sorted by ID.
func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderID() < out[j].ProviderID() })
	return out
}

// Methods returns the sorted, de-duplicated protocol methods supported by all
// providers for loginProtocol.
func (r *Registry) Methods(loginProtocol string) []string {
	var methods []string
	for _, p := range r.Providers() {
		for _, m := range p.ProtocolMethods(loginProtocol) {
			if !slices.Contains(methods, m) {
				methods = append(methods, m)
			}
		}
	}
	slices.Sort(methods)
	return methods
}

// Authenticate runs the provider registered under providerID against fc and
// returns the recorded outcome.
func (r *Registry) Authenticate(ctx context.Context, providerID string, fc *FlowContext) (Outcome, error) {
	p, ok := r.Lookup(providerID)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}

	fc.attempt.Provider = providerID
	ctx = fc.LogContext(ctx)
	r.log.DebugContext(ctx, "client_auth.start")

	p.AuthenticateClient(ctx, fc)

	out := fc.Outcome()
	if out.Status == StatusUnset {
		r.log.ErrorContext(ctx, "client_auth.no_outcome")
		_ = fc.Failure(FlowErrorInternal, nil)
		out = fc.Outcome()
	}

	r.authentications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", providerID),
		attribute.String("outcome", out.Status.String()),
		attribute.String("error", string(out.Error)),
	))
	r.log.InfoContext(ctx, "client_auth.done",
		slog.String("outcome", out.Status.String()),
		slog.String("error", string(out.Error)),
	)

	return out, nil
}
