package provider

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/berth-ops/notify-api/internal/model"
	apperrors "github.com/berth-ops/notify-api/pkg/errors"
	"github.com/berth-ops/notify-api/pkg/logger"
)

// Registry owns the adapter set. Its Send and Test methods always return a
// Result, never panic, so one broken adapter cannot take down a dispatch
// cycle.
type Registry struct {
	adapters map[model.Provider]Adapter
	logger   *logger.Logger
}

func NewRegistry(client *http.Client, logger *logger.Logger) *Registry {
	if client == nil {
		client = NewHTTPClient()
	}
	r := &Registry{
		adapters: make(map[model.Provider]Adapter),
		logger:   logger,
	}
	r.register(NewSMTPAdapter())
	r.register(NewResendAdapter(client))
	r.register(NewDiscordAdapter(client))
	r.register(NewTelegramAdapter(client))
	r.register(NewSlackAdapter(client))
	return r
}

func (r *Registry) register(a Adapter) {
	r.adapters[a.Provider()] = a
}

// Get returns the adapter for a provider, when one is registered.
func (r *Registry) Get(p model.Provider) (Adapter, bool) {
	a, ok := r.adapters[p]
	return a, ok
}

// Providers lists the registered providers in stable order.
func (r *Registry) Providers() []model.Provider {
	out := make([]model.Provider, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Validate reports whether cfg is acceptable for the provider. A missing
// adapter counts as invalid.
func (r *Registry) Validate(p model.Provider, cfg model.JSONMap) bool {
	a, ok := r.adapters[p]
	if !ok {
		return false
	}
	return a.ValidateConfig(cfg) == nil
}

// ValidateConfig returns the detailed validation error for a provider's
// config, for surfacing to API callers.
func (r *Registry) ValidateConfig(p model.Provider, cfg model.JSONMap) error {
	a, ok := r.adapters[p]
	if !ok {
		return apperrors.NewBadRequest(fmt.Sprintf("unsupported provider: %s", p), nil)
	}
	return a.ValidateConfig(cfg)
}

// Send delivers msg through the provider's adapter.
func (r *Registry) Send(ctx context.Context, p model.Provider, cfg model.JSONMap, msg *Message) *Result {
	return r.run(p, func(a Adapter) error {
		return a.Send(ctx, cfg, msg)
	})
}

// Test sends a canned message through the provider's adapter. An empty
// recipient falls back to the channel's configured recipients.
func (r *Registry) Test(ctx context.Context, p model.Provider, cfg model.JSONMap, recipient string) *Result {
	return r.run(p, func(a Adapter) error {
		return a.Test(ctx, cfg, recipient)
	})
}

func (r *Registry) run(p model.Provider, op func(Adapter) error) (res *Result) {
	res = &Result{Timestamp: time.Now().UTC()}

	defer func() {
		if rec := recover(); rec != nil {
			err := apperrors.NewInternal(fmt.Errorf("adapter %s panicked: %v", p, rec))
			res.Success = false
			res.Err = err
			res.Message = Redact(err.Error())
			if r.logger != nil {
				r.logger.Error(err, "provider adapter panicked", "provider", string(p))
			}
		}
	}()

	a, ok := r.adapters[p]
	if !ok {
		res.Err = apperrors.NewBadRequest(fmt.Sprintf("unsupported provider: %s", p), nil)
		res.Message = res.Err.Error()
		return res
	}

	if err := op(a); err != nil {
		res.Err = err
		res.Message = Redact(err.Error())
		return res
	}

	res.Success = true
	res.Message = fmt.Sprintf("delivered via %s", p)
	return res
}
