package actions

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-mods/core"
	"github.com/goliatone/go-mods/ratelimit"
	"github.com/goliatone/go-mods/response"
	"github.com/goliatone/go-mods/transport"
)

// CallProvider sends req through adapter behind the handler's breaker, queue
// and cooldown policy. Rate-limit headers feed the policy and non-2xx statuses
// come back as classified errors.
func CallProvider(
	ctx context.Context,
	h *response.Handler,
	adapter core.TransportAdapter,
	name string,
	scope string,
	req core.TransportRequest,
) (core.TransportResponse, error) {
	if adapter == nil {
		return core.TransportResponse{}, core.NewError("actions: transport adapter is required", goerrors.CategoryInternal, core.ErrorInternal).
			WithMetadata(map[string]any{"call": name})
	}
	provider := core.ProviderSlack
	var (
		policy   *ratelimit.AdaptivePolicy
		observer *core.Observer
	)
	if h != nil {
		provider = h.Provider
		policy = h.Policy
		observer = h.Observer
	}
	return response.Execute(ctx, h, name, func(ctx context.Context) (core.TransportResponse, error) {
		res, err := adapter.Do(ctx, req)
		if err != nil {
			return core.TransportResponse{}, err
		}
		if err := policy.AfterCall(ctx, ratelimit.Key{Provider: provider, Operation: name, Scope: scope}, ratelimit.ResponseMeta{
			StatusCode: res.StatusCode,
			Headers:    res.Headers,
		}); err != nil {
			observer.Log(ctx, "warn", "actions: failed to record rate-limit state", map[string]any{
				"provider": provider,
				"call":     name,
				"error":    err.Error(),
			})
		}
		if err := transport.StatusError(provider, res); err != nil {
			return core.TransportResponse{}, err
		}
		return res, nil
	}, response.WithScope(scope), response.WithFields(map[string]any{"adapter": adapter.Kind()}))
}

// ProviderToken loads the caller's token for provider.
func ProviderToken(ctx context.Context, store core.CredentialStore, provider string, req Request) (core.Credential, error) {
	if store == nil {
		return core.Credential{}, actionInternal("actions: credential store is required", map[string]any{"provider": provider})
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return core.Credential{}, actionValidationError("meta.user.id", "calling user is required")
	}
	return store.Get(ctx, provider, userID)
}
