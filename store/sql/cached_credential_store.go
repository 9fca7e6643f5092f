package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-mods/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const credentialCacheKeyPrefix = "go-mods::credential::v1"

// CredentialRepository is a credential store that can also list a team.
type CredentialRepository interface {
	core.CredentialStore
	core.TeamCredentialLister
}

// CachedCredentialStore memoizes active credential lookups. Save and Revoke
// evict the affected entry after the base store commits.
type CachedCredentialStore struct {
	base  CredentialRepository
	cache repositorycache.CacheService
}

func NewCachedCredentialStore(
	base CredentialRepository,
	cacheService repositorycache.CacheService,
) (*CachedCredentialStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base credential store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: credential cache service is required")
	}
	return &CachedCredentialStore{base: base, cache: cacheService}, nil
}

func CredentialCacheKey(provider string, userID string) (string, error) {
	provider = normalizeProvider(provider)
	userID = strings.TrimSpace(userID)
	if provider == "" || userID == "" {
		return "", fmt.Errorf("sqlstore: provider and user id are required for credential cache key")
	}
	return joinCacheKey(credentialCacheKeyPrefix, provider, userID), nil
}

func (s *CachedCredentialStore) Get(ctx context.Context, provider string, userID string) (core.Credential, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	cacheKey, err := CredentialCacheKey(provider, userID)
	if err != nil {
		return core.Credential{}, err
	}
	credential, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Credential, error) {
		return s.base.Get(ctx, provider, userID)
	})
	if err != nil {
		return core.Credential{}, err
	}
	credential.Scopes = append([]string(nil), credential.Scopes...)
	return credential, nil
}

func (s *CachedCredentialStore) Save(ctx context.Context, in core.SaveCredentialInput) (core.Credential, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	saved, err := s.base.Save(ctx, in)
	if err != nil {
		return core.Credential{}, err
	}
	if err := s.evict(ctx, saved.Provider, saved.UserID); err != nil {
		return core.Credential{}, err
	}
	return saved, nil
}

func (s *CachedCredentialStore) Revoke(ctx context.Context, provider string, userID string, reason string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	if err := s.base.Revoke(ctx, provider, userID, reason); err != nil {
		return err
	}
	return s.evict(ctx, provider, userID)
}

// ListByTeam is not cached; it runs on uninstall paths only.
func (s *CachedCredentialStore) ListByTeam(ctx context.Context, provider string, teamID string) ([]core.Credential, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	return s.base.ListByTeam(ctx, provider, teamID)
}

func (s *CachedCredentialStore) evict(ctx context.Context, provider string, userID string) error {
	cacheKey, err := CredentialCacheKey(provider, userID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}
