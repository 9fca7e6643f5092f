package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	SlackUserTokenPrefix = "xoxp-"
	SlackBotTokenPrefix  = "xoxb-"
)

type TokenKind string

const (
	TokenKindUser    TokenKind = "user"
	TokenKindBot     TokenKind = "bot"
	TokenKindUnknown TokenKind = "unknown"
)

func SlackTokenKind(token string) TokenKind {
	token = strings.TrimSpace(token)
	switch {
	case strings.HasPrefix(token, SlackUserTokenPrefix):
		return TokenKindUser
	case strings.HasPrefix(token, SlackBotTokenPrefix):
		return TokenKindBot
	default:
		return TokenKindUnknown
	}
}

// ValidateSlackToken checks the token prefix convention before any API use.
func ValidateSlackToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return NewError("core: slack token is required", goerrors.CategoryAuth, ErrorAuth).
			WithMetadata(map[string]any{MetadataReauthRequired: true})
	}
	if SlackTokenKind(token) == TokenKindUnknown {
		return NewError("core: slack token has an unsupported prefix", goerrors.CategoryAuth, ErrorAuth).
			WithMetadata(map[string]any{
				MetadataReauthRequired: true,
				"token":                MaskToken(token),
			})
	}
	return nil
}

// CredentialNotFound is the AUTH error returned when a user has no active token.
func CredentialNotFound(provider string, userID string) error {
	return NewError(
		fmt.Sprintf("core: no active %s credential for user %q", provider, userID),
		goerrors.CategoryAuth,
		ErrorAuth,
	).WithMetadata(map[string]any{
		MetadataReauthRequired: true,
		"provider":             provider,
		"user_id":              userID,
	})
}

type MemoryCredentialStore struct {
	mu      sync.RWMutex
	entries map[string]Credential
	Now     func() time.Time
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		entries: map[string]Credential{},
		Now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryCredentialStore) Get(_ context.Context, provider string, userID string) (Credential, error) {
	if s == nil {
		return Credential{}, fmt.Errorf("core: credential store is nil")
	}
	provider = normalizeProvider(provider)
	userID = strings.TrimSpace(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.entries[credentialKey(provider, userID)]
	if !ok || cred.Status != CredentialStatusActive {
		return Credential{}, CredentialNotFound(provider, userID)
	}
	return cloneCredential(cred), nil
}

func (s *MemoryCredentialStore) Save(_ context.Context, in SaveCredentialInput) (Credential, error) {
	if s == nil {
		return Credential{}, fmt.Errorf("core: credential store is nil")
	}
	in.Provider = normalizeProvider(in.Provider)
	in.UserID = strings.TrimSpace(in.UserID)
	in.Token = strings.TrimSpace(in.Token)
	if in.Provider == "" || in.UserID == "" {
		return Credential{}, fmt.Errorf("core: provider and user id are required")
	}
	if in.Token == "" {
		return Credential{}, fmt.Errorf("core: token is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		s.entries = map[string]Credential{}
	}
	now := s.now()
	key := credentialKey(in.Provider, in.UserID)
	cred := Credential{
		ID:        uuid.NewString(),
		Provider:  in.Provider,
		UserID:    in.UserID,
		TeamID:    strings.TrimSpace(in.TeamID),
		Token:     in.Token,
		Scopes:    append([]string(nil), in.Scopes...),
		Status:    CredentialStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing, ok := s.entries[key]; ok {
		cred.ID = existing.ID
		cred.CreatedAt = existing.CreatedAt
	}
	s.entries[key] = cred
	return cloneCredential(cred), nil
}

func (s *MemoryCredentialStore) Revoke(_ context.Context, provider string, userID string, _ string) error {
	if s == nil {
		return fmt.Errorf("core: credential store is nil")
	}
	key := credentialKey(normalizeProvider(provider), strings.TrimSpace(userID))
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.entries[key]
	if !ok {
		return nil
	}
	cred.Status = CredentialStatusRevoked
	cred.UpdatedAt = s.now()
	s.entries[key] = cred
	return nil
}

func (s *MemoryCredentialStore) ListByTeam(_ context.Context, provider string, teamID string) ([]Credential, error) {
	if s == nil {
		return nil, fmt.Errorf("core: credential store is nil")
	}
	provider = normalizeProvider(provider)
	teamID = strings.TrimSpace(teamID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Credential{}
	for _, cred := range s.entries {
		if cred.Provider != provider || cred.TeamID != teamID || cred.Status != CredentialStatusActive {
			continue
		}
		out = append(out, cloneCredential(cred))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *MemoryCredentialStore) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func credentialKey(provider string, userID string) string {
	return provider + "::" + userID
}

func normalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

func cloneCredential(cred Credential) Credential {
	cred.Scopes = append([]string(nil), cred.Scopes...)
	return cred
}

var (
	_ CredentialStore      = (*MemoryCredentialStore)(nil)
	_ TeamCredentialLister = (*MemoryCredentialStore)(nil)
)
