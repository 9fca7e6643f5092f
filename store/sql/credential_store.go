package sqlstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-mods/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	revocationReplaced = "replaced"
	revocationDefault  = "revoked"
)

// resealer is implemented by secret providers that can tell when a ciphertext
// was produced by a retired key.
type resealer interface {
	NeedsReseal(ciphertext []byte) bool
}

// CredentialStore persists one active token per provider and user. Tokens are
// sealed with the configured SecretProvider before they reach the database.
type CredentialStore struct {
	db      *bun.DB
	repo    repository.Repository[*credentialRecord]
	secrets core.SecretProvider
	now     func() time.Time
}

func NewCredentialStore(db *bun.DB, secrets core.SecretProvider) (*CredentialStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	if secrets == nil {
		return nil, fmt.Errorf("sqlstore: secret provider is required")
	}
	repo := repository.NewRepository[*credentialRecord](db, credentialHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid credential repository wiring: %w", err)
		}
	}
	return &CredentialStore{
		db:      db,
		repo:    repo,
		secrets: secrets,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *CredentialStore) Get(ctx context.Context, provider string, userID string) (core.Credential, error) {
	if s == nil || s.repo == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	provider = normalizeProvider(provider)
	userID = strings.TrimSpace(userID)
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("provider", "=", provider),
		repository.SelectBy("user_id", "=", userID),
		repository.SelectBy("status", "=", string(core.CredentialStatusActive)),
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Credential{}, err
	}
	if len(records) == 0 {
		return core.Credential{}, core.CredentialNotFound(provider, userID)
	}
	record := records[0]
	credential, err := s.open(ctx, record)
	if err != nil {
		return core.Credential{}, err
	}
	s.resealIfRetired(ctx, record, credential.Token)
	return credential, nil
}

// Save revokes any active token for the same provider and user and stores the
// new one in a single transaction.
func (s *CredentialStore) Save(ctx context.Context, in core.SaveCredentialInput) (core.Credential, error) {
	if s == nil || s.repo == nil || s.db == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	in.Provider = normalizeProvider(in.Provider)
	in.UserID = strings.TrimSpace(in.UserID)
	in.TeamID = strings.TrimSpace(in.TeamID)
	in.Token = strings.TrimSpace(in.Token)
	if in.Provider == "" || in.UserID == "" {
		return core.Credential{}, core.NewError("sqlstore: provider and user id are required", goerrors.CategoryBadInput, core.ErrorBadInput)
	}
	if in.Token == "" {
		return core.Credential{}, core.NewError("sqlstore: token is required", goerrors.CategoryBadInput, core.ErrorBadInput)
	}

	sealed, err := s.secrets.Encrypt(ctx, []byte(in.Token))
	if err != nil {
		return core.Credential{}, err
	}
	now := s.now()

	var created core.Credential
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := revokeActiveTx(ctx, tx, in.Provider, in.UserID, revocationReplaced, now); err != nil {
			return err
		}
		record := &credentialRecord{
			ID:             uuid.NewString(),
			Provider:       in.Provider,
			UserID:         in.UserID,
			TeamID:         in.TeamID,
			EncryptedToken: sealed,
			Scopes:         normalizeScopes(in.Scopes),
			Status:         string(core.CredentialStatusActive),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		inserted, createErr := s.repo.CreateTx(ctx, tx, record)
		if createErr != nil {
			return createErr
		}
		created = inserted.toDomain(in.Token)
		return nil
	})
	if err != nil {
		return core.Credential{}, err
	}
	return created, nil
}

func (s *CredentialStore) Revoke(ctx context.Context, provider string, userID string, reason string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	provider = normalizeProvider(provider)
	userID = strings.TrimSpace(userID)
	if provider == "" || userID == "" {
		return core.NewError("sqlstore: provider and user id are required", goerrors.CategoryBadInput, core.ErrorBadInput)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = revocationDefault
	}
	return revokeActiveTx(ctx, s.db, provider, userID, reason, s.now())
}

func (s *CredentialStore) ListByTeam(ctx context.Context, provider string, teamID string) ([]core.Credential, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: credential store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("provider", "=", normalizeProvider(provider)),
		repository.SelectBy("team_id", "=", strings.TrimSpace(teamID)),
		repository.SelectBy("status", "=", string(core.CredentialStatusActive)),
		repository.OrderBy("user_id ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Credential, 0, len(records))
	for _, record := range records {
		credential, err := s.open(ctx, record)
		if err != nil {
			return nil, err
		}
		out = append(out, credential)
	}
	return out, nil
}

func (s *CredentialStore) open(ctx context.Context, record *credentialRecord) (core.Credential, error) {
	plaintext, err := s.secrets.Decrypt(ctx, record.EncryptedToken)
	if err != nil {
		return core.Credential{}, core.WrapError(err, goerrors.CategoryAuth, core.ErrorAuth, "sqlstore: credential token cannot be decrypted").
			WithMetadata(map[string]any{
				core.MetadataReauthRequired: true,
				"provider":                  record.Provider,
				"user_id":                   record.UserID,
			})
	}
	return record.toDomain(string(plaintext)), nil
}

// resealIfRetired rewrites a token sealed by a retired app key. Failures are
// ignored: the old key keeps working until the next successful read.
func (s *CredentialStore) resealIfRetired(ctx context.Context, record *credentialRecord, token string) {
	checker, ok := s.secrets.(resealer)
	if !ok || !checker.NeedsReseal(record.EncryptedToken) {
		return
	}
	sealed, err := s.secrets.Encrypt(ctx, []byte(token))
	if err != nil {
		return
	}
	_, _ = s.db.NewUpdate().
		Model((*credentialRecord)(nil)).
		Set("encrypted_token = ?", sealed).
		Set("updated_at = ?", s.now()).
		Where("id = ?", record.ID).
		Exec(ctx)
}

func revokeActiveTx(ctx context.Context, db bun.IDB, provider string, userID string, reason string, at time.Time) error {
	_, err := db.NewUpdate().
		Model((*credentialRecord)(nil)).
		Set("status = ?", string(core.CredentialStatusRevoked)).
		Set("revocation_reason = ?", reason).
		Set("updated_at = ?", at).
		Where("provider = ?", provider).
		Where("user_id = ?", userID).
		Where("status = ?", string(core.CredentialStatusActive)).
		Exec(ctx)
	return err
}

func (r *credentialRecord) toDomain(token string) core.Credential {
	if r == nil {
		return core.Credential{}
	}
	return core.Credential{
		ID:        r.ID,
		Provider:  r.Provider,
		UserID:    r.UserID,
		TeamID:    r.TeamID,
		Token:     token,
		Scopes:    append([]string(nil), r.Scopes...),
		Status:    core.CredentialStatus(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func normalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

func normalizeScopes(scopes []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		scope = strings.TrimSpace(scope)
		if scope == "" {
			continue
		}
		if _, ok := seen[scope]; ok {
			continue
		}
		seen[scope] = struct{}{}
		out = append(out, scope)
	}
	sort.Strings(out)
	return out
}
