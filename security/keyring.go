package security

import (
	"context"
	"strings"

	"github.com/goliatone/go-mods/core"
)

// KeyRing encrypts with the active app key and decrypts with whichever
// registered key sealed the envelope.
type KeyRing struct {
	active  *AppKeySecretProvider
	retired map[string]*AppKeySecretProvider
}

func NewKeyRing(active *AppKeySecretProvider, retired ...*AppKeySecretProvider) (*KeyRing, error) {
	if active == nil {
		return nil, securityError("security: active key is required")
	}
	ring := &KeyRing{active: active, retired: map[string]*AppKeySecretProvider{}}
	for _, provider := range retired {
		if provider == nil || provider.KeyID() == active.KeyID() {
			continue
		}
		ring.retired[provider.KeyID()] = provider
	}
	return ring, nil
}

// NewKeyRingFromConfig builds the ring from store.app_key and the optional
// store.previous_app_key.
func NewKeyRingFromConfig(cfg core.StoreConfig) (*KeyRing, error) {
	active, err := NewAppKeySecretProviderFromString(cfg.AppKey)
	if err != nil {
		return nil, err
	}
	var retired []*AppKeySecretProvider
	if strings.TrimSpace(cfg.PreviousAppKey) != "" {
		previous, err := NewAppKeySecretProviderFromString(cfg.PreviousAppKey)
		if err != nil {
			return nil, err
		}
		retired = append(retired, previous)
	}
	return NewKeyRing(active, retired...)
}

func (r *KeyRing) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	if r == nil || r.active == nil {
		return nil, securityError("security: key ring is nil")
	}
	return r.active.Encrypt(ctx, plaintext)
}

func (r *KeyRing) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if r == nil || r.active == nil {
		return nil, securityError("security: key ring is nil")
	}
	meta, err := ParseEnvelopeMetadata(ciphertext)
	if err != nil {
		return nil, err
	}
	if meta.KeyID == "" || meta.KeyID == r.active.KeyID() {
		return r.active.Decrypt(ctx, ciphertext)
	}
	if provider, ok := r.retired[meta.KeyID]; ok {
		return provider.Decrypt(ctx, ciphertext)
	}
	return nil, keyMismatchError("security: no key registered for envelope", map[string]any{
		"kid": meta.KeyID,
	})
}

// NeedsReseal reports whether the ciphertext was sealed by a retired key.
func (r *KeyRing) NeedsReseal(ciphertext []byte) bool {
	if r == nil || r.active == nil {
		return false
	}
	meta, err := ParseEnvelopeMetadata(ciphertext)
	if err != nil {
		return false
	}
	return meta.KeyID != "" && meta.KeyID != r.active.KeyID()
}

func (r *KeyRing) ActiveKeyID() string {
	if r == nil {
		return ""
	}
	return r.active.KeyID()
}

var _ core.SecretProvider = (*KeyRing)(nil)
