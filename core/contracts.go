package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

const (
	ProviderSlack     = "slack"
	ProviderGitHub    = "github"
	ProviderLinear    = "linear"
	ProviderWikipedia = "wikipedia"
)

type CredentialStatus string

const (
	CredentialStatusActive  CredentialStatus = "active"
	CredentialStatusRevoked CredentialStatus = "revoked"
)

type Credential struct {
	ID        string
	Provider  string
	UserID    string
	TeamID    string
	Token     string
	Scopes    []string
	Status    CredentialStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type SaveCredentialInput struct {
	Provider string
	UserID   string
	TeamID   string
	Token    string
	Scopes   []string
}

type CredentialStore interface {
	Get(ctx context.Context, provider string, userID string) (Credential, error)
	Save(ctx context.Context, in SaveCredentialInput) (Credential, error)
	Revoke(ctx context.Context, provider string, userID string, reason string) error
}

// TeamCredentialLister is implemented by stores that can enumerate the active
// credentials of a workspace.
type TeamCredentialLister interface {
	ListByTeam(ctx context.Context, provider string, teamID string) ([]Credential, error)
}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Metadata             map[string]any
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

type InboundRequest struct {
	Surface  string
	Headers  map[string]string
	Body     []byte
	Metadata map[string]any
}

type InboundVerifier interface {
	Verify(ctx context.Context, req InboundRequest) error
}
