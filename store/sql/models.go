package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type credentialRecord struct {
	bun.BaseModel `bun:"table:mods_credentials,alias:mc"`

	ID               string    `bun:"id,pk"`
	Provider         string    `bun:"provider,notnull"`
	UserID           string    `bun:"user_id,notnull"`
	TeamID           string    `bun:"team_id,notnull"`
	EncryptedToken   []byte    `bun:"encrypted_token,notnull"`
	Scopes           []string  `bun:"scopes,type:jsonb,notnull"`
	Status           string    `bun:"status,notnull"`
	RevocationReason string    `bun:"revocation_reason,notnull"`
	CreatedAt        time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type processedEventRecord struct {
	bun.BaseModel `bun:"table:mods_processed_events,alias:mpe"`

	ID          string    `bun:"id,pk"`
	EventID     string    `bun:"event_id,notnull,unique"`
	ProcessedAt time.Time `bun:"processed_at,nullzero,notnull,default:current_timestamp"`
}

type rateLimitStateRecord struct {
	bun.BaseModel `bun:"table:mods_rate_limit_state,alias:mrl"`

	ID                string     `bun:"id,pk"`
	Provider          string     `bun:"provider,notnull"`
	Operation         string     `bun:"operation,notnull"`
	Scope             string     `bun:"scope,notnull"`
	RequestLimit      int        `bun:"request_limit,notnull"`
	Remaining         int        `bun:"remaining,notnull"`
	ResetAt           *time.Time `bun:"reset_at,nullzero"`
	RetryAfterSeconds *int       `bun:"retry_after_seconds"`
	ThrottledUntil    *time.Time `bun:"throttled_until,nullzero"`
	LastStatus        int        `bun:"last_status,notnull"`
	Attempts          int        `bun:"attempts,notnull"`
	CreatedAt         time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
