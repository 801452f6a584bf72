package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OAuthProvider links one external identity to exactly one Account.
// Unique on (provider_name, provider_id).
type OAuthProvider struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	ProviderName string          `json:"provider_name" db:"provider_name"`
	ProviderID   string          `json:"provider_id" db:"provider_id"`
	AccessToken  string          `json:"-" db:"access_token"`
	RefreshToken string          `json:"-" db:"refresh_token"`
	ProfileData  json.RawMessage `json:"profile_data,omitempty" db:"profile_data"`
	AccountID    uuid.UUID       `json:"account_id" db:"account_id"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}
