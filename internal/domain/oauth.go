package domain

import "time"

// LinkedProvider is the profile an OAuth provider vouched for.
type LinkedProvider struct {
	ExternalID string    `json:"externalId" bson:"externalId"`
	Email      string    `json:"email" bson:"email"`
	Name       string    `json:"name" bson:"name"`
	Picture    string    `json:"picture,omitempty" bson:"picture,omitempty"`
	LinkedAt   time.Time `json:"linkedAt" bson:"linkedAt"`
}

// ExternalProfile is what a provider hands back after a successful code exchange.
type ExternalProfile struct {
	Provider   string
	ExternalID string
	Email      string
	Name       string
	Picture    string
}

// ProviderLink indexes identities by (provider, external id).
type ProviderLink struct {
	Provider   string    `gorm:"type:text;primaryKey" db:"provider"`
	ExternalID string    `gorm:"type:text;primaryKey" db:"external_id"`
	UserID     UserID    `gorm:"type:uuid;index;not null" db:"user_id"`
	CreatedAt  time.Time `gorm:"not null" db:"created_at"`
}

func (ProviderLink) TableName() string { return "provider_links" }
