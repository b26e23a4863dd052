package tokens

import (
	"slices"
	"time"
)

const AbilityAll = "*"

// AuthToken is a personal access token. Only the sha256 of the secret is
// stored; the plaintext is handed out once by Issue.
type AuthToken struct {
	ID         uint       `json:"id" gorm:"primaryKey"`
	UserID     uint       `json:"user_id" gorm:"not null;index"`
	Name       string     `json:"name" gorm:"size:255;not null"`
	TokenHash  string     `json:"-" gorm:"uniqueIndex;size:64;not null"`
	Abilities  []string   `json:"abilities" gorm:"serializer:json;type:text"`
	LastUsedAt *time.Time `json:"last_used_at"`
	ExpiresAt  *time.Time `json:"expires_at" gorm:"index"`
	CreatedAt  time.Time  `json:"created_at" gorm:"index"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (AuthToken) TableName() string {
	return "personal_access_tokens"
}

// Can reports whether the token grants ability; "*" grants everything.
func (t *AuthToken) Can(ability string) bool {
	return slices.Contains(t.Abilities, AbilityAll) || slices.Contains(t.Abilities, ability)
}

func (t *AuthToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}

type NewToken struct {
	Token     *AuthToken
	PlainText string
}
