package passwordreset

import "time"

// ResetToken holds at most one outstanding reset per email. Only the sha256
// of the token is stored.
type ResetToken struct {
	Email     string    `gorm:"primaryKey;size:255"`
	TokenHash string    `gorm:"size:64;not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}

func (ResetToken) TableName() string {
	return "password_reset_tokens"
}
