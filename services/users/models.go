package users

import (
	"strings"
	"time"
)

type User struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	Name            string     `json:"name" gorm:"size:255;not null"`
	Email           string     `json:"email" gorm:"uniqueIndex;size:255;not null"`
	Password        string     `json:"-" gorm:"size:255;not null"`
	RememberToken   string     `json:"-" gorm:"size:100"`
	EmailVerifiedAt *time.Time `json:"email_verified_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) IsVerified() bool {
	return u.EmailVerifiedAt != nil
}

type NewUser struct {
	Name     string
	Email    string
	Password string
}

// NormalizeEmail is applied before every lookup and write so the unique
// index compares canonical addresses.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
