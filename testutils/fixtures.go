package testutils

import (
	"sync"
	"time"

	"github.com/tech-arch1tect/gatekeep/config"
	"golang.org/x/crypto/bcrypt"
)

const TestSigningKey = "k9Qz7Lm2Xv4Rt8Wb1Nc6Hj3Pd5Gf0Ys9Ua2Ee7Io4"

// GetTestConfig returns a valid configuration tuned for fast tests: minimum
// bcrypt cost, breach checks off and an in-memory sqlite database.
func GetTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name:        "gatekeep-test",
			URL:         "http://localhost:8080",
			FrontendURL: "http://localhost:3000",
		},
		Server: config.ServerConfig{
			Host:            "localhost",
			Port:            "0",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    5 * time.Second,
			ShutdownTimeout: 2 * time.Second,
		},
		Log: config.LogConfig{
			Level:  "debug",
			Format: "console",
			Output: "stdout",
		},
		Database: config.DatabaseConfig{
			Driver:      "sqlite",
			DSN:         ":memory:",
			AutoMigrate: true,
		},
		Mail: config.MailConfig{
			Driver:      "log",
			FromAddress: "no-reply@example.org",
			QueueSize:   10,
			Workers:     1,
		},
		Auth: config.AuthConfig{
			MinLength:                8,
			RequireUpper:             true,
			RequireLower:             true,
			RequireNumber:            true,
			RequireSpecial:           false,
			HashDriver:               "bcrypt",
			BcryptCost:               bcrypt.MinCost,
			Argon2Memory:             8 * 1024,
			Argon2Time:               1,
			Argon2Parallelism:        1,
			UncompromisedCheck:       false,
			UncompromisedThreshold:   1,
			BreachAPITimeout:         time.Second,
			MaxDeviceTokens:          5,
			TokenExpiryDays:          30,
			TokenPruneInterval:       time.Hour,
			PasswordResetExpiry:      time.Hour,
			PasswordResetThrottle:    time.Minute,
			PasswordResetTokenLength: 32,
			VerificationExpiry:       time.Hour,
			SigningKey:               TestSigningKey,
		},
		RateLimit: config.RateLimitConfig{
			Store:               "memory",
			DefaultAttempts:     5,
			DefaultDecaySeconds: 60,
			GlobalPerMinute:     0,
		},
	}
}

var TestPasswords = struct {
	Valid       string
	Other       string
	TooShort    string
	NoUpper     string
	NoLower     string
	NoNumber    string
	WithSpecial string
}{
	Valid:       "Password123",
	Other:       "Different456",
	TooShort:    "Pass1",
	NoUpper:     "password123",
	NoLower:     "PASSWORD123",
	NoNumber:    "Password",
	WithSpecial: "Password123!",
}

// Clock is a settable time source for components that accept SetClock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
