package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig       `envPrefix:"APP_"`
	Server    ServerConfig    `envPrefix:"SERVER_"`
	Log       LogConfig       `envPrefix:"LOG_"`
	Database  DatabaseConfig  `envPrefix:"DATABASE_"`
	Redis     RedisConfig     `envPrefix:"REDIS_"`
	Mail      MailConfig      `envPrefix:"MAIL_"`
	Auth      AuthConfig      `envPrefix:"AUTH_"`
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`
}

type AppConfig struct {
	Name        string `env:"NAME" envDefault:"gatekeep"`
	URL         string `env:"URL" envDefault:"http://localhost:8080"`
	FrontendURL string `env:"FRONTEND_URL"`
}

type ServerConfig struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	Host            string        `env:"HOST" envDefault:"localhost"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	TrustedProxies  []string      `env:"TRUSTED_PROXIES" envSeparator:","`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
	Output string `env:"OUTPUT" envDefault:"stdout"`
}

type DatabaseConfig struct {
	Driver      string `env:"DRIVER" envDefault:"sqlite"`
	DSN         string `env:"DSN" envDefault:"gatekeep.db"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
}

type RedisConfig struct {
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

type MailConfig struct {
	Driver      string `env:"DRIVER" envDefault:"log"`
	Host        string `env:"HOST" envDefault:"localhost"`
	Port        int    `env:"PORT" envDefault:"587"`
	Username    string `env:"USERNAME"`
	Password    string `env:"PASSWORD"`
	Encryption  string `env:"ENCRYPTION" envDefault:"tls"`
	FromAddress string `env:"FROM_ADDRESS" envDefault:"no-reply@localhost"`
	FromName    string `env:"FROM_NAME"`
	QueueSize   int    `env:"QUEUE_SIZE" envDefault:"100"`
	Workers     int    `env:"WORKERS" envDefault:"2"`
}

type AuthConfig struct {
	MinLength      int  `env:"MIN_LENGTH" envDefault:"8"`
	RequireUpper   bool `env:"REQUIRE_UPPER" envDefault:"true"`
	RequireLower   bool `env:"REQUIRE_LOWER" envDefault:"true"`
	RequireNumber  bool `env:"REQUIRE_NUMBER" envDefault:"true"`
	RequireSpecial bool `env:"REQUIRE_SPECIAL" envDefault:"false"`

	HashDriver        string `env:"HASH_DRIVER" envDefault:"bcrypt"`
	BcryptCost        int    `env:"BCRYPT_COST" envDefault:"10"`
	Argon2Memory      uint32 `env:"ARGON2_MEMORY" envDefault:"65536"`
	Argon2Time        uint32 `env:"ARGON2_TIME" envDefault:"3"`
	Argon2Parallelism uint8  `env:"ARGON2_PARALLELISM" envDefault:"2"`

	UncompromisedCheck     bool          `env:"UNCOMPROMISED_CHECK" envDefault:"true"`
	UncompromisedThreshold int           `env:"UNCOMPROMISED_THRESHOLD" envDefault:"1"`
	BreachAPIURL           string        `env:"BREACH_API_URL" envDefault:"https://api.pwnedpasswords.com"`
	BreachAPITimeout       time.Duration `env:"BREACH_API_TIMEOUT" envDefault:"3s"`

	MaxDeviceTokens    int           `env:"MAX_DEVICE_TOKENS" envDefault:"5"`
	TokenExpiryDays    int           `env:"TOKEN_EXPIRY_DAYS" envDefault:"30"`
	TokenPruneInterval time.Duration `env:"TOKEN_PRUNE_INTERVAL" envDefault:"1h"`

	PasswordResetExpiry      time.Duration `env:"PASSWORD_RESET_EXPIRY" envDefault:"60m"`
	PasswordResetThrottle    time.Duration `env:"PASSWORD_RESET_THROTTLE" envDefault:"60s"`
	PasswordResetTokenLength int           `env:"PASSWORD_RESET_TOKEN_LENGTH" envDefault:"32"`

	VerificationExpiry time.Duration `env:"VERIFICATION_EXPIRY" envDefault:"60m"`
	SigningKey         string        `env:"SIGNING_KEY"`
}

type RateLimitConfig struct {
	Store               string         `env:"STORE" envDefault:"memory"`
	DefaultAttempts     int            `env:"DEFAULT_ATTEMPTS" envDefault:"5"`
	DefaultDecaySeconds int            `env:"DEFAULT_DECAY_SECONDS" envDefault:"60"`
	Attempts            map[string]int `env:"ATTEMPTS" envKeyValSeparator:":"`
	DecaySeconds        map[string]int `env:"DECAY_SECONDS" envKeyValSeparator:":"`
	GlobalPerMinute     int            `env:"GLOBAL_PER_MINUTE" envDefault:"60"`
}

func LoadConfig(cfg any) error {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}
	if err := env.Parse(cfg); err != nil {
		return err
	}

	if c, ok := cfg.(*Config); ok {
		return c.Validate()
	}
	return nil
}

func (c *Config) Validate() error {
	if err := validateAuthConfig(&c.Auth); err != nil {
		return err
	}
	return validateRateLimitConfig(&c.RateLimit)
}

var weakKeyPatterns = []string{"password", "secret", "test", "example", "default", "change"}

func validateAuthConfig(cfg *AuthConfig) error {
	if len(cfg.SigningKey) < 32 {
		return fmt.Errorf("signing key must be at least 32 characters long")
	}

	lower := strings.ToLower(cfg.SigningKey)
	for _, pattern := range weakKeyPatterns {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("signing key contains weak patterns (%s)", pattern)
		}
	}

	switch cfg.HashDriver {
	case "bcrypt", "argon2id":
	default:
		return fmt.Errorf("unsupported hash driver: %s (supported: bcrypt, argon2id)", cfg.HashDriver)
	}

	if cfg.MaxDeviceTokens < 1 {
		return fmt.Errorf("max device tokens must be at least 1")
	}

	if cfg.PasswordResetTokenLength < 16 {
		return fmt.Errorf("password reset token length must be at least 16 bytes")
	}

	return nil
}

func validateRateLimitConfig(cfg *RateLimitConfig) error {
	switch cfg.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported rate limit store: %s (supported: memory, redis)", cfg.Store)
	}

	if cfg.DefaultAttempts < 1 || cfg.DefaultDecaySeconds < 1 {
		return fmt.Errorf("rate limit defaults must be positive")
	}

	for action, attempts := range cfg.Attempts {
		if attempts < 1 {
			return fmt.Errorf("rate limit attempts for %q must be positive", action)
		}
	}
	for action, seconds := range cfg.DecaySeconds {
		if seconds < 1 {
			return fmt.Errorf("rate limit decay for %q must be positive", action)
		}
	}

	return nil
}
