package app

import (
	"fmt"
	"time"

	"github.com/tech-arch1tect/gatekeep/config"
	"github.com/tech-arch1tect/gatekeep/database"
	"github.com/tech-arch1tect/gatekeep/handlers"
	"github.com/tech-arch1tect/gatekeep/middleware/ratelimit"
	"github.com/tech-arch1tect/gatekeep/openapi"
	"github.com/tech-arch1tect/gatekeep/server"
	"github.com/tech-arch1tect/gatekeep/services/auth"
	"github.com/tech-arch1tect/gatekeep/services/logging"
	"github.com/tech-arch1tect/gatekeep/services/notify"
	"github.com/tech-arch1tect/gatekeep/services/password"
	"github.com/tech-arch1tect/gatekeep/services/passwordreset"
	limits "github.com/tech-arch1tect/gatekeep/services/ratelimit"
	"github.com/tech-arch1tect/gatekeep/services/tokens"
	"github.com/tech-arch1tect/gatekeep/services/users"
	"github.com/tech-arch1tect/gatekeep/services/verification"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type AppBuilder struct {
	config    *config.Config
	notifier  notify.Notifier
	fxOptions []fx.Option
	errors    []error
}

func NewApp() *AppBuilder {
	return &AppBuilder{
		fxOptions: make([]fx.Option, 0),
		errors:    make([]error, 0),
	}
}

func (b *AppBuilder) WithConfig(cfg *config.Config) *AppBuilder {
	if cfg == nil {
		b.addError("config cannot be nil")
		return b
	}
	b.config = cfg
	return b
}

func (b *AppBuilder) WithAutoConfig() *AppBuilder {
	cfg := &config.Config{}
	if err := config.LoadConfig(cfg); err != nil {
		b.addError(fmt.Sprintf("failed to load config: %v", err))
		return b
	}
	b.config = cfg
	return b
}

// WithNotifier replaces the notifier selected by MAIL_DRIVER.
func (b *AppBuilder) WithNotifier(n notify.Notifier) *AppBuilder {
	if n == nil {
		b.addError("notifier cannot be nil")
		return b
	}
	b.notifier = n
	return b
}

func (b *AppBuilder) WithFxOptions(opts ...fx.Option) *AppBuilder {
	b.fxOptions = append(b.fxOptions, opts...)
	return b
}

func (b *AppBuilder) Build() (*App, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	if b.config == nil {
		if err := b.WithAutoConfig().validate(); err != nil {
			return nil, err
		}
	}

	logger, err := b.createLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	app := &App{
		config: b.config,
		logger: logger,
	}

	options := b.buildFxOptions(logger)
	options = append(options, fx.Invoke(func(srv *server.Server, db *gorm.DB) {
		app.server = srv
		app.db = db
	}))

	app.fx = fx.New(options...)
	if err := app.fx.Err(); err != nil {
		return nil, fmt.Errorf("failed to build application: %w", err)
	}

	return app, nil
}

func (b *AppBuilder) addError(msg string) {
	b.errors = append(b.errors, fmt.Errorf("%s", msg))
}

func (b *AppBuilder) validate() error {
	if len(b.errors) > 0 {
		return fmt.Errorf("configuration errors: %v", b.errors)
	}
	return nil
}

func (b *AppBuilder) createLogger() (*logging.Service, error) {
	if b.config == nil {
		return nil, fmt.Errorf("config required for logger creation")
	}

	return logging.NewService(logging.Config{
		Level:      logging.LogLevel(b.config.Log.Level),
		Format:     b.config.Log.Format,
		OutputPath: b.config.Log.Output,
	})
}

// Models are the tables the application migrates on start.
func Models() []any {
	return []any{
		&users.User{},
		&tokens.AuthToken{},
		&passwordreset.ResetToken{},
	}
}

func (b *AppBuilder) buildFxOptions(logger *logging.Service) []fx.Option {
	options := []fx.Option{
		fx.Supply(b.config),
		fx.Supply(logger),
		fx.Supply(database.WithModels(Models()...)),
		fx.NopLogger,

		database.Module,
		limits.Module,
		users.Module,
		password.Module,
		tokens.Module,
		notify.Module,
		passwordreset.Module,
		verification.Module,
		auth.Module,
		server.NewProvider(),

		fx.Provide(
			handlers.NewAuthHandler,
			handlers.NewHealthHandler,
			handlers.NewDocument,
		),
	}

	if b.notifier != nil {
		n := b.notifier
		options = append(options, fx.Decorate(func(notify.Notifier) notify.Notifier { return n }))
	}

	options = append(options, b.fxOptions...)
	options = append(options, fx.Invoke(registerRoutes))

	return options
}

type routeDeps struct {
	fx.In

	Server   *server.Server
	Config   *config.Config
	Logger   *logging.Service
	Store    limits.Store
	Issuer   *tokens.Issuer
	Auth     *handlers.AuthHandler
	Health   *handlers.HealthHandler
	Document *openapi.Document
}

func registerRoutes(deps routeDeps) {
	srv := deps.Server
	srv.SetErrorHandler(handlers.ErrorHandler(deps.Logger))
	srv.Get("/healthz", deps.Health.Check)

	guard := ratelimit.Middleware(&ratelimit.Config{
		Store:  deps.Store,
		Rate:   deps.Config.RateLimit.GlobalPerMinute,
		Period: time.Minute,
		Logger: deps.Logger,
	})

	v1 := srv.Group("/v1", guard)
	v1.GET("/openapi.json", deps.Document.JSONHandler())
	v1.GET("/openapi.yaml", deps.Document.YAMLHandler())
	deps.Auth.Routes(v1, deps.Issuer)
}
