package password

import (
	"net/http"

	"github.com/tech-arch1tect/gatekeep/config"
	"github.com/tech-arch1tect/gatekeep/services/logging"
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(ProvidePolicy),
)

func ProvidePolicy(cfg *config.Config, logger *logging.Service) (*Policy, error) {
	hasher, err := NewHasher(&cfg.Auth)
	if err != nil {
		return nil, err
	}

	var breach BreachChecker
	if cfg.Auth.UncompromisedCheck {
		breach = NewPwnedChecker(cfg.Auth.BreachAPIURL, &http.Client{Timeout: cfg.Auth.BreachAPITimeout})
	}

	return NewPolicy(&cfg.Auth, hasher, breach, logger), nil
}
