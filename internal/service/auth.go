package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/beaconmeet/relay-server-go/internal/clock"
	"github.com/beaconmeet/relay-server-go/internal/model"
	"github.com/beaconmeet/relay-server-go/internal/repository"
	"github.com/beaconmeet/relay-server-go/internal/util"
)

const (
	adminRateLimitPerMin  = 1000
	testerRateLimitPerMin = 100
	touchTimeout          = 5 * time.Second
)

type AuthConfig struct {
	AdminAPIKey  string
	TesterAPIKey string
}

// AuthService resolves API keys to principals. Static keys from the
// environment are checked first, then the api_keys table when one is
// configured.
type AuthService struct {
	cfg   AuthConfig
	keys  repository.APIKeyRepository
	clock clock.Clock
}

// NewAuthService accepts a nil keys repository when no database is configured.
func NewAuthService(cfg AuthConfig, keys repository.APIKeyRepository, clk clock.Clock) *AuthService {
	return &AuthService{cfg: cfg, keys: keys, clock: clk}
}

// Authenticate returns (nil, nil) for an unknown, disabled or expired key.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*model.Principal, error) {
	if token == "" {
		return nil, nil
	}

	if s.cfg.AdminAPIKey != "" && util.ConstantTimeEqual(token, s.cfg.AdminAPIKey) {
		return &model.Principal{
			ID:              "env:admin",
			Name:            "admin",
			Class:           model.KeyClassAdmin,
			RateLimitPerMin: adminRateLimitPerMin,
		}, nil
	}

	if s.cfg.TesterAPIKey != "" && util.ConstantTimeEqual(token, s.cfg.TesterAPIKey) {
		return &model.Principal{
			ID:              "env:tester",
			Name:            "tester",
			Class:           model.KeyClassTester,
			RateLimitPerMin: testerRateLimitPerMin,
		}, nil
	}

	if s.keys == nil {
		return nil, nil
	}

	key, err := s.keys.FindByKeyHash(ctx, util.HashToken(token))
	if err != nil {
		return nil, fmt.Errorf("find api key: %w", err)
	}
	if key == nil || key.DisabledAt != nil {
		return nil, nil
	}
	if key.ExpiresAt != nil && !key.ExpiresAt.After(s.clock.Now()) {
		return nil, nil
	}

	go s.touch(key.ID)

	return &model.Principal{
		ID:              key.ID,
		Name:            key.Name,
		Class:           key.Class,
		RateLimitPerMin: key.RateLimitPerMin,
	}, nil
}

func (s *AuthService) touch(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
	defer cancel()
	if err := s.keys.TouchLastUsed(ctx, id); err != nil {
		log.Warn().Err(err).Str("keyId", id).Msg("failed to update api key last use")
	}
}
