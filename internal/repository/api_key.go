package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/beaconmeet/relay-server-go/internal/database"
	"github.com/beaconmeet/relay-server-go/internal/model"
)

type APIKeyRepository interface {
	FindByKeyHash(ctx context.Context, keyHash string) (*model.APIKey, error)
	FindAll(ctx context.Context) ([]model.APIKey, error)
	Create(ctx context.Context, params model.CreateAPIKeyParams) (*model.APIKey, error)
	TouchLastUsed(ctx context.Context, id string) error
	Disable(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context) (int64, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) APIKeyRepository
}

type apiKeyRepo struct {
	db database.DBTX
}

func NewAPIKeyRepository(db *sqlx.DB) APIKeyRepository {
	return &apiKeyRepo{db: db}
}

func (r *apiKeyRepo) WithTx(tx *sqlx.Tx) APIKeyRepository {
	return &apiKeyRepo{db: tx}
}

// FindByKeyHash returns the key regardless of its disabled or expiry state;
// callers decide whether it may be used.
func (r *apiKeyRepo) FindByKeyHash(ctx context.Context, keyHash string) (*model.APIKey, error) {
	var key model.APIKey
	err := r.db.GetContext(ctx, &key, `
		SELECT * FROM api_keys WHERE key_hash = $1
	`, keyHash)
	return HandleNotFound(&key, err)
}

func (r *apiKeyRepo) FindAll(ctx context.Context) ([]model.APIKey, error) {
	var keys []model.APIKey
	err := r.db.SelectContext(ctx, &keys, `
		SELECT * FROM api_keys ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *apiKeyRepo) Create(ctx context.Context, params model.CreateAPIKeyParams) (*model.APIKey, error) {
	var key model.APIKey
	err := r.db.GetContext(ctx, &key, `
		INSERT INTO api_keys (name, key_hash, class, rate_limit_per_minute, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`, params.Name, params.KeyHash, params.Class, params.RateLimitPerMin, params.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (r *apiKeyRepo) TouchLastUsed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE api_keys SET last_used_at = $2 WHERE id = $1
	`, id, time.Now())
	return err
}

func (r *apiKeyRepo) Disable(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE api_keys SET disabled_at = $2 WHERE id = $1 AND disabled_at IS NULL
	`, id, time.Now())
	return err
}

func (r *apiKeyRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM api_keys WHERE expires_at IS NOT NULL AND expires_at < NOW()
	`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
