package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/shiva/ridedispatch/internal/model"
	"github.com/shiva/ridedispatch/pkg/cache"
)

// SettingsRepository implements service.SettingsStore on operator_settings.
type SettingsRepository struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository creates a new settings repository.
func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// GetDispatchSetting fetches the operator's dispatch mode.
func (r *SettingsRepository) GetDispatchSetting(ctx context.Context, operatorID string) (*model.OperatorSetting, error) {
	s := &model.OperatorSetting{}
	err := r.pool.QueryRow(ctx, `
		SELECT operator_id, dispatch_mode, updated_at FROM operator_settings WHERE operator_id = $1
	`, operatorID).Scan(&s.OperatorID, &s.DispatchMode, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrSettingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("settings: get %s: %w", operatorID, err)
	}
	return s, nil
}

// PutDispatchSetting upserts the operator's dispatch mode.
func (r *SettingsRepository) PutDispatchSetting(ctx context.Context, s *model.OperatorSetting) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO operator_settings (operator_id, dispatch_mode, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (operator_id) DO UPDATE
		SET dispatch_mode = EXCLUDED.dispatch_mode, updated_at = EXCLUDED.updated_at
	`, s.OperatorID, s.DispatchMode, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("settings: put %s: %w", s.OperatorID, err)
	}
	return nil
}

// ─── Redis read-through cache ───────────────────────────────

// SettingsBackend is the authoritative store behind CachedSettings.
type SettingsBackend interface {
	GetDispatchSetting(ctx context.Context, operatorID string) (*model.OperatorSetting, error)
	PutDispatchSetting(ctx context.Context, s *model.OperatorSetting) error
}

// SettingsCacheNamespace is appended to the service key prefix for
// dispatch settings entries.
const SettingsCacheNamespace = "dispatch:setting:"

// settingsMissing marks operators known to have no record, so the
// default-mode path does not hit PostgreSQL on every dispatch.
const settingsMissing = "-"

// CachedSettings fronts a SettingsBackend with Redis.
//
// Strategy:
//  1. Try Redis (fast path).
//  2. On miss, read the backend and cache the result, including absence.
//  3. On write, update the backend then delete the key.
//
// Redis failures degrade to the backend; they never fail a dispatch.
type CachedSettings struct {
	backend SettingsBackend
	cache   *cache.Cache
	log     *zap.Logger
}

// NewCachedSettings creates a cached settings store. Entries live for the
// cache's TTL.
func NewCachedSettings(backend SettingsBackend, c *cache.Cache, log *zap.Logger) *CachedSettings {
	return &CachedSettings{backend: backend, cache: c, log: log.Named("settings_cache")}
}

// GetDispatchSetting returns the cached setting, loading it on miss.
func (c *CachedSettings) GetDispatchSetting(ctx context.Context, operatorID string) (*model.OperatorSetting, error) {
	raw, hit, err := c.cache.Get(ctx, operatorID)
	switch {
	case err != nil:
		c.log.Warn("settings cache read failed", zap.String("operator_id", operatorID), zap.Error(err))
	case hit:
		s, decodeErr := decodeCachedSetting(raw)
		if decodeErr == nil || errors.Is(decodeErr, model.ErrSettingNotFound) {
			return s, decodeErr
		}
		c.log.Warn("discarding unreadable cache entry", zap.String("key", c.cache.Key(operatorID)), zap.Error(decodeErr))
	}

	s, err := c.backend.GetDispatchSetting(ctx, operatorID)
	switch {
	case errors.Is(err, model.ErrSettingNotFound):
		c.store(ctx, operatorID, settingsMissing)
		return nil, err
	case err != nil:
		return nil, err
	}

	body, err := json.Marshal(s)
	if err == nil {
		c.store(ctx, operatorID, string(body))
	}
	return s, nil
}

// PutDispatchSetting writes through to the backend and invalidates the key.
func (c *CachedSettings) PutDispatchSetting(ctx context.Context, s *model.OperatorSetting) error {
	if err := c.backend.PutDispatchSetting(ctx, s); err != nil {
		return err
	}
	if err := c.cache.Del(ctx, s.OperatorID); err != nil {
		c.log.Warn("settings cache invalidation failed",
			zap.String("operator_id", s.OperatorID), zap.Error(err))
	}
	return nil
}

// store caches value. Fire-and-forget, like every cache write here.
func (c *CachedSettings) store(ctx context.Context, operatorID, value string) {
	if err := c.cache.Set(ctx, operatorID, value); err != nil {
		c.log.Debug("settings cache write failed", zap.Error(err))
	}
}

// decodeCachedSetting parses a cache entry. The missing marker decodes to
// model.ErrSettingNotFound.
func decodeCachedSetting(raw string) (*model.OperatorSetting, error) {
	if raw == settingsMissing {
		return nil, model.ErrSettingNotFound
	}
	s := &model.OperatorSetting{}
	if err := json.Unmarshal([]byte(raw), s); err != nil {
		return nil, fmt.Errorf("decode cached setting: %w", err)
	}
	return s, nil
}
