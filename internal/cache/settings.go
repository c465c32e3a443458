// Package cache provides a redis read-through cache in front of the
// tenant settings and template lookups. Every due job re-resolves its
// tenant configuration; a short TTL keeps the portal's settings edits
// visible within a minute while sparing the database a query per job.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/printpress/notifications/internal/db"
)

// Store is the subset of lookups worth caching. Implemented by
// db.Repository.
type Store interface {
	GetOrderContext(ctx context.Context, orderID uuid.UUID) (*db.OrderContext, error)
	GetCompanySettings(ctx context.Context, companyID uuid.UUID) (*db.CompanySettings, error)
	GetTemplate(ctx context.Context, name string, companyID *uuid.UUID) (*db.EmailTemplate, error)
}

// ResolverCache decorates a Store with redis caching for settings and
// template lookups. Order context is never cached: it must reflect the
// row at send time. Cache failures degrade to the underlying store.
type ResolverCache struct {
	store  Store
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewResolverCache(store Store, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *ResolverCache {
	return &ResolverCache{
		store:  store,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// NewClient connects to redis and verifies connectivity.
func NewClient(ctx context.Context, addr, password string, dbNum int, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           dbNum,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info("redis connection established", zap.String("addr", addr))
	return rdb, nil
}

// GetOrderContext always hits the underlying store.
func (c *ResolverCache) GetOrderContext(ctx context.Context, orderID uuid.UUID) (*db.OrderContext, error) {
	return c.store.GetOrderContext(ctx, orderID)
}

// GetCompanySettings returns cached settings when present. A company with
// no settings row is cached too (as JSON null) so absent configuration
// does not defeat the cache.
func (c *ResolverCache) GetCompanySettings(ctx context.Context, companyID uuid.UUID) (*db.CompanySettings, error) {
	key := "settings:" + companyID.String()

	var cached *db.CompanySettings
	if ok := c.lookup(ctx, key, &cached); ok {
		return cached, nil
	}

	settings, err := c.store.GetCompanySettings(ctx, companyID)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, key, settings)
	return settings, nil
}

// GetTemplate caches the resolved template per (name, company) pair,
// including the fallback to the system default, so the cached value is
// exactly what resolution produced.
func (c *ResolverCache) GetTemplate(ctx context.Context, name string, companyID *uuid.UUID) (*db.EmailTemplate, error) {
	scope := "default"
	if companyID != nil {
		scope = companyID.String()
	}
	key := fmt.Sprintf("template:%s:%s", name, scope)

	var cached *db.EmailTemplate
	if ok := c.lookup(ctx, key, &cached); ok {
		return cached, nil
	}

	tmpl, err := c.store.GetTemplate(ctx, name, companyID)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, key, tmpl)
	return tmpl, nil
}

func (c *ResolverCache) lookup(ctx context.Context, key string, dest any) bool {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		c.logger.Warn("cache entry unparseable", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *ResolverCache) fill(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}
