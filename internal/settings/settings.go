// Package settings serves shop-wide configuration kept in the database, such
// as shipping prices and the free shipping threshold.
package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/noah-isme/maison-parfum/internal/cache"
	"github.com/noah-isme/maison-parfum/internal/db"
	"github.com/noah-isme/maison-parfum/internal/obs"
	"github.com/noah-isme/maison-parfum/internal/pricing"
)

// Setting keys as stored in the settings table.
const (
	KeyFreeShippingThreshold = "free_shipping_threshold"
	KeyStandardShippingPrice = "standard_shipping_price"
	KeyExpressShippingPrice  = "express_shipping_price"
)

const shippingCacheKey = "settings:shipping"

// Store reads raw setting values by key. Absent keys are omitted.
type Store interface {
	Values(ctx context.Context, keys []string) (map[string]string, error)
}

// Writer persists setting values, inserting keys that do not exist yet.
type Writer interface {
	SetValues(ctx context.Context, values map[string]string) error
}

// ErrReadOnly is returned by updates when no Writer is configured.
var ErrReadOnly = errors.New("settings: no writer configured")

// PGStore reads and writes the settings table.
type PGStore struct {
	DB db.DBTX
}

// Values implements Store.
func (s PGStore) Values(ctx context.Context, keys []string) (map[string]string, error) {
	rows, err := s.DB.Query(ctx, `SELECT key, value FROM settings WHERE key = ANY($1)`, keys)
	if err != nil {
		return nil, fmt.Errorf("select settings: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string, len(keys))
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// SetValues implements Writer with a single upsert.
func (s PGStore) SetValues(ctx context.Context, values map[string]string) error {
	keys := make([]string, 0, len(values))
	vals := make([]string, 0, len(values))
	for k, v := range values {
		keys = append(keys, k)
		vals = append(vals, v)
	}
	_, err := s.DB.Exec(ctx, `
		INSERT INTO settings (key, value)
		SELECT * FROM unnest($1::text[], $2::text[])
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, keys, vals)
	if err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}

// Service resolves shop settings, caching them in Redis.
type Service struct {
	Store  Store
	Writer Writer
	Cache  *cache.Cache
	Logger zerolog.Logger
}

// Shipping returns the shipping settings. It never fails: when the store is
// unreachable, or a value is missing or unusable, the default for that field
// is used and the problem is logged.
func (s *Service) Shipping(ctx context.Context) pricing.ShippingSettings {
	var cached pricing.ShippingSettings
	if found, err := s.Cache.GetJSON(ctx, shippingCacheKey, &cached); err != nil {
		s.Logger.Warn().Err(err).Msg("settings cache read failed")
	} else if found {
		return cached
	}

	defaults := pricing.DefaultShippingSettings()
	if s.Store == nil {
		return defaults
	}
	values, err := s.Store.Values(ctx, []string{KeyFreeShippingThreshold, KeyStandardShippingPrice, KeyExpressShippingPrice})
	if err != nil {
		obs.RecordSettingsFallback()
		s.Logger.Error().Err(err).Msg("settings store unavailable, using default shipping settings")
		return defaults
	}

	resolved := pricing.ShippingSettings{
		FreeShippingThreshold: s.money(values, KeyFreeShippingThreshold, defaults.FreeShippingThreshold),
		StandardPrice:         s.money(values, KeyStandardShippingPrice, defaults.StandardPrice),
		ExpressPrice:          s.money(values, KeyExpressShippingPrice, defaults.ExpressPrice),
	}
	if err := s.Cache.SetJSON(ctx, shippingCacheKey, resolved); err != nil {
		s.Logger.Warn().Err(err).Msg("settings cache write failed")
	}
	return resolved
}

// UpdateShipping stores new shipping settings, rounded to cents, and drops the
// cached copy. A failed invalidation is logged; the cache TTL bounds staleness.
func (s *Service) UpdateShipping(ctx context.Context, in pricing.ShippingSettings) (pricing.ShippingSettings, error) {
	if s.Writer == nil {
		return pricing.ShippingSettings{}, ErrReadOnly
	}
	out := pricing.ShippingSettings{
		FreeShippingThreshold: pricing.RoundMoney(in.FreeShippingThreshold),
		StandardPrice:         pricing.RoundMoney(in.StandardPrice),
		ExpressPrice:          pricing.RoundMoney(in.ExpressPrice),
	}
	if out.FreeShippingThreshold.IsNegative() || out.StandardPrice.IsNegative() || out.ExpressPrice.IsNegative() {
		return pricing.ShippingSettings{}, ErrNegativeAmount
	}
	err := s.Writer.SetValues(ctx, map[string]string{
		KeyFreeShippingThreshold: out.FreeShippingThreshold.StringFixed(2),
		KeyStandardShippingPrice: out.StandardPrice.StringFixed(2),
		KeyExpressShippingPrice:  out.ExpressPrice.StringFixed(2),
	})
	if err != nil {
		return pricing.ShippingSettings{}, err
	}
	if err := s.Invalidate(ctx); err != nil {
		s.Logger.Warn().Err(err).Msg("settings cache invalidation failed")
	}
	s.Logger.Info().
		Str("free_shipping_threshold", out.FreeShippingThreshold.StringFixed(2)).
		Str("standard", out.StandardPrice.StringFixed(2)).
		Str("express", out.ExpressPrice.StringFixed(2)).
		Msg("shipping settings updated")
	return out, nil
}

// ErrNegativeAmount rejects shipping settings below zero.
var ErrNegativeAmount = errors.New("settings: amounts must not be negative")

// Invalidate drops cached settings so the next read hits the store.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.Cache.Delete(ctx, shippingCacheKey)
}

func (s *Service) money(values map[string]string, key string, fallback pricing.Money) pricing.Money {
	raw, ok := values[key]
	if !ok {
		obs.RecordSettingsFallback()
		s.Logger.Warn().Str("key", key).Msg("setting missing, using default")
		return fallback
	}
	v, err := pricing.Parse(raw)
	if err != nil || v.IsNegative() {
		obs.RecordSettingsFallback()
		s.Logger.Warn().Str("key", key).Str("value", raw).Msg("setting unusable, using default")
		return fallback
	}
	return pricing.RoundMoney(v)
}
