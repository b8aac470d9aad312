package currency

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const ratesKey = "currency:rates"

// RateSource yields the rates in effect right now.
type RateSource interface {
	Current(ctx context.Context) (*Rates, error)
}

// StaticSource serves a fixed table, typically the one from the config file.
type StaticSource struct {
	Rates *Rates
}

func (s StaticSource) Current(context.Context) (*Rates, error) {
	return s.Rates, nil
}

// RedisRateStore layers admin overrides kept in a redis hash on top of the
// configured defaults.
type RedisRateStore struct {
	rdb      *redis.Client
	defaults *Rates
}

func NewRedisRateStore(rdb *redis.Client, defaults *Rates) *RedisRateStore {
	return &RedisRateStore{rdb: rdb, defaults: defaults}
}

func (s *RedisRateStore) Current(ctx context.Context) (*Rates, error) {
	raw, err := s.rdb.HGetAll(ctx, ratesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("load currency overrides: %w", err)
	}
	if len(raw) == 0 {
		return s.defaults, nil
	}

	overrides := make(map[string]decimal.Decimal, len(raw))
	for code, value := range raw {
		rate, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("parse rate for %s: %w", code, err)
		}
		overrides[code] = rate
	}
	return s.defaults.With(overrides)
}

// Set stores an override for code. The base currency cannot be overridden.
func (s *RedisRateStore) Set(ctx context.Context, code string, rate decimal.Decimal) error {
	code = Normalize(code)
	if code == s.defaults.Base() {
		return fmt.Errorf("%w: base currency rate is fixed", ErrInvalidRate)
	}
	if !s.defaults.Supported(code) {
		return fmt.Errorf("%w: %s", ErrUnsupportedCurrency, code)
	}
	if !rate.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidRate, code)
	}
	return s.rdb.HSet(ctx, ratesKey, code, rate.String()).Err()
}

// Reset drops every override.
func (s *RedisRateStore) Reset(ctx context.Context) error {
	return s.rdb.Del(ctx, ratesKey).Err()
}
