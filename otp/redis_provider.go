package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

// ProviderConfig bounds how codes are issued and checked.
type ProviderConfig struct {
	TTL         time.Duration
	Cooldown    time.Duration
	MaxAttempts int
}

// RedisProvider issues codes itself and keeps their bcrypt hashes in redis.
type RedisProvider struct {
	rdb      *redis.Client
	sender   Sender
	cfg      ProviderConfig
	generate func() (string, error)
}

func NewRedisProvider(rdb *redis.Client, sender Sender, cfg ProviderConfig) *RedisProvider {
	return &RedisProvider{rdb: rdb, sender: sender, cfg: cfg, generate: GenerateCode}
}

func codeKey(phone string) string     { return "otp:code:" + phone }
func attemptsKey(phone string) string { return "otp:attempts:" + phone }
func cooldownKey(phone string) string { return "otp:cooldown:" + phone }

func (p *RedisProvider) RequestCode(ctx context.Context, phone string) error {
	ok, err := p.rdb.SetNX(ctx, cooldownKey(phone), 1, p.cfg.Cooldown).Result()
	if err != nil {
		return fmt.Errorf("set otp cooldown: %w", err)
	}
	if !ok {
		return ErrResendTooSoon
	}

	code, err := p.generate()
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash otp: %w", err)
	}

	pipe := p.rdb.TxPipeline()
	pipe.Set(ctx, codeKey(phone), hash, p.cfg.TTL)
	pipe.Del(ctx, attemptsKey(phone))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}

	if err := p.sender.Send(ctx, phone, code); err != nil {
		p.rdb.Del(ctx, codeKey(phone), cooldownKey(phone))
		return fmt.Errorf("send otp: %w", err)
	}
	return nil
}

func (p *RedisProvider) VerifyCode(ctx context.Context, phone, code string) error {
	hash, err := p.rdb.Get(ctx, codeKey(phone)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrOTPNotFound
	}
	if err != nil {
		return fmt.Errorf("load otp: %w", err)
	}

	attempts, err := p.rdb.Incr(ctx, attemptsKey(phone)).Result()
	if err != nil {
		return fmt.Errorf("count otp attempts: %w", err)
	}
	if attempts == 1 {
		p.rdb.Expire(ctx, attemptsKey(phone), p.cfg.TTL)
	}
	if int(attempts) > p.cfg.MaxAttempts {
		return ErrTooManyAttempts
	}

	if bcrypt.CompareHashAndPassword(hash, []byte(code)) != nil {
		return ErrInvalidOTP
	}

	p.rdb.Del(ctx, codeKey(phone), attemptsKey(phone))
	return nil
}
