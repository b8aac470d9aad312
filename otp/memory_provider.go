package otp

import (
	"context"
	"sync"
	"time"
)

type memoryCode struct {
	code     string
	expires  time.Time
	attempts int
}

// MemoryProvider keeps codes in process memory. It follows the same rules as
// RedisProvider and is used in development and tests.
type MemoryProvider struct {
	mu       sync.Mutex
	cfg      ProviderConfig
	codes    map[string]*memoryCode
	sent     map[string]time.Time
	Generate func() (string, error)
	Now      func() time.Time
}

func NewMemoryProvider(cfg ProviderConfig) *MemoryProvider {
	return &MemoryProvider{
		cfg:      cfg,
		codes:    make(map[string]*memoryCode),
		sent:     make(map[string]time.Time),
		Generate: GenerateCode,
		Now:      time.Now,
	}
}

func (p *MemoryProvider) RequestCode(_ context.Context, phone string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.Now()
	if last, ok := p.sent[phone]; ok && now.Sub(last) < p.cfg.Cooldown {
		return ErrResendTooSoon
	}
	code, err := p.Generate()
	if err != nil {
		return err
	}
	p.codes[phone] = &memoryCode{code: code, expires: now.Add(p.cfg.TTL)}
	p.sent[phone] = now
	return nil
}

func (p *MemoryProvider) VerifyCode(_ context.Context, phone, code string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.codes[phone]
	if !ok || p.Now().After(entry.expires) {
		delete(p.codes, phone)
		return ErrOTPNotFound
	}
	entry.attempts++
	if entry.attempts > p.cfg.MaxAttempts {
		return ErrTooManyAttempts
	}
	if entry.code != code {
		return ErrInvalidOTP
	}
	delete(p.codes, phone)
	return nil
}

// LastCode returns the outstanding code for phone.
func (p *MemoryProvider) LastCode(phone string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.codes[phone]
	if !ok {
		return "", false
	}
	return entry.code, true
}
