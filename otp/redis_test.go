package otp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testPhone = "09120000000"

func setupOTPTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

type recordingSender struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func (s *recordingSender) Send(_ context.Context, phone, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.codes == nil {
		s.codes = map[string]string{}
	}
	s.codes[phone] = code
	return nil
}

func newTestRedisProvider(rdb *redis.Client, sender Sender) *RedisProvider {
	p := NewRedisProvider(rdb, sender, ProviderConfig{TTL: 2 * time.Minute, Cooldown: time.Minute, MaxAttempts: 2})
	p.generate = func() (string, error) { return "482913", nil }
	return p
}

func TestRedisProviderRequestCode(t *testing.T) {
	mr, rdb := setupOTPTestRedis(t)
	sender := &recordingSender{}
	p := newTestRedisProvider(rdb, sender)
	ctx := context.Background()

	require.NoError(t, p.RequestCode(ctx, testPhone))
	assert.Equal(t, "482913", sender.codes[testPhone])

	// only the hash is kept
	stored, err := mr.Get(codeKey(testPhone))
	require.NoError(t, err)
	assert.NotEqual(t, "482913", stored)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored), []byte("482913")))
	assert.Equal(t, 2*time.Minute, mr.TTL(codeKey(testPhone)))
	assert.Equal(t, time.Minute, mr.TTL(cooldownKey(testPhone)))

	assert.ErrorIs(t, p.RequestCode(ctx, testPhone), ErrResendTooSoon)

	// another number has its own cooldown
	require.NoError(t, p.RequestCode(ctx, "09121111111"))

	mr.FastForward(time.Minute)
	require.NoError(t, p.RequestCode(ctx, testPhone))
}

func TestRedisProviderVerifyCode(t *testing.T) {
	mr, rdb := setupOTPTestRedis(t)
	p := newTestRedisProvider(rdb, &recordingSender{})
	ctx := context.Background()

	assert.ErrorIs(t, p.VerifyCode(ctx, testPhone, "482913"), ErrOTPNotFound)

	require.NoError(t, p.RequestCode(ctx, testPhone))
	require.NoError(t, p.VerifyCode(ctx, testPhone, "482913"))
	assert.False(t, mr.Exists(codeKey(testPhone)))
	assert.False(t, mr.Exists(attemptsKey(testPhone)))

	// a used code cannot be replayed
	assert.ErrorIs(t, p.VerifyCode(ctx, testPhone, "482913"), ErrOTPNotFound)
}

func TestRedisProviderAttemptLimit(t *testing.T) {
	mr, rdb := setupOTPTestRedis(t)
	p := newTestRedisProvider(rdb, &recordingSender{})
	ctx := context.Background()

	require.NoError(t, p.RequestCode(ctx, testPhone))
	assert.ErrorIs(t, p.VerifyCode(ctx, testPhone, "000000"), ErrInvalidOTP)
	assert.Equal(t, 2*time.Minute, mr.TTL(attemptsKey(testPhone)))
	assert.ErrorIs(t, p.VerifyCode(ctx, testPhone, "111111"), ErrInvalidOTP)

	// the right code no longer helps once the attempts are used up
	assert.ErrorIs(t, p.VerifyCode(ctx, testPhone, "482913"), ErrTooManyAttempts)

	// a fresh code resets the counter
	mr.FastForward(time.Minute)
	require.NoError(t, p.RequestCode(ctx, testPhone))
	assert.False(t, mr.Exists(attemptsKey(testPhone)))
	require.NoError(t, p.VerifyCode(ctx, testPhone, "482913"))
}

func TestRedisProviderCodeExpires(t *testing.T) {
	mr, rdb := setupOTPTestRedis(t)
	p := newTestRedisProvider(rdb, &recordingSender{})
	ctx := context.Background()

	require.NoError(t, p.RequestCode(ctx, testPhone))
	mr.FastForward(2 * time.Minute)

	err := p.VerifyCode(ctx, testPhone, "482913")
	assert.ErrorIs(t, err, ErrOTPNotFound)
	assert.Equal(t, "otp.expired", MessageKey(classify(err)))
}

func TestRedisProviderSendFailureRollsBack(t *testing.T) {
	mr, rdb := setupOTPTestRedis(t)
	sender := &recordingSender{err: errors.New("sms gateway down")}
	p := newTestRedisProvider(rdb, sender)
	ctx := context.Background()

	err := p.RequestCode(ctx, testPhone)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrResendTooSoon)
	assert.Contains(t, err.Error(), "send otp")
	assert.Equal(t, "otp.failed", MessageKey(classify(err)))
	assert.False(t, mr.Exists(codeKey(testPhone)))
	assert.False(t, mr.Exists(cooldownKey(testPhone)))

	// the user can retry at once
	sender.err = nil
	require.NoError(t, p.RequestCode(ctx, testPhone))
	assert.Equal(t, "482913", sender.codes[testPhone])
}

func TestRedisSessionStore(t *testing.T) {
	mr, rdb := setupOTPTestRedis(t)
	s := NewRedisSessionStore(rdb, 15*time.Minute)
	ctx := context.Background()

	_, err := s.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	resendAt := time.Date(2026, 3, 1, 10, 3, 0, 0, time.UTC)
	f := &Flow{State: StateCollectingCode, Phone: testPhone, Code: "123456", ResendAt: resendAt}
	require.NoError(t, s.Save(ctx, "abc", f))
	assert.Equal(t, 15*time.Minute, mr.TTL(sessionKey("abc")))

	raw, err := mr.Get(sessionKey("abc"))
	require.NoError(t, err)
	assert.NotContains(t, raw, "123456")

	loaded, err := s.Load(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, StateCollectingCode, loaded.State)
	assert.Equal(t, testPhone, loaded.Phone)
	assert.Empty(t, loaded.Code)
	assert.True(t, loaded.ResendAt.Equal(resendAt))

	require.NoError(t, s.Delete(ctx, "abc"))
	_, err = s.Load(ctx, "abc")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, mr.Set(sessionKey("broken"), "{"))
	_, err = s.Load(ctx, "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionNotFound)

	// sessions expire on their own
	require.NoError(t, s.Save(ctx, "stale", f))
	mr.FastForward(15 * time.Minute)
	_, err = s.Load(ctx, "stale")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
