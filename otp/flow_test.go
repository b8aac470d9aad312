package otp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) RequestCode(ctx context.Context, phone string) error {
	return m.Called(ctx, phone).Error(0)
}

func (m *mockProvider) VerifyCode(ctx context.Context, phone, code string) error {
	return m.Called(ctx, phone, code).Error(0)
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newMachine(p Provider) (*Machine, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	return NewMachine(p, DefaultResendCooldown).WithClock(clock.Now), clock
}

func codeStep(t *testing.T, m *Machine, p *mockProvider) *Flow {
	t.Helper()
	p.On("RequestCode", mock.Anything, "09121234567").Return(nil).Once()
	f := NewFlow()
	require.NoError(t, m.SubmitPhone(context.Background(), f, "0912 123 4567"))
	return f
}

func TestSubmitPhone(t *testing.T) {
	p := new(mockProvider)
	m, _ := newMachine(p)

	f := codeStep(t, m, p)
	assert.Equal(t, StateCollectingCode, f.State)
	assert.Equal(t, "09121234567", f.Phone)
	assert.Equal(t, DefaultResendCooldown, m.RemainingCooldown(f))
	p.AssertExpectations(t)
}

func TestSubmitPhoneRejectsShortNumbers(t *testing.T) {
	p := new(mockProvider)
	m, _ := newMachine(p)
	f := NewFlow()

	for _, phone := range []string{"091212345", "", "0912abc4567"} {
		assert.ErrorIs(t, m.SubmitPhone(context.Background(), f, phone), ErrInvalidPhone, phone)
	}
	assert.Equal(t, StateCollectingPhone, f.State)
	p.AssertNotCalled(t, "RequestCode", mock.Anything, mock.Anything)
}

func TestSubmitCodeRejectsWrongLengthBeforeProvider(t *testing.T) {
	p := new(mockProvider)
	m, _ := newMachine(p)
	f := codeStep(t, m, p)

	for _, code := range []string{"12345", "1234567", "12a456", "١٢٣٤٥٦"} {
		err := m.SubmitCode(context.Background(), f, code)
		assert.ErrorIs(t, err, ErrInvalidCode, code)
		assert.Empty(t, f.Code)
		assert.Equal(t, StateCollectingCode, f.State)
	}
	p.AssertNotCalled(t, "VerifyCode", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitCodeMapsUpstreamErrors(t *testing.T) {
	tests := []struct {
		upstream error
		want     error
		key      string
	}{
		{errors.New("Invalid OTP"), ErrInvalidOTP, "otp.invalid"},
		{errors.New("OTP not found"), ErrOTPNotFound, "otp.expired"},
		{errors.New("auth: Too many attempts, try later"), ErrTooManyAttempts, "otp.too_many_attempts"},
		{errors.New("gateway timeout"), nil, "otp.failed"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			p := new(mockProvider)
			m, _ := newMachine(p)
			f := codeStep(t, m, p)
			p.On("VerifyCode", mock.Anything, "09121234567", "123456").Return(tt.upstream).Once()

			err := m.SubmitCode(context.Background(), f, "123456")
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
			assert.Equal(t, tt.key, MessageKey(err))
			assert.Empty(t, f.Code)
			assert.Equal(t, StateCollectingCode, f.State)
		})
	}
}

func TestSubmitCodeSuccess(t *testing.T) {
	p := new(mockProvider)
	m, _ := newMachine(p)
	f := codeStep(t, m, p)
	p.On("VerifyCode", mock.Anything, "09121234567", "654321").Return(nil).Once()

	require.NoError(t, m.SubmitCode(context.Background(), f, "654321"))
	assert.Equal(t, StateVerified, f.State)

	assert.ErrorIs(t, m.SubmitCode(context.Background(), f, "654321"), ErrWrongState)
	assert.ErrorIs(t, m.Back(f), ErrWrongState)
}

func TestResendBlockedDuringCountdown(t *testing.T) {
	p := new(mockProvider)
	m, clock := newMachine(p)
	f := codeStep(t, m, p)

	clock.Advance(179 * time.Second)
	assert.ErrorIs(t, m.Resend(context.Background(), f), ErrResendTooSoon)
	assert.Equal(t, time.Second, m.RemainingCooldown(f))

	clock.Advance(time.Second)
	p.On("RequestCode", mock.Anything, "09121234567").Return(nil).Once()
	require.NoError(t, m.Resend(context.Background(), f))
	assert.Equal(t, DefaultResendCooldown, m.RemainingCooldown(f))
	p.AssertExpectations(t)
}

func TestBackResetsCode(t *testing.T) {
	p := new(mockProvider)
	m, clock := newMachine(p)
	f := codeStep(t, m, p)
	f.Code = "12"

	require.NoError(t, m.Back(f))
	assert.Equal(t, StateCollectingPhone, f.State)
	assert.Empty(t, f.Code)

	// the countdown survives going back for the same number
	assert.ErrorIs(t, m.SubmitPhone(context.Background(), f, "0912 123 4567"), ErrResendTooSoon)

	clock.Advance(DefaultResendCooldown)
	p.On("RequestCode", mock.Anything, "09121234567").Return(nil).Once()
	require.NoError(t, m.SubmitPhone(context.Background(), f, "09121234567"))
	assert.Equal(t, StateCollectingCode, f.State)
	p.AssertExpectations(t)
}

func TestBackAllowsCorrectingPhoneAtOnce(t *testing.T) {
	p := new(mockProvider)
	m, _ := newMachine(p)
	f := codeStep(t, m, p)
	require.NoError(t, m.Back(f))

	p.On("RequestCode", mock.Anything, "09127654321").Return(nil).Once()
	require.NoError(t, m.SubmitPhone(context.Background(), f, "09127654321"))
	assert.Equal(t, "09127654321", f.Phone)
	assert.Equal(t, StateCollectingCode, f.State)
	assert.Equal(t, DefaultResendCooldown, m.RemainingCooldown(f))

	// the corrected number now carries its own countdown
	require.NoError(t, m.Back(f))
	assert.ErrorIs(t, m.SubmitPhone(context.Background(), f, "09127654321"), ErrResendTooSoon)
	p.AssertExpectations(t)
}

func TestFlowJSONOmitsCode(t *testing.T) {
	f := &Flow{State: StateCollectingCode, Phone: "09121234567", Code: "123456"}
	raw, err := json.Marshal(f)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "123456")

	var decoded Flow
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Empty(t, decoded.Code)
	assert.Equal(t, "09121234567", decoded.Phone)
}

func TestSubmitPhoneProviderFailureKeepsPhoneStep(t *testing.T) {
	p := new(mockProvider)
	m, _ := newMachine(p)
	f := NewFlow()
	p.On("RequestCode", mock.Anything, "09121234567").Return(errors.New("sms gateway down")).Once()

	err := m.SubmitPhone(context.Background(), f, "09121234567")
	assert.Equal(t, "otp.failed", MessageKey(err))
	assert.Equal(t, StateCollectingPhone, f.State)
	assert.Zero(t, m.RemainingCooldown(f))
}
