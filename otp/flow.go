package otp

import (
	"context"
	"time"
)

// State is a step of the sign-in flow.
type State string

const (
	StateCollectingPhone State = "collecting-phone"
	StateCollectingCode  State = "collecting-code"
	StateVerified        State = "verified"
)

// DefaultResendCooldown is how long a new code cannot be requested.
const DefaultResendCooldown = 180 * time.Second

// Provider sends and checks one-time codes.
type Provider interface {
	RequestCode(ctx context.Context, phone string) error
	VerifyCode(ctx context.Context, phone, code string) error
}

// Flow is the persisted state of one sign-in attempt.
type Flow struct {
	State    State     `json:"state"`
	Phone    string    `json:"phone,omitempty"`
	Code     string    `json:"-"`
	ResendAt time.Time `json:"resendAt,omitempty"`
}

// NewFlow starts at the phone step.
func NewFlow() *Flow {
	return &Flow{State: StateCollectingPhone}
}

// Machine drives flows against a provider.
type Machine struct {
	provider Provider
	cooldown time.Duration
	now      func() time.Time
}

// NewMachine returns a machine using cooldown between code requests.
func NewMachine(provider Provider, cooldown time.Duration) *Machine {
	if cooldown <= 0 {
		cooldown = DefaultResendCooldown
	}
	return &Machine{provider: provider, cooldown: cooldown, now: time.Now}
}

// WithClock replaces the time source.
func (m *Machine) WithClock(now func() time.Time) *Machine {
	m.now = now
	return m
}

// SubmitPhone validates phone, asks the provider for a code and moves the
// flow to the code step. Submitting the number that already has a code while
// its countdown is running is a resend and is refused; a different number
// goes through.
func (m *Machine) SubmitPhone(ctx context.Context, f *Flow, phone string) error {
	if f.State == StateVerified {
		return ErrWrongState
	}
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return err
	}
	if normalized == f.Phone && m.RemainingCooldown(f) > 0 {
		return ErrResendTooSoon
	}
	if err := m.provider.RequestCode(ctx, normalized); err != nil {
		return classify(err)
	}

	f.Phone = normalized
	f.Code = ""
	f.ResendAt = m.now().Add(m.cooldown)
	f.State = StateCollectingCode
	return nil
}

// SubmitCode checks the code locally and then with the provider. Any failure
// clears the entered code so the user can retry.
func (m *Machine) SubmitCode(ctx context.Context, f *Flow, code string) error {
	if f.State != StateCollectingCode {
		return ErrWrongState
	}
	f.Code = code
	if !ValidCode(code) {
		f.Code = ""
		return ErrInvalidCode
	}
	if err := m.provider.VerifyCode(ctx, f.Phone, code); err != nil {
		f.Code = ""
		return classify(err)
	}
	f.State = StateVerified
	return nil
}

// Resend requests a fresh code once the countdown has elapsed.
func (m *Machine) Resend(ctx context.Context, f *Flow) error {
	if f.State != StateCollectingCode {
		return ErrWrongState
	}
	if m.RemainingCooldown(f) > 0 {
		return ErrResendTooSoon
	}
	if err := m.provider.RequestCode(ctx, f.Phone); err != nil {
		return classify(err)
	}
	f.Code = ""
	f.ResendAt = m.now().Add(m.cooldown)
	return nil
}

// Back returns from the code step to the phone step. The countdown keeps
// running for the number the code went to.
func (m *Machine) Back(f *Flow) error {
	if f.State != StateCollectingCode {
		return ErrWrongState
	}
	f.State = StateCollectingPhone
	f.Code = ""
	return nil
}

// RemainingCooldown is the time left before another code may be requested.
func (m *Machine) RemainingCooldown(f *Flow) time.Duration {
	left := f.ResendAt.Sub(m.now())
	if left < 0 {
		return 0
	}
	return left
}
