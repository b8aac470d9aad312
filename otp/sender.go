package otp

import (
	"context"

	"go.uber.org/zap"
)

// Sender delivers a generated code to the phone, typically by SMS.
type Sender interface {
	Send(ctx context.Context, phone, code string) error
}

// LogSender writes codes to the log. It is meant for development only.
type LogSender struct {
	Log *zap.Logger
}

func (s LogSender) Send(_ context.Context, phone, code string) error {
	s.Log.Info("otp code issued", zap.String("phone", phone), zap.String("code", code))
	return nil
}
