// Package notify provides otp.Notifier implementations.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/alebarre/credauth/otp"
)

// LogNotifier "delivers" codes by logging them. It is meant for development
// and tests; the record contains the code itself.
type LogNotifier struct {
	Logger *slog.Logger
}

var _ otp.Notifier = (*LogNotifier)(nil)

// NewLogNotifier returns a LogNotifier writing to logger, or slog.Default
// when logger is nil.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{Logger: logger}
}

// SendCode implements otp.Notifier.
func (n *LogNotifier) SendCode(ctx context.Context, address string, purpose otp.Purpose, code string, ttl time.Duration) error {
	n.Logger.InfoContext(ctx, "one-time code issued",
		slog.String("address", address),
		slog.String("purpose", string(purpose)),
		slog.String("code", code),
		slog.Duration("ttl", ttl),
	)
	return nil
}

// Func adapts a function to otp.Notifier.
type Func func(ctx context.Context, address string, purpose otp.Purpose, code string, ttl time.Duration) error

var _ otp.Notifier = Func(nil)

// SendCode implements otp.Notifier.
func (f Func) SendCode(ctx context.Context, address string, purpose otp.Purpose, code string, ttl time.Duration) error {
	return f(ctx, address, purpose, code, ttl)
}
