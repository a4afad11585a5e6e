// Package notify delivers operator alerts. The execution paths that can leave
// the system in a state needing a human — a one-legged hedge, an ambiguous
// broadcast — push through here.
package notify

import (
	"context"
	"log/slog"
)

// Severity grades an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Notifier delivers one alert to one channel.
type Notifier interface {
	Notify(ctx context.Context, sev Severity, title, message string) error
}

// Multi fans an alert out to every configured channel. Delivery is
// best-effort: a failing channel is logged and the rest still receive the
// alert.
type Multi struct {
	channels []Notifier
	logger   *slog.Logger
}

// NewMulti creates a Multi over the given channels.
func NewMulti(logger *slog.Logger, channels ...Notifier) *Multi {
	return &Multi{
		channels: channels,
		logger:   logger.With(slog.String("component", "notifier")),
	}
}

func (m *Multi) Notify(ctx context.Context, sev Severity, title, message string) error {
	for _, ch := range m.channels {
		if err := ch.Notify(ctx, sev, title, message); err != nil {
			m.logger.WarnContext(ctx, "alert delivery failed",
				slog.String("title", title), slog.String("error", err.Error()))
		}
	}
	return nil
}

// Nop discards alerts. Used when no channel is configured.
type Nop struct{}

func (Nop) Notify(context.Context, Severity, string, string) error { return nil }
