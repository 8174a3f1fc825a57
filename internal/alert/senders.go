package alert

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/avolkov/finpulse/internal/domain"
)

// LogSender writes alerts to the log instead of delivering them. It stands
// in for the external SMS/email collaborators in local runs and tests.
type LogSender struct {
	channel domain.Channel
	log     zerolog.Logger
}

// NewLogSender creates a sender for the given channel.
func NewLogSender(channel domain.Channel, log zerolog.Logger) *LogSender {
	return &LogSender{channel: channel, log: log}
}

// Channel returns the channel this sender handles.
func (s *LogSender) Channel() domain.Channel { return s.channel }

// Send logs the alert.
func (s *LogSender) Send(ctx context.Context, a domain.Alert) error {
	s.log.Info().
		Str("alert_id", a.AlertID).
		Str("user_id", a.UserID).
		Str("channel", string(s.channel)).
		Str("trigger", string(a.Trigger)).
		Str("priority", string(a.Priority)).
		Str("message", a.Message).
		Msg("Alert dispatched")
	return nil
}

var _ Sender = (*LogSender)(nil)
