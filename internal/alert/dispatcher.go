package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/avolkov/finpulse/internal/budget"
	"github.com/avolkov/finpulse/internal/domain"
	"github.com/avolkov/finpulse/internal/forecast"
)

// Store is the dispatcher's serialization point. ClaimDedup must be an
// atomic insert-if-absent on (user, category, trigger, window): of two
// concurrent evaluations, exactly one gets true.
type Store interface {
	ClaimDedup(ctx context.Context, userID, category string, trigger domain.TriggerType, window string) (bool, error)
	InsertAlerts(ctx context.Context, alerts []domain.Alert) error
}

// Sender delivers one alert over its channel. Failures are logged by the
// dispatcher, never retried here; retry policy belongs to the sender side.
type Sender interface {
	Send(ctx context.Context, alert domain.Alert) error
	Channel() domain.Channel
}

// Input bundles everything one evaluation needs. Forecast is optional: when
// history was insufficient the projected-overage trigger is skipped.
type Input struct {
	UserID   string
	Statuses []domain.BudgetStatus
	Budgets  []domain.Budget
	Forecast *domain.Forecast
	Settings domain.AlertSettings
}

// Dispatcher evaluates budget and forecast output against the user's
// thresholds and emits deduplicated alerts.
type Dispatcher struct {
	store   Store
	senders []Sender
	log     zerolog.Logger
	now     func() time.Time
}

// NewDispatcher wires a dispatcher over the given store and senders.
func NewDispatcher(store Store, senders []Sender, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:   store,
		senders: senders,
		log:     log,
		now:     time.Now,
	}
}

// Check runs both triggers and returns the alerts actually emitted in this
// evaluation. An alert already claimed inside the current window (one day)
// by any invocation is silently skipped, which makes Check idempotent per
// window.
func (d *Dispatcher) Check(ctx context.Context, in Input) ([]domain.Alert, error) {
	settings := in.Settings
	if settings.BudgetPct <= 0 {
		settings = domain.DefaultAlertSettings(in.UserID)
	}

	now := d.now().UTC()
	window := now.Format("2006-01-02")

	var emitted []domain.Alert

	for _, status := range in.Statuses {
		if !status.OverBudget || status.Limit == nil {
			continue
		}
		claimed, err := d.store.ClaimDedup(ctx, in.UserID, status.Category, domain.TriggerOverBudget, window)
		if err != nil {
			return emitted, fmt.Errorf("Check: claiming dedup for %s: %w", status.Category, err)
		}
		if !claimed {
			continue
		}

		alerts := d.buildAlerts(in.UserID, status.Category, domain.TriggerOverBudget,
			overBudgetMessage(status), priorityFor(status.PctUsed), settings, now)
		emitted = append(emitted, alerts...)
	}

	if projected, overage, ok := projectedOverage(in, settings); ok {
		claimed, err := d.store.ClaimDedup(ctx, in.UserID, "", domain.TriggerProjectedOverage, window)
		if err != nil {
			return emitted, fmt.Errorf("Check: claiming projected-overage dedup: %w", err)
		}
		if claimed {
			msg := projectedOverageMessage(projected, budget.TotalLimit(in.Budgets), overage)
			alerts := d.buildAlerts(in.UserID, "", domain.TriggerProjectedOverage,
				msg, domain.PriorityHigh, settings, now)
			emitted = append(emitted, alerts...)
		}
	}

	if len(emitted) > 0 {
		// The dedup claims are already held for this window, so bailing out
		// here would suppress the alerts until tomorrow. Deliver anyway and
		// log the missing records.
		if err := d.store.InsertAlerts(ctx, emitted); err != nil {
			d.log.Error().
				Err(err).
				Str("user_id", in.UserID).
				Int("alerts", len(emitted)).
				Msg("Failed to persist alerts, delivering without records")
		}
		d.deliver(ctx, emitted)
	}

	return emitted, nil
}

// buildAlerts creates one alert per enabled channel under a single dedup
// claim.
func (d *Dispatcher) buildAlerts(userID, category string, trigger domain.TriggerType,
	message string, priority domain.Priority, settings domain.AlertSettings, now time.Time) []domain.Alert {

	var channels []domain.Channel
	if settings.SMSEnabled {
		channels = append(channels, domain.ChannelSMS)
	}
	if settings.EmailEnabled {
		channels = append(channels, domain.ChannelEmail)
	}
	if len(channels) == 0 {
		// Nothing enabled; still record the alert on email so the decision
		// is auditable.
		channels = []domain.Channel{domain.ChannelEmail}
	}

	alerts := make([]domain.Alert, 0, len(channels))
	for _, ch := range channels {
		alerts = append(alerts, domain.Alert{
			AlertID:     uuid.NewString(),
			UserID:      userID,
			Category:    category,
			Trigger:     trigger,
			Channel:     ch,
			Priority:    priority,
			Message:     message,
			TriggeredAt: now,
		})
	}
	return alerts
}

// deliver hands alerts to the matching senders. Delivery failure is logged,
// not surfaced: the alert record already exists.
func (d *Dispatcher) deliver(ctx context.Context, alerts []domain.Alert) {
	byChannel := make(map[domain.Channel]Sender, len(d.senders))
	for _, s := range d.senders {
		byChannel[s.Channel()] = s
	}

	for _, a := range alerts {
		sender, ok := byChannel[a.Channel]
		if !ok {
			continue
		}
		if err := sender.Send(ctx, a); err != nil {
			d.log.Error().
				Err(err).
				Str("alert_id", a.AlertID).
				Str("channel", string(a.Channel)).
				Msg("Alert delivery failed")
		}
	}
}

// projectedOverage computes trigger B: projected month total vs total
// configured budget, compared against the absolute currency threshold.
func projectedOverage(in Input, settings domain.AlertSettings) (projected, overage decimal.Decimal, ok bool) {
	if in.Forecast == nil || len(in.Budgets) == 0 {
		return decimal.Zero, decimal.Zero, false
	}
	total := budget.TotalLimit(in.Budgets)
	if !total.IsPositive() {
		return decimal.Zero, decimal.Zero, false
	}
	projected = forecast.ProjectedMonthTotal(*in.Forecast)
	overage = projected.Sub(total)
	return projected, overage, overage.Cmp(settings.OverageThreshold) > 0
}

// priorityFor grades an over-budget alert by its percentage band.
func priorityFor(pctUsed float64) domain.Priority {
	switch {
	case pctUsed >= 150:
		return domain.PriorityCritical
	case pctUsed >= 125:
		return domain.PriorityHigh
	default:
		return domain.PriorityMedium
	}
}

// Message text is generated from the triggering figures only, so identical
// inputs always produce identical alerts.

func overBudgetMessage(status domain.BudgetStatus) string {
	return fmt.Sprintf("Budget alert: %s spending at %.1f%% of limit (spent %s of %s)",
		status.Category, status.PctUsed, status.Spent.StringFixed(2), status.Limit.StringFixed(2))
}

func projectedOverageMessage(projected, totalBudget, overage decimal.Decimal) string {
	return fmt.Sprintf("Forecast alert: projected monthly spend %s exceeds total budget %s by %s",
		projected.StringFixed(2), totalBudget.StringFixed(2), overage.StringFixed(2))
}
