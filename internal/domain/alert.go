package domain

import "time"

// Channel is an alert delivery channel.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// TriggerType identifies which rule produced an alert.
type TriggerType string

const (
	// TriggerOverBudget fires when a category's spend crosses its
	// percentage threshold in the current month.
	TriggerOverBudget TriggerType = "over_budget"

	// TriggerProjectedOverage fires when the projected month total exceeds
	// the total configured budget by more than the absolute threshold.
	TriggerProjectedOverage TriggerType = "projected_overage"
)

// Priority grades an alert by how far past the limit spending is.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Alert is an immutable record handed to the notification collaborator.
type Alert struct {
	AlertID     string      `json:"alert_id"`
	UserID      string      `json:"user_id"`
	Category    string      `json:"category,omitempty"`
	Trigger     TriggerType `json:"trigger"`
	Channel     Channel     `json:"channel"`
	Priority    Priority    `json:"priority"`
	Message     string      `json:"message"`
	TriggeredAt time.Time   `json:"triggered_at"`
}
