package pairs

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType identifies a pair lifecycle event.
type EventType string

const (
	EventPairAdded       EventType = "pair_added"
	EventPairActivated   EventType = "pair_activated"
	EventPairSuspended   EventType = "pair_suspended"
	EventPairBroken      EventType = "pair_broken"
	EventPairResumed     EventType = "pair_resumed"
	EventPairRemoved     EventType = "pair_removed"
	EventPositionOpened  EventType = "position_opened"
	EventPositionClosed  EventType = "position_closed"
	EventCooldownStarted EventType = "cooldown_started"
)

// Event is a typed lifecycle notification published by the Manager and
// consumed by the runner and external observers.
type Event struct {
	Type   EventType       `json:"type"`
	PairID string          `json:"pair_id,omitempty"`
	Status Status          `json:"status,omitempty"`
	Reason string          `json:"reason,omitempty"`
	PnL    decimal.Decimal `json:"pnl,omitempty"`
	Trade  *TradeRecord    `json:"trade,omitempty"`
	Time   time.Time       `json:"time"`
}
