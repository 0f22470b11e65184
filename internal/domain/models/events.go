package models

import "time"

// EventKind names an outbound event type.
type EventKind string

const (
	EventTick           EventKind = "tick"
	EventSignal         EventKind = "signal"
	EventPositionOpen   EventKind = "position_open"
	EventPositionUpdate EventKind = "position_update"
	EventPositionClose  EventKind = "position_close"
	EventPositionsReset EventKind = "positions_reset"
	EventTradeHistory   EventKind = "trade_history"
	EventBalance        EventKind = "balance"
	EventStatus         EventKind = "status"
)

// Event is one fan-out message.
type Event struct {
	ID        string      `json:"id"`
	Kind      EventKind   `json:"kind"`
	SessionID string      `json:"session_id"`
	Symbol    string      `json:"symbol,omitempty"`
	At        time.Time   `json:"at"`
	Payload   interface{} `json:"payload"`
}

// SignalPayload accompanies EventSignal.
type SignalPayload struct {
	Signal     Signal           `json:"signal"`
	Confluence ConfluenceResult `json:"confluence"`
	Vetoed     bool             `json:"vetoed"`
	Blocked    string           `json:"blocked,omitempty"`
}

// TradeHistoryPayload accompanies EventTradeHistory.
type TradeHistoryPayload struct {
	Trade       Trade `json:"trade"`
	TotalTrades int   `json:"total_trades"`
}

// BalancePayload accompanies EventBalance.
type BalancePayload struct {
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency"`
}

// StatusPayload accompanies EventStatus.
type StatusPayload struct {
	IsTrading   bool         `json:"is_trading"`
	Phase       SessionPhase `json:"phase"`
	AccountType AccountType  `json:"account_type"`
	Strategy    Variant      `json:"strategy"`
	Reason      string       `json:"reason,omitempty"`
}

// PositionsResetPayload accompanies EventPositionsReset.
type PositionsResetPayload struct {
	Symbols []string `json:"symbols"`
	Reason  string   `json:"reason"`
}

// Account is what the venue reports after authorization.
type Account struct {
	LoginID  string      `json:"loginid"`
	Currency string      `json:"currency"`
	Balance  float64     `json:"balance"`
	Type     AccountType `json:"type"`
}
