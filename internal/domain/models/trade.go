package models

import "time"

// ContractType as understood by the venue.
type ContractType string

const (
	ContractCall       ContractType = "CALL"
	ContractPut        ContractType = "PUT"
	ContractDigitOver  ContractType = "DIGITOVER"
	ContractDigitUnder ContractType = "DIGITUNDER"
	ContractDigitMatch ContractType = "DIGITMATCH"
	ContractDigitDiff  ContractType = "DIGITDIFF"
	ContractDigitEven  ContractType = "DIGITEVEN"
	ContractDigitOdd   ContractType = "DIGITODD"
)

// ContractFor maps a plain direction to its rise/fall contract.
func ContractFor(d Direction) ContractType {
	if d == DirectionPut {
		return ContractPut
	}
	return ContractCall
}

// TradeResult is the outcome of a settled contract.
type TradeResult string

const (
	ResultWin  TradeResult = "WIN"
	ResultLoss TradeResult = "LOSS"
)

// Position is an open contract.
type Position struct {
	ContractID      string       `json:"contract_id"`
	Symbol          string       `json:"symbol"`
	Direction       Direction    `json:"direction"`
	ContractType    ContractType `json:"contract_type"`
	Stake           float64      `json:"stake"`
	EntryPrice      float64      `json:"entry_price"`
	MartingaleLevel int          `json:"martingale_level"`
	OpenedAt        time.Time    `json:"opened_at"`
	CurrentProfit   float64      `json:"current_profit"`
}

// Trade is a settled contract.
type Trade struct {
	Position
	SessionID string      `json:"session_id"`
	Result    TradeResult `json:"result"`
	Profit    float64     `json:"profit"`
	ExitPrice float64     `json:"exit_price"`
	ClosedAt  time.Time   `json:"closed_at"`
}

// Settle turns a position into an immutable trade.
func (p Position) Settle(sessionID string, profit, exitPrice float64, at time.Time) Trade {
	res := ResultLoss
	if profit > 0 {
		res = ResultWin
	}
	return Trade{
		Position:  p,
		SessionID: sessionID,
		Result:    res,
		Profit:    profit,
		ExitPrice: exitPrice,
		ClosedAt:  at,
	}
}

// IsWin reports whether the trade made money.
func (t Trade) IsWin() bool { return t.Result == ResultWin }

// OrderRequest is what the orchestrator asks the venue to buy.
type OrderRequest struct {
	Symbol       string
	ContractType ContractType
	Stake        float64
	Duration     int
	DurationUnit string
	Barrier      string
	Currency     string
}

// OrderReceipt acknowledges a placed order.
type OrderReceipt struct {
	ContractID string
	BuyPrice   float64
	Balance    float64
	StartTime  time.Time
}

// ContractUpdate is a settlement stream message for one contract.
type ContractUpdate struct {
	ContractID string
	Sold       bool
	Profit     float64
	EntrySpot  float64
	ExitSpot   float64
	Status     string
}
