package models

import "time"

// Direction of a candidate contract.
type Direction string

const (
	DirectionCall Direction = "CALL"
	DirectionPut  Direction = "PUT"
	DirectionNone Direction = "NONE"
)

// Opposite returns the reverse direction; NONE maps to NONE.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionCall:
		return DirectionPut
	case DirectionPut:
		return DirectionCall
	default:
		return DirectionNone
	}
}

// Variant names a strategy implementation.
type Variant string

const (
	VariantMultiIndicator    Variant = "MULTI_INDICATOR"
	VariantTrendFollowing    Variant = "TREND_FOLLOWING"
	VariantBollingerBreakout Variant = "BOLLINGER_BREAKOUT"
	VariantSupportResistance Variant = "SUPPORT_RESISTANCE"
	VariantLDP               Variant = "LDP"
	VariantTickPicker        Variant = "TICK_PICKER"
	VariantAMT               Variant = "AMT"
	VariantSniper            Variant = "SNIPER"
	VariantDigitPad          Variant = "DIGITPAD"
)

// Variants lists every selectable strategy.
func Variants() []Variant {
	return []Variant{
		VariantMultiIndicator, VariantTrendFollowing, VariantBollingerBreakout, VariantSupportResistance,
		VariantLDP, VariantTickPicker, VariantAMT, VariantSniper, VariantDigitPad,
	}
}

// Signal is the raw output of a strategy.
type Signal struct {
	Symbol     string             `json:"symbol"`
	Strategy   Variant            `json:"strategy"`
	Direction  Direction          `json:"direction"`
	Confidence float64            `json:"confidence"`
	Components map[string]float64 `json:"components,omitempty"`
	Reason     string             `json:"reason,omitempty"`
	Price      float64            `json:"price"`
	At         time.Time          `json:"at"`

	// Digit contracts carry their own contract type and barrier.
	ContractType ContractType `json:"contract_type,omitempty"`
	Barrier      string       `json:"barrier,omitempty"`
}

// NoSignal returns a NONE signal for the symbol.
func NoSignal(symbol string, v Variant, reason string) Signal {
	return Signal{Symbol: symbol, Strategy: v, Direction: DirectionNone, Reason: reason}
}

// IsActionable reports whether the signal carries a direction.
func (s Signal) IsActionable() bool {
	return s.Direction == DirectionCall || s.Direction == DirectionPut
}

// IsDigit reports whether the signal targets a digit contract.
func (s Signal) IsDigit() bool {
	switch s.ContractType {
	case ContractDigitOver, ContractDigitUnder, ContractDigitMatch, ContractDigitDiff, ContractDigitEven, ContractDigitOdd:
		return true
	}
	return false
}

// Tier classifies a confluence score.
type Tier string

const (
	TierStrong Tier = "STRONG"
	TierMedium Tier = "MEDIUM"
	TierWeak   Tier = "WEAK"
)

// ConfluenceResult is the gated decision for a signal.
type ConfluenceResult struct {
	Score      float64            `json:"score"`
	Tier       Tier               `json:"tier"`
	Allowed    bool               `json:"allowed"`
	Cooling    bool               `json:"cooling,omitempty"`
	Components map[string]float64 `json:"components"`
	Reasons    []string           `json:"reasons,omitempty"`
}

// Tradeable is false inside the cooldown window even when the score passes.
func (r ConfluenceResult) Tradeable() bool { return r.Allowed && !r.Cooling }
