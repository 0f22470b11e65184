package models

// Control requests shared by the HTTP and Kafka surfaces.

type StartSessionRequest struct {
	UserID       string   `param:"user" json:"user_id" validate:"required"`
	AccountType  string   `json:"account_type" default:"DEMO" validate:"oneof=DEMO REAL"`
	Strategy     string   `json:"strategy" default:"MULTI_INDICATOR" validate:"oneof=MULTI_INDICATOR TREND_FOLLOWING BOLLINGER_BREAKOUT SUPPORT_RESISTANCE LDP TICK_PICKER AMT SNIPER DIGITPAD"`
	BaseStake    float64  `json:"base_stake" default:"1" validate:"gte=0.5"`
	Symbols      []string `json:"symbols" validate:"omitempty,dive,required"`
	TargetTrades int      `json:"target_trades" validate:"gte=0,lte=10000"`
}

type SessionRef struct {
	UserID string `param:"user" json:"user_id" validate:"required"`
}

type StakeRequest struct {
	UserID    string  `param:"user" json:"user_id" validate:"required"`
	BaseStake float64 `json:"base_stake" validate:"required,gte=0.5"`
}

type StrategyRequest struct {
	UserID   string `param:"user" json:"user_id" validate:"required"`
	Strategy string `json:"strategy" validate:"required,oneof=MULTI_INDICATOR TREND_FOLLOWING BOLLINGER_BREAKOUT SUPPORT_RESISTANCE LDP TICK_PICKER AMT SNIPER DIGITPAD"`
}

type AccountRequest struct {
	UserID      string `param:"user" json:"user_id" validate:"required"`
	AccountType string `json:"account_type" validate:"required,oneof=DEMO REAL"`
}

type TradesRequest struct {
	UserID string `param:"user" json:"user_id" validate:"required"`
	From   string `query:"from" json:"from" validate:"omitempty,timestamp"`
	To     string `query:"to" json:"to" validate:"omitempty,timestamp"`
	Limit  int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=5000"`
}

type CandlesRequest struct {
	Symbol string `param:"symbol" json:"symbol" validate:"required"`
	TF     string `query:"tf" json:"tf" default:"1m" validate:"oneof=1m 5m 15m"`
	Limit  int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=5000"`
}

type MarketRequest struct {
	Symbol string `param:"symbol" json:"symbol" validate:"required"`
	N      int    `query:"n" json:"n" default:"50" validate:"gte=1,lte=1000"`
	TF     string `query:"tf" json:"tf" default:"1m" validate:"oneof=1m 5m 15m"`
}

type ScannerRequest struct {
	Top int `query:"top" json:"top" validate:"gte=0,lte=50"`
}
