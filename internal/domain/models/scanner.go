package models

import "time"

// PairScore ranks one symbol for the scanner.
type PairScore struct {
	Symbol     string    `json:"symbol"`
	Score      float64   `json:"score"`
	Direction  Direction `json:"direction"`
	Strategy   Variant   `json:"strategy,omitempty"`
	Confidence float64   `json:"confidence"`
	Confluence float64   `json:"confluence"`
	ADX        float64   `json:"adx"`
	Volatility string    `json:"volatility_zone"`
	Ticks      int       `json:"ticks"`
	HasData    bool      `json:"has_data"`
	Reason     string    `json:"reason,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Active reports whether the pair carries a rise/fall signal.
func (p PairScore) Active() bool {
	return p.HasData && (p.Direction == DirectionCall || p.Direction == DirectionPut)
}

type ScannerStatus struct {
	Total           int       `json:"total_pairs"`
	WithData        int       `json:"pairs_with_data"`
	WithSignal      int       `json:"pairs_with_signal"`
	IntervalSeconds float64   `json:"scan_interval_seconds"`
	MinTicks        int       `json:"min_ticks"`
	ScannedAt       time.Time `json:"scanned_at"`
}

// ScannerSnapshot is the scanner view served over HTTP.
type ScannerSnapshot struct {
	Status          ScannerStatus `json:"status"`
	Recommendations []PairScore   `json:"recommendations"`
	Pairs           []PairScore   `json:"pairs"`
}
