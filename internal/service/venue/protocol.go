package venue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Message types routed by the read loop.
const (
	msgAuthorize = "authorize"
	msgBalance   = "balance"
	msgTick      = "tick"
	msgHistory   = "history"
	msgBuy       = "buy"
	msgContract  = "proposal_open_contract"
	msgPing      = "ping"
	msgForget    = "forget"
)

// Error codes that mean the token is unusable.
const (
	codeInvalidToken     = "InvalidToken"
	codeAuthRequired     = "AuthorizationRequired"
	codeInsufficientFund = "InsufficientBalance"
)

// APIError is an error object returned by the venue.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// envelope holds the routing fields shared by every inbound message.
type envelope struct {
	MsgType      string        `json:"msg_type"`
	ReqID        int64         `json:"req_id"`
	Error        *APIError     `json:"error"`
	Subscription *subscription `json:"subscription"`
	Tick         *tickBody     `json:"tick"`
	Balance      *balanceBody  `json:"balance"`
	Contract     *contractBody `json:"proposal_open_contract"`
}

type subscription struct {
	ID string `json:"id"`
}

type tickBody struct {
	Symbol string    `json:"symbol"`
	Quote  flexFloat `json:"quote"`
	Epoch  int64     `json:"epoch"`
}

type balanceBody struct {
	Balance  flexFloat `json:"balance"`
	Currency string    `json:"currency"`
}

type contractBody struct {
	ContractID flexString `json:"contract_id"`
	IsSold     int        `json:"is_sold"`
	Status     string     `json:"status"`
	Profit     flexFloat  `json:"profit"`
	EntrySpot  flexFloat  `json:"entry_spot"`
	ExitSpot   flexFloat  `json:"exit_tick"`
}

type authorizeResponse struct {
	Authorize struct {
		LoginID   string    `json:"loginid"`
		Currency  string    `json:"currency"`
		Balance   flexFloat `json:"balance"`
		IsVirtual int       `json:"is_virtual"`
	} `json:"authorize"`
}

type historyResponse struct {
	History struct {
		Prices []flexFloat `json:"prices"`
		Times  []int64     `json:"times"`
	} `json:"history"`
}

type buyResponse struct {
	Buy struct {
		ContractID   flexString `json:"contract_id"`
		BuyPrice     flexFloat  `json:"buy_price"`
		BalanceAfter flexFloat  `json:"balance_after"`
		StartTime    int64      `json:"start_time"`
	} `json:"buy"`
}

type buyParameters struct {
	Amount       float64 `json:"amount"`
	Basis        string  `json:"basis"`
	ContractType string  `json:"contract_type"`
	Currency     string  `json:"currency"`
	Duration     int     `json:"duration"`
	DurationUnit string  `json:"duration_unit"`
	Symbol       string  `json:"symbol"`
	Barrier      string  `json:"barrier,omitempty"`
}

// flexFloat accepts numbers and numeric strings; the venue uses both.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("venue: bad number %q: %w", b, err)
	}
	*f = flexFloat(v)
	return nil
}

// flexString accepts ids sent either as numbers or strings.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	*s = flexString(bytes.Trim(b, `"`))
	if *s == "null" {
		*s = ""
	}
	return nil
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}
