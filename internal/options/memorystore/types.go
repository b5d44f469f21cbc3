package memorystore

import (
	"sort"
	"time"
)

// ContractRow is one tracked option contract inside a snapshot expiry.
type ContractRow struct {
	Symbol         string   `json:"symbol"`         // e.g. "NIFTY24000CE"
	Strike         float64  `json:"strike"`         // strike price
	Type           string   `json:"type"`           // "CE" or "PE"
	Price          *float64 `json:"price"`          // last traded price
	RiskScore      *float64 `json:"risk_score"`     // overall risk score
	Recommendation *string  `json:"recommendation"` // e.g. "HOLD"
}

// Snapshot is the periodic market view grouped by expiry ("2006-01-02").
// A Snapshot is never mutated after construction; refreshes replace it.
type Snapshot struct {
	Timestamp string                   `json:"timestamp"` // time of day, "15:04:05"
	Expiries  map[string][]ContractRow `json:"expiries"`
}

// ContractCount returns the number of contracts across all expiries.
func (s *Snapshot) ContractCount() int {
	if s == nil {
		return 0
	}
	total := 0
	for _, rows := range s.Expiries {
		total += len(rows)
	}
	return total
}

// ExpiryDates returns the snapshot expiries in ascending order.
func (s *Snapshot) ExpiryDates() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.Expiries))
	for expiry := range s.Expiries {
		out = append(out, expiry)
	}
	sort.Strings(out)
	return out
}

// Metrics is the detailed greeks and risk record for one contract.
type Metrics struct {
	Time           string   `json:"time"`
	Symbol         string   `json:"symbol"`
	Strike         float64  `json:"strike"`
	Expiry         string   `json:"expiry"`
	OptionType     string   `json:"option_type"`
	LTP            *float64 `json:"ltp"`
	Delta          *float64 `json:"delta"`
	Gamma          *float64 `json:"gamma"`
	Theta          *float64 `json:"theta"`
	Vega           *float64 `json:"vega"`
	IV             *float64 `json:"iv"`
	OI             *int64   `json:"oi"`
	Volume         *int64   `json:"volume"`
	VaR1Day        *float64 `json:"var_1day"`
	RiskPct        *float64 `json:"risk_pct"`
	TimeRisk       *float64 `json:"time_risk"`
	ThetaBurnPct   *float64 `json:"theta_burn_pct"`
	Moneyness      *string  `json:"moneyness"`
	LiquidityScore *float64 `json:"liquidity_score"`
	RiskScore      *float64 `json:"risk_score"`
	Recommendation *string  `json:"recommendation"`
	DTE            *int     `json:"dte"`
	ExpectedMove   *float64 `json:"expected_move"`
}

// Subscription selects the single contract a client wants greeks for.
type Subscription struct {
	Symbol string `json:"symbol"`
	Expiry string `json:"expiry"`
}

// Client is a connected viewer. Implementations must be comparable (pointer
// types) since the registry keys on identity.
type Client interface {
	ID() string
	// Send writes one message, giving up after timeout.
	Send(payload []byte, timeout time.Duration) error
}
