package types

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Market identifies one exchange's spot venue.
type Market string

const (
	Binance      Market = "binance"
	BinanceAlpha Market = "binance_alpha"
	Bybit        Market = "bybit"
	MEXC         Market = "mexc"
	Bitget       Market = "bitget"
	KuCoin       Market = "kucoin"
	OKX          Market = "okx"
	Gate         Market = "gate"
)

// Priority is the order in which markets are probed when a query names none.
var Priority = []Market{Binance, BinanceAlpha, Bybit, MEXC, Bitget, KuCoin, OKX, Gate}

var displayNames = map[Market]string{
	Binance:      "Binance",
	BinanceAlpha: "Binance Alpha",
	Bybit:        "Bybit",
	MEXC:         "MEXC",
	Bitget:       "Bitget",
	KuCoin:       "KuCoin",
	OKX:          "OKX",
	Gate:         "Gate",
}

// Valid reports whether m is one of the supported markets.
func (m Market) Valid() bool {
	_, ok := displayNames[m]
	return ok
}

// DisplayName returns the human readable exchange name.
func (m Market) DisplayName() string {
	if name, ok := displayNames[m]; ok {
		return name
	}
	return strings.ToUpper(string(m))
}

// Operator is the comparison of an alert rule.
type Operator string

const (
	AtOrAbove Operator = ">="
	AtOrBelow Operator = "<="
)

// ParseOperator accepts only the two supported comparisons.
func ParseOperator(s string) (Operator, bool) {
	switch Operator(strings.TrimSpace(s)) {
	case AtOrAbove:
		return AtOrAbove, true
	case AtOrBelow:
		return AtOrBelow, true
	}
	return "", false
}

// Instrument is a tradeable pair on a specific market.
type Instrument struct {
	Market Market
	Code   string
}

// Alert is one threshold rule owned by a subscriber.
type Alert struct {
	ID          int             `json:"id"`
	Market      Market          `json:"market"`
	Code        string          `json:"code"`
	Display     string          `json:"display"`
	Operator    Operator        `json:"operator"`
	Threshold   decimal.Decimal `json:"threshold"`
	Fired       bool            `json:"fired"`
	Acked       bool            `json:"acked"`
	LastPrice   decimal.Decimal `json:"last_price"`
	LastFiredAt time.Time       `json:"last_fired_at"`
	CreatedAt   time.Time       `json:"created_at"`
}

// legacyAlert holds the field names written by the first release of the bot.
// last_fired is unix seconds, 0 when the rule never fired.
type legacyAlert struct {
	Src       Market           `json:"src"`
	Op        Operator         `json:"op"`
	Value     *decimal.Decimal `json:"value"`
	Triggered *bool            `json:"triggered"`
	Ack       *bool            `json:"ack"`
	LastFired float64          `json:"last_fired"`
}

// UnmarshalJSON reads both the current record layout and the legacy one.
// Current fields win when a record carries both.
func (a *Alert) UnmarshalJSON(b []byte) error {
	type plain Alert
	if err := json.Unmarshal(b, (*plain)(a)); err != nil {
		return err
	}

	var old legacyAlert
	if err := json.Unmarshal(b, &old); err != nil {
		return err
	}
	if a.Market == "" {
		a.Market = Market(strings.ToLower(strings.TrimSpace(string(old.Src))))
	}
	if a.Operator == "" {
		a.Operator = old.Op
	}
	if a.Threshold.IsZero() && old.Value != nil {
		a.Threshold = *old.Value
	}
	if old.Triggered != nil && !a.Fired {
		a.Fired = *old.Triggered
	}
	if old.Ack != nil && !a.Acked {
		a.Acked = *old.Ack
	}
	if a.LastFiredAt.IsZero() && old.LastFired > 0 {
		sec := int64(old.LastFired)
		a.LastFiredAt = time.Unix(sec, int64((old.LastFired-float64(sec))*1e9)).UTC()
	}
	return nil
}

// Instrument returns the (market, code) pair the alert watches.
func (a *Alert) Instrument() Instrument {
	return Instrument{Market: a.Market, Code: a.Code}
}

// Document is the whole persisted alert state keyed by chat id.
type Document struct {
	Alerts map[int64][]*Alert `json:"alerts"`
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{Alerts: make(map[int64][]*Alert)}
}

// NextID returns 1 + the largest id in alerts.
func NextID(alerts []*Alert) int {
	max := 0
	for _, a := range alerts {
		if a.ID > max {
			max = a.ID
		}
	}
	return max + 1
}
