package alert

import (
	"time"

	"github.com/shopspring/decimal"

	"price-alert-bot/internal/types"
)

// Policy holds the evaluation constants shared by every rule.
type Policy struct {
	// Gap is the relative retreat past the threshold that re-arms a rule.
	Gap decimal.Decimal
	// Cooldown is the minimum time between repeat fires of a crossed,
	// unacknowledged rule.
	Cooldown time.Duration
}

// DefaultPolicy re-arms after a 0.2% retreat and repeats every 30s.
var DefaultPolicy = Policy{
	Gap:      decimal.RequireFromString("0.002"),
	Cooldown: 30 * time.Second,
}

// Crossed reports whether price satisfies the rule's condition.
func Crossed(a *types.Alert, price decimal.Decimal) bool {
	switch a.Operator {
	case types.AtOrAbove:
		return price.GreaterThanOrEqual(a.Threshold)
	case types.AtOrBelow:
		return price.LessThanOrEqual(a.Threshold)
	}
	return false
}

// Retreated reports whether price moved back past the threshold by at least
// the hysteresis gap in the safe direction.
func Retreated(a *types.Alert, price decimal.Decimal, gap decimal.Decimal) bool {
	one := decimal.NewFromInt(1)
	switch a.Operator {
	case types.AtOrAbove:
		return price.LessThanOrEqual(a.Threshold.Mul(one.Sub(gap)))
	case types.AtOrBelow:
		return price.GreaterThanOrEqual(a.Threshold.Mul(one.Add(gap)))
	}
	return false
}

// Evaluate applies one observed price to a rule and reports whether it fires.
// A retreat re-arms the rule and clears a pending acknowledgement. An
// acknowledged rule never fires.
func Evaluate(a *types.Alert, price decimal.Decimal, now time.Time, p Policy) bool {
	a.LastPrice = price

	if Retreated(a, price, p.Gap) {
		a.Fired = false
		a.Acked = false
	}
	if a.Acked || !Crossed(a, price) {
		return false
	}
	if a.Fired && now.Sub(a.LastFiredAt) < p.Cooldown {
		return false
	}

	a.Fired = true
	a.LastFiredAt = now
	return true
}

// Acknowledge silences the rule until it is un-acknowledged or re-armed.
func Acknowledge(a *types.Alert) {
	a.Acked = true
}

// Unacknowledge clears the acknowledgement and re-arms the rule, so the next
// tick fires again if the condition still holds.
func Unacknowledge(a *types.Alert) {
	a.Acked = false
	a.Fired = false
}
