// Package symbol maps loosely typed asset names onto each market's
// instrument code format.
package symbol

import (
	"strings"

	"price-alert-bot/internal/types"
)

// Style is the separator convention of a market's instrument codes.
type Style int

const (
	NoSeparator Style = iota // BTCUSDT
	Dash                     // BTC-USDT
	Underscore               // BTC_USDT
)

// QuoteSuffixes mark user input as already carrying its quote. Longest
// suffixes come first so FDUSD wins over USD.
var QuoteSuffixes = []string{"FDUSD", "USDT", "USDC", "BUSD", "TUSD", "USD"}

// CrossQuotes are only recognized when splitting instrument codes, never
// when deciding whether user input needs a quote appended.
var CrossQuotes = []string{"BTC", "ETH"}

// Ladder is the order in which quotes are appended to a bare base asset.
var Ladder = []string{"USDT", "USDC", "FDUSD"}

// OtherQuotes are fiat and minor quotes some markets list. They are only
// used to split codes that carry them.
var OtherQuotes = []string{"EUR", "TRY", "BRL", "JPY", "DAI"}

// DefaultQuote is appended by Normalize to a bare base asset.
const DefaultQuote = "USDT"

var codeQuotes = append(append(append([]string{}, QuoteSuffixes...), CrossQuotes...), OtherQuotes...)

// StyleOf returns the code style used by market m.
func StyleOf(m types.Market) Style {
	switch m {
	case types.KuCoin, types.OKX:
		return Dash
	case types.Gate:
		return Underscore
	default:
		return NoSeparator
	}
}

func clean(raw string) string {
	return strings.Join(strings.Fields(strings.ToUpper(raw)), "")
}

func dropSeparators(r rune) rune {
	switch r {
	case '-', '_', '/':
		return -1
	}
	return r
}

func split(raw string, quotes []string) (base, quote string, complete bool) {
	s := clean(raw)
	if i := strings.IndexAny(s, "-_/"); i >= 0 {
		b, q := s[:i], strings.Map(dropSeparators, s[i+1:])
		if b != "" && q != "" {
			return b, q, true
		}
		s = strings.Map(dropSeparators, s)
	}
	for _, q := range quotes {
		if len(s) > len(q) && strings.HasSuffix(s, q) {
			return s[:len(s)-len(q)], q, true
		}
	}
	return s, "", false
}

// Split separates an instrument code into base and quote. complete is false
// when no known quote is present; base is then the whole cleaned input.
func Split(code string) (base, quote string, complete bool) {
	return split(code, codeQuotes)
}

// HasQuote reports whether user input already names its quote currency,
// either through a separator or a stablecoin suffix.
func HasQuote(raw string) bool {
	_, _, ok := split(raw, QuoteSuffixes)
	return ok
}

// Join builds the code for base and quote in the given style.
func Join(base, quote string, style Style) string {
	switch style {
	case Dash:
		return base + "-" + quote
	case Underscore:
		return base + "_" + quote
	default:
		return base + quote
	}
}

func known(quote string) bool {
	for _, q := range codeQuotes {
		if q == quote {
			return true
		}
	}
	return false
}

// Normalize returns the market's instrument code for raw. A bare base asset
// gets DefaultQuote appended. Normalizing a normalized code is a no-op.
//
// On markets without a separator a quote only survives if Split can find it
// again in the joined code, so an unlisted quote given after a separator is
// folded into the base.
func Normalize(raw string, m types.Market) string {
	style := StyleOf(m)
	base, quote, ok := Split(raw)
	if base == "" {
		return ""
	}
	if ok && style == NoSeparator && !known(quote) {
		base, ok = base+quote, false
	}
	if !ok {
		quote = DefaultQuote
	}
	return Join(base, quote, style)
}

// Restyle rewrites an instrument code into market m's separator style. It
// never adds a quote, so codes produced by Candidates pass through intact.
func Restyle(code string, m types.Market) string {
	s := clean(code)
	style := StyleOf(m)
	if style == NoSeparator {
		return strings.Map(dropSeparators, s)
	}
	base, quote, ok := Split(s)
	if !ok {
		return base
	}
	return Join(base, quote, style)
}

// Display renders code the way market m writes it.
func Display(m types.Market, code string) string {
	return Restyle(code, m)
}

// Label is the immutable "CODE (Exchange)" text stored with an alert.
func Label(m types.Market, code string) string {
	return Display(m, code) + " (" + m.DisplayName() + ")"
}

// Candidates returns the codes to probe on market m for user input raw, in
// order. Input with a quote yields itself. A bare base yields one code per
// Ladder rung, followed by the cross pair when raw ends in BTC or ETH.
func Candidates(raw string, m types.Market) []string {
	style := StyleOf(m)
	if base, quote, ok := split(raw, QuoteSuffixes); ok {
		return []string{Join(base, quote, style)}
	} else if base == "" {
		return nil
	}

	base := strings.Map(dropSeparators, clean(raw))
	codes := make([]string, 0, len(Ladder)+1)
	for _, q := range Ladder {
		codes = append(codes, Join(base, q, style))
	}
	if b, q, ok := split(base, CrossQuotes); ok {
		codes = append(codes, Join(b, q, style))
	}
	return codes
}
