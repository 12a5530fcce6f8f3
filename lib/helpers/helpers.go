package helpers

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var markdownV2Replacer = func() *strings.Replacer {
	charactersToEscape := []string{"\\", ".", "-", "_", "*", "[", "]", "(", ")", "~", "`", ">", "<", "#", "+", "=", "|", "{", "}", "!"}
	pairs := make([]string, 0, len(charactersToEscape)*2)
	for _, char := range charactersToEscape {
		pairs = append(pairs, char, "\\"+char)
	}
	return strings.NewReplacer(pairs...)
}()

// EscapeMarkdownV2 escapes every character Telegram reserves in MarkdownV2.
func EscapeMarkdownV2(text string) string {
	return markdownV2Replacer.Replace(text)
}

// Bold escapes text and wraps it in MarkdownV2 bold markers.
func Bold(text string) string {
	return "*" + EscapeMarkdownV2(text) + "*"
}

// Code escapes text for a MarkdownV2 inline code span.
func Code(text string) string {
	return "`" + strings.NewReplacer("\\", "\\\\", "`", "\\`").Replace(text) + "`"
}

// FormatPrice renders a price with thousand separators and a precision that
// suits its magnitude. Small prices keep their significant digits.
func FormatPrice(price decimal.Decimal) string {
	f, _ := price.Float64()
	abs := price.Abs()

	switch {
	case abs.GreaterThanOrEqual(decimal.NewFromInt(1000)):
		return message.NewPrinter(language.English).Sprintf("%.2f", f)
	case abs.GreaterThanOrEqual(decimal.NewFromInt(1)):
		return price.Round(4).String()
	case price.IsZero():
		return "0"
	}
	return price.String()
}

// FormatPriceUS is the float variant used for chart axes.
func FormatPriceUS(price float64) string {
	decimals := 6

	if price >= 1000 {
		decimals = 0
	} else if price > 1.2 {
		decimals = 2
	} else if price < 0.00001 {
		decimals = 8
	}

	p := message.NewPrinter(language.English)
	return p.Sprintf("%.*f", decimals, price)
}

// FormatSince renders how long ago t was ("3 minutes ago"), or "never".
func FormatSince(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// FormatDate formats a creation timestamp.
func FormatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04 UTC")
}
