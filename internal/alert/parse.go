package alert

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"price-alert-bot/internal/types"
)

var (
	ErrSyntax        = errors.New("expected <asset> >=|<= <price>")
	ErrBadOperator   = errors.New("operator must be >= or <=")
	ErrBadThreshold  = errors.New("threshold must be a positive number")
	ErrBadID         = errors.New("id must be a positive integer")
	ErrAlertNotFound = errors.New("alert not found")
)

// ValidationError rejects malformed input before any store mutation.
type ValidationError struct {
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Rule is a parsed add request.
type Rule struct {
	Query     string
	Operator  types.Operator
	Threshold decimal.Decimal
}

// ParseRule parses "<asset> >=|<= <price>". The asset may span several
// words ("binance alpha BTC"). The operator may also be glued to the price
// (">=70000").
func ParseRule(args []string) (Rule, error) {
	var tokens []string
	for _, arg := range args {
		tokens = append(tokens, splitOperator(arg)...)
	}

	opIdx := -1
	for i, tok := range tokens {
		if tok == string(types.AtOrAbove) || tok == string(types.AtOrBelow) || isComparison(tok) {
			opIdx = i
			break
		}
	}
	if opIdx < 1 || opIdx != len(tokens)-2 {
		return Rule{}, &ValidationError{Field: "rule", Value: strings.Join(args, " "), Err: ErrSyntax}
	}

	op, ok := types.ParseOperator(tokens[opIdx])
	if !ok {
		return Rule{}, &ValidationError{Field: "operator", Value: tokens[opIdx], Err: ErrBadOperator}
	}
	threshold, err := ParseThreshold(tokens[opIdx+1])
	if err != nil {
		return Rule{}, err
	}
	return Rule{Query: strings.Join(tokens[:opIdx], " "), Operator: op, Threshold: threshold}, nil
}

func isComparison(tok string) bool {
	switch tok {
	case ">", "<", "=", "==", "=>", "=<", "!=":
		return true
	}
	return false
}

func splitOperator(arg string) []string {
	for _, op := range []string{">=", "<="} {
		if arg != op && strings.HasPrefix(arg, op) {
			return []string{op, arg[len(op):]}
		}
	}
	return []string{arg}
}

// ParseThreshold accepts positive decimals, tolerating "," thousand
// separators and a leading "$".
func ParseThreshold(raw string) (decimal.Decimal, error) {
	clean := strings.TrimPrefix(strings.ReplaceAll(strings.TrimSpace(raw), ",", ""), "$")
	v, err := decimal.NewFromString(clean)
	if err != nil || !v.IsPositive() {
		return decimal.Zero, &ValidationError{Field: "threshold", Value: raw, Err: ErrBadThreshold}
	}
	return v, nil
}

// ParseID parses a rule id argument.
func ParseID(args []string) (int, error) {
	if len(args) == 0 {
		return 0, &ValidationError{Field: "id", Err: ErrBadID}
	}
	id, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(args[0]), "#"))
	if err != nil || id <= 0 {
		return 0, &ValidationError{Field: "id", Value: args[0], Err: ErrBadID}
	}
	return id, nil
}
