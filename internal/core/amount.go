package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseCellAmount parses a numeric value read back from a ledger cell.
// Cells may carry display formatting applied by users or by the sheet
// itself: currency symbols, thousands separators, spaces, directional
// marks. Everything that is not a digit, sign or decimal point is
// stripped before parsing. Empty or unparseable values read as zero so
// that a freshly seeded "0" cell and a blank cell behave the same.
func ParseCellAmount(raw string) decimal.Decimal {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-', r == '+':
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return d
}
