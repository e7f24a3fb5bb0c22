package pricing

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Money is an exact rupiah amount.
type Money = decimal.Decimal

// Summary aggregates computed checkout totals.
type Summary struct {
	Subtotal Money `json:"subtotal"`
	Shipping Money `json:"shipping"`
	AdminFee Money `json:"admin_fee"`
	Total    Money `json:"total"`
}

// Compute sums store subtotals and chosen shipping costs and adds the flat
// admin fee. Shipping entries that are zero (nothing selected) contribute nothing.
func Compute(subtotals, shipping []Money, adminFee Money) Summary {
	sub := Sum(subtotals)
	ship := Sum(shipping)
	if adminFee.IsNegative() {
		adminFee = decimal.Zero
	}
	return Summary{
		Subtotal: sub,
		Shipping: ship,
		AdminFee: adminFee,
		Total:    sub.Add(ship).Add(adminFee),
	}
}

// Sum adds the provided amounts.
func Sum(values []Money) Money {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// LineSavings returns how much the buyer saved on an offer-derived line.
// An explicit savings value wins; otherwise the difference between catalog
// price and paid unit price is multiplied by quantity. Only positive results
// count; the bool is false when the line saved nothing.
func LineSavings(explicit decimal.NullDecimal, catalogPrice decimal.NullDecimal, unitPrice Money, qty int) (Money, bool) {
	if explicit.Valid {
		if explicit.Decimal.IsPositive() {
			return explicit.Decimal, true
		}
		return decimal.Zero, false
	}
	if !catalogPrice.Valid || qty <= 0 {
		return decimal.Zero, false
	}
	diff := catalogPrice.Decimal.Sub(unitPrice).Mul(decimal.NewFromInt(int64(qty)))
	if !diff.IsPositive() {
		return decimal.Zero, false
	}
	return diff, true
}

var rupiahPrinter = message.NewPrinter(language.Indonesian)

// FormatRupiah renders an amount the way Indonesian storefronts display it,
// e.g. "Rp 1.250.000". Fractions are rounded to whole rupiah.
func FormatRupiah(amount Money) string {
	rounded := amount.Round(0).IntPart()
	if rounded < 0 {
		return "-Rp " + rupiahPrinter.Sprintf("%d", -rounded)
	}
	return "Rp " + rupiahPrinter.Sprintf("%d", rounded)
}
