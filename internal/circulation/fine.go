// internal/circulation/fine.go
package circulation

import (
	"time"

	"github.com/shopspring/decimal"

	"librarian/internal/clock"
)

// OverdueDays counts whole days from due to day. It is never negative.
func OverdueDays(due, day time.Time) int {
	if d := clock.DaysBetween(due, day); d > 0 {
		return d
	}
	return 0
}

// Fine is the charge for a copy due on due and returned on day: perDay for
// every whole day past due. Rates are whole cents, so the product is exact.
func Fine(due, day time.Time, perDay decimal.Decimal) decimal.Decimal {
	days := OverdueDays(due, day)
	if days == 0 {
		return decimal.Zero
	}
	return perDay.Mul(decimal.NewFromInt(int64(days)))
}
