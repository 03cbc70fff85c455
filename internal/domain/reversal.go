package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// DaysElapsed is ceil(|now - date| / 24h).
func DaysElapsed(date time.Time, now time.Time) int {
	elapsed := now.Sub(date)
	if elapsed < 0 {
		elapsed = -elapsed
	}
	return int(math.Ceil(elapsed.Hours() / 24))
}

// SoldQuantities sums the sold units per product of a sale.
func SoldQuantities(sale Transaction) map[string]int {
	sold := make(map[string]int, len(sale.Items))
	for _, item := range sale.Items {
		sold[item.ProductID] += item.Quantity
	}
	return sold
}

// ReturnedQuantities sums the units already returned per product.
func ReturnedQuantities(returns []Transaction) map[string]int {
	returned := make(map[string]int)
	for _, ret := range returns {
		if !ret.IsReturn() {
			continue
		}
		for _, item := range ret.Items {
			returned[item.ProductID] += item.Quantity
		}
	}
	return returned
}

// ReturnedValue sums what the returns among reversals already refunded.
func ReturnedValue(returns []Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, ret := range returns {
		if ret.IsReturn() {
			total = total.Add(ret.Value)
		}
	}
	return total
}

// OutstandingItems returns the sale lines with the units not yet returned.
// Returned units are taken from the first lines of each product.
func OutstandingItems(sale Transaction, returns []Transaction) []CartItem {
	returned := ReturnedQuantities(returns)
	out := make([]CartItem, 0, len(sale.Items))
	for _, item := range sale.Items {
		if used := min(returned[item.ProductID], item.Quantity); used > 0 {
			item.Quantity -= used
			returned[item.ProductID] -= used
		}
		if item.Quantity > 0 {
			out = append(out, item)
		}
	}
	return out
}

// RemainingStock lists, per stock-tracked product, the units of a sale that
// have not been returned yet. Service lines are left out.
func RemainingStock(sale Transaction, returns []Transaction) map[string]int {
	remaining := make(map[string]int, len(sale.Items))
	for _, item := range OutstandingItems(sale, returns) {
		if item.IsService {
			continue
		}
		remaining[item.ProductID] += item.Quantity
	}
	return remaining
}

// ReturnLines allocates quantity units of productID over the sale lines
// that still have units outstanding, in sale order, so each returned unit is
// priced at the line it came from. ok is false when fewer units remain.
func ReturnLines(sale Transaction, returns []Transaction, productID string, quantity int) ([]CartItem, bool) {
	lines := make([]CartItem, 0, 1)
	left := quantity
	for _, item := range OutstandingItems(sale, returns) {
		if left == 0 {
			break
		}
		if item.ProductID != productID {
			continue
		}
		take := min(left, item.Quantity)
		item.Quantity = take
		lines = append(lines, item)
		left -= take
	}
	if quantity < 1 || left > 0 {
		return nil, false
	}
	return lines, true
}

// CancellationValue is the full value of the sale. Refunds already booked by
// returns are not netted; the caller reports them through ReturnedValue.
func CancellationValue(sale Transaction) decimal.Decimal {
	return sale.Value
}
