package domain

import "github.com/shopspring/decimal"

func init() {
	// Amounts travel as plain JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// CartTotal is the sum of quantity x sale price over items plus shipping.
func CartTotal(items []CartItem, shipping decimal.Decimal) decimal.Decimal {
	total := shipping
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}
