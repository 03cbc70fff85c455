package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDaysElapsedRoundsUp(t *testing.T) {
	sale := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		now  time.Time
		want int
	}{
		{sale, 0},
		{sale.Add(time.Minute), 1},
		{sale.Add(24 * time.Hour), 1},
		{sale.Add(24*time.Hour + time.Second), 2},
		{sale.Add(-36 * time.Hour), 2},
	}
	for _, tc := range cases {
		if got := DaysElapsed(sale, tc.now); got != tc.want {
			t.Fatalf("DaysElapsed(%s) = %d, want %d", tc.now.Sub(sale), got, tc.want)
		}
	}
}

func TestRemainingStockSkipsServicesAndReturnedUnits(t *testing.T) {
	sale := Transaction{
		Type:     TxIncome,
		Category: CategorySale,
		Items: []CartItem{
			{ProductID: "P1", Quantity: 3},
			{ProductID: "SRV", Quantity: 1, IsService: true},
			{ProductID: "P2", Quantity: 1},
		},
	}
	returns := []Transaction{
		{Type: TxExpense, Category: CategoryReturn, Items: []CartItem{{ProductID: "P1", Quantity: 1}}},
		{Type: TxExpense, Category: CategoryReturn, Items: []CartItem{{ProductID: "P2", Quantity: 1}}},
	}

	remaining := RemainingStock(sale, returns)
	if len(remaining) != 1 || remaining["P1"] != 2 {
		t.Fatalf("expected only P1 with 2 units left, got %v", remaining)
	}
}

func TestCancellationValueIgnoresPriorReturns(t *testing.T) {
	sale := Transaction{Type: TxIncome, Category: CategorySale, Value: decimal.RequireFromString("150.00")}
	reversals := []Transaction{
		{Type: TxExpense, Category: CategoryReturn, Value: decimal.RequireFromString("50.00")},
		{Type: TxExpense, Category: CategoryCancellation, Value: decimal.RequireFromString("999")},
	}

	if got := CancellationValue(sale); !got.Equal(decimal.RequireFromString("150")) {
		t.Fatalf("expected full sale value, got %s", got)
	}
	if got := ReturnedValue(reversals); !got.Equal(decimal.RequireFromString("50")) {
		t.Fatalf("expected only the return to count as refunded, got %s", got)
	}
}

func TestReturnLinesFollowOutstandingAllocation(t *testing.T) {
	sale := Transaction{Type: TxIncome, Category: CategorySale, Items: []CartItem{
		{ProductID: "A", Quantity: 1, SalePrice: decimal.RequireFromString("50")},
		{ProductID: "B", Quantity: 1, SalePrice: decimal.RequireFromString("10")},
		{ProductID: "A", Quantity: 2, SalePrice: decimal.RequireFromString("40")},
	}}

	lines, ok := ReturnLines(sale, nil, "A", 2)
	if !ok || len(lines) != 2 {
		t.Fatalf("expected two lines, got %+v (ok=%v)", lines, ok)
	}
	if got := CartTotal(lines, decimal.Zero); !got.Equal(decimal.RequireFromString("90")) {
		t.Fatalf("expected 90, got %s", got)
	}

	returns := []Transaction{{Type: TxExpense, Category: CategoryReturn, Items: lines}}
	lines, ok = ReturnLines(sale, returns, "A", 1)
	if !ok || len(lines) != 1 || !lines[0].SalePrice.Equal(decimal.RequireFromString("40")) {
		t.Fatalf("expected the last unit from the 40 line, got %+v (ok=%v)", lines, ok)
	}
	if _, ok := ReturnLines(sale, returns, "A", 2); ok {
		t.Fatalf("expected too few units left")
	}
	if _, ok := ReturnLines(sale, nil, "A", 0); ok {
		t.Fatalf("expected zero quantity to be refused")
	}
}

func TestCartTotalUsesDecimalArithmetic(t *testing.T) {
	items := make([]CartItem, 0, 10)
	for i := 0; i < 10; i++ {
		items = append(items, CartItem{ProductID: "P", Quantity: 1, SalePrice: decimal.RequireFromString("0.10")})
	}
	total := CartTotal(items, decimal.RequireFromString("0.20"))
	if !total.Equal(decimal.RequireFromString("1.20")) {
		t.Fatalf("expected 1.20, got %s", total)
	}
}

func TestMoneyMarshalsAsNumber(t *testing.T) {
	payload, err := json.Marshal(Transaction{Value: decimal.RequireFromString("150.5")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(payload), `"value":150.5`) {
		t.Fatalf("expected numeric value, got %s", payload)
	}
}
