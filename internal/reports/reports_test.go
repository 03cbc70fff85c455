package reports

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"lojapdv/backend/internal/domain"
)

func money(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func sampleInput() Input {
	day1 := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	sale1Items := []domain.CartItem{
		{ProductID: "P1", Name: "Cabo", Quantity: 3, SalePrice: money("50.00"), CostPrice: money("20.00")},
	}
	sale2Items := []domain.CartItem{
		{ProductID: "P1", Name: "Cabo", Quantity: 1, SalePrice: money("50.00"), CostPrice: money("20.00")},
		{ProductID: "S1", Name: "Diagnóstico", Quantity: 1, SalePrice: money("30.00"), IsService: true},
	}

	return Input{
		Transactions: []domain.Transaction{
			{ID: "SALE-1", Date: day1, Type: domain.TxIncome, Category: domain.CategorySale, Value: money("150.00"), Store: "Matriz", ClientID: "C1", Client: "Ana", VendorID: "caixa", Items: sale1Items},
			{ID: "RET-1", Date: day1.Add(time.Hour), Type: domain.TxExpense, Category: domain.CategoryReturn, Value: money("50.00"), Store: "Matriz", ReferenceID: "SALE-1",
				Items: []domain.CartItem{{ProductID: "P1", Quantity: 1, SalePrice: money("50.00"), CostPrice: money("20.00")}}},
			{ID: "SALE-2", Date: day2, Type: domain.TxIncome, Category: domain.CategorySale, Value: money("80.00"), Store: "Filial", VendorID: "gerente", Items: sale2Items},
			{ID: "PURCH-1", Date: day2, Type: domain.TxExpense, Category: domain.CategoryPurchase, Value: money("200.00"), Status: domain.TxStatusPending},
			{ID: "TRX-1", Date: day2, Type: domain.TxExpense, Category: "Aluguel", Value: money("40.00"), Status: domain.TxStatusPaid},
			{ID: "TRX-2", Date: day2, Type: domain.TxIncome, Category: "Serviços Extras", Value: money("10.00"), Status: domain.TxStatusPaid},
		},
		Products: []domain.Product{
			{ID: "P1", Name: "Cabo USB-C", Stock: 2},
			{ID: "P2", Name: "Fone", Stock: 40},
			{ID: "S1", Name: "Diagnóstico", Stock: domain.UnlimitedStock, IsService: true},
		},
		Users:     []domain.UserAccount{{Username: "caixa", Name: "Caixa Matriz"}},
		Customers: []domain.Customer{{ID: "C1", Name: "Ana Souza"}},
		ServiceOrders: []domain.ServiceOrder{
			{ID: "OS-1", Status: domain.OrderOpen},
			{ID: "OS-2", Status: domain.OrderFinished},
		},
	}
}

func TestDashboardTotals(t *testing.T) {
	d := BuildDashboard(sampleInput())

	assert.Equal(t, 2, d.SalesCount)
	assert.True(t, d.GrossSales.Equal(money("230")), d.GrossSales.String())
	assert.True(t, d.Returns.Equal(money("50")))
	assert.True(t, d.NetSales.Equal(money("180")))
	assert.True(t, d.Purchases.Equal(money("200")))
	assert.True(t, d.OtherExpenses.Equal(money("40")))
	assert.True(t, d.OtherIncome.Equal(money("10")))
	assert.True(t, d.Balance.Equal(money("-50")), d.Balance.String())
	assert.True(t, d.AverageTicket.Equal(money("115")))
	assert.True(t, d.PendingPayables.Equal(money("200")))
	require.Len(t, d.LowStock, 1)
	assert.Equal(t, "P1", d.LowStock[0].ProductID)
	assert.Equal(t, 1, d.OpenServiceOrders)
}

func TestDashboardWithoutSalesHasZeroAverageTicket(t *testing.T) {
	d := BuildDashboard(Input{})
	assert.Equal(t, 0, d.SalesCount)
	assert.True(t, d.AverageTicket.IsZero())
	assert.NotNil(t, d.LowStock)
}

func TestDREKeepsPurchasesOutOfResult(t *testing.T) {
	r := BuildDRE(sampleInput())

	assert.True(t, r.GrossRevenue.Equal(money("230")))
	assert.True(t, r.Deductions.Equal(money("50")))
	assert.True(t, r.NetRevenue.Equal(money("180")))
	// 4 units sold at cost 20, one returned.
	assert.True(t, r.CMV.Equal(money("60")), r.CMV.String())
	assert.True(t, r.GrossProfit.Equal(money("120")))
	assert.True(t, r.OperatingExpenses.Equal(money("40")))
	assert.True(t, r.OtherIncome.Equal(money("10")))
	assert.True(t, r.NetResult.Equal(money("90")), r.NetResult.String())
	assert.True(t, r.StockPurchases.Equal(money("200")))
	require.Len(t, r.ExpensesByGroup, 1)
	assert.Equal(t, "Aluguel", r.ExpensesByGroup[0].Category)
}

func TestReportsAreIdempotent(t *testing.T) {
	in := sampleInput()

	assert.Equal(t, BuildDashboard(in), BuildDashboard(in))
	assert.Equal(t, BuildDRE(in), BuildDRE(in))
	for _, dim := range []Dimension{ByDay, ByCustomer, ByVendor, ByProduct, ByStore} {
		assert.Equal(t, SalesBy(dim, in), SalesBy(dim, in), string(dim))
	}
}

func TestSalesByDayIsCalendarOrdered(t *testing.T) {
	rows := SalesBy(ByDay, sampleInput())
	require.Len(t, rows, 2)
	assert.Equal(t, "2026-03-01", rows[0].Key)
	assert.Equal(t, "2026-03-02", rows[1].Key)
	assert.Equal(t, 3, rows[0].Quantity)
}

func TestSalesByCustomerResolvesLabels(t *testing.T) {
	rows := SalesBy(ByCustomer, sampleInput())
	require.Len(t, rows, 2)
	assert.Equal(t, "C1", rows[0].Key)
	assert.Equal(t, "Ana Souza", rows[0].Label)
	assert.Equal(t, walkInKey, rows[1].Key)
	assert.Equal(t, "Consumidor Final", rows[1].Label)
}

func TestSalesByProductCountsSalesOncePerProduct(t *testing.T) {
	rows := SalesBy(ByProduct, sampleInput())
	require.Len(t, rows, 2)
	assert.Equal(t, "P1", rows[0].Key)
	assert.Equal(t, "Cabo USB-C", rows[0].Label)
	assert.Equal(t, 2, rows[0].Count)
	assert.Equal(t, 4, rows[0].Quantity)
	assert.True(t, rows[0].Total.Equal(money("200")))
	assert.True(t, rows[0].AverageTicket.Equal(money("100")))
}

func TestSalesByVendorFallsBackToUsername(t *testing.T) {
	rows := SalesBy(ByVendor, sampleInput())
	require.Len(t, rows, 2)
	assert.Equal(t, "Caixa Matriz", rows[0].Label)
	assert.Equal(t, "gerente", rows[1].Label)
}

func TestParseDimension(t *testing.T) {
	d, err := ParseDimension(" Store ")
	require.NoError(t, err)
	assert.Equal(t, ByStore, d)

	_, err = ParseDimension("weekday")
	assert.Error(t, err)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, RowsTable("store", SalesBy(ByStore, sampleInput()))))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "key,label,count,quantity,total,average_ticket", lines[0])
	assert.Equal(t, "Matriz,Matriz,1,3,150.00,150.00", lines[1])
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, DRETable(BuildDRE(sampleInput()))))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	header, err := f.GetCellValue("dre", "A1")
	require.NoError(t, err)
	assert.Equal(t, "line", header)

	first, err := f.GetCellValue("dre", "A2")
	require.NoError(t, err)
	assert.Equal(t, "gross_revenue", first)

	value, err := f.GetCellValue("dre", "B2")
	require.NoError(t, err)
	assert.Equal(t, "230", value)
}
