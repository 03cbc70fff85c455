// Package reports derives dashboard, DRE and sales breakdowns from a slice of
// ledger entries. Every function is pure: the same input yields the same
// output.
package reports

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"lojapdv/backend/internal/domain"
)

const LowStockThreshold = 5

// Input is the data one report run reads. Transactions must already be
// restricted to the requested range and store.
type Input struct {
	Transactions  []domain.Transaction
	Products      []domain.Product
	Users         []domain.UserAccount
	Customers     []domain.Customer
	ServiceOrders []domain.ServiceOrder
	// Location sets the calendar used for day buckets. Nil means UTC.
	Location *time.Location
}

type LowStockItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Stock     int    `json:"stock"`
}

type Dashboard struct {
	SalesCount        int             `json:"sales_count"`
	GrossSales        decimal.Decimal `json:"gross_sales"`
	Returns           decimal.Decimal `json:"returns"`
	Cancellations     decimal.Decimal `json:"cancellations"`
	NetSales          decimal.Decimal `json:"net_sales"`
	Purchases         decimal.Decimal `json:"purchases"`
	OtherIncome       decimal.Decimal `json:"other_income"`
	OtherExpenses     decimal.Decimal `json:"other_expenses"`
	TotalIncome       decimal.Decimal `json:"total_income"`
	TotalExpense      decimal.Decimal `json:"total_expense"`
	Balance           decimal.Decimal `json:"balance"`
	AverageTicket     decimal.Decimal `json:"average_ticket"`
	PendingPayables   decimal.Decimal `json:"pending_payables"`
	LowStock          []LowStockItem  `json:"low_stock"`
	OpenServiceOrders int             `json:"open_service_orders"`
}

func BuildDashboard(in Input) Dashboard {
	d := Dashboard{
		GrossSales:      decimal.Zero,
		Returns:         decimal.Zero,
		Cancellations:   decimal.Zero,
		Purchases:       decimal.Zero,
		OtherIncome:     decimal.Zero,
		OtherExpenses:   decimal.Zero,
		TotalIncome:     decimal.Zero,
		TotalExpense:    decimal.Zero,
		PendingPayables: decimal.Zero,
		LowStock:        []LowStockItem{},
	}

	for _, tx := range in.Transactions {
		switch tx.Type {
		case domain.TxIncome:
			d.TotalIncome = d.TotalIncome.Add(tx.Value)
			if tx.IsSale() {
				d.SalesCount++
				d.GrossSales = d.GrossSales.Add(tx.Value)
			} else {
				d.OtherIncome = d.OtherIncome.Add(tx.Value)
			}
		case domain.TxExpense:
			d.TotalExpense = d.TotalExpense.Add(tx.Value)
			switch tx.Category {
			case domain.CategoryReturn:
				d.Returns = d.Returns.Add(tx.Value)
			case domain.CategoryCancellation:
				d.Cancellations = d.Cancellations.Add(tx.Value)
			case domain.CategoryPurchase:
				d.Purchases = d.Purchases.Add(tx.Value)
			default:
				d.OtherExpenses = d.OtherExpenses.Add(tx.Value)
			}
			if tx.Status == domain.TxStatusPending {
				d.PendingPayables = d.PendingPayables.Add(tx.Value)
			}
		}
	}

	d.NetSales = d.GrossSales.Sub(d.Returns).Sub(d.Cancellations)
	d.Balance = d.TotalIncome.Sub(d.TotalExpense)
	d.AverageTicket = average(d.GrossSales, d.SalesCount)

	for _, p := range in.Products {
		if p.IsService || p.Stock > LowStockThreshold {
			continue
		}
		d.LowStock = append(d.LowStock, LowStockItem{ProductID: p.ID, Name: p.Name, Stock: p.Stock})
	}
	slices.SortFunc(d.LowStock, func(a, b LowStockItem) int {
		if a.Stock != b.Stock {
			return a.Stock - b.Stock
		}
		return strings.Compare(a.ProductID, b.ProductID)
	})

	for _, order := range in.ServiceOrders {
		if order.Status == domain.OrderOpen || order.Status == domain.OrderInProgress {
			d.OpenServiceOrders++
		}
	}
	return d
}

type CategoryTotal struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
}

// DRE is the income statement of the period. Stock purchases are inventory
// and stay out of the result; their cost enters through CMV when sold.
type DRE struct {
	GrossRevenue      decimal.Decimal `json:"gross_revenue"`
	Returns           decimal.Decimal `json:"returns"`
	Cancellations     decimal.Decimal `json:"cancellations"`
	Deductions        decimal.Decimal `json:"deductions"`
	NetRevenue        decimal.Decimal `json:"net_revenue"`
	CMV               decimal.Decimal `json:"cmv"`
	GrossProfit       decimal.Decimal `json:"gross_profit"`
	OperatingExpenses decimal.Decimal `json:"operating_expenses"`
	ExpensesByGroup   []CategoryTotal `json:"expenses_by_category"`
	OtherIncome       decimal.Decimal `json:"other_income"`
	NetResult         decimal.Decimal `json:"net_result"`
	StockPurchases    decimal.Decimal `json:"stock_purchases"`
}

func BuildDRE(in Input) DRE {
	r := DRE{
		GrossRevenue:      decimal.Zero,
		Returns:           decimal.Zero,
		Cancellations:     decimal.Zero,
		CMV:               decimal.Zero,
		OperatingExpenses: decimal.Zero,
		OtherIncome:       decimal.Zero,
		StockPurchases:    decimal.Zero,
	}
	byCategory := map[string]decimal.Decimal{}

	for _, tx := range in.Transactions {
		switch {
		case tx.IsSale():
			r.GrossRevenue = r.GrossRevenue.Add(tx.Value)
			r.CMV = r.CMV.Add(itemsCost(tx.Items))
		case tx.Type == domain.TxIncome:
			r.OtherIncome = r.OtherIncome.Add(tx.Value)
		case tx.IsReturn():
			r.Returns = r.Returns.Add(tx.Value)
			r.CMV = r.CMV.Sub(itemsCost(tx.Items))
		case tx.IsCancellation():
			r.Cancellations = r.Cancellations.Add(tx.Value)
			r.CMV = r.CMV.Sub(itemsCost(tx.Items))
		case tx.Category == domain.CategoryPurchase:
			r.StockPurchases = r.StockPurchases.Add(tx.Value)
		case tx.Type == domain.TxExpense:
			r.OperatingExpenses = r.OperatingExpenses.Add(tx.Value)
			byCategory[tx.Category] = byCategory[tx.Category].Add(tx.Value)
		}
	}

	r.Deductions = r.Returns.Add(r.Cancellations)
	r.NetRevenue = r.GrossRevenue.Sub(r.Deductions)
	r.GrossProfit = r.NetRevenue.Sub(r.CMV)
	r.NetResult = r.GrossProfit.Sub(r.OperatingExpenses).Add(r.OtherIncome)

	r.ExpensesByGroup = make([]CategoryTotal, 0, len(byCategory))
	for category, total := range byCategory {
		r.ExpensesByGroup = append(r.ExpensesByGroup, CategoryTotal{Category: category, Total: total})
	}
	slices.SortFunc(r.ExpensesByGroup, func(a, b CategoryTotal) int {
		if c := b.Total.Cmp(a.Total); c != 0 {
			return c
		}
		return strings.Compare(a.Category, b.Category)
	})
	return r
}

func itemsCost(items []domain.CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineCost())
	}
	return total
}

func average(total decimal.Decimal, count int) decimal.Decimal {
	if count == 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(int64(count))).Round(2)
}
