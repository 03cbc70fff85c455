package reports

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	ContentTypeCSV  = "text/csv; charset=utf-8"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Table is a flat rendering of a report, shared by the CSV and XLSX writers.
type Table struct {
	Title  string
	Header []string
	Rows   [][]any
}

func RowsTable(title string, rows []Row) Table {
	t := Table{
		Title:  title,
		Header: []string{"key", "label", "count", "quantity", "total", "average_ticket"},
		Rows:   make([][]any, 0, len(rows)),
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, []any{r.Key, r.Label, r.Count, r.Quantity, r.Total, r.AverageTicket})
	}
	return t
}

func DashboardTable(d Dashboard) Table {
	return Table{
		Title:  "dashboard",
		Header: []string{"metric", "value"},
		Rows: [][]any{
			{"sales_count", d.SalesCount},
			{"gross_sales", d.GrossSales},
			{"returns", d.Returns},
			{"cancellations", d.Cancellations},
			{"net_sales", d.NetSales},
			{"purchases", d.Purchases},
			{"other_income", d.OtherIncome},
			{"other_expenses", d.OtherExpenses},
			{"total_income", d.TotalIncome},
			{"total_expense", d.TotalExpense},
			{"balance", d.Balance},
			{"average_ticket", d.AverageTicket},
			{"pending_payables", d.PendingPayables},
			{"low_stock_products", len(d.LowStock)},
			{"open_service_orders", d.OpenServiceOrders},
		},
	}
}

func DRETable(r DRE) Table {
	t := Table{
		Title:  "dre",
		Header: []string{"line", "value"},
		Rows: [][]any{
			{"gross_revenue", r.GrossRevenue},
			{"returns", r.Returns},
			{"cancellations", r.Cancellations},
			{"deductions", r.Deductions},
			{"net_revenue", r.NetRevenue},
			{"cmv", r.CMV},
			{"gross_profit", r.GrossProfit},
			{"operating_expenses", r.OperatingExpenses},
		},
	}
	for _, c := range r.ExpensesByGroup {
		t.Rows = append(t.Rows, []any{"expense:" + c.Category, c.Total})
	}
	t.Rows = append(t.Rows,
		[]any{"other_income", r.OtherIncome},
		[]any{"net_result", r.NetResult},
		[]any{"stock_purchases", r.StockPurchases},
	)
	return t
}

func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	for _, row := range t.Rows {
		record := make([]string, len(row))
		for i, cell := range row {
			record[i] = cellString(cell)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteXLSX(w io.Writer, t Table) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := sheetName(t.Title)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	for col, h := range t.Header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	for i, row := range t.Rows {
		for col, value := range row {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, cellValue(value)); err != nil {
				return err
			}
		}
	}

	return f.Write(w)
}

func cellString(v any) string {
	switch val := v.(type) {
	case decimal.Decimal:
		return val.StringFixed(2)
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	default:
		return ""
	}
}

// cellValue keeps numbers numeric in the spreadsheet.
func cellValue(v any) any {
	if d, ok := v.(decimal.Decimal); ok {
		f, _ := d.Round(2).Float64()
		return f
	}
	return v
}

func sheetName(title string) string {
	if title == "" {
		return "report"
	}
	if len(title) > 31 {
		return title[:31]
	}
	return title
}
