package reports

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Dimension string

const (
	ByDay      Dimension = "day"
	ByCustomer Dimension = "customer"
	ByVendor   Dimension = "vendor"
	ByProduct  Dimension = "product"
	ByStore    Dimension = "store"
)

func ParseDimension(raw string) (Dimension, error) {
	switch d := Dimension(strings.ToLower(strings.TrimSpace(raw))); d {
	case ByDay, ByCustomer, ByVendor, ByProduct, ByStore:
		return d, nil
	default:
		return "", fmt.Errorf("unknown report dimension %q", raw)
	}
}

type Row struct {
	Key           string          `json:"key"`
	Label         string          `json:"label"`
	Count         int             `json:"count"`
	Quantity      int             `json:"quantity"`
	Total         decimal.Decimal `json:"total"`
	AverageTicket decimal.Decimal `json:"average_ticket"`
}

const walkInKey = "-"

// SalesBy groups the Venda entries of the input along dim. Day rows come in
// calendar order; every other dimension is sorted by total, largest first.
func SalesBy(dim Dimension, in Input) []Row {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	labels := labelIndex(dim, in)

	rows := map[string]*Row{}
	get := func(key string, fallback string) *Row {
		row, ok := rows[key]
		if !ok {
			label := labels[key]
			if label == "" {
				label = fallback
			}
			if label == "" {
				label = key
			}
			row = &Row{Key: key, Label: label, Total: decimal.Zero}
			rows[key] = row
		}
		return row
	}

	for _, tx := range in.Transactions {
		if !tx.IsSale() {
			continue
		}
		if dim == ByProduct {
			seen := map[string]bool{}
			for _, item := range tx.Items {
				row := get(item.ProductID, item.Name)
				if !seen[item.ProductID] {
					row.Count++
					seen[item.ProductID] = true
				}
				row.Quantity += item.Quantity
				row.Total = row.Total.Add(item.LineTotal())
			}
			continue
		}

		var key, fallback string
		switch dim {
		case ByDay:
			key = tx.Date.In(loc).Format(time.DateOnly)
		case ByCustomer:
			key, fallback = tx.ClientID, tx.Client
			if key == "" {
				key = walkInKey
				if fallback == "" {
					fallback = "Consumidor Final"
				}
			}
		case ByVendor:
			key = tx.VendorID
			if key == "" {
				key = tx.CreatedBy
			}
			if key == "" {
				key = walkInKey
			}
		case ByStore:
			key = tx.Store
			if key == "" {
				key = walkInKey
			}
		}
		row := get(key, fallback)
		row.Count++
		for _, item := range tx.Items {
			row.Quantity += item.Quantity
		}
		row.Total = row.Total.Add(tx.Value)
	}

	result := make([]Row, 0, len(rows))
	for _, row := range rows {
		row.AverageTicket = average(row.Total, row.Count)
		result = append(result, *row)
	}
	slices.SortFunc(result, func(a, b Row) int {
		if dim != ByDay {
			if c := b.Total.Cmp(a.Total); c != 0 {
				return c
			}
		}
		return strings.Compare(a.Key, b.Key)
	})
	return result
}

func labelIndex(dim Dimension, in Input) map[string]string {
	labels := map[string]string{}
	switch dim {
	case ByCustomer:
		for _, c := range in.Customers {
			labels[c.ID] = c.Name
		}
	case ByVendor:
		for _, u := range in.Users {
			if u.Name != "" {
				labels[u.Username] = u.Name
			}
		}
	case ByProduct:
		for _, p := range in.Products {
			labels[p.ID] = p.Name
		}
	}
	return labels
}
