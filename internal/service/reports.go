package service

import (
	"context"
	"time"

	"lojapdv/backend/internal/apperr"
	"lojapdv/backend/internal/reports"
	"lojapdv/backend/internal/store"
)

// ReportQuery selects the ledger window of a report. From is inclusive and
// To exclusive.
type ReportQuery struct {
	From  time.Time
	To    time.Time
	Store string
}

func (s *Service) Dashboard(ctx context.Context, q ReportQuery) (reports.Dashboard, error) {
	in, err := s.reportInput(ctx, q)
	if err != nil {
		return reports.Dashboard{}, err
	}
	return reports.BuildDashboard(in), nil
}

func (s *Service) DRE(ctx context.Context, q ReportQuery) (reports.DRE, error) {
	in, err := s.reportInput(ctx, q)
	if err != nil {
		return reports.DRE{}, err
	}
	return reports.BuildDRE(in), nil
}

func (s *Service) SalesBy(ctx context.Context, dim reports.Dimension, q ReportQuery) ([]reports.Row, error) {
	in, err := s.reportInput(ctx, q)
	if err != nil {
		return nil, err
	}
	return reports.SalesBy(dim, in), nil
}

func (s *Service) reportInput(ctx context.Context, q ReportQuery) (reports.Input, error) {
	if q.From.IsZero() || q.To.IsZero() || !q.To.After(q.From) {
		return reports.Input{}, apperr.New(apperr.Validation, "report needs from < to")
	}
	storeName, err := s.scopeStore(ctx, q.Store)
	if err != nil {
		return reports.Input{}, err
	}

	from, to := q.From, q.To
	txs, err := s.repo.ListTransactions(ctx, store.TransactionFilter{From: &from, To: &to, Store: storeName})
	if err != nil {
		return reports.Input{}, classify(err, "load report transactions")
	}
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return reports.Input{}, classify(err, "load report products")
	}
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return reports.Input{}, classify(err, "load report users")
	}
	customers, err := s.repo.ListCustomers(ctx)
	if err != nil {
		return reports.Input{}, classify(err, "load report customers")
	}
	orders, err := s.repo.ListServiceOrders(ctx, store.ServiceOrderFilter{Store: storeName})
	if err != nil {
		return reports.Input{}, classify(err, "load report service orders")
	}

	return reports.Input{
		Transactions:  txs,
		Products:      products,
		Users:         users,
		Customers:     customers,
		ServiceOrders: orders,
		Location:      q.From.Location(),
	}, nil
}
