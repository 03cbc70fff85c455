package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"lojapdv/backend/internal/apperr"
	"lojapdv/backend/internal/domain"
	"lojapdv/backend/internal/store"
	"lojapdv/backend/internal/xid"
)

// ReturnItem takes back units of one sold product inside the return window.
func (s *Service) ReturnItem(ctx context.Context, req domain.ReturnRequest) (domain.ReturnResult, error) {
	req.SaleID = strings.TrimSpace(req.SaleID)
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.SaleID == "" || req.ProductID == "" {
		return domain.ReturnResult{}, apperr.New(apperr.Validation, "sale_id and product_id are required")
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.Quantity < 1 {
		return domain.ReturnResult{}, apperr.New(apperr.Validation, "quantity must be at least 1")
	}

	sale, err := s.loadSale(ctx, req.SaleID)
	if err != nil {
		return domain.ReturnResult{}, err
	}
	line, ok := sale.Line(req.ProductID)
	if !ok {
		return domain.ReturnResult{}, apperr.New(apperr.NotFound, "product %s was not sold in %s", req.ProductID, sale.ID)
	}

	settings, err := s.Settings(ctx)
	if err != nil {
		return domain.ReturnResult{}, err
	}
	now := s.now().UTC()
	days := domain.DaysElapsed(sale.Date, now)
	if days > settings.ReturnWindowDays {
		return domain.ReturnResult{}, apperr.Wrap(apperr.RuleViolation, ErrReturnWindowExceeded,
			fmt.Sprintf("sale %s is %d days old, window is %d days", sale.ID, days, settings.ReturnWindowDays))
	}

	// Provisional pricing; the store reprices from the outstanding lines.
	returned := line
	returned.Quantity = req.Quantity
	description := fmt.Sprintf("Devolução ref. venda %s - %s", sale.ID, defaultString(line.Name, line.ProductID))
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		description += " (" + reason + ")"
	}

	actor := actorOrSystem(ctx)
	tx := domain.Transaction{
		ID:          s.ids.New(xid.PrefixReturn),
		Date:        now,
		Type:        domain.TxExpense,
		Category:    domain.CategoryReturn,
		Status:      domain.TxStatusApproved,
		Value:       returned.LineTotal(),
		Description: description,
		Store:       sale.Store,
		Client:      sale.Client,
		ClientID:    sale.ClientID,
		VendorID:    sale.VendorID,
		ReferenceID: sale.ID,
		Items:       []domain.CartItem{returned},
		Method:      sale.Method,
		CreatedBy:   actor.Username,
	}

	result, err := s.repo.CommitReturn(ctx, store.ReturnCommit{
		SaleID:      sale.ID,
		ProductID:   req.ProductID,
		Quantity:    req.Quantity,
		Transaction: tx,
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyReversed) {
			return domain.ReturnResult{}, apperr.Wrap(apperr.Conflict, err,
				fmt.Sprintf("sale %s is cancelled or %s has no units left to return", sale.ID, req.ProductID))
		}
		return domain.ReturnResult{}, classify(err, "commit return")
	}

	s.invalidateCatalog(ctx)
	s.logAudit(ctx, sale.Store, "sale_return", "transaction", tx.ID, fmt.Sprintf("sale=%s,product=%s,qty=%d,value=%s", sale.ID, req.ProductID, req.Quantity, result.Transaction.Value.StringFixed(2)))

	return domain.ReturnResult{
		Transaction: result.Transaction,
		Movements:   result.Movements,
		DaysElapsed: days,
	}, nil
}

// CancelSale books the full sale value as Cancelamento and puts the
// unreturned units back in stock. Value already refunded by returns is not
// netted; it comes back as PriorReturns.
func (s *Service) CancelSale(ctx context.Context, req domain.CancelRequest) (domain.CancelResult, error) {
	sale, err := s.resolveSale(ctx, req)
	if err != nil {
		return domain.CancelResult{}, err
	}

	description := "Cancelamento ref. venda " + sale.ID
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		description += " (" + reason + ")"
	}
	actor := actorOrSystem(ctx)
	tx := domain.Transaction{
		ID:          s.ids.New(xid.PrefixCancel),
		Date:        s.now().UTC(),
		Type:        domain.TxExpense,
		Category:    domain.CategoryCancellation,
		Status:      domain.TxStatusApproved,
		Description: description,
		Store:       sale.Store,
		Method:      sale.Method,
		CreatedBy:   actor.Username,
	}

	result, err := s.repo.CommitCancellation(ctx, store.CancelCommit{SaleID: sale.ID, Transaction: tx})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyReversed) {
			return domain.CancelResult{}, apperr.Wrap(apperr.Conflict, err, fmt.Sprintf("sale %s is already cancelled", sale.ID))
		}
		return domain.CancelResult{}, classify(err, "commit cancellation")
	}

	s.invalidateCatalog(ctx)
	if result.PriorRefunds.IsPositive() {
		s.log.WithFields(logrus.Fields{
			"sale_id":       sale.ID,
			"cancel_id":     result.Transaction.ID,
			"prior_returns": result.PriorRefunds.StringFixed(2),
		}).Warn("cancelled sale had returns; their refund is booked again by the cancellation")
	}
	s.logAudit(ctx, sale.Store, "sale_cancel", "transaction", result.Transaction.ID, fmt.Sprintf("sale=%s,value=%s,prior_returns=%s", sale.ID, result.Transaction.Value.StringFixed(2), result.PriorRefunds.StringFixed(2)))

	return domain.CancelResult{
		Transaction:  result.Transaction,
		Movements:    result.Movements,
		PriorReturns: result.PriorRefunds,
	}, nil
}

// FindSales matches query against sale ids and customer names, case
// insensitive.
func (s *Service) FindSales(ctx context.Context, query string) ([]domain.Transaction, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, apperr.New(apperr.Validation, "search query is required")
	}
	storeName, err := s.scopeStore(ctx, "")
	if err != nil {
		return nil, err
	}
	sales, err := s.repo.ListTransactions(ctx, store.TransactionFilter{
		Store:    storeName,
		Type:     domain.TxIncome,
		Category: domain.CategorySale,
	})
	if err != nil {
		return nil, classify(err, "search sales")
	}

	matches := make([]domain.Transaction, 0, 8)
	for _, sale := range sales {
		if strings.Contains(strings.ToLower(sale.ID), q) || strings.Contains(strings.ToLower(sale.Client), q) {
			matches = append(matches, sale)
		}
	}
	return matches, nil
}

func (s *Service) resolveSale(ctx context.Context, req domain.CancelRequest) (domain.Transaction, error) {
	if id := strings.TrimSpace(req.SaleID); id != "" {
		return s.loadSale(ctx, id)
	}

	matches, err := s.FindSales(ctx, req.Query)
	if err != nil {
		return domain.Transaction{}, err
	}
	for _, sale := range matches {
		if strings.EqualFold(sale.ID, strings.TrimSpace(req.Query)) {
			return sale, nil
		}
	}
	switch len(matches) {
	case 0:
		return domain.Transaction{}, apperr.New(apperr.NotFound, "no sale matches %q", req.Query)
	case 1:
		return matches[0], nil
	default:
		return domain.Transaction{}, apperr.New(apperr.Conflict, "%q matches %d sales, refine the search", req.Query, len(matches))
	}
}

func (s *Service) loadSale(ctx context.Context, id string) (domain.Transaction, error) {
	sale, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return domain.Transaction{}, classify(err, fmt.Sprintf("sale %s", id))
	}
	if !sale.IsSale() {
		return domain.Transaction{}, apperr.New(apperr.Validation, "transaction %s is not a sale", id)
	}
	if err := s.checkStoreAccess(ctx, sale.Store); err != nil {
		return domain.Transaction{}, err
	}
	return *sale, nil
}
