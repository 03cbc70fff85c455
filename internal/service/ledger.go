package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lojapdv/backend/internal/apperr"
	"lojapdv/backend/internal/domain"
	"lojapdv/backend/internal/store"
	"lojapdv/backend/internal/xid"
)

// reservedCategories are written only by the commit flows.
var reservedCategories = map[string]bool{
	domain.CategorySale:         true,
	domain.CategoryPurchase:     true,
	domain.CategoryReturn:       true,
	domain.CategoryCancellation: true,
}

type LedgerQuery struct {
	From     *time.Time
	To       *time.Time
	Store    string
	Type     domain.TransactionType
	Category string
	Limit    int
}

func (s *Service) ListTransactions(ctx context.Context, q LedgerQuery) ([]domain.Transaction, error) {
	if q.From != nil && q.To != nil && !q.To.After(*q.From) {
		return nil, apperr.New(apperr.Validation, "to must be after from")
	}
	storeName, err := s.scopeStore(ctx, q.Store)
	if err != nil {
		return nil, err
	}
	if q.Limit < 1 || q.Limit > 1000 {
		q.Limit = 200
	}

	txs, err := s.repo.ListTransactions(ctx, store.TransactionFilter{
		From:     q.From,
		To:       q.To,
		Store:    storeName,
		Type:     q.Type,
		Category: q.Category,
		Limit:    q.Limit,
	})
	if err != nil {
		return nil, classify(err, "list transactions")
	}
	return txs, nil
}

func (s *Service) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	tx, err := s.repo.GetTransaction(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Transaction{}, classify(err, fmt.Sprintf("transaction %s", id))
	}
	if err := s.checkStoreAccess(ctx, tx.Store); err != nil {
		return domain.Transaction{}, err
	}
	return *tx, nil
}

// RecordTransaction appends a manual TRX entry such as rent or a supplier
// payment. It never touches stock.
func (s *Service) RecordTransaction(ctx context.Context, req domain.ManualTransactionRequest) (domain.Transaction, error) {
	if req.Type != domain.TxIncome && req.Type != domain.TxExpense {
		return domain.Transaction{}, apperr.New(apperr.Validation, "type must be INCOME or EXPENSE")
	}
	category := strings.TrimSpace(req.Category)
	if category == "" {
		return domain.Transaction{}, apperr.New(apperr.Validation, "category is required")
	}
	if reservedCategories[category] {
		return domain.Transaction{}, apperr.New(apperr.Validation, "category %s is reserved for sale and stock flows", category)
	}
	if !req.Value.IsPositive() {
		return domain.Transaction{}, apperr.New(apperr.Validation, "value must be positive")
	}
	status := defaultString(strings.ToUpper(strings.TrimSpace(req.Status)), domain.TxStatusPaid)
	if status != domain.TxStatusPaid && status != domain.TxStatusPending {
		return domain.Transaction{}, apperr.New(apperr.Validation, "status must be PAID or PENDING")
	}

	date := s.now().UTC()
	if req.Date != nil {
		date = req.Date.UTC()
	}
	actor := actorOrSystem(ctx)
	tx := domain.Transaction{
		ID:          s.ids.New(xid.PrefixManual),
		Date:        date,
		DueDate:     req.DueDate,
		Type:        req.Type,
		Category:    category,
		Status:      status,
		Value:       req.Value,
		Description: strings.TrimSpace(req.Description),
		Store:       s.storeName(ctx),
		CreatedBy:   actor.Username,
	}
	if clientID := strings.TrimSpace(req.ClientID); clientID != "" {
		customer, err := s.repo.GetCustomer(ctx, clientID)
		if err != nil {
			return domain.Transaction{}, classify(err, fmt.Sprintf("customer %s", clientID))
		}
		tx.ClientID = customer.ID
		tx.Client = customer.Name
	}

	saved, err := s.repo.InsertTransaction(ctx, tx)
	if err != nil {
		return domain.Transaction{}, classify(err, "record transaction")
	}
	s.logAudit(ctx, tx.Store, "ledger_entry", "transaction", tx.ID, fmt.Sprintf("type=%s,category=%s,value=%s", tx.Type, tx.Category, tx.Value.StringFixed(2)))
	return *saved, nil
}
