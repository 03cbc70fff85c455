package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"lojapdv/backend/internal/apperr"
	"lojapdv/backend/internal/domain"
	"lojapdv/backend/internal/latch"
	"lojapdv/backend/internal/store"
	"lojapdv/backend/internal/xid"
)

const (
	maxInstallments = 24
	maxIDAttempts   = 3
)

// CommitSale turns a cart into stock decrements and one Venda entry, both
// committed atomically by the repository.
func (s *Service) CommitSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResult, error) {
	if len(req.Items) == 0 {
		return domain.SaleResult{}, apperr.New(apperr.Validation, "cart is empty")
	}
	if !req.PaymentMethod.Valid() {
		return domain.SaleResult{}, apperr.New(apperr.Validation, "unsupported payment method %q", req.PaymentMethod)
	}
	if req.Shipping.IsNegative() {
		return domain.SaleResult{}, apperr.New(apperr.Validation, "shipping must not be negative")
	}
	for _, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return domain.SaleResult{}, apperr.New(apperr.Validation, "every cart line needs a product id")
		}
		if item.Quantity < 1 {
			return domain.SaleResult{}, apperr.New(apperr.Validation, "quantity of %s must be at least 1", item.ProductID)
		}
		if item.SalePrice.IsNegative() {
			return domain.SaleResult{}, apperr.New(apperr.Validation, "price of %s must not be negative", item.ProductID)
		}
	}

	actor := actorOrSystem(ctx)
	sessionKey := strings.TrimSpace(req.SessionID)
	if sessionKey == "" {
		sessionKey = "user:" + actor.Username
	}
	release, err := s.latch.Acquire(ctx, "sale:"+sessionKey)
	if err != nil {
		if errors.Is(err, latch.ErrInFlight) {
			return domain.SaleResult{}, apperr.Wrap(apperr.Conflict, err, "session "+sessionKey)
		}
		return domain.SaleResult{}, classify(err, "acquire commit latch")
	}
	defer release()

	settings, err := s.Settings(ctx)
	if err != nil {
		return domain.SaleResult{}, err
	}

	tx := domain.Transaction{
		ID:        s.ids.New(xid.PrefixSale),
		Date:      s.now().UTC(),
		Type:      domain.TxIncome,
		Category:  domain.CategorySale,
		Status:    domain.TxStatusApproved,
		Store:     s.storeName(ctx),
		VendorID:  defaultString(strings.TrimSpace(req.VendorID), actor.Username),
		Items:     s.snapshotItems(ctx, req.Items),
		Shipping:  req.Shipping,
		Method:    req.PaymentMethod,
		CreatedBy: actor.Username,
	}
	tx.Value = domain.CartTotal(tx.Items, req.Shipping)
	tx.Description = fmt.Sprintf("Venda PDV - %d item(ns)", len(tx.Items))

	if customerID := strings.TrimSpace(req.CustomerID); customerID != "" {
		customer, err := s.repo.GetCustomer(ctx, customerID)
		if err != nil {
			return domain.SaleResult{}, classify(err, fmt.Sprintf("customer %s", customerID))
		}
		tx.ClientID = customer.ID
		tx.Client = customer.Name
	}

	if tx.Method.IsCard() {
		installments := 1
		if req.Card != nil {
			if req.Card.Installments != 0 {
				installments = req.Card.Installments
			}
			tx.AuthNumber = strings.TrimSpace(req.Card.AuthNumber)
			tx.TransactionSKU = strings.TrimSpace(req.Card.TransactionSKU)
		}
		if installments < 1 || installments > maxInstallments {
			return domain.SaleResult{}, apperr.New(apperr.Validation, "installments must be between 1 and %d", maxInstallments)
		}
		if tx.Method == domain.PaymentDebitCard {
			installments = 1
		}
		tx.Installments = installments
	}

	// Ids are unique per process only; another replica may have taken the
	// same millisecond, so a duplicate id gets a fresh one.
	var result *store.SaleCommitResult
	for attempt := 1; ; attempt++ {
		result, err = s.repo.CommitSale(ctx, store.SaleCommit{Transaction: tx, AllowNegativeStock: settings.AllowNegativeStock})
		if !errors.Is(err, store.ErrDuplicate) || attempt == maxIDAttempts {
			break
		}
		s.log.WithField("sale_id", tx.ID).Warn("sale id already taken, retrying with a new id")
		tx.ID = s.ids.New(xid.PrefixSale)
	}
	if err != nil {
		var stockErr *store.StockError
		if errors.As(err, &stockErr) {
			return domain.SaleResult{}, apperr.Wrap(apperr.Conflict, err, "sale rejected")
		}
		s.log.WithError(err).WithField("sale_id", tx.ID).Error("sale commit failed")
		return domain.SaleResult{}, classify(err, "commit sale")
	}

	warnings := make([]domain.SaleWarning, 0, len(result.MissingProducts))
	for _, productID := range result.MissingProducts {
		s.log.WithFields(logrus.Fields{
			"sale_id":    tx.ID,
			"product_id": productID,
		}).Warn("sold product missing from catalog, stock not updated")
		warnings = append(warnings, domain.SaleWarning{
			Code:      domain.WarningProductNotFound,
			ProductID: productID,
			Message:   fmt.Sprintf("product %s is not in the catalog; stock was not updated", productID),
		})
	}

	s.invalidateCatalog(ctx)
	s.logAudit(ctx, tx.Store, "sale_commit", "transaction", tx.ID, fmt.Sprintf("value=%s,items=%d,method=%s", tx.Value.StringFixed(2), len(tx.Items), tx.Method))

	return domain.SaleResult{
		Transaction: result.Transaction,
		Movements:   result.Movements,
		Warnings:    warnings,
	}, nil
}

// snapshotItems fills catalog fields the terminal left blank. Prices sent by
// the terminal are kept as captured at add-to-cart time.
func (s *Service) snapshotItems(ctx context.Context, items []domain.CartItem) []domain.CartItem {
	products := map[string]*domain.Product{}
	out := make([]domain.CartItem, 0, len(items))
	for _, item := range items {
		item.ProductID = strings.TrimSpace(item.ProductID)
		product, seen := products[item.ProductID]
		if !seen {
			found, err := s.repo.GetProduct(ctx, item.ProductID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				s.log.WithError(err).WithField("product_id", item.ProductID).Warn("catalog lookup failed while building cart snapshot")
			}
			product = found
			products[item.ProductID] = found
		}
		if product != nil {
			item.Name = defaultString(strings.TrimSpace(item.Name), product.Name)
			item.SKU = defaultString(item.SKU, product.SKU)
			item.Unit = defaultString(item.Unit, product.Unit)
			item.IsService = product.IsService
			if item.CostPrice.IsZero() {
				item.CostPrice = product.CostPrice
			}
		}
		out = append(out, item)
	}
	return out
}
