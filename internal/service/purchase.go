package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"lojapdv/backend/internal/apperr"
	"lojapdv/backend/internal/domain"
	"lojapdv/backend/internal/store"
	"lojapdv/backend/internal/xid"
)

// RecordPurchase books incoming stock and the matching Compra de Estoque
// expense. Paid purchases are PAID, the rest stay PENDING until settled.
func (s *Service) RecordPurchase(ctx context.Context, req domain.PurchaseRequest) (domain.PurchaseResult, error) {
	if len(req.Items) == 0 {
		return domain.PurchaseResult{}, apperr.New(apperr.Validation, "purchase has no items")
	}
	supplier := strings.TrimSpace(req.Supplier)
	if supplier == "" {
		return domain.PurchaseResult{}, apperr.New(apperr.Validation, "supplier is required")
	}

	lines := make([]store.PurchaseLine, 0, len(req.Items))
	items := make([]domain.CartItem, 0, len(req.Items))
	total := decimal.Zero
	for _, item := range req.Items {
		if item.Quantity < 1 {
			return domain.PurchaseResult{}, apperr.New(apperr.Validation, "quantity of %s must be at least 1", item.ProductID)
		}
		if item.CostPrice.IsNegative() {
			return domain.PurchaseResult{}, apperr.New(apperr.Validation, "cost of %s must not be negative", item.ProductID)
		}
		product, err := s.repo.GetProduct(ctx, strings.TrimSpace(item.ProductID))
		if err != nil {
			return domain.PurchaseResult{}, classify(err, fmt.Sprintf("product %s", item.ProductID))
		}
		if product.IsService {
			return domain.PurchaseResult{}, apperr.New(apperr.Validation, "%s is a service and carries no stock", product.ID)
		}

		lines = append(lines, store.PurchaseLine{ProductID: product.ID, Quantity: item.Quantity, CostPrice: item.CostPrice})
		items = append(items, domain.CartItem{
			ProductID: product.ID,
			Name:      product.Name,
			SKU:       product.SKU,
			Quantity:  item.Quantity,
			SalePrice: product.SalePrice,
			CostPrice: item.CostPrice,
			Unit:      product.Unit,
		})
		total = total.Add(item.CostPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	status := domain.TxStatusPending
	if req.Paid {
		status = domain.TxStatusPaid
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "Compra de estoque - " + supplier
	}

	actor := actorOrSystem(ctx)
	tx := domain.Transaction{
		ID:          s.ids.New(xid.PrefixPurchase),
		Date:        s.now().UTC(),
		DueDate:     req.DueDate,
		Type:        domain.TxExpense,
		Category:    domain.CategoryPurchase,
		Status:      status,
		Value:       total,
		Description: description,
		Store:       s.storeName(ctx),
		Client:      supplier,
		Items:       items,
		CreatedBy:   actor.Username,
	}

	result, err := s.repo.CommitPurchase(ctx, store.PurchaseCommit{Lines: lines, Transaction: tx})
	if err != nil {
		return domain.PurchaseResult{}, classify(err, "commit purchase")
	}

	s.invalidateCatalog(ctx)
	s.logAudit(ctx, tx.Store, "stock_purchase", "transaction", tx.ID, fmt.Sprintf("supplier=%s,value=%s,status=%s", supplier, total.StringFixed(2), status))
	return domain.PurchaseResult{Transaction: result.Transaction, Movements: result.Movements}, nil
}
