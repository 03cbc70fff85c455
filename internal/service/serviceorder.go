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

// CreateServiceOrder opens a repair or labor order. Items and total are fixed
// at creation.
func (s *Service) CreateServiceOrder(ctx context.Context, req domain.ServiceOrderCreateRequest) (domain.ServiceOrder, error) {
	customerID := strings.TrimSpace(req.CustomerID)
	description := strings.TrimSpace(req.Description)
	if customerID == "" || description == "" {
		return domain.ServiceOrder{}, apperr.New(apperr.Validation, "customer_id and description are required")
	}
	for _, item := range req.Items {
		if item.Quantity < 1 || item.SalePrice.IsNegative() {
			return domain.ServiceOrder{}, apperr.New(apperr.Validation, "invalid line for %s", item.ProductID)
		}
	}
	if _, err := s.repo.GetCustomer(ctx, customerID); err != nil {
		return domain.ServiceOrder{}, classify(err, fmt.Sprintf("customer %s", customerID))
	}

	items := s.snapshotItems(ctx, req.Items)
	actor := actorOrSystem(ctx)
	order := domain.ServiceOrder{
		ID:             s.ids.New(xid.PrefixOrder),
		Date:           s.now().UTC(),
		CustomerID:     customerID,
		Description:    description,
		Status:         domain.OrderOpen,
		Items:          items,
		TotalValue:     domain.CartTotal(items, decimal.Zero),
		TechnicianName: strings.TrimSpace(req.TechnicianName),
		Store:          s.storeName(ctx),
		CreatedBy:      actor.Username,
	}

	saved, err := s.repo.UpsertServiceOrder(ctx, order)
	if err != nil {
		return domain.ServiceOrder{}, classify(err, "create service order")
	}
	s.logAudit(ctx, order.Store, "service_order_create", "service_order", order.ID, fmt.Sprintf("customer=%s,total=%s", customerID, order.TotalValue.StringFixed(2)))
	return *saved, nil
}

// UpdateServiceOrderStatus moves an order to any status of the closed
// vocabulary. Items and total stay as created.
func (s *Service) UpdateServiceOrderStatus(ctx context.Context, id string, status domain.ServiceOrderStatus) (domain.ServiceOrder, error) {
	status = domain.ServiceOrderStatus(strings.ToUpper(strings.TrimSpace(string(status))))
	if !status.Valid() {
		return domain.ServiceOrder{}, apperr.New(apperr.Validation, "unknown service order status %q", status)
	}

	order, err := s.GetServiceOrder(ctx, id)
	if err != nil {
		return domain.ServiceOrder{}, err
	}
	previous := order.Status
	order.Status = status

	saved, err := s.repo.UpsertServiceOrder(ctx, order)
	if err != nil {
		return domain.ServiceOrder{}, classify(err, "update service order")
	}
	s.logAudit(ctx, order.Store, "service_order_status", "service_order", order.ID, fmt.Sprintf("%s->%s", previous, status))
	return *saved, nil
}

func (s *Service) GetServiceOrder(ctx context.Context, id string) (domain.ServiceOrder, error) {
	order, err := s.repo.GetServiceOrder(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.ServiceOrder{}, classify(err, fmt.Sprintf("service order %s", id))
	}
	if err := s.checkStoreAccess(ctx, order.Store); err != nil {
		return domain.ServiceOrder{}, err
	}
	return *order, nil
}

func (s *Service) ListServiceOrders(ctx context.Context, status domain.ServiceOrderStatus) ([]domain.ServiceOrder, error) {
	if status != "" && !status.Valid() {
		return nil, apperr.New(apperr.Validation, "unknown service order status %q", status)
	}
	storeName, err := s.scopeStore(ctx, "")
	if err != nil {
		return nil, err
	}
	orders, err := s.repo.ListServiceOrders(ctx, store.ServiceOrderFilter{Store: storeName, Status: status})
	if err != nil {
		return nil, classify(err, "list service orders")
	}
	return orders, nil
}
