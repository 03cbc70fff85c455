package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"lojapdv/backend/internal/apperr"
	"lojapdv/backend/internal/domain"
)

// ListProducts reads through the catalog cache. Cache failures are logged
// and the store is read directly. Reports bypass this path.
func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	cached, ok, err := s.cache.GetProducts(ctx)
	if err != nil {
		s.log.WithError(err).Warn("catalog cache read failed")
	}
	if ok {
		return cached, nil
	}

	generation, genErr := s.cache.Generation(ctx)
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, classify(err, "list products")
	}
	if genErr != nil {
		s.log.WithError(genErr).Warn("catalog cache generation read failed, skipping fill")
		return products, nil
	}
	if err := s.cache.SetProducts(ctx, generation, products, s.cacheTTL); err != nil {
		s.log.WithError(err).Warn("catalog cache write failed")
	}
	return products, nil
}

func (s *Service) SearchProducts(ctx context.Context, query string) ([]domain.Product, error) {
	products, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return products, nil
	}

	result := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.Name), q) ||
			strings.Contains(strings.ToLower(p.SKU), q) ||
			(p.Barcode != "" && p.Barcode == q) {
			result = append(result, p)
		}
	}
	return result, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, classify(err, fmt.Sprintf("product %s", id))
	}
	return *product, nil
}

// SaveProduct creates the product when id is empty and replaces it
// otherwise. Stock of an existing product only moves through commits.
func (s *Service) SaveProduct(ctx context.Context, id string, req domain.ProductRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Category = strings.TrimSpace(req.Category)
	if req.Name == "" || req.SKU == "" || req.Category == "" {
		return domain.Product{}, apperr.New(apperr.Validation, "name, sku and category are required")
	}
	if req.SalePrice.IsNegative() || req.CostPrice.IsNegative() {
		return domain.Product{}, apperr.New(apperr.Validation, "prices must not be negative")
	}

	product := domain.Product{
		ID:        strings.TrimSpace(id),
		Name:      req.Name,
		SKU:       req.SKU,
		Barcode:   strings.TrimSpace(req.Barcode),
		Category:  req.Category,
		CostPrice: req.CostPrice,
		SalePrice: req.SalePrice,
		Stock:     req.Stock,
		IsService: req.IsService,
		Image:     req.Image,
		Unit:      defaultString(strings.ToUpper(strings.TrimSpace(req.Unit)), "UN"),
		Location:  strings.TrimSpace(req.Location),
	}

	action := "product_update"
	if product.ID == "" {
		action = "product_create"
		product.ID = uuid.NewString()
	} else {
		existing, err := s.repo.GetProduct(ctx, product.ID)
		if err != nil {
			return domain.Product{}, classify(err, fmt.Sprintf("product %s", product.ID))
		}
		product.Stock = existing.Stock
		product.CreatedAt = existing.CreatedAt
	}

	switch {
	case product.IsService:
		product.Stock = domain.UnlimitedStock
	case product.Stock < 0 && action == "product_create":
		return domain.Product{}, apperr.New(apperr.Validation, "initial stock must not be negative")
	}

	saved, err := s.repo.UpsertProduct(ctx, product)
	if err != nil {
		return domain.Product{}, classify(err, fmt.Sprintf("save product sku %s", product.SKU))
	}
	s.invalidateCatalog(ctx)
	s.logAudit(ctx, "", action, "product", saved.ID, fmt.Sprintf("sku=%s,price=%s,stock=%d", saved.SKU, saved.SalePrice.StringFixed(2), saved.Stock))
	return *saved, nil
}

func (s *Service) invalidateCatalog(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.WithError(err).Warn("catalog cache invalidation failed")
	}
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	customers, err := s.repo.ListCustomers(ctx)
	if err != nil {
		return nil, classify(err, "list customers")
	}
	return customers, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomer(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Customer{}, classify(err, fmt.Sprintf("customer %s", id))
	}
	return *customer, nil
}

func (s *Service) SaveCustomer(ctx context.Context, id string, req domain.CustomerRequest) (domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Customer{}, apperr.New(apperr.Validation, "customer name is required")
	}

	customer := domain.Customer{
		ID:       strings.TrimSpace(id),
		Name:     req.Name,
		Document: strings.TrimSpace(req.Document),
		Phone:    strings.TrimSpace(req.Phone),
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Address:  strings.TrimSpace(req.Address),
	}
	action := "customer_update"
	if customer.ID == "" {
		action = "customer_create"
		customer.ID = uuid.NewString()
	} else if _, err := s.repo.GetCustomer(ctx, customer.ID); err != nil {
		return domain.Customer{}, classify(err, fmt.Sprintf("customer %s", customer.ID))
	}

	saved, err := s.repo.UpsertCustomer(ctx, customer)
	if err != nil {
		return domain.Customer{}, classify(err, "save customer")
	}
	s.logAudit(ctx, s.storeName(ctx), action, "customer", saved.ID, saved.Name)
	return *saved, nil
}

func (s *Service) ListEstablishments(ctx context.Context) ([]domain.Establishment, error) {
	establishments, err := s.repo.ListEstablishments(ctx)
	if err != nil {
		return nil, classify(err, "list establishments")
	}
	return establishments, nil
}

func (s *Service) SaveEstablishment(ctx context.Context, id string, req domain.EstablishmentRequest) (domain.Establishment, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Establishment{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Establishment{}, apperr.New(apperr.Validation, "establishment name is required")
	}

	establishment := domain.Establishment{
		ID:       strings.TrimSpace(id),
		Name:     req.Name,
		Document: strings.TrimSpace(req.Document),
		Address:  strings.TrimSpace(req.Address),
		Phone:    strings.TrimSpace(req.Phone),
		Active:   true,
	}
	if req.Active != nil {
		establishment.Active = *req.Active
	}
	if establishment.ID == "" {
		establishment.ID = uuid.NewString()
	}

	saved, err := s.repo.UpsertEstablishment(ctx, establishment)
	if err != nil {
		return domain.Establishment{}, classify(err, fmt.Sprintf("save establishment %s", establishment.Name))
	}
	s.logAudit(ctx, saved.Name, "establishment_upsert", "establishment", saved.ID, fmt.Sprintf("active=%t", saved.Active))
	return *saved, nil
}

func defaultString(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
