package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"lojapdv/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicate         = errors.New("duplicate record")
	ErrMissingID         = errors.New("record id required")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrAlreadyReversed   = errors.New("sale already reversed")
	ErrNotASale          = errors.New("transaction is not a sale")
	ErrServiceItem       = errors.New("services carry no stock")

	// ErrConcurrentUpdate reports a write that lost a serialization race.
	ErrConcurrentUpdate = errors.New("concurrent update, retry")
)

// StockError names the product whose conditional decrement matched no row.
type StockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error {
	return ErrInsufficientStock
}

type TransactionFilter struct {
	From        *time.Time
	To          *time.Time
	Store       string
	Type        domain.TransactionType
	Category    string
	ReferenceID string
	Limit       int
}

// Matches applies the filter to one transaction. From is inclusive, To exclusive.
func (f TransactionFilter) Matches(tx domain.Transaction) bool {
	if f.From != nil && tx.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && !tx.Date.Before(*f.To) {
		return false
	}
	if f.Store != "" && tx.Store != f.Store {
		return false
	}
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	if f.Category != "" && tx.Category != f.Category {
		return false
	}
	if f.ReferenceID != "" && tx.ReferenceID != f.ReferenceID {
		return false
	}
	return true
}

type ServiceOrderFilter struct {
	Store  string
	Status domain.ServiceOrderStatus
}

type SaleCommit struct {
	Transaction        domain.Transaction
	AllowNegativeStock bool
}

type SaleCommitResult struct {
	Transaction     domain.Transaction
	Movements       []domain.StockMovement
	MissingProducts []string
}

type ReturnCommit struct {
	SaleID    string
	ProductID string
	Quantity  int
	// Transaction is the prepared Devolução entry. The store replaces its
	// items and value with the outstanding sale lines the units come from.
	Transaction domain.Transaction
}

type CancelCommit struct {
	SaleID string
	// Transaction carries id, date, description and author; the store fills
	// value, client and items from the sale and its prior returns.
	Transaction domain.Transaction
}

type CommitResult struct {
	Transaction domain.Transaction
	Movements   []domain.StockMovement
	// PriorRefunds is what earlier returns of the same sale refunded. Only
	// cancellations set it.
	PriorRefunds decimal.Decimal
}

type PurchaseLine struct {
	ProductID string
	Quantity  int
	// CostPrice replaces the product's cost when positive.
	CostPrice decimal.Decimal
}

type PurchaseCommit struct {
	Lines       []PurchaseLine
	Transaction domain.Transaction
}

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	UpsertProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	UpsertCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)

	ListEstablishments(ctx context.Context) ([]domain.Establishment, error)
	GetEstablishment(ctx context.Context, id string) (*domain.Establishment, error)
	UpsertEstablishment(ctx context.Context, establishment domain.Establishment) (*domain.Establishment, error)

	ListTransactions(ctx context.Context, filter TransactionFilter) ([]domain.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	InsertTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)

	CommitSale(ctx context.Context, commit SaleCommit) (*SaleCommitResult, error)
	CommitReturn(ctx context.Context, commit ReturnCommit) (*CommitResult, error)
	CommitCancellation(ctx context.Context, commit CancelCommit) (*CommitResult, error)
	CommitPurchase(ctx context.Context, commit PurchaseCommit) (*CommitResult, error)

	ListServiceOrders(ctx context.Context, filter ServiceOrderFilter) ([]domain.ServiceOrder, error)
	GetServiceOrder(ctx context.Context, id string) (*domain.ServiceOrder, error)
	UpsertServiceOrder(ctx context.Context, order domain.ServiceOrder) (*domain.ServiceOrder, error)

	GetSettings(ctx context.Context) (*domain.Settings, error)
	SaveSettings(ctx context.Context, settings domain.Settings) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, store string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUser(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
