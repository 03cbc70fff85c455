package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken     string `json:"access_token"`
	Username        string `json:"username"`
	Role            string `json:"role"`
	EstablishmentID string `json:"establishment_id,omitempty"`
	ExpiresAt       string `json:"expires_at"`
}

type CardDetails struct {
	Installments   int    `json:"installments" validate:"omitempty,min=1,max=24"`
	AuthNumber     string `json:"auth_number"`
	TransactionSKU string `json:"transaction_sku"`
}

type SaleRequest struct {
	Items         []CartItem      `json:"items" validate:"dive"`
	PaymentMethod PaymentMethod   `json:"payment_method" validate:"required"`
	CustomerID    string          `json:"customer_id"`
	VendorID      string          `json:"vendor_id"`
	Card          *CardDetails    `json:"card"`
	Shipping      decimal.Decimal `json:"shipping"`
	SessionID     string          `json:"session_id"`
}

const WarningProductNotFound = "PRODUCT_NOT_FOUND"

type SaleWarning struct {
	Code      string `json:"code"`
	ProductID string `json:"product_id"`
	Message   string `json:"message"`
}

type SaleResult struct {
	Transaction Transaction     `json:"transaction"`
	Movements   []StockMovement `json:"movements"`
	Warnings    []SaleWarning   `json:"warnings"`
}

type ReturnRequest struct {
	SaleID     string `json:"sale_id"`
	ProductID  string `json:"product_id" validate:"required"`
	Quantity   int    `json:"quantity" validate:"omitempty,min=1"`
	Reason     string `json:"reason"`
	ManagerPIN string `json:"manager_pin"`
}

type ReturnResult struct {
	Transaction Transaction     `json:"transaction"`
	Movements   []StockMovement `json:"movements"`
	DaysElapsed int             `json:"days_elapsed"`
}

type CancelRequest struct {
	SaleID     string `json:"sale_id"`
	Query      string `json:"query"`
	Reason     string `json:"reason"`
	ManagerPIN string `json:"manager_pin"`
}

// CancelResult books the full sale value. PriorReturns is what returns of the
// same sale already refunded, so the ledger holds that amount twice.
type CancelResult struct {
	Transaction  Transaction     `json:"transaction"`
	Movements    []StockMovement `json:"movements"`
	PriorReturns decimal.Decimal `json:"prior_returns"`
}

type PurchaseItem struct {
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  int             `json:"quantity" validate:"min=1"`
	CostPrice decimal.Decimal `json:"cost_price"`
}

type PurchaseRequest struct {
	Items       []PurchaseItem `json:"items" validate:"required,min=1,dive"`
	Supplier    string         `json:"supplier" validate:"required"`
	Description string         `json:"description"`
	DueDate     *time.Time     `json:"due_date"`
	Paid        bool           `json:"paid"`
}

type PurchaseResult struct {
	Transaction Transaction     `json:"transaction"`
	Movements   []StockMovement `json:"movements"`
}

type ManualTransactionRequest struct {
	Type        TransactionType `json:"type" validate:"required,oneof=INCOME EXPENSE"`
	Category    string          `json:"category" validate:"required"`
	Value       decimal.Decimal `json:"value"`
	Date        *time.Time      `json:"date"`
	DueDate     *time.Time      `json:"due_date"`
	Description string          `json:"description"`
	Status      string          `json:"status" validate:"omitempty,oneof=PAID PENDING"`
	ClientID    string          `json:"client_id"`
}

type ProductRequest struct {
	Name      string          `json:"name" validate:"required"`
	SKU       string          `json:"sku" validate:"required"`
	Barcode   string          `json:"barcode"`
	Category  string          `json:"category" validate:"required"`
	CostPrice decimal.Decimal `json:"cost_price"`
	SalePrice decimal.Decimal `json:"sale_price"`
	Stock     int             `json:"stock"`
	IsService bool            `json:"is_service"`
	Image     string          `json:"image"`
	Unit      string          `json:"unit"`
	Location  string          `json:"location"`
}

type CustomerRequest struct {
	Name     string `json:"name" validate:"required"`
	Document string `json:"document"`
	Phone    string `json:"phone"`
	Email    string `json:"email" validate:"omitempty,email"`
	Address  string `json:"address"`
}

type EstablishmentRequest struct {
	Name     string `json:"name" validate:"required"`
	Document string `json:"document"`
	Address  string `json:"address"`
	Phone    string `json:"phone"`
	Active   *bool  `json:"active"`
}

type UserCreateRequest struct {
	Username        string `json:"username" validate:"required,min=4"`
	Password        string `json:"password" validate:"required,min=6"`
	Name            string `json:"name" validate:"required"`
	Role            string `json:"role" validate:"required,oneof=admin manager cashier"`
	EstablishmentID string `json:"establishment_id"`
}

type ServiceOrderCreateRequest struct {
	CustomerID     string     `json:"customer_id"`
	Description    string     `json:"description"`
	Items          []CartItem `json:"items" validate:"dive"`
	TechnicianName string     `json:"technician_name"`
}

type ServiceOrderStatusRequest struct {
	Status ServiceOrderStatus `json:"status" validate:"required"`
}
