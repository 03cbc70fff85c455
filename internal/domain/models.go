package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// UnlimitedStock marks services; their stock is never decremented or restored.
const UnlimitedStock = -1

type TransactionType string

const (
	TxIncome  TransactionType = "INCOME"
	TxExpense TransactionType = "EXPENSE"
)

const (
	CategorySale         = "Venda"
	CategoryPurchase     = "Compra de Estoque"
	CategoryReturn       = "Devolução"
	CategoryCancellation = "Cancelamento"
)

const (
	TxStatusApproved = "APPROVED"
	TxStatusPaid     = "PAID"
	TxStatusPending  = "PENDING"
)

type PaymentMethod string

const (
	PaymentCash       PaymentMethod = "CASH"
	PaymentPix        PaymentMethod = "PIX"
	PaymentCreditCard PaymentMethod = "CREDIT_CARD"
	PaymentDebitCard  PaymentMethod = "DEBIT_CARD"
	PaymentOther      PaymentMethod = "OTHER"
)

func (m PaymentMethod) IsCard() bool {
	return m == PaymentCreditCard || m == PaymentDebitCard
}

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentPix, PaymentCreditCard, PaymentDebitCard, PaymentOther:
		return true
	}
	return false
}

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleCashier = "cashier"
)

type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	Barcode   string          `json:"barcode,omitempty"`
	Category  string          `json:"category"`
	CostPrice decimal.Decimal `json:"cost_price"`
	SalePrice decimal.Decimal `json:"sale_price"`
	Stock     int             `json:"stock"`
	IsService bool            `json:"is_service"`
	Image     string          `json:"image,omitempty"`
	Unit      string          `json:"unit"`
	Location  string          `json:"location,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CartItem is the product snapshot taken when the item was added to the cart.
type CartItem struct {
	ProductID string          `json:"product_id" validate:"required"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku,omitempty"`
	Quantity  int             `json:"quantity" validate:"min=1"`
	SalePrice decimal.Decimal `json:"sale_price"`
	CostPrice decimal.Decimal `json:"cost_price"`
	IsService bool            `json:"is_service"`
	Unit      string          `json:"unit,omitempty"`
}

func (c CartItem) LineTotal() decimal.Decimal {
	return c.SalePrice.Mul(decimal.NewFromInt(int64(c.Quantity)))
}

func (c CartItem) LineCost() decimal.Decimal {
	return c.CostPrice.Mul(decimal.NewFromInt(int64(c.Quantity)))
}

type Transaction struct {
	ID             string          `json:"id"`
	Date           time.Time       `json:"date"`
	DueDate        *time.Time      `json:"due_date,omitempty"`
	Type           TransactionType `json:"type"`
	Category       string          `json:"category"`
	Status         string          `json:"status"`
	Value          decimal.Decimal `json:"value"`
	Description    string          `json:"description,omitempty"`
	Store          string          `json:"store"`
	Client         string          `json:"client,omitempty"`
	ClientID       string          `json:"client_id,omitempty"`
	VendorID       string          `json:"vendor_id,omitempty"`
	ReferenceID    string          `json:"reference_id,omitempty"`
	Items          []CartItem      `json:"items,omitempty"`
	Shipping       decimal.Decimal `json:"shipping"`
	Method         PaymentMethod   `json:"method,omitempty"`
	Installments   int             `json:"installments,omitempty"`
	AuthNumber     string          `json:"auth_number,omitempty"`
	TransactionSKU string          `json:"transaction_sku,omitempty"`
	CreatedBy      string          `json:"created_by,omitempty"`
}

func (t Transaction) IsSale() bool {
	return t.Type == TxIncome && t.Category == CategorySale
}

func (t Transaction) IsReturn() bool {
	return t.Type == TxExpense && t.Category == CategoryReturn
}

func (t Transaction) IsCancellation() bool {
	return t.Type == TxExpense && t.Category == CategoryCancellation
}

// Line returns the first sold line for productID.
func (t Transaction) Line(productID string) (CartItem, bool) {
	for _, item := range t.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return CartItem{}, false
}

type ServiceOrderStatus string

const (
	OrderOpen       ServiceOrderStatus = "OPEN"
	OrderInProgress ServiceOrderStatus = "IN_PROGRESS"
	OrderFinished   ServiceOrderStatus = "FINISHED"
	OrderCancelled  ServiceOrderStatus = "CANCELLED"
)

var ServiceOrderStatuses = []ServiceOrderStatus{OrderOpen, OrderInProgress, OrderFinished, OrderCancelled}

func (s ServiceOrderStatus) Valid() bool {
	for _, known := range ServiceOrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

type ServiceOrder struct {
	ID             string             `json:"id"`
	Date           time.Time          `json:"date"`
	CustomerID     string             `json:"customer_id"`
	Description    string             `json:"description"`
	Status         ServiceOrderStatus `json:"status"`
	Items          []CartItem         `json:"items"`
	TotalValue     decimal.Decimal    `json:"total_value"`
	TechnicianName string             `json:"technician_name,omitempty"`
	Store          string             `json:"store"`
	CreatedBy      string             `json:"created_by,omitempty"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

type Establishment struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Document string `json:"document,omitempty"`
	Address  string `json:"address,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Active   bool   `json:"active"`
}

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Document  string    `json:"document,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type UserAccount struct {
	Username        string    `json:"username"`
	Password        string    `json:"-"`
	Name            string    `json:"name"`
	Role            string    `json:"role"`
	EstablishmentID string    `json:"establishment_id,omitempty"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
}

type Actor struct {
	Username        string `json:"username"`
	Role            string `json:"role"`
	EstablishmentID string `json:"establishment_id,omitempty"`
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

type Settings struct {
	ReturnWindowDays   int  `json:"return_window_days" validate:"min=0,max=365"`
	AllowNegativeStock bool `json:"allow_negative_stock"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	Store         string    `json:"store"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

// StockMovement records one stock change applied by a commit.
type StockMovement struct {
	ProductID  string `json:"product_id"`
	Quantity   int    `json:"quantity"`
	StockAfter int    `json:"stock_after"`
}
