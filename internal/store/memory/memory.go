package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"lojapdv/backend/internal/domain"
	"lojapdv/backend/internal/store"
	"lojapdv/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	customers       map[string]domain.Customer
	establishments  map[string]domain.Establishment
	transactions    map[string]domain.Transaction
	reversalsBySale map[string][]string
	serviceOrders   map[string]domain.ServiceOrder
	settings        *domain.Settings
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		customers:       make(map[string]domain.Customer),
		establishments:  make(map[string]domain.Establishment),
		transactions:    make(map[string]domain.Transaction),
		reversalsBySale: make(map[string][]string),
		serviceOrders:   make(map[string]domain.ServiceOrder),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the dev/demo accounts. Passwords come from
// SEED_ADMIN_PASSWORD, SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD and
// fall back to dev defaults with a warning.
func seedUsers(establishmentID string) map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		logrus.WithField("module", "memory-store").Warn("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		name     string
		role     string
		store    string
	}{
		{"admin", adminPwd, "Administrador", domain.RoleAdmin, ""},
		{"gerente", managerPwd, "Gerente Matriz", domain.RoleManager, establishmentID},
		{"caixa", cashierPwd, "Caixa Matriz", domain.RoleCashier, establishmentID},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logrus.WithError(err).WithField("username", u.username).Fatal("failed to hash seed password")
		}
		users[u.username] = domain.UserAccount{
			Username:        u.username,
			Password:        string(hash),
			Name:            u.name,
			Role:            u.role,
			EstablishmentID: u.store,
			Active:          true,
			CreatedAt:       now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with one establishment, a small catalog, a
// walk-in customer and the dev accounts.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	matriz := domain.Establishment{ID: "loja-matriz", Name: "Matriz", Active: true}
	s.establishments[matriz.ID] = matriz

	money := decimal.RequireFromString
	for _, p := range []domain.Product{
		{ID: "prod-cabo-usbc", Name: "Cabo USB-C 1m", SKU: "CAB-USBC-1M", Barcode: "7890000000011", Category: "Acessórios", CostPrice: money("8.50"), SalePrice: money("24.90"), Stock: 40, Unit: "UN", Location: "A1"},
		{ID: "prod-carregador", Name: "Carregador Turbo 20W", SKU: "CAR-20W", Barcode: "7890000000028", Category: "Acessórios", CostPrice: money("32.00"), SalePrice: money("79.90"), Stock: 25, Unit: "UN", Location: "A2"},
		{ID: "prod-pelicula", Name: "Película de Vidro", SKU: "PEL-VID", Category: "Proteção", CostPrice: money("3.20"), SalePrice: money("19.90"), Stock: 120, Unit: "UN", Location: "B1"},
		{ID: "prod-capinha", Name: "Capinha Silicone", SKU: "CAP-SIL", Category: "Proteção", CostPrice: money("6.00"), SalePrice: money("29.90"), Stock: 60, Unit: "UN", Location: "B2"},
		{ID: "prod-fone", Name: "Fone Bluetooth", SKU: "FON-BT", Barcode: "7890000000035", Category: "Áudio", CostPrice: money("45.00"), SalePrice: money("119.90"), Stock: 12, Unit: "UN", Location: "C1"},
		{ID: "serv-troca-tela", Name: "Troca de Tela", SKU: "SRV-TELA", Category: "Serviços", SalePrice: money("180.00"), Stock: domain.UnlimitedStock, IsService: true, Unit: "SV"},
		{ID: "serv-diagnostico", Name: "Diagnóstico Técnico", SKU: "SRV-DIAG", Category: "Serviços", SalePrice: money("50.00"), Stock: domain.UnlimitedStock, IsService: true, Unit: "SV"},
	} {
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
	}

	s.customers["cli-balcao"] = domain.Customer{ID: "cli-balcao", Name: "Consumidor Final", CreatedAt: now}
	s.usersByUsername = seedUsers(matriz.ID)
	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) UpsertProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.products {
		if id != product.ID && strings.EqualFold(existing.SKU, product.SKU) {
			return nil, store.ErrDuplicate
		}
	}
	now := time.Now().UTC()
	if existing, ok := s.products[product.ID]; ok {
		product.CreatedAt = existing.CreatedAt
	} else if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return cmpString(a.Name, b.Name)
	})
	return customers, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &customer, nil
}

func (s *Store) UpsertCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.customers[customer.ID]; ok {
		customer.CreatedAt = existing.CreatedAt
	} else if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customers[customer.ID] = customer
	return &customer, nil
}

func (s *Store) ListEstablishments(_ context.Context) ([]domain.Establishment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Establishment, 0, len(s.establishments))
	for _, e := range s.establishments {
		result = append(result, e)
	}
	slices.SortFunc(result, func(a, b domain.Establishment) int {
		return cmpString(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) GetEstablishment(_ context.Context, id string) (*domain.Establishment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	establishment, ok := s.establishments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &establishment, nil
}

func (s *Store) UpsertEstablishment(_ context.Context, establishment domain.Establishment) (*domain.Establishment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.establishments {
		if id != establishment.ID && strings.EqualFold(existing.Name, establishment.Name) {
			return nil, store.ErrDuplicate
		}
	}
	s.establishments[establishment.ID] = establishment
	return &establishment, nil
}

func (s *Store) ListTransactions(_ context.Context, filter store.TransactionFilter) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		if !filter.Matches(tx) {
			continue
		}
		result = append(result, cloneTransaction(tx))
	}
	slices.SortFunc(result, func(a, b domain.Transaction) int {
		if a.Date.Equal(b.Date) {
			return cmpString(b.ID, a.ID)
		}
		if a.Date.After(b.Date) {
			return -1
		}
		return 1
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneTransaction(tx)
	return &dup, nil
}

func (s *Store) InsertTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.insertLocked(tx); err != nil {
		return nil, err
	}
	dup := cloneTransaction(tx)
	return &dup, nil
}

func (s *Store) insertLocked(tx domain.Transaction) error {
	if tx.ID == "" {
		return store.ErrMissingID
	}
	if _, exists := s.transactions[tx.ID]; exists {
		return store.ErrDuplicate
	}
	s.transactions[tx.ID] = cloneTransaction(tx)
	if tx.ReferenceID != "" {
		s.reversalsBySale[tx.ReferenceID] = append(s.reversalsBySale[tx.ReferenceID], tx.ID)
	}
	return nil
}

// CommitSale checks every line before touching stock, so a rejected sale
// leaves the catalog exactly as it was.
func (s *Store) CommitSale(_ context.Context, commit store.SaleCommit) (*store.SaleCommitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := commit.Transaction
	if !tx.IsSale() || len(tx.Items) == 0 {
		return nil, store.ErrNotASale
	}
	if _, exists := s.transactions[tx.ID]; exists {
		return nil, store.ErrDuplicate
	}

	requested := make(map[string]int, len(tx.Items))
	order := make([]string, 0, len(tx.Items))
	missing := make([]string, 0)
	for _, item := range tx.Items {
		product, exists := s.products[item.ProductID]
		if !exists {
			if !slices.Contains(missing, item.ProductID) {
				missing = append(missing, item.ProductID)
			}
			continue
		}
		if product.IsService {
			continue
		}
		if _, seen := requested[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		requested[item.ProductID] += item.Quantity
	}

	if !commit.AllowNegativeStock {
		for _, productID := range order {
			product := s.products[productID]
			if product.Stock < requested[productID] {
				return nil, &store.StockError{ProductID: productID, Requested: requested[productID], Available: product.Stock}
			}
		}
	}

	now := time.Now().UTC()
	movements := make([]domain.StockMovement, 0, len(order))
	for _, productID := range order {
		product := s.products[productID]
		product.Stock -= requested[productID]
		product.UpdatedAt = now
		s.products[productID] = product
		movements = append(movements, domain.StockMovement{ProductID: productID, Quantity: -requested[productID], StockAfter: product.Stock})
	}

	if err := s.insertLocked(tx); err != nil {
		return nil, err
	}

	return &store.SaleCommitResult{
		Transaction:     cloneTransaction(tx),
		Movements:       movements,
		MissingProducts: missing,
	}, nil
}

func (s *Store) CommitReturn(_ context.Context, commit store.ReturnCommit) (*store.CommitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, reversals, err := s.saleWithReversalsLocked(commit.SaleID)
	if err != nil {
		return nil, err
	}
	if hasCancellation(reversals) {
		return nil, store.ErrAlreadyReversed
	}
	sold := domain.SoldQuantities(sale)[commit.ProductID]
	if sold == 0 {
		return nil, store.ErrNotFound
	}
	lines, ok := domain.ReturnLines(sale, reversals, commit.ProductID, commit.Quantity)
	if !ok {
		return nil, store.ErrAlreadyReversed
	}
	tx := commit.Transaction
	tx.Items = lines
	tx.Value = domain.CartTotal(lines, decimal.Zero)
	if _, exists := s.transactions[tx.ID]; exists {
		return nil, store.ErrDuplicate
	}

	movements := s.restockLocked(map[string]int{commit.ProductID: commit.Quantity})
	if err := s.insertLocked(tx); err != nil {
		return nil, err
	}
	return &store.CommitResult{Transaction: cloneTransaction(tx), Movements: movements}, nil
}

func (s *Store) CommitCancellation(_ context.Context, commit store.CancelCommit) (*store.CommitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, reversals, err := s.saleWithReversalsLocked(commit.SaleID)
	if err != nil {
		return nil, err
	}
	if hasCancellation(reversals) {
		return nil, store.ErrAlreadyReversed
	}
	if _, exists := s.transactions[commit.Transaction.ID]; exists {
		return nil, store.ErrDuplicate
	}

	tx := commit.Transaction
	tx.ReferenceID = sale.ID
	tx.Value = domain.CancellationValue(sale)
	tx.Items = domain.OutstandingItems(sale, reversals)
	tx.Client = sale.Client
	tx.ClientID = sale.ClientID
	tx.VendorID = sale.VendorID
	if tx.Store == "" {
		tx.Store = sale.Store
	}

	movements := s.restockLocked(domain.RemainingStock(sale, reversals))
	if err := s.insertLocked(tx); err != nil {
		return nil, err
	}
	return &store.CommitResult{
		Transaction:  cloneTransaction(tx),
		Movements:    movements,
		PriorRefunds: domain.ReturnedValue(reversals),
	}, nil
}

func (s *Store) CommitPurchase(_ context.Context, commit store.PurchaseCommit) (*store.CommitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, line := range commit.Lines {
		product, exists := s.products[line.ProductID]
		if !exists {
			return nil, store.ErrNotFound
		}
		if product.IsService {
			return nil, store.ErrServiceItem
		}
	}
	if _, exists := s.transactions[commit.Transaction.ID]; exists {
		return nil, store.ErrDuplicate
	}

	now := time.Now().UTC()
	movements := make([]domain.StockMovement, 0, len(commit.Lines))
	for _, line := range commit.Lines {
		product := s.products[line.ProductID]
		product.Stock += line.Quantity
		if line.CostPrice.IsPositive() {
			product.CostPrice = line.CostPrice
		}
		product.UpdatedAt = now
		s.products[line.ProductID] = product
		movements = append(movements, domain.StockMovement{ProductID: line.ProductID, Quantity: line.Quantity, StockAfter: product.Stock})
	}

	if err := s.insertLocked(commit.Transaction); err != nil {
		return nil, err
	}
	return &store.CommitResult{Transaction: cloneTransaction(commit.Transaction), Movements: movements}, nil
}

func (s *Store) saleWithReversalsLocked(saleID string) (domain.Transaction, []domain.Transaction, error) {
	sale, ok := s.transactions[saleID]
	if !ok {
		return domain.Transaction{}, nil, store.ErrNotFound
	}
	if !sale.IsSale() {
		return domain.Transaction{}, nil, store.ErrNotASale
	}
	ids := s.reversalsBySale[saleID]
	reversals := make([]domain.Transaction, 0, len(ids))
	for _, id := range ids {
		reversals = append(reversals, s.transactions[id])
	}
	return sale, reversals, nil
}

// restockLocked adds quantities back to stock-tracked products that still
// exist in the catalog, in product id order.
func (s *Store) restockLocked(quantities map[string]int) []domain.StockMovement {
	ids := make([]string, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	now := time.Now().UTC()
	movements := make([]domain.StockMovement, 0, len(ids))
	for _, id := range ids {
		product, exists := s.products[id]
		if !exists || product.IsService || quantities[id] <= 0 {
			continue
		}
		product.Stock += quantities[id]
		product.UpdatedAt = now
		s.products[id] = product
		movements = append(movements, domain.StockMovement{ProductID: id, Quantity: quantities[id], StockAfter: product.Stock})
	}
	return movements
}

func hasCancellation(reversals []domain.Transaction) bool {
	for _, tx := range reversals {
		if tx.IsCancellation() {
			return true
		}
	}
	return false
}

func (s *Store) ListServiceOrders(_ context.Context, filter store.ServiceOrderFilter) ([]domain.ServiceOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ServiceOrder, 0, len(s.serviceOrders))
	for _, order := range s.serviceOrders {
		if filter.Store != "" && order.Store != filter.Store {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		result = append(result, cloneServiceOrder(order))
	}
	slices.SortFunc(result, func(a, b domain.ServiceOrder) int {
		if a.Date.Equal(b.Date) {
			return cmpString(b.ID, a.ID)
		}
		if a.Date.After(b.Date) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) GetServiceOrder(_ context.Context, id string) (*domain.ServiceOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.serviceOrders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneServiceOrder(order)
	return &dup, nil
}

func (s *Store) UpsertServiceOrder(_ context.Context, order domain.ServiceOrder) (*domain.ServiceOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order.UpdatedAt = time.Now().UTC()
	s.serviceOrders[order.ID] = cloneServiceOrder(order)
	dup := cloneServiceOrder(order)
	return &dup, nil
}

func (s *Store) GetSettings(_ context.Context) (*domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.settings == nil {
		return nil, store.ErrNotFound
	}
	dup := *s.settings
	return &dup, nil
}

func (s *Store) SaveSettings(_ context.Context, settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = &settings
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.Key()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeName string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if storeName != "" && entry.Store != storeName {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" {
		return store.ErrMissingID
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrDuplicate
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) GetUser(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneTransaction(src domain.Transaction) domain.Transaction {
	dup := src
	if src.Items != nil {
		dup.Items = make([]domain.CartItem, len(src.Items))
		copy(dup.Items, src.Items)
	}
	if src.DueDate != nil {
		due := *src.DueDate
		dup.DueDate = &due
	}
	return dup
}

func cloneServiceOrder(src domain.ServiceOrder) domain.ServiceOrder {
	dup := src
	dup.Items = make([]domain.CartItem, len(src.Items))
	copy(dup.Items, src.Items)
	return dup
}
