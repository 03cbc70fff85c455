package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"lojapdv/backend/internal/domain"
	"lojapdv/backend/internal/store"
	"lojapdv/backend/internal/xid"
)

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"

	oneCancellationIndex = "transactions_one_cancellation"
)

type Store struct {
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `id, name, sku, COALESCE(barcode, ''), category, cost_price, sale_price, stock, is_service, image, unit, location, created_at, updated_at`

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.Barcode, &p.Category, &p.CostPrice, &p.SalePrice,
		&p.Stock, &p.IsService, &p.Image, &p.Unit, &p.Location, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY category, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// UpsertProduct writes the catalog fields. Stock is only set on insert; after
// that it changes through sale, purchase and reversal commits.
func (s *Store) UpsertProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO products (id, name, sku, barcode, category, cost_price, sale_price, stock, is_service, image, unit, location, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now(),now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			sku = EXCLUDED.sku,
			barcode = EXCLUDED.barcode,
			category = EXCLUDED.category,
			cost_price = EXCLUDED.cost_price,
			sale_price = EXCLUDED.sale_price,
			is_service = EXCLUDED.is_service,
			stock = CASE WHEN EXCLUDED.is_service THEN -1 ELSE products.stock END,
			image = EXCLUDED.image,
			unit = EXCLUDED.unit,
			location = EXCLUDED.location,
			updated_at = now()
		RETURNING `+productColumns,
		product.ID, product.Name, product.SKU, nullIfEmpty(product.Barcode), product.Category, product.CostPrice,
		product.SalePrice, product.Stock, product.IsService, product.Image, product.Unit, product.Location)
	saved, err := scanProduct(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	return &saved, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, document, phone, email, address, created_at
		FROM customers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Document, &c.Phone, &c.Email, &c.Address, &c.CreatedAt); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, document, phone, email, address, created_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Document, &c.Phone, &c.Email, &c.Address, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) UpsertCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	var saved domain.Customer
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO customers (id, name, document, phone, email, address, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			document = EXCLUDED.document,
			phone = EXCLUDED.phone,
			email = EXCLUDED.email,
			address = EXCLUDED.address
		RETURNING id, name, document, phone, email, address, created_at
	`, customer.ID, customer.Name, customer.Document, customer.Phone, customer.Email, customer.Address).
		Scan(&saved.ID, &saved.Name, &saved.Document, &saved.Phone, &saved.Email, &saved.Address, &saved.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (s *Store) ListEstablishments(ctx context.Context) ([]domain.Establishment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, document, address, phone, active
		FROM establishments
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Establishment, 0, 8)
	for rows.Next() {
		var e domain.Establishment
		if err := rows.Scan(&e.ID, &e.Name, &e.Document, &e.Address, &e.Phone, &e.Active); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetEstablishment(ctx context.Context, id string) (*domain.Establishment, error) {
	var e domain.Establishment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, document, address, phone, active
		FROM establishments
		WHERE id = $1
	`, id).Scan(&e.ID, &e.Name, &e.Document, &e.Address, &e.Phone, &e.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (s *Store) UpsertEstablishment(ctx context.Context, establishment domain.Establishment) (*domain.Establishment, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO establishments (id, name, document, address, phone, active)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			document = EXCLUDED.document,
			address = EXCLUDED.address,
			phone = EXCLUDED.phone,
			active = EXCLUDED.active
	`, establishment.ID, establishment.Name, establishment.Document, establishment.Address, establishment.Phone, establishment.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	saved := establishment
	return &saved, nil
}

const transactionColumns = `id, date, due_date, type, category, status, value, description, store, client,
	client_id, vendor_id, reference_id, items, shipping, method, installments, auth_number, transaction_sku, created_by`

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var (
		tx          domain.Transaction
		dueDate     sql.NullTime
		txType      string
		method      string
		clientID    sql.NullString
		vendorID    sql.NullString
		referenceID sql.NullString
		items       []byte
	)
	err := row.Scan(&tx.ID, &tx.Date, &dueDate, &txType, &tx.Category, &tx.Status, &tx.Value, &tx.Description,
		&tx.Store, &tx.Client, &clientID, &vendorID, &referenceID, &items, &tx.Shipping, &method,
		&tx.Installments, &tx.AuthNumber, &tx.TransactionSKU, &tx.CreatedBy)
	if err != nil {
		return domain.Transaction{}, err
	}

	tx.Date = tx.Date.UTC()
	if dueDate.Valid {
		due := dueDate.Time.UTC()
		tx.DueDate = &due
	}
	tx.Type = domain.TransactionType(txType)
	tx.Method = domain.PaymentMethod(method)
	tx.ClientID = clientID.String
	tx.VendorID = vendorID.String
	tx.ReferenceID = referenceID.String
	if len(items) > 0 {
		if err := json.Unmarshal(items, &tx.Items); err != nil {
			return domain.Transaction{}, fmt.Errorf("decode items of %s: %w", tx.ID, err)
		}
	}
	if len(tx.Items) == 0 {
		tx.Items = nil
	}
	return tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, filter store.TransactionFilter) ([]domain.Transaction, error) {
	return listTransactions(ctx, s.db, filter, false)
}

func listTransactions(ctx context.Context, q querier, filter store.TransactionFilter, forUpdate bool) ([]domain.Transaction, error) {
	clauses := make([]string, 0, 6)
	args := make([]any, 0, 7)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.From != nil {
		add("date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("date < $%d", *filter.To)
	}
	if filter.Store != "" {
		add("store = $%d", filter.Store)
	}
	if filter.Type != "" {
		add("type = $%d", string(filter.Type))
	}
	if filter.Category != "" {
		add("category = $%d", filter.Category)
	}
	if filter.ReferenceID != "" {
		add("reference_id = $%d", filter.ReferenceID)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY date DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if forUpdate {
		query += ` FOR UPDATE`
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Transaction, 0, 64)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	tx, err := scanTransaction(s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &tx, nil
}

func (s *Store) InsertTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if err := insertTransaction(ctx, s.db, tx); err != nil {
		return nil, err
	}
	saved := tx
	return &saved, nil
}

func insertTransaction(ctx context.Context, q querier, tx domain.Transaction) error {
	if tx.ID == "" {
		return store.ErrMissingID
	}
	items := tx.Items
	if items == nil {
		items = []domain.CartItem{}
	}
	encoded, err := json.Marshal(items)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO transactions (
			id, date, due_date, type, category, status, value, description, store, client,
			client_id, vendor_id, reference_id, items, shipping, method, installments, auth_number,
			transaction_sku, created_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14::jsonb,$15,$16,$17,$18,$19,$20,now())
	`, tx.ID, tx.Date, nullTime(tx.DueDate), string(tx.Type), tx.Category, tx.Status, tx.Value, tx.Description,
		tx.Store, tx.Client, nullIfEmpty(tx.ClientID), nullIfEmpty(tx.VendorID), nullIfEmpty(tx.ReferenceID),
		string(encoded), tx.Shipping, string(tx.Method), tx.Installments, tx.AuthNumber, tx.TransactionSKU, tx.CreatedBy)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
			if pgErr.ConstraintName == oneCancellationIndex {
				return store.ErrAlreadyReversed
			}
			return store.ErrDuplicate
		}
		return err
	}
	return nil
}

// CommitSale locks every product row of the cart, decrements stock with a
// conditional update and writes the sale in one serializable transaction.
func (s *Store) CommitSale(ctx context.Context, commit store.SaleCommit) (*store.SaleCommitResult, error) {
	tx := commit.Transaction
	if !tx.IsSale() || len(tx.Items) == 0 {
		return nil, store.ErrNotASale
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	ids := uniqueProductIDs(tx.Items)
	rows, err := pgTx.QueryContext(ctx, `
		SELECT id, is_service
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, translate(err)
	}
	services := make(map[string]bool, len(ids))
	for rows.Next() {
		var id string
		var isService bool
		if err := rows.Scan(&id, &isService); err != nil {
			_ = rows.Close()
			return nil, err
		}
		services[id] = isService
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, translate(err)
	}
	_ = rows.Close()

	requested := make(map[string]int, len(ids))
	order := make([]string, 0, len(ids))
	missing := make([]string, 0)
	for _, item := range tx.Items {
		isService, exists := services[item.ProductID]
		if !exists {
			if !contains(missing, item.ProductID) {
				missing = append(missing, item.ProductID)
			}
			continue
		}
		if isService {
			continue
		}
		if _, seen := requested[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		requested[item.ProductID] += item.Quantity
	}

	movements := make([]domain.StockMovement, 0, len(order))
	for _, productID := range order {
		qty := requested[productID]
		query := `
			UPDATE products
			SET stock = stock - $1, updated_at = now()
			WHERE id = $2 AND stock >= $1
			RETURNING stock
		`
		if commit.AllowNegativeStock {
			query = `
				UPDATE products
				SET stock = stock - $1, updated_at = now()
				WHERE id = $2
				RETURNING stock
			`
		}
		var stockAfter int
		if err := pgTx.QueryRowContext(ctx, query, qty, productID).Scan(&stockAfter); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				available := 0
				_ = pgTx.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&available)
				return nil, &store.StockError{ProductID: productID, Requested: qty, Available: available}
			}
			return nil, translate(err)
		}
		movements = append(movements, domain.StockMovement{ProductID: productID, Quantity: -qty, StockAfter: stockAfter})
	}

	if err := insertTransaction(ctx, pgTx, tx); err != nil {
		return nil, translate(err)
	}
	if err := pgTx.Commit(); err != nil {
		return nil, translate(err)
	}

	return &store.SaleCommitResult{Transaction: tx, Movements: movements, MissingProducts: missing}, nil
}

func (s *Store) CommitReturn(ctx context.Context, commit store.ReturnCommit) (*store.CommitResult, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	sale, reversals, err := saleWithReversals(ctx, pgTx, commit.SaleID)
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

	movements, err := restock(ctx, pgTx, map[string]int{commit.ProductID: commit.Quantity})
	if err != nil {
		return nil, translate(err)
	}
	if err := insertTransaction(ctx, pgTx, tx); err != nil {
		return nil, translate(err)
	}
	if err := pgTx.Commit(); err != nil {
		return nil, translate(err)
	}
	return &store.CommitResult{Transaction: tx, Movements: movements}, nil
}

func (s *Store) CommitCancellation(ctx context.Context, commit store.CancelCommit) (*store.CommitResult, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	sale, reversals, err := saleWithReversals(ctx, pgTx, commit.SaleID)
	if err != nil {
		return nil, err
	}
	if hasCancellation(reversals) {
		return nil, store.ErrAlreadyReversed
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

	movements, err := restock(ctx, pgTx, domain.RemainingStock(sale, reversals))
	if err != nil {
		return nil, translate(err)
	}
	if err := insertTransaction(ctx, pgTx, tx); err != nil {
		return nil, translate(err)
	}
	if err := pgTx.Commit(); err != nil {
		return nil, translate(err)
	}
	return &store.CommitResult{
		Transaction:  tx,
		Movements:    movements,
		PriorRefunds: domain.ReturnedValue(reversals),
	}, nil
}

func (s *Store) CommitPurchase(ctx context.Context, commit store.PurchaseCommit) (*store.CommitResult, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	movements := make([]domain.StockMovement, 0, len(commit.Lines))
	for _, line := range commit.Lines {
		var isService bool
		err := pgTx.QueryRowContext(ctx, `SELECT is_service FROM products WHERE id = $1 FOR UPDATE`, line.ProductID).Scan(&isService)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, translate(err)
		}
		if isService {
			return nil, store.ErrServiceItem
		}

		var stockAfter int
		err = pgTx.QueryRowContext(ctx, `
			UPDATE products
			SET stock = stock + $1,
				cost_price = CASE WHEN $3::numeric > 0 THEN $3::numeric ELSE cost_price END,
				updated_at = now()
			WHERE id = $2
			RETURNING stock
		`, line.Quantity, line.ProductID, line.CostPrice).Scan(&stockAfter)
		if err != nil {
			return nil, translate(err)
		}
		movements = append(movements, domain.StockMovement{ProductID: line.ProductID, Quantity: line.Quantity, StockAfter: stockAfter})
	}

	if err := insertTransaction(ctx, pgTx, tx); err != nil {
		return nil, translate(err)
	}
	if err := pgTx.Commit(); err != nil {
		return nil, translate(err)
	}
	return &store.CommitResult{Transaction: tx, Movements: movements}, nil
}

// saleWithReversals locks the sale row so concurrent reversals of the same
// sale queue behind each other.
func saleWithReversals(ctx context.Context, pgTx *sql.Tx, saleID string) (domain.Transaction, []domain.Transaction, error) {
	sale, err := scanTransaction(pgTx.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, saleID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Transaction{}, nil, store.ErrNotFound
		}
		return domain.Transaction{}, nil, translate(err)
	}
	if !sale.IsSale() {
		return domain.Transaction{}, nil, store.ErrNotASale
	}
	reversals, err := listTransactions(ctx, pgTx, store.TransactionFilter{ReferenceID: saleID}, false)
	if err != nil {
		return domain.Transaction{}, nil, translate(err)
	}
	return sale, reversals, nil
}

// restock adds quantities back to stock-tracked products that still exist,
// in product id order.
func restock(ctx context.Context, pgTx *sql.Tx, quantities map[string]int) ([]domain.StockMovement, error) {
	ids := make([]string, 0, len(quantities))
	for id, qty := range quantities {
		if qty > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	movements := make([]domain.StockMovement, 0, len(ids))
	for _, id := range ids {
		var stockAfter int
		err := pgTx.QueryRowContext(ctx, `
			UPDATE products
			SET stock = stock + $1, updated_at = now()
			WHERE id = $2 AND is_service = false
			RETURNING stock
		`, quantities[id], id).Scan(&stockAfter)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, err
		}
		movements = append(movements, domain.StockMovement{ProductID: id, Quantity: quantities[id], StockAfter: stockAfter})
	}
	return movements, nil
}

func hasCancellation(reversals []domain.Transaction) bool {
	for _, tx := range reversals {
		if tx.IsCancellation() {
			return true
		}
	}
	return false
}

const serviceOrderColumns = `id, date, customer_id, description, status, items, total_value, technician_name, store, created_by, updated_at`

func scanServiceOrder(row rowScanner) (domain.ServiceOrder, error) {
	var (
		order  domain.ServiceOrder
		status string
		items  []byte
	)
	err := row.Scan(&order.ID, &order.Date, &order.CustomerID, &order.Description, &status, &items,
		&order.TotalValue, &order.TechnicianName, &order.Store, &order.CreatedBy, &order.UpdatedAt)
	if err != nil {
		return domain.ServiceOrder{}, err
	}
	order.Status = domain.ServiceOrderStatus(status)
	order.Items = []domain.CartItem{}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &order.Items); err != nil {
			return domain.ServiceOrder{}, fmt.Errorf("decode items of %s: %w", order.ID, err)
		}
	}
	return order, nil
}

func (s *Store) ListServiceOrders(ctx context.Context, filter store.ServiceOrderFilter) ([]domain.ServiceOrder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+serviceOrderColumns+`
		FROM service_orders
		WHERE ($1 = '' OR store = $1) AND ($2 = '' OR status = $2)
		ORDER BY date DESC, id DESC
	`, filter.Store, string(filter.Status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.ServiceOrder, 0, 32)
	for rows.Next() {
		order, err := scanServiceOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetServiceOrder(ctx context.Context, id string) (*domain.ServiceOrder, error) {
	order, err := scanServiceOrder(s.db.QueryRowContext(ctx, `SELECT `+serviceOrderColumns+` FROM service_orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (s *Store) UpsertServiceOrder(ctx context.Context, order domain.ServiceOrder) (*domain.ServiceOrder, error) {
	items := order.Items
	if items == nil {
		items = []domain.CartItem{}
	}
	encoded, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}

	saved, err := scanServiceOrder(s.db.QueryRowContext(ctx, `
		INSERT INTO service_orders (id, date, customer_id, description, status, items, total_value, technician_name, store, created_by, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6::jsonb,$7,$8,$9,$10,now())
		ON CONFLICT (id) DO UPDATE SET
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			items = EXCLUDED.items,
			total_value = EXCLUDED.total_value,
			technician_name = EXCLUDED.technician_name,
			updated_at = now()
		RETURNING `+serviceOrderColumns,
		order.ID, order.Date, order.CustomerID, order.Description, string(order.Status), string(encoded),
		order.TotalValue, order.TechnicianName, order.Store, order.CreatedBy))
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (s *Store) GetSettings(ctx context.Context) (*domain.Settings, error) {
	var settings domain.Settings
	err := s.db.QueryRowContext(ctx, `
		SELECT return_window_days, allow_negative_stock
		FROM app_settings
		WHERE id = 1
	`).Scan(&settings.ReturnWindowDays, &settings.AllowNegativeStock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &settings, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings domain.Settings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_settings (id, return_window_days, allow_negative_stock, updated_at)
		VALUES (1, $1, $2, now())
		ON CONFLICT (id) DO UPDATE SET
			return_window_days = EXCLUDED.return_window_days,
			allow_negative_stock = EXCLUDED.allow_negative_stock,
			updated_at = now()
	`, settings.ReturnWindowDays, settings.AllowNegativeStock)
	return err
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.Key()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, store, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.Store, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, storeName string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1 = '' OR store = $1) AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, storeName, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.Store, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" {
		return store.ErrMissingID
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, name, role, establishment_id, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now())
	`, user.Username, user.Password, user.Name, user.Role, nullIfEmpty(user.EstablishmentID), user.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return err
	}
	return nil
}

func scanUser(row rowScanner) (domain.UserAccount, error) {
	var user domain.UserAccount
	var establishmentID sql.NullString
	err := row.Scan(&user.Username, &user.Password, &user.Name, &user.Role, &establishmentID, &user.Active, &user.CreatedAt)
	user.EstablishmentID = establishmentID.String
	return user, err
}

func (s *Store) GetUser(ctx context.Context, username string) (*domain.UserAccount, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `
		SELECT username, password, name, role, establishment_id, active, created_at
		FROM app_users
		WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username))))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, name, role, establishment_id, active, created_at
		FROM app_users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username)), password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func uniqueProductIDs(items []domain.CartItem) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	sort.Strings(ids)
	return ids
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

// translate maps lost serialization races onto store.ErrConcurrentUpdate.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected) {
		return fmt.Errorf("%w: %s", store.ErrConcurrentUpdate, pgErr.Message)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeUniqueViolation
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

var _ store.Repository = (*Store)(nil)
