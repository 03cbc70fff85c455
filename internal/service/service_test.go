package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"lojapdv/backend/internal/apperr"
	"lojapdv/backend/internal/domain"
	"lojapdv/backend/internal/latch"
	"lojapdv/backend/internal/logging"
	"lojapdv/backend/internal/store"
	"lojapdv/backend/internal/store/memory"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	svc   *Service
	repo  *memory.Store
	clock *testClock
	latch *latch.Local
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	repo := memory.New()
	ctx := context.Background()

	for _, p := range []domain.Product{
		{ID: "p1", Name: "Cabo HDMI", SKU: "CAB-HDMI", Category: "Cabos", CostPrice: decimal.RequireFromString("20"), SalePrice: decimal.RequireFromString("50"), Stock: 10, Unit: "UN"},
		{ID: "p2", Name: "Mouse", SKU: "MOU-01", Category: "Perifericos", CostPrice: decimal.RequireFromString("15"), SalePrice: decimal.RequireFromString("40"), Stock: 2, Unit: "UN"},
		{ID: "s1", Name: "Formatacao", SKU: "SRV-FMT", Category: "Servicos", SalePrice: decimal.RequireFromString("120"), Stock: domain.UnlimitedStock, IsService: true, Unit: "SV"},
	} {
		if _, err := repo.UpsertProduct(ctx, p); err != nil {
			t.Fatalf("seed product %s: %v", p.ID, err)
		}
	}
	if _, err := repo.UpsertCustomer(ctx, domain.Customer{ID: "c1", Name: "Maria Souza"}); err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	if _, err := repo.UpsertEstablishment(ctx, domain.Establishment{ID: "filial", Name: "Filial Centro", Active: true}); err != nil {
		t.Fatalf("seed establishment: %v", err)
	}

	clock := &testClock{now: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)}
	l := latch.NewLocal()
	svc := New(repo, Options{
		DefaultStoreName: "Matriz",
		ReturnWindowDays: 7,
		Now:              clock.Now,
		Latch:            l,
		Logger:           logging.Discard(),
	})
	return fixture{svc: svc, repo: repo, clock: clock, latch: l}
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func stockOf(t *testing.T, repo store.Repository, id string) int {
	t.Helper()
	p, err := repo.GetProduct(context.Background(), id)
	if err != nil {
		t.Fatalf("get product %s: %v", id, err)
	}
	return p.Stock
}

func sellP1(t *testing.T, f fixture, qty int) domain.Transaction {
	t.Helper()
	res, err := f.svc.CommitSale(adminCtx(), domain.SaleRequest{
		Items:         []domain.CartItem{{ProductID: "p1", Quantity: qty, SalePrice: decimal.RequireFromString("50")}},
		PaymentMethod: domain.PaymentCash,
		CustomerID:    "c1",
	})
	if err != nil {
		t.Fatalf("commit sale: %v", err)
	}
	return res.Transaction
}

func TestSaleReturnCancelScenario(t *testing.T) {
	f := newFixture(t)
	ctx := adminCtx()

	sale := sellP1(t, f, 3)
	if !sale.Value.Equal(decimal.RequireFromString("150")) {
		t.Fatalf("expected sale value 150, got %s", sale.Value)
	}
	if sale.Client != "Maria Souza" || sale.Store != "Matriz" {
		t.Fatalf("unexpected sale snapshot: client=%q store=%q", sale.Client, sale.Store)
	}
	if got := stockOf(t, f.repo, "p1"); got != 7 {
		t.Fatalf("expected stock 7 after sale, got %d", got)
	}

	ret, err := f.svc.ReturnItem(ctx, domain.ReturnRequest{SaleID: sale.ID, ProductID: "p1", Quantity: 1})
	if err != nil {
		t.Fatalf("return item: %v", err)
	}
	if !ret.Transaction.Value.Equal(decimal.RequireFromString("50")) || ret.Transaction.ReferenceID != sale.ID {
		t.Fatalf("unexpected return entry: value=%s ref=%s", ret.Transaction.Value, ret.Transaction.ReferenceID)
	}
	if got := stockOf(t, f.repo, "p1"); got != 8 {
		t.Fatalf("expected stock 8 after return, got %d", got)
	}

	cancel, err := f.svc.CancelSale(ctx, domain.CancelRequest{SaleID: sale.ID})
	if err != nil {
		t.Fatalf("cancel sale: %v", err)
	}
	if !cancel.Transaction.Value.Equal(decimal.RequireFromString("150")) {
		t.Fatalf("expected cancellation value 150, got %s", cancel.Transaction.Value)
	}
	if !cancel.PriorReturns.Equal(decimal.RequireFromString("50")) {
		t.Fatalf("expected prior returns 50, got %s", cancel.PriorReturns)
	}
	if cancel.Transaction.Category != domain.CategoryCancellation || cancel.Transaction.Type != domain.TxExpense {
		t.Fatalf("unexpected cancellation entry: %+v", cancel.Transaction)
	}
	if got := stockOf(t, f.repo, "p1"); got != 10 {
		t.Fatalf("expected stock back to 10, got %d", got)
	}

	_, err = f.svc.CancelSale(ctx, domain.CancelRequest{SaleID: sale.ID})
	if !apperr.Is(err, apperr.Conflict) {
		t.Fatalf("expected conflict on second cancel, got %v", err)
	}
	if got := stockOf(t, f.repo, "p1"); got != 10 {
		t.Fatalf("second cancel must not restock, got %d", got)
	}

	_, err = f.svc.ReturnItem(ctx, domain.ReturnRequest{SaleID: sale.ID, ProductID: "p1"})
	if !apperr.Is(err, apperr.Conflict) {
		t.Fatalf("expected conflict returning from cancelled sale, got %v", err)
	}
}

func TestReturnWindowBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := adminCtx()

	old := sellP1(t, f, 1)
	f.clock.Advance(time.Hour)
	recent := sellP1(t, f, 1)
	f.clock.Advance(7 * 24 * time.Hour)

	_, err := f.svc.ReturnItem(ctx, domain.ReturnRequest{SaleID: old.ID, ProductID: "p1"})
	if !apperr.Is(err, apperr.RuleViolation) || !errors.Is(err, ErrReturnWindowExceeded) {
		t.Fatalf("expected window violation for 8 day old sale, got %v", err)
	}
	if got := stockOf(t, f.repo, "p1"); got != 8 {
		t.Fatalf("rejected return must not restock, got %d", got)
	}
	refs, err := f.repo.ListTransactions(ctx, store.TransactionFilter{ReferenceID: old.ID})
	if err != nil {
		t.Fatalf("list reversals: %v", err)
	}
	if len(refs) != 0 {
		t.Fatalf("rejected return must not book a ledger entry, got %d", len(refs))
	}

	res, err := f.svc.ReturnItem(ctx, domain.ReturnRequest{SaleID: recent.ID, ProductID: "p1"})
	if err != nil {
		t.Fatalf("return inside window: %v", err)
	}
	if res.DaysElapsed != 7 {
		t.Fatalf("expected 7 days elapsed, got %d", res.DaysElapsed)
	}
}

func TestReturnCannotExceedSoldQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := adminCtx()
	sale := sellP1(t, f, 2)

	if _, err := f.svc.ReturnItem(ctx, domain.ReturnRequest{SaleID: sale.ID, ProductID: "p1", Quantity: 2}); err != nil {
		t.Fatalf("return all units: %v", err)
	}
	_, err := f.svc.ReturnItem(ctx, domain.ReturnRequest{SaleID: sale.ID, ProductID: "p1", Quantity: 1})
	if !apperr.Is(err, apperr.Conflict) {
		t.Fatalf("expected conflict on over-return, got %v", err)
	}
	_, err = f.svc.ReturnItem(ctx, domain.ReturnRequest{SaleID: sale.ID, ProductID: "p2"})
	if !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("expected not found for unsold product, got %v", err)
	}
	if got := stockOf(t, f.repo, "p1"); got != 10 {
		t.Fatalf("expected stock 10, got %d", got)
	}
}

func TestCancelMixedSaleBooksFullValue(t *testing.T) {
	f := newFixture(t)
	ctx := adminCtx()

	res, err := f.svc.CommitSale(ctx, domain.SaleRequest{
		Items: []domain.CartItem{
			{ProductID: "p1", Quantity: 2, SalePrice: decimal.RequireFromString("50")},
			{ProductID: "p2", Quantity: 1, SalePrice: decimal.RequireFromString("40")},
			{ProductID: "s1", Quantity: 1, SalePrice: decimal.RequireFromString("120")},
		},
		PaymentMethod: domain.PaymentPix,
	})
	if err != nil {
		t.Fatalf("commit sale: %v", err)
	}
	if !res.Transaction.Value.Equal(decimal.RequireFromString("260")) {
		t.Fatalf("expected sale value 260, got %s", res.Transaction.Value)
	}

	cancel, err := f.svc.CancelSale(ctx, domain.CancelRequest{SaleID: res.Transaction.ID})
	if err != nil {
		t.Fatalf("cancel sale: %v", err)
	}
	if !cancel.Transaction.Value.Equal(res.Transaction.Value) {
		t.Fatalf("expected cancellation value %s, got %s", res.Transaction.Value, cancel.Transaction.Value)
	}
	if !cancel.PriorReturns.IsZero() {
		t.Fatalf("expected no prior returns, got %s", cancel.PriorReturns)
	}
	if got := stockOf(t, f.repo, "p1"); got != 10 {
		t.Fatalf("expected p1 back to 10, got %d", got)
	}
	if got := stockOf(t, f.repo, "p2"); got != 2 {
		t.Fatalf("expected p2 back to 2, got %d", got)
	}
	if got := stockOf(t, f.repo, "s1"); got != domain.UnlimitedStock {
		t.Fatalf("service stock must not move, got %d", got)
	}
}

func TestReturnIsPricedFromItsLine(t *testing.T) {
	f := newFixture(t)
	ctx := adminCtx()

	res, err := f.svc.CommitSale(ctx, domain.SaleRequest{
		Items: []domain.CartItem{
			{ProductID: "p1", Quantity: 1, SalePrice: decimal.RequireFromString("50")},
			{ProductID: "p1", Quantity: 2, SalePrice: decimal.RequireFromString("40")},
		},
		PaymentMethod: domain.PaymentCash,
	})
	if err != nil {
		t.Fatalf("commit sale: %v", err)
	}
	sale := res.Transaction

	first, err := f.svc.ReturnItem(ctx, domain.ReturnRequest{SaleID: sale.ID, ProductID: "p1", Quantity: 2})
	if err != nil {
		t.Fatalf("first return: %v", err)
	}
	if !first.Transaction.Value.Equal(decimal.RequireFromString("90")) {
		t.Fatalf("expected 50 + 40 refunded, got %s", first.Transaction.Value)
	}
	second, err := f.svc.ReturnItem(ctx, domain.ReturnRequest{SaleID: sale.ID, ProductID: "p1"})
	if err != nil {
		t.Fatalf("second return: %v", err)
	}
	if !second.Transaction.Value.Equal(decimal.RequireFromString("40")) {
		t.Fatalf("expected the last unit at 40, got %s", second.Transaction.Value)
	}
	if _, err := f.svc.ReturnItem(ctx, domain.ReturnRequest{SaleID: sale.ID, ProductID: "p1"}); !apperr.Is(err, apperr.Conflict) {
		t.Fatalf("expected conflict once every unit is back, got %v", err)
	}
	if got := stockOf(t, f.repo, "p1"); got != 10 {
		t.Fatalf("expected stock 10, got %d", got)
	}
}

func TestSaleGetsFreshIDWhenTaken(t *testing.T) {
	f := newFixture(t)
	ctx := adminCtx()

	taken := fmt.Sprintf("SALE-%d", f.clock.Now().UnixMilli())
	if _, err := f.repo.InsertTransaction(ctx, domain.Transaction{
		ID:       taken,
		Date:     f.clock.Now(),
		Type:     domain.TxIncome,
		Category: domain.CategorySale,
		Status:   domain.TxStatusApproved,
		Value:    decimal.RequireFromString("10"),
		Store:    "Matriz",
	}); err != nil {
		t.Fatalf("seed taken id: %v", err)
	}

	sale := sellP1(t, f, 1)
	if sale.ID == taken {
		t.Fatalf("expected a new id, got %s again", sale.ID)
	}
	if got := stockOf(t, f.repo, "p1"); got != 9 {
		t.Fatalf("expected one unit sold, got stock %d", got)
	}
}

func TestStockIsConservedAcrossFlows(t *testing.T) {
	f := newFixture(t)
	ctx := adminCtx()
	initial := stockOf(t, f.repo, "p1")

	a := sellP1(t, f, 2)
	b := sellP1(t, f, 3)
	if _, err := f.svc.ReturnItem(ctx, domain.ReturnRequest{SaleID: a.ID, ProductID: "p1"}); err != nil {
		t.Fatalf("return: %v", err)
	}
	if _, err := f.svc.CancelSale(ctx, domain.CancelRequest{SaleID: b.ID}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// 2 + 3 sold, 1 returned, 3 cancelled.
	if got, want := stockOf(t, f.repo, "p1"), initial-5+1+3; got != want {
		t.Fatalf("expected stock %d, got %d", want, got)
	}
}

func TestEveryCommitLeavesOneLedgerEntry(t *testing.T) {
	f := newFixture(t)
	ctx := adminCtx()

	sale := sellP1(t, f, 2)
	if _, err := f.svc.ReturnItem(ctx, domain.ReturnRequest{SaleID: sale.ID, ProductID: "p1"}); err != nil {
		t.Fatalf("return: %v", err)
	}
	if _, err := f.svc.CancelSale(ctx, domain.CancelRequest{SaleID: sale.ID}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.svc.RecordPurchase(ctx, domain.PurchaseRequest{
		Items:    []domain.PurchaseItem{{ProductID: "p2", Quantity: 5, CostPrice: decimal.RequireFromString("14")}},
		Supplier: "Distribuidora Sul",
		Paid:     true,
	}); err != nil {
		t.Fatalf("purchase: %v", err)
	}

	txs, err := f.svc.ListTransactions(ctx, LedgerQuery{})
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txs) != 4 {
		t.Fatalf("expected 4 ledger entries, got %d", len(txs))
	}
	seen := map[string]int{}
	for _, tx := range txs {
		seen[tx.Category]++
	}
	for _, category := range []string{domain.CategorySale, domain.CategoryReturn, domain.CategoryCancellation, domain.CategoryPurchase} {
		if seen[category] != 1 {
			t.Fatalf("expected one %s entry, got %d", category, seen[category])
		}
	}
}

func TestCommitSaleRejectsEmptyCartWithoutMutation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CommitSale(adminCtx(), domain.SaleRequest{PaymentMethod: domain.PaymentPix})
	if !apperr.Is(err, apperr.Validation) {
		t.Fatalf("expected validation error for empty cart, got %v", err)
	}
	txs, _ := f.repo.ListTransactions(context.Background(), store.TransactionFilter{})
	if len(txs) != 0 {
		t.Fatalf("expected no ledger entries, got %d", len(txs))
	}
}

func TestCommitSaleRejectsInsufficientStock(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CommitSale(adminCtx(), domain.SaleRequest{
		Items: []domain.CartItem{
			{ProductID: "p1", Quantity: 1, SalePrice: decimal.RequireFromString("50")},
			{ProductID: "p2", Quantity: 3, SalePrice: decimal.RequireFromString("40")},
		},
		PaymentMethod: domain.PaymentCash,
	})
	var stockErr *store.StockError
	if !apperr.Is(err, apperr.Conflict) || !errors.As(err, &stockErr) {
		t.Fatalf("expected stock conflict, got %v", err)
	}
	if stockErr.ProductID != "p2" || stockErr.Available != 2 {
		t.Fatalf("unexpected stock error: %+v", stockErr)
	}
	if got := stockOf(t, f.repo, "p1"); got != 10 {
		t.Fatalf("rejected sale must not touch p1, got %d", got)
	}
}

func TestCommitSaleInFlightSessionConflicts(t *testing.T) {
	f := newFixture(t)

	release, err := f.latch.Acquire(context.Background(), "sale:term-1")
	if err != nil {
		t.Fatalf("acquire latch: %v", err)
	}
	defer release()

	_, err = f.svc.CommitSale(adminCtx(), domain.SaleRequest{
		Items:         []domain.CartItem{{ProductID: "p1", Quantity: 1, SalePrice: decimal.RequireFromString("50")}},
		PaymentMethod: domain.PaymentCash,
		SessionID:     "term-1",
	})
	if !apperr.Is(err, apperr.Conflict) || !errors.Is(err, latch.ErrInFlight) {
		t.Fatalf("expected in-flight conflict, got %v", err)
	}
	if got := stockOf(t, f.repo, "p1"); got != 10 {
		t.Fatalf("expected untouched stock, got %d", got)
	}
}

func TestCommitSaleWarnsAboutMissingProduct(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.CommitSale(adminCtx(), domain.SaleRequest{
		Items: []domain.CartItem{
			{ProductID: "p1", Quantity: 1, SalePrice: decimal.RequireFromString("50")},
			{ProductID: "gone", Name: "Produto removido", Quantity: 1, SalePrice: decimal.RequireFromString("10")},
		},
		PaymentMethod: domain.PaymentCash,
	})
	if err != nil {
		t.Fatalf("commit sale: %v", err)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].ProductID != "gone" || res.Warnings[0].Code != domain.WarningProductNotFound {
		t.Fatalf("unexpected warnings: %+v", res.Warnings)
	}
	if !res.Transaction.Value.Equal(decimal.RequireFromString("60")) {
		t.Fatalf("expected value 60, got %s", res.Transaction.Value)
	}
}

func TestCommitSaleServicesKeepUnlimitedStock(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.CommitSale(adminCtx(), domain.SaleRequest{
		Items:         []domain.CartItem{{ProductID: "s1", Quantity: 2, SalePrice: decimal.RequireFromString("120")}},
		PaymentMethod: domain.PaymentCreditCard,
		Card:          &domain.CardDetails{Installments: 3, AuthNumber: "123456"},
	})
	if err != nil {
		t.Fatalf("commit sale: %v", err)
	}
	if res.Transaction.Installments != 3 || res.Transaction.AuthNumber != "123456" {
		t.Fatalf("card details not recorded: %+v", res.Transaction)
	}
	if got := stockOf(t, f.repo, "s1"); got != domain.UnlimitedStock {
		t.Fatalf("service stock changed to %d", got)
	}
	if !res.Transaction.Items[0].IsService {
		t.Fatalf("expected cart snapshot to mark the service line")
	}
}

func TestCommitSaleRejectsTooManyInstallments(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CommitSale(adminCtx(), domain.SaleRequest{
		Items:         []domain.CartItem{{ProductID: "p1", Quantity: 1, SalePrice: decimal.RequireFromString("50")}},
		PaymentMethod: domain.PaymentCreditCard,
		Card:          &domain.CardDetails{Installments: 30},
	})
	if !apperr.Is(err, apperr.Validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCancelByQuery(t *testing.T) {
	f := newFixture(t)
	ctx := adminCtx()

	_, err := f.svc.CancelSale(ctx, domain.CancelRequest{Query: "ninguem"})
	if !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	sellP1(t, f, 1)
	sellP1(t, f, 1)
	_, err = f.svc.CancelSale(ctx, domain.CancelRequest{Query: "maria"})
	if !apperr.Is(err, apperr.Conflict) {
		t.Fatalf("expected ambiguous query conflict, got %v", err)
	}
}

func TestRecordPurchaseAddsStockAndPendingExpense(t *testing.T) {
	f := newFixture(t)
	ctx := adminCtx()

	res, err := f.svc.RecordPurchase(ctx, domain.PurchaseRequest{
		Items:    []domain.PurchaseItem{{ProductID: "p2", Quantity: 10, CostPrice: decimal.RequireFromString("12.50")}},
		Supplier: "Distribuidora Sul",
	})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if res.Transaction.Status != domain.TxStatusPending || !res.Transaction.Value.Equal(decimal.RequireFromString("125")) {
		t.Fatalf("unexpected purchase entry: status=%s value=%s", res.Transaction.Status, res.Transaction.Value)
	}
	if got := stockOf(t, f.repo, "p2"); got != 12 {
		t.Fatalf("expected stock 12, got %d", got)
	}

	_, err = f.svc.RecordPurchase(ctx, domain.PurchaseRequest{
		Items:    []domain.PurchaseItem{{ProductID: "s1", Quantity: 1}},
		Supplier: "Distribuidora Sul",
	})
	if !apperr.Is(err, apperr.Validation) {
		t.Fatalf("expected validation error buying a service, got %v", err)
	}
}

func TestRecordTransactionRejectsReservedCategory(t *testing.T) {
	f := newFixture(t)
	ctx := adminCtx()

	_, err := f.svc.RecordTransaction(ctx, domain.ManualTransactionRequest{
		Type:     domain.TxIncome,
		Category: domain.CategorySale,
		Value:    decimal.RequireFromString("10"),
	})
	if !apperr.Is(err, apperr.Validation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	tx, err := f.svc.RecordTransaction(ctx, domain.ManualTransactionRequest{
		Type:     domain.TxExpense,
		Category: "Aluguel",
		Value:    decimal.RequireFromString("1800"),
	})
	if err != nil {
		t.Fatalf("record transaction: %v", err)
	}
	if tx.Status != domain.TxStatusPaid || tx.Store != "Matriz" {
		t.Fatalf("unexpected manual entry: %+v", tx)
	}
}

func TestServiceOrderLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := adminCtx()

	_, err := f.svc.CreateServiceOrder(ctx, domain.ServiceOrderCreateRequest{CustomerID: "nobody", Description: "Tela quebrada"})
	if !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("expected unknown customer to fail, got %v", err)
	}

	order, err := f.svc.CreateServiceOrder(ctx, domain.ServiceOrderCreateRequest{
		CustomerID:  "c1",
		Description: "Tela quebrada",
		Items:       []domain.CartItem{{ProductID: "s1", Quantity: 1, SalePrice: decimal.RequireFromString("120")}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Status != domain.OrderOpen || !order.TotalValue.Equal(decimal.RequireFromString("120")) {
		t.Fatalf("unexpected order: %+v", order)
	}

	updated, err := f.svc.UpdateServiceOrderStatus(ctx, order.ID, domain.OrderFinished)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != domain.OrderFinished || !updated.TotalValue.Equal(order.TotalValue) {
		t.Fatalf("unexpected update: %+v", updated)
	}

	if _, err := f.svc.UpdateServiceOrderStatus(ctx, order.ID, "DONE"); !apperr.Is(err, apperr.Validation) {
		t.Fatalf("expected validation error for unknown status, got %v", err)
	}

	open, err := f.svc.ListServiceOrders(ctx, domain.OrderOpen)
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("expected no open orders, got %d", len(open))
	}
}

func TestNonAdminIsScopedToOwnEstablishment(t *testing.T) {
	f := newFixture(t)
	cashier := WithActor(context.Background(), domain.Actor{Username: "caixa", Role: domain.RoleCashier, EstablishmentID: "filial"})

	res, err := f.svc.CommitSale(cashier, domain.SaleRequest{
		Items:         []domain.CartItem{{ProductID: "p1", Quantity: 1, SalePrice: decimal.RequireFromString("50")}},
		PaymentMethod: domain.PaymentCash,
	})
	if err != nil {
		t.Fatalf("commit sale: %v", err)
	}
	if res.Transaction.Store != "Filial Centro" || res.Transaction.VendorID != "caixa" {
		t.Fatalf("unexpected store or vendor: %+v", res.Transaction)
	}

	if _, err := f.svc.ListTransactions(cashier, LedgerQuery{Store: "Matriz"}); !apperr.Is(err, apperr.Forbidden) {
		t.Fatalf("expected forbidden for foreign store, got %v", err)
	}

	matrizSale := sellP1(t, f, 1)
	if _, err := f.svc.CancelSale(cashier, domain.CancelRequest{SaleID: matrizSale.ID}); !apperr.Is(err, apperr.Forbidden) {
		t.Fatalf("expected forbidden cancelling another store's sale, got %v", err)
	}
}

func TestSettingsDefaultAndUpdate(t *testing.T) {
	f := newFixture(t)

	settings, err := f.svc.Settings(context.Background())
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if settings.ReturnWindowDays != 7 {
		t.Fatalf("expected default window 7, got %d", settings.ReturnWindowDays)
	}

	manager := WithActor(context.Background(), domain.Actor{Username: "gerente", Role: domain.RoleManager})
	if _, err := f.svc.UpdateSettings(manager, domain.Settings{ReturnWindowDays: 30}); !apperr.Is(err, apperr.Forbidden) {
		t.Fatalf("expected forbidden for manager, got %v", err)
	}
	if _, err := f.svc.UpdateSettings(adminCtx(), domain.Settings{ReturnWindowDays: 400}); !apperr.Is(err, apperr.Validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := f.svc.UpdateSettings(adminCtx(), domain.Settings{ReturnWindowDays: 0}); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	sale := sellP1(t, f, 1)
	f.clock.Advance(time.Minute)
	_, err = f.svc.ReturnItem(adminCtx(), domain.ReturnRequest{SaleID: sale.ID, ProductID: "p1"})
	if !apperr.Is(err, apperr.RuleViolation) {
		t.Fatalf("zero day window should reject, got %v", err)
	}
}

func TestDashboardReflectsCommits(t *testing.T) {
	f := newFixture(t)
	ctx := adminCtx()

	sale := sellP1(t, f, 3)
	if _, err := f.svc.ReturnItem(ctx, domain.ReturnRequest{SaleID: sale.ID, ProductID: "p1"}); err != nil {
		t.Fatalf("return: %v", err)
	}

	from := f.clock.Now().Add(-time.Hour)
	dash, err := f.svc.Dashboard(ctx, ReportQuery{From: from, To: from.Add(24 * time.Hour)})
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if dash.SalesCount != 1 || !dash.GrossSales.Equal(decimal.RequireFromString("150")) || !dash.Returns.Equal(decimal.RequireFromString("50")) {
		t.Fatalf("unexpected dashboard: %+v", dash)
	}

	if _, err := f.svc.Dashboard(ctx, ReportQuery{From: from, To: from}); !apperr.Is(err, apperr.Validation) {
		t.Fatalf("expected validation error for empty range, got %v", err)
	}
}

func TestSaveProductKeepsStockOnUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := adminCtx()

	updated, err := f.svc.SaveProduct(ctx, "p1", domain.ProductRequest{
		Name: "Cabo HDMI 2m", SKU: "cab-hdmi", Category: "Cabos",
		SalePrice: decimal.RequireFromString("55"), Stock: 999,
	})
	if err != nil {
		t.Fatalf("save product: %v", err)
	}
	if updated.Stock != 10 || updated.SKU != "CAB-HDMI" {
		t.Fatalf("unexpected product: %+v", updated)
	}

	created, err := f.svc.SaveProduct(ctx, "", domain.ProductRequest{
		Name: "Limpeza", SKU: "SRV-LMP", Category: "Servicos", IsService: true, Stock: 4,
	})
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	if created.ID == "" || created.Stock != domain.UnlimitedStock {
		t.Fatalf("unexpected service product: %+v", created)
	}
}
