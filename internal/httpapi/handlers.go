package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"lojapdv/backend/internal/domain"
	"lojapdv/backend/internal/service"
)

// allowRoles narrows a route that is open to everyone for one method.
func allowRoles(w http.ResponseWriter, r *http.Request, roles ...string) bool {
	actor, ok := service.ActorFromContext(r.Context())
	if !ok || !isRoleAllowed(actor.Role, roles) {
		writeError(w, http.StatusForbidden, errors.New("forbidden role"))
		return false
	}
	return true
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		products, err := a.service.SearchProducts(r.Context(), r.URL.Query().Get("q"))
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": products})
	case http.MethodPost:
		if !allowRoles(w, r, supervisors...) {
			return
		}
		var req domain.ProductRequest
		if err := a.decode(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}
		product, err := a.service.SaveProduct(r.Context(), "", req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"product": product})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		product, err := a.service.GetProduct(r.Context(), id)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"product": product})
	case http.MethodPut:
		if !allowRoles(w, r, supervisors...) {
			return
		}
		var req domain.ProductRequest
		if err := a.decode(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}
		product, err := a.service.SaveProduct(r.Context(), id, req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"product": product})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCustomers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		customers, err := a.service.ListCustomers(r.Context())
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
	case http.MethodPost:
		var req domain.CustomerRequest
		if err := a.decode(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}
		customer, err := a.service.SaveCustomer(r.Context(), "", req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"customer": customer})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCustomer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		customer, err := a.service.GetCustomer(r.Context(), id)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"customer": customer})
	case http.MethodPut:
		var req domain.CustomerRequest
		if err := a.decode(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}
		customer, err := a.service.SaveCustomer(r.Context(), id, req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"customer": customer})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleEstablishments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		establishments, err := a.service.ListEstablishments(r.Context())
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"establishments": establishments})
	case http.MethodPost:
		var req domain.EstablishmentRequest
		if err := a.decode(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}
		establishment, err := a.service.SaveEstablishment(r.Context(), "", req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"establishment": establishment})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleEstablishment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.EstablishmentRequest
	if err := a.decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	establishment, err := a.service.SaveEstablishment(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"establishment": establishment})
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"users": a.auth.ListUsers(r.Context())})
	case http.MethodPost:
		var req domain.UserCreateRequest
		if err := a.decode(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}
		user, err := a.auth.CreateUser(r.Context(), req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"user": user})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		from, to, err := parseRange(r)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		sales, err := a.service.ListTransactions(r.Context(), service.LedgerQuery{
			From:     &from,
			To:       &to,
			Store:    r.URL.Query().Get("store"),
			Type:     domain.TxIncome,
			Category: domain.CategorySale,
			Limit:    parsePositiveLimit(r.URL.Query().Get("limit"), 200, 1000),
		})
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
	case http.MethodPost:
		var req domain.SaleRequest
		if err := a.decode(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}
		resp, err := a.service.CommitSale(r.Context(), req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSaleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	sales, err := a.service.FindSales(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleSale(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	sale, err := a.service.GetTransaction(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !sale.IsSale() {
		writeError(w, http.StatusNotFound, errors.New("sale not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleSaleReturn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.ReturnRequest
	if err := a.decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if !a.confirmManager(w, r, "return", req.ManagerPIN) {
		return
	}
	req.SaleID = r.PathValue("id")

	resp, err := a.service.ReturnItem(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSaleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.CancelRequest
	if err := a.decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if !a.confirmManager(w, r, "cancel", req.ManagerPIN) {
		return
	}
	req.SaleID = r.PathValue("id")

	resp, err := a.service.CancelSale(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCancelByQuery cancels the single sale matching an id fragment or
// customer name.
func (a *API) handleCancelByQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.CancelRequest
	if err := a.decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.SaleID) == "" && strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, errors.New("sale_id or query is required"))
		return
	}
	if !a.confirmManager(w, r, "cancel", req.ManagerPIN) {
		return
	}

	resp, err := a.service.CancelSale(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handlePurchases(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.PurchaseRequest
	if err := a.decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	resp, err := a.service.RecordPurchase(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		from, to, err := parseRange(r)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		q := r.URL.Query()
		txs, err := a.service.ListTransactions(r.Context(), service.LedgerQuery{
			From:     &from,
			To:       &to,
			Store:    q.Get("store"),
			Type:     domain.TransactionType(strings.ToUpper(q.Get("type"))),
			Category: q.Get("category"),
			Limit:    parsePositiveLimit(q.Get("limit"), 200, 1000),
		})
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
	case http.MethodPost:
		var req domain.ManualTransactionRequest
		if err := a.decode(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}
		tx, err := a.service.RecordTransaction(r.Context(), req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"transaction": tx})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleTransaction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	tx, err := a.service.GetTransaction(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transaction": tx})
}

func (a *API) handleServiceOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		status := domain.ServiceOrderStatus(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status"))))
		orders, err := a.service.ListServiceOrders(r.Context(), status)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"service_orders": orders})
	case http.MethodPost:
		var req domain.ServiceOrderCreateRequest
		if err := a.decode(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}
		order, err := a.service.CreateServiceOrder(r.Context(), req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"service_order": order})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleServiceOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	order, err := a.service.GetServiceOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"service_order": order})
}

func (a *API) handleServiceOrderStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.ServiceOrderStatusRequest
	if err := a.decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	order, err := a.service.UpdateServiceOrderStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"service_order": order})
}

func (a *API) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		settings, err := a.service.Settings(r.Context())
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"settings": settings})
	case http.MethodPut:
		var req domain.Settings
		if err := a.decode(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}
		settings, err := a.service.UpdateSettings(r.Context(), req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"settings": settings})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	from, to, err := parseRange(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	logs, err := a.service.ListAuditLogs(r.Context(), from, to, parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}
