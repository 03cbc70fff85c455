package httpapi

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"lojapdv/backend/internal/apperr"
	"lojapdv/backend/internal/domain"
	"lojapdv/backend/internal/service"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	pinLimiter    *attemptLimiter
	csrfSecret    []byte
	validate      *validator.Validate
	log           logrus.FieldLogger
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, log logrus.FieldLogger) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		csrfSecret = []byte(uuid.NewString())
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		pinLimiter:    newAttemptLimiter(8, time.Minute),
		csrfSecret:    csrfSecret,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		log:           log.WithField("module", "httpapi"),
	}
}

// csrfTokenForHour is HMAC-SHA256 over the hour bucket, hex encoded.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	return a.csrfTokenForHour(time.Now().UTC().Truncate(time.Hour).Unix())
}

// validateCSRFToken accepts the current and the previous hour bucket.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	current := time.Now().UTC().Truncate(time.Hour).Unix()
	return hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(current))) ||
		hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(current-3600)))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

var (
	everyone    = []string{domain.RoleAdmin, domain.RoleManager, domain.RoleCashier}
	supervisors = []string{domain.RoleAdmin, domain.RoleManager}
	adminsOnly  = []string{domain.RoleAdmin}
)

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/csrf-token", a.handleCSRFToken)

	mux.HandleFunc("/api/v1/products", a.requireAuth(a.handleProducts, everyone...))
	mux.HandleFunc("/api/v1/products/{id}", a.requireAuth(a.handleProduct, everyone...))
	mux.HandleFunc("/api/v1/customers", a.requireAuth(a.handleCustomers, everyone...))
	mux.HandleFunc("/api/v1/customers/{id}", a.requireAuth(a.handleCustomer, everyone...))
	mux.HandleFunc("/api/v1/establishments", a.requireAuth(a.handleEstablishments, everyone...))
	mux.HandleFunc("/api/v1/establishments/{id}", a.requireAuth(a.handleEstablishment, adminsOnly...))
	mux.HandleFunc("/api/v1/users", a.requireAuth(a.handleUsers, adminsOnly...))

	mux.HandleFunc("/api/v1/sales", a.requireAuth(a.handleSales, everyone...))
	mux.HandleFunc("/api/v1/sales/search", a.requireAuth(a.handleSaleSearch, everyone...))
	mux.HandleFunc("/api/v1/sales/cancel", a.requireAuth(a.handleCancelByQuery, everyone...))
	mux.HandleFunc("/api/v1/sales/{id}", a.requireAuth(a.handleSale, everyone...))
	mux.HandleFunc("/api/v1/sales/{id}/returns", a.requireAuth(a.handleSaleReturn, everyone...))
	mux.HandleFunc("/api/v1/sales/{id}/cancel", a.requireAuth(a.handleSaleCancel, everyone...))

	mux.HandleFunc("/api/v1/purchases", a.requireAuth(a.handlePurchases, supervisors...))
	mux.HandleFunc("/api/v1/transactions", a.requireAuth(a.handleTransactions, supervisors...))
	mux.HandleFunc("/api/v1/transactions/{id}", a.requireAuth(a.handleTransaction, supervisors...))

	mux.HandleFunc("/api/v1/service-orders", a.requireAuth(a.handleServiceOrders, everyone...))
	mux.HandleFunc("/api/v1/service-orders/{id}", a.requireAuth(a.handleServiceOrder, everyone...))
	mux.HandleFunc("/api/v1/service-orders/{id}/status", a.requireAuth(a.handleServiceOrderStatus, everyone...))

	mux.HandleFunc("/api/v1/reports/{view}", a.requireAuth(a.handleReport, supervisors...))
	mux.HandleFunc("/api/v1/settings", a.requireAuth(a.handleSettings, everyone...))
	mux.HandleFunc("/api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, supervisors...))

	return a.recoverer(a.requestID(a.withMiddleware(mux)))
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		actor, err := a.auth.ParseToken(strings.TrimSpace(authorization[len("Bearer "):]))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := a.decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken hands out the token mutating requests must echo in
// X-CSRF-Token.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"csrf_token": a.generateCSRFToken()})
}

var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	if !a.validateCSRFToken(strings.TrimSpace(r.Header.Get("X-CSRF-Token"))) {
		writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

// confirmManager enforces the manager PIN on reversals, rate limited per
// client and action.
func (a *API) confirmManager(w http.ResponseWriter, r *http.Request, action string, pin string) bool {
	if !a.pinLimiter.Allow("pin:" + action + ":" + clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many manager pin attempts"))
		return false
	}
	if !a.auth.ValidateManagerPIN(pin) {
		writeError(w, http.StatusForbidden, errors.New("invalid manager pin"))
		return false
	}
	return true
}

type requestIDKey struct{}

var validRequestID = regexp.MustCompile(`^[a-zA-Z0-9\-]{1,64}$`)

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// requestID keeps a safe caller supplied X-Request-ID or mints a uuid.
func (a *API) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if !validRequestID.MatchString(id) {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func (a *API) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rv := recover(); rv != nil {
				a.log.WithFields(logrus.Fields{
					"panic":      fmt.Sprint(rv),
					"path":       r.URL.Path,
					"request_id": requestIDFromContext(r.Context()),
				}).Error("handler panicked")
				writeError(w, http.StatusInternalServerError, errors.New("panic"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token, X-Request-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,OPTIONS")
		w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, Content-Disposition")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if !a.checkCSRF(w, r) {
			return
		}

		startedAt := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.log.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(startedAt).Milliseconds(),
			"request_id":  requestIDFromContext(r.Context()),
		}).Info("request")
	})
}

// decode reads one JSON document and runs the struct validation tags.
func (a *API) decode(r *http.Request, dest any) error {
	if err := decodeJSON(r, dest); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Wrap(apperr.Validation, err, "request body too large")
		}
		return apperr.Wrap(apperr.Validation, err, "invalid JSON body")
	}
	if err := a.validate.Struct(dest); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) {
			parts := make([]string, 0, len(fields))
			for _, fe := range fields {
				parts = append(parts, fe.Field()+":"+fe.Tag())
			}
			return apperr.New(apperr.Validation, "invalid fields %s", strings.Join(parts, ","))
		}
		return apperr.Wrap(apperr.Validation, err, "invalid request")
	}
	return nil
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

// fail writes err with the status of its kind. Transport failures are logged
// and their message is hidden from the client.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForKind(apperr.KindOf(err))
	if status >= 500 {
		a.log.WithError(err).WithFields(logrus.Fields{
			"path":       r.URL.Path,
			"request_id": requestIDFromContext(r.Context()),
		}).Error("request failed")
	}
	writeError(w, status, err)
}

func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.RuleViolation:
		return http.StatusUnprocessableEntity
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.Forbidden:
		return http.StatusForbidden
	default:
		return http.StatusServiceUnavailable
	}
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	if parsed, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && parsed > 0 {
		limit = parsed
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// parseRange reads from/to query values. Plain dates cover whole days, so
// to=2026-03-02 includes that day. A missing bound defaults to today.
func parseRange(r *http.Request) (time.Time, time.Time, error) {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	from, err := parseBound(r.URL.Query().Get("from"), today, false)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseBound(r.URL.Query().Get("to"), today, true)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

func parseBound(raw string, fallback time.Time, upper bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if upper {
			return fallback.AddDate(0, 0, 1), nil
		}
		return fallback, nil
	}
	if day, err := time.Parse(time.DateOnly, raw); err == nil {
		if upper {
			return day.AddDate(0, 0, 1), nil
		}
		return day, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperr.New(apperr.Validation, "invalid date %q, use YYYY-MM-DD or RFC3339", raw)
	}
	return ts, nil
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError hides the message of 5xx responses. The request id is the one
// the requestID middleware put on the response headers.
func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		msg = "internal server error"
	}
	code := string(apperr.KindOf(err))
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		code = strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: w.Header().Get("X-Request-ID"),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
