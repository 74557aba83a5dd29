package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"screena/backend/internal/domain"
	"screena/backend/internal/service"
	"screena/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	pinLimiter    *attemptLimiter
	csrfSecret    []byte
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		// Startup-time fallback, still unpredictable enough for per-process tokens.
		secret = []byte(fmt.Sprintf("csrf-fallback-%d", time.Now().UnixNano()))
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		pinLimiter:    newAttemptLimiter(8, time.Minute),
		csrfSecret:    secret,
	}
}

// attemptLimiter tracks request attempts per key in a sliding window.
type attemptLimiter struct {
	mu       sync.Mutex
	max      int
	window   time.Duration
	attempts map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	return &attemptLimiter{
		max:      max,
		window:   window,
		attempts: make(map[string][]time.Time),
	}
}

func (l *attemptLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.window)
	kept := l.attempts[key][:0]
	for _, t := range l.attempts[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= l.max {
		l.attempts[key] = kept
		return false
	}
	l.attempts[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	addrPort, err := netip.ParseAddrPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return addrPort.Addr().String()
}

func (a *API) csrfTokenForHour(hour int64) string {
	mac := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(mac, "csrf:%d", hour)
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	return a.csrfTokenForHour(time.Now().Unix() / 3600)
}

// validateCSRFToken accepts tokens minted in the current or previous hour so a
// token fetched just before the boundary stays usable.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	hour := time.Now().Unix() / 3600
	for _, h := range []int64{hour, hour - 1} {
		expected := a.csrfTokenForHour(h)
		if hmac.Equal([]byte(token), []byte(expected)) {
			return true
		}
	}
	return false
}

var csrfExemptPaths = map[string]bool{
	"/api/v1/auth/login": true,
}

func (a *API) checkCSRF(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return true
	}
	if csrfExemptPaths[r.URL.Path] {
		return true
	}
	return a.validateCSRFToken(r.Header.Get("X-CSRF-Token"))
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/csrf-token", a.handleCSRFToken)

	mux.HandleFunc("/api/v1/products", a.requireAuth(a.handleProducts, "admin", "cashier"))
	mux.HandleFunc("/api/v1/products/next-code", a.requireAuth(a.handleNextProductCode, "admin", "cashier"))
	mux.HandleFunc("/api/v1/products/", a.requireAuth(a.handleProductByID, "admin", "cashier"))

	mux.HandleFunc("/api/v1/checkout", a.requireAuth(a.handleCheckout, "admin", "cashier"))
	mux.HandleFunc("/api/v1/invoices", a.requireAuth(a.handleInvoices, "admin", "cashier"))
	mux.HandleFunc("/api/v1/invoices/", a.requireAuth(a.handleInvoiceByID, "admin", "cashier"))
	mux.HandleFunc("/api/v1/returns", a.requireAuth(a.handleReturns, "admin", "cashier"))

	mux.HandleFunc("/api/v1/expenses", a.requireAuth(a.handleExpenses, "admin", "cashier"))
	mux.HandleFunc("/api/v1/expenses/", a.requireAuth(a.handleExpenseByID, "admin"))

	mux.HandleFunc("/api/v1/shift/close", a.requireAuth(a.handleShiftClose, "admin", "cashier"))
	mux.HandleFunc("/api/v1/shift/report", a.requireAuth(a.handleShiftReport, "admin"))

	mux.HandleFunc("/api/v1/tabs", a.requireAuth(a.handleTabs, "admin", "cashier"))
	mux.HandleFunc("/api/v1/tabs/payments", a.requireAuth(a.handleTabPayments, "admin", "cashier"))
	mux.HandleFunc("/api/v1/tabs/payments/", a.requireAuth(a.handleTabPaymentByID, "admin"))
	mux.HandleFunc("/api/v1/tabs/", a.requireAuth(a.handleTabByID, "admin", "cashier"))

	mux.HandleFunc("/api/v1/treasury", a.requireAuth(a.handleTreasury, "admin"))
	mux.HandleFunc("/api/v1/treasury/balance", a.requireAuth(a.handleTreasuryBalance, "admin"))

	mux.HandleFunc("/api/v1/stats/dashboard", a.requireAuth(a.handleDashboardStats, "admin"))
	mux.HandleFunc("/api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, "admin"))
	mux.HandleFunc("/api/v1/users/cashiers", a.requireAuth(a.handleCashiers, "admin"))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		session, err := a.auth.ParseToken(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		allowed := false
		for _, role := range roles {
			if session.Role == role {
				allowed = true
				break
			}
		}
		if !allowed {
			writeError(w, http.StatusForbidden, "insufficient role")
			return
		}
		next(w, r.WithContext(service.WithSession(r.Context(), session)))
	}
}

func (a *API) requireManagerPIN(w http.ResponseWriter, r *http.Request, action string) bool {
	key := "pin:" + action + ":" + clientKey(r)
	if !a.pinLimiter.Allow(key) {
		writeError(w, http.StatusTooManyRequests, "too many PIN attempts, try again later")
		return false
	}
	if !a.auth.ValidateManagerPIN(r.Header.Get("X-Manager-PIN")) {
		writeError(w, http.StatusForbidden, "manager PIN required")
		return false
	}
	return true
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow("login:" + clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, "too many login attempts, try again later")
		return
	}
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": a.generateCSRFToken()})
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		products, err := a.service.SearchProducts(r.Context(), r.URL.Query().Get("q"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, products)
	case http.MethodPost:
		session, _ := service.SessionFromContext(r.Context())
		if session.Role != "admin" {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		var req domain.ProductCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		product, err := a.service.CreateProduct(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, product)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleNextProductCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	code, err := a.service.NextProductCode(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"next_code": code})
}

func (a *API) handleProductByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/products/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		product, err := a.service.GetProduct(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, product)
	case http.MethodPatch:
		session, _ := service.SessionFromContext(r.Context())
		if session.Role != "admin" {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		var req domain.ProductUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		product, err := a.service.UpdateProduct(r.Context(), id, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		// An update that drops the quantity to zero removes the record entirely.
		if product.Quantity <= 0 {
			writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
			return
		}
		writeJSON(w, http.StatusOK, product)
	case http.MethodDelete:
		session, _ := service.SessionFromContext(r.Context())
		if session.Role != "admin" {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		if err := a.service.DeleteProduct(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, err := a.service.Checkout(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleInvoices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	invoices, err := a.service.ListInvoices(r.Context(), r.URL.Query().Get("source"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invoices)
}

func (a *API) handleInvoiceByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/invoices/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	invoice, err := a.service.GetInvoice(r.Context(), r.URL.Query().Get("source"), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

func (a *API) handleReturns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.requireManagerPIN(w, r, "return") {
		return
	}
	var req domain.ReturnLineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, err := a.service.ReturnLine(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleExpenses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		expenses, err := a.service.ListExpenses(r.Context(), r.URL.Query().Get("source"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, expenses)
	case http.MethodPost:
		var req domain.ExpenseCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		expense, err := a.service.CreateExpense(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, expense)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleExpenseByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/expenses/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	switch r.Method {
	case http.MethodPatch:
		var req domain.ExpenseUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		expense, err := a.service.UpdateExpense(r.Context(), id, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, expense)
	case http.MethodDelete:
		if err := a.service.DeleteExpense(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleShiftClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	resp, err := a.service.CloseShift(r.Context(), time.Now().UTC())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleShiftReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	query := r.URL.Query()
	report, err := a.service.ShiftReport(r.Context(), query.Get("date"), query.Get("payment_method"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	switch query.Get("format") {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=shift-report-%s.csv", report.Date))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(shiftReportToCSV(report)))
	case "pdf", "html":
		// The printable HTML page is what the front end hands to the browser's
		// print dialog for PDF output.
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if err := shiftReportTmpl.Execute(w, shiftReportView(report)); err != nil {
			log.Printf("[httpapi] report template render failed: %v", err)
		}
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

func (a *API) handleTabs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		tabs, err := a.service.ListTabs(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, tabs)
	case http.MethodPost:
		var req domain.TabAddRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		summary, err := a.service.AddToTab(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, summary)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleTabByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/tabs/")
	if id, ok := strings.CutSuffix(rest, "/payments"); ok && id != "" {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		payments, err := a.service.ListTabPayments(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payments)
		return
	}
	if rest == "" || strings.Contains(rest, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	summary, err := a.service.GetTab(r.Context(), rest)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleTabPayments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.TabPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	payment, err := a.service.RecordTabPayment(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

func (a *API) handleTabPaymentByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeMethodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/tabs/payments/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if !a.requireManagerPIN(w, r, "payment-delete") {
		return
	}
	if err := a.service.DeleteTabPayment(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (a *API) handleTreasury(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		transactions, err := a.service.ListTreasuryTransactions(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, transactions)
	case http.MethodPost:
		var req domain.TreasuryRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		tx, err := a.service.RecordTreasuryTransaction(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, tx)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleTreasuryBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	balance, err := a.service.TreasuryBalance(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"balance_cents": balance})
}

func (a *API) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	stats, err := a.service.DashboardStats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	query := r.URL.Query()
	limit := parsePositiveLimit(query.Get("limit"), 100, 500)
	logs, err := a.service.ListAuditLogs(r.Context(), query.Get("date"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (a *API) handleCashiers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, a.auth.ListCashiers())
	case http.MethodPost:
		if !a.requireManagerPIN(w, r, "cashier-create") {
			return
		}
		var req domain.CashierCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		user, err := a.auth.CreateCashier(req)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, user)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")

		if a.allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token, X-Manager-PIN")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, PUT, DELETE, OPTIONS")
			w.Header().Set("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if !a.checkCSRF(r) {
			writeError(w, http.StatusForbidden, "missing or invalid CSRF token")
			return
		}

		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start).Round(time.Millisecond))
	})
}

func shiftReportToCSV(report domain.ShiftReport) string {
	var b strings.Builder
	b.WriteString("section,key,value\n")
	fmt.Fprintf(&b, "summary,shop,%s\n", report.Shop)
	fmt.Fprintf(&b, "summary,date,%s\n", report.Date)
	fmt.Fprintf(&b, "summary,gross_sales,%s\n", formatCents(report.GrossSalesCents))
	fmt.Fprintf(&b, "summary,gross_profit,%s\n", formatCents(report.GrossProfitCents))
	fmt.Fprintf(&b, "summary,expenses,%s\n", formatCents(report.ExpenseCents))
	fmt.Fprintf(&b, "summary,net_sales,%s\n", formatCents(report.NetSalesCents))
	fmt.Fprintf(&b, "summary,net_profit,%s\n", formatCents(report.NetProfitCents))
	for _, inv := range report.Invoices {
		fmt.Fprintf(&b, "invoice,%d,%s\n", inv.InvoiceNumber, formatCents(inv.TotalCents))
	}
	for _, exp := range report.Expenses {
		fmt.Fprintf(&b, "expense,%s,%s\n", csvEscape(exp.Description), formatCents(exp.AmountCents))
	}
	return b.String()
}

func csvEscape(value string) string {
	if strings.ContainsAny(value, ",\"\n") {
		return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
	}
	return value
}

type reportRow struct {
	Label  string
	Amount string
}

type reportPage struct {
	Shop        string
	Date        string
	GrossSales  string
	GrossProfit string
	Expense     string
	NetSales    string
	NetProfit   string
	Invoices    []reportRow
	Expenses    []reportRow
}

func shiftReportView(report domain.ShiftReport) reportPage {
	page := reportPage{
		Shop:        report.Shop,
		Date:        report.Date,
		GrossSales:  formatCents(report.GrossSalesCents),
		GrossProfit: formatCents(report.GrossProfitCents),
		Expense:     formatCents(report.ExpenseCents),
		NetSales:    formatCents(report.NetSalesCents),
		NetProfit:   formatCents(report.NetProfitCents),
	}
	for _, inv := range report.Invoices {
		page.Invoices = append(page.Invoices, reportRow{
			Label:  fmt.Sprintf("#%d %s", inv.InvoiceNumber, inv.PaymentMethod),
			Amount: formatCents(inv.TotalCents),
		})
	}
	for _, exp := range report.Expenses {
		page.Expenses = append(page.Expenses, reportRow{
			Label:  exp.Description,
			Amount: formatCents(exp.AmountCents),
		})
	}
	return page
}

var shiftReportTmpl = template.Must(template.New("shift-report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Shift Report {{.Date}}</title>
<style>
body { font-family: sans-serif; margin: 2rem; }
table { border-collapse: collapse; width: 100%; margin-bottom: 1.5rem; }
th, td { border: 1px solid #ccc; padding: 0.4rem 0.6rem; text-align: left; }
h1 { font-size: 1.3rem; }
@media print { body { margin: 0; } }
</style>
</head>
<body>
<h1>Shift Report / {{.Shop}} / {{.Date}}</h1>
<table>
<tr><th>Gross sales</th><td>{{.GrossSales}}</td></tr>
<tr><th>Gross profit</th><td>{{.GrossProfit}}</td></tr>
<tr><th>Expenses</th><td>{{.Expense}}</td></tr>
<tr><th>Net sales</th><td>{{.NetSales}}</td></tr>
<tr><th>Net profit</th><td>{{.NetProfit}}</td></tr>
</table>
{{if .Invoices}}
<h2>Invoices</h2>
<table>
<tr><th>Invoice</th><th>Total</th></tr>
{{range .Invoices}}<tr><td>{{.Label}}</td><td>{{.Amount}}</td></tr>
{{end}}</table>
{{end}}
{{if .Expenses}}
<h2>Expenses</h2>
<table>
<tr><th>Description</th><th>Amount</th></tr>
{{range .Expenses}}<tr><td>{{.Label}}</td><td>{{.Amount}}</td></tr>
{{end}}</table>
{{end}}
</body>
</html>
`))

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	if n > max {
		return max
	}
	return n
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrInsufficientStock):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrInvalidTransaction):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	}
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeError(w http.ResponseWriter, status int, message string) {
	if status >= 500 {
		log.Printf("[httpapi] %d: %s", status, message)
		message = "internal server error"
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[httpapi] encode response failed: %v", err)
	}
}
