package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"screena/backend/internal/domain"
	"screena/backend/internal/store"
	"screena/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	invoicesLive    map[string]domain.Invoice
	invoicesArchive map[string]domain.Invoice
	expensesLive    map[string]domain.Expense
	expensesArchive map[string]domain.Expense
	tabsByID        map[string]domain.CustomerTab
	paymentsByID    map[string]domain.TabPayment
	treasury        []domain.TreasuryTransaction
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	shop := envOr("SEED_SHOP", "main-branch")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Shop:      shop,
			Active:    true,
			CreatedAt: now,
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

func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		invoicesLive:    make(map[string]domain.Invoice),
		invoicesArchive: make(map[string]domain.Invoice),
		expensesLive:    make(map[string]domain.Expense),
		expensesArchive: make(map[string]domain.Expense),
		tabsByID:        make(map[string]domain.CustomerTab),
		paymentsByID:    make(map[string]domain.TabPayment),
		treasury:        make([]domain.TreasuryTransaction, 0, 32),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: seedUsers(),
	}
}

func NewSeeded() *Store {
	s := New()
	shop := envOr("SEED_SHOP", "main-branch")
	now := time.Now().UTC()

	seed := []domain.Product{
		{Code: 1000, Name: "Galaxy A15", Type: domain.ProductTypePhone, Quantity: 2, BuyPriceCents: 620000, SellPriceCents: 710000, Battery: "5000", Storage: "128", Serial: "RZ8W91KX", HasBox: true},
		{Code: 1001, Name: "Redmi Note 13", Type: domain.ProductTypePhone, Quantity: 1, BuyPriceCents: 540000, SellPriceCents: 625000, Battery: "5000", Storage: "256", Serial: "XM44021B", HasBox: true, HasTax: true},
		{Code: 1002, Name: "USB-C Cable 1m", Type: domain.ProductTypeAccessory, Quantity: 40, BuyPriceCents: 2500, SellPriceCents: 6000},
		{Code: 1003, Name: "Tempered Glass", Type: domain.ProductTypeAccessory, Quantity: 55, BuyPriceCents: 1200, SellPriceCents: 4000},
		{Code: 1004, Name: "Wall Charger 25W", Type: domain.ProductTypeAccessory, Quantity: 18, BuyPriceCents: 9000, SellPriceCents: 17500},
		{Code: 1005, Name: "Silicone Case", Type: domain.ProductTypeAccessory, Quantity: 30, BuyPriceCents: 3000, SellPriceCents: 8500},
	}
	for _, p := range seed {
		p.ID = xid.New("prd")
		p.Shop = shop
		p.CreatedAt = now
		s.products[p.ID] = p
	}
	return s
}

func (s *Store) ListProducts(_ context.Context, shop string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.Shop != shop {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return b.Code - a.Code
	})
	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) GetProductByCode(_ context.Context, shop string, code int) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.products {
		if p.Shop == shop && p.Code == code {
			copyProduct := p
			return &copyProduct, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) NextProductCode(_ context.Context, shop string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextProductCodeLocked(shop), nil
}

func (s *Store) nextProductCodeLocked(shop string) int {
	next := 1000
	for _, p := range s.products {
		if p.Shop == shop && p.Code >= next {
			next = p.Code + 1
		}
	}
	return next
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Shop == "" || product.Name == "" || product.Quantity < 1 {
		return nil, store.ErrInvalidTransaction
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.Code == 0 {
		product.Code = s.nextProductCodeLocked(product.Shop)
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	product.Shop = existing.Shop
	product.Code = existing.Code
	product.CreatedAt = existing.CreatedAt
	if product.Quantity <= 0 {
		delete(s.products, product.ID)
		updated := product
		updated.Quantity = 0
		return &updated, nil
	}
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) AdjustProductQuantity(_ context.Context, id string, delta int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[id]
	if !exists {
		return false, store.ErrNotFound
	}
	if delta < 0 && product.Quantity+delta < 0 {
		return false, store.ErrInsufficientStock
	}
	product.Quantity += delta
	if product.Quantity <= 0 {
		delete(s.products, id)
		return true, nil
	}
	s.products[id] = product
	return false, nil
}

func (s *Store) NextInvoiceNumber(_ context.Context, shop string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextInvoiceNumberLocked(shop), nil
}

// The invoice sequence spans live and archived invoices so a shift close
// never resets numbering.
func (s *Store) nextInvoiceNumberLocked(shop string) int {
	next := 1001
	for _, inv := range s.invoicesLive {
		if inv.Shop == shop && inv.InvoiceNumber >= next {
			next = inv.InvoiceNumber + 1
		}
	}
	for _, inv := range s.invoicesArchive {
		if inv.Shop == shop && inv.InvoiceNumber >= next {
			next = inv.InvoiceNumber + 1
		}
	}
	return next
}

func (s *Store) CreateInvoice(_ context.Context, inv domain.Invoice) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inv.Shop == "" || len(inv.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	if inv.ID == "" {
		inv.ID = xid.New("inv")
	}
	if inv.InvoiceNumber == 0 {
		inv.InvoiceNumber = s.nextInvoiceNumberLocked(inv.Shop)
	}
	now := time.Now().UTC()
	if inv.Date.IsZero() {
		inv.Date = now
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = now
	}
	s.invoicesLive[inv.ID] = cloneInvoice(inv)
	created := cloneInvoice(inv)
	return &created, nil
}

func (s *Store) invoiceBucket(source string) map[string]domain.Invoice {
	if source == domain.InvoiceSourceArchive {
		return s.invoicesArchive
	}
	return s.invoicesLive
}

func (s *Store) GetInvoice(_ context.Context, source string, id string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, exists := s.invoiceBucket(source)[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyInv := cloneInvoice(inv)
	return &copyInv, nil
}

func (s *Store) ListInvoices(_ context.Context, source string, shop string) ([]domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucket := s.invoiceBucket(source)
	invoices := make([]domain.Invoice, 0, len(bucket))
	for _, inv := range bucket {
		if inv.Shop != shop {
			continue
		}
		invoices = append(invoices, cloneInvoice(inv))
	}
	slices.SortFunc(invoices, func(a, b domain.Invoice) int {
		if a.Date.Equal(b.Date) {
			return cmpString(b.ID, a.ID)
		}
		if a.Date.After(b.Date) {
			return -1
		}
		return 1
	})
	return invoices, nil
}

func (s *Store) UpdateInvoice(_ context.Context, source string, inv domain.Invoice) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.invoiceBucket(source)
	if _, exists := bucket[inv.ID]; !exists {
		return nil, store.ErrNotFound
	}
	bucket[inv.ID] = cloneInvoice(inv)
	updated := cloneInvoice(inv)
	return &updated, nil
}

func (s *Store) DeleteInvoice(_ context.Context, source string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.invoiceBucket(source)
	if _, exists := bucket[id]; !exists {
		return store.ErrNotFound
	}
	delete(bucket, id)
	return nil
}

func (s *Store) ArchiveInvoice(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, exists := s.invoicesLive[id]
	if !exists {
		return store.ErrNotFound
	}
	s.invoicesArchive[id] = cloneInvoice(inv)
	delete(s.invoicesLive, id)
	return nil
}

func (s *Store) CreateExpense(_ context.Context, exp domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if exp.Shop == "" || exp.Description == "" {
		return nil, store.ErrInvalidTransaction
	}
	if exp.ID == "" {
		exp.ID = xid.New("exp")
	}
	if exp.Category == "" {
		exp.Category = domain.ExpenseCategoryOperating
	}
	now := time.Now().UTC()
	if exp.Date.IsZero() {
		exp.Date = now
	}
	if exp.CreatedAt.IsZero() {
		exp.CreatedAt = now
	}
	s.expensesLive[exp.ID] = exp
	created := exp
	return &created, nil
}

func (s *Store) expenseBucket(source string) map[string]domain.Expense {
	if source == domain.InvoiceSourceArchive {
		return s.expensesArchive
	}
	return s.expensesLive
}

func (s *Store) ListExpenses(_ context.Context, source string, shop string) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucket := s.expenseBucket(source)
	expenses := make([]domain.Expense, 0, len(bucket))
	for _, exp := range bucket {
		if exp.Shop != shop {
			continue
		}
		expenses = append(expenses, exp)
	}
	slices.SortFunc(expenses, func(a, b domain.Expense) int {
		if a.Date.Equal(b.Date) {
			return cmpString(b.ID, a.ID)
		}
		if a.Date.After(b.Date) {
			return -1
		}
		return 1
	})
	return expenses, nil
}

func (s *Store) UpdateExpense(_ context.Context, exp domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.expensesLive[exp.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	exp.Shop = existing.Shop
	exp.Category = existing.Category
	exp.CreatedAt = existing.CreatedAt
	s.expensesLive[exp.ID] = exp
	updated := exp
	return &updated, nil
}

func (s *Store) DeleteExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.expensesLive[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.expensesLive, id)
	return nil
}

func (s *Store) ArchiveExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, exists := s.expensesLive[id]
	if !exists {
		return store.ErrNotFound
	}
	s.expensesArchive[id] = exp
	delete(s.expensesLive, id)
	return nil
}

func (s *Store) FindTabByCustomer(_ context.Context, shop string, name string, phone string) (*domain.CustomerTab, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tab := range s.tabsByID {
		if tab.Shop == shop && tab.CustomerName == name && tab.CustomerPhone == phone {
			copyTab := cloneTab(tab)
			return &copyTab, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateTab(_ context.Context, tab domain.CustomerTab) (*domain.CustomerTab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tab.Shop == "" || tab.CustomerName == "" {
		return nil, store.ErrInvalidTransaction
	}
	if tab.ID == "" {
		tab.ID = xid.New("tab")
	}
	if tab.Date.IsZero() {
		tab.Date = time.Now().UTC()
	}
	s.tabsByID[tab.ID] = cloneTab(tab)
	created := cloneTab(tab)
	return &created, nil
}

func (s *Store) UpdateTab(_ context.Context, tab domain.CustomerTab) (*domain.CustomerTab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tabsByID[tab.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.tabsByID[tab.ID] = cloneTab(tab)
	updated := cloneTab(tab)
	return &updated, nil
}

func (s *Store) ListTabs(_ context.Context, shop string) ([]domain.CustomerTab, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tabs := make([]domain.CustomerTab, 0, len(s.tabsByID))
	for _, tab := range s.tabsByID {
		if tab.Shop != shop {
			continue
		}
		tabs = append(tabs, cloneTab(tab))
	}
	slices.SortFunc(tabs, func(a, b domain.CustomerTab) int {
		if a.Date.Equal(b.Date) {
			return cmpString(b.ID, a.ID)
		}
		if a.Date.After(b.Date) {
			return -1
		}
		return 1
	})
	return tabs, nil
}

func (s *Store) GetTab(_ context.Context, id string) (*domain.CustomerTab, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tab, exists := s.tabsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyTab := cloneTab(tab)
	return &copyTab, nil
}

func (s *Store) CreateTabPayment(_ context.Context, payment domain.TabPayment) (*domain.TabPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if payment.Shop == "" || payment.TabID == "" || payment.AmountCents < 1 {
		return nil, store.ErrInvalidTransaction
	}
	if _, exists := s.tabsByID[payment.TabID]; !exists {
		return nil, store.ErrNotFound
	}
	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	if payment.Date.IsZero() {
		payment.Date = time.Now().UTC()
	}
	s.paymentsByID[payment.ID] = payment
	created := payment
	return &created, nil
}

func (s *Store) ListTabPayments(_ context.Context, shop string, tabID string) ([]domain.TabPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payments := make([]domain.TabPayment, 0, len(s.paymentsByID))
	for _, p := range s.paymentsByID {
		if p.Shop != shop {
			continue
		}
		if tabID != "" && p.TabID != tabID {
			continue
		}
		payments = append(payments, p)
	}
	slices.SortFunc(payments, func(a, b domain.TabPayment) int {
		if a.Date.Equal(b.Date) {
			return cmpString(b.ID, a.ID)
		}
		if a.Date.After(b.Date) {
			return -1
		}
		return 1
	})
	return payments, nil
}

func (s *Store) DeleteTabPayment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.paymentsByID[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.paymentsByID, id)
	return nil
}

func (s *Store) CreateTreasuryTransaction(_ context.Context, tx domain.TreasuryTransaction) (*domain.TreasuryTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.Shop == "" || tx.AmountCents < 1 {
		return nil, store.ErrInvalidTransaction
	}
	if tx.Type != domain.TreasuryDeposit && tx.Type != domain.TreasuryWithdrawal {
		return nil, store.ErrInvalidTransaction
	}
	if tx.ID == "" {
		tx.ID = xid.New("trs")
	}
	if tx.Date.IsZero() {
		tx.Date = time.Now().UTC()
	}
	s.treasury = append(s.treasury, tx)
	created := tx
	return &created, nil
}

func (s *Store) ListTreasuryTransactions(_ context.Context, shop string) ([]domain.TreasuryTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.TreasuryTransaction, 0, len(s.treasury))
	for _, tx := range s.treasury {
		if tx.Shop == shop {
			result = append(result, tx)
		}
	}
	slices.SortFunc(result, func(a, b domain.TreasuryTransaction) int {
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

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, shop string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, len(s.auditLogs))
	for _, entry := range s.auditLogs {
		if shop != "" && entry.Shop != shop {
			continue
		}
		if !from.IsZero() && entry.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !entry.CreatedAt.Before(to) {
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

	username := strings.TrimSpace(user.Username)
	if username == "" || user.Password == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidTransaction
	}
	user.Username = username
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByUsername[strings.TrimSpace(username)]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyUser := user
	return &copyUser, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cloneInvoice(inv domain.Invoice) domain.Invoice {
	copyInv := inv
	copyInv.Items = make([]domain.InvoiceLine, len(inv.Items))
	copy(copyInv.Items, inv.Items)
	return copyInv
}

func cloneTab(tab domain.CustomerTab) domain.CustomerTab {
	copyTab := tab
	copyTab.Items = make([]domain.TabLine, len(tab.Items))
	copy(copyTab.Items, tab.Items)
	return copyTab
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
