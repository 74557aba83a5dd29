package store

import (
	"context"
	"errors"
	"time"

	"screena/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransaction = errors.New("invalid transaction")
)

// Repository is the document-store boundary. Every entity is scoped to one
// shop; implementations must never leak records across shops.
type Repository interface {
	ListProducts(ctx context.Context, shop string) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	GetProductByCode(ctx context.Context, shop string, code int) (*domain.Product, error)
	NextProductCode(ctx context.Context, shop string) (int, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	// AdjustProductQuantity applies delta to the stored quantity. A result of
	// zero or less deletes the record and reports deleted=true.
	AdjustProductQuantity(ctx context.Context, id string, delta int) (deleted bool, err error)

	NextInvoiceNumber(ctx context.Context, shop string) (int, error)
	CreateInvoice(ctx context.Context, inv domain.Invoice) (*domain.Invoice, error)
	GetInvoice(ctx context.Context, source string, id string) (*domain.Invoice, error)
	ListInvoices(ctx context.Context, source string, shop string) ([]domain.Invoice, error)
	UpdateInvoice(ctx context.Context, source string, inv domain.Invoice) (*domain.Invoice, error)
	DeleteInvoice(ctx context.Context, source string, id string) error
	// ArchiveInvoice copies a live invoice into the archive then deletes the
	// live record. The two writes are independent.
	ArchiveInvoice(ctx context.Context, id string) error

	CreateExpense(ctx context.Context, exp domain.Expense) (*domain.Expense, error)
	ListExpenses(ctx context.Context, source string, shop string) ([]domain.Expense, error)
	UpdateExpense(ctx context.Context, exp domain.Expense) (*domain.Expense, error)
	DeleteExpense(ctx context.Context, id string) error
	ArchiveExpense(ctx context.Context, id string) error

	FindTabByCustomer(ctx context.Context, shop string, name string, phone string) (*domain.CustomerTab, error)
	CreateTab(ctx context.Context, tab domain.CustomerTab) (*domain.CustomerTab, error)
	UpdateTab(ctx context.Context, tab domain.CustomerTab) (*domain.CustomerTab, error)
	ListTabs(ctx context.Context, shop string) ([]domain.CustomerTab, error)
	GetTab(ctx context.Context, id string) (*domain.CustomerTab, error)
	CreateTabPayment(ctx context.Context, payment domain.TabPayment) (*domain.TabPayment, error)
	ListTabPayments(ctx context.Context, shop string, tabID string) ([]domain.TabPayment, error)
	DeleteTabPayment(ctx context.Context, id string) error

	CreateTreasuryTransaction(ctx context.Context, tx domain.TreasuryTransaction) (*domain.TreasuryTransaction, error)
	ListTreasuryTransactions(ctx context.Context, shop string) ([]domain.TreasuryTransaction, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, shop string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
