package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"screena/backend/internal/domain"
	"screena/backend/internal/store"
	"screena/backend/internal/xid"
)

type Store struct {
	db *sql.DB
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

func (s *Store) ListProducts(ctx context.Context, shop string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shop, code, name, type, quantity, buy_price_cents, sell_price_cents,
			battery, storage, serial, has_box, has_tax, created_at
		FROM products
		WHERE shop = $1
		ORDER BY code DESC
	`, shop)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, shop, code, name, type, quantity, buy_price_cents, sell_price_cents,
			battery, storage, serial, has_box, has_tax, created_at
		FROM products
		WHERE id = $1
	`, id)

	var p domain.Product
	if err := scanProduct(row, &p); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductByCode(ctx context.Context, shop string, code int) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, shop, code, name, type, quantity, buy_price_cents, sell_price_cents,
			battery, storage, serial, has_box, has_tax, created_at
		FROM products
		WHERE shop = $1 AND code = $2
	`, shop, code)

	var p domain.Product
	if err := scanProduct(row, &p); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) NextProductCode(ctx context.Context, shop string) (int, error) {
	var next int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(code), 999) + 1
		FROM products
		WHERE shop = $1
	`, shop).Scan(&next)
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Shop == "" || product.Name == "" || product.Quantity < 1 {
		return nil, store.ErrInvalidTransaction
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// Code assignment happens inside the inserting transaction so two
	// concurrent creates never hand out the same code.
	if product.Code == 0 {
		err = tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(code), 999) + 1
			FROM products
			WHERE shop = $1
		`, product.Shop).Scan(&product.Code)
		if err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (
			id, shop, code, name, type, quantity, buy_price_cents, sell_price_cents,
			battery, storage, serial, has_box, has_tax, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,now())
	`, product.ID, product.Shop, product.Code, product.Name, product.Type, product.Quantity,
		product.BuyPriceCents, product.SellPriceCents, product.Battery, product.Storage,
		product.Serial, product.HasBox, product.HasTax, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Quantity <= 0 {
		if err := s.DeleteProduct(ctx, product.ID); err != nil {
			return nil, err
		}
		updated := product
		updated.Quantity = 0
		return &updated, nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, quantity = $3, buy_price_cents = $4, sell_price_cents = $5,
			battery = $6, storage = $7, serial = $8, has_box = $9, has_tax = $10, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.Quantity, product.BuyPriceCents, product.SellPriceCents,
		product.Battery, product.Storage, product.Serial, product.HasBox, product.HasTax)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
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

func (s *Store) AdjustProductQuantity(ctx context.Context, id string, delta int) (bool, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var quantity int
	err = tx.QueryRowContext(ctx, `
		SELECT quantity
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&quantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, store.ErrNotFound
		}
		return false, err
	}
	if delta < 0 && quantity+delta < 0 {
		return false, store.ErrInsufficientStock
	}

	quantity += delta
	deleted := quantity <= 0
	if deleted {
		_, err = tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE products
			SET quantity = $2, updated_at = now()
			WHERE id = $1
		`, id, quantity)
	}
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return deleted, nil
}

// The invoice sequence spans live and archived invoices so a shift close
// never resets numbering.
func (s *Store) NextInvoiceNumber(ctx context.Context, shop string) (int, error) {
	var next int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(invoice_number), 1000) + 1
		FROM (
			SELECT invoice_number FROM sales WHERE shop = $1
			UNION ALL
			SELECT invoice_number FROM sales_reports WHERE shop = $1
		) all_invoices
	`, shop).Scan(&next)
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (s *Store) CreateInvoice(ctx context.Context, inv domain.Invoice) (*domain.Invoice, error) {
	if inv.Shop == "" || len(inv.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	if inv.ID == "" {
		inv.ID = xid.New("inv")
	}
	now := time.Now().UTC()
	if inv.Date.IsZero() {
		inv.Date = now
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = now
	}

	itemsJSON, err := json.Marshal(inv.Items)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if inv.InvoiceNumber == 0 {
		err = tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(invoice_number), 1000) + 1
			FROM (
				SELECT invoice_number FROM sales WHERE shop = $1
				UNION ALL
				SELECT invoice_number FROM sales_reports WHERE shop = $1
			) all_invoices
		`, inv.Shop).Scan(&inv.InvoiceNumber)
		if err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (
			id, shop, invoice_number, customer_name, customer_phone, payment_method,
			wallet_number, items, subtotal_cents, total_cents, total_profit_cents, date, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, inv.ID, inv.Shop, inv.InvoiceNumber, inv.CustomerName, inv.CustomerPhone, inv.PaymentMethod,
		inv.WalletNumber, itemsJSON, inv.SubtotalCents, inv.TotalCents, inv.TotalProfitCents,
		inv.Date, inv.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := inv
	return &created, nil
}

func invoiceTable(source string) string {
	if source == domain.InvoiceSourceArchive {
		return "sales_reports"
	}
	return "sales"
}

func expenseTable(source string) string {
	if source == domain.InvoiceSourceArchive {
		return "expenses_reports"
	}
	return "expenses"
}

func (s *Store) GetInvoice(ctx context.Context, source string, id string) (*domain.Invoice, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, shop, invoice_number, customer_name, customer_phone, payment_method,
			wallet_number, items, subtotal_cents, total_cents, total_profit_cents, date, created_at
		FROM %s
		WHERE id = $1
	`, invoiceTable(source)), id)

	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return inv, nil
}

func (s *Store) ListInvoices(ctx context.Context, source string, shop string) ([]domain.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, shop, invoice_number, customer_name, customer_phone, payment_method,
			wallet_number, items, subtotal_cents, total_cents, total_profit_cents, date, created_at
		FROM %s
		WHERE shop = $1
		ORDER BY date DESC, id DESC
	`, invoiceTable(source)), shop)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := make([]domain.Invoice, 0, 64)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *Store) UpdateInvoice(ctx context.Context, source string, inv domain.Invoice) (*domain.Invoice, error) {
	itemsJSON, err := json.Marshal(inv.Items)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s
		SET items = $2, subtotal_cents = $3, total_cents = $4, total_profit_cents = $5
		WHERE id = $1
	`, invoiceTable(source)), inv.ID, itemsJSON, inv.SubtotalCents, inv.TotalCents, inv.TotalProfitCents)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := inv
	return &updated, nil
}

func (s *Store) DeleteInvoice(ctx context.Context, source string, id string) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, invoiceTable(source)), id)
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

// ArchiveInvoice copies then deletes as two independent statements. A crash
// between them leaves a duplicate, never a lost invoice.
func (s *Store) ArchiveInvoice(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sales_reports (
			id, shop, invoice_number, customer_name, customer_phone, payment_method,
			wallet_number, items, subtotal_cents, total_cents, total_profit_cents, date, created_at
		)
		SELECT id, shop, invoice_number, customer_name, customer_phone, payment_method,
			wallet_number, items, subtotal_cents, total_cents, total_profit_cents, date, created_at
		FROM sales
		WHERE id = $1
		ON CONFLICT (id) DO NOTHING
	`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, lookupErr := s.GetInvoice(ctx, domain.InvoiceSourceArchive, id); lookupErr != nil {
			return store.ErrNotFound
		}
	}

	_, err = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
	return err
}

func (s *Store) CreateExpense(ctx context.Context, exp domain.Expense) (*domain.Expense, error) {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, shop, amount_cents, description, category, date, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, exp.ID, exp.Shop, exp.AmountCents, exp.Description, exp.Category, exp.Date, exp.CreatedAt)
	if err != nil {
		return nil, err
	}
	created := exp
	return &created, nil
}

func (s *Store) ListExpenses(ctx context.Context, source string, shop string) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, shop, amount_cents, description, category, date, created_at
		FROM %s
		WHERE shop = $1
		ORDER BY date DESC, id DESC
	`, expenseTable(source)), shop)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, 64)
	for rows.Next() {
		var exp domain.Expense
		if err := rows.Scan(&exp.ID, &exp.Shop, &exp.AmountCents, &exp.Description, &exp.Category, &exp.Date, &exp.CreatedAt); err != nil {
			return nil, err
		}
		exp.Date = exp.Date.UTC()
		exp.CreatedAt = exp.CreatedAt.UTC()
		expenses = append(expenses, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return expenses, nil
}

func (s *Store) UpdateExpense(ctx context.Context, exp domain.Expense) (*domain.Expense, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE expenses
		SET amount_cents = $2, description = $3, date = $4
		WHERE id = $1
	`, exp.ID, exp.AmountCents, exp.Description, exp.Date)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := exp
	return &updated, nil
}

func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = $1`, id)
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

func (s *Store) ArchiveExpense(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses_reports (id, shop, amount_cents, description, category, date, created_at)
		SELECT id, shop, amount_cents, description, category, date, created_at
		FROM expenses
		WHERE id = $1
		ON CONFLICT (id) DO NOTHING
	`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists bool
		checkErr := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM expenses_reports WHERE id = $1)`, id).Scan(&exists)
		if checkErr != nil {
			return checkErr
		}
		if !exists {
			return store.ErrNotFound
		}
	}

	_, err = s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	return err
}

func (s *Store) FindTabByCustomer(ctx context.Context, shop string, name string, phone string) (*domain.CustomerTab, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, shop, customer_name, customer_phone, total_debt_cents, items, note, date
		FROM customer_tabs
		WHERE shop = $1 AND customer_name = $2 AND customer_phone = $3
	`, shop, name, phone)

	tab, err := scanTab(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return tab, nil
}

func (s *Store) CreateTab(ctx context.Context, tab domain.CustomerTab) (*domain.CustomerTab, error) {
	if tab.Shop == "" || tab.CustomerName == "" {
		return nil, store.ErrInvalidTransaction
	}
	if tab.ID == "" {
		tab.ID = xid.New("tab")
	}
	if tab.Date.IsZero() {
		tab.Date = time.Now().UTC()
	}

	itemsJSON, err := json.Marshal(tab.Items)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO customer_tabs (id, shop, customer_name, customer_phone, total_debt_cents, items, note, date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, tab.ID, tab.Shop, tab.CustomerName, tab.CustomerPhone, tab.TotalDebtCents, itemsJSON, tab.Note, tab.Date)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	created := tab
	return &created, nil
}

func (s *Store) UpdateTab(ctx context.Context, tab domain.CustomerTab) (*domain.CustomerTab, error) {
	itemsJSON, err := json.Marshal(tab.Items)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE customer_tabs
		SET total_debt_cents = $2, items = $3, note = $4
		WHERE id = $1
	`, tab.ID, tab.TotalDebtCents, itemsJSON, tab.Note)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := tab
	return &updated, nil
}

func (s *Store) ListTabs(ctx context.Context, shop string) ([]domain.CustomerTab, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shop, customer_name, customer_phone, total_debt_cents, items, note, date
		FROM customer_tabs
		WHERE shop = $1
		ORDER BY date DESC, id DESC
	`, shop)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tabs := make([]domain.CustomerTab, 0, 32)
	for rows.Next() {
		tab, err := scanTab(rows)
		if err != nil {
			return nil, err
		}
		tabs = append(tabs, *tab)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tabs, nil
}

func (s *Store) GetTab(ctx context.Context, id string) (*domain.CustomerTab, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, shop, customer_name, customer_phone, total_debt_cents, items, note, date
		FROM customer_tabs
		WHERE id = $1
	`, id)

	tab, err := scanTab(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return tab, nil
}

func (s *Store) CreateTabPayment(ctx context.Context, payment domain.TabPayment) (*domain.TabPayment, error) {
	if payment.Shop == "" || payment.TabID == "" || payment.AmountCents < 1 {
		return nil, store.ErrInvalidTransaction
	}
	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	if payment.Date.IsZero() {
		payment.Date = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tab_payments (id, shop, tab_id, amount_cents, date)
		VALUES ($1,$2,$3,$4,$5)
	`, payment.ID, payment.Shop, payment.TabID, payment.AmountCents, payment.Date)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	created := payment
	return &created, nil
}

func (s *Store) ListTabPayments(ctx context.Context, shop string, tabID string) ([]domain.TabPayment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shop, tab_id, amount_cents, date
		FROM tab_payments
		WHERE shop = $1 AND ($2 = '' OR tab_id = $2)
		ORDER BY date DESC, id DESC
	`, shop, tabID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.TabPayment, 0, 16)
	for rows.Next() {
		var p domain.TabPayment
		if err := rows.Scan(&p.ID, &p.Shop, &p.TabID, &p.AmountCents, &p.Date); err != nil {
			return nil, err
		}
		p.Date = p.Date.UTC()
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *Store) DeleteTabPayment(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tab_payments WHERE id = $1`, id)
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

func (s *Store) CreateTreasuryTransaction(ctx context.Context, trx domain.TreasuryTransaction) (*domain.TreasuryTransaction, error) {
	if trx.Shop == "" || trx.AmountCents < 1 {
		return nil, store.ErrInvalidTransaction
	}
	if trx.Type != domain.TreasuryDeposit && trx.Type != domain.TreasuryWithdrawal {
		return nil, store.ErrInvalidTransaction
	}
	if trx.ID == "" {
		trx.ID = xid.New("trs")
	}
	if trx.Date.IsZero() {
		trx.Date = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO treasury_transactions (id, shop, type, amount_cents, description, date)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, trx.ID, trx.Shop, trx.Type, trx.AmountCents, trx.Description, trx.Date)
	if err != nil {
		return nil, err
	}
	created := trx
	return &created, nil
}

func (s *Store) ListTreasuryTransactions(ctx context.Context, shop string) ([]domain.TreasuryTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shop, type, amount_cents, description, date
		FROM treasury_transactions
		WHERE shop = $1
		ORDER BY date DESC, id DESC
	`, shop)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.TreasuryTransaction, 0, 32)
	for rows.Next() {
		var trx domain.TreasuryTransaction
		if err := rows.Scan(&trx.ID, &trx.Shop, &trx.Type, &trx.AmountCents, &trx.Description, &trx.Date); err != nil {
			return nil, err
		}
		trx.Date = trx.Date.UTC()
		result = append(result, trx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, shop, actor_name, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.Shop, entry.ActorName, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, shop string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shop, actor_name, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE shop = $1
			AND created_at >= $2
			AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, shop, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.Shop, &entry.ActorName, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, shop, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, user.Username, user.Password, user.Role, user.Shop, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidTransaction
		}
		return err
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password, role, shop, active, created_at
		FROM app_users
		WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username))).Scan(
		&user.Username, &user.Password, &user.Role, &user.Shop, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, shop, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Shop, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner, p *domain.Product) error {
	if err := row.Scan(&p.ID, &p.Shop, &p.Code, &p.Name, &p.Type, &p.Quantity,
		&p.BuyPriceCents, &p.SellPriceCents, &p.Battery, &p.Storage, &p.Serial,
		&p.HasBox, &p.HasTax, &p.CreatedAt); err != nil {
		return err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return nil
}

func scanInvoice(row rowScanner) (*domain.Invoice, error) {
	var inv domain.Invoice
	var itemsJSON []byte
	if err := row.Scan(&inv.ID, &inv.Shop, &inv.InvoiceNumber, &inv.CustomerName,
		&inv.CustomerPhone, &inv.PaymentMethod, &inv.WalletNumber, &itemsJSON,
		&inv.SubtotalCents, &inv.TotalCents, &inv.TotalProfitCents, &inv.Date, &inv.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(itemsJSON, &inv.Items); err != nil {
		return nil, err
	}
	inv.Date = inv.Date.UTC()
	inv.CreatedAt = inv.CreatedAt.UTC()
	return &inv, nil
}

func scanTab(row rowScanner) (*domain.CustomerTab, error) {
	var tab domain.CustomerTab
	var itemsJSON []byte
	if err := row.Scan(&tab.ID, &tab.Shop, &tab.CustomerName, &tab.CustomerPhone,
		&tab.TotalDebtCents, &itemsJSON, &tab.Note, &tab.Date); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(itemsJSON, &tab.Items); err != nil {
		return nil, err
	}
	tab.Date = tab.Date.UTC()
	return &tab, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
