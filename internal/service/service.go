package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"screena/backend/internal/cache"
	"screena/backend/internal/domain"
	"screena/backend/internal/store"
	"screena/backend/internal/xid"
)

type sessionContextKey struct{}

func WithSession(ctx context.Context, session domain.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, session)
}

func SessionFromContext(ctx context.Context) (domain.Session, bool) {
	session, ok := ctx.Value(sessionContextKey{}).(domain.Session)
	return session, ok
}

type Service struct {
	repo        store.Repository
	stats       cache.StatsCache
	statsTTL    time.Duration
	defaultShop string
}

func New(repo store.Repository, stats cache.StatsCache, defaultShop string, statsTTL time.Duration) *Service {
	if defaultShop == "" {
		defaultShop = "main-branch"
	}
	if stats == nil {
		stats = cache.NoopStatsCache{}
	}
	if statsTTL <= 0 {
		statsTTL = 30 * time.Second
	}

	return &Service{
		repo:        repo,
		stats:       stats,
		statsTTL:    statsTTL,
		defaultShop: defaultShop,
	}
}

func (s *Service) shopFromContext(ctx context.Context) string {
	if session, ok := SessionFromContext(ctx); ok && session.Shop != "" {
		return session.Shop
	}
	return s.defaultShop
}

// SearchProducts filters the shop's catalog by exact code or name fragment.
// An empty query returns the full catalog.
func (s *Service) SearchProducts(ctx context.Context, query string) ([]domain.Product, error) {
	products, err := s.repo.ListProducts(ctx, s.shopFromContext(ctx))
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return products, nil
	}

	code, codeErr := strconv.Atoi(query)
	needle := strings.ToLower(query)
	matched := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if codeErr == nil && p.Code == code {
			matched = append(matched, p)
			continue
		}
		if strings.Contains(strings.ToLower(p.Name), needle) {
			matched = append(matched, p)
		}
	}
	return matched, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, s.shopFromContext(ctx))
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) NextProductCode(ctx context.Context) (int, error) {
	return s.repo.NextProductCode(ctx, s.shopFromContext(ctx))
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	shop := s.shopFromContext(ctx)

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Product{}, fmt.Errorf("product name is required")
	}
	if req.Type != domain.ProductTypePhone && req.Type != domain.ProductTypeAccessory {
		return domain.Product{}, fmt.Errorf("unsupported product type %q", req.Type)
	}
	if req.Quantity < 1 {
		return domain.Product{}, fmt.Errorf("quantity must be at least 1")
	}
	if req.BuyPriceCents < 0 || req.SellPriceCents < 0 {
		return domain.Product{}, fmt.Errorf("prices must not be negative")
	}

	product := domain.Product{
		Shop:           shop,
		Name:           req.Name,
		Type:           req.Type,
		Quantity:       req.Quantity,
		BuyPriceCents:  req.BuyPriceCents,
		SellPriceCents: req.SellPriceCents,
	}
	if req.Type == domain.ProductTypePhone {
		product.Battery = strings.TrimSpace(req.Battery)
		product.Storage = strings.TrimSpace(req.Storage)
		product.Serial = strings.TrimSpace(req.Serial)
		product.HasBox = req.HasBox
		product.HasTax = req.HasTax
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, shop, "product_create", "product", created.ID, fmt.Sprintf("code=%d,name=%s,qty=%d", created.Code, created.Name, created.Quantity))
	return *created, nil
}

// UpdateProduct applies a partial update. Dropping the quantity to zero or
// below removes the product entirely; zero stock is never kept on record.
func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, fmt.Errorf("product name is required")
		}
		updated.Name = name
	}
	if req.Quantity != nil {
		updated.Quantity = *req.Quantity
	}
	if req.BuyPriceCents != nil {
		if *req.BuyPriceCents < 0 {
			return domain.Product{}, fmt.Errorf("prices must not be negative")
		}
		updated.BuyPriceCents = *req.BuyPriceCents
	}
	if req.SellPriceCents != nil {
		if *req.SellPriceCents < 0 {
			return domain.Product{}, fmt.Errorf("prices must not be negative")
		}
		updated.SellPriceCents = *req.SellPriceCents
	}
	if req.Battery != nil {
		updated.Battery = strings.TrimSpace(*req.Battery)
	}
	if req.Storage != nil {
		updated.Storage = strings.TrimSpace(*req.Storage)
	}
	if req.Serial != nil {
		updated.Serial = strings.TrimSpace(*req.Serial)
	}
	if req.HasBox != nil {
		updated.HasBox = *req.HasBox
	}
	if req.HasTax != nil {
		updated.HasTax = *req.HasTax
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	detail := fmt.Sprintf("code=%d,qty=%d", saved.Code, saved.Quantity)
	if saved.Quantity == 0 {
		detail += ",removed=true"
	}
	s.logAudit(ctx, existing.Shop, "product_update", "product", id, detail)
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, existing.Shop, "product_delete", "product", id, fmt.Sprintf("code=%d,name=%s", existing.Code, existing.Name))
	return nil
}

func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	shop := s.shopFromContext(ctx)

	if req.PaymentMethod == "" {
		req.PaymentMethod = domain.PaymentMethodCash
	}
	if req.PaymentMethod != domain.PaymentMethodCash && req.PaymentMethod != domain.PaymentMethodWallet {
		return domain.CheckoutResponse{}, fmt.Errorf("unsupported payment method %q", req.PaymentMethod)
	}
	if req.PaymentMethod == domain.PaymentMethodWallet && strings.TrimSpace(req.WalletNumber) == "" {
		return domain.CheckoutResponse{}, fmt.Errorf("wallet number is required for wallet payments")
	}

	lines := aggregateCartLines(req.Lines)
	if len(lines) == 0 {
		return domain.CheckoutResponse{}, fmt.Errorf("cart is empty")
	}

	items := make([]domain.InvoiceLine, 0, len(lines))
	subtotal := int64(0)
	totalProfit := int64(0)
	for _, line := range lines {
		if line.Quantity < 1 {
			return domain.CheckoutResponse{}, fmt.Errorf("quantity must be at least 1")
		}
		if line.ItemDiscountCents < 0 {
			return domain.CheckoutResponse{}, fmt.Errorf("discount must not be negative")
		}

		product, err := s.repo.GetProductByID(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.CheckoutResponse{}, fmt.Errorf("product %s unavailable", line.ProductID)
			}
			return domain.CheckoutResponse{}, err
		}
		if product.Shop != shop {
			return domain.CheckoutResponse{}, store.ErrNotFound
		}
		if line.Quantity > product.Quantity {
			return domain.CheckoutResponse{}, store.ErrInsufficientStock
		}
		if line.ItemDiscountCents > product.SellPriceCents {
			return domain.CheckoutResponse{}, fmt.Errorf("discount exceeds unit price for %s", product.Name)
		}

		finalPrice := product.SellPriceCents - line.ItemDiscountCents
		totalPrice := finalPrice * int64(line.Quantity)
		profit := (finalPrice - product.BuyPriceCents) * int64(line.Quantity)

		items = append(items, domain.InvoiceLine{
			ProductID:         product.ID,
			ProductCode:       product.Code,
			ProductName:       product.Name,
			Type:              product.Type,
			Quantity:          line.Quantity,
			UnitPriceCents:    product.SellPriceCents,
			ItemDiscountCents: line.ItemDiscountCents,
			FinalPriceCents:   finalPrice,
			TotalPriceCents:   totalPrice,
			BuyPriceCents:     product.BuyPriceCents,
			ProfitCents:       profit,
			Battery:           product.Battery,
			Storage:           product.Storage,
			Serial:            product.Serial,
			HasBox:            product.HasBox,
			HasTax:            product.HasTax,
		})
		subtotal += totalPrice
		totalProfit += profit
	}

	invoice := domain.Invoice{
		Shop:             shop,
		CustomerName:     strings.TrimSpace(req.CustomerName),
		CustomerPhone:    strings.TrimSpace(req.CustomerPhone),
		PaymentMethod:    req.PaymentMethod,
		WalletNumber:     strings.TrimSpace(req.WalletNumber),
		Items:            items,
		SubtotalCents:    subtotal,
		TotalCents:       subtotal,
		TotalProfitCents: totalProfit,
	}

	created, err := s.repo.CreateInvoice(ctx, invoice)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	// Stock decrements follow the persisted invoice as independent writes. A
	// failed decrement is reported, never rolled back.
	stockErrors := make([]string, 0)
	for _, item := range created.Items {
		if _, err := s.repo.AdjustProductQuantity(ctx, item.ProductID, -item.Quantity); err != nil {
			log.Printf("[service] WARN: stock decrement failed invoice=%d product=%s: %v", created.InvoiceNumber, item.ProductID, err)
			stockErrors = append(stockErrors, fmt.Sprintf("%s: %v", item.ProductName, err))
		}
	}

	s.invalidateStats(ctx, shop)
	s.logAudit(ctx, shop, "checkout", "invoice", created.ID, fmt.Sprintf("number=%d,total=%d,lines=%d", created.InvoiceNumber, created.TotalCents, len(created.Items)))

	return domain.CheckoutResponse{Invoice: *created, StockErrors: stockErrors}, nil
}

func (s *Service) ListInvoices(ctx context.Context, source string) ([]domain.Invoice, error) {
	source, err := normalizeSource(source)
	if err != nil {
		return nil, err
	}
	return s.repo.ListInvoices(ctx, source, s.shopFromContext(ctx))
}

func (s *Service) GetInvoice(ctx context.Context, source string, id string) (domain.Invoice, error) {
	source, err := normalizeSource(source)
	if err != nil {
		return domain.Invoice{}, err
	}
	inv, err := s.repo.GetInvoice(ctx, source, id)
	if err != nil {
		return domain.Invoice{}, err
	}
	return *inv, nil
}

// ReturnLine processes a full or partial return of one invoice line. Phones
// require an operator-entered return value; accessories refund at the sold
// price. Compensating expense entries carry the refund into the day's books.
func (s *Service) ReturnLine(ctx context.Context, req domain.ReturnLineRequest) (domain.ReturnLineResponse, error) {
	shop := s.shopFromContext(ctx)

	source, err := normalizeSource(req.Source)
	if err != nil {
		return domain.ReturnLineResponse{}, err
	}

	invoice, err := s.repo.GetInvoice(ctx, source, req.InvoiceID)
	if err != nil {
		return domain.ReturnLineResponse{}, err
	}
	if invoice.Shop != shop {
		return domain.ReturnLineResponse{}, store.ErrNotFound
	}

	lineIdx := -1
	for i, item := range invoice.Items {
		if item.ProductID == req.ProductID {
			lineIdx = i
			break
		}
	}
	if lineIdx < 0 {
		return domain.ReturnLineResponse{}, store.ErrNotFound
	}
	line := invoice.Items[lineIdx]

	if req.ReturnQuantity < 1 || req.ReturnQuantity > line.Quantity {
		return domain.ReturnLineResponse{}, fmt.Errorf("return quantity must be between 1 and %d", line.Quantity)
	}

	isPhone := line.Type == domain.ProductTypePhone
	if isPhone && req.ReturnValueCents < 1 {
		return domain.ReturnLineResponse{}, fmt.Errorf("return value is required for phone returns")
	}

	sellTotal := line.FinalPriceCents * int64(req.ReturnQuantity)
	var refundAmount, refundProfit int64
	if isPhone {
		refundAmount = req.ReturnValueCents
		refundProfit = sellTotal - req.ReturnValueCents
		if refundProfit < 0 {
			refundProfit = 0
		}
	} else {
		refundAmount = sellTotal
		if line.Quantity > 0 {
			refundProfit = line.ProfitCents / int64(line.Quantity) * int64(req.ReturnQuantity)
		}
	}

	// Restock first. A product deleted at sell-out is recreated from the line
	// snapshot, keeping its original code.
	restocked := req.ReturnQuantity
	if _, err := s.repo.AdjustProductQuantity(ctx, line.ProductID, req.ReturnQuantity); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return domain.ReturnLineResponse{}, err
		}
		recreated := domain.Product{
			ID:             line.ProductID,
			Shop:           shop,
			Code:           line.ProductCode,
			Name:           line.ProductName,
			Type:           line.Type,
			Quantity:       req.ReturnQuantity,
			BuyPriceCents:  line.BuyPriceCents,
			SellPriceCents: line.UnitPriceCents,
			Battery:        line.Battery,
			Storage:        line.Storage,
			Serial:         line.Serial,
			HasBox:         line.HasBox,
			HasTax:         line.HasTax,
		}
		if _, err := s.repo.CreateProduct(ctx, recreated); err != nil {
			return domain.ReturnLineResponse{}, err
		}
	}

	resp := domain.ReturnLineResponse{RestockedQty: restocked}

	if req.ReturnQuantity == line.Quantity {
		invoice.Items = append(invoice.Items[:lineIdx], invoice.Items[lineIdx+1:]...)
	} else {
		remaining := line.Quantity - req.ReturnQuantity
		line.Quantity = remaining
		line.TotalPriceCents = line.FinalPriceCents * int64(remaining)
		line.ProfitCents -= refundProfit
		invoice.Items[lineIdx] = line
	}

	if len(invoice.Items) == 0 {
		if err := s.repo.DeleteInvoice(ctx, source, invoice.ID); err != nil {
			return domain.ReturnLineResponse{}, err
		}
		resp.InvoiceDeleted = true
	} else {
		subtotal := int64(0)
		totalProfit := int64(0)
		for _, item := range invoice.Items {
			subtotal += item.TotalPriceCents
			totalProfit += item.ProfitCents
		}
		invoice.SubtotalCents = subtotal
		invoice.TotalCents = subtotal
		invoice.TotalProfitCents = totalProfit
		updated, err := s.repo.UpdateInvoice(ctx, source, *invoice)
		if err != nil {
			return domain.ReturnLineResponse{}, err
		}
		resp.Invoice = updated
	}

	description := "مرتجع - " + line.ProductName
	amountExpense, err := s.repo.CreateExpense(ctx, domain.Expense{
		Shop:        shop,
		AmountCents: refundAmount,
		Description: description,
		Category:    domain.ExpenseCategoryReturnAmount,
	})
	if err != nil {
		return domain.ReturnLineResponse{}, err
	}
	resp.AmountExpense = *amountExpense

	if refundProfit > 0 {
		profitExpense, err := s.repo.CreateExpense(ctx, domain.Expense{
			Shop:        shop,
			AmountCents: refundProfit,
			Description: description,
			Category:    domain.ExpenseCategoryReturnProfit,
		})
		if err != nil {
			return domain.ReturnLineResponse{}, err
		}
		resp.ProfitExpense = profitExpense
	}

	s.invalidateStats(ctx, shop)
	s.logAudit(ctx, shop, "return_line", "invoice", invoice.ID, fmt.Sprintf("product=%s,qty=%d,amount=%d,profit=%d", line.ProductID, req.ReturnQuantity, refundAmount, refundProfit))

	return resp, nil
}

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	shop := s.shopFromContext(ctx)

	req.Description = strings.TrimSpace(req.Description)
	if req.Description == "" {
		return domain.Expense{}, fmt.Errorf("description is required")
	}
	if req.AmountCents < 1 {
		return domain.Expense{}, fmt.Errorf("amount must be at least 1")
	}

	expense := domain.Expense{
		Shop:        shop,
		AmountCents: req.AmountCents,
		Description: req.Description,
		Category:    domain.ExpenseCategoryOperating,
	}
	if req.Date != "" {
		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			return domain.Expense{}, fmt.Errorf("invalid date format, expected YYYY-MM-DD")
		}
		expense.Date = date.UTC()
	}

	created, err := s.repo.CreateExpense(ctx, expense)
	if err != nil {
		return domain.Expense{}, err
	}

	s.invalidateStats(ctx, shop)
	s.logAudit(ctx, shop, "expense_create", "expense", created.ID, fmt.Sprintf("amount=%d", created.AmountCents))
	return *created, nil
}

func (s *Service) UpdateExpense(ctx context.Context, id string, req domain.ExpenseUpdateRequest) (domain.Expense, error) {
	shop := s.shopFromContext(ctx)

	expenses, err := s.repo.ListExpenses(ctx, domain.InvoiceSourceLive, shop)
	if err != nil {
		return domain.Expense{}, err
	}
	var existing *domain.Expense
	for i := range expenses {
		if expenses[i].ID == id {
			existing = &expenses[i]
			break
		}
	}
	if existing == nil {
		return domain.Expense{}, store.ErrNotFound
	}
	if existing.Category != domain.ExpenseCategoryOperating {
		return domain.Expense{}, fmt.Errorf("return entries cannot be edited")
	}

	updated := *existing
	if req.AmountCents != nil {
		if *req.AmountCents < 1 {
			return domain.Expense{}, fmt.Errorf("amount must be at least 1")
		}
		updated.AmountCents = *req.AmountCents
	}
	if req.Description != nil {
		description := strings.TrimSpace(*req.Description)
		if description == "" {
			return domain.Expense{}, fmt.Errorf("description is required")
		}
		updated.Description = description
	}
	if req.Date != nil {
		date, err := time.Parse("2006-01-02", *req.Date)
		if err != nil {
			return domain.Expense{}, fmt.Errorf("invalid date format, expected YYYY-MM-DD")
		}
		updated.Date = date.UTC()
	}

	saved, err := s.repo.UpdateExpense(ctx, updated)
	if err != nil {
		return domain.Expense{}, err
	}

	s.invalidateStats(ctx, shop)
	s.logAudit(ctx, shop, "expense_update", "expense", id, fmt.Sprintf("amount=%d", saved.AmountCents))
	return *saved, nil
}

func (s *Service) DeleteExpense(ctx context.Context, id string) error {
	shop := s.shopFromContext(ctx)
	if err := s.repo.DeleteExpense(ctx, id); err != nil {
		return err
	}
	s.invalidateStats(ctx, shop)
	s.logAudit(ctx, shop, "expense_delete", "expense", id, "")
	return nil
}

func (s *Service) ListExpenses(ctx context.Context, source string) ([]domain.Expense, error) {
	source, err := normalizeSource(source)
	if err != nil {
		return nil, err
	}
	return s.repo.ListExpenses(ctx, source, s.shopFromContext(ctx))
}

// CloseShift moves the day's live invoices and expenses into the archives.
// Each record is archived independently; a mid-run failure leaves the
// remainder live for the next close.
func (s *Service) CloseShift(ctx context.Context, asOf time.Time) (domain.ShiftCloseResponse, error) {
	shop := s.shopFromContext(ctx)

	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	dayStart := startOfDayUTC(asOf)
	dayEnd := dayStart.AddDate(0, 0, 1)

	resp := domain.ShiftCloseResponse{}

	invoices, err := s.repo.ListInvoices(ctx, domain.InvoiceSourceLive, shop)
	if err != nil {
		return resp, err
	}
	for _, inv := range invoices {
		if inv.Date.Before(dayStart) || !inv.Date.Before(dayEnd) {
			continue
		}
		if err := s.repo.ArchiveInvoice(ctx, inv.ID); err != nil {
			log.Printf("[service] WARN: failed to archive invoice %s: %v", inv.ID, err)
			continue
		}
		resp.InvoicesMoved++
	}

	expenses, err := s.repo.ListExpenses(ctx, domain.InvoiceSourceLive, shop)
	if err != nil {
		return resp, err
	}
	for _, exp := range expenses {
		if exp.Date.Before(dayStart) || !exp.Date.Before(dayEnd) {
			continue
		}
		if err := s.repo.ArchiveExpense(ctx, exp.ID); err != nil {
			log.Printf("[service] WARN: failed to archive expense %s: %v", exp.ID, err)
			continue
		}
		resp.ExpensesMoved++
	}

	s.invalidateStats(ctx, shop)
	s.logAudit(ctx, shop, "shift_close", "shift", dayStart.Format("2006-01-02"), fmt.Sprintf("invoices=%d,expenses=%d", resp.InvoicesMoved, resp.ExpensesMoved))

	return resp, nil
}

// ShiftReport summarizes one archived day. paymentMethod filters invoices
// ("" or "all" keeps everything); expenses are never filtered.
func (s *Service) ShiftReport(ctx context.Context, date string, paymentMethod string) (domain.ShiftReport, error) {
	shop := s.shopFromContext(ctx)

	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return domain.ShiftReport{}, fmt.Errorf("invalid date format, expected YYYY-MM-DD")
	}
	dayStart := startOfDayUTC(day)
	dayEnd := dayStart.AddDate(0, 0, 1)

	if paymentMethod != "" && paymentMethod != "all" &&
		paymentMethod != domain.PaymentMethodCash && paymentMethod != domain.PaymentMethodWallet {
		return domain.ShiftReport{}, fmt.Errorf("unsupported payment method %q", paymentMethod)
	}

	report := domain.ShiftReport{
		Shop:     shop,
		Date:     dayStart.Format("2006-01-02"),
		Invoices: make([]domain.Invoice, 0, 32),
		Expenses: make([]domain.Expense, 0, 16),
	}

	invoices, err := s.repo.ListInvoices(ctx, domain.InvoiceSourceArchive, shop)
	if err != nil {
		return report, err
	}
	for _, inv := range invoices {
		if inv.Date.Before(dayStart) || !inv.Date.Before(dayEnd) {
			continue
		}
		if paymentMethod != "" && paymentMethod != "all" && inv.PaymentMethod != paymentMethod {
			continue
		}
		report.Invoices = append(report.Invoices, inv)
		report.GrossSalesCents += inv.TotalCents
		report.GrossProfitCents += inv.TotalProfitCents
	}

	expenses, err := s.repo.ListExpenses(ctx, domain.InvoiceSourceArchive, shop)
	if err != nil {
		return report, err
	}
	for _, exp := range expenses {
		if exp.Date.Before(dayStart) || !exp.Date.Before(dayEnd) {
			continue
		}
		report.Expenses = append(report.Expenses, exp)
		report.ExpenseCents += exp.AmountCents
	}

	report.NetSalesCents = report.GrossSalesCents - report.ExpenseCents
	report.NetProfitCents = report.GrossProfitCents - report.ExpenseCents

	return report, nil
}

// AddToTab opens or extends a customer tab. Debt accrues at buy price, and
// every tab line is also entered into the catalog as a sellable product.
func (s *Service) AddToTab(ctx context.Context, req domain.TabAddRequest) (domain.TabSummary, error) {
	shop := s.shopFromContext(ctx)

	name := strings.TrimSpace(req.CustomerName)
	phone := strings.TrimSpace(req.CustomerPhone)
	if name == "" {
		return domain.TabSummary{}, fmt.Errorf("customer name is required")
	}
	if len(req.Lines) == 0 {
		return domain.TabSummary{}, fmt.Errorf("at least one line is required")
	}

	lines := make([]domain.TabLine, 0, len(req.Lines))
	lineTotal := int64(0)
	for _, line := range req.Lines {
		line.Name = strings.TrimSpace(line.Name)
		if line.Name == "" {
			return domain.TabSummary{}, fmt.Errorf("line name is required")
		}
		if line.Type != domain.ProductTypePhone && line.Type != domain.ProductTypeAccessory {
			return domain.TabSummary{}, fmt.Errorf("unsupported product type %q", line.Type)
		}
		if line.Quantity < 1 {
			return domain.TabSummary{}, fmt.Errorf("quantity must be at least 1")
		}
		if line.BuyPriceCents < 0 || line.SellPriceCents < 0 {
			return domain.TabSummary{}, fmt.Errorf("prices must not be negative")
		}
		lines = append(lines, line)
		lineTotal += line.BuyPriceCents * int64(line.Quantity)
	}

	note := strings.TrimSpace(req.Note)

	var tab *domain.CustomerTab
	existing, err := s.repo.FindTabByCustomer(ctx, shop, name, phone)
	switch {
	case err == nil:
		existing.Items = append(existing.Items, lines...)
		existing.TotalDebtCents += lineTotal
		if note != "" {
			if existing.Note != "" {
				existing.Note += " | "
			}
			existing.Note += note
		}
		tab, err = s.repo.UpdateTab(ctx, *existing)
		if err != nil {
			return domain.TabSummary{}, err
		}
	case errors.Is(err, store.ErrNotFound):
		tab, err = s.repo.CreateTab(ctx, domain.CustomerTab{
			Shop:           shop,
			CustomerName:   name,
			CustomerPhone:  phone,
			TotalDebtCents: lineTotal,
			Items:          lines,
			Note:           note,
		})
		if err != nil {
			return domain.TabSummary{}, err
		}
	default:
		return domain.TabSummary{}, err
	}

	// Tab goods go straight on the shelf; each line becomes a catalog product
	// with the next sequential code.
	for _, line := range lines {
		product := domain.Product{
			Shop:           shop,
			Name:           line.Name,
			Type:           line.Type,
			Quantity:       line.Quantity,
			BuyPriceCents:  line.BuyPriceCents,
			SellPriceCents: line.SellPriceCents,
		}
		if _, err := s.repo.CreateProduct(ctx, product); err != nil {
			log.Printf("[service] WARN: failed to add tab line to catalog tab=%s name=%s: %v", tab.ID, line.Name, err)
		}
	}

	s.logAudit(ctx, shop, "tab_add", "tab", tab.ID, fmt.Sprintf("customer=%s,lines=%d,debt=%d", name, len(lines), lineTotal))

	return s.tabSummary(ctx, shop, *tab)
}

func (s *Service) ListTabs(ctx context.Context) ([]domain.TabSummary, error) {
	shop := s.shopFromContext(ctx)

	tabs, err := s.repo.ListTabs(ctx, shop)
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.TabSummary, 0, len(tabs))
	for _, tab := range tabs {
		summary, err := s.tabSummary(ctx, shop, tab)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *Service) GetTab(ctx context.Context, id string) (domain.TabSummary, error) {
	shop := s.shopFromContext(ctx)

	tab, err := s.repo.GetTab(ctx, id)
	if err != nil {
		return domain.TabSummary{}, err
	}
	if tab.Shop != shop {
		return domain.TabSummary{}, store.ErrNotFound
	}
	return s.tabSummary(ctx, shop, *tab)
}

func (s *Service) tabSummary(ctx context.Context, shop string, tab domain.CustomerTab) (domain.TabSummary, error) {
	payments, err := s.repo.ListTabPayments(ctx, shop, tab.ID)
	if err != nil {
		return domain.TabSummary{}, err
	}

	paid := int64(0)
	for _, p := range payments {
		paid += p.AmountCents
	}
	remaining := tab.TotalDebtCents - paid
	if remaining < 0 {
		remaining = 0
	}

	return domain.TabSummary{Tab: tab, PaidCents: paid, RemainingCents: remaining}, nil
}

func (s *Service) RecordTabPayment(ctx context.Context, req domain.TabPaymentRequest) (domain.TabPayment, error) {
	shop := s.shopFromContext(ctx)

	if req.AmountCents < 1 {
		return domain.TabPayment{}, fmt.Errorf("payment amount must be at least 1")
	}

	tab, err := s.repo.GetTab(ctx, req.TabID)
	if err != nil {
		return domain.TabPayment{}, err
	}
	if tab.Shop != shop {
		return domain.TabPayment{}, store.ErrNotFound
	}

	summary, err := s.tabSummary(ctx, shop, *tab)
	if err != nil {
		return domain.TabPayment{}, err
	}
	if req.AmountCents > summary.RemainingCents {
		return domain.TabPayment{}, fmt.Errorf("payment exceeds remaining debt of %d", summary.RemainingCents)
	}

	payment, err := s.repo.CreateTabPayment(ctx, domain.TabPayment{
		Shop:        shop,
		TabID:       req.TabID,
		AmountCents: req.AmountCents,
	})
	if err != nil {
		return domain.TabPayment{}, err
	}

	s.logAudit(ctx, shop, "tab_payment", "tab", req.TabID, fmt.Sprintf("amount=%d", req.AmountCents))
	return *payment, nil
}

func (s *Service) ListTabPayments(ctx context.Context, tabID string) ([]domain.TabPayment, error) {
	return s.repo.ListTabPayments(ctx, s.shopFromContext(ctx), tabID)
}

func (s *Service) DeleteTabPayment(ctx context.Context, id string) error {
	shop := s.shopFromContext(ctx)
	if err := s.repo.DeleteTabPayment(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, shop, "tab_payment_delete", "tab_payment", id, "")
	return nil
}

func (s *Service) RecordTreasuryTransaction(ctx context.Context, req domain.TreasuryRequest) (domain.TreasuryTransaction, error) {
	shop := s.shopFromContext(ctx)

	if req.Type != domain.TreasuryDeposit && req.Type != domain.TreasuryWithdrawal {
		return domain.TreasuryTransaction{}, fmt.Errorf("unsupported treasury type %q", req.Type)
	}
	if req.AmountCents < 1 {
		return domain.TreasuryTransaction{}, fmt.Errorf("amount must be at least 1")
	}

	created, err := s.repo.CreateTreasuryTransaction(ctx, domain.TreasuryTransaction{
		Shop:        shop,
		Type:        req.Type,
		AmountCents: req.AmountCents,
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		return domain.TreasuryTransaction{}, err
	}

	s.invalidateStats(ctx, shop)
	s.logAudit(ctx, shop, "treasury_"+req.Type, "treasury", created.ID, fmt.Sprintf("amount=%d", created.AmountCents))
	return *created, nil
}

func (s *Service) ListTreasuryTransactions(ctx context.Context) ([]domain.TreasuryTransaction, error) {
	return s.repo.ListTreasuryTransactions(ctx, s.shopFromContext(ctx))
}

func (s *Service) TreasuryBalance(ctx context.Context) (int64, error) {
	transactions, err := s.repo.ListTreasuryTransactions(ctx, s.shopFromContext(ctx))
	if err != nil {
		return 0, err
	}
	return treasuryBalance(transactions), nil
}

// DashboardStats aggregates the live day. Net sales subtract operating and
// return-amount expenses; net profit subtracts operating and return-profit
// expenses. Results are cached per shop with a short TTL.
func (s *Service) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	shop := s.shopFromContext(ctx)
	cacheKey := "stats:" + shop

	if cached, found, err := s.stats.Get(ctx, cacheKey); err == nil && found {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: stats cache read failed shop=%s: %v", shop, err)
	}

	stats := domain.DashboardStats{Shop: shop}

	invoices, err := s.repo.ListInvoices(ctx, domain.InvoiceSourceLive, shop)
	if err != nil {
		return stats, err
	}
	for _, inv := range invoices {
		stats.GrossSalesCents += inv.TotalCents
		stats.GrossProfitCents += inv.TotalProfitCents
	}

	expenses, err := s.repo.ListExpenses(ctx, domain.InvoiceSourceLive, shop)
	if err != nil {
		return stats, err
	}
	var salesDeduction, profitDeduction int64
	for _, exp := range expenses {
		stats.TotalExpenseCents += exp.AmountCents
		switch exp.Category {
		case domain.ExpenseCategoryReturnAmount:
			salesDeduction += exp.AmountCents
		case domain.ExpenseCategoryReturnProfit:
			profitDeduction += exp.AmountCents
		default:
			salesDeduction += exp.AmountCents
			profitDeduction += exp.AmountCents
		}
	}
	stats.NetSalesCents = stats.GrossSalesCents - salesDeduction
	stats.NetProfitCents = stats.GrossProfitCents - profitDeduction

	transactions, err := s.repo.ListTreasuryTransactions(ctx, shop)
	if err != nil {
		return stats, err
	}
	stats.TreasuryBalanceCents = treasuryBalance(transactions)

	if err := s.stats.Set(ctx, cacheKey, &stats, s.statsTTL); err != nil {
		log.Printf("[service] WARN: stats cache write failed shop=%s: %v", shop, err)
	}

	return stats, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	shop := s.shopFromContext(ctx)

	day := time.Now().UTC()
	if date != "" {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("invalid date format, expected YYYY-MM-DD")
		}
		day = parsed
	}
	from := startOfDayUTC(day)
	to := from.AddDate(0, 0, 1)

	if limit < 1 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, shop, from, to, limit)
}

func (s *Service) invalidateStats(ctx context.Context, shop string) {
	if err := s.stats.Delete(ctx, "stats:"+shop); err != nil {
		log.Printf("[service] WARN: stats cache invalidation failed shop=%s: %v", shop, err)
	}
}

func (s *Service) logAudit(ctx context.Context, shop string, action string, entityType string, entityID string, detail string) {
	if shop == "" {
		shop = s.defaultShop
	}

	session, ok := SessionFromContext(ctx)
	if !ok {
		session = domain.Session{UserName: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New("audit"),
		Shop:       shop,
		ActorName:  session.UserName,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

// aggregateCartLines merges duplicate product lines, summing quantities and
// keeping the first discount seen.
func aggregateCartLines(lines []domain.CartLine) []domain.CartLine {
	merged := make([]domain.CartLine, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, line := range lines {
		if line.ProductID == "" {
			continue
		}
		if i, seen := index[line.ProductID]; seen {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(merged)
		merged = append(merged, line)
	}
	return merged
}

func normalizeSource(source string) (string, error) {
	switch source {
	case "", domain.InvoiceSourceLive:
		return domain.InvoiceSourceLive, nil
	case domain.InvoiceSourceArchive:
		return domain.InvoiceSourceArchive, nil
	default:
		return "", fmt.Errorf("unsupported source %q", source)
	}
}

func treasuryBalance(transactions []domain.TreasuryTransaction) int64 {
	balance := int64(0)
	for _, trx := range transactions {
		switch trx.Type {
		case domain.TreasuryDeposit:
			balance += trx.AmountCents
		case domain.TreasuryWithdrawal:
			balance -= trx.AmountCents
		}
	}
	return balance
}

func startOfDayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
