package domain

import "time"

type Product struct {
	ID             string    `json:"id"`
	Shop           string    `json:"shop"`
	Code           int       `json:"code"`
	Name           string    `json:"name"`
	Type           string    `json:"type"`
	Quantity       int       `json:"quantity"`
	BuyPriceCents  int64     `json:"buy_price_cents"`
	SellPriceCents int64     `json:"sell_price_cents"`
	Battery        string    `json:"battery,omitempty"`
	Storage        string    `json:"storage,omitempty"`
	Serial         string    `json:"serial,omitempty"`
	HasBox         bool      `json:"has_box,omitempty"`
	HasTax         bool      `json:"has_tax,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	Name           string `json:"name"`
	Type           string `json:"type"`
	Quantity       int    `json:"quantity"`
	BuyPriceCents  int64  `json:"buy_price_cents"`
	SellPriceCents int64  `json:"sell_price_cents"`
	Battery        string `json:"battery,omitempty"`
	Storage        string `json:"storage,omitempty"`
	Serial         string `json:"serial,omitempty"`
	HasBox         bool   `json:"has_box,omitempty"`
	HasTax         bool   `json:"has_tax,omitempty"`
}

type ProductUpdateRequest struct {
	Name           *string `json:"name,omitempty"`
	Quantity       *int    `json:"quantity,omitempty"`
	BuyPriceCents  *int64  `json:"buy_price_cents,omitempty"`
	SellPriceCents *int64  `json:"sell_price_cents,omitempty"`
	Battery        *string `json:"battery,omitempty"`
	Storage        *string `json:"storage,omitempty"`
	Serial         *string `json:"serial,omitempty"`
	HasBox         *bool   `json:"has_box,omitempty"`
	HasTax         *bool   `json:"has_tax,omitempty"`
}

type CartLine struct {
	ProductID         string `json:"product_id"`
	Quantity          int    `json:"quantity"`
	ItemDiscountCents int64  `json:"item_discount_cents"`
}

type InvoiceLine struct {
	ProductID         string `json:"product_id"`
	ProductCode       int    `json:"product_code"`
	ProductName       string `json:"product_name"`
	Type              string `json:"type"`
	Quantity          int    `json:"quantity"`
	UnitPriceCents    int64  `json:"unit_price_cents"`
	ItemDiscountCents int64  `json:"item_discount_cents"`
	FinalPriceCents   int64  `json:"final_price_cents"`
	TotalPriceCents   int64  `json:"total_price_cents"`
	BuyPriceCents     int64  `json:"buy_price_cents"`
	ProfitCents       int64  `json:"profit_cents"`
	Battery           string `json:"battery,omitempty"`
	Storage           string `json:"storage,omitempty"`
	Serial            string `json:"serial,omitempty"`
	HasBox            bool   `json:"has_box,omitempty"`
	HasTax            bool   `json:"has_tax,omitempty"`
}

type Invoice struct {
	ID               string        `json:"id"`
	Shop             string        `json:"shop"`
	InvoiceNumber    int           `json:"invoice_number"`
	CustomerName     string        `json:"customer_name,omitempty"`
	CustomerPhone    string        `json:"customer_phone,omitempty"`
	PaymentMethod    string        `json:"payment_method"`
	WalletNumber     string        `json:"wallet_number,omitempty"`
	Items            []InvoiceLine `json:"items"`
	SubtotalCents    int64         `json:"subtotal_cents"`
	TotalCents       int64         `json:"total_cents"`
	TotalProfitCents int64         `json:"total_profit_cents"`
	Date             time.Time     `json:"date"`
	CreatedAt        time.Time     `json:"created_at"`
}

type CheckoutRequest struct {
	Lines         []CartLine `json:"lines"`
	CustomerName  string     `json:"customer_name,omitempty"`
	CustomerPhone string     `json:"customer_phone,omitempty"`
	PaymentMethod string     `json:"payment_method"`
	WalletNumber  string     `json:"wallet_number,omitempty"`
}

type CheckoutResponse struct {
	Invoice     Invoice  `json:"invoice"`
	StockErrors []string `json:"stock_errors,omitempty"`
}

type ReturnLineRequest struct {
	InvoiceID        string `json:"invoice_id"`
	Source           string `json:"source"`
	ProductID        string `json:"product_id"`
	ReturnQuantity   int    `json:"return_quantity"`
	ReturnValueCents int64  `json:"return_value_cents,omitempty"`
}

type ReturnLineResponse struct {
	InvoiceDeleted bool     `json:"invoice_deleted"`
	Invoice        *Invoice `json:"invoice,omitempty"`
	RestockedQty   int      `json:"restocked_qty"`
	AmountExpense  Expense  `json:"amount_expense"`
	ProfitExpense  *Expense `json:"profit_expense,omitempty"`
}

type Expense struct {
	ID          string    `json:"id"`
	Shop        string    `json:"shop"`
	AmountCents int64     `json:"amount_cents"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Date        time.Time `json:"date"`
	CreatedAt   time.Time `json:"created_at"`
}

type ExpenseCreateRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Description string `json:"description"`
	Date        string `json:"date,omitempty"`
}

type ExpenseUpdateRequest struct {
	AmountCents *int64  `json:"amount_cents,omitempty"`
	Description *string `json:"description,omitempty"`
	Date        *string `json:"date,omitempty"`
}

type TabLine struct {
	Name           string `json:"name"`
	Type           string `json:"type"`
	Quantity       int    `json:"quantity"`
	BuyPriceCents  int64  `json:"buy_price_cents"`
	SellPriceCents int64  `json:"sell_price_cents"`
}

type CustomerTab struct {
	ID             string    `json:"id"`
	Shop           string    `json:"shop"`
	CustomerName   string    `json:"customer_name"`
	CustomerPhone  string    `json:"customer_phone,omitempty"`
	TotalDebtCents int64     `json:"total_debt_cents"`
	Items          []TabLine `json:"items"`
	Note           string    `json:"note,omitempty"`
	Date           time.Time `json:"date"`
}

type TabAddRequest struct {
	CustomerName  string    `json:"customer_name"`
	CustomerPhone string    `json:"customer_phone,omitempty"`
	Lines         []TabLine `json:"lines"`
	Note          string    `json:"note,omitempty"`
}

type TabPayment struct {
	ID          string    `json:"id"`
	Shop        string    `json:"shop"`
	TabID       string    `json:"tab_id"`
	AmountCents int64     `json:"amount_cents"`
	Date        time.Time `json:"date"`
}

type TabPaymentRequest struct {
	TabID       string `json:"tab_id"`
	AmountCents int64  `json:"amount_cents"`
}

type TabSummary struct {
	Tab            CustomerTab `json:"tab"`
	PaidCents      int64       `json:"paid_cents"`
	RemainingCents int64       `json:"remaining_cents"`
}

type TreasuryTransaction struct {
	ID          string    `json:"id"`
	Shop        string    `json:"shop"`
	Type        string    `json:"type"`
	AmountCents int64     `json:"amount_cents"`
	Description string    `json:"description,omitempty"`
	Date        time.Time `json:"date"`
}

type TreasuryRequest struct {
	Type        string `json:"type"`
	AmountCents int64  `json:"amount_cents"`
	Description string `json:"description,omitempty"`
}

type ShiftCloseResponse struct {
	InvoicesMoved int `json:"invoices_moved"`
	ExpensesMoved int `json:"expenses_moved"`
}

type ShiftReport struct {
	Shop             string    `json:"shop"`
	Date             string    `json:"date"`
	Invoices         []Invoice `json:"invoices"`
	Expenses         []Expense `json:"expenses"`
	GrossSalesCents  int64     `json:"gross_sales_cents"`
	GrossProfitCents int64     `json:"gross_profit_cents"`
	ExpenseCents     int64     `json:"expense_cents"`
	NetSalesCents    int64     `json:"net_sales_cents"`
	NetProfitCents   int64     `json:"net_profit_cents"`
}

type DashboardStats struct {
	Shop                 string `json:"shop"`
	GrossSalesCents      int64  `json:"gross_sales_cents"`
	GrossProfitCents     int64  `json:"gross_profit_cents"`
	TotalExpenseCents    int64  `json:"total_expense_cents"`
	NetSalesCents        int64  `json:"net_sales_cents"`
	NetProfitCents       int64  `json:"net_profit_cents"`
	TreasuryBalanceCents int64  `json:"treasury_balance_cents"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	Shop        string `json:"shop"`
	ExpiresAt   string `json:"expires_at"`
}

// Session identifies the shop and operator behind a request. It is carried
// explicitly in the context instead of being read from ambient state.
type Session struct {
	Shop     string
	UserName string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Shop      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID         string    `json:"id"`
	Shop       string    `json:"shop"`
	ActorName  string    `json:"actor_name"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	ProductTypePhone     = "phone"
	ProductTypeAccessory = "accessory"
)

const (
	PaymentMethodCash   = "cash"
	PaymentMethodWallet = "wallet"
)

const (
	ExpenseCategoryOperating    = "operating"
	ExpenseCategoryReturnAmount = "return_amount"
	ExpenseCategoryReturnProfit = "return_profit"
)

const (
	InvoiceSourceLive    = "live"
	InvoiceSourceArchive = "archive"
)

const (
	TreasuryDeposit    = "deposit"
	TreasuryWithdrawal = "withdrawal"
)
