package core

import (
	"strings"
	"time"
)

const (
	DefaultCategory      = "General"
	DefaultPaymentMethod = "cash"
	DefaultIncomeType    = "regular"

	TransactionPurchase = "purchase"

	// LowStockThreshold is the quantity below which a product is reported as
	// low on stock.
	LowStockThreshold = 5
)

type (
	Product struct {
		ID          int64     `json:"id"`
		Name        string    `json:"name"`
		Price       Money     `json:"price"`
		Quantity    int       `json:"quantity"`
		Category    string    `json:"category"`
		Description string    `json:"description"`
		CreatedAt   time.Time `json:"created_at"`
		UpdatedAt   time.Time `json:"updated_at"`
	}

	NewProduct struct {
		Name        string
		Price       Money
		Quantity    int
		Category    string
		Description string
	}

	// ProductUpdate carries the fields to change on a product. Nil fields are
	// left untouched.
	ProductUpdate struct {
		Name        *string
		Price       *Money
		Quantity    *int
		Category    *string
		Description *string
	}

	Expense struct {
		ID            int64     `json:"id"`
		Category      string    `json:"category"`
		Amount        Money     `json:"amount"`
		Description   string    `json:"description"`
		Date          time.Time `json:"date"`
		PaymentMethod string    `json:"payment_method"`
	}

	NewExpense struct {
		Category      string
		Amount        Money
		Description   string
		Date          time.Time // zero means now
		PaymentMethod string
	}

	Income struct {
		ID          int64     `json:"id"`
		Source      string    `json:"source"`
		Amount      Money     `json:"amount"`
		Description string    `json:"description"`
		Date        time.Time `json:"date"`
		IncomeType  string    `json:"income_type"`
	}

	NewIncome struct {
		Source      string
		Amount      Money
		Description string
		Date        time.Time // zero means now
		IncomeType  string
	}

	// CartLine is a reserved quantity of a product. Price is frozen at the
	// moment the line is added.
	CartLine struct {
		ID        int64     `json:"id"`
		ProductID int64     `json:"product_id"`
		Quantity  int       `json:"quantity"`
		Price     Money     `json:"price"`
		AddedAt   time.Time `json:"added_at"`
	}

	CartItem struct {
		CartLine
		ProductName string `json:"product_name"`
		Category    string `json:"category"`
		LineTotal   Money  `json:"total"`
	}

	CartSummary struct {
		Items         []CartItem `json:"items"`
		ItemCount     int        `json:"item_count"`
		TotalQuantity int        `json:"total_quantity"`
		TotalPrice    Money      `json:"total_price"`
	}

	// Transaction is an immutable settlement record.
	Transaction struct {
		ID          int64     `json:"id"`
		TotalAmount Money     `json:"total_amount"`
		Type        string    `json:"transaction_type"`
		ItemCount   int       `json:"items_count"`
		CreatedAt   time.Time `json:"created_at"`
	}

	Receipt struct {
		TransactionID int64 `json:"transaction_id"`
		TotalAmount   Money `json:"total_amount"`
		ItemCount     int   `json:"item_count"`
		TotalQuantity int   `json:"total_quantity"`
	}
)

// Normalize trims text fields and applies the default category.
func (p NewProduct) Normalize() NewProduct {
	p.Name = strings.TrimSpace(p.Name)
	p.Category = strings.TrimSpace(p.Category)
	if p.Category == "" {
		p.Category = DefaultCategory
	}
	return p
}

func (p NewProduct) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return newValidationError("name", "is required")
	}
	if p.Price.IsNegative() {
		return newValidationError("price", "must not be negative")
	}
	if p.Quantity < 0 {
		return newValidationError("quantity", "must not be negative")
	}
	return nil
}

// IsEmpty reports whether no field is set.
func (u ProductUpdate) IsEmpty() bool {
	return u.Name == nil && u.Price == nil && u.Quantity == nil &&
		u.Category == nil && u.Description == nil
}

func (u ProductUpdate) Validate() error {
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return newValidationError("name", "must not be empty")
	}
	if u.Price != nil && u.Price.IsNegative() {
		return newValidationError("price", "must not be negative")
	}
	if u.Quantity != nil && *u.Quantity < 0 {
		return newValidationError("quantity", "must not be negative")
	}
	return nil
}

func (e NewExpense) Validate() error {
	if strings.TrimSpace(e.Category) == "" {
		return newValidationError("category", "is required")
	}
	return nil
}

// WithDefaults fills the payment method and date.
func (e NewExpense) WithDefaults(now time.Time) NewExpense {
	e.Category = strings.TrimSpace(e.Category)
	if e.PaymentMethod == "" {
		e.PaymentMethod = DefaultPaymentMethod
	}
	if e.Date.IsZero() {
		e.Date = now
	}
	return e
}

func (i NewIncome) Validate() error {
	if strings.TrimSpace(i.Source) == "" {
		return newValidationError("source", "is required")
	}
	return nil
}

func (i NewIncome) WithDefaults(now time.Time) NewIncome {
	i.Source = strings.TrimSpace(i.Source)
	if i.IncomeType == "" {
		i.IncomeType = DefaultIncomeType
	}
	if i.Date.IsZero() {
		i.Date = now
	}
	return i
}

// ValidateQuantity checks a cart line quantity.
func ValidateQuantity(q int) error {
	if q < 1 {
		return newValidationError("quantity", "must be at least 1")
	}
	return nil
}

// ValidateDays checks a trailing window length.
func ValidateDays(days int) error {
	if days < 1 {
		return newValidationError("days", "must be at least 1")
	}
	return nil
}

// Summarize folds cart items into a summary.
func Summarize(items []CartItem) CartSummary {
	s := CartSummary{Items: items, ItemCount: len(items)}
	if s.Items == nil {
		s.Items = []CartItem{}
	}
	for _, it := range items {
		s.TotalQuantity += it.Quantity
		s.TotalPrice = s.TotalPrice.Add(it.LineTotal)
	}
	return s
}

// Ledger entry kinds.
const (
	EntryExpense  = "expense"
	EntryIncome   = "income"
	EntryPurchase = "purchase"
)

// LedgerEntry is the flattened form of a recorded change, shared by the
// event stream and the spreadsheet export.
type LedgerEntry struct {
	Kind        string    `json:"kind"`
	RefID       int64     `json:"ref_id"`
	Date        time.Time `json:"date"`
	Label       string    `json:"label"` // category, source or transaction type
	Description string    `json:"description"`
	Amount      Money     `json:"amount"`
	Method      string    `json:"method"` // payment method or income type
}

// Validate checks the fields required by the exporters.
func (e LedgerEntry) Validate() error {
	switch e.Kind {
	case EntryExpense, EntryIncome, EntryPurchase:
	default:
		return newValidationError("kind", "unknown entry kind "+e.Kind)
	}
	if e.Date.IsZero() {
		return newValidationError("date", "is required")
	}
	if strings.TrimSpace(e.Label) == "" {
		return newValidationError("label", "is required")
	}
	return nil
}
