package core

import (
	"strings"
	"time"
)

const (
	Expense TransactionType = "expense"
	Income  TransactionType = "income"
)

// UncategorizedName is the display name for transactions without a category.
const UncategorizedName = "Uncategorized"

type (
	TransactionType string

	User struct {
		ID               int64
		Name             string
		Email            string
		PasswordHash     string
		ResetToken       *string
		ResetTokenExpiry *time.Time
		CreatedAt        time.Time
	}

	// PublicUser is the user record exposed to API callers.
	PublicUser struct {
		ID    int64  `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}

	Category struct {
		ID        int64     `json:"id"`
		Name      string    `json:"name"`
		UserID    int64     `json:"userId"`
		CreatedAt time.Time `json:"createdAt"`
	}

	Transaction struct {
		ID              int64           `json:"id"`
		UserID          int64           `json:"userId"`
		Amount          Money           `json:"amount"`
		Type            TransactionType `json:"type"`
		Note            *string         `json:"note"`
		TransactionDate time.Time       `json:"transactionDate"`
		CategoryID      *int64          `json:"categoryId"`
		CreatedAt       time.Time       `json:"createdAt"`
		Category        *Category       `json:"category"`
	}

	// NewTransaction carries the fields needed to record a transaction.
	// A non-empty CategoryName is resolved with find-or-create semantics.
	NewTransaction struct {
		Amount       Money
		Type         TransactionType
		Date         time.Time
		CategoryName string
		Note         *string
	}

	// TransactionPatch is a partial update. Nil fields are left unchanged.
	TransactionPatch struct {
		Amount        *Money
		Type          *TransactionType
		Date          *time.Time
		Note          *string
		NoteSet       bool // Note was present in the request (nil Note clears it)
		CategoryName  *string
		ClearCategory bool
	}

	// TransactionFilter narrows list and aggregate queries. Zero values mean no bound.
	TransactionFilter struct {
		From *time.Time
		To   *time.Time
		Type TransactionType
	}
)

var (
	ErrInvalidAmount   = Validation("Amount must be a positive number")
	ErrInvalidType     = Validation("Type must be 'expense' or 'income'")
	ErrMissingFields   = Validation("Missing fields")
	ErrEmptyName       = Validation("Name required")
	ErrNameTooLong     = Validation("Name too long (max 100 characters)")
	ErrNoteTooLong     = Validation("Note too long (max 500 characters)")
	ErrInvalidDate     = Validation("Invalid date, expected YYYY-MM-DD or RFC 3339")
	ErrInvalidDateSpan = Validation("'from' must not be after 'to'")
)

// ParseTransactionType accepts "expense" or "income", case-insensitively.
func ParseTransactionType(s string) (TransactionType, error) {
	switch TransactionType(strings.ToLower(strings.TrimSpace(s))) {
	case Expense:
		return Expense, nil
	case Income:
		return Income, nil
	}
	return "", ErrInvalidType
}

func (t TransactionType) Validate() error {
	if t != Expense && t != Income {
		return ErrInvalidType
	}
	return nil
}

// Public strips credential fields from the user record.
func (u User) Public() PublicUser {
	return PublicUser{ID: u.ID, Name: u.Name, Email: u.Email}
}

// ResetTokenValid reports whether the stored reset token is still usable at now.
func (u User) ResetTokenValid(now time.Time) bool {
	if u.ResetToken == nil || u.ResetTokenExpiry == nil {
		return false
	}
	return !now.After(*u.ResetTokenExpiry)
}

// NormalizeCategoryName trims the name and enforces length limits.
func NormalizeCategoryName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}
	if len(name) > 100 {
		return "", ErrNameTooLong
	}
	return name, nil
}

func (n NewTransaction) Validate() error {
	if n.Amount.Cents == 0 || n.Type == "" || n.Date.IsZero() {
		return ErrMissingFields
	}
	if err := n.Amount.Validate(); err != nil {
		return err
	}
	if err := n.Type.Validate(); err != nil {
		return err
	}
	if n.Note != nil && len(*n.Note) > 500 {
		return ErrNoteTooLong
	}
	if n.CategoryName != "" {
		if _, err := NormalizeCategoryName(n.CategoryName); err != nil {
			return err
		}
	}
	return nil
}

func (p TransactionPatch) Validate() error {
	if p.Amount != nil {
		if err := p.Amount.Validate(); err != nil {
			return err
		}
	}
	if p.Type != nil {
		if err := p.Type.Validate(); err != nil {
			return err
		}
	}
	if p.Date != nil && p.Date.IsZero() {
		return ErrInvalidDate
	}
	if p.Note != nil && len(*p.Note) > 500 {
		return ErrNoteTooLong
	}
	if p.CategoryName != nil {
		if _, err := NormalizeCategoryName(*p.CategoryName); err != nil {
			return err
		}
	}
	return nil
}

// Apply merges the patch into t. Category changes are resolved by the store.
func (p TransactionPatch) Apply(t *Transaction) {
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Date != nil {
		t.TransactionDate = p.Date.UTC()
	}
	if p.NoteSet {
		t.Note = p.Note
	}
	if p.ClearCategory {
		t.CategoryID = nil
		t.Category = nil
	}
}

func (f TransactionFilter) Validate() error {
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return ErrInvalidDateSpan
	}
	if f.Type != "" {
		return f.Type.Validate()
	}
	return nil
}
