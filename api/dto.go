/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Small status wrappers

MONEY:
  Requests decode amounts into decimal.Decimal (JSON numbers or strings
  are both accepted). Responses render money as JSON numbers.

VALIDATION:
  Validation is done by the ledger engine, not in DTOs. DTOs are pure
  data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/types.go: Domain model
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/money-tracker/ledger"
)

// =============================================================================
// ACCOUNTS
// =============================================================================

// AccountDTO represents an account in API responses.
type AccountDTO struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Balance     float64 `json:"balance"`
	AccountType string  `json:"account_type"`
	CreditLimit float64 `json:"credit_limit"`
}

// AccountRequest is the body of POST /accounts and PUT /accounts/{id}.
type AccountRequest struct {
	Name        string          `json:"name"`
	Balance     decimal.Decimal `json:"balance"`
	AccountType string          `json:"account_type"`
	CreditLimit decimal.Decimal `json:"credit_limit"`
}

// =============================================================================
// CATEGORIES
// =============================================================================

// CategoryDTO represents a category. Type is null for subcategories.
type CategoryDTO struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Type     *string `json:"type"`
	ParentID *int64  `json:"parent_id"`
}

// CategoryTreeDTO is a root category with its children.
type CategoryTreeDTO struct {
	CategoryDTO
	Children []CategoryDTO `json:"children"`
}

// CreateCategoryRequest is the body of POST /categories.
type CreateCategoryRequest struct {
	Name     string  `json:"name"`
	Type     *string `json:"type"`
	ParentID *int64  `json:"parent_id"`
}

// UpdateCategoryRequest is the body of PUT /categories/{id}.
type UpdateCategoryRequest struct {
	Name string  `json:"name"`
	Type *string `json:"type"`
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// TransactionDTO represents a stored transaction.
type TransactionDTO struct {
	ID             int64     `json:"id"`
	Amount         float64   `json:"amount"`
	Description    string    `json:"description"`
	CreatedAt      time.Time `json:"created_at"`
	AccountID      int64     `json:"account_id"`
	CategoryID     *int64    `json:"category_id"`
	IsTransfer     bool      `json:"is_transfer"`
	TransferPairID *int64    `json:"transfer_pair_id"`
}

// TransactionViewDTO is a listed transaction with names resolved.
// CategoryType is "income", "expense" or "transfer".
type TransactionViewDTO struct {
	TransactionDTO
	AccountName  string `json:"account_name"`
	CategoryName string `json:"category_name"`
	CategoryType string `json:"category_type"`
}

// CreateTransactionRequest is the body of POST /transactions.
type CreateTransactionRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	AccountID   int64           `json:"account_id"`
	CategoryID  *int64          `json:"category_id"`
	CreatedAt   *time.Time      `json:"created_at"`
}

// UpdateTransactionRequest is the body of PUT /transactions/{id}.
// Omitted fields keep their stored values.
type UpdateTransactionRequest struct {
	Amount      *decimal.Decimal `json:"amount"`
	Description *string          `json:"description"`
	AccountID   *int64           `json:"account_id"`
	CategoryID  *int64           `json:"category_id"`
	CreatedAt   *time.Time       `json:"created_at"`
}

// TransferRequest is the body of POST /transfers.
type TransferRequest struct {
	FromAccountID int64           `json:"from_account_id"`
	ToAccountID   int64           `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
}

// TransferResponse reports both balances after a transfer.
type TransferResponse struct {
	Status      string  `json:"status"`
	FromBalance float64 `json:"from_balance"`
	ToBalance   float64 `json:"to_balance"`
}

// DeleteResponse acknowledges a deleted transaction.
type DeleteResponse struct {
	Status string `json:"status"`
	ID     int64  `json:"id"`
}

// =============================================================================
// PROBES & ERRORS
// =============================================================================

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type ReadyResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Redis    string `json:"redis"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toAccountDTO(a ledger.Account) AccountDTO {
	return AccountDTO{
		ID:          int64(a.ID),
		Name:        a.Name,
		Balance:     a.Balance.InexactFloat64(),
		AccountType: string(a.Kind),
		CreditLimit: a.CreditLimit.InexactFloat64(),
	}
}

func toCategoryDTO(c ledger.Category) CategoryDTO {
	dto := CategoryDTO{
		ID:       int64(c.ID),
		Name:     c.Name,
		ParentID: (*int64)(c.ParentID),
	}
	if c.Type != ledger.TypeUnset {
		t := string(c.Type)
		dto.Type = &t
	}
	return dto
}

func toCategoryTreeDTO(n ledger.CategoryNode) CategoryTreeDTO {
	children := make([]CategoryDTO, len(n.Children))
	for i, c := range n.Children {
		children[i] = toCategoryDTO(c)
	}
	return CategoryTreeDTO{CategoryDTO: toCategoryDTO(n.Category), Children: children}
}

func toTransactionDTO(t ledger.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:             int64(t.ID),
		Amount:         t.Amount.InexactFloat64(),
		Description:    t.Description,
		CreatedAt:      t.CreatedAt,
		AccountID:      int64(t.AccountID),
		CategoryID:     (*int64)(t.CategoryID),
		IsTransfer:     t.IsTransfer,
		TransferPairID: (*int64)(t.TransferPairID),
	}
}

func toTransactionViewDTO(v ledger.TransactionView) TransactionViewDTO {
	return TransactionViewDTO{
		TransactionDTO: toTransactionDTO(v.Transaction),
		AccountName:    v.AccountName,
		CategoryName:   v.CategoryName,
		CategoryType:   v.CategoryType,
	}
}
