/*
Package ledger provides the personal finance ledger engine.

PURPOSE:
  This package contains the data model (accounts, categories, transactions),
  the category type resolution rules, and the balance mutation engine that
  is the ONLY path by which an account balance changes.

KEY CONCEPTS IN THIS FILE (types.go):
  - Account: A named store of value (cash, debit or credit)
  - Category: An income/expense label, nested at most one level
  - Transaction: A single entry affecting exactly one account
  - Typed IDs: AccountID, CategoryID and TransactionID cannot be mixed up

DESIGN PRINCIPLES:
  1. Precision: Money is decimal.Decimal, never float64
  2. Magnitude only: Transaction.Amount is always positive, the sign comes
     from the effective category type (or the transfer leg direction)
  3. No long-lived copies: every operation re-reads current state from the
     store before computing deltas

SEE ALSO:
  - category.go: Effective type resolution
  - engine.go: Balance mutation engine
  - store.go: Persistence contract
*/
package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	AccountID     int64
	CategoryID    int64
	TransactionID int64
)

// =============================================================================
// ACCOUNT
// =============================================================================

// AccountKind is the kind of an account. It decides which balance invariant applies.
type AccountKind string

const (
	KindCash   AccountKind = "cash"
	KindDebit  AccountKind = "debit"
	KindCredit AccountKind = "credit"
)

// Valid reports whether k is one of the known account kinds.
func (k AccountKind) Valid() bool {
	switch k {
	case KindCash, KindDebit, KindCredit:
		return true
	}
	return false
}

// Account is a named store of value.
//
// INVARIANTS (after every committed operation):
//   - cash/debit: Balance >= 0
//   - credit:     |Balance| <= CreditLimit
type Account struct {
	ID          AccountID
	Name        string
	Balance     decimal.Decimal
	Kind        AccountKind
	CreditLimit decimal.Decimal
}

// =============================================================================
// CATEGORY
// =============================================================================

// CategoryType classifies a category. Children store TypeUnset and inherit
// the parent's type.
type CategoryType string

const (
	TypeUnset   CategoryType = ""
	TypeIncome  CategoryType = "income"
	TypeExpense CategoryType = "expense"
)

// Valid reports whether t is a concrete type (income or expense).
func (t CategoryType) Valid() bool {
	return t == TypeIncome || t == TypeExpense
}

// Category is a classification label for transactions.
type Category struct {
	ID       CategoryID
	Name     string
	Type     CategoryType
	ParentID *CategoryID
}

// IsRoot reports whether the category has no parent.
func (c Category) IsRoot() bool { return c.ParentID == nil }

// CategoryNode is a root category with its direct children.
type CategoryNode struct {
	Category
	Children []Category
}

// =============================================================================
// TRANSACTION
// =============================================================================

// Transfer leg description markers. Delete logic relies on the outgoing arrow
// to tell the source leg from the destination leg.
const (
	OutgoingMarker = "→"
	IncomingMarker = "←"
)

// Transaction is a single ledger entry affecting exactly one account.
//
// Exactly one holds:
//   - CategoryID is set and IsTransfer is false
//   - IsTransfer is true and CategoryID is nil (TransferPairID points to the other leg)
type Transaction struct {
	ID             TransactionID
	Amount         decimal.Decimal
	Description    string
	CreatedAt      time.Time
	AccountID      AccountID
	CategoryID     *CategoryID
	IsTransfer     bool
	TransferPairID *TransactionID
}

// IsOutgoingLeg reports whether a transfer leg is the source (debited) side.
func (t Transaction) IsOutgoingLeg() bool {
	return strings.Contains(t.Description, OutgoingMarker)
}

// TransactionRow is a transaction joined with the names needed for listing.
// Category and ParentCategory are nil when absent.
type TransactionRow struct {
	Transaction
	AccountName    string
	Category       *Category
	ParentCategory *Category
}

// TransactionView is a denormalized transaction as returned by listings.
// CategoryType is "income", "expense" or "transfer".
type TransactionView struct {
	Transaction
	AccountName  string
	CategoryName string
	CategoryType string
}

// TransferResult holds the balances of both accounts after a transfer.
type TransferResult struct {
	Outgoing    Transaction
	Incoming    Transaction
	FromBalance decimal.Decimal
	ToBalance   decimal.Decimal
}

func outgoingDescription(to Account) string {
	return "Transfer " + OutgoingMarker + " " + to.Name
}

func incomingDescription(from Account) string {
	return "Transfer " + IncomingMarker + " " + from.Name
}
