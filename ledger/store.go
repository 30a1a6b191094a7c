/*
store.go - Persistence interface for accounts, categories and transactions

PURPOSE:
  Defines the interface between the ledger engine and the database.
  The store owns every entity; the engine holds no long-lived copies.

KEY INTERFACES:
  Store:   Row-level reads and writes
  TxStore: Store plus WithTx for all-or-nothing operations

ATOMICITY:
  Every engine operation that changes a balance runs inside WithTx.
  If fn returns an error, nothing it wrote is kept. Implementations
  must serialize concurrent read-modify-write of the same account
  (row locks on PostgreSQL, an immediate write lock on SQLite).

IMPLEMENTATIONS:
  - store/sqlstore: SQLite and PostgreSQL
  - ledger/store: In-memory for tests and demos

SEE ALSO:
  - engine.go: The only caller of the write methods
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store handles persistence of ledger entities.
// Get* methods return the matching *NotFound sentinel when the row is absent.
type Store interface {
	GetAccount(ctx context.Context, id AccountID) (Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	// InsertAccount persists a new account and sets its ID.
	// Returns ErrDuplicateName if the name is taken.
	InsertAccount(ctx context.Context, a *Account) error
	UpdateAccount(ctx context.Context, a Account) error
	SetBalance(ctx context.Context, id AccountID, balance decimal.Decimal) error

	GetCategory(ctx context.Context, id CategoryID) (Category, error)
	ListCategories(ctx context.Context) ([]Category, error)
	ChildCategoryIDs(ctx context.Context, parent CategoryID) ([]CategoryID, error)
	InsertCategory(ctx context.Context, c *Category) error
	UpdateCategory(ctx context.Context, c Category) error
	// DeleteCategory removes a category and its children.
	DeleteCategory(ctx context.Context, id CategoryID) error
	CategoriesInUse(ctx context.Context, ids []CategoryID) (bool, error)

	GetTransaction(ctx context.Context, id TransactionID) (Transaction, error)
	InsertTransaction(ctx context.Context, t *Transaction) error
	UpdateTransaction(ctx context.Context, t Transaction) error
	LinkTransfer(ctx context.Context, id, pair TransactionID) error
	DeleteTransactions(ctx context.Context, ids ...TransactionID) error
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]TransactionRow, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// TransactionFilter selects transactions for listing. Zero values mean "no filter".
// Results are ordered newest first.
type TransactionFilter struct {
	AccountID   *AccountID
	CategoryIDs []CategoryID
	From        *time.Time
	To          *time.Time
	Limit       int
	Offset      int
}
