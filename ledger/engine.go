/*
engine.go - Balance mutation engine

PURPOSE:
  The Engine is the only path by which Account.Balance changes. Every
  operation runs inside a single store transaction: any constraint
  violation aborts the whole operation with no partial effect.

CRITICAL INVARIANTS:
  1. cash/debit accounts never end an operation below zero
  2. credit accounts never owe more than their credit limit
  3. Edits reverse the old effect before applying the new one
  4. A transfer is two pair-linked legs or nothing

OPERATIONS:
  Accounts:     CreateAccount, UpdateAccount, ListAccounts
  Categories:   CreateCategory, UpdateCategory, DeleteCategory (category.go)
  Transactions: CreateTransaction, UpdateTransaction, DeleteTransaction,
                ListTransactions (transaction.go)
  Transfers:    CreateTransfer (transfer.go)

CONCURRENCY:
  No in-process locks. The store serializes concurrent operations on
  the same rows; the engine re-reads state inside each transaction.

SEE ALSO:
  - store.go: Persistence contract
  - category.go: Effective type resolution
*/
package ledger

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Engine applies ledger operations against a transactional store.
type Engine struct {
	store TxStore
	now   func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used for default transaction timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store TxStore, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// =============================================================================
// BALANCE RULES
// =============================================================================

// CheckBalance validates newBalance against the account's kind.
// Returns a *BalanceError when the balance would break the invariant.
func CheckBalance(a Account, newBalance decimal.Decimal) error {
	var ok bool
	if a.Kind == KindCredit {
		ok = newBalance.Abs().LessThanOrEqual(a.CreditLimit)
	} else {
		ok = !newBalance.IsNegative()
	}
	if ok {
		return nil
	}
	return &BalanceError{
		AccountID:   a.ID,
		Kind:        a.Kind,
		Balance:     a.Balance,
		NewBalance:  newBalance,
		CreditLimit: a.CreditLimit,
	}
}

// ApplyDelta adds delta to the account balance after checking the kind's
// invariant, then persists the new balance through s. On failure nothing
// is written and a is left untouched.
func ApplyDelta(ctx context.Context, s Store, a *Account, delta decimal.Decimal) error {
	newBalance := a.Balance.Add(delta)
	if err := CheckBalance(*a, newBalance); err != nil {
		return err
	}
	if err := s.SetBalance(ctx, a.ID, newBalance); err != nil {
		return err
	}
	a.Balance = newBalance
	return nil
}

// reverseDelta undoes a previously applied delta. Restoring prior state
// needs no limit check.
func reverseDelta(ctx context.Context, s Store, a *Account, applied decimal.Decimal) error {
	return shiftBalance(ctx, s, a, applied.Neg())
}

// shiftBalance adds delta with no invariant check.
func shiftBalance(ctx context.Context, s Store, a *Account, delta decimal.Decimal) error {
	newBalance := a.Balance.Add(delta)
	if err := s.SetBalance(ctx, a.ID, newBalance); err != nil {
		return err
	}
	a.Balance = newBalance
	return nil
}

// lockAccounts reads the given accounts in ascending ID order. Stores that
// lock rows on read then always acquire account locks in the same order, so
// two operations over the same accounts wait on each other instead of
// deadlocking.
func lockAccounts(ctx context.Context, s Store, ids ...AccountID) (map[AccountID]Account, error) {
	ordered := slices.Clone(ids)
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)

	out := make(map[AccountID]Account, len(ordered))
	for _, id := range ordered {
		a, err := s.GetAccount(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = a
	}
	return out, nil
}

// signedAmount is the balance delta amount produces under category type t.
func signedAmount(t CategoryType, amount decimal.Decimal) decimal.Decimal {
	if t == TypeIncome {
		return amount
	}
	return amount.Neg()
}

// =============================================================================
// ACCOUNT OPERATIONS
// =============================================================================

// NewAccount is the input for CreateAccount and UpdateAccount. An empty Kind
// means cash.
type NewAccount struct {
	Name        string
	Balance     decimal.Decimal
	Kind        AccountKind
	CreditLimit decimal.Decimal
}

func (in NewAccount) build() (Account, error) {
	a := Account{
		Name:        strings.TrimSpace(in.Name),
		Balance:     in.Balance,
		Kind:        in.Kind,
		CreditLimit: in.CreditLimit,
	}
	if a.Kind == "" {
		a.Kind = KindCash
	}
	if a.Name == "" {
		return a, ErrEmptyName
	}
	if !a.Kind.Valid() {
		return a, ErrInvalidAccountKind
	}
	if a.CreditLimit.IsNegative() || (a.Kind == KindCredit && !a.CreditLimit.IsPositive()) {
		return a, ErrInvalidCreditLimit
	}
	if err := CheckBalance(a, a.Balance); err != nil {
		return a, err
	}
	return a, nil
}

// CreateAccount validates and persists a new account.
func (e *Engine) CreateAccount(ctx context.Context, in NewAccount) (Account, error) {
	a, err := in.build()
	if err != nil {
		return Account{}, err
	}
	err = e.store.WithTx(ctx, func(s Store) error {
		return s.InsertAccount(ctx, &a)
	})
	if err != nil {
		return Account{}, err
	}
	return a, nil
}

// UpdateAccount replaces every attribute of an existing account. A missing
// account is reported before the input is validated.
func (e *Engine) UpdateAccount(ctx context.Context, id AccountID, in NewAccount) (Account, error) {
	var a Account
	err := e.store.WithTx(ctx, func(s Store) error {
		if _, err := s.GetAccount(ctx, id); err != nil {
			return err
		}
		var err error
		if a, err = in.build(); err != nil {
			return err
		}
		a.ID = id
		return s.UpdateAccount(ctx, a)
	})
	if err != nil {
		return Account{}, err
	}
	return a, nil
}

// ListAccounts returns every account.
func (e *Engine) ListAccounts(ctx context.Context) ([]Account, error) {
	return e.store.ListAccounts(ctx)
}
