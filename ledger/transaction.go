package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// NewTransaction is the input for CreateTransaction. A zero CreatedAt means now.
type NewTransaction struct {
	Amount      decimal.Decimal
	Description string
	AccountID   AccountID
	CategoryID  *CategoryID
	CreatedAt   time.Time
}

// TransactionPatch is the input for UpdateTransaction. Only non-nil fields
// override the stored transaction.
type TransactionPatch struct {
	Amount      *decimal.Decimal
	Description *string
	CreatedAt   *time.Time
	AccountID   *AccountID
	CategoryID  *CategoryID
}

// TransactionQuery is the input for ListTransactions. A root CategoryID also
// matches transactions posted to its children.
type TransactionQuery struct {
	AccountID  *AccountID
	CategoryID *CategoryID
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// CreateTransaction posts an income or expense entry and moves the account
// balance accordingly. Nothing is written if the balance check fails.
func (e *Engine) CreateTransaction(ctx context.Context, in NewTransaction) (Transaction, error) {
	if !in.Amount.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}
	if in.CategoryID == nil {
		return Transaction{}, ErrCategoryRequired
	}

	tx := Transaction{
		Amount:      in.Amount,
		Description: in.Description,
		CreatedAt:   in.CreatedAt,
		AccountID:   in.AccountID,
		CategoryID:  in.CategoryID,
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = e.now()
	}

	err := e.store.WithTx(ctx, func(s Store) error {
		account, err := s.GetAccount(ctx, in.AccountID)
		if err != nil {
			return err
		}
		category, err := s.GetCategory(ctx, *in.CategoryID)
		if err != nil {
			return err
		}
		t, err := EffectiveType(ctx, s, category)
		if err != nil {
			return err
		}
		if err := ApplyDelta(ctx, s, &account, signedAmount(t, in.Amount)); err != nil {
			return err
		}
		return s.InsertTransaction(ctx, &tx)
	})
	if err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// UpdateTransaction edits a non-transfer transaction. The old effect is
// reversed on the original account (using the category's current effective
// type), then the merged transaction is applied to its possibly new account.
// Both steps commit together or not at all.
func (e *Engine) UpdateTransaction(ctx context.Context, id TransactionID, patch TransactionPatch) (Transaction, error) {
	if patch.Amount != nil && !patch.Amount.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}

	var updated Transaction
	err := e.store.WithTx(ctx, func(s Store) error {
		tx, err := s.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if tx.IsTransfer {
			return ErrTransferLegUpdate
		}

		target := tx.AccountID
		if patch.AccountID != nil {
			target = *patch.AccountID
		}
		accounts, err := lockAccounts(ctx, s, tx.AccountID, target)
		if err != nil {
			return err
		}

		// Reverse.
		oldAccount := accounts[tx.AccountID]
		oldType, err := e.categoryTypeOf(ctx, s, tx.CategoryID)
		if err != nil {
			return err
		}
		if err := reverseDelta(ctx, s, &oldAccount, signedAmount(oldType, tx.Amount)); err != nil {
			return err
		}

		// Merge.
		if patch.Amount != nil {
			tx.Amount = *patch.Amount
		}
		if patch.Description != nil {
			tx.Description = *patch.Description
		}
		if patch.CreatedAt != nil {
			tx.CreatedAt = *patch.CreatedAt
		}
		if patch.AccountID != nil {
			tx.AccountID = *patch.AccountID
		}
		if patch.CategoryID != nil {
			tx.CategoryID = patch.CategoryID
		}

		// Apply.
		newAccount := oldAccount
		if tx.AccountID != oldAccount.ID {
			newAccount = accounts[tx.AccountID]
		}
		if tx.CategoryID == nil {
			return ErrCategoryRequired
		}
		category, err := s.GetCategory(ctx, *tx.CategoryID)
		if err != nil {
			return err
		}
		newType, err := EffectiveType(ctx, s, category)
		if err != nil {
			return err
		}
		if err := ApplyDelta(ctx, s, &newAccount, signedAmount(newType, tx.Amount)); err != nil {
			return err
		}

		if err := s.UpdateTransaction(ctx, tx); err != nil {
			return err
		}
		updated = tx
		return nil
	})
	return updated, err
}

// DeleteTransaction removes a transaction and reverses its balance effect.
// Deleting either leg of a transfer removes both legs. Returns the IDs removed.
func (e *Engine) DeleteTransaction(ctx context.Context, id TransactionID) ([]TransactionID, error) {
	var deleted []TransactionID
	err := e.store.WithTx(ctx, func(s Store) error {
		tx, err := s.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if tx.IsTransfer {
			deleted, err = deleteTransfer(ctx, s, tx)
			return err
		}

		account, err := s.GetAccount(ctx, tx.AccountID)
		if err != nil {
			return err
		}
		t, err := e.categoryTypeOf(ctx, s, tx.CategoryID)
		if err != nil {
			return err
		}
		if err := reverseDelta(ctx, s, &account, signedAmount(t, tx.Amount)); err != nil {
			return err
		}
		deleted = []TransactionID{tx.ID}
		return s.DeleteTransactions(ctx, tx.ID)
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// categoryTypeOf resolves the effective type of an optional category reference.
// A missing or vanished category counts as expense.
func (e *Engine) categoryTypeOf(ctx context.Context, s Store, id *CategoryID) (CategoryType, error) {
	if id == nil {
		return TypeExpense, nil
	}
	c, err := s.GetCategory(ctx, *id)
	if errors.Is(err, ErrCategoryNotFound) {
		return TypeExpense, nil
	}
	if err != nil {
		return "", err
	}
	return EffectiveType(ctx, s, c)
}

// ListTransactions returns denormalized transactions, newest first.
func (e *Engine) ListTransactions(ctx context.Context, q TransactionQuery) ([]TransactionView, error) {
	if q.Limit == 0 {
		q.Limit = DefaultPageSize
	}
	if q.Limit < 1 || q.Limit > MaxPageSize || q.Offset < 0 {
		return nil, ErrInvalidPage
	}

	filter := TransactionFilter{
		AccountID: q.AccountID,
		From:      q.From,
		To:        q.To,
		Limit:     q.Limit,
		Offset:    q.Offset,
	}
	if q.CategoryID != nil {
		ids, err := e.expandCategory(ctx, *q.CategoryID)
		if err != nil {
			return nil, err
		}
		filter.CategoryIDs = ids
	}

	rows, err := e.store.ListTransactions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	views := make([]TransactionView, len(rows))
	for i, r := range rows {
		views[i] = viewOf(r)
	}
	return views, nil
}

// expandCategory returns id plus its children when id is a root category.
func (e *Engine) expandCategory(ctx context.Context, id CategoryID) ([]CategoryID, error) {
	c, err := e.store.GetCategory(ctx, id)
	if errors.Is(err, ErrCategoryNotFound) {
		return []CategoryID{id}, nil
	}
	if err != nil {
		return nil, err
	}
	if !c.IsRoot() {
		return []CategoryID{id}, nil
	}
	children, err := e.store.ChildCategoryIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	return append([]CategoryID{id}, children...), nil
}

func viewOf(r TransactionRow) TransactionView {
	v := TransactionView{Transaction: r.Transaction, AccountName: r.AccountName}
	switch {
	case r.IsTransfer:
		v.CategoryName = "Transfer"
		v.CategoryType = "transfer"
	case r.Category != nil:
		v.CategoryName = r.Category.Name
		v.CategoryType = string(ResolveType(*r.Category, r.ParentCategory))
	default:
		v.CategoryType = string(TypeExpense)
	}
	return v
}
