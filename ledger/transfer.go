package ledger

import (
	"cmp"
	"context"
	"errors"
	"slices"

	"github.com/shopspring/decimal"
)

// NewTransfer is the input for CreateTransfer.
type NewTransfer struct {
	FromAccountID AccountID
	ToAccountID   AccountID
	Amount        decimal.Decimal
}

// CreateTransfer moves amount from one account to another and records the
// movement as two pair-linked transfer legs.
//
// The source account is checked before anything is written; the destination
// is never checked. Legs are inserted in two phases (outgoing, then incoming
// pointing at outgoing, then outgoing patched to point back) inside one
// store transaction, so a single-leg transfer is never committed.
func (e *Engine) CreateTransfer(ctx context.Context, in NewTransfer) (TransferResult, error) {
	if !in.Amount.IsPositive() {
		return TransferResult{}, ErrInvalidAmount
	}
	if in.FromAccountID == in.ToAccountID {
		return TransferResult{}, ErrSameAccount
	}

	var res TransferResult
	err := e.store.WithTx(ctx, func(s Store) error {
		accounts, err := lockAccounts(ctx, s, in.FromAccountID, in.ToAccountID)
		if err != nil {
			return err
		}
		from, to := accounts[in.FromAccountID], accounts[in.ToAccountID]

		if err := ApplyDelta(ctx, s, &from, in.Amount.Neg()); err != nil {
			return err
		}
		if err := shiftBalance(ctx, s, &to, in.Amount); err != nil {
			return err
		}

		now := e.now()
		out := Transaction{
			Amount:      in.Amount,
			Description: outgoingDescription(to),
			CreatedAt:   now,
			AccountID:   from.ID,
			IsTransfer:  true,
		}
		if err := s.InsertTransaction(ctx, &out); err != nil {
			return err
		}
		inc := Transaction{
			Amount:         in.Amount,
			Description:    incomingDescription(from),
			CreatedAt:      now,
			AccountID:      to.ID,
			IsTransfer:     true,
			TransferPairID: &out.ID,
		}
		if err := s.InsertTransaction(ctx, &inc); err != nil {
			return err
		}
		if err := s.LinkTransfer(ctx, out.ID, inc.ID); err != nil {
			return err
		}
		out.TransferPairID = &inc.ID

		res = TransferResult{
			Outgoing:    out,
			Incoming:    inc,
			FromBalance: from.Balance,
			ToBalance:   to.Balance,
		}
		return nil
	})
	if err != nil {
		return TransferResult{}, err
	}
	return res, nil
}

// deleteTransfer removes both legs of a transfer and undoes the movement:
// the source account gets the amount back, the destination gives it up.
// An orphaned leg (pair missing) only reverses its own account.
func deleteTransfer(ctx context.Context, s Store, leg Transaction) ([]TransactionID, error) {
	var pair *Transaction
	if leg.TransferPairID != nil {
		p, err := s.GetTransaction(ctx, *leg.TransferPairID)
		switch {
		case err == nil:
			pair = &p
		case !errors.Is(err, ErrTransactionNotFound):
			return nil, err
		}
	}

	source, dest := &leg, pair
	if !leg.IsOutgoingLeg() {
		source, dest = pair, &leg
	}

	var adjustments []adjustment
	if source != nil {
		adjustments = append(adjustments, adjustment{source.AccountID, leg.Amount})
	}
	if dest != nil {
		adjustments = append(adjustments, adjustment{dest.AccountID, leg.Amount.Neg()})
	}
	// Same lock order as lockAccounts.
	slices.SortFunc(adjustments, func(a, b adjustment) int { return cmp.Compare(a.account, b.account) })
	for _, adj := range adjustments {
		if err := adjustAccount(ctx, s, adj.account, adj.delta); err != nil {
			return nil, err
		}
	}

	ids := []TransactionID{leg.ID}
	if pair != nil {
		ids = append(ids, pair.ID)
	}
	if err := s.DeleteTransactions(ctx, ids...); err != nil {
		return nil, err
	}
	return ids, nil
}

type adjustment struct {
	account AccountID
	delta   decimal.Decimal
}

// adjustAccount shifts a balance without a limit check. Used only to undo
// effects recorded earlier.
func adjustAccount(ctx context.Context, s Store, id AccountID, delta decimal.Decimal) error {
	a, err := s.GetAccount(ctx, id)
	if errors.Is(err, ErrAccountNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return shiftBalance(ctx, s, &a, delta)
}
