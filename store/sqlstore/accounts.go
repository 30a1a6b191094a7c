package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"github.com/warp/money-tracker/ledger"
)

var accountColumns = []string{"id", "name", "balance", "account_type", "credit_limit"}

func scanAccount(row interface{ Scan(...any) error }) (ledger.Account, error) {
	var (
		a    ledger.Account
		kind string
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Balance, &kind, &a.CreditLimit); err != nil {
		return ledger.Account{}, err
	}
	a.Kind = ledger.AccountKind(kind)
	return a, nil
}

func (q *queries) GetAccount(ctx context.Context, id ledger.AccountID) (ledger.Account, error) {
	b := q.sb.Select(accountColumns...).From("accounts").Where(sq.Eq{"id": int64(id)})
	if q.lockRow {
		b = b.Suffix("FOR UPDATE")
	}
	row, err := q.queryRow(ctx, b)
	if err != nil {
		return ledger.Account{}, err
	}
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	if err != nil {
		return ledger.Account{}, fmt.Errorf("failed to get account %d: %w", id, err)
	}
	return a, nil
}

func (q *queries) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	rows, err := q.query(ctx, q.sb.Select(accountColumns...).From("accounts").OrderBy("id"))
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []ledger.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (q *queries) InsertAccount(ctx context.Context, a *ledger.Account) error {
	id, err := q.insertReturningID(ctx, q.sb.Insert("accounts").
		Columns("name", "balance", "account_type", "credit_limit").
		Values(a.Name, a.Balance, string(a.Kind), a.CreditLimit))
	if isUniqueViolation(err) {
		return ledger.ErrDuplicateName
	}
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	a.ID = ledger.AccountID(id)
	return nil
}

func (q *queries) UpdateAccount(ctx context.Context, a ledger.Account) error {
	res, err := q.exec(ctx, q.sb.Update("accounts").
		Set("name", a.Name).
		Set("balance", a.Balance).
		Set("account_type", string(a.Kind)).
		Set("credit_limit", a.CreditLimit).
		Where(sq.Eq{"id": int64(a.ID)}))
	if isUniqueViolation(err) {
		return ledger.ErrDuplicateName
	}
	if err != nil {
		return fmt.Errorf("failed to update account %d: %w", a.ID, err)
	}
	return expectRow(res, ledger.ErrAccountNotFound)
}

func (q *queries) SetBalance(ctx context.Context, id ledger.AccountID, balance decimal.Decimal) error {
	res, err := q.exec(ctx, q.sb.Update("accounts").
		Set("balance", balance).
		Where(sq.Eq{"id": int64(id)}))
	if err != nil {
		return fmt.Errorf("failed to set balance of account %d: %w", id, err)
	}
	return expectRow(res, ledger.ErrAccountNotFound)
}

// expectRow returns notFound when res touched no rows.
func expectRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
