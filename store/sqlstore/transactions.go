package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/warp/money-tracker/ledger"
)

var transactionColumns = []string{
	"id", "amount", "description", "created_at", "account_id",
	"category_id", "is_transfer", "transfer_pair_id",
}

type transactionScan struct {
	t           ledger.Transaction
	description sql.NullString
	createdAt   string
	category    sql.NullInt64
	pair        sql.NullInt64
}

func (ts *transactionScan) dest() []any {
	return []any{
		&ts.t.ID, &ts.t.Amount, &ts.description, &ts.createdAt, &ts.t.AccountID,
		&ts.category, &ts.t.IsTransfer, &ts.pair,
	}
}

func (ts *transactionScan) finish() (ledger.Transaction, error) {
	created, err := parseTime(ts.createdAt)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("bad created_at %q: %w", ts.createdAt, err)
	}
	t := ts.t
	t.Description = ts.description.String
	t.CreatedAt = created
	t.CategoryID = idPtr[ledger.CategoryID](ts.category)
	t.TransferPairID = idPtr[ledger.TransactionID](ts.pair)
	return t, nil
}

func (q *queries) GetTransaction(ctx context.Context, id ledger.TransactionID) (ledger.Transaction, error) {
	row, err := q.queryRow(ctx, q.sb.Select(transactionColumns...).From("transactions").Where(sq.Eq{"id": int64(id)}))
	if err != nil {
		return ledger.Transaction{}, err
	}
	var ts transactionScan
	err = row.Scan(ts.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Transaction{}, ledger.ErrTransactionNotFound
	}
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("failed to get transaction %d: %w", id, err)
	}
	return ts.finish()
}

func (q *queries) InsertTransaction(ctx context.Context, t *ledger.Transaction) error {
	id, err := q.insertReturningID(ctx, q.sb.Insert("transactions").
		Columns("amount", "description", "created_at", "account_id", "category_id", "is_transfer", "transfer_pair_id").
		Values(t.Amount, nullString(t.Description), formatTime(t.CreatedAt), int64(t.AccountID),
			nullID(t.CategoryID), t.IsTransfer, nullID(t.TransferPairID)))
	if isForeignKeyViolation(err) {
		return fmt.Errorf("transaction references a missing row: %w", ledger.ErrValidation)
	}
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	t.ID = ledger.TransactionID(id)
	return nil
}

func (q *queries) UpdateTransaction(ctx context.Context, t ledger.Transaction) error {
	res, err := q.exec(ctx, q.sb.Update("transactions").
		Set("amount", t.Amount).
		Set("description", nullString(t.Description)).
		Set("created_at", formatTime(t.CreatedAt)).
		Set("account_id", int64(t.AccountID)).
		Set("category_id", nullID(t.CategoryID)).
		Where(sq.Eq{"id": int64(t.ID)}))
	if isForeignKeyViolation(err) {
		return fmt.Errorf("transaction references a missing row: %w", ledger.ErrValidation)
	}
	if err != nil {
		return fmt.Errorf("failed to update transaction %d: %w", t.ID, err)
	}
	return expectRow(res, ledger.ErrTransactionNotFound)
}

func (q *queries) LinkTransfer(ctx context.Context, id, pair ledger.TransactionID) error {
	res, err := q.exec(ctx, q.sb.Update("transactions").
		Set("transfer_pair_id", int64(pair)).
		Where(sq.Eq{"id": int64(id)}))
	if err != nil {
		return fmt.Errorf("failed to link transfer %d: %w", id, err)
	}
	return expectRow(res, ledger.ErrTransactionNotFound)
}

func (q *queries) DeleteTransactions(ctx context.Context, ids ...ledger.TransactionID) error {
	if len(ids) == 0 {
		return nil
	}
	raw := make([]int64, len(ids))
	for i, id := range ids {
		raw[i] = int64(id)
	}
	if _, err := q.exec(ctx, q.sb.Delete("transactions").Where(sq.Eq{"id": raw})); err != nil {
		return fmt.Errorf("failed to delete transactions: %w", err)
	}
	return nil
}

// ListTransactions joins each transaction with its account, category and the
// category's parent, newest first.
func (q *queries) ListTransactions(ctx context.Context, f ledger.TransactionFilter) ([]ledger.TransactionRow, error) {
	b := q.sb.Select(
		"t.id", "t.amount", "t.description", "t.created_at", "t.account_id",
		"t.category_id", "t.is_transfer", "t.transfer_pair_id",
		"COALESCE(a.name, '')",
		"c.id", "c.name", "c.type", "c.parent_id",
		"p.id", "p.name", "p.type",
	).
		From("transactions t").
		LeftJoin("accounts a ON a.id = t.account_id").
		LeftJoin("categories c ON c.id = t.category_id").
		LeftJoin("categories p ON p.id = c.parent_id").
		OrderBy("t.created_at DESC", "t.id DESC")

	if f.AccountID != nil {
		b = b.Where(sq.Eq{"t.account_id": int64(*f.AccountID)})
	}
	if len(f.CategoryIDs) > 0 {
		b = b.Where(sq.Eq{"t.category_id": categoryIDs(f.CategoryIDs)})
	}
	if f.From != nil {
		b = b.Where(sq.GtOrEq{"t.created_at": formatTime(*f.From)})
	}
	if f.To != nil {
		b = b.Where(sq.LtOrEq{"t.created_at": formatTime(*f.To)})
	}
	if f.Limit > 0 {
		b = b.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		b = b.Offset(uint64(f.Offset))
	}

	rows, err := q.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	out := []ledger.TransactionRow{}
	for rows.Next() {
		var (
			ts                    transactionScan
			accountName           string
			catID, catParent      sql.NullInt64
			catName, catType      sql.NullString
			parentID              sql.NullInt64
			parentName, parentTyp sql.NullString
		)
		dest := append(ts.dest(), &accountName,
			&catID, &catName, &catType, &catParent,
			&parentID, &parentName, &parentTyp)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t, err := ts.finish()
		if err != nil {
			return nil, err
		}

		row := ledger.TransactionRow{Transaction: t, AccountName: accountName}
		if catID.Valid {
			row.Category = &ledger.Category{
				ID:       ledger.CategoryID(catID.Int64),
				Name:     catName.String,
				Type:     ledger.CategoryType(catType.String),
				ParentID: idPtr[ledger.CategoryID](catParent),
			}
		}
		if parentID.Valid {
			row.ParentCategory = &ledger.Category{
				ID:   ledger.CategoryID(parentID.Int64),
				Name: parentName.String,
				Type: ledger.CategoryType(parentTyp.String),
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
