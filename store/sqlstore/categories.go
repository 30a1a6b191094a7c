package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/warp/money-tracker/ledger"
)

var categoryColumns = []string{"id", "name", "type", "parent_id"}

func scanCategory(row interface{ Scan(...any) error }) (ledger.Category, error) {
	var (
		c      ledger.Category
		typ    sql.NullString
		parent sql.NullInt64
	)
	if err := row.Scan(&c.ID, &c.Name, &typ, &parent); err != nil {
		return ledger.Category{}, err
	}
	c.Type = ledger.CategoryType(typ.String)
	c.ParentID = idPtr[ledger.CategoryID](parent)
	return c, nil
}

func categoryIDs(ids []ledger.CategoryID) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

func (q *queries) GetCategory(ctx context.Context, id ledger.CategoryID) (ledger.Category, error) {
	row, err := q.queryRow(ctx, q.sb.Select(categoryColumns...).From("categories").Where(sq.Eq{"id": int64(id)}))
	if err != nil {
		return ledger.Category{}, err
	}
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Category{}, ledger.ErrCategoryNotFound
	}
	if err != nil {
		return ledger.Category{}, fmt.Errorf("failed to get category %d: %w", id, err)
	}
	return c, nil
}

func (q *queries) ListCategories(ctx context.Context) ([]ledger.Category, error) {
	rows, err := q.query(ctx, q.sb.Select(categoryColumns...).From("categories").OrderBy("id"))
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	categories := []ledger.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (q *queries) ChildCategoryIDs(ctx context.Context, parent ledger.CategoryID) ([]ledger.CategoryID, error) {
	rows, err := q.query(ctx, q.sb.Select("id").From("categories").
		Where(sq.Eq{"parent_id": int64(parent)}).
		OrderBy("id"))
	if err != nil {
		return nil, fmt.Errorf("failed to list children of category %d: %w", parent, err)
	}
	defer rows.Close()

	var ids []ledger.CategoryID
	for rows.Next() {
		var id ledger.CategoryID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (q *queries) InsertCategory(ctx context.Context, c *ledger.Category) error {
	id, err := q.insertReturningID(ctx, q.sb.Insert("categories").
		Columns("name", "type", "parent_id").
		Values(c.Name, nullString(string(c.Type)), nullID(c.ParentID)))
	if isForeignKeyViolation(err) {
		return ledger.ErrParentCategoryNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to insert category: %w", err)
	}
	c.ID = ledger.CategoryID(id)
	return nil
}

func (q *queries) UpdateCategory(ctx context.Context, c ledger.Category) error {
	res, err := q.exec(ctx, q.sb.Update("categories").
		Set("name", c.Name).
		Set("type", nullString(string(c.Type))).
		Set("parent_id", nullID(c.ParentID)).
		Where(sq.Eq{"id": int64(c.ID)}))
	if isForeignKeyViolation(err) {
		return ledger.ErrParentCategoryNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update category %d: %w", c.ID, err)
	}
	return expectRow(res, ledger.ErrCategoryNotFound)
}

// DeleteCategory removes the children first, then the category itself.
// The schema's ON DELETE CASCADE covers the same ground.
func (q *queries) DeleteCategory(ctx context.Context, id ledger.CategoryID) error {
	if _, err := q.exec(ctx, q.sb.Delete("categories").Where(sq.Eq{"parent_id": int64(id)})); err != nil {
		return fmt.Errorf("failed to delete children of category %d: %w", id, err)
	}
	res, err := q.exec(ctx, q.sb.Delete("categories").Where(sq.Eq{"id": int64(id)}))
	if isForeignKeyViolation(err) {
		return ledger.ErrCategoryInUse
	}
	if err != nil {
		return fmt.Errorf("failed to delete category %d: %w", id, err)
	}
	return expectRow(res, ledger.ErrCategoryNotFound)
}

func (q *queries) CategoriesInUse(ctx context.Context, ids []ledger.CategoryID) (bool, error) {
	if len(ids) == 0 {
		return false, nil
	}
	row, err := q.queryRow(ctx, q.sb.Select("COUNT(*)").From("transactions").
		Where(sq.Eq{"category_id": categoryIDs(ids)}))
	if err != nil {
		return false, err
	}
	var n int64
	if err := row.Scan(&n); err != nil {
		return false, fmt.Errorf("failed to count category usage: %w", err)
	}
	return n > 0, nil
}
