package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ResolveType returns the effective type of c given its parent (nil for roots
// or when the parent no longer resolves). Never returns TypeUnset.
func ResolveType(c Category, parent *Category) CategoryType {
	if c.Type.Valid() {
		return c.Type
	}
	if parent != nil && parent.Type.Valid() {
		return parent.Type
	}
	return TypeExpense
}

// EffectiveType resolves the income/expense type of c, looking up its parent
// through s when the category carries no type of its own.
func EffectiveType(ctx context.Context, s Store, c Category) (CategoryType, error) {
	if c.Type.Valid() || c.ParentID == nil {
		return ResolveType(c, nil), nil
	}
	parent, err := s.GetCategory(ctx, *c.ParentID)
	if errors.Is(err, ErrCategoryNotFound) {
		return TypeExpense, nil
	}
	if err != nil {
		return "", err
	}
	return ResolveType(c, &parent), nil
}

// =============================================================================
// CATEGORY OPERATIONS
// =============================================================================

// NewCategory is the input for CreateCategory. Type is ignored for children.
type NewCategory struct {
	Name     string
	Type     CategoryType
	ParentID *CategoryID
}

// CategoryUpdate is the input for UpdateCategory. Type is applied to roots only;
// a nil Type keeps the current one.
type CategoryUpdate struct {
	Name string
	Type *CategoryType
}

// CreateCategory creates a root category or a child of an existing root.
func (e *Engine) CreateCategory(ctx context.Context, in NewCategory) (Category, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Category{}, ErrEmptyName
	}

	c := Category{Name: name, ParentID: in.ParentID}
	err := e.store.WithTx(ctx, func(s Store) error {
		if in.ParentID != nil {
			parent, err := s.GetCategory(ctx, *in.ParentID)
			if errors.Is(err, ErrCategoryNotFound) {
				return ErrParentCategoryNotFound
			}
			if err != nil {
				return err
			}
			if !parent.IsRoot() {
				return ErrCategoryTooDeep
			}
			c.Type = TypeUnset
		} else {
			c.Type = in.Type
			if c.Type == TypeUnset {
				c.Type = TypeExpense
			}
			if !c.Type.Valid() {
				return ErrInvalidCategoryType
			}
		}
		return s.InsertCategory(ctx, &c)
	})
	if err != nil {
		return Category{}, err
	}
	return c, nil
}

// UpdateCategory renames a category and, for roots, changes its type.
// Children always follow their parent's type.
func (e *Engine) UpdateCategory(ctx context.Context, id CategoryID, in CategoryUpdate) (Category, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Category{}, ErrEmptyName
	}
	if in.Type != nil && !in.Type.Valid() {
		return Category{}, ErrInvalidCategoryType
	}

	var updated Category
	err := e.store.WithTx(ctx, func(s Store) error {
		c, err := s.GetCategory(ctx, id)
		if err != nil {
			return err
		}
		c.Name = name
		if c.IsRoot() && in.Type != nil {
			c.Type = *in.Type
		}
		if err := s.UpdateCategory(ctx, c); err != nil {
			return err
		}
		updated = c
		return nil
	})
	return updated, err
}

// DeleteCategory removes a category together with its children. It refuses
// while any transaction references the category or one of its children.
func (e *Engine) DeleteCategory(ctx context.Context, id CategoryID) error {
	return e.store.WithTx(ctx, func(s Store) error {
		if _, err := s.GetCategory(ctx, id); err != nil {
			return err
		}
		children, err := s.ChildCategoryIDs(ctx, id)
		if err != nil {
			return err
		}
		inUse, err := s.CategoriesInUse(ctx, append([]CategoryID{id}, children...))
		if err != nil {
			return err
		}
		if inUse {
			return ErrCategoryInUse
		}
		return s.DeleteCategory(ctx, id)
	})
}

// ListCategories returns every category, roots and children alike.
func (e *Engine) ListCategories(ctx context.Context) ([]Category, error) {
	return e.store.ListCategories(ctx)
}

// CategoryTree returns root categories with their children attached.
func (e *Engine) CategoryTree(ctx context.Context) ([]CategoryNode, error) {
	all, err := e.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return BuildTree(all), nil
}

// BuildTree groups a flat category list into root nodes, preserving input order.
// Children whose parent is missing from the list are dropped.
func BuildTree(all []Category) []CategoryNode {
	index := make(map[CategoryID]int)
	nodes := make([]CategoryNode, 0)
	for _, c := range all {
		if c.IsRoot() {
			index[c.ID] = len(nodes)
			nodes = append(nodes, CategoryNode{Category: c, Children: []Category{}})
		}
	}
	for _, c := range all {
		if c.IsRoot() {
			continue
		}
		if i, ok := index[*c.ParentID]; ok {
			nodes[i].Children = append(nodes[i].Children, c)
		}
	}
	return nodes
}
