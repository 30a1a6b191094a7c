// Package store provides ledger.TxStore implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/warp/money-tracker/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps all rows in maps. WithTx works on a copy of the state and
// swaps it in on success, so a failed operation leaves no trace.
type Memory struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	accounts     map[ledger.AccountID]ledger.Account
	categories   map[ledger.CategoryID]ledger.Category
	transactions map[ledger.TransactionID]ledger.Transaction
	nextAccount  ledger.AccountID
	nextCategory ledger.CategoryID
	nextTx       ledger.TransactionID
}

func NewMemory() *Memory {
	return &Memory{state: &memState{
		accounts:     make(map[ledger.AccountID]ledger.Account),
		categories:   make(map[ledger.CategoryID]ledger.Category),
		transactions: make(map[ledger.TransactionID]ledger.Transaction),
	}}
}

var _ ledger.TxStore = (*Memory)(nil)

// WithTx runs fn against a private copy of the state.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	draft := m.state.clone()
	if err := fn(draft); err != nil {
		return err
	}
	m.state = draft
	return nil
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) locked(fn func(s *memState) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.state)
}

func (m *Memory) GetAccount(ctx context.Context, id ledger.AccountID) (a ledger.Account, err error) {
	err = m.locked(func(s *memState) error { a, err = s.GetAccount(ctx, id); return err })
	return a, err
}

func (m *Memory) ListAccounts(ctx context.Context) (out []ledger.Account, err error) {
	err = m.locked(func(s *memState) error { out, err = s.ListAccounts(ctx); return err })
	return out, err
}

func (m *Memory) InsertAccount(ctx context.Context, a *ledger.Account) error {
	return m.locked(func(s *memState) error { return s.InsertAccount(ctx, a) })
}

func (m *Memory) UpdateAccount(ctx context.Context, a ledger.Account) error {
	return m.locked(func(s *memState) error { return s.UpdateAccount(ctx, a) })
}

func (m *Memory) SetBalance(ctx context.Context, id ledger.AccountID, balance decimal.Decimal) error {
	return m.locked(func(s *memState) error { return s.SetBalance(ctx, id, balance) })
}

func (m *Memory) GetCategory(ctx context.Context, id ledger.CategoryID) (c ledger.Category, err error) {
	err = m.locked(func(s *memState) error { c, err = s.GetCategory(ctx, id); return err })
	return c, err
}

func (m *Memory) ListCategories(ctx context.Context) (out []ledger.Category, err error) {
	err = m.locked(func(s *memState) error { out, err = s.ListCategories(ctx); return err })
	return out, err
}

func (m *Memory) ChildCategoryIDs(ctx context.Context, parent ledger.CategoryID) (out []ledger.CategoryID, err error) {
	err = m.locked(func(s *memState) error { out, err = s.ChildCategoryIDs(ctx, parent); return err })
	return out, err
}

func (m *Memory) InsertCategory(ctx context.Context, c *ledger.Category) error {
	return m.locked(func(s *memState) error { return s.InsertCategory(ctx, c) })
}

func (m *Memory) UpdateCategory(ctx context.Context, c ledger.Category) error {
	return m.locked(func(s *memState) error { return s.UpdateCategory(ctx, c) })
}

func (m *Memory) DeleteCategory(ctx context.Context, id ledger.CategoryID) error {
	return m.locked(func(s *memState) error { return s.DeleteCategory(ctx, id) })
}

func (m *Memory) CategoriesInUse(ctx context.Context, ids []ledger.CategoryID) (inUse bool, err error) {
	err = m.locked(func(s *memState) error { inUse, err = s.CategoriesInUse(ctx, ids); return err })
	return inUse, err
}

func (m *Memory) GetTransaction(ctx context.Context, id ledger.TransactionID) (t ledger.Transaction, err error) {
	err = m.locked(func(s *memState) error { t, err = s.GetTransaction(ctx, id); return err })
	return t, err
}

func (m *Memory) InsertTransaction(ctx context.Context, t *ledger.Transaction) error {
	return m.locked(func(s *memState) error { return s.InsertTransaction(ctx, t) })
}

func (m *Memory) UpdateTransaction(ctx context.Context, t ledger.Transaction) error {
	return m.locked(func(s *memState) error { return s.UpdateTransaction(ctx, t) })
}

func (m *Memory) LinkTransfer(ctx context.Context, id, pair ledger.TransactionID) error {
	return m.locked(func(s *memState) error { return s.LinkTransfer(ctx, id, pair) })
}

func (m *Memory) DeleteTransactions(ctx context.Context, ids ...ledger.TransactionID) error {
	return m.locked(func(s *memState) error { return s.DeleteTransactions(ctx, ids...) })
}

func (m *Memory) ListTransactions(ctx context.Context, f ledger.TransactionFilter) (out []ledger.TransactionRow, err error) {
	err = m.locked(func(s *memState) error { out, err = s.ListTransactions(ctx, f); return err })
	return out, err
}

// =============================================================================
// STATE - unlocked ledger.Store over plain maps
// =============================================================================

func (s *memState) clone() *memState {
	c := &memState{
		accounts:     make(map[ledger.AccountID]ledger.Account, len(s.accounts)),
		categories:   make(map[ledger.CategoryID]ledger.Category, len(s.categories)),
		transactions: make(map[ledger.TransactionID]ledger.Transaction, len(s.transactions)),
		nextAccount:  s.nextAccount,
		nextCategory: s.nextCategory,
		nextTx:       s.nextTx,
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.categories {
		c.categories[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	return c
}

func (s *memState) GetAccount(_ context.Context, id ledger.AccountID) (ledger.Account, error) {
	a, ok := s.accounts[id]
	if !ok {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	return a, nil
}

func (s *memState) ListAccounts(context.Context) ([]ledger.Account, error) {
	out := make([]ledger.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memState) nameTaken(name string, except ledger.AccountID) bool {
	for _, a := range s.accounts {
		if a.Name == name && a.ID != except {
			return true
		}
	}
	return false
}

func (s *memState) InsertAccount(_ context.Context, a *ledger.Account) error {
	if s.nameTaken(a.Name, 0) {
		return ledger.ErrDuplicateName
	}
	s.nextAccount++
	a.ID = s.nextAccount
	s.accounts[a.ID] = *a
	return nil
}

func (s *memState) UpdateAccount(_ context.Context, a ledger.Account) error {
	if _, ok := s.accounts[a.ID]; !ok {
		return ledger.ErrAccountNotFound
	}
	if s.nameTaken(a.Name, a.ID) {
		return ledger.ErrDuplicateName
	}
	s.accounts[a.ID] = a
	return nil
}

func (s *memState) SetBalance(_ context.Context, id ledger.AccountID, balance decimal.Decimal) error {
	a, ok := s.accounts[id]
	if !ok {
		return ledger.ErrAccountNotFound
	}
	a.Balance = balance
	s.accounts[id] = a
	return nil
}

func (s *memState) GetCategory(_ context.Context, id ledger.CategoryID) (ledger.Category, error) {
	c, ok := s.categories[id]
	if !ok {
		return ledger.Category{}, ledger.ErrCategoryNotFound
	}
	return c, nil
}

func (s *memState) ListCategories(context.Context) ([]ledger.Category, error) {
	out := make([]ledger.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memState) ChildCategoryIDs(_ context.Context, parent ledger.CategoryID) ([]ledger.CategoryID, error) {
	var out []ledger.CategoryID
	for _, c := range s.categories {
		if c.ParentID != nil && *c.ParentID == parent {
			out = append(out, c.ID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *memState) InsertCategory(_ context.Context, c *ledger.Category) error {
	if c.ParentID != nil {
		if _, ok := s.categories[*c.ParentID]; !ok {
			return ledger.ErrParentCategoryNotFound
		}
	}
	s.nextCategory++
	c.ID = s.nextCategory
	s.categories[c.ID] = *c
	return nil
}

func (s *memState) UpdateCategory(_ context.Context, c ledger.Category) error {
	if _, ok := s.categories[c.ID]; !ok {
		return ledger.ErrCategoryNotFound
	}
	s.categories[c.ID] = c
	return nil
}

func (s *memState) DeleteCategory(ctx context.Context, id ledger.CategoryID) error {
	children, _ := s.ChildCategoryIDs(ctx, id)
	for _, child := range children {
		delete(s.categories, child)
	}
	delete(s.categories, id)
	return nil
}

func (s *memState) CategoriesInUse(_ context.Context, ids []ledger.CategoryID) (bool, error) {
	set := make(map[ledger.CategoryID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	for _, t := range s.transactions {
		if t.CategoryID != nil && set[*t.CategoryID] {
			return true, nil
		}
	}
	return false, nil
}

func (s *memState) GetTransaction(_ context.Context, id ledger.TransactionID) (ledger.Transaction, error) {
	t, ok := s.transactions[id]
	if !ok {
		return ledger.Transaction{}, ledger.ErrTransactionNotFound
	}
	return t, nil
}

func (s *memState) checkRefs(t ledger.Transaction) error {
	if _, ok := s.accounts[t.AccountID]; !ok {
		return ledger.ErrAccountNotFound
	}
	if t.CategoryID != nil {
		if _, ok := s.categories[*t.CategoryID]; !ok {
			return ledger.ErrCategoryNotFound
		}
	}
	return nil
}

func (s *memState) InsertTransaction(_ context.Context, t *ledger.Transaction) error {
	if err := s.checkRefs(*t); err != nil {
		return err
	}
	s.nextTx++
	t.ID = s.nextTx
	s.transactions[t.ID] = *t
	return nil
}

func (s *memState) UpdateTransaction(_ context.Context, t ledger.Transaction) error {
	if _, ok := s.transactions[t.ID]; !ok {
		return ledger.ErrTransactionNotFound
	}
	if err := s.checkRefs(t); err != nil {
		return err
	}
	s.transactions[t.ID] = t
	return nil
}

func (s *memState) LinkTransfer(_ context.Context, id, pair ledger.TransactionID) error {
	t, ok := s.transactions[id]
	if !ok {
		return ledger.ErrTransactionNotFound
	}
	t.TransferPairID = &pair
	s.transactions[id] = t
	return nil
}

func (s *memState) DeleteTransactions(_ context.Context, ids ...ledger.TransactionID) error {
	for _, id := range ids {
		delete(s.transactions, id)
	}
	return nil
}

func (s *memState) ListTransactions(_ context.Context, f ledger.TransactionFilter) ([]ledger.TransactionRow, error) {
	var cats map[ledger.CategoryID]bool
	if len(f.CategoryIDs) > 0 {
		cats = make(map[ledger.CategoryID]bool, len(f.CategoryIDs))
		for _, id := range f.CategoryIDs {
			cats[id] = true
		}
	}

	matched := make([]ledger.Transaction, 0)
	for _, t := range s.transactions {
		if f.AccountID != nil && t.AccountID != *f.AccountID {
			continue
		}
		if cats != nil && (t.CategoryID == nil || !cats[*t.CategoryID]) {
			continue
		}
		if f.From != nil && t.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && t.CreatedAt.After(*f.To) {
			continue
		}
		matched = append(matched, t)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	if f.Offset >= len(matched) {
		return []ledger.TransactionRow{}, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}

	rows := make([]ledger.TransactionRow, len(matched))
	for i, t := range matched {
		row := ledger.TransactionRow{Transaction: t, AccountName: s.accounts[t.AccountID].Name}
		if t.CategoryID != nil {
			if c, ok := s.categories[*t.CategoryID]; ok {
				row.Category = &c
				if c.ParentID != nil {
					if p, ok := s.categories[*c.ParentID]; ok {
						row.ParentCategory = &p
					}
				}
			}
		}
		rows[i] = row
	}
	return rows, nil
}
