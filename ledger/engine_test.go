package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/money-tracker/ledger"
	"github.com/warp/money-tracker/ledger/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var fixedNow = time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*ledger.Engine, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return ledger.NewEngine(mem, ledger.WithClock(func() time.Time { return fixedNow })), mem
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func mustAccount(t *testing.T, e *ledger.Engine, name string, kind ledger.AccountKind, balance, limit string) ledger.Account {
	t.Helper()
	a, err := e.CreateAccount(context.Background(), ledger.NewAccount{
		Name:        name,
		Balance:     dec(balance),
		Kind:        kind,
		CreditLimit: dec(limit),
	})
	require.NoError(t, err)
	return a
}

func mustCategory(t *testing.T, e *ledger.Engine, name string, typ ledger.CategoryType, parent *ledger.CategoryID) ledger.Category {
	t.Helper()
	c, err := e.CreateCategory(context.Background(), ledger.NewCategory{Name: name, Type: typ, ParentID: parent})
	require.NoError(t, err)
	return c
}

func balanceOf(t *testing.T, s ledger.Store, id ledger.AccountID) decimal.Decimal {
	t.Helper()
	a, err := s.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return a.Balance
}

func assertBalance(t *testing.T, s ledger.Store, id ledger.AccountID, want string) {
	t.Helper()
	got := balanceOf(t, s, id)
	assert.True(t, got.Equal(dec(want)), "balance of account %d: got %s, want %s", id, got, want)
}

// =============================================================================
// BALANCE RULES
// =============================================================================

func TestCheckBalance(t *testing.T) {
	tests := []struct {
		name    string
		account ledger.Account
		balance string
		wantErr error
	}{
		{"cash zero", ledger.Account{Kind: ledger.KindCash}, "0", nil},
		{"cash negative", ledger.Account{Kind: ledger.KindCash}, "-0.01", ledger.ErrInsufficientFunds},
		{"debit negative", ledger.Account{Kind: ledger.KindDebit}, "-1", ledger.ErrInsufficientFunds},
		{"credit at limit owed", ledger.Account{Kind: ledger.KindCredit, CreditLimit: dec("500")}, "-500", nil},
		{"credit over limit owed", ledger.Account{Kind: ledger.KindCredit, CreditLimit: dec("500")}, "-500.01", ledger.ErrCreditLimitExceeded},
		// Symmetric bound: a positive balance above the limit is rejected too.
		{"credit over limit positive", ledger.Account{Kind: ledger.KindCredit, CreditLimit: dec("500")}, "600", ledger.ErrCreditLimitExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ledger.CheckBalance(tt.account, dec(tt.balance))
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)

			var be *ledger.BalanceError
			require.True(t, errors.As(err, &be))
			assert.True(t, be.NewBalance.Equal(dec(tt.balance)))
		})
	}
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func TestCreateAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults to cash", func(t *testing.T) {
		e, _ := newTestEngine(t)
		a, err := e.CreateAccount(ctx, ledger.NewAccount{Name: "  Wallet  ", Balance: dec("10")})
		require.NoError(t, err)
		assert.Equal(t, ledger.KindCash, a.Kind)
		assert.Equal(t, "Wallet", a.Name)
		assert.NotZero(t, a.ID)
	})

	t.Run("credit may start in debt", func(t *testing.T) {
		e, _ := newTestEngine(t)
		a := mustAccount(t, e, "Visa", ledger.KindCredit, "-200", "1000")
		assert.True(t, a.Balance.Equal(dec("-200")))
	})

	invalid := []struct {
		name    string
		in      ledger.NewAccount
		wantErr error
	}{
		{"empty name", ledger.NewAccount{Name: "   "}, ledger.ErrEmptyName},
		{"unknown kind", ledger.NewAccount{Name: "X", Kind: "savings"}, ledger.ErrInvalidAccountKind},
		{"credit without limit", ledger.NewAccount{Name: "X", Kind: ledger.KindCredit}, ledger.ErrInvalidCreditLimit},
		{"negative limit", ledger.NewAccount{Name: "X", CreditLimit: dec("-1")}, ledger.ErrInvalidCreditLimit},
		{"negative cash", ledger.NewAccount{Name: "X", Balance: dec("-5")}, ledger.ErrInsufficientFunds},
		{"credit over limit", ledger.NewAccount{Name: "X", Kind: ledger.KindCredit, Balance: dec("-101"), CreditLimit: dec("100")}, ledger.ErrCreditLimitExceeded},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t)
			_, err := e.CreateAccount(ctx, tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, ledger.IsClientError(err))
		})
	}

	t.Run("duplicate name", func(t *testing.T) {
		e, _ := newTestEngine(t)
		mustAccount(t, e, "Wallet", ledger.KindCash, "0", "0")
		_, err := e.CreateAccount(ctx, ledger.NewAccount{Name: "Wallet"})
		assert.ErrorIs(t, err, ledger.ErrDuplicateName)
		assert.True(t, ledger.IsConflict(err))
	})
}

func TestUpdateAccount(t *testing.T) {
	ctx := context.Background()
	e, mem := newTestEngine(t)
	a := mustAccount(t, e, "Wallet", ledger.KindCash, "10", "0")
	mustAccount(t, e, "Bank", ledger.KindDebit, "0", "0")

	// WHEN the account is replaced wholesale
	updated, err := e.UpdateAccount(ctx, a.ID, ledger.NewAccount{Name: "Pocket", Balance: dec("25"), Kind: ledger.KindDebit})

	// THEN every attribute changes
	require.NoError(t, err)
	assert.Equal(t, a.ID, updated.ID)
	assert.Equal(t, "Pocket", updated.Name)
	assert.Equal(t, ledger.KindDebit, updated.Kind)
	assertBalance(t, mem, a.ID, "25")

	_, err = e.UpdateAccount(ctx, a.ID, ledger.NewAccount{Name: "Bank"})
	assert.ErrorIs(t, err, ledger.ErrDuplicateName)

	_, err = e.UpdateAccount(ctx, 999, ledger.NewAccount{Name: "Ghost"})
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	assert.True(t, ledger.IsNotFound(err))

	// A missing account wins over invalid input.
	_, err = e.UpdateAccount(ctx, 999, ledger.NewAccount{Name: "Ghost", Kind: "savings"})
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)

	_, err = e.UpdateAccount(ctx, a.ID, ledger.NewAccount{Name: "Pocket", Balance: dec("-1")})
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assertBalance(t, mem, a.ID, "25")
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestTransactionLifecycle(t *testing.T) {
	ctx := context.Background()
	e, mem := newTestEngine(t)
	wallet := mustAccount(t, e, "Wallet", ledger.KindCash, "100", "0")
	food := mustCategory(t, e, "Food", ledger.TypeExpense, nil)
	salary := mustCategory(t, e, "Salary", ledger.TypeIncome, nil)

	// GIVEN an expense of 30
	tx, err := e.CreateTransaction(ctx, ledger.NewTransaction{
		Amount:      dec("30"),
		Description: "groceries",
		AccountID:   wallet.ID,
		CategoryID:  &food.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, fixedNow, tx.CreatedAt)
	assertBalance(t, mem, wallet.ID, "70")

	// WHEN it is re-categorized as income and its amount changed
	updated, err := e.UpdateTransaction(ctx, tx.ID, ledger.TransactionPatch{
		Amount:     decPtr("50"),
		CategoryID: &salary.ID,
	})

	// THEN the old effect is reversed and the new one applied
	require.NoError(t, err)
	assert.True(t, updated.Amount.Equal(dec("50")))
	assert.Equal(t, "groceries", updated.Description)
	assertBalance(t, mem, wallet.ID, "150")

	// WHEN it is deleted
	ids, err := e.DeleteTransaction(ctx, tx.ID)

	// THEN the balance returns to where it started
	require.NoError(t, err)
	assert.Equal(t, []ledger.TransactionID{tx.ID}, ids)
	assertBalance(t, mem, wallet.ID, "100")

	_, err = e.DeleteTransaction(ctx, tx.ID)
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
}

func TestCreateTransaction_Rejected(t *testing.T) {
	ctx := context.Background()
	e, mem := newTestEngine(t)
	wallet := mustAccount(t, e, "Wallet", ledger.KindCash, "20", "0")
	food := mustCategory(t, e, "Food", ledger.TypeExpense, nil)
	missing := ledger.CategoryID(999)

	tests := []struct {
		name    string
		in      ledger.NewTransaction
		wantErr error
	}{
		{"zero amount", ledger.NewTransaction{Amount: dec("0"), AccountID: wallet.ID, CategoryID: &food.ID}, ledger.ErrInvalidAmount},
		{"negative amount", ledger.NewTransaction{Amount: dec("-3"), AccountID: wallet.ID, CategoryID: &food.ID}, ledger.ErrInvalidAmount},
		{"no category", ledger.NewTransaction{Amount: dec("3"), AccountID: wallet.ID}, ledger.ErrCategoryRequired},
		{"unknown category", ledger.NewTransaction{Amount: dec("3"), AccountID: wallet.ID, CategoryID: &missing}, ledger.ErrCategoryNotFound},
		{"unknown account", ledger.NewTransaction{Amount: dec("3"), AccountID: 999, CategoryID: &food.ID}, ledger.ErrAccountNotFound},
		{"overdraw", ledger.NewTransaction{Amount: dec("20.01"), AccountID: wallet.ID, CategoryID: &food.ID}, ledger.ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.CreateTransaction(ctx, tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	// Nothing was written by any rejected attempt.
	assertBalance(t, mem, wallet.ID, "20")
	views, err := e.ListTransactions(ctx, ledger.TransactionQuery{})
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestCreateTransaction_CreditLimit(t *testing.T) {
	ctx := context.Background()
	e, mem := newTestEngine(t)
	card := mustAccount(t, e, "Visa", ledger.KindCredit, "0", "100")
	shopping := mustCategory(t, e, "Shopping", ledger.TypeExpense, nil)

	_, err := e.CreateTransaction(ctx, ledger.NewTransaction{Amount: dec("100"), AccountID: card.ID, CategoryID: &shopping.ID})
	require.NoError(t, err)
	assertBalance(t, mem, card.ID, "-100")

	_, err = e.CreateTransaction(ctx, ledger.NewTransaction{Amount: dec("0.01"), AccountID: card.ID, CategoryID: &shopping.ID})
	assert.ErrorIs(t, err, ledger.ErrCreditLimitExceeded)
	assertBalance(t, mem, card.ID, "-100")
}

func TestCreateTransaction_ChildInheritsParentType(t *testing.T) {
	ctx := context.Background()
	e, mem := newTestEngine(t)
	wallet := mustAccount(t, e, "Wallet", ledger.KindCash, "0", "0")
	work := mustCategory(t, e, "Work", ledger.TypeIncome, nil)
	bonus := mustCategory(t, e, "Bonus", ledger.TypeExpense, &work.ID)

	// The child stores no type of its own.
	assert.Equal(t, ledger.TypeUnset, bonus.Type)

	_, err := e.CreateTransaction(ctx, ledger.NewTransaction{Amount: dec("40"), AccountID: wallet.ID, CategoryID: &bonus.ID})
	require.NoError(t, err)
	assertBalance(t, mem, wallet.ID, "40")
}

func TestUpdateTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("move between accounts", func(t *testing.T) {
		e, mem := newTestEngine(t)
		a := mustAccount(t, e, "A", ledger.KindCash, "50", "0")
		b := mustAccount(t, e, "B", ledger.KindCash, "50", "0")
		food := mustCategory(t, e, "Food", ledger.TypeExpense, nil)
		tx, err := e.CreateTransaction(ctx, ledger.NewTransaction{Amount: dec("20"), AccountID: a.ID, CategoryID: &food.ID})
		require.NoError(t, err)

		_, err = e.UpdateTransaction(ctx, tx.ID, ledger.TransactionPatch{AccountID: &b.ID})
		require.NoError(t, err)
		assertBalance(t, mem, a.ID, "50")
		assertBalance(t, mem, b.ID, "30")
	})

	t.Run("rejected update leaves no trace", func(t *testing.T) {
		e, mem := newTestEngine(t)
		a := mustAccount(t, e, "A", ledger.KindCash, "50", "0")
		food := mustCategory(t, e, "Food", ledger.TypeExpense, nil)
		tx, err := e.CreateTransaction(ctx, ledger.NewTransaction{Amount: dec("20"), AccountID: a.ID, CategoryID: &food.ID})
		require.NoError(t, err)

		// Reversing gives back 20 (50 available), so 50.01 must fail.
		_, err = e.UpdateTransaction(ctx, tx.ID, ledger.TransactionPatch{Amount: decPtr("50.01")})
		assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
		assertBalance(t, mem, a.ID, "30")

		stored, err := mem.GetTransaction(ctx, tx.ID)
		require.NoError(t, err)
		assert.True(t, stored.Amount.Equal(dec("20")))

		_, err = e.UpdateTransaction(ctx, tx.ID, ledger.TransactionPatch{Amount: decPtr("50")})
		require.NoError(t, err)
		assertBalance(t, mem, a.ID, "0")
	})

	t.Run("validation", func(t *testing.T) {
		e, _ := newTestEngine(t)
		_, err := e.UpdateTransaction(ctx, 1, ledger.TransactionPatch{Amount: decPtr("0")})
		assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
		_, err = e.UpdateTransaction(ctx, 404, ledger.TransactionPatch{})
		assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
	})

	t.Run("transfer legs are read-only", func(t *testing.T) {
		e, _ := newTestEngine(t)
		a := mustAccount(t, e, "A", ledger.KindCash, "50", "0")
		b := mustAccount(t, e, "B", ledger.KindCash, "0", "0")
		res, err := e.CreateTransfer(ctx, ledger.NewTransfer{FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec("5")})
		require.NoError(t, err)

		_, err = e.UpdateTransaction(ctx, res.Outgoing.ID, ledger.TransactionPatch{Amount: decPtr("1")})
		assert.ErrorIs(t, err, ledger.ErrTransferLegUpdate)
	})
}

func TestDeleteTransaction_CategoryGone(t *testing.T) {
	ctx := context.Background()
	e, mem := newTestEngine(t)
	wallet := mustAccount(t, e, "Wallet", ledger.KindCash, "10", "0")
	tip := mustCategory(t, e, "Tips", ledger.TypeIncome, nil)
	tx, err := e.CreateTransaction(ctx, ledger.NewTransaction{Amount: dec("5"), AccountID: wallet.ID, CategoryID: &tip.ID})
	require.NoError(t, err)
	assertBalance(t, mem, wallet.ID, "15")

	// GIVEN the category vanished behind the engine's back
	require.NoError(t, mem.DeleteCategory(ctx, tip.ID))

	// WHEN the transaction is deleted, THEN it reverses as an expense would
	_, err = e.DeleteTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assertBalance(t, mem, wallet.ID, "20")
}

func TestListTransactions(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	wallet := mustAccount(t, e, "Wallet", ledger.KindCash, "1000", "0")
	bank := mustAccount(t, e, "Bank", ledger.KindDebit, "0", "0")
	food := mustCategory(t, e, "Food", ledger.TypeExpense, nil)
	cafe := mustCategory(t, e, "Cafe", "", &food.ID)
	salary := mustCategory(t, e, "Salary", ledger.TypeIncome, nil)

	day := func(d int) time.Time { return time.Date(2024, time.January, d, 9, 0, 0, 0, time.UTC) }
	post := func(amount string, acct ledger.AccountID, cat ledger.CategoryID, at time.Time) {
		_, err := e.CreateTransaction(ctx, ledger.NewTransaction{Amount: dec(amount), AccountID: acct, CategoryID: &cat, CreatedAt: at})
		require.NoError(t, err)
	}
	post("10", wallet.ID, food.ID, day(1))
	post("5", wallet.ID, cafe.ID, day(2))
	post("300", bank.ID, salary.ID, day(3))
	_, err := e.CreateTransfer(ctx, ledger.NewTransfer{FromAccountID: wallet.ID, ToAccountID: bank.ID, Amount: dec("1")})
	require.NoError(t, err)

	t.Run("newest first with denormalized names", func(t *testing.T) {
		views, err := e.ListTransactions(ctx, ledger.TransactionQuery{})
		require.NoError(t, err)
		require.Len(t, views, 5)

		// Transfer legs share fixedNow (2024-03-10), later than every posting.
		assert.Equal(t, "transfer", views[0].CategoryType)
		assert.Equal(t, "Transfer", views[0].CategoryName)
		assert.Equal(t, "transfer", views[1].CategoryType)

		assert.Equal(t, "Salary", views[2].CategoryName)
		assert.Equal(t, "income", views[2].CategoryType)
		assert.Equal(t, "Bank", views[2].AccountName)

		assert.Equal(t, "Cafe", views[3].CategoryName)
		assert.Equal(t, "expense", views[3].CategoryType)
		assert.Equal(t, "Food", views[4].CategoryName)
	})

	t.Run("root category includes children", func(t *testing.T) {
		views, err := e.ListTransactions(ctx, ledger.TransactionQuery{CategoryID: &food.ID})
		require.NoError(t, err)
		assert.Len(t, views, 2)

		views, err = e.ListTransactions(ctx, ledger.TransactionQuery{CategoryID: &cafe.ID})
		require.NoError(t, err)
		require.Len(t, views, 1)
		assert.Equal(t, "Cafe", views[0].CategoryName)
	})

	t.Run("account and date range", func(t *testing.T) {
		from, to := day(2), day(3)
		views, err := e.ListTransactions(ctx, ledger.TransactionQuery{From: &from, To: &to})
		require.NoError(t, err)
		assert.Len(t, views, 2)

		views, err = e.ListTransactions(ctx, ledger.TransactionQuery{AccountID: &bank.ID})
		require.NoError(t, err)
		assert.Len(t, views, 2)
	})

	t.Run("paging", func(t *testing.T) {
		views, err := e.ListTransactions(ctx, ledger.TransactionQuery{Limit: 2, Offset: 3})
		require.NoError(t, err)
		require.Len(t, views, 2)
		assert.Equal(t, "Cafe", views[0].CategoryName)

		views, err = e.ListTransactions(ctx, ledger.TransactionQuery{Offset: 10})
		require.NoError(t, err)
		assert.Empty(t, views)
	})

	t.Run("invalid paging", func(t *testing.T) {
		for _, q := range []ledger.TransactionQuery{
			{Limit: -1},
			{Limit: ledger.MaxPageSize + 1},
			{Offset: -1},
		} {
			_, err := e.ListTransactions(ctx, q)
			assert.ErrorIs(t, err, ledger.ErrInvalidPage)
		}
	})
}

// =============================================================================
// TRANSFERS
// =============================================================================

func TestCreateTransfer(t *testing.T) {
	ctx := context.Background()
	e, mem := newTestEngine(t)
	wallet := mustAccount(t, e, "Wallet", ledger.KindCash, "100", "0")
	card := mustAccount(t, e, "Visa", ledger.KindCredit, "-80", "100")

	// WHEN paying off the card from the wallet
	res, err := e.CreateTransfer(ctx, ledger.NewTransfer{FromAccountID: wallet.ID, ToAccountID: card.ID, Amount: dec("60")})

	// THEN both balances move and the legs point at each other
	require.NoError(t, err)
	assert.True(t, res.FromBalance.Equal(dec("40")))
	assert.True(t, res.ToBalance.Equal(dec("-20")))
	assertBalance(t, mem, wallet.ID, "40")
	assertBalance(t, mem, card.ID, "-20")

	require.NotNil(t, res.Outgoing.TransferPairID)
	require.NotNil(t, res.Incoming.TransferPairID)
	assert.Equal(t, res.Incoming.ID, *res.Outgoing.TransferPairID)
	assert.Equal(t, res.Outgoing.ID, *res.Incoming.TransferPairID)
	assert.Equal(t, "Transfer → Visa", res.Outgoing.Description)
	assert.Equal(t, "Transfer ← Wallet", res.Incoming.Description)
	assert.True(t, res.Outgoing.IsOutgoingLeg())
	assert.False(t, res.Incoming.IsOutgoingLeg())
	assert.Nil(t, res.Outgoing.CategoryID)

	stored, err := mem.GetTransaction(ctx, res.Outgoing.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.TransferPairID)
	assert.Equal(t, res.Incoming.ID, *stored.TransferPairID)
}

func TestCreateTransfer_Rejected(t *testing.T) {
	ctx := context.Background()
	e, mem := newTestEngine(t)
	wallet := mustAccount(t, e, "Wallet", ledger.KindCash, "10", "0")
	card := mustAccount(t, e, "Visa", ledger.KindCredit, "-90", "100")
	bank := mustAccount(t, e, "Bank", ledger.KindDebit, "0", "0")

	tests := []struct {
		name    string
		in      ledger.NewTransfer
		wantErr error
	}{
		{"zero amount", ledger.NewTransfer{FromAccountID: wallet.ID, ToAccountID: bank.ID, Amount: dec("0")}, ledger.ErrInvalidAmount},
		{"same account", ledger.NewTransfer{FromAccountID: wallet.ID, ToAccountID: wallet.ID, Amount: dec("1")}, ledger.ErrSameAccount},
		{"unknown source", ledger.NewTransfer{FromAccountID: 999, ToAccountID: bank.ID, Amount: dec("1")}, ledger.ErrAccountNotFound},
		{"unknown destination", ledger.NewTransfer{FromAccountID: wallet.ID, ToAccountID: 999, Amount: dec("1")}, ledger.ErrAccountNotFound},
		{"insufficient funds", ledger.NewTransfer{FromAccountID: wallet.ID, ToAccountID: bank.ID, Amount: dec("10.01")}, ledger.ErrInsufficientFunds},
		{"credit limit", ledger.NewTransfer{FromAccountID: card.ID, ToAccountID: bank.ID, Amount: dec("10.01")}, ledger.ErrCreditLimitExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.CreateTransfer(ctx, tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assertBalance(t, mem, wallet.ID, "10")
	assertBalance(t, mem, card.ID, "-90")
	assertBalance(t, mem, bank.ID, "0")
}

func TestCreateTransfer_DestinationUnchecked(t *testing.T) {
	ctx := context.Background()
	e, mem := newTestEngine(t)
	wallet := mustAccount(t, e, "Wallet", ledger.KindCash, "500", "0")
	card := mustAccount(t, e, "Visa", ledger.KindCredit, "0", "100")

	// The destination may end above its credit limit.
	_, err := e.CreateTransfer(ctx, ledger.NewTransfer{FromAccountID: wallet.ID, ToAccountID: card.ID, Amount: dec("300")})
	require.NoError(t, err)
	assertBalance(t, mem, card.ID, "300")
}

// failingLink wraps a TxStore and fails LinkTransfer inside transactions.
type failingLink struct {
	ledger.TxStore
}

type failingLinkTx struct {
	ledger.Store
}

var errLinkFailed = errors.New("link failed")

func (f failingLink) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	return f.TxStore.WithTx(ctx, func(s ledger.Store) error {
		return fn(failingLinkTx{s})
	})
}

func (failingLinkTx) LinkTransfer(context.Context, ledger.TransactionID, ledger.TransactionID) error {
	return errLinkFailed
}

func TestCreateTransfer_Atomic(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	setup := ledger.NewEngine(mem)
	wallet := mustAccount(t, setup, "Wallet", ledger.KindCash, "100", "0")
	bank := mustAccount(t, setup, "Bank", ledger.KindDebit, "0", "0")

	// GIVEN a store that fails after both legs are inserted
	e := ledger.NewEngine(failingLink{mem})

	// WHEN a transfer is attempted
	_, err := e.CreateTransfer(ctx, ledger.NewTransfer{FromAccountID: wallet.ID, ToAccountID: bank.ID, Amount: dec("25")})

	// THEN nothing is committed
	assert.ErrorIs(t, err, errLinkFailed)
	assertBalance(t, mem, wallet.ID, "100")
	assertBalance(t, mem, bank.ID, "0")
	views, err := setup.ListTransactions(ctx, ledger.TransactionQuery{})
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestDeleteTransfer(t *testing.T) {
	ctx := context.Background()

	for _, leg := range []string{"outgoing", "incoming"} {
		t.Run("delete "+leg+" leg", func(t *testing.T) {
			e, mem := newTestEngine(t)
			wallet := mustAccount(t, e, "Wallet", ledger.KindCash, "100", "0")
			bank := mustAccount(t, e, "Bank", ledger.KindDebit, "0", "0")
			res, err := e.CreateTransfer(ctx, ledger.NewTransfer{FromAccountID: wallet.ID, ToAccountID: bank.ID, Amount: dec("40")})
			require.NoError(t, err)

			id := res.Outgoing.ID
			if leg == "incoming" {
				id = res.Incoming.ID
			}
			ids, err := e.DeleteTransaction(ctx, id)
			require.NoError(t, err)

			assert.ElementsMatch(t, []ledger.TransactionID{res.Outgoing.ID, res.Incoming.ID}, ids)
			assertBalance(t, mem, wallet.ID, "100")
			assertBalance(t, mem, bank.ID, "0")

			_, err = mem.GetTransaction(ctx, res.Outgoing.ID)
			assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
			_, err = mem.GetTransaction(ctx, res.Incoming.ID)
			assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
		})
	}

	t.Run("orphaned leg reverses its own account", func(t *testing.T) {
		e, mem := newTestEngine(t)
		wallet := mustAccount(t, e, "Wallet", ledger.KindCash, "100", "0")
		bank := mustAccount(t, e, "Bank", ledger.KindDebit, "0", "0")
		res, err := e.CreateTransfer(ctx, ledger.NewTransfer{FromAccountID: wallet.ID, ToAccountID: bank.ID, Amount: dec("40")})
		require.NoError(t, err)

		require.NoError(t, mem.DeleteTransactions(ctx, res.Incoming.ID))

		ids, err := e.DeleteTransaction(ctx, res.Outgoing.ID)
		require.NoError(t, err)
		assert.Equal(t, []ledger.TransactionID{res.Outgoing.ID}, ids)
		assertBalance(t, mem, wallet.ID, "100")
		assertBalance(t, mem, bank.ID, "40")
	})
}

// =============================================================================
// LOCK ORDER
// =============================================================================

// readOrder wraps a TxStore and records the account reads made inside
// transactions, in order.
type readOrder struct {
	ledger.TxStore
	reads *[]ledger.AccountID
}

type readOrderTx struct {
	ledger.Store
	reads *[]ledger.AccountID
}

func (r readOrder) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	return r.TxStore.WithTx(ctx, func(s ledger.Store) error {
		return fn(readOrderTx{Store: s, reads: r.reads})
	})
}

func (r readOrderTx) GetAccount(ctx context.Context, id ledger.AccountID) (ledger.Account, error) {
	*r.reads = append(*r.reads, id)
	return r.Store.GetAccount(ctx, id)
}

func TestAccountsAreReadInIDOrder(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	setup := ledger.NewEngine(mem)
	low := mustAccount(t, setup, "Low", ledger.KindCash, "100", "0")
	high := mustAccount(t, setup, "High", ledger.KindCash, "100", "0")
	food := mustCategory(t, setup, "Food", ledger.TypeExpense, nil)
	require.Less(t, low.ID, high.ID)

	var reads []ledger.AccountID
	e := ledger.NewEngine(readOrder{TxStore: mem, reads: &reads})

	t.Run("transfer from the higher id", func(t *testing.T) {
		reads = nil
		_, err := e.CreateTransfer(ctx, ledger.NewTransfer{FromAccountID: high.ID, ToAccountID: low.ID, Amount: dec("10")})
		require.NoError(t, err)
		assert.Equal(t, []ledger.AccountID{low.ID, high.ID}, reads)
	})

	t.Run("transaction moved to a lower id", func(t *testing.T) {
		tx, err := e.CreateTransaction(ctx, ledger.NewTransaction{Amount: dec("5"), AccountID: high.ID, CategoryID: &food.ID})
		require.NoError(t, err)

		reads = nil
		_, err = e.UpdateTransaction(ctx, tx.ID, ledger.TransactionPatch{AccountID: &low.ID})
		require.NoError(t, err)
		assert.Equal(t, []ledger.AccountID{low.ID, high.ID}, reads)
	})

	t.Run("transfer delete from the outgoing leg", func(t *testing.T) {
		res, err := e.CreateTransfer(ctx, ledger.NewTransfer{FromAccountID: high.ID, ToAccountID: low.ID, Amount: dec("1")})
		require.NoError(t, err)

		reads = nil
		_, err = e.DeleteTransaction(ctx, res.Outgoing.ID)
		require.NoError(t, err)
		assert.Equal(t, []ledger.AccountID{low.ID, high.ID}, reads)
	})
}
