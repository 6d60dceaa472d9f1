package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"fintrack/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// RepositoryTestSuite runs every test against a freshly migrated database file.
type RepositoryTestSuite struct {
	suite.Suite
	repo   *SQLiteRepository
	dbPath string
	ctx    context.Context
}

func (s *RepositoryTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.dbPath = filepath.Join(s.T().TempDir(), "fintrack.db")
	repo, err := NewSQLiteRepository(s.dbPath)
	require.NoError(s.T(), err, "failed to create test database")
	s.repo = repo
}

func (s *RepositoryTestSuite) TearDownTest() {
	if s.repo != nil {
		s.repo.Close()
	}
}

func (s *RepositoryTestSuite) newUser(email string) *core.User {
	u, err := s.repo.CreateUser(s.ctx, "Test", email, "hash")
	require.NoError(s.T(), err)
	return u
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func note(s string) *string { return &s }

func (s *RepositoryTestSuite) TestCreateUserRejectsDuplicateEmail() {
	s.newUser("a@example.com")

	_, err := s.repo.CreateUser(s.ctx, "Other", "a@example.com", "hash")
	assert.ErrorIs(s.T(), err, core.ErrValidation)
	assert.Equal(s.T(), "Email already used", core.Message(err))

	count, err := s.repo.UserCount(s.ctx)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 1, count)
}

func (s *RepositoryTestSuite) TestGetUserNotFound() {
	_, err := s.repo.GetUserByEmail(s.ctx, "missing@example.com")
	assert.ErrorIs(s.T(), err, core.ErrNotFound)
}

func (s *RepositoryTestSuite) TestResetTokenLifecycle() {
	u := s.newUser("reset@example.com")
	expiry := time.Now().UTC().Add(time.Hour).Truncate(time.Second)

	require.NoError(s.T(), s.repo.SetResetToken(s.ctx, u.ID, "tok123", expiry))

	got, err := s.repo.GetUserByResetToken(s.ctx, "tok123")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), u.ID, got.ID)
	require.NotNil(s.T(), got.ResetTokenExpiry)
	assert.True(s.T(), expiry.Equal(*got.ResetTokenExpiry))

	require.NoError(s.T(), s.repo.UpdatePassword(s.ctx, u.ID, "newhash"))

	_, err = s.repo.GetUserByResetToken(s.ctx, "tok123")
	assert.ErrorIs(s.T(), err, core.ErrNotFound)

	got, err = s.repo.GetUserByID(s.ctx, u.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "newhash", got.PasswordHash)
	assert.Nil(s.T(), got.ResetToken)
	assert.Nil(s.T(), got.ResetTokenExpiry)
}

func (s *RepositoryTestSuite) TestCategoryUniquePerUser() {
	a := s.newUser("a@example.com")
	b := s.newUser("b@example.com")

	_, err := s.repo.CreateCategory(s.ctx, a.ID, "Food")
	require.NoError(s.T(), err)

	_, err = s.repo.CreateCategory(s.ctx, a.ID, "Food")
	assert.ErrorIs(s.T(), err, core.ErrValidation)
	assert.Equal(s.T(), "Category already exists", core.Message(err))

	// the same name is fine for another user
	_, err = s.repo.CreateCategory(s.ctx, b.ID, "Food")
	assert.NoError(s.T(), err)
}

func (s *RepositoryTestSuite) TestListCategoriesOrderedAndScoped() {
	a := s.newUser("a@example.com")
	b := s.newUser("b@example.com")
	for _, name := range []string{"Rent", "Food", "Travel"} {
		_, err := s.repo.CreateCategory(s.ctx, a.ID, name)
		require.NoError(s.T(), err)
	}
	_, err := s.repo.CreateCategory(s.ctx, b.ID, "Hidden")
	require.NoError(s.T(), err)

	list, err := s.repo.ListCategories(s.ctx, a.ID)
	require.NoError(s.T(), err)
	require.Len(s.T(), list, 3)
	assert.Equal(s.T(), "Food", list[0].Name)
	assert.Equal(s.T(), "Rent", list[1].Name)
	assert.Equal(s.T(), "Travel", list[2].Name)

	empty := s.newUser("c@example.com")
	list, err = s.repo.ListCategories(s.ctx, empty.ID)
	require.NoError(s.T(), err)
	assert.NotNil(s.T(), list)
	assert.Empty(s.T(), list)
}

func (s *RepositoryTestSuite) TestRenameCategory() {
	a := s.newUser("a@example.com")
	b := s.newUser("b@example.com")
	food, err := s.repo.CreateCategory(s.ctx, a.ID, "Food")
	require.NoError(s.T(), err)
	_, err = s.repo.CreateCategory(s.ctx, a.ID, "Rent")
	require.NoError(s.T(), err)

	renamed, err := s.repo.RenameCategory(s.ctx, a.ID, food.ID, "Groceries")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "Groceries", renamed.Name)

	_, err = s.repo.RenameCategory(s.ctx, a.ID, food.ID, "Rent")
	assert.ErrorIs(s.T(), err, core.ErrValidation)

	_, err = s.repo.RenameCategory(s.ctx, b.ID, food.ID, "Stolen")
	assert.ErrorIs(s.T(), err, core.ErrNotFound)
}

func (s *RepositoryTestSuite) TestDeleteCategoryDetachesTransactions() {
	a := s.newUser("a@example.com")
	tx, err := s.repo.CreateTransaction(s.ctx, a.ID, core.NewTransaction{
		Amount:       core.Money{Cents: 1200},
		Type:         core.Expense,
		Date:         day(2024, 3, 1),
		CategoryName: "Food",
	})
	require.NoError(s.T(), err)
	require.NotNil(s.T(), tx.CategoryID)

	require.NoError(s.T(), s.repo.DeleteCategory(s.ctx, a.ID, *tx.CategoryID))

	got, err := s.repo.GetTransaction(s.ctx, a.ID, tx.ID)
	require.NoError(s.T(), err)
	assert.Nil(s.T(), got.CategoryID)
	assert.Nil(s.T(), got.Category)

	err = s.repo.DeleteCategory(s.ctx, a.ID, *tx.CategoryID)
	assert.ErrorIs(s.T(), err, core.ErrNotFound)
}

func (s *RepositoryTestSuite) TestDeleteCategoryOfOtherUser() {
	a := s.newUser("a@example.com")
	b := s.newUser("b@example.com")
	c, err := s.repo.CreateCategory(s.ctx, a.ID, "Food")
	require.NoError(s.T(), err)

	err = s.repo.DeleteCategory(s.ctx, b.ID, c.ID)
	assert.ErrorIs(s.T(), err, core.ErrNotFound)

	_, err = s.repo.GetCategory(s.ctx, a.ID, c.ID)
	assert.NoError(s.T(), err)
}

func (s *RepositoryTestSuite) TestCreateTransactionReusesCategory() {
	a := s.newUser("a@example.com")
	existing, err := s.repo.CreateCategory(s.ctx, a.ID, "Food")
	require.NoError(s.T(), err)

	tx, err := s.repo.CreateTransaction(s.ctx, a.ID, core.NewTransaction{
		Amount:       core.Money{Cents: 1050},
		Type:         core.Expense,
		Date:         day(2024, 3, 15),
		CategoryName: "Food",
		Note:         note("lunch"),
	})
	require.NoError(s.T(), err)
	require.NotNil(s.T(), tx.CategoryID)
	assert.Equal(s.T(), existing.ID, *tx.CategoryID)
	require.NotNil(s.T(), tx.Category)
	assert.Equal(s.T(), "Food", tx.Category.Name)
	assert.Equal(s.T(), int64(1050), tx.Amount.Cents)
	assert.Equal(s.T(), "lunch", *tx.Note)
	assert.True(s.T(), day(2024, 3, 15).Equal(tx.TransactionDate))

	list, err := s.repo.ListCategories(s.ctx, a.ID)
	require.NoError(s.T(), err)
	assert.Len(s.T(), list, 1)
}

func (s *RepositoryTestSuite) TestCreateTransactionWithoutCategory() {
	a := s.newUser("a@example.com")
	tx, err := s.repo.CreateTransaction(s.ctx, a.ID, core.NewTransaction{
		Amount: core.Money{Cents: 500},
		Type:   core.Income,
		Date:   day(2024, 1, 2),
	})
	require.NoError(s.T(), err)
	assert.Nil(s.T(), tx.CategoryID)
	assert.Nil(s.T(), tx.Category)
	assert.Nil(s.T(), tx.Note)
}

func (s *RepositoryTestSuite) TestListTransactionsFilterAndOrder() {
	a := s.newUser("a@example.com")
	b := s.newUser("b@example.com")
	create := func(userID int64, cents int64, typ core.TransactionType, d time.Time) {
		_, err := s.repo.CreateTransaction(s.ctx, userID, core.NewTransaction{
			Amount: core.Money{Cents: cents}, Type: typ, Date: d,
		})
		require.NoError(s.T(), err)
	}
	create(a.ID, 100, core.Expense, day(2024, 1, 10))
	create(a.ID, 200, core.Income, day(2024, 2, 10))
	create(a.ID, 300, core.Expense, day(2024, 3, 10))
	create(b.ID, 999, core.Expense, day(2024, 2, 10))

	all, err := s.repo.ListTransactions(s.ctx, a.ID, core.TransactionFilter{})
	require.NoError(s.T(), err)
	require.Len(s.T(), all, 3)
	assert.Equal(s.T(), int64(300), all[0].Amount.Cents)
	assert.Equal(s.T(), int64(100), all[2].Amount.Cents)

	from, to := day(2024, 2, 1), day(2024, 3, 10)
	ranged, err := s.repo.ListTransactions(s.ctx, a.ID, core.TransactionFilter{From: &from, To: &to})
	require.NoError(s.T(), err)
	assert.Len(s.T(), ranged, 2)

	expenses, err := s.repo.ListTransactions(s.ctx, a.ID, core.TransactionFilter{Type: core.Expense})
	require.NoError(s.T(), err)
	assert.Len(s.T(), expenses, 2)
}

func (s *RepositoryTestSuite) TestUpdateTransaction() {
	a := s.newUser("a@example.com")
	b := s.newUser("b@example.com")
	tx, err := s.repo.CreateTransaction(s.ctx, a.ID, core.NewTransaction{
		Amount:       core.Money{Cents: 1000},
		Type:         core.Expense,
		Date:         day(2024, 3, 1),
		CategoryName: "Food",
		Note:         note("old"),
	})
	require.NoError(s.T(), err)

	amount := core.Money{Cents: 2500}
	travel := "Travel"
	updated, err := s.repo.UpdateTransaction(s.ctx, a.ID, tx.ID, core.TransactionPatch{
		Amount:       &amount,
		CategoryName: &travel,
	})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(2500), updated.Amount.Cents)
	require.NotNil(s.T(), updated.Category)
	assert.Equal(s.T(), "Travel", updated.Category.Name)
	assert.Equal(s.T(), "old", *updated.Note)
	assert.Equal(s.T(), core.Expense, updated.Type)

	cleared, err := s.repo.UpdateTransaction(s.ctx, a.ID, tx.ID, core.TransactionPatch{
		NoteSet:       true,
		ClearCategory: true,
	})
	require.NoError(s.T(), err)
	assert.Nil(s.T(), cleared.Note)
	assert.Nil(s.T(), cleared.CategoryID)

	_, err = s.repo.UpdateTransaction(s.ctx, b.ID, tx.ID, core.TransactionPatch{Amount: &amount})
	assert.ErrorIs(s.T(), err, core.ErrNotFound)
}

func (s *RepositoryTestSuite) TestDeleteTransaction() {
	a := s.newUser("a@example.com")
	b := s.newUser("b@example.com")
	tx, err := s.repo.CreateTransaction(s.ctx, a.ID, core.NewTransaction{
		Amount: core.Money{Cents: 100}, Type: core.Expense, Date: day(2024, 3, 1),
	})
	require.NoError(s.T(), err)

	assert.ErrorIs(s.T(), s.repo.DeleteTransaction(s.ctx, b.ID, tx.ID), core.ErrNotFound)
	require.NoError(s.T(), s.repo.DeleteTransaction(s.ctx, a.ID, tx.ID))
	assert.ErrorIs(s.T(), s.repo.DeleteTransaction(s.ctx, a.ID, tx.ID), core.ErrNotFound)

	_, err = s.repo.GetTransactionByID(s.ctx, tx.ID)
	assert.ErrorIs(s.T(), err, core.ErrNotFound)
}

func (s *RepositoryTestSuite) TestSumByCategory() {
	a := s.newUser("a@example.com")
	inputs := []core.NewTransaction{
		{Amount: core.Money{Cents: 1000}, Type: core.Expense, Date: day(2024, 1, 1), CategoryName: "Food"},
		{Amount: core.Money{Cents: 500}, Type: core.Expense, Date: day(2024, 1, 2), CategoryName: "Food"},
		{Amount: core.Money{Cents: 4000}, Type: core.Expense, Date: day(2024, 1, 3), CategoryName: "Rent"},
		{Amount: core.Money{Cents: 300}, Type: core.Expense, Date: day(2024, 1, 4)},
		{Amount: core.Money{Cents: 9000}, Type: core.Income, Date: day(2024, 1, 5), CategoryName: "Salary"},
	}
	for _, in := range inputs {
		_, err := s.repo.CreateTransaction(s.ctx, a.ID, in)
		require.NoError(s.T(), err)
	}

	totals, err := s.repo.SumByCategory(s.ctx, a.ID, core.TransactionFilter{Type: core.Expense})
	require.NoError(s.T(), err)
	require.Len(s.T(), totals, 3)
	assert.Equal(s.T(), "Rent", totals[0].Category)
	assert.Equal(s.T(), int64(4000), totals[0].Total.Cents)
	assert.Equal(s.T(), "Food", totals[1].Category)
	assert.Equal(s.T(), int64(1500), totals[1].Total.Cents)
	assert.Equal(s.T(), core.UncategorizedName, totals[2].Category)
	assert.Nil(s.T(), totals[2].CategoryID)

	all, err := s.repo.SumByCategory(s.ctx, a.ID, core.TransactionFilter{})
	require.NoError(s.T(), err)
	assert.Len(s.T(), all, 4)
}

func (s *RepositoryTestSuite) TestTransactionAmounts() {
	a := s.newUser("a@example.com")
	_, err := s.repo.CreateTransaction(s.ctx, a.ID, core.NewTransaction{
		Amount: core.Money{Cents: 15000}, Type: core.Expense, Date: day(2024, 3, 10),
	})
	require.NoError(s.T(), err)
	_, err = s.repo.CreateTransaction(s.ctx, a.ID, core.NewTransaction{
		Amount: core.Money{Cents: 700}, Type: core.Expense, Date: day(2023, 12, 31),
	})
	require.NoError(s.T(), err)

	from, to := core.YearBounds(2024)
	items, err := s.repo.TransactionAmounts(s.ctx, a.ID, core.TransactionFilter{From: &from, To: &to})
	require.NoError(s.T(), err)
	require.Len(s.T(), items, 1)

	months := core.MonthlyTotals(2024, items)
	assert.Equal(s.T(), int64(15000), months[2].Total.Cents)
}

func (s *RepositoryTestSuite) TestMigrationVersion() {
	version, dirty, err := MigrationVersion(s.dbPath)
	require.NoError(s.T(), err)
	assert.False(s.T(), dirty)
	assert.Equal(s.T(), uint(3), version)
}

func (s *RepositoryTestSuite) TestPing() {
	assert.NoError(s.T(), s.repo.Ping(s.ctx))
}

const concurrentWriters = 20

// runConcurrently starts n calls of fn at once and returns their errors by index.
func runConcurrently(n int, fn func(i int) error) []error {
	errs := make([]error, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = fn(i)
		}(i)
	}
	close(start)
	wg.Wait()
	return errs
}

func (s *RepositoryTestSuite) TestConcurrentCreatesConvergeOnOneCategory() {
	a := s.newUser("a@example.com")

	ids := make([]int64, concurrentWriters)
	errs := runConcurrently(concurrentWriters, func(i int) error {
		tx, err := s.repo.CreateTransaction(s.ctx, a.ID, core.NewTransaction{
			Amount:       core.Money{Cents: int64(100 + i)},
			Type:         core.Expense,
			Date:         day(2024, 3, 1),
			CategoryName: "Food",
		})
		if err == nil && tx.CategoryID != nil {
			ids[i] = *tx.CategoryID
		}
		return err
	})
	for i, err := range errs {
		require.NoError(s.T(), err, "create %d", i)
	}

	list, err := s.repo.ListCategories(s.ctx, a.ID)
	require.NoError(s.T(), err)
	require.Len(s.T(), list, 1)
	for _, id := range ids {
		assert.Equal(s.T(), list[0].ID, id)
	}

	txs, err := s.repo.ListTransactions(s.ctx, a.ID, core.TransactionFilter{})
	require.NoError(s.T(), err)
	assert.Len(s.T(), txs, concurrentWriters)
}

func (s *RepositoryTestSuite) TestConcurrentUpdatesOfOneTransaction() {
	a := s.newUser("a@example.com")
	tx, err := s.repo.CreateTransaction(s.ctx, a.ID, core.NewTransaction{
		Amount: core.Money{Cents: 100},
		Type:   core.Expense,
		Date:   day(2024, 3, 1),
	})
	require.NoError(s.T(), err)

	errs := runConcurrently(concurrentWriters, func(i int) error {
		amount := core.Money{Cents: int64(1000 + i)}
		category := "Cat"
		_, err := s.repo.UpdateTransaction(s.ctx, a.ID, tx.ID, core.TransactionPatch{
			Amount:       &amount,
			CategoryName: &category,
		})
		return err
	})
	for i, err := range errs {
		require.NoError(s.T(), err, "update %d", i)
	}

	got, err := s.repo.GetTransaction(s.ctx, a.ID, tx.ID)
	require.NoError(s.T(), err)
	require.NotNil(s.T(), got.Category)
	assert.Equal(s.T(), "Cat", got.Category.Name)
	assert.GreaterOrEqual(s.T(), got.Amount.Cents, int64(1000))

	list, err := s.repo.ListCategories(s.ctx, a.ID)
	require.NoError(s.T(), err)
	assert.Len(s.T(), list, 1)
}

func (s *RepositoryTestSuite) TestConcurrentCategoryDeletesAndUpdates() {
	a := s.newUser("a@example.com")
	var txIDs []int64
	var categoryID int64
	for i := 0; i < concurrentWriters; i++ {
		tx, err := s.repo.CreateTransaction(s.ctx, a.ID, core.NewTransaction{
			Amount:       core.Money{Cents: 500},
			Type:         core.Expense,
			Date:         day(2024, 3, 1),
			CategoryName: "Food",
		})
		require.NoError(s.T(), err)
		txIDs = append(txIDs, tx.ID)
		categoryID = *tx.CategoryID
	}

	// even indexes delete the shared category, odd ones rewrite a transaction
	errs := runConcurrently(concurrentWriters, func(i int) error {
		if i%2 == 0 {
			return s.repo.DeleteCategory(s.ctx, a.ID, categoryID)
		}
		amount := core.Money{Cents: 700}
		_, err := s.repo.UpdateTransaction(s.ctx, a.ID, txIDs[i], core.TransactionPatch{Amount: &amount})
		return err
	})

	deleted := 0
	for i, err := range errs {
		if i%2 == 0 {
			if err == nil {
				deleted++
				continue
			}
			assert.ErrorIs(s.T(), err, core.ErrNotFound, "delete %d", i)
			continue
		}
		assert.NoError(s.T(), err, "update %d", i)
	}
	assert.Equal(s.T(), 1, deleted)

	_, err := s.repo.GetCategory(s.ctx, a.ID, categoryID)
	assert.ErrorIs(s.T(), err, core.ErrNotFound)

	txs, err := s.repo.ListTransactions(s.ctx, a.ID, core.TransactionFilter{})
	require.NoError(s.T(), err)
	require.Len(s.T(), txs, concurrentWriters)
	for _, tx := range txs {
		assert.Nil(s.T(), tx.CategoryID, "transaction %d still references deleted category", tx.ID)
	}
}

func TestRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(RepositoryTestSuite))
}
