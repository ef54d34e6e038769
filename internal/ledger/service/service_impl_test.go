package service_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/creditledger/internal/account/domain"
	accountrepo "github.com/smallbiznis/creditledger/internal/account/repository"
	catalogdomain "github.com/smallbiznis/creditledger/internal/catalog/domain"
	"github.com/smallbiznis/creditledger/internal/clock"
	"github.com/smallbiznis/creditledger/internal/ledger/domain"
	"github.com/smallbiznis/creditledger/internal/ledger/repository"
	"github.com/smallbiznis/creditledger/internal/ledger/service"
	orderdomain "github.com/smallbiznis/creditledger/internal/order/domain"
	"github.com/smallbiznis/creditledger/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db   *gorm.DB
	node *snowflake.Node
	svc  domain.Service
	now  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	node := testutil.Node(t, 3)
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	svc := service.New(service.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     repository.Provide(),
		Accounts: accountrepo.Provide(),
		Clock:    clock.NewFakeClock(now),
	})
	return &fixture{db: db, node: node, svc: svc, now: now}
}

func (f *fixture) seedAccount(t *testing.T, userID int64, free int) accountdomain.Account {
	t.Helper()
	account := accountdomain.Account{
		ID:          f.node.Generate(),
		UserID:      userID,
		FreeCredits: free,
		CreatedAt:   f.now,
		UpdatedAt:   f.now,
	}
	require.NoError(t, f.db.Create(&account).Error)
	return account
}

// seedPaidOrder gives the account a settled purchase of credits.
func (f *fixture) seedPaidOrder(t *testing.T, accountID snowflake.ID, credits int) {
	t.Helper()
	pkg := catalogdomain.Package{
		ID:          f.node.Generate(),
		Name:        "pack",
		CreditCount: credits,
		Price:       decimal.NewFromInt(100),
		Active:      true,
		CreatedAt:   f.now,
		UpdatedAt:   f.now,
	}
	require.NoError(t, f.db.Create(&pkg).Error)

	ref := f.node.Generate().String()
	paidAt := f.now
	order := orderdomain.Order{
		ID:                f.node.Generate(),
		AccountID:         accountID,
		PackageID:         pkg.ID,
		ExternalReference: &ref,
		Amount:            pkg.Price,
		Status:            orderdomain.StatusPaid,
		CreatedAt:         f.now,
		PaidAt:            &paidAt,
	}
	require.NoError(t, f.db.Create(&order).Error)
}

func TestGetBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	account := f.seedAccount(t, 100, 3)
	f.seedPaidOrder(t, account.ID, 5)

	bal, err := f.svc.GetBalance(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, domain.Balance{Free: 3, Paid: 5, Total: 8}, bal)

	_, err = f.svc.GetBalance(ctx, 999)
	assert.ErrorIs(t, err, accountdomain.ErrNotFound)
}

func TestReserveUsesFreeCreditsFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	account := f.seedAccount(t, 100, 1)
	f.seedPaidOrder(t, account.ID, 2)

	res, err := f.svc.Reserve(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, domain.Reservation{Granted: true, UsedFree: true}, res)

	res, err = f.svc.Reserve(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, domain.Reservation{Granted: true, UsedFree: false}, res)

	bal, err := f.svc.GetBalance(ctx, 100)
	require.NoError(t, err)
	// paid reservations write nothing until commit
	assert.Equal(t, domain.Balance{Free: 0, Paid: 2, Total: 2}, bal)
}

func TestReserveDeniedWithoutBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedAccount(t, 100, 0)

	res, err := f.svc.Reserve(ctx, 100)
	require.NoError(t, err)
	assert.False(t, res.Granted)

	res, err = f.svc.Reserve(ctx, 404)
	require.NoError(t, err)
	assert.Equal(t, domain.Reservation{}, res)
}

func TestReserveRollbackRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedAccount(t, 100, 2)

	before, err := f.svc.GetBalance(ctx, 100)
	require.NoError(t, err)

	res, err := f.svc.Reserve(ctx, 100)
	require.NoError(t, err)
	require.True(t, res.UsedFree)
	require.NoError(t, f.svc.Rollback(ctx, 100, res.UsedFree))

	after, err := f.svc.GetBalance(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRollbackPaidIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	account := f.seedAccount(t, 100, 0)
	f.seedPaidOrder(t, account.ID, 1)

	require.NoError(t, f.svc.Rollback(ctx, 100, false))
	require.NoError(t, f.svc.Rollback(ctx, 404, true))

	bal, err := f.svc.GetBalance(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, domain.Balance{Free: 0, Paid: 1, Total: 1}, bal)
}

func TestConcurrentReserveGrantsSingleFreeCreditOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedAccount(t, 100, 1)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
		errs    []error
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			res, err := f.svc.Reserve(ctx, 100)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if res.Granted && res.UsedFree {
				granted++
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, errs)
	assert.Equal(t, 1, granted)

	bal, err := f.svc.GetBalance(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, bal.Free)
}

// countAccountLocks counts account lookups issued with FOR UPDATE. sqlite
// drops the clause when rendering, but it is still on the statement.
func countAccountLocks(t *testing.T, db *gorm.DB) *atomic.Int64 {
	t.Helper()
	var n atomic.Int64
	err := db.Callback().Query().Before("gorm:query").Register("test:count_account_locks", func(tx *gorm.DB) {
		if _, locked := tx.Statement.Clauses["FOR"]; locked && tx.Statement.Table == "accounts" {
			n.Add(1)
		}
	})
	require.NoError(t, err)
	return &n
}

func TestMutationsLockAccountRow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	account := f.seedAccount(t, 100, 2)
	f.seedPaidOrder(t, account.ID, 1)
	locks := countAccountLocks(t, f.db)

	_, err := f.svc.GetBalance(ctx, 100)
	require.NoError(t, err)
	assert.Zero(t, locks.Load())

	res, err := f.svc.Reserve(ctx, 100)
	require.NoError(t, err)
	require.True(t, res.UsedFree)
	assert.EqualValues(t, 1, locks.Load())

	require.NoError(t, f.svc.Rollback(ctx, 100, true))
	assert.EqualValues(t, 2, locks.Load())

	_, err = f.svc.Commit(ctx, domain.CommitRequest{UserID: 100, UsedFree: false})
	require.NoError(t, err)
	assert.EqualValues(t, 3, locks.Load())

	err = f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.CreditFree(ctx, tx, account.ID, 1)
	})
	require.NoError(t, err)
	assert.EqualValues(t, 4, locks.Load())
}

func TestCommitRecordsConsumption(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	account := f.seedAccount(t, 100, 1)
	f.seedPaidOrder(t, account.ID, 2)

	res, err := f.svc.Reserve(ctx, 100)
	require.NoError(t, err)
	first, err := f.svc.Commit(ctx, domain.CommitRequest{UserID: 100, UsedFree: res.UsedFree, OriginalFileID: "in-1", ProcessedFileID: "out-1"})
	require.NoError(t, err)
	assert.True(t, first.FirstUse)
	assert.True(t, first.Record.IsFree)
	assert.Equal(t, f.now, first.Record.CreatedAt)

	res, err = f.svc.Reserve(ctx, 100)
	require.NoError(t, err)
	require.False(t, res.UsedFree)
	second, err := f.svc.Commit(ctx, domain.CommitRequest{UserID: 100, UsedFree: res.UsedFree})
	require.NoError(t, err)
	assert.False(t, second.FirstUse)

	bal, err := f.svc.GetBalance(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, domain.Balance{Free: 0, Paid: 1, Total: 1}, bal)

	testutil.AssertCount(t, f.db, "consumption_records", 2, "account_id = ?", account.ID)
	testutil.AssertCount(t, f.db, "accounts", 1, "id = ? AND lifetime_consumed = ?", account.ID, 2)
}

func TestPaidBalanceNeverNegative(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	account := f.seedAccount(t, 100, 0)
	f.seedPaidOrder(t, account.ID, 1)

	// two paid grants race past the same remaining credit
	for i := 0; i < 2; i++ {
		res, err := f.svc.Reserve(ctx, 100)
		require.NoError(t, err)
		require.True(t, res.Granted)
	}
	for i := 0; i < 2; i++ {
		_, err := f.svc.Commit(ctx, domain.CommitRequest{UserID: 100})
		require.NoError(t, err)
	}

	bal, err := f.svc.GetBalance(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, domain.Balance{}, bal)

	res, err := f.svc.Reserve(ctx, 100)
	require.NoError(t, err)
	assert.False(t, res.Granted)
}

func TestCommitUnknownAccount(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Commit(context.Background(), domain.CommitRequest{UserID: 1})
	assert.ErrorIs(t, err, accountdomain.ErrNotFound)
}

func TestCreditFree(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	account := f.seedAccount(t, 100, 0)

	err := f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.CreditFree(ctx, tx, account.ID, 5)
	})
	require.NoError(t, err)

	bal, err := f.svc.GetBalance(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 5, bal.Free)

	assert.ErrorIs(t, f.svc.CreditFree(ctx, f.db, account.ID, 0), domain.ErrInvalidCredits)
	assert.ErrorIs(t, f.svc.CreditFree(ctx, f.db, f.node.Generate(), 1), accountdomain.ErrNotFound)
}

func TestSummary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	account := f.seedAccount(t, 100, 1)
	f.seedAccount(t, 200, 1)
	f.seedPaidOrder(t, account.ID, 3)

	_, err := f.svc.Commit(ctx, domain.CommitRequest{UserID: 100, UsedFree: true})
	require.NoError(t, err)

	summary, err := f.svc.Summary(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, summary.TotalAccounts)
	assert.EqualValues(t, 1, summary.TotalConsumptions)
	assert.EqualValues(t, 1, summary.FreeConsumptions)
	assert.EqualValues(t, 1, summary.PaidOrders)
	assert.EqualValues(t, 0, summary.PendingOrders)
	assert.True(t, summary.Revenue.Equal(decimal.NewFromInt(100)))
}

func (f *fixture) seedAttributed(t *testing.T, userID int64, source, campaign string) accountdomain.Account {
	t.Helper()
	account := accountdomain.Account{
		ID:          f.node.Generate(),
		UserID:      userID,
		Attribution: accountdomain.Attribution{Source: source, Medium: "cpc", Campaign: campaign},
		CreatedAt:   f.now,
		UpdatedAt:   f.now,
	}
	require.NoError(t, f.db.Create(&account).Error)
	return account
}

func TestUTMStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	buyer := f.seedAttributed(t, 1, "yandex", "spring")
	f.seedAttributed(t, 2, "yandex", "spring")
	f.seedAttributed(t, 3, "yandex", "spring")
	vk := f.seedAttributed(t, 4, "vk", "promo")
	f.seedAccount(t, 5, 1)

	// two orders from one buyer must not inflate the user count
	f.seedPaidOrder(t, buyer.ID, 5)
	f.seedPaidOrder(t, buyer.ID, 10)
	f.seedPaidOrder(t, vk.ID, 5)

	stats, err := f.svc.UTMStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	yandex := stats[0]
	assert.Equal(t, "yandex", yandex.Source)
	assert.Equal(t, "cpc", yandex.Medium)
	assert.Equal(t, "spring", yandex.Campaign)
	assert.EqualValues(t, 3, yandex.Users)
	assert.EqualValues(t, 1, yandex.PayingUsers)
	assert.Equal(t, 33.33, yandex.ConversionRate)
	assert.True(t, yandex.Revenue.Equal(decimal.NewFromInt(200)), yandex.Revenue.String())
	assert.True(t, yandex.ARPU.Equal(decimal.RequireFromString("66.67")), yandex.ARPU.String())

	assert.Equal(t, "vk", stats[1].Source)
	assert.EqualValues(t, 1, stats[1].Users)
	assert.Equal(t, 100.0, stats[1].ConversionRate)
}

func TestFunnel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	empty, err := f.svc.Funnel(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Funnel{}, empty)

	buyer := f.seedAttributed(t, 1, "yandex", "spring")
	f.seedAttributed(t, 2, "yandex", "spring")
	f.seedAttributed(t, 3, "vk", "promo")
	f.seedAttributed(t, 4, "vk", "promo")
	organic := f.seedAccount(t, 5, 1)

	for _, userID := range []int64{1, 1, 2, 5} {
		_, err := f.svc.Commit(ctx, domain.CommitRequest{UserID: userID, UsedFree: true})
		require.NoError(t, err)
	}
	f.seedPaidOrder(t, buyer.ID, 5)
	f.seedPaidOrder(t, organic.ID, 5)

	funnel, err := f.svc.Funnel(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Funnel{
		Starts:                 4,
		FirstUses:              2,
		Purchases:              1,
		StartToFirstUseRate:    50,
		FirstUseToPurchaseRate: 50,
		OverallConversionRate:  25,
	}, funnel)
}
