package service

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/creditledger/internal/config"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	"github.com/smallbiznis/creditledger/internal/ratelimit"
	usagedomain "github.com/smallbiznis/creditledger/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ledgerMock struct {
	mock.Mock
}

func (m *ledgerMock) GetBalance(ctx context.Context, userID int64) (ledgerdomain.Balance, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(ledgerdomain.Balance), args.Error(1)
}

func (m *ledgerMock) Reserve(ctx context.Context, userID int64) (ledgerdomain.Reservation, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(ledgerdomain.Reservation), args.Error(1)
}

func (m *ledgerMock) Rollback(ctx context.Context, userID int64, usedFree bool) error {
	return m.Called(ctx, userID, usedFree).Error(0)
}

func (m *ledgerMock) Commit(ctx context.Context, req ledgerdomain.CommitRequest) (ledgerdomain.CommitResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(ledgerdomain.CommitResult), args.Error(1)
}

func (m *ledgerMock) CreditFree(ctx context.Context, tx *gorm.DB, accountID snowflake.ID, credits int) error {
	return m.Called(ctx, tx, accountID, credits).Error(0)
}

func (m *ledgerMock) Summary(ctx context.Context) (ledgerdomain.Summary, error) {
	args := m.Called(ctx)
	return args.Get(0).(ledgerdomain.Summary), args.Error(1)
}

func (m *ledgerMock) UTMStats(ctx context.Context) ([]ledgerdomain.UTMStat, error) {
	args := m.Called(ctx)
	return args.Get(0).([]ledgerdomain.UTMStat), args.Error(1)
}

func (m *ledgerMock) Funnel(ctx context.Context) (ledgerdomain.Funnel, error) {
	args := m.Called(ctx)
	return args.Get(0).(ledgerdomain.Funnel), args.Error(1)
}

func newTestService(ledger *ledgerMock, limiter *ratelimit.ReservationLimiter) usagedomain.Service {
	return NewService(ServiceParam{Log: zap.NewNop(), Ledger: ledger, Limiter: limiter})
}

func TestReserveDelegatesToLedger(t *testing.T) {
	ledger := &ledgerMock{}
	ledger.On("Reserve", mock.Anything, int64(5)).Return(ledgerdomain.Reservation{Granted: true, UsedFree: true}, nil)

	res, err := newTestService(ledger, nil).Reserve(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, res.UsedFree)
	ledger.AssertExpectations(t)
}

func TestReserveRejectsInvalidUser(t *testing.T) {
	ledger := &ledgerMock{}
	_, err := newTestService(ledger, nil).Reserve(context.Background(), 0)
	assert.ErrorIs(t, err, usagedomain.ErrInvalidUserID)
	ledger.AssertNotCalled(t, "Reserve", mock.Anything, mock.Anything)
}

func TestReserveRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter := ratelimit.NewReservationLimiter(client, config.Config{Redis: config.RedisConfig{ReserveRate: 0.001, ReserveBurst: 1}})

	ledger := &ledgerMock{}
	ledger.On("Reserve", mock.Anything, int64(5)).Return(ledgerdomain.Reservation{Granted: true}, nil).Once()
	svc := newTestService(ledger, limiter)

	_, err := svc.Reserve(context.Background(), 5)
	require.NoError(t, err)

	_, err = svc.Reserve(context.Background(), 5)
	assert.ErrorIs(t, err, usagedomain.ErrRateLimited)
	ledger.AssertNumberOfCalls(t, "Reserve", 1)
}

func TestReserveFailsOpenWhenLimiterDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter := ratelimit.NewReservationLimiter(client, config.Config{Redis: config.RedisConfig{ReserveRate: 1, ReserveBurst: 1}})
	mr.Close()

	ledger := &ledgerMock{}
	ledger.On("Reserve", mock.Anything, int64(5)).Return(ledgerdomain.Reservation{Granted: true}, nil)

	res, err := newTestService(ledger, limiter).Reserve(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, res.Granted)
}

func TestFinalizeSuccessCommits(t *testing.T) {
	ledger := &ledgerMock{}
	record := ledgerdomain.ConsumptionRecord{IsFree: true, ProcessedFileID: "out"}
	ledger.On("Commit", mock.Anything, ledgerdomain.CommitRequest{UserID: 5, UsedFree: true, ProcessedFileID: "out"}).
		Return(ledgerdomain.CommitResult{Record: record, FirstUse: true}, nil)

	res, err := newTestService(ledger, nil).Finalize(context.Background(), usagedomain.FinalizeRequest{
		UserID: 5, UsedFree: true, Success: true, ProcessedFileID: "out",
	})
	require.NoError(t, err)
	assert.True(t, res.Committed)
	assert.True(t, res.FirstUse)
	require.NotNil(t, res.Record)
	assert.Equal(t, "out", res.Record.ProcessedFileID)
	ledger.AssertNotCalled(t, "Rollback", mock.Anything, mock.Anything, mock.Anything)
}

func TestFinalizeFailureRollsBack(t *testing.T) {
	ledger := &ledgerMock{}
	ledger.On("Rollback", mock.Anything, int64(5), true).Return(nil)

	res, err := newTestService(ledger, nil).Finalize(context.Background(), usagedomain.FinalizeRequest{UserID: 5, UsedFree: true})
	require.NoError(t, err)
	assert.False(t, res.Committed)
	ledger.AssertExpectations(t)
	ledger.AssertNotCalled(t, "Commit", mock.Anything, mock.Anything)
}

func TestFinalizePropagatesLedgerErrors(t *testing.T) {
	ledger := &ledgerMock{}
	boom := errors.New("boom")
	ledger.On("Rollback", mock.Anything, int64(5), false).Return(boom)

	_, err := newTestService(ledger, nil).Finalize(context.Background(), usagedomain.FinalizeRequest{UserID: 5})
	assert.ErrorIs(t, err, boom)
}
