package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchbook/domain/book"
	"matchbook/infra/kafka"
	"matchbook/infra/sequence"
)

type fakeFeed struct {
	mu   sync.Mutex
	sent []kafka.Trade
	err  error
}

func (f *fakeFeed) PublishTrade(_ context.Context, tr kafka.Trade) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, tr)
	return nil
}

func (f *fakeFeed) trades() []kafka.Trade {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kafka.Trade(nil), f.sent...)
}

func newTestService(feed TradeFeed) *OrderService {
	return NewOrderService(book.New(), sequence.New(0), nil, feed)
}

func TestPlaceOrderRejectedWhenClosed(t *testing.T) {
	svc := newTestService(nil)

	_, err := svc.PlaceOrder(context.Background(), "alice", "AAPL", book.Buy, 1, decimal.NewFromInt(10))
	require.ErrorIs(t, err, ErrSessionClosed)

	err = svc.UpdateOrder(context.Background(), "alice", 1, "AAPL", 1, decimal.NewFromInt(10))
	require.ErrorIs(t, err, ErrSessionClosed)
}

func TestPlaceOrderAssignsSequentialIDs(t *testing.T) {
	svc := newTestService(nil)
	svc.OpenSession()

	r1, err := svc.PlaceOrder(context.Background(), "alice", "AAPL", book.Buy, 1, decimal.NewFromInt(10))
	require.NoError(t, err)
	r2, err := svc.PlaceOrder(context.Background(), "bob", "GOOG", book.Buy, 1, decimal.NewFromInt(10))
	require.NoError(t, err)

	assert.Equal(t, r1.OrderID+1, r2.OrderID)
}

func TestPlaceOrderPublishesTrades(t *testing.T) {
	feed := &fakeFeed{}
	svc := newTestService(feed)
	svc.OpenSession()

	_, err := svc.PlaceOrder(context.Background(), "seller", "AAPL", book.Sell, 2, decimal.RequireFromString("9.00"))
	require.NoError(t, err)
	res, err := svc.PlaceOrder(context.Background(), "buyer", "AAPL", book.Buy, 1, decimal.RequireFromString("10.00"))
	require.NoError(t, err)
	require.Len(t, res.Fills, 1)

	trades := feed.trades()
	require.Len(t, trades, 1)
	tr := trades[0]
	assert.NotEmpty(t, tr.TradeID)
	assert.Equal(t, "AAPL", tr.Security)
	assert.True(t, tr.Price.Equal(decimal.RequireFromString("9.00")), "trade at resting price, got %s", tr.Price)
	assert.Equal(t, int64(1), tr.Quantity)
	assert.Equal(t, res.OrderID, tr.BuyOrderID)
}

func TestFeedFailureDoesNotFailOrder(t *testing.T) {
	feed := &fakeFeed{err: errors.New("broker down")}
	svc := newTestService(feed)
	svc.OpenSession()

	_, err := svc.PlaceOrder(context.Background(), "seller", "AAPL", book.Sell, 1, decimal.NewFromInt(10))
	require.NoError(t, err)
	res, err := svc.PlaceOrder(context.Background(), "buyer", "AAPL", book.Buy, 1, decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.Len(t, res.Fills, 1)
}

func TestOwnerExitAllowedWhenClosed(t *testing.T) {
	svc := newTestService(nil)
	svc.OpenSession()
	_, err := svc.PlaceOrder(context.Background(), "alice", "AAPL", book.Buy, 1, decimal.NewFromInt(10))
	require.NoError(t, err)

	svc.EndSession()
	svc.OwnerExit("alice") // must not panic or reject
	assert.Empty(t, svc.Snapshot())
}

func TestEndSessionClearsBook(t *testing.T) {
	svc := newTestService(nil)
	svc.OpenSession()
	_, err := svc.PlaceOrder(context.Background(), "alice", "AAPL", book.Buy, 1, decimal.NewFromInt(10))
	require.NoError(t, err)
	require.Len(t, svc.Snapshot(), 1)

	svc.EndSession()
	assert.False(t, svc.SessionOpen())
	assert.Empty(t, svc.Snapshot())

	// Idempotent.
	svc.EndSession()
}

func TestSessionRunOpensAndClosesOnCancel(t *testing.T) {
	svc := newTestService(nil)
	sess := NewSession(svc, time.Time{}, time.Time{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	require.Eventually(t, svc.SessionOpen, time.Second, 5*time.Millisecond, "session should open immediately")

	cancel()
	require.NoError(t, <-done)
	assert.False(t, svc.SessionOpen())
}

func TestSessionRunHonoursEnd(t *testing.T) {
	svc := newTestService(nil)
	sess := NewSession(svc, time.Time{}, time.Now().Add(50*time.Millisecond))

	require.NoError(t, sess.Run(context.Background()))
	assert.False(t, svc.SessionOpen())
}

func TestSessionRunCancelledBeforeStart(t *testing.T) {
	svc := newTestService(nil)
	sess := NewSession(svc, time.Now().Add(time.Hour), time.Time{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sess.Run(ctx), context.Canceled)
	assert.False(t, svc.SessionOpen())
}
