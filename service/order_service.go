package service

import (
	"context"
	"errors"
	"log"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"matchbook/domain/book"
	"matchbook/infra/kafka"
	"matchbook/infra/sequence"
)

/*
OrderService is the ONLY write entry point into the system.

All coordination between:
- domain (book)
- the notification outbox
- the trade feed
happens here. Transports (HTTP, the command consumer) only translate.
*/

// ErrSessionClosed rejects operations outside the trading window.
var ErrSessionClosed = errors.New("service: trading session closed")

// TradeFeed publishes executed trades for market data. May be absent.
type TradeFeed interface {
	PublishTrade(ctx context.Context, t kafka.Trade) error
}

// NotifierFactory builds the per-owner Notifier handed to the book.
type NotifierFactory interface {
	For(owner string) book.Notifier
}

type OrderService struct {
	book      *book.Book
	seq       *sequence.Sequencer
	notifiers NotifierFactory
	feed      TradeFeed

	open atomic.Bool
}

// NewOrderService wires all dependencies. notifiers and feed may be nil
// for callers that only want synchronous results.
func NewOrderService(b *book.Book, seq *sequence.Sequencer, notifiers NotifierFactory, feed TradeFeed) *OrderService {
	return &OrderService{
		book:      b,
		seq:       seq,
		notifiers: notifiers,
		feed:      feed,
	}
}

//
// ──────────────────────────────────────────────────────────
// Session gate
// ──────────────────────────────────────────────────────────
//

func (s *OrderService) OpenSession()      { s.open.Store(true) }
func (s *OrderService) SessionOpen() bool { return s.open.Load() }

// EndSession closes the gate, cancel-notifies every resting order and
// clears the book. Safe to call more than once.
func (s *OrderService) EndSession() {
	s.open.Store(false)
	s.book.EndSession()
}

//
// ──────────────────────────────────────────────────────────
// Commands
// ──────────────────────────────────────────────────────────
//

// PlaceOrder submits a new order and returns the match outcome,
// including the filled notional and the assigned order id.
func (s *OrderService) PlaceOrder(ctx context.Context, owner, security string, side book.Side, quantity int64, price decimal.Decimal) (*book.SubmitResult, error) {
	if !s.open.Load() {
		return nil, ErrSessionClosed
	}

	res, err := s.book.Submit(book.SubmitRequest{
		OrderID:  s.seq.Next(),
		Owner:    owner,
		Security: security,
		Side:     side,
		Quantity: quantity,
		Price:    price,
		Notifier: s.notifierFor(owner),
	})
	if err != nil {
		return nil, err
	}

	s.publishTrades(ctx, res.Fills)
	return res, nil
}

// UpdateOrder changes a resting order's terms. The outcome also reaches
// the owner through its notifier, found or not.
func (s *OrderService) UpdateOrder(_ context.Context, owner string, orderID uint64, security string, quantity int64, price decimal.Decimal) error {
	if !s.open.Load() {
		return ErrSessionClosed
	}

	return s.book.Update(book.UpdateRequest{
		OrderID:  orderID,
		Security: security,
		Quantity: quantity,
		Price:    price,
		Notifier: s.notifierFor(owner),
	})
}

// OwnerExit silently removes every order the owner still has resting.
// Allowed at any time; an exiting client should always be able to leave.
func (s *OrderService) OwnerExit(owner string) {
	s.book.CancelByOwner(owner)
}

//
// ──────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────
//

// Snapshot returns detached copies of all resting orders,
// priority-ordered within each security.
func (s *OrderService) Snapshot() []book.OrderView {
	return s.book.Snapshot()
}

//
// ──────────────────────────────────────────────────────────
// Internals
// ──────────────────────────────────────────────────────────
//

func (s *OrderService) notifierFor(owner string) book.Notifier {
	if s.notifiers == nil {
		return nil
	}
	return s.notifiers.For(owner)
}

// publishTrades is best-effort: the match already committed, so a feed
// hiccup is logged and nothing else.
func (s *OrderService) publishTrades(ctx context.Context, fills []book.Fill) {
	if s.feed == nil {
		return
	}
	for _, f := range fills {
		trade := kafka.Trade{
			TradeID:     uuid.NewString(),
			Security:    f.Security,
			Price:       f.Price,
			Quantity:    f.Quantity,
			BuyOrderID:  f.BuyOrderID,
			SellOrderID: f.SellOrderID,
			Time:        f.Time,
		}
		if err := s.feed.PublishTrade(ctx, trade); err != nil {
			log.Printf("[service] trade feed publish failed: %v", err)
		}
	}
}
