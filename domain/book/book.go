package book

import (
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"matchbook/infra/memory"
)

// Fill describes one execution produced by the match loop.
type Fill struct {
	Security    string
	Price       decimal.Decimal
	Quantity    int64
	BuyOrderID  uint64
	SellOrderID uint64
	BuyOwner    string
	SellOwner   string
	Time        int64
}

// SubmitRequest carries the terms of a new order into the book.
// OrderID is assigned by the caller (the service owns the sequencer).
type SubmitRequest struct {
	OrderID  uint64
	Owner    string
	Security string
	Side     Side
	Quantity int64
	Price    decimal.Decimal
	Notifier Notifier
}

// SubmitResult reports what a submission did. Notional is the
// cumulative price*quantity over all fills, zero if the order only
// queued.
type SubmitResult struct {
	OrderID   uint64
	Notional  decimal.Decimal
	Fills     []Fill
	Remaining int64
	Rested    bool
}

// UpdateRequest changes the terms of a resting order. Notifier is only
// consulted when the order no longer rests; a found order answers
// through the notifier it was submitted with.
type UpdateRequest struct {
	OrderID  uint64
	Security string
	Quantity int64
	Price    decimal.Decimal
	Notifier Notifier
}

// securityBook is all state for one security: both sides plus lookup
// indexes. One mutex guards the whole struct, so a submit/update/cancel
// for this security runs as a single atomic unit while other securities
// proceed in parallel. No operation ever holds two securityBook locks.
type securityBook struct {
	security string

	mu   sync.Mutex
	bids *RBTree
	asks *RBTree

	byID    map[uint64]*Order
	byOwner map[string]map[uint64]*Order
}

func newSecurityBook(security string) *securityBook {
	return &securityBook{
		security: security,
		bids:     NewRBTree(),
		asks:     NewRBTree(),
		byID:     make(map[uint64]*Order),
		byOwner:  make(map[string]map[uint64]*Order),
	}
}

// Book maps securities to their side queues. The outer lock only guards
// the map itself; it is never held while matching.
type Book struct {
	mu         sync.RWMutex
	securities map[string]*securityBook

	pool *memory.Pool[Order]
}

func New() *Book {
	return &Book{
		securities: make(map[string]*securityBook),
		pool: memory.NewPool(func() *Order {
			return &Order{}
		}),
	}
}

func (b *Book) shard(security string, create bool) *securityBook {
	b.mu.RLock()
	sb := b.securities[security]
	b.mu.RUnlock()
	if sb != nil || !create {
		return sb
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if sb = b.securities[security]; sb == nil {
		sb = newSecurityBook(security)
		b.securities[security] = sb
	}
	return sb
}

func (b *Book) shards() []*securityBook {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*securityBook, 0, len(b.securities))
	for _, sb := range b.securities {
		out = append(out, sb)
	}
	return out
}

// Submit matches an incoming order against the opposite side and rests
// any remainder on its own side. Both counterparties are notified per
// fill, while the security's critical section is still held.
func (b *Book) Submit(req SubmitRequest) (*SubmitResult, error) {
	if req.Quantity <= 0 || req.Price.Sign() <= 0 {
		return nil, ErrInvalidOrder
	}

	sb := b.shard(req.Security, true)
	sb.mu.Lock()
	defer sb.mu.Unlock()

	// An owner must never trade with themselves. Rejecting any
	// submission that faces the owner's own resting orders keeps the
	// match loop free of same-owner skips.
	if sb.ownerRestsOn(req.Owner, req.Side.Opposite()) {
		return nil, ErrSelfTrade
	}

	now := time.Now().UnixNano()
	o := b.pool.Get()
	*o = Order{
		ID:           req.OrderID,
		Owner:        req.Owner,
		Security:     req.Security,
		Side:         req.Side,
		Price:        req.Price,
		Original:     req.Quantity,
		Remaining:    req.Quantity,
		PriorityTime: now,
		DisplayTime:  now,
		notifier:     req.Notifier,
	}

	res := &SubmitResult{OrderID: o.ID, Notional: decimal.Zero}
	sb.match(b, o, res)

	res.Remaining = o.Remaining
	if o.Remaining > 0 {
		sb.enqueue(o)
		res.Rested = true
	} else {
		b.release(o)
	}
	return res, nil
}

// match runs the crossing loop: repeatedly take the best opposite
// level, trade against its oldest order at the resting price, and stop
// when the incoming order is exhausted or no longer crosses.
func (sb *securityBook) match(b *Book, o *Order, res *SubmitResult) {
	for o.Remaining > 0 {
		var best *PriceLevel
		if o.Side == Buy {
			best = sb.asks.MinLevel()
			if best == nil || best.Price.GreaterThan(o.Price) {
				return
			}
		} else {
			best = sb.bids.MaxLevel()
			if best == nil || best.Price.LessThan(o.Price) {
				return
			}
		}

		maker := best.Head()
		fill := min(o.Remaining, maker.Remaining)

		o.Remaining -= fill
		maker.Remaining -= fill
		if o.Remaining < 0 || maker.Remaining < 0 {
			panic("book: remaining quantity went negative")
		}
		best.reduce(fill)

		now := time.Now().UnixNano()
		o.DisplayTime = now
		maker.DisplayTime = now

		// Price improvement goes to the aggressor: the trade happens at
		// the resting order's price.
		price := best.Price
		res.Notional = res.Notional.Add(price.Mul(decimal.NewFromInt(fill)))

		f := Fill{
			Security: sb.security,
			Price:    price,
			Quantity: fill,
			Time:     now,
		}
		if o.Side == Buy {
			f.BuyOrderID, f.BuyOwner = o.ID, o.Owner
			f.SellOrderID, f.SellOwner = maker.ID, maker.Owner
		} else {
			f.BuyOrderID, f.BuyOwner = maker.ID, maker.Owner
			f.SellOrderID, f.SellOwner = o.ID, o.Owner
		}
		res.Fills = append(res.Fills, f)

		notify(maker.notifier, func(n Notifier) error {
			return n.Matched(sb.security, fill, price, maker.Side == Buy)
		})
		notify(o.notifier, func(n Notifier) error {
			return n.Matched(sb.security, fill, price, o.Side == Buy)
		})

		if maker.Remaining == 0 {
			best.PopHead()
			sb.unindex(maker)
			b.release(maker)
		}
		if best.Empty() {
			if o.Side == Buy {
				sb.asks.DeleteLevel(price)
			} else {
				sb.bids.DeleteLevel(price)
			}
		}
	}
}

// Update applies new terms to a resting order. Decreasing the quantity
// at an unchanged price keeps the order's queue position; any other
// change unlinks it and re-queues it with a fresh priority time, behind
// everything that tied with or beat it before. The book does not re-run
// the match loop for updated orders.
func (b *Book) Update(req UpdateRequest) error {
	if req.Quantity <= 0 || req.Price.Sign() <= 0 {
		return ErrInvalidOrder
	}

	sb := b.shard(req.Security, false)
	if sb == nil {
		notify(req.Notifier, func(n Notifier) error {
			return n.Updated(req.OrderID, false)
		})
		return ErrOrderNotFound
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()

	o, ok := sb.byID[req.OrderID]
	if !ok {
		notify(req.Notifier, func(n Notifier) error {
			return n.Updated(req.OrderID, false)
		})
		return ErrOrderNotFound
	}

	now := time.Now().UnixNano()
	if req.Price.Equal(o.Price) && req.Quantity < o.Remaining {
		o.level.reduce(o.Remaining - req.Quantity)
		o.Remaining = req.Quantity
		o.DisplayTime = now
	} else {
		sb.removeResting(o)
		o.Price = req.Price
		o.Original = req.Quantity
		o.Remaining = req.Quantity
		o.PriorityTime = now
		o.DisplayTime = now
		sb.enqueue(o)
	}

	notify(o.notifier, func(n Notifier) error {
		return n.Updated(o.ID, true)
	})
	return nil
}

// CancelByOwner silently removes every resting order that belongs to
// the owner, on both sides of every security. Calling it again is a
// no-op.
func (b *Book) CancelByOwner(owner string) {
	for _, sb := range b.shards() {
		sb.mu.Lock()
		for _, o := range sb.ownedOrders(owner) {
			sb.removeResting(o)
			b.release(o)
		}
		sb.mu.Unlock()
	}
}

// EndSession notifies the owner of every resting order that it was
// cancelled, then clears the whole book. The session is over; the book
// is not meant to take further submissions.
func (b *Book) EndSession() {
	for _, sb := range b.shards() {
		sb.mu.Lock()
		orders := make([]*Order, 0, len(sb.byID))
		for _, o := range sb.byID {
			orders = append(orders, o)
		}
		for _, o := range orders {
			notify(o.notifier, func(n Notifier) error {
				return n.Cancelled(o.Security)
			})
			sb.removeResting(o)
			b.release(o)
		}
		sb.mu.Unlock()
	}

	b.mu.Lock()
	b.securities = make(map[string]*securityBook)
	b.mu.Unlock()
}

// Snapshot copies every resting order. Within one security the result
// is priority-ordered (best price first, oldest first on ties); the
// order across securities is unspecified.
func (b *Book) Snapshot() []OrderView {
	var out []OrderView
	for _, sb := range b.shards() {
		sb.mu.Lock()
		walk := func(lvl *PriceLevel) bool {
			for o := lvl.Head(); o != nil; o = o.Next() {
				out = append(out, o.view())
			}
			return true
		}
		sb.bids.ForEachDescending(walk)
		sb.asks.ForEachAscending(walk)
		sb.mu.Unlock()
	}
	return out
}

/******************** shard internals ********************/

func (sb *securityBook) enqueue(o *Order) {
	if o.Security != sb.security {
		panic("book: order enqueued into wrong security")
	}

	var lvl *PriceLevel
	if o.Side == Buy {
		lvl = sb.bids.UpsertLevel(o.Price)
	} else {
		lvl = sb.asks.UpsertLevel(o.Price)
	}
	lvl.Enqueue(o)

	sb.byID[o.ID] = o
	owned := sb.byOwner[o.Owner]
	if owned == nil {
		owned = make(map[uint64]*Order)
		sb.byOwner[o.Owner] = owned
	}
	owned[o.ID] = o
}

// removeResting unlinks an order from its level, drops empty levels,
// and clears the indexes. The caller decides whether to release or
// re-queue the order.
func (sb *securityBook) removeResting(o *Order) {
	lvl := o.level
	price := lvl.Price
	lvl.Unlink(o)
	if lvl.Empty() {
		if o.Side == Buy {
			sb.bids.DeleteLevel(price)
		} else {
			sb.asks.DeleteLevel(price)
		}
	}
	sb.unindex(o)
}

func (sb *securityBook) unindex(o *Order) {
	delete(sb.byID, o.ID)
	if owned := sb.byOwner[o.Owner]; owned != nil {
		delete(owned, o.ID)
		if len(owned) == 0 {
			delete(sb.byOwner, o.Owner)
		}
	}
}

func (sb *securityBook) ownerRestsOn(owner string, side Side) bool {
	for _, o := range sb.byOwner[owner] {
		if o.Side == side {
			return true
		}
	}
	return false
}

func (sb *securityBook) ownedOrders(owner string) []*Order {
	owned := sb.byOwner[owner]
	if len(owned) == 0 {
		return nil
	}
	out := make([]*Order, 0, len(owned))
	for _, o := range owned {
		out = append(out, o)
	}
	return out
}

func (b *Book) release(o *Order) {
	*o = Order{}
	b.pool.Put(o)
}

// notify isolates a notifier call: a nil notifier is skipped, an error
// is logged, a panic is contained. The trade or cancellation already
// happened; only the notification can be lost.
func notify(n Notifier, fn func(Notifier) error) {
	if n == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[book] notifier panicked: %v", r)
		}
	}()
	if err := fn(n); err != nil {
		log.Printf("[book] notifier unreachable: %v", err)
	}
}
