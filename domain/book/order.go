package book

import "github.com/shopspring/decimal"

type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Notifier is the capability a client hands over with each order so the
// book can report what happened to it. Calls are made synchronously
// while the security's critical section is held; implementations that
// deliver over a slow channel must hand the event off and return.
type Notifier interface {
	// Matched reports a fill: how many units traded, at what price, and
	// whether this owner was the buying side.
	Matched(security string, quantity int64, price decimal.Decimal, isBuy bool) error

	// Cancelled reports that a resting order was cancelled at session end.
	Cancelled(security string) error

	// Updated reports the outcome of an update request. ok is false when
	// the order was not resting.
	Updated(orderID uint64, ok bool) error
}

// Order is the canonical record of an order inside the book. The book
// owns every Order it rests; callers only ever receive OrderView copies.
//
// Price and Side never change after creation. Remaining only decreases,
// except through an explicit update. PriorityTime is the tie-break
// timestamp and is reassigned only when an update costs the order its
// queue position; DisplayTime tracks the last touch and is informational.
type Order struct {
	ID       uint64
	Owner    string
	Security string
	Side     Side

	Price    decimal.Decimal
	Original int64

	Remaining    int64
	PriorityTime int64
	DisplayTime  int64

	notifier Notifier

	next  *Order
	prev  *Order
	level *PriceLevel
}

// Next allows read-only FIFO traversal within a price level.
func (o *Order) Next() *Order { return o.next }

// OrderView is a detached copy of a resting order, safe to hold after
// the book has moved on.
type OrderView struct {
	ID           uint64          `json:"order_id"`
	Owner        string          `json:"owner"`
	Security     string          `json:"security"`
	Side         Side            `json:"-"`
	SideName     string          `json:"side"`
	Price        decimal.Decimal `json:"price"`
	Original     int64           `json:"original_quantity"`
	Remaining    int64           `json:"remaining_quantity"`
	PriorityTime int64           `json:"priority_time"`
	DisplayTime  int64           `json:"display_time"`
}

func (o *Order) view() OrderView {
	return OrderView{
		ID:           o.ID,
		Owner:        o.Owner,
		Security:     o.Security,
		Side:         o.Side,
		SideName:     o.Side.String(),
		Price:        o.Price,
		Original:     o.Original,
		Remaining:    o.Remaining,
		PriorityTime: o.PriorityTime,
		DisplayTime:  o.DisplayTime,
	}
}
