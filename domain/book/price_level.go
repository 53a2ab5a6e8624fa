package book

import "github.com/shopspring/decimal"

// PriceLevel is a FIFO queue of resting orders at a single price.
type PriceLevel struct {
	Price decimal.Decimal

	head *Order
	tail *Order

	TotalQty   int64
	OrderCount int
}

func (p *PriceLevel) Enqueue(o *Order) {
	if p.head == nil {
		p.head = o
		p.tail = o
	} else {
		p.tail.next = o
		o.prev = p.tail
		p.tail = o
	}
	o.level = p
	p.TotalQty += o.Remaining
	p.OrderCount++
}

func (p *PriceLevel) PopHead() *Order {
	o := p.head
	if o == nil {
		return nil
	}

	p.head = o.next
	if p.head != nil {
		p.head.prev = nil
	} else {
		p.tail = nil
	}

	o.next = nil
	o.prev = nil
	o.level = nil

	p.TotalQty -= o.Remaining
	p.OrderCount--

	return o
}

// Unlink removes an order from anywhere in the queue. Used for cancels
// and updates that reposition an order; matching only ever pops the head.
func (p *PriceLevel) Unlink(o *Order) {
	if o.level != p {
		panic("book: unlink from wrong price level")
	}
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		p.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		p.tail = o.prev
	}

	o.next = nil
	o.prev = nil
	o.level = nil

	p.TotalQty -= o.Remaining
	p.OrderCount--
}

// reduce accounts for a partial fill or in-place quantity decrease of a
// queued order.
func (p *PriceLevel) reduce(qty int64) {
	p.TotalQty -= qty
	if p.TotalQty < 0 {
		panic("book: price level quantity went negative")
	}
}

func (p *PriceLevel) Empty() bool { return p.head == nil }

// Head returns the oldest resting order at this price.
func (p *PriceLevel) Head() *Order { return p.head }
