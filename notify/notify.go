// Package notify carries order events from the engine to their owners.
// The engine calls Notifiers synchronously inside the security's
// critical section, so the production implementation only appends the
// event to the journal; actual delivery happens in the broadcaster.
package notify

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"matchbook/domain/book"
	"matchbook/infra/journal"
)

// Event is the owner-facing notification payload.
type Event struct {
	V        int             `json:"v"`
	Type     string          `json:"type"`
	Owner    string          `json:"owner"`
	Security string          `json:"security,omitempty"`
	Quantity int64           `json:"quantity,omitempty"`
	Price    decimal.Decimal `json:"price,omitempty"`
	IsBuy    bool            `json:"is_buy,omitempty"`
	OrderID  uint64          `json:"order_id,omitempty"`
	OK       bool            `json:"ok,omitempty"`
	Time     int64           `json:"time"`
}

const (
	EventMatched   = "matched"
	EventCancelled = "cancelled"
	EventUpdated   = "updated"
)

// Outbox builds journal-backed notifiers, one per owner.
type Outbox struct {
	journal *journal.Journal
}

func NewOutbox(j *journal.Journal) *Outbox {
	return &Outbox{journal: j}
}

// For returns the Notifier handed to the book for one owner's orders.
func (ob *Outbox) For(owner string) book.Notifier {
	return &ownerNotifier{outbox: ob, owner: owner}
}

type ownerNotifier struct {
	outbox *Outbox
	owner  string
}

func (n *ownerNotifier) Matched(security string, quantity int64, price decimal.Decimal, isBuy bool) error {
	return n.append(Event{
		Type:     EventMatched,
		Security: security,
		Quantity: quantity,
		Price:    price,
		IsBuy:    isBuy,
	})
}

func (n *ownerNotifier) Cancelled(security string) error {
	return n.append(Event{
		Type:     EventCancelled,
		Security: security,
	})
}

func (n *ownerNotifier) Updated(orderID uint64, ok bool) error {
	return n.append(Event{
		Type:    EventUpdated,
		OrderID: orderID,
		OK:      ok,
	})
}

func (n *ownerNotifier) append(ev Event) error {
	ev.V = 1
	ev.Owner = n.owner
	ev.Time = time.Now().UnixNano()

	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = n.outbox.journal.Append(payload)
	return err
}
