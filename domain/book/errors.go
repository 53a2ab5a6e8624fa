package book

import "errors"

// Business-rule rejections. These are ordinary results for the caller;
// none of them leaves any trace in the book.
var (
	// ErrInvalidOrder rejects a non-positive quantity or price.
	ErrInvalidOrder = errors.New("book: invalid order")

	// ErrSelfTrade rejects a submission whose owner already has a
	// resting order on the opposite side of the same security.
	ErrSelfTrade = errors.New("book: self trade rejected")

	// ErrOrderNotFound means an update referenced an id that is not
	// resting. The requester is also told through its Notifier.
	ErrOrderNotFound = errors.New("book: order not found")
)
