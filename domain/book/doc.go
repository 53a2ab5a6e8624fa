// Package book implements the in-memory limit order book and its
// price-time priority matching engine. Each security keeps two
// red-black trees of price levels (bids and asks); every level holds a
// FIFO queue of resting orders, so price priority comes from the tree
// and time priority from queue position.
//
// All state for one security is guarded by one mutex, so submissions
// for different securities run in parallel while the match loop for a
// single security executes atomically. Owners are informed of fills,
// cancellations and update results through the Notifier capability
// attached to each order; a failing notifier never affects book state.
package book
