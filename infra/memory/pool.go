// Package memory provides allocation helpers for the submit hot path.
package memory

import "sync"

// Pool is a typed object pool. The book allocates every Order from here
// and returns it once the order leaves the book.
type Pool[T any] struct {
	p *sync.Pool
}

func NewPool[T any](ctor func() *T) *Pool[T] {
	return &Pool[T]{
		p: &sync.Pool{
			New: func() any { return ctor() },
		},
	}
}

func (p *Pool[T]) Get() *T {
	return p.p.Get().(*T)
}

// Put returns an object to the pool. Callers must have zeroed it first;
// the pool does not know the type's reset semantics.
func (p *Pool[T]) Put(v *T) {
	p.p.Put(v)
}
