package encoder

import (
	"sync"
)

// Pool is a fixed set of reusable items handed out to one goroutine at a
// time, such as model sessions or batch buffers
type Pool[T any] struct {
	items chan T
	// size of pool
	size  int
	close sync.Once
	// release frees an item when the pool is closed, may be nil
	release func(T)
}

// NewPool creates a pool holding the given items
func NewPool[T any](items []T, release func(T)) *Pool[T] {

	p := &Pool[T]{
		items:   make(chan T, len(items)),
		size:    len(items),
		release: release,
	}

	for _, it := range items {
		p.Return(it)
	}

	return p
}

// Get takes an item from the pool, blocking until one is returned
func (p *Pool[T]) Get() T {
	return <-p.items
}

// Return an item to the pool. It must not be called after Close.
func (p *Pool[T]) Return(it T) {
	select {
	case p.items <- it:
	default:
		// pool is full
	}
}

// Size returns the number of items the pool was created with
func (p *Pool[T]) Size() int {
	return p.size
}

// Close the pool and release every item currently held by it
func (p *Pool[T]) Close() {
	p.close.Do(func() {
		close(p.items)

		for next := range p.items {
			if p.release != nil {
				p.release(next)
			}
		}
	})
}
