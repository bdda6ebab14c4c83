package async

import "sync"

// FrameAllocator is the storage source for a task's promise. The default pools
// promise structs through sync.Pool (the coroutine-pooling idiom). Spawn and
// Async always draw from the per-type default returned by defaultAllocator;
// they take no allocator argument, so a caller cannot substitute another one.
type FrameAllocator[T any] interface {
	Get() *promise[T]
	Put(*promise[T])
}

type poolFrameAllocator[T any] struct {
	pool sync.Pool
}

// NewPoolFrameAllocator returns the default FrameAllocator, backed by sync.Pool.
func NewPoolFrameAllocator[T any]() FrameAllocator[T] {
	a := &poolFrameAllocator[T]{}
	a.pool.New = func() any { return &promise[T]{} }
	return a
}

func (a *poolFrameAllocator[T]) Get() *promise[T] {
	return a.pool.Get().(*promise[T])
}

func (a *poolFrameAllocator[T]) Put(p *promise[T]) {
	*p = promise[T]{}
	a.pool.Put(p)
}

var defaultAllocators sync.Map // reflect-free per-T singleton via generic func below

func defaultAllocator[T any]() FrameAllocator[T] {
	key := any((*T)(nil))
	if v, ok := defaultAllocators.Load(key); ok {
		return v.(FrameAllocator[T])
	}
	a := NewPoolFrameAllocator[T]()
	actual, _ := defaultAllocators.LoadOrStore(key, a)
	return actual.(FrameAllocator[T])
}
