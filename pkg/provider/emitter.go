package provider

import "sync"

// Emitter is a minimal multi-subscriber event emitter. It backs every
// "onDid..." event stream in this package and in pkg/vfs: registration
// events, capability-change events, file-change events, and
// onDidRunOperation. There is no third-party pub/sub library in the
// reference lineage for this (viper/badger/aws-sdk are all unrelated
// concerns) so this stays a small sync.Mutex-guarded slice rather than
// reaching for an external dependency that doesn't fit.
type Emitter[T any] struct {
	mu   sync.Mutex
	subs map[int]func(T)
	next int
}

// NewEmitter creates an empty emitter.
func NewEmitter[T any]() *Emitter[T] {
	return &Emitter[T]{subs: make(map[int]func(T))}
}

// Subscribe registers f and returns a Disposable that unregisters it.
func (e *Emitter[T]) Subscribe(f func(T)) Disposable {
	e.mu.Lock()
	id := e.next
	e.next++
	e.subs[id] = f
	e.mu.Unlock()

	return DisposableFunc(func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	})
}

// Fire invokes every current subscriber with v. Subscribers are snapshotted
// under the lock and invoked outside it so a handler may itself
// Subscribe/Dispose without deadlocking.
func (e *Emitter[T]) Fire(v T) {
	e.mu.Lock()
	handlers := make([]func(T), 0, len(e.subs))
	for _, f := range e.subs {
		handlers = append(handlers, f)
	}
	e.mu.Unlock()

	for _, f := range handlers {
		f(v)
	}
}
