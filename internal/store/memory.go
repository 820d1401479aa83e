package store

import (
	"context"
	"sync"
)

// Memory is an in-process Store used in tests and as a failover target when
// redis is not configured. Transactions are serialized on one mutex, which
// trivially satisfies the per-key linearizability contract.
type Memory struct {
	mu       sync.Mutex
	values   map[string][]byte
	watchers map[string]map[int64]func([]byte)
	nextID   int64
}

func NewMemory() *Memory {
	return &Memory{
		values:   make(map[string][]byte),
		watchers: make(map[string]map[int64]func([]byte)),
	}
}

func (m *Memory) Read(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneBytes(m.values[key]), nil
}

func (m *Memory) Write(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	m.values[key] = cloneBytes(value)
	fns := m.watcherList(key)
	m.mu.Unlock()

	notify(fns, value)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.values, key)
	fns := m.watcherList(key)
	m.mu.Unlock()

	notify(fns, nil)
	return nil
}

func (m *Memory) CompareAndSet(_ context.Context, key string, fn CASFunc) (Result, error) {
	m.mu.Lock()
	current := cloneBytes(m.values[key])

	next, err := fn(current)
	if err == ErrAbort {
		m.mu.Unlock()
		return Result{Committed: false, Value: current}, nil
	}
	if err != nil {
		m.mu.Unlock()
		return Result{}, err
	}

	if next == nil {
		delete(m.values, key)
	} else {
		m.values[key] = cloneBytes(next)
	}
	fns := m.watcherList(key)
	m.mu.Unlock()

	notify(fns, next)
	return Result{Committed: true, Value: next}, nil
}

func (m *Memory) Watch(_ context.Context, key string, fn func(value []byte)) (Unsubscribe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	if m.watchers[key] == nil {
		m.watchers[key] = make(map[int64]func([]byte))
	}
	m.watchers[key][id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.watchers[key], id)
	}, nil
}

// watcherList must be called with the mutex held.
func (m *Memory) watcherList(key string) []func([]byte) {
	fns := make([]func([]byte), 0, len(m.watchers[key]))
	for _, fn := range m.watchers[key] {
		fns = append(fns, fn)
	}
	return fns
}

func notify(fns []func([]byte), value []byte) {
	for _, fn := range fns {
		fn(cloneBytes(value))
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
