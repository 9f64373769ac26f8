package services

import "sync"

// documentLocks is a keyed mutex: one critical section per document id.
// Entries are dropped once no goroutine holds or waits on them.
type documentLocks struct {
	mu    sync.Mutex
	locks map[int64]*refMutex
}

type refMutex struct {
	mu   sync.Mutex
	refs int
}

func newDocumentLocks() *documentLocks {
	return &documentLocks{locks: make(map[int64]*refMutex)}
}

// Lock blocks until the document's critical section is free and returns its unlock func.
func (l *documentLocks) Lock(documentID int64) func() {
	l.mu.Lock()
	m, ok := l.locks[documentID]
	if !ok {
		m = &refMutex{}
		l.locks[documentID] = m
	}
	m.refs++
	l.mu.Unlock()

	m.mu.Lock()

	return func() {
		m.mu.Unlock()

		l.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(l.locks, documentID)
		}
		l.mu.Unlock()
	}
}

func (l *documentLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
