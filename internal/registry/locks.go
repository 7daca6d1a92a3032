package registry

import (
	"slices"
	"sync"

	"nifty-go/internal/model"
)

// accountLocks hands out one mutex per account. Entries are reference
// counted and dropped when no goroutine holds or waits for them.
type accountLocks struct {
	mu    sync.Mutex
	locks map[model.Account]*accountLock
}

type accountLock struct {
	mu   sync.Mutex
	refs int
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[model.Account]*accountLock)}
}

// lock acquires the locks of all given accounts in lexical order and
// returns the function that releases them.
func (l *accountLocks) lock(accounts ...model.Account) (unlock func()) {
	ordered := slices.Clone(accounts)
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)

	held := make([]*accountLock, 0, len(ordered))
	for _, a := range ordered {
		al := l.acquire(a)
		al.mu.Lock()
		held = append(held, al)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			l.release(ordered[i])
		}
	}
}

func (l *accountLocks) acquire(a model.Account) *accountLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	al, ok := l.locks[a]
	if !ok {
		al = &accountLock{}
		l.locks[a] = al
	}
	al.refs++
	return al
}

func (l *accountLocks) release(a model.Account) {
	l.mu.Lock()
	defer l.mu.Unlock()
	al := l.locks[a]
	al.refs--
	if al.refs == 0 {
		delete(l.locks, a)
	}
}

// size returns the number of live entries. Used by tests.
func (l *accountLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
