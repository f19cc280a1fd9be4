package service

import (
	"sort"
	"sync"

	"github.com/bwmarrin/snowflake"
)

// accountLocks serializes posting per account within this process.
// The row lock taken inside the transaction covers multi-process
// deployments; this keeps sqlite (no FOR UPDATE) correct too.
type accountLocks struct {
	mu    sync.Mutex
	locks map[snowflake.ID]*sync.Mutex
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[snowflake.ID]*sync.Mutex)}
}

func (l *accountLocks) lockFor(id snowflake.ID) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}

// acquire locks the given accounts in ID order to avoid deadlocks
// between flows touching overlapping account sets.
func (l *accountLocks) acquire(ids ...snowflake.ID) func() {
	unique := make([]snowflake.ID, 0, len(ids))
	seen := make(map[snowflake.ID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i] < unique[j] })

	held := make([]*sync.Mutex, 0, len(unique))
	for _, id := range unique {
		m := l.lockFor(id)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
