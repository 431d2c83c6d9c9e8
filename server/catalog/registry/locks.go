package registry

import (
	"sort"
	"sync"
)

// lockTable hands out one mutex per table id. Commits serialize per
// table; multi-table transactions take their locks in ascending id order.
type lockTable struct {
	mu    sync.Mutex
	locks map[int64]*tableLock
}

type tableLock struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[int64]*tableLock)}
}

func (lt *lockTable) lock(tableID int64) func() {
	lt.mu.Lock()
	l, ok := lt.locks[tableID]
	if !ok {
		l = &tableLock{}
		lt.locks[tableID] = l
	}
	l.refs++
	lt.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		lt.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(lt.locks, tableID)
		}
		lt.mu.Unlock()
	}
}

func (lt *lockTable) lockAll(tableIDs []int64) func() {
	ids := append([]int64(nil), tableIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	// drop duplicates so one table in two updates doesn't self-deadlock
	uniq := ids[:0]
	for i, id := range ids {
		if i == 0 || id != ids[i-1] {
			uniq = append(uniq, id)
		}
	}

	unlocks := make([]func(), 0, len(uniq))
	for _, id := range uniq {
		unlocks = append(unlocks, lt.lock(id))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}
