// Package view holds the in-memory materialized view of the account collection.
package view

import (
	"cmp"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/go-estoria/accounts"
	"github.com/google/uuid"
)

type entries = map[uuid.UUID]accounts.Account

// A View maps account IDs to their current value.
//
// Reads load an immutable snapshot and never wait for writers. Writers
// serialize on a mutex, copy the snapshot, modify the copy and publish it,
// so a reader sees an entry either before or after a write, never partway.
//
// Each Upsert or Remove copies the whole map, so a write costs O(n) in the
// number of accounts. GetAll clones and sorts every entry on each call.
// Replace adopts a prebuilt map without copying, which keeps replay linear.
type View struct {
	mu      sync.Mutex
	current atomic.Pointer[entries]
}

// New creates an empty View.
func New() *View {
	v := &View{}
	v.current.Store(&entries{})
	return v
}

// Get returns the account with the given ID.
func (v *View) Get(id uuid.UUID) (accounts.Account, bool) {
	account, ok := (*v.current.Load())[id]
	if !ok {
		return accounts.Account{}, false
	}

	return account.Clone(), true
}

// GetAll returns every account in the view at a single point in time,
// ordered by name and then ID.
func (v *View) GetAll() []accounts.Account {
	snapshot := *v.current.Load()

	all := make([]accounts.Account, 0, len(snapshot))
	for _, account := range snapshot {
		all = append(all, account.Clone())
	}

	slices.SortFunc(all, func(a, b accounts.Account) int {
		return cmp.Or(
			cmp.Compare(a.Name, b.Name),
			cmp.Compare(a.ID.String(), b.ID.String()),
		)
	})

	return all
}

// Len returns the number of accounts in the view.
func (v *View) Len() int {
	return len(*v.current.Load())
}

// Upsert sets the account stored under id.
func (v *View) Upsert(id uuid.UUID, account accounts.Account) {
	v.mu.Lock()
	defer v.mu.Unlock()

	next := maps.Clone(*v.current.Load())
	if next == nil {
		next = entries{}
	}

	next[id] = account.Clone()
	v.current.Store(&next)
}

// Remove deletes the account stored under id and returns it.
func (v *View) Remove(id uuid.UUID) (accounts.Account, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	prev := *v.current.Load()
	account, ok := prev[id]
	if !ok {
		return accounts.Account{}, false
	}

	next := maps.Clone(prev)
	delete(next, id)
	v.current.Store(&next)

	return account, true
}

// Replace publishes all as the view's contents. The view takes ownership of
// all; the caller must not modify it afterward.
func (v *View) Replace(all map[uuid.UUID]accounts.Account) {
	if all == nil {
		all = entries{}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.current.Store(&all)
}

// Reset empties the view.
func (v *View) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.current.Store(&entries{})
}
