package maintenance

import (
	"sync/atomic"

	"github.com/signalsfoundry/satpool/model"
)

// PoolStore holds the published PoolSnapshot. A single coordinator swaps
// whole snapshots in; readers load them lock-free and never see a partially
// updated pool. Snapshots handed out must be treated as read-only.
type PoolStore struct {
	current atomic.Pointer[model.PoolSnapshot]
}

// NewPoolStore returns an empty store.
func NewPoolStore() *PoolStore {
	return &PoolStore{}
}

// Load returns the current snapshot, or nil before the first swap.
func (s *PoolStore) Load() *model.PoolSnapshot {
	return s.current.Load()
}

// Swap publishes next and returns the snapshot it replaced.
func (s *PoolStore) Swap(next *model.PoolSnapshot) *model.PoolSnapshot {
	return s.current.Swap(next)
}

// Pool returns a copy of one constellation's current pool.
func (s *PoolStore) Pool(constellation string) []string {
	snap := s.Load()
	if snap == nil {
		return nil
	}
	return append([]string(nil), snap.Pools[constellation]...)
}

// Backups returns a copy of one constellation's current backup list.
func (s *PoolStore) Backups(constellation string) []model.BackupEntry {
	snap := s.Load()
	if snap == nil {
		return nil
	}
	return append([]model.BackupEntry(nil), snap.Backups[constellation]...)
}
