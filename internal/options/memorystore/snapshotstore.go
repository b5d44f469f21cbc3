package memorystore

import (
	"sort"
	"sync/atomic"
	"time"
)

// SnapshotCache holds the most recent successfully fetched snapshot.
// The value is swapped atomically so readers never see a partial update.
type SnapshotCache struct {
	current atomic.Pointer[Snapshot]
}

func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{}
}

// Store replaces the held snapshot wholesale.
func (c *SnapshotCache) Store(s *Snapshot) {
	c.current.Store(s)
}

// Load returns the current snapshot, or nil before the first refresh.
func (c *SnapshotCache) Load() *Snapshot {
	return c.current.Load()
}

// ExpiryRow is a ContractRow tagged with the expiry it belongs to, as it
// comes out of the database.
type ExpiryRow struct {
	Expiry string
	ContractRow
}

// BuildSnapshot groups rows by expiry and orders each expiry by strike
// ascending, then option type. The sort is stable so identical input gives
// identical output.
func BuildSnapshot(rows []ExpiryRow, at time.Time) *Snapshot {
	expiries := make(map[string][]ContractRow)
	for _, r := range rows {
		expiries[r.Expiry] = append(expiries[r.Expiry], r.ContractRow)
	}

	for _, contracts := range expiries {
		sort.SliceStable(contracts, func(i, j int) bool {
			if contracts[i].Strike != contracts[j].Strike {
				return contracts[i].Strike < contracts[j].Strike
			}
			return contracts[i].Type < contracts[j].Type
		})
	}

	return &Snapshot{
		Timestamp: at.Format("15:04:05"),
		Expiries:  expiries,
	}
}
