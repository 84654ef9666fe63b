package model

import "time"

// BackupReason records why a satellite sits in the reserve list.
type BackupReason string

const (
	BackupNotSelected  BackupReason = "not_selected"
	BackupPhaseBlocked BackupReason = "phase_blocked"
	BackupDisplaced    BackupReason = "displaced"
)

// BackupEntry is a ranked reserve satellite for hot-swap replacement.
type BackupEntry struct {
	SatelliteID     string       `json:"satellite_id" yaml:"satellite_id"`
	Rank            int          `json:"rank" yaml:"rank"`
	Reason          BackupReason `json:"reason_queued" yaml:"reason_queued"`
	Score           float64      `json:"score" yaml:"score"`
	OrbitalPhaseDeg float64      `json:"orbital_phase_deg" yaml:"orbital_phase_deg"`
	VisibleUntil    time.Time    `json:"visible_until" yaml:"visible_until"`
}

// PoolSnapshot is an immutable view of every constellation's pool. The
// maintenance coordinator builds a new snapshot per cycle and swaps it in
// whole; readers never observe a partially updated pool.
type PoolSnapshot struct {
	Generation            string                   `json:"generation" yaml:"generation"`
	Cycle                 int                      `json:"cycle" yaml:"cycle"`
	WindowStart           time.Time                `json:"window_start" yaml:"window_start"`
	Pools                 map[string][]string      `json:"pools" yaml:"pools"`
	Backups               map[string][]BackupEntry `json:"backups" yaml:"backups"`
	TargetSize            map[string]int           `json:"target_size" yaml:"target_size"`
	MinPhaseSeparationDeg float64                  `json:"min_phase_separation_deg" yaml:"min_phase_separation_deg"`
}

// Clone returns a deep copy of the snapshot.
func (p *PoolSnapshot) Clone() *PoolSnapshot {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Pools = make(map[string][]string, len(p.Pools))
	for c, ids := range p.Pools {
		cp.Pools[c] = append([]string(nil), ids...)
	}
	cp.Backups = make(map[string][]BackupEntry, len(p.Backups))
	for c, entries := range p.Backups {
		cp.Backups[c] = append([]BackupEntry(nil), entries...)
	}
	cp.TargetSize = make(map[string]int, len(p.TargetSize))
	for c, n := range p.TargetSize {
		cp.TargetSize[c] = n
	}
	return &cp
}

// Contains reports whether id is in the named constellation's pool.
func (p *PoolSnapshot) Contains(constellation, id string) bool {
	if p == nil {
		return false
	}
	for _, member := range p.Pools[constellation] {
		if member == id {
			return true
		}
	}
	return false
}
