package selection

import (
	"time"

	"github.com/signalsfoundry/satpool/model"
)

// RankBackups orders res.Unselected by descending score into backup entries,
// keeping at most limit of them (0 keeps all). Satellites with no visibility
// left after now are pruned. IDs in displaced left the pool this cycle while
// still qualifying; other entries closer than minSepDeg to a pool member are
// marked phase_blocked.
func RankBackups(res Result, displaced map[string]bool, now time.Time, limit int, minSepDeg float64) []model.BackupEntry {
	poolPhases := make([]float64, len(res.Selected))
	for i, c := range res.Selected {
		poolPhases[i] = c.OrbitalPhaseDeg
	}

	ranked := append([]model.CandidateScore(nil), res.Unselected...)
	SortByScore(ranked)

	out := make([]model.BackupEntry, 0, len(ranked))
	for _, c := range ranked {
		if limit > 0 && len(out) >= limit {
			break
		}
		until, ok := visibleUntil(c, now)
		if !ok {
			continue
		}
		reason := model.BackupNotSelected
		switch {
		case displaced[c.SatelliteID]:
			reason = model.BackupDisplaced
		case !RespectsSeparation(c.OrbitalPhaseDeg, poolPhases, minSepDeg):
			reason = model.BackupPhaseBlocked
		}
		out = append(out, model.BackupEntry{
			SatelliteID:     c.SatelliteID,
			Rank:            len(out) + 1,
			Reason:          reason,
			Score:           c.Score,
			OrbitalPhaseDeg: c.OrbitalPhaseDeg,
			VisibleUntil:    until,
		})
	}
	return out
}

// visibleUntil returns the end of the candidate's last window, if it ends
// after now.
func visibleUntil(c model.CandidateScore, now time.Time) (time.Time, bool) {
	var until time.Time
	for _, w := range c.Windows {
		if w.Duration() > 0 && w.End.After(until) {
			until = w.End
		}
	}
	if !until.After(now) {
		return time.Time{}, false
	}
	return until, true
}
