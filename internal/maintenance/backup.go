package maintenance

import (
	"time"

	"github.com/signalsfoundry/satpool/internal/selection"
	"github.com/signalsfoundry/satpool/model"
)

// BackupManager ranks qualifying satellites outside the pool as hot-swap
// reserves. It is stateless; the ranking is rebuilt from scores every cycle.
type BackupManager struct {
	limit  int
	minSep float64
}

// NewBackupManager returns a manager keeping at most limit entries per
// constellation (0 keeps all). minSepDeg decides which entries are marked
// phase_blocked.
func NewBackupManager(limit int, minSepDeg float64) *BackupManager {
	return &BackupManager{limit: limit, minSep: minSepDeg}
}

// Rank orders res.Unselected by descending score into backup entries. IDs in
// displaced left the pool this cycle while still qualifying.
func (m *BackupManager) Rank(res selection.Result, displaced map[string]bool, now time.Time) []model.BackupEntry {
	return selection.RankBackups(res, displaced, now, m.limit, m.minSep)
}
