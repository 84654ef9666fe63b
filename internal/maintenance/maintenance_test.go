package maintenance

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"sync"
	"testing"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/signalsfoundry/satpool/core"
	"github.com/signalsfoundry/satpool/internal/config"
	"github.com/signalsfoundry/satpool/internal/observability"
	"github.com/signalsfoundry/satpool/internal/pipeline"
	"github.com/signalsfoundry/satpool/internal/selection"
	"github.com/signalsfoundry/satpool/kb"
	"github.com/signalsfoundry/satpool/model"
	"github.com/signalsfoundry/satpool/timectrl"
)

var (
	t0       = time.Date(2025, 5, 18, 12, 0, 0, 0, time.UTC)
	observer = model.Observer{LatitudeDeg: 48.1, LongitudeDeg: 11.6, AltitudeM: 500}
)

func at(s int) time.Time { return t0.Add(time.Duration(s) * time.Second) }

type interval struct{ from, to int }

// scheduleProvider puts a satellite 550 km overhead during its intervals and
// below the horizon otherwise.
type scheduleProvider map[string][]interval

func (p scheduleProvider) StateAt(sat model.Satellite, t time.Time) (model.InertialState, error) {
	offset := int(t.Sub(t0) / time.Second)
	up := core.NewObserverFrame(observer.LatitudeDeg, observer.LongitudeDeg, observer.AltitudeM+550000).ECEF
	pos := core.Vec3{X: -up.X, Y: -up.Y, Z: -up.Z}
	for _, iv := range p[sat.ID] {
		if offset >= iv.from && offset < iv.to {
			pos = up
			break
		}
	}

	u := t.UTC()
	year, month, day := u.Date()
	hour, min, sec := u.Clock()
	gmst := satellite.ThetaG_JD(satellite.JDay(year, int(month), day, hour, min, sec))
	c, s := math.Cos(gmst), math.Sin(gmst)
	eci := model.Vector{X: pos.X*c - pos.Y*s, Y: pos.X*s + pos.Y*c, Z: pos.Z}
	return model.InertialState{Time: t, Position: eci}, nil
}

// fixture: six ALPHA satellites 60 deg apart whose 1300 s passes start
// 600 s apart, and two BETA satellites.
func fixture(t *testing.T) (*kb.Catalog, scheduleProvider) {
	t.Helper()
	catalog := kb.NewCatalog()
	prov := scheduleProvider{
		"b0": {{0, 3600}},
		"b1": {{0, 1800}},
	}
	add := func(id, constellation string, phase float64) {
		err := catalog.AddSatellite(model.Satellite{
			ID:            id,
			Name:          id,
			Constellation: constellation,
			Elements:      model.OrbitalElements{Epoch: t0, RAANDeg: phase},
		})
		if err != nil {
			t.Fatalf("AddSatellite(%s): %v", id, err)
		}
	}
	add("b0", "BETA", 0)
	add("b1", "BETA", 180)
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("a%d", i)
		add(id, "ALPHA", float64(60*i))
		prov[id] = []interval{{600 * i, 600*i + 1300}}
	}
	return catalog, prov
}

func newEngine(t *testing.T, refine bool, metrics *observability.MaintenanceCollector) (*Engine, *PoolStore) {
	t.Helper()
	catalog, prov := fixture(t)
	cfg := config.Default()
	cfg.Observer = observer
	cfg.Window.HorizonSeconds = 3600
	cfg.Selection.TargetSize = map[string]int{"ALPHA": 3}
	cfg.Selection.DefaultTargetSize = 2
	cfg.Selection.MinEventDiversity = 1
	cfg.Runtime.Workers = 2

	pipe, err := pipeline.New(cfg, pipeline.Options{Provider: prov})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	store := NewPoolStore()
	return NewEngine(pipe, catalog, store, Options{Refine: refine, Metrics: metrics}), store
}

func backupIDs(entries []model.BackupEntry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.SatelliteID
	}
	return ids
}

func hasChange(changes []Change, id, action, reason string) bool {
	for _, c := range changes {
		if c.SatelliteID == id && c.Action == action && c.Reason == reason {
			return true
		}
	}
	return false
}

func TestFirstCycleSelectsAndRanksBackups(t *testing.T) {
	engine, store := newEngine(t, true, nil)
	if store.Load() != nil {
		t.Fatalf("store should be empty before the first cycle")
	}

	res, err := engine.Cycle(context.Background(), t0)
	if err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	snap := store.Load()
	if snap != res.Snapshot || snap.Cycle != 1 || snap.Generation == "" {
		t.Fatalf("published snapshot = %+v", snap)
	}
	if got := store.Pool("ALPHA"); !reflect.DeepEqual(got, []string{"a0", "a2", "a4"}) {
		t.Fatalf("ALPHA pool = %v, want [a0 a2 a4]", got)
	}
	if got := store.Pool("BETA"); !reflect.DeepEqual(got, []string{"b0", "b1"}) {
		t.Fatalf("BETA pool = %v, want [b0 b1]", got)
	}
	if snap.TargetSize["ALPHA"] != 3 || snap.TargetSize["BETA"] != 2 {
		t.Fatalf("target sizes = %v", snap.TargetSize)
	}

	backups := store.Backups("ALPHA")
	if got := backupIDs(backups); !reflect.DeepEqual(got, []string{"a1", "a3", "a5"}) {
		t.Fatalf("ALPHA backups = %v, want [a1 a3 a5]", got)
	}
	for i, b := range backups {
		if b.Rank != i+1 || b.Reason != model.BackupNotSelected {
			t.Fatalf("backup %d = %+v", i, b)
		}
	}
	if !backups[0].VisibleUntil.Equal(at(1900)) {
		t.Fatalf("a1 visible until %v, want %v", backups[0].VisibleUntil, at(1900))
	}
	if len(store.Backups("BETA")) != 0 {
		t.Fatalf("BETA backups = %v, want none", store.Backups("BETA"))
	}

	selected := 0
	for _, c := range res.Changes {
		if c.Action == ActionSelected {
			selected++
		}
	}
	if selected != 5 {
		t.Fatalf("selected changes = %d, want 5", selected)
	}
}

func TestCycleEvictsPromotesAndRefines(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewMaintenanceCollector(reg)
	if err != nil {
		t.Fatalf("NewMaintenanceCollector: %v", err)
	}
	engine, store := newEngine(t, true, metrics)
	ctx := context.Background()

	first, err := engine.Cycle(ctx, t0)
	if err != nil {
		t.Fatalf("first Cycle: %v", err)
	}
	res, err := engine.Cycle(ctx, at(1300))
	if err != nil {
		t.Fatalf("second Cycle: %v", err)
	}

	snap := store.Load()
	if snap.Cycle != 2 || !snap.WindowStart.Equal(at(1300)) {
		t.Fatalf("snapshot cycle %d window %v", snap.Cycle, snap.WindowStart)
	}
	if snap.Generation == first.Snapshot.Generation {
		t.Fatalf("generation not renewed")
	}
	if got := first.Snapshot.Pools["ALPHA"]; !reflect.DeepEqual(got, []string{"a0", "a2", "a4"}) {
		t.Fatalf("previous snapshot mutated: %v", got)
	}

	if got := store.Pool("ALPHA"); !reflect.DeepEqual(got, []string{"a2", "a4", "a5"}) {
		t.Fatalf("ALPHA pool = %v, want [a2 a4 a5]", got)
	}
	for _, want := range []Change{
		{SatelliteID: "a0", Action: ActionEvicted, Reason: ReasonNoVisibility},
		{SatelliteID: "a3", Action: ActionPromoted},
		{SatelliteID: "a5", Action: ActionRefined, Reason: ReasonCoverageRepair},
		{SatelliteID: "a3", Action: ActionRefined, Reason: ReasonRefinedOut},
	} {
		if !hasChange(res.Changes, want.SatelliteID, want.Action, want.Reason) {
			t.Fatalf("missing change %+v in %+v", want, res.Changes)
		}
	}
	if w := model.WarningsOf(res.Results["ALPHA"].Warnings, model.WarnCoverageGapUnresolved); len(w) != 1 {
		t.Fatalf("ALPHA gap warnings = %+v, want one for the trailing gap", w)
	}
	if gap := res.Results["ALPHA"].Coverage.MaxGapSecondsObserved; gap != 600 {
		t.Fatalf("ALPHA max gap = %v, want 600", gap)
	}

	if got := backupIDs(store.Backups("ALPHA")); !reflect.DeepEqual(got, []string{"a3", "a1"}) {
		t.Fatalf("ALPHA backups = %v, want [a3 a1]", got)
	}
	if got := store.Pool("BETA"); !reflect.DeepEqual(got, []string{"b0", "b1"}) {
		t.Fatalf("BETA pool = %v, want [b0 b1]", got)
	}

	if got := testutil.ToFloat64(metrics.Cycles); got != 2 {
		t.Fatalf("poolselect_maintenance_cycles_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.Generation); got != 2 {
		t.Fatalf("poolselect_maintenance_cycle = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.Swaps.WithLabelValues("ALPHA", observability.SwapEvicted)); got != 1 {
		t.Fatalf("evicted swaps = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.Swaps.WithLabelValues("ALPHA", observability.SwapRefined)); got != 2 {
		t.Fatalf("refined swaps = %v, want 2", got)
	}

	report := res.Report(false)
	if report.Cycle != 2 || report.Generation != snap.Generation {
		t.Fatalf("report header = %d/%q", report.Cycle, report.Generation)
	}
	if !reflect.DeepEqual(report.Pool["ALPHA"], []string{"a2", "a4", "a5"}) {
		t.Fatalf("report pool = %v", report.Pool["ALPHA"])
	}
}

func TestCycleWithoutRefinePromotesByCurrentScore(t *testing.T) {
	engine, store := newEngine(t, false, nil)
	ctx := context.Background()
	if _, err := engine.Cycle(ctx, t0); err != nil {
		t.Fatalf("first Cycle: %v", err)
	}
	res, err := engine.Cycle(ctx, at(1300))
	if err != nil {
		t.Fatalf("second Cycle: %v", err)
	}
	// a1 ranked first last cycle, but a3 scores higher over the new window.
	if got := store.Pool("ALPHA"); !reflect.DeepEqual(got, []string{"a2", "a3", "a4"}) {
		t.Fatalf("ALPHA pool = %v, want [a2 a3 a4]", got)
	}
	if !hasChange(res.Changes, "a3", ActionPromoted, "") || hasChange(res.Changes, "a1", ActionPromoted, "") {
		t.Fatalf("changes = %+v, want a3 promoted ahead of a1", res.Changes)
	}
	if got := backupIDs(store.Backups("ALPHA")); !reflect.DeepEqual(got, []string{"a5", "a1"}) {
		t.Fatalf("ALPHA backups = %v, want [a5 a1]", got)
	}
	for _, c := range res.Changes {
		if c.Action == ActionRefined {
			t.Fatalf("unexpected refinement %+v", c)
		}
	}
	if gap := res.Results["ALPHA"].Coverage.MaxGapSecondsObserved; gap != 1200 {
		t.Fatalf("ALPHA max gap = %v, want 1200", gap)
	}
}

func TestCycleDropsRemovedConstellation(t *testing.T) {
	engine, store := newEngine(t, true, nil)
	ctx := context.Background()
	if _, err := engine.Cycle(ctx, t0); err != nil {
		t.Fatalf("first Cycle: %v", err)
	}
	for _, id := range []string{"b0", "b1"} {
		if err := engine.catalog.RemoveSatellite(id); err != nil {
			t.Fatalf("RemoveSatellite(%s): %v", id, err)
		}
	}
	res, err := engine.Cycle(ctx, at(600))
	if err != nil {
		t.Fatalf("second Cycle: %v", err)
	}
	if _, ok := store.Load().Pools["BETA"]; ok {
		t.Fatalf("BETA pool still published")
	}
	if !hasChange(res.Changes, "b0", ActionRemoved, ReasonNoVisibility) ||
		!hasChange(res.Changes, "b1", ActionRemoved, ReasonNoVisibility) {
		t.Fatalf("changes = %+v, want BETA removals", res.Changes)
	}
}

func TestCancelledCycleKeepsPreviousSnapshot(t *testing.T) {
	engine, store := newEngine(t, true, nil)
	if _, err := engine.Cycle(context.Background(), t0); err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	before := store.Load()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := engine.Cycle(ctx, at(600)); err == nil {
		t.Fatalf("cancelled Cycle should fail")
	}
	if store.Load() != before {
		t.Fatalf("cancelled cycle replaced the snapshot")
	}
	if engine.Last().Snapshot != before {
		t.Fatalf("Last() changed after a failed cycle")
	}
}

func TestReadersSeeWholeSnapshots(t *testing.T) {
	engine, store := newEngine(t, true, nil)
	ctx := context.Background()
	if _, err := engine.Cycle(ctx, t0); err != nil {
		t.Fatalf("Cycle: %v", err)
	}

	done := make(chan struct{})
	errs := make(chan error, 4)
	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := 0
			for {
				select {
				case <-done:
					return
				default:
				}
				snap := store.Load()
				if snap.Cycle < last {
					errs <- fmt.Errorf("cycle went backwards: %d after %d", snap.Cycle, last)
					return
				}
				last = snap.Cycle
				if n := len(snap.Pools["ALPHA"]); n != snap.TargetSize["ALPHA"] {
					errs <- fmt.Errorf("cycle %d: ALPHA pool has %d members, target %d", snap.Cycle, n, snap.TargetSize["ALPHA"])
					return
				}
			}
		}()
	}

	for i := 1; i <= 3; i++ {
		if _, err := engine.Cycle(ctx, at(600*i)); err != nil {
			t.Fatalf("Cycle %d: %v", i, err)
		}
	}
	close(done)
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestAttachRunsCycleOnEveryTick(t *testing.T) {
	engine, store := newEngine(t, true, nil)
	ctx := context.Background()
	if _, err := engine.Cycle(ctx, t0); err != nil {
		t.Fatalf("Cycle: %v", err)
	}

	tc := timectrl.NewTimeController(t0, 600*time.Second, timectrl.Accelerated)
	var starts []time.Time
	engine.Attach(ctx, tc, func(res *CycleResult, err error) {
		if err != nil {
			t.Errorf("cycle failed: %v", err)
			return
		}
		starts = append(starts, res.Snapshot.WindowStart)
	})
	if err := tc.Run(ctx, 2); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if want := []time.Time{at(600), at(1200)}; !reflect.DeepEqual(starts, want) {
		t.Fatalf("cycle starts = %v, want %v", starts, want)
	}
	snap := store.Load()
	if snap.Cycle != 3 || !snap.WindowStart.Equal(at(1200)) {
		t.Fatalf("snapshot cycle %d window %v, want 3 at %v", snap.Cycle, snap.WindowStart, at(1200))
	}
}

func TestBackupRanking(t *testing.T) {
	now := at(0)
	cand := func(id string, phase, score float64, endS int) model.CandidateScore {
		return model.CandidateScore{
			SatelliteID:     id,
			OrbitalPhaseDeg: phase,
			Score:           score,
			Windows:         []model.Window{{Start: at(endS - 300), End: at(endS)}},
		}
	}
	res := selection.Result{
		Selected: []model.CandidateScore{cand("p", 0, 500, 900)},
		Unselected: []model.CandidateScore{
			cand("near", 5, 100, 600),
			cand("far", 90, 200, 1200),
			cand("gone", 180, 300, 0),
			cand("left", 270, 80, 1800),
		},
	}
	displaced := map[string]bool{"left": true}

	all := NewBackupManager(0, 15).Rank(res, displaced, now)
	if got := backupIDs(all); !reflect.DeepEqual(got, []string{"far", "near", "left"}) {
		t.Fatalf("backups = %v, want [far near left]", got)
	}
	wantReasons := []model.BackupReason{model.BackupNotSelected, model.BackupPhaseBlocked, model.BackupDisplaced}
	for i, b := range all {
		if b.Reason != wantReasons[i] || b.Rank != i+1 {
			t.Fatalf("backup %d = %+v, want reason %s rank %d", i, b, wantReasons[i], i+1)
		}
	}
	if !all[0].VisibleUntil.Equal(at(1200)) {
		t.Fatalf("far visible until %v", all[0].VisibleUntil)
	}

	limited := NewBackupManager(2, 15).Rank(res, displaced, now)
	if got := backupIDs(limited); !reflect.DeepEqual(got, []string{"far", "near"}) {
		t.Fatalf("limited backups = %v, want [far near]", got)
	}
}
