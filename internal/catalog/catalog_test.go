package catalog

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/satpool/internal/config"
	"github.com/signalsfoundry/satpool/kb"
	"github.com/signalsfoundry/satpool/model"
)

func newTestLoader() *Loader {
	return NewLoader(config.Default().Catalog)
}

func TestLoadFile_TLE(t *testing.T) {
	res, err := newTestLoader().LoadFile("testdata/catalog.tle", FormatAuto)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(res.Satellites) != 4 {
		t.Fatalf("len(Satellites) = %d, want 4 (rejected: %+v)", len(res.Satellites), res.Rejected)
	}
	if len(res.Rejected) != 2 {
		t.Fatalf("len(Rejected) = %d, want 2: %+v", len(res.Rejected), res.Rejected)
	}

	wantIDs := []string{"25544", "44057", "44713", "44714"}
	for i, want := range wantIDs {
		if res.Satellites[i].ID != want {
			t.Fatalf("Satellites[%d].ID = %q, want %q", i, res.Satellites[i].ID, want)
		}
	}

	sl := res.Satellites[2]
	if sl.Name != "STARLINK-1007" || sl.Constellation != "STARLINK" || sl.NoradID != 44713 {
		t.Fatalf("starlink entry = %+v", sl)
	}
	if sl.Elements.InclinationDeg != 53 || sl.Elements.MeanMotionRevPerDay != 15.06 ||
		sl.Elements.RAANDeg != 160 || sl.Elements.MeanAnomalyDeg != 10 {
		t.Fatalf("elements = %+v", sl.Elements)
	}
	wantEpoch := time.Date(2025, 5, 18, 12, 0, 0, 0, time.UTC)
	if d := sl.Elements.Epoch.Sub(wantEpoch); d < -time.Millisecond || d > time.Millisecond {
		t.Fatalf("epoch = %v, want %v", sl.Elements.Epoch, wantEpoch)
	}
	if res.Satellites[1].Constellation != "ONEWEB" {
		t.Fatalf("ONEWEB-0012 constellation = %q", res.Satellites[1].Constellation)
	}
	if res.Satellites[0].Constellation != "OTHER" {
		t.Fatalf("ISS constellation = %q, want fallback OTHER", res.Satellites[0].Constellation)
	}

	ws := res.Warnings()
	if len(ws) != 2 || ws[0].Kind != model.WarnPropagationUnavailable {
		t.Fatalf("Warnings() = %+v", ws)
	}
}

func TestLoadFile_YAMLOverrides(t *testing.T) {
	res, err := newTestLoader().LoadFile("testdata/catalog.yaml", FormatAuto)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(res.Satellites) != 4 || len(res.Rejected) != 0 {
		t.Fatalf("satellites=%d rejected=%+v", len(res.Satellites), res.Rejected)
	}
	var iss model.Satellite
	for _, s := range res.Satellites {
		if s.NoradID == 25544 {
			iss = s
		}
	}
	if iss.ID != "custom-iss" || iss.Constellation != "STATIONS" {
		t.Fatalf("ISS entry = %+v, want manifest overrides", iss)
	}
}

func TestParseTLE_TwoLineEntries(t *testing.T) {
	data, err := readLines("testdata/catalog.tle")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	// Drop the name line of the first entry.
	twoLine := strings.Join(data[1:3], "\n")

	res, err := newTestLoader().ParseTLE(strings.NewReader(twoLine))
	if err != nil {
		t.Fatalf("ParseTLE: %v", err)
	}
	if len(res.Satellites) != 1 || res.Satellites[0].Name != "NORAD 44713" {
		t.Fatalf("satellites = %+v", res.Satellites)
	}
	if res.Satellites[0].Constellation != "OTHER" {
		t.Fatalf("unnamed satellite constellation = %q, want OTHER", res.Satellites[0].Constellation)
	}
}

func TestParseTLE_DuplicateIDsKeepFirst(t *testing.T) {
	data, err := readLines("testdata/catalog.tle")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	entry := strings.Join(data[0:3], "\n")
	res, err := newTestLoader().ParseTLE(strings.NewReader(entry + "\n" + entry))
	if err != nil {
		t.Fatalf("ParseTLE: %v", err)
	}
	if len(res.Satellites) != 1 || len(res.Rejected) != 1 {
		t.Fatalf("satellites=%d rejected=%d, want 1 and 1", len(res.Satellites), len(res.Rejected))
	}
}

func TestConstellationLongestPrefixWins(t *testing.T) {
	l := NewLoader(config.CatalogConfig{
		Constellations: []config.ConstellationRule{
			{Name: "STAR", Prefix: "STAR"},
			{Name: "STARLINK", Prefix: "STARLINK"},
		},
		DefaultConstellation: "X",
	})
	if got := l.Constellation("starlink-30001"); got != "STARLINK" {
		t.Fatalf("Constellation = %q, want STARLINK", got)
	}
	if got := l.Constellation("STARNET-1"); got != "STAR" {
		t.Fatalf("Constellation = %q, want STAR", got)
	}
	if got := l.Constellation("IRIDIUM 1"); got != "X" {
		t.Fatalf("Constellation = %q, want X", got)
	}
}

func TestPopulateCountsChanges(t *testing.T) {
	res, err := newTestLoader().LoadFile("testdata/catalog.tle", FormatTLE)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	store := kb.NewCatalog()
	n, err := Populate(store, res.Satellites)
	if err != nil || n != 4 {
		t.Fatalf("Populate = %d, %v; want 4", n, err)
	}
	n, err = Populate(store, res.Satellites)
	if err != nil || n != 0 {
		t.Fatalf("second Populate = %d, %v; want 0", n, err)
	}
	if store.Len() != 4 {
		t.Fatalf("catalog Len = %d, want 4", store.Len())
	}
}

func readLines(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return strings.Split(strings.TrimSpace(string(b)), "\n"), nil
}
