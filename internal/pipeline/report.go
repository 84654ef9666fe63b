package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/satpool/internal/selection"
	"github.com/signalsfoundry/satpool/model"
)

// Output formats accepted by WriteReport.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Report is the output document of a run or maintenance cycle.
type Report struct {
	Generation      string                              `json:"generation" yaml:"generation"`
	Cycle           int                                 `json:"cycle" yaml:"cycle"`
	PipelineVersion string                              `json:"pipeline_version" yaml:"pipeline_version"`
	Window          model.Window                        `json:"window" yaml:"window"`
	Pool            map[string][]string                 `json:"pool" yaml:"pool"`
	Backups         map[string][]model.BackupEntry      `json:"backups" yaml:"backups"`
	CandidateCounts map[string]int                      `json:"candidate_counts" yaml:"candidate_counts"`
	TimeSeries      []*model.TimeSeries                 `json:"timeseries,omitempty" yaml:"timeseries,omitempty"`
	Events          []model.EventInterval               `json:"events" yaml:"events"`
	Coverage        map[string]selection.CoverageReport `json:"coverage" yaml:"coverage"`
	Warnings        []model.Warning                     `json:"warnings" yaml:"warnings"`
}

// NewReport assembles a report. Pools and backups come from snap when given;
// otherwise pools come from the selection results and backups are left empty
// for the caller to fill (see Outcome.Report). Warnings are ordered as analysis
// warnings, then per-constellation selection warnings, then extra.
func NewReport(a *Analysis, results map[string]selection.Result, snap *model.PoolSnapshot, extra []model.Warning, includeTimeSeries bool) *Report {
	r := &Report{
		PipelineVersion: Version,
		Window:          a.Window,
		Pool:            make(map[string][]string),
		Backups:         make(map[string][]model.BackupEntry),
		CandidateCounts: make(map[string]int),
		Events:          append([]model.EventInterval{}, a.Events...),
		Coverage:        make(map[string]selection.CoverageReport),
		Warnings:        append([]model.Warning{}, a.Warnings...),
	}

	for _, name := range a.Constellations() {
		r.CandidateCounts[name] = len(a.Candidates[name])
		res, ok := results[name]
		if !ok {
			continue
		}
		r.Coverage[name] = res.Coverage
		r.Warnings = append(r.Warnings, res.Warnings...)
		r.Pool[name] = res.SelectedIDs()
		r.Backups[name] = []model.BackupEntry{}
	}
	r.Warnings = append(r.Warnings, extra...)

	if snap != nil {
		r.Generation = snap.Generation
		r.Cycle = snap.Cycle
		for name, ids := range snap.Pools {
			r.Pool[name] = append([]string{}, ids...)
		}
		for name, entries := range snap.Backups {
			r.Backups[name] = append([]model.BackupEntry{}, entries...)
		}
	} else {
		r.Generation = uuid.NewString()
	}

	if includeTimeSeries {
		r.TimeSeries = a.SeriesList()
	}
	return r
}

// WriteReport encodes r to w as JSON or YAML.
func WriteReport(w io.Writer, r *Report, format string) error {
	switch strings.ToLower(format) {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML, "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("%w: unsupported output format %q", model.ErrConfigurationInvalid, format)
	}
}
