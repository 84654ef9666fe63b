// Package catalog ingests satellite catalogs (3-line TLE text or a YAML
// manifest), validates every entry with an independent SGP4 parser, assigns
// constellations and loads the result into a kb.Catalog.
package catalog

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/akhenakh/sgp4"
	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/satpool/core"
	"github.com/signalsfoundry/satpool/internal/config"
	"github.com/signalsfoundry/satpool/kb"
	"github.com/signalsfoundry/satpool/model"
)

// Format is the on-disk catalog layout.
type Format string

const (
	FormatAuto Format = "auto"
	FormatTLE  Format = "tle"
	FormatYAML Format = "yaml"
)

// Manifest is the YAML catalog layout.
type Manifest struct {
	Satellites []ManifestEntry `yaml:"satellites"`
}

// ManifestEntry is one YAML catalog entry. ID and Constellation are optional
// and override the derived values.
type ManifestEntry struct {
	ID            string `yaml:"id,omitempty"`
	Name          string `yaml:"name"`
	Constellation string `yaml:"constellation,omitempty"`
	Line1         string `yaml:"line1"`
	Line2         string `yaml:"line2"`
}

// Rejection records a catalog entry that could not be used.
type Rejection struct {
	Name   string
	Reason string
}

// Result is the outcome of parsing a catalog.
type Result struct {
	Satellites []model.Satellite
	Rejected   []Rejection
}

// Warnings converts rejections into pipeline warnings. A rejected entry has
// no usable ephemeris, so it is reported as propagation unavailable.
func (r Result) Warnings() []model.Warning {
	out := make([]model.Warning, 0, len(r.Rejected))
	for _, rej := range r.Rejected {
		out = append(out, model.Warning{
			Kind:        model.WarnPropagationUnavailable,
			SatelliteID: rej.Name,
			Message:     "catalog entry rejected: " + rej.Reason,
		})
	}
	return out
}

// Loader parses catalogs according to the catalog configuration.
type Loader struct {
	rules    []config.ConstellationRule
	fallback string
}

// NewLoader returns a loader using the constellation rules from cfg.
func NewLoader(cfg config.CatalogConfig) *Loader {
	rules := append([]config.ConstellationRule(nil), cfg.Constellations...)
	// Longest prefix wins when rules overlap.
	sort.SliceStable(rules, func(i, j int) bool { return len(rules[i].Prefix) > len(rules[j].Prefix) })
	fallback := cfg.DefaultConstellation
	if fallback == "" {
		fallback = "OTHER"
	}
	return &Loader{rules: rules, fallback: fallback}
}

// LoadFile reads and parses the catalog at path. FormatAuto picks YAML for
// .yaml/.yml files and TLE text otherwise.
func (l *Loader) LoadFile(path string, format Format) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read catalog: %w", err)
	}
	if format == "" || format == FormatAuto {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			format = FormatYAML
		default:
			format = FormatTLE
		}
	}
	switch format {
	case FormatYAML:
		return l.ParseYAML(data)
	case FormatTLE:
		return l.ParseTLE(bytes.NewReader(data))
	default:
		return Result{}, fmt.Errorf("unsupported catalog format %q", format)
	}
}

// ParseTLE reads 3-line TLE text. A bare two-line entry without a name line
// is accepted too. Malformed entries are rejected individually.
func (l *Loader) ParseTLE(r io.Reader) (Result, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return Result{}, fmt.Errorf("reading TLE data: %w", err)
	}

	var entries []ManifestEntry
	var res Result
	for i := 0; i < len(lines); {
		switch {
		case i+1 < len(lines) && isLine(lines[i], '1') && isLine(lines[i+1], '2'):
			entries = append(entries, ManifestEntry{Line1: lines[i], Line2: lines[i+1]})
			i += 2
		case i+2 < len(lines) && isLine(lines[i+1], '1') && isLine(lines[i+2], '2'):
			entries = append(entries, ManifestEntry{
				Name:  strings.TrimSpace(strings.TrimPrefix(lines[i], "0 ")),
				Line1: lines[i+1],
				Line2: lines[i+2],
			})
			i += 3
		default:
			// Resynchronise on the next line.
			res.Rejected = append(res.Rejected, Rejection{Name: strings.TrimSpace(lines[i]), Reason: "not part of a TLE set"})
			i++
		}
	}

	parsed := l.build(entries)
	parsed.Rejected = append(res.Rejected, parsed.Rejected...)
	return parsed, nil
}

// ParseYAML reads a YAML manifest.
func (l *Loader) ParseYAML(data []byte) (Result, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Result{}, fmt.Errorf("decode catalog manifest: %w", err)
	}
	return l.build(m.Satellites), nil
}

func isLine(s string, n byte) bool {
	s = strings.TrimSpace(s)
	return len(s) > 2 && s[0] == n && s[1] == ' '
}

// build validates entries and converts them into satellites. Duplicate IDs
// keep the first occurrence.
func (l *Loader) build(entries []ManifestEntry) Result {
	var res Result
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		sat, err := l.satellite(e)
		if err != nil {
			name := e.Name
			if name == "" {
				name = e.ID
			}
			res.Rejected = append(res.Rejected, Rejection{Name: name, Reason: err.Error()})
			continue
		}
		if _, dup := seen[sat.ID]; dup {
			res.Rejected = append(res.Rejected, Rejection{Name: sat.Name, Reason: "duplicate satellite ID " + sat.ID})
			continue
		}
		seen[sat.ID] = struct{}{}
		res.Satellites = append(res.Satellites, sat)
	}
	sort.Slice(res.Satellites, func(i, j int) bool { return res.Satellites[i].ID < res.Satellites[j].ID })
	return res
}

func (l *Loader) satellite(e ManifestEntry) (model.Satellite, error) {
	line1 := strings.TrimSpace(e.Line1)
	line2 := strings.TrimSpace(e.Line2)
	if err := core.ValidateTLELines(line1, line2); err != nil {
		return model.Satellite{}, err
	}

	name := strings.TrimSpace(e.Name)
	if name == "" {
		name = "NORAD " + strings.TrimSpace(line1[2:7])
	}
	tle, err := sgp4.ParseTLE(name + "\n" + line1 + "\n" + line2)
	if err != nil {
		return model.Satellite{}, fmt.Errorf("sgp4: %w", err)
	}
	elements, err := core.ElementsFromTLE(tle)
	if err != nil {
		return model.Satellite{}, err
	}

	id := e.ID
	if id == "" {
		id = strconv.Itoa(tle.SatelliteNumber)
	}
	constellation := e.Constellation
	if constellation == "" {
		constellation = l.Constellation(name)
	}

	return model.Satellite{
		ID:            id,
		Name:          name,
		NoradID:       tle.SatelliteNumber,
		Constellation: constellation,
		Line1:         line1,
		Line2:         line2,
		Elements:      elements,
	}, nil
}

// Constellation assigns a satellite name to a constellation by prefix.
func (l *Loader) Constellation(name string) string {
	upper := strings.ToUpper(name)
	for _, r := range l.rules {
		if strings.HasPrefix(upper, strings.ToUpper(r.Prefix)) {
			return r.Name
		}
	}
	return l.fallback
}

// Populate upserts every satellite into c and returns how many records
// changed.
func Populate(c *kb.Catalog, sats []model.Satellite) (int, error) {
	changed := 0
	before := make(map[string]model.Satellite, len(sats))
	for _, s := range sats {
		if prev, ok := c.GetSatellite(s.ID); ok {
			before[s.ID] = prev
		}
	}
	for _, s := range sats {
		if prev, ok := before[s.ID]; ok && prev == s {
			continue
		}
		if err := c.UpsertSatellite(s); err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}
