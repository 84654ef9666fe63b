package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalsfoundry/satpool/model"
)

const testCatalog = `STARLINK-1007
1 44713U 19029A   25138.50000000  .00001000  00000+0  10000-3 0  9998
2 44713  53.0000 160.0000 0001500  90.0000  10.0000 15.06000000123459
STARLINK-1008
1 44714U 19029A   25138.50000000  .00001000  00000+0  10000-3 0  9999
2 44714  53.0000 160.0000 0001500  90.0000  40.0000 15.06000000123453
ONEWEB-0012
1 44057U 19029A   25138.50000000  .00001000  00000+0  10000-3 0  9999
2 44057  87.9000  20.0000 0002000  95.0000 100.0000 13.16000000123451
`

const testConfig = `
[observer]
latitude_deg = 48.1
longitude_deg = 11.6
altitude_m = 500

[window]
horizon_seconds = 600
step_seconds = 10

[selection]
default_target_size = 1

[logging]
level = "error"
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a := &app{stdout: &out, stderr: io.Discard}
	cmd := a.rootCommand()
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func fixtureArgs(t *testing.T, command string) []string {
	t.Helper()
	dir := t.TempDir()
	return []string{
		command,
		"--config", writeFile(t, dir, "poolselect.toml", testConfig),
		"--catalog", writeFile(t, dir, "catalog.tle", testCatalog),
		"--start", "2025-05-18T12:00:00Z",
	}
}

func TestRunWritesReportFile(t *testing.T) {
	args := fixtureArgs(t, "run")
	path := filepath.Join(t.TempDir(), "report.json")
	stdout, err := execute(t, append(args, "--output", path)...)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stdout != "" {
		t.Fatalf("stdout = %q, want nothing when --output is set", stdout)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var doc struct {
		Generation      string              `json:"generation"`
		PipelineVersion string              `json:"pipeline_version"`
		Pool            map[string][]string `json:"pool"`
		CandidateCounts map[string]int      `json:"candidate_counts"`
		Coverage        map[string]any      `json:"coverage"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if doc.PipelineVersion != "v1" || doc.Generation == "" {
		t.Fatalf("report header = %q/%q", doc.PipelineVersion, doc.Generation)
	}
	for _, name := range []string{"STARLINK", "ONEWEB"} {
		if _, ok := doc.CandidateCounts[name]; !ok {
			t.Fatalf("candidate_counts missing %s: %v", name, doc.CandidateCounts)
		}
		if len(doc.Pool[name]) > 1 {
			t.Fatalf("%s pool = %v, want at most the target of 1", name, doc.Pool[name])
		}
	}
}

func TestRunWritesYAMLToStdout(t *testing.T) {
	stdout, err := execute(t, append(fixtureArgs(t, "run"), "--format", "yaml")...)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, want := range []string{"pipeline_version: v1", "pool:", "coverage:"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("yaml report missing %q:\n%s", want, stdout)
		}
	}
}

func TestMaintainWritesOneReportPerCycle(t *testing.T) {
	stdout, err := execute(t, append(fixtureArgs(t, "maintain"), "--cycles", "3")...)
	if err != nil {
		t.Fatalf("maintain: %v", err)
	}

	dec := json.NewDecoder(strings.NewReader(stdout))
	var cycles []int
	generations := make(map[string]bool)
	for dec.More() {
		var doc struct {
			Generation string `json:"generation"`
			Cycle      int    `json:"cycle"`
		}
		if err := dec.Decode(&doc); err != nil {
			t.Fatalf("decode report %d: %v", len(cycles)+1, err)
		}
		cycles = append(cycles, doc.Cycle)
		generations[doc.Generation] = true
	}
	if len(cycles) != 3 || cycles[0] != 1 || cycles[2] != 3 {
		t.Fatalf("cycles = %v, want [1 2 3]", cycles)
	}
	if len(generations) != 3 {
		t.Fatalf("generations = %v, want three distinct IDs", generations)
	}
}

func TestValidateListsConstellationsAndRejections(t *testing.T) {
	dir := t.TempDir()
	catalogPath := writeFile(t, dir, "catalog.tle", testCatalog+"GARBAGE LINE\n")
	stdout, err := execute(t, "validate", "--catalog", catalogPath)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	for _, want := range []string{"3 satellites, 1 rejected", "STARLINK", "ONEWEB", `rejected "GARBAGE LINE"`} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("validate output missing %q:\n%s", want, stdout)
		}
	}
}

func TestInvalidConfigurationExitsWithConfigCode(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "bad.toml", "[selection]\nstrategy = \"annealing\"\n")
	_, err := execute(t, "run", "--config", cfgPath, "--catalog", writeFile(t, dir, "c.tle", testCatalog))
	if !errors.Is(err, model.ErrConfigurationInvalid) {
		t.Fatalf("run error = %v, want ErrConfigurationInvalid", err)
	}
	if got := exitCode(err); got != exitInvalidConfig {
		t.Fatalf("exitCode = %d, want %d", got, exitInvalidConfig)
	}

	_, err = execute(t, "run")
	if got := exitCode(err); got != exitInvalidConfig {
		t.Fatalf("missing catalog exitCode = %d, want %d (err %v)", got, exitInvalidConfig, err)
	}
	if got := exitCode(nil); got != exitOK {
		t.Fatalf("exitCode(nil) = %d", got)
	}
}
