package cmd

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

const smallScenario = `
name: cli-smoke
variables:
  - name: count
    kind: enumerated
    items: [2, 3]
executive:
  step_size: 0.1
  duration: 1
swarm:
  count: "${count}"
  beacon_period: 0.25
`

// execute runs a fresh root command in an isolated working directory.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--no-color"}, args...))
	err := root.Execute()
	return out.String(), err
}

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", t.TempDir())
	return dir
}

func TestResolveBundledScenario(t *testing.T) {
	path, err := filepath.Abs("../../../scenarios/beacon-sweep.yaml")
	if err != nil {
		t.Fatalf("Abs: %v", err)
	}
	isolate(t)

	out, err := execute(t, "resolve", "--seeds", path)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !strings.Contains(out, "= 24 runs") {
		t.Fatalf("missing run count in output:\n%s", out)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	// Title, header, then one row per run.
	if len(lines) != 26 {
		t.Fatalf("got %d lines, want 26:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[2], "count=4") || !strings.Contains(lines[2], "speed=") {
		t.Fatalf("first row = %q", lines[2])
	}
}

func TestResolveReportsConfigErrors(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "cyclic.yaml")
	doc := "name: cyclic\nvariables:\n  - name: a\n    kind: constant\n    value: \"${b}\"\n  - name: b\n    kind: constant\n    value: \"${a}\"\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := execute(t, "resolve", path); err == nil || !strings.Contains(err.Error(), "cycl") {
		t.Fatalf("err = %v, want a cyclic dependency error", err)
	}
}

func TestRunRecordsAndListsResults(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "small.yaml")
	if err := os.WriteFile(path, []byte(smallScenario), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	db := filepath.Join(dir, "out", "runs.db")

	out, err := execute(t, "run", "--parallelism", "2", "--results", db, path)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if strings.Count(out, "completed") != 2 {
		t.Fatalf("expected two completed runs:\n%s", out)
	}
	m := regexp.MustCompile(`sweep (\S+): 2 runs, 0 failed`).FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("missing sweep summary:\n%s", out)
	}

	out, err = execute(t, "results", "--results", db)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if !strings.Contains(out, m[1]) || !strings.Contains(out, "cli-smoke") {
		t.Fatalf("sweep %s not listed:\n%s", m[1], out)
	}

	out, err = execute(t, "results", "--results", db, m[1])
	if err != nil {
		t.Fatalf("results %s: %v", m[1], err)
	}
	if strings.Count(out, "completed") != 2 || !strings.Contains(out, `"count":"3"`) {
		t.Fatalf("runs not listed:\n%s", out)
	}
}

func TestResultsWithoutDatabase(t *testing.T) {
	isolate(t)
	if _, err := execute(t, "results"); err == nil {
		t.Fatalf("expected error when no results database is configured")
	}
}

func TestConfigFileInWorkingDirectory(t *testing.T) {
	dir := isolate(t)
	cfg := filepath.Join(dir, "swarmsim.yaml")
	if err := os.WriteFile(cfg, []byte("log:\n  format: xml\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	// swarmsim.yaml in the working directory is picked up automatically.
	if _, err := execute(t, "results"); err == nil || !strings.Contains(err.Error(), "log.format") {
		t.Fatalf("err = %v, want invalid log.format from the config file", err)
	}
}
