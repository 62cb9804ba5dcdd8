package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/reqsite/internal/config"
)

// writeExecutable writes a shell script generator stand-in.
func writeExecutable(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func writeSourceExports(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sys"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hierarchy.yaml"), []byte(`modules:
  - name: System
    abbrev: SYS
    level: System
    requirements_module: "/System Requirements"
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sys", "requirements.csv"),
		[]byte("id,title\nSYS-1,The system shall exist\n"), 0o644))
}

func writeRunConfig(t *testing.T, dir, generator string, destinations ...string) *config.Config {
	t.Helper()
	sourceDir := filepath.Join(dir, "source")
	writeSourceExports(t, sourceDir)

	cfgYAML := fmt.Sprintf(`source:
  path: %s
staging:
  path: %s
output:
  path: %s
generator:
  command: %s
  project_name: Test Project
`, sourceDir, filepath.Join(dir, "staging"), filepath.Join(dir, "site"), generator)
	cfgYAML += "destinations:\n"
	for i, d := range destinations {
		cfgYAML += fmt.Sprintf("  - name: dest%d\n    path: %s\n", i, d)
	}

	cfgPath := filepath.Join(dir, "reqsite.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0o644))

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	return cfg
}

func TestRunOnce_EndToEnd(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script generator stand-in")
	}
	dir := t.TempDir()
	t.Chdir(dir)

	// The stand-in generator writes one page into the output directory.
	generator := writeExecutable(t, dir, "fake-generator", `
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "--out" ]; then out="$2"; shift; fi
  shift
done
mkdir -p "$out"
echo "<html>site</html>" > "$out/index.html"
`)

	dest := filepath.Join(dir, "publish")
	cfg := writeRunConfig(t, dir, generator, dest)

	require.NoError(t, runOnce(cfg, false))

	require.FileExists(t, filepath.Join(dest, "index.html"))
	require.FileExists(t, filepath.Join(dir, "work", "run-report.json"))
	require.FileExists(t, filepath.Join(dir, "work", "run-report.txt"))
}

func TestRunOnce_GeneratorFailureReturnsError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script generator stand-in")
	}
	dir := t.TempDir()
	t.Chdir(dir)

	generator := writeExecutable(t, dir, "failing-generator", "exit 2\n")
	dest := filepath.Join(dir, "publish")
	cfg := writeRunConfig(t, dir, generator, dest)

	require.Error(t, runOnce(cfg, false))
	// The publisher must not have run.
	require.NoDirExists(t, dest)
}

func TestRunOnce_DestinationFailureIsNotAnError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script generator stand-in")
	}
	dir := t.TempDir()
	t.Chdir(dir)

	generator := writeExecutable(t, dir, "fake-generator", `
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "--out" ]; then out="$2"; shift; fi
  shift
done
mkdir -p "$out"
echo ok > "$out/index.html"
`)

	// Second destination cannot be created: its parent is a regular file.
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	good := filepath.Join(dir, "good")
	bad := filepath.Join(blocker, "nested")

	cfg := writeRunConfig(t, dir, generator, good, bad)

	require.NoError(t, runOnce(cfg, false))
	require.FileExists(t, filepath.Join(good, "index.html"))
}

func TestRunOnce_SkipPublish(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script generator stand-in")
	}
	dir := t.TempDir()
	t.Chdir(dir)

	generator := writeExecutable(t, dir, "fake-generator", `
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "--out" ]; then out="$2"; shift; fi
  shift
done
mkdir -p "$out"
echo ok > "$out/index.html"
`)
	dest := filepath.Join(dir, "publish")
	cfg := writeRunConfig(t, dir, generator, dest)

	require.NoError(t, runOnce(cfg, true))
	require.NoDirExists(t, dest)
}

func TestRunOnce_ZeroDestinationsRejected(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script generator stand-in")
	}
	dir := t.TempDir()
	t.Chdir(dir)

	generator := writeExecutable(t, dir, "fake-generator", `
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "--out" ]; then out="$2"; shift; fi
  shift
done
mkdir -p "$out"
echo ok > "$out/index.html"
`)
	cfg := writeRunConfig(t, dir, generator)

	err := runOnce(cfg, false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no destinations configured")

	// With publishing skipped, a destination-less config is fine.
	require.NoError(t, runOnce(cfg, true))
}

func TestRunDaemon_ZeroDestinationsRejected(t *testing.T) {
	cfg := &config.Config{}
	err := runDaemon(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no destinations configured")
}

func TestRunOnce_BlockedCheckoutDirFailsEarly(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script generator stand-in")
	}
	dir := t.TempDir()
	t.Chdir(dir)

	generator := writeExecutable(t, dir, "fake-generator", "exit 0\n")
	dest := filepath.Join(dir, "publish")
	cfg := writeRunConfig(t, dir, generator, dest)

	// A regular file where the checkout subdirectory should go makes the
	// work directory unusable; the run must fail before any stage starts.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "work"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "work", "checkout"), []byte("x"), 0o644))

	err := runOnce(cfg, false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "checkout directory")
}

func TestRunHistory_Unconfigured(t *testing.T) {
	cfg := &config.Config{}
	require.Error(t, runHistory(cfg, 5))
}
