package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/episodic/pkg/config"
	"github.com/entrhq/episodic/pkg/lock"
	"github.com/entrhq/episodic/pkg/state"
)

type result struct {
	code   int
	stdout string
	stderr string
}

func run(t *testing.T, root string, args ...string) result {
	t.Helper()
	var out, errb bytes.Buffer
	code := execute(context.Background(), append([]string{"--root", root}, args...), &out, &errb)
	return result{code: code, stdout: out.String(), stderr: errb.String()}
}

// writeRecords creates Loop<first>..Loop<last> dated an hour ago.
func writeRecords(t *testing.T, root string, first, last int) {
	t.Helper()
	dir := filepath.Join(root, "Loops")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	old := time.Now().Add(-time.Hour)
	for i := first; i <= last; i++ {
		p := filepath.Join(dir, fmt.Sprintf("Loop%04d_entry.txt", i))
		require.NoError(t, os.WriteFile(p, []byte(fmt.Sprintf("record %d", i)), 0o644))
		require.NoError(t, os.Chtimes(p, old, old))
	}
}

func weeklyDir(root string) string { return filepath.Join(root, "Digests", "1_Weekly") }

func TestCheckRunCycle(t *testing.T) {
	root := t.TempDir()
	writeRecords(t, root, 1, 5)

	res := run(t, root, "check")
	assert.Equal(t, exitDue, res.code, res.stderr)
	assert.Contains(t, res.stdout, "due (early)")
	assert.Contains(t, res.stdout, "Loop0001_entry")
	assert.NoFileExists(t, filepath.Join(weeklyDir(root), "W0001.json"), "check must not write")

	res = run(t, root, "run")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "weekly W0001 (early, 5 input(s)")
	assert.Contains(t, res.stdout, "monthly shadow +1")
	assert.FileExists(t, filepath.Join(weeklyDir(root), "W0001.json"))
	assert.FileExists(t, filepath.Join(root, "Digests", "last_digest_times.json"))

	res = run(t, root, "check")
	assert.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "nothing due")

	res = run(t, root, "run")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "nothing due")
	assert.NoFileExists(t, filepath.Join(weeklyDir(root), "W0002.json"))
}

func TestStatus(t *testing.T) {
	root := t.TempDir()
	writeRecords(t, root, 1, 7)
	require.Equal(t, exitOK, run(t, root, "run").code)

	res := run(t, root, "status")
	require.Equal(t, exitOK, res.code, res.stderr)
	for _, want := range []string{"Level", "Watermark", "Next due", "weekly", "centurial", "never", "2/5"} {
		assert.Contains(t, res.stdout, want)
	}
}

func TestShadowShowJSON(t *testing.T) {
	root := t.TempDir()
	writeRecords(t, root, 1, 5)
	require.Equal(t, exitOK, run(t, root, "run").code)

	res := run(t, root, "shadow", "show", "--json")
	require.Equal(t, exitOK, res.code, res.stderr)
	var buffers map[string]state.ShadowBuffer
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &buffers))
	assert.Len(t, buffers, 8)
	assert.Equal(t, []string{"W0001"}, buffers["monthly"].Identifiers)
	assert.Empty(t, buffers["weekly"].Identifiers)

	res = run(t, root, "shadow", "show", "yearly")
	assert.Equal(t, exitError, res.code)
}

func TestShadowUpdate(t *testing.T) {
	root := t.TempDir()
	writeRecords(t, root, 1, 3)

	res := run(t, root, "shadow", "update")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "weekly")
	assert.Contains(t, res.stdout, "+3")

	res = run(t, root, "shadow", "update")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.NotContains(t, res.stdout, "+3")
}

func TestDraftThenFinalize(t *testing.T) {
	root := t.TempDir()
	writeRecords(t, root, 1, 5)

	res := run(t, root, "run", "--draft")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "drafted")
	draft := filepath.Join(weeklyDir(root), "drafts", "W0001_Loop0001-Loop0005.json")
	require.FileExists(t, draft)
	assert.NoFileExists(t, filepath.Join(weeklyDir(root), "W0001.json"))

	res = run(t, root, "finalize", draft, "First week")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "finalized")
	assert.Contains(t, res.stdout, "monthly shadow +1")
	assert.FileExists(t, filepath.Join(weeklyDir(root), "W0001_First_week.json"))
	assert.NoFileExists(t, draft)

	res = run(t, root, "check")
	assert.Equal(t, exitOK, res.code, res.stdout)
}

func TestFinalizeAfterRunReportsStaleDraft(t *testing.T) {
	root := t.TempDir()
	writeRecords(t, root, 1, 5)

	require.Equal(t, exitOK, run(t, root, "run", "--draft").code)
	draft := filepath.Join(weeklyDir(root), "drafts", "W0001_Loop0001-Loop0005.json")
	require.FileExists(t, draft)
	require.Equal(t, exitOK, run(t, root, "run").code)

	res := run(t, root, "finalize", draft, "Late title")
	assert.Equal(t, exitError, res.code)
	assert.Contains(t, res.stderr, "stale draft")
	assert.Contains(t, res.stderr, "committed as W0001")
	assert.NoFileExists(t, filepath.Join(weeklyDir(root), "W0001_Late_title.json"))
}

func TestRollupManual(t *testing.T) {
	root := t.TempDir()
	writeRecords(t, root, 1, 2)

	res := run(t, root, "rollup", "weekly", "--title", "Short week")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "weekly W0001_Short_week (manual, 2 input(s)")
	assert.FileExists(t, filepath.Join(weeklyDir(root), "W0001_Short_week.json"))

	res = run(t, root, "rollup", "weekly")
	assert.Equal(t, exitError, res.code)
	assert.Contains(t, res.stderr, "Error:")
}

func TestMigrate(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "Loops")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Loop001_first.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Loop0002_second.txt"), []byte("y"), 0o644))

	res := run(t, root, "migrate")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Loop001_first.txt -> Loop0001_first.txt")
	assert.Contains(t, res.stdout, "1 file(s) to rename")
	assert.FileExists(t, filepath.Join(dir, "Loop001_first.txt"))

	res = run(t, root, "migrate", "--apply")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "renamed 1 file(s)")
	assert.FileExists(t, filepath.Join(dir, "Loop0001_first.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "Loop001_first.txt"))

	res = run(t, root, "migrate")
	assert.Contains(t, res.stdout, "nothing to rename")
}

func TestInit(t *testing.T) {
	root := t.TempDir()

	res := run(t, root, "init")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.FileExists(t, filepath.Join(root, config.FileName))
	assert.DirExists(t, filepath.Join(root, "Loops"))
	assert.DirExists(t, filepath.Join(root, "Digests", "8_Centurial"))

	cfg, err := config.Load(filepath.Join(root, config.FileName), false)
	require.NoError(t, err)
	assert.Equal(t, config.BackendFile, cfg.State.Backend)

	res = run(t, root, "init")
	assert.Equal(t, exitError, res.code)
	assert.Contains(t, res.stderr, "already exists")
}

func TestConfigErrors(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, config.FileName), []byte("bogus: 1\n"), 0o644))

	res := run(t, root, "status")
	assert.Equal(t, exitError, res.code)
	assert.Contains(t, res.stderr, "bogus")

	res = run(t, t.TempDir(), "--config", filepath.Join(root, "missing.yaml"), "status")
	assert.Equal(t, exitError, res.code)
}

func TestConfigOverridesThreshold(t *testing.T) {
	root := t.TempDir()
	cfg := "levels:\n  - id: weekly\n    early_threshold: 2\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, config.FileName), []byte(cfg), 0o644))
	writeRecords(t, root, 1, 2)

	res := run(t, root, "run", "--level", "weekly")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "weekly W0001 (early, 2 input(s)")
}

func TestRunRefusesWhileLocked(t *testing.T) {
	root := t.TempDir()
	writeRecords(t, root, 1, 5)
	l, err := lock.Acquire(filepath.Join(root, lock.FileName))
	require.NoError(t, err)
	defer func() { _ = l.Release() }()

	res := run(t, root, "run")
	assert.Equal(t, exitError, res.code)
	assert.Contains(t, res.stderr, "another invocation is running")

	res = run(t, root, "check")
	assert.Equal(t, exitDue, res.code, "read-only commands ignore the lock")
}

func TestRunRejectsBadFlags(t *testing.T) {
	root := t.TempDir()

	res := run(t, root, "run", "--overwrite", "prompt")
	assert.Equal(t, exitError, res.code)
	assert.Contains(t, res.stderr, "invalid overwrite policy")

	res = run(t, root, "run", "--analyst", "oracle")
	assert.Equal(t, exitError, res.code)
	assert.Contains(t, res.stderr, "unknown analyst")

	t.Setenv("OPENAI_API_KEY", "")
	res = run(t, root, "run", "--analyst", "llm")
	assert.Equal(t, exitError, res.code)
}
