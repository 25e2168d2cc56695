package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flywheel/internal/config"
	"github.com/roach88/flywheel/internal/store"
	"github.com/roach88/flywheel/internal/testutil"
	"github.com/roach88/flywheel/internal/todo"
)

// cliEnv runs commands against a todo file in a temp directory with a
// deterministic clock starting at testutil.Epoch.
type cliEnv struct {
	t     *testing.T
	dir   string
	path  string
	env   map[string]string
	clock *testutil.DeterministicClock
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return &cliEnv{
		t:     t,
		dir:   dir,
		path:  filepath.Join(dir, "todo.json"),
		env:   map[string]string{},
		clock: testutil.NewDeterministicClock(),
	}
}

// run executes args with --db pointing at the env's file.
func (e *cliEnv) run(args ...string) (string, int) {
	e.t.Helper()
	return e.runRaw(append([]string{"--db", e.path}, args...)...)
}

func (e *cliEnv) runRaw(args ...string) (string, int) {
	e.t.Helper()
	opts := &RootOptions{
		LookupEnv: func(k string) (string, bool) {
			v, ok := e.env[k]
			return v, ok
		},
		Now: e.clock.Now,
	}
	cmd := NewRootCommandWith(opts)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	code := Execute(context.Background(), cmd, opts)
	return out.String(), code
}

func (e *cliEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, code := e.run(args...)
	require.Equal(e.t, ExitSuccess, code, out)
	return out
}

func decodeData[T any](t *testing.T, out string) T {
	t.Helper()
	var resp struct {
		Status string `json:"status"`
		Data   T      `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func TestAddAndList(t *testing.T) {
	e := newCLIEnv(t)

	assert.Equal(t, "Added 1: buy milk\n", e.mustRun("add", "buy", "milk"))
	assert.Equal(t, "Added 2: file taxes\n", e.mustRun("add", "file taxes", "-p", "1", "--due", "2023-12-31", "-t", "home"))

	out := e.mustRun("list")
	assert.Equal(t, "  1 [ ] buy milk\n  2 [ ] file taxes (p1) due 2023-12-31 OVERDUE #home\n", out)

	assert.FileExists(t, e.path)
}

func TestList_Empty(t *testing.T) {
	e := newCLIEnv(t)

	assert.Equal(t, "No todos.\n", e.mustRun("list"))
	assert.NoFileExists(t, e.path)

	got := decodeData[[]todo.Todo](t, e.mustRun("--format", "json", "list"))
	assert.Empty(t, got)
}

func TestList_Filters(t *testing.T) {
	e := newCLIEnv(t)
	e.mustRun("add", "buy milk", "-t", "shop")
	e.mustRun("add", "file taxes", "--due", "2023-12-31", "-t", "home")
	e.mustRun("add", "water plants", "--due", "2099-01-01", "-t", "home")
	e.mustRun("done", "1")

	ids := func(args ...string) []int64 {
		got := decodeData[[]todo.Todo](t, e.mustRun(append([]string{"--format", "json", "list"}, args...)...))
		out := make([]int64, len(got))
		for i, td := range got {
			out[i] = td.ID
		}
		return out
	}

	assert.Equal(t, []int64{1, 2, 3}, ids())
	assert.Equal(t, []int64{1}, ids("--done"))
	assert.Equal(t, []int64{2, 3}, ids("--pending"))
	assert.Equal(t, []int64{2}, ids("--overdue"))
	assert.Equal(t, []int64{2, 3}, ids("--tag", "home"))
	assert.Equal(t, []int64{2}, ids("--tag", "home", "--overdue"))

	out, code := e.run("list", "--done", "--pending")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, out, "mutually exclusive")
}

func TestAdd_JSON(t *testing.T) {
	e := newCLIEnv(t)

	added := decodeData[todo.Todo](t, e.mustRun("--format", "json", "add", "buy milk", "-t", "a,b"))
	assert.Equal(t, int64(1), added.ID)
	assert.Equal(t, "buy milk", added.Text)
	assert.Equal(t, []string{"a", "b"}, added.Tags)
	assert.Equal(t, "2024-01-01T10:00:00Z", added.CreatedAt)
}

func TestAdd_Invalid(t *testing.T) {
	e := newCLIEnv(t)

	tests := []struct {
		name string
		args []string
		code int
		want string
	}{
		{"no text", []string{"add"}, ExitCommandError, "invalid arguments"},
		{"blank text", []string{"add", "   "}, ExitFailure, "empty"},
		{"bad priority", []string{"add", "x", "-p", "9"}, ExitFailure, "invalid priority"},
		{"bad due date", []string{"add", "x", "--due", "tomorrow"}, ExitFailure, "invalid due date"},
		{"unknown flag", []string{"add", "x", "--colour", "red"}, ExitCommandError, "invalid flag"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, code := e.run(tt.args...)
			assert.Equal(t, tt.code, code, out)
			assert.Contains(t, out, tt.want)
		})
	}
	assert.NoFileExists(t, e.path)
}

func TestDoneAndUndone(t *testing.T) {
	e := newCLIEnv(t)
	e.mustRun("add", "buy milk")

	assert.Equal(t, "Completed 1: buy milk\n", e.mustRun("done", "1"))
	assert.Equal(t, "  1 [x] buy milk\n", e.mustRun("list"))

	assert.Equal(t, "Reopened 1: buy milk\n", e.mustRun("undone", "1"))
	assert.Equal(t, "  1 [ ] buy milk\n", e.mustRun("list"))
}

func TestDone_Errors(t *testing.T) {
	e := newCLIEnv(t)
	e.mustRun("add", "buy milk")

	out, code := e.run("done", "7")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, out, "Error [NOT_FOUND]")

	for _, id := range []string{"abc", "0", "-1"} {
		out, code = e.run("done", "--", id)
		assert.Equal(t, ExitCommandError, code, id)
		assert.Contains(t, out, "invalid id", id)
	}

	_, code = e.run("done")
	assert.Equal(t, ExitCommandError, code)
}

func TestEdit(t *testing.T) {
	e := newCLIEnv(t)
	e.mustRun("add", "buy milk", "--due", "2024-02-01", "-t", "shop")

	assert.Equal(t, "Updated 1: buy oat milk\n", e.mustRun("edit", "1", "--text", "buy oat milk", "-p", "2"))

	got := decodeData[todo.Todo](t, e.mustRun("--format", "json", "edit", "1", "--due", "", "--tag", "home,errand"))
	assert.Equal(t, "buy oat milk", got.Text)
	assert.Equal(t, 2, got.Priority)
	assert.Empty(t, got.DueDate)
	assert.Equal(t, []string{"home", "errand"}, got.Tags)
	assert.NotEqual(t, got.CreatedAt, got.UpdatedAt)
}

func TestEdit_Errors(t *testing.T) {
	e := newCLIEnv(t)
	e.mustRun("add", "buy milk")

	out, code := e.run("edit", "1")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, out, "nothing to edit")

	out, code = e.run("edit", "1", "--text", "   ")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, out, "empty")

	// The rejected edit wrote nothing.
	assert.Equal(t, "  1 [ ] buy milk\n", e.mustRun("list"))
}

func TestRemove(t *testing.T) {
	e := newCLIEnv(t)
	e.mustRun("add", "one")
	e.mustRun("add", "two")

	assert.Equal(t, "Removed 1: one\n", e.mustRun("rm", "1"))
	assert.Equal(t, "  2 [ ] two\n", e.mustRun("list"))

	out, code := e.run("rm", "1")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, out, "NOT_FOUND")

	assert.Equal(t, "Added 3: three\n", e.mustRun("add", "three"))
}

func TestCorruptFile(t *testing.T) {
	e := newCLIEnv(t)
	testutil.WriteFile(t, e.path, "{not json", 0o600)

	out, code := e.run("list")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, out, "Error [VALIDATION]")
	assert.Contains(t, out, e.path)

	out, code = e.run("--format", "json", "add", "x")
	assert.Equal(t, ExitFailure, code)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION", resp.Error.Code)

	// The corrupt file is left for the user to repair.
	assert.Equal(t, "{not json", testutil.ReadFile(t, e.path))
}

func TestLockTimeout(t *testing.T) {
	e := newCLIEnv(t)
	e.mustRun("add", "buy milk")

	other, err := store.Open(store.Config{Path: e.path})
	require.NoError(t, err)
	t.Cleanup(func() { other.Close() })

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := other.Update(context.Background(), func(todos []todo.Todo) ([]todo.Todo, error) {
			close(held)
			<-release
			return todos, nil
		})
		done <- err
	}()
	<-held

	start := time.Now()
	out, code := e.run("--lock-timeout", "100ms", "add", "x")
	assert.Equal(t, ExitTimeout, code, out)
	assert.Contains(t, out, "Error [TIMEOUT]")
	assert.Contains(t, out, "100ms")
	assert.Less(t, time.Since(start), 5*time.Second)

	close(release)
	require.NoError(t, <-done)

	// Nothing was lost while the lock was held.
	assert.Equal(t, "  1 [ ] buy milk\n", e.mustRun("list"))
}

func TestLockTimeout_FlagMustBePositive(t *testing.T) {
	e := newCLIEnv(t)

	out, code := e.run("--lock-timeout", "0s", "list")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, out, "must be positive")
}

func TestEnvironmentOverrides(t *testing.T) {
	e := newCLIEnv(t)
	envPath := filepath.Join(e.dir, "env.json")
	e.env[config.EnvPath] = envPath

	e.mustRun("add", "from flag")
	_, code := e.runRaw("add", "from env")
	require.Equal(t, ExitSuccess, code)

	assert.Contains(t, testutil.ReadFile(t, envPath), "from env")
	assert.NotContains(t, testutil.ReadFile(t, e.path), "from env")

	e.env[config.EnvLockTimeout] = "soon"
	out, code := e.runRaw("list")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, out, config.EnvLockTimeout)
}

func TestConfigFile(t *testing.T) {
	e := newCLIEnv(t)
	cfgPath := filepath.Join(e.dir, "flywheel.yaml")
	testutil.WriteFile(t, cfgPath, "path: cfg.json\nbackup: false\n", 0o600)

	_, code := e.runRaw("--config", cfgPath, "add", "configured")
	require.Equal(t, ExitSuccess, code)
	assert.FileExists(t, filepath.Join(e.dir, "cfg.json"))

	// --db beats the file.
	_, code = e.runRaw("--config", cfgPath, "--db", e.path, "add", "flagged")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, testutil.ReadFile(t, e.path), "flagged")
}

func TestConfigFile_Invalid(t *testing.T) {
	e := newCLIEnv(t)
	cfgPath := filepath.Join(e.dir, "flywheel.yaml")
	testutil.WriteFile(t, cfgPath, "backup_count: 50\n", 0o600)

	out, code := e.runRaw("--config", cfgPath, "list")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, out, "backup_count")

	out, code = e.runRaw("--config", filepath.Join(e.dir, "absent.yaml"), "list")
	assert.Equal(t, ExitIO, code)
	assert.Contains(t, out, "failed to load config")
}

func TestStats(t *testing.T) {
	e := newCLIEnv(t)
	e.mustRun("add", "one")
	e.mustRun("add", "two", "--due", "2023-12-31")
	e.mustRun("done", "1")

	out := e.mustRun("stats")
	assert.Contains(t, out, "File:     "+e.path)
	assert.Contains(t, out, "Total:    2 (1 done, 1 pending, 1 overdue)")
	assert.Contains(t, out, "Next id:  3")
	assert.Contains(t, out, "Lock:     1 acquisitions")
	assert.NotContains(t, out, "Journal:")

	res := decodeData[StatsResult](t, e.mustRun("--format", "json", "stats"))
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, res.Done)
	assert.Equal(t, int64(3), res.NextID)
	assert.Equal(t, uint64(1), res.Lock.Acquisitions)
}

func TestStats_Metrics(t *testing.T) {
	e := newCLIEnv(t)
	e.mustRun("add", "one")

	out := e.mustRun("stats", "--metrics")
	assert.Contains(t, out, `flywheel_store_operations_total{code="OK",op="load"} 1`)
	assert.Contains(t, out, `flywheel_lock_acquisitions_total{lock="store"} 1`)
	assert.Contains(t, out, "# TYPE flywheel_store_operation_duration_seconds histogram")
}

func TestStats_Journal(t *testing.T) {
	e := newCLIEnv(t)
	journalPath := filepath.Join(e.dir, "ops.db")

	e.mustRun("--journal", journalPath, "add", "one")
	e.mustRun("--journal", journalPath, "add", "two")
	_, code := e.run("--journal", journalPath, "done", "9")
	require.Equal(t, ExitFailure, code)

	res := decodeData[StatsResult](t, e.mustRun("--journal", journalPath, "--format", "json", "stats"))

	counts := map[string]int64{}
	for _, s := range res.Journal {
		counts[s.Op+"/"+s.Code] = s.Count
	}
	assert.Equal(t, int64(2), counts["update/OK"])
	assert.Equal(t, int64(1), counts["update/ERROR"])
	assert.Equal(t, int64(1), counts["load/OK"])

	out := e.mustRun("--journal", journalPath, "stats")
	assert.True(t, strings.Contains(out, "Journal:"), out)
}
