package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/autocat/internal/ir"
	"github.com/roach88/autocat/internal/runner"
)

var basicCatalog = filepath.Join("..", "harness", "testdata", "catalogs", "basic.yaml")

type cliEnv struct {
	t  *testing.T
	db string
}

// newCLIEnv returns an environment with the basic catalog imported into a
// fresh SQLite file.
func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	t.Setenv("AUTOCAT_LOG_MODE", "prod")
	env := &cliEnv{t: t, db: filepath.Join(t.TempDir(), "autocat.db")}
	out, err := env.run("import", basicCatalog)
	require.NoError(t, err, out)
	assert.Contains(t, out, "\u2713 Imported 4 categories and 4 items")
	return env
}

func (e *cliEnv) run(args ...string) (string, error) {
	e.t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--db", e.db, "--groupings", groupingsDir}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func (e *cliEnv) runJSON(v any, args ...string) error {
	e.t.Helper()
	out, err := e.run(append([]string{"--format", "json"}, args...)...)
	require.NoError(e.t, json.Unmarshal([]byte(out), v), out)
	return err
}

func TestImport_MissingCatalog(t *testing.T) {
	env := &cliEnv{t: t, db: filepath.Join(t.TempDir(), "autocat.db")}
	out, err := env.run("import", "/nonexistent/catalog.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E030]")
}

func TestMaintain_All(t *testing.T) {
	env := newCLIEnv(t)

	var resp struct {
		Status string        `json:"status"`
		Data   runner.Report `json:"data"`
	}
	require.NoError(t, env.runJSON(&resp, "maintain", "--all"))
	assert.Equal(t, "ok", resp.Status)
	assert.Len(t, resp.Data.Outcomes, 6)
	assert.Equal(t, 0, resp.Data.Failed)
	assert.Equal(t, 1, resp.Data.Skipped)
	assert.Equal(t, int64(0), resp.Data.Deleted)
	assert.Equal(t, int64(9), resp.Data.Inserted)

	// A second pass finds nothing to change.
	out, err := env.run("maintain", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "\u2713 6 groupings maintained (0 deleted, 0 inserted, 1 skipped)")
	assert.Contains(t, out, "GROUPING")
	assert.Contains(t, out, "disabled")
}

func TestMaintain_ScopedToItems(t *testing.T) {
	env := newCLIEnv(t)

	var resp struct {
		Data runner.Report `json:"data"`
	}
	require.NoError(t, env.runJSON(&resp, "maintain", "10", "--items", "2,3"))
	require.Len(t, resp.Data.Outcomes, 1)
	res := resp.Data.Outcomes[0].Result
	require.NotNil(t, res)
	assert.True(t, res.Scoped)
	assert.Equal(t, int64(1), res.Inserted)

	var show struct {
		Data ShowOutput `json:"data"`
	}
	require.NoError(t, env.runJSON(&show, "show", "10"))
	assert.Equal(t, []ir.MembershipRow{{GroupingID: 10, ItemID: 2}}, show.Data.Rows)
}

func TestMaintain_UnknownGroupingFails(t *testing.T) {
	env := newCLIEnv(t)

	var resp struct {
		Status string        `json:"status"`
		Data   runner.Report `json:"data"`
		Error  *CLIError     `json:"error"`
	}
	err := env.runJSON(&resp, "maintain", "10", "99")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeRunFailed, resp.Error.Code)
	assert.Equal(t, 1, resp.Data.Failed)
	assert.Equal(t, int64(3), resp.Data.Inserted)
	assert.Contains(t, resp.Data.Outcomes[1].Error, "GROUPING_NOT_FOUND")
}

func TestMaintain_ArgumentErrors(t *testing.T) {
	env := &cliEnv{t: t, db: filepath.Join(t.TempDir(), "autocat.db")}

	tests := []struct {
		name string
		args []string
	}{
		{"nothing", []string{"maintain"}},
		{"ids_and_all", []string{"maintain", "10", "--all"}},
		{"bad_id", []string{"maintain", "ten"}},
		{"negative_id", []string{"maintain", "--", "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := env.run(tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "Error [E012]")
		})
	}
}

func TestMaintain_BadGroupingsDir(t *testing.T) {
	env := &cliEnv{t: t, db: filepath.Join(t.TempDir(), "autocat.db")}
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", env.db, "--groupings", "/nonexistent", "maintain", "--all"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "Error [E005]")
}

func TestShow_Table(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run("maintain", "11")
	require.NoError(t, err)

	out, err := env.run("show", "11")
	require.NoError(t, err)
	assert.Contains(t, out, "ITEM  POSITION")
	assert.Contains(t, out, "2 members")

	var show struct {
		Data ShowOutput `json:"data"`
	}
	require.NoError(t, env.runJSON(&show, "show", "11"))
	assert.Equal(t, "grouping_items", show.Data.Table)
	assert.Len(t, show.Data.Digest, 64)
	assert.Equal(t, []ir.MembershipRow{
		{GroupingID: 11, ItemID: 1, Position: 3},
		{GroupingID: 11, ItemID: 4, Position: 2},
	}, show.Data.Rows)
}

func TestShow_Empty(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run("show", "13")
	require.NoError(t, err)
	assert.Contains(t, out, "grouping 13 has no members")

	var show struct {
		Data ShowOutput `json:"data"`
	}
	require.NoError(t, env.runJSON(&show, "show", "13"))
	assert.NotNil(t, show.Data.Rows)
	assert.Empty(t, show.Data.Rows)
}

func TestExplain_Plan(t *testing.T) {
	env := newCLIEnv(t)

	var resp struct {
		Data struct {
			Plan struct {
				GroupingID int64 `json:"grouping_id"`
				Table      string
				Scoped     bool
				Match      struct{ SQL string }
				Delete     struct{ SQL string }
				Insert     struct{ SQL string }
			} `json:"plan"`
			Matches []int64 `json:"matches"`
		} `json:"data"`
	}
	require.NoError(t, env.runJSON(&resp, "explain", "10", "--matches"))
	plan := resp.Data.Plan
	assert.Equal(t, int64(10), plan.GroupingID)
	assert.False(t, plan.Scoped)
	assert.Contains(t, plan.Delete.SQL, "DELETE FROM grouping_items")
	assert.Contains(t, plan.Insert.SQL, "INSERT INTO grouping_items")
	assert.NotEmpty(t, plan.Match.SQL)
	assert.Equal(t, []int64{1, 2, 4}, resp.Data.Matches)

	// Explain never writes.
	count, err := env.run("--format", "json", "show", "10")
	require.NoError(t, err)
	assert.Contains(t, count, `"rows":[]`)
}

func TestExplain_Text(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run("explain", "10", "--items", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "grouping:    10")
	assert.Contains(t, out, "candidates:  [3]")
	assert.Contains(t, out, "delete:")
	assert.Contains(t, out, "insert:")

	out, err = env.run("explain", "15")
	require.NoError(t, err)
	assert.Contains(t, out, "skipped:     disabled")
}

func TestExplain_UnknownGrouping(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run("explain", "99")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]: grouping 99 not found")
}

func TestServe_Once(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run("serve", "--once")
	require.NoError(t, err)
	assert.Contains(t, out, "\u2713 maintain pass complete")

	var show struct {
		Data ShowOutput `json:"data"`
	}
	require.NoError(t, env.runJSON(&show, "show", "12"))
	assert.Len(t, show.Data.Rows, 2)
}

func TestServe_RejectsBadInterval(t *testing.T) {
	env := &cliEnv{t: t, db: filepath.Join(t.TempDir(), "autocat.db")}

	out, err := env.run("serve", "--interval", "0s")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "--interval must be positive")
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	t.Setenv("AUTOCAT_DB_DSN", "from-env.db")
	cfg, err := loadConfig(&RootOptions{Database: "from-flag.db", Groupings: "gdir", Verbose: true})
	require.NoError(t, err)
	assert.Equal(t, "from-flag.db", cfg.Database.DSN)
	assert.Equal(t, "gdir", cfg.GroupingsDir)
	assert.Equal(t, "debug", cfg.Log.Mode)

	cfg, err = loadConfig(&RootOptions{})
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.Database.DSN)
}

func TestLoadConfig_File(t *testing.T) {
	cfg, err := loadConfig(&RootOptions{ConfigPath: filepath.Join("..", "..", "testdata", "config", "autocat.yaml")})
	require.NoError(t, err)
	assert.Equal(t, "category_products", cfg.Database.MembershipTable)
	assert.Equal(t, 8, cfg.Runner.Concurrency)
}
