package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amankb/internal/textindex"
	"github.com/Aman-CERP/amankb/pkg/version"
)

// isolate points every path the CLI touches at a temp directory.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("AMANKB_DB_PATH", filepath.Join(dir, "data", "kb.db"))
	t.Setenv("AMANKB_STORAGE_ROOT", filepath.Join(dir, "storage"))
	t.Setenv("AMANKB_TEXT_BACKEND", "bleve")
	t.Setenv("AMANKB_TEXT_BLEVE_DIR", filepath.Join(dir, "bleve"))
	t.Setenv("AMANKB_VECTOR_ENABLED", "false")
	t.Setenv("AMANKB_LOG_FILE", filepath.Join(dir, "logs", "amankb.log"))
	t.Setenv("AMANKB_LOG_STDERR", "false")
	return dir
}

func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append([]string{"--dir", dir}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCmd_RegistersSubcommands(t *testing.T) {
	// Given: the root command
	cmd := NewRootCmd()

	// Then: every top-level command is registered
	names := make(map[string]bool)
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "worker", "enqueue", "reindex", "search", "library", "job", "doctor", "config", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestRootCmd_ShowsHelp(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "amankb serve")
}

func TestVersionCmd(t *testing.T) {
	dir := isolate(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "full", args: []string{"version"}, want: version.String()},
		{name: "short", args: []string{"version", "--short"}, want: version.Short()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, dir, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, strings.TrimSpace(out))
		})
	}

	t.Run("json", func(t *testing.T) {
		out, err := run(t, dir, "version", "--json")
		require.NoError(t, err)
		var info version.BuildInfo
		require.NoError(t, json.Unmarshal([]byte(out), &info))
		assert.Equal(t, version.Version, info.Version)
	})
}

func TestConfigInit_WritesUserConfigOnce(t *testing.T) {
	// Given: an isolated user config directory
	dir := isolate(t)
	path := filepath.Join(dir, "xdg", "amankb", "config.yaml")

	// When: running config init
	out, err := run(t, dir, "config", "init")

	// Then: the file is written
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.FileExists(t, path)

	// And: a second run without --force leaves it alone
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o600))
	out, err = run(t, dir, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "version: 1\n", string(data))
}

func TestConfigInit_ProjectTemplateLoads(t *testing.T) {
	// Given: an empty deployment directory
	dir := isolate(t)

	// When: writing the project template
	_, err := run(t, dir, "config", "init", "--project")
	require.NoError(t, err)

	// Then: it exists and the CLI still loads configuration from it
	assert.FileExists(t, filepath.Join(dir, ".amankb.yaml"))
	_, err = run(t, dir, "config", "show")
	require.NoError(t, err)
}

func TestConfigShow_ReflectsEnvironment(t *testing.T) {
	dir := isolate(t)

	out, err := run(t, dir, "config", "show", "--json")
	require.NoError(t, err)

	var cfg map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	text, ok := cfg["text_index"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "bleve", text["backend"])
}

func TestCLI_ParseAndSearchFlow(t *testing.T) {
	// Given: an isolated deployment with a text-only library
	dir := isolate(t)
	out, err := run(t, dir, "library", "create", "handbook")
	require.NoError(t, err)
	assert.Contains(t, out, "Created library 1")

	doc := filepath.Join(dir, "refunds.txt")
	require.NoError(t, os.WriteFile(doc, []byte(
		"Refunds are issued within fourteen days of purchase.\n\n"+
			"Contact support with your order number to request one.\n"), 0o644))

	// When: the file is enqueued
	out, err = run(t, dir, "enqueue", "1", doc, "--json")
	require.NoError(t, err)
	var reg struct {
		FileID int64 `json:"fileId"`
		JobID  int64 `json:"jobId"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &reg))
	assert.Positive(t, reg.JobID)

	// And: the worker runs once
	out, err = run(t, dir, "worker", "run-once")
	require.NoError(t, err)
	assert.Contains(t, out, "parse complete")
	assert.Contains(t, out, "Job finished")

	// Then: the job is successful
	out, err = run(t, dir, "job", "show", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "SUCCESS")

	// And: the text is searchable
	out, err = run(t, dir, "search", "refunds", "--kb", "1", "--json")
	require.NoError(t, err)
	var res textindex.SearchResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.NotEmpty(t, res.Hits)
	assert.Contains(t, res.Hits[0].Highlight, "<em>Refunds</em>")

	// And: a second run finds nothing to do
	out, err = run(t, dir, "worker", "run-once")
	require.NoError(t, err)
	assert.Contains(t, out, "No pending jobs")
}

func TestLibraryCmd_SetModeAndReset(t *testing.T) {
	dir := isolate(t)
	_, err := run(t, dir, "library", "create", "docs")
	require.NoError(t, err)

	out, err := run(t, dir, "library", "set-mode", "1", "bm25", "--text-config", `{"analyzer":"standard"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "TEXT_OS")
	assert.Contains(t, out, "DISABLED")
	assert.Contains(t, out, "amankb reindex kb 1")

	out, err = run(t, dir, "library", "reset", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "TEXT_OS")

	out, err = run(t, dir, "reindex", "kb", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "AVAILABLE")
}

func TestCommands_RejectBadInput(t *testing.T) {
	dir := isolate(t)
	doc := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(doc, []byte("some document text for the test"), 0o644))

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "non-numeric job id", args: []string{"job", "show", "abc"}, want: "invalid job id"},
		{name: "unknown job", args: []string{"job", "show", "42"}, want: "not found"},
		{name: "bad mode", args: []string{"library", "create", "x", "--mode", "FUZZY"}, want: "invalid index mode"},
		{name: "unknown library", args: []string{"enqueue", "9", doc}, want: "library not found"},
		{name: "blank keyword", args: []string{"search", " "}, want: "keyword is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, dir, tt.args...)
			require.Error(t, err)
			assert.Contains(t, strings.ToLower(err.Error()), tt.want)
		})
	}
}

func TestDoctorCmd_ReportsChecks(t *testing.T) {
	// Given: an isolated deployment with the vector service disabled
	dir := isolate(t)

	// When: running doctor
	out, err := run(t, dir, "doctor", "--json")

	// Then: the store and bleve index answer and the vector service is disabled
	require.NoError(t, err)
	var report struct {
		Status string `json:"status"`
		Checks []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"checks"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))

	got := make(map[string]string)
	for _, c := range report.Checks {
		got[c.Name] = c.Status
	}
	assert.Equal(t, "PASS", got["database"])
	assert.Equal(t, "PASS", got["text_index"])
	assert.Equal(t, "WARN", got["vector_index"])
	assert.Equal(t, "PASS", got["storage_writable"])
	assert.NotEqual(t, "failed", report.Status)
}
