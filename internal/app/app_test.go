package app

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/promptgrid/internal/executor"
	"github.com/vk/promptgrid/internal/report"
	"github.com/vk/promptgrid/internal/validate"
	"github.com/vk/promptgrid/internal/vars"
)

const posterScript = `
adapter      = "a1111_txt2img"
input_config = "themes.json"

variable "subject" { default = "a lighthouse" }

# One hero shot.
step "hero" {
  prompt = "${var.subject}, cinematic"
  width  = 512
  height = 512
  seed   = 42
  output = "hero.png"
}

step "themed" {
  for_each = input
  prompt   = "${var.subject} at ${each.value.time}"
  width    = 512
  height   = 768
  output   = "themes/${each.key}.png"
}
`

const themesJSON = `{
  "dusk": {"time": "dusk"},
  "dawn": {"time": "dawn"}
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// newBackend starts an A1111 stand-in. Each generated image holds the
// prompt it was made for. status, when it returns non-zero for a prompt,
// fails that request with the status code.
func newBackend(t *testing.T, status func(prompt string) int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	calls := &atomic.Int32{}
	mux := http.NewServeMux()
	mux.HandleFunc("/sdapi/v1/txt2img", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var body struct {
			Prompt    string `json:"prompt"`
			BatchSize int    `json:"batch_size"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if status != nil {
			if code := status(body.Prompt); code != 0 {
				http.Error(w, "rejected", code)
				return
			}
		}
		images := make([]string, max(body.BatchSize, 1))
		for i := range images {
			images[i] = base64.StdEncoding.EncodeToString([]byte(body.Prompt))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"images": images})
	})
	mux.HandleFunc("/sdapi/v1/samplers", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"name": "Euler a"}, {"name": "DPM++ 2M Karras"}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, calls
}

func TestRun_WritesArtifactsSummaryAndHistory(t *testing.T) {
	// --- Arrange ---
	dir := t.TempDir()
	scriptPath := writeFile(t, dir, "Poster Set.hcl", posterScript)
	writeFile(t, dir, "themes.json", themesJSON)
	outDir := filepath.Join(dir, "outputs")
	srv, calls := newBackend(t, nil)

	cfg := TestConfig(scriptPath, outDir, srv.URL)
	cfg.RunDir = true
	cfg.Concurrency = 2
	a, out, _ := SetupAppTest(t, cfg)
	a.now = func() time.Time { return time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC) }
	runDir := filepath.Join(outDir, "run-20250601-093000-poster-set")

	// --- Act ---
	summary, err := a.Run(context.Background())

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, report.StatusSucceeded, summary.Status)
	assert.Equal(t, report.Counts{Total: 3, Succeeded: 3}, summary.Counts)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []string{"hero", `themed["dusk"]`, `themed["dawn"]`},
		[]string{summary.Steps[0].ID, summary.Steps[1].ID, summary.Steps[2].ID})

	img, err := os.ReadFile(filepath.Join(runDir, "themes", "dawn.png"))
	require.NoError(t, err)
	assert.Equal(t, "a lighthouse at dawn", string(img))
	assert.FileExists(t, filepath.Join(runDir, "hero.png"))
	assert.FileExists(t, filepath.Join(runDir, report.SummaryFile))

	f, err := os.Open(filepath.Join(outDir, report.HistoryFile))
	require.NoError(t, err)
	defer f.Close()
	sc := bufio.NewScanner(f)
	require.True(t, sc.Scan())
	var entry report.HistoryEntry
	require.NoError(t, json.Unmarshal(sc.Bytes(), &entry))
	assert.Equal(t, summary.RunID, entry.ID)
	assert.Equal(t, "run-20250601-093000-poster-set", entry.RunName)
	assert.Len(t, entry.ImagePaths, 3)

	assert.Contains(t, out.String(), "succeeded")
	assert.Contains(t, out.String(), `themed["dawn"]`)
}

func TestRun_ValidationFailureHasNoSideEffects(t *testing.T) {
	// --- Arrange ---
	dir := t.TempDir()
	scriptPath := writeFile(t, dir, "broken.hcl", `
adapter = "a1111_txt2img"

variable "subject" { default = "fox" }

step "hero" {
  prompt = "${var.subjet}"
  width  = 512
  height = 512
  output = "hero.png"
}

step "banner" {
  prompt = var.subject
  width  = 512
  height = 512
  steps  = 500
  output = "banner.png"
}
`)
	outDir := filepath.Join(dir, "outputs")
	srv, calls := newBackend(t, nil)
	a, out, _ := SetupAppTest(t, TestConfig(scriptPath, outDir, srv.URL))

	// --- Act ---
	summary, err := a.Run(context.Background())

	// --- Assert ---
	require.Error(t, err)
	assert.Nil(t, summary)
	assert.Contains(t, out.String(), "failed in 0s: 0 succeeded, 0 failed, 0 timed out, 0 cancelled (of 0).")
	assert.Contains(t, out.String(), "Error: validation failed with 2 problem(s)")
	var verr *validate.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Violations, 2)
	assert.Zero(t, calls.Load())
	assert.NoDirExists(t, outDir)
}

func TestRun_FailedStepsDoNotStopTheRun(t *testing.T) {
	// --- Arrange ---
	dir := t.TempDir()
	scriptPath := writeFile(t, dir, "poster.hcl", posterScript)
	writeFile(t, dir, "themes.json", themesJSON)
	srv, _ := newBackend(t, func(prompt string) int {
		if strings.HasSuffix(prompt, "dusk") {
			return http.StatusUnprocessableEntity
		}
		return 0
	})
	cfg := TestConfig(scriptPath, filepath.Join(dir, "outputs"), srv.URL)
	cfg.PersistSummary = false
	a, _, _ := SetupAppTest(t, cfg)

	// --- Act ---
	summary, err := a.Run(context.Background())

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, report.StatusPartial, summary.Status)
	assert.Equal(t, report.Counts{Total: 3, Succeeded: 2, Failed: 1}, summary.Counts)
	assert.Equal(t, executor.KindPermanent, summary.Steps[1].ErrorKind)
	assert.Equal(t, 1, summary.Steps[1].Attempts)
	assert.NoFileExists(t, filepath.Join(dir, "outputs", report.SummaryFile))
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	// --- Arrange ---
	dir := t.TempDir()
	scriptPath := writeFile(t, dir, "poster.hcl", posterScript)
	writeFile(t, dir, "themes.json", themesJSON)
	srv, calls := newBackend(t, nil)
	a, _, _ := SetupAppTest(t, TestConfig(scriptPath, filepath.Join(dir, "outputs"), srv.URL))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// --- Act ---
	summary, err := a.Run(ctx)

	// --- Assert ---
	var cancelled *executor.CancelledError
	require.ErrorAs(t, err, &cancelled)
	require.NotNil(t, summary)
	assert.Equal(t, report.StatusCancelled, summary.Status)
	assert.Equal(t, 3, summary.Counts.Cancelled)
	assert.Zero(t, calls.Load())
}

func TestLoad_SourcePrecedence(t *testing.T) {
	// --- Arrange ---
	dir := t.TempDir()
	scriptPath := writeFile(t, dir, "vars.hcl", `
adapter = "a1111_txt2img"

variable "a" { default = "default" }
variable "b" { default = "default" }
variable "c" { default = "default" }
variable "d" { default = "default" }
variable "e" { default = "default" }
variable "f" { default = "default" }

step "only" {
  prompt = "${var.a}"
  output = "only.png"
}
`)
	first := writeFile(t, dir, "first.json", `{"a": "file1", "b": "file1"}`)
	second := writeFile(t, dir, "second.json", `{"b": "file2", "c": "file2"}`)
	writeFile(t, dir, ".env", "PROMPTGRID_VAR_c=dotenv\nPROMPTGRID_VAR_d=dotenv\nPROMPTGRID_VAR_e=dotenv\n")

	cfg := TestConfig(scriptPath, filepath.Join(dir, "outputs"), "http://127.0.0.1:1")
	cfg.Vars = []string{"a=flag"}
	cfg.VarFiles = []string{first, second}
	a, _, _ := SetupAppTest(t, cfg)
	a.environ = func() []string { return []string{"PROMPTGRID_VAR_d=env", "HOME=/root"} }

	// --- Act ---
	w, err := a.Load(context.Background())

	// --- Assert ---
	require.NoError(t, err)
	want := map[string]string{"a": "flag", "b": "file2", "c": "file2", "d": "env", "e": "dotenv", "f": "default"}
	for name, expected := range want {
		val, ok := w.Bindings.Lookup(name)
		require.True(t, ok, name)
		assert.Equal(t, expected, val.AsString(), name)
	}
}

func TestLoad_WarnsAboutUndeclaredVariables(t *testing.T) {
	// --- Arrange ---
	dir := t.TempDir()
	scriptPath := writeFile(t, dir, "hero.hcl", `
adapter = "a1111_txt2img"
variable "subject" { default = "fox" }
step "hero" {
  prompt = var.subject
  output = "hero.png"
}
`)
	extra := writeFile(t, dir, "extra.json", `{"subject": "owl", "mood": "calm"}`)
	cfg := TestConfig(scriptPath, filepath.Join(dir, "outputs"), "http://127.0.0.1:1")
	cfg.Vars = []string{"subjct=cat"}
	cfg.VarFiles = []string{extra}
	a, _, logs := SetupAppTest(t, cfg)

	// --- Act ---
	w, err := a.Load(context.Background())

	// --- Assert ---
	require.NoError(t, err)
	val, _ := w.Bindings.Lookup("subject")
	assert.Equal(t, "owl", val.AsString())
	assert.Contains(t, logs.String(), "variable=subjct source=flag")
	assert.Contains(t, logs.String(), "variable=mood")
	assert.NotContains(t, logs.String(), "variable=subject ")
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	unresolved := writeFile(t, dir, "unresolved.hcl", `
adapter = "a1111_txt2img"
variable "subject" {}
step "hero" {
  prompt = var.subject
  output = "hero.png"
}
`)
	missingInput := writeFile(t, dir, "missing_input.hcl", `
adapter      = "a1111_txt2img"
input_config = "nope.json"
step "hero" {
  prompt = "x"
  output = "hero.png"
}
`)

	testCases := []struct {
		name  string
		path  string
		check func(t *testing.T, err error)
	}{
		{
			name: "no script",
			path: "",
			check: func(t *testing.T, err error) {
				assert.EqualError(t, err, "a script path is required")
			},
		},
		{
			name: "unresolved variable",
			path: unresolved,
			check: func(t *testing.T, err error) {
				var uerr *vars.UnresolvedVariableError
				require.ErrorAs(t, err, &uerr)
				assert.Equal(t, []string{"subject"}, uerr.Names)
			},
		},
		{
			name: "missing shared input",
			path: missingInput,
			check: func(t *testing.T, err error) {
				var ierr *vars.InputError
				require.ErrorAs(t, err, &ierr)
				assert.Equal(t, filepath.Join(dir, "nope.json"), ierr.Path)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a, _, _ := SetupAppTest(t, TestConfig(tc.path, filepath.Join(dir, "outputs"), "http://127.0.0.1:1"))
			_, err := a.Load(context.Background())
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}

func TestPrintPlan_NoNetwork(t *testing.T) {
	// --- Arrange ---
	dir := t.TempDir()
	scriptPath := writeFile(t, dir, "poster.hcl", posterScript)
	writeFile(t, dir, "themes.json", themesJSON)
	srv, calls := newBackend(t, nil)
	a, out, _ := SetupAppTest(t, TestConfig(scriptPath, filepath.Join(dir, "outputs"), srv.URL))

	// --- Act ---
	err := a.PrintPlan(context.Background())

	// --- Assert ---
	require.NoError(t, err)
	assert.Zero(t, calls.Load())
	assert.Contains(t, out.String(), "3 instance(s) planned for poster.")
	assert.Contains(t, out.String(), "themes/dusk.png")
	assert.NoDirExists(t, filepath.Join(dir, "outputs"))
}

func TestHealth(t *testing.T) {
	srv, _ := newBackend(t, nil)

	t.Run("up", func(t *testing.T) {
		a, out, _ := SetupAppTest(t, TestConfig("", t.TempDir(), srv.URL))
		require.NoError(t, a.Health(context.Background(), ""))
		assert.Contains(t, out.String(), "is up (2 samplers available)")
	})

	t.Run("unknown adapter", func(t *testing.T) {
		a, _, _ := SetupAppTest(t, TestConfig("", t.TempDir(), srv.URL))
		err := a.Health(context.Background(), "a1111_txt2im")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `did you mean "a1111_txt2img"?`)
	})

	t.Run("down", func(t *testing.T) {
		down := httptest.NewServer(http.NotFoundHandler())
		url := down.URL
		down.Close()
		a, _, _ := SetupAppTest(t, TestConfig("", t.TempDir(), url))
		err := a.Health(context.Background(), "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "is not healthy")
	})
}

func TestNewApp_RejectsAdapterWithUnknownProtocol(t *testing.T) {
	// --- Arrange ---
	dir := t.TempDir()
	writeFile(t, dir, "comfy.hcl", `
adapter "comfy" {
  protocol = "comfyui"
  path     = "/prompt"
}
`)
	cfg := TestConfig("", t.TempDir(), "http://127.0.0.1:1")
	cfg.AdaptersDir = dir

	// --- Act ---
	_, err := NewApp(&SafeBuffer{}, &SafeBuffer{}, cfg)

	// --- Assert ---
	require.Error(t, err)
	assert.Contains(t, err.Error(), "protocol 'comfyui' has no registered Go implementation")
}

func TestNewConfig(t *testing.T) {
	cfg := TestConfig("poster.hcl", "outputs", "http://127.0.0.1:7860")
	got, err := NewConfig(*cfg)
	require.NoError(t, err)
	assert.Equal(t, "poster.hcl", got.ScriptPath)

	cfg.Concurrency = 0
	_, err = NewConfig(*cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "concurrency: must be at least 1")
}
