package app

import (
	"bytes"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/vk/promptgrid/internal/config"
	"github.com/vk/promptgrid/internal/registry"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// TestConfig returns a configuration for scriptPath that writes below
// outputDir and talks to endpoint, with short timeouts and backoff.
func TestConfig(scriptPath, outputDir, endpoint string) *Config {
	settings := config.Default()
	settings.Endpoint = endpoint
	settings.OutputDir = outputDir
	settings.LogLevel = "debug"
	settings.BackoffInitial = time.Millisecond
	settings.BackoffMax = 5 * time.Millisecond
	return &Config{Config: *settings, ScriptPath: scriptPath}
}

// SetupAppTest creates a new app instance for system testing. Results are
// written to the returned output buffer and logs to the log buffer.
func SetupAppTest(t *testing.T, cfg *Config, modules ...registry.Module) (*App, *SafeBuffer, *SafeBuffer) {
	t.Helper()

	out := &SafeBuffer{}
	logs := &SafeBuffer{}
	testApp, err := NewApp(out, logs, cfg, modules...)
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	testApp.environ = func() []string { return nil }

	t.Cleanup(func() {
		_ = testApp.Close()
		if os.Getenv("PROMPTGRID_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logs.String())
		}
	})

	return testApp, out, logs
}
