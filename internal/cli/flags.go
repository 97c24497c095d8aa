package cli

import (
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/vk/promptgrid/internal/app"
	"github.com/vk/promptgrid/internal/config"
)

// options collects flag values. Only flags the user set override the
// configuration file and environment.
type options struct {
	lookup config.LookupFunc
	outW   io.Writer
	errW   io.Writer

	configPath      string
	endpoint        string
	vars            []string
	varFiles        []string
	input           string
	adapters        string
	logLevel        string
	logFormat       string
	format          string
	healthcheckPort int

	timeout         time.Duration
	concurrency     int
	retries         int
	minInterval     time.Duration
	failFast        bool
	allowPartial    bool
	cancelOnTimeout bool
	reuseIdentical  bool
	output          string
	runDir          bool
}

func (o *options) addSharedFlags(root *cobra.Command) {
	defaults := config.Default()
	f := root.PersistentFlags()

	f.StringVar(&o.configPath, "config", "", "Path to a YAML configuration file (default: ./"+config.DefaultFile+" when present).")
	f.StringVar(&o.endpoint, "endpoint", defaults.Endpoint, "Base URL of the image generation API.")
	f.StringArrayVar(&o.vars, "var", nil, "Set a variable as name=value. Repeatable; values that parse as JSON keep their type.")
	f.StringArrayVar(&o.varFiles, "var-file", nil, "JSON file of variable values. Repeatable; later files win.")
	f.StringVar(&o.input, "input", "", "Shared input JSON file; overrides the script's input_config.")
	f.StringVar(&o.adapters, "adapters", "", "Directory of extra adapter manifests.")
	f.StringVar(&o.logLevel, "log-level", defaults.LogLevel, "Logging level: debug, info, warn or error.")
	f.StringVar(&o.logFormat, "log-format", defaults.LogFormat, "Log output format: text or json.")
	f.StringVar(&o.format, "format", defaults.Format, "Result output format: text or json.")
	f.IntVar(&o.healthcheckPort, "healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
}

func (o *options) addRunFlags(cmd *cobra.Command) {
	defaults := config.Default()
	f := cmd.Flags()

	f.DurationVar(&o.timeout, "timeout", defaults.Timeout, "Timeout of each generation attempt.")
	f.IntVar(&o.concurrency, "concurrency", defaults.Concurrency, "Number of steps run at the same time.")
	f.IntVar(&o.retries, "retries", defaults.Retries, "Retries of a step after a transient failure.")
	f.DurationVar(&o.minInterval, "min-interval", defaults.MinInterval, "Minimum time between two requests. 0 disables pacing.")
	f.BoolVar(&o.failFast, "fail-fast", defaults.FailFast, "Stop starting steps after the first failure.")
	f.BoolVar(&o.allowPartial, "allow-partial", defaults.AllowPartial, "Exit 0 even when some steps failed or timed out.")
	f.BoolVar(&o.cancelOnTimeout, "cancel-on-timeout", defaults.CancelOnTimeout, "Ask the backend to interrupt a timed-out generation.")
	f.BoolVar(&o.reuseIdentical, "reuse-identical", defaults.ReuseIdentical, "Generate identical seeded requests once and copy the result.")
	f.StringVar(&o.output, "output", defaults.OutputDir, "Directory outputs are written below.")
	f.BoolVar(&o.runDir, "run-dir", defaults.RunDir, "Write outputs into a new run-<timestamp>-<script> directory.")
}

// newApp layers the flags the user set over the configuration file and
// environment and builds the app.
func (o *options) newApp(cmd *cobra.Command, args []string) (*app.App, error) {
	settings, err := config.Load(o.configPath, o.lookup)
	if err != nil {
		return nil, usageError(err)
	}
	o.apply(cmd, settings)
	o.allowPartial = settings.AllowPartial

	cfg, err := app.NewConfig(app.Config{
		Config:    *settings,
		Vars:      o.vars,
		VarFiles:  o.varFiles,
		InputPath: o.input,
	})
	if err != nil {
		return nil, usageError(err)
	}
	if len(args) > 0 {
		cfg.ScriptPath = args[0]
	}

	a, err := app.NewApp(o.outW, o.errW, cfg)
	if err != nil {
		return nil, usageError(err)
	}
	return a, nil
}

func (o *options) apply(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Lookup(name) != nil && flags.Changed(name) {
			apply()
		}
	}

	set("endpoint", func() { c.Endpoint = o.endpoint })
	set("adapters", func() { c.AdaptersDir = o.adapters })
	set("log-level", func() { c.LogLevel = o.logLevel })
	set("log-format", func() { c.LogFormat = o.logFormat })
	set("format", func() { c.Format = o.format })
	set("healthcheck-port", func() { c.HealthcheckPort = o.healthcheckPort })

	set("timeout", func() { c.Timeout = o.timeout })
	set("concurrency", func() { c.Concurrency = o.concurrency })
	set("retries", func() { c.Retries = o.retries })
	set("min-interval", func() { c.MinInterval = o.minInterval })
	set("fail-fast", func() { c.FailFast = o.failFast })
	set("allow-partial", func() { c.AllowPartial = o.allowPartial })
	set("cancel-on-timeout", func() { c.CancelOnTimeout = o.cancelOnTimeout })
	set("reuse-identical", func() { c.ReuseIdentical = o.reuseIdentical })
	set("output", func() { c.OutputDir = o.output })
	set("run-dir", func() { c.RunDir = o.runDir })
}
