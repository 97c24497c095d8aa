package config

import (
	"time"
)

// DefaultFile is looked up in the working directory when no file is given.
const DefaultFile = "promptgrid.yaml"

// Config is the complete runtime configuration.
type Config struct {
	Endpoint  string `yaml:"endpoint" validate:"required,http_url"`
	OutputDir string `yaml:"output_dir" validate:"required"`
	// AdaptersDir holds extra adapter manifests.
	AdaptersDir string `yaml:"adapters_dir"`

	Timeout         time.Duration `yaml:"timeout" validate:"gt=0"`
	Concurrency     int           `yaml:"concurrency" validate:"min=1,max=64"`
	Retries         int           `yaml:"retries" validate:"min=0,max=20"`
	BackoffInitial  time.Duration `yaml:"backoff_initial" validate:"gt=0"`
	BackoffMax      time.Duration `yaml:"backoff_max" validate:"gtefield=BackoffInitial"`
	MinInterval     time.Duration `yaml:"min_interval" validate:"gte=0"`
	FailFast        bool          `yaml:"fail_fast"`
	AllowPartial    bool          `yaml:"allow_partial"`
	CancelOnTimeout bool          `yaml:"cancel_on_timeout"`
	ReuseIdentical  bool          `yaml:"reuse_identical"`

	PersistSummary bool   `yaml:"persist_summary"`
	RunDir         bool   `yaml:"run_dir"`
	Format         string `yaml:"format" validate:"oneof=text json"`

	LogLevel        string `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat       string `yaml:"log_format" validate:"oneof=text json"`
	HealthcheckPort int    `yaml:"healthcheck_port" validate:"min=0,max=65535"`

	Events Events `yaml:"events"`
	Mirror Mirror `yaml:"mirror"`
}

// Events configures the Socket.IO progress publisher. An empty URL disables
// it.
type Events struct {
	URL                string `yaml:"url" validate:"omitempty,url"`
	Namespace          string `yaml:"namespace"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// Mirror configures the S3-compatible artifact mirror.
type Mirror struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint" validate:"required_if=Enabled true,excludesall=/"`
	AccessKey string `yaml:"access_key" validate:"required_if=Enabled true"`
	SecretKey string `yaml:"secret_key" validate:"required_if=Enabled true"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
	Bucket    string `yaml:"bucket" validate:"required_if=Enabled true"`
	Prefix    string `yaml:"prefix"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Endpoint:       "http://127.0.0.1:7860",
		OutputDir:      "outputs",
		Timeout:        180 * time.Second,
		Concurrency:    1,
		Retries:        2,
		BackoffInitial: 500 * time.Millisecond,
		BackoffMax:     10 * time.Second,
		PersistSummary: true,
		Format:         "text",
		LogLevel:       "info",
		LogFormat:      "text",
		Mirror: Mirror{
			Region: "us-east-1",
		},
	}
}
