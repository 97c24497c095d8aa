package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// EnvPrefix prefixes every configuration environment variable.
const EnvPrefix = "PROMPTGRID_"

// LookupFunc reads one environment variable; os.LookupEnv is the usual one.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides cfg with the PROMPTGRID_* variables lookup finds.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	e := env{lookup: lookup}

	e.String("ENDPOINT", &cfg.Endpoint)
	e.String("OUTPUT_DIR", &cfg.OutputDir)
	e.String("ADAPTERS_DIR", &cfg.AdaptersDir)
	e.Duration("TIMEOUT", &cfg.Timeout)
	e.Int("CONCURRENCY", &cfg.Concurrency)
	e.Int("RETRIES", &cfg.Retries)
	e.Duration("BACKOFF_INITIAL", &cfg.BackoffInitial)
	e.Duration("BACKOFF_MAX", &cfg.BackoffMax)
	e.Duration("MIN_INTERVAL", &cfg.MinInterval)
	e.Bool("FAIL_FAST", &cfg.FailFast)
	e.Bool("ALLOW_PARTIAL", &cfg.AllowPartial)
	e.Bool("CANCEL_ON_TIMEOUT", &cfg.CancelOnTimeout)
	e.Bool("REUSE_IDENTICAL", &cfg.ReuseIdentical)
	e.Bool("PERSIST_SUMMARY", &cfg.PersistSummary)
	e.Bool("RUN_DIR", &cfg.RunDir)
	e.String("FORMAT", &cfg.Format)
	e.String("LOG_LEVEL", &cfg.LogLevel)
	e.String("LOG_FORMAT", &cfg.LogFormat)
	e.Int("HEALTHCHECK_PORT", &cfg.HealthcheckPort)

	e.String("EVENTS_URL", &cfg.Events.URL)
	e.String("EVENTS_NAMESPACE", &cfg.Events.Namespace)
	e.Bool("EVENTS_INSECURE_SKIP_VERIFY", &cfg.Events.InsecureSkipVerify)

	e.Bool("MIRROR_ENABLED", &cfg.Mirror.Enabled)
	e.String("MIRROR_ENDPOINT", &cfg.Mirror.Endpoint)
	e.String("MIRROR_ACCESS_KEY", &cfg.Mirror.AccessKey)
	e.String("MIRROR_SECRET_KEY", &cfg.Mirror.SecretKey)
	e.String("MIRROR_REGION", &cfg.Mirror.Region)
	e.Bool("MIRROR_USE_SSL", &cfg.Mirror.UseSSL)
	e.String("MIRROR_BUCKET", &cfg.Mirror.Bucket)
	e.String("MIRROR_PREFIX", &cfg.Mirror.Prefix)

	return errors.Join(e.errs...)
}

type env struct {
	lookup LookupFunc
	errs   []error
}

func (e *env) String(name string, dst *string) {
	if v, ok := e.lookup(EnvPrefix + name); ok {
		*dst = v
	}
}

func (e *env) Duration(name string, dst *time.Duration) {
	if v, ok := e.lookup(EnvPrefix + name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("parse %s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = d
	}
}

func (e *env) Bool(name string, dst *bool) {
	if v, ok := e.lookup(EnvPrefix + name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("parse %s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = b
	}
}

func (e *env) Int(name string, dst *int) {
	if v, ok := e.lookup(EnvPrefix + name); ok {
		i, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("parse %s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = i
	}
}
