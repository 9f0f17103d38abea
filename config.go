package coordinator

import (
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/roadrunner-server/errors"
)

const (
	// upper bound for NumWorkers
	maxWorkers int = 64

	defaultMaxRetries      int           = 3
	defaultRetryBaseDelay  time.Duration = time.Second
	defaultPollTimeout     time.Duration = time.Second
	defaultShutdownTimeout time.Duration = time.Second * 5
)

// Config defines settings for the coordinator pool, retries and shutdown.
type Config struct {
	// NumWorkers limits the number of job bodies running at the same time
	// Default - num logical cores, at most 64
	NumWorkers int `mapstructure:"num_workers" env:"COORDINATOR_NUM_WORKERS"`
	// MaxRetries is the retry budget of jobs enqueued without WithMaxRetries.
	// Unset - 3, zero disables retries
	MaxRetries *int `mapstructure:"max_retries" env:"COORDINATOR_MAX_RETRIES"`
	// RetryBaseDelay is divided by the remaining retry budget to get the retry delay
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay" env:"COORDINATOR_RETRY_BASE_DELAY"`
	// PollTimeout bounds the dispatcher wait between passes
	PollTimeout time.Duration `mapstructure:"poll_timeout" env:"COORDINATOR_POLL_TIMEOUT"`
	// ShutdownTimeout bounds the wait for the dispatcher to exit
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" env:"COORDINATOR_SHUTDOWN_TIMEOUT"`
}

func (c *Config) InitDefaults() error {
	const op = errors.Op("coordinator_config_init_defaults")

	if c.NumWorkers < 0 {
		return errors.E(op, errors.Errorf("num_workers must not be negative, got %d", c.NumWorkers))
	}

	if c.MaxRetries != nil && *c.MaxRetries < 0 {
		return errors.E(op, errors.Errorf("max_retries must not be negative, got %d", *c.MaxRetries))
	}

	if c.RetryBaseDelay < 0 || c.PollTimeout < 0 || c.ShutdownTimeout < 0 {
		return errors.E(op, errors.Str("durations must not be negative"))
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = runtime.NumCPU()
	}

	if c.NumWorkers > maxWorkers {
		c.NumWorkers = maxWorkers
	}

	if c.MaxRetries == nil {
		c.MaxRetries = ptrTo(defaultMaxRetries)
	}

	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = defaultRetryBaseDelay
	}

	if c.PollTimeout == 0 {
		c.PollTimeout = defaultPollTimeout
	}

	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}

	return nil
}

// LoadConfig reads the COORDINATOR_* environment variables and fills the defaults.
func LoadConfig() (*Config, error) {
	const op = errors.Op("coordinator_load_config")

	cfg := &Config{}
	err := env.Parse(cfg)
	if err != nil {
		return nil, errors.E(op, err)
	}

	err = cfg.InitDefaults()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}
