// Package config loads settings from a YAML file, VOCAB_ environment
// variables and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/vocabreview/internal/fsrs"
)

// EnvPrefix prefixes every environment variable; "__" separates levels,
// e.g. VOCAB_HTTP__ADDR or VOCAB_REVIEW__MAX_RETRIES.
const EnvPrefix = "VOCAB_"

// Config is the full application configuration.
type Config struct {
	DB        string          `koanf:"db" validate:"required"`
	HTTP      HTTPConfig      `koanf:"http"`
	Log       LogConfig       `koanf:"log"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Review    ReviewConfig    `koanf:"review"`
	Sync      SyncConfig      `koanf:"sync"`
	Reminder  ReminderConfig  `koanf:"reminder"`
}

type HTTPConfig struct {
	Addr string `koanf:"addr" validate:"required"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// SchedulerConfig mirrors fsrs.Config. Leaving the step lists or the weights
// out of the configuration selects the built-in defaults.
type SchedulerConfig struct {
	DesiredRetention float64         `koanf:"desired_retention" validate:"gt=0,lt=1"`
	LearningSteps    []time.Duration `koanf:"learning_steps" validate:"dive,gt=0"`
	RelearningSteps  []time.Duration `koanf:"relearning_steps" validate:"dive,gt=0"`
	MaximumInterval  int             `koanf:"maximum_interval" validate:"min=1,max=100000"`
	EnableFuzz       bool            `koanf:"enable_fuzz"`
	Weights          []float64       `koanf:"weights" validate:"omitempty,len=21"`
}

type ReviewConfig struct {
	MaxRetries int `koanf:"max_retries" validate:"min=0,max=20"`
}

// SyncConfig controls source syncing. Local sources must live below
// LocalRoot. An interval of zero disables the periodic loop.
type SyncConfig struct {
	ReposDir  string        `koanf:"repos_dir" validate:"required"`
	LocalRoot string        `koanf:"local_root" validate:"required"`
	Interval  time.Duration `koanf:"interval" validate:"min=0"`
}

// ReminderConfig controls due-card reminders. An interval of zero disables
// them.
type ReminderConfig struct {
	Interval time.Duration `koanf:"interval" validate:"min=0"`
	MinGap   time.Duration `koanf:"min_gap" validate:"min=0"`
}

// flagKeys maps flag names to configuration keys. Flags missing here are
// not configuration and are left to the caller.
var flagKeys = map[string]string{
	"db":                "db",
	"http-addr":         "http.addr",
	"log-level":         "log.level",
	"log-format":        "log.format",
	"desired-retention": "scheduler.desired_retention",
	"maximum-interval":  "scheduler.maximum_interval",
	"enable-fuzz":       "scheduler.enable_fuzz",
	"max-retries":       "review.max_retries",
	"repos-dir":         "sync.repos_dir",
	"local-root":        "sync.local_root",
	"sync-interval":     "sync.interval",
	"reminder-interval": "reminder.interval",
	"reminder-min-gap":  "reminder.min_gap",
}

// RegisterFlags adds the configuration flags to fs. Their defaults are the
// application defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "Path to a YAML configuration file")
	fs.String("db", "vocabreview.db", "Path to the SQLite database file")
	fs.String("http-addr", ":8080", "HTTP listen address")
	fs.String("log-level", "info", "Log level: debug, info, warn or error")
	fs.String("log-format", "text", "Log format: text or json")
	fs.Float64("desired-retention", 0.9, "Target recall probability at the due date")
	fs.Int("maximum-interval", 36500, "Longest interval in days")
	fs.Bool("enable-fuzz", true, "Spread long intervals with random fuzz")
	fs.Int("max-retries", 3, "Retries for a review that lost a concurrent update")
	fs.String("repos-dir", "repos", "Directory for git source checkouts")
	fs.String("local-root", "sources", "Directory that local sources must live in")
	fs.Duration("sync-interval", time.Hour, "Period of the background source sync, 0 to disable")
	fs.Duration("reminder-interval", 15*time.Minute, "Period of the due-card reminder check, 0 to disable")
	fs.Duration("reminder-min-gap", 24*time.Hour, "Minimum time between two reminders for one user")
}

// Load parses args into fs and builds the configuration. fs must have been
// prepared with RegisterFlags.
func Load(fs *pflag.FlagSet, args []string) (*Config, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	k := koanf.New(".")

	path, err := fs.GetString("config")
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	err = k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	// Unchanged flags only fill keys nobody else set.
	err = k.Load(posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("%w: %w", fsrs.ErrInvalidConfig, err)
	}
	return nil
}

// FSRS converts the scheduler section into an fsrs.Config.
func (c *Config) FSRS() (fsrs.Config, error) {
	sc := c.Scheduler
	out := fsrs.Config{
		DesiredRetention: sc.DesiredRetention,
		LearningSteps:    sc.LearningSteps,
		RelearningSteps:  sc.RelearningSteps,
		MaximumInterval:  sc.MaximumInterval,
		DisableFuzz:      !sc.EnableFuzz,
	}
	if len(sc.Weights) > 0 {
		if len(sc.Weights) != len(fsrs.Weights{}) {
			return fsrs.Config{}, fmt.Errorf("%w: want %d weights, got %d",
				fsrs.ErrInvalidWeights, len(fsrs.Weights{}), len(sc.Weights))
		}
		copy(out.Weights[:], sc.Weights)
	}
	return out, nil
}

// IsHelp reports whether err is the flag package asking for usage output.
func IsHelp(err error) bool {
	return errors.Is(err, pflag.ErrHelp)
}
