package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/conorfennell/vocabreview/internal/fsrs"
)

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	return fs
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newFlagSet(), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DB != "vocabreview.db" {
		t.Errorf("Expected db vocabreview.db, but got %s", cfg.DB)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("Expected addr :8080, but got %s", cfg.HTTP.Addr)
	}
	if cfg.Scheduler.DesiredRetention != 0.9 || !cfg.Scheduler.EnableFuzz {
		t.Errorf("Unexpected scheduler defaults %+v", cfg.Scheduler)
	}
	if cfg.Review.MaxRetries != 3 {
		t.Errorf("Expected 3 retries, but got %d", cfg.Review.MaxRetries)
	}
	if cfg.Sync.Interval != time.Hour || cfg.Reminder.MinGap != 24*time.Hour {
		t.Errorf("Unexpected intervals sync=%s min_gap=%s", cfg.Sync.Interval, cfg.Reminder.MinGap)
	}
	if cfg.Sync.LocalRoot != "sources" {
		t.Errorf("Expected local root sources, but got %s", cfg.Sync.LocalRoot)
	}

	fc, err := cfg.FSRS()
	if err != nil {
		t.Fatalf("FSRS: %v", err)
	}
	if fc.LearningSteps != nil || fc.Weights != (fsrs.Weights{}) {
		t.Errorf("Expected unset steps and weights, but got %+v", fc)
	}
	if _, err := fsrs.NewScheduler(fc); err != nil {
		t.Errorf("Expected a usable scheduler config, but got %v", err)
	}
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
db: file.db
http:
  addr: ":9000"
log:
  level: debug
scheduler:
  learning_steps: ["30s", "5m"]
review:
  max_retries: 5
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("VOCAB_HTTP__ADDR", ":9100")
	t.Setenv("VOCAB_LOG__LEVEL", "warn")
	t.Setenv("VOCAB_REMINDER__MIN_GAP", "2h")
	t.Setenv("VOCAB_SYNC__LOCAL_ROOT", "/srv/words")

	cfg, err := Load(newFlagSet(), []string{"--config", path, "--log-level", "error"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	testCases := []struct {
		name string
		got  any
		want any
	}{
		{"file only", cfg.DB, "file.db"},
		{"env over file", cfg.HTTP.Addr, ":9100"},
		{"flag over env", cfg.Log.Level, "error"},
		{"env only", cfg.Reminder.MinGap, 2 * time.Hour},
		{"env local root", cfg.Sync.LocalRoot, "/srv/words"},
		{"file steps", cfg.Scheduler.LearningSteps, []time.Duration{30 * time.Second, 5 * time.Minute}},
		{"file int", cfg.Review.MaxRetries, 5},
		{"flag default", cfg.Log.Format, "text"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if !reflect.DeepEqual(tc.got, tc.want) {
				t.Errorf("Expected %v, but got %v", tc.want, tc.got)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	testCases := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{"bad log format", []string{"--log-format", "xml"}, fsrs.ErrInvalidConfig},
		{"retention too high", []string{"--desired-retention", "1.5"}, fsrs.ErrInvalidConfig},
		{"interval too long", []string{"--maximum-interval", "100001"}, fsrs.ErrInvalidConfig},
		{"negative retries", []string{"--max-retries", "-1"}, fsrs.ErrInvalidConfig},
		{"empty db", []string{"--db", ""}, fsrs.ErrInvalidConfig},
		{"empty local root", []string{"--local-root", ""}, fsrs.ErrInvalidConfig},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(newFlagSet(), tc.args)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Expected error %v, but got %v", tc.wantErr, err)
			}
		})
	}

	if _, err := Load(newFlagSet(), []string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}); err == nil {
		t.Error("Expected an error for a missing config file, but got nil")
	}
	if _, err := Load(newFlagSet(), []string{"--help"}); !IsHelp(err) {
		t.Errorf("Expected help error, but got %v", err)
	}
}

func TestFSRSWeights(t *testing.T) {
	cfg, err := Load(newFlagSet(), []string{"--enable-fuzz=false"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Scheduler.Weights = append([]float64(nil), fsrs.DefaultWeights[:]...)
	cfg.Scheduler.Weights[0] = 0.5

	fc, err := cfg.FSRS()
	if err != nil {
		t.Fatalf("FSRS: %v", err)
	}
	if fc.Weights[0] != 0.5 || fc.Weights[20] != fsrs.DefaultWeights[20] {
		t.Errorf("Expected copied weights, but got %v", fc.Weights)
	}
	if !fc.DisableFuzz {
		t.Error("Expected fuzz disabled")
	}

	cfg.Scheduler.Weights = cfg.Scheduler.Weights[:3]
	if _, err := cfg.FSRS(); !errors.Is(err, fsrs.ErrInvalidWeights) {
		t.Errorf("Expected ErrInvalidWeights, but got %v", err)
	}
}
