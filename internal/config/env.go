package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3200"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".tandem/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"tandem/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-1"`
}

// RunEnv carries the loop configuration. The supervisor propagates these to
// the worker and manager processes through the environment at launch time;
// they are never part of the persisted coordination state.
type RunEnv struct {
	WorkDir        string        `envconfig:"WORK_DIR" default:"."`
	WorkerModel    string        `envconfig:"WORKER_MODEL" default:"sonnet"`
	ManagerModel   string        `envconfig:"MANAGER_MODEL" default:"opus"`
	MaxIterations  int           `envconfig:"MAX_ITERATIONS" default:"50"`
	IterationDelay time.Duration `envconfig:"ITERATION_DELAY" default:"5s"`
	ReviewInterval time.Duration `envconfig:"REVIEW_INTERVAL" default:"60s"`
	// ReviewCadence is how many worker iterations pass between review signals.
	ReviewCadence int  `envconfig:"REVIEW_CADENCE" default:"3"`
	NoManager     bool `envconfig:"NO_MANAGER" default:"false"`

	// SkillContextLimit bounds how many skills are fed into each worker
	// context. The collection itself is append-only and unbounded; only the
	// most recently updated entries ride along. Zero disables the bound.
	SkillContextLimit int `envconfig:"SKILL_CONTEXT_LIMIT" default:"20"`

	// Retry protocol for rate-limited review calls.
	RetryMaxAttempts int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"5"`
	RetryBaseWait    time.Duration `envconfig:"RETRY_BASE_WAIT" default:"30s"`
	RetryMaxWait     time.Duration `envconfig:"RETRY_MAX_WAIT" default:"10m"`

	// StopGracePeriod is how long the supervisor waits after SIGTERM before
	// escalating to SIGKILL.
	StopGracePeriod time.Duration `envconfig:"STOP_GRACE_PERIOD" default:"15s"`
}

type Env struct {
	BaseEnv
	StorageEnv
	RunEnv
}

const namespace = "TANDEM"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelInfo
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
