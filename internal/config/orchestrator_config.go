package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type OrchestratorConfig struct {
	TickInterval              time.Duration `mapstructure:"tick_interval"`
	MaxWorkers                int           `mapstructure:"max_workers"`
	ActionTimeout             time.Duration `mapstructure:"action_timeout"`
	PacingMinDelay            time.Duration `mapstructure:"pacing_min_delay"`
	PacingMaxDelay            time.Duration `mapstructure:"pacing_max_delay"`
	PacingJitter              float64       `mapstructure:"pacing_jitter"`
	RetryCeiling              int           `mapstructure:"retry_ceiling"`
	RetryBackoffBase          time.Duration `mapstructure:"retry_backoff_base"`
	BoardMaxRequestsPerSecond float32       `mapstructure:"board_max_requests_per_second"`
	AttemptRetentionDays      int           `mapstructure:"attempt_retention_days"`
	WebDriverURL              string        `mapstructure:"webdriver_url"`
}

func setOrchestratorDefaults() {
	viper.SetDefault("orchestrator.tick_interval", time.Minute)
	viper.SetDefault("orchestrator.max_workers", 4)
	viper.SetDefault("orchestrator.action_timeout", 5*time.Minute)
	viper.SetDefault("orchestrator.pacing_min_delay", 30*time.Second)
	viper.SetDefault("orchestrator.pacing_max_delay", 180*time.Second)
	viper.SetDefault("orchestrator.pacing_jitter", 0.1)
	viper.SetDefault("orchestrator.retry_ceiling", 3)
	viper.SetDefault("orchestrator.retry_backoff_base", time.Minute)
	viper.SetDefault("orchestrator.board_max_requests_per_second", 1)
	viper.SetDefault("orchestrator.attempt_retention_days", 90)
	viper.SetDefault("orchestrator.webdriver_url", "http://localhost:9515")
}

func (config OrchestratorConfig) validate() error {

	var invalidFields []string

	if config.TickInterval <= 0 {
		invalidFields = append(invalidFields, "tick_interval")
	}

	if config.MaxWorkers <= 0 {
		invalidFields = append(invalidFields, "max_workers")
	}

	if config.ActionTimeout <= 0 {
		invalidFields = append(invalidFields, "action_timeout")
	}

	if config.PacingMinDelay <= 0 || config.PacingMaxDelay < config.PacingMinDelay {
		invalidFields = append(invalidFields, "pacing_min_delay/pacing_max_delay")
	}

	if config.PacingJitter < 0 || config.PacingJitter >= 1 {
		invalidFields = append(invalidFields, "pacing_jitter")
	}

	if config.RetryCeiling < 1 {
		invalidFields = append(invalidFields, "retry_ceiling")
	}

	if config.RetryBackoffBase <= 0 {
		invalidFields = append(invalidFields, "retry_backoff_base")
	}

	if config.WebDriverURL == "" {
		invalidFields = append(invalidFields, "webdriver_url")
	}

	if len(invalidFields) > 0 {
		return fmt.Errorf("invalid variables: %s", strings.Join(invalidFields, ", "))
	}

	return nil
}

func (config OrchestratorConfig) bindEnvironmentVariables() error {
	var errs []error

	if err := viper.BindEnv("orchestrator.tick_interval", "TICK_INTERVAL"); err != nil {
		errs = append(errs, err)
	}

	if err := viper.BindEnv("orchestrator.action_timeout", "ACTION_TIMEOUT"); err != nil {
		errs = append(errs, err)
	}

	if err := viper.BindEnv("orchestrator.max_workers", "MAX_WORKERS"); err != nil {
		errs = append(errs, err)
	}

	if err := viper.BindEnv("orchestrator.webdriver_url", "WEBDRIVER_URL"); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return createMultiError(errs)
	}

	return nil
}
