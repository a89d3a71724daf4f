package config

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/viper"
)

type logLevel string

const (
	LevelInfo    logLevel = "INFO"
	LevelDebug   logLevel = "DEBUG"
	LevelWarning logLevel = "WARNING"
	LevelError   logLevel = "ERROR"
	LevelFatal   logLevel = "FATAL"
)

var knownLogLevels = []logLevel{LevelInfo, LevelDebug, LevelWarning, LevelError, LevelFatal}

type LoggerConfig struct {
	LogLevel     logLevel `mapstructure:"log_level"`
	AppName      string   `mapstructure:"app_name"`
	LokiURL      string   `mapstructure:"loki_url"`
	LokiUser     string   `mapstructure:"loki_user"`
	LokiPassword string   `mapstructure:"loki_password"`
	OutputFile   string   `mapstructure:"output_file"`
}

func setLoggerDefaults() {
	viper.SetDefault("logger.log_level", string(LevelInfo))
	viper.SetDefault("logger.app_name", "autopilot")
	viper.SetDefault("logger.output_file", "./logs/errors.log")
}

func (config LoggerConfig) validate() error {

	var invalidFields []string

	if !lo.Contains(knownLogLevels, config.LogLevel) {
		invalidFields = append(invalidFields, "log_level")
	}

	if config.OutputFile == "" {
		invalidFields = append(invalidFields, "output_file")
	}

	if config.LokiURL != "" && config.AppName == "" {
		// the loki stream is labeled by app name
		invalidFields = append(invalidFields, "app_name")
	}

	if len(invalidFields) > 0 {
		return fmt.Errorf("invalid variables: %s", strings.Join(invalidFields, ", "))
	}

	return nil
}

func (config LoggerConfig) bindEnvironmentVariables() error {
	var errs []error

	bindings := map[string]string{
		"logger.log_level":     "LOG_LEVEL",
		"logger.app_name":      "APP_NAME",
		"logger.output_file":   "LOG_OUTPUT_FILE",
		"logger.loki_url":      "LOKI_URL",
		"logger.loki_user":     "LOKI_USER",
		"logger.loki_password": "LOKI_PASSWORD",
	}

	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return createMultiError(errs)
	}

	return nil
}
