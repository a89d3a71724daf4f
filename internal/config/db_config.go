package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type DBConfig struct {
	ConnectionString string `mapstructure:"connection_string"`

	// LogQueries switches gorm to info-level SQL logging; useful when
	// chasing a cap-reservation or record-cycle transaction issue
	LogQueries bool `mapstructure:"log_queries"`
}

func setDBDefaults() {
	viper.SetDefault("db.log_queries", false)
}

func (config DBConfig) validate() error {
	if config.ConnectionString == "" {
		return fmt.Errorf("missing variable: db connection string")
	}
	return nil
}

func (config DBConfig) bindEnvironmentVariables() error {
	var errs []error

	if err := viper.BindEnv("db.connection_string", "DB_CONNECTION_STRING"); err != nil {
		errs = append(errs, err)
	}

	if err := viper.BindEnv("db.log_queries", "DB_LOG_QUERIES"); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return createMultiError(errs)
	}

	return nil
}
