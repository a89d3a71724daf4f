package config

import (
	"github.com/spf13/viper"
)

type NotifierConfig struct {
	// Token for the Telegram bot used for pause alerts. Empty disables
	// notifications entirely.
	Token string `mapstructure:"token"`
}

func (config NotifierConfig) bindEnvironmentVariables() error {
	return viper.BindEnv("notifier.token", "TG_TOKEN")
}
