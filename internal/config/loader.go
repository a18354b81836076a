package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".exceptrace"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for exceptrace settings.
const envPrefix = "EXCEPTRACE"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME; finding none there
// is not an error and defaults are used. An explicit path that cannot be read
// is an error.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("output_dir", DefaultOutputDir)
	viperCfg.SetDefault("jobs", DefaultJobs)
	viperCfg.SetDefault("strict", false)
	viperCfg.SetDefault("expand_virtual_calls", true)
	viperCfg.SetDefault("include_system_header", false)

	viperCfg.SetDefault("extract.ipm_tool", DefaultIPMTool)
	viperCfg.SetDefault("extract.icg_tool", DefaultICGTool)
	viperCfg.SetDefault("extract.timeout", DefaultTimeout)

	viperCfg.SetDefault("observability.log_level", "info")
	viperCfg.SetDefault("observability.log_json", false)
	viperCfg.SetDefault("observability.otlp_endpoint", "")
	viperCfg.SetDefault("observability.otlp_insecure", false)
}
