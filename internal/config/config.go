// Package config loads the schemacheck CLI configuration from a YAML file and
// SCHEMACHECK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/gofhir/schemacheck/pkg/logger"
	"github.com/gofhir/schemacheck/pkg/structural"
)

// EnvPrefix prefixes every environment override, e.g. SCHEMACHECK_LOG_LEVEL.
const EnvPrefix = "SCHEMACHECK"

// Config is the CLI configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Validation ValidationConfig `mapstructure:"validation"`
	Schemas    SchemaConfig     `mapstructure:"schemas"`
	Output     string           `mapstructure:"output" validate:"oneof=text json"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn warning error none off"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
}

// ValidationConfig mirrors the validator options.
type ValidationConfig struct {
	MaxDepth    int  `mapstructure:"max_depth" validate:"gte=0"`
	Constraints bool `mapstructure:"constraints"`
	BatchLimit  int  `mapstructure:"batch_limit" validate:"gte=1,lte=1024"`
}

// SchemaConfig lists definition files imported on top of the compiled-in kinds.
type SchemaConfig struct {
	StructureDefinitions []string `mapstructure:"structure_definitions" validate:"dive,required"`
	ValueSets            []string `mapstructure:"value_sets" validate:"dive,required"`
	Declarations         []string `mapstructure:"declarations" validate:"dive,required"`
}

// LoggerConfig converts the log section for logger.NewWithConfig.
func (c *Config) LoggerConfig() logger.Config {
	level, _ := logger.ParseLevel(c.Log.Level)
	return logger.Config{
		Level:      level,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("validation.max_depth", structural.DefaultMaxDepth)
	v.SetDefault("validation.constraints", true)
	v.SetDefault("validation.batch_limit", 4)
	v.SetDefault("schemas.structure_definitions", []string{})
	v.SetDefault("schemas.value_sets", []string{})
	v.SetDefault("schemas.declarations", []string{})
	v.SetDefault("output", "text")
}

// Load reads configuration. With an empty path it looks for schemacheck.yaml
// in the working directory and in $HOME/.schemacheck, and a missing file is
// not an error. An explicit path must exist. Environment variables override
// file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("schemacheck")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.schemacheck")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if used := v.ConfigFileUsed(); used != "" {
		logger.Debug("Loaded config from %s", used)
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks the field constraints declared in the struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
