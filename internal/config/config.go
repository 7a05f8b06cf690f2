// Package config loads server and client settings from an optional YAML
// file, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// LoadDotEnv loads .env from the working directory when present. Variables
// already set in the environment win.
func LoadDotEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: load .env: %w", err)
	}
	return nil
}

// newViper reads configFile when given, otherwise looks for name.yaml in
// ./config and the working directory. A missing file is not an error.
func newViper(configFile, name string) (*viper.Viper, error) {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(name)
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || (configFile == "" && errors.Is(err, fs.ErrNotExist)) {
			return v, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", describe(configFile, name), err)
	}
	return v, nil
}

func describe(configFile, name string) string {
	if configFile != "" {
		return filepath.Base(configFile)
	}
	return name + ".yaml"
}

func bindEnv(v *viper.Viper, pairs map[string]string) {
	for key, env := range pairs {
		_ = v.BindEnv(key, env)
	}
}

// LogConfig is shared by both binaries.
type LogConfig struct {
	Level  string
	Pretty bool
}

// durationOr returns d unless it is not positive.
func durationOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
