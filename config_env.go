package goAssist

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "GOASSIST_"

// ErrParsingConfig wraps environment parsing failures.
var ErrParsingConfig = errors.New("failed to parse goassist configuration")

// LoadConfig reads GOASSIST_* variables into a Config and validates it.
//
// Without arguments a .env file in the working directory is loaded if it
// exists. Named files must exist. Variables already set in the process
// environment win over file values.
//
// Example:
//
//	GOASSIST_GATEWAY_BASE_URL=https://assist.example.com/api
//	GOASSIST_STORE_BACKEND=sqlite
//	GOASSIST_STORE_SQLITE_PATH=/var/lib/goassist/session.db
func LoadConfig(files ...string) (Config, error) {
	if len(files) == 0 {
		// the default .env is optional
		_ = godotenv.Load()
	} else if err := godotenv.Load(files...); err != nil {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	return parseConfig(env.Options{Prefix: EnvPrefix})
}

// LoadConfigFromMap parses cfg from an explicit environment, ignoring the
// process environment.
func LoadConfigFromMap(environment map[string]string) (Config, error) {
	if environment == nil {
		environment = map[string]string{}
	}
	return parseConfig(env.Options{Prefix: EnvPrefix, Environment: environment})
}

func parseConfig(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
