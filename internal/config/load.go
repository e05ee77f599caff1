// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Collabdoc Contributors

package config

import (
	"errors"
	"io/fs"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// DefaultEnvFile is read when LoadOptions.EnvFile is empty.
const DefaultEnvFile = ".env"

// envKeys maps environment variables to config keys.
var envKeys = map[string]string{
	"LISTEN_ADDR":          "server.listen",
	"METRICS_ADDR":         "server.metrics_addr",
	"SHUTDOWN_TIMEOUT":     "server.shutdown_timeout",
	"TRUST_PROXY":          "server.trust_proxy",
	"DATABASE_URL":         "database.url",
	"DATABASE_MAX_CONNS":   "database.max_conns",
	"DATABASE_AUTOMIGRATE": "database.auto_migrate",
	"ACCESS_TOKEN_SECRET":  "auth.access_secret",
	"REFRESH_TOKEN_SECRET": "auth.refresh_secret",
	"ACCESS_TOKEN_TTL":     "auth.access_ttl",
	"REFRESH_TOKEN_TTL":    "auth.refresh_ttl",
	"TOKEN_ISSUER":         "auth.issuer",
	"MIN_PASSWORD_LENGTH":  "auth.min_password_length",
	"RESET_TOKEN_TTL":      "auth.reset_ttl",
	"RESET_URL_BASE":       "auth.reset_url_base",
	"LOG_FORMAT":           "log.format",
	"LOG_LEVEL":            "log.level",
	"REDIS_URL":            "rate_limit.redis_url",
	"RATE_LIMIT_LOGIN":     "rate_limit.login",
	"RATE_LIMIT_RESET":     "rate_limit.reset",
	"RATE_LIMIT_FAIL_OPEN": "rate_limit.fail_open",
}

// flagKeys maps command flag names to config keys.
var flagKeys = map[string]string{
	"listen":       "server.listen",
	"metrics-addr": "server.metrics_addr",
	"database-url": "database.url",
	"auto-migrate": "database.auto_migrate",
	"log-format":   "log.format",
	"log-level":    "log.level",
	"redis-url":    "rate_limit.redis_url",
}

// LoadOptions selects the sources Load reads.
type LoadOptions struct {
	// File is an optional YAML file. A missing file is an error only when
	// the path was given explicitly.
	File string
	// EnvFile is the dotenv file. Empty means DefaultEnvFile, which may be absent.
	EnvFile string
	// Flags are command flags. Only flags the user set override other sources.
	Flags *pflag.FlagSet
	// LookupEnv replaces os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Load builds the configuration. Later sources win:
// defaults, YAML file, .env file, environment, flags.
// The result is not validated; call Validate before use.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "defaults").Wrap(err)
	}

	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("source", "file").
				With("path", opts.File).
				Wrap(err)
		}
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	dotenv, err := godotenv.Read(envFile)
	if err != nil && !(opts.EnvFile == "" && errors.Is(err, fs.ErrNotExist)) {
		return nil, oops.Code("CONFIG_LOAD_FAILED").
			With("source", "dotenv").
			With("path", envFile).
			Wrap(err)
	}

	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for key, value := range environment(dotenv, lookup) {
		if err := k.Set(key, value); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").With("key", key).Wrap(err)
		}
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "unmarshal").Wrap(err)
	}
	return &cfg, nil
}

// environment merges the dotenv values with the process environment, the
// latter winning. PORT is honoured as a shorthand for server.listen.
func environment(dotenv map[string]string, lookup func(string) (string, bool)) map[string]string {
	get := func(name string) (string, bool) {
		if v, ok := lookup(name); ok {
			return v, true
		}
		v, ok := dotenv[name]
		return v, ok
	}

	out := make(map[string]string)
	if port, ok := get("PORT"); ok && strings.TrimSpace(port) != "" {
		out["server.listen"] = ":" + strings.TrimSpace(port)
	}
	for name, key := range envKeys {
		if v, ok := get(name); ok {
			out[key] = v
		}
	}
	return out
}
