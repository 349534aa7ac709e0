// Package config loads client settings from a yaml or toml file, .env files and the process environment.
// Environment wins over .env files, .env files win over the settings file. Backend url and key can also
// be resolved from a secrets provider by reference.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-pkgz/stringutils"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/huddle-sports/huddle/pkg/backend"
	"github.com/huddle-sports/huddle/pkg/secrets"
	"github.com/huddle-sports/huddle/pkg/session"
)

// Settings defines backend and session configuration.
type Settings struct {
	URL           string          `yaml:"url" toml:"url" env:"SUPABASE_URL"`
	AnonKey       string          `yaml:"anon_key" toml:"anon_key" env:"SUPABASE_ANON_KEY"`
	URLSecret     string          `yaml:"url_secret" toml:"url_secret" env:"HUDDLE_URL_SECRET"`                // secret key with the url
	AnonKeySecret string          `yaml:"anon_key_secret" toml:"anon_key_secret" env:"HUDDLE_ANON_KEY_SECRET"` // secret key with the anon key
	Timeout       Duration        `yaml:"timeout" toml:"timeout" env:"HUDDLE_TIMEOUT"`
	AutoRefresh   bool            `yaml:"auto_refresh" toml:"auto_refresh" env:"HUDDLE_AUTO_REFRESH"`
	Session       SessionSettings `yaml:"session" toml:"session" envPrefix:"HUDDLE_SESSION_"`
}

// SessionSettings defines session persistence.
type SessionSettings struct {
	Type          string   `yaml:"type" toml:"type" env:"TYPE"` // memory, file, redis or sql
	Dir           string   `yaml:"dir" toml:"dir" env:"DIR"`
	RedisAddr     string   `yaml:"redis_addr" toml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string   `yaml:"redis_password" toml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int      `yaml:"redis_db" toml:"redis_db" env:"REDIS_DB"`
	RedisPrefix   string   `yaml:"redis_prefix" toml:"redis_prefix" env:"REDIS_PREFIX"`
	TTL           Duration `yaml:"ttl" toml:"ttl" env:"TTL"`
	Conn          string   `yaml:"conn" toml:"conn" env:"CONN"`
	Key           string   `yaml:"key" toml:"key" env:"KEY"`
}

// fallbackPrefix marks variables used when the plain ones are not set, as exposed to web builds.
const fallbackPrefix = "VITE_"

// Loader reads Settings from its sources.
type Loader struct {
	File    string           // yaml or toml settings file, optional
	DotEnv  []string         // .env files, missing files are skipped
	Environ []string         // KEY=VALUE pairs, os.Environ() if nil
	Secrets secrets.Provider // resolves url and key references, optional
}

// Load reads settings. Missing url or key are not errors, the backend client handles that.
func (l Loader) Load() (*Settings, error) {
	res := &Settings{AutoRefresh: true, Session: SessionSettings{Type: "file"}}

	if l.File != "" {
		if err := loadFile(l.File, res); err != nil {
			return nil, err
		}
	}

	environ, err := l.environment()
	if err != nil {
		return nil, err
	}
	// fallback names first, so plain names override them
	if err := env.ParseWithOptions(res, env.Options{Environment: environ, Prefix: fallbackPrefix}); err != nil {
		return nil, fmt.Errorf("can't parse %s environment: %w", fallbackPrefix, err)
	}
	if err := env.ParseWithOptions(res, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("can't parse environment: %w", err)
	}

	l.resolveSecrets(res)

	if err := res.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}

// environment merges .env files with the process environment, the latter wins
func (l Loader) environment() (map[string]string, error) {
	res := map[string]string{}
	for _, f := range l.DotEnv {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			log.Printf("[DEBUG] env file %s not found, skipped", f)
			continue
		}
		vals, err := godotenv.Read(f)
		if err != nil {
			return nil, fmt.Errorf("can't read env file %s: %w", f, err)
		}
		for k, v := range vals {
			res[k] = v
		}
		log.Printf("[DEBUG] loaded %d variables from %s", len(vals), f)
	}

	environ := l.Environ
	if environ == nil {
		environ = os.Environ()
	}
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		res[k] = v
	}
	return res, nil
}

func (l Loader) resolveSecrets(s *Settings) {
	if l.Secrets == nil {
		return
	}
	resolve := func(dst *string, ref, name string) {
		if *dst != "" || ref == "" {
			return
		}
		val, err := l.Secrets.Get(ref)
		if err != nil {
			log.Printf("[WARN] can't resolve %s from secret %q: %v", name, ref, err)
			return
		}
		*dst = val
		log.Printf("[DEBUG] %s resolved from secret %q", name, ref)
	}
	resolve(&s.URL, s.URLSecret, "service url")
	resolve(&s.AnonKey, s.AnonKeySecret, "anon key")
}

// Validate checks settings values.
func (s *Settings) Validate() error {
	errs := new(multierror.Error)
	if !stringutils.Contains(s.Session.Type, session.Types) {
		errs = multierror.Append(errs, fmt.Errorf("unsupported session type %q, allowed: %s",
			s.Session.Type, strings.Join(session.Types, ", ")))
	}
	if s.Timeout < 0 {
		errs = multierror.Append(errs, fmt.Errorf("negative timeout %s", s.Timeout))
	}
	if s.Session.Type == "sql" && (s.Session.Conn == "" || s.Session.Key == "") {
		errs = multierror.Append(errs, errors.New("sql session store needs conn and key"))
	}
	if s.Session.Type == "redis" && s.Session.RedisAddr == "" {
		errs = multierror.Append(errs, errors.New("redis session store needs redis_addr"))
	}
	return errs.ErrorOrNil()
}

// Backend makes the backend client configuration with the given session store.
func (s *Settings) Backend(store session.Store) backend.Config {
	return backend.Config{
		URL:         s.URL,
		AnonKey:     s.AnonKey,
		Timeout:     time.Duration(s.Timeout),
		Store:       store,
		AutoRefresh: s.AutoRefresh,
	}
}

// SessionParams makes the session store parameters.
func (s *Settings) SessionParams() session.Params {
	return session.Params{
		Type:          s.Session.Type,
		Dir:           s.Session.Dir,
		RedisAddr:     s.Session.RedisAddr,
		RedisPassword: s.Session.RedisPassword,
		RedisDB:       s.Session.RedisDB,
		RedisPrefix:   s.Session.RedisPrefix,
		TTL:           time.Duration(s.Session.TTL),
		Conn:          s.Session.Conn,
		Key:           s.Session.Key,
	}
}

// loadFile reads yaml or toml file into s, format picked by extension
func loadFile(fname string, s *Settings) error {
	data, err := os.ReadFile(fname) // nolint
	if err != nil {
		return fmt.Errorf("can't read config %s: %w", fname, err)
	}
	switch strings.ToLower(filepath.Ext(fname)) {
	case ".toml":
		err = toml.Unmarshal(data, s)
	case ".yml", ".yaml":
		err = yaml.Unmarshal(data, s)
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(fname))
	}
	if err != nil {
		return fmt.Errorf("can't unmarshal config %s: %w", fname, err)
	}
	log.Printf("[DEBUG] settings loaded from %s", fname)
	return nil
}

// Duration is time.Duration read from "30s" like strings.
type Duration time.Duration

// UnmarshalText parses the duration, used by toml and env.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("can't parse duration %q: %w", string(text), err)
	}
	*d = Duration(v)
	return nil
}

// UnmarshalYAML parses the duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

// String returns duration as string.
func (d Duration) String() string { return time.Duration(d).String() }
