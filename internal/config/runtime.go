// Package config resolves the process-wide runtime configuration and the
// optional attack plan file.
package config

import (
	"sort"
	"sync"

	"go.uber.org/zap/zapcore"
)

// Key identifies a credential entry in the runtime configuration.
type Key string

const (
	KeyTenant       Key = "tenant"
	KeyClientID     Key = "client_id"
	KeyClientSecret Key = "client_secret"
	KeyAdminID      Key = "admin_id"
	KeyAdminSecret  Key = "admin_secret"
)

// Environment variable names read by Load.
const (
	EnvTenant        = "X_TMS_TENANT"
	EnvClientID      = "X_TMS_CLIENT_ID"
	EnvClientSecret  = "X_TMS_CLIENT_SECRET"
	EnvAdminID       = "X_TMS_ADMIN_ID"
	EnvAdminSecret   = "X_TMS_ADMIN_SECRET"
	EnvVerbose       = "TMS_VERBOSE"
	EnvParseResponse = "TMS_PARSE_RESPONSE"
	EnvHost          = "TMS_HOST"
)

// flagDefault is the value assumed for boolean switches that are not set.
const flagDefault = "false"

const redacted = "<redacted>"

// credentialEnv maps every credential key to the variable it is read from.
var credentialEnv = map[Key]string{
	KeyTenant:       EnvTenant,
	KeyClientID:     EnvClientID,
	KeyClientSecret: EnvClientSecret,
	KeyAdminID:      EnvAdminID,
	KeyAdminSecret:  EnvAdminSecret,
}

// secretKeys are never echoed, not even partially.
var secretKeys = map[Key]bool{
	KeyClientSecret: true,
	KeyAdminSecret:  true,
}

// EnvNames returns every environment variable the runtime configuration reads.
func EnvNames() []string {
	names := []string{EnvVerbose, EnvParseResponse, EnvHost}
	for _, name := range credentialEnv {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RuntimeConfig is the resolved, immutable configuration shared read-only by
// every virtual user. It is built once before the attack starts.
type RuntimeConfig struct {
	host          string
	credentials   map[Key]string
	verbose       bool
	parseResponse bool
}

// Load resolves a RuntimeConfig from env.
//
// Credential variables that are absent or empty are left out of the
// configuration entirely. TMS_VERBOSE and TMS_PARSE_RESPONSE default to
// "false" when absent; any other value, including the empty string, turns the
// switch on. Only the exact string "false" turns it off.
func Load(env Environment) *RuntimeConfig {
	cfg := &RuntimeConfig{credentials: make(map[Key]string, len(credentialEnv))}

	for key, name := range credentialEnv {
		if value, ok := env.Lookup(name); ok && value != "" {
			cfg.credentials[key] = value
		}
	}

	cfg.verbose = switchEnabled(env, EnvVerbose)
	cfg.parseResponse = switchEnabled(env, EnvParseResponse)

	if host, ok := env.Lookup(EnvHost); ok {
		cfg.host = host
	}

	return cfg
}

func switchEnabled(env Environment, name string) bool {
	value, ok := env.Lookup(name)
	if !ok {
		value = flagDefault
	}
	return value != flagDefault
}

// Host returns the target base URL.
func (c *RuntimeConfig) Host() string {
	return c.host
}

// Verbose reports whether parsed response bodies are surfaced to the log.
func (c *RuntimeConfig) Verbose() bool {
	return c.verbose
}

// ParseResponse reports whether response bodies are materialized.
func (c *RuntimeConfig) ParseResponse() bool {
	return c.parseResponse
}

// Lookup returns the value stored for key, if any.
func (c *RuntimeConfig) Lookup(key Key) (string, bool) {
	value, ok := c.credentials[key]
	return value, ok
}

// Require returns the value stored for key or a *FatalConfigurationError.
func (c *RuntimeConfig) Require(key Key) (string, error) {
	value, ok := c.credentials[key]
	if !ok {
		return "", &FatalConfigurationError{Key: key, Env: credentialEnv[key]}
	}
	return value, nil
}

// WithHost returns a copy of c targeting host. Credentials are shared; the
// copy is as immutable as the original.
func (c *RuntimeConfig) WithHost(host string) *RuntimeConfig {
	clone := *c
	clone.host = host
	return &clone
}

// MarshalLogObject emits the configuration with every credential redacted.
// Ids are reported as present or absent, secrets only as redacted.
func (c *RuntimeConfig) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("host", c.host)
	enc.AddBool("verbose", c.verbose)
	enc.AddBool("parse_response", c.parseResponse)

	keys := make([]string, 0, len(credentialEnv))
	for key := range credentialEnv {
		keys = append(keys, string(key))
	}
	sort.Strings(keys)

	for _, k := range keys {
		key := Key(k)
		_, ok := c.credentials[key]
		switch {
		case !ok:
			enc.AddString(k, "<unset>")
		case secretKeys[key]:
			enc.AddString(k, redacted)
		default:
			enc.AddString(k, "<set>")
		}
	}
	return nil
}

// Loader computes a RuntimeConfig once and returns the same value on every
// later call, including concurrent first calls.
type Loader struct {
	env  Environment
	once sync.Once
	cfg  *RuntimeConfig
}

// NewLoader returns a Loader reading from env.
func NewLoader(env Environment) *Loader {
	return &Loader{env: env}
}

// Load returns the cached configuration, resolving it on first use.
func (l *Loader) Load() *RuntimeConfig {
	l.once.Do(func() {
		l.cfg = Load(l.env)
	})
	return l.cfg
}
