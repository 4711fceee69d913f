package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Environment supplies raw configuration values by variable name.
type Environment interface {
	// Lookup returns the value for name and whether it is set at all.
	// A variable set to the empty string is reported as present.
	Lookup(name string) (string, bool)
}

// ViperEnvironment reads the recognized variables through viper so that
// command-line flags can be layered over the process environment.
type ViperEnvironment struct {
	v *viper.Viper
}

// NewViperEnvironment binds every recognized variable to the process
// environment.
func NewViperEnvironment() (*ViperEnvironment, error) {
	v := viper.New()
	v.AllowEmptyEnv(true)

	for _, name := range EnvNames() {
		if err := v.BindEnv(name); err != nil {
			return nil, fmt.Errorf("bind %s: %w", name, err)
		}
	}

	return &ViperEnvironment{v: v}, nil
}

// BindFlag makes flag override the variable name when it is set on the
// command line.
func (e *ViperEnvironment) BindFlag(name string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("bind %s: flag not defined", name)
	}
	return e.v.BindPFlag(name, flag)
}

// Lookup implements Environment.
func (e *ViperEnvironment) Lookup(name string) (string, bool) {
	if !e.v.IsSet(name) {
		return "", false
	}
	return e.v.GetString(name), true
}

// MapEnvironment is a fixed set of variables, mostly useful in tests.
type MapEnvironment map[string]string

// Lookup implements Environment.
func (m MapEnvironment) Lookup(name string) (string, bool) {
	value, ok := m[name]
	return value, ok
}
