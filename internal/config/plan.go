package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxScenarioWeight is the largest weight a scenario may carry.
const MaxScenarioWeight = 1000

// Selection policies accepted in a plan.
const (
	SelectionWeighted   = "weighted"
	SelectionRoundRobin = "round-robin"
)

// Plan describes an attack: how many users, for how long, and how scenarios
// are weighted. Every field is optional; command-line flags take precedence.
//
// Example YAML:
//
//	host: "http://localhost:8080"
//	users: 20
//	hatch_rate: 5
//	run_time: 2m
//	selection: weighted
//	seed: 42
//	scenarios:
//	  getclient:
//	    weight: 3
//	  getversion:
//	    weight: 1
type Plan struct {
	// Host is the target base URL
	Host string `json:"host,omitempty" yaml:"host,omitempty"`

	// Users is the number of virtual users to start
	Users int `json:"users,omitempty" yaml:"users,omitempty"`

	// HatchRate is how many users are started per second (0 = all at once)
	HatchRate float64 `json:"hatch_rate,omitempty" yaml:"hatch_rate,omitempty"`

	// RunTime bounds the attack by elapsed time
	RunTime Duration `json:"run_time,omitempty" yaml:"run_time,omitempty"`

	// Iterations bounds every user by scenario iterations
	Iterations int `json:"iterations,omitempty" yaml:"iterations,omitempty"`

	// GracefulStop is how long stopping users may take to finish in-flight work
	GracefulStop Duration `json:"graceful_stop,omitempty" yaml:"graceful_stop,omitempty"`

	// Timeout is the per-request HTTP timeout
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Selection is "weighted" or "round-robin"
	Selection string `json:"selection,omitempty" yaml:"selection,omitempty"`

	// Seed makes scenario selection reproducible
	Seed int64 `json:"seed,omitempty" yaml:"seed,omitempty"`

	// Scenarios overrides per-scenario settings, keyed by scenario name
	Scenarios map[string]ScenarioPlan `json:"scenarios,omitempty" yaml:"scenarios,omitempty"`
}

// ScenarioPlan overrides a registered scenario.
type ScenarioPlan struct {
	Weight   int  `json:"weight,omitempty" yaml:"weight,omitempty"`
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// LoadPlan reads, schema-checks and validates a YAML plan file.
func LoadPlan(path string) (*Plan, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("plan file not found: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading plan file: %w", err)
	}

	return ParsePlan(data)
}

// ParsePlan parses YAML plan data.
func ParsePlan(data []byte) (*Plan, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("error parsing plan: %w", err)
	}
	if doc == nil {
		return &Plan{}, nil
	}

	// Round-trip through JSON so the schema sees JSON value types.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("error parsing plan: %w", err)
	}
	if err := validatePlanSchema(raw); err != nil {
		return nil, err
	}

	var plan Plan
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&plan); err != nil {
		return nil, fmt.Errorf("error parsing plan: %w", err)
	}

	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// Validate checks the cross-field rules the schema cannot express.
func (p *Plan) Validate() error {
	errs := &ValidationErrors{}

	if p.Host != "" {
		if u, err := url.Parse(p.Host); err != nil || u.Scheme == "" || u.Host == "" {
			errs.Add("host", fmt.Sprintf("not an absolute URL: %q", p.Host))
		}
	}
	if p.RunTime < 0 {
		errs.Add("run_time", "must not be negative")
	}
	if p.GracefulStop < 0 {
		errs.Add("graceful_stop", "must not be negative")
	}

	for name, sc := range p.Scenarios {
		if !sc.Disabled && (sc.Weight < 0 || sc.Weight > MaxScenarioWeight) {
			errs.Add("scenarios."+name+".weight", fmt.Sprintf("must be between 1 and %d", MaxScenarioWeight))
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return d.set(s)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.set(s)
}

func (d *Duration) set(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
