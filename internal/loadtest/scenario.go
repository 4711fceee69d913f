package loadtest

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/tmsproject/tms-loadtest/internal/config"
)

// Scenario is a named, weighted, ordered sequence of transactions modelling
// one user workflow. Scenarios are immutable once the run starts.
type Scenario struct {
	Name         string
	Transactions []Transaction
	Weight       int

	// Requires lists the credentials the transactions need. They are checked
	// before any user starts.
	Requires []config.Key
}

// NewScenario creates a scenario. A zero weight means the default weight 1.
func NewScenario(name string, weight int, transactions ...Transaction) *Scenario {
	if weight == 0 {
		weight = 1
	}
	return &Scenario{
		Name:         name,
		Transactions: transactions,
		Weight:       weight,
	}
}

// ValidateScenarios checks a scenario set before a run.
func ValidateScenarios(scenarios []*Scenario) error {
	errs := &config.ValidationErrors{}

	if len(scenarios) == 0 {
		errs.Add("scenarios", "at least one scenario is required")
		return errs
	}

	seen := make(map[string]bool, len(scenarios))
	for i, sc := range scenarios {
		field := fmt.Sprintf("scenarios[%d]", i)
		if sc == nil {
			errs.Add(field, "scenario is nil")
			continue
		}
		if sc.Name == "" {
			errs.Add(field+".name", "name is required")
		} else if seen[sc.Name] {
			errs.Add(field+".name", fmt.Sprintf("duplicate scenario name %q", sc.Name))
		}
		seen[sc.Name] = true

		if sc.Weight < 1 || sc.Weight > config.MaxScenarioWeight {
			errs.Add(field+".weight", fmt.Sprintf("weight must be between 1 and %d", config.MaxScenarioWeight))
		}
		if len(sc.Transactions) == 0 {
			errs.Add(field+".transactions", "at least one transaction is required")
		}
		for j, tx := range sc.Transactions {
			if tx.Run == nil {
				errs.Add(fmt.Sprintf("%s.transactions[%d]", field, j), "transaction has no function")
			}
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// ConfigureScenarios applies plan overrides and a name filter to the
// registered scenarios and returns the resulting run set. The registered
// scenarios are never modified. An empty filter keeps every scenario.
func ConfigureScenarios(registered []*Scenario, overrides map[string]config.ScenarioPlan, only []string) ([]*Scenario, error) {
	known := make(map[string]bool, len(registered))
	for _, sc := range registered {
		known[sc.Name] = true
	}

	for name := range overrides {
		if !known[name] {
			return nil, fmt.Errorf("plan references unknown scenario %q", name)
		}
	}

	keep := make(map[string]bool, len(only))
	for _, name := range only {
		if !known[name] {
			return nil, fmt.Errorf("unknown scenario %q", name)
		}
		keep[name] = true
	}

	var result []*Scenario
	for _, sc := range registered {
		if len(keep) > 0 && !keep[sc.Name] {
			continue
		}
		o := overrides[sc.Name]
		if o.Disabled {
			continue
		}
		clone := *sc
		if o.Weight > 0 {
			clone.Weight = o.Weight
		}
		result = append(result, &clone)
	}

	if len(result) == 0 {
		return nil, fmt.Errorf("no scenario left to run")
	}
	return result, nil
}

// Selector picks the scenario a virtual user runs next. A Selector belongs
// to a single virtual user and is not safe for concurrent use.
type Selector interface {
	Next() *Scenario
}

// NewSelector creates the selector of virtual user vuID for policy. The
// sequence it produces depends only on its arguments.
func NewSelector(policy string, scenarios []*Scenario, seed int64, vuID int) (Selector, error) {
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("no scenarios to select from")
	}

	switch policy {
	case "", config.SelectionWeighted:
		return newWeightedSelector(scenarios, seed+int64(vuID)), nil
	case config.SelectionRoundRobin:
		return newRoundRobinSelector(scenarios, vuID), nil
	default:
		return nil, fmt.Errorf("unknown selection policy %q", policy)
	}
}

// weightedSelector draws scenarios with probability proportional to weight.
type weightedSelector struct {
	scenarios  []*Scenario
	cumulative []int
	total      int
	rng        *rand.Rand
}

func newWeightedSelector(scenarios []*Scenario, seed int64) *weightedSelector {
	s := &weightedSelector{
		scenarios:  scenarios,
		cumulative: make([]int, len(scenarios)),
		rng:        rand.New(rand.NewSource(seed)),
	}
	for i, sc := range scenarios {
		s.total += sc.Weight
		s.cumulative[i] = s.total
	}
	return s
}

func (s *weightedSelector) Next() *Scenario {
	n := s.rng.Intn(s.total)
	i := sort.SearchInts(s.cumulative, n+1)
	return s.scenarios[i]
}

// roundRobinSelector cycles through scenarios, returning each one Weight
// times in a row. Users start at different offsets so the first iterations
// are spread out.
type roundRobinSelector struct {
	scenarios []*Scenario
	current   int
	remaining int
}

func newRoundRobinSelector(scenarios []*Scenario, vuID int) *roundRobinSelector {
	total := 0
	for _, sc := range scenarios {
		total += sc.Weight
	}

	offset := 0
	if vuID > 0 {
		offset = (vuID - 1) % total
	}

	s := &roundRobinSelector{scenarios: scenarios}
	for offset >= scenarios[s.current].Weight {
		offset -= scenarios[s.current].Weight
		s.current++
	}
	s.remaining = scenarios[s.current].Weight - offset
	return s
}

func (s *roundRobinSelector) Next() *Scenario {
	sc := s.scenarios[s.current]
	s.remaining--
	if s.remaining == 0 {
		s.current = (s.current + 1) % len(s.scenarios)
		s.remaining = s.scenarios[s.current].Weight
	}
	return sc
}
