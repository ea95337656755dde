package state

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Validator checks raw input for a state and returns the normalized value.
type Validator func(input string) ValidationResult

// Graph is the static description of a workflow.
type Graph struct {
	// Initial is the state of unknown users and the target of Reset.
	Initial State
	// Home is where GoBack lands when history is empty.
	Home State
	// Timeout is entered when a state timer fires.
	Timeout State
	// Universal states are reachable from anywhere.
	Universal []State

	Transitions map[State][]State
	Labels      map[State]string
	Timeouts    map[State]time.Duration
	Inputs      map[State]InputKind
	Actions     map[State][]Action
	Validators  map[State]Validator
	// DataKeys restricts which data keys a transition into the state may carry.
	// States without an entry accept any key.
	DataKeys map[State][]string

	// DefaultInput and DefaultActions apply to states without their own entry.
	DefaultInput   InputKind
	DefaultActions []Action
}

// States returns every state mentioned by the graph, sorted.
func (g *Graph) States() []State {
	seen := map[State]struct{}{g.Initial: {}, g.Home: {}, g.Timeout: {}}
	for _, s := range g.Universal {
		seen[s] = struct{}{}
	}
	for from, tos := range g.Transitions {
		seen[from] = struct{}{}
		for _, to := range tos {
			seen[to] = struct{}{}
		}
	}
	out := make([]State, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// Validate reports every inconsistency in the graph at once.
func (g *Graph) Validate() error {
	var errs []error
	if g.Initial == "" || g.Home == "" || g.Timeout == "" {
		errs = append(errs, errors.New("graph: initial, home and timeout states are required"))
	}
	declared := make(map[State]struct{}, len(g.Transitions))
	for s := range g.Transitions {
		declared[s] = struct{}{}
	}
	check := func(where string, s State) {
		if _, ok := declared[s]; !ok {
			errs = append(errs, fmt.Errorf("graph: %s references undeclared state %q", where, s))
		}
	}
	check("initial", g.Initial)
	check("home", g.Home)
	check("timeout", g.Timeout)
	for _, s := range g.Universal {
		check("universal", s)
	}
	for from, tos := range g.Transitions {
		for _, to := range tos {
			check(string(from)+" transitions", to)
		}
	}
	for s, d := range g.Timeouts {
		check("timeouts", s)
		if d < 0 {
			errs = append(errs, fmt.Errorf("graph: negative timeout for %q", s))
		}
	}
	if _, ok := g.Timeouts[g.Timeout]; ok {
		errs = append(errs, fmt.Errorf("graph: timeout state %q must not have a timer", g.Timeout))
	}
	for s := range g.Inputs {
		check("inputs", s)
	}
	for s := range g.Actions {
		check("actions", s)
	}
	for s := range g.Validators {
		check("validators", s)
	}
	for s := range g.DataKeys {
		check("data keys", s)
	}
	return errors.Join(errs...)
}

// Allowed reports whether from -> to is a legal transition.
func (g *Graph) Allowed(from, to State) bool {
	return slices.Contains(g.Universal, to) || slices.Contains(g.Transitions[from], to)
}

// Declared reports whether s is a state of the graph.
func (g *Graph) Declared(s State) bool {
	_, ok := g.Transitions[s]
	return ok
}

// InputFor returns the input kind s expects.
func (g *Graph) InputFor(s State) InputKind {
	if k, ok := g.Inputs[s]; ok {
		return k
	}
	if g.DefaultInput != "" {
		return g.DefaultInput
	}
	return InputCallback
}

// ActionsFor returns a copy of the actions s offers.
func (g *Graph) ActionsFor(s State) []Action {
	if a, ok := g.Actions[s]; ok {
		return slices.Clone(a)
	}
	return slices.Clone(g.DefaultActions)
}

// AllActions lists every action the graph can offer, deduplicated and sorted.
func (g *Graph) AllActions() []Action {
	var all []Action
	all = append(all, g.DefaultActions...)
	for _, a := range g.Actions {
		all = append(all, a...)
	}
	slices.Sort(all)
	return slices.Compact(all)
}

// LabelFor returns the human label of s, falling back to its name.
func (g *Graph) LabelFor(s State) string {
	if l, ok := g.Labels[s]; ok {
		return l
	}
	return string(s)
}

func (g *Graph) checkDataKeys(to State, data Data) error {
	allowed, ok := g.DataKeys[to]
	if !ok {
		return nil
	}
	for k := range data {
		if !slices.Contains(allowed, k) {
			return fmt.Errorf("%w %q for state %s", ErrUnknownDataKey, k, to)
		}
	}
	return nil
}
