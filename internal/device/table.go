package device

// Table is the static transition table of one kind. It is built once at
// package init and never mutated.
type Table struct {
	kind   Kind
	states []State
	edges  map[State]map[State]struct{}
}

// tables holds the table for every supported kind.
var tables = map[Kind]*Table{
	KindValve:  fullyConnected(KindValve, StateIdle, StateOpening, StateOpen, StateClosing, StateClosed),
	KindPump:   fullyConnected(KindPump, StateIdle, StatePriming, StateRunning),
	KindSensor: fullyConnected(KindSensor, StateIdle, StateActive),
}

// TableFor returns the transition table for k.
func TableFor(k Kind) (*Table, bool) {
	t, ok := tables[k]
	return t, ok
}

// fullyConnected builds a table with an edge between every ordered pair of
// distinct states.
func fullyConnected(k Kind, states ...State) *Table {
	t := &Table{
		kind:   k,
		states: states,
		edges:  make(map[State]map[State]struct{}, len(states)),
	}
	for _, from := range states {
		out := make(map[State]struct{}, len(states)-1)
		for _, to := range states {
			if to != from {
				out[to] = struct{}{}
			}
		}
		t.edges[from] = out
	}
	return t
}

// Kind returns the kind this table belongs to.
func (t *Table) Kind() Kind { return t.kind }

// Allowed reports whether the table holds an edge from -> to. Self-loops
// are never allowed.
func (t *Table) Allowed(from, to State) bool {
	out, ok := t.edges[from]
	if !ok {
		return false
	}
	_, ok = out[to]
	return ok
}

// Targets returns the states reachable in one step from from, in state
// set order.
func (t *Table) Targets(from State) []State {
	var out []State
	for _, s := range t.states {
		if t.Allowed(from, s) {
			out = append(out, s)
		}
	}
	return out
}

func (t *Table) has(s State) bool {
	_, ok := t.edges[s]
	return ok
}
