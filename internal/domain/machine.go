package domain

// Status is an entity workflow state.
type Status string

// Transition is a named edge in an entity's status graph.
type Transition struct {
	Name    string
	Sources []Status
	Target  Status
}

// Machine is the status transition table for one entity kind. The same
// machine shape serves flights, cargo flights and sample records; only the
// label sets differ.
type Machine struct {
	Entity      string
	Transitions map[string]Transition
}

// NewMachine builds a machine from a transition list.
func NewMachine(entity string, transitions ...Transition) Machine {
	m := Machine{Entity: entity, Transitions: make(map[string]Transition, len(transitions))}
	for _, t := range transitions {
		m.Transitions[t.Name] = t
	}
	return m
}

// Apply returns the target status for the named transition, or an
// InvalidTransitionError when the transition is unknown or the current
// status is not in its source set.
func (m Machine) Apply(entityID string, current Status, name string) (Status, error) {
	t, ok := m.Transitions[name]
	if !ok {
		return "", &InvalidTransitionError{Entity: m.Entity, EntityID: entityID, Current: current, Transition: name}
	}
	for _, s := range t.Sources {
		if s == current {
			return t.Target, nil
		}
	}
	return "", &InvalidTransitionError{Entity: m.Entity, EntityID: entityID, Current: current, Transition: name}
}

// CanApply reports whether the named transition is legal from the current status.
func (m Machine) CanApply(current Status, name string) bool {
	t, ok := m.Transitions[name]
	if !ok {
		return false
	}
	for _, s := range t.Sources {
		if s == current {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves the given status.
func (m Machine) IsTerminal(current Status) bool {
	for _, t := range m.Transitions {
		for _, s := range t.Sources {
			if s == current && t.Target != current {
				return false
			}
		}
	}
	return true
}
