package dvfs

import "strings"

// GovernorID selects one of the step-decision algorithms
type GovernorID int

const (
	GovernorDefault GovernorID = iota
	GovernorInteractive
	GovernorJoint
	GovernorStatic
	GovernorBooster
	GovernorDynamic

	numGovernors
)

var governorNames = [numGovernors]string{
	GovernorDefault:     "Default",
	GovernorInteractive: "Interactive",
	GovernorJoint:       "Joint",
	GovernorStatic:      "Static",
	GovernorBooster:     "Booster",
	GovernorDynamic:     "Dynamic",
}

func (id GovernorID) String() string {
	if !id.Valid() {
		return "Invalid"
	}
	return governorNames[id]
}

// Valid reports whether id names a registered governor
func (id GovernorID) Valid() bool {
	return id >= 0 && id < numGovernors
}

// ParseGovernor looks a governor up by its display name, case-insensitively
func ParseGovernor(name string) (GovernorID, error) {
	for id, n := range governorNames {
		if strings.EqualFold(n, name) {
			return GovernorID(id), nil
		}
	}
	return 0, ErrInvalidGovernor
}

// AllGovernors returns every governor id in registry order
func AllGovernors() []GovernorID {
	ids := make([]GovernorID, 0, numGovernors)
	for id := GovernorID(0); id < numGovernors; id++ {
		ids = append(ids, id)
	}
	return ids
}

// GovernorInfo is one registry entry: the table and start clock a governor
// runs with. Entries are installed at setup and read on every switch.
type GovernorInfo struct {
	ID         GovernorID
	Name       string
	Table      Table
	StartClock int
}

// algorithm decides the next step for one sample. Implementations keep
// their own per-device memory (delay counters, previous weights, history).
type algorithm interface {
	next(s *State, utilization int)
}

// newAlgorithm builds fresh per-device state for governor id
func newAlgorithm(id GovernorID) algorithm {
	switch id {
	case GovernorDefault:
		return defaultGovernor{}
	case GovernorInteractive:
		return &interactiveGovernor{}
	case GovernorJoint:
		return &jointGovernor{predictor: NewPredictor()}
	case GovernorStatic:
		return newStaticGovernor()
	case GovernorBooster:
		return &boosterGovernor{}
	case GovernorDynamic:
		return dynamicGovernor{}
	}
	panic("dvfs: no algorithm for governor " + id.String())
}
