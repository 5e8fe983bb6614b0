package model

import "github.com/rotisserie/eris"

// order is the happy-path sequence; early exits are handled by exits.
var order = []Status{
	StatusNew,
	StatusEnriched,
	StatusContacted,
	StatusScored,
	StatusDrafted,
	StatusCompliant,
	StatusSequenced,
	StatusReadyForHandoff,
}

// exits lists, for each early-exit status, the statuses it may be entered from.
// The source status is the one the record holds while the exiting stage runs.
var exits = map[Status][]Status{
	// Contactor runs on enriched records; Scorer on contacted ones.
	StatusDropped: {StatusEnriched, StatusContacted},
	// Compliance runs on drafted records; Sequencer on compliant ones.
	StatusBlocked: {StatusDrafted, StatusCompliant},
}

// Terminal reports whether s ends the pipeline for a record.
func (s Status) Terminal() bool {
	return s == StatusDropped || s == StatusBlocked || s == StatusReadyForHandoff
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	if _, ok := exits[s]; ok {
		return true
	}
	return s.rank() >= 0
}

func (s Status) rank() int {
	for i, o := range order {
		if o == s {
			return i
		}
	}
	return -1
}

// CanTransition reports whether a record may move from one status to another.
func CanTransition(from, to Status) bool {
	return CheckTransition(from, to) == nil
}

// CheckTransition returns a descriptive error when from → to is not an edge of
// the state graph.
func CheckTransition(from, to Status) error {
	if from.Terminal() {
		return eris.Errorf("model: record already terminal (%s), cannot move to %s", from, to)
	}
	if srcs, ok := exits[to]; ok {
		for _, s := range srcs {
			if s == from {
				return nil
			}
		}
		return eris.Errorf("model: cannot exit to %s from %s", to, from)
	}
	fr, tr := from.rank(), to.rank()
	if fr < 0 || tr < 0 {
		return eris.Errorf("model: unknown status transition %s -> %s", from, to)
	}
	if tr != fr+1 {
		return eris.Errorf("model: invalid transition %s -> %s", from, to)
	}
	return nil
}
