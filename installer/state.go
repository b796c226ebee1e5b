package installer

import "encoding/json"

// State is a step of the transactional install FSM (spec.md §4.7), directly
// modeled on claircore's indexer controller.
type State int

const (
	// Terminal halts the fsm and returns the current result to the caller.
	Terminal State = iota
	AcquireLock
	Fetch
	Extract
	BuildManifest
	CheckConflicts
	PlaceFiles
	RunLdconfig
	RunScriptlet
	Record
	Commit
	// InstallError triggers rollback of everything this operation placed.
	InstallError
)

func (s State) String() string {
	names := [...]string{
		"Terminal",
		"AcquireLock",
		"Fetch",
		"Extract",
		"BuildManifest",
		"CheckConflicts",
		"PlaceFiles",
		"RunLdconfig",
		"RunScriptlet",
		"Record",
		"Commit",
		"InstallError",
	}
	if int(s) < 0 || int(s) >= len(names) {
		return "Unknown"
	}
	return names[s]
}

func (s State) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }
