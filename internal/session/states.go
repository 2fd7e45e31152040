package session

import "time"

// State of a harvest run. Transitions only move forward; Failed is terminal.
type State int

const (
	Unauthenticated State = iota
	LoggingIn
	Authenticated
	CredentialsBridged
	FetchingPublicResource
	FetchingPrivilegedResource
	Completed
	Failed
)

var stateNames = [...]string{
	Unauthenticated:            "unauthenticated",
	LoggingIn:                  "logging_in",
	Authenticated:              "authenticated",
	CredentialsBridged:         "credentials_bridged",
	FetchingPublicResource:     "fetching_public_resource",
	FetchingPrivilegedResource: "fetching_privileged_resource",
	Completed:                  "completed",
	Failed:                     "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Completed || s == Failed
}

// next is the only legal successor of each non-terminal state besides Failed.
var next = map[State]State{
	Unauthenticated:            LoggingIn,
	LoggingIn:                  Authenticated,
	Authenticated:              CredentialsBridged,
	CredentialsBridged:         FetchingPublicResource,
	FetchingPublicResource:     FetchingPrivilegedResource,
	FetchingPrivilegedResource: Completed,
}

// CanTransition reports whether from → to is allowed.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == Failed {
		return true
	}
	return next[from] == to
}

// Transition is one recorded state change.
type Transition struct {
	From State
	To   State
	At   time.Time
}
