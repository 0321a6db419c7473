package restore

import (
	"fmt"

	"github.com/samber/lo"
)

// State of one restoration run.
type State uint8

const (
	StateIdle State = iota
	StateProbing
	StateUnavailable
	StateReady
	StateVerifying
	StateVerified
	StateFailed
	StateRetrieving
	StateRestored
	StateNoCredentials
	StateVaultError
)

var stateNames = map[State]string{
	StateIdle:          "IDLE",
	StateProbing:       "PROBING",
	StateUnavailable:   "UNAVAILABLE",
	StateReady:         "READY",
	StateVerifying:     "VERIFYING",
	StateVerified:      "VERIFIED",
	StateFailed:        "FAILED",
	StateRetrieving:    "RETRIEVING",
	StateRestored:      "RESTORED",
	StateNoCredentials: "NO_CREDENTIALS",
	StateVaultError:    "VAULT_ERROR",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	state, ok := lo.FindKey(stateNames, string(text))
	if !ok {
		return fmt.Errorf("restore: unknown state %q", text)
	}
	*s = state
	return nil
}

// Terminal tells whether a run halts in s.
func (s State) Terminal() bool {
	switch s {
	case StateUnavailable, StateFailed, StateRestored, StateNoCredentials, StateVaultError:
		return true
	default:
		return false
	}
}

var transitions = map[State][]State{
	StateIdle:       {StateProbing},
	StateProbing:    {StateUnavailable, StateReady},
	StateReady:      {StateVerifying},
	StateVerifying:  {StateVerified, StateFailed},
	StateVerified:   {StateRetrieving},
	StateRetrieving: {StateRestored, StateNoCredentials, StateVaultError},
}

// CanTransition tells whether the state machine allows from -> to.
func CanTransition(from, to State) bool {
	return lo.Contains(transitions[from], to)
}

// Observer receives every transition of a run.
type Observer func(from, to State)
