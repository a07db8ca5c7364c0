package crosec

// SessionState is one state in the per-session reboot-choreography
// state machine, implemented as an explicit enum with a Step transition
// function per state rather than a generic FSM library.
type SessionState int

// Session states.
const (
	StateIdle SessionState = iota
	StateReady
	StateWriteRO
	StateResetToRO
	StateWriteRW
	StateJumpToRW
	StateUnlockRW
	StateSpecial
	StateDone
)

// SessionInputs carries the handshake-derived facts Step needs to decide
// the next transition.
type SessionInputs struct {
	NeedRO       bool
	NeedRW       bool
	InBootloader bool
	RWProtected  bool
	ROWritten    bool
	RWWritten    bool
}

// SessionResult is what one Step call asks the caller to do.
type SessionResult struct {
	Next                 SessionState
	Subcommand           uint16
	HasSubcommand        bool
	WaitReplug           bool
	AnotherWriteRequired bool
	Done                 bool
}

// Step advances state given in, returning the next state and the action
// the caller must perform before calling Step again.
func Step(state SessionState, in SessionInputs) SessionResult {
	switch state {
	case StateIdle:
		return SessionResult{Next: StateReady}

	case StateReady:
		switch {
		// Flash-protection must be cleared before a write can land,
		// whether or not the device has already auto-jumped to RO.
		case in.NeedRW && in.RWProtected:
			return SessionResult{Next: StateUnlockRW}
		case in.NeedRW && in.InBootloader && !in.RWProtected:
			return SessionResult{Next: StateWriteRW}
		case in.NeedRO && !in.NeedRW:
			return SessionResult{Next: StateWriteRO}
		case in.RWWritten && in.InBootloader:
			return SessionResult{Next: StateSpecial}
		default:
			return SessionResult{Next: StateDone, Done: true}
		}

	case StateWriteRO:
		return SessionResult{Next: StateResetToRO}

	case StateResetToRO:
		return SessionResult{
			Next:          StateIdle,
			Subcommand:    SubcommandImmediateReset,
			HasSubcommand: true,
			WaitReplug:    true,
		}

	case StateWriteRW:
		if in.RWProtected {
			return SessionResult{Next: StateJumpToRW}
		}

		return SessionResult{Next: StateDone, Done: true}

	case StateJumpToRW:
		return SessionResult{
			Next:          StateIdle,
			Subcommand:    SubcommandJumpToRW,
			HasSubcommand: true,
			WaitReplug:    true,
		}

	case StateUnlockRW:
		return SessionResult{Next: StateIdle, AnotherWriteRequired: true}

	case StateSpecial:
		return SessionResult{Next: StateDone, WaitReplug: true, Done: true}

	default:
		return SessionResult{Next: StateDone, Done: true}
	}
}
