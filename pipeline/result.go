package pipeline

// Outcome is the discriminant of a stage Result.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeSoftFail
	OutcomeHardFail
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeSoftFail:
		return "soft_fail"
	case OutcomeHardFail:
		return "hard_fail"
	default:
		return "unknown"
	}
}

// Result 是阶段的返回值：Ok(State) / SoftFail(State, reason) / HardFail(reason)。
type Result[S any] struct {
	State   S
	Outcome Outcome
	Reason  error
}

func Ok[S any](s S) Result[S] {
	return Result[S]{State: s, Outcome: OutcomeOK}
}

// SoftFail keeps s (possibly with partial output) and records reason as a warning.
func SoftFail[S any](s S, reason error) Result[S] {
	return Result[S]{State: s, Outcome: OutcomeSoftFail, Reason: reason}
}

// HardFail carries no state; a Degrade stage's input state is kept instead.
func HardFail[S any](reason error) Result[S] {
	return Result[S]{Outcome: OutcomeHardFail, Reason: reason}
}
