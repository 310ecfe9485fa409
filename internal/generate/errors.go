package generate

import "fmt"

// PhaseError tells the caller which phase of a generation request failed.
// Step is the 1-based decode iteration, zero during prefill. The partial
// continuation is never attached; a request that fails produces no output.
type PhaseError struct {
	Phase string
	Step  int
	Err   error
}

func (e *PhaseError) Error() string {
	if e.Step > 0 {
		return fmt.Sprintf("%s step %d: %v", e.Phase, e.Step, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }
