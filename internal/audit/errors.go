package audit

import "fmt"

// InvariantViolation reports an internal defect: a condition that valid inputs
// can never produce (confidence outside [0,1], duplicate step numbers reaching
// the engine). It is always fatal and must never be clamped away.
type InvariantViolation struct {
	Detail string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation: %s", e.Detail)
}
