package planning

// ErrorCode is the machine-readable failure code surfaced alongside boolean
// results.
type ErrorCode int

// The error codes a context can report.
const (
	ErrorNone ErrorCode = iota
	ErrorInvalidGoalConstraints
)

func (e ErrorCode) String() string {
	switch e {
	case ErrorNone:
		return "ok"
	case ErrorInvalidGoalConstraints:
		return "INVALID_GOAL_CONSTRAINTS"
	default:
		return "unknown"
	}
}
