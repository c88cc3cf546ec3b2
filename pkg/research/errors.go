package research

import "fmt"

// ResearchError wraps a provider failure so callers can separate a failed
// research step from their own errors with errors.As.
type ResearchError struct {
	Topic string
	Err   error
}

func (e *ResearchError) Error() string {
	if e.Topic == "" {
		return fmt.Sprintf("broad research: %v", e.Err)
	}
	return fmt.Sprintf("research %q: %v", e.Topic, e.Err)
}

func (e *ResearchError) Unwrap() error { return e.Err }
