package alert

import "fmt"

// DispatchError reports a failed delivery to one sink. It is logged and never retried.
type DispatchError struct {
	Sink    string
	EventID string
	Err     error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("alert %s via %s: %v", e.EventID, e.Sink, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
