package binance

import "fmt"

// FetchError reports a failed REST call: transport failure, non-200 status or an
// undecodable body.
type FetchError struct {
	Op         string
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("binance %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("binance %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
