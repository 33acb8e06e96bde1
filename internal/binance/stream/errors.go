package stream

import "fmt"

// StreamError reports a transport failure or close on one partition's connection.
type StreamError struct {
	Partition int
	Err       error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("partition %d: %v", e.Partition, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// MessageParseError reports an inbound frame that could not be decoded.
type MessageParseError struct {
	Frame string // truncated raw frame
	Err   error
}

func (e *MessageParseError) Error() string {
	return fmt.Sprintf("parse frame %q: %v", e.Frame, e.Err)
}

func (e *MessageParseError) Unwrap() error { return e.Err }

func truncate(msg []byte) string {
	const max = 128
	if len(msg) > max {
		return string(msg[:max]) + "..."
	}
	return string(msg)
}
