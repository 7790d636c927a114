package derror

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrStreamIdle          = errors.New("no stream event within the idle timeout")
	ErrStreamClosed        = errors.New("stream closed before end_of_stream")
	ErrAppendAfterFinalize = errors.New("append after finalize")
	ErrAlreadyFinalized    = errors.New("streaming message already finalized")
)

// TransportError is a network or HTTP failure before protocol semantics apply.
// Status is 0 when no response was received.
type TransportError struct {
	Status int
	Reason string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("transport: %s", e.Reason)
	}
	return fmt.Sprintf("transport: HTTP %d %s", e.Status, e.Reason)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StreamOpenError means the event channel failed before any event was dispatched.
type StreamOpenError struct {
	JobID string
	Err   error
}

func (e *StreamOpenError) Error() string {
	return fmt.Sprintf("open stream for job %s: %v", e.JobID, e.Err)
}

func (e *StreamOpenError) Unwrap() error { return e.Err }

// StreamInterruptedError means the stream failed after at least one event
// had been dispatched, so partial output may already be visible.
type StreamInterruptedError struct {
	JobID      string
	Dispatched int
	Err        error
}

func (e *StreamInterruptedError) Error() string {
	return fmt.Sprintf("stream for job %s interrupted after %d events: %v", e.JobID, e.Dispatched, e.Err)
}

func (e *StreamInterruptedError) Unwrap() error { return e.Err }

// ProtocolError is a malformed response or a missing required field.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: %s: %v", e.Reason, e.Err)
	}
	return "protocol: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ServerReportedError carries the text of a server-side error verbatim.
type ServerReportedError struct {
	JobID   string
	Message string
}

func (e *ServerReportedError) Error() string {
	return "server reported: " + e.Message
}

// IsFallbackEligible reports whether err may be retried on the synchronous path.
// Only submission transport failures and stream-open failures qualify, and
// never a cancellation. An interrupted stream is final whatever it wraps, as
// are protocol and server errors outside a stream-open failure. Client-side
// timeouts stay eligible; the caller's own deadline is checked by the caller.
func IsFallbackEligible(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var (
		ie *StreamInterruptedError
		pe *ProtocolError
		se *ServerReportedError
		te *TransportError
		oe *StreamOpenError
	)
	switch {
	case errors.As(err, &ie):
		return false
	case errors.As(err, &oe):
		return true
	case errors.As(err, &pe), errors.As(err, &se):
		return false
	}
	return errors.As(err, &te)
}

// Kind returns a short label for metrics and logs.
func Kind(err error) string {
	var (
		te *TransportError
		oe *StreamOpenError
		ie *StreamInterruptedError
		pe *ProtocolError
		se *ServerReportedError
	)
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &se):
		return "server_reported"
	case errors.As(err, &ie):
		return "stream_interrupted"
	case errors.As(err, &oe):
		return "stream_open"
	case errors.As(err, &pe):
		return "protocol"
	case errors.As(err, &te):
		return "transport"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}
