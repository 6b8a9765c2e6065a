package worker

import (
	"fmt"

	"github.com/ashita-ai/kensa/internal/model"
)

// ErrorKind classifies why a worker call did not produce a usable payload.
type ErrorKind int

const (
	// ConfigurationError: the worker lacks a base URL or credentials. Never called.
	ConfigurationError ErrorKind = iota + 1
	// TransportError: the connection failed.
	TransportError
	// TimeoutError: the per-call budget expired.
	TimeoutError
	// UpstreamError: the worker answered with a non-2xx status or refused the run.
	UpstreamError
	// MalformedResponseError: 2xx with a body that does not match the envelope.
	MalformedResponseError
)

// Error codes recorded on WorkerCallResult.ErrorCode.
const (
	CodeNoConfig       = "NO_CONFIG"
	CodeTimeout        = "TIMEOUT"
	CodeTransport      = "TRANSPORT_ERROR"
	CodeWorkerNotOK    = "WORKER_NOT_OK"
	CodeTooLarge       = "RESPONSE_TOO_LARGE"
	CodeMalformed      = "MALFORMED_RESPONSE"
	CodeRequestBuild   = "REQUEST_BUILD_ERROR"
	httpCodePrefix     = "HTTP_"
	maxErrorDetailSize = 1024
)

func (k ErrorKind) String() string {
	switch k {
	case ConfigurationError:
		return "configuration"
	case TransportError:
		return "transport"
	case TimeoutError:
		return "timeout"
	case UpstreamError:
		return "upstream"
	case MalformedResponseError:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// Status maps the error kind to the call status recorded for the worker.
// Malformed responses fall back to generic extraction and stay successful.
func (k ErrorKind) Status() model.CallStatus {
	switch k {
	case ConfigurationError:
		return model.CallSkipped
	case TimeoutError:
		return model.CallTimeout
	case MalformedResponseError:
		return model.CallSuccess
	default:
		return model.CallFailed
	}
}

// CallError is the typed failure of one worker call.
type CallError struct {
	Kind   ErrorKind
	Code   string
	Detail string
	Err    error
}

func (e *CallError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("worker %s error %s: %s", e.Kind, e.Code, e.Detail)
	}
	return fmt.Sprintf("worker %s error %s", e.Kind, e.Code)
}

func (e *CallError) Unwrap() error { return e.Err }

// HTTPCode returns the error code for a non-2xx status.
func HTTPCode(status int) string {
	return fmt.Sprintf("%s%d", httpCodePrefix, status)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
