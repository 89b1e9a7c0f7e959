package rtdb

import "fmt"

// Normalized messages surfaced to callers in place of raw service output.
const (
	TryAgainMessage         = "We're sorry, a server error occurred. Please wait a bit and try again."
	GlobalCrashMessage      = "We're sorry, a server error occurred. Please wait a bit and try again."
	PermissionDeniedMessage = "Permission denied"
	InvalidDataMessage      = "Invalid data; couldn't parse JSON object. Are you sending a JSON object with valid key names?"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// KindTryAgain marks transient failures that exhausted or skipped retries.
	KindTryAgain Kind = "try_again"
	// KindGlobalCrash marks a batch-wide transport failure.
	KindGlobalCrash Kind = "global_crash"
	// KindPermissionDenied marks requests rejected by the security rules.
	KindPermissionDenied Kind = "permission_denied"
	// KindInvalidData marks payloads the service (or the encoder) refused.
	KindInvalidData Kind = "invalid_data"
	// KindServer marks an error message reported by the service with its status.
	KindServer Kind = "server"
)

// Error is a request failure. Message is safe to show: it never contains the
// database secret.
type Error struct {
	Kind    Kind
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

// Is matches errors of the same Kind, so errors.Is(err, ErrPermissionDenied)
// holds for any permission failure regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind
}

var (
	// ErrTryAgain is recorded for transient failures.
	ErrTryAgain = &Error{Kind: KindTryAgain, Message: TryAgainMessage}
	// ErrGlobalCrash is returned by GetAll when a batch fails in transport.
	ErrGlobalCrash = &Error{Kind: KindGlobalCrash, Message: GlobalCrashMessage}
	// ErrPermissionDenied is recorded when the security rules reject a request.
	ErrPermissionDenied = &Error{Kind: KindPermissionDenied, Status: 401, Message: PermissionDeniedMessage}
	// ErrInvalidData is recorded when a payload is not valid JSON for the service.
	ErrInvalidData = &Error{Kind: KindInvalidData, Message: InvalidDataMessage}
)

// noRetryMessages are service messages that are final whatever the status.
var noRetryMessages = map[string]*Error{
	PermissionDeniedMessage: ErrPermissionDenied,
	InvalidDataMessage:      ErrInvalidData,
}

func permissionError(msg string) *Error {
	if msg == "" {
		return ErrPermissionDenied
	}
	return &Error{Kind: KindPermissionDenied, Status: 401, Message: msg}
}

func serverError(status int, msg string) *Error {
	return &Error{Kind: KindServer, Status: status, Message: fmt.Sprintf("%d - %s", status, msg)}
}
