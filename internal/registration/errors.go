package registration

import "errors"

// Kind classifies a flow failure. Handlers map kinds to HTTP statuses.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindInvalidCredentials
	KindInvalidOTP
	KindOTPExpired
	KindPrecondition
	KindConflict
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindInvalidOTP:
		return "invalid_otp"
	case KindOTPExpired:
		return "otp_expired"
	case KindPrecondition:
		return "precondition"
	case KindConflict:
		return "conflict"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Error is returned by every Service operation. Message is safe to show to
// clients; Err carries the underlying cause, if any.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of a Service error, or KindInternal for anything else.
func KindOf(err error) Kind {
	var flowErr *Error
	if errors.As(err, &flowErr) {
		return flowErr.Kind
	}
	return KindInternal
}

func fail(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

func wrap(kind Kind, message string, err error) error {
	return &Error{Kind: kind, Message: message, Err: err}
}

const (
	msgUserNotFound       = "User not found"
	msgInvalidOTP         = "Invalid OTP"
	msgOTPExpired         = "OTP expired"
	msgInvalidCredentials = "Invalid credentials"
)
