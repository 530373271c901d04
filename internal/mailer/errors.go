package mailer

import "errors"

// Kind classifies why a send failed
type Kind string

const (
	// KindConfiguration means the transport is not configured; nothing was attempted
	KindConfiguration Kind = "configuration"

	// KindTransport means the network or SMTP exchange failed
	KindTransport Kind = "transport"
)

// Error is returned by Mailer.Send. Message carries the reason verbatim and
// is what ends up in the delivery log.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a send error, or "" if err is not a *Error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsConfigurationError reports whether err means the mailer is not configured
func IsConfigurationError(err error) bool {
	return KindOf(err) == KindConfiguration
}
