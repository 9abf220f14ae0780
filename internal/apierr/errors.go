package apierr

import "errors"

// Kind classifies a failure surfaced by the session and discovery layer.
type Kind int

const (
	KindUnknown Kind = iota
	// KindTransientDiscovery: a cached handle could not be verified. Never surfaced.
	KindTransientDiscovery
	// KindAuthInit: the transport or identity client could not be bootstrapped.
	KindAuthInit
	// KindAuthRequired: no valid credential and no way to obtain one silently.
	KindAuthRequired
	// KindResource: search and create were both exhausted.
	KindResource
	// KindIO: a read or append was rejected by the remote store.
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindTransientDiscovery:
		return "transient_discovery"
	case KindAuthInit:
		return "auth_init"
	case KindAuthRequired:
		return "auth_required"
	case KindResource:
		return "resource"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is.
var (
	ErrTransientDiscovery = &Error{Kind: KindTransientDiscovery}
	ErrAuthInit           = &Error{Kind: KindAuthInit}
	ErrAuthRequired       = &Error{Kind: KindAuthRequired}
	ErrResource           = &Error{Kind: KindResource}
	ErrIO                 = &Error{Kind: KindIO}
)

// Error is a classified failure carrying a normalized message.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	// LoginURL is set on KindAuthRequired when the user can complete consent
	// by visiting it.
	LoginURL string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Kind == e.Kind
}

// Wrap classifies err under kind, normalizing its message. A nil err yields nil.
// An err that already carries a kind keeps its message but is re-kinded.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Kind: kind, Op: op, Message: existing.Message, LoginURL: existing.LoginURL, Err: err}
	}
	return &Error{Kind: kind, Op: op, Message: Message(err), Err: err}
}

// New builds a classified error from a plain message.
func New(kind Kind, op, message string) error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
