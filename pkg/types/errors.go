package types

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure so callers can render a message or pick an exit
// code without inspecting concrete error types.
type Kind int

// Error kinds.
const (
	KindUnknown Kind = iota
	KindValidation
	KindConversion
	KindResolution
	KindIO
	KindCancelled
	KindInvariant
)

var kindNames = map[Kind]string{
	KindUnknown:    "unknown",
	KindValidation: "validation",
	KindConversion: "conversion",
	KindResolution: "resolution",
	KindIO:         "io",
	KindCancelled:  "cancelled",
	KindInvariant:  "invariant",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Validation and conversion errors.
var (
	ErrInvalidValue   = errors.New("invalid value")
	ErrEmptyValue     = errors.New("empty value not allowed")
	ErrTypeMismatch   = errors.New("type mismatch")
	ErrEmptyScheme    = errors.New("scheme has no attributes")
	ErrEmptyEntry     = errors.New("entry has no populated attributes")
	ErrMalformedInput = errors.New("malformed input")
)

// Resolution errors.
var (
	ErrSchemeNotFound         = errors.New("scheme not found")
	ErrAttributeNotFound      = errors.New("attribute not found")
	ErrReferenceValueNotFound = errors.New("referenced value not found")
	ErrEntryNotFound          = errors.New("entry not found")
	ErrUnknownDataType        = errors.New("unknown data type")
	ErrUnknownFormat          = errors.New("unknown storage format")
)

// I/O errors.
var (
	ErrFileNotFound = errors.New("file not found")
	ErrReadOnly     = errors.New("file system is read-only")
	ErrUnsupported  = errors.New("operation not supported")
	ErrClosed       = errors.New("file system is closed")
)

// ErrCancelled reports an operation that observed cancellation. It is never
// classified as a failure of the operation itself.
var ErrCancelled = errors.New("operation cancelled")

// Invariant errors.
var (
	ErrInvalidName          = errors.New("invalid name")
	ErrDuplicateAttribute   = errors.New("duplicate attribute name")
	ErrMultipleIdentifiers  = errors.New("scheme already has an identifier attribute")
	ErrNoIdentifier         = errors.New("scheme has no identifier attribute")
	ErrSchemeExists         = errors.New("scheme already registered")
	ErrManifestSelfRecord   = errors.New("manifest does not contain its own record")
	ErrManifestNotLoaded    = errors.New("manifest is not registered")
	ErrIndexOutOfRange      = errors.New("index out of range")
	ErrNotExecuted          = errors.New("command has not been executed")
	ErrNothingToUndo        = errors.New("nothing to undo")
	ErrNothingToRedo        = errors.New("nothing to redo")
	ErrInvalidHistorySize   = errors.New("history size must be positive")
	ErrNilArgument          = errors.New("required argument is nil")
	ErrPanic                = errors.New("panic during operation")
	ErrManifestSchemeTarget = errors.New("operation not allowed on the manifest scheme")
)

var sentinelKinds = map[error]Kind{
	ErrInvalidValue:           KindValidation,
	ErrEmptyValue:             KindValidation,
	ErrTypeMismatch:           KindConversion,
	ErrEmptyScheme:            KindValidation,
	ErrEmptyEntry:             KindValidation,
	ErrMalformedInput:         KindConversion,
	ErrSchemeNotFound:         KindResolution,
	ErrAttributeNotFound:      KindResolution,
	ErrReferenceValueNotFound: KindConversion,
	ErrEntryNotFound:          KindResolution,
	ErrUnknownDataType:        KindResolution,
	ErrUnknownFormat:          KindResolution,
	ErrFileNotFound:           KindIO,
	ErrReadOnly:               KindIO,
	ErrUnsupported:            KindIO,
	ErrClosed:                 KindIO,
	ErrCancelled:              KindCancelled,
	context.Canceled:          KindCancelled,
	context.DeadlineExceeded:  KindCancelled,
}

// Error is the tagged failure returned by fallible operations. It carries the
// failing operation, the diagnostic scope active when it failed, and the
// underlying cause.
type Error struct {
	Kind  Kind
	Op    string
	Scope Scope
	Err   error
}

// NewError wraps err with a kind, operation name and scope. A nil err yields nil.
func NewError(kind Kind, op string, scope Scope, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Scope: scope, Err: err}
}

// Errorf builds an Error whose cause is a formatted message. Use %w in format
// to keep a sentinel matchable with errors.Is.
func Errorf(kind Kind, op string, scope Scope, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Scope: scope, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if s := e.Scope.String(); s != "" {
		b.WriteString("[")
		b.WriteString(s)
		b.WriteString("] ")
	}
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		b.WriteString(e.Kind.String())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf classifies err. Tagged errors report their own kind; wrapped
// sentinels and context errors are mapped; anything else is KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if IsCancelled(err) {
		return KindCancelled
	}
	var te *Error
	if errors.As(err, &te) && te.Kind != KindUnknown {
		return te.Kind
	}
	for sentinel, kind := range sentinelKinds {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindUnknown
}

// IsCancelled reports whether err represents an observed cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Cancelled returns a Cancelled-kind error wrapping cause, or ErrCancelled when
// cause is nil.
func Cancelled(op string, scope Scope, cause error) error {
	if cause == nil {
		cause = ErrCancelled
	} else if !errors.Is(cause, ErrCancelled) {
		cause = fmt.Errorf("%w: %w", ErrCancelled, cause)
	}
	return &Error{Kind: KindCancelled, Op: op, Scope: scope, Err: cause}
}
