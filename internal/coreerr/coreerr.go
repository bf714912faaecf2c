// Package coreerr defines the error taxonomy shared by every core component.
//
// Kinds are not distinct Go types: callers construct an *Error with a Kind and
// a wrapped cause, and test for a kind with errors.Is against the Sentinel
// values below, or with As against *Error when they need the Kind itself.
package coreerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for recovery and client-response purposes.
type Kind int

const (
	// KindUnknown is the zero value; never constructed deliberately.
	KindUnknown Kind = iota
	// KindTransientIO covers short reads, EAGAIN and similar — safe to retry.
	KindTransientIO
	// KindPermanentIO covers permission errors and ENOENT mid-stream.
	KindPermanentIO
	// KindProtocolMalformed covers unparseable SOAP/SSDP input.
	KindProtocolMalformed
	// KindUnsupportedAction covers a recognized but unimplemented SOAP action.
	KindUnsupportedAction
	// KindObjectNotFound covers a Browse/GetObject lookup miss.
	KindObjectNotFound
	// KindUnsupportedSearch covers a Search criteria the engine cannot evaluate.
	KindUnsupportedSearch
	// KindStoreCorruption covers a store that failed its integrity check.
	KindStoreCorruption
	// KindNetworkLoss covers the primary interface going away.
	KindNetworkLoss
	// KindWatcherOverflow covers a filesystem watcher queue overflow.
	KindWatcherOverflow
	// KindPortBindDenied covers every configured port being unavailable.
	KindPortBindDenied
)

func (k Kind) String() string {
	switch k {
	case KindTransientIO:
		return "transient_io"
	case KindPermanentIO:
		return "permanent_io"
	case KindProtocolMalformed:
		return "protocol_malformed"
	case KindUnsupportedAction:
		return "unsupported_action"
	case KindObjectNotFound:
		return "object_not_found"
	case KindUnsupportedSearch:
		return "unsupported_search"
	case KindStoreCorruption:
		return "store_corruption"
	case KindNetworkLoss:
		return "network_loss"
	case KindWatcherOverflow:
		return "watcher_overflow"
	case KindPortBindDenied:
		return "port_bind_denied"
	default:
		return "unknown"
	}
}

// Error wraps a Kind and an underlying cause with a short human message.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is supports errors.Is(err, coreerr.ErrObjectNotFound) style checks by
// comparing Kind when the target is itself a *Error with no Cause set.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) && t.Cause == nil {
		return e.Kind == t.Kind
	}
	return false
}

// New constructs an *Error of the given kind wrapping cause, which may be nil.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Sentinel errors for use with errors.Is, one per Kind, with no cause.
var (
	ErrTransientIO       = &Error{Kind: KindTransientIO}
	ErrPermanentIO       = &Error{Kind: KindPermanentIO}
	ErrProtocolMalformed = &Error{Kind: KindProtocolMalformed}
	ErrUnsupportedAction = &Error{Kind: KindUnsupportedAction}
	ErrObjectNotFound    = &Error{Kind: KindObjectNotFound}
	ErrUnsupportedSearch = &Error{Kind: KindUnsupportedSearch}
	ErrStoreCorruption   = &Error{Kind: KindStoreCorruption}
	ErrNetworkLoss       = &Error{Kind: KindNetworkLoss}
	ErrWatcherOverflow   = &Error{Kind: KindWatcherOverflow}
	ErrPortBindDenied    = &Error{Kind: KindPortBindDenied}
)

// KindOf extracts the Kind from err if it is (or wraps) a *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return KindUnknown, false
}
