// Package errs holds the error taxonomy from spec.md §7, ported from
// _examples/original_source/crates/unbase/src/error.rs. RetrieveError and
// WriteError reference each other (a WriteError can wrap a RetrieveError and
// vice versa); per spec.md §9 these stay as two disjoint tagged unions
// rather than a unified mega-error, each boxing the other behind an
// interface instead of a recursive enum.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// RetrieveKind enumerates the ways a read can fail.
type RetrieveKind int

const (
	NotFound RetrieveKind = iota
	NotFoundByDeadline
	AccessDenied
	InvalidHeadMissingEntityID
	InvalidHeadEmpty
	IndexNotInitialized
	SlabError
	MemoLineageError
	RetrieveFromWrite
)

func (k RetrieveKind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case NotFoundByDeadline:
		return "NotFoundByDeadline"
	case AccessDenied:
		return "AccessDenied"
	case InvalidHeadMissingEntityID:
		return "InvalidHead(MissingEntityId)"
	case InvalidHeadEmpty:
		return "InvalidHead(Empty)"
	case IndexNotInitialized:
		return "IndexNotInitialized"
	case SlabError:
		return "SlabError"
	case MemoLineageError:
		return "MemoLineageError"
	case RetrieveFromWrite:
		return "WriteError"
	default:
		return "Unknown"
	}
}

// RetrieveError is returned by get_memo/get_subject_by_id style operations.
type RetrieveError struct {
	Kind  RetrieveKind
	Cause error
}

func (e *RetrieveError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("retrieve: %s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("retrieve: %s", e.Kind)
}

func (e *RetrieveError) Unwrap() error { return e.Cause }

// NewRetrieveError wraps cause (if any) with errors.Wrap so the call site is
// preserved in the error chain.
func NewRetrieveError(kind RetrieveKind, cause error) *RetrieveError {
	if cause != nil {
		cause = errors.Wrap(cause, kind.String())
	}
	return &RetrieveError{Kind: kind, Cause: cause}
}

// FromWriteError lifts a WriteError into a RetrieveError, mirroring the
// original's `impl From<WriteError> for RetrieveError`.
func FromWriteError(w *WriteError) *RetrieveError {
	return &RetrieveError{Kind: RetrieveFromWrite, Cause: w}
}

// WriteKind enumerates the ways a write can fail.
type WriteKind int

const (
	WriteUnknown WriteKind = iota
	BadTarget
	WriteFromRetrieve
)

func (k WriteKind) String() string {
	switch k {
	case WriteUnknown:
		return "Unknown"
	case BadTarget:
		return "BadTarget"
	case WriteFromRetrieve:
		return "RetrieveError"
	default:
		return "Unknown"
	}
}

// WriteError is returned by set_value/set_relation style operations.
type WriteError struct {
	Kind  WriteKind
	Cause error
}

func (e *WriteError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("write: %s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("write: %s", e.Kind)
}

func (e *WriteError) Unwrap() error { return e.Cause }

func NewWriteError(kind WriteKind, cause error) *WriteError {
	if cause != nil {
		cause = errors.Wrap(cause, kind.String())
	}
	return &WriteError{Kind: kind, Cause: cause}
}

// FromRetrieveError lifts a RetrieveError into a WriteError, mirroring the
// original's `impl From<RetrieveError> for WriteError`.
func FromRetrieveError(r *RetrieveError) *WriteError {
	return &WriteError{Kind: WriteFromRetrieve, Cause: r}
}

// TransmitKind enumerates transport-layer send failures.
type TransmitKind int

const (
	SlabPresenceNotFound TransmitKind = iota
	InvalidTransmitter
)

func (k TransmitKind) String() string {
	switch k {
	case SlabPresenceNotFound:
		return "SlabPresenceNotFound"
	case InvalidTransmitter:
		return "InvalidTransmitter"
	default:
		return "Unknown"
	}
}

type TransmitError struct {
	Kind TransmitKind
}

func (e *TransmitError) Error() string { return "transmit: " + e.Kind.String() }

// ObserveError wraps failures from subscription/observation plumbing.
type ObserveError struct{ Cause error }

func (e *ObserveError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("observe: unknown: %v", e.Cause)
	}
	return "observe: unknown"
}

// StorageOpDeclined is returned by a storage backend refusing an operation,
// e.g. because replication hasn't reached the configured floor yet.
type StorageOpDeclined struct {
	Reason string
}

func (e *StorageOpDeclined) Error() string { return "storage op declined: " + e.Reason }

var ErrInsufficientPeering = &StorageOpDeclined{Reason: "InsufficientPeering"}

// Structural / sentinel errors, per spec.md §7.
var (
	ErrSlabOffline        = errors.New("slab offline")
	ErrSlabNotFound       = errors.New("slab not found")
	ErrChannelNotFound    = errors.New("channel not found")
	ErrBadAddress         = errors.New("bad address")
	ErrAddressNotFound    = errors.New("address not found")
	ErrTransmitterNotFound = errors.New("transmitter not found")
)
