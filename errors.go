// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chanx

import "errors"

// Kind is a closed enumeration of the failure modes every channel operation
// can report. Kinds are orthogonal to the message type carried by a channel.
type Kind int

const (
	// Full indicates a non-blocking send found a full bounded buffer while
	// the counterpart side is still live.
	Full Kind = iota + 1
	// Empty indicates a non-blocking receive found an empty buffer while
	// the counterpart side is still live.
	Empty
	// Disconnected indicates the counterpart is gone; no further progress
	// is possible in that direction.
	Disconnected
	// Deadlock indicates, for MPMC bounded channels only, that every live
	// peer is simultaneously blocked on the same side of a full/empty
	// boundary.
	Deadlock
)

func (k Kind) String() string {
	switch k {
	case Full:
		return "full"
	case Empty:
		return "empty"
	case Disconnected:
		return "disconnected"
	case Deadlock:
		return "deadlock"
	default:
		return "unknown"
	}
}

// Error is the error type returned by every channel operation in this
// module. It carries a closed [Kind] and is comparable with [errors.Is]
// against the package-level sentinels below.
type Error struct {
	Kind Kind
}

func (e *Error) Error() string {
	return "chanx: " + e.Kind.String()
}

// Is makes *Error participate in errors.Is comparisons against the sentinel
// values below, matching on Kind rather than pointer identity.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel errors for use with errors.Is. Every *Error this package returns
// satisfies errors.Is against exactly one of these.
var (
	ErrFull         = &Error{Kind: Full}
	ErrEmpty        = &Error{Kind: Empty}
	ErrDisconnected = &Error{Kind: Disconnected}
	ErrDeadlock     = &Error{Kind: Deadlock}
)

// IsFull reports whether err is a Full error.
func IsFull(err error) bool { return errors.Is(err, ErrFull) }

// IsEmpty reports whether err is an Empty error.
func IsEmpty(err error) bool { return errors.Is(err, ErrEmpty) }

// IsDisconnected reports whether err is a Disconnected error.
func IsDisconnected(err error) bool { return errors.Is(err, ErrDisconnected) }

// IsDeadlock reports whether err is a Deadlock error.
func IsDeadlock(err error) bool { return errors.Is(err, ErrDeadlock) }
