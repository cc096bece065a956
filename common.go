// Copyright and license notices follow the upstream project this code
// derives its dependency stack and idiom from; see the LICENSE file.

package chanx

import (
	"unsafe"

	"code.hybscloud.com/atomix"
)

// roundToPow2 rounds n up to the next power of 2, with a floor of 1 — a
// request of 0 or 1 yields a single-slot channel, matching
// original_source/spsc/bounded/imp.rs's checked_next_power_of_two(), which
// maps both 0 and 1 to a capacity of 1 rather than rounding up to 2.
// Panics if n exceeds maxBoundedCapacity, matching this module's
// panic-at-construction policy for capacities that can never be satisfied.
func roundToPow2(n int) int {
	if n < 1 {
		n = 1
	}
	if n > maxBoundedCapacity {
		panic("chanx: capacity exceeds maximum bounded capacity")
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// ptrSize is the size of a pointer in bytes.
const ptrSize = int(unsafe.Sizeof(uintptr(0)))

// pad is cache line padding to prevent false sharing.
type pad [64]byte

// padShort is padding to fill a cache line after an 8-byte field.
type padShort [64 - 8]byte

// nextChannelID is the package-wide source of stable channel identities.
//
// The original implementation uses the address of the packet's shared
// container as its id. Go values can move before they're pinned behind a
// reachable pointer, so this module assigns an id once, at construction,
// from a monotonic counter instead — see DESIGN.md Open Question 1.
var nextChannelID atomix.Uint64

func allocChannelID() uint64 {
	return nextChannelID.AddAcqRel(1)
}

// maxBoundedCapacity is the largest capacity a bounded flavor accepts before
// construction panics. All counters in this module are full 64-bit values
// (see DESIGN.md Open Question 2), so the historical 32-bit-build distinction
// collapses to a single ceiling.
const maxBoundedCapacity = 1 << 31
