// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build race

package chanx

// RaceEnabled is true when the race detector is active.
// Used by tests to shrink the iteration counts of their concurrent cases,
// which run much slower under the race detector.
const RaceEnabled = true
