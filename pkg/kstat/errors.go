// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package kstat

import "errors"

var (
	// ErrFacilityUnavailable indicates the statistics facility could not be
	// reached or operated: open failed, the handle is closed, or an
	// underlying facility call failed. The operation is not retried; callers
	// may retry by reopening.
	ErrFacilityUnavailable = errors.New("statistics facility unavailable")

	// ErrStale indicates a previously enumerated descriptor no longer
	// matches live state: the record was removed or replaced after the
	// chain generation advanced. Recoverable by re-enumerating.
	ErrStale = errors.New("stale record descriptor")

	// ErrDecodeFailure indicates a record's raw data did not match the
	// layout its kind tag requires, or the kind has no decoding path.
	// Retrying reproduces it; callers should treat it as a hard error.
	ErrDecodeFailure = errors.New("record decode failure")

	// ErrRecordNotFound is returned by Facility.Read when the requested
	// chain id is not in the current chain. The Reader surfaces it to
	// callers as ErrStale.
	ErrRecordNotFound = errors.New("record not found in chain")
)
