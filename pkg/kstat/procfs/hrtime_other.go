// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

//go:build !linux

package procfs

import "time"

var processStart = time.Now()

// hrtime returns a monotonic nanosecond clock. Off Linux there is no
// procfs to read, but tests run against fixture trees on any platform and
// only need snaptimes that advance.
func hrtime() int64 {
	return int64(time.Since(processStart))
}
