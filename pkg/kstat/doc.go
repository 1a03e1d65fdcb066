// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package kstat reads kernel statistics in the kstat model: a facility
// maintains an ordered chain of statistic records, each identified by a
// module:instance:name triplet plus a class, and each carrying a raw data
// section whose layout is selected by a fixed kind tag.
//
// The package separates the statistics source from the reading model. A
// Facility is the process-scoped connection to a statistics source; it
// exposes the chain, a generation counter that advances whenever the chain
// changes, and a copy-out read of one record's data section. The sim and
// procfs subpackages provide an in-memory emulated facility and a Linux
// /proc-backed facility; a cgo binding to a native libkstat would slot in
// behind the same interface.
//
// A Reader wraps an opened Facility and provides the typed surface:
// Enumerate walks the chain and yields Descriptors matching an optional
// {module, instance, name, class} filter, Read decodes one descriptor's data
// into a DecodedRecord, and ReadAll composes the two, skipping records that
// went stale mid-batch. Decoded records are full copies; nothing returned by
// this package references facility-owned memory.
//
// Staleness: a Descriptor captures the chain generation at enumeration time.
// If the facility's chain changes and the record is removed or replaced,
// reading that descriptor fails with ErrStale rather than returning data for
// the wrong record. Re-enumerating recovers.
//
// A Reader is not safe for concurrent use. The facility associates cursor
// and generation state with the handle, so callers must serialize calls on a
// single Reader or open one Reader per goroutine. Independent readers over
// independent facilities are fully parallel.
package kstat
