// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package kstat

// RawRecord is a facility's view of one registered statistic: chain
// metadata only, no data section.
type RawRecord struct {
	KID      int32 // unique chain id, never reused by the facility
	Module   string
	Instance int32
	Name     string
	Class    string
	Kind     Kind
	Crtime   int64
	Snaptime int64
}

// RawSnapshot is the copied-out data section of one record at read time.
// Data is self-contained: string fields in named records reference byte
// offsets within Data, never foreign memory.
type RawSnapshot struct {
	Snaptime int64
	NData    uint32 // number of type-specific entries in Data
	Data     []byte
}

// Facility is a process-scoped connection to a statistics source. It is the
// seam between the reading model and whatever maintains the records: an
// emulated in-memory chain (sim), Linux procfs (procfs), or a native
// binding.
//
// Implementations own their chain ids: a KID identifies one record for the
// lifetime of the facility and is never reused, so a missing KID always
// means the record was removed or replaced.
type Facility interface {
	// Update refreshes the facility's view of the record chain and returns
	// the current chain generation. The generation advances whenever the
	// set of records changes.
	Update() (int32, error)

	// Chain returns the current record chain in the facility's native
	// registration order.
	Chain() ([]RawRecord, error)

	// Read copies out the data section of the record with the given chain
	// id. It returns an error wrapping ErrRecordNotFound if the id is no
	// longer in the chain.
	Read(kid int32) (RawSnapshot, error)

	// Close releases the facility. Records and snapshots already copied
	// out remain valid; further calls fail.
	Close() error
}
