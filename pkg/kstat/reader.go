// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package kstat

import (
	"errors"
	"fmt"

	"github.com/go-logr/logr"
)

// Reader is the typed reading surface over an opened Facility. It is not
// safe for concurrent use; serialize calls or open one Reader per
// goroutine.
type Reader struct {
	facility   Facility
	logger     logr.Logger
	generation int32
	closed     bool
}

// Option configures a Reader at Open time.
type Option func(*Reader)

// WithLogger sets the logger the Reader uses for low-volume diagnostics,
// such as stale records skipped by ReadAll.
func WithLogger(logger logr.Logger) Option {
	return func(r *Reader) {
		r.logger = logger.WithName("kstat")
	}
}

// Open wraps an opened Facility in a Reader, taking ownership of it. The
// initial chain update runs here; if it fails the facility is closed and
// no Reader is produced.
func Open(facility Facility, opts ...Option) (*Reader, error) {
	if facility == nil {
		return nil, fmt.Errorf("open: %w: no facility", ErrFacilityUnavailable)
	}
	r := &Reader{
		facility: facility,
		logger:   logr.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}

	gen, err := facility.Update()
	if err != nil {
		_ = facility.Close()
		return nil, fmt.Errorf("open: %w: %w", ErrFacilityUnavailable, err)
	}
	r.generation = gen
	return r, nil
}

// Close releases the facility. Close is idempotent; operations after the
// first Close fail with ErrFacilityUnavailable.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.facility.Close()
}

// Generation returns the chain generation as of the last facility update.
func (r *Reader) Generation() int32 {
	return r.generation
}

// Enumerate refreshes the chain view and returns descriptors for every
// record matching the filter, in the facility's native chain order. A nil
// filter matches everything. The result is a snapshot; calling Enumerate
// again restarts against the live chain.
func (r *Reader) Enumerate(filter *Filter) ([]Descriptor, error) {
	if err := r.refresh("enumerate"); err != nil {
		return nil, err
	}
	chain, err := r.facility.Chain()
	if err != nil {
		return nil, fmt.Errorf("enumerate: %w: %w", ErrFacilityUnavailable, err)
	}

	descs := make([]Descriptor, 0, len(chain))
	for _, rec := range chain {
		if !filter.Match(rec.Module, rec.Instance, rec.Name, rec.Class) {
			continue
		}
		descs = append(descs, Descriptor{
			KID:        rec.KID,
			Module:     rec.Module,
			Instance:   rec.Instance,
			Name:       rec.Name,
			Class:      rec.Class,
			Kind:       rec.Kind,
			Crtime:     rec.Crtime,
			Snaptime:   rec.Snaptime,
			Generation: r.generation,
		})
	}
	return descs, nil
}

// Read refreshes the chain view, copies out the descriptor's data section,
// and decodes it. It fails with ErrStale if the record was removed or
// replaced since enumeration, and with ErrDecodeFailure if the data does
// not match the kind's layout.
func (r *Reader) Read(desc Descriptor) (*DecodedRecord, error) {
	if err := r.refresh("read"); err != nil {
		return nil, err
	}
	return r.readRecord(desc)
}

// ReadAll enumerates and reads every record matching the filter. Records
// that go stale mid-batch are skipped; any other error aborts the batch.
func (r *Reader) ReadAll(filter *Filter) ([]DecodedRecord, error) {
	descs, err := r.Enumerate(filter)
	if err != nil {
		return nil, err
	}

	records := make([]DecodedRecord, 0, len(descs))
	for _, desc := range descs {
		rec, err := r.readRecord(desc)
		if err != nil {
			if errors.Is(err, ErrStale) {
				r.logger.V(1).Info("skipping stale record",
					"module", desc.Module, "instance", desc.Instance, "name", desc.Name)
				continue
			}
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, nil
}

// readRecord reads and decodes one descriptor against the current chain
// view, without refreshing it.
func (r *Reader) readRecord(desc Descriptor) (*DecodedRecord, error) {
	snap, err := r.facility.Read(desc.KID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, fmt.Errorf("read %s: %w", desc, ErrStale)
		}
		return nil, fmt.Errorf("read %s: %w: %w", desc, ErrFacilityUnavailable, err)
	}

	rec := &DecodedRecord{
		Module:   desc.Module,
		Instance: desc.Instance,
		Name:     desc.Name,
		Class:    desc.Class,
		Kind:     desc.Kind,
		Crtime:   desc.Crtime,
		Snaptime: snap.Snaptime,
	}
	if err := decodeRecord(rec, snap); err != nil {
		return nil, fmt.Errorf("read %s: %w", desc, err)
	}
	return rec, nil
}

// refresh updates the chain view ahead of an operation.
func (r *Reader) refresh(op string) error {
	if r.closed {
		return fmt.Errorf("%s: %w: reader is closed", op, ErrFacilityUnavailable)
	}
	gen, err := r.facility.Update()
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrFacilityUnavailable, err)
	}
	r.generation = gen
	return nil
}
