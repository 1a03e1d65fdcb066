// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package sim provides an in-memory kstat.Facility: an emulated statistics
// chain with the same generation and copy-out semantics as a native
// facility. It backs the package tests and works as a portable statistics
// source for applications that publish their own records.
package sim

import (
	"errors"
	"fmt"

	"github.com/antimetal/kstat/pkg/kstat"
)

type record struct {
	raw   kstat.RawRecord
	ndata uint32
	data  []byte
}

// Facility is an emulated statistics facility. The zero value is not
// usable; construct with New. Like any single facility handle it is not
// safe for concurrent use.
type Facility struct {
	records    []*record
	nextKID    int32
	generation int32
	clock      int64 // fake hrtime, advances on every add and read
	closed     bool
	failErr    error

	// readHook, when set, runs before every Read with the requested KID.
	// Tests use it to mutate the chain mid-batch.
	readHook func(kid int32)
}

// New returns an empty facility at generation 1.
func New() *Facility {
	return &Facility{
		nextKID:    1,
		generation: 1,
		clock:      1,
	}
}

// AddNamed appends a named record to the chain and returns its KID.
// Adding a record advances the generation.
func (f *Facility) AddNamed(module string, instance int32, name, class string, fields []kstat.NamedValue) (int32, error) {
	data, err := kstat.EncodeNamed(fields)
	if err != nil {
		return 0, err
	}
	return f.add(module, instance, name, class, kstat.KindNamed, uint32(len(fields)), data), nil
}

// AddIO appends an I/O record to the chain and returns its KID.
func (f *Facility) AddIO(module string, instance int32, name, class string, io kstat.IOStats) int32 {
	return f.add(module, instance, name, class, kstat.KindIO, 1, kstat.EncodeIO(io))
}

// AddInterrupt appends an interrupt record to the chain and returns its KID.
func (f *Facility) AddInterrupt(module string, instance int32, name, class string, intr kstat.InterruptStats) int32 {
	return f.add(module, instance, name, class, kstat.KindInterrupt, 1, kstat.EncodeInterrupt(intr))
}

// AddTimer appends a timer record to the chain and returns its KID.
func (f *Facility) AddTimer(module string, instance int32, name, class string, timer kstat.TimerStats) (int32, error) {
	data, err := kstat.EncodeTimer(timer)
	if err != nil {
		return 0, err
	}
	return f.add(module, instance, name, class, kstat.KindTimer, 1, data), nil
}

// AddRaw appends a record with an arbitrary kind tag and data section,
// bypassing the encoders. Tests use it to exercise decode failure paths.
func (f *Facility) AddRaw(module string, instance int32, name, class string, kind kstat.Kind, ndata uint32, data []byte) int32 {
	d := make([]byte, len(data))
	copy(d, data)
	return f.add(module, instance, name, class, kind, ndata, d)
}

func (f *Facility) add(module string, instance int32, name, class string, kind kstat.Kind, ndata uint32, data []byte) int32 {
	f.clock++
	rec := &record{
		raw: kstat.RawRecord{
			KID:      f.nextKID,
			Module:   module,
			Instance: instance,
			Name:     name,
			Class:    class,
			Kind:     kind,
			Crtime:   f.clock,
			Snaptime: f.clock,
		},
		ndata: ndata,
		data:  data,
	}
	f.nextKID++
	f.generation++
	f.records = append(f.records, rec)
	return rec.raw.KID
}

// Remove deletes the record with the given KID, advancing the generation.
// It reports whether the record existed. KIDs are never reused.
func (f *Facility) Remove(kid int32) bool {
	for i, rec := range f.records {
		if rec.raw.KID == kid {
			f.records = append(f.records[:i], f.records[i+1:]...)
			f.generation++
			return true
		}
	}
	return false
}

// SetNamed replaces the field values of a live named record in place. The
// record's identity is unchanged, so the generation does not advance.
func (f *Facility) SetNamed(kid int32, fields []kstat.NamedValue) error {
	rec := f.lookup(kid)
	if rec == nil {
		return fmt.Errorf("sim: no record with kid %d", kid)
	}
	if rec.raw.Kind != kstat.KindNamed {
		return fmt.Errorf("sim: record %d is %s, not named", kid, rec.raw.Kind)
	}
	data, err := kstat.EncodeNamed(fields)
	if err != nil {
		return err
	}
	rec.ndata = uint32(len(fields))
	rec.data = data
	return nil
}

// Fail makes every subsequent facility call return err. Passing nil clears
// the injected failure.
func (f *Facility) Fail(err error) {
	f.failErr = err
}

// SetReadHook installs fn to run before every Read with the requested KID.
func (f *Facility) SetReadHook(fn func(kid int32)) {
	f.readHook = fn
}

// Generation returns the current chain generation without refreshing.
func (f *Facility) Generation() int32 {
	return f.generation
}

// Update implements kstat.Facility. The emulated chain is always current,
// so Update only reports the generation.
func (f *Facility) Update() (int32, error) {
	if err := f.check(); err != nil {
		return 0, err
	}
	return f.generation, nil
}

// Chain implements kstat.Facility.
func (f *Facility) Chain() ([]kstat.RawRecord, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	chain := make([]kstat.RawRecord, len(f.records))
	for i, rec := range f.records {
		chain[i] = rec.raw
	}
	return chain, nil
}

// Read implements kstat.Facility. The returned snapshot owns its bytes.
func (f *Facility) Read(kid int32) (kstat.RawSnapshot, error) {
	if err := f.check(); err != nil {
		return kstat.RawSnapshot{}, err
	}
	if f.readHook != nil {
		f.readHook(kid)
	}
	rec := f.lookup(kid)
	if rec == nil {
		return kstat.RawSnapshot{}, fmt.Errorf("sim: kid %d: %w", kid, kstat.ErrRecordNotFound)
	}
	f.clock++
	rec.raw.Snaptime = f.clock
	data := make([]byte, len(rec.data))
	copy(data, rec.data)
	return kstat.RawSnapshot{
		Snaptime: rec.raw.Snaptime,
		NData:    rec.ndata,
		Data:     data,
	}, nil
}

// Close implements kstat.Facility.
func (f *Facility) Close() error {
	if f.closed {
		return errors.New("sim: facility already closed")
	}
	f.closed = true
	return nil
}

func (f *Facility) check() error {
	if f.closed {
		return errors.New("sim: facility is closed")
	}
	return f.failErr
}

func (f *Facility) lookup(kid int32) *record {
	for _, rec := range f.records {
		if rec.raw.KID == kid {
			return rec
		}
	}
	return nil
}
