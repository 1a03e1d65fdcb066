// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package procfs implements a portable kstat.Facility backed by Linux
// procfs. It presents classic kstat records assembled from /proc data:
//
//	unix:0:system_misc (misc)   load averages, process count, boot time
//	unix:0:system_pages (pages) physical memory in pages
//	cpu:N:sys (misc)            per-cpu time accounting in nanoseconds
//	sd:N:<device> (disk)        per-disk I/O aggregates
//
// The chain generation advances when the record set changes (CPU hotplug,
// disks appearing or disappearing); records keep their chain ids across
// updates, so readers see removals as stale descriptors, not wrong data.
package procfs

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/antimetal/kstat/pkg/kstat"
	"github.com/go-logr/logr"
)

// Config holds the facility's view of the host filesystem. Paths must be
// absolute; tests point HostProcPath at a fixture tree.
type Config struct {
	HostProcPath string
}

func DefaultConfig() Config {
	return Config{HostProcPath: "/proc"}
}

func (c Config) Validate() error {
	if c.HostProcPath == "" {
		return fmt.Errorf("HostProcPath is required but not provided")
	}
	if !filepath.IsAbs(c.HostProcPath) {
		return fmt.Errorf("HostProcPath %q must be an absolute path", c.HostProcPath)
	}
	return nil
}

// record pairs chain metadata with a closure producing a fresh snapshot
// from the current procfs contents.
type record struct {
	raw  kstat.RawRecord
	read func() (kstat.RawSnapshot, error)
}

// spec is one record the current scan says should exist.
type spec struct {
	key      string // identity across updates
	module   string
	instance int32
	name     string
	class    string
	kind     kstat.Kind
	read     func() (kstat.RawSnapshot, error)
}

// Facility reads kernel statistics out of procfs. Not safe for concurrent
// use, like any single facility handle.
type Facility struct {
	logger   logr.Logger
	procPath string

	records       []*record
	index         map[string]*record
	diskInstances map[string]int32
	nextKID       int32
	diskSeq       int32
	generation    int32
	closed        bool
}

// Open validates the config and connects to procfs. The record chain is
// assembled on the first Update; Open only verifies the source exists.
func Open(logger logr.Logger, config Config) (*Facility, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	f := &Facility{
		logger:        logger.WithName("procfs"),
		procPath:      config.HostProcPath,
		index:         make(map[string]*record),
		diskInstances: make(map[string]int32),
		nextKID:       1,
	}
	// Probe the one file every scan depends on, so a missing or
	// inaccessible proc tree fails at open rather than first use.
	if _, err := readProcFile(f.statPath()); err != nil {
		return nil, fmt.Errorf("opening procfs statistics: %w", err)
	}
	return f, nil
}

func (f *Facility) statPath() string      { return filepath.Join(f.procPath, "stat") }
func (f *Facility) loadavgPath() string   { return filepath.Join(f.procPath, "loadavg") }
func (f *Facility) meminfoPath() string   { return filepath.Join(f.procPath, "meminfo") }
func (f *Facility) diskstatsPath() string { return filepath.Join(f.procPath, "diskstats") }

// Update implements kstat.Facility: re-scan procfs and rebuild the chain,
// advancing the generation if the record set changed.
func (f *Facility) Update() (int32, error) {
	if f.closed {
		return 0, errors.New("procfs: facility is closed")
	}
	specs, err := f.scan()
	if err != nil {
		return 0, fmt.Errorf("procfs: scanning record chain: %w", err)
	}

	changed := len(specs) != len(f.records)
	records := make([]*record, 0, len(specs))
	index := make(map[string]*record, len(specs))
	now := hrtime()

	for _, s := range specs {
		if existing, ok := f.index[s.key]; ok {
			existing.read = s.read
			records = append(records, existing)
			index[s.key] = existing
			continue
		}
		changed = true
		rec := &record{
			raw: kstat.RawRecord{
				KID:      f.nextKID,
				Module:   s.module,
				Instance: s.instance,
				Name:     s.name,
				Class:    s.class,
				Kind:     s.kind,
				Crtime:   now,
				Snaptime: now,
			},
			read: s.read,
		}
		f.nextKID++
		records = append(records, rec)
		index[s.key] = rec
	}

	f.records = records
	f.index = index
	if changed {
		f.generation++
		f.logger.V(1).Info("record chain changed", "generation", f.generation, "records", len(records))
	}
	return f.generation, nil
}

// Chain implements kstat.Facility.
func (f *Facility) Chain() ([]kstat.RawRecord, error) {
	if f.closed {
		return nil, errors.New("procfs: facility is closed")
	}
	chain := make([]kstat.RawRecord, len(f.records))
	for i, rec := range f.records {
		chain[i] = rec.raw
	}
	return chain, nil
}

// Read implements kstat.Facility. Data is re-read from procfs on every
// call; a record whose source vanished since the last Update reads as
// not found, which the Reader surfaces as stale.
func (f *Facility) Read(kid int32) (kstat.RawSnapshot, error) {
	if f.closed {
		return kstat.RawSnapshot{}, errors.New("procfs: facility is closed")
	}
	for _, rec := range f.records {
		if rec.raw.KID != kid {
			continue
		}
		snap, err := rec.read()
		if err != nil {
			return kstat.RawSnapshot{}, err
		}
		rec.raw.Snaptime = snap.Snaptime
		return snap, nil
	}
	return kstat.RawSnapshot{}, fmt.Errorf("procfs: kid %d: %w", kid, kstat.ErrRecordNotFound)
}

// Close implements kstat.Facility.
func (f *Facility) Close() error {
	if f.closed {
		return errors.New("procfs: facility already closed")
	}
	f.closed = true
	return nil
}

// scan builds the record specs the current procfs contents support, in
// chain order: system records, per-cpu records, then disks.
func (f *Facility) scan() ([]spec, error) {
	cpus, err := scanCPUs(f.statPath())
	if err != nil {
		return nil, err
	}

	specs := []spec{
		{
			key: "unix:0:system_misc", module: "unix", instance: 0,
			name: "system_misc", class: "misc", kind: kstat.KindNamed,
			read: func() (kstat.RawSnapshot, error) {
				return readSystemMisc(f.loadavgPath(), f.statPath())
			},
		},
		{
			key: "unix:0:system_pages", module: "unix", instance: 0,
			name: "system_pages", class: "pages", kind: kstat.KindNamed,
			read: func() (kstat.RawSnapshot, error) {
				return readSystemPages(f.meminfoPath())
			},
		},
	}

	for _, cpu := range cpus {
		cpu := cpu
		specs = append(specs, spec{
			key:    fmt.Sprintf("cpu:%d:sys", cpu),
			module: "cpu", instance: cpu, name: "sys", class: "misc",
			kind: kstat.KindNamed,
			read: func() (kstat.RawSnapshot, error) {
				return readCPUSys(f.statPath(), cpu)
			},
		})
	}

	// Disks keep their instance number for the facility's lifetime even
	// if they disappear and return, so instances stay stable across
	// hotplug the way chain ids do.
	devices, err := scanDisks(f.diskstatsPath())
	if err != nil {
		f.logger.V(1).Info("no disk statistics available", "error", err.Error())
		devices = nil
	}
	for _, dev := range devices {
		dev := dev
		key := "sd:" + dev
		instance := f.diskInstance(key)
		specs = append(specs, spec{
			key:    key,
			module: "sd", instance: instance, name: dev, class: "disk",
			kind: kstat.KindIO,
			read: func() (kstat.RawSnapshot, error) {
				return readDiskIO(f.diskstatsPath(), dev)
			},
		})
	}
	return specs, nil
}

// diskInstance returns the instance for a disk key, stable for the
// facility's lifetime even across remove-and-return.
func (f *Facility) diskInstance(key string) int32 {
	if instance, ok := f.diskInstances[key]; ok {
		return instance
	}
	instance := f.diskSeq
	f.diskSeq++
	f.diskInstances[key] = instance
	return instance
}
