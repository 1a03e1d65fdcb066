// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package procfs

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/antimetal/kstat/pkg/kstat"
)

const (
	// loadScale converts load averages to the fixed-point representation
	// the classic avenrun_* statistics use.
	loadScale = 256

	// nsecPerJiffy converts USER_HZ (100) ticks to nanoseconds.
	nsecPerJiffy = 10_000_000
)

// readSystemMisc assembles the unix:0:system_misc record from
// /proc/loadavg (load averages, process count) and /proc/stat (btime).
func readSystemMisc(loadavgPath, statPath string) (kstat.RawSnapshot, error) {
	data, err := readProcFile(loadavgPath)
	if err != nil {
		return kstat.RawSnapshot{}, err
	}

	// Format: 0.00 0.01 0.05 1/234 5678
	fields := strings.Fields(data)
	if len(fields) < 5 {
		return kstat.RawSnapshot{}, fmt.Errorf("unexpected format in %s: got %d fields, expected 5",
			loadavgPath, len(fields))
	}

	var loads [3]uint64
	for i := 0; i < 3; i++ {
		load, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return kstat.RawSnapshot{}, fmt.Errorf("failed to parse load average: %w", err)
		}
		loads[i] = uint64(load * loadScale)
	}

	procParts := strings.Split(fields[3], "/")
	if len(procParts) != 2 {
		return kstat.RawSnapshot{}, fmt.Errorf("unexpected process count format: %s", fields[3])
	}
	nproc, err := strconv.ParseUint(procParts[1], 10, 32)
	if err != nil {
		return kstat.RawSnapshot{}, fmt.Errorf("failed to parse total processes: %w", err)
	}

	bootTime, err := scanStatField(statPath, "btime")
	if err != nil {
		return kstat.RawSnapshot{}, err
	}

	return namedSnapshot([]kstat.NamedValue{
		{Name: "avenrun_1min", Type: kstat.NamedTypeUint32, UintVal: loads[0]},
		{Name: "avenrun_5min", Type: kstat.NamedTypeUint32, UintVal: loads[1]},
		{Name: "avenrun_15min", Type: kstat.NamedTypeUint32, UintVal: loads[2]},
		{Name: "nproc", Type: kstat.NamedTypeUint32, UintVal: nproc},
		{Name: "boot_time", Type: kstat.NamedTypeUint32, UintVal: bootTime},
	})
}

// readSystemPages assembles the unix:0:system_pages record from
// /proc/meminfo, converting kB amounts to pages.
func readSystemPages(meminfoPath string) (kstat.RawSnapshot, error) {
	file, err := os.Open(meminfoPath)
	if err != nil {
		return kstat.RawSnapshot{}, fmt.Errorf("failed to open %s: %w", meminfoPath, err)
	}
	defer file.Close()

	kb := make(map[string]uint64, 4)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		// Format: MemTotal:       16384000 kB
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		key := strings.TrimSuffix(fields[0], ":")
		switch key {
		case "MemTotal", "MemFree", "MemAvailable":
			value, err := strconv.ParseUint(fields[1], 10, 64)
			if err != nil {
				continue
			}
			kb[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return kstat.RawSnapshot{}, fmt.Errorf("error reading %s: %w", meminfoPath, err)
	}
	if _, ok := kb["MemTotal"]; !ok {
		return kstat.RawSnapshot{}, fmt.Errorf("MemTotal missing from %s", meminfoPath)
	}

	pageSize := uint64(os.Getpagesize())
	pages := func(key string) uint64 { return kb[key] * 1024 / pageSize }

	return namedSnapshot([]kstat.NamedValue{
		{Name: "physmem", Type: kstat.NamedTypeUint64, UintVal: pages("MemTotal")},
		{Name: "pagestotal", Type: kstat.NamedTypeUint64, UintVal: pages("MemTotal")},
		{Name: "pagesfree", Type: kstat.NamedTypeUint64, UintVal: pages("MemFree")},
		{Name: "freemem", Type: kstat.NamedTypeUint64, UintVal: pages("MemFree")},
		{Name: "availrmem", Type: kstat.NamedTypeUint64, UintVal: pages("MemAvailable")},
	})
}

// readCPUSys assembles a cpu:N:sys record from the cpu's /proc/stat line,
// converting jiffies to nanoseconds.
func readCPUSys(statPath string, cpu int32) (kstat.RawSnapshot, error) {
	fields, err := scanStatLine(statPath, fmt.Sprintf("cpu%d", cpu))
	if err != nil {
		return kstat.RawSnapshot{}, err
	}
	// Format: cpuN user nice system idle iowait irq softirq ...
	if len(fields) < 7 {
		return kstat.RawSnapshot{}, fmt.Errorf("unexpected cpu%d line in %s: got %d fields, expected at least 7",
			cpu, statPath, len(fields))
	}

	ticks := make([]uint64, 7)
	for i := range ticks {
		ticks[i], err = strconv.ParseUint(fields[i], 10, 64)
		if err != nil {
			return kstat.RawSnapshot{}, fmt.Errorf("failed to parse cpu%d times: %w", cpu, err)
		}
	}

	return namedSnapshot([]kstat.NamedValue{
		{Name: "cpu_nsec_user", Type: kstat.NamedTypeUint64, UintVal: (ticks[0] + ticks[1]) * nsecPerJiffy},
		{Name: "cpu_nsec_kernel", Type: kstat.NamedTypeUint64, UintVal: (ticks[2] + ticks[5] + ticks[6]) * nsecPerJiffy},
		{Name: "cpu_nsec_idle", Type: kstat.NamedTypeUint64, UintVal: ticks[3] * nsecPerJiffy},
		{Name: "cpu_nsec_wait", Type: kstat.NamedTypeUint64, UintVal: ticks[4] * nsecPerJiffy},
	})
}

// scanCPUs returns the cpu numbers present in /proc/stat, in file order.
func scanCPUs(statPath string) ([]int32, error) {
	file, err := os.Open(statPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", statPath, err)
	}
	defer file.Close()

	var cpus []int32
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || !strings.HasPrefix(fields[0], "cpu") {
			continue
		}
		// "cpu" without a number is the aggregate line.
		num := fields[0][len("cpu"):]
		if num == "" {
			continue
		}
		cpu, err := strconv.ParseInt(num, 10, 32)
		if err != nil {
			continue
		}
		cpus = append(cpus, int32(cpu))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading %s: %w", statPath, err)
	}
	return cpus, nil
}

// scanStatLine returns the value fields of the /proc/stat line whose first
// field equals key. A missing line reads as a removed record.
func scanStatLine(statPath, key string) ([]string, error) {
	file, err := os.Open(statPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", statPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 0 && fields[0] == key {
			return fields[1:], nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading %s: %w", statPath, err)
	}
	return nil, fmt.Errorf("procfs: %s has no %s line: %w", statPath, key, kstat.ErrRecordNotFound)
}

// scanStatField returns the single numeric value of a /proc/stat line like
// "btime 1638360000".
func scanStatField(statPath, key string) (uint64, error) {
	fields, err := scanStatLine(statPath, key)
	if err != nil {
		return 0, err
	}
	if len(fields) != 1 {
		return 0, fmt.Errorf("unexpected %s line in %s", key, statPath)
	}
	value, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return value, nil
}

func readProcFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

// namedSnapshot encodes fields into a named-record snapshot stamped with
// the current boot-relative time.
func namedSnapshot(fields []kstat.NamedValue) (kstat.RawSnapshot, error) {
	data, err := kstat.EncodeNamed(fields)
	if err != nil {
		return kstat.RawSnapshot{}, err
	}
	return kstat.RawSnapshot{
		Snaptime: hrtime(),
		NData:    uint32(len(fields)),
		Data:     data,
	}, nil
}
