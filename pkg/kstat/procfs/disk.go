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
	// sectorSize is the fixed sector unit of /proc/diskstats counters.
	sectorSize = 512

	// nsecPerMsec converts diskstats millisecond times to nanoseconds.
	nsecPerMsec = 1_000_000

	// diskstatsFieldCount is the minimum field count of a diskstats line
	// (3 identification + 11 metrics).
	diskstatsFieldCount = 14
)

// scanDisks returns the whole-disk device names in /proc/diskstats, in
// file order. Partitions are filtered out; only whole disks become
// records.
func scanDisks(diskstatsPath string) ([]string, error) {
	file, err := os.Open(diskstatsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", diskstatsPath, err)
	}
	defer file.Close()

	var devices []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < diskstatsFieldCount {
			continue
		}
		device := fields[2]
		if isPartition(device) {
			continue
		}
		devices = append(devices, device)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading %s: %w", diskstatsPath, err)
	}
	return devices, nil
}

// readDiskIO assembles the I/O record for one device from its current
// /proc/diskstats line.
//
// Format: major minor device reads... writes... ios_in_progress io_time
// weighted_io_time. Sectors are 512 bytes, times in milliseconds.
// Reference: https://www.kernel.org/doc/Documentation/iostats.txt
func readDiskIO(diskstatsPath, device string) (kstat.RawSnapshot, error) {
	file, err := os.Open(diskstatsPath)
	if err != nil {
		return kstat.RawSnapshot{}, fmt.Errorf("failed to open %s: %w", diskstatsPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < diskstatsFieldCount || fields[2] != device {
			continue
		}

		metrics := make([]uint64, 11)
		for i := range metrics {
			metrics[i], err = strconv.ParseUint(fields[3+i], 10, 64)
			if err != nil {
				return kstat.RawSnapshot{}, fmt.Errorf("failed to parse diskstats for %s: %w", device, err)
			}
		}

		// metrics[0..10]: reads completed, reads merged, sectors read,
		// ms reading, writes completed, writes merged, sectors written,
		// ms writing, ios in progress, ms doing io, weighted ms doing io.
		now := hrtime()
		io := kstat.IOStats{
			Nread:       metrics[2] * sectorSize,
			Nwritten:    metrics[6] * sectorSize,
			Reads:       uint32(metrics[0]),
			Writes:      uint32(metrics[4]),
			Rtime:       int64(metrics[3] * nsecPerMsec),
			Wtime:       int64(metrics[7] * nsecPerMsec),
			Wlentime:    int64(metrics[10] * nsecPerMsec),
			Rlastupdate: now,
			Wlastupdate: now,
			Rcnt:        uint32(metrics[8]),
		}
		return kstat.RawSnapshot{
			Snaptime: now,
			NData:    1,
			Data:     kstat.EncodeIO(io),
		}, nil
	}
	if err := scanner.Err(); err != nil {
		return kstat.RawSnapshot{}, fmt.Errorf("error reading %s: %w", diskstatsPath, err)
	}
	return kstat.RawSnapshot{}, fmt.Errorf("procfs: device %s not in %s: %w",
		device, diskstatsPath, kstat.ErrRecordNotFound)
}

// isPartition checks if a device name represents a partition rather than
// a whole disk. loop and device-mapper devices end with digits but are
// whole devices; NVMe and MMC partitions use a 'p' separator.
func isPartition(device string) bool {
	if device == "" {
		return false
	}

	if strings.HasPrefix(device, "loop") || strings.HasPrefix(device, "dm-") {
		return false
	}

	if strings.Contains(device, "nvme") || strings.Contains(device, "mmcblk") {
		idx := strings.LastIndex(device, "p")
		if idx > 0 && idx < len(device)-1 {
			for _, ch := range device[idx+1:] {
				if ch < '0' || ch > '9' {
					return false
				}
			}
			return true
		}
		return false
	}

	lastChar := device[len(device)-1]
	return lastChar >= '0' && lastChar <= '9'
}
