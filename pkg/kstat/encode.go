// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package kstat

import (
	"encoding/binary"
	"fmt"
)

// Encoding helpers build record data sections in the native layouts, for
// Facility implementations that emulate a statistics source (sim, procfs).
// They round-trip exactly with the decoders.

// EncodeNamed builds the data section for a KindNamed record. Fields keep
// their given order; string values are stored out of line after the entry
// array. Field names must fit NameLen bytes.
func EncodeNamed(fields []NamedValue) ([]byte, error) {
	data := make([]byte, len(fields)*namedEntrySize)
	var tail []byte

	for i, nv := range fields {
		if len(nv.Name) > NameLen {
			return nil, fmt.Errorf("field name %q longer than %d bytes", nv.Name, NameLen)
		}
		entry := data[i*namedEntrySize : (i+1)*namedEntrySize]
		copy(entry[:NameLen], nv.Name)
		entry[NameLen] = byte(nv.Type)
		value := entry[namedValueOffset:]

		switch nv.Type {
		case NamedTypeChar:
			if len(nv.StringVal) > 16 {
				return nil, fmt.Errorf("char field %q holds %d bytes, max 16", nv.Name, len(nv.StringVal))
			}
			copy(value, nv.StringVal)
		case NamedTypeInt32:
			binary.NativeEndian.PutUint32(value, uint32(int32(nv.IntVal)))
		case NamedTypeUint32:
			binary.NativeEndian.PutUint32(value, uint32(nv.UintVal))
		case NamedTypeInt64:
			binary.NativeEndian.PutUint64(value, uint64(nv.IntVal))
		case NamedTypeUint64:
			binary.NativeEndian.PutUint64(value, nv.UintVal)
		case NamedTypeString:
			// Offset is resolved once the entry array length is known;
			// it is simply the current tail position past the array.
			off := uint64(len(fields)*namedEntrySize + len(tail))
			binary.NativeEndian.PutUint64(value[0:8], off)
			binary.NativeEndian.PutUint32(value[8:12], uint32(len(nv.StringVal)+1))
			tail = append(tail, nv.StringVal...)
			tail = append(tail, 0)
		default:
			return nil, fmt.Errorf("field %q has unencodable data type %s", nv.Name, nv.Type)
		}
	}
	return append(data, tail...), nil
}

// EncodeIO builds the 80-byte data section for a KindIO record.
func EncodeIO(io IOStats) []byte {
	data := make([]byte, ioDataSize)
	binary.NativeEndian.PutUint64(data[0:], io.Nread)
	binary.NativeEndian.PutUint64(data[8:], io.Nwritten)
	binary.NativeEndian.PutUint32(data[16:], io.Reads)
	binary.NativeEndian.PutUint32(data[20:], io.Writes)
	binary.NativeEndian.PutUint64(data[24:], uint64(io.Wtime))
	binary.NativeEndian.PutUint64(data[32:], uint64(io.Wlentime))
	binary.NativeEndian.PutUint64(data[40:], uint64(io.Wlastupdate))
	binary.NativeEndian.PutUint64(data[48:], uint64(io.Rtime))
	binary.NativeEndian.PutUint64(data[56:], uint64(io.Rlentime))
	binary.NativeEndian.PutUint64(data[64:], uint64(io.Rlastupdate))
	binary.NativeEndian.PutUint32(data[72:], io.Wcnt)
	binary.NativeEndian.PutUint32(data[76:], io.Rcnt)
	return data
}

// EncodeInterrupt builds the 20-byte data section for a KindInterrupt record.
func EncodeInterrupt(intr InterruptStats) []byte {
	data := make([]byte, interruptDataSize)
	binary.NativeEndian.PutUint32(data[0:], intr.Hard)
	binary.NativeEndian.PutUint32(data[4:], intr.Soft)
	binary.NativeEndian.PutUint32(data[8:], intr.Watchdog)
	binary.NativeEndian.PutUint32(data[12:], intr.Spurious)
	binary.NativeEndian.PutUint32(data[16:], intr.Multiple)
	return data
}

// EncodeTimer builds the 80-byte data section for a KindTimer record.
// The timer name must fit NameLen bytes.
func EncodeTimer(timer TimerStats) ([]byte, error) {
	if len(timer.Name) > NameLen {
		return nil, fmt.Errorf("timer name %q longer than %d bytes", timer.Name, NameLen)
	}
	data := make([]byte, timerDataSize)
	copy(data[:NameLen], timer.Name)
	binary.NativeEndian.PutUint64(data[32:], timer.NumEvents)
	binary.NativeEndian.PutUint64(data[40:], uint64(timer.ElapsedTime))
	binary.NativeEndian.PutUint64(data[48:], uint64(timer.MinTime))
	binary.NativeEndian.PutUint64(data[56:], uint64(timer.MaxTime))
	binary.NativeEndian.PutUint64(data[64:], uint64(timer.StartTime))
	binary.NativeEndian.PutUint64(data[72:], uint64(timer.StopTime))
	return data, nil
}
