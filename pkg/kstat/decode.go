// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package kstat

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Record data sections mirror the native kstat layouts. All multi-byte
// values are host-endian, like the ABI they mirror.
//
// A named entry is name[31] + type byte + a 16-byte value union aligned to
// 8 bytes. String values live out of line in the data section; the union
// carries their byte offset and length (including the terminating NUL),
// the way libkstat rewrites string pointers into its snapshot buffer.
const (
	// NameLen is the maximum record and field name length (one byte is
	// reserved for the NUL terminator in the native layout).
	NameLen = 31

	namedEntrySize   = 48
	namedValueOffset = 32

	ioDataSize        = 80
	interruptDataSize = 20
	timerDataSize     = 80
)

// decodeRecord fills rec's payload from snap according to rec.Kind.
func decodeRecord(rec *DecodedRecord, snap RawSnapshot) error {
	switch rec.Kind {
	case KindNamed:
		named, err := decodeNamed(snap.Data, snap.NData)
		if err != nil {
			return err
		}
		rec.Named = named
	case KindIO:
		io, err := decodeIO(snap.Data)
		if err != nil {
			return err
		}
		rec.IO = io
	case KindInterrupt:
		intr, err := decodeInterrupt(snap.Data)
		if err != nil {
			return err
		}
		rec.Interrupt = intr
	case KindTimer:
		timer, err := decodeTimer(snap.Data)
		if err != nil {
			return err
		}
		rec.Timer = timer
	default:
		return fmt.Errorf("%w: no decoder for %s records", ErrDecodeFailure, rec.Kind)
	}
	return nil
}

func decodeNamed(data []byte, ndata uint32) ([]NamedValue, error) {
	end := int(ndata) * namedEntrySize
	if end > len(data) {
		return nil, fmt.Errorf("%w: %d named entries need %d bytes, have %d",
			ErrDecodeFailure, ndata, end, len(data))
	}

	fields := make([]NamedValue, 0, ndata)
	for off := 0; off < end; off += namedEntrySize {
		entry := data[off : off+namedEntrySize]
		nv := NamedValue{
			Name: cstring(entry[:NameLen]),
			Type: NamedType(entry[NameLen]),
		}
		value := entry[namedValueOffset:]

		switch nv.Type {
		case NamedTypeChar:
			nv.StringVal = cstring(value)
		case NamedTypeInt32:
			nv.IntVal = int64(int32(binary.NativeEndian.Uint32(value)))
		case NamedTypeUint32:
			nv.UintVal = uint64(binary.NativeEndian.Uint32(value))
		case NamedTypeInt64:
			nv.IntVal = int64(binary.NativeEndian.Uint64(value))
		case NamedTypeUint64:
			nv.UintVal = binary.NativeEndian.Uint64(value)
		case NamedTypeString:
			s, err := decodeString(data, value)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", nv.Name, err)
			}
			nv.StringVal = s
		default:
			return nil, fmt.Errorf("%w: field %q has unrecognized data type %d",
				ErrDecodeFailure, nv.Name, entry[NameLen])
		}
		fields = append(fields, nv)
	}
	return fields, nil
}

// decodeString resolves an out-of-line string value. The union holds the
// string's byte offset within the data section and its length including
// the NUL.
func decodeString(data, value []byte) (string, error) {
	off := binary.NativeEndian.Uint64(value[0:8])
	slen := binary.NativeEndian.Uint32(value[8:12])
	if slen == 0 {
		return "", nil
	}
	if off > uint64(len(data)) || uint64(slen) > uint64(len(data))-off {
		return "", fmt.Errorf("%w: string reference [%d:+%d] outside %d-byte data section",
			ErrDecodeFailure, off, slen, len(data))
	}
	return cstring(data[off : off+uint64(slen)]), nil
}

func decodeIO(data []byte) (*IOStats, error) {
	if len(data) != ioDataSize {
		return nil, fmt.Errorf("%w: io data is %d bytes, want %d", ErrDecodeFailure, len(data), ioDataSize)
	}
	return &IOStats{
		Nread:       binary.NativeEndian.Uint64(data[0:]),
		Nwritten:    binary.NativeEndian.Uint64(data[8:]),
		Reads:       binary.NativeEndian.Uint32(data[16:]),
		Writes:      binary.NativeEndian.Uint32(data[20:]),
		Wtime:       int64(binary.NativeEndian.Uint64(data[24:])),
		Wlentime:    int64(binary.NativeEndian.Uint64(data[32:])),
		Wlastupdate: int64(binary.NativeEndian.Uint64(data[40:])),
		Rtime:       int64(binary.NativeEndian.Uint64(data[48:])),
		Rlentime:    int64(binary.NativeEndian.Uint64(data[56:])),
		Rlastupdate: int64(binary.NativeEndian.Uint64(data[64:])),
		Wcnt:        binary.NativeEndian.Uint32(data[72:]),
		Rcnt:        binary.NativeEndian.Uint32(data[76:]),
	}, nil
}

func decodeInterrupt(data []byte) (*InterruptStats, error) {
	if len(data) != interruptDataSize {
		return nil, fmt.Errorf("%w: interrupt data is %d bytes, want %d",
			ErrDecodeFailure, len(data), interruptDataSize)
	}
	return &InterruptStats{
		Hard:     binary.NativeEndian.Uint32(data[0:]),
		Soft:     binary.NativeEndian.Uint32(data[4:]),
		Watchdog: binary.NativeEndian.Uint32(data[8:]),
		Spurious: binary.NativeEndian.Uint32(data[12:]),
		Multiple: binary.NativeEndian.Uint32(data[16:]),
	}, nil
}

func decodeTimer(data []byte) (*TimerStats, error) {
	if len(data) != timerDataSize {
		return nil, fmt.Errorf("%w: timer data is %d bytes, want %d",
			ErrDecodeFailure, len(data), timerDataSize)
	}
	return &TimerStats{
		Name:        cstring(data[:NameLen]),
		NumEvents:   binary.NativeEndian.Uint64(data[32:]),
		ElapsedTime: int64(binary.NativeEndian.Uint64(data[40:])),
		MinTime:     int64(binary.NativeEndian.Uint64(data[48:])),
		MaxTime:     int64(binary.NativeEndian.Uint64(data[56:])),
		StartTime:   int64(binary.NativeEndian.Uint64(data[64:])),
		StopTime:    int64(binary.NativeEndian.Uint64(data[72:])),
	}, nil
}

// cstring returns b up to the first NUL.
func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
