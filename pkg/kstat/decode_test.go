// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package kstat_test

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antimetal/kstat/pkg/kstat"
	"github.com/antimetal/kstat/pkg/kstat/sim"
)

// readOne adds a record, reads it back through a Reader, and returns the
// decoded result.
func readOne(t *testing.T, f *sim.Facility, filter *kstat.Filter) *kstat.DecodedRecord {
	t.Helper()
	reader := newTestReader(t, f)
	descs, err := reader.Enumerate(filter)
	require.NoError(t, err)
	require.Len(t, descs, 1)
	rec, err := reader.Read(descs[0])
	require.NoError(t, err)
	return rec
}

func TestDecode_NamedAllTypes(t *testing.T) {
	fields := []kstat.NamedValue{
		{Name: "state", Type: kstat.NamedTypeChar, StringVal: "online"},
		{Name: "temperature", Type: kstat.NamedTypeInt32, IntVal: -40},
		{Name: "ncpus", Type: kstat.NamedTypeUint32, UintVal: 128},
		{Name: "offset", Type: kstat.NamedTypeInt64, IntVal: -9_000_000_000},
		{Name: "bytes", Type: kstat.NamedTypeUint64, UintVal: 1 << 62},
		{Name: "product", Type: kstat.NamedTypeString, StringVal: "Generic Disk Model 9000"},
		{Name: "vendor", Type: kstat.NamedTypeString, StringVal: ""},
	}

	f := sim.New()
	_, err := f.AddNamed("test", 0, "all_types", "misc", fields)
	require.NoError(t, err)

	rec := readOne(t, f, nil)
	require.Equal(t, kstat.KindNamed, rec.Kind)
	require.Len(t, rec.Named, len(fields))

	// Field order follows the source's insertion order.
	for i, want := range fields {
		assert.Equal(t, want.Name, rec.Named[i].Name)
		assert.Equal(t, want.Type, rec.Named[i].Type)
	}
	assert.Equal(t, "online", rec.Named[0].StringVal)
	assert.Equal(t, int64(-40), rec.Named[1].IntVal)
	assert.Equal(t, uint64(128), rec.Named[2].UintVal)
	assert.Equal(t, int64(-9_000_000_000), rec.Named[3].IntVal)
	assert.Equal(t, uint64(1)<<62, rec.Named[4].UintVal)
	assert.Equal(t, "Generic Disk Model 9000", rec.Named[5].StringVal)
	assert.Equal(t, "", rec.Named[6].StringVal)

	// Only the payload slots untouched by the field's type stay zero.
	assert.Zero(t, rec.Named[1].UintVal)
	assert.Zero(t, rec.Named[2].IntVal)
	assert.Empty(t, rec.Named[4].StringVal)
}

func TestDecode_Deterministic(t *testing.T) {
	f := sim.New()
	_, err := f.AddNamed("mod", 0, "stats", "misc", []kstat.NamedValue{
		{Name: "a", Type: kstat.NamedTypeUint64, UintVal: 17},
		{Name: "b", Type: kstat.NamedTypeInt32, IntVal: -17},
		{Name: "c", Type: kstat.NamedTypeString, StringVal: "constant"},
	})
	require.NoError(t, err)

	reader := newTestReader(t, f)
	descs, err := reader.Enumerate(nil)
	require.NoError(t, err)
	require.Len(t, descs, 1)

	first, err := reader.Read(descs[0])
	require.NoError(t, err)
	second, err := reader.Read(descs[0])
	require.NoError(t, err)

	// Snaptime moves between reads; the decoded values must not.
	assert.Equal(t, first.Named, second.Named)
}

func TestDecode_MaxLengthNames(t *testing.T) {
	long := strings.Repeat("n", kstat.NameLen)
	f := sim.New()
	_, err := f.AddNamed("mod", 0, "limits", "misc", []kstat.NamedValue{
		{Name: long, Type: kstat.NamedTypeUint32, UintVal: 1},
	})
	require.NoError(t, err)

	rec := readOne(t, f, nil)
	assert.Equal(t, long, rec.Named[0].Name)
}

func TestEncodeNamed_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		field kstat.NamedValue
	}{
		{
			"name too long",
			kstat.NamedValue{Name: strings.Repeat("n", kstat.NameLen+1), Type: kstat.NamedTypeUint32},
		},
		{
			"char data too wide",
			kstat.NamedValue{Name: "c", Type: kstat.NamedTypeChar, StringVal: "seventeen bytes!!"},
		},
		{
			"unencodable type",
			kstat.NamedValue{Name: "f", Type: kstat.NamedType(6)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := kstat.EncodeNamed([]kstat.NamedValue{tt.field})
			assert.Error(t, err)
		})
	}
}

func TestDecode_NamedMalformed(t *testing.T) {
	// A well-formed single entry to corrupt per test case.
	goodEntry := func() []byte {
		entry := make([]byte, 48)
		copy(entry, "field")
		entry[31] = byte(kstat.NamedTypeUint32)
		binary.NativeEndian.PutUint32(entry[32:], 7)
		return entry
	}

	tests := []struct {
		name  string
		ndata uint32
		data  []byte
	}{
		{
			name:  "truncated data section",
			ndata: 1,
			data:  goodEntry()[:20],
		},
		{
			name:  "entry count beyond data",
			ndata: 2,
			data:  goodEntry(),
		},
		{
			name:  "unrecognized field type",
			ndata: 1,
			data: func() []byte {
				entry := goodEntry()
				entry[31] = 7
				return entry
			}(),
		},
		{
			name:  "string reference out of bounds",
			ndata: 1,
			data: func() []byte {
				entry := goodEntry()
				entry[31] = byte(kstat.NamedTypeString)
				binary.NativeEndian.PutUint64(entry[32:40], 4096)
				binary.NativeEndian.PutUint32(entry[40:44], 8)
				return entry
			}(),
		},
		{
			name:  "string length overruns data",
			ndata: 1,
			data: func() []byte {
				entry := goodEntry()
				entry[31] = byte(kstat.NamedTypeString)
				binary.NativeEndian.PutUint64(entry[32:40], 40)
				binary.NativeEndian.PutUint32(entry[40:44], 64)
				return entry
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := sim.New()
			f.AddRaw("bad", 0, "layout", "misc", kstat.KindNamed, tt.ndata, tt.data)
			reader := newTestReader(t, f)

			descs, err := reader.Enumerate(nil)
			require.NoError(t, err)
			require.Len(t, descs, 1)

			_, err = reader.Read(descs[0])
			assert.ErrorIs(t, err, kstat.ErrDecodeFailure)
		})
	}
}

func TestDecode_RawKindHasNoDecoder(t *testing.T) {
	f := sim.New()
	f.AddRaw("unix", 0, "page_maps", "misc", kstat.KindRaw, 1, []byte{0xde, 0xad})
	reader := newTestReader(t, f)

	descs, err := reader.Enumerate(nil)
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, kstat.KindRaw, descs[0].Kind)

	_, err = reader.Read(descs[0])
	assert.ErrorIs(t, err, kstat.ErrDecodeFailure)
}

func TestDecode_IO(t *testing.T) {
	want := kstat.IOStats{
		Nread:       123456789,
		Nwritten:    987654321,
		Reads:       1000,
		Writes:      2000,
		Wtime:       3_000_000_000,
		Wlentime:    4_000_000_000,
		Wlastupdate: 5_000_000_000,
		Rtime:       6_000_000_000,
		Rlentime:    7_000_000_000,
		Rlastupdate: 8_000_000_000,
		Wcnt:        3,
		Rcnt:        4,
	}

	f := sim.New()
	f.AddIO("sd", 2, "sd2", "disk", want)

	rec := readOne(t, f, nil)
	require.Equal(t, kstat.KindIO, rec.Kind)
	require.NotNil(t, rec.IO)
	assert.Equal(t, want, *rec.IO)
	assert.Nil(t, rec.Named)
}

func TestDecode_IOWrongSize(t *testing.T) {
	f := sim.New()
	f.AddRaw("sd", 0, "sd0", "disk", kstat.KindIO, 1, make([]byte, 79))
	reader := newTestReader(t, f)

	descs, err := reader.Enumerate(nil)
	require.NoError(t, err)
	_, err = reader.Read(descs[0])
	assert.ErrorIs(t, err, kstat.ErrDecodeFailure)
}

func TestDecode_Interrupt(t *testing.T) {
	want := kstat.InterruptStats{
		Hard:     100,
		Soft:     200,
		Watchdog: 3,
		Spurious: 4,
		Multiple: 5,
	}

	f := sim.New()
	f.AddInterrupt("nic", 0, "intrs", "intr", want)

	rec := readOne(t, f, nil)
	require.Equal(t, kstat.KindInterrupt, rec.Kind)
	require.NotNil(t, rec.Interrupt)
	assert.Equal(t, want, *rec.Interrupt)
}

func TestDecode_InterruptWrongSize(t *testing.T) {
	f := sim.New()
	f.AddRaw("nic", 0, "intrs", "intr", kstat.KindInterrupt, 1, make([]byte, 21))
	reader := newTestReader(t, f)

	descs, err := reader.Enumerate(nil)
	require.NoError(t, err)
	_, err = reader.Read(descs[0])
	assert.ErrorIs(t, err, kstat.ErrDecodeFailure)
}

func TestDecode_Timer(t *testing.T) {
	want := kstat.TimerStats{
		Name:        "deadman",
		NumEvents:   42,
		ElapsedTime: 1_000_000,
		MinTime:     10,
		MaxTime:     100_000,
		StartTime:   5_000,
		StopTime:    6_000,
	}

	f := sim.New()
	_, err := f.AddTimer("unix", 0, "deadman", "timer", want)
	require.NoError(t, err)

	rec := readOne(t, f, nil)
	require.Equal(t, kstat.KindTimer, rec.Kind)
	require.NotNil(t, rec.Timer)
	assert.Equal(t, want, *rec.Timer)
}

func TestEncodeTimer_NameTooLong(t *testing.T) {
	_, err := kstat.EncodeTimer(kstat.TimerStats{Name: strings.Repeat("t", kstat.NameLen+1)})
	assert.Error(t, err)
}

func TestDecode_TimerWrongSize(t *testing.T) {
	f := sim.New()
	f.AddRaw("unix", 0, "deadman", "timer", kstat.KindTimer, 1, make([]byte, 48))
	reader := newTestReader(t, f)

	descs, err := reader.Enumerate(nil)
	require.NoError(t, err)
	_, err = reader.Read(descs[0])
	assert.ErrorIs(t, err, kstat.ErrDecodeFailure)
}
