package kstat

import "fmt"

// Kind identifies the layout of a record's data section. The set is closed
// and the values are fixed by the kstat ABI.
type Kind uint8

const (
	KindRaw       Kind = 0 // opaque, source-defined bytes
	KindNamed     Kind = 1 // name/value pairs
	KindInterrupt Kind = 2 // interrupt counters
	KindIO        Kind = 3 // I/O statistics
	KindTimer     Kind = 4 // event timer
)

func (k Kind) String() string {
	switch k {
	case KindRaw:
		return "raw"
	case KindNamed:
		return "named"
	case KindInterrupt:
		return "interrupt"
	case KindIO:
		return "io"
	case KindTimer:
		return "timer"
	default:
		return fmt.Sprintf("kind-%d", uint8(k))
	}
}

// NamedType identifies the scalar type of one field in a named record.
// The set is closed; decoding rejects anything else.
type NamedType uint8

const (
	NamedTypeChar   NamedType = 0 // 16 bytes of character data
	NamedTypeInt32  NamedType = 1
	NamedTypeUint32 NamedType = 2
	NamedTypeInt64  NamedType = 3
	NamedTypeUint64 NamedType = 4
	NamedTypeString NamedType = 9 // out-of-line string in the data section
)

func (t NamedType) String() string {
	switch t {
	case NamedTypeChar:
		return "char"
	case NamedTypeInt32:
		return "int32"
	case NamedTypeUint32:
		return "uint32"
	case NamedTypeInt64:
		return "int64"
	case NamedTypeUint64:
		return "uint64"
	case NamedTypeString:
		return "string"
	default:
		return fmt.Sprintf("type-%d", uint8(t))
	}
}

// Filter narrows enumeration to records matching every set field. A nil
// pointer field matches any value; set string fields match by exact
// equality. Instance 0 is a real value and is distinct from an unset
// instance.
type Filter struct {
	Module   *string
	Instance *int32
	Name     *string
	Class    *string
}

// Match reports whether a record identified by module:instance:name and
// class satisfies the filter. A nil filter matches everything.
func (f *Filter) Match(module string, instance int32, name, class string) bool {
	if f == nil {
		return true
	}
	if f.Module != nil && *f.Module != module {
		return false
	}
	if f.Instance != nil && *f.Instance != instance {
		return false
	}
	if f.Name != nil && *f.Name != name {
		return false
	}
	if f.Class != nil && *f.Class != class {
		return false
	}
	return true
}

// Descriptor is the metadata for one discovered record, produced by
// Reader.Enumerate. Generation is the facility's chain generation at
// enumeration time; if the chain changes and the record goes away, reading
// the descriptor fails with ErrStale.
type Descriptor struct {
	KID        int32 // unique chain id, never reused
	Module     string
	Instance   int32
	Name       string
	Class      string
	Kind       Kind
	Crtime     int64 // creation time, nanoseconds since boot
	Snaptime   int64 // last snapshot time seen at enumeration
	Generation int32
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s:%d:%s (%s)", d.Module, d.Instance, d.Name, d.Class)
}

// NamedValue is one field of a named record. Name and Type are always
// valid; only the value slot selected by Type holds the field's value, the
// others are zero. Char and String values are both surfaced in StringVal.
type NamedValue struct {
	Name string
	Type NamedType

	StringVal string
	IntVal    int64
	UintVal   uint64
}

// IOStats is the I/O aggregate carried by KindIO records: byte and
// operation counters plus cumulative wait-queue and run-queue occupancy
// times in nanoseconds. It mirrors the native kstat_io_t layout.
type IOStats struct {
	Nread       uint64 // bytes read
	Nwritten    uint64 // bytes written
	Reads       uint32 // read operations
	Writes      uint32 // write operations
	Wtime       int64  // cumulative wait (pre-service) time
	Wlentime    int64  // cumulative wait length*time product
	Wlastupdate int64  // last time wait queue changed
	Rtime       int64  // cumulative run (service) time
	Rlentime    int64  // cumulative run length*time product
	Rlastupdate int64  // last time run queue changed
	Wcnt        uint32 // elements in wait state
	Rcnt        uint32 // elements in run state
}

// InterruptStats is the counter block carried by KindInterrupt records,
// one counter per interrupt type.
type InterruptStats struct {
	Hard     uint32
	Soft     uint32
	Watchdog uint32
	Spurious uint32
	Multiple uint32 // multiple service
}

// TimerStats is the event timer aggregate carried by KindTimer records.
// Times are nanoseconds since boot.
type TimerStats struct {
	Name        string
	NumEvents   uint64
	ElapsedTime int64
	MinTime     int64
	MaxTime     int64
	StartTime   int64
	StopTime    int64
}

// DecodedRecord is a fully materialized statistic: the record's identity
// plus a typed copy of its data section taken at read time. Exactly one of
// Named, IO, Interrupt, or Timer is populated, selected by Kind. The record
// holds no references into facility-owned memory and is never mutated after
// construction.
type DecodedRecord struct {
	Module   string
	Instance int32
	Name     string
	Class    string
	Kind     Kind
	Crtime   int64
	Snaptime int64

	Named     []NamedValue // KindNamed, in the source's field order
	IO        *IOStats
	Interrupt *InterruptStats
	Timer     *TimerStats
}

func (r *DecodedRecord) String() string {
	return fmt.Sprintf("%s:%d:%s (%s)", r.Module, r.Instance, r.Name, r.Class)
}

// Field returns the named field and whether it exists. Only meaningful for
// KindNamed records.
func (r *DecodedRecord) Field(name string) (NamedValue, bool) {
	for _, nv := range r.Named {
		if nv.Name == name {
			return nv, true
		}
	}
	return NamedValue{}, false
}

// FieldMap returns the named fields keyed by field name.
func (r *DecodedRecord) FieldMap() map[string]NamedValue {
	m := make(map[string]NamedValue, len(r.Named))
	for _, nv := range r.Named {
		m[nv.Name] = nv
	}
	return m
}
