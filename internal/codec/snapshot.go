package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/roach88/graphres/internal/transform"
)

// SnapshotFormatVersion is bumped whenever the snapshot layout changes.
const SnapshotFormatVersion byte = 1

var snapshotMagic = []byte("GRS")

const flagAttributeMatching byte = 1 << 0

// Snapshot is one persisted edge resolution: the chosen component and
// variants plus the per-step transform dependencies.
type Snapshot struct {
	Component         string
	Variants          []string
	AttributeMatching bool
	Steps             []transform.StepDependencies
}

// EncodeSnapshot serialises s:
//
//	"GRS" <version> <flags> <component> <uvarint k> k x <variant>
//	<uvarint m> m x (<step name> <uvarint n> <n bytes encoded dependencies>)
//
// Strings are uvarint length prefixed UTF-8.
func EncodeSnapshot(s Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(snapshotMagic)
	buf.WriteByte(SnapshotFormatVersion)

	var flags byte
	if s.AttributeMatching {
		flags |= flagAttributeMatching
	}
	buf.WriteByte(flags)

	writeString(&buf, s.Component)
	writeUvarint(&buf, uint64(len(s.Variants)))
	for _, v := range s.Variants {
		writeString(&buf, v)
	}

	writeUvarint(&buf, uint64(len(s.Steps)))
	for _, st := range s.Steps {
		enc, err := Encode(st.Dependencies)
		if err != nil {
			return nil, fmt.Errorf("encode snapshot: step %s: %w", st.Step, err)
		}
		writeString(&buf, st.Step)
		writeUvarint(&buf, uint64(len(enc)))
		buf.Write(enc)
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot reverses EncodeSnapshot. Malformed input yields a
// CorruptCacheEntryError.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	r := &reader{data: data}

	magic, err := r.bytes(uint64(len(snapshotMagic)))
	if err != nil {
		return Snapshot{}, err
	}
	if !bytes.Equal(magic, snapshotMagic) {
		return Snapshot{}, corrupt("bad magic %q", magic)
	}
	version, err := r.readByte()
	if err != nil {
		return Snapshot{}, err
	}
	if version != SnapshotFormatVersion {
		return Snapshot{}, corrupt("unsupported format version %d", version)
	}
	flags, err := r.readByte()
	if err != nil {
		return Snapshot{}, err
	}
	if flags&^flagAttributeMatching != 0 {
		return Snapshot{}, corrupt("unknown flags %#x", flags)
	}

	s := Snapshot{AttributeMatching: flags&flagAttributeMatching != 0}
	if s.Component, err = r.readString(); err != nil {
		return Snapshot{}, err
	}

	count, err := r.count()
	if err != nil {
		return Snapshot{}, err
	}
	s.Variants = make([]string, 0, count)
	for i := 0; i < count; i++ {
		v, err := r.readString()
		if err != nil {
			return Snapshot{}, err
		}
		s.Variants = append(s.Variants, v)
	}

	if count, err = r.count(); err != nil {
		return Snapshot{}, err
	}
	s.Steps = make([]transform.StepDependencies, 0, count)
	for i := 0; i < count; i++ {
		name, err := r.readString()
		if err != nil {
			return Snapshot{}, err
		}
		enc, err := r.lengthPrefixed()
		if err != nil {
			return Snapshot{}, err
		}
		d, err := Decode(enc)
		if err != nil {
			return Snapshot{}, err
		}
		s.Steps = append(s.Steps, transform.StepDependencies{Step: name, Dependencies: d})
	}

	if r.remaining() != 0 {
		return Snapshot{}, corrupt("%d trailing bytes", r.remaining())
	}
	return s, nil
}

func writeUvarint(buf *bytes.Buffer, n uint64) {
	var tmp [binary.MaxVarintLen64]byte
	buf.Write(tmp[:binary.PutUvarint(tmp[:], n)])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

func (r *reader) readString() (string, error) {
	b, err := r.lengthPrefixed()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", corrupt("invalid UTF-8 at offset %d", r.off-len(b))
	}
	return string(b), nil
}

// count reads an element count. Every element takes at least one byte, so a
// count above the remaining length is corrupt.
func (r *reader) count() (int, error) {
	n, err := r.uvarint()
	if err != nil {
		return 0, err
	}
	if n > uint64(r.remaining()) {
		return 0, corrupt("count %d exceeds remaining %d bytes", n, r.remaining())
	}
	return int(n), nil
}
