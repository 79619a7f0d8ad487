// Package codec persists transform dependency results.
//
// Wire format of one encoded result:
//
//	0                      not required
//	1 <uvarint n> <n bytes file set> <8 bytes checksum>
//
// The file set is <uvarint k> followed by k paths, each a uvarint length and
// the path's raw bytes. Paths are stored byte for byte: no normalization and
// no UTF-8 requirement. The checksum is HighwayHash-64 of the file set bytes,
// big endian. Discriminator values are stable: changing them invalidates
// every persisted entry.
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/minio/highwayhash"

	"github.com/roach88/graphres/internal/ir"
	"github.com/roach88/graphres/internal/transform"
)

const (
	TagNotRequired byte = 0
	TagFiles       byte = 1
)

const checksumSize = 8

var checksumKey = []byte("graphres/codec/file-set/v1......")

func checksum(data []byte) (uint64, error) {
	h, err := highwayhash.New64(checksumKey)
	if err != nil {
		return 0, err
	}
	_, err = h.Write(data)
	return h.Sum64(), err
}

// Encode serialises a step result.
func Encode(d transform.Dependencies) ([]byte, error) {
	switch v := d.(type) {
	case nil:
		return nil, fmt.Errorf("encode: nil dependencies")
	case transform.FileDependencies:
		return encodeFiles(v.Files)
	default:
		if transform.Kind(d) == "not-required" {
			return []byte{TagNotRequired}, nil
		}
		panic(fmt.Sprintf("codec: unknown dependencies variant %T", d))
	}
}

func encodeFiles(files ir.FileSet) ([]byte, error) {
	if files == nil {
		files = ir.NewFileSet()
	}
	if err := files.Validate(); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	payload := binary.AppendUvarint(nil, uint64(len(files)))
	for _, p := range files {
		payload = binary.AppendUvarint(payload, uint64(len(p)))
		payload = append(payload, p...)
	}
	sum, err := checksum(payload)
	if err != nil {
		return nil, fmt.Errorf("encode: checksum: %w", err)
	}

	out := make([]byte, 0, 1+binary.MaxVarintLen64+len(payload)+checksumSize)
	out = append(out, TagFiles)
	out = binary.AppendUvarint(out, uint64(len(payload)))
	out = append(out, payload...)
	out = binary.BigEndian.AppendUint64(out, sum)
	return out, nil
}

// Decode reconstructs a step result. Any malformed input yields a
// CorruptCacheEntryError.
func Decode(data []byte) (transform.Dependencies, error) {
	r := &reader{data: data}
	d, err := r.dependencies()
	if err != nil {
		return nil, err
	}
	if r.remaining() != 0 {
		return nil, corrupt("%d trailing bytes", r.remaining())
	}
	return d, nil
}

// Recreate decodes data and turns it into a frozen resolver.
func Recreate(data []byte) (transform.Resolver, error) {
	d, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return d.Recreate(), nil
}

type reader struct {
	data []byte
	off  int
}

func (r *reader) remaining() int {
	return len(r.data) - r.off
}

func (r *reader) readByte() (byte, error) {
	if r.remaining() < 1 {
		return 0, corrupt("truncated at offset %d", r.off)
	}
	b := r.data[r.off]
	r.off++
	return b, nil
}

func (r *reader) uvarint() (uint64, error) {
	n, size := binary.Uvarint(r.data[r.off:])
	if size <= 0 {
		return 0, corrupt("bad length at offset %d", r.off)
	}
	r.off += size
	return n, nil
}

func (r *reader) bytes(n uint64) ([]byte, error) {
	if n > uint64(r.remaining()) {
		return nil, corrupt("truncated: need %d bytes at offset %d, have %d", n, r.off, r.remaining())
	}
	b := r.data[r.off : r.off+int(n)]
	r.off += int(n)
	return b, nil
}

func (r *reader) lengthPrefixed() ([]byte, error) {
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	return r.bytes(n)
}

func (r *reader) dependencies() (transform.Dependencies, error) {
	tag, err := r.readByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case TagNotRequired:
		return transform.NotRequired, nil
	case TagFiles:
		files, err := r.files()
		if err != nil {
			return nil, err
		}
		return transform.FileDependencies{Files: files}, nil
	default:
		return nil, corrupt("unknown discriminator %d", tag)
	}
}

func (r *reader) files() (ir.FileSet, error) {
	payload, err := r.lengthPrefixed()
	if err != nil {
		return nil, err
	}
	raw, err := r.bytes(checksumSize)
	if err != nil {
		return nil, err
	}
	want := binary.BigEndian.Uint64(raw)
	got, err := checksum(payload)
	if err != nil {
		return nil, &CorruptCacheEntryError{Reason: "checksum", Err: err}
	}
	if got != want {
		return nil, corrupt("checksum mismatch: stored %016x, computed %016x", want, got)
	}

	pr := &reader{data: payload}
	n, err := pr.count()
	if err != nil {
		return nil, err
	}
	files := make(ir.FileSet, 0, n)
	for i := 0; i < n; i++ {
		p, err := pr.lengthPrefixed()
		if err != nil {
			return nil, err
		}
		files = append(files, string(p))
	}
	if pr.remaining() != 0 {
		return nil, corrupt("%d trailing bytes in file set", pr.remaining())
	}
	if err := files.Validate(); err != nil {
		return nil, &CorruptCacheEntryError{Reason: "invalid file set", Err: err}
	}
	return files, nil
}
