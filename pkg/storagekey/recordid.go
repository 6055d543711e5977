// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package storagekey

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/zeebo/errs"
)

// ErrCorruptedKey is returned by decode operations that encounter bytes
// that do not match any known encoding; spec.md §4.2 requires that
// malformed keys surface as an error and are never silently skipped.
var ErrCorruptedKey = errs.Class("corrupted key")

// RecordIDKind discriminates the record-id sum type from spec.md §3.
type RecordIDKind byte

const (
	RecordIDInt RecordIDKind = iota + 1
	RecordIDString
	RecordIDUUID
	RecordIDArray
	RecordIDObject
)

// RecordID is the sum-type record identifier: {integer, string, uuid,
// array, object}. Exactly one field is meaningful, selected by Kind.
type RecordID struct {
	Kind   RecordIDKind
	Int    int64
	String string
	UUID   [16]byte
	Array  []RecordID
	Object map[string]RecordID
}

// NewIntID builds an integer record id.
func NewIntID(v int64) RecordID { return RecordID{Kind: RecordIDInt, Int: v} }

// NewStringID builds a string record id.
func NewStringID(v string) RecordID { return RecordID{Kind: RecordIDString, String: v} }

// NewUUIDID builds a uuid record id.
func NewUUIDID(v [16]byte) RecordID { return RecordID{Kind: RecordIDUUID, UUID: v} }

// Encode produces a sortable byte encoding of the record id, used as
// the tail segment of storagekey.RecordKey and as the tie-breaker in
// index data keys. The type tag is the leading byte so ids of different
// kinds never collide, matching the injectivity invariant in spec.md
// §8 property 2.
func (r RecordID) Encode() []byte {
	switch r.Kind {
	case RecordIDInt:
		buf := make([]byte, 9)
		buf[0] = byte(RecordIDInt)
		// flip the sign bit so signed integers sort correctly as
		// unsigned big-endian bytes.
		binary.BigEndian.PutUint64(buf[1:], uint64(r.Int)^(1<<63))
		return buf
	case RecordIDString:
		buf := make([]byte, 0, 5+len(r.String))
		buf = append(buf, byte(RecordIDString))
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(r.String)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, r.String...)
		return buf
	case RecordIDUUID:
		buf := make([]byte, 17)
		buf[0] = byte(RecordIDUUID)
		copy(buf[1:], r.UUID[:])
		return buf
	case RecordIDArray:
		buf := []byte{byte(RecordIDArray)}
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(r.Array)))
		buf = append(buf, lenBuf[:]...)
		for _, el := range r.Array {
			enc := el.Encode()
			var elLen [4]byte
			binary.BigEndian.PutUint32(elLen[:], uint32(len(enc)))
			buf = append(buf, elLen[:]...)
			buf = append(buf, enc...)
		}
		return buf
	case RecordIDObject:
		buf := []byte{byte(RecordIDObject)}
		keys := make([]string, 0, len(r.Object))
		for k := range r.Object {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(keys)))
		buf = append(buf, lenBuf[:]...)
		for _, k := range keys {
			var kLen [4]byte
			binary.BigEndian.PutUint32(kLen[:], uint32(len(k)))
			buf = append(buf, kLen[:]...)
			buf = append(buf, k...)
			enc := r.Object[k].Encode()
			var vLen [4]byte
			binary.BigEndian.PutUint32(vLen[:], uint32(len(enc)))
			buf = append(buf, vLen[:]...)
			buf = append(buf, enc...)
		}
		return buf
	default:
		panic(fmt.Sprintf("storagekey: invalid record id kind %d", r.Kind))
	}
}

// DecodeRecordID is the total inverse of Encode: decode(encode(id)) ==
// id for every id, and malformed input returns ErrCorruptedKey rather
// than panicking or silently truncating, per spec.md §4.2/§8 property 2.
func DecodeRecordID(b []byte) (RecordID, []byte, error) {
	if len(b) == 0 {
		return RecordID{}, nil, ErrCorruptedKey.New("empty record id")
	}
	kind := RecordIDKind(b[0])
	rest := b[1:]
	switch kind {
	case RecordIDInt:
		if len(rest) < 8 {
			return RecordID{}, nil, ErrCorruptedKey.New("truncated int id")
		}
		v := binary.BigEndian.Uint64(rest[:8]) ^ (1 << 63)
		return RecordID{Kind: RecordIDInt, Int: int64(v)}, rest[8:], nil
	case RecordIDString:
		if len(rest) < 4 {
			return RecordID{}, nil, ErrCorruptedKey.New("truncated string id length")
		}
		n := binary.BigEndian.Uint32(rest[:4])
		rest = rest[4:]
		if uint32(len(rest)) < n {
			return RecordID{}, nil, ErrCorruptedKey.New("truncated string id value")
		}
		return RecordID{Kind: RecordIDString, String: string(rest[:n])}, rest[n:], nil
	case RecordIDUUID:
		if len(rest) < 16 {
			return RecordID{}, nil, ErrCorruptedKey.New("truncated uuid id")
		}
		var u [16]byte
		copy(u[:], rest[:16])
		return RecordID{Kind: RecordIDUUID, UUID: u}, rest[16:], nil
	case RecordIDArray:
		if len(rest) < 4 {
			return RecordID{}, nil, ErrCorruptedKey.New("truncated array id length")
		}
		n := binary.BigEndian.Uint32(rest[:4])
		rest = rest[4:]
		arr := make([]RecordID, 0, n)
		for i := uint32(0); i < n; i++ {
			if len(rest) < 4 {
				return RecordID{}, nil, ErrCorruptedKey.New("truncated array element length")
			}
			elLen := binary.BigEndian.Uint32(rest[:4])
			rest = rest[4:]
			if uint32(len(rest)) < elLen {
				return RecordID{}, nil, ErrCorruptedKey.New("truncated array element")
			}
			el, leftover, err := DecodeRecordID(rest[:elLen])
			if err != nil {
				return RecordID{}, nil, err
			}
			if len(leftover) != 0 {
				return RecordID{}, nil, ErrCorruptedKey.New("trailing bytes in array element")
			}
			arr = append(arr, el)
			rest = rest[elLen:]
		}
		return RecordID{Kind: RecordIDArray, Array: arr}, rest, nil
	case RecordIDObject:
		if len(rest) < 4 {
			return RecordID{}, nil, ErrCorruptedKey.New("truncated object id length")
		}
		n := binary.BigEndian.Uint32(rest[:4])
		rest = rest[4:]
		obj := make(map[string]RecordID, n)
		for i := uint32(0); i < n; i++ {
			if len(rest) < 4 {
				return RecordID{}, nil, ErrCorruptedKey.New("truncated object key length")
			}
			kLen := binary.BigEndian.Uint32(rest[:4])
			rest = rest[4:]
			if uint32(len(rest)) < kLen {
				return RecordID{}, nil, ErrCorruptedKey.New("truncated object key")
			}
			key := string(rest[:kLen])
			rest = rest[kLen:]
			if len(rest) < 4 {
				return RecordID{}, nil, ErrCorruptedKey.New("truncated object value length")
			}
			vLen := binary.BigEndian.Uint32(rest[:4])
			rest = rest[4:]
			if uint32(len(rest)) < vLen {
				return RecordID{}, nil, ErrCorruptedKey.New("truncated object value")
			}
			val, leftover, err := DecodeRecordID(rest[:vLen])
			if err != nil {
				return RecordID{}, nil, err
			}
			if len(leftover) != 0 {
				return RecordID{}, nil, ErrCorruptedKey.New("trailing bytes in object value")
			}
			obj[key] = val
			rest = rest[vLen:]
		}
		return RecordID{Kind: RecordIDObject, Object: obj}, rest, nil
	default:
		return RecordID{}, nil, ErrCorruptedKey.New("unknown record id kind %d", byte(kind))
	}
}
