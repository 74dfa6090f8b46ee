package exifmeta

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// TIFF field types
const (
	typeByte     uint16 = 1
	typeASCII    uint16 = 2
	typeShort    uint16 = 3
	typeLong     uint16 = 4
	typeRational uint16 = 5
)

var byteOrder = binary.BigEndian

// entry is one IFD field with its value already serialised
type entry struct {
	tag   uint16
	typ   uint16
	count uint32
	value []byte
}

func asciiEntry(tag uint16, s string) (entry, error) {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return entry{}, fmt.Errorf("tag 0x%04x: NUL byte in value", tag)
		}
	}
	v := append([]byte(s), 0)
	return entry{tag: tag, typ: typeASCII, count: uint32(len(v)), value: v}, nil
}

func bytesEntry(tag uint16, b []byte) entry {
	return entry{tag: tag, typ: typeByte, count: uint32(len(b)), value: b}
}

func shortEntry(tag uint16, v uint16) entry {
	b := make([]byte, 2)
	byteOrder.PutUint16(b, v)
	return entry{tag: tag, typ: typeShort, count: 1, value: b}
}

func longEntry(tag uint16, v uint32) entry {
	b := make([]byte, 4)
	byteOrder.PutUint32(b, v)
	return entry{tag: tag, typ: typeLong, count: 1, value: b}
}

func rationalEntry(tag uint16, rs ...Rational) entry {
	b := make([]byte, 0, 8*len(rs))
	for _, r := range rs {
		b = byteOrder.AppendUint32(b, r.Num)
		b = byteOrder.AppendUint32(b, r.Den)
	}
	return entry{tag: tag, typ: typeRational, count: uint32(len(rs)), value: b}
}

// ifdSize returns the encoded size of an IFD including its overflow area
func ifdSize(entries []entry) int {
	n := 2 + 12*len(entries) + 4
	for _, e := range entries {
		if len(e.value) > 4 {
			n += len(e.value) + len(e.value)%2
		}
	}
	return n
}

// encodeIFD serialises entries as an IFD starting at offset within the TIFF
// stream. Values longer than four bytes follow the directory, word aligned.
func encodeIFD(entries []entry, offset int) []byte {
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	dir := make([]byte, 0, ifdSize(entries))
	dir = byteOrder.AppendUint16(dir, uint16(len(entries)))

	var extra []byte
	extraOffset := offset + 2 + 12*len(entries) + 4
	for _, e := range entries {
		dir = byteOrder.AppendUint16(dir, e.tag)
		dir = byteOrder.AppendUint16(dir, e.typ)
		dir = byteOrder.AppendUint32(dir, e.count)
		if len(e.value) <= 4 {
			var inline [4]byte
			copy(inline[:], e.value)
			dir = append(dir, inline[:]...)
			continue
		}
		dir = byteOrder.AppendUint32(dir, uint32(extraOffset+len(extra)))
		extra = append(extra, e.value...)
		if len(e.value)%2 == 1 {
			extra = append(extra, 0)
		}
	}
	dir = byteOrder.AppendUint32(dir, 0) // no next IFD
	return append(dir, extra...)
}
