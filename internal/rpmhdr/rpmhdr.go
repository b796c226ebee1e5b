// Package rpmhdr does minimal binary parsing of RPM lead + header blocks,
// just enough to pull the tags the PAX RPM adapter needs (name, version,
// dependencies, payload framing). It does not attempt to be a complete
// RPM database reader the way claircore's internal/rpm/rpmdb package is;
// pax only ever reads one package file at a time, never a system rpmdb.
package rpmhdr

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Tag numbers from the RPM header tag space that this package understands.
const (
	TagName            = 1000
	TagVersion         = 1001
	TagRelease         = 1002
	TagEpoch           = 1003
	TagSummary         = 1004
	TagArch            = 1022
	TagProvideName     = 1047
	TagRequireFlags    = 1048
	TagRequireName     = 1049
	TagRequireVersion  = 1050
	TagPayloadFormat   = 1124
	TagPayloadCompress = 1125
)

const (
	typeNull = iota
	typeChar
	typeInt8
	typeInt16
	typeInt32
	typeInt64
	typeString
	typeBin
	typeStringArray
	typeI18NString
)

var leadMagic = []byte{0xed, 0xab, 0xee, 0xdb}
var headerMagic = []byte{0x8e, 0xad, 0xe8, 0x01}

type entry struct {
	typ    int32
	offset int32
	count  int32
}

// Header is a parsed RPM header block (either the signature header or the
// main header).
type Header struct {
	entries map[int32]entry
	data    []byte
}

// ReadPackage reads the lead, signature header, and main header from r in
// order, and returns the main header. On success r is positioned at the
// start of the compressed cpio payload.
func ReadPackage(r io.Reader) (hdr *Header, err error) {
	lead := make([]byte, 96)
	if _, err := io.ReadFull(r, lead); err != nil {
		return nil, fmt.Errorf("rpmhdr: reading lead: %w", err)
	}
	if !bytes.Equal(lead[:4], leadMagic) {
		return nil, fmt.Errorf("rpmhdr: bad lead magic")
	}

	sig, sigLen, err := readHeader(r)
	if err != nil {
		return nil, fmt.Errorf("rpmhdr: reading signature header: %w", err)
	}
	_ = sig
	// The signature header's data section is padded to an 8-byte boundary.
	if pad := (8 - sigLen%8) % 8; pad != 0 {
		if _, err := io.CopyN(io.Discard, r, int64(pad)); err != nil {
			return nil, fmt.Errorf("rpmhdr: skipping signature padding: %w", err)
		}
	}

	main, _, err := readHeader(r)
	if err != nil {
		return nil, fmt.Errorf("rpmhdr: reading main header: %w", err)
	}
	return main, nil
}

// readHeader reads one header block (16-byte preamble, index, data blob)
// and returns it plus the number of bytes consumed for the data blob.
func readHeader(r io.Reader) (*Header, int, error) {
	var preamble [16]byte
	if _, err := io.ReadFull(r, preamble[:]); err != nil {
		return nil, 0, fmt.Errorf("reading preamble: %w", err)
	}
	if !bytes.Equal(preamble[:4], headerMagic) {
		return nil, 0, fmt.Errorf("bad header magic")
	}
	il := int32(binary.BigEndian.Uint32(preamble[8:12]))
	dl := int32(binary.BigEndian.Uint32(preamble[12:16]))

	idx := make([]byte, int(il)*16)
	if _, err := io.ReadFull(r, idx); err != nil {
		return nil, 0, fmt.Errorf("reading index (%d entries): %w", il, err)
	}
	data := make([]byte, dl)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, 0, fmt.Errorf("reading data blob (%d bytes): %w", dl, err)
	}

	h := &Header{entries: make(map[int32]entry, il), data: data}
	for i := 0; i < int(il); i++ {
		b := idx[i*16 : i*16+16]
		tag := int32(binary.BigEndian.Uint32(b[0:4]))
		typ := int32(binary.BigEndian.Uint32(b[4:8]))
		off := int32(binary.BigEndian.Uint32(b[8:12]))
		cnt := int32(binary.BigEndian.Uint32(b[12:16]))
		h.entries[tag] = entry{typ: typ, offset: off, count: cnt}
	}
	return h, int(dl), nil
}

// String returns the value of a STRING or I18NSTRING tag.
func (h *Header) String(tag int32) (string, bool) {
	e, ok := h.entries[tag]
	if !ok || (e.typ != typeString && e.typ != typeI18NString) {
		return "", false
	}
	end := bytes.IndexByte(h.data[e.offset:], 0)
	if end < 0 {
		return "", false
	}
	return string(h.data[e.offset : e.offset+int32(end)]), true
}

// StringArray returns the value of a STRING_ARRAY tag.
func (h *Header) StringArray(tag int32) []string {
	e, ok := h.entries[tag]
	if !ok || e.typ != typeStringArray {
		return nil
	}
	out := make([]string, 0, e.count)
	off := e.offset
	for i := int32(0); i < e.count; i++ {
		end := bytes.IndexByte(h.data[off:], 0)
		if end < 0 {
			break
		}
		out = append(out, string(h.data[off:off+int32(end)]))
		off += int32(end) + 1
	}
	return out
}

// Int32Array returns the value of an INT32 tag.
func (h *Header) Int32Array(tag int32) []int32 {
	e, ok := h.entries[tag]
	if !ok || e.typ != typeInt32 {
		return nil
	}
	out := make([]int32, e.count)
	for i := int32(0); i < e.count; i++ {
		out[i] = int32(binary.BigEndian.Uint32(h.data[e.offset+i*4:]))
	}
	return out
}

// Int32 returns the first value of an INT32 tag.
func (h *Header) Int32(tag int32) (int32, bool) {
	a := h.Int32Array(tag)
	if len(a) == 0 {
		return 0, false
	}
	return a[0], true
}
