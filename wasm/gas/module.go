// Package gas implements the WASM static-analysis gas-metering
// transform of spec.md §4.4 (C4): validating a guest module against the
// ABI's structural pre-conditions and rewriting it so every execution
// path charges gas deterministically at metered-block boundaries.
package gas

import (
	"bytes"
	"errors"
)

var wasmMagic = []byte{0x00, 0x61, 0x73, 0x6D}
var wasmVersion = []byte{0x01, 0x00, 0x00, 0x00}

// Section ids, per the WASM binary format.
const (
	secCustom   byte = 0
	secType     byte = 1
	secImport   byte = 2
	secFunction byte = 3
	secTable    byte = 4
	secMemory   byte = 5
	secGlobal   byte = 6
	secExport   byte = 7
	secStart    byte = 8
	secElement  byte = 9
	secCode     byte = 10
	secData     byte = 11
	secDataCount byte = 12
)

// ErrNotWasm is returned when the input does not start with the WASM
// magic number and version.
var ErrNotWasm = errors.New("gas: not a WASM module")

// section is one top-level WASM section, kept as raw, unparsed bytes
// except where the transform needs to rewrite it (global, export, code).
type section struct {
	id      byte
	payload []byte
}

// Module is a parsed WASM binary, preserving section order exactly as
// it was read so re-encoding round-trips byte-for-byte for any section
// this package does not modify.
type Module struct {
	sections []section
}

// ParseModule parses the WASM binary format header and top-level
// section framing. Section payloads are decoded lazily by the
// functions that need their structure (types, exports, globals, code).
func ParseModule(b []byte) (*Module, error) {
	if len(b) < 8 || !bytes.Equal(b[:4], wasmMagic) || !bytes.Equal(b[4:8], wasmVersion) {
		return nil, ErrNotWasm
	}

	m := &Module{}
	off := 8
	for off < len(b) {
		id := b[off]
		off++
		size, next, err := readULEB128(b, off)
		if err != nil {
			return nil, err
		}
		off = next
		if off+int(size) > len(b) {
			return nil, ErrMalformedLEB128
		}
		payload := b[off : off+int(size)]
		off += int(size)
		m.sections = append(m.sections, section{id: id, payload: payload})
	}
	return m, nil
}

// Encode serializes the module back to the WASM binary format.
func (m *Module) Encode() []byte {
	out := make([]byte, 0, 64)
	out = append(out, wasmMagic...)
	out = append(out, wasmVersion...)
	for _, s := range m.sections {
		out = append(out, s.id)
		out = putULEB128(out, uint64(len(s.payload)))
		out = append(out, s.payload...)
	}
	return out
}

// section returns the first section with the given id, or nil if
// absent. Sections other than custom (id 0) are not repeated in a
// well-formed module.
func (m *Module) section(id byte) *section {
	for i := range m.sections {
		if m.sections[i].id == id {
			return &m.sections[i]
		}
	}
	return nil
}

// hasSection reports whether a section with the given id is present.
func (m *Module) hasSection(id byte) bool {
	return m.section(id) != nil
}

// setSection replaces the payload of the first section with id,
// appending a new section in binary-format order if none exists yet.
func (m *Module) setSection(id byte, payload []byte) {
	if s := m.section(id); s != nil {
		s.payload = payload
		return
	}
	// Insert keeping ascending id order (custom sections aside), matching
	// how the WASM binary format expects core sections to appear.
	idx := len(m.sections)
	for i, s := range m.sections {
		if s.id != secCustom && s.id > id {
			idx = i
			break
		}
	}
	m.sections = append(m.sections, section{})
	copy(m.sections[idx+1:], m.sections[idx:])
	m.sections[idx] = section{id: id, payload: payload}
}
