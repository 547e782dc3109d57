package gas

// LocalDecl is one run-length-encoded local declaration: count locals of
// the same type, as the WASM binary format groups them.
type LocalDecl struct {
	Count   uint32
	ValType ValType
}

// FunctionBody is one parsed entry of the code section.
type FunctionBody struct {
	Locals []LocalDecl
	Code   []byte // the function's expr bytes, including the trailing 0x0B
}

// LocalCount returns the total number of declared locals (not counting
// parameters).
func (f FunctionBody) LocalCount() int {
	n := 0
	for _, l := range f.Locals {
		n += int(l.Count)
	}
	return n
}

func parseCodeSection(payload []byte) ([]FunctionBody, error) {
	count, off, err := readULEB128(payload, 0)
	if err != nil {
		return nil, err
	}
	out := make([]FunctionBody, 0, count)
	for i := uint64(0); i < count; i++ {
		var size uint64
		size, off, err = readULEB128(payload, off)
		if err != nil {
			return nil, err
		}
		if off+int(size) > len(payload) {
			return nil, errMalformedSection
		}
		body := payload[off : off+int(size)]
		off += int(size)

		fb, err := parseFunctionBody(body)
		if err != nil {
			return nil, err
		}
		out = append(out, fb)
	}
	return out, nil
}

func parseFunctionBody(body []byte) (FunctionBody, error) {
	declCount, off, err := readULEB128(body, 0)
	if err != nil {
		return FunctionBody{}, err
	}
	locals := make([]LocalDecl, 0, declCount)
	for i := uint64(0); i < declCount; i++ {
		var n uint64
		n, off, err = readULEB128(body, off)
		if err != nil {
			return FunctionBody{}, err
		}
		if off >= len(body) {
			return FunctionBody{}, errMalformedSection
		}
		locals = append(locals, LocalDecl{Count: uint32(n), ValType: ValType(body[off])})
		off++
	}
	return FunctionBody{Locals: locals, Code: body[off:]}, nil
}

func encodeCodeSection(bodies []FunctionBody) []byte {
	out := putULEB128(nil, uint64(len(bodies)))
	for _, fb := range bodies {
		var b []byte
		b = putULEB128(b, uint64(len(fb.Locals)))
		for _, l := range fb.Locals {
			b = putULEB128(b, uint64(l.Count))
			b = append(b, byte(l.ValType))
		}
		b = append(b, fb.Code...)

		out = putULEB128(out, uint64(len(b)))
		out = append(out, b...)
	}
	return out
}
