package gas

import "errors"

// ValType is a WASM value type byte (i32, i64, f32, f64, funcref, ...).
type ValType byte

const (
	ValI32      ValType = 0x7F
	ValI64      ValType = 0x7E
	ValF32      ValType = 0x7D
	ValF64      ValType = 0x7C
	ValFuncref  ValType = 0x70
	ValExternref ValType = 0x6F
)

// isFloat reports whether t is a floating-point value type.
func (t ValType) isFloat() bool {
	return t == ValF32 || t == ValF64
}

// FuncType is a parsed entry of the type section.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

var errMalformedSection = errors.New("gas: malformed section")

// parseTypeSection decodes the type section into its function types.
func parseTypeSection(payload []byte) ([]FuncType, error) {
	count, off, err := readULEB128(payload, 0)
	if err != nil {
		return nil, err
	}
	types := make([]FuncType, 0, count)
	for i := uint64(0); i < count; i++ {
		if off >= len(payload) || payload[off] != 0x60 {
			return nil, errMalformedSection
		}
		off++
		var ft FuncType
		ft.Params, off, err = readValTypeVec(payload, off)
		if err != nil {
			return nil, err
		}
		ft.Results, off, err = readValTypeVec(payload, off)
		if err != nil {
			return nil, err
		}
		types = append(types, ft)
	}
	return types, nil
}

func readValTypeVec(b []byte, off int) ([]ValType, int, error) {
	count, off, err := readULEB128(b, off)
	if err != nil {
		return nil, 0, err
	}
	out := make([]ValType, count)
	for i := uint64(0); i < count; i++ {
		if off >= len(b) {
			return nil, 0, errMalformedSection
		}
		out[i] = ValType(b[off])
		off++
	}
	return out, off, nil
}

// parseFunctionSection decodes the function section into a list of
// type indices, one per locally-defined function.
func parseFunctionSection(payload []byte) ([]uint32, error) {
	count, off, err := readULEB128(payload, 0)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, count)
	for i := uint64(0); i < count; i++ {
		var v uint64
		v, off, err = readULEB128(payload, off)
		if err != nil {
			return nil, err
		}
		out[i] = uint32(v)
	}
	return out, nil
}

// ExportKind identifies what kind of definition an export refers to.
type ExportKind byte

const (
	ExportFunc   ExportKind = 0
	ExportTable  ExportKind = 1
	ExportMemory ExportKind = 2
	ExportGlobal ExportKind = 3
)

// Export is a parsed entry of the export section.
type Export struct {
	Name  string
	Kind  ExportKind
	Index uint32
}

func parseExportSection(payload []byte) ([]Export, error) {
	count, off, err := readULEB128(payload, 0)
	if err != nil {
		return nil, err
	}
	out := make([]Export, 0, count)
	for i := uint64(0); i < count; i++ {
		var name string
		name, off, err = readName(payload, off)
		if err != nil {
			return nil, err
		}
		if off >= len(payload) {
			return nil, errMalformedSection
		}
		kind := ExportKind(payload[off])
		off++
		var idx uint64
		idx, off, err = readULEB128(payload, off)
		if err != nil {
			return nil, err
		}
		out = append(out, Export{Name: name, Kind: kind, Index: uint32(idx)})
	}
	return out, nil
}

func readName(b []byte, off int) (string, int, error) {
	n, off, err := readULEB128(b, off)
	if err != nil {
		return "", 0, err
	}
	if off+int(n) > len(b) {
		return "", 0, errMalformedSection
	}
	s := string(b[off : off+int(n)])
	return s, off + int(n), nil
}

func encodeName(out []byte, s string) []byte {
	out = putULEB128(out, uint64(len(s)))
	return append(out, s...)
}

// encodeExportSection re-serializes a full export list.
func encodeExportSection(exports []Export) []byte {
	out := putULEB128(nil, uint64(len(exports)))
	for _, e := range exports {
		out = encodeName(out, e.Name)
		out = append(out, byte(e.Kind))
		out = putULEB128(out, uint64(e.Index))
	}
	return out
}

// GlobalType is a parsed global declaration (without its init expr,
// which is kept as raw bytes for pass-through re-encoding).
type GlobalType struct {
	ValType ValType
	Mutable bool
	Init    []byte // raw init expr bytes, including the trailing 0x0B
}

func parseGlobalSection(payload []byte) ([]GlobalType, error) {
	count, off, err := readULEB128(payload, 0)
	if err != nil {
		return nil, err
	}
	out := make([]GlobalType, 0, count)
	for i := uint64(0); i < count; i++ {
		if off+1 >= len(payload) {
			return nil, errMalformedSection
		}
		vt := ValType(payload[off])
		mut := payload[off+1] != 0
		off += 2
		start := off
		for off < len(payload) && payload[off] != opEnd {
			// Walk the init expr to find its terminating end opcode,
			// decoding each instruction with decodeInstr so an immediate
			// byte equal to 0x0B is skipped, not taken for the end.
			ins, err := decodeInstr(payload, off)
			if err != nil {
				return nil, err
			}
			off = ins.end
		}
		if off >= len(payload) {
			return nil, errMalformedSection
		}
		off++ // consume 0x0B
		out = append(out, GlobalType{ValType: vt, Mutable: mut, Init: payload[start:off]})
	}
	return out, nil
}

func encodeGlobalSection(globals []GlobalType) []byte {
	out := putULEB128(nil, uint64(len(globals)))
	for _, g := range globals {
		out = append(out, byte(g.ValType))
		if g.Mutable {
			out = append(out, 1)
		} else {
			out = append(out, 0)
		}
		out = append(out, g.Init...)
	}
	return out
}

// i64ConstZeroInit and i32ConstZeroInit are the init exprs for the two
// globals injected by the transform (spec.md §4.4): both start at 0,
// with gas_limit set by the host before each call.
var (
	i64ConstZeroInit = []byte{opI64Const, 0x00, opEnd}
	i32ConstZeroInit = []byte{opI32Const, 0x00, opEnd}
)
