package gas

// instr is one decoded instruction within a function body.
type instr struct {
	op    byte
	start int // offset of the opcode byte
	end   int // offset just past the instruction's immediates
}

// isControlTransfer reports whether op unconditionally ends the current
// metered block per spec.md §4.4: call, call_indirect, br, br_if,
// br_table, return.
func (i instr) isControlTransfer() bool {
	switch i.op {
	case opCall, opCallIndirect, opBr, opBrIf, opBrTable, opReturn:
		return true
	default:
		return false
	}
}

// isBlockOpen reports whether op opens a Loop or an If/Else, which also
// forces the current block to finalize per spec.md §4.4 (plain Block
// opens fold into the enclosing block instead).
func (i instr) isBlockOpen() bool {
	return i.op == opLoop || i.op == opIf
}

// decodeInstr decodes the single instruction starting at body[off],
// returning its classification. A LEB128/bounds error means the module
// is malformed and must be rejected.
func decodeInstr(body []byte, off int) (instr, error) {
	if off >= len(body) {
		return instr{}, ErrMalformedLEB128
	}
	op := body[off]
	start := off
	off++

	kind, ok := classify(op)
	if !ok {
		return instr{}, &UnsupportedOpcodeError{Opcode: op}
	}

	var err error
	switch kind {
	case immNone:
		// no-op
	case immBlockType:
		_, off, err = readSLEB128(body, off)
	case immULEB:
		_, off, err = readULEB128(body, off)
	case immULEBULEB:
		_, off, err = readULEB128(body, off)
		if err == nil {
			_, off, err = readULEB128(body, off)
		}
	case immMemArg:
		_, off, err = readULEB128(body, off) // align
		if err == nil {
			_, off, err = readULEB128(body, off) // offset
		}
	case immBrTable:
		var count uint64
		count, off, err = readULEB128(body, off)
		for i := uint64(0); err == nil && i < count; i++ {
			_, off, err = readULEB128(body, off)
		}
		if err == nil {
			_, off, err = readULEB128(body, off) // default label
		}
	case immI32Const, immI64Const:
		_, off, err = readSLEB128(body, off)
	case immF32Const:
		if off+4 > len(body) {
			err = ErrMalformedLEB128
		}
		off += 4
	case immF64Const:
		if off+8 > len(body) {
			err = ErrMalformedLEB128
		}
		off += 8
	case immReserved1:
		if off >= len(body) {
			err = ErrMalformedLEB128
		} else {
			off++
		}
	}
	if err != nil {
		return instr{}, err
	}
	return instr{op: op, start: start, end: off}, nil
}

// UnsupportedOpcodeError is returned when a function body contains an
// opcode this package's MVP-only classifier does not recognize.
type UnsupportedOpcodeError struct {
	Opcode byte
}

func (e *UnsupportedOpcodeError) Error() string {
	return "gas: unsupported opcode"
}
