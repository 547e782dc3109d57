package gas

// GasLimitExport and GasLimitExhaustedExport name the two globals the
// transform injects into every module, per spec.md §4.4. A guest module
// is forbidden from declaring either itself (see reservedExports).
const (
	GasLimitExport          = "gas_limit"
	GasLimitExhaustedExport = "gas_limit_exhausted"
)

// instrCost is the per-instruction cost of the reference gas schedule,
// per spec.md §4.4: a constant 1 per instruction, regardless of kind.
func instrCost(op byte) uint64 {
	return 1
}

// meteredBlock is a maximal straight-line run of instructions that the
// transform charges for as a unit, per spec.md §4.4: it starts at the
// top of the function or right after a control-transfer instruction or
// a loop/if/else; it ends at (and includes) the next control-transfer
// instruction or loop/if/else, so an opener is charged in the block
// before the body it opens. A plain `block` does not cut: it folds into
// whichever metered block is already open.
type meteredBlock struct {
	start int // offset into the original Code of the first charged byte
	end   int // offset just past the block's last instruction
	cost  uint64
}

// computeMeteredBlocks walks code and partitions it into metered blocks.
func computeMeteredBlocks(code []byte) ([]meteredBlock, error) {
	var blocks []meteredBlock
	cur := meteredBlock{start: 0}

	flush := func(end int) {
		cur.end = end
		blocks = append(blocks, cur)
	}

	off := 0
	for off < len(code) {
		ins, err := decodeInstr(code, off)
		if err != nil {
			return nil, err
		}

		switch {
		case ins.isBlockOpen() || ins.op == opElse:
			// loop/if/else all mark the start of a branch body that may
			// not execute (the if-false path skips straight past a
			// then-arm's charge, an untaken branch skips an else-arm's).
			// The opcode's own bytes run unconditionally, so they're
			// charged in the run that precedes it; the new block starts
			// right after, at the top of the branch body.
			cur.cost += instrCost(ins.op)
			flush(ins.end)
			cur = meteredBlock{start: ins.end}
		case ins.isControlTransfer():
			cur.cost += instrCost(ins.op)
			flush(ins.end)
			cur = meteredBlock{start: ins.end}
		default:
			cur.cost += instrCost(ins.op)
		}

		off = ins.end
	}
	if cur.start < len(code) || len(blocks) == 0 {
		flush(len(code))
	}
	return blocks, nil
}

// chargeSequence returns the instruction bytes that charge cost units of
// gas against the gas_limit global (index gasLimitIdx), trapping via
// unreachable and setting the gas_limit_exhausted global (index
// gasExhaustedIdx) if the balance would go negative. It leaves the
// operand stack exactly as it found it, so it is safe to splice in at
// any metered-block boundary.
func chargeSequence(cost uint64, gasLimitIdx, gasExhaustedIdx uint32) []byte {
	if cost == 0 {
		return nil
	}
	var b []byte
	b = append(b, opGlobalGet)
	b = putULEB128(b, uint64(gasLimitIdx))
	b = append(b, opI64Const)
	b = putSLEB128(b, int64(cost))
	b = append(b, opI64LtU)
	b = append(b, opIf, blockTypeVoid)
	b = append(b, opI32Const)
	b = putSLEB128(b, 1)
	b = append(b, opGlobalSet)
	b = putULEB128(b, uint64(gasExhaustedIdx))
	b = append(b, opUnreachable)
	b = append(b, opEnd)
	b = append(b, opGlobalGet)
	b = putULEB128(b, uint64(gasLimitIdx))
	b = append(b, opI64Const)
	b = putSLEB128(b, int64(cost))
	b = append(b, opI64Sub)
	b = append(b, opGlobalSet)
	b = putULEB128(b, uint64(gasLimitIdx))
	return b
}

// transformFunctionBody rewrites a single function's code, injecting a
// charge sequence at the start of every non-empty metered block.
func transformFunctionBody(fb FunctionBody, gasLimitIdx, gasExhaustedIdx uint32) (FunctionBody, error) {
	blocks, err := computeMeteredBlocks(fb.Code)
	if err != nil {
		return FunctionBody{}, err
	}

	out := make([]byte, 0, len(fb.Code)+len(blocks)*chargeSequenceUpperBound)
	pos := 0
	for _, blk := range blocks {
		out = append(out, fb.Code[pos:blk.start]...)
		out = append(out, chargeSequence(blk.cost, gasLimitIdx, gasExhaustedIdx)...)
		out = append(out, fb.Code[blk.start:blk.end]...)
		pos = blk.end
	}
	out = append(out, fb.Code[pos:]...)

	return FunctionBody{Locals: fb.Locals, Code: out}, nil
}

// chargeSequenceUpperBound is a capacity hint, not a correctness bound:
// a charge sequence is 14 fixed bytes plus the cost twice as signed
// LEB128 (at most 10 bytes each) and four global indices, so it is at
// most 38 bytes while both global indices are below 128.
const chargeSequenceUpperBound = 40

// Transform validates m against limits and, on success, returns a new
// module with gas metering instrumented into every function, plus the
// two host-visible globals exported under GasLimitExport and
// GasLimitExhaustedExport.
//
// The returned module's code section function indices and type indices
// are unchanged from m; only function bodies, the global section, and
// the export section are modified.
func Transform(m *Module, limits Limits) (*Module, error) {
	if err := Validate(m, limits); err != nil {
		return nil, err
	}

	globals, err := sectionGlobals(m)
	if err != nil {
		return nil, err
	}
	gasLimitIdx := uint32(len(globals))
	gasExhaustedIdx := gasLimitIdx + 1
	globals = append(globals,
		GlobalType{ValType: ValI64, Mutable: true, Init: i64ConstZeroInit},
		GlobalType{ValType: ValI32, Mutable: true, Init: i32ConstZeroInit},
	)

	bodies, err := sectionCode(m)
	if err != nil {
		return nil, err
	}
	newBodies := make([]FunctionBody, len(bodies))
	for i, fb := range bodies {
		tfb, err := transformFunctionBody(fb, gasLimitIdx, gasExhaustedIdx)
		if err != nil {
			return nil, err
		}
		newBodies[i] = tfb
	}

	exports, err := sectionExports(m)
	if err != nil {
		return nil, err
	}
	exports = append(exports,
		Export{Name: GasLimitExport, Kind: ExportGlobal, Index: gasLimitIdx},
		Export{Name: GasLimitExhaustedExport, Kind: ExportGlobal, Index: gasExhaustedIdx},
	)

	out := &Module{sections: append([]section(nil), m.sections...)}
	out.setSection(secGlobal, encodeGlobalSection(globals))
	out.setSection(secExport, encodeExportSection(exports))
	out.setSection(secCode, encodeCodeSection(newBodies))
	return out, nil
}
