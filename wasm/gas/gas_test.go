package gas

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLEB128RoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 127, 128, 300, 1 << 35, ^uint64(0)} {
		enc := putULEB128(nil, v)
		got, off, err := readULEB128(enc, 0)
		require.NoError(t, err)
		require.Equal(t, len(enc), off)
		require.Equal(t, v, got)
	}

	for _, v := range []int64{0, 1, -1, 63, -64, 64, -65, 1 << 40, -(1 << 40)} {
		enc := putSLEB128(nil, v)
		got, off, err := readSLEB128(enc, 0)
		require.NoError(t, err)
		require.Equal(t, len(enc), off)
		require.Equal(t, v, got)
	}
}

func TestReadULEB128Malformed(t *testing.T) {
	_, _, err := readULEB128([]byte{0x80, 0x80}, 0)
	require.ErrorIs(t, err, ErrMalformedLEB128)
}

func appendSection(buf []byte, id byte, payload []byte) []byte {
	buf = append(buf, id)
	buf = putULEB128(buf, uint64(len(payload)))
	return append(buf, payload...)
}

// buildMinimalModule assembles the smallest module that satisfies
// Validate's structural pre-conditions: four zero-arg/zero-result
// functions exported under the required ABI names, each with an empty
// body.
func buildMinimalModule(t *testing.T) []byte {
	t.Helper()

	typePayload := putULEB128(nil, 1)
	typePayload = append(typePayload, 0x60)
	typePayload = putULEB128(typePayload, 0)
	typePayload = putULEB128(typePayload, 0)

	funcPayload := putULEB128(nil, 4)
	funcPayload = putULEB128(funcPayload, 0)
	funcPayload = putULEB128(funcPayload, 0)
	funcPayload = putULEB128(funcPayload, 0)
	funcPayload = putULEB128(funcPayload, 0)

	exportPayload := encodeExportSection([]Export{
		{Name: "allocate", Kind: ExportFunc, Index: 0},
		{Name: "deallocate", Kind: ExportFunc, Index: 1},
		{Name: "instantiate", Kind: ExportFunc, Index: 2},
		{Name: "call", Kind: ExportFunc, Index: 3},
	})

	codePayload := encodeCodeSection([]FunctionBody{
		{Code: []byte{opEnd}},
		{Code: []byte{opEnd}},
		{Code: []byte{opEnd}},
		{Code: []byte{opEnd}},
	})

	buf := append([]byte{}, wasmMagic...)
	buf = append(buf, wasmVersion...)
	buf = appendSection(buf, secType, typePayload)
	buf = appendSection(buf, secFunction, funcPayload)
	buf = appendSection(buf, secExport, exportPayload)
	buf = appendSection(buf, secCode, codePayload)
	return buf
}

func TestParseEncodeModuleRoundTrip(t *testing.T) {
	raw := buildMinimalModule(t)
	m, err := ParseModule(raw)
	require.NoError(t, err)
	require.Equal(t, raw, m.Encode())
}

func TestParseModuleRejectsBadMagic(t *testing.T) {
	_, err := ParseModule([]byte{0x00, 0x01, 0x02, 0x03})
	require.ErrorIs(t, err, ErrNotWasm)
}

func TestValidateAcceptsMinimalModule(t *testing.T) {
	m, err := ParseModule(buildMinimalModule(t))
	require.NoError(t, err)
	require.NoError(t, Validate(m, Limits{}))
}

func TestValidateRejectsMissingExport(t *testing.T) {
	raw := buildMinimalModule(t)
	m, err := ParseModule(raw)
	require.NoError(t, err)

	exports, err := sectionExports(m)
	require.NoError(t, err)
	m.setSection(secExport, encodeExportSection(exports[1:]))

	require.ErrorIs(t, Validate(m, Limits{}), ErrMissingExport)
}

func TestValidateRejectsStartSection(t *testing.T) {
	raw := buildMinimalModule(t)
	m, err := ParseModule(raw)
	require.NoError(t, err)
	m.setSection(secStart, putULEB128(nil, 0))

	require.ErrorIs(t, Validate(m, Limits{}), ErrHasStart)
}

func TestValidateRejectsReservedExport(t *testing.T) {
	raw := buildMinimalModule(t)
	m, err := ParseModule(raw)
	require.NoError(t, err)

	exports, err := sectionExports(m)
	require.NoError(t, err)
	exports = append(exports, Export{Name: GasLimitExport, Kind: ExportGlobal, Index: 0})
	m.setSection(secExport, encodeExportSection(exports))

	require.ErrorIs(t, Validate(m, Limits{}), ErrReservedExport)
}

func TestValidateRejectsFloatType(t *testing.T) {
	raw := buildMinimalModule(t)
	m, err := ParseModule(raw)
	require.NoError(t, err)

	floatType := append(putULEB128(nil, 1), 0x60)
	floatType = putULEB128(floatType, 1)
	floatType = append(floatType, byte(ValF32))
	floatType = putULEB128(floatType, 0)
	m.setSection(secType, floatType)

	require.ErrorIs(t, Validate(m, Limits{}), ErrFloatingPoint)
}

func TestValidateRejectsTooManyFunctions(t *testing.T) {
	raw := buildMinimalModule(t)
	m, err := ParseModule(raw)
	require.NoError(t, err)

	require.ErrorIs(t, Validate(m, Limits{MaxFunctions: 2}), ErrTooManyFunctions)
}

func TestComputeMeteredBlocksStraightLine(t *testing.T) {
	code := []byte{opNop, opNop, opNop, opEnd}
	blocks, err := computeMeteredBlocks(code)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	require.Equal(t, uint64(4), blocks[0].cost)
}

func TestComputeMeteredBlocksSplitsOnCall(t *testing.T) {
	code := []byte{opNop, opCall, 0x00, opNop, opEnd}
	blocks, err := computeMeteredBlocks(code)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	require.Equal(t, uint64(2), blocks[0].cost) // nop + call
	require.Equal(t, uint64(2), blocks[1].cost) // nop + end
}

func TestComputeMeteredBlocksLoopRestartsAtBodyTop(t *testing.T) {
	code := []byte{opLoop, blockTypeVoid, opNop, opBr, 0x00, opEnd, opEnd}
	blocks, err := computeMeteredBlocks(code)
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	require.Equal(t, 0, blocks[0].start)
	require.Equal(t, 2, blocks[0].end) // loop opcode + blocktype byte
	require.Equal(t, 2, blocks[1].start)
	require.Equal(t, 5, blocks[1].end) // nop + br + label idx
}

func TestTransformInjectsGasGlobalsAndExports(t *testing.T) {
	m, err := ParseModule(buildMinimalModule(t))
	require.NoError(t, err)

	out, err := Transform(m, Limits{})
	require.NoError(t, err)

	globals, err := sectionGlobals(out)
	require.NoError(t, err)
	require.Len(t, globals, 2)
	require.Equal(t, ValI64, globals[0].ValType)
	require.Equal(t, ValI32, globals[1].ValType)

	exports, err := sectionExports(out)
	require.NoError(t, err)
	var sawLimit, sawExhausted bool
	for _, e := range exports {
		if e.Name == GasLimitExport {
			sawLimit = true
			require.Equal(t, ExportGlobal, e.Kind)
			require.Equal(t, uint32(0), e.Index)
		}
		if e.Name == GasLimitExhaustedExport {
			sawExhausted = true
			require.Equal(t, uint32(1), e.Index)
		}
	}
	require.True(t, sawLimit)
	require.True(t, sawExhausted)

	// The transformed code section must still decode into the same
	// four function bodies.
	bodies, err := sectionCode(out)
	require.NoError(t, err)
	require.Len(t, bodies, 4)
}

func TestTransformIsIdempotentOnReParse(t *testing.T) {
	m, err := ParseModule(buildMinimalModule(t))
	require.NoError(t, err)
	out, err := Transform(m, Limits{})
	require.NoError(t, err)

	reparsed, err := ParseModule(out.Encode())
	require.NoError(t, err)
	require.Equal(t, out.Encode(), reparsed.Encode())
}
