package gas

import (
	"errors"
	"regexp"
)

// Limits bounds the structural pre-conditions of spec.md §4.4. Zero
// values select the package defaults.
type Limits struct {
	// MaxFunctions bounds the number of locally-defined functions.
	MaxFunctions int
	// MaxLocalsPerFunction bounds the declared-local count of any one
	// function (not counting its parameters).
	MaxLocalsPerFunction int
}

// DefaultLimits returns the reference parameter limits.
func DefaultLimits() Limits {
	return Limits{MaxFunctions: 4096, MaxLocalsPerFunction: 512}
}

func (l Limits) orDefault() Limits {
	d := DefaultLimits()
	if l.MaxFunctions == 0 {
		l.MaxFunctions = d.MaxFunctions
	}
	if l.MaxLocalsPerFunction == 0 {
		l.MaxLocalsPerFunction = d.MaxLocalsPerFunction
	}
	return l
}

// requiredExports are the ABI exports every guest module must declare,
// independent of ABI sub-version (spec.md §4.4).
var requiredExports = []string{"allocate", "deallocate", "instantiate", "call"}

// reservedExports are the host-injected export names a guest module may
// never declare itself (spec.md §4.4): the two metering globals.
var reservedExports = map[string]bool{
	GasLimitExport:          true,
	GasLimitExhaustedExport: true,
}

// abiSubVersionExport matches the single allowed ABI sub-version export
// name, e.g. "oasis_abi_sv_1".
var abiSubVersionExport = regexp.MustCompile(`^oasis_abi_sv_(\d+)$`)

var (
	// ErrMultipleMemories is returned when a module declares more than
	// one memory.
	ErrMultipleMemories = errors.New("gas: module declares more than one memory")
	// ErrHasStart is returned when a module declares a start function.
	ErrHasStart = errors.New("gas: module declares a start function")
	// ErrFloatingPoint is returned when a module uses floating-point
	// types or instructions anywhere.
	ErrFloatingPoint = errors.New("gas: module uses floating-point types or instructions")
	// ErrTooManyFunctions is returned when the function count exceeds
	// the configured limit.
	ErrTooManyFunctions = errors.New("gas: function count exceeds limit")
	// ErrTooManyLocals is returned when a function's local count
	// exceeds the configured limit.
	ErrTooManyLocals = errors.New("gas: function local count exceeds limit")
	// ErrMissingExport is returned when a required ABI export is absent.
	ErrMissingExport = errors.New("gas: missing required ABI export")
	// ErrReservedExport is returned when the guest declares a reserved
	// export name itself.
	ErrReservedExport = errors.New("gas: guest declares a reserved export name")
	// ErrMultipleABISubVersions is returned when more than one ABI
	// sub-version export is present, or it is malformed.
	ErrMultipleABISubVersions = errors.New("gas: malformed or duplicate ABI sub-version export")
)

// Validate checks every structural pre-condition of spec.md §4.4 against
// m, before the transform runs.
func Validate(m *Module, limits Limits) error {
	limits = limits.orDefault()

	if m.hasSection(secStart) {
		return ErrHasStart
	}

	if mem := m.section(secMemory); mem != nil {
		count, _, err := readULEB128(mem.payload, 0)
		if err != nil {
			return err
		}
		if count > 1 {
			return ErrMultipleMemories
		}
	}

	types, err := sectionTypes(m)
	if err != nil {
		return err
	}
	for _, t := range types {
		for _, v := range t.Params {
			if v.isFloat() {
				return ErrFloatingPoint
			}
		}
		for _, v := range t.Results {
			if v.isFloat() {
				return ErrFloatingPoint
			}
		}
	}

	globals, err := sectionGlobals(m)
	if err != nil {
		return err
	}
	for _, g := range globals {
		if g.ValType.isFloat() {
			return ErrFloatingPoint
		}
	}

	funcTypeIdx, err := sectionFunctions(m)
	if err != nil {
		return err
	}
	if len(funcTypeIdx) > limits.MaxFunctions {
		return ErrTooManyFunctions
	}

	bodies, err := sectionCode(m)
	if err != nil {
		return err
	}
	for _, fb := range bodies {
		if fb.LocalCount() > limits.MaxLocalsPerFunction {
			return ErrTooManyLocals
		}
		for _, l := range fb.Locals {
			if l.ValType.isFloat() {
				return ErrFloatingPoint
			}
		}
		if err := walkInstructions(fb.Code, func(i instr) error {
			if isFloatOpcode(i.op) {
				return ErrFloatingPoint
			}
			return nil
		}); err != nil {
			return err
		}
	}

	exports, err := sectionExports(m)
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(exports))
	subVersions := 0
	for _, e := range exports {
		present[e.Name] = true
		if reservedExports[e.Name] {
			return ErrReservedExport
		}
		if abiSubVersionExport.MatchString(e.Name) {
			subVersions++
			if e.Kind != ExportGlobal {
				return ErrMultipleABISubVersions
			}
		}
	}
	if subVersions > 1 {
		return ErrMultipleABISubVersions
	}
	for _, name := range requiredExports {
		if !present[name] {
			return ErrMissingExport
		}
	}

	return nil
}

// sectionTypes, sectionFunctions, sectionExports, sectionGlobals, and
// sectionCode decode their respective sections, treating an absent
// section as empty (valid for e.g. a module with no globals).

func sectionTypes(m *Module) ([]FuncType, error) {
	s := m.section(secType)
	if s == nil {
		return nil, nil
	}
	return parseTypeSection(s.payload)
}

func sectionFunctions(m *Module) ([]uint32, error) {
	s := m.section(secFunction)
	if s == nil {
		return nil, nil
	}
	return parseFunctionSection(s.payload)
}

func sectionExports(m *Module) ([]Export, error) {
	s := m.section(secExport)
	if s == nil {
		return nil, nil
	}
	return parseExportSection(s.payload)
}

func sectionGlobals(m *Module) ([]GlobalType, error) {
	s := m.section(secGlobal)
	if s == nil {
		return nil, nil
	}
	return parseGlobalSection(s.payload)
}

func sectionCode(m *Module) ([]FunctionBody, error) {
	s := m.section(secCode)
	if s == nil {
		return nil, nil
	}
	return parseCodeSection(s.payload)
}

// walkInstructions decodes every instruction in code in order, invoking
// fn for each. It stops and returns fn's error if fn returns one.
func walkInstructions(code []byte, fn func(instr) error) error {
	off := 0
	for off < len(code) {
		ins, err := decodeInstr(code, off)
		if err != nil {
			return err
		}
		if err := fn(ins); err != nil {
			return err
		}
		off = ins.end
	}
	return nil
}
