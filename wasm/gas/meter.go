package gas

import "errors"

// ErrOutOfGas is returned by UseGas when charging amount would exceed
// the instance's remaining gas_limit balance.
var ErrOutOfGas = errors.New("gas: out of gas")

// Instance is the minimal surface Meter needs from a running guest
// instance, implemented by the engine adapter (wasm/engine) over
// whichever WASM runtime backs it.
type Instance interface {
	GetGlobalI64(name string) (int64, error)
	SetGlobalI64(name string, value int64) error
	GetGlobalI32(name string) (int32, error)
	SetGlobalI32(name string, value int32) error
}

// Meter drives the two globals the Transform injects into a guest
// module (GasLimitExport, GasLimitExhaustedExport) from the host side,
// per spec.md §4.4: the host sets the budget before a call and reads
// the balance and exhaustion flag after.
type Meter struct {
	inst Instance
}

// NewMeter wraps inst for gas accounting.
func NewMeter(inst Instance) *Meter {
	return &Meter{inst: inst}
}

// SetGasLimit sets the instance's remaining gas balance to limit and
// clears the exhaustion flag, ahead of a fresh call into the guest.
func (m *Meter) SetGasLimit(limit uint64) error {
	if err := m.inst.SetGlobalI64(GasLimitExport, int64(limit)); err != nil {
		return err
	}
	return m.inst.SetGlobalI32(GasLimitExhaustedExport, 0)
}

// GetRemainingGas returns the instance's current gas balance. A
// negative balance (possible only if the guest's injected charge
// sequence is bypassed, which should never happen for a transformed
// module) is reported as zero.
func (m *Meter) GetRemainingGas() (uint64, error) {
	v, err := m.inst.GetGlobalI64(GasLimitExport)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, nil
	}
	return uint64(v), nil
}

// IsGasLimitExhausted reports whether the guest's injected charge
// sequence has tripped the exhaustion flag.
func (m *Meter) IsGasLimitExhausted() (bool, error) {
	v, err := m.inst.GetGlobalI32(GasLimitExhaustedExport)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// UseGas charges amount against the instance's balance directly,
// without going through the guest's static instrumentation. It is used
// by host functions (contracts/abi) to bill for work that happens on
// the host side of a call: storage I/O, cryptographic operations,
// subcalls.
func (m *Meter) UseGas(amount uint64) error {
	remaining, err := m.GetRemainingGas()
	if err != nil {
		return err
	}
	if amount > remaining {
		_ = m.inst.SetGlobalI64(GasLimitExport, 0)
		_ = m.inst.SetGlobalI32(GasLimitExhaustedExport, 1)
		return ErrOutOfGas
	}
	return m.inst.SetGlobalI64(GasLimitExport, int64(remaining-amount))
}
