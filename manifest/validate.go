package manifest

import (
	"regexp"

	errorsmod "cosmossdk.io/errors"
)

// ModuleName is the codespace under which manifest validation errors
// register.
const ModuleName = "manifest"

var (
	ErrBadComponentID   = errorsmod.Register(ModuleName, 1, "component id is malformed")
	ErrDuplicateComponent = errorsmod.Register(ModuleName, 2, "duplicate component id")
	ErrComponentDisabled = errorsmod.Register(ModuleName, 3, "component is disabled")
	ErrMultiplePayloads = errorsmod.Register(ModuleName, 4, "component declares more than one of elf/sgx/tdx")
	ErrMissingPayload   = errorsmod.Register(ModuleName, 5, "component declares no elf/sgx/tdx payload")
	ErrTDXFirmwareRequired = errorsmod.Register(ModuleName, 6, "tdx component requires non-empty firmware")
	ErrTDXKernelRequired = errorsmod.Register(ModuleName, 7, "tdx component requires a kernel when stage2 image, initrd, or extra kernel options are present")
	ErrTooManyKernelOpts = errorsmod.Register(ModuleName, 8, "too many extra kernel options")
	ErrBadStageTwoFormat = errorsmod.Register(ModuleName, 9, "unrecognized stage2 format")
	ErrBadResourceDescriptor = errorsmod.Register(ModuleName, 10, "bad resource descriptor")
)

// componentIDPattern implements spec.md §4.10's "3-128 chars matching
// [A-Za-z0-9_-]".
var componentIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,128}$`)

// Validate checks m against every rule of spec.md §4.10, returning the
// first violation found.
func Validate(m Manifest) error {
	seen := make(map[string]struct{}, len(m.Components))
	for _, c := range m.Components {
		if err := validateComponent(c); err != nil {
			return err
		}
		if _, dup := seen[c.ID]; dup {
			return ErrDuplicateComponent
		}
		seen[c.ID] = struct{}{}
	}
	return nil
}

func validateComponent(c Component) error {
	if !componentIDPattern.MatchString(c.ID) {
		return ErrBadComponentID
	}
	if c.Disabled {
		return ErrComponentDisabled
	}
	if err := validateResources(c.Resources); err != nil {
		return err
	}

	present := 0
	if len(c.ELF) > 0 {
		present++
	}
	if c.SGX != nil {
		present++
	}
	if c.TDX != nil {
		present++
	}
	switch {
	case present > 1:
		return ErrMultiplePayloads
	case present == 0:
		return ErrMissingPayload
	}

	if c.TDX != nil {
		if err := validateTDX(c.TDX); err != nil {
			return err
		}
	}
	return nil
}

func validateTDX(t *TDXComponent) error {
	if len(t.Firmware) == 0 {
		return ErrTDXFirmwareRequired
	}
	needsKernel := len(t.StageTwoImage) > 0 || len(t.Initrd) > 0 || len(t.ExtraKernelOptions) > 0
	if needsKernel && len(t.Kernel) == 0 {
		return ErrTDXKernelRequired
	}
	if len(t.ExtraKernelOptions) > maxExtraKernelOpts {
		return ErrTooManyKernelOpts
	}
	if len(t.StageTwoImage) > 0 && t.StageTwoFormat != StageTwoQCOW2 {
		return ErrBadStageTwoFormat
	}
	return nil
}

func validateResources(r Resources) error {
	const minMemoryMiB = 16
	if r.Memory < minMemoryMiB {
		return ErrBadResourceDescriptor
	}
	if r.CPUs < 1 {
		return ErrBadResourceDescriptor
	}
	if r.GPU != nil {
		if r.GPU.Count < 1 {
			return ErrBadResourceDescriptor
		}
		if len(r.GPU.Model) > 64 {
			return ErrBadResourceDescriptor
		}
	}
	return nil
}
